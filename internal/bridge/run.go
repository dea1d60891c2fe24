package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"keybridge/internal/domain"
)

const (
	// maxLineSize bounds one command line.
	maxLineSize = 1024 * 1024

	// readerGrace is how long Run waits for a reader that cannot be closed.
	readerGrace = time.Second
)

// ErrLineTooLong is reported for a command line over the size limit; the
// line is skipped.
var ErrLineTooLong = fmt.Errorf("%w: command line exceeds %d bytes", domain.ErrProtocol, maxLineSize)

// Run reads commands from in and writes events to out until in reaches EOF,
// ctx is cancelled or Shutdown is called. It returns after the event queue
// has been drained and every reconnect task has finished.
func (s *Supervisor) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	stop := context.AfterFunc(ctx, s.Shutdown)
	defer stop()

	var g errgroup.Group
	g.Go(func() error {
		s.writeLoop(out)
		return nil
	})

	readDone := make(chan error, 1)
	go func() {
		readDone <- s.readLoop(ctx, in)
		s.Shutdown()
	}()

	var readErr error
	select {
	case readErr = <-readDone:
	case <-s.ctx.Done():
		if c, ok := in.(io.Closer); ok {
			_ = c.Close()
		}
		select {
		case readErr = <-readDone:
		case <-time.After(readerGrace):
			s.log.Debug().Msg("Input still blocked after shutdown, abandoning reader")
		}
	}

	s.Shutdown()
	_ = g.Wait()
	s.Wait()
	return readErr
}

func (s *Supervisor) readLoop(ctx context.Context, in io.Reader) error {
	r := bufio.NewReaderSize(in, 64*1024)

	for {
		line, tooLong, err := readLine(r, maxLineSize)
		if s.ctx.Err() != nil {
			return nil
		}
		if tooLong {
			s.log.Warn().Int("limit", maxLineSize).Msg("Skipping oversized command")
			s.emit(NewErrorEvent(ErrLineTooLong))
		} else if line = bytes.TrimSpace(line); len(line) > 0 {
			s.handleLine(ctx, line)
		}

		if errors.Is(err, io.EOF) {
			s.log.Info().Msg("Input closed")
			return nil
		}
		if err != nil {
			s.log.Error().Err(err).Msg("Input read error")
			return fmt.Errorf("read commands: %w", err)
		}
	}
}

func (s *Supervisor) handleLine(ctx context.Context, line []byte) {
	cmd, err := ParseCommand(line)
	if err != nil {
		s.log.Warn().Err(err).Msg("Skipping unparseable command")
		s.emit(NewErrorEvent(err))
		return
	}
	s.Dispatch(ctx, cmd)
}

// readLine returns the next line without its newline. A line longer than
// limit is consumed to its end and reported as tooLong with no content.
func readLine(r *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := r.ReadSlice('\n')
		if err == nil {
			chunk = chunk[:len(chunk)-1]
		}
		if !tooLong {
			if len(line)+len(chunk) > limit {
				tooLong, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, tooLong, err
	}
}

// writeLoop encodes events until shutdown, then drains what is queued.
func (s *Supervisor) writeLoop(out io.Writer) {
	enc := json.NewEncoder(out)
	write := func(ev *Event) {
		if err := enc.Encode(ev); err != nil {
			s.log.Error().Err(err).Str("event", ev.Event).Msg("Output write error")
		}
	}

	for {
		select {
		case ev := <-s.events:
			write(ev)
		case <-s.ctx.Done():
			for {
				select {
				case ev := <-s.events:
					write(ev)
				default:
					return
				}
			}
		}
	}
}
