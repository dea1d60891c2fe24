package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"keybridge/internal/domain"
	"keybridge/internal/metrics"
)

// State is the connection state of a Supervisor.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// DefaultBackoff is the delay before each reconnect attempt; the last entry
// repeats.
var DefaultBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// DefaultEventBuffer is the capacity of the event queue.
const DefaultEventBuffer = 100

var (
	// ErrNotConnected is returned by Send without a live connection.
	ErrNotConnected = fmt.Errorf("%w: not connected", domain.ErrConnectivity)

	// ErrNoIdentity is returned by Trust before any identity has been loaded.
	ErrNoIdentity = fmt.Errorf("%w: no identity loaded", ErrNotConnected)

	// ErrIdentityLoad wraps failures to restore an identity from its backup.
	ErrIdentityLoad = fmt.Errorf("%w: failed to load identity", domain.ErrConfiguration)

	// ErrConnect wraps failures to open a network connection.
	ErrConnect = fmt.Errorf("%w: failed to connect", domain.ErrConnectivity)

	// ErrShutdown is returned by operations after Shutdown.
	ErrShutdown = fmt.Errorf("%w: bridge is shutting down", domain.ErrConnectivity)
)

// Option configures a Supervisor.
type Option func(*Supervisor)

func WithLogger(l zerolog.Logger) Option { return func(s *Supervisor) { s.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Supervisor) { s.metrics = m } }

// WithBackoff replaces the reconnect delay table. An empty table is ignored.
func WithBackoff(delays []time.Duration) Option {
	return func(s *Supervisor) {
		if len(delays) > 0 {
			s.backoff = append([]time.Duration(nil), delays...)
		}
	}
}

// WithEventBuffer sets the event queue capacity.
func WithEventBuffer(n int) Option {
	return func(s *Supervisor) {
		if n > 0 {
			s.bufSize = n
		}
	}
}

// WithAfter replaces time.After for backoff waits.
func WithAfter(after func(time.Duration) <-chan time.Time) Option {
	return func(s *Supervisor) { s.after = after }
}

// Supervisor owns the connection to the messaging network. Create it with New
// and stop it with Shutdown.
type Supervisor struct {
	network domain.Network
	log     zerolog.Logger
	metrics *metrics.Metrics
	backoff []time.Duration
	after   func(time.Duration) <-chan time.Time
	bufSize int

	events chan *Event

	// ctx is cancelled by Shutdown; every blocking wait observes it.
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	// mu serialises connect, send, trust and reconnect attempts.
	mu       sync.Mutex
	state    State
	id       domain.Identity
	conn     domain.Conn
	backup   string
	password string

	// gen identifies the current connection; callbacks carrying an older
	// generation are ignored. Written under mu.
	gen atomic.Uint64

	// reconnecting is set while a reconnect task owns the connection. cycle
	// names that task; Connect bumps it to take over. Both guarded by mu.
	reconnecting bool
	cycle        uint64

	// taskMu guards stopped and wg.Add so no task starts after Shutdown.
	taskMu  sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// New returns a disconnected supervisor for network.
func New(network domain.Network, opts ...Option) *Supervisor {
	s := &Supervisor{
		network: network,
		log:     zerolog.Nop(),
		backoff: DefaultBackoff,
		after:   time.After,
		bufSize: DefaultEventBuffer,
	}
	for _, o := range opts {
		o(s)
	}
	s.events = make(chan *Event, s.bufSize)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Events returns the event queue. It is never closed.
func (s *Supervisor) Events() <-chan *Event { return s.events }

// Done is closed once Shutdown has been called.
func (s *Supervisor) Done() <-chan struct{} { return s.ctx.Done() }

// State returns the current connection state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// emit queues ev without blocking; a full queue drops it.
func (s *Supervisor) emit(ev *Event) {
	select {
	case s.events <- ev:
	default:
		s.metrics.EventDropped()
		s.log.Warn().Str("event", ev.Event).Msg("Event queue full, dropping event")
	}
}

// Dispatch runs one command. Failures are reported as error events.
func (s *Supervisor) Dispatch(ctx context.Context, cmd *Command) {
	err := s.dispatch(ctx, cmd)

	kind := cmd.Cmd
	if !knownCommand(kind) {
		kind = "unknown"
	}
	if err != nil {
		s.metrics.Command(kind, metrics.ResultError)
		s.log.Warn().Err(err).Str("cmd", kind).Msg("Command failed")
		s.emit(NewErrorEvent(err))
		return
	}
	s.metrics.Command(kind, metrics.ResultSuccess)
}

func knownCommand(cmd string) bool {
	switch cmd {
	case CmdConnect, CmdSend, CmdTrust, CmdPing:
		return true
	}
	return false
}

func (s *Supervisor) dispatch(ctx context.Context, cmd *Command) error {
	if !knownCommand(cmd.Cmd) {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Cmd)
	}
	if err := cmd.Validate(); err != nil {
		return err
	}
	switch cmd.Cmd {
	case CmdConnect:
		return s.Connect(ctx, cmd.Backup, cmd.Password)
	case CmdSend:
		return s.Send(ctx, cmd.To, cmd.Text, cmd.Pubkey)
	case CmdTrust:
		return s.Trust(cmd.To, cmd.Pubkey)
	default:
		s.Ping()
		return nil
	}
}

// Connect replaces any existing connection with one for the identity in
// backup and emits a connected event.
func (s *Supervisor) Connect(ctx context.Context, backup, password string) error {
	ctx, cancel := s.bind(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return ErrShutdown
	}

	s.cycle++
	s.reconnecting = false
	s.teardownLocked()
	s.state = StateConnecting

	id, err := s.network.Identify(backup, password)
	if err != nil {
		s.state = StateDisconnected
		return fmt.Errorf("%w: %v", ErrIdentityLoad, err)
	}
	s.id = id
	s.backup, s.password = backup, password

	if err := s.dialLocked(ctx, id); err != nil {
		s.state = StateDisconnected
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	s.log.Info().Str("id", id.Self()).Msg("Connected")
	s.emit(NewConnectedEvent(id.Self()))
	return nil
}

// Send delivers text to a contact. A non-empty pubkey trusts the contact first.
func (s *Supervisor) Send(ctx context.Context, to, text, pubkey string) error {
	ctx, cancel := s.bind(ctx)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConnected || s.conn == nil {
		return ErrNotConnected
	}
	if to == "" {
		return fmt.Errorf("%w: to", ErrMissingField)
	}
	if text == "" {
		return fmt.Errorf("%w: text", ErrMissingField)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: text is not valid UTF-8", domain.ErrValidation)
	}

	if pubkey != "" {
		if err := s.id.Trust(to, pubkey); err != nil && !errors.Is(err, domain.ErrAlreadyTrusted) {
			return fmt.Errorf("failed to trust recipient: %w", err)
		}
	}
	if err := s.conn.SendText(ctx, to, text); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Trust records pubkey for to on the loaded identity. It works without a
// live connection.
func (s *Supervisor) Trust(to, pubkey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.id == nil {
		return ErrNoIdentity
	}
	if to == "" {
		return fmt.Errorf("%w: to", ErrMissingField)
	}
	if pubkey == "" {
		return fmt.Errorf("%w: pubkey", ErrMissingField)
	}
	if err := s.id.Trust(to, pubkey); err != nil && !errors.Is(err, domain.ErrAlreadyTrusted) {
		return fmt.Errorf("failed to trust contact: %w", err)
	}
	return nil
}

// Ping emits a pong event in any state.
func (s *Supervisor) Ping() { s.emit(NewPongEvent()) }

// Shutdown cancels pending reconnects, closes the connection and moves to
// Disconnected. It is safe to call more than once and from any goroutine.
func (s *Supervisor) Shutdown() {
	s.once.Do(func() {
		s.taskMu.Lock()
		s.stopped = true
		s.taskMu.Unlock()

		s.cancel()

		s.mu.Lock()
		s.teardownLocked()
		s.state = StateDisconnected
		s.mu.Unlock()
		s.log.Info().Msg("Bridge shut down")
	})
}

// Wait blocks until every reconnect task has returned.
func (s *Supervisor) Wait() { s.wg.Wait() }

// bind returns a context cancelled by either ctx or Shutdown.
func (s *Supervisor) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// teardownLocked closes the live connection. The generation moves first so
// the Closed callback it triggers is ignored.
func (s *Supervisor) teardownLocked() {
	s.gen.Add(1)
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		s.log.Debug().Err(err).Msg("Closing previous connection")
	}
	s.conn = nil
}

func (s *Supervisor) dialLocked(ctx context.Context, id domain.Identity) error {
	gen := s.gen.Add(1)
	conn, err := s.network.Connect(ctx, id, s.handler(gen))
	if err != nil {
		return err
	}
	s.conn = conn
	s.state = StateConnected
	return nil
}

func (s *Supervisor) handler(gen uint64) *domain.Handler {
	return &domain.Handler{
		Message: func(from, nick string, when time.Time, text string) {
			s.emit(NewMessageEvent(from, nick, when, text))
		},
		Spam: func(from, nick string, _ time.Time) {
			s.log.Info().Str("from", from).Str("nick", nick).Msg("Message from untrusted contact dropped")
		},
		Alert: func(reason string) {
			s.log.Warn().Str("reason", reason).Msg("Network alert")
		},
		Error: func(reason string, reconnect bool) {
			s.emit(NewErrorEvent(fmt.Errorf("network error: %s (reconnect=%v)", reason, reconnect)))
			if reconnect {
				s.connectionLost(gen)
			}
		},
		Closed: func() {
			s.connectionLost(gen)
		},
	}
}

// connectionLost starts a reconnect task if gen is still the live
// connection and no reconnect task is running. The decision runs under mu on
// its own goroutine so callbacks never block the connection's reader.
func (s *Supervisor) connectionLost(gen uint64) {
	if gen != s.gen.Load() {
		return
	}
	s.spawn(func() {
		s.mu.Lock()
		if gen != s.gen.Load() || s.state != StateConnected || s.reconnecting {
			s.mu.Unlock()
			return
		}
		s.state = StateReconnecting
		s.reconnecting = true
		s.cycle++
		cycle := s.cycle
		s.mu.Unlock()

		s.log.Info().Msg("Connection lost, scheduling reconnect")
		s.reconnectLoop(cycle)
	})
}

func (s *Supervisor) spawn(f func()) bool {
	s.taskMu.Lock()
	defer s.taskMu.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		f()
	}()
	return true
}

func (s *Supervisor) reconnectLoop(cycle uint64) {
	for attempt := 0; ; attempt++ {
		delay := s.backoff[min(attempt, len(s.backoff)-1)]
		s.log.Info().Dur("delay", delay).Int("attempt", attempt+1).Msg("Reconnecting")

		select {
		case <-s.after(delay):
		case <-s.ctx.Done():
			return
		}

		done, err := s.reconnectOnce(cycle)
		if done {
			return
		}
		s.metrics.ReconnectAttempt(metrics.ResultError)
		s.log.Warn().Err(err).Int("attempt", attempt+1).Msg("Reconnect failed")
	}
}

// reconnectOnce makes one attempt for cycle. done reports that the loop
// should stop; reconnecting is cleared under the same lock so a connection
// lost right after a successful attempt starts a fresh task.
func (s *Supervisor) reconnectOnce(cycle uint64) (done bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cycle != s.cycle {
		// A connect command took over; the cycle state is no longer ours.
		return true, nil
	}
	defer func() {
		if done {
			s.reconnecting = false
		}
	}()

	if s.ctx.Err() != nil {
		return true, nil
	}
	if s.backup == "" || s.password == "" {
		s.state = StateDisconnected
		s.log.Warn().Msg("No credentials stored, cannot reconnect")
		return true, nil
	}

	s.teardownLocked()
	s.state = StateConnecting

	id, err := s.network.Identify(s.backup, s.password)
	if err != nil {
		s.state = StateReconnecting
		return false, fmt.Errorf("%w: %v", ErrIdentityLoad, err)
	}
	s.id = id
	if err := s.dialLocked(s.ctx, id); err != nil {
		s.state = StateReconnecting
		return false, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	s.metrics.ReconnectAttempt(metrics.ResultSuccess)
	s.log.Info().Str("id", id.Self()).Msg("Reconnected")
	s.emit(NewConnectedEvent(id.Self()))
	return true, nil
}
