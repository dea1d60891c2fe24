package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"keybridge/internal/bridge"
	"keybridge/internal/domain"
)

const shutdownTimeout = 5 * time.Second

// eventSink prints each inbound message as a bridge message event line.
type eventSink struct {
	mu  sync.Mutex
	out io.Writer
}

func (s *eventSink) Deliver(_ context.Context, msg domain.InboundMessage) error {
	line, err := bridge.NewMessageEvent(msg.From, msg.Nick, msg.Date, msg.Text).ToJSON()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = fmt.Fprintf(s.out, "%s\n", line)
	return err
}

// webhook: serve gateway callbacks until a signal arrives.
func webhookCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "webhook",
		Short: "Serve gateway callbacks and print messages as bridge events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := wire.Config
			log := wire.Log.With().Str("component", "cli").Logger()
			sink := &eventSink{out: cmd.OutOrStdout()}

			servers := []*http.Server{{
				Addr:              cfg.Webhook.Listen,
				Handler:           wire.WebhookRouter(sink),
				ReadHeaderTimeout: 10 * time.Second,
			}}
			if cfg.Metrics.Listen != "" {
				r := mux.NewRouter()
				r.Handle("/metrics", wire.MetricsHandler()).Methods(http.MethodGet)
				servers = append(servers, &http.Server{
					Addr:              cfg.Metrics.Listen,
					Handler:           r,
					ReadHeaderTimeout: 10 * time.Second,
				})
			}

			g, gctx := errgroup.WithContext(ctx)
			for _, srv := range servers {
				srv := srv
				g.Go(func() error {
					log.Info().Str("addr", srv.Addr).Msg("Listening")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return fmt.Errorf("listen %s: %w", srv.Addr, err)
					}
					return nil
				})
			}
			g.Go(func() error {
				<-gctx.Done()
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				for _, srv := range servers {
					if err := srv.Shutdown(sctx); err != nil {
						log.Warn().Err(err).Str("addr", srv.Addr).Msg("Shutdown incomplete")
					}
				}
				return nil
			})
			return g.Wait()
		},
	}
}
