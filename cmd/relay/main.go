package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"keybridge/internal/app"
	"keybridge/internal/relay"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		listen     string
		queueLimit int
		logLevel   string
		logFormat  string
	)
	cmd := &cobra.Command{
		Use:          "relay",
		Short:        "In-memory websocket relay for keybridge identities",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := app.NewLogger(logLevel, logFormat)
			if err != nil {
				return err
			}
			srv, err := relay.NewServer(
				relay.WithServerLogger(log.With().Str("component", "relay").Logger()),
				relay.WithQueueLimit(queueLimit),
			)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hs := &http.Server{Addr: listen, Handler: srv, ReadHeaderTimeout: 10 * time.Second}
			closed := make(chan struct{})
			go func() {
				defer close(closed)
				<-ctx.Done()
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = hs.Shutdown(sctx)
				// Hijacked websockets are not tracked by Shutdown.
				srv.Close()
			}()

			log.Info().Str("addr", listen).Msg("Relay listening")
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Relay stopped")
				return err
			}
			<-closed
			log.Info().Msg("Relay stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":8080", "listen address")
	cmd.Flags().IntVar(&queueLimit, "queue-limit", relay.DefaultQueueLimit, "frames queued per offline recipient")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")
	cmd.Flags().StringVar(&logFormat, "log-format", "console", "log format (console or json)")
	return cmd
}
