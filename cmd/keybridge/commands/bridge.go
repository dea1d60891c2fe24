package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// bridge: read commands from stdin and write events to stdout until EOF or a signal.
func bridgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bridge",
		Short: "Run the JSON-lines bridge on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			log := wire.Log.With().Str("component", "cli").Logger()
			log.Info().Str("relay", wire.Config.Relay.URL).Msg("Bridge started")
			err := wire.Supervisor().Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			log.Info().Msg("Bridge stopped")
			return err
		},
	}
}
