package commands

import (
	"github.com/spf13/cobra"

	"keybridge/internal/app"
)

var (
	configPath string
	logLevel   string
	wire       *app.Wire
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "keybridge",
		Short:        "End-to-end encrypted messaging bridge",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := app.NewLogger(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			wire, err = app.NewWire(cfg, log)
			return err
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (optional)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(bridgeCmd(), webhookCmd(), sendCmd(), lookupCmd(), keygenCmd(), identityCmd())
	return root
}
