package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// send <to> <text>: encrypt text for <to> and post it through the gateway.
func sendCmd() *cobra.Command {
	var account string
	cmd := &cobra.Command{
		Use:   "send <to> <text>",
		Short: "Encrypt and send a text message through the gateway",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := wire.Messages.SendText(cmd.Context(), args[0], args[1], account)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "sending account name or id (default: first configured)")
	return cmd
}
