package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"keybridge/internal/crypto"
	"keybridge/internal/domain"
)

// lookup <id>: print a peer's public key and its fingerprint.
func lookupCmd() *cobra.Command {
	var (
		account  string
		useRelay bool
	)
	cmd := &cobra.Command{
		Use:   "lookup <id>",
		Short: "Fetch a peer's public key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				key domain.PublicKey
				err error
			)
			if useRelay {
				key, err = wire.Relay.LookupPublicKey(cmd.Context(), args[0])
			} else {
				key, err = wire.Messages.LookupPublicKey(cmd.Context(), args[0], account)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nFingerprint: %s\n", key, crypto.Fingerprint(key))
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "gateway account to authenticate as")
	cmd.Flags().BoolVar(&useRelay, "relay", false, "query the relay directory instead of the gateway")
	return cmd
}
