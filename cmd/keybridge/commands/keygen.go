package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"keybridge/internal/codec"
	"keybridge/internal/crypto"
)

// keygen: print a fresh gateway key pair as hex.
func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a gateway key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := crypto.GenerateKeyPair()
			if err != nil {
				return err
			}
			priv := kp.Secret.Slice()
			defer crypto.Wipe(priv)
			fmt.Fprintf(cmd.OutOrStdout(), "Private key: %s\nPublic key:  %s\nFingerprint: %s\n",
				codec.EncodeHex(priv), kp.Public, crypto.Fingerprint(kp.Public))
			return nil
		},
	}
}
