package commands

import (
	"fmt"
	"slices"

	env "github.com/allisson/go-env"
	"github.com/spf13/cobra"

	"keybridge/internal/app"
	"keybridge/internal/crypto"
	"keybridge/internal/domain"
)

var (
	password string
	backup   string
)

// secretFlag returns the flag value or, when empty, the KEYBRIDGE_<name> variable.
func secretFlag(value, name string) (string, error) {
	if value == "" {
		value = env.GetString(app.EnvPrefix+name, "")
	}
	if value == "" {
		return "", fmt.Errorf("%w: %s required (flag or %s%s)", domain.ErrConfiguration, name, app.EnvPrefix, name)
	}
	return value, nil
}

func identityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Manage relay identities",
	}
	cmd.PersistentFlags().StringVarP(&password, "password", "p", "", "backup password (or KEYBRIDGE_PASSWORD)")
	cmd.AddCommand(identityNewCmd(), identityShowCmd())
	return cmd
}

// identity new: create an identity and print its backup.
func identityNewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Create an identity and print its backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := secretFlag(password, "PASSWORD")
			if err != nil {
				return err
			}
			id, b, err := wire.Identities.Generate(pw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Identity created.\nID:          %s\nPublic key:  %s\nFingerprint: %s\nBackup:      %s\n",
				id.Self(), id.PublicKey(), crypto.Fingerprint(id.PublicKey()), b)
			return nil
		},
	}
}

// identity show: restore an identity and list its trusted contacts.
func identityShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Restore an identity from its backup and describe it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := secretFlag(password, "PASSWORD")
			if err != nil {
				return err
			}
			b, err := secretFlag(backup, "BACKUP")
			if err != nil {
				return err
			}
			id, err := wire.Identities.Restore(b, pw)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:          %s\nPublic key:  %s\nFingerprint: %s\n",
				id.Self(), id.PublicKey(), crypto.Fingerprint(id.PublicKey()))

			contacts := id.Contacts()
			ids := make([]string, 0, len(contacts))
			for c := range contacts {
				ids = append(ids, c)
			}
			slices.Sort(ids)
			fmt.Fprintf(out, "Contacts:    %d\n", len(ids))
			for _, c := range ids {
				fmt.Fprintf(out, "  %s  %s\n", c, crypto.Fingerprint(contacts[c]))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&backup, "backup", "", "identity backup (or KEYBRIDGE_BACKUP)")
	return cmd
}
