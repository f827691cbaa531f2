package commands

import (
	"fmt"
	"strings"

	"github.com/jholhewres/shopclaw/pkg/shopclaw/copilot"
	"github.com/spf13/cobra"
)

// newSecretsCmd creates the `shopclaw secrets` group for OS keyring entries.
func newSecretsCmd() *cobra.Command {
	names := strings.Join(copilot.SecretNames(), ", ")

	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage secrets in the OS keyring",
		Long: fmt.Sprintf(`Store credentials in the operating system keyring. They are used
when neither config.yaml nor the environment provides a value.

Names: %s`, names),
	}

	set := &cobra.Command{
		Use:     "set <name>",
		Short:   "Store a secret (read without echo)",
		Example: "  shopclaw secrets set api-key\n  echo $TOKEN | shopclaw secrets set shopify-token",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := keyringKey(args[0])
			if err != nil {
				return err
			}
			value, err := copilot.ReadSecret(fmt.Sprintf("Enter %s: ", args[0]))
			if err != nil {
				return err
			}
			if value == "" {
				return fmt.Errorf("empty value, nothing stored")
			}
			if err := copilot.StoreKeyring(key, value); err != nil {
				return fmt.Errorf("storing %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s in the OS keyring.\n", args[0])
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := keyringKey(args[0])
			if err != nil {
				return err
			}
			if err := copilot.DeleteKeyring(key); err != nil {
				return fmt.Errorf("deleting %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", args[0])
			return nil
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show which secrets are stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if !copilot.KeyringAvailable() {
				fmt.Fprintln(out, "OS keyring is not available.")
				return nil
			}
			for _, name := range copilot.SecretNames() {
				state := "not set"
				if copilot.GetKeyring(copilot.KeyringNames[name]) != "" {
					state = "stored"
				}
				fmt.Fprintf(out, "%-16s %s\n", name, state)
			}
			return nil
		},
	}

	cmd.AddCommand(set, del, status)
	return cmd
}

func keyringKey(name string) (string, error) {
	key, ok := copilot.KeyringNames[name]
	if !ok {
		return "", fmt.Errorf("unknown secret %q (valid: %s)", name, strings.Join(copilot.SecretNames(), ", "))
	}
	return key, nil
}
