package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/auth"
)

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token [token]",
	Short: "Generate an argon2id hash for the static auth token",
	Long: `Generate an argon2id hash of the static bearer token for use in config.

The output can be used directly in the auth.token_hash field, so the
plain token never has to be stored on disk.

Example:
  unified-adapter hash-token "my-service-token"
  # Output: $argon2id$v=19$m=...

Security note: The token will appear in shell history.
Consider passing it through an environment variable:
  unified-adapter hash-token "$ADAPTER_AUTH_TOKEN"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashKeyArgon2id(args[0])
		if err != nil {
			return fmt.Errorf("hash token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashTokenCmd)
}
