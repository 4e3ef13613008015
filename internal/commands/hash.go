package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"evalgo.org/nspawnium/internal/auth"
)

var hashCmd = &cobra.Command{
	Use:   "hash [password]",
	Short: "Generate a bcrypt hash for the admin password",
	Long: `Generate a bcrypt hash suitable for the auth.admin_password_hash
configuration key.

Examples:
  # Hash a password and paste the output into config.yaml
  nspawnium hash 'my-admin-password'`,
	Args: cobra.ExactArgs(1),
	RunE: runHash,
}

func runHash(cmd *cobra.Command, args []string) error {
	hash, err := auth.HashPassword(args[0])
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	fmt.Println(hash)
	return nil
}
