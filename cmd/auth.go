package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hive/internal/client"
	"hive/pkg/logging"
)

// authQuiet suppresses progress output on auth commands.
var authQuiet bool

// authCmd is the auth command group.
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage authentication for hive",
	Long: `Manage authentication for hive CLI commands.

The auth command group provides subcommands to login, logout, and check
the authentication status against the platform server.

Examples:
  hive auth login                      # Login via browser
  hive auth login --passcode           # Login by typing a one-time passcode
  hive auth status                     # Show authentication status
  hive auth logout                     # Remove the stored credential`,
}

// authLogoutCmd removes the stored credential.
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored credential",
	Long: `Remove the stored platform credential.

The next command that needs authentication will require a new login.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogout,
}

func init() {
	authCmd.PersistentFlags().BoolVarP(&authQuiet, "quiet", "q", false, "Suppress progress output")

	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
	authCmd.AddCommand(authStatusCmd)
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	creds, err := client.NewCredentialStore("")
	if err != nil {
		return err
	}

	if err := creds.Remove(); err != nil {
		return err
	}

	if !authQuiet {
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
	}
	return nil
}

// initCLILogging sets up logging for client-side commands.
func initCLILogging() {
	if rootDebug {
		logging.Init(logging.LevelDebug, os.Stderr)
	} else {
		logging.InitDefault()
	}
}
