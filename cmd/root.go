package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"hive/internal/cli"
)

// Exit codes for CLI commands. These follow common conventions so scripts
// can branch on the kind of failure.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the login flow failed.
	ExitCodeAuthFailed = 3
)

// Global flags shared across commands.
var (
	rootEndpoint string
	rootDebug    bool
)

// rootCmd is the base command for the hive application.
var rootCmd = &cobra.Command{
	Use:   "hive",
	Short: "Run and authenticate against the hive platform",
	Long: `hive runs the platform server and manages authentication for it.

The server hosts the login handshake against an external OIDC identity
provider and gates every API request on a verified credential. The auth
command group logs the CLI in and out and shows the current status.`,
	// SilenceUsage keeps handled errors from dumping the usage text.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from main with
// the build-time version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "hive version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps error types to semantic exit codes.
func getExitCode(err error) int {
	var authRequired *cli.AuthRequiredError
	if errors.As(err, &authRequired) {
		return ExitCodeAuthRequired
	}

	var authExpired *cli.AuthExpiredError
	if errors.As(err, &authExpired) {
		return ExitCodeAuthRequired
	}

	var authFailed *cli.AuthFailedError
	if errors.As(err, &authFailed) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootEndpoint, "endpoint", defaultEndpoint(), "Platform endpoint URL")
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(newVersionCmd())
}

// defaultEndpoint resolves the platform endpoint from the environment,
// falling back to the local default.
func defaultEndpoint() string {
	if endpoint := os.Getenv("HIVE_ENDPOINT"); endpoint != "" {
		return endpoint
	}
	return "http://localhost:18333"
}
