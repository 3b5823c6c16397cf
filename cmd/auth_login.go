package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hive/internal/client"
)

// loginPasscode switches the login to the passcode variant.
var loginPasscode bool

// authLoginCmd logs the CLI in against the platform.
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate to the hive platform",
	Long: `Authenticate to the hive platform via the OIDC identity provider.

The default flow opens a browser for the identity provider's login page and
waits for the token to arrive. With --passcode, sign in from any browser,
read the one-time passcode off the final page, and type it here instead.

Examples:
  hive auth login                      # Browser-based login
  hive auth login --passcode           # Type a one-time passcode
  hive auth login --endpoint <url>     # Login to a specific platform`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

func init() {
	authLoginCmd.Flags().BoolVar(&loginPasscode, "passcode", false, "Login with a one-time passcode instead of the browser hand-off")
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	initCLILogging()

	creds, err := client.NewCredentialStore("")
	if err != nil {
		return err
	}

	flow := client.NewLoginFlow(client.NewAPI(rootEndpoint), creds, cmd.OutOrStdout(), authQuiet)

	if loginPasscode {
		passcode, err := promptPasscode(cmd)
		if err != nil {
			return err
		}
		return flow.RunPasscode(cmd.Context(), passcode)
	}

	return flow.Run(cmd.Context())
}

// promptPasscode reads the passcode from stdin.
func promptPasscode(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), "Passcode: ")

	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read passcode: %w", err)
	}

	passcode := strings.TrimSpace(line)
	if passcode == "" {
		return "", fmt.Errorf("passcode is empty")
	}
	return passcode, nil
}
