package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"hive/internal/cli"
	"hive/internal/client"
	"hive/internal/oauth"
)

// statusCheckTimeout bounds the server-side verification call.
const statusCheckTimeout = 10 * time.Second

// authStatusCmd shows the current authentication status.
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long: `Show the current authentication status against the platform.

The stored credential is verified server-side, so a token the identity
provider has since invalidated shows as rejected even before its local
expiry passes.`,
	Args: cobra.NoArgs,
	RunE: runAuthStatus,
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Hive Platform")
	fmt.Fprintf(out, "  Endpoint:  %s\n", rootEndpoint)

	creds, err := client.NewCredentialStore("")
	if err != nil {
		return err
	}

	rawToken, err := creds.Load()
	if errors.Is(err, client.ErrNoCredential) {
		fmt.Fprintf(out, "  Status:    %s\n", text.FgYellow.Sprint("Not authenticated"))
		return &cli.AuthRequiredError{Endpoint: rootEndpoint}
	}
	if err != nil {
		return err
	}

	// Verify with the server rather than trusting the local expiry.
	ctx, cancel := context.WithTimeout(cmd.Context(), statusCheckTimeout)
	defer cancel()

	api := client.NewAPI(rootEndpoint)
	info, err := api.Me(ctx, rawToken)
	if errors.Is(err, client.ErrUnauthorized) {
		fmt.Fprintf(out, "  Status:    %s\n", text.FgYellow.Sprint("Credential rejected"))
		return &cli.AuthExpiredError{Endpoint: rootEndpoint}
	}
	if err != nil {
		fmt.Fprintf(out, "  Status:    %s\n", text.FgRed.Sprint("Connection failed"))
		return err
	}

	fmt.Fprintf(out, "  Status:    %s\n", text.FgGreen.Sprint("Authenticated"))
	fmt.Fprintf(out, "  User:      %s\n", info.Email)
	fmt.Fprintf(out, "  Role:      %s\n", info.Role)

	printTokenDetails(cmd, rawToken)
	return nil
}

// printTokenDetails shows display-only claim information. The fixed
// development credential is not a JWT and carries no claims.
func printTokenDetails(cmd *cobra.Command, rawToken string) {
	out := cmd.OutOrStdout()

	if rawToken == oauth.DevToken {
		fmt.Fprintf(out, "  Token:     %s\n", text.FgHiBlack.Sprint("development credential"))
		return
	}

	claims, err := decodeClaimsUnverified(rawToken)
	if err != nil {
		return
	}
	fmt.Fprintf(out, "  Expires:   %s\n", formatExpiry(claimExpiry(claims)))
	if issuer, ok := claims["iss"].(string); ok {
		fmt.Fprintf(out, "  Issuer:    %s\n", issuer)
	}
}
