package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"

	"hive/internal/cli"
	"hive/internal/oauth"
)

// Poll cadence for the pending token: once per second, bounded.
const (
	pollInterval    = time.Second
	maxPollAttempts = 60
)

// LoginFlow drives a CLI login end to end and stores the credential.
type LoginFlow struct {
	api   *API
	creds *CredentialStore
	out   io.Writer

	// openBrowser is swappable in tests.
	openBrowser func(url string) error

	// interval between token polls.
	interval time.Duration

	// quiet suppresses the spinner and progress output.
	quiet bool
}

// NewLoginFlow creates a login flow writing progress to out.
func NewLoginFlow(api *API, creds *CredentialStore, out io.Writer, quiet bool) *LoginFlow {
	return &LoginFlow{
		api:         api,
		creds:       creds,
		out:         out,
		openBrowser: OpenBrowser,
		interval:    pollInterval,
		quiet:       quiet,
	}
}

// Run initiates the login, opens the browser, polls for the token, and
// stores it. A null login URL from the server means OIDC is disabled
// there; the fixed development credential is stored without any browser
// round trip.
func (f *LoginFlow) Run(ctx context.Context) error {
	resp, err := f.api.InitiateLogin(ctx)
	if err != nil {
		return &cli.AuthFailedError{Endpoint: f.api.Endpoint(), Reason: err}
	}

	if resp.LoginURL == nil || *resp.LoginURL == "" {
		if resp.LoginID != oauth.DevLoginID {
			return &cli.AuthFailedError{
				Endpoint: f.api.Endpoint(),
				Reason:   fmt.Errorf("server returned no login URL"),
			}
		}
		if !f.quiet {
			fmt.Fprintln(f.out, "Server runs without an identity provider; using the development credential.")
		}
		return f.store(oauth.DevToken)
	}

	if err := f.openBrowser(*resp.LoginURL); err != nil {
		if !f.quiet {
			fmt.Fprintf(f.out, "Could not open a browser. Visit this URL to sign in:\n\n  %s\n\n", *resp.LoginURL)
		}
	} else if !f.quiet {
		fmt.Fprintln(f.out, "Opened your browser to sign in. Waiting for the login to complete...")
	}

	token, err := f.waitForToken(ctx, resp.LoginID)
	if err != nil {
		return err
	}
	return f.store(token)
}

// RunPasscode drives the passcode variant: the user signs in elsewhere,
// reads the passcode off the browser page, and types it here.
func (f *LoginFlow) RunPasscode(ctx context.Context, passcode string) error {
	token, err := f.api.RedeemPasscode(ctx, passcode)
	if errors.Is(err, ErrTokenPending) {
		return &cli.AuthFailedError{
			Endpoint: f.api.Endpoint(),
			Reason:   fmt.Errorf("passcode not found or expired"),
		}
	}
	if err != nil {
		return &cli.AuthFailedError{Endpoint: f.api.Endpoint(), Reason: err}
	}
	return f.store(token)
}

// waitForToken polls the pending-token endpoint once per second until the
// login completes or the attempt budget runs out.
func (f *LoginFlow) waitForToken(ctx context.Context, loginID string) (string, error) {
	var s *spinner.Spinner
	if !f.quiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(f.out))
		s.Suffix = " Waiting for login to complete in the browser..."
		s.Start()
		defer s.Stop()
	}

	for attempt := 0; attempt < maxPollAttempts; attempt++ {
		token, err := f.api.PollToken(ctx, loginID)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrTokenPending) {
			return "", &cli.AuthFailedError{Endpoint: f.api.Endpoint(), Reason: err}
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.interval):
		}
	}

	return "", &cli.AuthFailedError{
		Endpoint: f.api.Endpoint(),
		Reason:   fmt.Errorf("timed out waiting for the login to complete"),
	}
}

func (f *LoginFlow) store(token string) error {
	if err := f.creds.Save(token); err != nil {
		return err
	}
	if !f.quiet {
		fmt.Fprintf(f.out, "Logged in. Credential stored at %s\n", f.creds.Path())
	}
	return nil
}
