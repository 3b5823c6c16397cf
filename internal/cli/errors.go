package cli

import (
	"fmt"
)

// AuthRequiredError indicates a command needs a credential that is not
// stored. Carries actionable guidance in the message.
type AuthRequiredError struct {
	// Endpoint is the platform URL that requires authentication.
	Endpoint string
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf(`Authentication required for %s

To authenticate, run:
  hive auth login

To check current authentication status:
  hive auth status`, e.Endpoint)
}

// Is allows errors.Is() to match any AuthRequiredError.
func (e *AuthRequiredError) Is(target error) bool {
	_, ok := target.(*AuthRequiredError)
	return ok
}

// AuthExpiredError indicates the stored credential was rejected as expired.
type AuthExpiredError struct {
	// Endpoint is the platform URL whose credential has expired.
	Endpoint string
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf(`Authentication expired for %s

To re-authenticate, run:
  hive auth login`, e.Endpoint)
}

// Is allows errors.Is() to match any AuthExpiredError.
func (e *AuthExpiredError) Is(target error) bool {
	_, ok := target.(*AuthExpiredError)
	return ok
}

// AuthFailedError indicates the login flow itself failed.
type AuthFailedError struct {
	// Endpoint is the platform URL the flow ran against.
	Endpoint string
	// Reason is the underlying failure.
	Reason error
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("authentication flow failed for %s: %v", e.Endpoint, e.Reason)
}

func (e *AuthFailedError) Unwrap() error {
	return e.Reason
}

// Is allows errors.Is() to match any AuthFailedError.
func (e *AuthFailedError) Is(target error) bool {
	_, ok := target.(*AuthFailedError)
	return ok
}
