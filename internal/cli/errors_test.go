package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthErrorMatching(t *testing.T) {
	required := &AuthRequiredError{Endpoint: "http://localhost:18333"}
	assert.ErrorIs(t, required, &AuthRequiredError{})
	assert.NotErrorIs(t, required, &AuthExpiredError{})
	assert.Contains(t, required.Error(), "hive auth login")

	expired := &AuthExpiredError{Endpoint: "http://localhost:18333"}
	assert.ErrorIs(t, expired, &AuthExpiredError{})
	assert.Contains(t, expired.Error(), "hive auth login")
}

func TestAuthFailedErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("idp unreachable")
	failed := &AuthFailedError{Endpoint: "http://localhost:18333", Reason: cause}

	assert.ErrorIs(t, failed, &AuthFailedError{})
	assert.ErrorIs(t, failed, cause)

	wrapped := fmt.Errorf("login: %w", failed)
	var target *AuthFailedError
	assert.True(t, errors.As(wrapped, &target))
}
