package cmd

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// decodeClaimsUnverified parses a JWT's claims without verifying the
// signature. Display only: authorization decisions always happen
// server-side against the real keys.
func decodeClaimsUnverified(rawToken string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(rawToken, claims); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return claims, nil
}

// claimExpiry returns the token's expiry time, or zero when absent or
// unreadable.
func claimExpiry(claims jwt.MapClaims) time.Time {
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// formatExpiry renders an expiry for status output.
func formatExpiry(expiry time.Time) string {
	if expiry.IsZero() {
		return "unknown"
	}
	remaining := time.Until(expiry).Round(time.Minute)
	if remaining <= 0 {
		return fmt.Sprintf("%s (expired)", expiry.Local().Format(time.RFC1123))
	}
	return fmt.Sprintf("%s (in %s)", expiry.Local().Format(time.RFC1123), remaining)
}
