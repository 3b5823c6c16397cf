package oauth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// passcodeAlphabet avoids visually ambiguous characters (0/O, 1/l/I) since
// passcodes are read off a screen and typed by hand.
const passcodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// PasscodeLength is the number of characters in a one-time passcode.
// 10 characters over a 57-symbol alphabet is ~58 bits of entropy, plenty
// for a single-use secret that lives for a few minutes.
const PasscodeLength = 10

// GeneratePasscode creates a short, human-typable one-time passcode.
func GeneratePasscode() (string, error) {
	max := big.NewInt(int64(len(passcodeAlphabet)))
	code := make([]byte, PasscodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate passcode: %w", err)
		}
		code[i] = passcodeAlphabet[n.Int64()]
	}
	return string(code), nil
}
