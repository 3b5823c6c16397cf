package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultCredentialDir is the default directory for the stored credential,
// relative to the user's home directory.
const DefaultCredentialDir = ".config/hive"

// credentialFile is the file name inside the credential directory.
const credentialFile = "token.json"

// ErrNoCredential is returned when no credential is stored.
var ErrNoCredential = errors.New("no stored credential")

// storedCredential is the on-disk format.
type storedCredential struct {
	Token string `json:"token"`
}

// CredentialStore persists the platform token on disk.
//
// SECURITY: the token file is created with 0600 permissions and its
// directory with 0700. Token values are never logged.
type CredentialStore struct {
	dir string
}

// NewCredentialStore creates a store rooted at dir; empty dir means the
// default under the user's home directory.
func NewCredentialStore(dir string) (*CredentialStore, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, DefaultCredentialDir)
	}
	return &CredentialStore{dir: dir}, nil
}

// Path returns the credential file path.
func (s *CredentialStore) Path() string {
	return filepath.Join(s.dir, credentialFile)
}

// Save writes the token, replacing any previous credential.
func (s *CredentialStore) Save(token string) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create credential directory: %w", err)
	}

	data, err := json.MarshalIndent(storedCredential{Token: token}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credential: %w", err)
	}

	if err := os.WriteFile(s.Path(), data, 0600); err != nil {
		return fmt.Errorf("failed to write credential: %w", err)
	}
	return nil
}

// Load reads the stored token.
func (s *CredentialStore) Load() (string, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("failed to read credential: %w", err)
	}

	var cred storedCredential
	if err := json.Unmarshal(data, &cred); err != nil {
		return "", fmt.Errorf("failed to parse credential: %w", err)
	}
	if cred.Token == "" {
		return "", ErrNoCredential
	}
	return cred.Token, nil
}

// Remove deletes the stored credential. Removing an absent credential is
// not an error.
func (s *CredentialStore) Remove() error {
	err := os.Remove(s.Path())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credential: %w", err)
	}
	return nil
}
