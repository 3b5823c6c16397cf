package oauth

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"hive/pkg/logging"
)

// ErrPasscodeNotFound is returned when a passcode is unknown, expired, or
// already redeemed. Callers must treat all three identically; the
// distinction is never surfaced.
var ErrPasscodeNotFound = errors.New("passcode not found or expired")

// PasscodeStore maps one-time passcodes to tokens. Redemption pops the
// entry: a passcode delivers its token at most once.
type PasscodeStore interface {
	Put(ctx context.Context, passcode, token string) error
	Pop(ctx context.Context, passcode string) (string, error)
	Stop()
}

// memoryPasscodeStore backs the passcode relay with the in-memory token
// registry. Used when passcode persistence is not configured.
type memoryPasscodeStore struct {
	registry *TokenRegistry
}

// NewMemoryPasscodeStore creates an in-memory passcode store with the
// given TTL.
func NewMemoryPasscodeStore(ttl time.Duration) PasscodeStore {
	return &memoryPasscodeStore{registry: NewTokenRegistry(ttl)}
}

func (m *memoryPasscodeStore) Put(ctx context.Context, passcode, token string) error {
	m.registry.Put(passcode, token)
	return nil
}

func (m *memoryPasscodeStore) Pop(ctx context.Context, passcode string) (string, error) {
	token, ok := m.registry.Pop(passcode)
	if !ok {
		return "", ErrPasscodeNotFound
	}
	return token, nil
}

func (m *memoryPasscodeStore) Stop() {
	m.registry.Stop()
}

// SQLPasscodeStore persists passcodes in a sqlite table with the token
// payload encrypted at rest (AES-256-GCM). Expiry is enforced by filtering
// on the stored creation timestamp, so a read racing the physical sweep
// fails closed; the sweep only reclaims space.
type SQLPasscodeStore struct {
	db   *sql.DB
	gcm  cipher.AEAD
	ttl  time.Duration
	now  func() time.Time
	stop chan struct{}
	once sync.Once
}

// NewSQLPasscodeStore creates the persistent passcode store. key must be
// 32 bytes; a missing or malformed key is a configuration error surfaced
// at startup, never a silent fallback to plaintext.
func NewSQLPasscodeStore(db *sql.DB, key []byte, ttl time.Duration) (*SQLPasscodeStore, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("invalid passcode encryption key: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encryption: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS passcodes (
		passcode   TEXT PRIMARY KEY,
		token      BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("failed to create passcodes table: %w", err)
	}

	s := &SQLPasscodeStore{
		db:   db,
		gcm:  gcm,
		ttl:  ttl,
		now:  time.Now,
		stop: make(chan struct{}),
	}

	go s.sweepLoop()

	return s, nil
}

// Put stores an encrypted token under the passcode, replacing any previous
// entry for the same passcode.
func (s *SQLPasscodeStore) Put(ctx context.Context, passcode, token string) error {
	sealed, err := s.encrypt([]byte(token))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO passcodes (passcode, token, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(passcode) DO UPDATE SET token = excluded.token, created_at = excluded.created_at`,
		passcode, sealed, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store passcode: %w", err)
	}

	return nil
}

// Pop redeems a passcode. The select-and-delete runs in a transaction so
// two racing redemptions deliver the token exactly once. Entries older
// than the TTL are not redeemable even before the sweep removes them.
func (s *SQLPasscodeStore) Pop(ctx context.Context, passcode string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	cutoff := s.now().Add(-s.ttl).UnixMilli()

	var sealed []byte
	err = tx.QueryRowContext(ctx,
		`SELECT token FROM passcodes WHERE passcode = ? AND created_at >= ?`,
		passcode, cutoff).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrPasscodeNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read passcode: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM passcodes WHERE passcode = ?`, passcode)
	if err != nil {
		return "", fmt.Errorf("failed to delete passcode: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// A concurrent redemption got here first.
		return "", ErrPasscodeNotFound
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit passcode redemption: %w", err)
	}

	token, err := s.decrypt(sealed)
	if err != nil {
		return "", err
	}

	return string(token), nil
}

// DeleteExpired physically removes rows older than the TTL. Returns the
// number of rows deleted.
func (s *SQLPasscodeStore) DeleteExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.ttl).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM passcodes WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired passcodes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Stop stops the background sweep goroutine.
func (s *SQLPasscodeStore) Stop() {
	s.once.Do(func() {
		close(s.stop)
	})
}

// sweepLoop periodically reclaims expired rows.
func (s *SQLPasscodeStore) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := s.DeleteExpired(context.Background())
			if err != nil {
				logging.Error("OAuth", err, "Passcode sweep failed")
				continue
			}
			if n > 0 {
				logging.Debug("OAuth", "Swept %d expired passcodes", n)
			}
		case <-s.stop:
			return
		}
	}
}

func (s *SQLPasscodeStore) encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return s.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *SQLPasscodeStore) decrypt(sealed []byte) ([]byte, error) {
	if len(sealed) < s.gcm.NonceSize() {
		return nil, fmt.Errorf("stored token is malformed")
	}
	nonce, ciphertext := sealed[:s.gcm.NonceSize()], sealed[s.gcm.NonceSize():]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt stored token: %w", err)
	}
	return plaintext, nil
}
