package oauth

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestMemoryPasscodeStore(t *testing.T) {
	store := NewMemoryPasscodeStore(5 * time.Minute)
	defer store.Stop()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "ABCDEFGHJK", "token-1"))

	token, err := store.Pop(ctx, "ABCDEFGHJK")
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)

	// Redemption is one-shot.
	_, err = store.Pop(ctx, "ABCDEFGHJK")
	assert.ErrorIs(t, err, ErrPasscodeNotFound)
}

func newTestSQLStore(t *testing.T, ttl time.Duration) *SQLPasscodeStore {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "hive.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	store, err := NewSQLPasscodeStore(db, key, ttl)
	require.NoError(t, err)
	t.Cleanup(store.Stop)

	return store
}

func TestSQLPasscodeStorePop(t *testing.T) {
	store := newTestSQLStore(t, 5*time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "QWERTYASDF", "secret-token"))

	token, err := store.Pop(ctx, "QWERTYASDF")
	require.NoError(t, err)
	assert.Equal(t, "secret-token", token)

	_, err = store.Pop(ctx, "QWERTYASDF")
	assert.ErrorIs(t, err, ErrPasscodeNotFound)
}

func TestSQLPasscodeStoreUnknownPasscode(t *testing.T) {
	store := newTestSQLStore(t, 5*time.Minute)

	_, err := store.Pop(context.Background(), "NOSUCHCODE")
	assert.ErrorIs(t, err, ErrPasscodeNotFound)
}

func TestSQLPasscodeStoreReplace(t *testing.T) {
	store := newTestSQLStore(t, 5*time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "SAMECODEXY", "first"))
	require.NoError(t, store.Put(ctx, "SAMECODEXY", "second"))

	token, err := store.Pop(ctx, "SAMECODEXY")
	require.NoError(t, err)
	assert.Equal(t, "second", token)
}

func TestSQLPasscodeStoreExpiry(t *testing.T) {
	store := newTestSQLStore(t, 5*time.Minute)
	ctx := context.Background()

	base := time.Now()
	store.now = func() time.Time { return base }

	require.NoError(t, store.Put(ctx, "EXPIRINGXY", "stale-token"))

	// Past the TTL the entry is not redeemable even though the sweep has
	// not run yet.
	store.now = func() time.Time { return base.Add(6 * time.Minute) }

	_, err := store.Pop(ctx, "EXPIRINGXY")
	assert.ErrorIs(t, err, ErrPasscodeNotFound)
}

func TestSQLPasscodeStoreDeleteExpired(t *testing.T) {
	store := newTestSQLStore(t, 5*time.Minute)
	ctx := context.Background()

	base := time.Now()
	store.now = func() time.Time { return base }

	require.NoError(t, store.Put(ctx, "OLDCODEXYZ", "old"))

	store.now = func() time.Time { return base.Add(6 * time.Minute) }
	require.NoError(t, store.Put(ctx, "NEWCODEXYZ", "new"))

	n, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// The fresh entry survives the sweep.
	token, err := store.Pop(ctx, "NEWCODEXYZ")
	require.NoError(t, err)
	assert.Equal(t, "new", token)
}

func TestSQLPasscodeStoreEncryptedAtRest(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "hive.db"))
	require.NoError(t, err)
	defer db.Close()

	key := make([]byte, 32)
	store, err := NewSQLPasscodeStore(db, key, 5*time.Minute)
	require.NoError(t, err)
	defer store.Stop()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "CIPHERCODE", "plaintext-token"))

	var stored []byte
	require.NoError(t, db.QueryRow(`SELECT token FROM passcodes WHERE passcode = ?`, "CIPHERCODE").Scan(&stored))
	assert.NotContains(t, string(stored), "plaintext-token")
}

func TestNewSQLPasscodeStoreBadKey(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "hive.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = NewSQLPasscodeStore(db, []byte("too-short"), 5*time.Minute)
	assert.Error(t, err)
}
