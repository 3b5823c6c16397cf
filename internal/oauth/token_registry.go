package oauth

import (
	"sync"
	"time"

	"hive/pkg/logging"
)

// pendingToken holds a token waiting to be collected, with its creation
// time for expiry.
type pendingToken struct {
	token     string
	createdAt time.Time
}

// TokenRegistry provides thread-safe storage for tokens waiting to be
// collected by a polling client. Reads pop the entry, so a token is
// delivered at most once; entries that are never collected age out.
type TokenRegistry struct {
	mu     sync.Mutex
	tokens map[string]pendingToken

	tokenExpiry time.Duration
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewTokenRegistry creates a new registry. Entries expire after ttl.
func NewTokenRegistry(ttl time.Duration) *TokenRegistry {
	tr := &TokenRegistry{
		tokens:      make(map[string]pendingToken),
		tokenExpiry: ttl,
		stopCleanup: make(chan struct{}),
	}

	go tr.cleanupLoop()

	return tr
}

// Put stores a token under the given key (login id or passcode).
// A second Put for the same key replaces the previous entry.
func (tr *TokenRegistry) Put(key, token string) {
	tr.mu.Lock()
	tr.tokens[key] = pendingToken{token: token, createdAt: time.Now()}
	tr.mu.Unlock()

	logging.Debug("OAuth", "Stored pending token for key=%s", key)
}

// Pop retrieves and removes a token. The check-and-delete runs under the
// lock, so of two racing polls exactly one wins. Expired entries are
// treated as absent even if the sweep has not removed them yet.
func (tr *TokenRegistry) Pop(key string) (string, bool) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	entry, exists := tr.tokens[key]
	if !exists {
		return "", false
	}

	delete(tr.tokens, key)

	if time.Since(entry.createdAt) > tr.tokenExpiry {
		logging.Debug("OAuth", "Pending token expired for key=%s age=%v", key, time.Since(entry.createdAt))
		return "", false
	}

	return entry.token, true
}

// Len returns the number of pending tokens.
func (tr *TokenRegistry) Len() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.tokens)
}

// Stop stops the background cleanup goroutine.
func (tr *TokenRegistry) Stop() {
	tr.stopOnce.Do(func() {
		close(tr.stopCleanup)
	})
}

// cleanupLoop periodically removes expired tokens from the registry.
func (tr *TokenRegistry) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			tr.cleanup()
		case <-tr.stopCleanup:
			return
		}
	}
}

// cleanup removes all expired tokens from the registry.
func (tr *TokenRegistry) cleanup() {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	count := 0
	for key, entry := range tr.tokens {
		if time.Since(entry.createdAt) > tr.tokenExpiry {
			delete(tr.tokens, key)
			count++
		}
	}

	if count > 0 {
		logging.Debug("OAuth", "Cleaned up %d expired pending tokens", count)
	}
}
