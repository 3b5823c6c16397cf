package oauth

import (
	"sync"
	"time"

	"hive/pkg/logging"
)

// StateStore provides thread-safe storage for pending login attempts.
// Entries link the IdP callback to the original request and provide CSRF
// protection: a callback whose state is not present here is rejected.
type StateStore struct {
	mu     sync.Mutex
	logins map[string]*PendingLogin

	loginExpiry time.Duration
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewStateStore creates a new state store. Entries expire after ttl.
func NewStateStore(ttl time.Duration) *StateStore {
	ss := &StateStore{
		logins:      make(map[string]*PendingLogin),
		loginExpiry: ttl,
		stopCleanup: make(chan struct{}),
	}

	go ss.cleanupLoop()

	return ss
}

// Put stores a pending login, keyed by its correlation id.
func (ss *StateStore) Put(login *PendingLogin) {
	ss.mu.Lock()
	ss.logins[login.ID] = login
	ss.mu.Unlock()

	logging.Debug("OAuth", "Stored pending login id=%s mode=%s", login.ID, login.Mode)
}

// Consume validates and removes a pending login by its state value.
// Returns nil if the state is unknown, already consumed, or expired.
// The entry is removed on every hit, so a replayed state always fails.
func (ss *StateStore) Consume(state string) *PendingLogin {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	login, exists := ss.logins[state]
	if !exists {
		logging.Warn("OAuth", "Callback state not found in store")
		return nil
	}

	delete(ss.logins, state)

	if time.Since(login.CreatedAt) > ss.loginExpiry {
		logging.Warn("OAuth", "Callback state expired: age=%v", time.Since(login.CreatedAt))
		return nil
	}

	return login
}

// Len returns the number of pending logins.
func (ss *StateStore) Len() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.logins)
}

// Stop stops the background cleanup goroutine.
func (ss *StateStore) Stop() {
	ss.stopOnce.Do(func() {
		close(ss.stopCleanup)
	})
}

// cleanupLoop periodically removes expired logins from the store.
func (ss *StateStore) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ss.cleanup()
		case <-ss.stopCleanup:
			return
		}
	}
}

// cleanup removes all expired logins from the store.
func (ss *StateStore) cleanup() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	count := 0
	for id, login := range ss.logins {
		if time.Since(login.CreatedAt) > ss.loginExpiry {
			delete(ss.logins, id)
			count++
		}
	}

	if count > 0 {
		logging.Debug("OAuth", "Cleaned up %d expired pending logins", count)
	}
}
