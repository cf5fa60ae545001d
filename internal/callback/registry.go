// Package callback holds pending user confirmations behind unpredictable
// one-shot tokens. Entries are in-memory only and lost on restart; a user who
// taps a button from a previous process run just gets a "no longer valid"
// reply and retypes the command.
package callback

import (
	"errors"
	"sync"
	"time"

	"github.com/ayo6706/stablesend/internal/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a token is unknown, already consumed, or expired.
var ErrNotFound = errors.New("callback token not found")

// ErrNotOwner is returned when a live token belongs to a different user.
var ErrNotOwner = errors.New("callback token owned by another user")

// Entry is one pending confirm/cancel decision.
type Entry struct {
	OwnerID  int64
	Requests []models.TransferRequest

	expiresAt time.Time
}

// Registry is a TTL-bounded token store. Set, Take and VerifyOwner are safe
// for concurrent use; Take consumes at most once across all callers.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
}

// NewRegistry creates a registry whose entries expire after ttl. A ttl of
// zero disables expiry.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock overrides the time source.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Set stores a pending decision and returns its fresh token. Tokens are drawn
// from the uuid space, so collisions are not handled.
func (r *Registry) Set(ownerID int64, requests []models.TransferRequest) string {
	token := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked()

	entry := Entry{OwnerID: ownerID, Requests: requests}
	if r.ttl > 0 {
		entry.expiresAt = r.now().Add(r.ttl)
	}
	r.entries[token] = entry
	return token
}

// Take removes and returns the entry for token. A second Take with the same
// token, or a Take on an expired token, fails with ErrNotFound.
func (r *Registry) Take(token string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[token]
	if !ok {
		return Entry{}, ErrNotFound
	}
	delete(r.entries, token)
	if r.expiredLocked(entry) {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

// VerifyOwner checks that the entry exists, is live, and belongs to callerID.
// Unknown and expired tokens yield ErrNotFound; a live token held by someone
// else yields ErrNotOwner, so callers can tell the two apart. It never
// mutates the registry.
func (r *Registry) VerifyOwner(token string, callerID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[token]
	if !ok || r.expiredLocked(entry) {
		return ErrNotFound
	}
	if entry.OwnerID != callerID {
		return ErrNotOwner
	}
	return nil
}

// Len reports the number of stored entries, including any expired ones not
// yet swept.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) expiredLocked(entry Entry) bool {
	return !entry.expiresAt.IsZero() && !r.now().Before(entry.expiresAt)
}

// sweepLocked drops expired entries. Ran on every Set so the map size stays
// proportional to live confirmations.
func (r *Registry) sweepLocked() {
	if r.ttl <= 0 {
		return
	}
	for token, entry := range r.entries {
		if r.expiredLocked(entry) {
			delete(r.entries, token)
		}
	}
}
