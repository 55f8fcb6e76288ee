// Package auth implements the outbound authentication layer for partner
// API calls: a cached short-lived bearer credential, a single-flight
// refresh against the partner's token endpoint, and a one-shot retry of
// requests rejected with 401.
package auth

import (
	"sync"
	"time"
)

// Credential is an opaque bearer token plus the instant it stops being
// usable. The zero value is invalid.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Valid reports whether the credential can still be attached to a request.
func (c Credential) Valid() bool {
	return c.Token != "" && time.Now().Before(c.ExpiresAt)
}

// Cache holds the current credential for a single partner. Individual
// operations are atomic; coordinating the refresh itself is the
// Transport's job, so none of these calls ever block on network I/O.
type Cache struct {
	mu   sync.Mutex
	cred Credential
}

// Valid reports whether the cached credential is usable right now.
func (c *Cache) Valid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cred.Valid()
}

// Get returns the last stored credential, which may be invalid.
func (c *Cache) Get() Credential {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cred
}

// Store replaces the cached credential.
func (c *Cache) Store(cred Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cred = cred
}

// Clear invalidates the cache. Called when the partner rejects a
// credential that looked valid locally, so no other caller reuses a
// known-bad token while a refresh is pending.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cred = Credential{}
}
