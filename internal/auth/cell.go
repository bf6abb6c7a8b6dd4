package auth

import "sync"

// TokenCell holds the current access credential. It is the only state shared
// between the per-request header injection and the maintenance routine, so
// reads are short-lived snapshots and writes replace the contents wholesale.
type TokenCell struct {
	mu   sync.RWMutex
	cred Credential
}

func NewTokenCell() *TokenCell {
	return &TokenCell{}
}

// Load returns a snapshot of the current credential.
func (c *TokenCell) Load() Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cred
}

// Store replaces the current credential.
func (c *TokenCell) Store(cred Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred = cred
}
