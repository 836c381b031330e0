package safety

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

const tokenTTL = 5 * time.Minute

// pendingConfirmation holds the metadata for an outstanding confirmation token.
type pendingConfirmation struct {
	command     string
	deviceID    string
	description string
	createdAt   time.Time
}

// ConfirmationTracker manages single-use, time-limited confirmation tokens for
// commands that cut or interrupt power. A token only confirms the command and
// device it was issued for.
type ConfirmationTracker struct {
	patterns []string
	now      func() time.Time

	mu     sync.Mutex
	tokens map[string]*pendingConfirmation
}

// NewConfirmationTracker returns a ConfirmationTracker requiring confirmation
// for commands matching any of patterns (filepath.Match globs). A nil or
// empty slice means no command requires confirmation.
func NewConfirmationTracker(patterns []string) *ConfirmationTracker {
	return &ConfirmationTracker{
		patterns: patterns,
		now:      time.Now,
		tokens:   make(map[string]*pendingConfirmation),
	}
}

// NeedsConfirmation reports whether command matches a confirmation pattern.
func (ct *ConfirmationTracker) NeedsConfirmation(command string) bool {
	if ct == nil {
		return false
	}
	return matchAny(ct.patterns, command)
}

// sweepExpired removes all tokens whose age exceeds tokenTTL. The caller must
// hold ct.mu.
func (ct *ConfirmationTracker) sweepExpired() {
	now := ct.now()
	for token, pending := range ct.tokens {
		if now.Sub(pending.createdAt) > tokenTTL {
			delete(ct.tokens, token)
		}
	}
}

// RequestConfirmation creates a new confirmation token for running command on
// deviceID and returns the opaque token string. Tokens are valid for 5
// minutes and are single-use.
func (ct *ConfirmationTracker) RequestConfirmation(command, deviceID, description string) string {
	token := generateToken()

	ct.mu.Lock()
	ct.sweepExpired()
	ct.tokens[token] = &pendingConfirmation{
		command:     command,
		deviceID:    deviceID,
		description: description,
		createdAt:   ct.now(),
	}
	ct.mu.Unlock()

	return token
}

// Confirm consumes token and returns true if it was issued for the same
// command and device and has not expired. A presented token is always
// consumed, so a retry needs a fresh one.
func (ct *ConfirmationTracker) Confirm(token, command, deviceID string) bool {
	if token == "" {
		return false
	}

	ct.mu.Lock()
	defer ct.mu.Unlock()

	pending, ok := ct.tokens[token]
	if !ok {
		return false
	}
	delete(ct.tokens, token)

	if ct.now().Sub(pending.createdAt) > tokenTTL {
		return false
	}
	return pending.command == command && pending.deviceID == deviceID
}

// generateToken returns a cryptographically random hex-encoded token string.
func generateToken() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		return hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(b[:])
}
