package access

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mortasa/storefront/internal/util"
)

const (
	// SessionTTL is the fixed lifetime of a session, measured from issuance.
	SessionTTL = 24 * time.Hour
	// tokenBytes is the amount of randomness in a token (256 bits).
	tokenBytes = 32
	// maxIssueAttempts bounds regeneration on a token collision.
	maxIssueAttempts = 3
)

var errTokenCollision = errors.New("could not generate a unique session token")

// Session binds an issued token to the access code it was authenticated
// against. IsMaster and Label are copies taken at login.
type Session struct {
	Token     string
	Code      string
	IsMaster  bool
	Label     string
	CreatedAt time.Time
}

func (s Session) expiredAt(now time.Time) bool {
	return now.Sub(s.CreatedAt) > SessionTTL
}

// SessionRegistry is the thread-safe in-memory mapping from token to
// Session. It is the sole authority on whether a token is live. Expiry is
// evaluated lazily when a token is resolved; no timers are involved.
//
// Tokens revoked because their access code was deleted are remembered until
// they would have expired, so every later request on them can be told apart
// from an ordinary expiry.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	revoked  map[string]time.Time // token -> CreatedAt of the revoked session
	now      func() time.Time
	newToken func() (string, error)
}

// RegistryOption configures a SessionRegistry.
type RegistryOption func(*SessionRegistry)

// WithClock replaces the registry's time source.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *SessionRegistry) { r.now = now }
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry(opts ...RegistryOption) *SessionRegistry {
	r := &SessionRegistry{
		sessions: make(map[string]Session),
		revoked:  make(map[string]time.Time),
		now:      time.Now,
		newToken: func() (string, error) { return util.RandomHex(tokenBytes) },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Issue stores a new session for code and returns its token.
func (r *SessionRegistry) Issue(code string, isMaster bool, label string) (string, error) {
	for range maxIssueAttempts {
		token, err := r.newToken()
		if err != nil {
			return "", fmt.Errorf("issuing session token: %w", err)
		}
		r.mu.Lock()
		_, live := r.sessions[token]
		_, dead := r.revoked[token]
		if !live && !dead {
			r.sessions[token] = Session{
				Token:     token,
				Code:      code,
				IsMaster:  isMaster,
				Label:     label,
				CreatedAt: r.now(),
			}
			r.mu.Unlock()
			return token, nil
		}
		r.mu.Unlock()
	}
	return "", errTokenCollision
}

// Resolve returns the live session for token. A session older than
// SessionTTL is deleted and reported as missing.
func (r *SessionRegistry) Resolve(token string) (Session, bool) {
	r.mu.RLock()
	session, ok := r.sessions[token]
	r.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	if session.expiredAt(r.now()) {
		r.Revoke(token)
		return Session{}, false
	}
	return session, true
}

// Revoke deletes the session for token. Revoking an unknown token is a no-op.
func (r *SessionRegistry) Revoke(token string) {
	r.mu.Lock()
	delete(r.sessions, token)
	r.mu.Unlock()
}

// RevokeAllForCode deletes every session authenticated against code, marks
// the tokens revoked and returns how many were removed.
func (r *SessionRegistry) RevokeAllForCode(code string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for token, s := range r.sessions {
		if s.Code == code {
			delete(r.sessions, token)
			r.revoked[token] = s.CreatedAt
			n++
		}
	}
	return n
}

// Invalidate deletes the session for token and marks the token revoked.
// Unknown tokens are ignored.
func (r *SessionRegistry) Invalidate(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[token]; ok {
		delete(r.sessions, token)
		r.revoked[token] = s.CreatedAt
	}
}

// IsRevoked reports whether token belonged to a session revoked by
// RevokeAllForCode or Invalidate that has not yet reached its expiry.
func (r *SessionRegistry) IsRevoked(token string) bool {
	r.mu.RLock()
	createdAt, ok := r.revoked[token]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if (Session{CreatedAt: createdAt}).expiredAt(r.now()) {
		r.mu.Lock()
		delete(r.revoked, token)
		r.mu.Unlock()
		return false
	}
	return true
}

// Sweep deletes every expired session and returns how many were removed.
// Resolve already ignores expired entries; Sweep only reclaims memory.
// Revocation marks past their expiry are dropped too.
func (r *SessionRegistry) Sweep() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for token, s := range r.sessions {
		if s.expiredAt(now) {
			delete(r.sessions, token)
			n++
		}
	}
	for token, createdAt := range r.revoked {
		if (Session{CreatedAt: createdAt}).expiredAt(now) {
			delete(r.revoked, token)
		}
	}
	return n
}

// Len returns the number of stored sessions, expired ones included until
// they are observed or swept. Revoked tokens are not counted.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
