package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/mortasa/storefront/access"
)

type contextKey int

const (
	sessionKey contextKey = iota
)

// adminTokenHeader carries the session token on every admin request.
const adminTokenHeader = "X-Admin-Token"

// AdminMiddleware requires a live session whose access code still exists,
// and stores the session on the request context. Revoked sessions are
// answered with revoked: true so the client logs out.
func (a *API) AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get(adminTokenHeader))
		session, err := a.access.Authenticate(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, access.ErrCodeDeleted):
				a.metrics.recordRevocation(revocationRevalidation, 1)
				a.audit.logFailure(AuditSessionRevoked, r, "access code deleted")
			case errors.Is(err, access.ErrRevoked):
				a.audit.logFailure(AuditSessionRejected, r, "revoked token")
			case errors.Is(err, access.ErrSessionExpired):
				a.audit.logFailure(AuditSessionRejected, r, "unknown or expired token")
			}
			a.mapError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// MasterMiddleware requires the session attached by AdminMiddleware to hold
// master privilege. It never touches the store.
func MasterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := sessionFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, msgUnauthorized)
			return
		}
		if err := access.RequireMaster(session); err != nil {
			writeError(w, http.StatusForbidden, msgMasterRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func sessionFromContext(ctx context.Context) (access.Session, bool) {
	session, ok := ctx.Value(sessionKey).(access.Session)
	return session, ok
}

func requestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}
