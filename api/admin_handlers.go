package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mortasa/storefront/access"
)

// Login exchanges an access code for an admin session token.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}

	clientIP := a.clientIP(r)
	if blocked, retryAfter := a.loginLimiter.check(clientIP); blocked {
		a.metrics.recordLogin(loginRateLimited)
		a.audit.logFailure(AuditLoginRateLimited, r, "ip rate limited",
			slog.String("client_ip", clientIP))
		writeRateLimited(w, retryAfter)
		return
	}

	res, err := a.access.Login(r.Context(), req.Code)
	switch {
	case err == nil:
	case errors.Is(err, access.ErrMissingCode):
		a.metrics.recordLogin(loginMissing)
		a.mapError(w, r, err)
		return
	case errors.Is(err, access.ErrInvalidCode):
		a.loginLimiter.recordFailure(clientIP)
		a.metrics.recordLogin(loginInvalid)
		a.audit.logFailure(AuditLoginFailure, r, "unknown access code",
			slog.String("client_ip", clientIP))
		a.mapError(w, r, err)
		return
	default:
		a.metrics.recordLogin(loginError)
		a.mapError(w, r, err)
		return
	}

	a.loginLimiter.recordSuccess(clientIP)
	a.metrics.recordLogin(loginSuccess)
	a.audit.logEvent(AuditLoginSuccess, r, access.Session{Label: res.Label, IsMaster: res.IsMaster})
	writeJSON(w, http.StatusOK, LoginResponse{
		Success:  true,
		Token:    res.Token,
		IsMaster: res.IsMaster,
		Label:    res.Label,
	})
}

// Logout revokes the caller's own session.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	a.access.Logout(session.Token)
	a.metrics.recordRevocation(revocationLogout, 1)
	a.audit.logEvent(AuditLogout, r, session)
	w.WriteHeader(http.StatusNoContent)
}

// CurrentSession describes the caller's session.
func (a *API) CurrentSession(w http.ResponseWriter, r *http.Request) {
	session, _ := sessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, SessionResponse{
		Label:    session.Label,
		IsMaster: session.IsMaster,
	})
}

// ListCodes returns every access code. Master only.
func (a *API) ListCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := a.access.ListCodes(r.Context())
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	resp := make([]AccessCodeResponse, 0, len(codes))
	for _, c := range codes {
		resp = append(resp, accessCodeResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateCode adds a non-master access code. Master only.
func (a *API) CreateCode(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[CreateCodeRequest](w, r, maxSmallBodySize)
	if !ok {
		return
	}
	created, err := a.access.CreateCode(r.Context(), req.Code, req.Label)
	if err != nil {
		a.mapErrorWith(w, r, err, msgCreateCodeFailed)
		return
	}
	session, _ := sessionFromContext(r.Context())
	a.audit.logEvent(AuditCodeCreated, r, session,
		slog.String("code_id", created.ID),
		slog.String("code_label", created.Label))
	writeJSON(w, http.StatusCreated, accessCodeResponse(created))
}

// DeleteCode removes an access code and revokes its sessions. Master only.
func (a *API) DeleteCode(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	del, err := a.access.DeleteCode(r.Context(), id)
	if err != nil {
		a.mapError(w, r, err)
		return
	}
	a.metrics.recordRevocation(revocationCascade, del.SessionsRevoked)
	session, _ := sessionFromContext(r.Context())
	a.audit.logEvent(AuditCodeDeleted, r, session,
		slog.String("code_id", del.Code.ID),
		slog.String("code_label", del.Code.Label),
		slog.Int("sessions_revoked", del.SessionsRevoked))
	w.WriteHeader(http.StatusNoContent)
}
