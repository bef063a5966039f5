package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mortasa/storefront/access"
)

// AuditEvent identifies the type of security-relevant action being logged.
type AuditEvent string

const (
	AuditLoginSuccess       AuditEvent = "login_success"
	AuditLoginFailure       AuditEvent = "login_failure"
	AuditLoginRateLimited   AuditEvent = "login_rate_limited"
	AuditLogout             AuditEvent = "logout"
	AuditSessionRejected    AuditEvent = "session_rejected"
	AuditSessionRevoked     AuditEvent = "session_revoked"
	AuditCodeCreated        AuditEvent = "code_created"
	AuditCodeDeleted        AuditEvent = "code_deleted"
	AuditMasterBootstrapped AuditEvent = "master_bootstrapped"
	AuditProductCreated     AuditEvent = "product_created"
	AuditProductUpdated     AuditEvent = "product_updated"
	AuditProductDeleted     AuditEvent = "product_deleted"
	AuditImageUploaded      AuditEvent = "image_uploaded"
)

// auditLogger wraps slog.Logger for structured security audit logging.
// Access code values are secrets and are never logged; sessions are
// identified by their label.
type auditLogger struct {
	logger  *slog.Logger
	alerts  *alertMonitor
	webhook *auditWebhook
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "audit"),
	}
}

// log writes a structured audit log entry.
func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	now := time.Now()
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", now.UTC().Format(time.RFC3339)),
	}
	baseAttrs = append(baseAttrs, attrs...)
	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", baseAttrs...)
	al.alerts.recordEvent(event)
	al.webhook.enqueue(webhookEventFrom(event, r.RemoteAddr, now, attrs))
}

// logEvent is a convenience for events performed by an admin session.
func (al *auditLogger) logEvent(event AuditEvent, r *http.Request, session access.Session, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("label", session.Label),
		slog.Bool("is_master", session.IsMaster),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

// logFailure logs a rejected authentication attempt.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("reason", reason),
	}
	attrs = append(attrs, extra...)
	al.log(event, r, attrs...)
}

// logRequestless records an event that is not tied to a request.
func (al *auditLogger) logRequestless(ctx context.Context, event AuditEvent, attrs ...slog.Attr) {
	now := time.Now()
	baseAttrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("timestamp", now.UTC().Format(time.RFC3339)),
	}
	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", append(baseAttrs, attrs...)...)
	al.webhook.enqueue(webhookEventFrom(event, "", now, attrs))
}
