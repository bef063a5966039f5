// Package api exposes the storefront over HTTP: the public catalog and
// message log, the admin panel endpoints guarded by X-Admin-Token sessions,
// and image uploads.
package api

import (
	"context"
	_ "embed"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mortasa/storefront/access"
	"github.com/mortasa/storefront/storage"
	"github.com/mortasa/storefront/storage/images"
)

const defaultUploadsDir = "uploads"

// API holds the dependencies needed by the REST handlers.
type API struct {
	repo         storage.Repository
	access       *access.Service
	loginLimiter *loginRateLimiter
	audit        *auditLogger
	metrics      *Metrics
	alerts       *alertMonitor
	logger       *slog.Logger
	images       images.Sink
	uploadsDir   string
	corsOrigin   string

	trustedProxies []netip.Prefix

	webhookURL    string
	webhookHeader string

	bootstrapMu   sync.Mutex
	bootstrapDone atomic.Bool
}

//go:embed openapi.yaml
var openapiYAML []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events and server errors.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithUploadsDir sets the directory uploaded images are written to when no
// other image sink is configured.
func WithUploadsDir(dir string) Option {
	return func(a *API) {
		if dir != "" {
			a.uploadsDir = dir
		}
	}
}

// WithImageSink stores uploads in sink instead of the local uploads
// directory. /uploads/ is only served when sink can serve its own files.
func WithImageSink(sink images.Sink) Option {
	return func(a *API) {
		a.images = sink
	}
}

// WithCORSOrigin sets the Access-Control-Allow-Origin value. Defaults to "*".
func WithCORSOrigin(origin string) Option {
	return func(a *API) {
		if origin != "" {
			a.corsOrigin = origin
		}
	}
}

// WithMetricsRegisterer registers the API's prometheus collectors with reg
// instead of a private registry.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(a *API) {
		a.metrics = NewMetrics(reg)
	}
}

// WithAlertFunc installs a callback invoked when failed logins spike.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alerts = newAlertMonitor(fn)
	}
}

// WithAuditWebhook forwards every audit event to url as a JSON POST.
// authHeader, when set, has the form "Header: Value".
func WithAuditWebhook(url, authHeader string) Option {
	return func(a *API) {
		a.webhookURL = url
		a.webhookHeader = authHeader
	}
}

// New creates a new API instance.
func New(repo storage.Repository, svc *access.Service, opts ...Option) *API {
	a := &API{
		repo:         repo,
		access:       svc,
		loginLimiter: newLoginRateLimiter(),
		uploadsDir:   defaultUploadsDir,
		corsOrigin:   "*",
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if a.metrics == nil {
		a.metrics = NewMetrics(prometheus.NewRegistry())
	}
	if a.images == nil {
		a.images = images.NewLocal(a.uploadsDir)
	}
	a.audit = newAuditLogger(a.logger)
	a.audit.alerts = a.alerts
	if a.webhookURL != "" {
		a.audit.webhook = newAuditWebhook(a.webhookURL, a.webhookHeader, a.logger)
	}
	a.metrics.observeSessions(svc.Sessions())
	return a
}

// Close flushes queued audit webhook events.
func (a *API) Close() {
	a.audit.webhook.close()
}

// Router returns a chi.Router with all API routes. It is meant to be
// mounted at the server root; paths include the /api prefix.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(a.CORS)
	r.Use(SecurityHeaders)

	r.Route("/api", func(r chi.Router) {
		r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/yaml")
			w.Write(openapiYAML)
		})
		r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
			SpecURL: "/api/openapi.yaml",
			Path:    "api/docs",
		}, nil))

		r.Get("/products", a.ListProducts)
		r.Get("/products/{id}", a.GetProduct)
		r.Get("/messages", a.ListMessages)
		r.Post("/messages", a.CreateMessage)

		r.Group(func(r chi.Router) {
			r.Use(a.BootstrapMiddleware)

			r.Post("/admin/login", a.Login)
			r.Group(func(r chi.Router) {
				r.Use(a.AdminMiddleware)
				r.Post("/admin/logout", a.Logout)
				r.Get("/admin/session", a.CurrentSession)

				r.Group(func(r chi.Router) {
					r.Use(MasterMiddleware)
					r.Get("/admin/codes", a.ListCodes)
					r.Post("/admin/codes", a.CreateCode)
					r.Delete("/admin/codes/{id}", a.DeleteCode)
				})

				r.Post("/products", a.CreateProduct)
				r.Put("/products/{id}", a.UpdateProduct)
				r.Delete("/products/{id}", a.DeleteProduct)

				r.Post("/upload", a.UploadImage)
				r.Post("/upload-multiple", a.UploadImages)
			})
		})
	})

	if h, ok := a.images.(interface{ Handler() http.Handler }); ok {
		r.Handle(images.LocalURLPrefix+"*", http.StripPrefix(images.LocalURLPrefix, h.Handler()))
	}
	return r
}

// Bootstrap makes sure the master access code exists. It is safe to call
// repeatedly; once it has succeeded, later calls return immediately.
func (a *API) Bootstrap(ctx context.Context) error {
	if a.bootstrapDone.Load() {
		return nil
	}
	a.bootstrapMu.Lock()
	defer a.bootstrapMu.Unlock()
	if a.bootstrapDone.Load() {
		return nil
	}
	created, err := a.access.EnsureMaster(ctx)
	if err != nil {
		return err
	}
	a.bootstrapDone.Store(true)
	if created {
		a.audit.logRequestless(ctx, AuditMasterBootstrapped)
	}
	return nil
}

// BootstrapMiddleware retries Bootstrap on admin requests until it
// succeeds, so a store that was unreachable at startup heals without a
// restart. Public catalog routes never pass through it.
func (a *API) BootstrapMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.Bootstrap(r.Context()); err != nil {
			a.logger.Error("bootstrap failed", "error", err)
			writeError(w, http.StatusInternalServerError, msgInternal)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RunMaintenance periodically drops expired sessions and stale rate limit
// records until ctx is done.
func (a *API) RunMaintenance(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.access.Sessions().Sweep(); n > 0 {
				a.logger.Debug("expired admin sessions swept", "count", n)
			}
			a.loginLimiter.sweep()
		}
	}
}
