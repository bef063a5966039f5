package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mortasa/storefront/access"
	"github.com/mortasa/storefront/api"
	"github.com/mortasa/storefront/internal/config"
	"github.com/mortasa/storefront/storage/images"
	"github.com/mortasa/storefront/storage/images/gcs"
)

const maintenanceInterval = 10 * time.Minute

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the storefront HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(cfg)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		repo, err := openRepository(ctx, cfg)
		if err != nil {
			return err
		}
		defer repo.Close()

		sink, closeSink, err := openImageSink(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeSink()

		proxies, err := api.WithTrustedProxies(cfg.TrustedProxies)
		if err != nil {
			return err
		}

		svc := access.NewService(repo, access.NewSessionRegistry(),
			access.WithMasterCode(cfg.MasterCode),
			access.WithLogger(logger.With("component", "access")),
		)
		a := api.New(repo, svc,
			api.WithLogger(logger),
			api.WithImageSink(sink),
			proxies,
			api.WithCORSOrigin(cfg.CORSOrigin),
			api.WithMetricsRegisterer(prometheus.DefaultRegisterer),
			api.WithAuditWebhook(cfg.AuditWebhookURL, cfg.AuditWebhookAuth),
			api.WithAlertFunc(func(e api.AlertEvent) {
				logger.Warn("security alert", "type", e.Type, "message", e.Message, "count", e.Count, "threshold", e.Threshold)
			}),
		)
		defer a.Close()
		// A failure here is retried lazily by the first API request.
		if err := a.Bootstrap(ctx); err != nil {
			logger.Error("master code bootstrap failed, will retry on first request", "error", err)
		}
		go a.RunMaintenance(ctx, maintenanceInterval)

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})
		r.Handle("/metrics", promhttp.Handler())
		r.Mount("/", a.Router())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		if cfg.TLSCert != "" {
			cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			server.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		done := make(chan error, 1)
		go func() {
			var err error
			if server.TLSConfig != nil {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		logger.Info("starting server", "port", cfg.Port, "backend", cfg.Backend,
			"uploads", cfg.UploadBackend, "trusted_proxies", len(cfg.TrustedProxies), "tls", server.TLSConfig != nil)

		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

// openImageSink returns where uploaded images are stored and a func that
// releases it.
func openImageSink(ctx context.Context, cfg *config.Config) (images.Sink, func(), error) {
	if cfg.UploadBackend == config.UploadGCS {
		sink, err := gcs.Open(ctx, cfg.GCSBucket, gcs.Options{
			Prefix:    cfg.GCSPrefix,
			PublicURL: cfg.GCSPublicURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return sink, func() { sink.Close() }, nil
	}
	if err := os.MkdirAll(cfg.UploadsDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create uploads directory: %w", err)
	}
	return images.NewLocal(cfg.UploadsDir), func() {}, nil
}

func init() {
	rootCmd.AddCommand(serverCmd)
	f := serverCmd.Flags()
	f.IntP(config.KeyPort, "p", config.Default(config.KeyPort).(int), "Port to listen on")
	f.String(config.KeyUploadsDir, config.Default(config.KeyUploadsDir).(string), "Directory for uploaded images")
	f.String(config.KeyCORSOrigin, config.Default(config.KeyCORSOrigin).(string), "Value of Access-Control-Allow-Origin")
	f.String(config.KeyTLSCert, "", "Path to TLS certificate file")
	f.String(config.KeyTLSKey, "", "Path to TLS key file")
	f.String(config.KeyAuditWebhookURL, "", "URL audit events are POSTed to")
	f.StringSlice(config.KeyTrustedProxies, nil, "CIDRs of reverse proxies whose X-Forwarded-For is trusted")
	f.String(config.KeyUploadBackend, config.UploadLocal, "Where uploaded images are stored (local, gcs)")
	f.String(config.KeyGCSBucket, "", "Cloud Storage bucket for the gcs upload backend")
	f.String(config.KeyGCSPrefix, config.Default(config.KeyGCSPrefix).(string), "Object name prefix for uploaded images")
	f.String(config.KeyGCSPublicURL, "", "Base URL images in the bucket are served from")
}
