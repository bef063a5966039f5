// Package config loads storefront settings with Viper. Sources, highest
// precedence first: command-line flags, STOREFRONT_* environment variables
// (plus the legacy PORT, DATABASE_URL and ADMIN_MASTER_CODE), an optional
// .env file, built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mortasa/storefront/access"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "STOREFRONT"

// Keys.
const (
	KeyPort             = "port"
	KeyBackend          = "backend"
	KeyDataDir          = "data-dir"
	KeyDatabaseURL      = "database-url"
	KeyFirestoreProject = "firestore-project"
	KeyUploadsDir       = "uploads-dir"
	KeyMasterCode       = "master-code"
	KeyLogLevel         = "log-level"
	KeyCORSOrigin       = "cors-origin"
	KeyTLSCert          = "tls-cert"
	KeyTLSKey           = "tls-key"
	KeyAuditWebhookURL  = "audit-webhook-url"
	KeyAuditWebhookAuth = "audit-webhook-header"
	KeyTrustedProxies   = "trusted-proxies"
	KeyUploadBackend    = "upload-backend"
	KeyGCSBucket        = "gcs-bucket"
	KeyGCSPrefix        = "gcs-prefix"
	KeyGCSPublicURL     = "gcs-public-url"
)

// Storage backends.
const (
	BackendBbolt     = "bbolt"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// Image upload backends.
const (
	UploadLocal = "local"
	UploadGCS   = "gcs"
)

var keys = []string{
	KeyPort, KeyBackend, KeyDataDir, KeyDatabaseURL, KeyFirestoreProject,
	KeyUploadsDir, KeyMasterCode, KeyLogLevel, KeyCORSOrigin, KeyTLSCert, KeyTLSKey,
	KeyAuditWebhookURL, KeyAuditWebhookAuth, KeyTrustedProxies,
	KeyUploadBackend, KeyGCSBucket, KeyGCSPrefix, KeyGCSPublicURL,
}

// legacyEnv lists unprefixed variable names still honored for a key.
var legacyEnv = map[string]string{
	KeyPort:        "PORT",
	KeyDatabaseURL: "DATABASE_URL",
	KeyMasterCode:  "ADMIN_MASTER_CODE",
}

var defaults = map[string]any{
	KeyPort:             5000,
	KeyBackend:          BackendBbolt,
	KeyDataDir:          "./data",
	KeyDatabaseURL:      "",
	KeyFirestoreProject: "",
	KeyUploadsDir:       "./uploads",
	KeyMasterCode:       access.DefaultMasterCode,
	KeyLogLevel:         "info",
	KeyCORSOrigin:       "*",
	KeyTLSCert:          "",
	KeyTLSKey:           "",
	KeyAuditWebhookURL:  "",
	KeyAuditWebhookAuth: "",
	KeyTrustedProxies:   []string{},
	KeyUploadBackend:    UploadLocal,
	KeyGCSBucket:        "",
	KeyGCSPrefix:        "products/",
	KeyGCSPublicURL:     "",
}

// Config holds the resolved settings.
type Config struct {
	Port             int    `mapstructure:"port"`
	Backend          string `mapstructure:"backend"`
	DataDir          string `mapstructure:"data-dir"`
	DatabaseURL      string `mapstructure:"database-url"`
	FirestoreProject string `mapstructure:"firestore-project"`
	UploadsDir       string `mapstructure:"uploads-dir"`
	MasterCode       string `mapstructure:"master-code"`
	LogLevel         string `mapstructure:"log-level"`
	CORSOrigin       string `mapstructure:"cors-origin"`
	TLSCert          string `mapstructure:"tls-cert"`
	TLSKey           string `mapstructure:"tls-key"`
	AuditWebhookURL  string `mapstructure:"audit-webhook-url"`
	AuditWebhookAuth string `mapstructure:"audit-webhook-header"`

	// TrustedProxies lists the CIDRs whose X-Forwarded-For and Forwarded
	// headers are believed. Empty means client IPs come from the socket.
	TrustedProxies []string `mapstructure:"trusted-proxies"`

	UploadBackend string `mapstructure:"upload-backend"`
	GCSBucket     string `mapstructure:"gcs-bucket"`
	GCSPrefix     string `mapstructure:"gcs-prefix"`
	GCSPublicURL  string `mapstructure:"gcs-public-url"`
}

// EnvName returns the environment variable that sets key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// New returns a Viper instance with defaults, the optional env file and
// environment bindings applied. A missing envFile is not an error.
func New(envFile string) (*viper.Viper, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	if envFile != "" {
		if err := loadEnvFile(v, envFile); err != nil {
			return nil, err
		}
	}
	for _, key := range keys {
		names := []string{key, EnvName(key)}
		if legacy, ok := legacyEnv[key]; ok {
			names = append(names, legacy)
		}
		if err := v.BindEnv(names...); err != nil {
			return nil, fmt.Errorf("config: binding %s: %w", key, err)
		}
	}
	return v, nil
}

// loadEnvFile layers the values of a dotenv file over the defaults.
func loadEnvFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	f := viper.New()
	f.SetConfigFile(path)
	f.SetConfigType("env")
	if err := f.ReadInConfig(); err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	for _, key := range keys {
		names := []string{EnvName(key)}
		if legacy, ok := legacyEnv[key]; ok {
			names = append(names, legacy)
		}
		for _, name := range names {
			if name = strings.ToLower(name); f.IsSet(name) {
				v.SetDefault(key, f.Get(name))
				break
			}
		}
	}
	return nil
}

// BindFlags makes every flag in fs whose name is a known key override the
// other sources when it is set on the command line.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, key := range keys {
		if f := fs.Lookup(key); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("config: binding flag %s: %w", key, err)
			}
		}
	}
	return nil
}

// Default returns the built-in value for key, for use as a flag default.
func Default(key string) any { return defaults[key] }

// Load resolves and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("config: port %d out of range", cfg.Port)
	}
	switch cfg.Backend {
	case BackendBbolt, BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: database-url must be set for the postgres backend")
		}
	case BackendFirestore:
		if cfg.FirestoreProject == "" {
			return nil, errors.New("config: firestore-project must be set for the firestore backend")
		}
	default:
		return nil, fmt.Errorf("config: unknown backend %q", cfg.Backend)
	}
	if cfg.MasterCode == "" {
		cfg.MasterCode = access.DefaultMasterCode
	}
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, errors.New("config: tls-cert and tls-key must be set together")
	}
	if cfg.AuditWebhookURL != "" {
		u, err := url.Parse(cfg.AuditWebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("config: audit-webhook-url %q is not an http(s) URL", cfg.AuditWebhookURL)
		}
	}
	var proxies []string
	for _, p := range cfg.TrustedProxies {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		if _, err := netip.ParsePrefix(p); err != nil {
			if _, err := netip.ParseAddr(p); err != nil {
				return nil, fmt.Errorf("config: trusted-proxies entry %q is not an IP or CIDR", p)
			}
		}
		proxies = append(proxies, p)
	}
	cfg.TrustedProxies = proxies

	cfg.UploadBackend = strings.ToLower(strings.TrimSpace(cfg.UploadBackend))
	switch cfg.UploadBackend {
	case UploadLocal:
	case UploadGCS:
		if cfg.GCSBucket == "" {
			return nil, errors.New("config: gcs-bucket must be set for the gcs upload backend")
		}
	default:
		return nil, fmt.Errorf("config: unknown upload backend %q", cfg.UploadBackend)
	}
	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseLogLevel maps debug, info, warn and error to slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("config: invalid log level %q", s)
	}
	return level, nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}
