package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mortasa/storefront/internal/config"
	"github.com/mortasa/storefront/storage"
	bboltstorage "github.com/mortasa/storefront/storage/bbolt"
	firestorestorage "github.com/mortasa/storefront/storage/firestore"
	"github.com/mortasa/storefront/storage/memory"
	"github.com/mortasa/storefront/storage/postgres"
)

// Version is overridden at build time with -ldflags "-X ...cmd.Version=...".
var Version = "dev"

var envFile string

var rootCmd = &cobra.Command{
	Use:   "storefront",
	Short: "Mortasa storefront backend",
	Long: `REST backend of the Mortasa shoe storefront: product catalog, customer
messages and the admin panel with its access codes.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&envFile, "env-file", ".env", "Optional dotenv file with STOREFRONT_* settings")
	pf.String(config.KeyBackend, config.Default(config.KeyBackend).(string), "Storage backend: bbolt, postgres, firestore or memory")
	pf.String(config.KeyDataDir, config.Default(config.KeyDataDir).(string), "Directory for the bbolt database file")
	pf.String(config.KeyDatabaseURL, "", "PostgreSQL connection URL")
	pf.String(config.KeyFirestoreProject, "", "Google Cloud project for the firestore backend")
	pf.String(config.KeyLogLevel, config.Default(config.KeyLogLevel).(string), "Log level: debug, info, warn or error")
}

// loadConfig resolves the configuration for cmd from its flags, the
// environment and the env file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v, err := config.New(envFile)
	if err != nil {
		return nil, err
	}
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return nil, err
	}
	return config.Load(v)
}

func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

// openRepository opens the configured storage backend. The caller closes it.
func openRepository(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	switch cfg.Backend {
	case config.BackendBbolt:
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(cfg.DataDir, "storefront.db"), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open bbolt storage: %w", err)
		}
		return repo, nil
	case config.BackendPostgres:
		repo, err := postgres.NewRepositoryFromDSN(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres storage: %w", err)
		}
		return repo, nil
	case config.BackendFirestore:
		repo, err := firestorestorage.NewRepositoryFromProject(ctx, cfg.FirestoreProject, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open firestore storage: %w", err)
		}
		return repo, nil
	case config.BackendMemory:
		return memory.NewRepository(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
