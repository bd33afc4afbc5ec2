package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/ironswallow/ironswallow/pkg/api"
	"github.com/ironswallow/ironswallow/pkg/bootstrap"
	"github.com/ironswallow/ironswallow/pkg/bplan"
	"github.com/ironswallow/ironswallow/pkg/config"
	"github.com/ironswallow/ironswallow/pkg/ingest"
	"github.com/ironswallow/ironswallow/pkg/log"
	"github.com/ironswallow/ironswallow/pkg/metrics"
	"github.com/ironswallow/ironswallow/pkg/store"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPaths []string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ironswallow",
	Short: "IronSwallow - Darwin Push Port ingester",
	Long: `IronSwallow subscribes to the National Rail Darwin Push Port,
normalizes every schedule, status, association and station message it
carries, and keeps a PostgreSQL database continuously up to date.

A snapshot bootstrap over FTP covers cold starts and long outages, and
a small read-only JSON API serves departure boards from the result.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"IronSwallow version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringSliceVar(&configPaths, "config", nil,
		"configuration files to merge, later files win (default config.json, secret.json)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(bplanCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads configuration and initializes logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPaths...)
	if err != nil {
		return nil, err
	}
	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	metrics.Register()
	return cfg, nil
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full ingester",
	Long: `Run the full ingest lifecycle: load reference data, bootstrap from
the FTP snapshots if the database is stale, then consume the live feed
until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		go func() {
			srv := api.NewMetricsServer()
			if err := srv.Start(cfg.MetricsAddr); err != nil {
				logger := log.WithComponent("main")
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()

		return ingest.New(cfg).Run(ctx)
	},
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Replay the FTP snapshots and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.DatabaseString == "" || cfg.FTPHostname == "" {
			return fmt.Errorf("database-string and ftp-hostname are required")
		}

		ctx, cancel := signalContext()
		defer cancel()

		conn, err := pgx.Connect(ctx, cfg.DatabaseString)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer conn.Close(context.Background())

		w := store.NewWriter(conn)
		w.Start(ctx)
		defer w.Close()

		b := bootstrap.New(bootstrap.Config{
			Hostname:     cfg.FTPHostname,
			Username:     cfg.FTPUsername,
			Password:     cfg.FTPPassword,
			SnapshotOnly: cfg.SnapshotOnly,
		}, store.New(w))
		return b.Run(ctx)
	},
}

var bplanCmd = &cobra.Command{
	Use:   "bplan",
	Short: "Import the BPlan extract and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.DatabaseString == "" {
			return fmt.Errorf("database-string is required")
		}

		ctx, cancel := signalContext()
		defer cancel()

		conn, err := pgx.Connect(ctx, cfg.DatabaseString)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer conn.Close(context.Background())

		w := store.NewWriter(conn)
		w.Start(ctx)
		defer w.Close()

		if err := bplan.Import(cfg.DatasetsDir, w); err != nil {
			return err
		}
		return w.Sync(ctx)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only JSON API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.DatabaseString == "" {
			return fmt.Errorf("database-string is required")
		}

		ctx, cancel := signalContext()
		defer cancel()

		pool, err := pgxpool.New(ctx, cfg.DatabaseString)
		if err != nil {
			return fmt.Errorf("creating database pool: %w", err)
		}
		defer pool.Close()

		return api.NewServer(pool).Start(cfg.ListenAddr)
	},
}
