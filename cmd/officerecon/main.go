package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database"
	"github.com/Rasmus-Riis/OfficeRecon/internal/notifications"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/analyzers"
)

// Version is set at build time with -ldflags.
var Version = "dev"

var logger = logrus.New()

var rootCmd = &cobra.Command{
	Use:           "officerecon",
	Short:         "Forensic triage of OOXML and ODF documents",
	Long:          `OfficeRecon inspects Office Open XML and OpenDocument files for provenance, hidden content, leaked identities and injection threats.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil {
			logger.Debug("No .env file found. Proceeding with environment variables.")
		}
		return configureLogger(logger)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// configureLogger applies LOG_LEVEL and LOG_FORMAT. Logs go to stderr so
// reports on stdout stay clean.
func configureLogger(l *logrus.Logger) error {
	l.SetOutput(os.Stderr)

	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	l.SetLevel(lvl)

	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid LOG_FORMAT: %s", os.Getenv("LOG_FORMAT"))
	}
	return nil
}

// scanFlags are the recon settings shared by scan, watch and serve. Flags
// override the environment only when set.
type scanFlags struct {
	workers    int
	timeout    int
	deep       bool
	exclude    []string
	heuristics string
}

func (f *scanFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "number of files analyzed in parallel (RECON_WORKERS)")
	cmd.Flags().IntVar(&f.timeout, "timeout", 0, "per-file analysis timeout in seconds (RECON_FILE_TIMEOUT_SECONDS)")
	cmd.Flags().BoolVar(&f.deep, "deep", false, "run deep analyzers and exiftool (RECON_DEEP_SCAN)")
	cmd.Flags().StringSliceVarP(&f.exclude, "exclude", "x", nil, "wildcard patterns of paths to skip (RECON_EXCLUDE)")
	cmd.Flags().StringVar(&f.heuristics, "heuristics", "", "YAML file overriding detection thresholds (RECON_HEURISTICS_FILE)")
}

func (f *scanFlags) config(cmd *cobra.Command) (*recon.Config, error) {
	cfg, err := recon.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load scan configuration: %w", err)
	}
	if cmd.Flags().Changed("workers") {
		if f.workers <= 0 {
			return nil, fmt.Errorf("--workers must be positive")
		}
		cfg.Workers = f.workers
	}
	if cmd.Flags().Changed("timeout") {
		if f.timeout <= 0 {
			return nil, fmt.Errorf("--timeout must be positive")
		}
		cfg.FileTimeout = secondsToDuration(f.timeout)
	}
	if cmd.Flags().Changed("deep") {
		cfg.DeepScan = f.deep
	}
	if cmd.Flags().Changed("exclude") {
		cfg.Exclude = append(cfg.Exclude, f.exclude...)
	}
	if cmd.Flags().Changed("heuristics") {
		cfg.HeuristicsFile = f.heuristics
	}
	return cfg, nil
}

// collaborators wires the store and notifier selected by the environment.
type collaborators struct {
	db       database.Database
	notifier *notifications.Notifier
}

func (c *collaborators) Close(ctx context.Context) {
	if c.db != nil {
		if err := c.db.Close(ctx); err != nil {
			logger.WithError(err).Warn("Failed to close database")
		}
	}
}

func openCollaborators(ctx context.Context) (*collaborators, error) {
	dbConfig, err := database.LoadDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load database configuration: %w", err)
	}
	db, err := database.Open(ctx, dbConfig, logger)
	if err != nil {
		return nil, err
	}
	if db != nil {
		logger.WithField("type", dbConfig.Type).Info("Record store initialized")
	}
	c := &collaborators{db: db}

	if os.Getenv("SHOUTRRR_URLS") == "" {
		logger.Debug("SHOUTRRR_URLS not set. Notifications disabled.")
		return c, nil
	}
	notifyConfig, err := notifications.LoadNotificationConfig()
	if err != nil {
		c.Close(ctx)
		return nil, fmt.Errorf("failed to load notification configuration: %w", err)
	}
	c.notifier, err = notifications.NewNotifier(notifyConfig, logger)
	if err != nil {
		c.Close(ctx)
		return nil, fmt.Errorf("failed to initialize notifier: %w", err)
	}
	logger.Info("Notifier initialized successfully")
	return c, nil
}

func newScanner(cfg *recon.Config, c *collaborators) (*recon.Scanner, error) {
	heuristics, err := analyzers.LoadHeuristics(cfg.HeuristicsFile)
	if err != nil {
		return nil, err
	}
	sc := recon.ScannerConfig{
		Config:     cfg,
		Heuristics: heuristics,
		Store:      c.db,
		Logger:     logger,
	}
	// A nil *Notifier must not reach the interface field.
	if c.notifier != nil {
		sc.Notifier = c.notifier
	}
	return recon.NewScanner(sc), nil
}
