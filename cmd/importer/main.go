package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/smartico/promo-importer/internal/adapter"
	"github.com/smartico/promo-importer/internal/config"
	"github.com/smartico/promo-importer/internal/domain"
	"github.com/smartico/promo-importer/internal/importer"
	"github.com/smartico/promo-importer/internal/logger"
	"github.com/smartico/promo-importer/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
	filePath   = flag.String("file", "", "Path to the CSV file to import (required)")
	policyFlag = flag.String("policy", "", "Merge policy: first-write or last-write (overrides config)")
	purgeFlag  = flag.Bool("purge", false, "Delete consumed staging rows instead of flagging them processed")
	keepFlag   = flag.Bool("keep", false, "Keep the source file after import instead of removing it")
)

func main() {
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: importer -file <path.csv> [-policy first-write|last-write] [-purge] [-keep]")
		os.Exit(2)
	}

	// Resolve the file before changing directories
	absPath, err := resolveFile(*filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "importer: %v\n", err)
		os.Exit(2)
	}

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadImporterConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "importer",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting promotion importer", zap.String("file", absPath))

	// Resolve the merge policy: flag beats config
	policyName := cfg.Import.MergePolicy
	if *policyFlag != "" {
		policyName = *policyFlag
	}
	policy, err := domain.ParseMergePolicy(policyName)
	if err != nil {
		logger.FatalCtx(ctx, "Invalid merge policy", zap.Error(err))
	}

	purge := cfg.Import.PurgeStaging || *purgeFlag

	// Connect to database with retry
	db, err := store.Open(ctx, cfg.Database.DSN(), 30*time.Second)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	// Initialize store and adapters
	dataStore := store.NewPGStore(db)
	fs := adapter.NewFileSystem()
	clock := adapter.NewClock()

	imp := importer.New(importer.Config{
		BatchSize:    cfg.Import.BatchSize,
		Policy:       policy,
		PurgeStaging: purge,
	}, dataStore, fs, clock)

	var stats *domain.ImportStats
	if *keepFlag {
		f, err := fs.Open(absPath)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to open import file", zap.Error(err))
		}
		stats, err = imp.ImportStream(ctx, f, filepath.Base(absPath))
		_ = f.Close()
		if err != nil {
			logger.FatalCtx(ctx, "Import failed", zap.Error(err))
		}
	} else {
		stats, err = imp.ImportFile(ctx, absPath)
		if err != nil {
			logger.FatalCtx(ctx, "Import failed", zap.Error(err))
		}
	}

	for _, rowErr := range stats.Errors {
		fmt.Fprintf(os.Stderr, "error: %s\n", rowErr)
	}

	fmt.Printf("total rows:          %d\n", stats.TotalRows)
	fmt.Printf("processed rows:      %d\n", stats.ProcessedRows)
	fmt.Printf("new users:           %d\n", stats.NewUsers)
	fmt.Printf("new promotions:      %d\n", stats.NewPromotions)
	fmt.Printf("new user promotions: %d\n", stats.NewUserPromotions)
	fmt.Printf("errors:              %d\n", len(stats.Errors))

	if len(stats.Errors) > 0 {
		os.Exit(1)
	}
}

// resolveFile makes the path absolute and verifies it points at a regular file
func resolveFile(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", absPath)
	}

	return absPath, nil
}
