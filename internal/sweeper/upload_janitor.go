package sweeper

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/smartico/promo-importer/internal/adapter"
	"github.com/smartico/promo-importer/internal/logger"
	"github.com/smartico/promo-importer/internal/store"
)

// UploadJanitorConfig holds configuration for the upload janitor
type UploadJanitorConfig struct {
	UploadDir      string        // Directory holding uploaded CSV files
	MaxAge         time.Duration // Files and staging rows older than this are removed
	Interval       time.Duration // Time to sleep between sweep cycles
	WorkerPoolSize int           // Concurrent file removals
	QueueSize      int           // Worker pool queue size
}

// uploadJanitor implements the Sweeper interface. It has two duties: removing
// stale files from the upload directory (uploads that were never imported, or
// that a crashed import failed to clean up) and deleting staging rows past
// their retention window (processed audit rows and orphans of aborted runs).
type uploadJanitor struct {
	config    *UploadJanitorConfig
	store     store.Store
	fs        adapter.FileSystem
	pool      pond.Pool
	clock     adapter.Clock
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewUploadJanitor creates a new upload janitor
func NewUploadJanitor(
	config *UploadJanitorConfig,
	st store.Store,
	fs adapter.FileSystem,
	clock adapter.Clock,
) Sweeper {
	return &uploadJanitor{
		config:    config,
		store:     st,
		fs:        fs,
		clock:     clock,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the sweeper's name
func (s *uploadJanitor) Name() string {
	return "upload-janitor"
}

// Start begins the janitor's main loop
func (s *uploadJanitor) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sweeper already running")
	}
	defer func() {
		s.running.Store(false)
		close(s.stoppedCh) // Signal that we've stopped
	}()

	logger.InfoCtx(ctx, "Starting upload janitor",
		zap.String("upload_dir", s.config.UploadDir),
		zap.Duration("max_age", s.config.MaxAge),
		zap.Duration("interval", s.config.Interval),
		zap.Int("worker_pool_size", s.config.WorkerPoolSize),
	)

	// Create worker pool
	s.pool = pond.NewPool(
		s.config.WorkerPoolSize,
		pond.WithQueueSize(s.config.QueueSize),
		pond.WithContext(ctx),
	)

	for {
		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Upload janitor stopping due to context cancellation", zap.Error(ctx.Err()))
			s.cleanup()
			return nil
		case <-s.stopChan:
			logger.InfoCtx(ctx, "Upload janitor stop requested")
			s.cleanup()
			return nil
		default:
			if err := s.runSweepCycle(ctx); err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.ErrorCtx(ctx, err)
				}
			}
		}
	}
}

// cleanup stops the worker pool and waits for tasks to complete
func (s *uploadJanitor) cleanup() {
	if s.pool != nil {
		s.pool.StopAndWait()
	}
}

// Stop gracefully stops the janitor with timeout support
func (s *uploadJanitor) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil // Already stopped
	}

	logger.InfoCtx(ctx, "Stopping upload janitor")

	// Signal stop to the main loop
	close(s.stopChan)

	// Wait for main loop to exit, but respect context cancellation
	select {
	case <-s.stoppedCh:
		logger.InfoCtx(ctx, "Upload janitor stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Upload janitor stop interrupted by context timeout")
		return ctx.Err()
	}
}

// runSweepCycle runs a single sweep cycle
func (s *uploadJanitor) runSweepCycle(ctx context.Context) error {
	startTime := s.clock.Now()
	cutoff := startTime.Add(-s.config.MaxAge)

	removed := s.sweepUploadDir(ctx, cutoff)

	purged, err := s.store.PurgeStagingBefore(ctx, cutoff)
	if err != nil {
		logger.ErrorCtx(ctx, err)
	}

	logger.InfoCtx(ctx, "Sweep cycle completed",
		zap.Duration("duration", s.clock.Since(startTime)),
		zap.Int32("files_removed", removed),
		zap.Int64("staging_rows_purged", purged),
	)

	// Sleep until the next cycle
	// Use context-aware sleep so we can be interrupted
	if !s.sleep(ctx, s.config.Interval) {
		return ctx.Err()
	}

	return nil
}

// sweepUploadDir removes files older than the cutoff and returns the number
// of files removed
func (s *uploadJanitor) sweepUploadDir(ctx context.Context, cutoff time.Time) int32 {
	entries, err := s.fs.ReadDir(s.config.UploadDir)
	if err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to read upload dir: %w", err),
			zap.String("upload_dir", s.config.UploadDir))
		return 0
	}

	var removed atomic.Int32
	group := s.pool.NewGroup()

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(s.config.UploadDir, entry.Name())

		group.Submit(func() {
			info, err := s.fs.Stat(path)
			if err != nil {
				logger.WarnCtx(ctx, "Failed to stat upload file", zap.String("path", path), zap.Error(err))
				return
			}
			if info.ModTime().After(cutoff) {
				return
			}

			if err := s.fs.Remove(path); err != nil {
				logger.WarnCtx(ctx, "Failed to remove stale upload", zap.String("path", path), zap.Error(err))
				return
			}

			removed.Add(1)
			logger.DebugCtx(ctx, "Removed stale upload",
				zap.String("path", path),
				zap.Time("mod_time", info.ModTime()),
			)
		})
	}

	// Wait for all removals of this cycle to complete
	_ = group.Wait()

	return removed.Load()
}

// sleep sleeps for the given duration but can be interrupted by context cancellation
// Returns true if sleep completed normally, false if interrupted by context
func (s *uploadJanitor) sleep(ctx context.Context, duration time.Duration) bool {
	select {
	case <-s.clock.After(duration):
		return true // Sleep completed
	case <-ctx.Done():
		return false // Interrupted by context cancellation
	case <-s.stopChan:
		return false // Interrupted by stop signal
	}
}
