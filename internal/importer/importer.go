package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/smartico/promo-importer/internal/adapter"
	"github.com/smartico/promo-importer/internal/domain"
	"github.com/smartico/promo-importer/internal/logger"
	"github.com/smartico/promo-importer/internal/store"
)

// DefaultBatchSize bounds the rows buffered in memory between flushes
const DefaultBatchSize = 5000

// Config holds importer configuration
type Config struct {
	// BatchSize is the flush threshold of the batch accumulator
	BatchSize int
	// Policy selects the user-merge conflict resolution
	Policy domain.MergePolicy
	// PurgeStaging deletes consumed staging rows instead of flagging them
	// processed, capping staging-table growth on large deployments
	PurgeStaging bool
}

// Importer drives the ingestion pipeline: CSV stream → row parser → batch
// accumulator → staged multi-row insert → transactional four-step merge.
// Reads are suspended while a batch's transaction is in flight, which is the
// backpressure bounding memory for arbitrarily large files.
type Importer struct {
	config Config
	store  store.Store
	fs     adapter.FileSystem
	clock  adapter.Clock
}

// New creates an importer
func New(cfg Config, st store.Store, fs adapter.FileSystem, clock adapter.Clock) *Importer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Policy == "" {
		cfg.Policy = domain.MergePolicyFirstWrite
	}
	return &Importer{config: cfg, store: st, fs: fs, clock: clock}
}

// ImportFile imports a CSV file from disk and removes it afterwards. The
// file is removed on every path, including open and read failures, to bound
// upload-directory disk usage.
func (i *Importer) ImportFile(ctx context.Context, path string) (*domain.ImportStats, error) {
	defer func() {
		if err := i.fs.Remove(path); err != nil {
			logger.WarnCtx(ctx, "Failed to remove import file", zap.String("path", path), zap.Error(err))
		}
	}()

	f, err := i.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	return i.ImportStream(ctx, f, filepath.Base(path))
}

// ImportStream runs the pipeline over an open CSV stream. The filename tags
// every staged row and scopes the merge; callers must keep it unique per run
// (uploads are stored under uuid-prefixed names for exactly that reason).
//
// Row-level validation errors and batch-level merge errors are collected in
// the returned stats, not raised: partial success is an expected outcome.
// Only a failure to read the stream itself aborts the import.
func (i *Importer) ImportStream(ctx context.Context, r io.Reader, filename string) (*domain.ImportStats, error) {
	start := i.clock.Now()
	stats := &domain.ImportStats{Errors: []string{}}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", domain.ErrInvalidHeader)
		}
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	parser, err := NewRowParser(header, i.clock)
	if err != nil {
		return nil, err
	}

	acc := NewBatchAccumulator(i.config.BatchSize)
	line := 1 // header
	batchIndex := 0

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			// Malformed quoting on one line; the reader resumes on the next.
			stats.TotalRows++
			stats.Errors = append(stats.Errors, (&domain.RowError{Line: line, Reason: err.Error()}).Error())
			continue
		}
		if err != nil {
			// The stream itself is broken; flush what we have and abort.
			i.flush(ctx, filename, acc, &batchIndex, stats)
			return stats, fmt.Errorf("failed to read CSV stream: %w", err)
		}

		stats.TotalRows++
		row, err := parser.Parse(line, record)
		if err != nil {
			stats.Errors = append(stats.Errors, err.Error())
			continue
		}
		row.Filename = filename

		if acc.Append(row) {
			// Batch full: the source is not read again until this batch's
			// staging and merge transaction completes.
			i.flush(ctx, filename, acc, &batchIndex, stats)
		}
	}

	// Drain the end-of-stream remainder through the same path
	i.flush(ctx, filename, acc, &batchIndex, stats)

	logger.InfoCtx(ctx, "Import finished",
		zap.String("filename", filename),
		zap.Int64("total_rows", stats.TotalRows),
		zap.Int64("processed_rows", stats.ProcessedRows),
		zap.Int64("new_users", stats.NewUsers),
		zap.Int64("new_promotions", stats.NewPromotions),
		zap.Int64("new_user_promotions", stats.NewUserPromotions),
		zap.Int("errors", len(stats.Errors)),
		zap.Duration("duration", i.clock.Since(start)),
	)

	return stats, nil
}

// flush stages and merges the accumulated batch. A batch failure is recorded
// against the batch and does not stop subsequent batches.
func (i *Importer) flush(ctx context.Context, filename string, acc *BatchAccumulator, batchIndex *int, stats *domain.ImportStats) {
	if acc.Len() == 0 {
		return
	}

	rows := acc.Drain()
	*batchIndex++

	start := i.clock.Now()
	result, err := i.store.ProcessBatch(ctx, filename, rows, i.config.Policy, i.config.PurgeStaging)
	if err != nil {
		logger.ErrorCtx(ctx, err,
			zap.String("filename", filename),
			zap.Int("batch", *batchIndex),
			zap.Int("rows", len(rows)),
		)
		stats.Errors = append(stats.Errors, fmt.Sprintf("batch %d: %v", *batchIndex, err))
		return
	}

	stats.ProcessedRows += int64(len(rows))
	stats.NewUsers += result.NewUsers
	stats.NewPromotions += result.NewPromotions
	stats.NewUserPromotions += result.NewUserPromotions

	logger.DebugCtx(ctx, "Batch merged",
		zap.String("filename", filename),
		zap.Int("batch", *batchIndex),
		zap.Int("rows", len(rows)),
		zap.Int64("new_users", result.NewUsers),
		zap.Int64("new_promotions", result.NewPromotions),
		zap.Int64("new_user_promotions", result.NewUserPromotions),
		zap.Duration("duration", i.clock.Since(start)),
	)
}
