package importer

import (
	"github.com/smartico/promo-importer/internal/store/schema"
)

// BatchAccumulator buffers validated rows up to a fixed batch size. It is the
// only in-memory buffer of the pipeline: peak buffered row count never
// exceeds the batch size, independent of file length.
type BatchAccumulator struct {
	rows      []schema.StagingRow
	batchSize int
}

// NewBatchAccumulator creates an accumulator holding at most batchSize rows
func NewBatchAccumulator(batchSize int) *BatchAccumulator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BatchAccumulator{
		rows:      make([]schema.StagingRow, 0, batchSize),
		batchSize: batchSize,
	}
}

// Append adds a row and reports whether the accumulator is now full and must
// be flushed before the next append.
func (a *BatchAccumulator) Append(row schema.StagingRow) bool {
	a.rows = append(a.rows, row)
	return len(a.rows) >= a.batchSize
}

// Len returns the number of buffered rows
func (a *BatchAccumulator) Len() int {
	return len(a.rows)
}

// Drain returns the buffered rows and resets the accumulator, reusing the
// underlying capacity for the next batch.
func (a *BatchAccumulator) Drain() []schema.StagingRow {
	out := make([]schema.StagingRow, len(a.rows))
	copy(out, a.rows)
	a.rows = a.rows[:0]
	return out
}
