package importer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartico/promo-importer/internal/adapter"
	"github.com/smartico/promo-importer/internal/domain"
	"github.com/smartico/promo-importer/internal/store"
	"github.com/smartico/promo-importer/internal/store/schema"
)

// recordingStore captures ProcessBatch calls and returns canned results
type recordingStore struct {
	batches    [][]schema.StagingRow
	filenames  []string
	policies   []domain.MergePolicy
	purges     []bool
	failBatch  int // 1-based index of the batch that fails, 0 = never
	lastResult store.MergeResult
}

func (r *recordingStore) StageRows(_ context.Context, rows []schema.StagingRow) (int64, error) {
	return int64(len(rows)), nil
}

func (r *recordingStore) MergeStaged(_ context.Context, _ string, _ domain.MergePolicy, _ bool) (store.MergeResult, error) {
	return store.MergeResult{}, nil
}

func (r *recordingStore) ProcessBatch(_ context.Context, filename string, rows []schema.StagingRow, policy domain.MergePolicy, purge bool) (store.MergeResult, error) {
	r.batches = append(r.batches, rows)
	r.filenames = append(r.filenames, filename)
	r.policies = append(r.policies, policy)
	r.purges = append(r.purges, purge)

	if r.failBatch > 0 && len(r.batches) == r.failBatch {
		return store.MergeResult{}, errors.New("deadlock detected")
	}

	return r.lastResult, nil
}

func (r *recordingStore) GetUserBySmarticoID(_ context.Context, _ int64) (*schema.User, error) {
	return nil, nil
}

func (r *recordingStore) GetPromotionByName(_ context.Context, _ string) (*schema.Promotion, error) {
	return nil, nil
}

func (r *recordingStore) ListUserPromotions(_ context.Context, _ int64) ([]schema.UserPromotion, error) {
	return nil, nil
}

func (r *recordingStore) ListHistory(_ context.Context, _ int64, _ int, _ uint64) ([]schema.PromotionHistory, uint64, error) {
	return nil, 0, nil
}

func (r *recordingStore) CountStagingRows(_ context.Context, _ string, _ *bool) (int64, error) {
	return 0, nil
}

func (r *recordingStore) PurgeStagingBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

const testCSVHeader = "smartico_user_id,user_ext_id,core_sm_brand_id,crm_brand_id,ext_brand_id,crm_brand_name,promocao_nome,regras,data_inicio,data_fim\n"

func testCSVRow(smarticoID string) string {
	return smarticoID + ",ext-1,7,9,brand-x,Casino Lisboa,Promo A,regras,2026-03-01,2026-09-01\n"
}

func newTestImporter(cfg Config, st store.Store) *Importer {
	return New(cfg, st, adapter.NewFileSystem(), &fixedClock{now: testNow})
}

func TestImportStream(t *testing.T) {
	ctx := context.Background()

	t.Run("streams rows through batches", func(t *testing.T) {
		st := &recordingStore{lastResult: store.MergeResult{NewUsers: 1}}
		imp := newTestImporter(Config{BatchSize: 2}, st)

		csv := testCSVHeader + testCSVRow("1") + testCSVRow("2") + testCSVRow("3")
		stats, err := imp.ImportStream(ctx, strings.NewReader(csv), "upload.csv")
		require.NoError(t, err)

		assert.Equal(t, int64(3), stats.TotalRows)
		assert.Equal(t, int64(3), stats.ProcessedRows)
		assert.Empty(t, stats.Errors)

		// Two batches: a full one and the drained remainder
		require.Len(t, st.batches, 2)
		assert.Len(t, st.batches[0], 2)
		assert.Len(t, st.batches[1], 1)

		// Results are aggregated across batches
		assert.Equal(t, int64(2), stats.NewUsers)

		// Every staged row carries the run's filename
		assert.Equal(t, "upload.csv", st.batches[0][0].Filename)
		assert.Equal(t, []string{"upload.csv", "upload.csv"}, st.filenames)
	})

	t.Run("buffered rows never exceed the batch size", func(t *testing.T) {
		st := &recordingStore{}
		imp := newTestImporter(Config{BatchSize: 2}, st)

		var csv strings.Builder
		csv.WriteString(testCSVHeader)
		for range 9 {
			csv.WriteString(testCSVRow("5"))
		}

		_, err := imp.ImportStream(ctx, strings.NewReader(csv.String()), "big.csv")
		require.NoError(t, err)

		require.Len(t, st.batches, 5)
		for _, batch := range st.batches {
			assert.LessOrEqual(t, len(batch), 2)
		}
	})

	t.Run("defaults are applied", func(t *testing.T) {
		st := &recordingStore{}
		imp := newTestImporter(Config{}, st)

		csv := testCSVHeader + testCSVRow("1")
		_, err := imp.ImportStream(ctx, strings.NewReader(csv), "defaults.csv")
		require.NoError(t, err)

		require.Len(t, st.policies, 1)
		assert.Equal(t, domain.MergePolicyFirstWrite, st.policies[0])
		assert.False(t, st.purges[0])
	})

	t.Run("invalid rows are skipped, valid rows survive", func(t *testing.T) {
		st := &recordingStore{}
		imp := newTestImporter(Config{BatchSize: 10}, st)

		csv := testCSVHeader +
			testCSVRow("1") +
			"not-a-number,ext-1,7,9,brand-x,Casino Lisboa,Promo A,,,\n" +
			testCSVRow("3")

		stats, err := imp.ImportStream(ctx, strings.NewReader(csv), "mixed.csv")
		require.NoError(t, err)

		assert.Equal(t, int64(3), stats.TotalRows)
		assert.Equal(t, int64(2), stats.ProcessedRows)
		require.Len(t, stats.Errors, 1)
		assert.Contains(t, stats.Errors[0], "line 3")
		assert.Contains(t, stats.Errors[0], "smartico_user_id")

		require.Len(t, st.batches, 1)
		assert.Len(t, st.batches[0], 2)
	})

	t.Run("a failed batch does not stop later batches", func(t *testing.T) {
		st := &recordingStore{failBatch: 1}
		imp := newTestImporter(Config{BatchSize: 2}, st)

		csv := testCSVHeader + testCSVRow("1") + testCSVRow("2") + testCSVRow("3") + testCSVRow("4")
		stats, err := imp.ImportStream(ctx, strings.NewReader(csv), "partial.csv")
		require.NoError(t, err)

		assert.Equal(t, int64(4), stats.TotalRows)
		assert.Equal(t, int64(2), stats.ProcessedRows)
		require.Len(t, stats.Errors, 1)
		assert.Contains(t, stats.Errors[0], "batch 1")
		assert.Contains(t, stats.Errors[0], "deadlock detected")

		// Both batches were attempted
		assert.Len(t, st.batches, 2)
	})

	t.Run("missing header column aborts the import", func(t *testing.T) {
		st := &recordingStore{}
		imp := newTestImporter(Config{}, st)

		csv := "smartico_user_id,user_ext_id\n1,ext-1\n"
		_, err := imp.ImportStream(ctx, strings.NewReader(csv), "bad-header.csv")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidHeader)
		assert.Empty(t, st.batches)
	})

	t.Run("empty file aborts the import", func(t *testing.T) {
		st := &recordingStore{}
		imp := newTestImporter(Config{}, st)

		_, err := imp.ImportStream(ctx, strings.NewReader(""), "empty.csv")
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidHeader)
	})

	t.Run("header-only file yields empty stats", func(t *testing.T) {
		st := &recordingStore{}
		imp := newTestImporter(Config{}, st)

		stats, err := imp.ImportStream(ctx, strings.NewReader(testCSVHeader), "header-only.csv")
		require.NoError(t, err)
		assert.Equal(t, int64(0), stats.TotalRows)
		assert.Empty(t, stats.Errors)
		assert.Empty(t, st.batches)
	})
}

func TestImportFile(t *testing.T) {
	ctx := context.Background()

	t.Run("imports and removes the file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "run.csv")
		require.NoError(t, os.WriteFile(path, []byte(testCSVHeader+testCSVRow("1")), 0600))

		st := &recordingStore{}
		imp := newTestImporter(Config{}, st)

		stats, err := imp.ImportFile(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.TotalRows)

		// The filename scope is the base name, not the full path
		require.Len(t, st.filenames, 1)
		assert.Equal(t, "run.csv", st.filenames[0])

		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("removes the file even when the header is invalid", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "broken.csv")
		require.NoError(t, os.WriteFile(path, []byte("foo,bar\n1,2\n"), 0600))

		st := &recordingStore{}
		imp := newTestImporter(Config{}, st)

		_, err := imp.ImportFile(ctx, path)
		require.Error(t, err)

		_, statErr := os.Stat(path)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("missing file returns an error", func(t *testing.T) {
		st := &recordingStore{}
		imp := newTestImporter(Config{}, st)

		_, err := imp.ImportFile(ctx, filepath.Join(t.TempDir(), "nope.csv"))
		require.Error(t, err)
	})
}
