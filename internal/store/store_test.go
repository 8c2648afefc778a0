package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartico/promo-importer/internal/domain"
	"github.com/smartico/promo-importer/internal/store/schema"
)

// =============================================================================
// Test Data Builders
// =============================================================================

func strPtr(s string) *string {
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}

var (
	testWindowStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	testWindowEnd   = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
)

// buildStagingRow creates a staged row with sensible identity defaults
func buildStagingRow(filename string, line int, smarticoID int64, promotionName string) schema.StagingRow {
	return schema.StagingRow{
		Filename:       filename,
		LineNumber:     line,
		SmarticoUserID: smarticoID,
		UserExtID:      "ext-user",
		CoreSmBrandID:  100,
		CRMBrandID:     200,
		ExtBrandID:     "brand-ext",
		CRMBrandName:   "Brand One",
		PromotionName:  promotionName,
		Rules:          strPtr("deposit 10 get 20"),
		StartsAt:       timePtr(testWindowStart),
		EndsAt:         timePtr(testWindowEnd),
	}
}

// =============================================================================
// Test: ProcessBatch
// =============================================================================

func testProcessBatch(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("creates users, promotions, links and history", func(t *testing.T) {
		filename := "batch-create.csv"
		rows := []schema.StagingRow{
			buildStagingRow(filename, 2, 1001, "Welcome Bonus"),
			buildStagingRow(filename, 3, 1002, "Welcome Bonus"),
			buildStagingRow(filename, 4, 1003, "VIP Reload"),
		}

		result, err := store.ProcessBatch(ctx, filename, rows, domain.MergePolicyFirstWrite, false)
		require.NoError(t, err)
		assert.Equal(t, int64(3), result.NewUsers)
		assert.Equal(t, int64(2), result.NewPromotions)
		assert.Equal(t, int64(3), result.NewUserPromotions)

		// Users are keyed by the external numeric id
		user, err := store.GetUserBySmarticoID(ctx, 1001)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "ext-user", user.UserExtID)
		assert.Equal(t, "Brand One", user.CRMBrandName)

		// Promotion carries the window and rules of the staged row
		promotion, err := store.GetPromotionByName(ctx, "Welcome Bonus")
		require.NoError(t, err)
		require.NotNil(t, promotion)
		require.NotNil(t, promotion.Rules)
		assert.Equal(t, "deposit 10 get 20", *promotion.Rules)
		require.NotNil(t, promotion.StartsAt)
		assert.True(t, promotion.StartsAt.Equal(testWindowStart))

		// Each user holds exactly one enrollment
		links, err := store.ListUserPromotions(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.Equal(t, promotion.ID, links[0].PromotionID)
		assert.Equal(t, schema.UserPromotionStatusActive, links[0].Status)

		// History carries import provenance in meta
		entries, total, err := store.ListHistory(ctx, promotion.ID, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(2), total)
		require.Len(t, entries, 2)

		var meta map[string]any
		require.NoError(t, json.Unmarshal(entries[0].Meta, &meta))
		assert.Equal(t, filename, meta["filename"])

		// Standard path flags staging rows processed and keeps them
		processed := true
		count, err := store.CountStagingRows(ctx, filename, &processed)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)

		unprocessed := false
		count, err = store.CountStagingRows(ctx, filename, &unprocessed)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})

	t.Run("purge path removes consumed staging rows", func(t *testing.T) {
		filename := "batch-purge.csv"
		rows := []schema.StagingRow{
			buildStagingRow(filename, 2, 2001, "Spring Promo"),
		}

		_, err := store.ProcessBatch(ctx, filename, rows, domain.MergePolicyFirstWrite, true)
		require.NoError(t, err)

		count, err := store.CountStagingRows(ctx, filename, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		result, err := store.ProcessBatch(ctx, "empty.csv", nil, domain.MergePolicyFirstWrite, false)
		require.NoError(t, err)
		assert.Equal(t, MergeResult{}, result)
	})

	t.Run("unknown policy is rejected", func(t *testing.T) {
		rows := []schema.StagingRow{
			buildStagingRow("bad-policy.csv", 2, 2002, "Spring Promo"),
		}

		_, err := store.ProcessBatch(ctx, "bad-policy.csv", rows, domain.MergePolicy("newest"), false)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrUnknownMergePolicy)
	})
}

// =============================================================================
// Test: idempotent re-import
// =============================================================================

func testReimportIdempotence(t *testing.T, store Store) {
	ctx := context.Background()

	first := []schema.StagingRow{
		buildStagingRow("run-1.csv", 2, 3001, "Reload Bonus"),
		buildStagingRow("run-1.csv", 3, 3002, "Reload Bonus"),
	}
	result, err := store.ProcessBatch(ctx, "run-1.csv", first, domain.MergePolicyFirstWrite, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.NewUsers)
	assert.Equal(t, int64(1), result.NewPromotions)
	assert.Equal(t, int64(2), result.NewUserPromotions)

	// The same data imported again creates nothing new
	second := []schema.StagingRow{
		buildStagingRow("run-2.csv", 2, 3001, "Reload Bonus"),
		buildStagingRow("run-2.csv", 3, 3002, "Reload Bonus"),
	}
	result, err = store.ProcessBatch(ctx, "run-2.csv", second, domain.MergePolicyFirstWrite, false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.NewUsers)
	assert.Equal(t, int64(0), result.NewPromotions)
	assert.Equal(t, int64(0), result.NewUserPromotions)

	// No duplicate links were created
	user, err := store.GetUserBySmarticoID(ctx, 3001)
	require.NoError(t, err)
	require.NotNil(t, user)
	links, err := store.ListUserPromotions(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, links, 1)

	// History is append-only: both runs are recorded
	promotion, err := store.GetPromotionByName(ctx, "Reload Bonus")
	require.NoError(t, err)
	require.NotNil(t, promotion)
	_, total, err := store.ListHistory(ctx, promotion.ID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), total)
}

// =============================================================================
// Test: merge policies
// =============================================================================

func testMergePolicies(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("first-write keeps original identity fields", func(t *testing.T) {
		original := buildStagingRow("fw-1.csv", 2, 4001, "Promo A")
		original.CRMBrandName = "Original Brand"
		_, err := store.ProcessBatch(ctx, "fw-1.csv", []schema.StagingRow{original}, domain.MergePolicyFirstWrite, false)
		require.NoError(t, err)

		update := buildStagingRow("fw-2.csv", 2, 4001, "Promo A")
		update.CRMBrandName = "Renamed Brand"
		result, err := store.ProcessBatch(ctx, "fw-2.csv", []schema.StagingRow{update}, domain.MergePolicyFirstWrite, false)
		require.NoError(t, err)
		assert.Equal(t, int64(0), result.NewUsers)

		user, err := store.GetUserBySmarticoID(ctx, 4001)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "Original Brand", user.CRMBrandName)
	})

	t.Run("last-write overwrites identity fields", func(t *testing.T) {
		original := buildStagingRow("lw-1.csv", 2, 4002, "Promo B")
		original.CRMBrandName = "Original Brand"
		_, err := store.ProcessBatch(ctx, "lw-1.csv", []schema.StagingRow{original}, domain.MergePolicyLastWrite, false)
		require.NoError(t, err)

		update := buildStagingRow("lw-2.csv", 2, 4002, "Promo B")
		update.CRMBrandName = "Renamed Brand"
		result, err := store.ProcessBatch(ctx, "lw-2.csv", []schema.StagingRow{update}, domain.MergePolicyLastWrite, false)
		require.NoError(t, err)
		assert.Equal(t, int64(0), result.NewUsers)

		user, err := store.GetUserBySmarticoID(ctx, 4002)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "Renamed Brand", user.CRMBrandName)
	})

	t.Run("duplicate ids within one batch resolve by line order", func(t *testing.T) {
		rowA := buildStagingRow("dup-fw.csv", 2, 4003, "Promo C")
		rowA.UserExtID = "first-line"
		rowB := buildStagingRow("dup-fw.csv", 3, 4003, "Promo C")
		rowB.UserExtID = "last-line"

		result, err := store.ProcessBatch(ctx, "dup-fw.csv", []schema.StagingRow{rowA, rowB}, domain.MergePolicyFirstWrite, false)
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.NewUsers)

		user, err := store.GetUserBySmarticoID(ctx, 4003)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "first-line", user.UserExtID)

		rowC := buildStagingRow("dup-lw.csv", 2, 4004, "Promo C")
		rowC.UserExtID = "first-line"
		rowD := buildStagingRow("dup-lw.csv", 3, 4004, "Promo C")
		rowD.UserExtID = "last-line"

		_, err = store.ProcessBatch(ctx, "dup-lw.csv", []schema.StagingRow{rowC, rowD}, domain.MergePolicyLastWrite, false)
		require.NoError(t, err)

		user, err = store.GetUserBySmarticoID(ctx, 4004)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "last-line", user.UserExtID)
	})
}

// =============================================================================
// Test: promotion upsert semantics
// =============================================================================

func testPromotionUpsert(t *testing.T, store Store) {
	ctx := context.Background()

	original := buildStagingRow("promo-1.csv", 2, 5001, "Summer Promo")
	_, err := store.ProcessBatch(ctx, "promo-1.csv", []schema.StagingRow{original}, domain.MergePolicyFirstWrite, false)
	require.NoError(t, err)

	// Re-import without rules and with a new window start: incoming nulls
	// never clobber existing values, incoming non-nulls do.
	newStart := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	update := buildStagingRow("promo-2.csv", 2, 5001, "Summer Promo")
	update.Rules = nil
	update.StartsAt = timePtr(newStart)
	update.EndsAt = nil

	result, err := store.ProcessBatch(ctx, "promo-2.csv", []schema.StagingRow{update}, domain.MergePolicyFirstWrite, false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.NewPromotions)

	promotion, err := store.GetPromotionByName(ctx, "Summer Promo")
	require.NoError(t, err)
	require.NotNil(t, promotion)
	require.NotNil(t, promotion.Rules)
	assert.Equal(t, "deposit 10 get 20", *promotion.Rules)
	require.NotNil(t, promotion.StartsAt)
	assert.True(t, promotion.StartsAt.Equal(newStart))
	require.NotNil(t, promotion.EndsAt)
	assert.True(t, promotion.EndsAt.Equal(testWindowEnd))
}

// =============================================================================
// Test: staging lifecycle
// =============================================================================

func testStagingLifecycle(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("StageRows inserts without merging", func(t *testing.T) {
		rows := []schema.StagingRow{
			buildStagingRow("stage-only.csv", 2, 6001, "Promo D"),
			buildStagingRow("stage-only.csv", 3, 6002, "Promo D"),
		}

		staged, err := store.StageRows(ctx, rows)
		require.NoError(t, err)
		assert.Equal(t, int64(2), staged)

		count, err := store.CountStagingRows(ctx, "stage-only.csv", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		// Nothing propagated yet
		user, err := store.GetUserBySmarticoID(ctx, 6001)
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("MergeStaged consumes previously staged rows", func(t *testing.T) {
		rows := []schema.StagingRow{
			buildStagingRow("stage-merge.csv", 2, 6003, "Promo E"),
		}
		_, err := store.StageRows(ctx, rows)
		require.NoError(t, err)

		result, err := store.MergeStaged(ctx, "stage-merge.csv", domain.MergePolicyFirstWrite, false)
		require.NoError(t, err)
		assert.Equal(t, int64(1), result.NewUsers)

		// A second merge of the same run finds nothing unprocessed
		result, err = store.MergeStaged(ctx, "stage-merge.csv", domain.MergePolicyFirstWrite, false)
		require.NoError(t, err)
		assert.Equal(t, MergeResult{}, result)
	})

	t.Run("PurgeStagingBefore enforces retention", func(t *testing.T) {
		rows := []schema.StagingRow{
			buildStagingRow("stage-retention.csv", 2, 6004, "Promo F"),
		}
		_, err := store.StageRows(ctx, rows)
		require.NoError(t, err)

		// A cutoff in the past removes nothing
		purged, err := store.PurgeStagingBefore(ctx, time.Now().Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(0), purged)

		count, err := store.CountStagingRows(ctx, "stage-retention.csv", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		// A future cutoff removes the staged row
		purged, err = store.PurgeStagingBefore(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, purged, int64(1))

		count, err = store.CountStagingRows(ctx, "stage-retention.csv", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})
}

// =============================================================================
// Test: read surface
// =============================================================================

func testReadMethods(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("missing records return nil without error", func(t *testing.T) {
		user, err := store.GetUserBySmarticoID(ctx, 999999)
		require.NoError(t, err)
		assert.Nil(t, user)

		promotion, err := store.GetPromotionByName(ctx, "no such promotion")
		require.NoError(t, err)
		assert.Nil(t, promotion)
	})

	t.Run("history pagination", func(t *testing.T) {
		for i := range 3 {
			filename := "hist-" + string(rune('a'+i)) + ".csv"
			rows := []schema.StagingRow{
				buildStagingRow(filename, 2, 7001, "Paged Promo"),
			}
			_, err := store.ProcessBatch(ctx, filename, rows, domain.MergePolicyFirstWrite, false)
			require.NoError(t, err)
		}

		promotion, err := store.GetPromotionByName(ctx, "Paged Promo")
		require.NoError(t, err)
		require.NotNil(t, promotion)

		entries, total, err := store.ListHistory(ctx, promotion.ID, 2, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), total)
		require.Len(t, entries, 2)

		// Newest first
		assert.Greater(t, entries[0].ID, entries[1].ID)

		rest, total, err := store.ListHistory(ctx, promotion.ID, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, uint64(3), total)
		assert.Len(t, rest, 1)
	})
}

// =============================================================================
// Suite runner
// =============================================================================

func RunStoreTests(t *testing.T, initDB func(t *testing.T) Store, cleanupDB func(t *testing.T)) {
	tests := []struct {
		name string
		fn   func(*testing.T, Store)
	}{
		{"ProcessBatch", testProcessBatch},
		{"ReimportIdempotence", testReimportIdempotence},
		{"MergePolicies", testMergePolicies},
		{"PromotionUpsert", testPromotionUpsert},
		{"StagingLifecycle", testStagingLifecycle},
		{"ReadMethods", testReadMethods},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := initDB(t)
			defer cleanupDB(t)
			tt.fn(t, store)
		})
	}
}
