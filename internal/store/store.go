package store

import (
	"context"
	"time"

	"github.com/smartico/promo-importer/internal/domain"
	"github.com/smartico/promo-importer/internal/store/schema"
)

// MergeResult carries the creation counts of one merge pass. Updated rows are
// not counted; only rows that did not exist before the pass.
type MergeResult struct {
	NewUsers          int64
	NewPromotions     int64
	NewUserPromotions int64
}

// Store defines the interface for database operations
type Store interface {
	// StageRows bulk-inserts one parsed batch into the staging table using a
	// multi-row INSERT. Returns the number of rows staged.
	StageRows(ctx context.Context, rows []schema.StagingRow) (int64, error)

	// MergeStaged propagates the unprocessed staged rows of one import run
	// into users, promotions, user_promotions and promotion_history inside a
	// single transaction. With purge, consumed staging rows are deleted;
	// otherwise they are flagged processed and retained for audit.
	MergeStaged(ctx context.Context, filename string, policy domain.MergePolicy, purge bool) (MergeResult, error)

	// ProcessBatch stages a batch and merges it in one transaction, so a
	// failed batch leaves neither staging nor destination state behind.
	ProcessBatch(ctx context.Context, filename string, rows []schema.StagingRow, policy domain.MergePolicy, purge bool) (MergeResult, error)

	// GetUserBySmarticoID retrieves a user by the external numeric user id
	GetUserBySmarticoID(ctx context.Context, smarticoUserID int64) (*schema.User, error)

	// GetPromotionByName retrieves a promotion by its unique name
	GetPromotionByName(ctx context.Context, name string) (*schema.Promotion, error)

	// ListUserPromotions retrieves all enrollments of a user
	ListUserPromotions(ctx context.Context, userID int64) ([]schema.UserPromotion, error)

	// ListHistory retrieves audit records for a promotion, newest first
	ListHistory(ctx context.Context, promotionID int64, limit int, offset uint64) ([]schema.PromotionHistory, uint64, error)

	// CountStagingRows counts staging rows of one import run. A nil processed
	// filter counts all rows regardless of the processed flag.
	CountStagingRows(ctx context.Context, filename string, processed *bool) (int64, error)

	// PurgeStagingBefore deletes staging rows staged before the cutoff. This
	// covers processed rows past their audit retention and orphaned rows left
	// behind by aborted runs. Returns the number of rows deleted.
	PurgeStagingBefore(ctx context.Context, before time.Time) (int64, error)
}
