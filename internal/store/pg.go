package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/smartico/promo-importer/internal/domain"
	"github.com/smartico/promo-importer/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// Open connects to PostgreSQL with exponential-backoff retry, so binaries
// started before the database is ready do not crash-loop.
func Open(ctx context.Context, dsn string, maxElapsed time.Duration) (*gorm.DB, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = maxElapsed

	var db *gorm.DB
	operation := func() error {
		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to reasonable defaults.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings
// into safe values.
//
// Defaults (when zero):
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	// Ensure MaxIdleConns doesn't exceed MaxOpenConns
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// calculateSafeBatchSize computes the batch size for bulk inserts that stays
// under PostgreSQL's extended-protocol limit of 65535 parameters per query.
// Each staged record consumes one parameter per inserted field, plus a total
// headroom for statement-level overhead.
func calculateSafeBatchSize(totalRecords int, fieldsPerRecord int) int {
	const maxParams = 65535
	const totalHeadroom = 1000

	availableParams := maxParams - totalHeadroom
	safeBatchSize := max(availableParams/fieldsPerRecord, 1)

	if safeBatchSize > totalRecords {
		return totalRecords
	}

	return safeBatchSize
}

// stagingFieldCount is the number of insertable columns of import_staging
// (every column except the auto-increment id), used to size the multi-row
// INSERT.
const stagingFieldCount = 14

// StageRows bulk-inserts one parsed batch into import_staging
func (s *pgStore) StageRows(ctx context.Context, rows []schema.StagingRow) (int64, error) {
	return stageRows(s.db.WithContext(ctx), rows)
}

func stageRows(tx *gorm.DB, rows []schema.StagingRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	res := tx.CreateInBatches(rows, calculateSafeBatchSize(len(rows), stagingFieldCount))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to stage rows: %w", res.Error)
	}

	return res.RowsAffected, nil
}

// MergeStaged propagates the unprocessed staged rows of one import run into
// the four destination tables inside a single transaction
func (s *pgStore) MergeStaged(ctx context.Context, filename string, policy domain.MergePolicy, purge bool) (MergeResult, error) {
	var result MergeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = mergeStaged(tx, filename, policy, purge)
		return err
	})
	return result, err
}

// ProcessBatch stages a batch and merges it in one transaction
func (s *pgStore) ProcessBatch(ctx context.Context, filename string, rows []schema.StagingRow, policy domain.MergePolicy, purge bool) (MergeResult, error) {
	var result MergeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := stageRows(tx, rows); err != nil {
			return err
		}

		var err error
		result, err = mergeStaged(tx, filename, policy, purge)
		return err
	})
	return result, err
}

func mergeStaged(tx *gorm.DB, filename string, policy domain.MergePolicy, purge bool) (MergeResult, error) {
	var result MergeResult

	// 1. User merge: distinct identity tuples upserted by smartico_user_id.
	// The conflict policy decides whether the first or the last import of an
	// id owns its identity fields.
	newUsers, err := mergeUsers(tx, filename, policy)
	if err != nil {
		return result, fmt.Errorf("failed to merge users: %w", err)
	}
	result.NewUsers = newUsers

	// 2. Promotion merge: distinct promotion tuples upserted by name. The
	// unique name constraint is what prevents duplicate promotions across
	// re-imports; incoming nulls never clobber existing values.
	var newPromotions int64
	err = tx.Raw(`
		WITH merged AS (
			INSERT INTO promotions (name, rules, starts_at, ends_at)
			SELECT DISTINCT ON (s.promotion_name)
			       s.promotion_name, s.rules, s.starts_at, s.ends_at
			FROM import_staging s
			WHERE s.filename = ? AND s.processed = false AND s.promotion_name <> ''
			ORDER BY s.promotion_name, s.line_number DESC
			ON CONFLICT (name) DO UPDATE SET
				rules = COALESCE(EXCLUDED.rules, promotions.rules),
				starts_at = COALESCE(EXCLUDED.starts_at, promotions.starts_at),
				ends_at = COALESCE(EXCLUDED.ends_at, promotions.ends_at),
				updated_at = now()
			RETURNING (xmax = 0) AS inserted
		)
		SELECT COUNT(*) FILTER (WHERE inserted) FROM merged
	`, filename).Scan(&newPromotions).Error
	if err != nil {
		return result, fmt.Errorf("failed to merge promotions: %w", err)
	}
	result.NewPromotions = newPromotions

	// 3. Link merge: staging rows joined to the just-merged promotions by
	// name, upserted by (user_id, promotion_id).
	var newLinks int64
	err = tx.Raw(`
		WITH merged AS (
			INSERT INTO user_promotions (user_id, promotion_id, starts_at, ends_at, rules, status)
			SELECT DISTINCT ON (u.id, p.id)
			       u.id, p.id, s.starts_at, s.ends_at, s.rules, 'active'
			FROM import_staging s
			JOIN users u ON u.smartico_user_id = s.smartico_user_id
			JOIN promotions p ON p.name = s.promotion_name
			WHERE s.filename = ? AND s.processed = false
			ORDER BY u.id, p.id, s.line_number DESC
			ON CONFLICT (user_id, promotion_id) DO UPDATE SET
				starts_at = COALESCE(EXCLUDED.starts_at, user_promotions.starts_at),
				ends_at = COALESCE(EXCLUDED.ends_at, user_promotions.ends_at),
				rules = COALESCE(EXCLUDED.rules, user_promotions.rules),
				updated_at = now()
			RETURNING (xmax = 0) AS inserted
		)
		SELECT COUNT(*) FILTER (WHERE inserted) FROM merged
	`, filename).Scan(&newLinks).Error
	if err != nil {
		return result, fmt.Errorf("failed to merge user promotions: %w", err)
	}
	result.NewUserPromotions = newLinks

	// 4. History append: one immutable record per (staging row, matched
	// promotion) pair, regardless of whether the link was created or updated.
	err = tx.Exec(`
		INSERT INTO promotion_history (user_id, promotion_id, operation, rules, starts_at, ends_at, meta)
		SELECT u.id, p.id, 'insert', s.rules, s.starts_at, s.ends_at,
		       jsonb_build_object('filename', s.filename, 'line', s.line_number)
		FROM import_staging s
		JOIN users u ON u.smartico_user_id = s.smartico_user_id
		JOIN promotions p ON p.name = s.promotion_name
		WHERE s.filename = ? AND s.processed = false
	`, filename).Error
	if err != nil {
		return result, fmt.Errorf("failed to append history: %w", err)
	}

	// Consume the staged rows: delete on the optimized path, flag processed
	// on the standard path so they stay queryable for audit.
	if purge {
		if err := tx.Where("filename = ? AND processed = false", filename).
			Delete(&schema.StagingRow{}).Error; err != nil {
			return result, fmt.Errorf("failed to purge staging rows: %w", err)
		}
	} else {
		if err := tx.Model(&schema.StagingRow{}).
			Where("filename = ? AND processed = false", filename).
			Update("processed", true).Error; err != nil {
			return result, fmt.Errorf("failed to flag staging rows: %w", err)
		}
	}

	return result, nil
}

// mergeUsers runs the user-merge step under the selected conflict policy
func mergeUsers(tx *gorm.DB, filename string, policy domain.MergePolicy) (int64, error) {
	switch policy {
	case domain.MergePolicyFirstWrite:
		// First occurrence in the file wins within the batch; existing rows
		// are left untouched. RowsAffected counts only insertions.
		res := tx.Exec(`
			INSERT INTO users (smartico_user_id, user_ext_id, core_sm_brand_id, crm_brand_id, ext_brand_id, crm_brand_name)
			SELECT DISTINCT ON (s.smartico_user_id)
			       s.smartico_user_id, s.user_ext_id, s.core_sm_brand_id, s.crm_brand_id, s.ext_brand_id, s.crm_brand_name
			FROM import_staging s
			WHERE s.filename = ? AND s.processed = false
			ORDER BY s.smartico_user_id, s.line_number
			ON CONFLICT (smartico_user_id) DO NOTHING
		`, filename)
		if res.Error != nil {
			return 0, res.Error
		}
		return res.RowsAffected, nil

	case domain.MergePolicyLastWrite:
		// Last occurrence in the file wins and overwrites existing identity
		// fields; xmax = 0 distinguishes inserts from updates.
		var newUsers int64
		err := tx.Raw(`
			WITH merged AS (
				INSERT INTO users (smartico_user_id, user_ext_id, core_sm_brand_id, crm_brand_id, ext_brand_id, crm_brand_name)
				SELECT DISTINCT ON (s.smartico_user_id)
				       s.smartico_user_id, s.user_ext_id, s.core_sm_brand_id, s.crm_brand_id, s.ext_brand_id, s.crm_brand_name
				FROM import_staging s
				WHERE s.filename = ? AND s.processed = false
				ORDER BY s.smartico_user_id, s.line_number DESC
				ON CONFLICT (smartico_user_id) DO UPDATE SET
					user_ext_id = EXCLUDED.user_ext_id,
					core_sm_brand_id = EXCLUDED.core_sm_brand_id,
					crm_brand_id = EXCLUDED.crm_brand_id,
					ext_brand_id = EXCLUDED.ext_brand_id,
					crm_brand_name = EXCLUDED.crm_brand_name,
					updated_at = now()
				RETURNING (xmax = 0) AS inserted
			)
			SELECT COUNT(*) FILTER (WHERE inserted) FROM merged
		`, filename).Scan(&newUsers).Error
		if err != nil {
			return 0, err
		}
		return newUsers, nil

	default:
		return 0, fmt.Errorf("%w: %q", domain.ErrUnknownMergePolicy, policy)
	}
}

// GetUserBySmarticoID retrieves a user by the external numeric user id
func (s *pgStore) GetUserBySmarticoID(ctx context.Context, smarticoUserID int64) (*schema.User, error) {
	var user schema.User
	err := s.db.WithContext(ctx).Where("smartico_user_id = ?", smarticoUserID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetPromotionByName retrieves a promotion by its unique name
func (s *pgStore) GetPromotionByName(ctx context.Context, name string) (*schema.Promotion, error) {
	var promotion schema.Promotion
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&promotion).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get promotion: %w", err)
	}
	return &promotion, nil
}

// ListUserPromotions retrieves all enrollments of a user
func (s *pgStore) ListUserPromotions(ctx context.Context, userID int64) ([]schema.UserPromotion, error) {
	var links []schema.UserPromotion
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list user promotions: %w", err)
	}
	return links, nil
}

// ListHistory retrieves audit records for a promotion, newest first
func (s *pgStore) ListHistory(ctx context.Context, promotionID int64, limit int, offset uint64) ([]schema.PromotionHistory, uint64, error) {
	query := s.db.WithContext(ctx).Model(&schema.PromotionHistory{}).Where("promotion_id = ?", promotionID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count history: %w", err)
	}

	query = query.Order("id DESC").Limit(limit).Offset(int(offset)) //nolint:gosec,G115

	var entries []schema.PromotionHistory
	if err := query.Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list history: %w", err)
	}

	return entries, uint64(total), nil //nolint:gosec,G115
}

// CountStagingRows counts staging rows of one import run
func (s *pgStore) CountStagingRows(ctx context.Context, filename string, processed *bool) (int64, error) {
	query := s.db.WithContext(ctx).Model(&schema.StagingRow{}).Where("filename = ?", filename)
	if processed != nil {
		query = query.Where("processed = ?", *processed)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count staging rows: %w", err)
	}

	return count, nil
}

// PurgeStagingBefore deletes staging rows staged before the cutoff
func (s *pgStore) PurgeStagingBefore(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&schema.StagingRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge staging rows: %w", res.Error)
	}

	return res.RowsAffected, nil
}
