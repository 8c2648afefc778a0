package schema

import (
	"time"
)

// StagingRow represents the import_staging table, the transient landing area
// for freshly parsed CSV rows. Every row belongs to exactly one import run,
// identified by Filename. The merge engine either deletes consumed rows
// (optimized path) or flags them processed (standard path).
type StagingRow struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Filename scopes the row to one import run
	Filename string `gorm:"column:filename;not null;type:text;index:idx_import_staging_filename_processed,priority:1"`
	// LineNumber is the 1-based CSV line the row came from
	LineNumber int `gorm:"column:line_number;not null"`
	// SmarticoUserID is the external numeric user identity
	SmarticoUserID int64 `gorm:"column:smartico_user_id;not null"`
	// UserExtID is the operator-side user identifier
	UserExtID string `gorm:"column:user_ext_id;not null;type:text"`
	// CoreSmBrandID is the Smartico core brand id
	CoreSmBrandID int64 `gorm:"column:core_sm_brand_id;not null"`
	// CRMBrandID is the CRM-side brand id
	CRMBrandID int64 `gorm:"column:crm_brand_id;not null"`
	// ExtBrandID is the external brand identifier
	ExtBrandID string `gorm:"column:ext_brand_id;not null;type:text"`
	// CRMBrandName is the display name of the brand in the CRM
	CRMBrandName string `gorm:"column:crm_brand_name;not null;type:text"`
	// PromotionName is the target promotion; the parser guarantees it is
	// never empty (synthesized from the brand name when the source omits it)
	PromotionName string `gorm:"column:promotion_name;not null;type:text"`
	// Rules is the free-text rules description
	Rules *string `gorm:"column:rules;type:text"`
	// StartsAt is the validity window start
	StartsAt *time.Time `gorm:"column:starts_at"`
	// EndsAt is the validity window end
	EndsAt *time.Time `gorm:"column:ends_at"`
	// Processed marks rows already consumed by the merge engine (standard path)
	Processed bool `gorm:"column:processed;not null;default:false;index:idx_import_staging_filename_processed,priority:2"`
	// CreatedAt is the timestamp the row was staged
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
}

// TableName specifies the table name for the StagingRow model
func (StagingRow) TableName() string {
	return "import_staging"
}
