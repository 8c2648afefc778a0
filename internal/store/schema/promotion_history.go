package schema

import (
	"time"

	"gorm.io/datatypes"
)

// HistoryOperation describes the kind of propagation event recorded
type HistoryOperation string

const (
	// HistoryOperationInsert is recorded for every staged row propagated into
	// the link table, whether the link was created or refreshed
	HistoryOperationInsert HistoryOperation = "insert"
)

// PromotionHistory represents the promotion_history table, an append-only
// audit log of every merge propagation event. Rows are never updated or
// deleted.
type PromotionHistory struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// UserID references users.id
	UserID int64 `gorm:"column:user_id;not null;index"`
	// PromotionID references promotions.id
	PromotionID int64 `gorm:"column:promotion_id;not null;index"`
	// Operation is the propagation event kind
	Operation HistoryOperation `gorm:"column:operation;not null;type:text"`
	// Rules is the rules snapshot carried by the staged row
	Rules *string `gorm:"column:rules;type:text"`
	// StartsAt is the validity window start carried by the staged row
	StartsAt *time.Time `gorm:"column:starts_at"`
	// EndsAt is the validity window end carried by the staged row
	EndsAt *time.Time `gorm:"column:ends_at"`
	// Meta carries import provenance (source filename, CSV line number)
	Meta datatypes.JSON `gorm:"column:meta;type:jsonb"`
	// CreatedAt is the timestamp the event was recorded
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
}

// TableName specifies the table name for the PromotionHistory model
func (PromotionHistory) TableName() string {
	return "promotion_history"
}
