package schema

import (
	"time"
)

// UserPromotionStatus represents the lifecycle state of an enrollment
type UserPromotionStatus string

const (
	// UserPromotionStatusActive is the state assigned on import
	UserPromotionStatusActive UserPromotionStatus = "active"
	// UserPromotionStatusInactive marks an enrollment disabled by an admin
	UserPromotionStatusInactive UserPromotionStatus = "inactive"
)

// UserPromotion represents the user_promotions join table, unique per
// (user_id, promotion_id) pair. Re-imports refresh the validity window and
// rules snapshot instead of duplicating the link.
type UserPromotion struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// UserID references users.id
	UserID int64 `gorm:"column:user_id;not null;uniqueIndex:idx_user_promotions_user_promotion,priority:1"`
	// PromotionID references promotions.id
	PromotionID int64 `gorm:"column:promotion_id;not null;uniqueIndex:idx_user_promotions_user_promotion,priority:2"`
	// StartsAt is the validity window start for this enrollment
	StartsAt *time.Time `gorm:"column:starts_at"`
	// EndsAt is the validity window end for this enrollment
	EndsAt *time.Time `gorm:"column:ends_at"`
	// Rules is the rules snapshot taken from the import row
	Rules *string `gorm:"column:rules;type:text"`
	// Status is the enrollment state
	Status UserPromotionStatus `gorm:"column:status;not null;type:text;default:active"`
	// CreatedAt is the timestamp when this link was first created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
	// UpdatedAt is refreshed on every upsert that touches the row
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`
}

// TableName specifies the table name for the UserPromotion model
func (UserPromotion) TableName() string {
	return "user_promotions"
}
