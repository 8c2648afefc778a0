package schema

import (
	"time"
)

// Promotion represents the promotions table. The name carries a global
// uniqueness constraint; re-imports of the same name must update this row,
// never create a second one.
type Promotion struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Name is the promotion name, globally unique
	Name string `gorm:"column:name;not null;uniqueIndex;type:text"`
	// Rules is the free-text rules description (nil when the source omitted it)
	Rules *string `gorm:"column:rules;type:text"`
	// StartsAt is the beginning of the promotion validity window
	StartsAt *time.Time `gorm:"column:starts_at"`
	// EndsAt is the end of the promotion validity window
	EndsAt *time.Time `gorm:"column:ends_at"`
	// CreatedAt is the timestamp when this promotion was first imported
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
	// UpdatedAt is refreshed on every upsert that touches the row
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`

	// Associations
	UserPromotions []UserPromotion `gorm:"foreignKey:PromotionID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the Promotion model
func (Promotion) TableName() string {
	return "promotions"
}
