package schema

import (
	"time"
)

// User represents the users table - one row per enrolled player, keyed by
// the external numeric Smartico user id
type User struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// SmarticoUserID is the external numeric user identity; at most one row per id
	SmarticoUserID int64 `gorm:"column:smartico_user_id;not null;uniqueIndex"`
	// UserExtID is the operator-side user identifier
	UserExtID string `gorm:"column:user_ext_id;not null;type:text"`
	// CoreSmBrandID is the Smartico core brand id
	CoreSmBrandID int64 `gorm:"column:core_sm_brand_id;not null"`
	// CRMBrandID is the CRM-side brand id
	CRMBrandID int64 `gorm:"column:crm_brand_id;not null"`
	// ExtBrandID is the external brand identifier (free-form, not necessarily numeric)
	ExtBrandID string `gorm:"column:ext_brand_id;not null;type:text"`
	// CRMBrandName is the display name of the brand in the CRM
	CRMBrandName string `gorm:"column:crm_brand_name;not null;type:text"`
	// CreatedAt is the timestamp when this user was first imported
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
	// UpdatedAt is refreshed only under the last-write merge policy
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`

	// Associations
	Promotions []UserPromotion `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}
