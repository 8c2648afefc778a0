package rest

import (
	"encoding/json"
	"time"

	"github.com/smartico/promo-importer/internal/domain"
	"github.com/smartico/promo-importer/internal/store/schema"
)

// UserDTO is the REST representation of a user
type UserDTO struct {
	ID             int64     `json:"id"`
	SmarticoUserID int64     `json:"smarticoUserId"`
	UserExtID      string    `json:"userExtId"`
	CoreSmBrandID  int64     `json:"coreSmBrandId"`
	CRMBrandID     int64     `json:"crmBrandId"`
	ExtBrandID     string    `json:"extBrandId"`
	CRMBrandName   string    `json:"crmBrandName"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// PromotionDTO is the REST representation of a promotion
type PromotionDTO struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Rules     *string    `json:"rules,omitempty"`
	StartsAt  *time.Time `json:"startsAt,omitempty"`
	EndsAt    *time.Time `json:"endsAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// UserPromotionDTO is the REST representation of an enrollment
type UserPromotionDTO struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"userId"`
	PromotionID int64      `json:"promotionId"`
	StartsAt    *time.Time `json:"startsAt,omitempty"`
	EndsAt      *time.Time `json:"endsAt,omitempty"`
	Rules       *string    `json:"rules,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// HistoryEntryDTO is the REST representation of one audit record
type HistoryEntryDTO struct {
	ID          int64           `json:"id"`
	UserID      int64           `json:"userId"`
	PromotionID int64           `json:"promotionId"`
	Operation   string          `json:"operation"`
	Rules       *string         `json:"rules,omitempty"`
	StartsAt    *time.Time      `json:"startsAt,omitempty"`
	EndsAt      *time.Time      `json:"endsAt,omitempty"`
	Meta        json.RawMessage `json:"meta,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// HistoryPageDTO is a paginated history response
type HistoryPageDTO struct {
	Entries []HistoryEntryDTO `json:"entries"`
	Total   uint64            `json:"total"`
	Limit   int               `json:"limit"`
	Offset  uint64            `json:"offset"`
}

// ImportResultDTO is the response of a completed import run
type ImportResultDTO struct {
	Filename string             `json:"filename"`
	Stats    domain.ImportStats `json:"stats"`
}

func mapUser(u *schema.User) UserDTO {
	return UserDTO{
		ID:             u.ID,
		SmarticoUserID: u.SmarticoUserID,
		UserExtID:      u.UserExtID,
		CoreSmBrandID:  u.CoreSmBrandID,
		CRMBrandID:     u.CRMBrandID,
		ExtBrandID:     u.ExtBrandID,
		CRMBrandName:   u.CRMBrandName,
		CreatedAt:      u.CreatedAt,
		UpdatedAt:      u.UpdatedAt,
	}
}

func mapPromotion(p *schema.Promotion) PromotionDTO {
	return PromotionDTO{
		ID:        p.ID,
		Name:      p.Name,
		Rules:     p.Rules,
		StartsAt:  p.StartsAt,
		EndsAt:    p.EndsAt,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func mapUserPromotions(links []schema.UserPromotion) []UserPromotionDTO {
	out := make([]UserPromotionDTO, 0, len(links))
	for _, l := range links {
		out = append(out, UserPromotionDTO{
			ID:          l.ID,
			UserID:      l.UserID,
			PromotionID: l.PromotionID,
			StartsAt:    l.StartsAt,
			EndsAt:      l.EndsAt,
			Rules:       l.Rules,
			Status:      string(l.Status),
			CreatedAt:   l.CreatedAt,
			UpdatedAt:   l.UpdatedAt,
		})
	}
	return out
}

func mapHistory(entries []schema.PromotionHistory) []HistoryEntryDTO {
	out := make([]HistoryEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntryDTO{
			ID:          e.ID,
			UserID:      e.UserID,
			PromotionID: e.PromotionID,
			Operation:   string(e.Operation),
			Rules:       e.Rules,
			StartsAt:    e.StartsAt,
			EndsAt:      e.EndsAt,
			Meta:        json.RawMessage(e.Meta),
			CreatedAt:   e.CreatedAt,
		})
	}
	return out
}
