package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/quotehub-backend/pkg/enums"
)

// Quote is a price request between a requester and the catalog owner it was sent to.
type Quote struct {
	ID                  uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CatalogID           uuid.UUID            `gorm:"column:catalog_id;type:uuid;not null"`
	ReplicatedCatalogID *uuid.UUID           `gorm:"column:replicated_catalog_id;type:uuid"`
	RecipientUserID     uuid.UUID            `gorm:"column:recipient_user_id;type:uuid;not null"`
	RequesterUserID     *uuid.UUID           `gorm:"column:requester_user_id;type:uuid"`
	RequesterName       string               `gorm:"column:requester_name;not null"`
	RequesterEmail      string               `gorm:"column:requester_email;not null"`
	RequesterCompany    *string              `gorm:"column:requester_company"`
	RequesterPhone      *string              `gorm:"column:requester_phone"`
	Notes               *string              `gorm:"column:notes"`
	Status              enums.QuoteStatus    `gorm:"column:status;type:text;not null;default:'pending'"`
	DeliveryMethod      enums.DeliveryMethod `gorm:"column:delivery_method;type:text;not null"`
	ConsolidatedDraftID *uuid.UUID           `gorm:"column:consolidated_draft_id;type:uuid"`
	TotalCents          int                  `gorm:"column:total_cents;not null;default:0"`
	Items               []QuoteItem          `gorm:"foreignKey:QuoteID;constraint:OnDelete:CASCADE"`
	CreatedAt           time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (Quote) TableName() string { return "quotes" }
