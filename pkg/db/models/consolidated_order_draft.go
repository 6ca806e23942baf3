package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/quotehub-backend/pkg/enums"
)

// ConsolidatedOrderDraft is a distributor's mutable purchase order toward one supplier.
type ConsolidatedOrderDraft struct {
	ID                        uuid.UUID                     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DistributorID             uuid.UUID                     `gorm:"column:distributor_id;type:uuid;not null"`
	SupplierID                uuid.UUID                     `gorm:"column:supplier_id;type:uuid;not null"`
	SourceCatalogID           uuid.UUID                     `gorm:"column:source_catalog_id;type:uuid;not null"`
	SourceReplicatedCatalogID uuid.UUID                     `gorm:"column:source_replicated_catalog_id;type:uuid;not null"`
	Status                    enums.ConsolidatedOrderStatus `gorm:"column:status;type:text;not null;default:'draft'"`
	LinkedQuoteID             *uuid.UUID                    `gorm:"column:linked_quote_id;type:uuid"`
	Notes                     *string                       `gorm:"column:notes"`
	SentAt                    *time.Time                    `gorm:"column:sent_at"`
	CancelledAt               *time.Time                    `gorm:"column:cancelled_at"`
	Items                     []ConsolidatedOrderItem       `gorm:"foreignKey:DraftID;constraint:OnDelete:CASCADE"`
	CreatedAt                 time.Time                     `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                 time.Time                     `gorm:"column:updated_at;autoUpdateTime"`
}

func (ConsolidatedOrderDraft) TableName() string { return "consolidated_order_drafts" }

// IsOpen reports whether the draft still accepts mutations.
func (d ConsolidatedOrderDraft) IsOpen() bool {
	return d.Status == enums.ConsolidatedOrderStatusDraft
}
