package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/quotehub-backend/pkg/db/types"
)

// ConsolidatedOrderItem is one (product, variant) bucket inside a draft.
type ConsolidatedOrderItem struct {
	ID                 uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DraftID            uuid.UUID         `gorm:"column:draft_id;type:uuid;not null"`
	ProductID          uuid.UUID         `gorm:"column:product_id;type:uuid;not null"`
	VariantID          *uuid.UUID        `gorm:"column:variant_id;type:uuid"`
	ProductName        string            `gorm:"column:product_name;not null"`
	ProductSKU         *string           `gorm:"column:product_sku"`
	VariantDescription *string           `gorm:"column:variant_description"`
	ProductImageURL    *string           `gorm:"column:product_image_url"`
	Quantity           int               `gorm:"column:quantity;not null"`
	UnitPriceCents     int               `gorm:"column:unit_price_cents;not null"`
	SubtotalCents      int               `gorm:"column:subtotal_cents;not null"`
	SourceQuoteIDs     dbtypes.UUIDArray `gorm:"column:source_quote_ids;type:uuid[];not null;default:'{}'"`
	CreatedAt          time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (ConsolidatedOrderItem) TableName() string { return "consolidated_order_items" }

// Subtotal is the only way a subtotal is derived.
func Subtotal(quantity, unitPriceCents int) int {
	return quantity * unitPriceCents
}
