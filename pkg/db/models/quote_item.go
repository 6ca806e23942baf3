package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/quotehub-backend/pkg/enums"
)

// QuoteItem is a priced line of a quote. OriginReplicatedCatalogID is set when
// the line was quoted from a hybrid catalog and originates elsewhere.
type QuoteItem struct {
	ID                        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	QuoteID                   uuid.UUID       `gorm:"column:quote_id;type:uuid;not null"`
	ProductID                 uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	VariantID                 *uuid.UUID      `gorm:"column:variant_id;type:uuid"`
	ProductName               string          `gorm:"column:product_name;not null"`
	ProductSKU                *string         `gorm:"column:product_sku"`
	VariantDescription        *string         `gorm:"column:variant_description"`
	ProductImageURL           *string         `gorm:"column:product_image_url"`
	Quantity                  int             `gorm:"column:quantity;not null"`
	UnitPriceCents            int             `gorm:"column:unit_price_cents;not null"`
	SubtotalCents             int             `gorm:"column:subtotal_cents;not null"`
	PriceType                 enums.PriceType `gorm:"column:price_type;type:text;not null;default:'retail'"`
	OriginReplicatedCatalogID *uuid.UUID      `gorm:"column:origin_replicated_catalog_id;type:uuid"`
	CreatedAt                 time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (QuoteItem) TableName() string { return "quote_items" }
