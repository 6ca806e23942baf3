package quotes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/quotehub-backend/pkg/db/models"
	"github.com/angelmondragon/quotehub-backend/pkg/enums"
)

// Repository reads accepted quote lines and writes outbound quotes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListAcceptedItemsForCatalog(ctx context.Context, recipientID, replicatedCatalogID uuid.UUID) ([]AcceptedItem, error)
	CreateQuote(ctx context.Context, quote *models.Quote) (*models.Quote, error)
	CreateQuoteItems(ctx context.Context, items []models.QuoteItem) error
	FindQuote(ctx context.Context, quoteID uuid.UUID) (*models.Quote, error)
}

// AcceptedItem is a quote line joined with the parent quote fields the
// aggregation needs. OriginCatalogRef is the resolved origin replicated catalog.
type AcceptedItem struct {
	ProductID          uuid.UUID         `gorm:"column:product_id"`
	VariantID          *uuid.UUID        `gorm:"column:variant_id"`
	ProductName        string            `gorm:"column:product_name"`
	ProductSKU         *string           `gorm:"column:product_sku"`
	VariantDescription *string           `gorm:"column:variant_description"`
	ProductImageURL    *string           `gorm:"column:product_image_url"`
	Quantity           int               `gorm:"column:quantity"`
	UnitPriceCents     int               `gorm:"column:unit_price_cents"`
	QuoteID            uuid.UUID         `gorm:"column:quote_id"`
	QuoteStatus        enums.QuoteStatus `gorm:"column:quote_status"`
	QuoteOwnerID       uuid.UUID         `gorm:"column:quote_owner_id"`
	OriginCatalogRef   uuid.UUID         `gorm:"column:origin_catalog_ref"`
}
