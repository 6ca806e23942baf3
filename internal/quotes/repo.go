package quotes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/quotehub-backend/pkg/db/models"
	"github.com/angelmondragon/quotehub-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a quotes repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// ListAcceptedItemsForCatalog returns lines of accepted quotes received by
// recipientID whose origin resolves to replicatedCatalogID. A line carrying
// its own origin link (hybrid catalogs) wins over the parent quote's catalog.
// Quotes produced by consolidation are never fed back in.
func (r *repository) ListAcceptedItemsForCatalog(ctx context.Context, recipientID, replicatedCatalogID uuid.UUID) ([]AcceptedItem, error) {
	var rows []AcceptedItem
	err := r.db.WithContext(ctx).
		Table("quote_items AS qi").
		Select(`qi.product_id, qi.variant_id, qi.product_name, qi.product_sku,
			qi.variant_description, qi.product_image_url, qi.quantity, qi.unit_price_cents,
			qi.quote_id, q.status AS quote_status, q.recipient_user_id AS quote_owner_id,
			COALESCE(qi.origin_replicated_catalog_id, q.replicated_catalog_id) AS origin_catalog_ref`).
		Joins("JOIN quotes q ON q.id = qi.quote_id").
		Where("q.status = ?", enums.QuoteStatusAccepted).
		Where("q.recipient_user_id = ?", recipientID).
		Where("q.consolidated_draft_id IS NULL").
		Where("COALESCE(qi.origin_replicated_catalog_id, q.replicated_catalog_id) = ?", replicatedCatalogID).
		Order("q.created_at ASC").
		Order("q.id ASC").
		Order("qi.created_at ASC").
		Order("qi.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CreateQuote(ctx context.Context, quote *models.Quote) (*models.Quote, error) {
	if err := r.db.WithContext(ctx).Omit("Items").Create(quote).Error; err != nil {
		return nil, err
	}
	return quote, nil
}

func (r *repository) CreateQuoteItems(ctx context.Context, items []models.QuoteItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindQuote(ctx context.Context, quoteID uuid.UUID) (*models.Quote, error) {
	var quote models.Quote
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Where("id = ?", quoteID).
		First(&quote).Error
	if err != nil {
		return nil, err
	}
	return &quote, nil
}
