package consolidation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/quotehub-backend/pkg/db/models"
	"github.com/angelmondragon/quotehub-backend/pkg/enums"
	pkgpagination "github.com/angelmondragon/quotehub-backend/pkg/pagination"
)

// GetOrCreateInput identifies the (distributor, supplier) pair and the
// catalogs the draft aggregates from.
type GetOrCreateInput struct {
	DistributorID             uuid.UUID
	SupplierID                uuid.UUID
	SourceCatalogID           uuid.UUID
	SourceReplicatedCatalogID uuid.UUID
}

// AddProductInput describes a manually added bucket. Subtotal is always derived.
type AddProductInput struct {
	ProductID          uuid.UUID
	VariantID          *uuid.UUID
	ProductName        string
	ProductSKU         *string
	VariantDescription *string
	ProductImageURL    *string
	Quantity           int
	UnitPriceCents     int
}

// SendInput converts a draft. An empty DeliveryMethod uses the configured default.
type SendInput struct {
	DraftID        uuid.UUID
	DistributorID  uuid.UUID
	DeliveryMethod enums.DeliveryMethod
}

// DraftFilters narrows ListDrafts.
type DraftFilters struct {
	Status     *enums.ConsolidatedOrderStatus
	SupplierID *uuid.UUID
}

// ListParams are the ListDrafts inputs.
type ListParams struct {
	DistributorID uuid.UUID
	Filters       DraftFilters
	pkgpagination.Params
}

// Totals are computed from the draft's items, never stored.
type Totals struct {
	ItemCount     int    `json:"item_count"`
	TotalQuantity int    `json:"total_quantity"`
	TotalCents    int    `json:"total_cents"`
	Total         string `json:"total"`
}

type Draft struct {
	ID                        uuid.UUID                     `json:"id"`
	DistributorID             uuid.UUID                     `json:"distributor_id"`
	SupplierID                uuid.UUID                     `json:"supplier_id"`
	SupplierName              string                        `json:"supplier_name"`
	SourceCatalogID           uuid.UUID                     `json:"source_catalog_id"`
	SourceReplicatedCatalogID uuid.UUID                     `json:"source_replicated_catalog_id"`
	Status                    enums.ConsolidatedOrderStatus `json:"status"`
	LinkedQuoteID             *uuid.UUID                    `json:"linked_quote_id,omitempty"`
	Notes                     *string                       `json:"notes,omitempty"`
	SentAt                    *time.Time                    `json:"sent_at,omitempty"`
	CancelledAt               *time.Time                    `json:"cancelled_at,omitempty"`
	CreatedAt                 time.Time                     `json:"created_at"`
	UpdatedAt                 time.Time                     `json:"updated_at"`
	Totals                    Totals                        `json:"totals"`
}

type Item struct {
	ID                 uuid.UUID   `json:"id"`
	DraftID            uuid.UUID   `json:"draft_id"`
	ProductID          uuid.UUID   `json:"product_id"`
	VariantID          *uuid.UUID  `json:"variant_id,omitempty"`
	ProductName        string      `json:"product_name"`
	ProductSKU         *string     `json:"product_sku,omitempty"`
	VariantDescription *string     `json:"variant_description,omitempty"`
	ProductImageURL    *string     `json:"product_image_url,omitempty"`
	Quantity           int         `json:"quantity"`
	UnitPriceCents     int         `json:"unit_price_cents"`
	SubtotalCents      int         `json:"subtotal_cents"`
	Subtotal           string      `json:"subtotal"`
	SourceQuoteIDs     []uuid.UUID `json:"source_quote_ids"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// DraftDetail is a draft with its buckets.
type DraftDetail struct {
	Draft
	Items []Item `json:"items"`
}

type DraftList struct {
	Drafts []Draft `json:"drafts"`
	Cursor string  `json:"cursor,omitempty"`
}

// SyncResult reports how many buckets a sync inserted and how many already
// existed on the draft and were left untouched.
type SyncResult struct {
	Draft    *DraftDetail `json:"draft"`
	Inserted int          `json:"inserted"`
	Skipped  int          `json:"skipped"`
}

type SendResult struct {
	QuoteID uuid.UUID `json:"quote_id"`
	Draft   *Draft    `json:"draft"`
}

type listQuery struct {
	distributorID uuid.UUID
	status        *enums.ConsolidatedOrderStatus
	supplierID    *uuid.UUID
	limit         int
	cursor        *pkgpagination.Cursor
}

// FormatCents renders minor units as a fixed two-decimal amount.
func FormatCents(cents int) string {
	return decimal.New(int64(cents), -2).StringFixed(2)
}

func newTotals(itemCount, quantity, cents int) Totals {
	return Totals{
		ItemCount:     itemCount,
		TotalQuantity: quantity,
		TotalCents:    cents,
		Total:         FormatCents(cents),
	}
}

func totalsFromItems(items []models.ConsolidatedOrderItem) Totals {
	quantity, cents := 0, 0
	for _, item := range items {
		quantity += item.Quantity
		cents += item.SubtotalCents
	}
	return newTotals(len(items), quantity, cents)
}

func toDraft(d models.ConsolidatedOrderDraft, supplierName string, totals Totals) *Draft {
	return &Draft{
		ID:                        d.ID,
		DistributorID:             d.DistributorID,
		SupplierID:                d.SupplierID,
		SupplierName:              supplierName,
		SourceCatalogID:           d.SourceCatalogID,
		SourceReplicatedCatalogID: d.SourceReplicatedCatalogID,
		Status:                    d.Status,
		LinkedQuoteID:             d.LinkedQuoteID,
		Notes:                     d.Notes,
		SentAt:                    d.SentAt,
		CancelledAt:               d.CancelledAt,
		CreatedAt:                 d.CreatedAt,
		UpdatedAt:                 d.UpdatedAt,
		Totals:                    totals,
	}
}

func toItem(m models.ConsolidatedOrderItem) *Item {
	sources := make([]uuid.UUID, len(m.SourceQuoteIDs))
	copy(sources, m.SourceQuoteIDs)
	return &Item{
		ID:                 m.ID,
		DraftID:            m.DraftID,
		ProductID:          m.ProductID,
		VariantID:          m.VariantID,
		ProductName:        m.ProductName,
		ProductSKU:         m.ProductSKU,
		VariantDescription: m.VariantDescription,
		ProductImageURL:    m.ProductImageURL,
		Quantity:           m.Quantity,
		UnitPriceCents:     m.UnitPriceCents,
		SubtotalCents:      m.SubtotalCents,
		Subtotal:           FormatCents(m.SubtotalCents),
		SourceQuoteIDs:     sources,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func toDetail(d models.ConsolidatedOrderDraft, supplierName string, items []models.ConsolidatedOrderItem) *DraftDetail {
	detail := &DraftDetail{
		Draft: *toDraft(d, supplierName, totalsFromItems(items)),
		Items: make([]Item, 0, len(items)),
	}
	for _, item := range items {
		detail.Items = append(detail.Items, *toItem(item))
	}
	return detail
}
