package consolidation

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/quotehub-backend/internal/quotes"
	"github.com/angelmondragon/quotehub-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/quotehub-backend/pkg/db/types"
)

// BucketKey identifies a bucket inside a draft. A nil variant is its own bucket.
type BucketKey struct {
	ProductID uuid.UUID
	VariantID uuid.UUID
}

// NewBucketKey builds the key for a product and optional variant.
func NewBucketKey(productID uuid.UUID, variantID *uuid.UUID) BucketKey {
	key := BucketKey{ProductID: productID}
	if variantID != nil {
		key.VariantID = *variantID
	}
	return key
}

// VariantPtr returns the variant as stored, nil for the variant-less bucket.
func (k BucketKey) VariantPtr() *uuid.UUID {
	if k.VariantID == uuid.Nil {
		return nil
	}
	v := k.VariantID
	return &v
}

// Bucket is the aggregate of every accepted line sharing one BucketKey.
type Bucket struct {
	Key                BucketKey
	ProductName        string
	ProductSKU         *string
	VariantDescription *string
	ProductImageURL    *string
	Quantity           int
	UnitPriceCents     int
	SourceQuoteIDs     dbtypes.UUIDArray
}

// GroupAcceptedItems folds accepted quote lines into buckets, preserving the
// order in which keys were first seen. Quantities are summed; display fields
// and unit price come from the first contributing line, except the image
// which is the first non-empty one.
func GroupAcceptedItems(items []quotes.AcceptedItem) []Bucket {
	index := make(map[BucketKey]int, len(items))
	buckets := make([]Bucket, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		key := NewBucketKey(item.ProductID, item.VariantID)
		pos, ok := index[key]
		if !ok {
			index[key] = len(buckets)
			buckets = append(buckets, Bucket{
				Key:                key,
				ProductName:        item.ProductName,
				ProductSKU:         item.ProductSKU,
				VariantDescription: item.VariantDescription,
				ProductImageURL:    nonEmpty(item.ProductImageURL),
				Quantity:           item.Quantity,
				UnitPriceCents:     item.UnitPriceCents,
				SourceQuoteIDs:     dbtypes.UUIDArray{item.QuoteID},
			})
			continue
		}
		b := &buckets[pos]
		b.Quantity += item.Quantity
		if b.ProductImageURL == nil {
			b.ProductImageURL = nonEmpty(item.ProductImageURL)
		}
		b.SourceQuoteIDs = b.SourceQuoteIDs.With(item.QuoteID)
	}
	return buckets
}

// DiffBuckets returns the buckets whose key is not in existing.
func DiffBuckets(buckets []Bucket, existing []BucketKey) []Bucket {
	if len(existing) == 0 {
		return buckets
	}
	present := make(map[BucketKey]struct{}, len(existing))
	for _, key := range existing {
		present[key] = struct{}{}
	}
	out := make([]Bucket, 0, len(buckets))
	for _, b := range buckets {
		if _, ok := present[b.Key]; ok {
			continue
		}
		out = append(out, b)
	}
	return out
}

// ItemRows converts buckets into item rows for draftID.
func ItemRows(draftID uuid.UUID, buckets []Bucket) []models.ConsolidatedOrderItem {
	rows := make([]models.ConsolidatedOrderItem, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, models.ConsolidatedOrderItem{
			ID:                 uuid.New(),
			DraftID:            draftID,
			ProductID:          b.Key.ProductID,
			VariantID:          b.Key.VariantPtr(),
			ProductName:        b.ProductName,
			ProductSKU:         b.ProductSKU,
			VariantDescription: b.VariantDescription,
			ProductImageURL:    b.ProductImageURL,
			Quantity:           b.Quantity,
			UnitPriceCents:     b.UnitPriceCents,
			SubtotalCents:      models.Subtotal(b.Quantity, b.UnitPriceCents),
			SourceQuoteIDs:     b.SourceQuoteIDs.Clone(),
		})
	}
	return rows
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
