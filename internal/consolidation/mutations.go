package consolidation

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/quotehub-backend/pkg/db"
	"github.com/angelmondragon/quotehub-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/quotehub-backend/pkg/db/types"
	pkgerrors "github.com/angelmondragon/quotehub-backend/pkg/errors"
)

const itemBucketIndex = "ux_consolidated_order_items_bucket"

// MaxItemQuantity bounds the quantity of a single bucket.
const MaxItemQuantity = 1_000_000

// maxCents is the largest amount the integer money columns hold.
const maxCents = math.MaxInt32

// UpdateQuantity sets an item's quantity and recomputes its subtotal.
func (s *service) UpdateQuantity(ctx context.Context, itemID uuid.UUID, quantity int, distributorID uuid.UUID) (item *Item, err error) {
	defer func(started time.Time) { s.observe("update_quantity", started, err) }(time.Now())

	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	if distributorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "distributor id required")
	}
	if err := validateQuantity(quantity); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, draft, err := s.loadOwnedItem(ctx, repo, itemID, distributorID)
		if err != nil {
			return err
		}
		if err := requireOpen(draft, "update_quantity"); err != nil {
			return err
		}
		item, err = s.setQuantity(ctx, repo, current, quantity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// RemoveItem deletes a bucket and returns the draft as it stands afterwards.
func (s *service) RemoveItem(ctx context.Context, itemID, distributorID uuid.UUID) (detail *DraftDetail, err error) {
	defer func(started time.Time) { s.observe("remove_item", started, err) }(time.Now())

	if itemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	if distributorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "distributor id required")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, draft, err := s.loadOwnedItem(ctx, repo, itemID, distributorID)
		if err != nil {
			return err
		}
		if err := requireOpen(draft, "remove_item"); err != nil {
			return err
		}
		if err := repo.DeleteItem(ctx, current.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete draft item")
		}
		if err := s.touch(ctx, repo, draft.ID); err != nil {
			return err
		}
		refreshed, err := repo.FindDraft(ctx, draft.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload draft")
		}
		detail, err = s.loadDetail(ctx, repo, s.profiles.WithTx(tx), *refreshed)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// AddProduct inserts a manual bucket or, when the bucket already exists, adds
// the quantity onto it at the bucket's current unit price.
func (s *service) AddProduct(ctx context.Context, draftID uuid.UUID, input AddProductInput, distributorID uuid.UUID) (item *Item, err error) {
	defer func(started time.Time) { s.observe("add_product", started, err) }(time.Now())

	if err := validateIDs(draftID, distributorID); err != nil {
		return nil, err
	}
	if err := validateAddProduct(input); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		draft, err := loadOwnedDraft(ctx, repo, draftID, distributorID, true)
		if err != nil {
			return err
		}
		if err := requireOpen(draft, "add_product"); err != nil {
			return err
		}

		key := NewBucketKey(input.ProductID, input.VariantID)
		existing, err := repo.FindItemByKey(ctx, draft.ID, key)
		switch {
		case err == nil:
			item, err = s.setQuantity(ctx, repo, existing, existing.Quantity+input.Quantity)
			return err
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load draft item")
		}

		row := &models.ConsolidatedOrderItem{
			ID:                 uuid.New(),
			DraftID:            draft.ID,
			ProductID:          input.ProductID,
			VariantID:          key.VariantPtr(),
			ProductName:        strings.TrimSpace(input.ProductName),
			ProductSKU:         input.ProductSKU,
			VariantDescription: input.VariantDescription,
			ProductImageURL:    nonEmpty(input.ProductImageURL),
			Quantity:           input.Quantity,
			UnitPriceCents:     input.UnitPriceCents,
			SubtotalCents:      models.Subtotal(input.Quantity, input.UnitPriceCents),
			SourceQuoteIDs:     dbtypes.UUIDArray{},
		}
		created, err := repo.CreateItem(ctx, row)
		if err != nil {
			if dbpkg.IsUniqueViolation(err, itemBucketIndex) {
				return pkgerrors.New(pkgerrors.CodeConflict, "item already added concurrently").
					WithDetails(pkgerrors.Details{"draft_id": draft.ID, "product_id": input.ProductID})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert draft item")
		}
		if err := s.touch(ctx, repo, draft.ID); err != nil {
			return err
		}
		item = toItem(*created)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateNotes replaces the draft notes. Blank text clears them.
func (s *service) UpdateNotes(ctx context.Context, draftID uuid.UUID, notes string, distributorID uuid.UUID) (updated *Draft, err error) {
	defer func(started time.Time) { s.observe("update_notes", started, err) }(time.Now())

	if err := validateIDs(draftID, distributorID); err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(notes)
	if n := utf8.RuneCountInString(trimmed); n > s.notesMax {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notes too long").
			WithDetails(pkgerrors.Details{"rule": "notes_max_length", "max": s.notesMax, "length": n})
	}
	var value *string
	if trimmed != "" {
		value = &trimmed
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		draft, err := loadOwnedDraft(ctx, repo, draftID, distributorID, true)
		if err != nil {
			return err
		}
		if err := requireOpen(draft, "update_notes"); err != nil {
			return err
		}
		now := s.now()
		if err := repo.UpdateDraft(ctx, draft.ID, map[string]any{"notes": value, "updated_at": now}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update draft notes")
		}
		draft.Notes = value
		draft.UpdatedAt = now

		items, err := repo.ListItems(ctx, draft.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load draft items")
		}
		name, err := s.supplierName(ctx, s.profiles.WithTx(tx), draft.SupplierID)
		if err != nil {
			return err
		}
		updated = toDraft(*draft, name, totalsFromItems(items))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *service) loadOwnedItem(ctx context.Context, repo Repository, itemID, distributorID uuid.UUID) (*models.ConsolidatedOrderItem, *models.ConsolidatedOrderDraft, error) {
	item, err := repo.FindItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "draft item not found").
				WithDetails(pkgerrors.Details{"item_id": itemID})
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load draft item")
	}
	draft, err := loadOwnedDraft(ctx, repo, item.DraftID, distributorID, true)
	if err != nil {
		return nil, nil, err
	}
	return item, draft, nil
}

func (s *service) setQuantity(ctx context.Context, repo Repository, item *models.ConsolidatedOrderItem, quantity int) (*Item, error) {
	if err := validateLine(quantity, item.UnitPriceCents); err != nil {
		return nil, err
	}
	subtotal := models.Subtotal(quantity, item.UnitPriceCents)
	if err := repo.UpdateItemQuantity(ctx, item.ID, quantity, subtotal); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update item quantity")
	}
	if err := s.touch(ctx, repo, item.DraftID); err != nil {
		return nil, err
	}
	refreshed, err := repo.FindItem(ctx, item.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload draft item")
	}
	return toItem(*refreshed), nil
}

func (s *service) touch(ctx context.Context, repo Repository, draftID uuid.UUID) error {
	if err := repo.UpdateDraft(ctx, draftID, map[string]any{"updated_at": s.now()}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch draft")
	}
	return nil
}

func validateQuantity(quantity int) error {
	switch {
	case quantity <= 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
			WithDetails(pkgerrors.Details{"rule": "quantity_positive", "quantity": quantity})
	case quantity > MaxItemQuantity:
		return pkgerrors.Newf(pkgerrors.CodeValidation, "quantity must be at most %d", MaxItemQuantity).
			WithDetails(pkgerrors.Details{"rule": "quantity_max", "quantity": quantity})
	}
	return nil
}

// validateLine checks that quantity and the derived subtotal fit the item
// columns before anything is written.
func validateLine(quantity, unitPriceCents int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}
	if unitPriceCents > maxCents {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price too large").
			WithDetails(pkgerrors.Details{"rule": "unit_price_max", "unit_price_cents": unitPriceCents})
	}
	if int64(quantity)*int64(unitPriceCents) > maxCents {
		return pkgerrors.New(pkgerrors.CodeValidation, "line subtotal too large").
			WithDetails(pkgerrors.Details{
				"rule":             "subtotal_max",
				"quantity":         quantity,
				"unit_price_cents": unitPriceCents,
			})
	}
	return nil
}

func validateAddProduct(input AddProductInput) error {
	if input.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	if input.VariantID != nil && *input.VariantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant id malformed")
	}
	if strings.TrimSpace(input.ProductName) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "product name required")
	}
	if input.UnitPriceCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative").
			WithDetails(pkgerrors.Details{"rule": "unit_price_non_negative"})
	}
	return validateLine(input.Quantity, input.UnitPriceCents)
}
