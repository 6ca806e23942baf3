package consolidation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/quotehub-backend/pkg/db/models"
	"github.com/angelmondragon/quotehub-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a draft store bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindOpenDraft(ctx context.Context, distributorID, supplierID uuid.UUID) (*models.ConsolidatedOrderDraft, error) {
	var draft models.ConsolidatedOrderDraft
	err := r.db.WithContext(ctx).
		Where("distributor_id = ? AND supplier_id = ? AND status = ?", distributorID, supplierID, enums.ConsolidatedOrderStatusDraft).
		First(&draft).Error
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

func (r *repository) CreateDraft(ctx context.Context, draft *models.ConsolidatedOrderDraft) (*models.ConsolidatedOrderDraft, error) {
	if draft.ID == uuid.Nil {
		draft.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Omit("Items").Create(draft).Error; err != nil {
		return nil, err
	}
	return draft, nil
}

func (r *repository) FindDraft(ctx context.Context, draftID uuid.UUID) (*models.ConsolidatedOrderDraft, error) {
	var draft models.ConsolidatedOrderDraft
	if err := r.db.WithContext(ctx).Where("id = ?", draftID).First(&draft).Error; err != nil {
		return nil, err
	}
	return &draft, nil
}

// FindDraftForUpdate locks the draft row until the surrounding transaction ends.
func (r *repository) FindDraftForUpdate(ctx context.Context, draftID uuid.UUID) (*models.ConsolidatedOrderDraft, error) {
	var draft models.ConsolidatedOrderDraft
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", draftID).
		First(&draft).Error
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

// ListDrafts returns the distributor's drafts newest first using cursor pagination.
func (r *repository) ListDrafts(ctx context.Context, opts listQuery) ([]models.ConsolidatedOrderDraft, error) {
	query := r.db.WithContext(ctx).Model(&models.ConsolidatedOrderDraft{}).Where("distributor_id = ?", opts.distributorID)
	if opts.status != nil {
		query = query.Where("status = ?", *opts.status)
	}
	if opts.supplierID != nil {
		query = query.Where("supplier_id = ?", *opts.supplierID)
	}
	if opts.cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", opts.cursor.At, opts.cursor.At, opts.cursor.ID)
	}

	query = query.Order("created_at DESC").Order("id DESC").Limit(opts.limit)

	var rows []models.ConsolidatedOrderDraft
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

type totalsRow struct {
	DraftID       uuid.UUID `gorm:"column:draft_id"`
	ItemCount     int       `gorm:"column:item_count"`
	TotalQuantity int       `gorm:"column:total_quantity"`
	TotalCents    int       `gorm:"column:total_cents"`
}

// DraftTotals aggregates item count, quantity, and value per draft. Drafts
// without items are absent from the result.
func (r *repository) DraftTotals(ctx context.Context, draftIDs []uuid.UUID) (map[uuid.UUID]Totals, error) {
	out := make(map[uuid.UUID]Totals, len(draftIDs))
	if len(draftIDs) == 0 {
		return out, nil
	}
	var rows []totalsRow
	err := r.db.WithContext(ctx).
		Model(&models.ConsolidatedOrderItem{}).
		Select("draft_id, COUNT(*) AS item_count, COALESCE(SUM(quantity), 0) AS total_quantity, COALESCE(SUM(subtotal_cents), 0) AS total_cents").
		Where("draft_id IN ?", draftIDs).
		Group("draft_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.DraftID] = newTotals(row.ItemCount, row.TotalQuantity, row.TotalCents)
	}
	return out, nil
}

// FindStaleOpenDrafts returns open drafts untouched since cutoff, oldest first.
func (r *repository) FindStaleOpenDrafts(ctx context.Context, cutoff time.Time, limit int) ([]models.ConsolidatedOrderDraft, error) {
	var rows []models.ConsolidatedOrderDraft
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", enums.ConsolidatedOrderStatusDraft, cutoff).
		Order("updated_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) UpdateDraft(ctx context.Context, draftID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.ConsolidatedOrderDraft{}).
		Where("id = ?", draftID).
		Updates(updates).Error
}

// TransitionDraft applies updates only while the draft is still in status
// from. It reports false when another writer moved the draft first.
func (r *repository) TransitionDraft(ctx context.Context, draftID uuid.UUID, from enums.ConsolidatedOrderStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ConsolidatedOrderDraft{}).
		Where("id = ? AND status = ?", draftID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListItems(ctx context.Context, draftID uuid.UUID) ([]models.ConsolidatedOrderItem, error) {
	var rows []models.ConsolidatedOrderItem
	err := r.db.WithContext(ctx).
		Where("draft_id = ?", draftID).
		Order("created_at ASC").
		Order("product_name ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

type keyRow struct {
	ProductID uuid.UUID  `gorm:"column:product_id"`
	VariantID *uuid.UUID `gorm:"column:variant_id"`
}

func (r *repository) ListItemKeys(ctx context.Context, draftID uuid.UUID) ([]BucketKey, error) {
	var rows []keyRow
	err := r.db.WithContext(ctx).
		Model(&models.ConsolidatedOrderItem{}).
		Select("product_id, variant_id").
		Where("draft_id = ?", draftID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	keys := make([]BucketKey, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, NewBucketKey(row.ProductID, row.VariantID))
	}
	return keys, nil
}

// CreateItems inserts the batch in one statement. Rows colliding with an
// existing bucket are skipped; the returned count is what was written.
func (r *repository) CreateItems(ctx context.Context, items []models.ConsolidatedOrderItem) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&items)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repository) CreateItem(ctx context.Context, item *models.ConsolidatedOrderItem) (*models.ConsolidatedOrderItem, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

func (r *repository) FindItem(ctx context.Context, itemID uuid.UUID) (*models.ConsolidatedOrderItem, error) {
	var item models.ConsolidatedOrderItem
	if err := r.db.WithContext(ctx).Where("id = ?", itemID).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) FindItemByKey(ctx context.Context, draftID uuid.UUID, key BucketKey) (*models.ConsolidatedOrderItem, error) {
	query := r.db.WithContext(ctx).Where("draft_id = ? AND product_id = ?", draftID, key.ProductID)
	if variant := key.VariantPtr(); variant != nil {
		query = query.Where("variant_id = ?", *variant)
	} else {
		query = query.Where("variant_id IS NULL")
	}
	var item models.ConsolidatedOrderItem
	if err := query.First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity, subtotalCents int) error {
	return r.db.WithContext(ctx).
		Model(&models.ConsolidatedOrderItem{}).
		Where("id = ?", itemID).
		Updates(map[string]any{
			"quantity":       quantity,
			"subtotal_cents": subtotalCents,
		}).Error
}

func (r *repository) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", itemID).Delete(&models.ConsolidatedOrderItem{}).Error
}
