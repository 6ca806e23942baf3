package consolidation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/quotehub-backend/pkg/db"
	"github.com/angelmondragon/quotehub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/quotehub-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/quotehub-backend/pkg/db/types"
	"github.com/angelmondragon/quotehub-backend/pkg/enums"
)

func seedDraft(t *testing.T, db *gorm.DB, distributor, supplier uuid.UUID, status enums.ConsolidatedOrderStatus) *models.ConsolidatedOrderDraft {
	t.Helper()
	draft := &models.ConsolidatedOrderDraft{
		ID:                        uuid.New(),
		DistributorID:             distributor,
		SupplierID:                supplier,
		SourceCatalogID:           uuid.New(),
		SourceReplicatedCatalogID: uuid.New(),
		Status:                    status,
	}
	require.NoError(t, db.Omit("Items").Create(draft).Error)
	return draft
}

func newItem(draftID, productID uuid.UUID, variantID *uuid.UUID, quantity, unitPrice int) models.ConsolidatedOrderItem {
	return models.ConsolidatedOrderItem{
		ID:             uuid.New(),
		DraftID:        draftID,
		ProductID:      productID,
		VariantID:      variantID,
		ProductName:    "Product",
		Quantity:       quantity,
		UnitPriceCents: unitPrice,
		SubtotalCents:  models.Subtotal(quantity, unitPrice),
		SourceQuoteIDs: dbtypes.UUIDArray{},
	}
}

func TestRepositoryOpenDraftIsUniquePerPair(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	distributor, supplier := uuid.New(), uuid.New()

	first := seedDraft(t, db, distributor, supplier, enums.ConsolidatedOrderStatusDraft)

	_, err := repo.CreateDraft(ctx, &models.ConsolidatedOrderDraft{
		DistributorID:             distributor,
		SupplierID:                supplier,
		SourceCatalogID:           uuid.New(),
		SourceReplicatedCatalogID: uuid.New(),
		Status:                    enums.ConsolidatedOrderStatusDraft,
	})
	require.Error(t, err)
	assert.True(t, dbpkg.IsUniqueViolation(err, openDraftIndex))

	// closed drafts do not hold the slot
	seedDraft(t, db, distributor, supplier, enums.ConsolidatedOrderStatusSent)

	found, err := repo.FindOpenDraft(ctx, distributor, supplier)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}

func TestRepositoryCreateItemsSkipsExistingBuckets(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	draft := seedDraft(t, db, uuid.New(), uuid.New(), enums.ConsolidatedOrderStatusDraft)
	product := uuid.New()
	variant := uuid.New()

	n, err := repo.CreateItems(ctx, []models.ConsolidatedOrderItem{
		newItem(draft.ID, product, nil, 1, 100),
		newItem(draft.ID, product, &variant, 1, 100),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = repo.CreateItems(ctx, []models.ConsolidatedOrderItem{
		newItem(draft.ID, product, nil, 9, 100),
		newItem(draft.ID, uuid.New(), nil, 1, 100),
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	keys, err := repo.ListItemKeys(ctx, draft.ID)
	require.NoError(t, err)
	assert.Len(t, keys, 3)
	assert.Contains(t, keys, NewBucketKey(product, nil))
	assert.Contains(t, keys, NewBucketKey(product, &variant))

	bare, err := repo.FindItemByKey(ctx, draft.ID, NewBucketKey(product, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, bare.Quantity)
	assert.Nil(t, bare.VariantID)

	withVariant, err := repo.FindItemByKey(ctx, draft.ID, NewBucketKey(product, &variant))
	require.NoError(t, err)
	require.NotNil(t, withVariant.VariantID)
	assert.Equal(t, variant, *withVariant.VariantID)
}

func TestRepositoryItemCRUD(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	draft := seedDraft(t, db, uuid.New(), uuid.New(), enums.ConsolidatedOrderStatusDraft)
	quote := uuid.New()

	item := newItem(draft.ID, uuid.New(), nil, 2, 250)
	item.SourceQuoteIDs = dbtypes.UUIDArray{quote}
	created, err := repo.CreateItem(ctx, &item)
	require.NoError(t, err)

	require.NoError(t, repo.UpdateItemQuantity(ctx, created.ID, 4, 1000))
	loaded, err := repo.FindItem(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Quantity)
	assert.Equal(t, 1000, loaded.SubtotalCents)
	assert.Equal(t, dbtypes.UUIDArray{quote}, loaded.SourceQuoteIDs)

	require.NoError(t, repo.DeleteItem(ctx, created.ID))
	_, err = repo.FindItem(ctx, created.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryDraftTotals(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	filled := seedDraft(t, db, uuid.New(), uuid.New(), enums.ConsolidatedOrderStatusDraft)
	empty := seedDraft(t, db, uuid.New(), uuid.New(), enums.ConsolidatedOrderStatusDraft)

	_, err := repo.CreateItems(ctx, []models.ConsolidatedOrderItem{
		newItem(filled.ID, uuid.New(), nil, 5, 1000),
		newItem(filled.ID, uuid.New(), nil, 1, 2000),
	})
	require.NoError(t, err)

	totals, err := repo.DraftTotals(ctx, []uuid.UUID{filled.ID, empty.ID})
	require.NoError(t, err)
	assert.Equal(t, newTotals(2, 6, 7000), totals[filled.ID])
	_, ok := totals[empty.ID]
	assert.False(t, ok)
}

func TestRepositoryTransitionDraftIsConditional(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	draft := seedDraft(t, db, uuid.New(), uuid.New(), enums.ConsolidatedOrderStatusDraft)
	quoteID := uuid.New()
	now := time.Now().UTC()

	ok, err := repo.TransitionDraft(ctx, draft.ID, enums.ConsolidatedOrderStatusDraft, map[string]any{
		"status":          enums.ConsolidatedOrderStatusSent,
		"linked_quote_id": quoteID,
		"sent_at":         now,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TransitionDraft(ctx, draft.ID, enums.ConsolidatedOrderStatusDraft, map[string]any{
		"status": enums.ConsolidatedOrderStatusCancelled,
	})
	require.NoError(t, err)
	assert.False(t, ok)

	loaded, err := repo.FindDraftForUpdate(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ConsolidatedOrderStatusSent, loaded.Status)
	require.NotNil(t, loaded.LinkedQuoteID)
	assert.Equal(t, quoteID, *loaded.LinkedQuoteID)
}

func TestRepositoryListDraftsPaginates(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	distributor := uuid.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		d := seedDraft(t, db, distributor, uuid.New(), enums.ConsolidatedOrderStatusDraft)
		require.NoError(t, db.Model(&models.ConsolidatedOrderDraft{}).Where("id = ?", d.ID).
			UpdateColumn("created_at", base.Add(time.Duration(i)*time.Hour)).Error)
		ids = append(ids, d.ID)
	}
	seedDraft(t, db, uuid.New(), uuid.New(), enums.ConsolidatedOrderStatusDraft)

	rows, err := repo.ListDrafts(ctx, listQuery{distributorID: distributor, limit: 2})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ids[2], rows[0].ID)
	assert.Equal(t, ids[1], rows[1].ID)
}

func TestRepositoryFindStaleOpenDrafts(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

	stale := seedDraft(t, db, uuid.New(), uuid.New(), enums.ConsolidatedOrderStatusDraft)
	fresh := seedDraft(t, db, uuid.New(), uuid.New(), enums.ConsolidatedOrderStatusDraft)
	sent := seedDraft(t, db, uuid.New(), uuid.New(), enums.ConsolidatedOrderStatusSent)
	for id, at := range map[uuid.UUID]time.Time{
		stale.ID: now.Add(-48 * time.Hour),
		fresh.ID: now.Add(-time.Hour),
		sent.ID:  now.Add(-72 * time.Hour),
	} {
		require.NoError(t, db.Model(&models.ConsolidatedOrderDraft{}).Where("id = ?", id).UpdateColumn("updated_at", at).Error)
	}

	rows, err := repo.FindStaleOpenDrafts(ctx, now.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, stale.ID, rows[0].ID)
}
