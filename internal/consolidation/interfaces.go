package consolidation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/quotehub-backend/pkg/db/models"
	"github.com/angelmondragon/quotehub-backend/pkg/enums"
)

// Repository is the draft store: persistence for drafts and their buckets.
// Ownership and status are enforced by the service before any write.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindOpenDraft(ctx context.Context, distributorID, supplierID uuid.UUID) (*models.ConsolidatedOrderDraft, error)
	CreateDraft(ctx context.Context, draft *models.ConsolidatedOrderDraft) (*models.ConsolidatedOrderDraft, error)
	FindDraft(ctx context.Context, draftID uuid.UUID) (*models.ConsolidatedOrderDraft, error)
	FindDraftForUpdate(ctx context.Context, draftID uuid.UUID) (*models.ConsolidatedOrderDraft, error)
	ListDrafts(ctx context.Context, query listQuery) ([]models.ConsolidatedOrderDraft, error)
	DraftTotals(ctx context.Context, draftIDs []uuid.UUID) (map[uuid.UUID]Totals, error)
	FindStaleOpenDrafts(ctx context.Context, cutoff time.Time, limit int) ([]models.ConsolidatedOrderDraft, error)
	UpdateDraft(ctx context.Context, draftID uuid.UUID, updates map[string]any) error
	TransitionDraft(ctx context.Context, draftID uuid.UUID, from enums.ConsolidatedOrderStatus, updates map[string]any) (bool, error)

	ListItems(ctx context.Context, draftID uuid.UUID) ([]models.ConsolidatedOrderItem, error)
	ListItemKeys(ctx context.Context, draftID uuid.UUID) ([]BucketKey, error)
	CreateItems(ctx context.Context, items []models.ConsolidatedOrderItem) (int64, error)
	CreateItem(ctx context.Context, item *models.ConsolidatedOrderItem) (*models.ConsolidatedOrderItem, error)
	FindItem(ctx context.Context, itemID uuid.UUID) (*models.ConsolidatedOrderItem, error)
	FindItemByKey(ctx context.Context, draftID uuid.UUID, key BucketKey) (*models.ConsolidatedOrderItem, error)
	UpdateItemQuantity(ctx context.Context, itemID uuid.UUID, quantity, subtotalCents int) error
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
}

// Service is the consolidated order API. Every method takes the caller's
// distributor identity explicitly and returns the entity it changed.
type Service interface {
	GetOrCreateDraft(ctx context.Context, input GetOrCreateInput) (*DraftDetail, bool, error)
	CreateDraft(ctx context.Context, input GetOrCreateInput) (*Draft, error)
	GetDraft(ctx context.Context, draftID, distributorID uuid.UUID) (*DraftDetail, error)
	ListDrafts(ctx context.Context, params ListParams) (*DraftList, error)
	Sync(ctx context.Context, draftID, distributorID uuid.UUID) (*SyncResult, error)

	UpdateQuantity(ctx context.Context, itemID uuid.UUID, quantity int, distributorID uuid.UUID) (*Item, error)
	RemoveItem(ctx context.Context, itemID, distributorID uuid.UUID) (*DraftDetail, error)
	AddProduct(ctx context.Context, draftID uuid.UUID, input AddProductInput, distributorID uuid.UUID) (*Item, error)
	UpdateNotes(ctx context.Context, draftID uuid.UUID, notes string, distributorID uuid.UUID) (*Draft, error)

	Send(ctx context.Context, input SendInput) (*SendResult, error)
	CancelDraft(ctx context.Context, draftID, distributorID uuid.UUID) (*Draft, error)
	ExpireStaleDrafts(ctx context.Context, cutoff time.Time, limit int) (int, error)
}
