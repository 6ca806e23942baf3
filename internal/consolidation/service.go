package consolidation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/quotehub-backend/internal/profiles"
	"github.com/angelmondragon/quotehub-backend/internal/quotes"
	dbpkg "github.com/angelmondragon/quotehub-backend/pkg/db"
	"github.com/angelmondragon/quotehub-backend/pkg/db/models"
	"github.com/angelmondragon/quotehub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/quotehub-backend/pkg/errors"
	"github.com/angelmondragon/quotehub-backend/pkg/logger"
	"github.com/angelmondragon/quotehub-backend/pkg/metrics"
	"github.com/angelmondragon/quotehub-backend/pkg/outbox"
	pkgpagination "github.com/angelmondragon/quotehub-backend/pkg/pagination"
)

const (
	openDraftIndex       = "ux_consolidated_order_drafts_open"
	defaultNotesMaxChars = 2000
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	Repo                  Repository
	Quotes                quotes.Repository
	Profiles              profiles.Repository
	Tx                    txRunner
	Outbox                outbox.Emitter
	Logger                *logger.Logger
	Metrics               *metrics.ConsolidationMetrics
	DefaultDeliveryMethod enums.DeliveryMethod
	NotesMaxLength        int
	Clock                 func() time.Time
}

type service struct {
	repo           Repository
	quotes         quotes.Repository
	profiles       profiles.Repository
	tx             txRunner
	outbox         outbox.Emitter
	logg           *logger.Logger
	metrics        *metrics.ConsolidationMetrics
	deliveryMethod enums.DeliveryMethod
	notesMax       int
	now            func() time.Time
}

// NewService builds the consolidated order service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("consolidation repository required")
	}
	if params.Quotes == nil {
		return nil, fmt.Errorf("quotes repository required")
	}
	if params.Profiles == nil {
		return nil, fmt.Errorf("profiles repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	method := params.DefaultDeliveryMethod
	if method == "" {
		method = enums.DeliveryMethodShipping
	}
	if !method.IsValid() {
		return nil, fmt.Errorf("invalid default delivery method %q", method)
	}
	notesMax := params.NotesMaxLength
	if notesMax <= 0 {
		notesMax = defaultNotesMaxChars
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &service{
		repo:           params.Repo,
		quotes:         params.Quotes,
		profiles:       params.Profiles,
		tx:             params.Tx,
		outbox:         params.Outbox,
		logg:           params.Logger,
		metrics:        params.Metrics,
		deliveryMethod: method,
		notesMax:       notesMax,
		now:            func() time.Time { return clock().UTC() },
	}, nil
}

func (s *service) observe(operation string, started time.Time, err error) {
	s.metrics.Observe(operation, err, time.Since(started))
}

// GetOrCreateDraft returns the open draft for the pair, creating and syncing
// one when none exists. The bool reports whether a draft was created.
func (s *service) GetOrCreateDraft(ctx context.Context, input GetOrCreateInput) (detail *DraftDetail, created bool, err error) {
	defer func(started time.Time) { s.observe("get_or_create", started, err) }(time.Now())

	if err := validateCreateInput(input); err != nil {
		return nil, false, err
	}

	existing, err := s.repo.FindOpenDraft(ctx, input.DistributorID, input.SupplierID)
	switch {
	case err == nil:
		detail, err := s.loadDetail(ctx, s.repo, s.profiles, *existing)
		return detail, false, err
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open draft")
	}

	draft, err := s.CreateDraft(ctx, input)
	if err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			return nil, false, err
		}
		winner, findErr := s.repo.FindOpenDraft(ctx, input.DistributorID, input.SupplierID)
		if findErr != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload open draft")
		}
		detail, err := s.loadDetail(ctx, s.repo, s.profiles, *winner)
		return detail, false, err
	}

	result, err := s.Sync(ctx, draft.ID, input.DistributorID)
	if err != nil {
		return nil, true, err
	}
	return result.Draft, true, nil
}

// CreateDraft opens a new draft for the pair. The lookup and insert share a
// transaction and the open-draft index rejects a concurrent duplicate.
func (s *service) CreateDraft(ctx context.Context, input GetOrCreateInput) (*Draft, error) {
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	var created *models.ConsolidatedOrderDraft
	var supplierName string
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindOpenDraft(ctx, input.DistributorID, input.SupplierID)
		if err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "open draft already exists for supplier").
				WithDetails(pkgerrors.Details{"draft_id": existing.ID, "supplier_id": input.SupplierID})
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load open draft")
		}

		draft := &models.ConsolidatedOrderDraft{
			ID:                        uuid.New(),
			DistributorID:             input.DistributorID,
			SupplierID:                input.SupplierID,
			SourceCatalogID:           input.SourceCatalogID,
			SourceReplicatedCatalogID: input.SourceReplicatedCatalogID,
			Status:                    enums.ConsolidatedOrderStatusDraft,
		}
		created, err = repo.CreateDraft(ctx, draft)
		if err != nil {
			if dbpkg.IsUniqueViolation(err, openDraftIndex) {
				return pkgerrors.New(pkgerrors.CodeConflict, "open draft already exists for supplier").
					WithDetails(pkgerrors.Details{"supplier_id": input.SupplierID})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create draft")
		}
		supplierName, err = s.supplierName(ctx, s.profiles.WithTx(tx), input.SupplierID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithDraft(ctx, created.ID.String(), created.SupplierID.String())
	s.logg.Info(logCtx, "consolidated draft created")
	return toDraft(*created, supplierName, newTotals(0, 0, 0)), nil
}

func (s *service) GetDraft(ctx context.Context, draftID, distributorID uuid.UUID) (*DraftDetail, error) {
	if err := validateIDs(draftID, distributorID); err != nil {
		return nil, err
	}
	draft, err := loadOwnedDraft(ctx, s.repo, draftID, distributorID, false)
	if err != nil {
		return nil, err
	}
	return s.loadDetail(ctx, s.repo, s.profiles, *draft)
}

func (s *service) ListDrafts(ctx context.Context, params ListParams) (*DraftList, error) {
	if params.DistributorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "distributor id required")
	}
	if params.Filters.Status != nil && !params.Filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter").
			WithDetails(pkgerrors.Details{"status": *params.Filters.Status})
	}
	cursor, err := pkgpagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pkgpagination.NormalizeLimit(params.Limit)

	rows, err := s.repo.ListDrafts(ctx, listQuery{
		distributorID: params.DistributorID,
		status:        params.Filters.Status,
		supplierID:    params.Filters.SupplierID,
		limit:         pkgpagination.LimitWithBuffer(params.Limit),
		cursor:        cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list drafts")
	}

	rows, next := pkgpagination.Trim(rows, limit, func(d models.ConsolidatedOrderDraft) pkgpagination.Cursor {
		return pkgpagination.Cursor{At: d.CreatedAt, ID: d.ID}
	})

	ids := make([]uuid.UUID, 0, len(rows))
	suppliers := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
		suppliers = append(suppliers, row.SupplierID)
	}
	totals, err := s.repo.DraftTotals(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load draft totals")
	}
	names, err := s.profiles.BusinessNames(ctx, suppliers)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load supplier names")
	}

	list := &DraftList{Drafts: make([]Draft, 0, len(rows)), Cursor: next}
	for _, row := range rows {
		t, ok := totals[row.ID]
		if !ok {
			t = newTotals(0, 0, 0)
		}
		list.Drafts = append(list.Drafts, *toDraft(row, names[row.SupplierID], t))
	}
	return list, nil
}

// Sync pulls accepted quote lines for the draft's catalog and inserts buckets
// the draft does not have yet. Existing buckets are never modified.
func (s *service) Sync(ctx context.Context, draftID, distributorID uuid.UUID) (result *SyncResult, err error) {
	defer func(started time.Time) { s.observe("sync", started, err) }(time.Now())

	if err := validateIDs(draftID, distributorID); err != nil {
		return nil, err
	}

	result = &SyncResult{}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		draft, err := loadOwnedDraft(ctx, repo, draftID, distributorID, true)
		if err != nil {
			return err
		}
		if err := requireOpen(draft, "sync"); err != nil {
			return err
		}

		candidates, err := s.quotes.WithTx(tx).ListAcceptedItemsForCatalog(ctx, draft.DistributorID, draft.SourceReplicatedCatalogID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load accepted quote items")
		}
		buckets := GroupAcceptedItems(candidates)

		existing, err := repo.ListItemKeys(ctx, draft.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load draft item keys")
		}
		fresh := DiffBuckets(buckets, existing)
		inserted, err := repo.CreateItems(ctx, ItemRows(draft.ID, fresh))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert draft items")
		}
		if inserted > 0 {
			if err := repo.UpdateDraft(ctx, draft.ID, map[string]any{"updated_at": s.now()}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch draft")
			}
		}
		result.Inserted = int(inserted)
		result.Skipped = len(buckets) - int(inserted)

		refreshed, err := repo.FindDraft(ctx, draft.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload draft")
		}
		result.Draft, err = s.loadDetail(ctx, repo, s.profiles.WithTx(tx), *refreshed)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AddSyncInserted(result.Inserted)
	logCtx := s.logg.WithDraft(ctx, draftID.String(), result.Draft.SupplierID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"inserted": result.Inserted,
		"skipped":  result.Skipped,
	})
	s.logg.Info(logCtx, "consolidated draft synced")
	return result, nil
}

func (s *service) loadDetail(ctx context.Context, repo Repository, profileRepo profiles.Repository, draft models.ConsolidatedOrderDraft) (*DraftDetail, error) {
	items, err := repo.ListItems(ctx, draft.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load draft items")
	}
	name, err := s.supplierName(ctx, profileRepo, draft.SupplierID)
	if err != nil {
		return nil, err
	}
	return toDetail(draft, name, items), nil
}

func (s *service) supplierName(ctx context.Context, profileRepo profiles.Repository, supplierID uuid.UUID) (string, error) {
	names, err := profileRepo.BusinessNames(ctx, []uuid.UUID{supplierID})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load supplier name")
	}
	return names[supplierID], nil
}

func loadOwnedDraft(ctx context.Context, repo Repository, draftID, distributorID uuid.UUID, lock bool) (*models.ConsolidatedOrderDraft, error) {
	var (
		draft *models.ConsolidatedOrderDraft
		err   error
	)
	if lock {
		draft, err = repo.FindDraftForUpdate(ctx, draftID)
	} else {
		draft, err = repo.FindDraft(ctx, draftID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "draft not found").
				WithDetails(pkgerrors.Details{"draft_id": draftID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load draft")
	}
	if draft.DistributorID != distributorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "draft does not belong to distributor").
			WithDetails(pkgerrors.Details{"draft_id": draftID, "rule": "draft_owner"})
	}
	return draft, nil
}

func requireOpen(draft *models.ConsolidatedOrderDraft, operation string) error {
	if draft.IsOpen() {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, "draft is no longer editable").
		WithDetails(pkgerrors.Details{
			"draft_id":  draft.ID,
			"status":    draft.Status,
			"operation": operation,
			"rule":      "draft_status",
		})
}

func validateIDs(draftID, distributorID uuid.UUID) error {
	if draftID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "draft id required")
	}
	if distributorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "distributor id required")
	}
	return nil
}

func validateCreateInput(input GetOrCreateInput) error {
	if input.DistributorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "distributor id required")
	}
	if input.SupplierID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "supplier id required")
	}
	if input.SourceCatalogID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "source catalog id required")
	}
	if input.SourceReplicatedCatalogID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "source replicated catalog id required")
	}
	if input.DistributorID == input.SupplierID {
		return pkgerrors.New(pkgerrors.CodeValidation, "distributor cannot order from itself").
			WithDetails(pkgerrors.Details{"rule": "supplier_differs"})
	}
	return nil
}
