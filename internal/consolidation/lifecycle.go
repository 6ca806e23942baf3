package consolidation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/quotehub-backend/pkg/db/models"
	"github.com/angelmondragon/quotehub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/quotehub-backend/pkg/errors"
	"github.com/angelmondragon/quotehub-backend/pkg/outbox"
	"github.com/angelmondragon/quotehub-backend/pkg/outbox/payloads"
)

const (
	cancelReasonOwner   = "cancelled_by_distributor"
	cancelReasonExpired = "expired"
)

// CancelDraft abandons an open draft. Cancelled drafts free the pair for a new draft.
func (s *service) CancelDraft(ctx context.Context, draftID, distributorID uuid.UUID) (cancelled *Draft, err error) {
	defer func(started time.Time) { s.observe("cancel", started, err) }(time.Now())

	if err := validateIDs(draftID, distributorID); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		draft, err := loadOwnedDraft(ctx, repo, draftID, distributorID, true)
		if err != nil {
			return err
		}
		if err := requireOpen(draft, "cancel"); err != nil {
			return err
		}
		actor := &outbox.ActorRef{UserID: distributorID, Role: "distributor"}
		if err := s.cancelTx(ctx, tx, repo, draft, cancelReasonOwner, actor); err != nil {
			return err
		}
		items, err := repo.ListItems(ctx, draft.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load draft items")
		}
		name, err := s.supplierName(ctx, s.profiles.WithTx(tx), draft.SupplierID)
		if err != nil {
			return err
		}
		cancelled = toDraft(*draft, name, totalsFromItems(items))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithDraft(ctx, draftID.String(), cancelled.SupplierID.String()), "consolidated draft cancelled")
	return cancelled, nil
}

// ExpireStaleDrafts cancels up to limit open drafts untouched since cutoff.
// Each draft is cancelled in its own transaction; a draft that changed state
// in the meantime is skipped. It returns how many drafts were expired.
func (s *service) ExpireStaleDrafts(ctx context.Context, cutoff time.Time, limit int) (expired int, err error) {
	defer func(started time.Time) { s.observe("expire", started, err) }(time.Now())

	if limit <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "limit must be positive")
	}
	stale, err := s.repo.FindStaleOpenDrafts(ctx, cutoff.UTC(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stale drafts")
	}

	for i := range stale {
		candidate := stale[i]
		cancelled := false
		txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			draft, err := repo.FindDraftForUpdate(ctx, candidate.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock stale draft")
			}
			if !draft.IsOpen() || !draft.UpdatedAt.Before(cutoff) {
				return nil
			}
			if err := s.cancelTx(ctx, tx, repo, draft, cancelReasonExpired, outbox.SystemActor()); err != nil {
				return err
			}
			cancelled = true
			return nil
		})
		if txErr != nil {
			logCtx := s.logg.WithDraft(ctx, candidate.ID.String(), candidate.SupplierID.String())
			s.logg.Error(logCtx, "expire stale draft failed", txErr)
			return expired, txErr
		}
		if cancelled {
			expired++
		}
	}

	if expired > 0 {
		s.logg.Info(s.logg.WithField(ctx, "expired", expired), "stale consolidated drafts expired")
	}
	return expired, nil
}

func (s *service) cancelTx(ctx context.Context, tx *gorm.DB, repo Repository, draft *models.ConsolidatedOrderDraft, reason string, actor *outbox.ActorRef) error {
	now := s.now()
	ok, err := repo.TransitionDraft(ctx, draft.ID, enums.ConsolidatedOrderStatusDraft, map[string]any{
		"status":       enums.ConsolidatedOrderStatusCancelled,
		"cancelled_at": now,
		"updated_at":   now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel draft")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "draft was sent or cancelled concurrently").
			WithDetails(pkgerrors.Details{"draft_id": draft.ID, "rule": "draft_status"})
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventConsolidatedOrderCancelled,
		AggregateType: enums.AggregateConsolidatedOrder,
		AggregateID:   draft.ID,
		Version:       1,
		Actor:         actor,
		OccurredAt:    now,
		Data: payloads.ConsolidatedOrderCancelledEvent{
			DraftID:       draft.ID,
			DistributorID: draft.DistributorID,
			SupplierID:    draft.SupplierID,
			Reason:        reason,
			CancelledAt:   now,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue cancelled event")
	}

	draft.Status = enums.ConsolidatedOrderStatusCancelled
	draft.CancelledAt = &now
	draft.UpdatedAt = now
	return nil
}
