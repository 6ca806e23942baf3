package consolidation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/quotehub-backend/pkg/db/models"
	"github.com/angelmondragon/quotehub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/quotehub-backend/pkg/errors"
	"github.com/angelmondragon/quotehub-backend/pkg/outbox"
	"github.com/angelmondragon/quotehub-backend/pkg/outbox/payloads"
)

// Send converts the draft into a pending wholesale quote addressed to the
// supplier and seals the draft. Quote creation, the seal, and the outbox
// event commit together or not at all.
func (s *service) Send(ctx context.Context, input SendInput) (result *SendResult, err error) {
	defer func(started time.Time) { s.observe("send", started, err) }(time.Now())

	if err := validateIDs(input.DraftID, input.DistributorID); err != nil {
		return nil, err
	}
	method := input.DeliveryMethod
	if method == "" {
		method = s.deliveryMethod
	}
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery method").
			WithDetails(pkgerrors.Details{"delivery_method": method})
	}

	var totals Totals
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		draft, err := loadOwnedDraft(ctx, repo, input.DraftID, input.DistributorID, true)
		if err != nil {
			return err
		}
		if err := requireOpen(draft, "send"); err != nil {
			return err
		}
		items, err := repo.ListItems(ctx, draft.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load draft items")
		}
		if len(items) == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "draft has no items").
				WithDetails(pkgerrors.Details{"draft_id": draft.ID, "rule": "draft_not_empty"})
		}
		totals = totalsFromItems(items)
		if totals.TotalCents > maxCents {
			return pkgerrors.New(pkgerrors.CodeValidation, "quote total too large").
				WithDetails(pkgerrors.Details{"draft_id": draft.ID, "rule": "quote_total_max", "total_cents": totals.TotalCents})
		}

		profileRepo := s.profiles.WithTx(tx)
		requester, err := profileRepo.FindByUserID(ctx, draft.DistributorID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load distributor profile")
		}
		if requester == nil || strings.TrimSpace(requester.Email) == "" {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "distributor profile incomplete").
				WithDetails(pkgerrors.Details{"draft_id": draft.ID, "rule": "requester_contact"})
		}

		quoteRepo := s.quotes.WithTx(tx)
		quote, err := quoteRepo.CreateQuote(ctx, buildQuote(draft, requester, method, totals.TotalCents))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create outbound quote")
		}
		if err := quoteRepo.CreateQuoteItems(ctx, buildQuoteItems(quote.ID, items)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create outbound quote items")
		}

		sentAt := s.now()
		sealed, err := repo.TransitionDraft(ctx, draft.ID, enums.ConsolidatedOrderStatusDraft, map[string]any{
			"status":          enums.ConsolidatedOrderStatusSent,
			"linked_quote_id": quote.ID,
			"sent_at":         sentAt,
			"updated_at":      sentAt,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seal draft")
		}
		if !sealed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "draft was sent or cancelled concurrently").
				WithDetails(pkgerrors.Details{"draft_id": draft.ID, "rule": "draft_status"})
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventConsolidatedOrderSent,
			AggregateType: enums.AggregateConsolidatedOrder,
			AggregateID:   draft.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.DistributorID, Role: "distributor"},
			OccurredAt:    sentAt,
			Data: payloads.ConsolidatedOrderSentEvent{
				DraftID:       draft.ID,
				QuoteID:       quote.ID,
				DistributorID: draft.DistributorID,
				SupplierID:    draft.SupplierID,
				ItemCount:     totals.ItemCount,
				TotalQuantity: totals.TotalQuantity,
				TotalCents:    totals.TotalCents,
				SentAt:        sentAt,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue sent event")
		}

		draft.Status = enums.ConsolidatedOrderStatusSent
		draft.LinkedQuoteID = &quote.ID
		draft.SentAt = &sentAt
		draft.UpdatedAt = sentAt
		name, err := s.supplierName(ctx, profileRepo, draft.SupplierID)
		if err != nil {
			return err
		}
		result = &SendResult{QuoteID: quote.ID, Draft: toDraft(*draft, name, totals)}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveSent(totals.TotalCents)
	logCtx := s.logg.WithDraft(ctx, input.DraftID.String(), result.Draft.SupplierID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"quote_id":    result.QuoteID.String(),
		"item_count":  totals.ItemCount,
		"total_cents": totals.TotalCents,
	})
	s.logg.Info(logCtx, "consolidated draft sent")
	return result, nil
}

func buildQuote(draft *models.ConsolidatedOrderDraft, requester *models.BusinessProfile, method enums.DeliveryMethod, totalCents int) *models.Quote {
	distributorID := draft.DistributorID
	draftID := draft.ID
	company := strings.TrimSpace(requester.BusinessName)
	quote := &models.Quote{
		ID:                  uuid.New(),
		CatalogID:           draft.SourceCatalogID,
		RecipientUserID:     draft.SupplierID,
		RequesterUserID:     &distributorID,
		RequesterName:       requester.DisplayContact(),
		RequesterEmail:      strings.TrimSpace(requester.Email),
		RequesterPhone:      requester.Phone,
		Notes:               draft.Notes,
		Status:              enums.QuoteStatusPending,
		DeliveryMethod:      method,
		ConsolidatedDraftID: &draftID,
		TotalCents:          totalCents,
	}
	if company != "" {
		quote.RequesterCompany = &company
	}
	return quote
}

func buildQuoteItems(quoteID uuid.UUID, items []models.ConsolidatedOrderItem) []models.QuoteItem {
	out := make([]models.QuoteItem, 0, len(items))
	for _, item := range items {
		out = append(out, models.QuoteItem{
			ID:                 uuid.New(),
			QuoteID:            quoteID,
			ProductID:          item.ProductID,
			VariantID:          item.VariantID,
			ProductName:        item.ProductName,
			ProductSKU:         item.ProductSKU,
			VariantDescription: item.VariantDescription,
			ProductImageURL:    item.ProductImageURL,
			Quantity:           item.Quantity,
			UnitPriceCents:     item.UnitPriceCents,
			SubtotalCents:      models.Subtotal(item.Quantity, item.UnitPriceCents),
			PriceType:          enums.PriceTypeWholesale,
		})
	}
	return out
}
