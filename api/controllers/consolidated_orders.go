package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/quotehub-backend/api/middleware"
	"github.com/angelmondragon/quotehub-backend/api/responses"
	"github.com/angelmondragon/quotehub-backend/api/validators"
	"github.com/angelmondragon/quotehub-backend/internal/consolidation"
	"github.com/angelmondragon/quotehub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/quotehub-backend/pkg/errors"
	"github.com/angelmondragon/quotehub-backend/pkg/logger"
	"github.com/angelmondragon/quotehub-backend/pkg/pagination"
)

type getOrCreateDraftRequest struct {
	SupplierID                string `json:"supplier_id" validate:"required,uuid"`
	SourceCatalogID           string `json:"source_catalog_id" validate:"required,uuid"`
	SourceReplicatedCatalogID string `json:"source_replicated_catalog_id" validate:"required,uuid"`
}

type addProductRequest struct {
	ProductID          string  `json:"product_id" validate:"required,uuid"`
	VariantID          *string `json:"variant_id" validate:"omitempty,uuid"`
	ProductName        string  `json:"product_name" validate:"required,max=255"`
	ProductSKU         *string `json:"product_sku" validate:"omitempty,max=128"`
	VariantDescription *string `json:"variant_description" validate:"omitempty,max=255"`
	ProductImageURL    *string `json:"product_image_url" validate:"omitempty,url"`
	Quantity           int     `json:"quantity" validate:"required,gt=0,lte=1000000"`
	UnitPriceCents     int     `json:"unit_price_cents" validate:"gte=0,lte=2147483647"`
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0,lte=1000000"`
}

type updateNotesRequest struct {
	Notes string `json:"notes"`
}

type sendDraftRequest struct {
	DeliveryMethod string `json:"delivery_method" validate:"omitempty,oneof=shipping pickup"`
}

// GetOrCreateConsolidatedOrder returns the caller's open draft for a supplier,
// creating and syncing it when none exists. New drafts answer 201.
func GetOrCreateConsolidatedOrder(svc consolidation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		distributorID, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}

		var body getOrCreateDraftRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, created, err := svc.GetOrCreateDraft(r.Context(), consolidation.GetOrCreateInput{
			DistributorID:             distributorID,
			SupplierID:                uuid.MustParse(body.SupplierID),
			SourceCatalogID:           uuid.MustParse(body.SourceCatalogID),
			SourceReplicatedCatalogID: uuid.MustParse(body.SourceReplicatedCatalogID),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, detail)
	}
}

// ListConsolidatedOrders pages through the caller's drafts, newest first.
func ListConsolidatedOrders(svc consolidation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		distributorID, ok := requireCaller(w, r, logg)
		if !ok {
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		supplierID, err := validators.ParseQueryUUID(r, "supplier_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params := consolidation.ListParams{
			DistributorID: distributorID,
			Filters:       consolidation.DraftFilters{SupplierID: supplierID},
			Params: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		}
		if raw := validators.ParseQueryString(r, "status"); raw != nil {
			status, err := enums.ParseConsolidatedOrderStatus(*raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").
					WithDetails(pkgerrors.Details{"field": "status"}))
				return
			}
			params.Filters.Status = &status
		}

		list, err := svc.ListDrafts(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func GetConsolidatedOrder(svc consolidation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		distributorID, draftID, ok := requireCallerAndParam(w, r, logg, "draftId")
		if !ok {
			return
		}
		detail, err := svc.GetDraft(r.Context(), draftID, distributorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// SyncConsolidatedOrder pulls newly accepted quote items into the draft.
func SyncConsolidatedOrder(svc consolidation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		distributorID, draftID, ok := requireCallerAndParam(w, r, logg, "draftId")
		if !ok {
			return
		}
		result, err := svc.Sync(r.Context(), draftID, distributorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AddConsolidatedOrderProduct(svc consolidation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		distributorID, draftID, ok := requireCallerAndParam(w, r, logg, "draftId")
		if !ok {
			return
		}

		var body addProductRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := consolidation.AddProductInput{
			ProductID:          uuid.MustParse(body.ProductID),
			ProductName:        body.ProductName,
			ProductSKU:         body.ProductSKU,
			VariantDescription: body.VariantDescription,
			ProductImageURL:    body.ProductImageURL,
			Quantity:           body.Quantity,
			UnitPriceCents:     body.UnitPriceCents,
		}
		if body.VariantID != nil {
			variantID := uuid.MustParse(*body.VariantID)
			input.VariantID = &variantID
		}

		item, err := svc.AddProduct(r.Context(), draftID, input, distributorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

func UpdateConsolidatedOrderItem(svc consolidation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		distributorID, itemID, ok := requireCallerAndParam(w, r, logg, "itemId")
		if !ok {
			return
		}

		var body updateQuantityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.UpdateQuantity(r.Context(), itemID, body.Quantity, distributorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// RemoveConsolidatedOrderItem deletes a bucket and returns the remaining draft.
func RemoveConsolidatedOrderItem(svc consolidation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		distributorID, itemID, ok := requireCallerAndParam(w, r, logg, "itemId")
		if !ok {
			return
		}
		detail, err := svc.RemoveItem(r.Context(), itemID, distributorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

func UpdateConsolidatedOrderNotes(svc consolidation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		distributorID, draftID, ok := requireCallerAndParam(w, r, logg, "draftId")
		if !ok {
			return
		}

		var body updateNotesRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		draft, err := svc.UpdateNotes(r.Context(), draftID, body.Notes, distributorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, draft)
	}
}

// SendConsolidatedOrder converts the draft into an outbound supplier quote.
// An empty body uses the configured delivery method.
func SendConsolidatedOrder(svc consolidation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		distributorID, draftID, ok := requireCallerAndParam(w, r, logg, "draftId")
		if !ok {
			return
		}

		var body sendDraftRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := svc.Send(r.Context(), consolidation.SendInput{
			DraftID:        draftID,
			DistributorID:  distributorID,
			DeliveryMethod: enums.DeliveryMethod(body.DeliveryMethod),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func CancelConsolidatedOrder(svc consolidation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		distributorID, draftID, ok := requireCallerAndParam(w, r, logg, "draftId")
		if !ok {
			return
		}
		draft, err := svc.CancelDraft(r.Context(), draftID, distributorID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, draft)
	}
}

func requireCaller(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	id, ok := middleware.CallerID(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity missing"))
		return uuid.Nil, false
	}
	return id, true
}

func requireCallerAndParam(w http.ResponseWriter, r *http.Request, logg *logger.Logger, param string) (uuid.UUID, uuid.UUID, bool) {
	caller, ok := requireCaller(w, r, logg)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, err := validators.ParseUUIDParam(r, param)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, uuid.Nil, false
	}
	return caller, id, true
}
