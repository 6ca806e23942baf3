package payloads

import (
	"time"

	"github.com/google/uuid"
)

// ConsolidatedOrderSentEvent tells the supplier side a consolidated quote is waiting.
type ConsolidatedOrderSentEvent struct {
	DraftID       uuid.UUID `json:"draft_id"`
	QuoteID       uuid.UUID `json:"quote_id"`
	DistributorID uuid.UUID `json:"distributor_id"`
	SupplierID    uuid.UUID `json:"supplier_id"`
	ItemCount     int       `json:"item_count"`
	TotalQuantity int       `json:"total_quantity"`
	TotalCents    int       `json:"total_cents"`
	SentAt        time.Time `json:"sent_at"`
}

// ConsolidatedOrderCancelledEvent is emitted when a draft is abandoned by its
// owner or expired by the scheduler.
type ConsolidatedOrderCancelledEvent struct {
	DraftID       uuid.UUID `json:"draft_id"`
	DistributorID uuid.UUID `json:"distributor_id"`
	SupplierID    uuid.UUID `json:"supplier_id"`
	Reason        string    `json:"reason"`
	CancelledAt   time.Time `json:"cancelled_at"`
}
