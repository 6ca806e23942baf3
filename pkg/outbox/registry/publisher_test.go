package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/quotehub-backend/pkg/config"
	"github.com/angelmondragon/quotehub-backend/pkg/db/models"
	"github.com/angelmondragon/quotehub-backend/pkg/enums"
	"github.com/angelmondragon/quotehub-backend/pkg/outbox"
	"github.com/angelmondragon/quotehub-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	quoteID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.ConsolidatedOrderSentEvent{
		DraftID:    uuid.New(),
		QuoteID:    quoteID,
		ItemCount:  2,
		TotalCents: 7000,
	})

	event := models.OutboxEvent{
		EventType:     enums.EventConsolidatedOrderSent,
		AggregateType: enums.AggregateConsolidatedOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "consolidation-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.ConsolidatedOrderSentEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.QuoteID != quoteID || payload.TotalCents != 7000 {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
}

func TestEventRegistryRejectsBadRows(t *testing.T) {
	reg := newTestEventRegistry(t)

	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     enums.OutboxEventType("order_created"),
			AggregateType: enums.AggregateConsolidatedOrder,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventConsolidatedOrderCancelled,
			AggregateType: enums.AggregateQuote,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"missing aggregate id": {
			EventType:     enums.EventConsolidatedOrderSent,
			AggregateType: enums.AggregateConsolidatedOrder,
			AggregateID:   uuid.Nil,
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"null payload": {
			EventType:     enums.EventConsolidatedOrderSent,
			AggregateType: enums.AggregateConsolidatedOrder,
			AggregateID:   uuid.New(),
			Payload:       mustEnvelope(t, []byte("null")),
		},
		"broken envelope": {
			EventType:     enums.EventConsolidatedOrderSent,
			AggregateType: enums.AggregateConsolidatedOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"version":`),
		},
	}

	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			if err == nil {
				t.Fatalf("expected error")
			}
			var nonRetry NonRetryableError
			if !errors.As(err, &nonRetry) {
				t.Fatalf("expected non-retryable error, got %T", err)
			}
		})
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatal("expected missing topic error")
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{ConsolidationTopic: "consolidation-topic"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}

func TestIsNonRetryable(t *testing.T) {
	wrapped := fmt.Errorf("publish: %w", NewNonRetryableError(errors.New("bad topic")))
	if !IsNonRetryable(wrapped) {
		t.Fatal("expected wrapped non-retryable error to match")
	}
	if IsNonRetryable(errors.New("timeout")) {
		t.Fatal("plain errors must be retryable")
	}
}

func TestEventRegistryResolvesCancelledPayload(t *testing.T) {
	reg := newTestEventRegistry(t)
	draftID := uuid.New()
	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventConsolidatedOrderCancelled,
		AggregateType: enums.AggregateConsolidatedOrder,
		AggregateID:   draftID,
		Payload:       mustEnvelope(t, mustMarshal(t, payloads.ConsolidatedOrderCancelledEvent{DraftID: draftID, Reason: "expired"})),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload, ok := resolved.Payload.(*payloads.ConsolidatedOrderCancelledEvent)
	if !ok || payload.Reason != "expired" || payload.DraftID != draftID {
		t.Fatalf("unexpected payload %#v", resolved.Payload)
	}
}
