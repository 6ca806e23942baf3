package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/quotehub-backend/pkg/db"
	"github.com/angelmondragon/quotehub-backend/pkg/db/models"
	"github.com/angelmondragon/quotehub-backend/pkg/logger"
)

const uniqueEventAggregateIndex = "ux_outbox_events_event_aggregate"

// Emitter queues domain events inside the caller's transaction.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

// Service writes outbox rows. Each (event type, aggregate) pair is queued at
// most once; a repeat Emit is a no-op.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if err := event.validate(); err != nil {
		return err
	}

	exists, err := s.repo.ExistsTx(tx, event.EventType, event.AggregateType, event.AggregateID)
	if err != nil {
		return fmt.Errorf("check existing %s: %w", event.EventType, err)
	}
	if exists {
		s.log(ctx, event, "", "outbox event already queued")
		return nil
	}

	envelope, err := NewEnvelope(event, s.now())
	if err != nil {
		return err
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}
	if err := s.repo.Insert(tx, row); err != nil {
		if dbpkg.IsUniqueViolation(err, uniqueEventAggregateIndex) {
			return nil
		}
		return fmt.Errorf("insert %s: %w", event.EventType, err)
	}
	s.log(ctx, event, envelope.EventID, "outbox event queued")
	return nil
}

func (s *Service) log(ctx context.Context, event DomainEvent, eventID, msg string) {
	if s.logg == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	fields := map[string]any{
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
	}
	if eventID != "" {
		fields["event_id"] = eventID
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), msg)
}
