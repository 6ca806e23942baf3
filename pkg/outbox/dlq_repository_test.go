package outbox

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/quotehub-backend/pkg/db/models"
	"github.com/angelmondragon/quotehub-backend/pkg/enums"
)

func createDLQTable(t *testing.T, conn *gorm.DB) {
	t.Helper()
	require.NoError(t, conn.Exec(`
CREATE TABLE outbox_dlq (
	id TEXT PRIMARY KEY,
	event_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	aggregate_type TEXT NOT NULL,
	aggregate_id TEXT NOT NULL,
	payload_json TEXT NOT NULL,
	error_reason TEXT NOT NULL,
	error_message TEXT,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	failed_at DATETIME,
	created_at DATETIME
)`).Error)
}

func dlqEntry(reason enums.OutboxDLQErrorReason, msg string) models.OutboxDLQ {
	return models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventConsolidatedOrderSent,
		AggregateType: enums.AggregateConsolidatedOrder,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1}`),
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  3,
	}
}

func TestDLQInsertTruncatesMessage(t *testing.T) {
	conn := newOutboxTestDB(t)
	createDLQTable(t, conn)
	repo := NewDLQRepository(conn)

	long := strings.Repeat("é", maxDLQErrorLen)
	require.NoError(t, repo.InsertTx(conn, dlqEntry(enums.OutboxDLQReasonMaxAttempts, long)))

	var stored models.OutboxDLQ
	require.NoError(t, conn.First(&stored).Error)
	require.NotNil(t, stored.ErrorMessage)
	assert.LessOrEqual(t, len(*stored.ErrorMessage), maxDLQErrorLen)
	assert.True(t, strings.HasPrefix(long, *stored.ErrorMessage))
	assert.NotEqual(t, uuid.Nil, stored.ID)
}

func TestDLQInsertRejectsUnknownReason(t *testing.T) {
	conn := newOutboxTestDB(t)
	createDLQTable(t, conn)
	err := NewDLQRepository(conn).InsertTx(conn, dlqEntry("timeout", "x"))
	assert.Error(t, err)
}

func TestDLQDeleteFailedBefore(t *testing.T) {
	conn := newOutboxTestDB(t)
	createDLQTable(t, conn)
	repo := NewDLQRepository(conn)

	old := dlqEntry(enums.OutboxDLQReasonNonRetryable, "old")
	old.FailedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, repo.InsertTx(conn, old))
	require.NoError(t, repo.InsertTx(conn, dlqEntry(enums.OutboxDLQReasonNonRetryable, "fresh")))

	deleted, err := repo.DeleteFailedBefore(context.Background(), conn, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	var remaining int64
	require.NoError(t, conn.Model(&models.OutboxDLQ{}).Count(&remaining).Error)
	assert.EqualValues(t, 1, remaining)
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "abc", truncateUTF8("abc", 5))
	assert.Equal(t, "ab", truncateUTF8("abcd", 2))
	assert.Equal(t, "a", truncateUTF8("aé", 2))
}
