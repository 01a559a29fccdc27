package database

import (
	"context"
	"testing"
	"time"

	"bookmylawn/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutbox(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	event := &models.OutboxEvent{EventType: "booking_created", AggregateID: "b1", Payload: `{"booking_id":"b1"}`}
	require.NoError(t, db.CreateOutboxEvent(ctx, event))
	assert.NotZero(t, event.ID)
	assert.Equal(t, models.OutboxPending, event.Status)

	pending, err := db.GetPendingOutboxEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b1", pending[0].AggregateID)

	claimed, err := db.ClaimOutboxEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.True(t, claimed)
	claimed, err = db.ClaimOutboxEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, db.UpdateOutboxStatus(ctx, event.ID, models.OutboxCompleted, "", nil))
	pending, err = db.GetPendingOutboxEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	t.Run("RetryIsDeferred", func(t *testing.T) {
		e := &models.OutboxEvent{EventType: "booking_updated", AggregateID: "b2", Payload: "{}"}
		require.NoError(t, db.CreateOutboxEvent(ctx, e))

		later := time.Now().Add(time.Hour)
		require.NoError(t, db.UpdateOutboxStatus(ctx, e.ID, models.OutboxRetry, "broker down", &later))

		pending, err := db.GetPendingOutboxEvents(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("Failed", func(t *testing.T) {
		e := &models.OutboxEvent{EventType: "booking_updated", AggregateID: "b3", Payload: "{}"}
		require.NoError(t, db.CreateOutboxEvent(ctx, e))
		require.NoError(t, db.UpdateOutboxStatus(ctx, e.ID, models.OutboxFailed, "gave up", nil))

		failed, err := db.GetFailedOutboxEvents(ctx)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		require.NotNil(t, failed[0].LastError)
		assert.Equal(t, "gave up", *failed[0].LastError)
		assert.NotNil(t, failed[0].ProcessedAt)
	})

	t.Run("UnknownStatus", func(t *testing.T) {
		assert.Error(t, db.UpdateOutboxStatus(ctx, event.ID, "weird", "", nil))
	})
}
