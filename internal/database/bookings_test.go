package database

import (
	"context"
	"testing"
	"time"

	"bookmylawn/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBooking(id, owner string, dates ...string) *models.Booking {
	return &models.Booking{
		ID:                  id,
		OwnerKey:            owner,
		CustomerName:        "Asha",
		Contact:             "9876543210",
		Address:             "12 Lake Road",
		Dates:               dates,
		TotalAmount:         decimal.NewFromInt(1000),
		AdvanceAmount:       decimal.NewFromInt(200),
		TotalReceivedAmount: decimal.NewFromInt(400),
		RemainingAmount:     decimal.NewFromInt(600),
		PaymentStatus:       models.PaymentPartiallyPaid,
		CreatedAt:           time.Now().UTC().Format(time.RFC3339),
	}
}

func TestBookingsCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	b := newBooking("b1", "owner-1", "2025-03-10", "2025-03-11")
	require.NoError(t, db.InsertBooking(ctx, b))

	got, err := db.GetBooking(ctx, "owner-1", "b1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", got.CustomerName)
	assert.Equal(t, []string{"2025-03-10", "2025-03-11"}, got.Dates)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, got.RemainingAmount.Equal(decimal.NewFromInt(600)))
	assert.Equal(t, models.PaymentPartiallyPaid, got.PaymentStatus)
	assert.Equal(t, b.CreatedAt, got.CreatedAt)

	t.Run("PartitionIsolation", func(t *testing.T) {
		_, err := db.GetBooking(ctx, "owner-2", "b1")
		assert.ErrorIs(t, err, ErrNotFound)

		list, err := db.ListBookings(ctx, "owner-2")
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("List", func(t *testing.T) {
		require.NoError(t, db.InsertBooking(ctx, newBooking("a0", "owner-1", "2025-04-01")))
		list, err := db.ListBookings(ctx, "owner-1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "a0", list[0].ID)
	})

	t.Run("DuplicateID", func(t *testing.T) {
		assert.Error(t, db.InsertBooking(ctx, newBooking("b1", "owner-1", "2025-05-01")))
	})
}

func TestMergeBooking(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.InsertBooking(ctx, newBooking("b1", "owner-1", "2025-03-10")))

	err := db.MergeBooking(ctx, "owner-1", "b1", map[string]any{
		models.FieldTotalReceivedAmount: "1000",
		models.FieldRemainingAmount:     0,
		models.FieldPaymentStatus:       models.PaymentFullyPaid,
		models.FieldDates:               []interface{}{"2025-03-12"},
	})
	require.NoError(t, err)

	got, err := db.GetBooking(ctx, "owner-1", "b1")
	require.NoError(t, err)
	assert.True(t, got.TotalReceivedAmount.Equal(decimal.NewFromInt(1000)))
	assert.True(t, got.RemainingAmount.IsZero())
	assert.Equal(t, models.PaymentFullyPaid, got.PaymentStatus)
	assert.Equal(t, []string{"2025-03-12"}, got.Dates)
	// нетронутые поля остаются
	assert.Equal(t, "Asha", got.CustomerName)
	assert.Equal(t, "9876543210", got.Contact)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(1000)))

	t.Run("UnknownField", func(t *testing.T) {
		err := db.MergeBooking(ctx, "owner-1", "b1", map[string]any{"id": "other"})
		assert.ErrorIs(t, err, ErrInvalidField)
	})

	t.Run("WrongType", func(t *testing.T) {
		assert.ErrorIs(t, db.MergeBooking(ctx, "owner-1", "b1", map[string]any{models.FieldCustomerName: 5}), ErrInvalidField)
		assert.ErrorIs(t, db.MergeBooking(ctx, "owner-1", "b1", map[string]any{models.FieldDates: "2025-01-01"}), ErrInvalidField)
	})

	t.Run("Missing", func(t *testing.T) {
		err := db.MergeBooking(ctx, "owner-1", "nope", map[string]any{models.FieldAddress: "x"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Empty", func(t *testing.T) {
		assert.NoError(t, db.MergeBooking(ctx, "owner-1", "nope", nil))
	})
}

func TestBookings_MalformedStoredValues(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `INSERT INTO bookings (id, owner_key, dates, total_amount, total_received_amount, created_at, updated_at)
		VALUES ('legacy', 'owner-1', 'not json', '1,500', 'abc', '2024-01-01', ?)`, time.Now().UTC())
	require.NoError(t, err)

	got, err := db.GetBooking(ctx, "owner-1", "legacy")
	require.NoError(t, err)
	assert.Nil(t, got.Dates)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(1500)))
	assert.True(t, got.TotalReceivedAmount.IsZero())
	assert.True(t, got.AdvanceAmount.IsZero())
}

func TestDeleteBooking(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.InsertBooking(ctx, newBooking("b1", "owner-1", "2025-03-10")))

	assert.ErrorIs(t, db.DeleteBooking(ctx, "owner-2", "b1"), ErrNotFound)
	require.NoError(t, db.DeleteBooking(ctx, "owner-1", "b1"))
	assert.ErrorIs(t, db.DeleteBooking(ctx, "owner-1", "b1"), ErrNotFound)
}
