package view

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bookmylawn/internal/database"
	"bookmylawn/internal/domain"
	"bookmylawn/internal/models"
	"bookmylawn/internal/store"
	"bookmylawn/internal/worker"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

var fastPolicy = worker.RetryPolicy{InitialDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond, BackoffFactor: 2}

type fakeSub struct {
	errs         chan error
	unsubscribed chan struct{}
	once         sync.Once
}

func (s *fakeSub) Unsubscribe()      { s.once.Do(func() { close(s.unsubscribed) }) }
func (s *fakeSub) Err() <-chan error { return s.errs }

// fakeStore serves a fixed snapshot and lets tests break subscriptions.
type fakeStore struct {
	mu            sync.Mutex
	snapshot      models.Snapshot
	subscribeErrs []error
	subs          []*fakeSub
	calls         int
}

func (f *fakeStore) Subscribe(_ context.Context, key string, onChange func(models.Snapshot)) (domain.Subscription, error) {
	f.mu.Lock()
	f.calls++
	if len(f.subscribeErrs) > 0 {
		err := f.subscribeErrs[0]
		f.subscribeErrs = f.subscribeErrs[1:]
		f.mu.Unlock()
		return nil, &domain.SubscriptionError{PartitionKey: key, Err: err}
	}
	sub := &fakeSub{errs: make(chan error, 1), unsubscribed: make(chan struct{})}
	f.subs = append(f.subs, sub)
	snap := f.snapshot
	f.mu.Unlock()

	onChange(snap)
	return sub, nil
}

func (f *fakeStore) CreateRecord(context.Context, string, *models.Booking) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeStore) UpdateRecord(context.Context, string, string, map[string]any) error {
	return errors.New("not implemented")
}

func (f *fakeStore) DeleteRecord(context.Context, string, string) error {
	return errors.New("not implemented")
}

func (f *fakeStore) GetRecord(context.Context, string, string) (*models.Booking, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeStore) breakLatest(key string) {
	f.mu.Lock()
	sub := f.subs[len(f.subs)-1]
	f.mu.Unlock()
	sub.errs <- &domain.SubscriptionError{PartitionKey: key, Err: errors.New("channel closed")}
}

func (f *fakeStore) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func bookingOn(id string, dates ...string) *models.Booking {
	return &models.Booking{ID: id, CustomerName: id, Dates: dates, TotalAmount: decimal.NewFromInt(1000)}
}

func TestAvailabilityView(t *testing.T) {
	v := NewAvailabilityView()
	assert.ErrorIs(t, v.WaitReady(context.Background(), 10*time.Millisecond), domain.ErrViewUnavailable)

	v.Apply(models.NewSnapshot([]*models.Booking{bookingOn("b1", "2024-03-01", "2024-03-02")}))
	require.NoError(t, v.WaitReady(context.Background(), time.Second))
	assert.True(t, v.IsReserved("2024-03-02"))

	reserved := v.Reserved()
	delete(reserved, "2024-03-01")
	assert.True(t, v.IsReserved("2024-03-01"), "Reserved returns a copy")

	v.Apply(nil)
	assert.False(t, v.IsReserved("2024-03-01"), "snapshot replaces, never merges")
	assert.Empty(t, v.Reserved())
}

func TestBillingView(t *testing.T) {
	v := NewBillingView()
	b := bookingOn("b1", "2024-03-10")
	b.TotalReceivedAmount = decimal.NewFromInt(400)
	v.Apply(models.NewSnapshot([]*models.Booking{b}))

	b.CustomerName = "mutated"
	got, ok := v.Record("b1")
	require.True(t, ok)
	assert.Equal(t, "b1", got.CustomerName, "view holds its own copy")

	summary, err := v.Summary(3, 2024, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.BookingCount)
	assert.True(t, summary.TotalRemaining.Equal(decimal.NewFromInt(600)))
	assert.Equal(t, 1, v.Upcoming(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	_, ok = v.Record("missing")
	assert.False(t, ok)
}

func TestSupervisor_GoesLive(t *testing.T) {
	fs := &fakeStore{snapshot: models.NewSnapshot([]*models.Booking{bookingOn("b1", "2024-03-01")})}
	av := NewAvailabilityView()
	s := NewSupervisor(fs, "owner-1", "availability", av.Apply, fastPolicy, nopLogger())
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return s.State() == StateLive }, waitFor, 5*time.Millisecond)
	assert.True(t, av.IsReserved("2024-03-01"))
	assert.NoError(t, s.LastError())
}

func TestSupervisor_ResubscribesAfterFailure(t *testing.T) {
	fs := &fakeStore{}
	policy := worker.RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}
	s := NewSupervisor(fs, "owner-1", "billing", func(models.Snapshot) {}, policy, nopLogger())
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return s.State() == StateLive }, waitFor, 5*time.Millisecond)

	fs.breakLatest("owner-1")
	require.Eventually(t, func() bool { return s.State() == StateFailing }, waitFor, 2*time.Millisecond)

	var subErr *domain.SubscriptionError
	assert.ErrorAs(t, s.LastError(), &subErr)

	require.Eventually(t, func() bool { return s.State() == StateLive }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 2, fs.callCount())
	assert.NoError(t, s.LastError())

	fs.mu.Lock()
	first := fs.subs[0]
	fs.mu.Unlock()
	select {
	case <-first.unsubscribed:
	default:
		t.Fatal("failed subscription was not torn down")
	}
}

func TestSupervisor_RetriesInitialSubscribe(t *testing.T) {
	fs := &fakeStore{subscribeErrs: []error{errors.New("down"), errors.New("still down")}}
	s := NewSupervisor(fs, "owner-1", "availability", func(models.Snapshot) {}, fastPolicy, nopLogger())
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return s.State() == StateLive }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 3, fs.callCount())
}

func TestSupervisor_StopUnsubscribes(t *testing.T) {
	fs := &fakeStore{}
	s := NewSupervisor(fs, "owner-1", "availability", func(models.Snapshot) {}, fastPolicy, nopLogger())
	s.Start(context.Background())
	require.Eventually(t, func() bool { return s.State() == StateLive }, waitFor, 5*time.Millisecond)

	s.Stop()
	assert.Equal(t, StateStopped, s.State())

	fs.mu.Lock()
	sub := fs.subs[0]
	fs.mu.Unlock()
	select {
	case <-sub.unsubscribed:
	default:
		t.Fatal("expected unsubscribe on stop")
	}
}

func TestRegistry_AcquireRelease(t *testing.T) {
	fs := &fakeStore{}
	r := NewRegistry(context.Background(), fs, fastPolicy, nopLogger())
	defer r.Close()

	acc, err := r.Acquire("owner-1")
	require.NoError(t, err)
	again, err := r.Acquire("owner-1")
	require.NoError(t, err)
	assert.Same(t, acc, again)
	assert.Equal(t, 1, r.Len())

	require.NoError(t, acc.WaitReady(context.Background(), waitFor))
	require.Eventually(t, func() bool { return acc.State() == StateLive }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 2, fs.callCount(), "one subscription per view")

	r.Release("owner-1")
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, StateStopped, acc.State())
	_, ok := r.Get("owner-1")
	assert.False(t, ok)
}

func TestRegistry_FailingAndClose(t *testing.T) {
	fs := &fakeStore{}
	policy := worker.RetryPolicy{InitialDelay: time.Second, MaxDelay: time.Second, BackoffFactor: 1}
	r := NewRegistry(context.Background(), fs, policy, nopLogger())

	acc, err := r.Acquire("owner-1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return acc.State() == StateLive }, waitFor, 5*time.Millisecond)
	assert.False(t, r.Failing())

	fs.breakLatest("owner-1")
	require.Eventually(t, r.Failing, waitFor, 5*time.Millisecond)
	assert.Error(t, acc.LastError())

	r.Close()
	assert.Equal(t, 0, r.Len())
	_, err = r.Acquire("owner-2")
	assert.ErrorIs(t, err, domain.ErrViewUnavailable)
}

func TestRegistry_WithRecordStore(t *testing.T) {
	logger := nopLogger()
	db, err := database.NewDB(":memory:", logger)
	require.NoError(t, err)
	defer db.Close()

	st := store.New(db, store.NewMemoryNotifier(nil), logger)
	r := NewRegistry(context.Background(), st, fastPolicy, logger)
	defer r.Close()

	acc, err := r.Acquire("owner-1")
	require.NoError(t, err)
	require.NoError(t, acc.WaitReady(context.Background(), waitFor))
	assert.Empty(t, acc.Availability.Reserved())

	_, err = st.CreateRecord(context.Background(), "owner-1", &models.Booking{
		CustomerName: "Asha",
		Contact:      "9876543210",
		Dates:        []string{"2024-03-01", "2024-03-02"},
		TotalAmount:  decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return acc.Availability.IsReserved("2024-03-02") }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(acc.Billing.Records()) == 1 }, waitFor, 5*time.Millisecond)
}
