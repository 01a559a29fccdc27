package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"bookmylawn/internal/database"
	"bookmylawn/internal/domain"
	"bookmylawn/internal/logging"
	"bookmylawn/internal/metrics"
	"bookmylawn/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store is the partitioned booking record store. Records live in sqlite,
// change signals travel through the Notifier.
type Store struct {
	repo     domain.BookingRepository
	notifier Notifier
	logger   *zerolog.Logger
	now      func() time.Time
}

var _ domain.RecordStore = (*Store)(nil)

func New(repo domain.BookingRepository, notifier Notifier, logger *zerolog.Logger) *Store {
	return &Store{
		repo:     repo,
		notifier: notifier,
		logger:   logging.Component(logger, "store"),
		now:      time.Now,
	}
}

// Snapshot loads the full record collection of a partition.
func (s *Store) Snapshot(ctx context.Context, partitionKey string) (models.Snapshot, error) {
	records, err := s.repo.ListBookings(ctx, partitionKey)
	if err != nil {
		return nil, err
	}
	return models.NewSnapshot(records), nil
}

func (s *Store) CreateRecord(ctx context.Context, partitionKey string, record *models.Booking) (string, error) {
	if record == nil {
		return "", &domain.WriteError{Op: "create", PartitionKey: partitionKey, Err: errors.New("nil record")}
	}

	rec := record.Clone()
	rec.ID = uuid.NewString()
	rec.OwnerKey = partitionKey
	if rec.CreatedAt == "" {
		rec.CreatedAt = s.now().UTC().Format(time.RFC3339)
	}

	if err := s.repo.InsertBooking(ctx, rec); err != nil {
		return "", &domain.WriteError{Op: "create", PartitionKey: partitionKey, RecordID: rec.ID, Err: err}
	}

	s.notify(ctx, partitionKey)
	return rec.ID, nil
}

func (s *Store) UpdateRecord(ctx context.Context, partitionKey, id string, partial map[string]any) error {
	if err := s.repo.MergeBooking(ctx, partitionKey, id, partial); err != nil {
		return &domain.WriteError{Op: "update", PartitionKey: partitionKey, RecordID: id, Err: err}
	}
	s.notify(ctx, partitionKey)
	return nil
}

func (s *Store) DeleteRecord(ctx context.Context, partitionKey, id string) error {
	if err := s.repo.DeleteBooking(ctx, partitionKey, id); err != nil {
		return &domain.WriteError{Op: "delete", PartitionKey: partitionKey, RecordID: id, Err: err}
	}
	s.notify(ctx, partitionKey)
	return nil
}

func (s *Store) GetRecord(ctx context.Context, partitionKey, id string) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, partitionKey, id)
}

// notify не возвращает ошибку: запись уже сохранена, подписчики догонят при следующем изменении
func (s *Store) notify(ctx context.Context, partitionKey string) {
	if err := s.notifier.Notify(ctx, partitionKey); err != nil {
		s.logger.Warn().Err(err).Str("partition", partitionKey).Msg("Failed to publish change notification")
	}
}

// Subscribe delivers the current snapshot and then a fresh snapshot after
// every change of the partition. Deliveries are serialized; changes that
// pile up while onChange runs collapse into one delivery.
func (s *Store) Subscribe(ctx context.Context, partitionKey string, onChange func(models.Snapshot)) (domain.Subscription, error) {
	listener, err := s.notifier.Listen(ctx, partitionKey)
	if err != nil {
		return nil, &domain.SubscriptionError{PartitionKey: partitionKey, Err: err}
	}

	initial, err := s.Snapshot(ctx, partitionKey)
	if err != nil {
		_ = listener.Close()
		return nil, &domain.SubscriptionError{PartitionKey: partitionKey, Err: err}
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		partitionKey: partitionKey,
		listener:     listener,
		cancel:       cancel,
		done:         make(chan struct{}),
		errs:         make(chan error, 1),
	}

	metrics.SubscriptionOpened()
	go sub.run(subCtx, s, initial, onChange)
	return sub, nil
}

// Subscription is one live registration returned by Store.Subscribe.
type Subscription struct {
	partitionKey string
	listener     Listener
	cancel       context.CancelFunc
	done         chan struct{}
	errs         chan error
	once         sync.Once
}

func (sub *Subscription) run(ctx context.Context, s *Store, initial models.Snapshot, onChange func(models.Snapshot)) {
	defer close(sub.done)
	defer metrics.SubscriptionClosed()

	sub.deliver(s.logger, onChange, initial)
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.listener.Err():
			sub.fail(err)
			return
		case <-sub.listener.C():
			snap, err := s.Snapshot(ctx, sub.partitionKey)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				sub.fail(fmt.Errorf("reload snapshot: %w", err))
				return
			}
			sub.deliver(s.logger, onChange, snap)
		}
	}
}

func (sub *Subscription) deliver(logger *zerolog.Logger, onChange func(models.Snapshot), snap models.Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Str("partition", sub.partitionKey).Msg("Snapshot handler panicked")
		}
	}()
	onChange(snap)
}

func (sub *Subscription) fail(err error) {
	sub.errs <- &domain.SubscriptionError{PartitionKey: sub.partitionKey, Err: err}
}

// Err yields one *domain.SubscriptionError if the change channel breaks.
func (sub *Subscription) Err() <-chan error { return sub.errs }

// Unsubscribe stops deliveries and waits for an in-flight onChange to
// return. It must not be called from inside onChange.
func (sub *Subscription) Unsubscribe() {
	sub.once.Do(func() {
		sub.cancel()
		_ = sub.listener.Close()
		<-sub.done
	})
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}
