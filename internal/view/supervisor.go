package view

import (
	"context"
	"sync"
	"time"

	"bookmylawn/internal/domain"
	"bookmylawn/internal/logging"
	"bookmylawn/internal/metrics"
	"bookmylawn/internal/models"
	"bookmylawn/internal/worker"

	"github.com/rs/zerolog"
)

// State is the connection state of a supervised subscription.
type State int

const (
	StateConnecting State = iota
	StateLive
	StateFailing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateFailing:
		return "failing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Supervisor keeps one subscription alive. When the change channel fails it
// resubscribes after an exponential backoff until stopped. The policy's
// MaxRetries is ignored: a view never gives up.
type Supervisor struct {
	store        domain.RecordStore
	partitionKey string
	name         string
	apply        func(models.Snapshot)
	policy       worker.RetryPolicy
	logger       *zerolog.Logger

	mu      sync.RWMutex
	state   State
	lastErr error

	cancel context.CancelFunc
	done   chan struct{}
}

func NewSupervisor(store domain.RecordStore, partitionKey, name string, apply func(models.Snapshot), policy worker.RetryPolicy, logger *zerolog.Logger) *Supervisor {
	l := logging.Component(logger, "view").With().Str("view", name).Str("partition", partitionKey).Logger()
	return &Supervisor{
		store:        store,
		partitionKey: partitionKey,
		name:         name,
		apply:        apply,
		policy:       policy,
		logger:       &l,
		state:        StateConnecting,
	}
}

// Start launches the supervision loop. It must be called once.
func (s *Supervisor) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop tears the subscription down and waits for the loop to exit.
func (s *Supervisor) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.setState(StateStopped, nil)
}

func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastError is the most recent subscription failure, nil once live again.
func (s *Supervisor) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *Supervisor) setState(state State, err error) {
	s.mu.Lock()
	s.state = state
	s.lastErr = err
	s.mu.Unlock()
}

func (s *Supervisor) onSnapshot(snap models.Snapshot) {
	s.apply(snap)
	metrics.IncSnapshotApplied(s.name)
	s.setState(StateLive, nil)
}

func (s *Supervisor) loop(ctx context.Context) {
	defer close(s.done)

	attempt := 0
	for {
		sub, err := s.store.Subscribe(ctx, s.partitionKey, s.onSnapshot)
		if err == nil {
			attempt = 0
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
				return
			case err = <-sub.Err():
				sub.Unsubscribe()
			}
		}
		if ctx.Err() != nil {
			return
		}

		attempt++
		delay := s.policy.NextDelay(attempt)
		s.setState(StateFailing, err)
		metrics.IncSubscriptionRestart(s.name)
		s.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("Subscription failed, resubscribing")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
