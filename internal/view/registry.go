package view

import (
	"context"
	"errors"
	"sync"
	"time"

	"bookmylawn/internal/domain"
	"bookmylawn/internal/logging"
	"bookmylawn/internal/worker"

	"github.com/rs/zerolog"
)

const (
	availabilityName = "availability"
	billingName      = "billing"
)

// Account bundles the views of one signed-in account. Each view has its own
// subscription, so the two may briefly disagree.
type Account struct {
	OwnerKey     string
	Availability *AvailabilityView
	Billing      *BillingView

	supervisors []*Supervisor
}

// State reports the worst state among the account's subscriptions.
func (a *Account) State() State {
	worst := StateLive
	for _, s := range a.supervisors {
		if st := s.State(); severity(st) > severity(worst) {
			worst = st
		}
	}
	return worst
}

func severity(s State) int {
	switch s {
	case StateLive:
		return 0
	case StateConnecting:
		return 1
	case StateStopped:
		return 2
	default:
		return 3
	}
}

// LastError joins the current failures of the account's subscriptions.
func (a *Account) LastError() error {
	var errs []error
	for _, s := range a.supervisors {
		if err := s.LastError(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WaitReady waits until both views have their first snapshot.
func (a *Account) WaitReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	if err := a.Availability.WaitReady(ctx, timeout); err != nil {
		return err
	}
	return a.Billing.WaitReady(ctx, time.Until(deadline))
}

func (a *Account) stop() {
	for _, s := range a.supervisors {
		s.Stop()
	}
}

// Registry owns the views of every active account.
type Registry struct {
	ctx    context.Context
	store  domain.RecordStore
	policy worker.RetryPolicy
	logger *zerolog.Logger

	mu       sync.Mutex
	accounts map[string]*Account
	closed   bool
}

// NewRegistry creates a registry; subscriptions live until Release, Close or
// the end of ctx.
func NewRegistry(ctx context.Context, store domain.RecordStore, policy worker.RetryPolicy, logger *zerolog.Logger) *Registry {
	return &Registry{
		ctx:      ctx,
		store:    store,
		policy:   policy,
		logger:   logging.Component(logger, "views"),
		accounts: make(map[string]*Account),
	}
}

// Acquire returns the views of ownerKey, starting them on first use.
func (r *Registry) Acquire(ownerKey string) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, domain.ErrViewUnavailable
	}
	if acc, ok := r.accounts[ownerKey]; ok {
		return acc, nil
	}

	acc := &Account{
		OwnerKey:     ownerKey,
		Availability: NewAvailabilityView(),
		Billing:      NewBillingView(),
	}
	acc.supervisors = []*Supervisor{
		NewSupervisor(r.store, ownerKey, availabilityName, acc.Availability.Apply, r.policy, r.logger),
		NewSupervisor(r.store, ownerKey, billingName, acc.Billing.Apply, r.policy, r.logger),
	}
	for _, s := range acc.supervisors {
		s.Start(r.ctx)
	}
	r.accounts[ownerKey] = acc

	r.logger.Debug().Str("partition", ownerKey).Msg("Views started")
	return acc, nil
}

// Get returns already started views without starting new ones.
func (r *Registry) Get(ownerKey string) (*Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[ownerKey]
	return acc, ok
}

// Release tears the views of ownerKey down.
func (r *Registry) Release(ownerKey string) {
	r.mu.Lock()
	acc, ok := r.accounts[ownerKey]
	delete(r.accounts, ownerKey)
	r.mu.Unlock()

	if ok {
		acc.stop()
		r.logger.Debug().Str("partition", ownerKey).Msg("Views released")
	}
}

// Failing reports whether any account has a failing subscription.
func (r *Registry) Failing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, acc := range r.accounts {
		if acc.State() == StateFailing {
			return true
		}
	}
	return false
}

// Len is the number of accounts with live views.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}

// Close releases every account and refuses new ones.
func (r *Registry) Close() {
	r.mu.Lock()
	accounts := r.accounts
	r.accounts = make(map[string]*Account)
	r.closed = true
	r.mu.Unlock()

	for _, acc := range accounts {
		acc.stop()
	}
}
