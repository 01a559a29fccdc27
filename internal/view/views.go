// Package view keeps per-account read models in sync with the record store.
package view

import (
	"context"
	"sync"
	"time"

	"bookmylawn/internal/billing"
	"bookmylawn/internal/domain"
	"bookmylawn/internal/ledger"
	"bookmylawn/internal/models"
)

// readiness closes its channel on the first applied snapshot.
type readiness struct {
	once  sync.Once
	ready chan struct{}
}

func (r *readiness) markReady() {
	r.once.Do(func() { close(r.ready) })
}

// Ready is closed once the view has seen its first snapshot.
func (r *readiness) Ready() <-chan struct{} { return r.ready }

// WaitReady blocks until the first snapshot, ctx ends or timeout passes.
func (r *readiness) WaitReady(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-r.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return domain.ErrViewUnavailable
	}
}

// AvailabilityView holds the reserved dates of one account.
type AvailabilityView struct {
	readiness
	mu       sync.RWMutex
	reserved ledger.ReservedSet
}

func NewAvailabilityView() *AvailabilityView {
	return &AvailabilityView{readiness: readiness{ready: make(chan struct{})}, reserved: ledger.ReservedSet{}}
}

// Apply replaces the reserved set with the one derived from snap.
func (v *AvailabilityView) Apply(snap models.Snapshot) {
	reserved := ledger.DeriveReservedDates(snap)
	v.mu.Lock()
	v.reserved = reserved
	v.mu.Unlock()
	v.markReady()
}

// Reserved returns a copy of the current reserved set.
func (v *AvailabilityView) Reserved() ledger.ReservedSet {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make(ledger.ReservedSet, len(v.reserved))
	for d, s := range v.reserved {
		out[d] = s
	}
	return out
}

func (v *AvailabilityView) IsReserved(date string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return ledger.IsDateReserved(v.reserved, date)
}

// BillingView holds the record collection the billing screens aggregate over.
type BillingView struct {
	readiness
	mu      sync.RWMutex
	records models.Snapshot
}

func NewBillingView() *BillingView {
	return &BillingView{readiness: readiness{ready: make(chan struct{})}}
}

// Apply replaces the held records with snap.
func (v *BillingView) Apply(snap models.Snapshot) {
	records := snap.Clone()
	v.mu.Lock()
	v.records = records
	v.mu.Unlock()
	v.markReady()
}

// Records returns a deep copy of the held records.
func (v *BillingView) Records() models.Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.records.Clone()
}

func (v *BillingView) Record(id string) (*models.Booking, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	r, ok := v.records[id]
	if !ok || r == nil {
		return nil, false
	}
	return r.Clone(), true
}

func (v *BillingView) Summary(month, year int, now time.Time) (billing.PeriodSummary, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return billing.SummarizePeriod(v.records, month, year, now)
}

func (v *BillingView) Upcoming(now time.Time) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return billing.CountUpcoming(v.records, now)
}

func (v *BillingView) Dashboard(now time.Time) billing.DashboardSummary {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return billing.Dashboard(v.records, now)
}
