// Package resources tracks the colony's consumable stocks: allocation,
// replenishment, per-capita consumption and depletion forecasting.
package resources

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Kind identifies a tracked resource type.
type Kind string

const (
	Water     Kind = "water"
	Food      Kind = "food"
	Energy    Kind = "energy"
	Oxygen    Kind = "oxygen"
	Materials Kind = "materials"
)

// Kinds lists every resource kind in canonical order.
var Kinds = []Kind{Water, Food, Energy, Oxygen, Materials}

var (
	// ErrInsufficient is returned when an allocation exceeds the
	// available quantity. The ledger is left unchanged.
	ErrInsufficient = errors.New("insufficient resource")
	// ErrUnknownKind is returned for resource kinds the ledger does
	// not track.
	ErrUnknownKind = errors.New("unknown resource kind")
)

// Resource is the tracked state of one resource kind.
type Resource struct {
	Kind     Kind    `json:"kind"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	// BaseRate is the baseline per-capita consumption per sol.
	BaseRate float64 `json:"base_rate"`
}

// Shortage reports a consumption pass that ran a resource dry. It is a
// condition surfaced alongside a successful (clamped) pass, not an
// error: a shortage in one kind never blocks the others.
type Shortage struct {
	Kind    Kind    `json:"kind"`
	Deficit float64 `json:"deficit"`
}

// Forecast is the projected time-to-depletion for one resource kind.
// Known is false when no consumption rate has been observed yet, which
// is distinct from both "unlimited" and a numeric answer.
type Forecast struct {
	Kind          Kind    `json:"kind"`
	DaysRemaining float64 `json:"days_remaining"`
	Known         bool    `json:"known"`
}

// Ledger owns the resource stocks. Every mutating operation holds the
// ledger's own lock for its full duration and never calls into another
// subsystem, so it can be used concurrently from the engine tick loop
// and external command callers.
type Ledger struct {
	mu        sync.Mutex
	resources map[Kind]*Resource
	// lastRates holds the effective total consumption rate per sol
	// observed by the most recent Consume call, used by Forecast.
	lastRates map[Kind]float64
}

// NewLedger builds a ledger from the initial resource set.
func NewLedger(initial []Resource) *Ledger {
	l := &Ledger{
		resources: make(map[Kind]*Resource, len(initial)),
		lastRates: make(map[Kind]float64, len(initial)),
	}
	for _, r := range initial {
		cp := r
		if cp.Quantity < 0 {
			cp.Quantity = 0
		}
		l.resources[r.Kind] = &cp
	}
	return l
}

// Consume subtracts rate × population × simDelta from every kind with a
// configured rate. Quantities never go below zero: an over-draw clamps
// to zero and is reported as a Shortage with the uncovered deficit.
func (l *Ledger) Consume(rates map[Kind]float64, population int, simDelta float64) []Shortage {
	if population <= 0 || simDelta <= 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var shortages []Shortage
	for _, kind := range Kinds {
		rate, ok := rates[kind]
		if !ok || rate <= 0 {
			continue
		}
		res, ok := l.resources[kind]
		if !ok {
			continue
		}

		perSol := rate * float64(population)
		l.lastRates[kind] = perSol

		need := perSol * simDelta
		if need > res.Quantity {
			shortages = append(shortages, Shortage{Kind: kind, Deficit: need - res.Quantity})
			res.Quantity = 0
			continue
		}
		res.Quantity -= need
	}
	return shortages
}

// Allocate is an atomic check-then-subtract. It fails cleanly with
// ErrInsufficient, leaving the quantity unchanged, when amount exceeds
// the current stock.
func (l *Ledger) Allocate(kind Kind, amount float64) error {
	if amount < 0 {
		return fmt.Errorf("negative allocation %.2f of %s", amount, kind)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	res, ok := l.resources[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if amount > res.Quantity {
		return fmt.Errorf("%w: %s has %.2f, requested %.2f", ErrInsufficient, kind, res.Quantity, amount)
	}
	res.Quantity -= amount
	return nil
}

// ApplyDelta adds a signed amount to a resource, enforcing the
// non-negative floor. Used by event application.
func (l *Ledger) ApplyDelta(kind Kind, delta float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, ok := l.resources[kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	res.Quantity += delta
	if res.Quantity < 0 {
		res.Quantity = 0
	}
	return nil
}

// Quantity returns the current stock of one kind.
func (l *Ledger) Quantity(kind Kind) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.resources[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return res.Quantity, nil
}

// Forecast projects days remaining per kind from the rates observed by
// the most recent Consume pass. horizonSols bounds the projection:
// anything further out reports the horizon itself. A horizon <= 0
// leaves the projection unbounded.
func (l *Ledger) Forecast(horizonSols float64) []Forecast {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Forecast, 0, len(l.resources))
	for _, kind := range Kinds {
		res, ok := l.resources[kind]
		if !ok {
			continue
		}
		rate := l.lastRates[kind]
		if rate <= 0 {
			out = append(out, Forecast{Kind: kind})
			continue
		}
		days := res.Quantity / rate
		if horizonSols > 0 && days > horizonSols {
			days = horizonSols
		}
		out = append(out, Forecast{Kind: kind, DaysRemaining: days, Known: true})
	}
	return out
}

// Lock acquires the ledger's lock for a multi-subsystem snapshot.
// Global lock order: Ledger before Scheduler, always.
func (l *Ledger) Lock() { l.mu.Lock() }

// Unlock releases the ledger's lock.
func (l *Ledger) Unlock() { l.mu.Unlock() }

// SnapshotLocked copies the resource set. Caller must hold Lock.
func (l *Ledger) SnapshotLocked() []Resource {
	out := make([]Resource, 0, len(l.resources))
	for _, res := range l.resources {
		out = append(out, *res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Snapshot copies the resource set under the ledger's own lock.
func (l *Ledger) Snapshot() []Resource {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.SnapshotLocked()
}

// RestoreFrom replaces all quantities from a saved resource set. The
// saved kinds must match the configured kinds exactly; otherwise the
// ledger is left untouched and an error is returned for the engine to
// classify as incompatible state.
func (l *Ledger) RestoreFrom(saved []Resource) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(saved) != len(l.resources) {
		return fmt.Errorf("saved resource set has %d kinds, ledger has %d", len(saved), len(l.resources))
	}
	for _, r := range saved {
		if _, ok := l.resources[r.Kind]; !ok {
			return fmt.Errorf("%w: saved kind %s not configured", ErrUnknownKind, r.Kind)
		}
	}

	for _, r := range saved {
		cp := r
		if cp.Quantity < 0 {
			cp.Quantity = 0
		}
		l.resources[r.Kind] = &cp
	}
	l.lastRates = make(map[Kind]float64, len(l.resources))
	return nil
}
