// Package engine orchestrates the colony simulation: it drives the
// clock, routes generated events into the ledger and the maintenance
// scheduler, and exposes the command and snapshot surface everything
// else builds on.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/lordpba/AEON/internal/clock"
	"github.com/lordpba/AEON/internal/config"
	"github.com/lordpba/AEON/internal/events"
	"github.com/lordpba/AEON/internal/maintenance"
	"github.com/lordpba/AEON/internal/resources"
)

var (
	// ErrInvalidState is returned when a restore is attempted while the
	// simulation clock is running.
	ErrInvalidState = errors.New("simulation must be paused")
	// ErrIncompatibleState is returned when a save document does not
	// match the configured resource or component sets. Nothing is
	// applied.
	ErrIncompatibleState = errors.New("incompatible save state")
)

// TickSummary is what listeners see after each completed tick. State
// is the snapshot taken at the end of the same tick, so a listener
// never has to poll for the state that produced the numbers beside it.
type TickSummary struct {
	Sol           float64              `json:"sol"`
	SimDelta      float64              `json:"sim_delta"`
	OverallHealth float64              `json:"overall_health"`
	Shortages     []resources.Shortage `json:"shortages,omitempty"`
	EventsFired   int                  `json:"events_fired"`
	State         Snapshot             `json:"state"`
}

// Listener observes the simulation. Callbacks run synchronously on the
// tick goroutine in registration order; a panicking listener is
// contained and logged, never taking the loop down. Listeners must not
// call back into engine commands.
type Listener interface {
	OnTick(TickSummary)
	OnEvent(events.Event)
}

// Environment feeds external stress into the simulation: a degradation
// load factor for the scheduler and a probability weight for solar
// storms.
type Environment interface {
	Stress(sol float64) (loadFactor, stormWeight float64)
}

// Engine owns the simulation subsystems. Commands may be called from
// any goroutine; each delegates to exactly one subsystem, which
// serializes internally. Multi-subsystem reads go through Snapshot,
// which takes the subsystem locks in the fixed global order (ledger
// before scheduler).
type Engine struct {
	cfg *config.Config
	log *slog.Logger

	clock     *clock.Clock
	ledger    *resources.Ledger
	scheduler *maintenance.Scheduler
	generator *events.Generator
	history   *events.History

	env Environment

	mu        sync.Mutex
	listeners []Listener

	// inShortage tracks which kinds were dry on the previous consume
	// pass so a persistent shortage raises one event, not one per tick.
	// Touched only by the tick goroutine.
	inShortage map[resources.Kind]bool
}

// New wires an engine from a validated configuration. The random
// source drives event generation; pass a seeded one for reproducible
// runs.
func New(cfg *config.Config, logger *slog.Logger, rng *rand.Rand) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	clk, err := clock.New(cfg.TimeScale)
	if err != nil {
		return nil, err
	}
	gen, err := events.NewGenerator(events.GeneratorConfig{
		Probabilities:     cfg.EventProbabilities,
		FailureTargets:    cfg.ComponentIDs(),
		SolarStormTargets: cfg.ComponentIDsByCategory("power", "comms"),
	}, rng)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:        cfg,
		log:        logger,
		clock:      clk,
		ledger:     resources.NewLedger(cfg.ResourceSet()),
		scheduler:  maintenance.NewScheduler(cfg.ComponentSet(), cfg.RepairedHealth),
		generator:  gen,
		history:    events.NewHistory(cfg.HistoryCap),
		inShortage: make(map[resources.Kind]bool),
	}, nil
}

// SetEnvironment attaches an external stress model, sampled once per
// tick. Must be called before Run.
func (e *Engine) SetEnvironment(env Environment) {
	e.env = env
}

// Subscribe registers a listener. Notification order is registration
// order.
func (e *Engine) Subscribe(l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

func (e *Engine) currentListeners() []Listener {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Listener, len(e.listeners))
	copy(out, e.listeners)
	return out
}

// Sol returns the current simulated time in sols.
func (e *Engine) Sol() float64 { return e.clock.Sol() }

// LocalTime returns the time of day within the current sol as HH:MM.
func (e *Engine) LocalTime() string { return e.clock.LocalTime() }

// Speed returns the current clock speed multiplier.
func (e *Engine) Speed() float64 { return e.clock.Speed() }

// Paused reports whether the simulation clock is paused.
func (e *Engine) Paused() bool { return e.clock.Paused() }

// SetSpeed changes the clock speed multiplier.
func (e *Engine) SetSpeed(speed float64) error {
	if err := e.clock.SetSpeed(speed); err != nil {
		return err
	}
	e.log.Info("speed changed", "speed", speed)
	return nil
}

// Pause stops simulated time. Idempotent.
func (e *Engine) Pause() {
	e.clock.Pause()
	e.log.Info("simulation paused", "sol", e.clock.Sol())
}

// Resume restarts simulated time. Idempotent.
func (e *Engine) Resume() {
	e.clock.Resume()
	e.log.Info("simulation resumed", "sol", e.clock.Sol())
}

// AllocateResource withdraws an amount from one resource stock,
// failing atomically when the stock cannot cover it.
func (e *Engine) AllocateResource(kind resources.Kind, amount float64) error {
	if err := e.ledger.Allocate(kind, amount); err != nil {
		return err
	}
	e.log.Info("resources allocated", "kind", kind, "amount", amount)
	return nil
}

// Forecast projects days remaining per resource kind, bounded by the
// given horizon in sols (<= 0 for unbounded).
func (e *Engine) Forecast(horizonSols float64) []resources.Forecast {
	return e.ledger.Forecast(horizonSols)
}

// Components returns copies of every monitored component.
func (e *Engine) Components() []maintenance.Component { return e.scheduler.Snapshot() }

// Queue returns copies of the pending repair tasks.
func (e *Engine) Queue() []maintenance.Task { return e.scheduler.Queue() }

// Anomalies returns the components currently in critical or failed
// condition.
func (e *Engine) Anomalies() []maintenance.Component { return e.scheduler.DetectAnomalies() }

// OverallHealth is the weighted average component health.
func (e *Engine) OverallHealth() float64 { return e.scheduler.OverallHealth() }

// RecentEvents returns the most recent n retained events, oldest
// first; n <= 0 returns everything retained.
func (e *Engine) RecentEvents(n int) []events.Event { return e.history.Recent(n) }

// ActiveEvents returns every unresolved event.
func (e *Engine) ActiveEvents() []events.Event { return e.history.Active() }

// ResolveEvent marks an event handled.
func (e *Engine) ResolveEvent(id string) error { return e.history.Resolve(id) }

// ScheduleRepair queues a repair for a component. Idempotent per
// component; returns the task id.
func (e *Engine) ScheduleRepair(componentID string) (string, error) {
	id, err := e.scheduler.ScheduleRepair(componentID, e.clock.Sol())
	if err != nil {
		return "", err
	}
	e.log.Info("repair scheduled", "component", componentID, "task", id)
	return id, nil
}

// ServiceNextRepair performs the worst pending repair. Returns false
// for an empty queue.
func (e *Engine) ServiceNextRepair() (maintenance.Component, bool) {
	c, ok := e.scheduler.ServiceNext(e.clock.Sol())
	if ok {
		e.log.Info("repair completed", "component", c.ID, "health", c.Health)
	}
	return c, ok
}

// EmergencyRepair restores a component to full health immediately,
// charging the materials stock the emergency premium. The charge and
// the repair succeed or fail together: an unpayable cost returns
// ErrInsufficientBudget with neither applied.
func (e *Engine) EmergencyRepair(componentID string) error {
	cost, err := e.scheduler.EmergencyCost(componentID)
	if err != nil {
		return err
	}
	approved := e.ledger.Allocate(resources.Materials, cost) == nil
	if err := e.scheduler.EmergencyRepair(componentID, approved, e.clock.Sol()); err != nil {
		return fmt.Errorf("emergency repair of %s (cost %.1f): %w", componentID, cost, err)
	}
	e.log.Warn("emergency repair", "component", componentID, "cost", cost)
	return nil
}
