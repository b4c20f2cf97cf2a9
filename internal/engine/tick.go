package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lordpba/AEON/internal/events"
	"github.com/lordpba/AEON/internal/resources"
)

// Run drives the simulation loop until the context is cancelled. Each
// tick measures the wall time actually elapsed rather than assuming
// the nominal interval, so a stalled scheduler or a slow tick does not
// lose simulated time.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Duration(e.cfg.TickMillis) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.log.Info("engine started",
		"colony", e.cfg.Name,
		"population", e.cfg.Population,
		"speed", e.clock.Speed(),
		"tick_interval", interval,
	)

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine stopped", "sol", e.clock.Sol())
			return ctx.Err()
		case now := <-ticker.C:
			e.step(now.Sub(last))
			last = now
		}
	}
}

// Step advances the simulation by an explicit wall-clock delta. Run
// calls it from the tick loop; tests and headless drivers call it
// directly.
func (e *Engine) Step(wall time.Duration) {
	e.step(wall)
}

// step is the single tick pipeline. Order matters: environment stress
// is sampled first, events are generated and applied before the
// consumption and degradation passes, so a tick's events influence the
// same tick's subsystem updates.
func (e *Engine) step(wall time.Duration) {
	simDelta := e.clock.Advance(wall)
	if simDelta <= 0 {
		return
	}
	nowSol := e.clock.Sol()

	if e.env != nil {
		load, storm := e.env.Stress(nowSol)
		e.scheduler.SetLoadFactor(load)
		e.generator.SetSolarStormWeight(storm)
	}

	fired := e.generator.Propose(simDelta, nowSol)
	for _, ev := range fired {
		e.apply(ev)
		e.history.Append(ev)
		e.notifyEvent(ev)
	}

	shortages := e.ledger.Consume(e.cfg.ConsumptionRates, e.cfg.Population, simDelta)
	e.reportShortages(shortages, nowSol)

	e.scheduler.Tick(simDelta, nowSol)

	snap := e.Snapshot()
	e.notifyTick(TickSummary{
		Sol:           nowSol,
		SimDelta:      simDelta,
		OverallHealth: snap.OverallHealth,
		Shortages:     shortages,
		EventsFired:   len(fired),
		State:         snap,
	})
}

// apply routes an event's deltas into the owning subsystems. Deltas
// aimed at untracked targets are logged and skipped; a generated event
// never aborts a tick.
func (e *Engine) apply(ev events.Event) {
	for kind, delta := range ev.ResourceDeltas {
		if err := e.ledger.ApplyDelta(kind, delta); err != nil {
			e.log.Warn("event resource delta dropped", "event", ev.ID, "kind", kind, "err", err)
		}
	}
	for id, delta := range ev.HealthDeltas {
		if err := e.scheduler.ApplyDamage(id, delta, ev.Sol); err != nil {
			e.log.Warn("event health delta dropped", "event", ev.ID, "component", id, "err", err)
		}
	}
	e.log.Info("event applied",
		"event", ev.ID,
		"category", ev.Category,
		"severity", ev.Severity.String(),
		"sol", ev.Sol,
	)
}

// reportShortages raises a resource crisis event for each kind that
// just ran dry. A kind already in shortage stays silent until it
// recovers, so a persistent deficit is one event, not one per tick.
func (e *Engine) reportShortages(shortages []resources.Shortage, nowSol float64) {
	dry := make(map[resources.Kind]bool, len(shortages))
	for _, sh := range shortages {
		dry[sh.Kind] = true
		if e.inShortage[sh.Kind] {
			continue
		}
		e.inShortage[sh.Kind] = true

		ev := events.Event{
			ID:          uuid.NewString(),
			Category:    events.ResourceCrisis,
			Severity:    events.SeverityCritical,
			Description: fmt.Sprintf("Resource depleted: %s (deficit %.1f)", sh.Kind, sh.Deficit),
			Sol:         nowSol,
		}
		e.history.Append(ev)
		e.notifyEvent(ev)
		e.log.Error("resource depleted", "kind", sh.Kind, "deficit", sh.Deficit, "sol", nowSol)
	}
	for kind := range e.inShortage {
		if !dry[kind] {
			delete(e.inShortage, kind)
		}
	}
}

func (e *Engine) notifyEvent(ev events.Event) {
	for _, l := range e.currentListeners() {
		e.safeNotify(func() { l.OnEvent(ev) })
	}
}

func (e *Engine) notifyTick(s TickSummary) {
	for _, l := range e.currentListeners() {
		e.safeNotify(func() { l.OnTick(s) })
	}
}

// safeNotify contains a listener panic so one misbehaving subscriber
// cannot take the tick loop down.
func (e *Engine) safeNotify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("listener panicked", "panic", r)
		}
	}()
	fn()
}
