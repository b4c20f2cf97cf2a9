package maintenance

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// EmergencyCostMultiplier scales the materials cost of an emergency
// repair versus a routine one.
const EmergencyCostMultiplier = 3.0

// DefaultRepairedHealth is the health a routine repair restores to.
// Repairs are imperfect: serviced components come back below optimal
// and keep degrading.
const DefaultRepairedHealth = 85.0

var (
	// ErrUnknownComponent is returned for component ids the scheduler
	// does not track.
	ErrUnknownComponent = errors.New("unknown component")
	// ErrInsufficientBudget is returned by EmergencyRepair when the
	// caller's budget check did not approve the cost. No side effects.
	ErrInsufficientBudget = errors.New("insufficient budget for emergency repair")
)

// Task is a pending repair. Its rank in the queue is recomputed from
// the component's current health at pop time, so the queue always
// reflects the latest damage, not the state at enqueue time.
type Task struct {
	ID          string  `json:"id"`
	ComponentID string  `json:"component_id"`
	Cost        float64 `json:"cost"`
	Emergency   bool    `json:"emergency"`
	EnqueuedAt  float64 `json:"enqueued_at"`
}

// Scheduler owns the monitored components and the repair queue. All
// state mutation goes through its locked operations; it never calls
// into another subsystem.
type Scheduler struct {
	mu         sync.Mutex
	components map[string]*Component
	// pending is keyed by component id: at most one task per
	// component may be queued.
	pending        map[string]*Task
	repairedHealth float64
	// loadFactor multiplies every degradation rate; environmental
	// stress pushes it above 1.
	loadFactor float64
	// order keeps a stable iteration order for snapshots.
	order []string
}

// NewScheduler builds a scheduler over the given component set.
// repairedHealth is the health routine repairs restore to; zero means
// DefaultRepairedHealth.
func NewScheduler(components []Component, repairedHealth float64) *Scheduler {
	if repairedHealth <= 0 || repairedHealth > 100 {
		repairedHealth = DefaultRepairedHealth
	}
	s := &Scheduler{
		components:     make(map[string]*Component, len(components)),
		pending:        make(map[string]*Task),
		repairedHealth: repairedHealth,
		loadFactor:     1.0,
	}
	for _, c := range components {
		cp := c
		cp.Health = clampHealth(cp.Health)
		s.components[c.ID] = &cp
		s.order = append(s.order, c.ID)
	}
	return s
}

// SetLoadFactor adjusts the global degradation multiplier. Values at or
// below zero are ignored.
func (s *Scheduler) SetLoadFactor(f float64) {
	if f <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadFactor = f
}

// Tick degrades every component by rate × load × simDelta and
// auto-enqueues a repair task for any component that crossed below the
// degraded threshold since the last tick, unless one is already
// pending.
func (s *Scheduler) Tick(simDelta, nowSol float64) {
	if simDelta <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.order {
		c := s.components[id]
		before := c.Health
		c.Health = clampHealth(c.Health - c.DegradationRate*s.loadFactor*simDelta)

		if before >= ThresholdDegraded && c.Health < ThresholdDegraded {
			s.enqueueLocked(c, nowSol, false)
		}
	}
}

// ApplyDamage adds a signed health delta to one component, clamped to
// [0, 100]. Crossing below the degraded threshold auto-enqueues a
// repair, same as degradation does.
func (s *Scheduler) ApplyDamage(componentID string, delta, nowSol float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.components[componentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComponent, componentID)
	}
	before := c.Health
	c.Health = clampHealth(c.Health + delta)
	if before >= ThresholdDegraded && c.Health < ThresholdDegraded {
		s.enqueueLocked(c, nowSol, false)
	}
	return nil
}

// DetectAnomalies returns copies of every component currently Critical
// or Failed. Pure read; an empty result is a valid answer, not an
// error.
func (s *Scheduler) DetectAnomalies() []Component {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Component
	for _, id := range s.order {
		c := s.components[id]
		if st := c.Status(); st == StatusCritical || st == StatusFailed {
			out = append(out, *c)
		}
	}
	return out
}

// ScheduleRepair enqueues a repair task for a component. Idempotent: a
// second call while a task is pending returns the existing task id.
func (s *Scheduler) ScheduleRepair(componentID string, nowSol float64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.components[componentID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownComponent, componentID)
	}
	if t, ok := s.pending[componentID]; ok {
		return t.ID, nil
	}
	return s.enqueueLocked(c, nowSol, false).ID, nil
}

// enqueueLocked creates a pending task for c. Caller must hold the lock
// and have checked there is no pending task for the component.
func (s *Scheduler) enqueueLocked(c *Component, nowSol float64, emergency bool) *Task {
	if t, ok := s.pending[c.ID]; ok {
		return t
	}
	cost := repairCost(c)
	if emergency {
		cost *= EmergencyCostMultiplier
	}
	t := &Task{
		ID:          uuid.NewString(),
		ComponentID: c.ID,
		Cost:        cost,
		Emergency:   emergency,
		EnqueuedAt:  nowSol,
	}
	s.pending[c.ID] = t
	return t
}

// repairCost estimates the materials cost for a routine repair: worse
// health and critical categories cost more.
func repairCost(c *Component) float64 {
	cost := (100 - c.Health) * 0.5
	if c.Critical {
		cost *= 1.5
	}
	if cost < 5 {
		cost = 5
	}
	return cost
}

// ServiceNext pops the worst pending task and performs the repair,
// restoring the component to the configured baseline. Ordering key is
// (status severity descending, health ascending, enqueued-at
// ascending), evaluated against current health so damage taken while
// queued re-ranks the task. Returns false for an empty queue; that is
// a valid, observable result.
func (s *Scheduler) ServiceNext(nowSol float64) (Component, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return Component{}, false
	}

	tasks := make([]*Task, 0, len(s.pending))
	for _, t := range s.pending {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		a, b := s.components[tasks[i].ComponentID], s.components[tasks[j].ComponentID]
		if sa, sb := a.Status(), b.Status(); sa != sb {
			return sa < sb // worse status first
		}
		if a.Health != b.Health {
			return a.Health < b.Health
		}
		return tasks[i].EnqueuedAt < tasks[j].EnqueuedAt
	})

	next := tasks[0]
	c := s.components[next.ComponentID]
	delete(s.pending, next.ComponentID)

	c.Health = s.repairedHealth
	c.LastMaintenance = nowSol
	return *c, true
}

// EmergencyRepair bypasses queue ordering and restores full health at
// EmergencyCostMultiplier times the routine cost. The budget check is
// the caller's responsibility (typically against the materials ledger)
// and arrives as a pre-validated boolean, keeping this subsystem free
// of a ledger dependency. A failed check has no side effects.
func (s *Scheduler) EmergencyRepair(componentID string, budgetApproved bool, nowSol float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.components[componentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComponent, componentID)
	}
	if !budgetApproved {
		return fmt.Errorf("%w: component %s", ErrInsufficientBudget, componentID)
	}

	c.Health = 100
	c.LastMaintenance = nowSol
	delete(s.pending, componentID)
	return nil
}

// EmergencyCost returns the materials cost an emergency repair of the
// component would charge right now.
func (s *Scheduler) EmergencyCost(componentID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.components[componentID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownComponent, componentID)
	}
	return repairCost(c) * EmergencyCostMultiplier, nil
}

// OverallHealth is the weighted average component health; critical
// components count double.
func (s *Scheduler) OverallHealth() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return OverallHealthOf(s.SnapshotLocked())
}

// OverallHealthOf computes the weighted average health of a component
// set; critical components count double. Exposed so snapshot consumers
// can derive the same figure from copied state.
func OverallHealthOf(components []Component) float64 {
	if len(components) == 0 {
		return 0
	}
	var weighted, total float64
	for _, c := range components {
		w := 1.0
		if c.Critical {
			w = 2.0
		}
		weighted += c.Health * w
		total += w
	}
	return weighted / total
}

// Lock acquires the scheduler's lock for a multi-subsystem snapshot.
// Global lock order: Ledger before Scheduler, always.
func (s *Scheduler) Lock() { s.mu.Lock() }

// Unlock releases the scheduler's lock.
func (s *Scheduler) Unlock() { s.mu.Unlock() }

// SnapshotLocked copies all components in stable order. Caller must
// hold Lock.
func (s *Scheduler) SnapshotLocked() []Component {
	out := make([]Component, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.components[id])
	}
	return out
}

// Snapshot copies all components under the scheduler's own lock.
func (s *Scheduler) Snapshot() []Component {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SnapshotLocked()
}

// QueueLocked copies the pending tasks sorted by enqueue time. Caller
// must hold Lock.
func (s *Scheduler) QueueLocked() []Task {
	out := make([]Task, 0, len(s.pending))
	for _, t := range s.pending {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt < out[j].EnqueuedAt })
	return out
}

// Queue copies the pending tasks under the scheduler's own lock.
func (s *Scheduler) Queue() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.QueueLocked()
}

// RestoreFrom replaces component health and the pending queue from a
// save. The saved component set must match the configured set exactly;
// on mismatch nothing is applied.
func (s *Scheduler) RestoreFrom(components []Component, queue []Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(components) != len(s.components) {
		return fmt.Errorf("saved component set has %d entries, scheduler has %d", len(components), len(s.components))
	}
	for _, c := range components {
		if _, ok := s.components[c.ID]; !ok {
			return fmt.Errorf("%w: saved component %s not configured", ErrUnknownComponent, c.ID)
		}
	}
	for _, t := range queue {
		if _, ok := s.components[t.ComponentID]; !ok {
			return fmt.Errorf("%w: queued task for %s", ErrUnknownComponent, t.ComponentID)
		}
	}

	for _, c := range components {
		cp := c
		cp.Health = clampHealth(cp.Health)
		s.components[c.ID] = &cp
	}
	s.pending = make(map[string]*Task, len(queue))
	for _, t := range queue {
		cp := t
		s.pending[t.ComponentID] = &cp
	}
	return nil
}
