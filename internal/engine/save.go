package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lordpba/AEON/internal/clock"
	"github.com/lordpba/AEON/internal/events"
	"github.com/lordpba/AEON/internal/maintenance"
	"github.com/lordpba/AEON/internal/resources"
)

// SaveVersion is the current save document layout version.
const SaveVersion = 1

// Snapshot is a point-in-time view of the whole simulation. Resource
// and component state are captured under both subsystem locks, so the
// view never mixes the ledger from one tick with the scheduler from
// another.
type Snapshot struct {
	Colony        string                  `json:"colony"`
	TakenAt       time.Time               `json:"taken_at"`
	Clock         clock.State             `json:"clock"`
	Resources     []resources.Resource    `json:"resources"`
	Components    []maintenance.Component `json:"components"`
	Queue         []maintenance.Task      `json:"queue"`
	Events        []events.Event          `json:"events"`
	OverallHealth float64                 `json:"overall_health"`
}

// SaveDocument is the serialized form of a snapshot, suitable for
// persistence and later restore.
type SaveDocument struct {
	Version    int                     `json:"version"`
	ID         string                  `json:"id"`
	Colony     string                  `json:"colony"`
	SavedAt    time.Time               `json:"saved_at"`
	Clock      clock.State             `json:"clock"`
	Resources  []resources.Resource    `json:"resources"`
	Components []maintenance.Component `json:"components"`
	Queue      []maintenance.Task      `json:"queue"`
	Events     []events.Event          `json:"events"`
}

// Snapshot captures the full simulation state atomically. Lock order
// is ledger then scheduler, matching every other multi-subsystem path.
func (e *Engine) Snapshot() Snapshot {
	e.ledger.Lock()
	e.scheduler.Lock()
	cs := e.clock.Snapshot()
	res := e.ledger.SnapshotLocked()
	comps := e.scheduler.SnapshotLocked()
	queue := e.scheduler.QueueLocked()
	e.scheduler.Unlock()
	e.ledger.Unlock()

	return Snapshot{
		Colony:        e.cfg.Name,
		TakenAt:       time.Now().UTC(),
		Clock:         cs,
		Resources:     res,
		Components:    comps,
		Queue:         queue,
		Events:        e.history.Recent(0),
		OverallHealth: maintenance.OverallHealthOf(comps),
	}
}

// DocumentFrom wraps an already-taken snapshot in a fresh versioned
// save document. Tick listeners use it to persist the snapshot they
// were handed instead of taking a second one.
func DocumentFrom(snap Snapshot) SaveDocument {
	return SaveDocument{
		Version:    SaveVersion,
		ID:         uuid.NewString(),
		Colony:     snap.Colony,
		SavedAt:    snap.TakenAt,
		Clock:      snap.Clock,
		Resources:  snap.Resources,
		Components: snap.Components,
		Queue:      snap.Queue,
		Events:     snap.Events,
	}
}

// Save captures the current state as a versioned save document.
func (e *Engine) Save() SaveDocument {
	return DocumentFrom(e.Snapshot())
}

// SaveJSON captures the current state as a JSON save blob.
func (e *Engine) SaveJSON() ([]byte, error) {
	return json.Marshal(e.Save())
}

// Restore replaces the live simulation state from a save document. The
// clock must be paused (ErrInvalidState otherwise), and the saved
// resource and component sets must match the running configuration
// exactly; any mismatch returns ErrIncompatibleState with nothing
// applied.
func (e *Engine) Restore(doc SaveDocument) error {
	if !e.clock.Paused() {
		return fmt.Errorf("%w: pause before restoring", ErrInvalidState)
	}
	if doc.Version != SaveVersion {
		return fmt.Errorf("%w: save version %d, engine speaks %d", ErrIncompatibleState, doc.Version, SaveVersion)
	}
	if err := e.checkCompatible(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrIncompatibleState, err)
	}

	// Pre-validated above, so the subsystem restores cannot fail
	// halfway and leave a mixed state.
	if err := e.clock.Restore(doc.Clock); err != nil {
		return fmt.Errorf("%w: %v", ErrIncompatibleState, err)
	}
	if err := e.ledger.RestoreFrom(doc.Resources); err != nil {
		return fmt.Errorf("%w: %v", ErrIncompatibleState, err)
	}
	if err := e.scheduler.RestoreFrom(doc.Components, doc.Queue); err != nil {
		return fmt.Errorf("%w: %v", ErrIncompatibleState, err)
	}
	e.history.Replace(doc.Events)

	e.mu.Lock()
	e.inShortage = make(map[resources.Kind]bool)
	e.mu.Unlock()

	e.log.Info("state restored", "save", doc.ID, "sol", doc.Clock.Sol)
	return nil
}

// RestoreJSON decodes a JSON save blob and restores from it.
func (e *Engine) RestoreJSON(blob []byte) error {
	var doc SaveDocument
	if err := json.Unmarshal(blob, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrIncompatibleState, err)
	}
	return e.Restore(doc)
}

// checkCompatible verifies the saved sets against the running
// configuration before anything mutates.
func (e *Engine) checkCompatible(doc SaveDocument) error {
	if doc.Clock.Speed < clock.MinSpeed || doc.Clock.Speed > clock.MaxSpeed {
		return fmt.Errorf("saved speed %.3f out of range", doc.Clock.Speed)
	}
	if doc.Clock.Sol < 0 {
		return fmt.Errorf("saved sol %.3f is negative", doc.Clock.Sol)
	}

	wantKinds := make(map[resources.Kind]bool, len(e.cfg.StartingResources))
	for _, r := range e.cfg.StartingResources {
		wantKinds[r.Kind] = true
	}
	if len(doc.Resources) != len(wantKinds) {
		return fmt.Errorf("saved resource set has %d kinds, config has %d", len(doc.Resources), len(wantKinds))
	}
	seenKinds := make(map[resources.Kind]bool, len(doc.Resources))
	for _, r := range doc.Resources {
		if !wantKinds[r.Kind] {
			return fmt.Errorf("saved resource kind %s not configured", r.Kind)
		}
		if seenKinds[r.Kind] {
			return fmt.Errorf("saved resource kind %s duplicated", r.Kind)
		}
		seenKinds[r.Kind] = true
	}

	wantComps := make(map[string]bool, len(e.cfg.Components))
	for _, c := range e.cfg.Components {
		wantComps[c.ID] = true
	}
	if len(doc.Components) != len(wantComps) {
		return fmt.Errorf("saved component set has %d entries, config has %d", len(doc.Components), len(wantComps))
	}
	seenComps := make(map[string]bool, len(doc.Components))
	for _, c := range doc.Components {
		if !wantComps[c.ID] {
			return fmt.Errorf("saved component %s not configured", c.ID)
		}
		if seenComps[c.ID] {
			return fmt.Errorf("saved component %s duplicated", c.ID)
		}
		seenComps[c.ID] = true
	}
	for _, t := range doc.Queue {
		if !wantComps[t.ComponentID] {
			return fmt.Errorf("queued task targets unknown component %s", t.ComponentID)
		}
	}
	return nil
}
