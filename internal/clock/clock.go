// Package clock converts wall-clock time into simulated sols.
// One sol is a full Mars day-cycle (24.65 hours by default).
package clock

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Speed multiplier bounds. Values outside this range are rejected
// rather than clamped so a caller cannot silently lock the simulation
// into an extreme rate.
const (
	MinSpeed = 0.1
	MaxSpeed = 100.0
)

// DefaultSolHours is the length of one sol in hours (Mars day).
const DefaultSolHours = 24.65

// ErrInvalidSpeed is returned when a speed multiplier falls outside
// [MinSpeed, MaxSpeed].
var ErrInvalidSpeed = errors.New("speed multiplier out of range")

// Clock tracks simulated time in sols. Advance is intended to be called
// from the single driving tick loop; SetSpeed, Pause and Resume may be
// called from other goroutines and are serialized by the same mutex, so
// an Advance always observes a consistent (speed, paused) pair.
type Clock struct {
	mu       sync.Mutex
	sol      float64
	speed    float64
	paused   bool
	solHours float64
}

// State is a copyable view of the clock, used by snapshots and saves.
type State struct {
	Sol    float64 `json:"sol"`
	Speed  float64 `json:"speed"`
	Paused bool    `json:"paused"`
}

// New creates a clock at sol 0 with the given speed multiplier.
func New(speed float64) (*Clock, error) {
	if speed < MinSpeed || speed > MaxSpeed {
		return nil, fmt.Errorf("%w: %.3f not in [%.1f, %.1f]", ErrInvalidSpeed, speed, MinSpeed, MaxSpeed)
	}
	return &Clock{speed: speed, solHours: DefaultSolHours}, nil
}

// Advance converts a wall-clock delta into sols and adds them to the
// current sim time. While paused it returns 0 and changes nothing.
func (c *Clock) Advance(wall time.Duration) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.paused || wall <= 0 {
		return 0
	}
	delta := wall.Hours() * c.speed / c.solHours
	c.sol += delta
	return delta
}

// Sol returns the current simulated time in sols.
func (c *Clock) Sol() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sol
}

// Speed returns the current speed multiplier.
func (c *Clock) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// SetSpeed changes the speed multiplier, rejecting out-of-range values.
func (c *Clock) SetSpeed(speed float64) error {
	if speed < MinSpeed || speed > MaxSpeed {
		return fmt.Errorf("%w: %.3f not in [%.1f, %.1f]", ErrInvalidSpeed, speed, MinSpeed, MaxSpeed)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = speed
	return nil
}

// Pause stops sim time. Idempotent.
func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

// Resume restarts sim time. Wall time elapsed while paused is not
// credited: the next Advance only counts its own delta. Idempotent.
func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
}

// Paused reports whether the clock is paused.
func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Snapshot returns the current clock state.
func (c *Clock) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{Sol: c.sol, Speed: c.speed, Paused: c.paused}
}

// Restore overwrites the clock from a saved state. Sim time never runs
// backwards during normal operation; restore is the one sanctioned
// discontinuity and only the engine calls it, while paused.
func (c *Clock) Restore(s State) error {
	if s.Speed < MinSpeed || s.Speed > MaxSpeed {
		return fmt.Errorf("%w: saved speed %.3f", ErrInvalidSpeed, s.Speed)
	}
	if s.Sol < 0 {
		return fmt.Errorf("%w: saved sol %.3f is negative", ErrInvalidSpeed, s.Sol)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sol = s.Sol
	c.speed = s.Speed
	c.paused = s.Paused
	return nil
}

// LocalTime formats the time of day within the current sol as HH:MM.
func (c *Clock) LocalTime() string {
	c.mu.Lock()
	progress := c.sol - float64(int64(c.sol))
	hours := progress * c.solHours
	c.mu.Unlock()

	h := int(hours)
	m := int((hours - float64(h)) * 60)
	return fmt.Sprintf("%02d:%02d", h, m)
}
