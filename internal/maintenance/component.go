// Package maintenance tracks the health of colony infrastructure and
// runs the repair priority queue.
package maintenance

// Status is derived from component health by fixed thresholds. It is
// never stored: deriving it on read keeps health and status from
// drifting apart.
type Status int

const (
	StatusFailed Status = iota
	StatusCritical
	StatusDegraded
	StatusGood
	StatusOptimal
)

// Health thresholds for each status band.
const (
	ThresholdOptimal  = 90.0
	ThresholdGood     = 70.0
	ThresholdDegraded = 50.0
	ThresholdCritical = 30.0
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusGood:
		return "good"
	case StatusDegraded:
		return "degraded"
	case StatusCritical:
		return "critical"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StatusForHealth maps a health value to its status band.
func StatusForHealth(health float64) Status {
	switch {
	case health >= ThresholdOptimal:
		return StatusOptimal
	case health >= ThresholdGood:
		return StatusGood
	case health >= ThresholdDegraded:
		return StatusDegraded
	case health >= ThresholdCritical:
		return StatusCritical
	default:
		return StatusFailed
	}
}

// Component is one monitored piece of colony infrastructure.
type Component struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	// Health is clamped to [0, 100].
	Health float64 `json:"health"`
	// DegradationRate is health lost per sol absent intervention.
	DegradationRate float64 `json:"degradation_rate"`
	// Critical components weigh double in overall health and cost
	// more to repair.
	Critical bool `json:"critical"`
	// LastMaintenance is the sol of the most recent repair.
	LastMaintenance float64 `json:"last_maintenance"`
}

// Status derives the component's status band from its health.
func (c *Component) Status() Status {
	return StatusForHealth(c.Health)
}

func clampHealth(h float64) float64 {
	if h < 0 {
		return 0
	}
	if h > 100 {
		return 100
	}
	return h
}
