// Package events generates probabilistic colony events and keeps the
// bounded event history.
package events

import (
	"github.com/lordpba/AEON/internal/resources"
)

// Category identifies an event class.
type Category string

const (
	SolarStorm       Category = "solar_storm"
	EquipmentFailure Category = "equipment_failure"
	MedicalEmergency Category = "medical_emergency"
	SocialConflict   Category = "social_conflict"
	ResourceCrisis   Category = "resource_crisis"
	Discovery        Category = "discovery"
)

// Categories lists every generated category in canonical order.
var Categories = []Category{
	SolarStorm,
	EquipmentFailure,
	MedicalEmergency,
	SocialConflict,
	ResourceCrisis,
	Discovery,
}

// Severity is the ordinal intensity of an event; it scales the
// magnitude of the event's deltas.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Event is one occurrence in the simulation. After the engine applies
// it to the targeted subsystems it is retained, immutable except for
// the Resolved flag, in the bounded history.
type Event struct {
	ID          string   `json:"id"`
	Category    Category `json:"category"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	// ResourceDeltas maps resource kind to a signed quantity change.
	ResourceDeltas map[resources.Kind]float64 `json:"resource_deltas,omitempty"`
	// HealthDeltas maps component id to a signed health change.
	HealthDeltas map[string]float64 `json:"health_deltas,omitempty"`
	// Sol is the simulated time the event was generated at.
	Sol      float64 `json:"sol"`
	Resolved bool    `json:"resolved"`
}
