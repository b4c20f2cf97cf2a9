// Package config holds the colony simulation configuration and its
// JSON persistence.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/lordpba/AEON/internal/clock"
	"github.com/lordpba/AEON/internal/events"
	"github.com/lordpba/AEON/internal/maintenance"
	"github.com/lordpba/AEON/internal/resources"
)

// ErrInvalidConfig is returned for configurations that would put the
// simulation into an unusable state. Validation happens at the
// boundary, never mid-simulation.
var ErrInvalidConfig = errors.New("invalid config")

// ResourceSpec seeds one resource kind in the ledger.
type ResourceSpec struct {
	Kind     resources.Kind `json:"kind"`
	Quantity float64        `json:"quantity"`
	Unit     string         `json:"unit"`
}

// ComponentSpec seeds one monitored component in the scheduler.
type ComponentSpec struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Category        string  `json:"category"`
	DegradationRate float64 `json:"degradation_rate"`
	Critical        bool    `json:"critical"`
}

// Config is the full simulation configuration.
type Config struct {
	Name       string `json:"name"`
	Population int    `json:"population"`

	// TimeScale is the initial clock speed multiplier.
	TimeScale float64 `json:"time_scale"`
	// TickMillis is the wall-clock cadence of the engine loop.
	TickMillis int `json:"tick_millis"`

	StartingResources []ResourceSpec `json:"starting_resources"`
	// ConsumptionRates are per person per sol.
	ConsumptionRates map[resources.Kind]float64 `json:"consumption_rates"`

	Components []ComponentSpec `json:"components"`
	// RepairedHealth is the baseline routine repairs restore to.
	RepairedHealth float64 `json:"repaired_health"`

	// EventProbabilities are per sol.
	EventProbabilities map[events.Category]float64 `json:"event_probabilities"`

	HistoryCap int `json:"history_cap"`
	// AutosaveSols is how many sols pass between automatic saves.
	// Zero disables autosave.
	AutosaveSols float64 `json:"autosave_sols"`
	Seed         int64   `json:"seed"`

	APIPort int    `json:"api_port"`
	DBPath  string `json:"db_path"`
}

// Default returns the stock AEON Alpha colony configuration.
func Default() *Config {
	return &Config{
		Name:       "AEON Alpha",
		Population: 5,
		TimeScale:  1.0,
		TickMillis: 100,
		StartingResources: []ResourceSpec{
			{Kind: resources.Water, Quantity: 10000, Unit: "L"},
			{Kind: resources.Food, Quantity: 5000, Unit: "kg"},
			{Kind: resources.Energy, Quantity: 50000, Unit: "kWh"},
			{Kind: resources.Oxygen, Quantity: 100000, Unit: "L"},
			{Kind: resources.Materials, Quantity: 1000, Unit: "units"},
		},
		ConsumptionRates: map[resources.Kind]float64{
			resources.Water:  50,
			resources.Food:   2,
			resources.Energy: 100,
			resources.Oxygen: 800,
		},
		Components: []ComponentSpec{
			{ID: "life_support", Name: "Life Support System", Category: "life-support", DegradationRate: 0.05, Critical: true},
			{ID: "power_generation", Name: "Power Generation", Category: "power", DegradationRate: 0.08, Critical: true},
			{ID: "power_storage", Name: "Power Storage", Category: "power", DegradationRate: 0.06},
			{ID: "water_recycling", Name: "Water Recycling System", Category: "water", DegradationRate: 0.07, Critical: true},
			{ID: "air_filtration", Name: "Air Filtration", Category: "air", DegradationRate: 0.06, Critical: true},
			{ID: "communications", Name: "Communications Array", Category: "comms", DegradationRate: 0.04},
			{ID: "habitat_structure", Name: "Habitat Structure", Category: "habitat", DegradationRate: 0.02, Critical: true},
			{ID: "heating_cooling", Name: "Temperature Control", Category: "habitat", DegradationRate: 0.05, Critical: true},
			{ID: "waste_management", Name: "Waste Management", Category: "water", DegradationRate: 0.06},
			{ID: "food_production", Name: "Food Production", Category: "life-support", DegradationRate: 0.05},
		},
		RepairedHealth: maintenance.DefaultRepairedHealth,
		EventProbabilities: map[events.Category]float64{
			events.SolarStorm:       0.02,
			events.EquipmentFailure: 0.05,
			events.MedicalEmergency: 0.03,
			events.SocialConflict:   0.04,
			events.ResourceCrisis:   0.01,
			events.Discovery:        0.01,
		},
		HistoryCap:   events.DefaultHistoryCap,
		AutosaveSols: 1,
		Seed:         42,
		APIPort:      8080,
		DBPath:       "data/aeon.db",
	}
}

// Validate checks the configuration at the boundary; every problem is
// reported as ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Population <= 0 {
		return fmt.Errorf("%w: population %d", ErrInvalidConfig, c.Population)
	}
	if c.TimeScale < clock.MinSpeed || c.TimeScale > clock.MaxSpeed {
		return fmt.Errorf("%w: time scale %.3f not in [%.1f, %.1f]",
			ErrInvalidConfig, c.TimeScale, clock.MinSpeed, clock.MaxSpeed)
	}
	if c.TickMillis <= 0 {
		return fmt.Errorf("%w: tick interval %dms", ErrInvalidConfig, c.TickMillis)
	}
	if len(c.StartingResources) == 0 {
		return fmt.Errorf("%w: no starting resources", ErrInvalidConfig)
	}
	seen := map[resources.Kind]bool{}
	for _, r := range c.StartingResources {
		if r.Quantity < 0 {
			return fmt.Errorf("%w: negative starting %s", ErrInvalidConfig, r.Kind)
		}
		if seen[r.Kind] {
			return fmt.Errorf("%w: duplicate resource %s", ErrInvalidConfig, r.Kind)
		}
		seen[r.Kind] = true
	}
	for kind, rate := range c.ConsumptionRates {
		if rate < 0 {
			return fmt.Errorf("%w: negative consumption rate for %s", ErrInvalidConfig, kind)
		}
		if !seen[kind] {
			return fmt.Errorf("%w: consumption rate for untracked %s", ErrInvalidConfig, kind)
		}
	}
	if len(c.Components) == 0 {
		return fmt.Errorf("%w: no components", ErrInvalidConfig)
	}
	ids := map[string]bool{}
	for _, comp := range c.Components {
		if comp.ID == "" {
			return fmt.Errorf("%w: component with empty id", ErrInvalidConfig)
		}
		if ids[comp.ID] {
			return fmt.Errorf("%w: duplicate component %s", ErrInvalidConfig, comp.ID)
		}
		ids[comp.ID] = true
		if comp.DegradationRate < 0 {
			return fmt.Errorf("%w: negative degradation rate for %s", ErrInvalidConfig, comp.ID)
		}
	}
	if c.RepairedHealth <= 0 || c.RepairedHealth > 100 {
		return fmt.Errorf("%w: repaired health %.1f", ErrInvalidConfig, c.RepairedHealth)
	}
	for cat, p := range c.EventProbabilities {
		if p < 0 || p > 1 {
			return fmt.Errorf("%w: probability %s = %f", ErrInvalidConfig, cat, p)
		}
	}
	if c.HistoryCap <= 0 {
		return fmt.Errorf("%w: history cap %d", ErrInvalidConfig, c.HistoryCap)
	}
	if c.AutosaveSols < 0 {
		return fmt.Errorf("%w: autosave interval %.2f sols", ErrInvalidConfig, c.AutosaveSols)
	}
	return nil
}

// ResourceSet builds the initial ledger entries, attaching the
// configured per-capita rates as baselines.
func (c *Config) ResourceSet() []resources.Resource {
	out := make([]resources.Resource, 0, len(c.StartingResources))
	for _, r := range c.StartingResources {
		out = append(out, resources.Resource{
			Kind:     r.Kind,
			Quantity: r.Quantity,
			Unit:     r.Unit,
			BaseRate: c.ConsumptionRates[r.Kind],
		})
	}
	return out
}

// ComponentSet builds the initial scheduler components at full health.
func (c *Config) ComponentSet() []maintenance.Component {
	out := make([]maintenance.Component, 0, len(c.Components))
	for _, comp := range c.Components {
		out = append(out, maintenance.Component{
			ID:              comp.ID,
			Name:            comp.Name,
			Category:        comp.Category,
			Health:          100,
			DegradationRate: comp.DegradationRate,
			Critical:        comp.Critical,
		})
	}
	return out
}

// ComponentIDsByCategory returns the ids of components in any of the
// given categories, in config order.
func (c *Config) ComponentIDsByCategory(categories ...string) []string {
	var out []string
	for _, comp := range c.Components {
		for _, cat := range categories {
			if comp.Category == cat {
				out = append(out, comp.ID)
				break
			}
		}
	}
	return out
}

// ComponentIDs returns every configured component id in config order.
func (c *Config) ComponentIDs() []string {
	out := make([]string, 0, len(c.Components))
	for _, comp := range c.Components {
		out = append(out, comp.ID)
	}
	return out
}

// LoadFile reads and validates a JSON configuration.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveFile writes the configuration as indented JSON.
func (c *Config) SaveFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Fingerprint is a stable hash of the configuration. It is stored next
// to the saves so a database produced under different settings can be
// recognized on startup. JSON map keys marshal in sorted order, so the
// hash is deterministic.
func (c *Config) Fingerprint() string {
	blob, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}
