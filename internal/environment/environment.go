// Package environment models slow external stress on the colony: dust
// accumulation wears hardware faster and solar activity makes storms
// more likely. Both curves are smooth noise over simulated time, so a
// given seed always produces the same weather history.
package environment

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// Stress output bounds. Load stays a mild multiplier; storm weight can
// swing from quiet-sun calm to an active maximum.
const (
	MinLoadFactor  = 1.0
	MaxLoadFactor  = 2.0
	MinStormWeight = 0.5
	MaxStormWeight = 3.0
)

// Noise sampling frequencies in cycles per sol. Dust shifts over a few
// sols; the solar cycle is much slower.
const (
	dustFrequency  = 0.15
	solarFrequency = 0.02
)

// Model samples dust and solar curves at a point in simulated time.
// Read-only after construction, safe for concurrent use.
type Model struct {
	dust  opensimplex.Noise
	solar opensimplex.Noise
}

// New builds a model from a seed. Independent layers get offset seeds,
// same as terrain generation does.
func New(seed int64) *Model {
	return &Model{
		dust:  opensimplex.NewNormalized(seed),
		solar: opensimplex.NewNormalized(seed + 1),
	}
}

// DustLevel returns the airborne dust level at a sol, in [0, 1].
func (m *Model) DustLevel(sol float64) float64 {
	return m.dust.Eval2(sol*dustFrequency, 0)
}

// SolarActivity returns the solar activity level at a sol, in [0, 1].
func (m *Model) SolarActivity(sol float64) float64 {
	return m.solar.Eval2(sol*solarFrequency, 0)
}

// Stress maps the current dust and solar levels onto the engine's two
// knobs: the degradation load factor and the solar storm probability
// weight.
func (m *Model) Stress(sol float64) (loadFactor, stormWeight float64) {
	loadFactor = MinLoadFactor + m.DustLevel(sol)*(MaxLoadFactor-MinLoadFactor)
	stormWeight = MinStormWeight + m.SolarActivity(sol)*(MaxStormWeight-MinStormWeight)
	return loadFactor, stormWeight
}
