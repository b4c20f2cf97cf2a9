package events

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/lordpba/AEON/internal/resources"
)

// ErrInvalidProbability is returned at construction for a malformed
// probability table. Generation itself never fails mid-simulation.
var ErrInvalidProbability = errors.New("invalid event probability")

// GeneratorConfig describes what the generator may produce.
type GeneratorConfig struct {
	// Probabilities is the chance per sol of each category firing.
	// The per-tick trial chance is min(1, p × simDelta).
	Probabilities map[Category]float64
	// FailureTargets are the component ids an equipment failure may
	// hit, and SolarStormTargets the ids a solar storm damages.
	FailureTargets    []string
	SolarStormTargets []string
	// SolarStormWeight scales the solar storm probability; the
	// environment model raises it during high solar activity. Zero
	// means 1.
	SolarStormWeight float64
}

// Generator draws events from per-category Bernoulli trials scaled to
// the tick size. The random source is injected so outcomes are
// reproducible under a fixed seed; for small tick deltas the scaled
// trial approximates continuous-time Poisson firing without sub-tick
// ordering. Not safe for concurrent use; only the engine tick loop
// calls it.
type Generator struct {
	rng               *rand.Rand
	probs             map[Category]float64
	failureTargets    []string
	solarStormTargets []string
	stormWeight       float64
}

// NewGenerator validates the probability table and builds a generator.
func NewGenerator(cfg GeneratorConfig, rng *rand.Rand) (*Generator, error) {
	if rng == nil {
		return nil, errors.New("nil random source")
	}
	probs := make(map[Category]float64, len(cfg.Probabilities))
	for cat, p := range cfg.Probabilities {
		if p < 0 || p > 1 {
			return nil, fmt.Errorf("%w: %s = %f", ErrInvalidProbability, cat, p)
		}
		known := false
		for _, c := range Categories {
			if c == cat {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("%w: unknown category %s", ErrInvalidProbability, cat)
		}
		probs[cat] = p
	}
	weight := cfg.SolarStormWeight
	if weight <= 0 {
		weight = 1
	}
	return &Generator{
		rng:               rng,
		probs:             probs,
		failureTargets:    append([]string(nil), cfg.FailureTargets...),
		solarStormTargets: append([]string(nil), cfg.SolarStormTargets...),
		stormWeight:       weight,
	}, nil
}

// SetSolarStormWeight adjusts the storm probability multiplier; values
// at or below zero are ignored.
func (g *Generator) SetSolarStormWeight(w float64) {
	if w > 0 {
		g.stormWeight = w
	}
}

// Propose runs one trial per configured category for a tick covering
// simDelta sols and returns the events that fired. Categories are
// independent: several can fire in the same tick.
func (g *Generator) Propose(simDelta, atSol float64) []Event {
	if simDelta <= 0 {
		return nil
	}

	var out []Event
	for _, cat := range Categories {
		p, ok := g.probs[cat]
		if !ok || p == 0 {
			continue
		}
		chance := p * simDelta
		if cat == SolarStorm {
			chance *= g.stormWeight
		}
		if chance > 1 {
			chance = 1
		}
		if g.rng.Float64() >= chance {
			continue
		}
		out = append(out, g.build(cat, atSol))
	}
	return out
}

func (g *Generator) build(cat Category, atSol float64) Event {
	switch cat {
	case SolarStorm:
		return g.solarStorm(atSol)
	case EquipmentFailure:
		return g.equipmentFailure(atSol)
	case MedicalEmergency:
		return g.medicalEmergency(atSol)
	case SocialConflict:
		return g.socialConflict(atSol)
	case ResourceCrisis:
		return g.resourceCrisis(atSol)
	case Discovery:
		return g.discovery(atSol)
	default:
		return Event{ID: uuid.NewString(), Category: cat, Severity: SeverityLow, Sol: atSol}
	}
}

func (g *Generator) pickSeverity(choices ...Severity) Severity {
	return choices[g.rng.Intn(len(choices))]
}

func (g *Generator) solarStorm(atSol float64) Event {
	sev := g.pickSeverity(SeverityMedium, SeverityHigh, SeverityCritical)
	damage := float64(sev) * 5 * (1 + g.rng.Float64())

	health := make(map[string]float64, len(g.solarStormTargets))
	for _, id := range g.solarStormTargets {
		health[id] = -damage
	}
	return Event{
		ID:           uuid.NewString(),
		Category:     SolarStorm,
		Severity:     sev,
		Description:  fmt.Sprintf("Solar storm detected, severity %s", sev),
		HealthDeltas: health,
		Sol:          atSol,
	}
}

func (g *Generator) equipmentFailure(atSol float64) Event {
	sev := g.pickSeverity(SeverityLow, SeverityMedium, SeverityHigh)

	health := map[string]float64{}
	target := "unspecified"
	if len(g.failureTargets) > 0 {
		target = g.failureTargets[g.rng.Intn(len(g.failureTargets))]
		health[target] = -float64(sev) * 8
	}
	return Event{
		ID:           uuid.NewString(),
		Category:     EquipmentFailure,
		Severity:     sev,
		Description:  fmt.Sprintf("Equipment failure in %s", target),
		HealthDeltas: health,
		Sol:          atSol,
	}
}

func (g *Generator) medicalEmergency(atSol float64) Event {
	conditions := []string{"injury", "illness", "psychological crisis", "radiation sickness"}
	sev := g.pickSeverity(SeverityLow, SeverityMedium, SeverityHigh)
	return Event{
		ID:          uuid.NewString(),
		Category:    MedicalEmergency,
		Severity:    sev,
		Description: fmt.Sprintf("Medical emergency: %s", conditions[g.rng.Intn(len(conditions))]),
		ResourceDeltas: map[resources.Kind]float64{
			resources.Materials: -float64(sev) * 5,
			resources.Water:     -float64(sev) * 10,
		},
		Sol: atSol,
	}
}

func (g *Generator) socialConflict(atSol float64) Event {
	kinds := []string{"resource dispute", "personal disagreement", "policy debate", "workspace conflict"}
	sev := g.pickSeverity(SeverityLow, SeverityMedium)
	return Event{
		ID:          uuid.NewString(),
		Category:    SocialConflict,
		Severity:    sev,
		Description: fmt.Sprintf("Social conflict: %s", kinds[g.rng.Intn(len(kinds))]),
		Sol:         atSol,
	}
}

func (g *Generator) resourceCrisis(atSol float64) Event {
	kind := resources.Kinds[g.rng.Intn(len(resources.Kinds))]
	sev := g.pickSeverity(SeverityMedium, SeverityHigh)
	return Event{
		ID:          uuid.NewString(),
		Category:    ResourceCrisis,
		Severity:    sev,
		Description: fmt.Sprintf("Resource crisis: %s reserve contaminated", kind),
		ResourceDeltas: map[resources.Kind]float64{
			kind: -float64(sev) * 25,
		},
		Sol: atSol,
	}
}

func (g *Generator) discovery(atSol float64) Event {
	finds := []struct {
		name  string
		kind  resources.Kind
		bonus float64
	}{
		{"water ice deposit", resources.Water, 500},
		{"mineral vein", resources.Materials, 100},
		{"efficiency improvement", resources.Energy, 250},
	}
	find := finds[g.rng.Intn(len(finds))]
	return Event{
		ID:          uuid.NewString(),
		Category:    Discovery,
		Severity:    SeverityLow,
		Description: fmt.Sprintf("Discovery: %s", find.name),
		ResourceDeltas: map[resources.Kind]float64{
			find.kind: find.bonus,
		},
		Sol: atSol,
	}
}
