package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lordpba/AEON/internal/clock"
	"github.com/lordpba/AEON/internal/engine"
	"github.com/lordpba/AEON/internal/events"
	"github.com/lordpba/AEON/internal/maintenance"
	"github.com/lordpba/AEON/internal/resources"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("read metrics body: %v", err)
	}
	return string(body)
}

func TestTickAndEventCounters(t *testing.T) {
	c := NewCollector()

	c.OnTick(engine.TickSummary{
		Sol:   1.5,
		State: engine.Snapshot{Clock: clock.State{Sol: 1.5}, OverallHealth: 95},
	})
	c.OnTick(engine.TickSummary{
		Sol:       2.0,
		Shortages: []resources.Shortage{{Kind: resources.Water, Deficit: 3}},
		State: engine.Snapshot{
			Clock:         clock.State{Sol: 2.0},
			OverallHealth: 90,
			Resources:     []resources.Resource{{Kind: resources.Water, Quantity: 9700}},
		},
	})
	c.OnEvent(events.Event{Category: events.SolarStorm, Severity: events.SeverityHigh})
	c.OnEvent(events.Event{Category: events.SolarStorm, Severity: events.SeverityHigh})
	c.OnEvent(events.Event{Category: events.Discovery, Severity: events.SeverityLow})

	body := scrape(t, c)
	for _, want := range []string{
		"aeon_ticks_total 2",
		"aeon_sol 2",
		"aeon_overall_health 90",
		`aeon_resource_quantity{kind="water"} 9700`,
		`aeon_shortages_total{kind="water"} 1`,
		`aeon_events_total{category="solar_storm",severity="high"} 2`,
		`aeon_events_total{category="discovery",severity="low"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestSnapshotGauges(t *testing.T) {
	c := NewCollector()

	c.UpdateSnapshot(engine.Snapshot{
		Clock:         clock.State{Sol: 12.5},
		OverallHealth: 77.5,
		Resources: []resources.Resource{
			{Kind: resources.Water, Quantity: 9000},
			{Kind: resources.Oxygen, Quantity: 80000},
		},
		Components: []maintenance.Component{
			{ID: "life_support", Health: 88},
		},
		Queue: []maintenance.Task{{ID: "t1"}, {ID: "t2"}},
	})

	body := scrape(t, c)
	for _, want := range []string{
		"aeon_sol 12.5",
		"aeon_overall_health 77.5",
		`aeon_resource_quantity{kind="water"} 9000`,
		`aeon_resource_quantity{kind="oxygen"} 80000`,
		`aeon_component_health{component="life_support"} 88`,
		"aeon_repair_queue_depth 2",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
