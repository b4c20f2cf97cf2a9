package maintenance

import (
	"errors"
	"math"
	"testing"
)

func testComponents() []Component {
	return []Component{
		{ID: "life_support", Name: "Life Support System", Category: "life-support", Health: 100, DegradationRate: 0.05, Critical: true},
		{ID: "power_generation", Name: "Power Generation", Category: "power", Health: 100, DegradationRate: 0.08, Critical: true},
		{ID: "water_recycling", Name: "Water Recycling System", Category: "water", Health: 100, DegradationRate: 0.07, Critical: true},
		{ID: "communications", Name: "Communications Array", Category: "comms", Health: 100, DegradationRate: 0.04},
	}
}

func TestStatusThresholds(t *testing.T) {
	cases := []struct {
		health float64
		want   Status
	}{
		{100, StatusOptimal},
		{90, StatusOptimal},
		{89.9, StatusGood},
		{70, StatusGood},
		{69.9, StatusDegraded},
		{50, StatusDegraded},
		{49.9, StatusCritical},
		{30, StatusCritical},
		{29.9, StatusFailed},
		{0, StatusFailed},
	}
	for _, tc := range cases {
		if got := StatusForHealth(tc.health); got != tc.want {
			t.Errorf("StatusForHealth(%v) = %s, want %s", tc.health, got, tc.want)
		}
	}
}

func TestTickDegradesAndAutoEnqueues(t *testing.T) {
	comps := testComponents()
	comps[0].Health = 55
	comps[0].DegradationRate = 10
	s := NewScheduler(comps, 0)

	s.Tick(1, 10)

	snap := s.Snapshot()
	var ls Component
	for _, c := range snap {
		if c.ID == "life_support" {
			ls = c
		}
	}
	if math.Abs(ls.Health-45) > 1e-9 {
		t.Errorf("health = %f, want 45", ls.Health)
	}
	if ls.Status() != StatusCritical {
		t.Errorf("status = %s, want critical", ls.Status())
	}

	queue := s.Queue()
	if len(queue) != 1 || queue[0].ComponentID != "life_support" {
		t.Fatalf("queue = %+v, want one task for life_support", queue)
	}
	if queue[0].EnqueuedAt != 10 {
		t.Errorf("enqueued at %f, want 10", queue[0].EnqueuedAt)
	}

	// A second crossing tick must not duplicate the task.
	s.Tick(1, 11)
	if q := s.Queue(); len(q) != 1 {
		t.Errorf("queue grew to %d tasks, want 1", len(q))
	}
}

func TestHealthClamp(t *testing.T) {
	comps := testComponents()
	comps[0].Health = 5
	comps[0].DegradationRate = 50
	s := NewScheduler(comps, 0)

	s.Tick(1, 0)
	snap := s.Snapshot()
	if snap[0].Health != 0 {
		t.Errorf("health = %f, want 0 (clamped)", snap[0].Health)
	}

	if err := s.ApplyDamage("life_support", 500, 0); err != nil {
		t.Fatalf("ApplyDamage: %v", err)
	}
	snap = s.Snapshot()
	if snap[0].Health != 100 {
		t.Errorf("health = %f, want 100 (clamped)", snap[0].Health)
	}
}

func TestScheduleRepairIdempotent(t *testing.T) {
	s := NewScheduler(testComponents(), 0)

	id1, err := s.ScheduleRepair("communications", 1)
	if err != nil {
		t.Fatalf("ScheduleRepair: %v", err)
	}
	id2, err := s.ScheduleRepair("communications", 2)
	if err != nil {
		t.Fatalf("ScheduleRepair: %v", err)
	}
	if id1 != id2 {
		t.Errorf("second schedule returned new task %s, want %s", id2, id1)
	}
	if len(s.Queue()) != 1 {
		t.Errorf("queue has %d tasks, want 1", len(s.Queue()))
	}

	if _, err := s.ScheduleRepair("nonexistent", 0); !errors.Is(err, ErrUnknownComponent) {
		t.Errorf("error = %v, want ErrUnknownComponent", err)
	}
}

func TestServiceNextOrdering(t *testing.T) {
	comps := testComponents()
	comps[0].Health = 60 // degraded
	comps[1].Health = 20 // failed
	comps[2].Health = 40 // critical
	comps[3].Health = 40 // critical, enqueued later
	s := NewScheduler(comps, 0)

	for sol, id := range []string{"life_support", "power_generation", "water_recycling", "communications"} {
		if _, err := s.ScheduleRepair(id, float64(sol)); err != nil {
			t.Fatalf("ScheduleRepair(%s): %v", id, err)
		}
	}

	// Failed before critical, lower health / earlier enqueue breaking
	// ties among criticals, degraded last.
	wantOrder := []string{"power_generation", "water_recycling", "communications", "life_support"}
	for _, want := range wantOrder {
		c, ok := s.ServiceNext(100)
		if !ok {
			t.Fatalf("queue empty, expected %s", want)
		}
		if c.ID != want {
			t.Fatalf("serviced %s, want %s", c.ID, want)
		}
		if c.Health != DefaultRepairedHealth {
			t.Errorf("repaired health = %f, want %f", c.Health, DefaultRepairedHealth)
		}
		if c.LastMaintenance != 100 {
			t.Errorf("last maintenance = %f, want 100", c.LastMaintenance)
		}
	}

	if _, ok := s.ServiceNext(101); ok {
		t.Error("ServiceNext on empty queue returned a component")
	}
}

func TestQueueReordersOnNewDamage(t *testing.T) {
	comps := testComponents()
	comps[0].Health = 60
	comps[3].Health = 55
	s := NewScheduler(comps, 0)

	s.ScheduleRepair("life_support", 1)
	s.ScheduleRepair("communications", 2)

	// Event damage drops life_support below communications while both
	// are queued; the peek must reflect current health.
	if err := s.ApplyDamage("life_support", -35, 3); err != nil {
		t.Fatalf("ApplyDamage: %v", err)
	}

	c, ok := s.ServiceNext(4)
	if !ok || c.ID != "life_support" {
		t.Errorf("serviced %v, want life_support first after damage", c.ID)
	}
}

func TestDetectAnomalies(t *testing.T) {
	comps := testComponents()
	s := NewScheduler(comps, 0)

	if got := s.DetectAnomalies(); len(got) != 0 {
		t.Errorf("anomalies on healthy set: %+v", got)
	}

	s.ApplyDamage("power_generation", -75, 0) // 25: failed
	s.ApplyDamage("communications", -55, 0)   // 45: critical

	got := s.DetectAnomalies()
	if len(got) != 2 {
		t.Fatalf("anomalies = %d, want 2", len(got))
	}
	for _, c := range got {
		if st := c.Status(); st != StatusCritical && st != StatusFailed {
			t.Errorf("anomaly %s has status %s", c.ID, st)
		}
	}
}

func TestEmergencyRepair(t *testing.T) {
	comps := testComponents()
	comps[1].Health = 10
	s := NewScheduler(comps, 0)
	s.ScheduleRepair("power_generation", 1)

	err := s.EmergencyRepair("power_generation", false, 2)
	if !errors.Is(err, ErrInsufficientBudget) {
		t.Fatalf("error = %v, want ErrInsufficientBudget", err)
	}
	// Denied repair must have no side effects.
	if got := s.Snapshot()[1].Health; got != 10 {
		t.Errorf("health after denied repair = %f, want 10", got)
	}
	if len(s.Queue()) != 1 {
		t.Errorf("denied repair touched the queue")
	}

	if err := s.EmergencyRepair("power_generation", true, 3); err != nil {
		t.Fatalf("EmergencyRepair: %v", err)
	}
	if got := s.Snapshot()[1].Health; got != 100 {
		t.Errorf("health = %f, want 100", got)
	}
	if len(s.Queue()) != 0 {
		t.Errorf("emergency repair left the task queued")
	}
}

func TestEmergencyCostMultiplier(t *testing.T) {
	comps := testComponents()
	comps[3].Health = 40
	s := NewScheduler(comps, 0)

	cost, err := s.EmergencyCost("communications")
	if err != nil {
		t.Fatalf("EmergencyCost: %v", err)
	}
	// Routine cost is (100-40)*0.5 = 30 for a non-critical component.
	if math.Abs(cost-30*EmergencyCostMultiplier) > 1e-9 {
		t.Errorf("cost = %f, want %f", cost, 30*EmergencyCostMultiplier)
	}
}

func TestOverallHealthWeighting(t *testing.T) {
	s := NewScheduler([]Component{
		{ID: "a", Health: 100, Critical: true},
		{ID: "b", Health: 40},
	}, 0)
	// (100*2 + 40*1) / 3 = 80.
	if got := s.OverallHealth(); math.Abs(got-80) > 1e-9 {
		t.Errorf("overall health = %f, want 80", got)
	}
}

func TestLoadFactorScalesDegradation(t *testing.T) {
	comps := testComponents()
	comps[0].Health = 90
	comps[0].DegradationRate = 5
	s := NewScheduler(comps, 0)

	s.SetLoadFactor(2.0)
	s.Tick(1, 0)
	if got := s.Snapshot()[0].Health; math.Abs(got-80) > 1e-9 {
		t.Errorf("health = %f, want 80 under 2x load", got)
	}

	s.SetLoadFactor(-1) // ignored
	s.Tick(1, 1)
	if got := s.Snapshot()[0].Health; math.Abs(got-70) > 1e-9 {
		t.Errorf("health = %f, want 70 after load reset ignored", got)
	}
}

func TestRestoreFromMismatch(t *testing.T) {
	s := NewScheduler(testComponents(), 0)
	s.ApplyDamage("life_support", -60, 1)

	comps := s.Snapshot()
	queue := s.Queue()

	s2 := NewScheduler(testComponents(), 0)
	if err := s2.RestoreFrom(comps, queue); err != nil {
		t.Fatalf("RestoreFrom: %v", err)
	}
	if got := s2.Snapshot()[0].Health; got != 40 {
		t.Errorf("restored health = %f, want 40", got)
	}
	if len(s2.Queue()) != 1 {
		t.Errorf("restored queue has %d tasks, want 1", len(s2.Queue()))
	}

	if err := s2.RestoreFrom(comps[:2], nil); err == nil {
		t.Error("RestoreFrom with missing components succeeded, want error")
	}
	bad := append([]Component{}, comps...)
	bad[0].ID = "reactor"
	if err := s2.RestoreFrom(bad, nil); !errors.Is(err, ErrUnknownComponent) {
		t.Errorf("error = %v, want ErrUnknownComponent", err)
	}
}
