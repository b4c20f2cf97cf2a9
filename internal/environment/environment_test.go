package environment

import "testing"

func TestStressStaysInBounds(t *testing.T) {
	m := New(42)
	for sol := 0.0; sol < 500; sol += 0.25 {
		load, storm := m.Stress(sol)
		if load < MinLoadFactor || load > MaxLoadFactor {
			t.Fatalf("sol %.2f: load factor %.3f out of [%.1f, %.1f]", sol, load, MinLoadFactor, MaxLoadFactor)
		}
		if storm < MinStormWeight || storm > MaxStormWeight {
			t.Fatalf("sol %.2f: storm weight %.3f out of [%.1f, %.1f]", sol, storm, MinStormWeight, MaxStormWeight)
		}
	}
}

func TestSameSeedSameWeather(t *testing.T) {
	a, b := New(7), New(7)
	for sol := 0.0; sol < 100; sol += 1.3 {
		la, sa := a.Stress(sol)
		lb, sb := b.Stress(sol)
		if la != lb || sa != sb {
			t.Fatalf("sol %.2f: (%.5f, %.5f) vs (%.5f, %.5f) under same seed", sol, la, sa, lb, sb)
		}
	}
}

func TestDifferentSeedsDiverge(t *testing.T) {
	a, b := New(1), New(2)
	same := true
	for sol := 0.0; sol < 50; sol++ {
		la, _ := a.Stress(sol)
		lb, _ := b.Stress(sol)
		if la != lb {
			same = false
			break
		}
	}
	if same {
		t.Error("seeds 1 and 2 produced identical load curves")
	}
}

func TestCurvesAreSmooth(t *testing.T) {
	m := New(42)
	prev := m.DustLevel(0)
	for sol := 0.01; sol < 20; sol += 0.01 {
		cur := m.DustLevel(sol)
		if diff := cur - prev; diff > 0.05 || diff < -0.05 {
			t.Fatalf("dust jumped %.4f between adjacent samples at sol %.2f", diff, sol)
		}
		prev = cur
	}
}
