package rideworker

import (
	"testing"
	"time"

	"dispatchsim/internal/geo"
)

func TestCalculateFare_ScenarioFromSpec(t *testing.T) {
	// pickup (-73.98,40.75) -> dropoff (-73.96,40.76), distance ~1.77km,
	// fare = 3.0 + 1.8*distance ~= 6.19.
	distanceKM := geo.Haversine(-73.98, 40.75, -73.96, 40.76)
	fare := calculateFare(distanceKM)

	got, _ := fare.Float64()
	if got < 6.0 || got > 6.4 {
		t.Fatalf("expected fare near 6.19 for a ~1.77km trip, got %v (distance %vkm)", got, distanceKM)
	}
}

func TestCalculateFare_ZeroDistance(t *testing.T) {
	fare := calculateFare(0)
	want := "3"
	if fare.String() != want {
		t.Fatalf("expected base fare %s for zero distance, got %s", want, fare.String())
	}
}

func TestWorker_SimulatedDuration_FloorApplied(t *testing.T) {
	w := New(nil, nil, nil, nil, nil, nil, nil, Config{})
	// A very short real trip should still floor at the configured minimum.
	got := w.simulatedDuration(10)
	if got != w.minSimDu {
		t.Fatalf("expected floor of %v, got %v", w.minSimDu, got)
	}
}

func TestWorker_SimulatedDuration_ScaledBySpeedup(t *testing.T) {
	w := New(nil, nil, nil, nil, nil, nil, nil, Config{SimulationSpeedup: 30, MinSimDuration: 2 * time.Second})
	// 900s real duration / 30 speedup = 30s simulated, above the floor.
	got := w.simulatedDuration(900)
	want := 30 * time.Second
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestWorker_DefaultsAppliedWhenConfigZero(t *testing.T) {
	w := New(nil, nil, nil, nil, nil, nil, nil, Config{})
	if w.maxWait != maxWaitSeconds*time.Second {
		t.Fatalf("expected default max wait of %ds, got %v", maxWaitSeconds, w.maxWait)
	}
	if w.speedup != simulationSpeedup {
		t.Fatalf("expected default speedup %v, got %v", float64(simulationSpeedup), w.speedup)
	}
}
