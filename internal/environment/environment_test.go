package environment

import (
	"math"
	"testing"
	"time"
)

func TestNewStartsAtMidday(t *testing.T) {
	env := New(Config{DayLength: time.Minute})
	state := env.CurrentState()
	if state.Phase != PhaseDay {
		t.Fatalf("expected PhaseDay, got %v", state.Phase)
	}
	if state.TimeOfDay != 12.0 {
		t.Fatalf("expected time of day 12.0, got %v", state.TimeOfDay)
	}
}

func TestStepAdvancesDayProgressAndWraps(t *testing.T) {
	env := New(Config{DayLength: 10 * time.Second})
	env.Step(2500 * time.Millisecond)
	if got := env.SunAngle(); math.Abs(got-0.75) > 1e-9 {
		t.Fatalf("expected sun angle 0.75 after a quarter day, got %v", got)
	}
	env.Step(3750 * time.Millisecond)
	if got := env.SunAngle(); math.Abs(got-0.125) > 1e-9 {
		t.Fatalf("expected sun angle to wrap to 0.125, got %v", got)
	}
}

func TestDeterminePhaseBoundaries(t *testing.T) {
	cases := []struct {
		hour float64
		want Phase
	}{
		{4.9, PhaseNight},
		{5.0, PhaseDawn},
		{6.9, PhaseDawn},
		{7.0, PhaseDay},
		{17.9, PhaseDay},
		{18.0, PhaseDusk},
		{20.9, PhaseDusk},
		{21.0, PhaseNight},
	}
	for _, tt := range cases {
		if got := determinePhase(tt.hour); got != tt.want {
			t.Errorf("determinePhase(%v) = %v, want %v", tt.hour, got, tt.want)
		}
	}
}

func TestComputeSunAmbientPeaksAtMidday(t *testing.T) {
	_, middayAmbient := computeSun(0.5)
	_, midnightAmbient := computeSun(0.0)
	if middayAmbient <= midnightAmbient {
		t.Fatalf("expected midday ambient (%v) > midnight ambient (%v)", middayAmbient, midnightAmbient)
	}
}
