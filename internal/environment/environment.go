// Package environment tracks the day/night cycle and exposes the sun's
// position for the UpdateSun wire message (§6). Grounded on the teacher's
// environment.Environment, trimmed of the weather/physics/behavior
// modifiers that subsystem computed for the mining game — nothing in
// this spec consumes them.
package environment

import (
	"math"
	"sync"
	"time"
)

type Phase string

const (
	PhaseDawn  Phase = "dawn"
	PhaseDay   Phase = "day"
	PhaseDusk  Phase = "dusk"
	PhaseNight Phase = "night"
)

type Config struct {
	DayLength time.Duration
	Seed      int64
}

type State struct {
	TimeOfDay float64
	Phase     Phase
	SunAngle  float64
	Ambient   float64
}

type Environment struct {
	mu          sync.Mutex
	cfg         Config
	state       State
	dayProgress float64
}

func New(cfg Config) *Environment {
	cfg = applyDefaults(cfg)
	env := &Environment{cfg: cfg}
	env.dayProgress = 0.5
	env.state.TimeOfDay = 12.0
	env.state.Phase = PhaseDay
	env.state.SunAngle, env.state.Ambient = computeSun(env.dayProgress)
	return env
}

func applyDefaults(cfg Config) Config {
	if cfg.DayLength <= 0 {
		cfg.DayLength = 20 * time.Minute
	}
	return cfg
}

// Step advances the cycle by delta and returns the resulting state.
func (e *Environment) Step(delta time.Duration) State {
	if delta <= 0 {
		delta = 16 * time.Millisecond
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	fraction := float64(delta) / float64(e.cfg.DayLength)
	e.dayProgress += fraction
	for e.dayProgress >= 1 {
		e.dayProgress -= 1
	}

	hours := e.dayProgress * 24
	e.state.TimeOfDay = hours
	e.state.Phase = determinePhase(hours)
	e.state.SunAngle, e.state.Ambient = computeSun(e.dayProgress)
	return e.state
}

func (e *Environment) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SunAngle returns the sun's position in its daily cycle as a fraction in
// [0, 1), matching UpdateSun's wire representation (§6).
func (e *Environment) SunAngle() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dayProgress
}

func determinePhase(hour float64) Phase {
	switch {
	case hour >= 5 && hour < 7:
		return PhaseDawn
	case hour >= 7 && hour < 18:
		return PhaseDay
	case hour >= 18 && hour < 21:
		return PhaseDusk
	default:
		return PhaseNight
	}
}

func computeSun(progress float64) (sunAngle, ambient float64) {
	sunHeight := math.Cos((progress - 0.5) * 2 * math.Pi)
	if sunHeight < 0 {
		sunHeight = 0
	}
	return progress, clamp01(0.12 + 0.88*sunHeight)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
