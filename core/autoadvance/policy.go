// Package autoadvance moves the show to the next scene on its own, either
// after a fixed time on one scene or when a strong beat hits.
package autoadvance

import (
	"time"

	"vizdirector/core/levels"
)

// Config holds the tunables of both triggers.
type Config struct {
	// Interval is how long a scene stays before the timer trigger fires.
	Interval time.Duration
	// Beat trigger thresholds, compared with strict greater-than.
	BassThreshold   float64
	EnergyThreshold float64
	// MinPosition guards against false beats during silence at the start of
	// a track.
	MinPosition time.Duration
	// Cooldown is the dead time after a beat jump.
	Cooldown time.Duration
}

// DirectorConfig and CosmosConfig are the tunings shipped with the variants.
var (
	DirectorConfig = Config{
		Interval:        15 * time.Second,
		BassThreshold:   0.78,
		EnergyThreshold: 0.45,
		MinPosition:     1400 * time.Millisecond,
		Cooldown:        1200 * time.Millisecond,
	}
	CosmosConfig = Config{
		Interval:        17 * time.Second,
		BassThreshold:   0.78,
		EnergyThreshold: 0.48,
		MinPosition:     1500 * time.Millisecond,
		Cooldown:        1200 * time.Millisecond,
	}
)

// Trigger names what caused an advance.
type Trigger string

const (
	TriggerNone  Trigger = ""
	TriggerTimer Trigger = "timer"
	TriggerBeat  Trigger = "beat"
)

// Input is the per-tick view the policy needs.
type Input struct {
	DT        float64 // seconds
	Levels    levels.Levels
	Playing   bool
	Position  float64 // playback position in seconds
	AutoCycle bool
	BeatJump  bool
}

// Advancer is the part of the scene controller the policy drives.
type Advancer interface {
	Step(delta int) bool
}

// Policy accumulates timer and cooldown state between ticks. A disabled
// trigger freezes its state and never fires.
type Policy struct {
	cfg      Config
	target   Advancer
	timer    float64
	cooldown float64
}

// New creates a policy that advances target.
func New(cfg Config, target Advancer) *Policy {
	return &Policy{cfg: cfg, target: target}
}

// Config returns the policy tunables.
func (p *Policy) Config() Config {
	return p.cfg
}

// Timer is the time accumulated on the current scene, in seconds.
func (p *Policy) Timer() float64 {
	return p.timer
}

// Cooldown is the remaining beat cooldown, in seconds.
func (p *Policy) Cooldown() float64 {
	return p.cooldown
}

// SetCooldown overrides the remaining beat cooldown.
func (p *Policy) SetCooldown(seconds float64) {
	p.cooldown = seconds
}

// OnSceneSelected resets the timer. It is wired to the controller's select
// event, so any scene change (manual, cue or beat) restarts the countdown.
func (p *Policy) OnSceneSelected() {
	p.timer = 0
}

// Tick evaluates both triggers once. They are independent, so both may fire
// on the same tick; the last one that fired is returned.
func (p *Policy) Tick(in Input) Trigger {
	fired := TriggerNone

	if in.AutoCycle && in.Playing {
		p.timer += in.DT
		if p.timer > p.cfg.Interval.Seconds() {
			p.timer = 0
			p.target.Step(1)
			fired = TriggerTimer
		}
	}

	if in.BeatJump {
		p.cooldown -= in.DT
		if p.cooldown <= 0 &&
			in.Levels.Bass > p.cfg.BassThreshold &&
			in.Levels.Energy > p.cfg.EnergyThreshold &&
			in.Position > p.cfg.MinPosition.Seconds() {
			p.cooldown = p.cfg.Cooldown.Seconds()
			p.target.Step(1)
			fired = TriggerBeat
		}
	}
	return fired
}
