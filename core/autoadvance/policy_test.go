package autoadvance

import (
	"math"
	"testing"

	"vizdirector/core/levels"
	"vizdirector/core/scene"
)

type stepRecorder struct{ steps int }

func (s *stepRecorder) Step(delta int) bool {
	s.steps += delta
	return true
}

var loud = levels.Levels{Bass: 0.9, Energy: 0.9}

func TestBeatTriggerFiresOnceThenCoolsDown(t *testing.T) {
	rec := &stepRecorder{}
	p := New(DirectorConfig, rec)
	in := Input{DT: 0, Levels: loud, Position: 2.0, BeatJump: true, Playing: true}

	if got := p.Tick(in); got != TriggerBeat {
		t.Fatalf("first tick trigger = %q", got)
	}
	if rec.steps != 1 {
		t.Fatalf("steps = %d", rec.steps)
	}
	if math.Abs(p.Cooldown()-1.2) > 1e-9 {
		t.Fatalf("cooldown = %v", p.Cooldown())
	}
	if got := p.Tick(in); got != TriggerNone || rec.steps != 1 {
		t.Fatalf("second tick must not advance: %q steps=%d", got, rec.steps)
	}
}

func TestBeatTriggerGuards(t *testing.T) {
	cases := []struct {
		name string
		in   Input
	}{
		{"quiet bass", Input{Levels: levels.Levels{Bass: 0.78, Energy: 0.9}, Position: 5, BeatJump: true}},
		{"low energy", Input{Levels: levels.Levels{Bass: 0.9, Energy: 0.45}, Position: 5, BeatJump: true}},
		{"track start", Input{Levels: loud, Position: 1.4, BeatJump: true}},
		{"disabled", Input{Levels: loud, Position: 5, BeatJump: false}},
	}
	for _, tc := range cases {
		rec := &stepRecorder{}
		p := New(DirectorConfig, rec)
		if got := p.Tick(tc.in); got != TriggerNone || rec.steps != 0 {
			t.Fatalf("%s: trigger %q steps %d", tc.name, got, rec.steps)
		}
	}
}

func TestBeatCooldownFreezesWhileDisabled(t *testing.T) {
	rec := &stepRecorder{}
	p := New(DirectorConfig, rec)
	p.SetCooldown(1)
	p.Tick(Input{DT: 5, BeatJump: false})
	if p.Cooldown() != 1 {
		t.Fatalf("cooldown drifted while disabled: %v", p.Cooldown())
	}
	p.Tick(Input{DT: 0.5, BeatJump: true})
	if p.Cooldown() != 0.5 {
		t.Fatalf("cooldown = %v", p.Cooldown())
	}
}

func TestTimerTrigger(t *testing.T) {
	rec := &stepRecorder{}
	p := New(DirectorConfig, rec)
	in := Input{DT: 0.05, Playing: true, AutoCycle: true}

	ticks := 0
	for rec.steps == 0 && ticks < 1000 {
		p.Tick(in)
		ticks++
	}
	// 15s at 50ms per tick fires on the tick that exceeds the interval
	if ticks < 300 || ticks > 302 {
		t.Fatalf("timer fired after %d ticks", ticks)
	}
	if p.Timer() != 0 {
		t.Fatalf("timer must reset after firing, got %v", p.Timer())
	}
}

func TestTimerOnlyRunsWhilePlayingAndEnabled(t *testing.T) {
	rec := &stepRecorder{}
	p := New(DirectorConfig, rec)
	for i := 0; i < 1000; i++ {
		p.Tick(Input{DT: 0.05, Playing: false, AutoCycle: true})
		p.Tick(Input{DT: 0.05, Playing: true, AutoCycle: false})
	}
	if rec.steps != 0 || p.Timer() != 0 {
		t.Fatalf("timer ran while paused/disabled: steps=%d timer=%v", rec.steps, p.Timer())
	}
}

func TestManualSelectResetsTimer(t *testing.T) {
	ctrl := scene.NewController(10)
	p := New(CosmosConfig, ctrl)
	ctrl.OnSelect(func(scene.SelectEvent) { p.OnSceneSelected() })

	in := Input{DT: 0.05, Playing: true, AutoCycle: true}
	for i := 0; i < 300; i++ { // 15s of the 17s interval
		p.Tick(in)
	}
	ctrl.Select(4)
	if p.Timer() != 0 {
		t.Fatalf("manual select must reset timer, got %v", p.Timer())
	}
	for i := 0; i < 60; i++ { // 3 more seconds
		if p.Tick(in) != TriggerNone {
			t.Fatal("timer fired right after a manual select")
		}
	}
	if ctrl.State().Target != 4 {
		t.Fatalf("target = %d", ctrl.State().Target)
	}
}

func TestBeatAdvancesController(t *testing.T) {
	ctrl := scene.NewController(10)
	p := New(DirectorConfig, ctrl)
	ctrl.OnSelect(func(scene.SelectEvent) { p.OnSceneSelected() })

	p.Tick(Input{Levels: loud, Position: 3, BeatJump: true})
	if s := ctrl.State(); s.Target != 1 || s.Morph != 0 {
		t.Fatalf("state = %+v", s)
	}
	if p.Cooldown() != DirectorConfig.Cooldown.Seconds() {
		t.Fatalf("select event must not clear the beat cooldown, got %v", p.Cooldown())
	}
}
