// Package scene owns which visual scene is on screen and how two scenes are
// cross-faded while the selection changes.
package scene

import "math"

// DefaultTransitionSpeed is the morph rate in fractions per second; a full
// crossfade takes about 0.67s.
const DefaultTransitionSpeed = 1.5

// Index identifies a scene in a Registry.
type Index int

// State is the transition state. When Morph == 1, Current == Target.
type State struct {
	Current Index   `json:"current"`
	Target  Index   `json:"target"`
	Morph   float64 `json:"morph"`
}

// Stable reports whether no crossfade is in flight.
func (s State) Stable() bool {
	return s.Morph >= 1
}

// Layer is one scene to draw with its opacity.
type Layer struct {
	Scene  Index   `json:"scene"`
	Weight float64 `json:"weight"`
}

// SelectEvent describes a retarget performed by Select.
type SelectEvent struct {
	From     Index `json:"from"`     // scene that fades out
	Previous Index `json:"previous"` // target before the call
	Target   Index `json:"target"`
}

// Controller is the crossfade state machine. It is not safe for concurrent
// use; the director tick goroutine owns it.
type Controller struct {
	count     int
	speed     float64
	state     State
	listeners []func(SelectEvent)
}

// NewController creates a controller for count scenes, stable on scene 0.
func NewController(count int) *Controller {
	if count < 1 {
		count = 1
	}
	return &Controller{
		count: count,
		speed: DefaultTransitionSpeed,
		state: State{Morph: 1},
	}
}

// Count is the number of scenes the controller wraps indices into.
func (c *Controller) Count() int {
	return c.count
}

// State returns a copy of the transition state.
func (c *Controller) State() State {
	return c.state
}

// TransitionSpeed returns the morph rate.
func (c *Controller) TransitionSpeed() float64 {
	return c.speed
}

// SetTransitionSpeed changes the morph rate. Non-positive and NaN values are
// ignored.
func (c *Controller) SetTransitionSpeed(speed float64) {
	if speed > 0 && !math.IsInf(speed, 0) {
		c.speed = speed
	}
}

// OnSelect registers fn to be called after every effective Select.
func (c *Controller) OnSelect(fn func(SelectEvent)) {
	c.listeners = append(c.listeners, fn)
}

// Wrap normalizes any integer into [0, Count).
func (c *Controller) Wrap(i int) Index {
	m := i % c.count
	if m < 0 {
		m += c.count
	}
	return Index(m)
}

// Select retargets the crossfade to index (wrapped). Selecting the current
// target is a no-op. While a crossfade is in flight the partially visible
// scene stays the source of the new fade and the old target is dropped.
func (c *Controller) Select(index int) bool {
	next := c.Wrap(index)
	if next == c.state.Target {
		return false
	}

	prev := c.state.Target
	if c.state.Stable() {
		c.state.Current = c.state.Target
	}
	c.state.Target = next
	c.state.Morph = 0

	ev := SelectEvent{From: c.state.Current, Previous: prev, Target: next}
	for _, fn := range c.listeners {
		fn(ev)
	}
	return true
}

// Step selects the scene delta positions away from the current target.
func (c *Controller) Step(delta int) bool {
	return c.Select(int(c.state.Target) + delta)
}

// Tick advances the crossfade by dt seconds.
func (c *Controller) Tick(dt float64) {
	if c.state.Stable() || dt <= 0 {
		return
	}
	c.state.Morph = math.Min(1, c.state.Morph+dt*c.speed)
	if c.state.Morph >= 1 {
		c.state.Morph = 1
		c.state.Current = c.state.Target
	}
}

// Weights returns the layers to draw, bottom first: the fading-out scene and
// then the target on top.
func (c *Controller) Weights() [2]Layer {
	s := c.state
	wc := 1 - s.Morph
	if s.Current == s.Target {
		wc = 1
	}
	return [2]Layer{
		{Scene: s.Current, Weight: wc},
		{Scene: s.Target, Weight: s.Morph},
	}
}
