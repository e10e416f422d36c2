// Package director runs the per-tick orchestration of one visualizer: it
// reduces the spectrum to levels, picks the scene (live or cued), advances
// the crossfade and hands the visible layers to the renderers.
package director

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"vizdirector/config"
	"vizdirector/core/autoadvance"
	"vizdirector/core/capture"
	"vizdirector/core/cue"
	"vizdirector/core/levels"
	"vizdirector/core/scene"
	"vizdirector/logger"
	"vizdirector/storage"

	"go.uber.org/zap"
)

const (
	// DefaultTickRate is the tick frequency of Run.
	DefaultTickRate = 60
	// MaxDT bounds the step after a stall.
	MaxDT = 0.05

	commandQueue = 64
)

var (
	ErrNotReady  = errors.New("no audio loaded")
	ErrNotCued   = errors.New("profile has no cue timeline")
	ErrNoCapture = errors.New("profile has no capture")
	ErrBusy      = errors.New("command queue full")
)

// Source is the analysis capability. Frequency and Waveform fill dst and
// report false while no audio is loaded.
type Source interface {
	Frequency(dst []byte) bool
	Waveform(dst []byte) bool
	Bins() int
}

// Playback is the media clock.
type Playback interface {
	Position() float64
	Duration() float64
	Playing() bool
}

// Seeker is implemented by playbacks that can jump.
type Seeker interface {
	Seek(sec float64)
}

// Layer is one visible scene in a frame, bottom first.
type Layer struct {
	Scene int     `json:"scene"`
	Name  string  `json:"name"`
	Alpha float64 `json:"alpha"`
}

// Frame is the outcome of one tick.
type Frame struct {
	Seq     uint64        `json:"seq"`
	Time    float64       `json:"time"`
	DT      float64       `json:"dt"`
	Ready   bool          `json:"ready"`
	Levels  levels.Levels `json:"levels"`
	Current int           `json:"current"`
	Target  int           `json:"target"`
	Morph   float64       `json:"morph"`
	Layers  []Layer       `json:"layers"`
	Glow    float64       `json:"glow"`
	Trigger string        `json:"trigger,omitempty"`
}

// Snapshot is a read-only copy of the engine state for the API.
type Snapshot struct {
	Profile   string          `json:"profile"`
	Mode      Mode            `json:"mode"`
	Ready     bool            `json:"ready"`
	Frame     uint64          `json:"frame"`
	Levels    levels.Levels   `json:"levels"`
	State     scene.State     `json:"state"`
	Scene     string          `json:"scene"`
	Target    string          `json:"target"`
	Selected  int             `json:"selected"`
	Scenes    []string        `json:"scenes"`
	Cues      []cue.Cue       `json:"cues,omitempty"`
	ActiveCue int             `json:"activeCue"`
	Position  float64         `json:"position"`
	Duration  float64         `json:"duration"`
	Playing   bool            `json:"playing"`
	Timer     float64         `json:"timer"`
	Cooldown  float64         `json:"cooldown"`
	Controls  config.Controls `json:"controls"`
	Capture   *capture.Status `json:"capture,omitempty"`
}

// EventType names an engine notification.
type EventType string

const (
	EventScene    EventType = "scene"
	EventCues     EventType = "cues"
	EventCapture  EventType = "capture"
	EventControls EventType = "controls"
)

// Event is delivered to listeners registered with OnEvent.
type Event struct {
	Type     EventType          `json:"type"`
	Profile  string             `json:"profile"`
	Scene    *scene.SelectEvent `json:"scene,omitempty"`
	Trigger  string             `json:"trigger,omitempty"`
	Cues     []cue.Cue          `json:"cues,omitempty"`
	Capture  *capture.Status    `json:"capture,omitempty"`
	Controls *config.Controls   `json:"controls,omitempty"`
}

// Options wire an engine to its collaborators. Only Profile is required.
type Options struct {
	Profile  Profile
	Source   Source
	Playback Playback
	Controls *config.ControlStore
	// Renderers builds the renderer of each catalog scene. Nil registers
	// renderers that draw nothing.
	Renderers func(i scene.Index, name string) scene.Renderer
	Width     int
	Height    int
	// Smooth applies the software smoother to the spectrum. Sources that
	// already smooth (a browser AnalyserNode) leave it off.
	Smooth        bool
	TickRate      int
	Capture       capture.Backend
	Store         storage.ExportStore
	ExportPrefix  string
	ChunkInterval time.Duration
}

type command func(e *Engine)

// Engine owns the scene state. Tick and the commands it drains run on one
// goroutine; everything else reads Snapshot.
type Engine struct {
	profile  Profile
	source   Source
	playback Playback
	controls *config.ControlStore
	opts     Options
	log      *zap.Logger

	extractor  *levels.Extractor
	smoother   *levels.Smoother
	controller *scene.Controller
	registry   *scene.Registry
	policy     *autoadvance.Policy
	timeline   *cue.Timeline
	session    *capture.Session

	cmds    chan command
	ready   atomic.Bool
	running atomic.Bool

	// tick goroutine state
	last     time.Time
	clock    float64
	seq      uint64
	freq     []byte
	selected scene.Index
	trigger  string

	mu     sync.RWMutex
	snap   Snapshot
	frame  Frame
	lmu    sync.RWMutex
	events []func(Event)
	frames []func(Frame)
}

// New builds an engine for opts.Profile.
func New(opts Options) *Engine {
	p := opts.Profile
	if len(p.Catalog) == 0 {
		p.Catalog = scene.DirectorCatalog
	}
	if opts.Controls == nil {
		opts.Controls = config.NewControlStore(p.DefaultControls())
	}
	if opts.TickRate <= 0 {
		opts.TickRate = DefaultTickRate
	}

	e := &Engine{
		profile:  p,
		source:   opts.Source,
		playback: opts.Playback,
		controls: opts.Controls,
		opts:     opts,
		log:      logger.Named("director").With(zap.String("profile", p.Name)),
		cmds:     make(chan command, commandQueue),
	}

	e.extractor = levels.NewExtractor(p.Layout)
	if p.Weights != (levels.PulseWeights{}) {
		e.extractor.Weights = p.Weights
	}
	if opts.Smooth {
		e.smoother = levels.NewSmoother(p.Smoothing)
	}

	e.registry = scene.NewRegistry()
	factory := opts.Renderers
	if factory == nil {
		factory = func(scene.Index, string) scene.Renderer {
			return scene.RendererFunc(func(scene.RenderInput) {})
		}
	}
	e.registry.RegisterCatalog(p.Catalog, factory)

	e.controller = scene.NewController(e.registry.Count())
	e.controller.SetTransitionSpeed(e.controls.Snapshot().TransitionSpeed)

	switch p.Mode {
	case ModeCued:
		e.timeline = cue.New().WithEpsilons(p.SetEpsilon, p.RemoveEpsilon)
	default:
		e.policy = autoadvance.New(p.Advance, e.controller)
	}

	e.controller.OnSelect(func(ev scene.SelectEvent) {
		if e.policy != nil {
			e.policy.OnSceneSelected()
		}
		e.emit(Event{Type: EventScene, Scene: &ev, Trigger: e.trigger})
	})

	if p.Capture {
		e.session = capture.NewSession(capture.SessionConfig{
			Backend:       opts.Capture,
			Store:         opts.Store,
			SourceReady:   e.ready.Load,
			Prefix:        opts.ExportPrefix,
			ChunkInterval: opts.ChunkInterval,
		})
		e.session.OnChange(func(st capture.Status) {
			e.emit(Event{Type: EventCapture, Capture: &st})
		})
	}

	e.controls.OnChange(func(c config.Controls) {
		e.emit(Event{Type: EventControls, Controls: &c})
	})

	e.publish(levels.Levels{}, false)
	return e
}

// Profile returns the engine profile.
func (e *Engine) Profile() Profile { return e.profile }

// Registry returns the scene registry.
func (e *Engine) Registry() *scene.Registry { return e.registry }

// Controls returns the live control store.
func (e *Engine) Controls() *config.ControlStore { return e.controls }

// Capture returns the capture session, or nil when the profile has none.
func (e *Engine) Capture() *capture.Session { return e.session }

// Ready reports whether the last tick saw audio.
func (e *Engine) Ready() bool { return e.ready.Load() }

// OnEvent registers fn for engine events. fn must not block.
func (e *Engine) OnEvent(fn func(Event)) {
	e.lmu.Lock()
	e.events = append(e.events, fn)
	e.lmu.Unlock()
}

// OnFrame registers fn for every tick. fn runs on the tick goroutine and must
// not block.
func (e *Engine) OnFrame(fn func(Frame)) {
	e.lmu.Lock()
	e.frames = append(e.frames, fn)
	e.lmu.Unlock()
}

func (e *Engine) emit(ev Event) {
	ev.Profile = e.profile.Name
	e.lmu.RLock()
	listeners := e.events
	e.lmu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}

// Run ticks until ctx is cancelled. A recording still running at that point
// is finalized before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("director already running")
	}
	defer e.running.Store(false)

	interval := time.Second / time.Duration(e.opts.TickRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	e.log.Info("director started",
		zap.String("mode", string(e.profile.Mode)),
		zap.Int("scenes", e.registry.Count()),
		zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return ctx.Err()
		case now := <-ticker.C:
			e.Tick(now)
		}
	}
}

func (e *Engine) shutdown() {
	if e.session == nil || e.session.State() != capture.Recording {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.session.Stop(ctx); err != nil {
		e.log.Warn("finalize recording on shutdown", zap.Error(err))
	}
}

// Tick advances the engine to now. It must be called from one goroutine.
func (e *Engine) Tick(now time.Time) Frame {
	dt := 0.0
	if !e.last.IsZero() {
		dt = math.Min(MaxDT, math.Max(0, now.Sub(e.last).Seconds()))
	}
	e.last = now
	e.clock += dt
	e.seq++
	e.trigger = ""

	e.drain()

	ctl := e.controls.Snapshot()
	e.controller.SetTransitionSpeed(ctl.TransitionSpeed)

	spectrum, ok := e.acquire()
	e.ready.Store(ok)
	if !ok {
		f := Frame{Seq: e.seq, Time: e.clock, DT: dt, Glow: ctl.Glow}
		e.publish(levels.Levels{}, false)
		e.setFrame(f)
		return f
	}

	lv := e.extractor.Extract(spectrum, ctl.Intensity)
	pos, playing := e.position()

	switch e.profile.Mode {
	case ModeCued:
		e.trigger = "cue"
		e.controller.Select(e.timeline.ActiveSceneAt(pos))
	default:
		// the trigger is set before Tick so select events can carry it
		e.trigger = "auto"
		trig := e.policy.Tick(autoadvance.Input{
			DT:        dt,
			Levels:    lv,
			Playing:   playing,
			Position:  pos,
			AutoCycle: ctl.AutoCycle,
			BeatJump:  ctl.BeatJump,
		})
		e.trigger = string(trig)
	}
	e.controller.Tick(dt)

	st := e.controller.State()
	weights := e.controller.Weights()
	f := Frame{
		Seq:     e.seq,
		Time:    e.clock,
		DT:      dt,
		Ready:   true,
		Levels:  lv,
		Current: int(st.Current),
		Target:  int(st.Target),
		Morph:   st.Morph,
		Glow:    ctl.Glow,
		Trigger: e.trigger,
	}
	base := scene.RenderInput{Levels: lv, Time: e.clock, Width: e.opts.Width, Height: e.opts.Height, DT: dt}
	for _, l := range e.registry.RenderLayers(weights, base) {
		f.Layers = append(f.Layers, Layer{Scene: int(l.Scene), Name: e.registry.Name(l.Scene), Alpha: l.Weight})
	}
	e.trigger = ""

	e.publish(lv, true)
	e.setFrame(f)
	return f
}

func (e *Engine) acquire() ([]byte, bool) {
	if e.source == nil {
		return nil, false
	}
	n := e.source.Bins()
	if n <= 0 {
		return nil, false
	}
	if cap(e.freq) < n {
		e.freq = make([]byte, n)
	}
	e.freq = e.freq[:n]
	if !e.source.Frequency(e.freq) {
		return nil, false
	}
	if e.smoother != nil {
		return e.smoother.Apply(e.freq), true
	}
	return e.freq, true
}

// position falls back to the engine clock when there is no media clock.
func (e *Engine) position() (float64, bool) {
	if e.playback == nil {
		return e.clock, true
	}
	return e.playback.Position(), e.playback.Playing()
}

func (e *Engine) duration() float64 {
	if e.playback == nil {
		return 0
	}
	return e.playback.Duration()
}

func (e *Engine) drain() {
	for {
		select {
		case cmd := <-e.cmds:
			cmd(e)
		default:
			return
		}
	}
}

func (e *Engine) setFrame(f Frame) {
	e.mu.Lock()
	e.frame = f
	e.mu.Unlock()

	e.lmu.RLock()
	listeners := e.frames
	e.lmu.RUnlock()
	for _, fn := range listeners {
		fn(f)
	}
}

func (e *Engine) publish(lv levels.Levels, ready bool) {
	st := e.controller.State()
	pos, playing := e.position()
	s := Snapshot{
		Profile:  e.profile.Name,
		Mode:     e.profile.Mode,
		Ready:    ready,
		Frame:    e.seq,
		Levels:   lv,
		State:    st,
		Scene:    e.registry.Name(st.Current),
		Target:   e.registry.Name(st.Target),
		Selected: int(e.selected),
		Scenes:   e.registry.Names(),
		Position: pos,
		Duration: e.duration(),
		Playing:  playing,
		Controls: e.controls.Snapshot(),
	}
	if e.timeline != nil {
		s.Cues = e.timeline.Cues()
		s.ActiveCue = e.timeline.ActiveIndex()
	}
	if e.policy != nil {
		s.Timer = e.policy.Timer()
		s.Cooldown = e.policy.Cooldown()
	}
	if e.session != nil {
		cs := e.session.Status()
		s.Capture = &cs
	}

	e.mu.Lock()
	e.snap = s
	e.mu.Unlock()
}

// Snapshot returns the state as of the last tick.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	s := e.snap
	e.mu.RUnlock()
	if e.session != nil {
		cs := e.session.Status()
		s.Capture = &cs
	}
	return s
}

// LastFrame returns the frame produced by the last tick.
func (e *Engine) LastFrame() Frame {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.frame
}
