package director

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"vizdirector/config"
	"vizdirector/core/capture"
	"vizdirector/core/cue"
	"vizdirector/core/scene"
	"vizdirector/storage"
)

type fakeSource struct {
	mu    sync.Mutex
	bins  int
	value byte
	on    bool
}

func (s *fakeSource) set(on bool, v byte) {
	s.mu.Lock()
	s.on, s.value = on, v
	s.mu.Unlock()
}

func (s *fakeSource) Bins() int { return s.bins }

func (s *fakeSource) Frequency(dst []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.on {
		return false
	}
	for i := range dst {
		dst[i] = s.value
	}
	return true
}

func (s *fakeSource) Waveform(dst []byte) bool {
	for i := range dst {
		dst[i] = 128
	}
	return s.on
}

type fakePlayback struct {
	pos, dur float64
	playing  bool
}

func (p *fakePlayback) Position() float64 { return p.pos }
func (p *fakePlayback) Duration() float64 { return p.dur }
func (p *fakePlayback) Playing() bool { return p.playing }
func (p *fakePlayback) Seek(sec float64) { p.pos = sec }

var t0 = time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)

func at(i int) time.Time { return t0.Add(time.Duration(i) * 16 * time.Millisecond) }

func mustProfile(t *testing.T, name string) Profile {
	t.Helper()
	p, err := LookupProfile(name)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestInertWhileNotReady(t *testing.T) {
	src := &fakeSource{bins: 1024}
	draws := 0
	e := New(Options{
		Profile:  mustProfile(t, "director"),
		Source:   src,
		Playback: &fakePlayback{pos: 30, playing: true},
		Renderers: func(scene.Index, string) scene.Renderer {
			return scene.RendererFunc(func(scene.RenderInput) { draws++ })
		},
	})

	for i := 0; i < 2000; i++ {
		f := e.Tick(at(i))
		if f.Ready || len(f.Layers) != 0 {
			t.Fatalf("tick %d: frame = %+v", i, f)
		}
	}
	snap := e.Snapshot()
	if snap.Ready || snap.State != (scene.State{Current: 0, Target: 0, Morph: 1}) || snap.Levels.Energy != 0 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if draws != 0 {
		t.Fatalf("renderers called %d times", draws)
	}
	if err := e.SelectScene(3); !errors.Is(err, ErrNotReady) {
		t.Fatalf("select while not ready: %v", err)
	}
}

func TestLiveBeatAdvances(t *testing.T) {
	src := &fakeSource{bins: 1024, on: true, value: 255}
	e := New(Options{
		Profile:  mustProfile(t, "director"),
		Source:   src,
		Playback: &fakePlayback{pos: 3, playing: true},
	})
	var mu sync.Mutex
	var events []Event
	e.OnEvent(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	f := e.Tick(at(0))
	if f.Trigger != "beat" || f.Target != 1 || !f.Ready {
		t.Fatalf("frame = %+v", f)
	}
	if f.Levels.Bass != 1 || math.Abs(f.Levels.Pulse-1) > 1e-9 {
		t.Fatalf("levels = %+v", f.Levels)
	}
	// the new target starts at alpha 0 and is not drawn yet
	if len(f.Layers) != 1 || f.Layers[0].Scene != 0 || f.Layers[0].Alpha != 1 {
		t.Fatalf("layers = %+v", f.Layers)
	}
	if snap := e.Snapshot(); snap.Cooldown != 1.2 || snap.Target != scene.DirectorCatalog[1] {
		t.Fatalf("snapshot = %+v", snap)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 || events[0].Type != EventScene || events[0].Scene.Target != 1 || events[0].Profile != "director" {
		t.Fatalf("events = %+v", events)
	}
}

func TestLiveManualSelectResetsTimer(t *testing.T) {
	src := &fakeSource{bins: 512, on: true}
	e := New(Options{
		Profile:  mustProfile(t, "director"),
		Source:   src,
		Playback: &fakePlayback{pos: 10, playing: true},
	})
	for i := 0; i < 100; i++ {
		e.Tick(at(i))
	}
	if e.Snapshot().Timer == 0 {
		t.Fatal("timer should be running")
	}
	if err := e.SelectScene(7); err != nil {
		t.Fatal(err)
	}
	e.Tick(at(100))
	snap := e.Snapshot()
	if snap.State.Target != 7 {
		t.Fatalf("target = %d", snap.State.Target)
	}
	// the select ran before the policy tick, which added one dt
	if snap.Timer > 0.02 {
		t.Fatalf("timer not reset: %v", snap.Timer)
	}
	if err := e.AddCue(); !errors.Is(err, ErrNotCued) {
		t.Fatalf("AddCue on live profile: %v", err)
	}
}

func TestCuedFollowsTimeline(t *testing.T) {
	src := &fakeSource{bins: 1024, on: true, value: 40}
	pb := &fakePlayback{pos: 0, dur: 120, playing: true}
	e := New(Options{Profile: mustProfile(t, "masterpiece"), Source: src, Playback: pb})

	e.Tick(at(0))
	if err := e.AddCueAt(5.004, 3); err != nil {
		t.Fatal(err)
	}
	if err := e.AddCueAt(20, 23); err != nil { // wraps to 3 of 20 scenes
		t.Fatal(err)
	}
	e.Tick(at(1))
	want := []cue.Cue{{Time: 0, Scene: 0}, {Time: 5, Scene: 3}, {Time: 20, Scene: 3}}
	got := e.Snapshot().Cues
	if len(got) != len(want) {
		t.Fatalf("cues = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("cues = %+v", got)
		}
	}
	if e.Snapshot().State.Target != 0 {
		t.Fatal("position 0 must stay on scene 0")
	}

	pb.pos = 6
	for i := 2; i < 60; i++ {
		e.Tick(at(i))
	}
	snap := e.Snapshot()
	if snap.State.Current != 3 || snap.State.Target != 3 || snap.ActiveCue != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}

	if err := e.Seek(1); err != nil {
		t.Fatal(err)
	}
	e.Tick(at(60))
	if pb.pos != 1 || e.Snapshot().State.Target != 0 {
		t.Fatalf("seek: pos=%v state=%+v", pb.pos, e.Snapshot().State)
	}
}

func TestCuedSelectionAndStep(t *testing.T) {
	src := &fakeSource{bins: 256, on: true}
	pb := &fakePlayback{pos: 10, dur: 60, playing: true}
	e := New(Options{Profile: mustProfile(t, "masterpiece"), Source: src, Playback: pb})
	e.Tick(at(0))

	if err := e.SelectScene(4); err != nil {
		t.Fatal(err)
	}
	e.Tick(at(1))
	snap := e.Snapshot()
	if snap.Selected != 4 || snap.State.Target != 0 {
		t.Fatalf("selection must not change the displayed scene: %+v", snap)
	}

	if err := e.StepScene(1); err != nil {
		t.Fatal(err)
	}
	e.Tick(at(2))
	snap = e.Snapshot()
	if snap.Selected != 5 || snap.State.Target != 5 || len(snap.Cues) != 2 || snap.Cues[1] != (cue.Cue{Time: 10, Scene: 5}) {
		t.Fatalf("step must place a cue: %+v", snap)
	}

	if err := e.RemoveCue(); err != nil {
		t.Fatal(err)
	}
	if err := e.ClearCues(); err != nil {
		t.Fatal(err)
	}
	e.Tick(at(3))
	if snap := e.Snapshot(); len(snap.Cues) != 1 || snap.State.Target != 0 {
		t.Fatalf("after clear: %+v", snap)
	}
}

func TestControlsApplyEachTick(t *testing.T) {
	src := &fakeSource{bins: 1024, on: true, value: 255}
	e := New(Options{Profile: mustProfile(t, "cosmos"), Source: src})
	if got := e.Controls().Snapshot().TransitionSpeed; got != 1.4 {
		t.Fatalf("cosmos speed = %v", got)
	}
	e.UpdateControls(func(c *config.Controls) {
		c.Intensity = 2
		c.BeatJump = false
		c.AutoCycle = false
	})
	f := e.Tick(at(0))
	if math.Abs(f.Levels.Pulse-2) > 1e-9 || f.Trigger != "" {
		t.Fatalf("frame = %+v", f)
	}
}

type fakeBackend struct{}

func (fakeBackend) Available() error { return nil }
func (fakeBackend) Supports(string) bool { return true }
func (fakeBackend) Open(context.Context, capture.Options) (capture.Recorder, error) {
	return &fakeRecorder{out: make(chan []byte, 1)}, nil
}

type fakeRecorder struct {
	out  chan []byte
	once sync.Once
}

func (r *fakeRecorder) Chunks() <-chan []byte { return r.out }
func (r *fakeRecorder) Stop() error {
	r.once.Do(func() {
		r.out <- []byte("frame-data")
		close(r.out)
	})
	return nil
}
func (r *fakeRecorder) Close() error { return nil }

func TestCaptureLifecycle(t *testing.T) {
	src := &fakeSource{bins: 1024}
	store := storage.NewMemoryStore("")
	e := New(Options{Profile: mustProfile(t, "director"), Source: src, Capture: fakeBackend{}, Store: store})
	ctx := context.Background()

	e.Tick(at(0))
	if err := e.StartCapture(ctx); !errors.Is(err, capture.ErrNoSource) {
		t.Fatalf("start before audio: %v", err)
	}

	src.set(true, 10)
	e.Tick(at(1))
	if err := e.StartCapture(ctx); err != nil {
		t.Fatal(err)
	}
	if st := e.Snapshot().Capture; st == nil || st.State != capture.Recording {
		t.Fatalf("capture = %+v", st)
	}
	if err := e.StopCapture(ctx); err != nil {
		t.Fatal(err)
	}
	st := e.Snapshot().Capture
	if st.State != capture.Ready || st.Export == nil || st.Export.Size != 10 || store.Live() != 1 {
		t.Fatalf("capture = %+v", st)
	}

	cued := New(Options{Profile: mustProfile(t, "masterpiece")})
	if err := cued.StartCapture(ctx); !errors.Is(err, ErrNoCapture) {
		t.Fatalf("masterpiece capture: %v", err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	src := &fakeSource{bins: 64, on: true}
	e := New(Options{Profile: mustProfile(t, "cosmos"), Source: src, TickRate: 200})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := e.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run: %v", err)
	}
	if e.LastFrame().Seq == 0 {
		t.Fatal("no tick ran")
	}
}

func TestLookupProfile(t *testing.T) {
	for _, name := range []string{"director", "MASTERPIECE", "cosmos"} {
		if _, err := LookupProfile(name); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	if _, err := LookupProfile("morph"); err == nil {
		t.Fatal("unknown profile must fail")
	}
	p := mustProfile(t, "masterpiece")
	if p.Mode != ModeCued || len(p.Catalog) != 20 || p.Capture {
		t.Fatalf("masterpiece = %+v", p)
	}
}

func TestSmoothedSpectrumDecaysTowardsInput(t *testing.T) {
	p := mustProfile(t, "cosmos")
	newEngine := func(smooth bool) *Engine {
		return New(Options{
			Profile:  p,
			Source:   &fakeSource{bins: 1024, on: true, value: 200},
			Playback: &fakePlayback{pos: 1, playing: true},
			Smooth:   smooth,
		})
	}
	raw, smoothed := newEngine(false), newEngine(true)

	want := raw.Tick(at(0)).Levels.Bass
	first := smoothed.Tick(at(0)).Levels.Bass
	if first <= 0 || first > want*0.3 {
		t.Fatalf("first smoothed bass = %v, raw = %v", first, want)
	}

	prev := first
	for i := 1; i < 200; i++ {
		got := smoothed.Tick(at(i)).Levels.Bass
		if got < prev {
			t.Fatalf("tick %d: smoothed bass fell from %v to %v", i, prev, got)
		}
		prev = got
	}
	if math.Abs(prev-want) > 0.01 {
		t.Fatalf("smoothed bass = %v, want about %v", prev, want)
	}
}
