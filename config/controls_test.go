package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestControlsSanitize(t *testing.T) {
	c := Controls{Intensity: 3.5, TransitionSpeed: -1, Glow: -0.2, TargetFPS: 0, TargetBitrate: -5}
	got := c.Sanitize()
	if got.Intensity != 3.5 {
		t.Fatalf("intensity must stay unbounded above, got %v", got.Intensity)
	}
	def := DefaultControls()
	if got.TransitionSpeed != def.TransitionSpeed {
		t.Fatalf("transition speed = %v, want default %v", got.TransitionSpeed, def.TransitionSpeed)
	}
	if got.Glow != 0 || got.TargetFPS != def.TargetFPS || got.TargetBitrate != def.TargetBitrate {
		t.Fatalf("unexpected sanitized controls %+v", got)
	}
}

func TestControlStoreUpdateNotifies(t *testing.T) {
	store := NewControlStore(DefaultControls())
	var seen []Controls
	store.OnChange(func(c Controls) { seen = append(seen, c) })

	store.Update(func(c *Controls) { c.Intensity = 2 })
	if len(seen) != 1 || seen[0].Intensity != 2 {
		t.Fatalf("listener saw %+v", seen)
	}
	if store.Snapshot().Intensity != 2 {
		t.Fatalf("snapshot not updated")
	}
}

func TestControlStoreLoadFileKeepsMissingFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "controls.json")
	if err := os.WriteFile(path, []byte(`{"beatJump": false, "intensity": 1.8}`), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewControlStore(DefaultControls())
	if err := store.LoadFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	got := store.Snapshot()
	if got.BeatJump || got.Intensity != 1.8 {
		t.Fatalf("file values not applied: %+v", got)
	}
	if !got.AutoCycle || got.TransitionSpeed != DefaultControls().TransitionSpeed {
		t.Fatalf("missing fields must keep their value: %+v", got)
	}
}

func TestControlStoreLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "controls.toml")
	body := "glow = 1.25\nauto_cycle = false\ntarget_fps = 60\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewControlStore(DefaultControls())
	if err := store.LoadFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	got := store.Snapshot()
	if got.Glow != 1.25 || got.AutoCycle || got.TargetFPS != 60 {
		t.Fatalf("toml values not applied: %+v", got)
	}
	if got.Intensity != DefaultControls().Intensity {
		t.Fatalf("missing fields must keep their value: %+v", got)
	}
}

func TestControlStoreLoadFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "controls.json")
	if err := os.WriteFile(path, []byte(`{not json`), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewControlStore(DefaultControls())
	if err := store.LoadFile(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestControlStoreWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "controls.json")
	if err := os.WriteFile(path, []byte(`{"intensity": 1}`), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewControlStore(DefaultControls())
	changed := make(chan Controls, 4)
	store.OnChange(func(c Controls) { changed <- c })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := store.Watch(ctx, path); err != nil {
		t.Fatalf("watch: %v", err)
	}

	if err := os.WriteFile(path, []byte(`{"intensity": 2.5}`), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changed:
			if c.Intensity == 2.5 {
				return
			}
		case <-deadline:
			t.Fatal("controls were not reloaded")
		}
	}
}

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("PROFILE", "Masterpiece")
	t.Setenv("INTENSITY", "1.25")
	t.Setenv("AUTO_CYCLE", "false")
	t.Setenv("CAPTURE_CHUNK_PERIOD", "500ms")
	t.Setenv("SMOOTH_SPECTRUM", "true")
	cfg := FromEnv()
	if cfg.Profile != "masterpiece" {
		t.Fatalf("profile = %q", cfg.Profile)
	}
	if cfg.Controls.Intensity != 1.25 || cfg.Controls.AutoCycle {
		t.Fatalf("controls from env not applied: %+v", cfg.Controls)
	}
	if cfg.CaptureChunkPeriod != 500*time.Millisecond {
		t.Fatalf("chunk period = %v", cfg.CaptureChunkPeriod)
	}
	if !cfg.SmoothSpectrum {
		t.Fatal("SMOOTH_SPECTRUM not applied")
	}
	if cfg.RedisEnabled() {
		t.Fatal("redis must be disabled without REDIS_HOST")
	}
}
