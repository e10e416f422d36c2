package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"vizdirector/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
)

// Controls are the user-facing knobs of a running show. They are read as a
// snapshot on every tick and may change at any moment.
type Controls struct {
	Intensity       float64 `json:"intensity" toml:"intensity"`
	TransitionSpeed float64 `json:"transitionSpeed" toml:"transition_speed"`
	Glow            float64 `json:"glow" toml:"glow"`
	AutoCycle       bool    `json:"autoCycle" toml:"auto_cycle"`
	BeatJump        bool    `json:"beatJump" toml:"beat_jump"`
	TargetFPS       int     `json:"targetFps" toml:"target_fps"`
	TargetBitrate   int     `json:"targetBitrate" toml:"target_bitrate"`
}

// DefaultControls mirrors the initial slider positions of the player UI.
func DefaultControls() Controls {
	return Controls{
		Intensity:       1.0,
		TransitionSpeed: 1.5,
		Glow:            0.7,
		AutoCycle:       true,
		BeatJump:        true,
		TargetFPS:       30,
		TargetBitrate:   8_000_000,
	}
}

// Sanitize clamps values that would break the tick loop. Intensity is left
// unbounded above on purpose, only negatives are rejected.
func (c Controls) Sanitize() Controls {
	if c.Intensity < 0 {
		c.Intensity = 0
	}
	if c.TransitionSpeed <= 0 {
		c.TransitionSpeed = DefaultControls().TransitionSpeed
	}
	if c.Glow < 0 {
		c.Glow = 0
	}
	if c.TargetFPS <= 0 {
		c.TargetFPS = DefaultControls().TargetFPS
	}
	if c.TargetBitrate <= 0 {
		c.TargetBitrate = DefaultControls().TargetBitrate
	}
	return c
}

// ControlStore holds the current Controls. It is safe for concurrent use.
type ControlStore struct {
	mu        sync.RWMutex
	controls  Controls
	listeners []func(Controls)
}

// NewControlStore creates a store seeded with c.
func NewControlStore(c Controls) *ControlStore {
	return &ControlStore{controls: c.Sanitize()}
}

// Snapshot returns a copy of the current controls.
func (s *ControlStore) Snapshot() Controls {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.controls
}

// Update applies fn to a copy of the controls and stores the sanitized result.
func (s *ControlStore) Update(fn func(*Controls)) Controls {
	s.mu.Lock()
	next := s.controls
	fn(&next)
	next = next.Sanitize()
	s.controls = next
	listeners := append([]func(Controls){}, s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(next)
	}
	return next
}

// OnChange registers a callback invoked after every Update.
func (s *ControlStore) OnChange(fn func(Controls)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// LoadFile reads a controls file on top of the current values. Files ending
// in .toml are decoded as TOML, anything else as JSON. Fields missing from
// the file keep their current value.
func (s *ControlStore) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read controls file %s: %w", path, err)
	}
	next := s.Snapshot()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &next)
	} else {
		err = json.Unmarshal(data, &next)
	}
	if err != nil {
		return fmt.Errorf("decode controls file %s: %w", path, err)
	}
	s.Update(func(c *Controls) { *c = next })
	return nil
}

// Watch reloads the controls file whenever it is written or re-created, until
// ctx is cancelled. The parent directory is watched so editors that replace
// the file atomically are handled.
func (s *ControlStore) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create controls watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	go func() {
		defer watcher.Close()
		// editors emit bursts of events; collapse them
		var debounce <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					debounce = time.After(100 * time.Millisecond)
				}
			case <-debounce:
				debounce = nil
				if err := s.LoadFile(path); err != nil {
					logger.Warn("controls reload failed", logger.ErrorField(err))
					continue
				}
				logger.Info("controls reloaded", logger.String("path", path))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("controls watcher error", logger.ErrorField(err))
			}
		}
	}()
	return nil
}
