package director

import (
	"context"
	"math"

	"vizdirector/config"
	"vizdirector/core/cue"
	"vizdirector/core/scene"

	"go.uber.org/zap"
)

// post queues cmd for the next tick.
func (e *Engine) post(cmd command) error {
	select {
	case e.cmds <- cmd:
		return nil
	default:
		return ErrBusy
	}
}

func (e *Engine) requireReady() error {
	if !e.ready.Load() {
		return ErrNotReady
	}
	return nil
}

// SelectScene picks scene index. In live mode it starts a crossfade; in cued
// mode it only changes the scene that cue commands place.
func (e *Engine) SelectScene(index int) error {
	if err := e.requireReady(); err != nil {
		return err
	}
	return e.post(func(e *Engine) {
		if e.timeline != nil {
			e.selected = e.controller.Wrap(index)
			e.publishNow()
			return
		}
		e.trigger = "manual"
		e.controller.Select(index)
		e.trigger = ""
		e.publishNow()
	})
}

// StepScene moves delta scenes from the target. In cued mode the selection
// moves and a cue is placed for it at the current position.
func (e *Engine) StepScene(delta int) error {
	if err := e.requireReady(); err != nil {
		return err
	}
	return e.post(func(e *Engine) {
		if e.timeline != nil {
			e.selected = e.controller.Wrap(int(e.selected) + delta)
			pos, _ := e.position()
			e.setCue(pos, int(e.selected))
			return
		}
		e.trigger = "manual"
		e.controller.Step(delta)
		e.trigger = ""
		e.publishNow()
	})
}

// AddCue places a cue for the selected scene at the current position.
func (e *Engine) AddCue() error {
	return e.cueCommand(func(e *Engine) {
		pos, _ := e.position()
		e.setCue(pos, int(e.selected))
	})
}

// AddCueAt places a cue for scene at sec.
func (e *Engine) AddCueAt(sec float64, index int) error {
	return e.cueCommand(func(e *Engine) {
		e.setCue(sec, int(e.controller.Wrap(index)))
	})
}

// RemoveCue deletes the cues near the current position.
func (e *Engine) RemoveCue() error {
	return e.cueCommand(func(e *Engine) {
		pos, _ := e.position()
		e.removeCue(pos)
	})
}

// RemoveCueAt deletes the cues near sec.
func (e *Engine) RemoveCueAt(sec float64) error {
	return e.cueCommand(func(e *Engine) { e.removeCue(sec) })
}

// ClearCues resets the timeline to its single zero cue.
func (e *Engine) ClearCues() error {
	if e.timeline == nil {
		return ErrNotCued
	}
	return e.post(func(e *Engine) {
		e.timeline.Clear()
		e.applyCue(0)
		e.cuesChanged()
	})
}

// ReplaceCues loads a whole cue list.
func (e *Engine) ReplaceCues(cues []cue.Cue) error {
	if e.timeline == nil {
		return ErrNotCued
	}
	cues = append([]cue.Cue(nil), cues...)
	return e.post(func(e *Engine) {
		for i := range cues {
			cues[i].Scene = int(e.controller.Wrap(cues[i].Scene))
		}
		e.timeline.Replace(cues)
		pos, _ := e.position()
		e.applyCue(pos)
		e.cuesChanged()
	})
}

// Seek moves the media clock and, in cued mode, re-resolves the scene at once.
func (e *Engine) Seek(sec float64) error {
	if err := e.requireReady(); err != nil {
		return err
	}
	return e.post(func(e *Engine) {
		if d := e.duration(); d > 0 {
			sec = math.Min(sec, d)
		}
		sec = math.Max(0, sec)
		if s, ok := e.playback.(Seeker); ok {
			s.Seek(sec)
		}
		if e.timeline != nil {
			e.applyCue(sec)
		}
		e.publishNow()
	})
}

// UpdateControls changes the live controls.
func (e *Engine) UpdateControls(fn func(*config.Controls)) config.Controls {
	return e.controls.Update(fn)
}

// StartCapture starts recording with the target fps and bitrate of the
// current controls.
func (e *Engine) StartCapture(ctx context.Context) error {
	if e.session == nil {
		return ErrNoCapture
	}
	c := e.controls.Snapshot()
	return e.session.Start(ctx, c.TargetFPS, c.TargetBitrate)
}

// StopCapture finalizes the recording.
func (e *Engine) StopCapture(ctx context.Context) error {
	if e.session == nil {
		return ErrNoCapture
	}
	return e.session.Stop(ctx)
}

// DiscardCapture drops a finished export.
func (e *Engine) DiscardCapture(ctx context.Context) error {
	if e.session == nil {
		return ErrNoCapture
	}
	e.session.Discard(ctx)
	return nil
}

func (e *Engine) cueCommand(cmd command) error {
	if e.timeline == nil {
		return ErrNotCued
	}
	if err := e.requireReady(); err != nil {
		return err
	}
	return e.post(cmd)
}

// setCue stores a cue at sec rounded to hundredths.
func (e *Engine) setCue(sec float64, index int) {
	t := math.Round(math.Max(0, sec)*100) / 100
	e.timeline.SetCue(t, index)
	pos, _ := e.position()
	e.applyCue(pos)
	e.log.Debug("cue set", zap.Float64("time", t), zap.Int("scene", index))
	e.cuesChanged()
}

func (e *Engine) removeCue(sec float64) {
	n := e.timeline.RemoveNear(sec)
	pos, _ := e.position()
	e.applyCue(pos)
	e.log.Debug("cues removed", zap.Float64("near", sec), zap.Int("count", n))
	e.cuesChanged()
}

func (e *Engine) applyCue(sec float64) {
	e.trigger = "cue"
	e.controller.Select(e.timeline.ActiveSceneAt(sec))
	e.trigger = ""
}

func (e *Engine) cuesChanged() {
	e.publishNow()
	e.emit(Event{Type: EventCues, Cues: e.timeline.Cues()})
}

// publishNow refreshes the snapshot after a command, keeping the last levels.
func (e *Engine) publishNow() {
	e.mu.RLock()
	lv, ready := e.snap.Levels, e.snap.Ready
	e.mu.RUnlock()
	e.publish(lv, ready)
}

// SceneName is a helper for callers formatting scene indices.
func (e *Engine) SceneName(i int) string {
	return e.registry.Name(scene.Index(i))
}
