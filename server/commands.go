package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"vizdirector/core/capture"
	"vizdirector/core/cue"
	"vizdirector/core/director"
	"vizdirector/storage"
)

// Command ops accepted over the websocket link. The HTTP routes map onto the
// same ops.
const (
	OpSelect         = "select"
	OpStep           = "step"
	OpSeek           = "seek"
	OpCueAdd         = "cue_add"
	OpCueRemove      = "cue_remove"
	OpCueClear       = "cue_clear"
	OpCueReplace     = "cue_replace"
	OpCaptureStart   = "capture_start"
	OpCaptureStop    = "capture_stop"
	OpCaptureDiscard = "capture_discard"
)

var errBadCommand = errors.New("bad command")

// Command is one user action.
type Command struct {
	Op    string    `json:"op"`
	Index *int      `json:"index,omitempty"`
	Step  int       `json:"step,omitempty"`
	Time  *float64  `json:"time,omitempty"`
	Cues  []cue.Cue `json:"cues,omitempty"`
}

func (s *Server) dispatch(ctx context.Context, cmd Command) error {
	e := s.engine
	switch cmd.Op {
	case OpSelect:
		if cmd.Index == nil {
			return fmt.Errorf("%w: select needs an index", errBadCommand)
		}
		return e.SelectScene(*cmd.Index)
	case OpStep:
		if cmd.Step == 0 {
			return fmt.Errorf("%w: step must be non-zero", errBadCommand)
		}
		return e.StepScene(cmd.Step)
	case OpSeek:
		if cmd.Time == nil {
			return fmt.Errorf("%w: seek needs a time", errBadCommand)
		}
		return e.Seek(*cmd.Time)
	case OpCueAdd:
		if cmd.Time == nil && cmd.Index == nil {
			return e.AddCue()
		}
		snap := e.Snapshot()
		at, index := snap.Position, snap.Selected
		if cmd.Time != nil {
			at = *cmd.Time
		}
		if cmd.Index != nil {
			index = *cmd.Index
		}
		return e.AddCueAt(at, index)
	case OpCueRemove:
		if cmd.Time == nil {
			return e.RemoveCue()
		}
		return e.RemoveCueAt(*cmd.Time)
	case OpCueClear:
		return e.ClearCues()
	case OpCueReplace:
		return e.ReplaceCues(cmd.Cues)
	case OpCaptureStart:
		return e.StartCapture(ctx)
	case OpCaptureStop:
		return e.StopCapture(ctx)
	case OpCaptureDiscard:
		return e.DiscardCapture(ctx)
	default:
		return fmt.Errorf("%w: unknown op %q", errBadCommand, cmd.Op)
	}
}

// statusFor maps command errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadCommand):
		return http.StatusBadRequest
	case errors.Is(err, director.ErrNotReady), errors.Is(err, capture.ErrNoSource):
		return http.StatusConflict
	case errors.Is(err, director.ErrNotCued), errors.Is(err, director.ErrNoCapture):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, capture.ErrUnsupported), errors.Is(err, capture.ErrNoCodec):
		return http.StatusNotImplemented
	case errors.Is(err, director.ErrBusy):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
