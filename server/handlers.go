package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"vizdirector/config"
	"vizdirector/core/cue"
	"vizdirector/core/director"
	"vizdirector/logger"

	"github.com/gorilla/mux"
)

const maxBodySize = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", logger.ErrorField(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadCommand, err)
	}
	return nil
}

// run dispatches cmd and answers 202 since the engine applies it on its
// next tick.
func (s *Server) run(w http.ResponseWriter, r *http.Request, cmd Command) {
	if err := s.dispatch(r.Context(), cmd); err != nil {
		writeError(w, err)
		return
	}
	logger.Debug("command queued",
		logger.String("op", cmd.Op),
		logger.String("operator", OperatorFromContext(r.Context())))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "op": cmd.Op})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"profile": s.engine.Profile().Name,
		"ready":   s.engine.Ready(),
		"hosts":   s.hub.Count(),
	})
}

func (s *Server) stateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

type sceneRequest struct {
	Index *int `json:"index"`
	Step  int  `json:"step"`
}

func (s *Server) sceneHandler(w http.ResponseWriter, r *http.Request) {
	var req sceneRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	switch {
	case req.Index != nil && req.Step != 0:
		writeError(w, fmt.Errorf("%w: index and step are exclusive", errBadCommand))
	case req.Index != nil:
		s.run(w, r, Command{Op: OpSelect, Index: req.Index})
	default:
		s.run(w, r, Command{Op: OpStep, Step: req.Step})
	}
}

func (s *Server) seekHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Time *float64 `json:"time"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.run(w, r, Command{Op: OpSeek, Time: req.Time})
}

func (s *Server) getCuesHandler(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	if snap.Mode != director.ModeCued {
		writeError(w, director.ErrNotCued)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cues":      snap.Cues,
		"activeCue": snap.ActiveCue,
		"selected":  snap.Selected,
	})
}

func (s *Server) addCueHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Time  *float64 `json:"time"`
		Index *int     `json:"index"`
	}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	s.run(w, r, Command{Op: OpCueAdd, Time: req.Time, Index: req.Index})
}

func (s *Server) replaceCuesHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Cues []cue.Cue `json:"cues"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.run(w, r, Command{Op: OpCueReplace, Cues: req.Cues})
}

func (s *Server) removeCueHandler(w http.ResponseWriter, r *http.Request) {
	cmd := Command{Op: OpCueRemove}
	if v := r.URL.Query().Get("time"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, fmt.Errorf("%w: invalid time %q", errBadCommand, v))
			return
		}
		cmd.Time = &t
	}
	s.run(w, r, cmd)
}

func (s *Server) clearCuesHandler(w http.ResponseWriter, r *http.Request) {
	s.run(w, r, Command{Op: OpCueClear})
}

func (s *Server) getControlsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Controls().Snapshot())
}

// putControlsHandler applies a partial update; fields missing from the body
// keep their value.
func (s *Server) putControlsHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadCommand, err))
		return
	}
	var probe config.Controls
	if err := json.Unmarshal(body, &probe); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadCommand, err))
		return
	}
	next := s.engine.UpdateControls(func(c *config.Controls) {
		_ = json.Unmarshal(body, c)
	})
	logger.Info("controls updated",
		logger.String("operator", OperatorFromContext(r.Context())),
		logger.Float64("intensity", next.Intensity),
		logger.Float64("transitionSpeed", next.TransitionSpeed))
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) captureStatusHandler(w http.ResponseWriter, r *http.Request) {
	session := s.engine.Capture()
	if session == nil {
		writeError(w, director.ErrNoCapture)
		return
	}
	writeJSON(w, http.StatusOK, session.Status())
}

func (s *Server) captureAction(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.dispatch(r.Context(), Command{Op: op}); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.engine.Capture().Status())
	}
}

func (s *Server) captureStartHandler(w http.ResponseWriter, r *http.Request) {
	s.captureAction(OpCaptureStart)(w, r)
}

func (s *Server) captureStopHandler(w http.ResponseWriter, r *http.Request) {
	s.captureAction(OpCaptureStop)(w, r)
}

func (s *Server) captureDiscardHandler(w http.ResponseWriter, r *http.Request) {
	s.captureAction(OpCaptureDiscard)(w, r)
}

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.NotFound(w, r)
		return
	}
	id := mux.Vars(r)["id"]
	h, body, err := s.store.Open(r.Context(), id)
	if err != nil {
		if statusFor(err) == http.StatusNotFound {
			http.NotFound(w, r)
			return
		}
		writeError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", h.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", h.Filename))
	if h.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(h.Size, 10))
	}
	if _, err := io.Copy(w, body); err != nil {
		logger.Warn("error serving export", logger.String("id", id), logger.ErrorField(err))
	}
}
