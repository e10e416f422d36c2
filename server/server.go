package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"vizdirector/core/director"
	"vizdirector/logger"
	"vizdirector/storage"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// FramePusher accepts rendered RGBA frames for an active recording.
type FramePusher interface {
	PushFrame(frame []byte) bool
}

// Options wire a Server.
type Options struct {
	Engine *director.Engine
	Feed   *HostFeed
	Store  storage.ExportStore
	// Frames receives KindVideo frames from the host. Nil drops them.
	Frames FramePusher
	// Secret enables bearer-token checks on mutating routes.
	Secret    string
	ReadLimit int64
}

// Server exposes an engine over HTTP and the websocket host link.
type Server struct {
	engine   *director.Engine
	feed     *HostFeed
	store    storage.ExportStore
	frames   FramePusher
	secret   string
	hub      *Hub
	upgrader websocket.Upgrader

	hostMu sync.Mutex
	hostID string
}

// New creates a server and subscribes it to engine output.
func New(opts Options) *Server {
	s := &Server{
		engine: opts.Engine,
		feed:   opts.Feed,
		store:  opts.Store,
		frames: opts.Frames,
		secret: opts.Secret,
		hub:    NewHub(opts.ReadLimit),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	if s.feed == nil {
		s.feed = NewHostFeed()
	}

	s.feed.OnSeek(func(sec float64) {
		if msg, err := NewMessage(MsgTypeSeek, map[string]float64{"time": sec}); err == nil {
			s.hub.Broadcast(msg)
		}
	})
	s.engine.OnEvent(func(ev director.Event) {
		if msg, err := NewMessage(MsgTypeEvent, ev); err == nil {
			s.hub.Broadcast(msg)
		}
	})
	s.engine.OnFrame(func(f director.Frame) {
		if s.hub.Count() == 0 {
			return
		}
		if msg, err := NewMessage(MsgTypeFrame, f); err == nil {
			s.hub.Broadcast(msg)
		}
	})
	return s
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Feed returns the host feed the engine reads.
func (s *Server) Feed() *HostFeed { return s.feed }

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/state", s.stateHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/scene", s.AuthMiddleware(s.sceneHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/seek", s.AuthMiddleware(s.seekHandler)).Methods(http.MethodPost)

	router.HandleFunc("/api/cues", s.getCuesHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/cues", s.AuthMiddleware(s.addCueHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/cues", s.AuthMiddleware(s.replaceCuesHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/cues", s.AuthMiddleware(s.removeCueHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/cues/all", s.AuthMiddleware(s.clearCuesHandler)).Methods(http.MethodDelete)

	router.HandleFunc("/api/controls", s.getControlsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/controls", s.AuthMiddleware(s.putControlsHandler)).Methods(http.MethodPut)

	router.HandleFunc("/api/capture", s.captureStatusHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/capture", s.AuthMiddleware(s.captureDiscardHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/capture/start", s.AuthMiddleware(s.captureStartHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/capture/stop", s.AuthMiddleware(s.captureStopHandler)).Methods(http.MethodPost)

	router.HandleFunc("/exports/{id}", s.exportHandler).Methods(http.MethodGet)
	router.HandleFunc("/ws", s.AuthMiddleware(s.wsHandler))

	// Handle OPTIONS requests for all routes
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe runs the HTTP server and the hub until ctx is cancelled,
// then shuts both down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go s.hub.Run()
	defer s.hub.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("HTTP server stopped")
	return nil
}
