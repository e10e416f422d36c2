// Package capture records the composited output into an exportable file.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"vizdirector/logger"
	"vizdirector/storage"
)

// DefaultChunkInterval is how often buffered output is collected.
const DefaultChunkInterval = 250 * time.Millisecond

var (
	ErrNoSource    = errors.New("no active audio source")
	ErrUnsupported = errors.New("capture is not supported")
	ErrNoCodec     = errors.New("no supported recording format")
)

// MimePreference is the ordered list of container/codec combinations tried
// when a recording starts.
var MimePreference = []string{
	"video/webm;codecs=vp9,opus",
	"video/webm;codecs=vp8,opus",
	"video/webm;codecs=h264,opus",
	"video/webm",
}

// State is the recording lifecycle stage.
type State int

const (
	Idle State = iota
	Recording
	Finalizing
	Ready
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Idle, Recording, Finalizing, Ready} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown capture state %q", text)
}

// Options configure one recording.
type Options struct {
	MimeType      string
	FPS           int
	Bitrate       int
	ChunkInterval time.Duration
}

// Backend is the capture capability of the host.
type Backend interface {
	// Available returns an error when capture cannot work at all.
	Available() error
	Supports(mimeType string) bool
	Open(ctx context.Context, opts Options) (Recorder, error)
}

// Recorder is one running capture stream.
type Recorder interface {
	// Chunks yields encoded output. It is closed after Stop once every
	// buffered chunk has been delivered.
	Chunks() <-chan []byte
	// Stop asks the recorder to flush and finish.
	Stop() error
	// Close releases the underlying tracks.
	Close() error
}

// Status is a read-only view of the session for the UI.
type Status struct {
	State     State           `json:"state"`
	MimeType  string          `json:"mimeType,omitempty"`
	StartedAt time.Time       `json:"startedAt,omitempty"`
	Elapsed   time.Duration   `json:"elapsed"`
	Clock     string          `json:"clock"`
	Message   string          `json:"message,omitempty"`
	Export    *storage.Handle `json:"export,omitempty"`
}

// SessionConfig wires a session to its collaborators.
type SessionConfig struct {
	Backend Backend
	Store   storage.ExportStore
	// SourceReady reports whether an audio source is loaded.
	SourceReady   func() bool
	Prefix        string
	ChunkInterval time.Duration
	Now           func() time.Time
}

// Session owns the RecordingState. At most one recording runs at a time.
type Session struct {
	cfg SessionConfig

	mu        sync.Mutex
	state     State
	mimeType  string
	startedAt time.Time
	rec       Recorder
	buf       *chunkBuffer
	starting  bool
	handle    *storage.Handle
	message   string
	listeners []func(Status)
}

// NewSession creates an idle session.
func NewSession(cfg SessionConfig) *Session {
	if cfg.Prefix == "" {
		cfg.Prefix = "audio-director"
	}
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = DefaultChunkInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Store == nil {
		cfg.Store = storage.NewMemoryStore("")
	}
	return &Session{cfg: cfg}
}

// OnChange registers fn for every state transition.
func (s *Session) OnChange(fn func(Status)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// NegotiateMime returns the first entry of MimePreference the backend supports.
func NegotiateMime(b Backend) (string, bool) {
	for _, m := range MimePreference {
		if b.Supports(m) {
			return m, true
		}
	}
	return "", false
}

// Start begins a recording. It is a no-op while a recording is starting,
// running or finalizing. On failure the session stays Idle and Status carries
// a message. Backend probing, revoking the previous export and opening the
// recorder happen outside the session lock.
func (s *Session) Start(ctx context.Context, fps, bitrate int) error {
	s.mu.Lock()
	if s.starting || s.state == Recording || s.state == Finalizing {
		s.mu.Unlock()
		return nil
	}
	s.starting = true
	s.mu.Unlock()

	if err := s.checkStart(); err != nil {
		s.mu.Lock()
		s.starting = false
		s.message = userMessage(err)
		st := s.statusLocked()
		s.mu.Unlock()
		s.emit(st)
		return err
	}
	mimeType, _ := NegotiateMime(s.cfg.Backend)

	// a new recording replaces the previous export
	s.mu.Lock()
	prev := s.takeHandleLocked()
	if s.state == Ready {
		s.state = Idle
	}
	s.mu.Unlock()
	s.revoke(ctx, prev)

	rec, err := s.cfg.Backend.Open(ctx, Options{
		MimeType:      mimeType,
		FPS:           fps,
		Bitrate:       bitrate,
		ChunkInterval: s.cfg.ChunkInterval,
	})

	s.mu.Lock()
	s.starting = false
	if err != nil {
		s.state = Idle
		s.message = "Recording could not start."
		st := s.statusLocked()
		s.mu.Unlock()
		s.emit(st)
		return fmt.Errorf("open recorder: %w", err)
	}

	s.state = Recording
	s.mimeType = mimeType
	s.startedAt = s.cfg.Now()
	s.rec = rec
	s.message = ""
	s.buf = &chunkBuffer{done: make(chan struct{})}
	go s.buf.collect(rec)
	st := s.statusLocked()
	s.mu.Unlock()

	logger.Info("recording started",
		logger.String("mime", mimeType),
		logger.Int("fps", fps),
		logger.Int("bitrate", bitrate))
	s.emit(st)
	return nil
}

func (s *Session) checkStart() error {
	if s.cfg.SourceReady != nil && !s.cfg.SourceReady() {
		return ErrNoSource
	}
	if s.cfg.Backend == nil {
		return ErrUnsupported
	}
	if err := s.cfg.Backend.Available(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	if _, ok := NegotiateMime(s.cfg.Backend); !ok {
		return ErrNoCodec
	}
	return nil
}

// chunkBuffer accumulates the output of one recording.
type chunkBuffer struct {
	mu     sync.Mutex
	chunks [][]byte
	done   chan struct{}
}

func (b *chunkBuffer) collect(rec Recorder) {
	defer close(b.done)
	for chunk := range rec.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		b.mu.Lock()
		b.chunks = append(b.chunks, chunk)
		b.mu.Unlock()
	}
}

func (b *chunkBuffer) joined() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Join(b.chunks, nil)
}

// Stop finalizes the running recording into an export. It is a no-op unless
// Recording. Every chunk the recorder delivers before closing its stream is
// kept; if ctx ends first, the chunks collected so far are exported.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Recording {
		s.mu.Unlock()
		return nil
	}
	s.state = Finalizing
	rec, buf := s.rec, s.buf
	st := s.statusLocked()
	s.mu.Unlock()
	s.emit(st)

	if err := rec.Stop(); err != nil {
		logger.Warn("recorder stop failed", logger.ErrorField(err))
	}
	select {
	case <-buf.done:
	case <-ctx.Done():
		logger.Warn("recording drain interrupted", logger.ErrorField(ctx.Err()))
	}
	if err := rec.Close(); err != nil {
		logger.Warn("recorder close failed", logger.ErrorField(err))
	}

	data := buf.joined()
	s.mu.Lock()
	s.rec = nil
	s.buf = nil
	mimeType := s.mimeType
	prev := s.takeHandleLocked()
	s.mu.Unlock()
	s.revoke(ctx, prev)

	filename := ExportFilename(s.cfg.Prefix, s.cfg.Now())
	h, err := s.cfg.Store.Put(ctx, filename, containerType(mimeType), data)

	s.mu.Lock()
	if err != nil {
		s.state = Idle
		s.message = "Export failed."
		st = s.statusLocked()
		s.mu.Unlock()
		s.emit(st)
		return fmt.Errorf("store export: %w", err)
	}
	s.state = Ready
	s.handle = &h
	s.message = fmt.Sprintf("Export ready (%.1f MB)", float64(h.Size)/1024/1024)
	st = s.statusLocked()
	s.mu.Unlock()

	logger.Info("recording exported",
		logger.String("id", h.ID),
		logger.String("filename", h.Filename),
		logger.Int64("size", h.Size))
	s.emit(st)
	return nil
}

// Discard revokes a Ready export and returns to Idle.
func (s *Session) Discard(ctx context.Context) {
	s.mu.Lock()
	if s.state != Ready {
		s.mu.Unlock()
		return
	}
	prev := s.takeHandleLocked()
	s.state = Idle
	s.message = ""
	st := s.statusLocked()
	s.mu.Unlock()
	s.revoke(ctx, prev)
	s.emit(st)
}

func (s *Session) takeHandleLocked() *storage.Handle {
	h := s.handle
	s.handle = nil
	return h
}

// revoke releases an export the session no longer points at. Callers do not
// hold s.mu.
func (s *Session) revoke(ctx context.Context, h *storage.Handle) {
	if h == nil {
		return
	}
	if err := s.cfg.Store.Revoke(ctx, h.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		logger.Warn("revoke export failed", logger.String("id", h.ID), logger.ErrorField(err))
	}
}

// State returns the current stage.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elapsed is the wall clock time since the recording started, or zero.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

func (s *Session) elapsedLocked() time.Duration {
	if s.state != Recording && s.state != Finalizing {
		return 0
	}
	if d := s.cfg.Now().Sub(s.startedAt); d > 0 {
		return d
	}
	return 0
}

// Status returns a snapshot for the UI.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Session) statusLocked() Status {
	st := Status{
		State:   s.state,
		Elapsed: s.elapsedLocked(),
		Message: s.message,
	}
	st.Clock = FormatClock(st.Elapsed)
	if s.state == Recording || s.state == Finalizing {
		st.MimeType = s.mimeType
		st.StartedAt = s.startedAt
	}
	if s.handle != nil {
		h := *s.handle
		st.Export = &h
	}
	return st
}

func (s *Session) emit(st Status) {
	s.mu.Lock()
	listeners := append([]func(Status){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(st)
	}
}

// FormatClock renders d as mm:ss.
func FormatClock(d time.Duration) string {
	secs := int(d / time.Second)
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

// ExportFilename builds "<prefix>-<stamp>.webm" from a UTC ISO timestamp with
// ':' and '.' replaced by '-'.
func ExportFilename(prefix string, t time.Time) string {
	stamp := t.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	return fmt.Sprintf("%s-%s.webm", prefix, stamp)
}

// containerType strips codec parameters from a negotiated MIME type.
func containerType(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		return mimeType[:i]
	}
	if mimeType == "" {
		return "video/webm"
	}
	return mimeType
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, ErrNoSource):
		return "Load audio before recording."
	case errors.Is(err, ErrUnsupported):
		return "Recording is not supported in this environment."
	case errors.Is(err, ErrNoCodec):
		return "No supported video format available."
	}
	return err.Error()
}
