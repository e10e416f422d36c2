package server

import (
	"sync"
	"time"
)

// Binary host frames start with one kind byte.
const (
	KindFrequency byte = 1
	KindWaveform  byte = 2
	KindVideo     byte = 3
)

// DefaultStaleAfter is how long analysis from the host stays valid. A host
// that stops sending makes the engine fall back to its inert state.
const DefaultStaleAfter = time.Second

// PlaybackReport is the media clock as the host last saw it.
type PlaybackReport struct {
	Position float64 `json:"position"`
	Duration float64 `json:"duration"`
	Playing  bool    `json:"playing"`
}

// HostFeed holds the latest analyser bytes and media clock reported by the
// host page. It serves as the engine's Source, Playback and Seeker.
type HostFeed struct {
	mu         sync.RWMutex
	freq       []byte
	wave       []byte
	analysedAt time.Time
	clock      PlaybackReport
	reportedAt time.Time

	staleAfter time.Duration
	now        func() time.Time
	onSeek     func(sec float64)
}

// NewHostFeed creates an empty feed.
func NewHostFeed() *HostFeed {
	return &HostFeed{staleAfter: DefaultStaleAfter, now: time.Now}
}

// OnSeek registers fn to forward seeks to the host.
func (f *HostFeed) OnSeek(fn func(sec float64)) {
	f.mu.Lock()
	f.onSeek = fn
	f.mu.Unlock()
}

// PutAnalysis stores one binary analysis frame. It reports false for kinds
// it does not handle.
func (f *HostFeed) PutAnalysis(kind byte, payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch kind {
	case KindFrequency:
		f.freq = append(f.freq[:0], payload...)
		f.analysedAt = f.now()
	case KindWaveform:
		f.wave = append(f.wave[:0], payload...)
	default:
		return false
	}
	return true
}

// PutPlayback stores the host's media clock.
func (f *HostFeed) PutPlayback(p PlaybackReport) {
	f.mu.Lock()
	f.clock = p
	f.reportedAt = f.now()
	f.mu.Unlock()
}

// Reset forgets everything the host reported, e.g. when it disconnects.
func (f *HostFeed) Reset() {
	f.mu.Lock()
	f.freq, f.wave = f.freq[:0], f.wave[:0]
	f.analysedAt = time.Time{}
	f.clock = PlaybackReport{}
	f.reportedAt = time.Time{}
	f.mu.Unlock()
}

func (f *HostFeed) fresh() bool {
	return len(f.freq) > 0 && f.now().Sub(f.analysedAt) <= f.staleAfter
}

// Bins is the length of the last frequency frame.
func (f *HostFeed) Bins() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.freq)
}

// Frequency copies the last frequency frame into dst.
func (f *HostFeed) Frequency(dst []byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.fresh() {
		return false
	}
	n := copy(dst, f.freq)
	clear(dst[n:])
	return true
}

// Waveform copies the last waveform frame into dst.
func (f *HostFeed) Waveform(dst []byte) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.fresh() || len(f.wave) == 0 {
		return false
	}
	n := copy(dst, f.wave)
	for i := n; i < len(dst); i++ {
		dst[i] = 128
	}
	return true
}

// Position extrapolates the reported position while playing.
func (f *HostFeed) Position() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	pos := f.clock.Position
	if f.clock.Playing && !f.reportedAt.IsZero() {
		pos += f.now().Sub(f.reportedAt).Seconds()
	}
	if f.clock.Duration > 0 && pos > f.clock.Duration {
		pos = f.clock.Duration
	}
	return pos
}

// Duration is the media duration, 0 when unknown.
func (f *HostFeed) Duration() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.clock.Duration
}

// Playing reports whether the host media is playing.
func (f *HostFeed) Playing() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.clock.Playing
}

// Seek moves the local clock and asks the host to follow.
func (f *HostFeed) Seek(sec float64) {
	f.mu.Lock()
	f.clock.Position = sec
	f.reportedAt = f.now()
	fn := f.onSeek
	f.mu.Unlock()
	if fn != nil {
		fn(sec)
	}
}
