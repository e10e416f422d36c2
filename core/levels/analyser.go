package levels

import (
	"fmt"
	"math"
	"sync"

	vecmath "github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"
)

// Analyser defaults, matching a browser AnalyserNode.
const (
	DefaultFFTSize     = 2048
	DefaultMinDecibels = -100.0
	DefaultMaxDecibels = -30.0
)

// Analyser is a software stand-in for a hardware/browser analyser node. It
// keeps the last FFTSize PCM samples and produces byte frequency and
// waveform snapshots on demand. It is safe for one writer and one reader.
type Analyser struct {
	mu sync.Mutex

	size      int
	smoothing float64
	minDB     float64
	maxDB     float64

	fft    *fourier.FFT
	window []float64

	ring   []float64
	write  int
	filled int

	frame    []float64
	coeffs   []complex128
	re, im   []float64
	mag      []float64
	smoothed []float64
}

// NewAnalyser creates an analyser for a power-of-two fftSize with the given
// smoothing constant (see DefaultSmoothing).
func NewAnalyser(fftSize int, smoothing float64) (*Analyser, error) {
	if fftSize < 32 || fftSize&(fftSize-1) != 0 {
		return nil, fmt.Errorf("fft size must be a power of two >= 32, got %d", fftSize)
	}
	if smoothing < 0 || smoothing >= 1 {
		return nil, fmt.Errorf("smoothing must be in [0,1), got %v", smoothing)
	}
	bins := fftSize / 2
	return &Analyser{
		size:      fftSize,
		smoothing: smoothing,
		minDB:     DefaultMinDecibels,
		maxDB:     DefaultMaxDecibels,
		fft:       fourier.NewFFT(fftSize),
		window:    blackman(fftSize),
		ring:      make([]float64, fftSize),
		frame:     make([]float64, fftSize),
		coeffs:    make([]complex128, fftSize/2+1),
		re:        make([]float64, bins),
		im:        make([]float64, bins),
		mag:       make([]float64, bins),
		smoothed:  make([]float64, bins),
	}, nil
}

// Bins is the length of a frequency snapshot (half the FFT size).
func (a *Analyser) Bins() int {
	return a.size / 2
}

// Write appends PCM samples in [-1,1].
func (a *Analyser) Write(samples []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range samples {
		a.ring[a.write] = s
		a.write = (a.write + 1) % a.size
	}
	a.filled += len(samples)
	if a.filled > a.size {
		a.filled = a.size
	}
}

// Ready reports whether any audio has been written.
func (a *Analyser) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filled > 0
}

// Frequency fills dst with the smoothed magnitude spectrum mapped from
// [minDecibels, maxDecibels] onto [0,255]. It returns false before any audio
// was written or when dst is too short.
func (a *Analyser) Frequency(dst []byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	bins := a.size / 2
	if a.filled == 0 || len(dst) < bins {
		return false
	}

	a.copyFrame()
	vecmath.MulBlockInPlace(a.frame, a.window)
	a.coeffs = a.fft.Coefficients(a.coeffs, a.frame)

	for k := 0; k < bins; k++ {
		a.re[k] = real(a.coeffs[k])
		a.im[k] = imag(a.coeffs[k])
	}
	vecmath.Magnitude(a.mag, a.re, a.im)

	scale := 1 / float64(a.size)
	span := a.maxDB - a.minDB
	for k := 0; k < bins; k++ {
		m := a.mag[k] * scale
		a.smoothed[k] = a.smoothing*a.smoothed[k] + (1-a.smoothing)*m

		db := -math.MaxFloat64
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		v := 255 * (db - a.minDB) / span
		dst[k] = toByte(v)
	}
	return true
}

// Waveform fills dst with the most recent samples as unsigned bytes centred on
// 128.
func (a *Analyser) Waveform(dst []byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.filled == 0 || len(dst) == 0 {
		return false
	}
	a.copyFrame()
	n := len(dst)
	if n > a.size {
		n = a.size
	}
	offset := a.size - n
	for i := 0; i < n; i++ {
		dst[i] = toByte(128 + a.frame[offset+i]*128)
	}
	return true
}

// copyFrame unrolls the ring into frame, oldest sample first.
func (a *Analyser) copyFrame() {
	n := copy(a.frame, a.ring[a.write:])
	copy(a.frame[n:], a.ring[:a.write])
}

// blackman returns the periodic Blackman window browser analysers use. The
// periodic form of length n is the symmetric window of length n+1 without its
// last point.
func blackman(n int) []float64 {
	w := make([]float64, n+1)
	for i := range w {
		w[i] = 1
	}
	return window.Blackman(w)[:n]
}
