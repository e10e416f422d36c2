// Package levels reduces a frequency snapshot into the named energy bands
// scenes react to.
package levels

import "math"

// LowBin is the first bin taken into account. Bins 0 and 1 carry DC offset
// and sub-audible rumble and are skipped by every band.
const LowBin = 2

// Levels is the per-tick reduction of a spectrum. Bass, Mid, High and Energy
// are in [0,1]; Pulse is scaled by the live intensity and may exceed 1.
type Levels struct {
	Bass   float64 `json:"bass"`
	Mid    float64 `json:"mid"`
	High   float64 `json:"high"`
	Energy float64 `json:"energy"`
	Pulse  float64 `json:"pulse"`
}

// BandLayout holds the fractional bin boundaries of the bands. Bass covers
// [LowBin, BassEnd), mid [MidStart, MidEnd), high [HighStart, HighEnd) and
// energy [LowBin, HighEnd).
type BandLayout struct {
	BassEnd   float64
	MidStart  float64
	MidEnd    float64
	HighStart float64
	HighEnd   float64
}

// Band layouts of the shipped variants.
var (
	DirectorLayout    = BandLayout{BassEnd: 0.08, MidStart: 0.08, MidEnd: 0.30, HighStart: 0.30, HighEnd: 0.65}
	MasterpieceLayout = BandLayout{BassEnd: 0.08, MidStart: 0.08, MidEnd: 0.30, HighStart: 0.30, HighEnd: 0.68}
	CosmosLayout      = BandLayout{BassEnd: 0.08, MidStart: 0.08, MidEnd: 0.28, HighStart: 0.30, HighEnd: 0.62}
)

// PulseWeights weight the bands into the pulse value.
type PulseWeights struct {
	Bass float64
	Mid  float64
	High float64
}

var (
	DefaultPulseWeights = PulseWeights{Bass: 0.55, Mid: 0.30, High: 0.15}
	CosmosPulseWeights  = PulseWeights{Bass: 0.6, Mid: 0.3, High: 0.1}
)

// Extractor turns frequency snapshots into Levels. It holds no per-frame
// state; smoothing happens upstream (see Smoother).
type Extractor struct {
	Layout  BandLayout
	Weights PulseWeights
}

// NewExtractor returns an Extractor for layout with the default pulse weights.
func NewExtractor(layout BandLayout) *Extractor {
	return &Extractor{Layout: layout, Weights: DefaultPulseWeights}
}

// Extract reduces freq into Levels. An absent or empty snapshot yields zero
// levels, which is the "not ready" state.
func (e *Extractor) Extract(freq []byte, intensity float64) Levels {
	n := len(freq)
	if n == 0 {
		return Levels{}
	}

	l := e.Layout
	lv := Levels{
		Bass:   mean(freq, LowBin, bin(n, l.BassEnd)),
		Mid:    mean(freq, bin(n, l.MidStart), bin(n, l.MidEnd)),
		High:   mean(freq, bin(n, l.HighStart), bin(n, l.HighEnd)),
		Energy: mean(freq, LowBin, bin(n, l.HighEnd)),
	}
	w := e.Weights
	lv.Pulse = (lv.Bass*w.Bass + lv.Mid*w.Mid + lv.High*w.High) * intensity
	return lv
}

func bin(n int, frac float64) int {
	return int(math.Floor(float64(n) * frac))
}

// mean averages freq[start:end) normalized by 255. Out-of-range bounds are
// clipped and an empty range is zero.
func mean(freq []byte, start, end int) float64 {
	if start < 0 {
		start = 0
	}
	if end > len(freq) {
		end = len(freq)
	}
	if end <= start {
		return 0
	}
	sum := 0
	for _, v := range freq[start:end] {
		sum += int(v)
	}
	return float64(sum) / float64(end-start) / 255
}
