package levels

// DefaultSmoothing is the decay constant of the analyser's exponential
// smoother. Variants ship values between 0.83 and 0.85.
const DefaultSmoothing = 0.83

// Smoother applies s[i] = s[i]*k + raw[i]*(1-k) across frames on a raw byte
// spectrum. It is needed when the analysis source has no built-in smoothing.
type Smoother struct {
	k     float64
	state []float64
	out   []byte
}

// NewSmoother creates a smoother with decay k, clamped to [0,1).
func NewSmoother(k float64) *Smoother {
	if k < 0 {
		k = 0
	}
	if k >= 1 {
		k = 0.99
	}
	return &Smoother{k: k}
}

// Apply folds raw into the running state and returns the smoothed spectrum.
// The returned slice is reused by the next call. A change in length resets
// the state, since it means a different analysis session.
func (s *Smoother) Apply(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	if len(s.state) != len(raw) {
		s.state = make([]float64, len(raw))
		s.out = make([]byte, len(raw))
		for i, v := range raw {
			s.state[i] = float64(v) * (1 - s.k)
		}
	} else {
		for i, v := range raw {
			s.state[i] = s.state[i]*s.k + float64(v)*(1-s.k)
		}
	}
	for i, v := range s.state {
		s.out[i] = toByte(v)
	}
	return s.out
}

// Reset drops the accumulated state.
func (s *Smoother) Reset() {
	s.state = nil
	s.out = nil
}

func toByte(v float64) byte {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return byte(v + 0.5)
	}
}
