// Package cue keeps an authored schedule of scene changes along the track.
package cue

import (
	"math"
	"sort"
)

// Window sizes used to match a playback position against existing cues.
const (
	SetEpsilon    = 0.12
	RemoveEpsilon = 0.15
	// zeroTolerance is how close to 0 a cue must be to count as the anchor.
	zeroTolerance = 0.001
)

// Cue schedules Scene from Time (seconds) onwards.
type Cue struct {
	Time  float64 `json:"time"`
	Scene int     `json:"scene"`
}

// Timeline is a sorted cue list that always contains a cue at time 0. It is
// a lookup structure only and is not safe for concurrent use.
type Timeline struct {
	cues          []Cue
	active        int
	setEpsilon    float64
	removeEpsilon float64
}

// New returns a timeline holding the single cue {0, 0}.
func New() *Timeline {
	return &Timeline{
		cues:          []Cue{{Time: 0, Scene: 0}},
		setEpsilon:    SetEpsilon,
		removeEpsilon: RemoveEpsilon,
	}
}

// WithEpsilons overrides the set and remove windows.
func (t *Timeline) WithEpsilons(set, remove float64) *Timeline {
	if set > 0 {
		t.setEpsilon = set
	}
	if remove > 0 {
		t.removeEpsilon = remove
	}
	return t
}

// Len is the number of cues.
func (t *Timeline) Len() int {
	return len(t.cues)
}

// Cues returns a copy of the cues in order.
func (t *Timeline) Cues() []Cue {
	return append([]Cue(nil), t.cues...)
}

// ActiveIndex is the index of the cue last resolved by ActiveSceneAt or set by
// SetCue, for UI highlighting.
func (t *Timeline) ActiveIndex() int {
	return t.active
}

// ActiveSceneAt returns the scene of the last cue whose time is <= sec and
// records that cue as active.
func (t *Timeline) ActiveSceneAt(sec float64) int {
	// first cue strictly after sec; the one before it is active
	i := sort.Search(len(t.cues), func(i int) bool { return t.cues[i].Time > sec })
	idx := i - 1
	if idx < 0 {
		idx = 0
	}
	t.active = idx
	return t.cues[idx].Scene
}

// SetCue overwrites the scene of a cue within the set window of sec, or
// inserts a new cue. It returns the index of the affected cue after sorting.
func (t *Timeline) SetCue(sec float64, scene int) int {
	hit := -1
	for i, c := range t.cues {
		if math.Abs(c.Time-sec) <= t.setEpsilon {
			hit = i
			break
		}
	}

	at := sec
	if hit >= 0 {
		t.cues[hit].Scene = scene
		at = t.cues[hit].Time
	} else {
		t.cues = append(t.cues, Cue{Time: sec, Scene: scene})
	}
	t.sort()

	t.active = len(t.cues) - 1
	for i, c := range t.cues {
		if c.Time == at && c.Scene == scene {
			t.active = i
			break
		}
	}
	return t.active
}

// RemoveNear deletes every cue within the remove window of sec, except the
// anchor cue at time 0. It returns the number of cues removed.
func (t *Timeline) RemoveNear(sec float64) int {
	kept := t.cues[:0]
	removed := 0
	for _, c := range t.cues {
		if math.Abs(c.Time-sec) <= t.removeEpsilon && c.Time > zeroTolerance {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	t.cues = kept
	t.ensureAnchor()
	t.sort()
	if t.active >= len(t.cues) {
		t.active = len(t.cues) - 1
	}
	return removed
}

// Clear resets the timeline to the single cue {0, 0}.
func (t *Timeline) Clear() {
	t.cues = []Cue{{Time: 0, Scene: 0}}
	t.active = 0
}

// Replace swaps in a whole cue list, sorted and anchored.
func (t *Timeline) Replace(cues []Cue) {
	t.cues = append([]Cue(nil), cues...)
	t.ensureAnchor()
	t.sort()
	t.active = 0
}

func (t *Timeline) ensureAnchor() {
	for _, c := range t.cues {
		if c.Time == 0 {
			return
		}
	}
	t.cues = append([]Cue{{Time: 0, Scene: 0}}, t.cues...)
}

func (t *Timeline) sort() {
	sort.SliceStable(t.cues, func(i, j int) bool {
		if t.cues[i].Time != t.cues[j].Time {
			return t.cues[i].Time < t.cues[j].Time
		}
		return t.cues[i].Scene < t.cues[j].Scene
	})
}
