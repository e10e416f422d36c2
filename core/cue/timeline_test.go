package cue

import (
	"reflect"
	"testing"
)

func TestNewTimelineResolvesZero(t *testing.T) {
	tl := New()
	for _, sec := range []float64{-1, 0, 3, 1e6} {
		if got := tl.ActiveSceneAt(sec); got != 0 {
			t.Fatalf("ActiveSceneAt(%v) = %d", sec, got)
		}
	}
	if tl.Len() != 1 || tl.ActiveIndex() != 0 {
		t.Fatalf("len=%d active=%d", tl.Len(), tl.ActiveIndex())
	}
}

func TestActiveSceneAtPicksLastCueAtOrBefore(t *testing.T) {
	tl := New()
	tl.SetCue(10, 4)
	tl.SetCue(5, 2)
	tl.SetCue(20, 9)

	cases := []struct {
		sec    float64
		scene  int
		active int
	}{
		{0, 0, 0},
		{4.99, 0, 0},
		{5, 2, 1},
		{9.5, 2, 1},
		{10, 4, 2},
		{25, 9, 3},
	}
	for _, tc := range cases {
		if got := tl.ActiveSceneAt(tc.sec); got != tc.scene {
			t.Fatalf("ActiveSceneAt(%v) = %d, want %d", tc.sec, got, tc.scene)
		}
		if tl.ActiveIndex() != tc.active {
			t.Fatalf("ActiveSceneAt(%v): active = %d, want %d", tc.sec, tl.ActiveIndex(), tc.active)
		}
	}
}

func TestSetCueWithinEpsilonOverwrites(t *testing.T) {
	tl := New()
	tl.SetCue(5.0, 3)
	idx := tl.SetCue(5.05, 7)

	near := 0
	for _, c := range tl.Cues() {
		if c.Time > 4.5 && c.Time < 5.5 {
			near++
			if c.Scene != 7 {
				t.Fatalf("cue near 5 has scene %d, want 7", c.Scene)
			}
		}
	}
	if near != 1 {
		t.Fatalf("expected one cue near 5, got %d (%+v)", near, tl.Cues())
	}
	if idx != 1 || tl.ActiveIndex() != 1 {
		t.Fatalf("active index = %d/%d, want 1", idx, tl.ActiveIndex())
	}
}

func TestSetCueOutsideEpsilonInserts(t *testing.T) {
	tl := New()
	tl.SetCue(5.0, 3)
	tl.SetCue(5.2, 7)
	want := []Cue{{0, 0}, {5.0, 3}, {5.2, 7}}
	if got := tl.Cues(); !reflect.DeepEqual(got, want) {
		t.Fatalf("cues = %+v", got)
	}
}

func TestSetCueAtZeroOverwritesAnchor(t *testing.T) {
	tl := New()
	tl.SetCue(0.1, 6)
	if tl.Len() != 1 || tl.ActiveSceneAt(0) != 6 {
		t.Fatalf("anchor must be overwritten: %+v", tl.Cues())
	}
	if tl.Cues()[0].Time != 0 {
		t.Fatalf("anchor time moved: %+v", tl.Cues())
	}
}

func TestRemoveNearNeverRemovesAnchor(t *testing.T) {
	tl := New()
	tl.SetCue(0, 5)
	tl.SetCue(0.13, 2)
	if tl.Len() != 2 {
		t.Fatalf("0.13 is outside the set window: %+v", tl.Cues())
	}
	if n := tl.RemoveNear(0); n != 1 {
		t.Fatalf("removed %d, want 1", n)
	}
	want := []Cue{{0, 5}}
	if got := tl.Cues(); !reflect.DeepEqual(got, want) {
		t.Fatalf("cues = %+v", got)
	}
}

func TestRemoveNear(t *testing.T) {
	tl := New()
	tl.SetCue(3, 1)
	tl.SetCue(8, 2)

	if n := tl.RemoveNear(0); n != 0 || tl.Len() != 3 {
		t.Fatalf("RemoveNear(0) removed %d, len %d", n, tl.Len())
	}
	if n := tl.RemoveNear(8.1); n != 1 {
		t.Fatalf("RemoveNear(8.1) removed %d", n)
	}
	if n := tl.RemoveNear(3.2); n != 0 {
		t.Fatalf("3.2 is outside the remove window, removed %d", n)
	}
	want := []Cue{{0, 0}, {3, 1}}
	if got := tl.Cues(); !reflect.DeepEqual(got, want) {
		t.Fatalf("cues = %+v", got)
	}
}

func TestRemoveNearHealsMissingAnchor(t *testing.T) {
	tl := New()
	tl.Replace([]Cue{{Time: 4, Scene: 3}})
	if tl.Cues()[0] != (Cue{0, 0}) {
		t.Fatalf("Replace must add the anchor: %+v", tl.Cues())
	}
	tl.cues = []Cue{{Time: 4, Scene: 3}} // simulate a corrupted list
	tl.RemoveNear(4)
	want := []Cue{{0, 0}}
	if got := tl.Cues(); !reflect.DeepEqual(got, want) {
		t.Fatalf("cues = %+v", got)
	}
}

func TestClear(t *testing.T) {
	tl := New()
	tl.SetCue(0, 4)
	tl.SetCue(12, 8)
	tl.ActiveSceneAt(20)
	tl.Clear()
	if tl.Len() != 1 || tl.ActiveIndex() != 0 || tl.ActiveSceneAt(0) != 0 {
		t.Fatalf("clear left %+v active %d", tl.Cues(), tl.ActiveIndex())
	}
}

func TestSortTieBreakByScene(t *testing.T) {
	tl := New().WithEpsilons(0.0001, 0.0001)
	tl.Replace([]Cue{{5, 9}, {5, 2}, {1, 1}})
	want := []Cue{{0, 0}, {1, 1}, {5, 2}, {5, 9}}
	if got := tl.Cues(); !reflect.DeepEqual(got, want) {
		t.Fatalf("cues = %+v", got)
	}
	if got := tl.ActiveSceneAt(5); got != 9 {
		t.Fatalf("last cue at 5 should win, got %d", got)
	}
}

func TestCuesReturnsCopy(t *testing.T) {
	tl := New()
	c := tl.Cues()
	c[0].Scene = 99
	if tl.ActiveSceneAt(0) != 0 {
		t.Fatal("Cues must not expose internal storage")
	}
}
