package director

import (
	"fmt"
	"sort"
	"strings"

	"vizdirector/config"
	"vizdirector/core/autoadvance"
	"vizdirector/core/cue"
	"vizdirector/core/levels"
	"vizdirector/core/scene"
)

// Mode selects how scenes are chosen.
type Mode string

const (
	// ModeLive lets the auto-advance policy and the user pick scenes.
	ModeLive Mode = "live"
	// ModeCued follows the authored cue timeline.
	ModeCued Mode = "cued"
)

// Profile is the tuning of one visualizer variant.
type Profile struct {
	Name            string
	Mode            Mode
	Layout          levels.BandLayout
	Weights         levels.PulseWeights
	Smoothing       float64
	Advance         autoadvance.Config
	TransitionSpeed float64
	SetEpsilon      float64
	RemoveEpsilon   float64
	Catalog         []string
	Capture         bool
}

var profiles = map[string]Profile{
	"director": {
		Name:            "director",
		Mode:            ModeLive,
		Layout:          levels.DirectorLayout,
		Weights:         levels.DefaultPulseWeights,
		Smoothing:       0.84,
		Advance:         autoadvance.DirectorConfig,
		TransitionSpeed: 1.5,
		Catalog:         scene.DirectorCatalog,
		Capture:         true,
	},
	"masterpiece": {
		Name:            "masterpiece",
		Mode:            ModeCued,
		Layout:          levels.MasterpieceLayout,
		Weights:         levels.DefaultPulseWeights,
		Smoothing:       0.85,
		TransitionSpeed: 1.5,
		SetEpsilon:      cue.SetEpsilon,
		RemoveEpsilon:   cue.RemoveEpsilon,
		Catalog:         scene.MasterpieceCatalog,
	},
	"cosmos": {
		Name:            "cosmos",
		Mode:            ModeLive,
		Layout:          levels.CosmosLayout,
		Weights:         levels.CosmosPulseWeights,
		Smoothing:       0.83,
		Advance:         autoadvance.CosmosConfig,
		TransitionSpeed: 1.4,
		Catalog:         scene.CosmosCatalog,
	},
}

// LookupProfile returns the built-in profile called name.
func LookupProfile(name string) (Profile, error) {
	p, ok := profiles[strings.ToLower(name)]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (have %s)", name, strings.Join(ProfileNames(), ", "))
	}
	p.Catalog = append([]string(nil), p.Catalog...)
	return p, nil
}

// ProfileNames lists the built-in profiles.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultControls returns the control defaults adjusted to the profile.
func (p Profile) DefaultControls() config.Controls {
	c := config.DefaultControls()
	if p.TransitionSpeed > 0 {
		c.TransitionSpeed = p.TransitionSpeed
	}
	return c
}
