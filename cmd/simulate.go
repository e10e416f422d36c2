package cmd

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"vizdirector/core/cue"
	"vizdirector/core/director"
	"vizdirector/core/levels"
	"vizdirector/core/scene"
	"vizdirector/logger"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

const simSampleRate = 44100

var (
	simDuration time.Duration
	simBPM      float64
	simCues     string
	simRealtime bool
	simSeed     int64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a profile headless against a synthetic track",
	Long: `Drive the director with a generated beat through the software analyser and
report every scene change plus the time each scene spent on screen. Useful to
tune profiles without a browser.`,
	Example: `  vizdirector simulate --profile director --duration 90s --bpm 128
  vizdirector simulate --profile masterpiece --cues "4:3,9.5:7,20:12"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := director.LookupProfile(cfg.Profile)
		if err != nil {
			return err
		}
		cues, err := parseCues(simCues)
		if err != nil {
			return err
		}
		sum, err := simulate(profile, cues)
		if err != nil {
			return err
		}
		fmt.Print(sum.render())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().DurationVarP(&simDuration, "duration", "d", time.Minute, "length of the synthetic track")
	simulateCmd.Flags().Float64Var(&simBPM, "bpm", 124, "tempo of the generated kick")
	simulateCmd.Flags().StringVar(&simCues, "cues", "", "cue list for cued profiles, e.g. \"4:3,9.5:7\" (seconds:scene)")
	simulateCmd.Flags().BoolVar(&simRealtime, "realtime", false, "pace ticks at wall-clock speed")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 1, "noise seed")
}

func parseCues(s string) ([]cue.Cue, error) {
	var out []cue.Cue
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		at, idx, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("cue %q: want seconds:scene", part)
		}
		sec, err := strconv.ParseFloat(at, 64)
		if err != nil || sec < 0 {
			return nil, fmt.Errorf("cue %q: bad time", part)
		}
		n, err := strconv.Atoi(idx)
		if err != nil {
			return nil, fmt.Errorf("cue %q: bad scene", part)
		}
		out = append(out, cue.Cue{Time: sec, Scene: n})
	}
	return out, nil
}

// synth renders a four-on-the-floor kick with hats and a pad.
type synth struct {
	bpm   float64
	n     int
	noise *rand.Rand
}

func (s *synth) next(buf []float64) {
	beat := 60 / s.bpm
	for i := range buf {
		t := float64(s.n) / simSampleRate
		s.n++

		phase := math.Mod(t, beat)
		kick := math.Sin(2*math.Pi*(50+90*math.Exp(-phase*30))*phase) * math.Exp(-phase*9)

		half := math.Mod(t+beat/2, beat)
		hat := (s.noise.Float64()*2 - 1) * math.Exp(-half*60) * 0.25

		pad := 0.12 * (math.Sin(2*math.Pi*220*t) + math.Sin(2*math.Pi*330*t)) * (0.6 + 0.4*math.Sin(2*math.Pi*t/8))

		buf[i] = math.Max(-1, math.Min(1, 0.8*kick+hat+pad))
	}
}

// simClock is the playback of the synthetic track.
type simClock struct {
	pos, dur float64
}

func (c *simClock) Position() float64 { return c.pos }
func (c *simClock) Duration() float64 { return c.dur }
func (c *simClock) Playing() bool { return c.pos < c.dur }
func (c *simClock) Seek(sec float64) { c.pos = sec }

type simSummary struct {
	profile  string
	duration time.Duration
	ticks    int
	changes  int
	onScreen map[string]float64
	colorize bool
}

func simulate(profile director.Profile, cues []cue.Cue) (*simSummary, error) {
	analyser, err := levels.NewAnalyser(levels.DefaultFFTSize, profile.Smoothing)
	if err != nil {
		return nil, err
	}
	clock := &simClock{dur: simDuration.Seconds()}
	sum := &simSummary{
		profile:  profile.Name,
		duration: simDuration,
		onScreen: make(map[string]float64),
		colorize: isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()),
	}

	engine := director.New(director.Options{
		Profile:  profile,
		Source:   analyser,
		Playback: clock,
		Controls: controlsFor(cfg, profile),
		TickRate: cfg.TickRate,
		Width:    cfg.CaptureWidth,
		Height:   cfg.CaptureHeight,
		Renderers: func(i scene.Index, name string) scene.Renderer {
			return scene.RendererFunc(func(in scene.RenderInput) {
				sum.onScreen[name] += in.DT * in.Alpha
			})
		},
	})

	log := logger.Named("simulate")
	engine.OnEvent(func(ev director.Event) {
		if ev.Type != director.EventScene || ev.Scene == nil {
			return
		}
		sum.changes++
		line := fmt.Sprintf("%7.2fs  %-8s %s -> %s", clock.pos, ev.Trigger,
			engine.SceneName(int(ev.Scene.From)), engine.SceneName(int(ev.Scene.Target)))
		if sum.colorize {
			line = text.Colors{text.FgCyan}.Sprint(line)
		}
		fmt.Println(line)
		log.Debug("scene change", logger.String("trigger", ev.Trigger), logger.Int("target", int(ev.Scene.Target)))
	})

	if len(cues) > 0 {
		if err := engine.ReplaceCues(cues); err != nil {
			return nil, err
		}
	}

	rate := cfg.TickRate
	if rate <= 0 {
		rate = director.DefaultTickRate
	}
	step := time.Second / time.Duration(rate)
	block := make([]float64, simSampleRate/rate)
	gen := &synth{bpm: simBPM, noise: rand.New(rand.NewSource(simSeed))}

	start := time.Now()
	for now := start; clock.pos < clock.dur; now = now.Add(step) {
		gen.next(block)
		analyser.Write(block)
		engine.Tick(now)
		clock.pos += step.Seconds()
		sum.ticks++
		if simRealtime {
			time.Sleep(time.Until(now.Add(step)))
		}
	}
	return sum, nil
}

func (s *simSummary) render() string {
	names := make([]string, 0, len(s.onScreen))
	for name := range s.onScreen {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return s.onScreen[names[i]] > s.onScreen[names[j]] })

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.SetTitle(fmt.Sprintf("%s: %d ticks, %d scene changes over %s", s.profile, s.ticks, s.changes, s.duration))
	tw.AppendHeader(table.Row{"Scene", "On screen", "Share"})
	total := s.duration.Seconds()
	for _, name := range names {
		share := 0.0
		if total > 0 {
			share = 100 * s.onScreen[name] / total
		}
		tw.AppendRow(table.Row{name, fmt.Sprintf("%.1fs", s.onScreen[name]), fmt.Sprintf("%.0f%%", share)})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	return tw.Render() + "\n"
}
