package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"vizdirector/cache"
	"vizdirector/config"
	"vizdirector/core/capture"
	"vizdirector/core/director"
	"vizdirector/logger"
	"vizdirector/server"
	"vizdirector/storage"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the director with the HTTP API and the host link",
	Long: `Run the director loop, the HTTP control API and the websocket link that a
host page uses to stream analyser data in and receive frames back.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveAddr != "" {
			cfg.HTTPAddr = serveAddr
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides HTTP_ADDR)")
}

// controlsFor starts from the environment controls and applies the profile's
// transition speed unless TRANSITION_SPEED was set explicitly.
func controlsFor(cfg *config.Config, p director.Profile) *config.ControlStore {
	c := cfg.Controls
	if _, set := os.LookupEnv("TRANSITION_SPEED"); !set {
		c.TransitionSpeed = p.DefaultControls().TransitionSpeed
	}
	return config.NewControlStore(c)
}

func openExportStore(ctx context.Context, cfg *config.Config) (storage.ExportStore, error) {
	switch cfg.ExportBackend {
	case "minio":
		return storage.NewMinioStore(ctx, cfg)
	case "", "memory":
		return storage.NewMemoryStore(""), nil
	default:
		return nil, fmt.Errorf("unknown export backend %q", cfg.ExportBackend)
	}
}

// bridgeEvents publishes engine events on the Redis bus. It returns a no-op
// when Redis is not configured or unreachable; the bus is optional.
func bridgeEvents(ctx context.Context, cfg *config.Config, e *director.Engine, wg *sync.WaitGroup) {
	if !cfg.RedisEnabled() {
		return
	}
	client, err := cache.ConnectRedis(cfg)
	if err != nil {
		logger.Warn("event bus disabled", logger.ErrorField(err))
		return
	}
	pub := cache.NewPublisher(cache.NewEventBus(client, cfg.RedisChannel), 0)
	e.OnEvent(func(ev director.Event) {
		msg, err := cache.NewEvent(string(ev.Type), ev.Profile, ev)
		if err != nil {
			logger.Warn("event encode failed", logger.ErrorField(err))
			return
		}
		if !pub.Enqueue(msg) {
			logger.Warn("event bus queue full, event dropped", logger.String("type", msg.Type))
		}
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		pub.Run(ctx)
		if err := cache.CloseRedis(); err != nil {
			logger.Warn("close redis", logger.ErrorField(err))
		}
	}()
	logger.Info("event bus connected", logger.String("channel", cfg.RedisChannel))
}

func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lock := flock.New(cfg.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", cfg.LockFile, err)
	}
	if !locked {
		return fmt.Errorf("another director holds %s", cfg.LockFile)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release lock", logger.ErrorField(err))
		}
	}()

	profile, err := director.LookupProfile(cfg.Profile)
	if err != nil {
		return err
	}
	controls := controlsFor(cfg, profile)
	if cfg.ControlsFile != "" {
		if err := controls.LoadFile(cfg.ControlsFile); err != nil {
			logger.Warn("controls file not loaded", logger.ErrorField(err))
		}
		if err := controls.Watch(ctx, cfg.ControlsFile); err != nil {
			logger.Warn("controls file not watched", logger.ErrorField(err))
		}
	}

	store, err := openExportStore(ctx, cfg)
	if err != nil {
		return err
	}

	feed := server.NewHostFeed()
	opts := director.Options{
		Profile:       profile,
		Source:        feed,
		Playback:      feed,
		Controls:      controls,
		Width:         cfg.CaptureWidth,
		Height:        cfg.CaptureHeight,
		TickRate:      cfg.TickRate,
		Smooth:        cfg.SmoothSpectrum,
		Store:         store,
		ExportPrefix:  cfg.ExportPrefix,
		ChunkInterval: cfg.CaptureChunkPeriod,
	}

	var backend *capture.FFmpegBackend
	if profile.Capture {
		backend = capture.NewFFmpegBackend(capture.FFmpegConfig{
			Path:      cfg.FFmpegPath,
			AudioPath: cfg.CaptureAudioPath,
			Width:     cfg.CaptureWidth,
			Height:    cfg.CaptureHeight,
		})
		opts.Capture = backend
	}
	engine := director.New(opts)

	srvOpts := server.Options{Engine: engine, Feed: feed, Store: store, Secret: cfg.JWTSecret}
	if backend != nil {
		srvOpts.Frames = backend
		srvOpts.ReadLimit = int64(backend.FrameSize()) + 1
	}
	srv := server.New(srvOpts)

	var wg sync.WaitGroup
	bridgeEvents(ctx, cfg, engine, &wg)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("director stopped", logger.ErrorField(err))
		}
	}()

	logger.Info("vizdirector serving",
		logger.String("profile", profile.Name),
		logger.String("addr", cfg.HTTPAddr),
		logger.String("exports", cfg.ExportBackend),
		logger.Bool("smooth", cfg.SmoothSpectrum),
		logger.Bool("auth", cfg.JWTSecret != ""))

	err = srv.ListenAndServe(ctx, cfg.HTTPAddr)
	cancel()
	wg.Wait()
	return err
}
