package cmd

import (
	"fmt"
	"os"

	"vizdirector/config"
	"vizdirector/logger"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	cfg         *config.Config
	profileFlag string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "vizdirector",
	Short: "vizdirector drives audio-reactive visual shows.",
	Long: `vizdirector turns a live spectrum into scene changes: it crossfades between
scenes on beats and timers, follows authored cue timelines and records the
output to downloadable exports.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		if profileFlag != "" {
			cfg.Profile = profileFlag
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogPath,
			MaxSize:    cfg.LogMaxSize,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAge,
			Compress:   true,
			Console:    isatty.IsTerminal(os.Stdout.Fd()),
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&profileFlag, "profile", "", "show profile: director, masterpiece or cosmos (overrides PROFILE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
}
