package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the process configuration. Values that the user tweaks while
// the show is running live in Controls instead.
type Config struct {
	HTTPAddr string
	Profile  string // director, masterpiece or cosmos
	TickRate int    // ticks per second of the director loop
	// LockFile guards against two directors serving the same setup.
	LockFile string

	LogLevel      string
	LogPath       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int

	// ControlsFile is an optional JSON file with the live controls; it is
	// watched and re-read on change.
	ControlsFile string
	Controls     Controls
	// SmoothSpectrum runs the director's own smoother over incoming spectra,
	// for hosts whose analyser sends raw frames.
	SmoothSpectrum bool

	FFmpegPath         string
	CaptureAudioPath   string // media file muxed into captures
	CaptureWidth       int
	CaptureHeight      int
	CaptureChunkPeriod time.Duration
	ExportPrefix       string

	ExportBackend  string // memory or minio
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
	MinioURLExpiry time.Duration

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string

	JWTSecret string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment without touching .env.
func FromEnv() *Config {
	controls := DefaultControls()
	controls.Intensity = getEnvFloat("INTENSITY", controls.Intensity)
	controls.TransitionSpeed = getEnvFloat("TRANSITION_SPEED", controls.TransitionSpeed)
	controls.Glow = getEnvFloat("GLOW", controls.Glow)
	controls.AutoCycle = getEnvBool("AUTO_CYCLE", controls.AutoCycle)
	controls.BeatJump = getEnvBool("BEAT_JUMP", controls.BeatJump)
	controls.TargetFPS = getEnvInt("CAPTURE_FPS", controls.TargetFPS)
	controls.TargetBitrate = getEnvInt("CAPTURE_BITRATE", controls.TargetBitrate)

	return &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),
		Profile:  strings.ToLower(getEnv("PROFILE", "director")),
		TickRate: getEnvInt("TICK_RATE", 60),
		LockFile: getEnv("LOCK_FILE", filepath.Join(os.TempDir(), "vizdirector.lock")),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogPath:       getEnv("LOG_PATH", ""),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE_MB", 50),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE_DAYS", 14),

		ControlsFile:   getEnv("CONTROLS_FILE", ""),
		Controls:       controls,
		SmoothSpectrum: getEnvBool("SMOOTH_SPECTRUM", false),

		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		CaptureAudioPath:   getEnv("CAPTURE_AUDIO_PATH", ""),
		CaptureWidth:       getEnvInt("CAPTURE_WIDTH", 1280),
		CaptureHeight:      getEnvInt("CAPTURE_HEIGHT", 720),
		CaptureChunkPeriod: getEnvDuration("CAPTURE_CHUNK_PERIOD", 250*time.Millisecond),
		ExportPrefix:       getEnv("EXPORT_PREFIX", "audio-director"),

		ExportBackend:  strings.ToLower(getEnv("EXPORT_BACKEND", "memory")),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "vizdirector"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioURLExpiry: getEnvDuration("MINIO_URL_EXPIRY", time.Hour),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisChannel:  getEnv("REDIS_CHANNEL", "vizdirector:events"),

		JWTSecret: os.Getenv("CONTROL_JWT_SECRET"),
	}
}

// RedisEnabled reports whether an event bus should be connected.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}
