package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/logging"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Track
	AudioURI string // file path or http(s) URL
	CueSheet string // optional JSON cue sheet path

	// Server
	Port int

	// Sync
	BPM           float64
	Offset        float64 // seconds before the first beat
	KickThreshold float64 // default kick threshold, 0-255
	KickDecay     float64 // default kick decay per frame

	// Analysis and timing
	FFTSize       int
	Smoothing     float64
	FrameRate     int           // frame driver refreshes per second
	SeekCrossfade time.Duration // de-click blend on seek

	// Host
	Speaker  bool // monitor on the local audio device
	Console  bool // interactive transport console
	LogLevel logging.LogLevel
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		AudioURI: envStr("CUESYNC_AUDIO", "track.wav"),
		CueSheet: envStr("CUESYNC_CUES", ""),

		Port: envInt("CUESYNC_PORT", 8080),

		BPM:           envFloat("CUESYNC_BPM", 120),
		Offset:        envFloat("CUESYNC_OFFSET", 0),
		KickThreshold: envFloat("CUESYNC_KICK_THRESHOLD", 76.5),
		KickDecay:     envFloat("CUESYNC_KICK_DECAY", 5.1),

		FFTSize:       envInt("CUESYNC_FFT_SIZE", 1024),
		Smoothing:     envFloat("CUESYNC_SMOOTHING", 0.8),
		FrameRate:     envInt("CUESYNC_FRAME_RATE", 60),
		SeekCrossfade: time.Duration(envInt("CUESYNC_SEEK_CROSSFADE", 100)) * time.Millisecond,

		Speaker:  envBool("CUESYNC_SPEAKER", false),
		Console:  envBool("CUESYNC_CONSOLE", false),
		LogLevel: ParseLogLevel(envStr("CUESYNC_LOG_LEVEL", "info")),
	}
}

// LoggerFactory builds the process-wide pion logger factory at LogLevel.
func (c Config) LoggerFactory() *logging.DefaultLoggerFactory {
	f := logging.NewDefaultLoggerFactory()
	f.DefaultLogLevel = c.LogLevel
	return f
}

// ParseLogLevel maps a level name to a pion log level. Unknown names mean
// info.
func ParseLogLevel(s string) logging.LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logging.LogLevelTrace
	case "debug":
		return logging.LogLevelDebug
	case "warn", "warning":
		return logging.LogLevelWarn
	case "error":
		return logging.LogLevelError
	case "disabled", "off", "none":
		return logging.LogLevelDisabled
	default:
		return logging.LogLevelInfo
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
