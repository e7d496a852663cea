package config

import (
	"os"
	"testing"
	"time"

	"github.com/pion/logging"
)

func TestLoadDefaults(t *testing.T) {
	// Clear any env vars that might interfere
	envVars := []string{
		"CUESYNC_AUDIO", "CUESYNC_CUES", "CUESYNC_PORT", "CUESYNC_BPM",
		"CUESYNC_OFFSET", "CUESYNC_KICK_THRESHOLD", "CUESYNC_KICK_DECAY",
		"CUESYNC_FFT_SIZE", "CUESYNC_SMOOTHING", "CUESYNC_FRAME_RATE",
		"CUESYNC_SEEK_CROSSFADE", "CUESYNC_SPEAKER", "CUESYNC_CONSOLE",
		"CUESYNC_LOG_LEVEL",
	}
	for _, k := range envVars {
		os.Unsetenv(k)
	}

	cfg := Load()

	if cfg.AudioURI != "track.wav" {
		t.Errorf("AudioURI = %q, want default", cfg.AudioURI)
	}
	if cfg.CueSheet != "" {
		t.Errorf("CueSheet = %q, want empty default", cfg.CueSheet)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.BPM != 120 {
		t.Errorf("BPM = %f, want 120", cfg.BPM)
	}
	if cfg.Offset != 0 {
		t.Errorf("Offset = %f, want 0", cfg.Offset)
	}
	if cfg.KickThreshold != 76.5 {
		t.Errorf("KickThreshold = %f, want 76.5", cfg.KickThreshold)
	}
	if cfg.KickDecay != 5.1 {
		t.Errorf("KickDecay = %f, want 5.1", cfg.KickDecay)
	}
	if cfg.FFTSize != 1024 {
		t.Errorf("FFTSize = %d, want 1024", cfg.FFTSize)
	}
	if cfg.Smoothing != 0.8 {
		t.Errorf("Smoothing = %f, want 0.8", cfg.Smoothing)
	}
	if cfg.FrameRate != 60 {
		t.Errorf("FrameRate = %d, want 60", cfg.FrameRate)
	}
	if cfg.SeekCrossfade != 100*time.Millisecond {
		t.Errorf("SeekCrossfade = %v, want 100ms", cfg.SeekCrossfade)
	}
	if cfg.Speaker || cfg.Console {
		t.Errorf("Speaker/Console = %v/%v, want false/false", cfg.Speaker, cfg.Console)
	}
	if cfg.LogLevel != logging.LogLevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CUESYNC_AUDIO", "https://example.com/song.wav")
	t.Setenv("CUESYNC_CUES", "/tmp/cues.json")
	t.Setenv("CUESYNC_PORT", "3000")
	t.Setenv("CUESYNC_BPM", "128")
	t.Setenv("CUESYNC_OFFSET", "0.35")
	t.Setenv("CUESYNC_KICK_THRESHOLD", "100")
	t.Setenv("CUESYNC_KICK_DECAY", "2")
	t.Setenv("CUESYNC_FFT_SIZE", "2048")
	t.Setenv("CUESYNC_SMOOTHING", "0.5")
	t.Setenv("CUESYNC_FRAME_RATE", "120")
	t.Setenv("CUESYNC_SEEK_CROSSFADE", "40")
	t.Setenv("CUESYNC_SPEAKER", "true")
	t.Setenv("CUESYNC_CONSOLE", "1")
	t.Setenv("CUESYNC_LOG_LEVEL", "DEBUG")

	cfg := Load()

	if cfg.AudioURI != "https://example.com/song.wav" {
		t.Errorf("AudioURI = %q, want env override", cfg.AudioURI)
	}
	if cfg.CueSheet != "/tmp/cues.json" {
		t.Errorf("CueSheet = %q, want env override", cfg.CueSheet)
	}
	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if cfg.BPM != 128 {
		t.Errorf("BPM = %f, want 128", cfg.BPM)
	}
	if cfg.Offset != 0.35 {
		t.Errorf("Offset = %f, want 0.35", cfg.Offset)
	}
	if cfg.KickThreshold != 100 || cfg.KickDecay != 2 {
		t.Errorf("Kick = %f/%f, want 100/2", cfg.KickThreshold, cfg.KickDecay)
	}
	if cfg.FFTSize != 2048 {
		t.Errorf("FFTSize = %d, want 2048", cfg.FFTSize)
	}
	if cfg.Smoothing != 0.5 {
		t.Errorf("Smoothing = %f, want 0.5", cfg.Smoothing)
	}
	if cfg.FrameRate != 120 {
		t.Errorf("FrameRate = %d, want 120", cfg.FrameRate)
	}
	if cfg.SeekCrossfade != 40*time.Millisecond {
		t.Errorf("SeekCrossfade = %v, want 40ms", cfg.SeekCrossfade)
	}
	if !cfg.Speaker || !cfg.Console {
		t.Errorf("Speaker/Console = %v/%v, want true/true", cfg.Speaker, cfg.Console)
	}
	if cfg.LogLevel != logging.LogLevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
}

func TestEnvIntInvalidFallsBack(t *testing.T) {
	t.Setenv("CUESYNC_PORT", "not-a-number")
	cfg := Load()
	if cfg.Port != 8080 {
		t.Errorf("Invalid int env should fallback to default: got %d, want 8080", cfg.Port)
	}
}

func TestEnvBoolInvalidFallsBack(t *testing.T) {
	t.Setenv("CUESYNC_SPEAKER", "maybe")
	if Load().Speaker {
		t.Error("Invalid bool env should fallback to false")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logging.LogLevel
	}{
		{"trace", logging.LogLevelTrace},
		{" Warn ", logging.LogLevelWarn},
		{"error", logging.LogLevelError},
		{"off", logging.LogLevelDisabled},
		{"loud", logging.LogLevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerFactoryLevel(t *testing.T) {
	cfg := Config{LogLevel: logging.LogLevelWarn}
	if f := cfg.LoggerFactory(); f.DefaultLogLevel != logging.LogLevelWarn {
		t.Errorf("DefaultLogLevel = %v, want warn", f.DefaultLogLevel)
	}
}
