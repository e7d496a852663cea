package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned by transport operations before a track is loaded.
	ErrNotReady = errors.New("audio not loaded")
	// ErrInvalidConfig matches every *ConfigError.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// InitError reports that the audio subsystem the engine depends on is not
// available. No engine is returned alongside it.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return "engine init: " + e.Err.Error()
}

func (e *InitError) Unwrap() error { return e.Err }

// LoadError reports a failed fetch or decode of the audio asset.
type LoadError struct {
	URI string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.URI, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ConfigError reports a value rejected at registration time.
type ConfigError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidConfig) hold for any ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// CallbackError wraps a panic recovered from a user callback.
type CallbackError struct {
	Source string // "section", "kick", "beat" or "ended"
	Label  string
	Value  any
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("%s callback %q panicked: %v", e.Source, e.Label, e.Value)
}

func (e *CallbackError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// ErrorObserver receives errors that must not interrupt a frame pass.
type ErrorObserver func(err error)
