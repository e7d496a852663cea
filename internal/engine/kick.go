package engine

import (
	"fmt"
	"math"
)

// FullScale is the largest amplitude a spectrum byte can hold.
const FullScale = 255.0

// Kick defaults, scaled to the byte amplitude domain.
const (
	DefaultKickThreshold = 0.3 * FullScale
	DefaultKickDecay     = 0.02 * FullScale
)

// DefaultBand is the frequency selector used when none is configured.
var DefaultBand = Band{Start: 0, End: 10}

// Band selects spectrum bins: a single bin when Start == End, otherwise the
// inclusive range [Start, End].
type Band struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Bin selects a single spectrum bin.
func Bin(i int) Band { return Band{Start: i, End: i} }

// Range selects the inclusive bin range [start, end].
func Range(start, end int) Band { return Band{Start: start, End: end} }

func (b Band) String() string {
	if b.Start == b.End {
		return fmt.Sprintf("%d", b.Start)
	}
	return fmt.Sprintf("[%d,%d]", b.Start, b.End)
}

// KickFunc receives the band magnitude of the current frame.
type KickFunc func(e *Engine, magnitude float64)

// KickConfig configures a Kick. Nil fields take defaults on creation and are
// left unchanged by Reconfigure.
type KickConfig struct {
	Label     string
	Frequency *Band
	Threshold *float64
	Decay     *float64
	OnKick    KickFunc
	OffKick   KickFunc
}

// Kick is an onset detector with an adaptive threshold that ratchets up to
// each new peak and decays linearly between peaks.
type Kick struct {
	engine *Engine
	label  string

	band      Band
	threshold float64
	decay     float64
	current   float64

	enabled bool
	onset   bool

	onKick  KickFunc
	offKick KickFunc
}

// CreateKick registers a new, disabled kick detector.
func (e *Engine) CreateKick(cfg KickConfig) (*Kick, error) {
	k := &Kick{
		engine:    e,
		label:     cfg.Label,
		band:      DefaultBand,
		threshold: DefaultKickThreshold,
		decay:     DefaultKickDecay,
	}
	if err := k.apply(cfg); err != nil {
		return nil, err
	}
	k.current = k.threshold
	e.kicks = append(e.kicks, k)
	return k, nil
}

// Reconfigure updates the supplied fields only. The adaptive threshold and
// enabled state are kept. On error nothing changes.
func (k *Kick) Reconfigure(cfg KickConfig) error {
	return k.apply(cfg)
}

func (k *Kick) apply(cfg KickConfig) error {
	next := *k
	if cfg.Label != "" {
		next.label = cfg.Label
	}
	if cfg.Frequency != nil {
		next.band = *cfg.Frequency
	}
	if cfg.Threshold != nil {
		next.threshold = *cfg.Threshold
	}
	if cfg.Decay != nil {
		next.decay = *cfg.Decay
	}
	if cfg.OnKick != nil {
		next.onKick = cfg.OnKick
	}
	if cfg.OffKick != nil {
		next.offKick = cfg.OffKick
	}
	if err := next.validate(k.engine.bins); err != nil {
		return err
	}
	*k = next
	return nil
}

func (k *Kick) validate(bins int) error {
	b := k.band
	switch {
	case b.Start < 0:
		return &ConfigError{Field: "frequency", Value: b, Reason: "bin index must not be negative"}
	case b.Start > b.End:
		return &ConfigError{Field: "frequency", Value: b, Reason: "range start is after end"}
	case bins > 0 && b.End >= bins:
		return &ConfigError{Field: "frequency", Value: b, Reason: fmt.Sprintf("spectrum has %d bins", bins)}
	}
	if math.IsNaN(k.threshold) || k.threshold < 0 || k.threshold > FullScale {
		return &ConfigError{Field: "threshold", Value: k.threshold, Reason: "must be within [0,255]"}
	}
	if math.IsNaN(k.decay) || math.IsInf(k.decay, 0) || k.decay < 0 {
		return &ConfigError{Field: "decay", Value: k.decay, Reason: "must be a non-negative number"}
	}
	return nil
}

func (k *Kick) Enable() { k.enabled = true }
func (k *Kick) Disable() { k.enabled = false }

func (k *Kick) Enabled() bool { return k.enabled }

func (k *Kick) Label() string { return k.label }
func (k *Kick) Band() Band { return k.band }

// Threshold returns the configured amplitude floor.
func (k *Kick) Threshold() float64 { return k.threshold }

// Decay returns the per-frame threshold decrement.
func (k *Kick) Decay() float64 { return k.decay }

// CurrentThreshold returns the adaptive threshold. It has no floor and may
// sit below Threshold after a long quiet passage.
func (k *Kick) CurrentThreshold() float64 { return k.current }

// IsKick reports whether the last processed frame was an onset.
func (k *Kick) IsKick() bool { return k.onset }

func (k *Kick) reset() {
	k.current = k.threshold
	k.onset = false
}

func (k *Kick) process(e *Engine, spectrum []byte) {
	if !k.enabled {
		return
	}
	k.step(e, k.magnitude(spectrum))
}

// magnitude is the bin value, or the maximum over the inclusive range.
func (k *Kick) magnitude(spectrum []byte) float64 {
	end := k.band.End
	if end >= len(spectrum) {
		end = len(spectrum) - 1
	}
	var peak byte
	for i := k.band.Start; i <= end; i++ {
		if spectrum[i] > peak {
			peak = spectrum[i]
		}
	}
	return float64(peak)
}

func (k *Kick) step(e *Engine, magnitude float64) {
	if magnitude >= k.current && magnitude >= k.threshold {
		k.current = magnitude
		if k.onKick != nil {
			e.invoke("kick", k.label, func() { k.onKick(e, magnitude) })
		}
		k.onset = true
		return
	}
	if k.offKick != nil {
		e.invoke("kick", k.label, func() { k.offKick(e, magnitude) })
	}
	k.current -= k.decay
	k.onset = false
}
