package engine

import "math"

// BeatFunc is invoked each time a Beat fires.
type BeatFunc func(e *Engine)

// BeatConfig configures a Beat. Nil fields take defaults on creation and are
// left unchanged by Reconfigure.
type BeatConfig struct {
	Label  string
	Factor *float64
	OnBeat BeatFunc
}

// Beat fires every beatDuration*factor seconds of playback time. The next
// fire time is an accumulator, so frame timing jitter never shifts the grid.
type Beat struct {
	engine *Engine
	label  string

	factor  float64
	enabled bool
	next    float64

	onBeat BeatFunc
}

// CreateBeat registers a new, disabled beat.
func (e *Engine) CreateBeat(cfg BeatConfig) (*Beat, error) {
	b := &Beat{engine: e, label: cfg.Label, factor: 1}
	if err := b.apply(cfg); err != nil {
		return nil, err
	}
	e.beats = append(e.beats, b)
	return b, nil
}

// Reconfigure updates the supplied fields only. On error nothing changes.
func (b *Beat) Reconfigure(cfg BeatConfig) error {
	return b.apply(cfg)
}

func (b *Beat) apply(cfg BeatConfig) error {
	factor := b.factor
	if cfg.Factor != nil {
		factor = *cfg.Factor
	}
	if math.IsNaN(factor) || math.IsInf(factor, 0) || factor <= 0 {
		return &ConfigError{Field: "factor", Value: factor, Reason: "must be greater than zero"}
	}
	b.factor = factor
	if cfg.Label != "" {
		b.label = cfg.Label
	}
	if cfg.OnBeat != nil {
		b.onBeat = cfg.OnBeat
	}
	return nil
}

func (b *Beat) Enable() { b.enabled = true }
func (b *Beat) Disable() { b.enabled = false }

func (b *Beat) Enabled() bool { return b.enabled }
func (b *Beat) Label() string { return b.label }
func (b *Beat) Factor() float64 { return b.factor }
func (b *Beat) NextFire() float64 { return b.next }

// Interval returns the time between fires at the engine's tempo.
func (b *Beat) Interval() float64 {
	return b.engine.BeatDuration() * b.factor
}

// Resync snaps the accumulator to the last grid point at or before the
// current playback time. Useful after seeking backwards.
func (b *Beat) Resync() {
	interval := b.Interval()
	b.next = math.Floor(b.engine.PlaybackTime()/interval) * interval
}

func (b *Beat) reset() { b.next = 0 }

// process advances at most one interval per frame, even after a stall that
// spans several.
func (b *Beat) process(e *Engine, playbackTime, beatDuration float64) {
	if playbackTime == 0 {
		return
	}
	interval := beatDuration * b.factor
	if playbackTime < b.next+interval {
		return
	}
	b.next += interval
	if b.enabled && b.onBeat != nil {
		e.invoke("beat", b.label, func() { b.onBeat(e) })
	}
}
