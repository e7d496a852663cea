// Package engine synchronizes application events to a playing audio track.
//
// One Engine owns a PlaybackClock, an ordered list of time sections, any
// number of Kick onset detectors and Beat metronomes, and drives them once
// per display refresh through a frame.Scheduler. The engine is not safe for
// concurrent use: every method, including the callbacks it invokes, runs on
// the goroutine that executes the scheduler's callbacks.
package engine

import (
	"context"
	"errors"
	"math"

	"github.com/pion/logging"
	"github.com/satindergrewal/cuesync/internal/frame"
)

// Analyzer produces per-frame spectrum and waveform bytes in [0,255].
// BinCount is fixed for the analyzer's lifetime.
type Analyzer interface {
	BinCount() int
	Spectrum(dst []byte)
	Waveform(dst []byte)
}

// Buffer is a decoded audio asset.
type Buffer interface {
	Duration() float64
}

// AudioLoader retrieves and decodes an audio asset.
type AudioLoader interface {
	Load(ctx context.Context, uri string) (Buffer, error)
	// Progress reports load progress in [0,1]. It never decreases during
	// one Load call.
	Progress() float64
}

// Config holds engine construction parameters.
type Config struct {
	BPM    float64 // tempo for Beat intervals
	Offset float64 // seconds subtracted from elapsed time before beats

	Analyzer Analyzer
	Frames   frame.Scheduler
	Clock    ClockSource // defaults to WallClock()

	OnError ErrorObserver   // optional sink for recovered callback panics
	OnEnded func(e *Engine) // optional, called when playback reaches Duration

	LoggerFactory logging.LoggerFactory
}

// Engine is the explicit context shared by the frame driver and every
// registered callback.
type Engine struct {
	cfg  Config
	log  logging.LeveledLogger
	bins int

	clock    *PlaybackClock
	sections sectionList
	kicks    []*Kick
	beats    []*Beat

	spectrum []byte
	waveform []byte

	pending frame.Handle
	frames  uint64

	loader   AudioLoader
	loading  bool
	buffer   Buffer
	duration float64

	err error
}

// New validates cfg and builds an engine. A missing analyzer or scheduler is
// an *InitError; an invalid tempo or offset is a *ConfigError.
func New(cfg Config) (*Engine, error) {
	if cfg.Analyzer == nil {
		return nil, &InitError{Err: errors.New("no audio analyzer")}
	}
	if cfg.Frames == nil {
		return nil, &InitError{Err: errors.New("no frame scheduler")}
	}
	bins := cfg.Analyzer.BinCount()
	if bins <= 0 {
		return nil, &InitError{Err: errors.New("analyzer reports no frequency bins")}
	}
	if err := validateBPM(cfg.BPM); err != nil {
		return nil, err
	}
	if math.IsNaN(cfg.Offset) || math.IsInf(cfg.Offset, 0) || cfg.Offset < 0 {
		return nil, &ConfigError{Field: "offset", Value: cfg.Offset, Reason: "must be a non-negative number"}
	}
	if cfg.Clock == nil {
		cfg.Clock = WallClock()
	}
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	e := &Engine{
		cfg:      cfg,
		log:      cfg.LoggerFactory.NewLogger("engine"),
		bins:     bins,
		clock:    NewPlaybackClock(cfg.Clock),
		spectrum: make([]byte, bins),
		waveform: make([]byte, bins),
	}
	e.log.Debugf("engine ready: %d bins, %.2f bpm, offset %.3fs", bins, cfg.BPM, cfg.Offset)
	return e, nil
}

func validateBPM(bpm float64) error {
	if math.IsNaN(bpm) || math.IsInf(bpm, 0) || bpm <= 0 {
		return &ConfigError{Field: "bpm", Value: bpm, Reason: "must be greater than zero"}
	}
	return nil
}

// Load retrieves the track through loader and blocks until it is decoded.
// On failure the engine keeps its previous state and the error is a
// *LoadError. A successful load stops playback and rewinds.
func (e *Engine) Load(ctx context.Context, loader AudioLoader, uri string) error {
	e.loader = loader
	e.loading = true
	buf, err := loader.Load(ctx, uri)
	e.loading = false
	if err != nil {
		e.log.Errorf("load %s failed: %v", uri, err)
		return &LoadError{URI: uri, Err: err}
	}
	e.Attach(buf)
	e.log.Infof("loaded %s (%.2fs)", uri, e.duration)
	return nil
}

// Attach installs an already decoded buffer, stopping playback.
func (e *Engine) Attach(buf Buffer) {
	e.Stop()
	e.buffer = buf
	e.duration = buf.Duration()
}

// Ready reports whether a track is loaded.
func (e *Engine) Ready() bool {
	return e.buffer != nil
}

// Buffer returns the loaded asset, or nil.
func (e *Engine) Buffer() Buffer {
	return e.buffer
}

// LoadProgress reports the progress of the current or last load. While a
// Load is in flight it follows the loader, even if an earlier track is still
// attached.
func (e *Engine) LoadProgress() float64 {
	switch {
	case e.loading:
		return e.loader.Progress()
	case e.buffer != nil:
		return 1
	case e.loader == nil:
		return 0
	}
	return e.loader.Progress()
}

// Play starts or resumes playback shifted by offset seconds and arms the
// frame loop. It returns ErrNotReady before a track is loaded.
func (e *Engine) Play(offset float64) error {
	if e.buffer == nil {
		return ErrNotReady
	}
	if math.IsNaN(offset) || math.IsInf(offset, 0) {
		return &ConfigError{Field: "offset", Value: offset, Reason: "must be finite"}
	}
	e.clock.Play(offset)
	if e.duration > 0 && e.clock.Elapsed() > e.duration {
		e.clock.Seek(e.duration)
	}
	e.arm()
	return nil
}

// Pause freezes playback and cancels the pending frame. Safe to repeat.
func (e *Engine) Pause() {
	e.clock.Pause()
	e.disarm()
}

// Stop cancels the pending frame and rewinds to zero. Beats restart from the
// top of the grid and kicks drop back to their configured threshold.
func (e *Engine) Stop() {
	e.disarm()
	e.clock.Reset()
	for _, k := range e.kicks {
		k.reset()
	}
	for _, b := range e.beats {
		b.reset()
	}
}

// Seek jumps to an absolute position, clamped to [0, Duration], keeping the
// current play state.
func (e *Engine) Seek(pos float64) error {
	if e.buffer == nil {
		return ErrNotReady
	}
	if math.IsNaN(pos) || math.IsInf(pos, 0) {
		return &ConfigError{Field: "position", Value: pos, Reason: "must be finite"}
	}
	if e.duration > 0 && pos > e.duration {
		pos = e.duration
	}
	e.clock.Seek(pos)
	return nil
}

func (e *Engine) IsPlaying() bool { return e.clock.IsPlaying() }

// Elapsed returns the playback position in seconds.
func (e *Engine) Elapsed() float64 { return e.clock.Elapsed() }

// Duration returns the loaded track length, or 0 before load.
func (e *Engine) Duration() float64 { return e.duration }

// PlaybackTime is the elapsed time minus the beat offset, floored at zero.
func (e *Engine) PlaybackTime() float64 {
	return math.Max(0, e.clock.Elapsed()-e.cfg.Offset)
}

// BPM returns the tempo.
func (e *Engine) BPM() float64 { return e.cfg.BPM }

// BeatDuration returns the length of one beat in seconds.
func (e *Engine) BeatDuration() float64 { return 60 / e.cfg.BPM }

// SetBPM changes the tempo. Beats keep their accumulators.
func (e *Engine) SetBPM(bpm float64) error {
	if err := validateBPM(bpm); err != nil {
		return err
	}
	e.cfg.BPM = bpm
	return nil
}

// Bins returns the spectrum length.
func (e *Engine) Bins() int { return e.bins }

// Frames returns the number of completed frame passes.
func (e *Engine) Frames() uint64 { return e.frames }

// Kicks returns the registered kick detectors in registration order.
func (e *Engine) Kicks() []*Kick {
	return append([]*Kick(nil), e.kicks...)
}

// Beats returns the registered beats in registration order.
func (e *Engine) Beats() []*Beat {
	return append([]*Beat(nil), e.beats...)
}

// Spectrum returns a copy of the current frame's spectrum snapshot.
func (e *Engine) Spectrum() []byte {
	return append([]byte(nil), e.spectrum...)
}

// Waveform samples the analyzer's time-domain data.
func (e *Engine) Waveform() []byte {
	e.cfg.Analyzer.Waveform(e.waveform)
	return append([]byte(nil), e.waveform...)
}

// Err returns the last section registration error, if any.
func (e *Engine) Err() error { return e.err }

// Before registers a section active while elapsed < t.
func (e *Engine) Before(label string, t float64, fn SectionFunc) *Engine {
	return e.register(&Section{Label: label, Kind: Before, End: t, fn: fn})
}

// After registers a section active while elapsed > t.
func (e *Engine) After(label string, t float64, fn SectionFunc) *Engine {
	return e.register(&Section{Label: label, Kind: After, Start: t, fn: fn})
}

// Between registers a section active while t0 < elapsed < t1.
func (e *Engine) Between(label string, t0, t1 float64, fn SectionFunc) *Engine {
	return e.register(&Section{Label: label, Kind: Between, Start: t0, End: t1, fn: fn})
}

// OnceAt registers a section that runs on the first frame with elapsed > t
// and never again, whatever seeks follow.
func (e *Engine) OnceAt(label string, t float64, fn SectionFunc) *Engine {
	return e.register(&Section{Label: label, Kind: Once, Start: t, fn: fn})
}

// register keeps the chainable signature; a rejected section is reported
// through Err and the error observer instead.
func (e *Engine) register(s *Section) *Engine {
	if err := s.validate(); err != nil {
		e.err = err
		e.log.Warnf("section %q rejected: %v", s.Label, err)
		if e.cfg.OnError != nil {
			e.cfg.OnError(err)
		}
		return e
	}
	e.sections.add(s)
	return e
}

func (e *Engine) arm() {
	if e.pending != 0 {
		return
	}
	e.pending = e.cfg.Frames.Schedule(e.frame)
}

func (e *Engine) disarm() {
	if e.pending == 0 {
		return
	}
	e.cfg.Frames.Cancel(e.pending)
	e.pending = 0
}

// frame is one FrameDriver pass. A callback that pauses or stops playback
// ends the pass before the next stage.
func (e *Engine) frame() {
	e.pending = 0
	if !e.clock.IsPlaying() {
		return
	}

	e.cfg.Analyzer.Spectrum(e.spectrum)
	elapsed := e.clock.Elapsed()

	e.sections.evaluate(e, elapsed)
	if !e.clock.IsPlaying() {
		return
	}

	for _, k := range e.kicks {
		k.process(e, e.spectrum)
	}
	if !e.clock.IsPlaying() {
		return
	}

	playbackTime := math.Max(0, elapsed-e.cfg.Offset)
	beatDuration := e.BeatDuration()
	for _, b := range e.beats {
		b.process(e, playbackTime, beatDuration)
	}
	e.frames++

	if !e.clock.IsPlaying() {
		return
	}
	if e.duration > 0 && elapsed >= e.duration {
		e.end()
		return
	}
	e.arm()
}

func (e *Engine) end() {
	e.clock.Pause()
	e.clock.Seek(e.duration)
	e.disarm()
	e.log.Infof("playback ended at %.2fs", e.duration)
	if e.cfg.OnEnded != nil {
		e.invoke("ended", "", func() { e.cfg.OnEnded(e) })
	}
}

// invoke runs a user callback, converting a panic into a CallbackError for
// the observer so the rest of the pass still runs.
func (e *Engine) invoke(source, label string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err := &CallbackError{Source: source, Label: label, Value: r}
			e.log.Errorf("%v", err)
			if e.cfg.OnError != nil {
				e.cfg.OnError(err)
			}
		}
	}()
	fn()
}
