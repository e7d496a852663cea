//go:build js

// Package webaudio adapts the browser's Web Audio API to the engine: the
// AudioContext is the clock, an AnalyserNode is the analyzer and
// fetch+decodeAudioData is the loader.
package webaudio

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/gopherjs/gopherjs/js"
	"github.com/pion/logging"
	"github.com/satindergrewal/cuesync/internal/engine"
)

// ErrNoAudioContext is returned when the browser has no Web Audio support.
var ErrNoAudioContext = errors.New("web audio not available")

// Context owns one AudioContext, its analyser and the playing source.
type Context struct {
	log logging.LeveledLogger

	ctx      *js.Object
	analyser *js.Object
	freq     *js.Object // Uint8Array, frequencyBinCount long
	wave     *js.Object // Uint8Array, frequencyBinCount long

	source   *js.Object
	progress float64
}

// New creates the AudioContext and an analyser of fftSize points. Failure
// is an *engine.InitError.
func New(fftSize int, smoothing float64, f logging.LoggerFactory) (*Context, error) {
	ctor := js.Global.Get("AudioContext")
	if ctor == nil || ctor == js.Undefined {
		ctor = js.Global.Get("webkitAudioContext")
	}
	if ctor == nil || ctor == js.Undefined {
		return nil, &engine.InitError{Err: ErrNoAudioContext}
	}

	c := &Context{log: f.NewLogger("webaudio"), ctx: ctor.New()}
	c.analyser = c.ctx.Call("createAnalyser")
	c.analyser.Set("fftSize", fftSize)
	c.analyser.Set("smoothingTimeConstant", math.Max(0, math.Min(1, smoothing)))
	c.analyser.Call("connect", c.ctx.Get("destination"))

	bins := c.analyser.Get("frequencyBinCount").Int()
	c.freq = js.Global.Get("Uint8Array").New(bins)
	c.wave = js.Global.Get("Uint8Array").New(bins)
	c.log.Debugf("audio context ready: %d bins at %.0f Hz", bins, c.ctx.Get("sampleRate").Float())
	return c, nil
}

// Now is the AudioContext time in seconds.
func (c *Context) Now() float64 {
	return c.ctx.Get("currentTime").Float()
}

func (c *Context) BinCount() int {
	return c.freq.Length()
}

func (c *Context) Spectrum(dst []byte) {
	c.analyser.Call("getByteFrequencyData", c.freq)
	copyBytes(dst, c.freq)
}

func (c *Context) Waveform(dst []byte) {
	c.analyser.Call("getByteTimeDomainData", c.wave)
	copyBytes(dst, c.wave)
}

func copyBytes(dst []byte, src *js.Object) {
	n := min(len(dst), src.Length())
	for i := 0; i < n; i++ {
		dst[i] = byte(src.Index(i).Int())
	}
}

// Buffer is a decoded AudioBuffer.
type Buffer struct {
	URI string
	buf *js.Object
}

func (b *Buffer) Duration() float64 {
	return b.buf.Get("duration").Float()
}

// Progress reports load progress: 0.5 once the body is fetched, 1 once
// decoded.
func (c *Context) Progress() float64 {
	return c.progress
}

func (c *Context) setProgress(p float64) {
	if p > c.progress {
		c.progress = p
	}
}

type result struct {
	v   *js.Object
	err error
}

// await blocks the calling goroutine on a JS promise. It must not be called
// from a JS callback.
func await(ctx context.Context, promise *js.Object) (*js.Object, error) {
	ch := make(chan result, 1)
	promise.Call("then", func(v *js.Object) {
		ch <- result{v: v}
	}, func(reason *js.Object) {
		ch <- result{err: errors.New(reason.String())}
	})
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Load fetches and decodes uri.
func (c *Context) Load(ctx context.Context, uri string) (engine.Buffer, error) {
	c.progress = 0
	resp, err := await(ctx, js.Global.Call("fetch", uri))
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if !resp.Get("ok").Bool() {
		return nil, fmt.Errorf("fetch: HTTP %d", resp.Get("status").Int())
	}
	body, err := await(ctx, resp.Call("arrayBuffer"))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	c.setProgress(0.5)

	decoded, err := await(ctx, c.ctx.Call("decodeAudioData", body))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	c.setProgress(1)
	c.log.Infof("decoded %s: %.2fs", uri, decoded.Get("duration").Float())
	return &Buffer{URI: uri, buf: decoded}, nil
}

// Start plays buf from pos seconds through the analyser, replacing any
// source already playing.
func (c *Context) Start(buf *Buffer, pos float64) {
	c.Stop()
	if c.ctx.Get("state").String() == "suspended" {
		c.ctx.Call("resume")
	}
	src := c.ctx.Call("createBufferSource")
	src.Set("buffer", buf.buf)
	src.Call("connect", c.analyser)
	src.Call("start", 0, math.Max(0, pos))
	c.source = src
}

// Stop silences the current source. Safe to repeat.
func (c *Context) Stop() {
	if c.source == nil {
		return
	}
	c.source.Call("stop")
	c.source.Call("disconnect")
	c.source = nil
}
