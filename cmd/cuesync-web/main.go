//go:build js

// Command cuesync-web runs the engine in the browser, built with GopherJS.
// Frames come from requestAnimationFrame and audio from Web Audio; what
// fires is dispatched as "cuesync" DOM events on window.
//
// Page settings are read from window.cuesyncConfig:
//
//	{track: "song.mp3", bpm: 128, offset: 0.2, threshold: 150, decay: 0.5, sheet: {...}}
//
// sheet, when present, is a cue sheet in the same JSON form cuesync reads
// from CUESYNC_CUES.
package main

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/gopherjs/gopherjs/js"
	"github.com/pion/logging"
	"github.com/satindergrewal/cuesync/internal/cue"
	"github.com/satindergrewal/cuesync/internal/engine"
	"github.com/satindergrewal/cuesync/internal/event"
	"github.com/satindergrewal/cuesync/internal/frame"
	"github.com/satindergrewal/cuesync/internal/webaudio"
)

type page struct {
	eng   *engine.Engine
	cues  *cue.Cues
	audio *webaudio.Context
	buf   *webaudio.Buffer
	log   logging.LeveledLogger
}

func main() {
	settings := js.Global.Get("cuesyncConfig")
	logs := logging.NewDefaultLoggerFactory()
	log := logs.NewLogger("web")

	sheet := cue.Default(
		number(settings, "bpm", 120),
		number(settings, "offset", 0),
		number(settings, "threshold", engine.DefaultKickThreshold),
		number(settings, "decay", engine.DefaultKickDecay),
	)
	if raw := field(settings, "sheet"); raw != nil {
		s, err := cue.Parse(strings.NewReader(js.Global.Get("JSON").Call("stringify", raw).String()))
		if err != nil {
			log.Errorf("cue sheet: %v", err)
			return
		}
		sheet = s
	}
	bpm, offset := sheet.Timing(number(settings, "bpm", 120), number(settings, "offset", 0))

	wa, err := webaudio.New(2048, 0.8, logs)
	if err != nil {
		log.Errorf("%v", err)
		return
	}

	p := &page{audio: wa, log: log}
	p.eng, err = engine.New(engine.Config{
		BPM:      bpm,
		Offset:   offset,
		Analyzer: wa,
		Frames:   frame.NewAnimationFrames(),
		Clock:    wa,
		OnError:  func(err error) { log.Warnf("%v", err) },
		OnEnded: func(e *engine.Engine) {
			wa.Stop()
			p.publish(event.Event{Type: event.Transport, Label: "ended", Time: e.Elapsed()})
		},
		LoggerFactory: logs,
	})
	if err != nil {
		log.Errorf("engine: %v", err)
		return
	}
	p.cues, err = sheet.Apply(p.eng, event.PublisherFunc(p.publish), logs)
	if err != nil {
		log.Errorf("apply cues: %v", err)
		return
	}

	js.Global.Set("cuesync", map[string]interface{}{
		"load":   p.load,
		"play":   p.play,
		"pause":  p.pause,
		"seek":   p.seek,
		"stop":   p.stop,
		"status": p.status,
	})

	if track := field(settings, "track"); track != nil {
		p.load(track.String())
	}

	select {}
}

// load runs on its own goroutine; Load blocks on promises.
func (p *page) load(uri string) {
	go func() {
		if err := p.eng.Load(context.Background(), p.audio, uri); err != nil {
			p.log.Errorf("%v", err)
			p.transport("error")
			return
		}
		p.buf = p.eng.Buffer().(*webaudio.Buffer)
		p.transport("loaded")
	}()
}

func (p *page) play(offset float64) {
	if err := p.eng.Play(offset); err != nil {
		p.log.Warnf("play: %v", err)
		return
	}
	p.audio.Start(p.buf, p.eng.Elapsed())
	if offset != 0 {
		p.cues.ResyncBeats()
	}
	p.transport("play")
}

func (p *page) pause() {
	p.eng.Pause()
	p.audio.Stop()
	p.transport("pause")
}

func (p *page) stop() {
	p.eng.Stop()
	p.audio.Stop()
	p.transport("stop")
}

func (p *page) seek(t float64) {
	if err := p.eng.Seek(t); err != nil {
		p.log.Warnf("seek: %v", err)
		return
	}
	if p.eng.IsPlaying() {
		p.audio.Start(p.buf, p.eng.Elapsed())
	}
	p.cues.ResyncBeats()
	p.transport("seek")
}

func (p *page) status() map[string]interface{} {
	return map[string]interface{}{
		"playing":  p.eng.IsPlaying(),
		"elapsed":  p.eng.Elapsed(),
		"duration": p.eng.Duration(),
		"progress": p.eng.LoadProgress(),
		"frames":   p.eng.Frames(),
	}
}

func (p *page) transport(label string) {
	p.publish(event.Event{Type: event.Transport, Label: label, Time: p.eng.Elapsed()})
}

func (p *page) publish(ev event.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warnf("encode event: %v", err)
		return
	}
	detail := js.Global.Get("JSON").Call("parse", string(data))
	js.Global.Call("dispatchEvent", js.Global.Get("CustomEvent").New("cuesync", map[string]interface{}{"detail": detail}))
}

// field returns obj[key], or nil when either is missing.
func field(obj *js.Object, key string) *js.Object {
	if obj == nil || obj == js.Undefined {
		return nil
	}
	v := obj.Get(key)
	if v == nil || v == js.Undefined {
		return nil
	}
	return v
}

func number(obj *js.Object, key string, def float64) float64 {
	if v := field(obj, key); v != nil {
		return v.Float()
	}
	return def
}
