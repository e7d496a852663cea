package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/satindergrewal/cuesync/internal/audio"
	"github.com/satindergrewal/cuesync/internal/cue"
	"github.com/satindergrewal/cuesync/internal/engine"
	"github.com/satindergrewal/cuesync/internal/event"
	"github.com/satindergrewal/cuesync/internal/frame"
	"github.com/satindergrewal/cuesync/internal/stream"
)

var errUnknownKick = errors.New("unknown kick")

// transport keeps the engine and the audio pipeline moving together. Every
// engine call is marshalled onto the frame loop goroutine.
type transport struct {
	loop     *frame.Loop
	eng      *engine.Engine
	pipeline *audio.Pipeline
	cues     *cue.Cues
	events   *stream.Broadcaster[event.Event]
}

func (t *transport) do(ctx context.Context, fn func() error) error {
	var err error
	if loopErr := t.loop.Do(ctx, func() { err = fn() }); loopErr != nil {
		return loopErr
	}
	return err
}

func (t *transport) publish(label string) {
	t.events.Publish(event.Event{Type: event.Transport, Label: label, Time: t.eng.Elapsed()})
}

// Play starts or resumes, shifted by offset seconds.
func (t *transport) Play(ctx context.Context, offset float64) error {
	return t.do(ctx, func() error {
		if err := t.eng.Play(offset); err != nil {
			return err
		}
		t.pipeline.Seek(t.eng.Elapsed())
		t.pipeline.Play()
		if offset != 0 {
			t.cues.ResyncBeats()
		}
		t.publish("play")
		return nil
	})
}

func (t *transport) Pause(ctx context.Context) error {
	return t.do(ctx, func() error {
		t.eng.Pause()
		t.pipeline.Pause()
		t.pipeline.Seek(t.eng.Elapsed())
		t.publish("pause")
		return nil
	})
}

// Seek jumps to pos seconds and realigns beats to the new position.
func (t *transport) Seek(ctx context.Context, pos float64) error {
	return t.do(ctx, func() error {
		if err := t.eng.Seek(pos); err != nil {
			return err
		}
		t.pipeline.Seek(t.eng.Elapsed())
		t.cues.ResyncBeats()
		t.publish("seek")
		return nil
	})
}

type kickUpdate struct {
	Name      string   `json:"name"`
	Threshold *float64 `json:"threshold"`
	Decay     *float64 `json:"decay"`
	Enabled   *bool    `json:"enabled"`
}

func (t *transport) UpdateKick(ctx context.Context, u kickUpdate) (kickStatus, error) {
	var st kickStatus
	err := t.do(ctx, func() error {
		k, ok := t.cues.Kick(u.Name)
		if !ok {
			return fmt.Errorf("%w %q", errUnknownKick, u.Name)
		}
		if err := k.Reconfigure(engine.KickConfig{Threshold: u.Threshold, Decay: u.Decay}); err != nil {
			return err
		}
		if u.Enabled != nil {
			if *u.Enabled {
				k.Enable()
			} else {
				k.Disable()
			}
		}
		st = newKickStatus(u.Name, k)
		return nil
	})
	return st, err
}

type kickStatus struct {
	Name      string      `json:"name"`
	Band      engine.Band `json:"band"`
	Enabled   bool        `json:"enabled"`
	Threshold float64     `json:"threshold"`
	Decay     float64     `json:"decay"`
	Current   float64     `json:"current_threshold"`
	IsKick    bool        `json:"is_kick"`
}

func newKickStatus(name string, k *engine.Kick) kickStatus {
	return kickStatus{
		Name:      name,
		Band:      k.Band(),
		Enabled:   k.Enabled(),
		Threshold: k.Threshold(),
		Decay:     k.Decay(),
		Current:   k.CurrentThreshold(),
		IsKick:    k.IsKick(),
	}
}

type status struct {
	Playing      bool         `json:"playing"`
	Elapsed      float64      `json:"elapsed"`
	Duration     float64      `json:"duration"`
	PlaybackTime float64      `json:"playback_time"`
	BPM          float64      `json:"bpm"`
	Frames       uint64       `json:"frames"`
	LoadProgress float64      `json:"load_progress"`
	Kicks        []kickStatus `json:"kicks"`
	AudioPos     float64      `json:"audio_position"`
}

func (t *transport) Status(ctx context.Context) (status, error) {
	var st status
	err := t.do(ctx, func() error {
		_, pos, _ := t.pipeline.Status()
		st = status{
			Playing:      t.eng.IsPlaying(),
			Elapsed:      t.eng.Elapsed(),
			Duration:     t.eng.Duration(),
			PlaybackTime: t.eng.PlaybackTime(),
			BPM:          t.eng.BPM(),
			Frames:       t.eng.Frames(),
			LoadProgress: t.eng.LoadProgress(),
			AudioPos:     pos.Seconds(),
		}
		for _, name := range t.cues.KickNames() {
			k, _ := t.cues.Kick(name)
			st.Kicks = append(st.Kicks, newKickStatus(name, k))
		}
		return nil
	})
	return st, err
}

// Snapshot copies the current frame's spectrum and waveform.
func (t *transport) Snapshot(ctx context.Context) (spectrum, waveform []byte, err error) {
	err = t.do(ctx, func() error {
		spectrum = t.eng.Spectrum()
		waveform = t.eng.Waveform()
		return nil
	})
	return spectrum, waveform, err
}

// httpStatus maps transport errors to HTTP status codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, engine.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, errUnknownKick):
		return http.StatusNotFound
	case errors.Is(err, frame.ErrStopped), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
