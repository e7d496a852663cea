package audio

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pion/logging"
)

// Tap observes every frame the pipeline emits, silence included. It runs on
// the pipeline goroutine and must not retain the slice.
type Tap func(frame []int16)

// Pipeline paces a decoded track out as 20ms PCM frames at real-time rate.
// While paused or before a track is loaded it emits silence, so listeners
// and the analyzer keep a steady clock.
type Pipeline struct {
	log     logging.LeveledLogger
	frameCh chan []int16
	tap     Tap

	mu        sync.RWMutex
	crossfade time.Duration
	track     *Track
	pos       int // next frame index
	playing   bool
	fade      seekFade // seek de-click
}

// NewPipeline creates an audio pipeline. crossfade is the blend applied
// when seeking during playback; zero disables it.
func NewPipeline(crossfade time.Duration, f logging.LoggerFactory) *Pipeline {
	return &Pipeline{
		log:       f.NewLogger("pipeline"),
		frameCh:   make(chan []int16, 100),
		crossfade: crossfade,
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each).
func (p *Pipeline) Frames() <-chan []int16 {
	return p.frameCh
}

// SetTap installs the frame observer. Call before Run.
func (p *Pipeline) SetTap(t Tap) {
	p.tap = t
}

// Load replaces the track, pausing at the start.
func (p *Pipeline) Load(t *Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.track = t
	p.pos = 0
	p.playing = false
	p.fade = seekFade{}
	p.log.Debugf("loaded %s (%d frames)", t.URI, t.Frames())
}

// Play resumes from the current position.
func (p *Pipeline) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.track == nil {
		return
	}
	p.playing = true
}

// Pause freezes the position and switches output to silence.
func (p *Pipeline) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	p.fade = seekFade{}
}

// Seek moves to pos seconds, clamped to the track. A seek during playback
// crossfades from the old position to hide the discontinuity.
func (p *Pipeline) Seek(pos float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.track == nil || math.IsNaN(pos) || math.IsInf(pos, 0) {
		return
	}
	target := int(math.Round(pos*SampleRate)) / FrameSize
	target = max(0, min(target, p.track.Frames()))

	if p.playing && p.crossfade >= FrameDuration && target != p.pos {
		p.fade = newSeekFade(p.pos, p.crossfade)
	}
	p.pos = target
}

// SetCrossfade changes the seek crossfade length.
func (p *Pipeline) SetCrossfade(d time.Duration) {
	p.mu.Lock()
	p.crossfade = d
	p.mu.Unlock()
}

// CrossfadeDuration returns the seek crossfade length.
func (p *Pipeline) CrossfadeDuration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.crossfade
}

// Status returns current playback info.
func (p *Pipeline) Status() (playing bool, position, duration time.Duration) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.track == nil {
		return false, 0, 0
	}
	return p.playing, time.Duration(p.pos) * FrameDuration, time.Duration(p.track.Frames()) * FrameDuration
}

// Run emits one frame per FrameDuration. Blocks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame := p.next()
		if p.tap != nil {
			p.tap(frame)
		}

		select {
		case p.frameCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// next builds the frame for the current tick and advances the position.
func (p *Pipeline) next() []int16 {
	frame := make([]int16, FrameSamples)

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing || p.track == nil {
		return frame
	}
	if p.pos >= p.track.Frames() {
		p.playing = false
		p.log.Infof("end of %s", p.track.URI)
		return frame
	}

	p.track.frame(p.pos, frame)
	p.fade.apply(p.track, frame)
	p.pos++
	return frame
}
