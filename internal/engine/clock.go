package engine

import "time"

// ClockSource supplies monotonic time in seconds.
type ClockSource interface {
	Now() float64
}

// ClockFunc adapts a function to ClockSource.
type ClockFunc func() float64

func (f ClockFunc) Now() float64 { return f() }

// WallClock returns a monotonic ClockSource counting seconds from its
// creation.
func WallClock() ClockSource {
	start := time.Now()
	return ClockFunc(func() float64 {
		return time.Since(start).Seconds()
	})
}

// PlaybackClock tracks the playback position through play, pause and seek.
// While playing, elapsed = now - startRef; while paused it is frozen at
// pausedElapsed.
type PlaybackClock struct {
	src           ClockSource
	startRef      float64
	pausedElapsed float64
	playing       bool
}

// NewPlaybackClock creates a paused clock at position zero.
func NewPlaybackClock(src ClockSource) *PlaybackClock {
	return &PlaybackClock{src: src}
}

// Play starts or resumes playback from the current position shifted by
// offset seconds. Calling it while already playing seeks relative to the
// live position.
func (c *PlaybackClock) Play(offset float64) {
	c.resumeAt(c.Elapsed() + offset)
}

// Pause freezes the position. Pausing a paused clock does nothing.
func (c *PlaybackClock) Pause() {
	if !c.playing {
		return
	}
	c.pausedElapsed = c.Elapsed()
	c.playing = false
}

// Seek moves to an absolute position without changing the play state.
func (c *PlaybackClock) Seek(pos float64) {
	if pos < 0 {
		pos = 0
	}
	if c.playing {
		c.startRef = c.src.Now() - pos
		return
	}
	c.pausedElapsed = pos
}

// Reset pauses the clock at position zero.
func (c *PlaybackClock) Reset() {
	c.playing = false
	c.pausedElapsed = 0
	c.startRef = 0
}

// Elapsed returns the playback position in seconds.
func (c *PlaybackClock) Elapsed() float64 {
	if c.playing {
		return c.src.Now() - c.startRef
	}
	return c.pausedElapsed
}

// IsPlaying reports whether the position is advancing.
func (c *PlaybackClock) IsPlaying() bool {
	return c.playing
}

func (c *PlaybackClock) resumeAt(pos float64) {
	if pos < 0 {
		pos = 0
	}
	c.startRef = c.src.Now() - pos
	c.playing = true
}
