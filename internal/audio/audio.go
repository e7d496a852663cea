package audio

import "time"

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Track is a fully decoded asset: interleaved stereo int16 at SampleRate.
type Track struct {
	URI     string
	Samples []int16
}

// Duration returns the track length in seconds.
func (t *Track) Duration() float64 {
	return float64(len(t.Samples)/Channels) / SampleRate
}

// Frames returns the number of 20ms frames, counting a trailing partial one.
func (t *Track) Frames() int {
	return (len(t.Samples) + FrameSamples - 1) / FrameSamples
}

// frame copies the 20ms frame at index i into dst, zero padding past the end.
func (t *Track) frame(i int, dst []int16) {
	start := i * FrameSamples
	n := 0
	if start >= 0 && start < len(t.Samples) {
		n = copy(dst, t.Samples[start:])
	}
	clear(dst[n:])
}
