// Package analysis turns the PCM stream into per-frame spectrum and waveform
// snapshots on the byte scale the sync engine consumes.
package analysis

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	MinFFTSize = 32
	MaxFFTSize = 32768

	// Decibel range mapped onto [0,255].
	MinDecibels = -100.0
	MaxDecibels = -30.0
)

// Analyzer keeps the most recent FFT-size mono samples and computes a
// smoothed magnitude spectrum on demand. Write is called from the audio
// pipeline; Spectrum and Waveform from the frame loop.
type Analyzer struct {
	size      int
	smoothing float64
	window    []float64

	mu       sync.Mutex
	ring     []float64
	pos      int
	smoothed []float64
	scratch  []float64
}

// New creates an analyzer. size must be a power of two in
// [MinFFTSize, MaxFFTSize]; smoothing is clamped to [0,1].
func New(size int, smoothing float64) (*Analyzer, error) {
	if size < MinFFTSize || size > MaxFFTSize || size&(size-1) != 0 {
		return nil, fmt.Errorf("fft size %d: must be a power of two in [%d,%d]", size, MinFFTSize, MaxFFTSize)
	}
	if math.IsNaN(smoothing) {
		return nil, fmt.Errorf("smoothing is NaN")
	}
	smoothing = math.Max(0, math.Min(1, smoothing))
	return &Analyzer{
		size:      size,
		smoothing: smoothing,
		window:    window.Hann(size),
		ring:      make([]float64, size),
		smoothed:  make([]float64, size/2),
		scratch:   make([]float64, size),
	}, nil
}

// BinCount is half the FFT size.
func (a *Analyzer) BinCount() int {
	return a.size / 2
}

// FFTSize returns the transform length.
func (a *Analyzer) FFTSize() int {
	return a.size
}

// Write appends interleaved int16 PCM, downmixed to mono.
func (a *Analyzer) Write(samples []int16, channels int) {
	if channels <= 0 {
		channels = 1
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i+channels <= len(samples); i += channels {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(samples[i+c])
		}
		a.ring[a.pos] = sum / float64(channels) / 32768
		a.pos = (a.pos + 1) % a.size
	}
}

// Reset clears buffered audio and smoothing history.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.ring)
	clear(a.smoothed)
	a.pos = 0
}

// Spectrum fills dst with byte-scaled magnitudes, one per bin. Extra
// entries in dst are left untouched.
func (a *Analyzer) Spectrum(dst []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ordered(a.scratch)
	for i := range a.scratch {
		a.scratch[i] *= a.window[i]
	}
	coeffs := fft.FFTReal(a.scratch)

	n := float64(a.size)
	for k := range a.smoothed {
		mag := cmplx.Abs(coeffs[k]) / n
		a.smoothed[k] = a.smoothing*a.smoothed[k] + (1-a.smoothing)*mag
		if k < len(dst) {
			dst[k] = toByte(a.smoothed[k])
		}
	}
}

// Waveform fills dst with the most recent len(dst) samples as 128*(1+x).
func (a *Analyzer) Waveform(dst []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.ordered(a.scratch)
	src := a.scratch
	if len(dst) < len(src) {
		src = src[len(src)-len(dst):]
	}
	for i, x := range src {
		v := 128 * (1 + x)
		dst[i] = byte(math.Max(0, math.Min(255, v)))
	}
}

// ordered copies the ring oldest-first into dst.
func (a *Analyzer) ordered(dst []float64) {
	n := copy(dst, a.ring[a.pos:])
	copy(dst[n:], a.ring[:a.pos])
}

func toByte(mag float64) byte {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	scaled := 255 * (db - MinDecibels) / (MaxDecibels - MinDecibels)
	return byte(math.Max(0, math.Min(255, scaled)))
}
