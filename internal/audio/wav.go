package audio

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/faiface/beep"
	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNotWAV is returned by DecodeWAV for data without a RIFF/WAVE header.
var ErrNotWAV = errors.New("not a WAV file")

// IsWAV reports whether data starts with a readable WAVE header.
func IsWAV(data []byte) bool {
	return wav.NewDecoder(bytes.NewReader(data)).IsValidFile()
}

// DecodeWAV decodes PCM WAV data into interleaved 48kHz stereo int16.
// Mono input is duplicated, extra channels are dropped and other sample
// rates are resampled.
func DecodeWAV(data []byte) ([]int16, error) {
	if !IsWAV(data) {
		return nil, ErrNotWAV
	}
	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("wav decode: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, fmt.Errorf("wav decode: missing format")
	}
	samples := toStereo16(buf, int(dec.BitDepth))
	if rate := buf.Format.SampleRate; rate != SampleRate {
		samples = resample(samples, rate)
	}
	return samples, nil
}

// toStereo16 narrows go-audio's int samples to 16 bits and forces two
// channels.
func toStereo16(buf *goaudio.IntBuffer, bitDepth int) []int16 {
	ch := buf.Format.NumChannels
	frames := len(buf.Data) / ch
	out := make([]int16, frames*Channels)
	for i := 0; i < frames; i++ {
		l := to16(buf.Data[i*ch], bitDepth)
		r := l
		if ch > 1 {
			r = to16(buf.Data[i*ch+1], bitDepth)
		}
		out[i*2] = l
		out[i*2+1] = r
	}
	return out
}

func to16(v, bitDepth int) int16 {
	switch {
	case bitDepth == 8:
		return int16((v - 128) << 8)
	case bitDepth > 16:
		return int16(v >> (bitDepth - 16))
	default:
		return int16(v)
	}
}

// pcmStreamer exposes interleaved stereo int16 as a beep.Streamer.
type pcmStreamer struct {
	samples []int16
	pos     int
}

func (s *pcmStreamer) Stream(dst [][2]float64) (int, bool) {
	n := 0
	for n < len(dst) && s.pos+1 < len(s.samples) {
		dst[n][0] = float64(s.samples[s.pos]) / 32768
		dst[n][1] = float64(s.samples[s.pos+1]) / 32768
		s.pos += 2
		n++
	}
	return n, n > 0
}

func (s *pcmStreamer) Err() error { return nil }

// resample converts stereo int16 from rate to SampleRate.
func resample(samples []int16, rate int) []int16 {
	r := beep.Resample(4, beep.SampleRate(rate), beep.SampleRate(SampleRate), &pcmStreamer{samples: samples})

	expected := int(int64(len(samples)/Channels) * SampleRate / int64(rate))
	out := make([]int16, 0, expected*Channels+FrameSamples)
	chunk := make([][2]float64, 1024)
	for {
		n, ok := r.Stream(chunk)
		for _, s := range chunk[:n] {
			out = append(out, floatTo16(s[0]), floatTo16(s[1]))
		}
		if !ok {
			break
		}
	}
	return out
}

func floatTo16(x float64) int16 {
	v := x * 32767
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return int16(v)
}
