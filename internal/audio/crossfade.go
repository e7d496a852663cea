package audio

import "time"

// Smoothstep eases t along 3t²-2t³, clamped to [0,1].
func Smoothstep(t float64) float64 {
	switch {
	case t <= 0:
		return 0
	case t >= 1:
		return 1
	}
	return t * t * (3 - 2*t)
}

// Blend mixes outgoing into dst in place. At progress 0 dst becomes
// outgoing, at 1 it is left as is, with a smoothstep curve between.
// Samples beyond the shorter slice are untouched.
func Blend(dst, outgoing []int16, progress float64) {
	gain := Smoothstep(progress)
	n := min(len(dst), len(outgoing))
	for i := 0; i < n; i++ {
		dst[i] = clip16(float64(outgoing[i])*(1-gain) + float64(dst[i])*gain)
	}
}

func clip16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

// seekFade tracks a crossfade from the audio playing before a seek into the
// audio at the new position.
type seekFade struct {
	from  int // next frame index of the outgoing audio
	left  int
	total int
}

func newSeekFade(from int, d time.Duration) seekFade {
	n := int(d / FrameDuration)
	return seekFade{from: from, left: n, total: n}
}

// apply blends the next outgoing frame of t into dst and advances.
func (f *seekFade) apply(t *Track, dst []int16) {
	if f.left <= 0 {
		return
	}
	outgoing := make([]int16, len(dst))
	t.frame(f.from, outgoing)
	Blend(dst, outgoing, float64(f.total-f.left)/float64(f.total))
	f.from++
	f.left--
}
