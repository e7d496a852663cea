package audio

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pion/logging"
)

// --- Constants ---

func TestConstants(t *testing.T) {
	// 48kHz * 20ms = 960 samples per channel
	if got := SampleRate * int(FrameDuration/time.Millisecond) / 1000; got != FrameSize {
		t.Errorf("FrameSize mismatch: want %d, got %d", got, FrameSize)
	}
	if FrameSamples != FrameSize*Channels {
		t.Errorf("FrameSamples = %d, want %d", FrameSamples, FrameSize*Channels)
	}
	if FrameBytes != FrameSamples*2 {
		t.Errorf("FrameBytes = %d, want %d", FrameBytes, FrameSamples*2)
	}
}

// --- Smoothstep ---

func TestSmoothstepBoundaries(t *testing.T) {
	tests := []struct {
		input float64
		want  float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{1.5, 1},
	}
	for _, tt := range tests {
		got := Smoothstep(tt.input)
		if got != tt.want {
			t.Errorf("Smoothstep(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestSmoothstepMonotonic(t *testing.T) {
	prev := 0.0
	for i := 1; i <= 100; i++ {
		x := float64(i) / 100.0
		val := Smoothstep(x)
		if val < prev {
			t.Errorf("Smoothstep not monotonic: f(%v)=%v < f(%v)=%v", x, val, float64(i-1)/100.0, prev)
		}
		prev = val
	}
}

func TestSmoothstepSymmetry(t *testing.T) {
	// Smoothstep is symmetric around 0.5: f(0.5+d) + f(0.5-d) = 1
	for _, d := range []float64{0.1, 0.2, 0.3, 0.4, 0.5} {
		sum := Smoothstep(0.5+d) + Smoothstep(0.5-d)
		if diff := sum - 1.0; diff > 1e-10 || diff < -1e-10 {
			t.Errorf("Smoothstep symmetry broken at d=%v: sum=%v", d, sum)
		}
	}
}

// --- Blend ---

func TestBlend(t *testing.T) {
	tests := []struct {
		name     string
		dst, out []int16
		progress float64
		want     []int16
	}{
		{"all outgoing", []int16{2000, -2000}, []int16{1000, -1000}, 0, []int16{1000, -1000}},
		{"all incoming", []int16{2000, -2000}, []int16{1000, -1000}, 1, []int16{2000, -2000}},
		{"midpoint", []int16{3000, -3000}, []int16{1000, -1000}, 0.5, []int16{2000, -2000}},
		{"extremes hold", []int16{32767, -32768}, []int16{32767, -32768}, 0.5, []int16{32767, -32768}},
		{"short outgoing", []int16{500, 600}, []int16{100}, 0, []int16{100, 600}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Blend(tt.dst, tt.out, tt.progress)
			for i, want := range tt.want {
				if tt.dst[i] != want {
					t.Errorf("sample[%d] = %d, want %d", i, tt.dst[i], want)
				}
			}
		})
	}
}

func TestClip16(t *testing.T) {
	if got := clip16(40000); got != 32767 {
		t.Errorf("clip16(40000) = %d, want 32767", got)
	}
	if got := clip16(-40000); got != -32768 {
		t.Errorf("clip16(-40000) = %d, want -32768", got)
	}
}

func TestSeekFadeLength(t *testing.T) {
	f := newSeekFade(7, 3*FrameDuration+FrameDuration/2)
	if f.left != 3 || f.total != 3 || f.from != 7 {
		t.Fatalf("seekFade = %+v, want 3 frames from 7", f)
	}
	track := rampTrack(20)
	dst := make([]int16, FrameSamples)
	for i := 0; i < 5; i++ {
		f.apply(track, dst)
	}
	if f.left != 0 || f.from != 10 {
		t.Errorf("after apply: left=%d from=%d, want 0/10", f.left, f.from)
	}
}

// --- SamplesToBytes / round-trip ---

func TestSamplesToBytes(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 256}
	buf := SamplesToBytes(samples)
	if len(buf) != len(samples)*2 {
		t.Fatalf("SamplesToBytes length = %d, want %d", len(buf), len(samples)*2)
	}

	// Verify little-endian encoding manually for a few values
	// 256 = 0x0100 -> bytes [0x00, 0x01]
	idx := 5 * 2
	if buf[idx] != 0x00 || buf[idx+1] != 0x01 {
		t.Errorf("Sample 256 encoded as [%02x, %02x], want [00, 01]", buf[idx], buf[idx+1])
	}
}

func TestSamplesBytesRoundTrip(t *testing.T) {
	original := []int16{0, 1, -1, 32767, -32768, 12345, -6789}
	buf := SamplesToBytes(original)

	// Decode back
	recovered := make([]int16, len(buf)/2)
	for i := range recovered {
		recovered[i] = int16(uint16(buf[i*2]) | uint16(buf[i*2+1])<<8)
	}

	for i, v := range original {
		if recovered[i] != v {
			t.Errorf("Round-trip sample[%d]: got %d, want %d", i, recovered[i], v)
		}
	}
}

// --- Track ---

func TestTrackDurationAndFrames(t *testing.T) {
	tr := &Track{Samples: make([]int16, SampleRate*Channels*3/2)}
	if got := tr.Duration(); got != 1.5 {
		t.Errorf("Duration = %v, want 1.5", got)
	}
	if got := tr.Frames(); got != 75 {
		t.Errorf("Frames = %d, want 75", got)
	}

	tr.Samples = append(tr.Samples, 1, 2)
	if got := tr.Frames(); got != 76 {
		t.Errorf("Frames with partial tail = %d, want 76", got)
	}
	dst := make([]int16, FrameSamples)
	dst[5] = 99
	tr.frame(75, dst)
	if dst[0] != 1 || dst[1] != 2 || dst[5] != 0 {
		t.Errorf("partial frame not zero padded: %v", dst[:6])
	}
}

// --- WAV decoding ---

func quietLogger() logging.LoggerFactory {
	return &logging.DefaultLoggerFactory{Writer: io.Discard, DefaultLogLevel: logging.LogLevelDisabled}
}

func writeWAV(t *testing.T, path string, rate, chans int, data []int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, chans, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: chans, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
}

func TestDecodeWAVMonoUpmix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mono.wav")
	writeWAV(t, path, SampleRate, 1, []int{100, -200, 300, -400})

	data, _ := os.ReadFile(path)
	samples, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	want := []int16{100, 100, -200, -200, 300, 300, -400, -400}
	if len(samples) != len(want) {
		t.Fatalf("got %d samples, want %d", len(samples), len(want))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("sample[%d] = %d, want %d", i, samples[i], want[i])
		}
	}
}

func TestDecodeWAVResamples(t *testing.T) {
	const rate = 24000
	data := make([]int, rate*2) // 1s stereo
	for i := range data {
		data[i] = 1000
	}
	path := filepath.Join(t.TempDir(), "half.wav")
	writeWAV(t, path, rate, 2, data)

	raw, _ := os.ReadFile(path)
	samples, err := DecodeWAV(raw)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	frames := len(samples) / Channels
	if frames < SampleRate-FrameSize || frames > SampleRate+FrameSize {
		t.Errorf("resampled to %d frames, want about %d", frames, SampleRate)
	}
}

func TestDecodeWAVRejectsOtherData(t *testing.T) {
	if _, err := DecodeWAV([]byte("ID3 definitely an mp3")); !errors.Is(err, ErrNotWAV) {
		t.Errorf("err = %v, want ErrNotWAV", err)
	}
}

func TestTo16(t *testing.T) {
	tests := []struct {
		v, depth int
		want     int16
	}{
		{1234, 16, 1234},
		{0x7fff00, 24, 0x7fff},
		{-256, 24, -1},
		{128, 8, 0},
		{255, 8, 127 << 8},
	}
	for _, tt := range tests {
		if got := to16(tt.v, tt.depth); got != tt.want {
			t.Errorf("to16(%d, %d) = %d, want %d", tt.v, tt.depth, got, tt.want)
		}
	}
}

// --- Loader ---

func TestLoaderFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.wav")
	writeWAV(t, path, SampleRate, 2, make([]int, SampleRate*2))

	l := NewLoader(nil, quietLogger())
	buf, err := l.Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := buf.Duration(); got != 1 {
		t.Errorf("Duration = %v, want 1", got)
	}
	if l.Progress() != 1 {
		t.Errorf("Progress = %v, want 1", l.Progress())
	}
}

func TestLoaderMissingFile(t *testing.T) {
	l := NewLoader(nil, quietLogger())
	_, err := l.Load(context.Background(), filepath.Join(t.TempDir(), "nope.wav"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
	if l.Progress() != 0 {
		t.Errorf("Progress after failure = %v, want 0", l.Progress())
	}
}

func TestLoaderHTTP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "track.wav")
	writeWAV(t, path, SampleRate, 2, make([]int, SampleRate))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/track.wav" {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, path)
	}))
	defer srv.Close()

	l := NewLoader(srv.Client(), quietLogger())
	buf, err := l.Load(context.Background(), srv.URL+"/track.wav")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := buf.Duration(); got != 0.5 {
		t.Errorf("Duration = %v, want 0.5", got)
	}

	if _, err := l.Load(context.Background(), srv.URL+"/missing.wav"); err == nil {
		t.Error("Load of 404 succeeded")
	}
}

func TestProgressReader(t *testing.T) {
	var reports []float64
	pr := &progressReader{
		r:      io.LimitReader(zeroReader{}, 100),
		total:  100,
		report: func(p float64) { reports = append(reports, p) },
	}
	buf := make([]byte, 40)
	for {
		if _, err := pr.Read(buf); err != nil {
			break
		}
	}
	if len(reports) == 0 || reports[len(reports)-1] != 1 {
		t.Fatalf("reports = %v, want to end at 1", reports)
	}
	for i := 1; i < len(reports); i++ {
		if reports[i] < reports[i-1] {
			t.Errorf("progress decreased: %v", reports)
		}
	}
}

type zeroReader struct{}

func (zeroReader) Read(b []byte) (int, error) {
	clear(b)
	return len(b), nil
}

// --- Pipeline ---

func rampTrack(frames int) *Track {
	s := make([]int16, frames*FrameSamples)
	for i := range s {
		s[i] = int16(i / FrameSamples)
	}
	return &Track{URI: "ramp", Samples: s}
}

func TestPipelineSilentUntilPlay(t *testing.T) {
	p := NewPipeline(0, quietLogger())
	p.Play() // no track yet
	if f := p.next(); f[0] != 0 {
		t.Errorf("frame without track = %d, want silence", f[0])
	}

	p.Load(rampTrack(10))
	p.Seek(0.1)
	if f := p.next(); f[0] != 0 {
		t.Errorf("paused frame = %d, want silence", f[0])
	}
	p.Play()
	if f := p.next(); f[0] != 5 {
		t.Errorf("first frame after seek to 100ms = %d, want 5", f[0])
	}
	playing, pos, dur := p.Status()
	if !playing || pos != 6*FrameDuration || dur != 10*FrameDuration {
		t.Errorf("Status = %v %v %v, want true 120ms 200ms", playing, pos, dur)
	}
}

func TestPipelineStopsAtEnd(t *testing.T) {
	p := NewPipeline(0, quietLogger())
	p.Load(rampTrack(3))
	p.Play()
	for i := 0; i < 3; i++ {
		if f := p.next(); f[0] != int16(i) {
			t.Errorf("frame %d = %d", i, f[0])
		}
	}
	if f := p.next(); f[0] != 0 {
		t.Errorf("frame past end = %d, want silence", f[0])
	}
	if playing, _, _ := p.Status(); playing {
		t.Error("still playing past end")
	}
}

func TestPipelineSeekCrossfades(t *testing.T) {
	p := NewPipeline(4*FrameDuration, quietLogger())
	p.Load(rampTrack(100))
	p.Play()
	for i := 0; i < 10; i++ {
		p.next()
	}
	p.Seek(1.0) // frame 50

	first := p.next()
	if first[0] != 10 {
		t.Errorf("first frame after seek = %d, want outgoing 10", first[0])
	}
	mid := p.next()
	if mid[0] <= 11 || mid[0] >= 51 {
		t.Errorf("blended frame = %d, want between 11 and 51", mid[0])
	}
	p.next()
	p.next()
	if f := p.next(); f[0] != 54 {
		t.Errorf("frame after fade = %d, want 54", f[0])
	}
}

func TestPipelineSeekWhilePausedHasNoFade(t *testing.T) {
	p := NewPipeline(time.Second, quietLogger())
	p.Load(rampTrack(100))
	p.Seek(1.0)
	p.Play()
	if f := p.next(); f[0] != 50 {
		t.Errorf("frame = %d, want 50", f[0])
	}
}

func TestPipelineRunFeedsTapAndChannel(t *testing.T) {
	p := NewPipeline(0, quietLogger())
	p.Load(rampTrack(100))
	p.Play()

	tapped := make(chan int, 200)
	p.SetTap(func(f []int16) { tapped <- len(f) })

	ctx, cancel := context.WithCancel(context.Background())
	go p.Run(ctx)

	select {
	case f := <-p.Frames():
		if len(f) != FrameSamples {
			t.Errorf("frame length = %d, want %d", len(f), FrameSamples)
		}
	case <-time.After(time.Second):
		t.Fatal("no frame within 1s")
	}
	if n := <-tapped; n != FrameSamples {
		t.Errorf("tap saw %d samples, want %d", n, FrameSamples)
	}

	cancel()
	for range p.Frames() {
	}
}

// --- Speaker ---

func TestSpeakerStreamsFrames(t *testing.T) {
	ch := make(chan []int16, 2)
	ch <- []int16{16384, -16384, 0, 32767}
	s := newSpeaker(ch, quietLogger())

	dst := make([][2]float64, 4)
	n, ok := s.Stream(dst)
	if n != 4 || !ok {
		t.Fatalf("Stream = %d,%v, want 4,true", n, ok)
	}
	if dst[0][0] != 0.5 || dst[0][1] != -0.5 {
		t.Errorf("first sample = %v, want [0.5 -0.5]", dst[0])
	}
	if dst[2] != [2]float64{} || dst[3] != [2]float64{} {
		t.Errorf("underrun not silent: %v", dst[2:])
	}

	close(ch)
	if n, ok := s.Stream(dst); n != 0 || ok {
		t.Errorf("Stream after close = %d,%v, want 0,false", n, ok)
	}
}
