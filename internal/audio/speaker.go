package audio

import (
	"fmt"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/pion/logging"
	"github.com/satindergrewal/cuesync/internal/engine"
)

// Speaker monitors a frame channel on the local audio device.
type Speaker struct {
	frames <-chan []int16
	buf    []int16
	done   bool
	log    logging.LeveledLogger
}

// OpenSpeaker initializes the output device and starts draining frames.
// Device failure is an *engine.InitError.
func OpenSpeaker(frames <-chan []int16, f logging.LoggerFactory) (*Speaker, error) {
	sr := beep.SampleRate(SampleRate)
	if err := speaker.Init(sr, sr.N(100*time.Millisecond)); err != nil {
		return nil, &engine.InitError{Err: fmt.Errorf("speaker: %w", err)}
	}
	s := newSpeaker(frames, f)
	speaker.Play(s)
	s.log.Info("speaker monitor started")
	return s, nil
}

func newSpeaker(frames <-chan []int16, f logging.LoggerFactory) *Speaker {
	return &Speaker{frames: frames, log: f.NewLogger("speaker")}
}

// Stream implements beep.Streamer. An empty channel plays silence rather
// than blocking the device callback.
func (s *Speaker) Stream(dst [][2]float64) (int, bool) {
	if s.done {
		return 0, false
	}
	for i := range dst {
		for len(s.buf) < Channels {
			select {
			case f, ok := <-s.frames:
				if !ok {
					s.done = true
					return i, i > 0
				}
				s.buf = f
			default:
				clear(dst[i:])
				return len(dst), true
			}
		}
		dst[i][0] = float64(s.buf[0]) / 32768
		dst[i][1] = float64(s.buf[1]) / 32768
		s.buf = s.buf[Channels:]
	}
	return len(dst), true
}

func (s *Speaker) Err() error { return nil }

// Close stops playback on the device.
func (s *Speaker) Close() {
	speaker.Clear()
}
