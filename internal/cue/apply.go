package cue

import (
	"fmt"
	"sort"

	"github.com/pion/logging"
	"github.com/satindergrewal/cuesync/internal/engine"
	"github.com/satindergrewal/cuesync/internal/event"
)

// Cues is a sheet applied to an engine.
type Cues struct {
	engine *engine.Engine
	pub    event.Publisher
	log    logging.LeveledLogger

	kicks map[string]*engine.Kick
	beats map[string]*engine.Beat

	// section labels holding on the previous and current frame
	frame uint64
	prev  map[string]bool
	cur   map[string]bool
}

// Apply registers every kick, beat and section of s on e. Callbacks publish
// to pub and run on the engine's frame goroutine.
func (s *Sheet) Apply(e *engine.Engine, pub event.Publisher, f logging.LoggerFactory) (*Cues, error) {
	c := &Cues{
		engine: e,
		pub:    pub,
		log:    f.NewLogger("cue"),
		kicks:  make(map[string]*engine.Kick),
		beats:  make(map[string]*engine.Beat),
		frame:  e.Frames(),
		cur:    make(map[string]bool),
	}

	for _, kc := range s.Kicks {
		name := kc.Name
		k, err := e.CreateKick(engine.KickConfig{
			Label:     name,
			Frequency: kc.Frequency,
			Threshold: kc.Threshold,
			Decay:     kc.Decay,
			OnKick: func(e *engine.Engine, mag float64) {
				c.pub.Publish(event.Event{Type: event.Kick, Label: name, Magnitude: mag, Time: e.Elapsed()})
			},
		})
		if err != nil {
			return nil, fmt.Errorf("kick %q: %w", name, err)
		}
		if kc.Enabled {
			k.Enable()
		}
		c.kicks[name] = k
	}

	for _, bc := range s.Beats {
		name := bc.Name
		b, err := e.CreateBeat(engine.BeatConfig{
			Label:  name,
			Factor: bc.Factor,
			OnBeat: func(e *engine.Engine) {
				c.pub.Publish(event.Event{Type: event.Beat, Label: name, Time: e.Elapsed()})
			},
		})
		if err != nil {
			return nil, fmt.Errorf("beat %q: %w", name, err)
		}
		if bc.Enabled {
			b.Enable()
		}
		c.beats[name] = b
	}

	for _, sc := range s.Sections {
		if err := c.addSection(sc); err != nil {
			return nil, err
		}
	}

	c.log.Infof("cue sheet applied: %d kicks, %d beats, %d sections", len(s.Kicks), len(s.Beats), len(s.Sections))
	return c, nil
}

func (c *Cues) addSection(sc SectionCue) error {
	before := c.engine.Err()
	fn := c.sectionFunc(sc)
	switch kinds[sc.Kind] {
	case engine.Before:
		c.engine.Before(sc.Label, sc.End, fn)
	case engine.After:
		c.engine.After(sc.Label, sc.Start, fn)
	case engine.Between:
		c.engine.Between(sc.Label, sc.Start, sc.End, fn)
	case engine.Once:
		c.engine.OnceAt(sc.Label, sc.Start, fn)
	}
	if err := c.engine.Err(); err != nil && err != before {
		return fmt.Errorf("section %q: %w", sc.Label, err)
	}
	return nil
}

func (c *Cues) sectionFunc(sc SectionCue) engine.SectionFunc {
	return func(e *engine.Engine) {
		c.rotate(e.Frames())
		c.cur[sc.Label] = true
		if c.prev[sc.Label] {
			return
		}
		c.pub.Publish(event.Event{Type: event.Section, Label: sc.Label, Time: e.Elapsed()})
		if sc.Kick != "" {
			c.solo(sc.Kick)
		}
	}
}

// rotate starts a new frame's active set. A gap of one or more frames with
// no holding section clears the history, so re-entry is reported.
func (c *Cues) rotate(frame uint64) {
	if frame == c.frame {
		return
	}
	if frame == c.frame+1 {
		c.prev = c.cur
	} else {
		c.prev = nil
	}
	c.cur = make(map[string]bool)
	c.frame = frame
}

func (c *Cues) solo(name string) {
	for n, k := range c.kicks {
		if n == name {
			k.Enable()
		} else {
			k.Disable()
		}
	}
	c.log.Debugf("kick %q soloed", name)
}

// Kick returns the named kick detector.
func (c *Cues) Kick(name string) (*engine.Kick, bool) {
	k, ok := c.kicks[name]
	return k, ok
}

// Beat returns the named beat.
func (c *Cues) Beat(name string) (*engine.Beat, bool) {
	b, ok := c.beats[name]
	return b, ok
}

// KickNames lists kick names in sorted order.
func (c *Cues) KickNames() []string {
	names := make([]string, 0, len(c.kicks))
	for n := range c.kicks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ResyncBeats realigns every beat to the grid, for use after a seek.
func (c *Cues) ResyncBeats() {
	for _, b := range c.beats {
		b.Resync()
	}
}
