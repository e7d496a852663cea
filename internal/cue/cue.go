// Package cue loads declarative cue sheets and wires them onto an engine,
// publishing what fires as sync events.
package cue

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/satindergrewal/cuesync/internal/engine"
)

// Sheet is the JSON cue sheet format.
type Sheet struct {
	BPM      float64      `json:"bpm,omitempty"`
	Offset   *float64     `json:"offset,omitempty"`
	Kicks    []KickCue    `json:"kicks,omitempty"`
	Beats    []BeatCue    `json:"beats,omitempty"`
	Sections []SectionCue `json:"sections,omitempty"`
}

type KickCue struct {
	Name      string       `json:"name"`
	Frequency *engine.Band `json:"frequency,omitempty"`
	Threshold *float64     `json:"threshold,omitempty"`
	Decay     *float64     `json:"decay,omitempty"`
	Enabled   bool         `json:"enabled"`
}

type BeatCue struct {
	Name    string   `json:"name"`
	Factor  *float64 `json:"factor,omitempty"`
	Enabled bool     `json:"enabled"`
}

// SectionCue is a time window. Kick, when set, names the only kick left
// enabled while the section holds; kicks keep that state after it ends.
type SectionCue struct {
	Label string  `json:"label"`
	Kind  string  `json:"kind"` // before, after, between or once
	Start float64 `json:"start,omitempty"`
	End   float64 `json:"end,omitempty"`
	Kick  string  `json:"kick,omitempty"`
}

// LoadFile reads and validates a sheet from path.
func LoadFile(path string) (*Sheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a sheet. Unknown fields are errors.
func Parse(r io.Reader) (*Sheet, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var s Sheet
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode cue sheet: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Default is the sheet used without a file: one enabled kick on the low
// bins and one enabled beat per bar.
func Default(bpm, offset, threshold, decay float64) *Sheet {
	bar := 4.0
	band := engine.DefaultBand
	return &Sheet{
		BPM:    bpm,
		Offset: &offset,
		Kicks: []KickCue{{
			Name:      "kick",
			Frequency: &band,
			Threshold: &threshold,
			Decay:     &decay,
			Enabled:   true,
		}},
		Beats: []BeatCue{
			{Name: "beat", Enabled: true},
			{Name: "bar", Factor: &bar, Enabled: true},
		},
	}
}

func (s *Sheet) validate() error {
	kicks := make(map[string]bool)
	for _, k := range s.Kicks {
		if k.Name == "" {
			return fmt.Errorf("kick without name")
		}
		if kicks[k.Name] {
			return fmt.Errorf("duplicate kick %q", k.Name)
		}
		kicks[k.Name] = true
	}
	beats := make(map[string]bool)
	for _, b := range s.Beats {
		if b.Name == "" {
			return fmt.Errorf("beat without name")
		}
		if beats[b.Name] {
			return fmt.Errorf("duplicate beat %q", b.Name)
		}
		beats[b.Name] = true
	}
	for _, sec := range s.Sections {
		if _, ok := kinds[sec.Kind]; !ok {
			return fmt.Errorf("section %q: unknown kind %q", sec.Label, sec.Kind)
		}
		if sec.Kick != "" && !kicks[sec.Kick] {
			return fmt.Errorf("section %q: unknown kick %q", sec.Label, sec.Kick)
		}
	}
	return nil
}

var kinds = map[string]engine.SectionKind{
	"before":  engine.Before,
	"after":   engine.After,
	"between": engine.Between,
	"once":    engine.Once,
}

// Timing returns the sheet's tempo and offset, falling back to the given
// values for fields the sheet leaves unset. An explicit offset of 0 counts
// as set.
func (s *Sheet) Timing(bpm, offset float64) (float64, float64) {
	if s.BPM > 0 {
		bpm = s.BPM
	}
	if s.Offset != nil {
		offset = *s.Offset
	}
	return bpm, offset
}
