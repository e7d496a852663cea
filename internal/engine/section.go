package engine

import "math"

// SectionKind selects the time predicate of a Section.
type SectionKind int

const (
	Before  SectionKind = iota // elapsed < End
	After                      // elapsed > Start
	Between                    // Start < elapsed < End
	Once                       // elapsed > Start, first time only
)

func (k SectionKind) String() string {
	switch k {
	case Before:
		return "before"
	case After:
		return "after"
	case Between:
		return "between"
	case Once:
		return "once"
	default:
		return "unknown"
	}
}

// SectionFunc is invoked on every frame whose elapsed time satisfies the
// section's predicate.
type SectionFunc func(e *Engine)

// Section is a labeled, time-predicated callback registration.
type Section struct {
	Label string
	Kind  SectionKind
	Start float64
	End   float64

	fn    SectionFunc
	fired bool
}

// Fired reports whether a Once section has already run.
func (s *Section) Fired() bool {
	return s.fired
}

func (s *Section) holds(elapsed float64) bool {
	switch s.Kind {
	case Before:
		return elapsed < s.End
	case After:
		return elapsed > s.Start
	case Between:
		return s.Start < elapsed && elapsed < s.End
	case Once:
		return !s.fired && elapsed > s.Start
	}
	return false
}

func (s *Section) validate() error {
	if s.fn == nil {
		return &ConfigError{Field: "section callback", Value: s.Label, Reason: "must not be nil"}
	}
	bounds := []float64{s.Start}
	switch s.Kind {
	case Before:
		bounds = []float64{s.End}
	case Between:
		bounds = append(bounds, s.End)
	}
	for _, b := range bounds {
		if math.IsNaN(b) || math.IsInf(b, 0) {
			return &ConfigError{Field: "section time", Value: b, Reason: "must be finite"}
		}
	}
	if s.Kind == Between && s.Start >= s.End {
		return &ConfigError{
			Field:  "section window",
			Value:  [2]float64{s.Start, s.End},
			Reason: "start must be before end",
		}
	}
	return nil
}

// sectionList evaluates sections in registration order.
type sectionList struct {
	items []*Section
}

func (l *sectionList) add(s *Section) {
	l.items = append(l.items, s)
}

// evaluate runs every holding section once. Sections added by a callback
// are outside the slice captured here and wait for the next frame.
func (l *sectionList) evaluate(e *Engine, elapsed float64) {
	for _, s := range l.items {
		if !s.holds(elapsed) {
			continue
		}
		if s.Kind == Once {
			s.fired = true
		}
		e.invoke("section", s.Label, func() { s.fn(e) })
	}
}
