// Package event defines the sync notifications the engine's cues produce
// and hosts deliver to clients.
package event

// Type names what produced an Event.
type Type string

const (
	Section   Type = "section"
	Kick      Type = "kick"
	Beat      Type = "beat"
	Transport Type = "transport"
)

// Event is one sync notification.
type Event struct {
	Type      Type    `json:"type"`
	Label     string  `json:"label,omitempty"`
	Magnitude float64 `json:"magnitude,omitempty"`
	Time      float64 `json:"time"` // track position in seconds
}

// Publisher receives events as they fire.
type Publisher interface {
	Publish(ev Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ev Event)

func (f PublisherFunc) Publish(ev Event) { f(ev) }
