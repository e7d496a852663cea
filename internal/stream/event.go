package stream

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pion/logging"
	"github.com/satindergrewal/cuesync/internal/event"
)

// EventBufferSize is how many events a slow client may lag before drops.
const EventBufferSize = 256

// EventsHandler streams events as Server-Sent Events.
type EventsHandler struct {
	events *Broadcaster[event.Event]
	log    logging.LeveledLogger
}

// NewEventsHandler creates an SSE handler.
func NewEventsHandler(events *Broadcaster[event.Event], f logging.LoggerFactory) *EventsHandler {
	return &EventsHandler{events: events, log: f.NewLogger("stream")}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := streamHeaders(w, "text/event-stream")
	if !ok {
		return
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	listener := h.events.Subscribe()
	defer h.events.Unsubscribe(listener)
	h.log.Debugf("event listener connected (total: %d)", h.events.ListenerCount())

	for {
		select {
		case <-r.Context().Done():
			return
		case <-listener.Done():
			return
		case ev := <-listener.C:
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Warnf("encode event: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
