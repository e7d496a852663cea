package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/satindergrewal/cuesync/internal/event"
)

func quietLogger() logging.LoggerFactory {
	return &logging.DefaultLoggerFactory{Writer: io.Discard, DefaultLogLevel: logging.LogLevelDisabled}
}

func TestEventsHandlerStreamsSSE(t *testing.T) {
	events := NewBroadcaster[event.Event](EventBufferSize)
	srv := httptest.NewServer(NewEventsHandler(events, quietLogger()))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for events.ListenerCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	events.Publish(event.Event{Type: event.Beat, Label: "bar", Time: 2})

	r := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if lines[0] != "event: beat" {
		t.Errorf("event line = %q", lines[0])
	}
	if lines[1] != `data: {"type":"beat","label":"bar","time":2}` {
		t.Errorf("data line = %q", lines[1])
	}
}

type fakeChannel struct {
	sent chan string
	fail bool
}

func (c *fakeChannel) SendText(s string) error {
	if c.fail {
		return errors.New("closed")
	}
	c.sent <- s
	return nil
}

func TestStreamEventsOverDataChannel(t *testing.T) {
	events := NewBroadcaster[event.Event](EventBufferSize)
	h := NewWebRTCHandler(NewBroadcaster[[]int16](FrameBufferSize), events, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	ch := &fakeChannel{sent: make(chan string, 4)}
	done := make(chan struct{})
	go func() {
		h.streamEvents(ctx, ch)
		close(done)
	}()

	for events.ListenerCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	events.Publish(event.Event{Type: event.Kick, Label: "snare", Magnitude: 180, Time: 3})

	select {
	case msg := <-ch.sent:
		var ev event.Event
		if err := json.Unmarshal([]byte(msg), &ev); err != nil {
			t.Fatalf("Unmarshal %q: %v", msg, err)
		}
		if ev.Label != "snare" || ev.Magnitude != 180 {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no event sent")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("streamEvents did not stop on cancel")
	}
	if events.ListenerCount() != 0 {
		t.Errorf("listener leaked: %d", events.ListenerCount())
	}
}

func TestStreamEventsStopsOnSendError(t *testing.T) {
	events := NewBroadcaster[event.Event](EventBufferSize)
	h := NewWebRTCHandler(NewBroadcaster[[]int16](FrameBufferSize), events, quietLogger())

	done := make(chan struct{})
	go func() {
		h.streamEvents(context.Background(), &fakeChannel{fail: true})
		close(done)
	}()
	for events.ListenerCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	events.Publish(event.Event{Type: event.Beat})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("streamEvents kept running after send error")
	}
}

func TestWebRTCRejectsGet(t *testing.T) {
	h := NewWebRTCHandler(NewBroadcaster[[]int16](FrameBufferSize), NewBroadcaster[event.Event](1), quietLogger())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/offer", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
	if h.PeerCount() != 0 {
		t.Errorf("PeerCount = %d, want 0", h.PeerCount())
	}
}
