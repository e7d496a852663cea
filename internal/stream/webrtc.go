package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/satindergrewal/cuesync/internal/audio"
	"github.com/satindergrewal/cuesync/internal/event"
	"gopkg.in/hraban/opus.v2"
)

// SyncChannelLabel is the data channel clients open to receive events.
const SyncChannelLabel = "sync"

// WebRTCHandler serves WebRTC SDP negotiation for low-latency Opus audio
// plus sync events on a client-created data channel.
type WebRTCHandler struct {
	audio  *Broadcaster[[]int16]
	events *Broadcaster[event.Event]
	api    *webrtc.API
	log    logging.LeveledLogger

	mu    sync.Mutex
	peers map[*webrtc.PeerConnection]context.CancelFunc
}

// NewWebRTCHandler creates a WebRTC stream handler. pion's own ICE and DTLS
// logging goes through f as well.
func NewWebRTCHandler(a *Broadcaster[[]int16], events *Broadcaster[event.Event], f logging.LoggerFactory) *WebRTCHandler {
	var se webrtc.SettingEngine
	se.LoggerFactory = f
	return &WebRTCHandler{
		audio:  a,
		events: events,
		api:    webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		log:    f.NewLogger("stream"),
		peers:  make(map[*webrtc.PeerConnection]context.CancelFunc),
	}
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, err := h.api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		http.Error(w, "create peer connection failed", http.StatusInternalServerError)
		return
	}

	audioTrack, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio",
		"cuesync",
	)
	if err != nil {
		pc.Close()
		http.Error(w, "create audio track failed", http.StatusInternalServerError)
		return
	}

	if _, err := pc.AddTrack(audioTrack); err != nil {
		pc.Close()
		http.Error(w, "add track failed", http.StatusInternalServerError)
		return
	}

	// The peer's lifetime is independent of this request.
	ctx, cancel := context.WithCancel(context.Background())

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != SyncChannelLabel {
			h.log.Debugf("ignoring data channel %q", dc.Label())
			return
		}
		dc.OnOpen(func() {
			go h.streamEvents(ctx, dc)
		})
	})

	if err := pc.SetRemoteDescription(offer); err != nil {
		cancel()
		pc.Close()
		http.Error(w, "set remote description failed", http.StatusBadRequest)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		cancel()
		pc.Close()
		http.Error(w, "create answer failed", http.StatusInternalServerError)
		return
	}

	if err := pc.SetLocalDescription(answer); err != nil {
		cancel()
		pc.Close()
		http.Error(w, "set local description failed", http.StatusInternalServerError)
		return
	}

	// Wait for ICE gathering to complete
	<-webrtc.GatheringCompletePromise(pc)

	h.mu.Lock()
	h.peers[pc] = cancel
	h.mu.Unlock()

	h.log.Infof("WebRTC peer connected (total: %d)", h.PeerCount())

	go h.streamAudio(ctx, audioTrack)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed ||
			s == webrtc.PeerConnectionStateDisconnected {
			if h.removePeer(pc) {
				pc.Close()
				h.log.Infof("WebRTC peer disconnected (remaining: %d)", h.PeerCount())
			}
		}
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

func (h *WebRTCHandler) streamAudio(ctx context.Context, track *webrtc.TrackLocalStaticSample) {
	listener := h.audio.Subscribe()
	defer h.audio.Unsubscribe(listener)

	enc, err := opus.NewEncoder(audio.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		h.log.Errorf("opus encoder: %v", err)
		return
	}
	enc.SetBitrate(128000)

	opusBuf := make([]byte, 4000)

	for {
		select {
		case <-ctx.Done():
			return
		case <-listener.Done():
			return
		case frame, ok := <-listener.C:
			if !ok {
				return
			}
			n, err := enc.Encode(frame, opusBuf)
			if err != nil {
				h.log.Warnf("opus encode: %v", err)
				continue
			}
			if err := track.WriteSample(media.Sample{
				Data:     opusBuf[:n],
				Duration: audio.FrameDuration,
			}); err != nil {
				return
			}
		}
	}
}

// eventSender is the part of a data channel streamEvents needs.
type eventSender interface {
	SendText(s string) error
}

func (h *WebRTCHandler) streamEvents(ctx context.Context, dc eventSender) {
	listener := h.events.Subscribe()
	defer h.events.Unsubscribe(listener)

	for {
		select {
		case <-ctx.Done():
			return
		case <-listener.Done():
			return
		case ev := <-listener.C:
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Warnf("encode event: %v", err)
				continue
			}
			if err := dc.SendText(string(data)); err != nil {
				h.log.Debugf("sync channel closed: %v", err)
				return
			}
		}
	}
}

// removePeer forgets pc and stops its streams. It reports whether pc was
// still registered.
func (h *WebRTCHandler) removePeer(pc *webrtc.PeerConnection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	cancel, ok := h.peers[pc]
	if !ok {
		return false
	}
	cancel()
	delete(h.peers, pc)
	return true
}
