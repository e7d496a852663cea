package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/satindergrewal/cuesync/internal/analysis"
	"github.com/satindergrewal/cuesync/internal/audio"
	"github.com/satindergrewal/cuesync/internal/config"
	"github.com/satindergrewal/cuesync/internal/cue"
	"github.com/satindergrewal/cuesync/internal/engine"
	"github.com/satindergrewal/cuesync/internal/event"
	"github.com/satindergrewal/cuesync/internal/frame"
	"github.com/satindergrewal/cuesync/internal/stream"
)

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logs := cfg.LoggerFactory()
	log.Println("cuesync starting up...")

	// Cue sheet: file if configured, otherwise one kick and one beat
	sheet := cue.Default(cfg.BPM, cfg.Offset, cfg.KickThreshold, cfg.KickDecay)
	if cfg.CueSheet != "" {
		s, err := cue.LoadFile(cfg.CueSheet)
		if err != nil {
			log.Fatalf("Cue sheet: %v", err)
		}
		sheet = s
	}
	bpm, offset := sheet.Timing(cfg.BPM, cfg.Offset)

	analyzer, err := analysis.New(cfg.FFTSize, cfg.Smoothing)
	if err != nil {
		log.Fatalf("Analyzer: %v", err)
	}

	audioOut := stream.NewBroadcaster[[]int16](stream.FrameBufferSize)
	events := stream.NewBroadcaster[event.Event](stream.EventBufferSize)

	pipeline := audio.NewPipeline(cfg.SeekCrossfade, logs)
	pipeline.SetTap(func(f []int16) { analyzer.Write(f, audio.Channels) })

	loop := frame.NewLoop(cfg.FrameRate)
	eng, err := engine.New(engine.Config{
		BPM:      bpm,
		Offset:   offset,
		Analyzer: analyzer,
		Frames:   loop,
		OnError: func(err error) {
			log.Printf("Sync callback failed: %v", err)
		},
		OnEnded: func(e *engine.Engine) {
			pipeline.Pause()
			events.Publish(event.Event{Type: event.Transport, Label: "ended", Time: e.Elapsed()})
		},
		LoggerFactory: logs,
	})
	if err != nil {
		log.Fatalf("Engine: %v", err)
	}

	cues, err := sheet.Apply(eng, events, logs)
	if err != nil {
		log.Fatalf("Cue sheet: %v", err)
	}

	// Load the track, reporting progress while it downloads and decodes
	loader := audio.NewLoader(nil, logs)
	loadDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-loadDone:
				return
			case <-ticker.C:
				log.Printf("Loading %s: %.0f%%", cfg.AudioURI, loader.Progress()*100)
			}
		}
	}()
	err = eng.Load(ctx, loader, cfg.AudioURI)
	close(loadDone)
	if err != nil {
		log.Fatalf("%v", err)
	}
	pipeline.Load(eng.Buffer().(*audio.Track))
	log.Printf("Track ready: %s (%.1fs, %.1f bpm)", cfg.AudioURI, eng.Duration(), eng.BPM())

	go loop.Run(ctx)
	go pipeline.Run(ctx)
	go audioOut.Run(ctx, pipeline.Frames())

	if cfg.Speaker {
		spk, err := audio.OpenSpeaker(audioOut.Subscribe().C, logs)
		if err != nil {
			log.Printf("Speaker disabled: %v", err)
		} else {
			defer spk.Close()
		}
	}

	tr := &transport{loop: loop, eng: eng, pipeline: pipeline, cues: cues, events: events}
	webrtcHandler := stream.NewWebRTCHandler(audioOut, events, logs)

	// HTTP routes
	mux := http.NewServeMux()

	mux.Handle("/stream", stream.NewHTTPHandler(audioOut, logs))
	mux.Handle("/events", stream.NewEventsHandler(events, logs))
	mux.Handle("/offer", webrtcHandler)

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		st, err := tr.Status(r.Context())
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		writeJSON(w, map[string]any{
			"status":           st,
			"http_listeners":   audioOut.ListenerCount(),
			"event_listeners":  events.ListenerCount(),
			"webrtc_listeners": webrtcHandler.PeerCount(),
		})
	})

	mux.HandleFunc("/api/spectrum", func(w http.ResponseWriter, r *http.Request) {
		spectrum, waveform, err := tr.Snapshot(r.Context())
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		// []byte would marshal as base64
		writeJSON(w, map[string]any{"spectrum": toInts(spectrum), "waveform": toInts(waveform)})
	})

	mux.HandleFunc("/api/play", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Offset float64 `json:"offset"`
		}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request", http.StatusBadRequest)
				return
			}
		}
		if err := tr.Play(r.Context(), req.Offset); err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("/api/pause", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		if err := tr.Pause(r.Context()); err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("/api/seek", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Time *float64 `json:"time"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Time == nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		if err := tr.Seek(r.Context(), *req.Time); err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("/api/kick", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req kickUpdate
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		st, err := tr.UpdateKick(r.Context(), req)
		if err != nil {
			http.Error(w, err.Error(), httpStatus(err))
			return
		}
		writeJSON(w, map[string]any{"ok": true, "kick": st})
	})

	if cfg.Console {
		go runConsole(ctx, tr, cancel)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		server.Close()
	}()

	log.Printf("cuesync live on %s", addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("HTTP server error: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(v)
}

func toInts(b []byte) []int {
	out := make([]int, len(b))
	for i, v := range b {
		out[i] = int(v)
	}
	return out
}
