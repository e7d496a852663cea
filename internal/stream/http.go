package stream

import (
	"context"
	"io"
	"net/http"
	"os/exec"
	"strconv"

	"github.com/pion/logging"
	"github.com/satindergrewal/cuesync/internal/audio"
)

// FrameBufferSize is ~3 seconds of 20ms frames.
const FrameBufferSize = 150

// DefaultMP3Bitrate is the encoder bitrate in kbit/s.
const DefaultMP3Bitrate = 192

// HTTPHandler serves the pipeline output as a chunked MP3 stream. Each
// connection runs its own ffmpeg encoder fed from a broadcaster listener.
type HTTPHandler struct {
	broadcaster *Broadcaster[[]int16]
	log         logging.LeveledLogger

	// Bitrate in kbit/s; DefaultMP3Bitrate when zero.
	Bitrate int
}

// NewHTTPHandler creates an HTTP stream handler.
func NewHTTPHandler(b *Broadcaster[[]int16], f logging.LoggerFactory) *HTTPHandler {
	return &HTTPHandler{broadcaster: b, log: f.NewLogger("stream"), Bitrate: DefaultMP3Bitrate}
}

// mp3Args builds the ffmpeg command line that turns raw pipeline PCM on
// stdin into MP3 on stdout.
func mp3Args(kbps int) []string {
	if kbps <= 0 {
		kbps = DefaultMP3Bitrate
	}
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(audio.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", strconv.Itoa(kbps) + "k",
		"-f", "mp3",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	}
}

// streamHeaders prepares w for an open-ended response.
func streamHeaders(w http.ResponseWriter, contentType string) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "no-cache, no-store")
	h.Set("Access-Control-Allow-Origin", "*")
	return flusher, true
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := streamHeaders(w, "audio/mpeg")
	if !ok {
		return
	}
	w.Header().Set("Connection", "close")
	w.Header().Set("ICY-Name", "cuesync")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", mp3Args(h.Bitrate)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		h.log.Errorf("stdin pipe: %v", err)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.log.Errorf("stdout pipe: %v", err)
		return
	}
	if err := cmd.Start(); err != nil {
		h.log.Errorf("ffmpeg start: %v", err)
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)
	h.log.Infof("HTTP listener connected (total: %d)", h.broadcaster.ListenerCount())
	defer h.log.Info("HTTP listener disconnected")

	go func() {
		defer stdin.Close()
		feedPCM(ctx, listener, stdin)
	}()

	if err := copyFlushing(w, flusher, stdout); err != nil {
		h.log.Warnf("mp3 stream: %v", err)
	}
	cmd.Wait()
}

// feedPCM writes every frame the listener receives to dst. It returns when
// the listener goes away or dst stops accepting writes.
func feedPCM(ctx context.Context, l *Listener[[]int16], dst io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.Done():
			return
		case frame, ok := <-l.C:
			if !ok {
				return
			}
			if _, err := dst.Write(audio.SamplesToBytes(frame)); err != nil {
				return
			}
		}
	}
}

// copyFlushing copies src to w, flushing after every chunk. A clean EOF or
// a client disconnect returns nil.
func copyFlushing(w io.Writer, flusher http.Flusher, src io.Reader) error {
	buf := make([]byte, 4096)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return nil
			}
			flusher.Flush()
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
