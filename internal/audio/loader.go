package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strings"
	"sync/atomic"

	"github.com/pion/logging"
	"github.com/satindergrewal/cuesync/internal/engine"
)

// Loader fetches a track from a file path or http(s) URL and decodes it.
// WAV is decoded in-process; anything else goes through FFmpeg.
type Loader struct {
	client *http.Client
	log    logging.LeveledLogger

	// progress is the float64 bits of the current load fraction.
	progress atomic.Uint64
}

// NewLoader creates a loader. A nil client uses http.DefaultClient.
func NewLoader(client *http.Client, f logging.LoggerFactory) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{client: client, log: f.NewLogger("loader")}
}

// Progress reports the fraction of the current load completed. Reading
// counts for 90%; decoding finishes it.
func (l *Loader) Progress() float64 {
	return math.Float64frombits(l.progress.Load())
}

func (l *Loader) setProgress(p float64) {
	for {
		old := l.progress.Load()
		if p <= math.Float64frombits(old) {
			return
		}
		if l.progress.CompareAndSwap(old, math.Float64bits(p)) {
			return
		}
	}
}

// Load reads and decodes uri. It satisfies engine.AudioLoader.
func (l *Loader) Load(ctx context.Context, uri string) (engine.Buffer, error) {
	l.progress.Store(0)

	rc, size, err := l.open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(&progressReader{r: rc, total: size, report: func(p float64) { l.setProgress(0.9 * p) }})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}
	l.setProgress(0.9)
	l.log.Debugf("read %s: %d bytes", uri, len(data))

	var samples []int16
	if IsWAV(data) {
		samples, err = DecodeWAV(data)
	} else {
		l.log.Debugf("%s is not WAV, decoding with ffmpeg", uri)
		samples, err = DecodeReader(ctx, bytes.NewReader(data))
	}
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%s: no audio samples", uri)
	}
	l.setProgress(1)

	t := &Track{URI: uri, Samples: samples}
	l.log.Infof("decoded %s: %.2fs", uri, t.Duration())
	return t, nil
}

func (l *Loader) open(ctx context.Context, uri string) (io.ReadCloser, int64, error) {
	if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("build request: %w", err)
		}
		resp, err := l.client.Do(req)
		if err != nil {
			return nil, 0, fmt.Errorf("fetch %s: %w", uri, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, 0, fmt.Errorf("fetch %s: status %d", uri, resp.StatusCode)
		}
		return resp.Body, resp.ContentLength, nil
	}

	f, err := os.Open(uri)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// progressReader reports read/total after every Read. An unknown total
// (<= 0) reports nothing until the read completes.
type progressReader struct {
	r      io.Reader
	total  int64
	read   int64
	report func(float64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.total > 0 {
		p.report(math.Min(1, float64(p.read)/float64(p.total)))
	}
	return n, err
}
