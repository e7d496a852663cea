package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
)

// DecodeFile runs FFmpeg to decode an audio file to raw PCM int16 samples.
// Returns interleaved stereo samples at 48kHz.
func DecodeFile(ctx context.Context, path string) ([]int16, error) {
	return ffmpegDecode(ctx, path, nil)
}

// DecodeReader is DecodeFile for in-memory or streamed input.
func DecodeReader(ctx context.Context, r io.Reader) ([]int16, error) {
	return ffmpegDecode(ctx, "pipe:0", r)
}

func ffmpegDecode(ctx context.Context, input string, stdin io.Reader) ([]int16, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", input,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "48000",
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	)
	cmd.Stdin = stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 {
			return nil, fmt.Errorf("ffmpeg decode %s: %w: %s", input, err, msg)
		}
		return nil, fmt.Errorf("ffmpeg decode %s: %w", input, err)
	}

	// Ensure even byte count for int16 alignment
	if len(out)%2 != 0 {
		out = out[:len(out)-1]
	}

	samples := make([]int16, len(out)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(out[i*2 : i*2+2]))
	}

	return samples, nil
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
