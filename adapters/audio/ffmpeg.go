package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpeg runs the ffmpeg binary over stdin/stdout pipes
type FFmpeg struct {
	path string
}

// NewFFmpeg creates a runner for the binary at path
func NewFFmpeg(path string) *FFmpeg {
	return &FFmpeg{path: path}
}

// DecodeToPCM decodes any container ffmpeg understands to upstream PCM
func (f *FFmpeg) DecodeToPCM(ctx context.Context, blob []byte) ([]byte, error) {
	return f.run(ctx, blob,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le", "-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(Channels), "-ar", strconv.Itoa(SampleRate),
		"pipe:1",
	)
}

// EncodeMP3 encodes upstream PCM to MP3
func (f *FFmpeg) EncodeMP3(ctx context.Context, pcm []byte) ([]byte, error) {
	return f.run(ctx, pcm,
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le", "-ac", strconv.Itoa(Channels), "-ar", strconv.Itoa(SampleRate),
		"-i", "pipe:0",
		"-f", "mp3", "-b:a", "64k",
		"pipe:1",
	)
}

func (f *FFmpeg) run(ctx context.Context, input []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, f.path, args...)
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
