// Package audio converts client audio to upstream PCM and wraps upstream PCM
// deltas into playable containers.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Upstream PCM parameters: signed 16-bit little-endian, 24 kHz, mono
const (
	SampleRate     = 24000
	Channels       = 1
	BytesPerSample = 2
)

// ErrUndecodable is returned when inbound audio cannot be decoded
var ErrUndecodable = errors.New("audio: undecodable input")

// Format is a detected container format
type Format string

const (
	FormatWAV     Format = "wav"
	FormatMP4     Format = "mp4"
	FormatWebM    Format = "webm"
	FormatUnknown Format = "unknown"
)

// Output formats for reassembled responses
const (
	OutputWAV = "wav"
	OutputMP3 = "mp3"
)

// Sniff detects the container from magic bytes, falling back to the hint
func Sniff(blob []byte, hint string) Format {
	switch {
	case len(blob) >= 12 && bytes.Equal(blob[0:4], []byte("RIFF")) && bytes.Equal(blob[8:12], []byte("WAVE")):
		return FormatWAV
	case len(blob) >= 8 && bytes.Equal(blob[4:8], []byte("ftyp")):
		return FormatMP4
	case len(blob) >= 4 && bytes.Equal(blob[0:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return FormatWebM
	}

	switch strings.ToLower(strings.TrimPrefix(hint, ".")) {
	case "wav", "wave", "audio/wav", "audio/x-wav":
		return FormatWAV
	case "mp4", "m4a", "aac", "audio/mp4", "audio/aac", "audio/m4a":
		return FormatMP4
	case "webm", "mkv", "matroska", "audio/webm":
		return FormatWebM
	}
	return FormatUnknown
}

// Codec decodes inbound audio and reassembles outbound responses. Formats
// without a native decoder go through ffmpeg.
type Codec struct {
	ffmpeg *FFmpeg
	logger *zap.Logger
}

// NewCodec creates a codec. An empty ffmpegPath disables the generic decoder
// and MP3 output.
func NewCodec(ffmpegPath string, logger *zap.Logger) *Codec {
	var ff *FFmpeg
	if ffmpegPath != "" {
		ff = NewFFmpeg(ffmpegPath)
	}
	return &Codec{ffmpeg: ff, logger: logger}
}

// Decode transcodes a client blob to upstream PCM. Every failure wraps
// ErrUndecodable.
func (c *Codec) Decode(ctx context.Context, blob []byte, hint string) ([]byte, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrUndecodable)
	}

	format := Sniff(blob, hint)
	var pcm []byte
	var err error
	switch format {
	case FormatWAV:
		pcm, err = DecodeWAV(blob)
	case FormatWebM:
		pcm, err = DecodeWebM(blob)
		if err != nil && c.ffmpeg != nil {
			c.logger.Warn("Native WebM decode failed, trying ffmpeg", zap.Error(err))
			pcm, err = c.ffmpeg.DecodeToPCM(ctx, blob)
		}
	default:
		if c.ffmpeg == nil {
			return nil, fmt.Errorf("%w: no decoder for %s", ErrUndecodable, format)
		}
		pcm, err = c.ffmpeg.DecodeToPCM(ctx, blob)
	}
	if err != nil {
		if errors.Is(err, ErrUndecodable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrUndecodable, format, err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("%w: %s produced no samples", ErrUndecodable, format)
	}
	return pcm, nil
}

// Reassemble concatenates PCM deltas into one RIFF/WAVE file
func (c *Codec) Reassemble(fragments [][]byte) []byte {
	return EncodeWAV(Concat(fragments), SampleRate, Channels)
}

// ReassembleAs builds the response container in the requested format and
// reports the format actually produced. MP3 falls back to WAV.
func (c *Codec) ReassembleAs(ctx context.Context, fragments [][]byte, format string) ([]byte, string) {
	if format == OutputMP3 && c.ffmpeg != nil {
		mp3, err := c.ffmpeg.EncodeMP3(ctx, Concat(fragments))
		if err == nil {
			return mp3, OutputMP3
		}
		c.logger.Warn("MP3 encoding failed, falling back to WAV", zap.Error(err))
	}
	return c.Reassemble(fragments), OutputWAV
}

// Concat joins PCM fragments in order
func Concat(fragments [][]byte) []byte {
	n := 0
	for _, f := range fragments {
		n += len(f)
	}
	out := make([]byte, 0, n)
	for _, f := range fragments {
		out = append(out, f...)
	}
	return out
}
