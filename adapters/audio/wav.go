package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-audio/wav"
)

const wavHeaderSize = 44

// EncodeWAV wraps s16le PCM into a canonical RIFF/WAVE container
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	out := make([]byte, wavHeaderSize+len(pcm))
	blockAlign := channels * BytesPerSample

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)
	binary.LittleEndian.PutUint16(out[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(out[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], 16)
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[44:], pcm)
	return out
}

// WAVData returns the payload of the data chunk of a RIFF/WAVE file
func WAVData(file []byte) ([]byte, error) {
	if len(file) < 12 || string(file[0:4]) != "RIFF" || string(file[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}
	pos := 12
	for pos+8 <= len(file) {
		id := string(file[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(file[pos+4 : pos+8]))
		start := pos + 8
		if id == "data" {
			end := start + size
			if end > len(file) {
				end = len(file)
			}
			return file[start:end], nil
		}
		pos = start + size + size%2
	}
	return nil, fmt.Errorf("data chunk not found")
}

// DecodeWAV reads a WAVE file of any supported PCM layout and converts it to
// upstream PCM
func DecodeWAV(blob []byte) ([]byte, error) {
	d := wav.NewDecoder(bytes.NewReader(blob))
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid wav file", ErrUndecodable)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read wav samples: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("%w: wav without format", ErrUndecodable)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = toInt16(v, int(d.BitDepth))
	}
	mono := Downmix(samples, buf.Format.NumChannels)
	return SamplesToBytes(Resample(mono, buf.Format.SampleRate, SampleRate)), nil
}

func toInt16(v, bitDepth int) int16 {
	switch bitDepth {
	case 8:
		return int16((v - 128) << 8)
	case 24:
		return int16(v >> 8)
	case 32:
		return int16(v >> 16)
	default:
		return int16(v)
	}
}
