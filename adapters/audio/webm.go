package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/at-wat/ebml-go"
	"github.com/at-wat/ebml-go/webm"
	"github.com/hraban/opus"
)

const (
	codecOpus = "A_OPUS"
	opusRate  = 48000
	// 120 ms at 48 kHz, the longest Opus frame
	maxOpusFrame = 5760
)

type webmDocument struct {
	Header  webm.EBMLHeader `ebml:"EBML"`
	Segment webm.Segment    `ebml:"Segment"`
}

// DecodeWebM demuxes the first Opus track of a WebM/Matroska file and decodes
// it to upstream PCM
func DecodeWebM(blob []byte) ([]byte, error) {
	var doc webmDocument
	if err := ebml.Unmarshal(bytes.NewReader(blob), &doc); err != nil && len(doc.Segment.Cluster) == 0 {
		return nil, fmt.Errorf("failed to parse webm: %w", err)
	}

	var track *webm.TrackEntry
	for i := range doc.Segment.Tracks.TrackEntry {
		if doc.Segment.Tracks.TrackEntry[i].CodecID == codecOpus {
			track = &doc.Segment.Tracks.TrackEntry[i]
			break
		}
	}
	if track == nil {
		return nil, fmt.Errorf("no opus track in webm")
	}

	channels := 1
	if track.Audio != nil && track.Audio.Channels > 0 {
		channels = int(track.Audio.Channels)
	}
	dec, err := opus.NewDecoder(opusRate, channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	frame := make([]int16, maxOpusFrame*channels)
	var samples []int16
	decode := func(b ebml.Block) error {
		if b.TrackNumber != track.TrackNumber {
			return nil
		}
		for _, packet := range b.Data {
			n, err := dec.Decode(packet, frame)
			if err != nil {
				return fmt.Errorf("failed to decode opus packet: %w", err)
			}
			samples = append(samples, frame[:n*channels]...)
		}
		return nil
	}

	for _, cluster := range doc.Segment.Cluster {
		for _, b := range cluster.SimpleBlock {
			if err := decode(b); err != nil {
				return nil, err
			}
		}
		for _, g := range cluster.BlockGroup {
			if err := decode(g.Block); err != nil {
				return nil, err
			}
		}
	}
	if skip := preSkip(track) * channels; skip >= len(samples) {
		samples = nil
	} else {
		samples = samples[skip:]
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("webm contained no audio")
	}

	mono := Downmix(samples, channels)
	return SamplesToBytes(Resample(mono, opusRate, SampleRate)), nil
}

// preSkip returns the encoder priming samples per channel to drop from the
// head of the decoded stream. CodecDelay is in nanoseconds; the OpusHead in
// CodecPrivate carries the same figure in 48 kHz samples.
func preSkip(track *webm.TrackEntry) int {
	if track.CodecDelay > 0 {
		return int(track.CodecDelay * opusRate / 1e9)
	}
	head := track.CodecPrivate
	if len(head) >= 12 && string(head[:8]) == "OpusHead" {
		return int(binary.LittleEndian.Uint16(head[10:12]))
	}
	return 0
}
