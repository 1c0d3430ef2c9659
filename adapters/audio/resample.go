package audio

import "encoding/binary"

// Downmix averages interleaved channels to mono
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += int(samples[i*channels+c])
		}
		out[i] = int16(sum / channels)
	}
	return out
}

// Resample converts mono samples between rates with linear interpolation.
// The output holds exactly len(in)*to/from samples.
func Resample(in []int16, from, to int) []int16 {
	if from == to || len(in) == 0 {
		return in
	}
	n := int(int64(len(in)) * int64(to) / int64(from))
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		num := int64(i) * int64(from)
		idx := int(num / int64(to))
		frac := float64(num%int64(to)) / float64(to)
		a := float64(in[idx])
		b := a
		if idx+1 < len(in) {
			b = float64(in[idx+1])
		}
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}

// SamplesToBytes encodes samples as s16le
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToSamples decodes s16le bytes. A trailing odd byte is dropped.
func BytesToSamples(b []byte) []int16 {
	out := make([]int16, len(b)/BytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}
