// SPDX-License-Identifier: MIT
//
// Package pcm converts between signed 16-bit little-endian PCM byte streams
// and sample slices, and generates test tones.
package pcm

import (
	"encoding/binary"
	"math"
)

// BytesPerSample is the width of one 16-bit PCM sample.
const BytesPerSample = 2

// AppendLE appends samples to dst as 16-bit little-endian bytes.
func AppendLE(dst []byte, samples []int16) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}

// EncodeLE returns samples as 16-bit little-endian bytes.
func EncodeLE(samples []int16) []byte {
	return AppendLE(make([]byte, 0, len(samples)*BytesPerSample), samples)
}

// DecodeLE decodes complete samples from b. A trailing odd byte is ignored.
func DecodeLE(b []byte) []int16 {
	out := make([]int16, len(b)/BytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*BytesPerSample:]))
	}
	return out
}

// FromDepth rescales an integer sample of the given bit depth to 16 bits.
// 8-bit WAV data is unsigned and is re-centered first.
func FromDepth(v, bitDepth int) int16 {
	switch {
	case bitDepth == 8:
		return int16((v - 128) << 8)
	case bitDepth > 16:
		return int16(v >> (bitDepth - 16))
	case bitDepth < 16 && bitDepth > 0:
		return int16(v << (16 - bitDepth))
	default:
		return int16(v)
	}
}

// GenerateSine returns size samples of a sine at frequency Hz. amplitude is
// a fraction of full scale and is clamped to [0, 1].
func GenerateSine(size int, sampleRate, frequency, amplitude float64) []int16 {
	amplitude = math.Max(0, math.Min(1, amplitude))
	out := make([]int16, size)
	for i := range out {
		t := float64(i) / sampleRate
		out[i] = int16(math.Sin(2*math.Pi*frequency*t) * math.MaxInt16 * amplitude)
	}
	return out
}

// GenerateMix sums sines of equal share so the result never clips.
func GenerateMix(size int, sampleRate float64, frequencies ...float64) []int16 {
	out := make([]int16, size)
	if len(frequencies) == 0 {
		return out
	}
	share := 0.9 / float64(len(frequencies))
	for i := range out {
		t := float64(i) / sampleRate
		var v float64
		for _, f := range frequencies {
			v += math.Sin(2*math.Pi*f*t) * share
		}
		out[i] = int16(v * math.MaxInt16)
	}
	return out
}
