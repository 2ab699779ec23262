// SPDX-License-Identifier: MIT
package pcm

import (
	"bytes"
	"math"
	"testing"
)

func TestEncodeLE(t *testing.T) {
	got := EncodeLE([]int16{1, -1, 0x1234})
	want := []byte{0x01, 0x00, 0xFF, 0xFF, 0x34, 0x12}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeLE = % x, want % x", got, want)
	}
}

func TestDecodeLEIgnoresOddTail(t *testing.T) {
	got := DecodeLE([]byte{0x00, 0x80, 0xFF, 0x7F, 0x01})
	if len(got) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(got))
	}
	if got[0] != math.MinInt16 || got[1] != math.MaxInt16 {
		t.Errorf("unexpected samples %v", got)
	}
}

func TestFromDepth(t *testing.T) {
	tests := []struct {
		name  string
		v     int
		depth int
		want  int16
	}{
		{"8-bit midpoint", 128, 8, 0},
		{"8-bit max", 255, 8, 127 << 8},
		{"16-bit passthrough", -1234, 16, -1234},
		{"24-bit shifted", 0x7FFFFF, 24, 0x7FFF},
		{"32-bit shifted", -0x80000000, 32, math.MinInt16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromDepth(tt.v, tt.depth); got != tt.want {
				t.Errorf("FromDepth(%d, %d) = %d, want %d", tt.v, tt.depth, got, tt.want)
			}
		})
	}
}

func TestGenerateSine(t *testing.T) {
	samples := GenerateSine(480, 48000, 100, 0.5)
	var peak int16
	for _, s := range samples {
		if s > peak {
			peak = s
		}
	}
	if peak > math.MaxInt16/2 || peak < math.MaxInt16/2-10 {
		t.Errorf("peak %d not near half scale", peak)
	}
	if samples[0] != 0 {
		t.Errorf("sine should start at zero, got %d", samples[0])
	}
}

func TestGenerateMixStaysInRange(t *testing.T) {
	samples := GenerateMix(4096, 44100, 440, 880, 1320)
	for i, s := range samples {
		if s == math.MinInt16 {
			t.Fatalf("sample %d clipped", i)
		}
	}
	if len(GenerateMix(8, 44100)) != 8 {
		t.Error("empty mix should still return size samples")
	}
}
