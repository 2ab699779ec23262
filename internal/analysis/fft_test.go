// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"math"
	"testing"

	"tonecast/pkg/pcm"
)

const (
	testSize       = 1024
	testSampleRate = 48000.0
)

func sineFrame(freq float64) []float64 {
	raw := pcm.GenerateSine(testSize, testSampleRate, freq, 0.9)
	out := make([]float64, len(raw))
	for i, s := range raw {
		out[i] = float64(s) / 32768
	}
	return out
}

func TestNewAnalyzerValidation(t *testing.T) {
	if _, err := NewAnalyzer(1000, testSampleRate); err == nil {
		t.Error("expected error for non power of two size")
	}
	if _, err := NewAnalyzer(testSize, 0); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestAnalyzeLengthAndSymmetry(t *testing.T) {
	a, err := NewAnalyzer(testSize, testSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	mags, err := a.Analyze(sineFrame(1500))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(mags) != testSize {
		t.Fatalf("spectrum length %d, want %d", len(mags), testSize)
	}
	for k := 1; k < testSize/2; k++ {
		if mags[k] != mags[testSize-k] {
			t.Fatalf("bin %d not mirrored: %v vs %v", k, mags[k], mags[testSize-k])
		}
	}
}

func TestAnalyzePeakAtToneBin(t *testing.T) {
	a, _ := NewAnalyzer(testSize, testSampleRate)
	tests := []struct {
		freq float64
		bin  int
	}{
		{1500, 32},
		{375, 8},
		{3000, 64},
	}

	for _, tt := range tests {
		mags, err := a.Analyze(sineFrame(tt.freq))
		if err != nil {
			t.Fatal(err)
		}
		peak := FindPeakBin(mags, 1, testSize/2)
		if peak != tt.bin {
			t.Errorf("%.0f Hz: peak bin %d, want %d", tt.freq, peak, tt.bin)
		}
		if f := a.FrequencyForBin(peak); math.Abs(f-tt.freq) > 1e-9 {
			t.Errorf("FrequencyForBin(%d) = %f, want %f", peak, f, tt.freq)
		}
	}
}

func TestAnalyzeRejectsWrongLength(t *testing.T) {
	a, _ := NewAnalyzer(testSize, testSampleRate)
	_, err := a.Analyze(make([]float64, testSize-1))
	if !errors.Is(err, ErrFrameLength) {
		t.Errorf("expected ErrFrameLength, got %v", err)
	}
}

func TestAnalyzeSilenceIsZero(t *testing.T) {
	a, _ := NewAnalyzer(testSize, testSampleRate)
	mags, _ := a.Analyze(make([]float64, testSize))
	for i, m := range mags {
		if m != 0 {
			t.Fatalf("bin %d = %v, want 0", i, m)
		}
	}
}

func BenchmarkAnalyze(b *testing.B) {
	a, _ := NewAnalyzer(testSize, testSampleRate)
	frame := sineFrame(440)
	b.ReportAllocs()
	for b.Loop() {
		_, _ = a.Analyze(frame)
	}
}
