// SPDX-License-Identifier: MIT
/*
Package analysis turns audio frames into symbolic classifications:

	frame -> Analyzer (magnitude spectrum)
	      -> Smoother (mean of the last K spectra)
	      -> Classifier (dominant frequency, answer, color, signature, symbols)

The Classifier is a pure function of the smoothed spectrum and its static
configuration.
*/
package analysis

import (
	"fmt"
	"math"

	"tonecast/internal/config"
)

// Answer is the tri-state reading of the dominant frequency.
type Answer int

const (
	Maybe Answer = iota
	Yes
	No
)

// String returns "YES", "NO" or "MAYBE".
func (a Answer) String() string {
	switch a {
	case Yes:
		return "YES"
	case No:
		return "NO"
	default:
		return "MAYBE"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (a Answer) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// Classification is the symbolic reading of one smoothed spectrum.
type Classification struct {
	DominantFrequency float64 // Hz; NaN when the spectrum has no energy.
	PeakMagnitude     float64
	Answer            Answer
	Color             string
	Signature         SignatureKey
	Symbols           []string // Set only when symbol extraction is enabled.
}

// HasFrequency reports whether a dominant frequency was found.
func (c Classification) HasFrequency() bool {
	return !math.IsNaN(c.DominantFrequency)
}

// ClassifierConfig is the static configuration of a Classifier.
type ClassifierConfig struct {
	SampleRate      float64
	LowThresholdHz  float64
	HighThresholdHz float64
	MinMagnitude    float64
	ColorBands      []ColorBand
	DefaultColor    string
	NeutralColor    string
	Signature       SignatureWindows
	SymbolsEnabled  bool
	SymbolBands     []SymbolBand
	MinConfidence   float64
}

// ClassifierConfigFrom maps the analysis section of the configuration.
func ClassifierConfigFrom(a config.AnalysisConfig, sampleRate float64) ClassifierConfig {
	colors := make([]ColorBand, len(a.ColorBands))
	for i, b := range a.ColorBands {
		colors[i] = ColorBand{Label: b.Label, BelowHz: b.BelowHz}
	}
	symbols := make([]SymbolBand, len(a.SymbolBands))
	for i, b := range a.SymbolBands {
		symbols[i] = SymbolBand{Symbol: b.Symbol, LowHz: b.LowHz, HighHz: b.HighHz}
	}
	return ClassifierConfig{
		SampleRate:      sampleRate,
		LowThresholdHz:  a.LowThresholdHz,
		HighThresholdHz: a.HighThresholdHz,
		MinMagnitude:    a.MinMagnitude,
		ColorBands:      colors,
		DefaultColor:    a.DefaultColor,
		NeutralColor:    a.NeutralColor,
		Signature: SignatureWindows{
			LowMinHz:  a.Signature.LowMinHz,
			LowMaxHz:  a.Signature.LowMaxHz,
			HighMinHz: a.Signature.HighMinHz,
			HighMaxHz: a.Signature.HighMaxHz,
			Floor:     a.Signature.MagnitudeFloor,
		},
		SymbolsEnabled: a.SymbolsEnabled,
		SymbolBands:    symbols,
		MinConfidence:  a.MinConfidence,
	}
}

// Classifier maps smoothed spectra to classifications.
type Classifier struct {
	cfg ClassifierConfig
}

// NewClassifier validates cfg and returns a Classifier.
func NewClassifier(cfg ClassifierConfig) (*Classifier, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", cfg.SampleRate)
	}
	if cfg.LowThresholdHz >= cfg.HighThresholdHz {
		return nil, fmt.Errorf("low threshold %.1f Hz must be below high threshold %.1f Hz", cfg.LowThresholdHz, cfg.HighThresholdHz)
	}
	return &Classifier{cfg: cfg}, nil
}

// Classify reads the spectrum over bins 1..N/2 where N is its length.
func (c *Classifier) Classify(spectrum []float64) Classification {
	out := Classification{
		DominantFrequency: math.NaN(),
		Answer:            Maybe,
	}

	if n := len(spectrum); n >= 2 {
		bin := FindPeakBin(spectrum, 1, n/2)
		if spectrum[bin] > 0 {
			out.PeakMagnitude = spectrum[bin]
			out.DominantFrequency = BinFrequency(bin, c.cfg.SampleRate, n)
		}
	}

	if out.HasFrequency() && out.PeakMagnitude >= c.cfg.MinMagnitude {
		switch f := out.DominantFrequency; {
		case f > c.cfg.HighThresholdHz:
			out.Answer = Yes
		case f < c.cfg.LowThresholdHz:
			out.Answer = No
		}
	}

	out.Color = colorFor(out.DominantFrequency, c.cfg.ColorBands, c.cfg.DefaultColor, c.cfg.NeutralColor)
	out.Signature = signatureFor(spectrum, c.cfg.SampleRate, c.cfg.Signature)
	if c.cfg.SymbolsEnabled {
		out.Symbols = symbolsFor(spectrum, out.PeakMagnitude, c.cfg.SampleRate, c.cfg.SymbolBands, c.cfg.MinConfidence)
	}
	return out
}

// FindPeakBin returns the index of the largest magnitude in
// [startBin, endBin]. Ties resolve to the lowest index.
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	startBin = max(startBin, 0)
	endBin = min(endBin, len(magnitudes)-1)
	if startBin > endBin {
		return min(startBin, len(magnitudes)-1)
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}
