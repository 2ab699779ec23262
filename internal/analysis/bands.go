// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"slices"
)

// ColorBand labels frequencies strictly below BelowHz.
type ColorBand struct {
	Label   string
	BelowHz float64
}

// SymbolBand maps frequencies in [LowHz, HighHz) to Symbol.
type SymbolBand struct {
	Symbol string
	LowHz  float64
	HighHz float64
}

// colorFor returns the label of the first band above f, the default label
// past the last band, or the neutral label when f is undefined.
func colorFor(f float64, bands []ColorBand, defaultLabel, neutral string) string {
	if math.IsNaN(f) {
		return neutral
	}
	for _, b := range bands {
		if f < b.BelowHz {
			return b.Label
		}
	}
	return defaultLabel
}

// symbolsFor collects the symbols of every band containing a bin whose
// magnitude reaches minRatio of the peak. The result is sorted and free of
// duplicates; nil when nothing qualifies.
func symbolsFor(spectrum []float64, peak float64, sampleRate float64, bands []SymbolBand, minRatio float64) []string {
	if peak <= 0 || len(bands) == 0 {
		return nil
	}
	n := len(spectrum)
	seen := make(map[string]struct{}, len(bands))
	for i := 1; i <= n/2; i++ {
		if spectrum[i]/peak < minRatio {
			continue
		}
		f := BinFrequency(i, sampleRate, n)
		for _, b := range bands {
			if f >= b.LowHz && f < b.HighHz {
				seen[b.Symbol] = struct{}{}
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}
