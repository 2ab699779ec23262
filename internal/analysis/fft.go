// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math/cmplx"

	"tonecast/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

// ErrFrameLength is returned when a frame does not match the analyzer size.
var ErrFrameLength = errors.New("frame length does not match analyzer size")

// Analyzer computes magnitude spectra of fixed-size frames. No window is
// applied. Reusable buffers make an Analyzer unsafe for concurrent use.
type Analyzer struct {
	fft        *fourier.FFT
	size       int
	sampleRate float64
	coeffs     []complex128
}

// NewAnalyzer returns an analyzer for frames of size samples taken at
// sampleRate Hz. size must be a power of two.
func NewAnalyzer(size int, sampleRate float64) (*Analyzer, error) {
	if !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", size)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}
	return &Analyzer{
		fft:        fourier.NewFFT(size),
		size:       size,
		sampleRate: sampleRate,
		coeffs:     make([]complex128, size/2+1),
	}, nil
}

// Size returns the frame length the analyzer accepts.
func (a *Analyzer) Size() int { return a.size }

// Analyze returns a new magnitude spectrum with one value per input sample.
// The real FFT yields bins 0..N/2; the remaining bins mirror them, matching
// the magnitude of a full complex transform of real input.
func (a *Analyzer) Analyze(samples []float64) ([]float64, error) {
	if len(samples) != a.size {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFrameLength, len(samples), a.size)
	}

	a.fft.Coefficients(a.coeffs, samples)

	mags := make([]float64, a.size)
	for i, c := range a.coeffs {
		mags[i] = cmplx.Abs(c)
	}
	for k := 1; k < a.size/2; k++ {
		mags[a.size-k] = mags[k]
	}
	return mags, nil
}

// FrequencyForBin returns the frequency in Hz represented by bin i.
func (a *Analyzer) FrequencyForBin(i int) float64 {
	return BinFrequency(i, a.sampleRate, a.size)
}

// BinFrequency returns i * sampleRate / n.
func BinFrequency(i int, sampleRate float64, n int) float64 {
	return float64(i) * (sampleRate / float64(n))
}
