// SPDX-License-Identifier: MIT
package analysis

import "fmt"

// Smoother averages the most recent spectra elementwise. Until the window
// is full it averages whatever it holds. A Smoother is owned by one
// goroutine.
type Smoother struct {
	capacity int
	window   [][]float64
}

// NewSmoother returns a smoother over the last k spectra.
func NewSmoother(k int) (*Smoother, error) {
	if k < 1 {
		return nil, fmt.Errorf("smoothing window must be at least 1, got %d", k)
	}
	return &Smoother{capacity: k, window: make([][]float64, 0, k)}, nil
}

// Smooth adds spectrum to the window, evicting the oldest entry when full,
// and returns the elementwise mean as a new slice. A spectrum whose length
// differs from the window contents restarts the window.
func (s *Smoother) Smooth(spectrum []float64) []float64 {
	if len(s.window) > 0 && len(s.window[0]) != len(spectrum) {
		s.Reset()
	}

	entry := append([]float64(nil), spectrum...)
	if len(s.window) == s.capacity {
		copy(s.window, s.window[1:])
		s.window[len(s.window)-1] = entry
	} else {
		s.window = append(s.window, entry)
	}

	out := make([]float64, len(spectrum))
	for _, w := range s.window {
		for i, v := range w {
			out[i] += v
		}
	}
	n := float64(len(s.window))
	for i := range out {
		out[i] /= n
	}
	return out
}

// Len returns the number of spectra currently held.
func (s *Smoother) Len() int { return len(s.window) }

// Reset empties the window.
func (s *Smoother) Reset() {
	clear(s.window)
	s.window = s.window[:0]
}
