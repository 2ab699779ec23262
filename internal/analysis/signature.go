// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"strconv"
	"strings"
)

// SignatureKey counts the strong bins in the low and high signature
// windows. Its string form is "{low}R{high}B".
type SignatureKey struct {
	Low  int
	High int
}

// String renders the key, e.g. "2R1B".
func (k SignatureKey) String() string {
	return fmt.Sprintf("%dR%dB", k.Low, k.High)
}

// IsZero reports whether no bin crossed the floor in either window.
func (k SignatureKey) IsZero() bool { return k.Low == 0 && k.High == 0 }

// MarshalText implements encoding.TextMarshaler.
func (k SignatureKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *SignatureKey) UnmarshalText(b []byte) error {
	parsed, err := ParseSignatureKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseSignatureKey parses the "{low}R{high}B" form.
func ParseSignatureKey(s string) (SignatureKey, error) {
	s = strings.TrimSpace(s)
	r := strings.IndexByte(s, 'R')
	if r <= 0 || !strings.HasSuffix(s, "B") || r >= len(s)-1 {
		return SignatureKey{}, fmt.Errorf("invalid signature key %q", s)
	}
	low, err := strconv.Atoi(s[:r])
	if err != nil || low < 0 {
		return SignatureKey{}, fmt.Errorf("invalid signature key %q", s)
	}
	high, err := strconv.Atoi(s[r+1 : len(s)-1])
	if err != nil || high < 0 {
		return SignatureKey{}, fmt.Errorf("invalid signature key %q", s)
	}
	return SignatureKey{Low: low, High: high}, nil
}

// SignatureWindows are the inclusive frequency ranges counted by the
// signature and the absolute magnitude a bin must exceed to count.
type SignatureWindows struct {
	LowMinHz  float64
	LowMaxHz  float64
	HighMinHz float64
	HighMaxHz float64
	Floor     float64
}

func signatureFor(spectrum []float64, sampleRate float64, w SignatureWindows) SignatureKey {
	var key SignatureKey
	n := len(spectrum)
	for i := 1; i <= n/2; i++ {
		if spectrum[i] <= w.Floor {
			continue
		}
		f := BinFrequency(i, sampleRate, n)
		switch {
		case f >= w.LowMinHz && f <= w.LowMaxHz:
			key.Low++
		case f >= w.HighMinHz && f <= w.HighMaxHz:
			key.High++
		}
	}
	return key
}
