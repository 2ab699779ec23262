// SPDX-License-Identifier: MIT
package message

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"tonecast/internal/analysis"

	"gopkg.in/yaml.v3"
)

// Dictionary maps signature keys to phrases. The zero key never resolves;
// unknown non-zero keys resolve to a generic phrase naming the key.
type Dictionary struct {
	phrases map[analysis.SignatureKey]string
}

var defaultPhrases = map[string]string{
	"1R0B": "A single low chime.",
	"0R1B": "A single high chime.",
	"1R1B": "Low and high voices agree.",
	"2R0B": "Two low tones walk together.",
	"0R2B": "Two bright tones call out.",
	"2R1B": "The chorus leans low.",
	"1R2B": "The chorus leans high.",
	"2R2B": "A full chord answers.",
}

// DefaultDictionary returns the built-in phrase set.
func DefaultDictionary() *Dictionary {
	d, err := NewDictionary(defaultPhrases)
	if err != nil {
		panic(err)
	}
	return d
}

// NewDictionary builds a dictionary from "{low}R{high}B" keyed entries.
func NewDictionary(entries map[string]string) (*Dictionary, error) {
	d := &Dictionary{phrases: make(map[analysis.SignatureKey]string, len(entries))}
	for raw, phrase := range entries {
		key, err := analysis.ParseSignatureKey(raw)
		if err != nil {
			return nil, err
		}
		if err := d.Set(key, phrase); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// LoadDictionary reads a YAML mapping of signature key to phrase.
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dictionary: %w", err)
	}
	var entries map[string]string
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse dictionary: %w", err)
	}
	d, err := NewDictionary(entries)
	if err != nil {
		return nil, fmt.Errorf("invalid dictionary %s: %w", path, err)
	}
	return d, nil
}

// SaveDictionary writes d as YAML.
func SaveDictionary(path string, d *Dictionary) error {
	data, err := yaml.Marshal(d.Entries())
	if err != nil {
		return fmt.Errorf("failed to encode dictionary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write dictionary: %w", err)
	}
	return nil
}

// Phrase resolves key.
func (d *Dictionary) Phrase(key analysis.SignatureKey) string {
	if key.IsZero() {
		return ""
	}
	if p, ok := d.phrases[key]; ok {
		return p
	}
	return fmt.Sprintf("Signature %s detected.", key)
}

// Lookup reports the configured phrase for key without the fallback.
func (d *Dictionary) Lookup(key analysis.SignatureKey) (string, bool) {
	p, ok := d.phrases[key]
	return p, ok
}

// Set adds or replaces the phrase for a non-zero key. Phrases must be a
// single non-empty line, since every message is one log record.
func (d *Dictionary) Set(key analysis.SignatureKey, phrase string) error {
	if key.IsZero() {
		return fmt.Errorf("signature %s cannot carry a phrase", key)
	}
	if phrase == "" {
		return fmt.Errorf("signature %s has an empty phrase", key)
	}
	if strings.ContainsAny(phrase, "\r\n") {
		return fmt.Errorf("signature %s phrase spans more than one line", key)
	}
	d.phrases[key] = phrase
	return nil
}

// Entries returns the dictionary keyed by the string form of each key.
func (d *Dictionary) Entries() map[string]string {
	out := make(map[string]string, len(d.phrases))
	for k, v := range d.phrases {
		out[k.String()] = v
	}
	return out
}

// Keys returns the configured keys ordered by (Low, High).
func (d *Dictionary) Keys() []analysis.SignatureKey {
	keys := make([]analysis.SignatureKey, 0, len(d.phrases))
	for k := range d.phrases {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b analysis.SignatureKey) int {
		if a.Low != b.Low {
			return a.Low - b.Low
		}
		return a.High - b.High
	})
	return keys
}
