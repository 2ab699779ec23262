// SPDX-License-Identifier: MIT
//
// Package message composes the human-readable message for a classification
// and defines the JSON shape shared by every outbound surface.
package message

import (
	"fmt"
	"math"
	"strings"
	"time"

	"tonecast/internal/analysis"
)

// Message is the unit delivered to sinks. Text is never empty.
type Message struct {
	Text            string
	Timestamp       time.Time
	Classification  analysis.Classification
	SignaturePhrase string
}

// Synthesizer builds messages from classifications. It is deterministic:
// the same classification and timestamp always produce the same message.
type Synthesizer struct {
	dict *Dictionary
}

// NewSynthesizer returns a synthesizer resolving signature phrases in dict.
// A nil dict uses DefaultDictionary.
func NewSynthesizer(dict *Dictionary) *Synthesizer {
	if dict == nil {
		dict = DefaultDictionary()
	}
	return &Synthesizer{dict: dict}
}

var answerClauses = map[analysis.Answer]string{
	analysis.Yes:   "The signal says yes.",
	analysis.No:    "The signal says no.",
	analysis.Maybe: "The signal is uncertain.",
}

// Synthesize composes the message text from the answer, the color, the
// peak and, when the signature resolves, its phrase.
func (s *Synthesizer) Synthesize(c analysis.Classification, at time.Time) Message {
	parts := []string{
		answerClauses[c.Answer],
		fmt.Sprintf("Its color is %s.", c.Color),
	}
	if c.HasFrequency() {
		parts = append(parts, fmt.Sprintf("Peak at %.1f Hz with magnitude %.0f.", c.DominantFrequency, c.PeakMagnitude))
	} else {
		parts = append(parts, fmt.Sprintf("No dominant peak (magnitude %.0f).", c.PeakMagnitude))
	}

	phrase := s.dict.Phrase(c.Signature)
	if phrase != "" {
		parts = append(parts, phrase)
	}

	return Message{
		Text:            strings.Join(parts, " "),
		Timestamp:       at.UTC(),
		Classification:  c,
		SignaturePhrase: phrase,
	}
}

// FormatFrequency renders a frequency with one decimal, or "n/a".
func FormatFrequency(f float64) string {
	if math.IsNaN(f) {
		return "n/a"
	}
	return fmt.Sprintf("%.1f Hz", f)
}

// Event is the JSON document published on live events and webhooks.
type Event struct {
	Timestamp    string   `json:"timestamp"`
	Message      string   `json:"message"`
	Frequency    *float64 `json:"frequency"`
	Magnitude    float64  `json:"magnitude"`
	SignatureKey string   `json:"signatureKey,omitempty"`
	Symbols      []string `json:"symbols,omitempty"`
}

// TimestampFormat is the ISO-8601 layout used on every surface.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Event returns the outbound JSON document for m. The signature key is
// omitted when it is zero; symbols only appear when extraction is enabled.
func (m Message) Event() Event {
	c := m.Classification
	ev := Event{
		Timestamp: m.Timestamp.UTC().Format(TimestampFormat),
		Message:   m.Text,
		Frequency: m.Frequency(),
		Magnitude: math.Round(c.PeakMagnitude*100) / 100,
		Symbols:   c.Symbols,
	}
	if !c.Signature.IsZero() {
		ev.SignatureKey = c.Signature.String()
	}
	return ev
}

// Frequency returns the dominant frequency rounded to 0.1 Hz, or nil when
// it is undefined.
func (m Message) Frequency() *float64 {
	f := m.Classification.DominantFrequency
	if math.IsNaN(f) {
		return nil
	}
	r := math.Round(f*10) / 10
	return &r
}
