// SPDX-License-Identifier: MIT
//
// Package udp streams messages as compact binary datagrams.
package udp

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"tonecast/internal/analysis"
	applog "tonecast/internal/log"
	"tonecast/internal/message"
)

/*
Packet layout (big endian):

|<- 4 ->|<---- 8 ---->|<-- 4 -->|<-- 4 -->|<- 1 ->|<- 2 ->|<---- N ---->|
+-------+-------------+---------+---------+-------+-------+-------------+
|  seq  |  timestamp  |  freq   |   mag   |answer | N     |    text     |
|uint32 | int64 ns    | float32 | float32 | uint8 |uint16 | UTF-8 bytes |
+-------+-------------+---------+---------+-------+-------+-------------+

freq is NaN when no dominant frequency exists. answer is 0 MAYBE, 1 YES, 2 NO.
*/

// HeaderSize is the fixed part of a packet.
const HeaderSize = 4 + 8 + 4 + 4 + 1 + 2

// MaxTextLen keeps a packet within one IPv4 UDP datagram.
const MaxTextLen = 65507 - HeaderSize

// Packet is the decoded form of one datagram.
type Packet struct {
	Seq       uint32
	Timestamp int64
	Frequency float32
	Magnitude float32
	Answer    analysis.Answer
	Text      string
}

// Sink sends one packet per message. It is meant to be registered as a
// synchronous sink; Deliver is not safe for concurrent use.
type Sink struct {
	sender *Sender
	seq    uint32
	buf    *bytes.Buffer
}

// NewSink creates a sink writing through sender.
func NewSink(sender *Sender) (*Sink, error) {
	if sender == nil {
		return nil, errors.New("udp sink: sender cannot be nil")
	}
	return &Sink{sender: sender, buf: new(bytes.Buffer)}, nil
}

// Name implements dispatch.Sink.
func (s *Sink) Name() string { return "udp" }

// Deliver encodes and sends msg.
func (s *Sink) Deliver(_ context.Context, msg message.Message) error {
	s.seq++
	if err := Encode(s.buf, s.seq, msg); err != nil {
		return err
	}
	if err := s.sender.Send(s.buf.Bytes()); err != nil {
		return err
	}
	applog.Debugf("UDP Sink: sent packet %d (%d bytes)", s.seq, s.buf.Len())
	return nil
}

// Close closes the underlying sender.
func (s *Sink) Close() error { return s.sender.Close() }

// Encode resets buf and writes the packet for msg into it.
func Encode(buf *bytes.Buffer, seq uint32, msg message.Message) error {
	c := msg.Classification
	text := truncateUTF8(msg.Text, MaxTextLen)

	buf.Reset()
	fields := []any{
		seq,
		msg.Timestamp.UnixNano(),
		float32(c.DominantFrequency),
		float32(c.PeakMagnitude),
		uint8(c.Answer),
		uint16(len(text)),
	}
	for _, f := range fields {
		if err := binary.Write(buf, binary.BigEndian, f); err != nil {
			return fmt.Errorf("failed to pack UDP packet: %w", err)
		}
	}
	buf.WriteString(text)
	return nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Decode parses a datagram produced by Encode.
func Decode(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf("packet too short: %d bytes", len(b))
	}
	p := Packet{
		Seq:       binary.BigEndian.Uint32(b[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:12])),
		Frequency: math.Float32frombits(binary.BigEndian.Uint32(b[12:16])),
		Magnitude: math.Float32frombits(binary.BigEndian.Uint32(b[16:20])),
		Answer:    analysis.Answer(b[20]),
	}
	n := int(binary.BigEndian.Uint16(b[21:23]))
	if len(b) != HeaderSize+n {
		return Packet{}, fmt.Errorf("packet length %d does not match text length %d", len(b), n)
	}
	p.Text = string(b[HeaderSize:])
	return p, nil
}
