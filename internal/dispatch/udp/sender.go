// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"

	applog "tonecast/internal/log"
)

// ErrSenderClosed is returned by Send after Close.
var ErrSenderClosed = errors.New("udp sender is closed")

// Sender writes datagrams to a single connected peer.
type Sender struct {
	mu     sync.Mutex // Protects conn during Close.
	conn   *net.UDPConn
	target *net.UDPAddr
}

// NewSender dials targetAddress ("host:port").
func NewSender(targetAddress string) (*Sender, error) {
	addr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", targetAddress, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP for target '%s': %w", targetAddress, err)
	}

	applog.Infof("UDP Sender: connected to %s", conn.RemoteAddr())
	return &Sender{conn: conn, target: addr}, nil
}

// Target returns the resolved peer address.
func (s *Sender) Target() *net.UDPAddr { return s.target }

// Send transmits data as one datagram.
func (s *Sender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrSenderClosed
	}
	if _, err := s.conn.Write(data); err != nil {
		return fmt.Errorf("failed to send UDP packet: %w", err)
	}
	return nil
}

// Close closes the connection. Further sends fail with ErrSenderClosed.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	applog.Infof("UDP Sender: closing connection to %s", s.conn.RemoteAddr())
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close UDP connection: %w", err)
	}
	return nil
}
