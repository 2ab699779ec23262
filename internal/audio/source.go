// SPDX-License-Identifier: MIT
package audio

import "context"

// Source produces raw 16-bit little-endian PCM chunks. Capture blocks until
// the stream ends or ctx is cancelled. A nil error means the stream closed
// cleanly. Chunks must be sent in capture order and must not be reused by
// the source after they are sent.
type Source interface {
	Name() string
	Capture(ctx context.Context, chunks chan<- []byte) error
}

// Event is one item of the supervised capture stream. Either Chunk is set,
// or Closed marks the end of one capture run with Err describing why.
type Event struct {
	Chunk  []byte
	Closed bool
	Err    error
}

// send delivers chunk unless ctx is cancelled first.
func send(ctx context.Context, chunks chan<- []byte, chunk []byte) error {
	select {
	case chunks <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
