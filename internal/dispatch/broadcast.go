// SPDX-License-Identifier: MIT
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"tonecast/internal/log"
	"tonecast/internal/message"
	"tonecast/internal/observe"

	"github.com/google/uuid"
)

// ErrSubscriberClosed is returned by Send after the subscriber went away.
var ErrSubscriberClosed = errors.New("subscriber closed")

// Subscriber is one live-event consumer.
type Subscriber interface {
	Send(data []byte) error
	Close() error
}

// Broadcast delivers the live event JSON to every subscriber. Subscribers
// whose Send fails are removed and closed.
type Broadcast struct {
	mu      sync.Mutex
	subs    map[string]Subscriber
	metrics *observe.Metrics
}

// NewBroadcast creates an empty subscriber set.
func NewBroadcast(metrics *observe.Metrics) *Broadcast {
	return &Broadcast{
		subs:    make(map[string]Subscriber),
		metrics: metrics,
	}
}

// Name implements Sink.
func (b *Broadcast) Name() string { return "broadcast" }

// Subscribe adds s and returns its ID.
func (b *Broadcast) Subscribe(s Subscriber) string {
	id := uuid.NewString()
	b.mu.Lock()
	b.subs[id] = s
	n := len(b.subs)
	b.mu.Unlock()

	b.metrics.AddSubscribers(context.Background(), 1)
	log.Debugf("Broadcast: subscriber %s joined, total: %d", id, n)
	return id
}

// Unsubscribe removes and closes the subscriber with id, if present.
func (b *Broadcast) Unsubscribe(id string) {
	b.mu.Lock()
	s, ok := b.subs[id]
	delete(b.subs, id)
	n := len(b.subs)
	b.mu.Unlock()

	if !ok {
		return
	}
	_ = s.Close()
	b.metrics.AddSubscribers(context.Background(), -1)
	log.Debugf("Broadcast: subscriber %s left, total: %d", id, n)
}

// Len returns the number of subscribers.
func (b *Broadcast) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Deliver sends the event for msg to every subscriber. Failing subscribers
// are pruned; that is not a delivery failure of the sink itself.
func (b *Broadcast) Deliver(_ context.Context, msg message.Message) error {
	data, err := json.Marshal(msg.Event())
	if err != nil {
		return fmt.Errorf("failed to encode live event: %w", err)
	}

	b.mu.Lock()
	targets := make(map[string]Subscriber, len(b.subs))
	for id, s := range b.subs {
		targets[id] = s
	}
	b.mu.Unlock()

	for id, s := range targets {
		if err := s.Send(data); err != nil {
			log.Debugf("Broadcast: dropping subscriber %s: %v", id, err)
			b.Unsubscribe(id)
		}
	}
	return nil
}

// Close closes and removes all subscribers.
func (b *Broadcast) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]Subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		_ = s.Close()
	}
	b.metrics.AddSubscribers(context.Background(), -int64(len(subs)))
	return nil
}
