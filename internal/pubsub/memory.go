package pubsub

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultBuffer is the per-subscription channel depth.
const DefaultBuffer = 256

// MemoryBus is an in-process Bus with per-subscription buffered channels.
// Publish blocks when a subscriber's buffer is full, so slow consumers
// exert backpressure instead of losing records.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription
	buffer int
	closed bool
	wg     sync.WaitGroup
}

type subscription struct {
	ch   chan Message
	done chan struct{}
}

// NewMemoryBus returns a bus with the given per-subscription buffer;
// buffer <= 0 selects DefaultBuffer.
func NewMemoryBus(buffer int) *MemoryBus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &MemoryBus{
		subs:   make(map[string][]*subscription),
		buffer: buffer,
	}
}

// Publish fans the message out to every subscription on the topic.
func (b *MemoryBus) Publish(ctx context.Context, msg Message) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus is closed")
	}
	targets := make([]*subscription, len(b.subs[msg.Topic]))
	copy(targets, b.subs[msg.Topic])
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.ch <- msg:
		case <-sub.done:
			// Subscriber went away between snapshot and send.
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe attaches h to the topic until ctx is cancelled or the bus
// closes. Handler errors are logged and consumption continues.
func (b *MemoryBus) Subscribe(ctx context.Context, topic string, h Handler) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("bus is closed")
	}
	sub := &subscription{
		ch:   make(chan Message, b.buffer),
		done: make(chan struct{}),
	}
	b.subs[topic] = append(b.subs[topic], sub)
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		defer b.remove(topic, sub)
		for {
			select {
			case msg := <-sub.ch:
				if err := h(ctx, msg); err != nil {
					log.Warn().Err(err).Str("topic", topic).Str("key", msg.Key).Msg("Subscriber handler failed")
				}
			case <-ctx.Done():
				return
			case <-sub.done:
				return
			}
		}
	}()
	return nil
}

func (b *MemoryBus) remove(topic string, target *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[topic]
	for i, s := range subs {
		if s == target {
			b.subs[topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// Close stops every subscription and waits for handler goroutines to
// drain. Safe to call once.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, s := range subs {
			close(s.done)
		}
	}
	b.mu.Unlock()

	b.wg.Wait()
}
