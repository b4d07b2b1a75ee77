package pubsub

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemoryBus(8)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Message, 1)
	err := bus.Subscribe(ctx, TopicLoadEvents, func(_ context.Context, msg Message) error {
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error: %v", err)
	}

	want := Message{Topic: TopicLoadEvents, Key: "load-1", Value: []byte(`{"x":1}`)}
	if err := bus.Publish(ctx, want); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	select {
	case got := <-received:
		if got.Key != want.Key || string(got.Value) != string(want.Value) {
			t.Errorf("received %+v, want %+v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected message delivery, timed out")
	}
}

func TestMemoryBus_FanOut(t *testing.T) {
	bus := NewMemoryBus(8)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var count atomic.Int64
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		err := bus.Subscribe(ctx, TopicPositionUpdates, func(_ context.Context, _ Message) error {
			count.Add(1)
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatalf("Subscribe() error: %v", err)
		}
	}

	if err := bus.Publish(ctx, Message{Topic: TopicPositionUpdates, Key: "d-1"}); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected all three subscribers to receive the message")
	}
	if got := count.Load(); got != 3 {
		t.Errorf("Expected 3 deliveries, got %d", got)
	}
}

func TestMemoryBus_TopicIsolation(t *testing.T) {
	bus := NewMemoryBus(8)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var posCount atomic.Int64
	_ = bus.Subscribe(ctx, TopicPositionUpdates, func(_ context.Context, _ Message) error {
		posCount.Add(1)
		return nil
	})

	if err := bus.Publish(ctx, Message{Topic: TopicLoadEvents, Key: "load-1"}); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := posCount.Load(); got != 0 {
		t.Errorf("Expected no cross-topic delivery, got %d", got)
	}
}

func TestMemoryBus_OrderPreservedPerSubscriber(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make([]string, 0, 5)
	done := make(chan struct{})
	_ = bus.Subscribe(ctx, TopicLoadEvents, func(_ context.Context, msg Message) error {
		got = append(got, msg.Key)
		if len(got) == 5 {
			close(done)
		}
		return nil
	})

	for _, key := range []string{"a", "b", "c", "d", "e"} {
		if err := bus.Publish(ctx, Message{Topic: TopicLoadEvents, Key: key}); err != nil {
			t.Fatalf("Publish() error: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Expected five deliveries")
	}
	for i, key := range []string{"a", "b", "c", "d", "e"} {
		if got[i] != key {
			t.Fatalf("Expected order a..e, got %v", got)
		}
	}
}

func TestMemoryBus_ClosedBusRejectsPublish(t *testing.T) {
	bus := NewMemoryBus(8)
	bus.Close()

	if err := bus.Publish(context.Background(), Message{Topic: TopicLoadEvents}); err == nil {
		t.Error("Expected error publishing to a closed bus")
	}
	if err := bus.Subscribe(context.Background(), TopicLoadEvents, func(context.Context, Message) error { return nil }); err == nil {
		t.Error("Expected error subscribing to a closed bus")
	}
}

func TestMemoryBus_CloseIsIdempotent(t *testing.T) {
	bus := NewMemoryBus(8)
	bus.Close()
	bus.Close()
}
