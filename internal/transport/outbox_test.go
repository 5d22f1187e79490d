package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/halvorsen/speedd/internal/wire"
)

func TestOutbox_FIFO(t *testing.T) {
	o := New()
	for i := 0; i < 5; i++ {
		if err := o.Send(wire.PlateMsg{Plate: "FIFO", Timestamp: wire.Timestamp(i)}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		msg, ok := o.Recv(ctx)
		if !ok {
			t.Fatalf("recv %d: unexpected close", i)
		}
		if pm := msg.(wire.PlateMsg); pm.Timestamp != wire.Timestamp(i) {
			t.Fatalf("recv %d: got timestamp %d, want %d", i, pm.Timestamp, i)
		}
	}
}

func TestOutbox_NeverDropsUnderBurst(t *testing.T) {
	o := New()
	const n = 10000
	for i := 0; i < n; i++ {
		if err := o.Send(wire.HeartbeatMsg{}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	ctx := context.Background()
	got := 0
	for {
		o.mu.Lock()
		empty := len(o.queue) == 0
		o.mu.Unlock()
		if empty {
			break
		}
		if _, ok := o.Recv(ctx); ok {
			got++
		}
	}
	if got != n {
		t.Fatalf("got %d, want %d", got, n)
	}
}

func TestOutbox_CloseWakesConsumer(t *testing.T) {
	o := New()
	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, ok := o.Recv(context.Background()); ok {
			t.Error("expected close, got a message")
		}
	}()
	time.Sleep(10 * time.Millisecond)
	o.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Recv did not wake up after Close")
	}
}

func TestOutbox_SendAfterCloseFails(t *testing.T) {
	o := New()
	o.Close()
	if err := o.Send(wire.HeartbeatMsg{}); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestOutbox_DrainsQueuedMessagesAfterClose(t *testing.T) {
	o := New()
	_ = o.Send(wire.HeartbeatMsg{})
	_ = o.Send(wire.HeartbeatMsg{})
	o.Close()
	got := 0
	ctx := context.Background()
	for {
		if _, ok := o.Recv(ctx); !ok {
			break
		}
		got++
	}
	if got != 2 {
		t.Fatalf("got %d queued messages, want 2", got)
	}
}

func TestOutbox_ConcurrentProducers(t *testing.T) {
	o := New()
	var wg sync.WaitGroup
	const producers = 8
	const perProducer = 200
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_ = o.Send(wire.HeartbeatMsg{})
			}
		}()
	}
	wg.Wait()
	ctx := context.Background()
	got := 0
	for {
		o.mu.Lock()
		empty := len(o.queue) == 0
		o.mu.Unlock()
		if empty {
			break
		}
		if _, ok := o.Recv(ctx); ok {
			got++
		}
	}
	if got != producers*perProducer {
		t.Fatalf("got %d, want %d", got, producers*perProducer)
	}
}
