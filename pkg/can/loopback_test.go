package can

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoopbackBroadcast(t *testing.T) {
	bus := NewLoopback()
	defer bus.Close()
	a := bus.Open()
	b := bus.Open()
	c := bus.Open()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	sent := Frame{ID: 0x0AD, Len: 2, Data: [8]byte{0x01, 0x02}}
	if err := a.Send(ctx, sent); err != nil {
		t.Fatalf("send: %v", err)
	}

	for _, ep := range []Bus{b, c} {
		got, err := ep.Receive(ctx)
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if got != sent {
			t.Fatalf("mismatch: got %v want %v", got, sent)
		}
	}

	// The sender must not hear its own frame.
	short, cancel2 := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel2()
	if _, err := a.Receive(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("self echo: got err %v, want deadline exceeded", err)
	}
}

func TestLoopbackReceiveTimeout(t *testing.T) {
	bus := NewLoopback()
	defer bus.Close()
	ep := bus.Open()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := ep.Receive(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got err %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Fatalf("returned after %v, before the deadline", elapsed)
	}
}

func TestLoopbackClose(t *testing.T) {
	bus := NewLoopback()
	a := bus.Open()
	b := bus.Open()

	if err := a.Close(); err != nil {
		t.Fatalf("close endpoint: %v", err)
	}
	ctx := context.Background()
	if _, err := a.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("receive on closed endpoint: got %v, want ErrClosed", err)
	}
	if err := a.Send(ctx, Frame{ID: 1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("send on closed endpoint: got %v, want ErrClosed", err)
	}

	// Closing the whole bus takes the remaining endpoints down.
	if err := bus.Close(); err != nil {
		t.Fatalf("close bus: %v", err)
	}
	if err := b.Send(ctx, Frame{ID: 1}); !errors.Is(err, ErrClosed) {
		t.Fatalf("send after bus close: got %v, want ErrClosed", err)
	}
	if _, err := b.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("receive after bus close: got %v, want ErrClosed", err)
	}
}

func TestLoopbackCloseDeliversBuffered(t *testing.T) {
	bus := NewLoopback()
	defer bus.Close()
	a := bus.Open()
	b := bus.Open()

	ctx := context.Background()
	if err := a.Send(ctx, Frame{ID: 0x42, Len: 1, Data: [8]byte{7}}); err != nil {
		t.Fatalf("send: %v", err)
	}
	b.Close()

	f, err := b.Receive(ctx)
	if err != nil {
		t.Fatalf("receive buffered after close: %v", err)
	}
	if f.ID != 0x42 {
		t.Fatalf("got frame %v", f)
	}
	if _, err := b.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("drained endpoint: got %v, want ErrClosed", err)
	}
}

func TestDrain(t *testing.T) {
	bus := NewLoopback()
	defer bus.Close()
	a := bus.Open()
	b := bus.Open()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := a.Send(ctx, Frame{ID: uint32(i + 1), Len: 1}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	if n := Drain(b, 100*time.Millisecond); n != 3 {
		t.Fatalf("drained %d frames, want 3", n)
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := b.Receive(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("bus not empty after drain: %v", err)
	}
}
