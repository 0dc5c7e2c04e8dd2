package can

import (
	"context"
	"errors"
	"time"
)

// Bus is a CAN bus connection. Implementations are safe for concurrent use
// by multiple goroutines.
type Bus interface {
	// Send transmits one frame. It may block until the frame is queued;
	// context cancellation aborts the wait and returns the context error.
	Send(ctx context.Context, frame Frame) error

	// Receive returns the next frame, blocking until one arrives or the
	// context is cancelled.
	Receive(ctx context.Context) (Frame, error)

	// Close releases the underlying handle. Pending and later Send/Receive
	// calls fail with ErrClosed or an OS error.
	Close() error
}

// ErrClosed indicates the bus has been closed.
var ErrClosed = errors.New("can: closed")

// Drain discards frames already queued on the bus, reading with short
// timeouts until the window elapses with nothing left. Adapters and kernel
// queues can hold stale traffic from before this process attached; draining
// keeps it from being mistaken for a reply. Returns the number of frames
// discarded.
func Drain(bus Bus, window time.Duration) int {
	if window <= 0 {
		window = 50 * time.Millisecond
	}
	deadline := time.Now().Add(window)
	n := 0
	for time.Now().Before(deadline) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		_, err := bus.Receive(ctx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				break // queue is empty
			}
			break
		}
		n++
	}
	return n
}
