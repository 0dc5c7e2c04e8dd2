package can

import (
	"context"
	"sync"
)

// Loopback is an in-memory CAN bus for tests and simulated devices.
// Every endpoint opened from the same Loopback sees frames sent by all the
// others, like nodes sharing a physical bus.
type Loopback struct {
	mu        sync.RWMutex
	closed    bool
	endpoints map[*loopEndpoint]struct{}
}

// NewLoopback creates an empty loopback bus.
func NewLoopback() *Loopback {
	return &Loopback{endpoints: make(map[*loopEndpoint]struct{})}
}

// Open attaches a new endpoint to the bus.
func (b *Loopback) Open() Bus {
	ep := &loopEndpoint{
		bus:    b,
		ch:     make(chan Frame, 64),
		closed: make(chan struct{}),
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ep.closed)
		return ep
	}
	b.endpoints[ep] = struct{}{}
	b.mu.Unlock()
	return ep
}

// Close detaches and closes all endpoints.
func (b *Loopback) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for ep := range b.endpoints {
		ep.markDead()
	}
	b.endpoints = nil
	return nil
}

func (b *Loopback) detach(ep *loopEndpoint) {
	b.mu.Lock()
	if b.endpoints != nil {
		delete(b.endpoints, ep)
	}
	b.mu.Unlock()
}

type loopEndpoint struct {
	bus    *Loopback
	ch     chan Frame
	once   sync.Once
	closed chan struct{}
}

// Send broadcasts the frame to every other endpoint on the bus.
func (e *loopEndpoint) Send(ctx context.Context, frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	select {
	case <-e.closed:
		return ErrClosed
	default:
	}

	// Snapshot targets so delivery happens outside the bus lock.
	e.bus.mu.RLock()
	if e.bus.closed {
		e.bus.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]*loopEndpoint, 0, len(e.bus.endpoints))
	for ep := range e.bus.endpoints {
		if ep != e {
			targets = append(targets, ep)
		}
	}
	e.bus.mu.RUnlock()

	for _, t := range targets {
		select {
		case t.ch <- frame:
		case <-t.closed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Receive waits for the next frame or context cancellation.
func (e *loopEndpoint) Receive(ctx context.Context) (Frame, error) {
	select {
	case <-e.closed:
		// Deliver frames already buffered before reporting closure.
		select {
		case f := <-e.ch:
			return f, nil
		default:
			return Frame{}, ErrClosed
		}
	default:
	}
	select {
	case f := <-e.ch:
		return f, nil
	case <-e.closed:
		select {
		case f := <-e.ch:
			return f, nil
		default:
			return Frame{}, ErrClosed
		}
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close detaches the endpoint from the bus.
func (e *loopEndpoint) Close() error {
	e.bus.detach(e)
	e.markDead()
	return nil
}

func (e *loopEndpoint) markDead() {
	e.once.Do(func() { close(e.closed) })
}
