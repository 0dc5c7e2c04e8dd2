package control

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tianrking/HighTorque-Control/pkg/can"
	"github.com/tianrking/HighTorque-Control/pkg/protocol"
)

// loopbackPair is two endpoints on one in-memory bus: the controller
// talks on a, the test observes on b.
type loopbackPair struct {
	bus *can.Loopback
	a   can.Bus
	b   can.Bus
}

func newLoopbackPair(t *testing.T) *loopbackPair {
	t.Helper()
	bus := can.NewLoopback()
	t.Cleanup(func() { bus.Close() })
	return &loopbackPair{bus: bus, a: bus.Open(), b: bus.Open()}
}

func newTestController(t *testing.T, bus can.Bus, cfg Config) *Controller {
	t.Helper()
	c, err := NewController(bus, cfg)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return c
}

// startController runs the loop in the background and stops it on cleanup.
func startController(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Start(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func nextFrame(t *testing.T, ep can.Bus, timeout time.Duration) (can.Frame, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	f, err := ep.Receive(ctx)
	if err != nil {
		return can.Frame{}, false
	}
	return f, true
}

// collectFrames drains frames seen by the endpoint until it goes quiet.
func collectFrames(t *testing.T, ep can.Bus) []can.Frame {
	t.Helper()
	var frames []can.Frame
	for {
		f, ok := nextFrame(t, ep, 20*time.Millisecond)
		if !ok {
			return frames
		}
		frames = append(frames, f)
	}
}

func TestZeroVelocityBrakes(t *testing.T) {
	pair := newLoopbackPair(t)
	c := newTestController(t, pair.a, Config{Acceleration: 15, BrakeAcceleration: 30})
	startController(t, c)

	f, ok := nextFrame(t, pair.b, 200*time.Millisecond)
	if !ok {
		t.Fatal("no frame from idle loop")
	}
	pos, vel, acc, err := protocol.DecodeStream(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pos != protocol.PositionSentinel {
		t.Fatalf("position = %d, want sentinel", pos)
	}
	if vel != 0 {
		t.Fatalf("velocity = %d, want 0", vel)
	}
	if acc != 30000 {
		t.Fatalf("acceleration = %d, want brake value 30000", acc)
	}
}

func TestCruiseUsesConfiguredAcceleration(t *testing.T) {
	pair := newLoopbackPair(t)
	c := newTestController(t, pair.a, Config{Acceleration: 15, BrakeAcceleration: 30})
	c.SetVelocity(2.0)
	startController(t, c)

	f, ok := nextFrame(t, pair.b, 200*time.Millisecond)
	if !ok {
		t.Fatal("no frame from loop")
	}
	_, vel, acc, err := protocol.DecodeStream(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if vel != 8000 {
		t.Fatalf("velocity = %d, want 8000", vel)
	}
	if acc != 15000 {
		t.Fatalf("acceleration = %d, want cruise value 15000", acc)
	}
}

func TestLoopRate(t *testing.T) {
	pair := newLoopbackPair(t)
	c := newTestController(t, pair.a, Config{})
	startController(t, c)

	// Count frames over a quarter second at the default 100 Hz.
	deadline := time.Now().Add(250 * time.Millisecond)
	n := 0
	for time.Now().Before(deadline) {
		if _, ok := nextFrame(t, pair.b, 100*time.Millisecond); ok {
			n++
		}
	}
	if n < 15 || n > 35 {
		t.Fatalf("saw %d frames in 250ms, want about 25 at 100 Hz", n)
	}
}

func TestStopSendsBrakeFrame(t *testing.T) {
	pair := newLoopbackPair(t)
	c := newTestController(t, pair.a, Config{})
	c.SetVelocity(3.0)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Start(ctx) }()

	if _, ok := nextFrame(t, pair.b, 200*time.Millisecond); !ok {
		t.Fatal("loop never started")
	}
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("start returned %v", err)
	}

	frames := collectFrames(t, pair.b)
	if len(frames) == 0 {
		t.Fatal("no frames after cancel")
	}
	_, vel, acc, err := protocol.DecodeStream(frames[len(frames)-1])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if vel != 0 || acc != 30000 {
		t.Fatalf("final frame = vel %d acc %d, want a brake to zero", vel, acc)
	}
}

func TestAngleLoopWaitsForTarget(t *testing.T) {
	pair := newLoopbackPair(t)
	c := newTestController(t, pair.a, Config{Mode: ModeAngle})
	startController(t, c)

	if f, ok := nextFrame(t, pair.b, 60*time.Millisecond); ok {
		t.Fatalf("frame %v sent before any target", f)
	}

	c.SetAngle(90, 2.0, 3.0)
	f, ok := nextFrame(t, pair.b, 200*time.Millisecond)
	if !ok {
		t.Fatal("no frame after target set")
	}
	if f.ID != protocol.IDAngleStream {
		t.Fatalf("frame id = %#x, want angle stream", f.ID)
	}
	pos, vel, tqe, err := protocol.DecodeStream(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pos != 2500 || vel != 8000 || tqe != 600 {
		t.Fatalf("angle frame = %d %d %d, want 2500 8000 600", pos, vel, tqe)
	}
}

func TestDoubleStart(t *testing.T) {
	pair := newLoopbackPair(t)
	c := newTestController(t, pair.a, Config{})
	startController(t, c)

	if _, ok := nextFrame(t, pair.b, 200*time.Millisecond); !ok {
		t.Fatal("loop never started")
	}
	if err := c.Start(context.Background()); !errors.Is(err, ErrRunning) {
		t.Fatalf("second start returned %v, want ErrRunning", err)
	}
}

func TestRestartAfterStop(t *testing.T) {
	pair := newLoopbackPair(t)
	c := newTestController(t, pair.a, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Start(ctx) }()
	if _, ok := nextFrame(t, pair.b, 200*time.Millisecond); !ok {
		t.Fatal("loop never started")
	}
	cancel()
	<-errCh
	collectFrames(t, pair.b)

	ctx2, cancel2 := context.WithCancel(context.Background())
	go func() { errCh <- c.Start(ctx2) }()
	if _, ok := nextFrame(t, pair.b, 200*time.Millisecond); !ok {
		t.Fatal("loop did not restart")
	}
	cancel2()
	<-errCh
}

func TestStatesReportBraking(t *testing.T) {
	pair := newLoopbackPair(t)
	c := newTestController(t, pair.a, Config{})
	startController(t, c)

	select {
	case s := <-c.States():
		if !s.Braking {
			t.Fatalf("idle state = %+v, want braking", s)
		}
		if s.Acceleration != 30 {
			t.Fatalf("braking acceleration = %v, want 30", s.Acceleration)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("no state update")
	}
}

func TestSettersAreConcurrencySafe(t *testing.T) {
	pair := newLoopbackPair(t)
	c := newTestController(t, pair.a, Config{})
	startController(t, c)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.SetVelocity(float64(n))
				c.SetAcceleration(float64(j))
				c.SetAngle(float64(j), 1, 1)
			}
		}(i)
	}
	wg.Wait()

	c.SetVelocity(1.5)
	c.SetAcceleration(-20)
	if got := c.Velocity(); got != 1.5 {
		t.Fatalf("velocity = %v", got)
	}
	if got := c.Acceleration(); got != 20 {
		t.Fatalf("acceleration = %v, want magnitude 20", got)
	}
}

func TestControllerConfigBounds(t *testing.T) {
	pair := newLoopbackPair(t)
	if _, err := NewController(pair.a, Config{Hz: 50}); err == nil {
		t.Fatal("50 Hz accepted")
	}
	if _, err := NewController(pair.a, Config{Hz: 250}); err == nil {
		t.Fatal("250 Hz accepted")
	}

	c := newTestController(t, pair.a, Config{})
	if c.Hz() != 100 {
		t.Fatalf("default hz = %d", c.Hz())
	}
	if c.Acceleration() != 15 {
		t.Fatalf("default acceleration = %v", c.Acceleration())
	}
}
