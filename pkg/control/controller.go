// Package control provides the periodic setpoint loop for velocity and
// position control of HighTorque actuators.
package control

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/tianrking/HighTorque-Control/pkg/can"
	"github.com/tianrking/HighTorque-Control/pkg/protocol"
)

// Mode selects which stream frame the loop emits.
type Mode int

const (
	ModeVelocity Mode = iota
	ModeAngle
)

func (m Mode) String() string {
	if m == ModeAngle {
		return "angle"
	}
	return "velocity"
}

// AngleTarget is one absolute position command with its motion limits.
type AngleTarget struct {
	Degrees       float64
	VelocityLimit float64 // rad/s
	TorqueLimit   float64 // Nm
}

// State represents one loop iteration's view of the commanded setpoints.
type State struct {
	Mode         Mode
	Velocity     float64
	Acceleration float64
	Braking      bool
	Angle        *AngleTarget
	Err          error
	Timestamp    time.Time
}

// atomicFloat64 stores a float64 through its bit pattern so the loop can
// read setpoints that another goroutine updates.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (f *atomicFloat64) Store(v float64) { f.bits.Store(math.Float64bits(v)) }
func (f *atomicFloat64) Load() float64   { return math.Float64frombits(f.bits.Load()) }

// Controller manages the setpoint stream. Setters may be called from any
// goroutine while the loop runs.
type Controller struct {
	bus   can.Bus
	mode  Mode
	hz    int
	brake float64

	velocity atomicFloat64
	accel    atomicFloat64
	angle    atomic.Pointer[AngleTarget]

	running atomic.Bool
	stateCh chan State
	logCh   chan string
}

// Config holds configuration for the controller.
type Config struct {
	Mode              Mode
	Hz                int     // default 100
	Acceleration      float64 // rad/s², default 15
	BrakeAcceleration float64 // rad/s², default 30
}

// ErrRunning reports a Start on a controller whose loop is already active.
var ErrRunning = errors.New("control: already running")

// NewController creates a controller for one stream mode. The zero Config
// gives a 100 Hz velocity loop with the stock acceleration limits.
func NewController(bus can.Bus, cfg Config) (*Controller, error) {
	if cfg.Hz == 0 {
		cfg.Hz = 100
	}
	if cfg.Hz < 100 || cfg.Hz > 200 {
		return nil, fmt.Errorf("control: %d Hz is outside the stream's 100..200 Hz band", cfg.Hz)
	}
	if cfg.Acceleration == 0 {
		cfg.Acceleration = 15
	}
	if cfg.BrakeAcceleration == 0 {
		cfg.BrakeAcceleration = 30
	}

	c := &Controller{
		bus:     bus,
		mode:    cfg.Mode,
		hz:      cfg.Hz,
		brake:   math.Abs(cfg.BrakeAcceleration),
		stateCh: make(chan State, 1),
		logCh:   make(chan string, 10),
	}
	c.accel.Store(math.Abs(cfg.Acceleration))
	return c, nil
}

// SetVelocity updates the commanded velocity in rad/s. The loop picks it
// up on its next tick.
func (c *Controller) SetVelocity(v float64) { c.velocity.Store(v) }

// SetAcceleration updates the acceleration magnitude in rad/s². Sign is
// discarded; slowing down uses the same limit toward zero.
func (c *Controller) SetAcceleration(a float64) { c.accel.Store(math.Abs(a)) }

// SetAngle replaces the position target. All three fields change together;
// the loop never sees a mixed triple.
func (c *Controller) SetAngle(degrees, velocityLimit, torqueLimit float64) {
	c.angle.Store(&AngleTarget{
		Degrees:       degrees,
		VelocityLimit: velocityLimit,
		TorqueLimit:   torqueLimit,
	})
}

// Velocity returns the currently commanded velocity.
func (c *Controller) Velocity() float64 { return c.velocity.Load() }

// Acceleration returns the current acceleration magnitude.
func (c *Controller) Acceleration() float64 { return c.accel.Load() }

// States returns a channel that receives state updates.
func (c *Controller) States() <-chan State {
	return c.stateCh
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Hz returns the loop frequency.
func (c *Controller) Hz() int {
	return c.hz
}

func (c *Controller) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start runs the setpoint loop until ctx is cancelled. The stream carries
// no per-frame acknowledgement, so sends are fire and forget: a failure is
// logged and the next tick tries again. In velocity mode a final
// zero-velocity frame goes out on the way down so the actuator brakes.
func (c *Controller) Start(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer c.running.Store(false)

	c.log("Setpoint loop started at %d Hz (%s mode)", c.hz, c.mode)

	ticker := time.NewTicker(time.Second / time.Duration(c.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()
		case <-ticker.C:
			c.step(ctx)
		}
	}
}

func (c *Controller) step(ctx context.Context) {
	s := State{Mode: c.mode, Timestamp: time.Now()}

	var frame can.Frame
	switch c.mode {
	case ModeAngle:
		target := c.angle.Load()
		if target == nil {
			return // nothing commanded yet, stay quiet
		}
		s.Angle = target
		frame = protocol.EncodeAngleStream(target.Degrees, target.VelocityLimit, target.TorqueLimit)
	default:
		s.Velocity = c.velocity.Load()
		s.Acceleration = c.accel.Load()
		if s.Velocity == 0 {
			// Stop commands brake harder than cruise changes.
			s.Acceleration = c.brake
			s.Braking = true
		}
		frame = protocol.EncodeVelocityAccel(s.Velocity, s.Acceleration)
	}

	if err := c.bus.Send(ctx, frame); err != nil {
		c.log("Send error: %v", err)
		s.Err = err
	}
	c.sendState(s)
}

func (c *Controller) sendState(s State) {
	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		c.stateCh <- s
	}
}

func (c *Controller) shutdown() {
	if c.mode == ModeVelocity {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		if err := c.bus.Send(ctx, protocol.EncodeVelocityAccel(0, c.brake)); err != nil {
			c.log("Brake frame failed: %v", err)
		} else {
			c.log("Commanded zero velocity")
		}
	}
	c.log("Setpoint loop stopped")
}
