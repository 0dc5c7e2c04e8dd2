// Package motor provides device sessions and discovery for HighTorque
// actuators: enabling and configuring a motor for control, scanning an id
// range for live devices, and saving scan reports.
package motor

import (
	"context"
	"fmt"
	"time"

	"github.com/tianrking/HighTorque-Control/pkg/can"
	"github.com/tianrking/HighTorque-Control/pkg/protocol"
)

// SessionState tracks where a session is in its enable/disable lifecycle.
type SessionState int

const (
	Unconfigured SessionState = iota
	Enabling
	Active
	Disabled
)

func (s SessionState) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Enabling:
		return "enabling"
	case Active:
		return "active"
	case Disabled:
		return "disabled"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// Session drives one actuator through enable, configure, and disable.
// A Session belongs to a single goroutine; it is not safe for concurrent
// use, and one process should hold at most one Active session per id.
type Session struct {
	bus        can.Bus
	id         protocol.MotorID
	state      SessionState
	modeSettle time.Duration
	regSettle  time.Duration
}

// SessionOption adjusts session timing.
type SessionOption func(*Session)

// WithModeSettle sets the pause after the mode write. The device processes
// configuration frames slowly; writing faster than it reads silently drops
// writes.
func WithModeSettle(d time.Duration) SessionOption {
	return func(s *Session) { s.modeSettle = d }
}

// WithRegisterSettle sets the pause after each register write.
func WithRegisterSettle(d time.Duration) SessionOption {
	return func(s *Session) { s.regSettle = d }
}

// NewSession creates a session for the given motor id in state Unconfigured.
func NewSession(bus can.Bus, id protocol.MotorID, opts ...SessionOption) (*Session, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		bus:        bus,
		id:         id,
		modeSettle: 50 * time.Millisecond,
		regSettle:  20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ID returns the motor id the session addresses.
func (s *Session) ID() protocol.MotorID { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() SessionState { return s.state }

// RegisterWrite is one float register write in an enable sequence.
type RegisterWrite struct {
	Reg   byte
	Value float32
}

// EnableConfig is the control mode plus the register writes applied while
// enabling.
type EnableConfig struct {
	Mode   byte
	Writes []RegisterWrite
}

// VelocityEnable returns the enable sequence for velocity control: position
// mode, then torque limit and velocity-loop gains.
func VelocityEnable(torqueLimit, kp, kd float64) EnableConfig {
	return EnableConfig{
		Mode: protocol.ModePosition,
		Writes: []RegisterWrite{
			{protocol.RegTorqueLimit, float32(torqueLimit)},
			{protocol.RegKP, float32(kp)},
			{protocol.RegKD, float32(kd)},
		},
	}
}

// AngleEnable returns the enable sequence for angle control: position mode
// with softer default gains, no explicit torque limit (the angle stream
// carries one per setpoint).
func AngleEnable(kp, kd float64) EnableConfig {
	return EnableConfig{
		Mode: protocol.ModePosition,
		Writes: []RegisterWrite{
			{protocol.RegKP, float32(kp)},
			{protocol.RegKD, float32(kd)},
		},
	}
}

// Enable drives Unconfigured→Enabling→Active: a mode write followed by the
// configured register writes, each write separated by a settle pause. Any
// transmit failure aborts the sequence, returns the state to Unconfigured,
// and reports the step that failed.
func (s *Session) Enable(ctx context.Context, cfg EnableConfig) error {
	s.state = Enabling
	if err := s.bus.Send(ctx, protocol.EncodeModeWrite(s.id, cfg.Mode)); err != nil {
		s.state = Unconfigured
		return fmt.Errorf("motor %d: set mode %s: %w", s.id, protocol.ModeName(cfg.Mode), err)
	}
	if err := sleep(ctx, s.modeSettle); err != nil {
		s.state = Unconfigured
		return err
	}
	for _, w := range cfg.Writes {
		if err := s.bus.Send(ctx, protocol.EncodeRegisterWrite(s.id, w.Reg, w.Value)); err != nil {
			s.state = Unconfigured
			return fmt.Errorf("motor %d: write register %#02x: %w", s.id, w.Reg, err)
		}
		if err := sleep(ctx, s.regSettle); err != nil {
			s.state = Unconfigured
			return err
		}
	}
	s.state = Active
	return nil
}

// Disable sends the mode-0 write and moves to Disabled. It is idempotent
// and callable from any state; the frame is sent every call, and the state
// ends Disabled even when the send fails, since the caller is done with
// the motor either way.
func (s *Session) Disable(ctx context.Context) error {
	err := s.bus.Send(ctx, protocol.EncodeModeWrite(s.id, protocol.ModeDisable))
	s.state = Disabled
	if err != nil {
		return fmt.Errorf("motor %d: disable: %w", s.id, err)
	}
	return nil
}

// sleep waits for d or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
