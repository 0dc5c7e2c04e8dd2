// Package protocol implements the HighTorque actuator CAN protocol: motor
// addressing, control modes, fixed-point scaling between physical units and
// the 16-bit wire encoding, and the builders/parsers for the frame shapes
// the devices understand. All identifiers are 29-bit extended.
package protocol

import "errors"

// MotorID addresses one actuator on the bus.
type MotorID uint8

// Valid motor ids. Id 0 is reserved by the protocol.
const (
	MinMotorID MotorID = 1
	MaxMotorID MotorID = 127
)

var ErrInvalidMotorID = errors.New("protocol: motor id outside 1..127")

// Validate reports whether the id addresses a real device.
func (id MotorID) Validate() error {
	if id < MinMotorID || id > MaxMotorID {
		return ErrInvalidMotorID
	}
	return nil
}

// Scale factors between physical units and the fixed-point wire encoding.
const (
	PositionScale = 10000.0 // counts per revolution
	VelocityScale = 4000.0  // counts per rad/s
	AccelScale    = 1000.0  // counts per rad/s^2
	TorqueScale   = 200.0   // counts per Nm
)

// PositionSentinel in the position field of a velocity-mode stream frame
// means "no position limit".
const PositionSentinel int16 = -32768

// Arbitration identifiers.
const (
	IDVelocityStream uint32 = 0x00AD // velocity+acceleration stream
	IDAngleStream    uint32 = 0x0090 // angle+limits stream

	// pingIDFlag set on a motor id asks the device to answer.
	pingIDFlag uint32 = 0x8000
)

// Control modes, written to RegMode.
const (
	ModeDisable  byte = 0x00
	ModePosition byte = 0x0A
	ModeVelocity byte = 0x0B
	ModeTorque   byte = 0x0C
)

// ModeName returns a human-readable name for a mode byte.
func ModeName(mode byte) string {
	switch mode {
	case ModeDisable:
		return "disabled"
	case ModePosition:
		return "position"
	case ModeVelocity:
		return "velocity"
	case ModeTorque:
		return "torque"
	default:
		return "unknown"
	}
}

// Register addresses.
const (
	RegMode        byte = 0x00
	RegTorqueLimit byte = 0x22
	RegKP          byte = 0x23
	RegKD          byte = 0x24
)

// Payload opcodes and filler.
const (
	opWriteByte  byte = 0x01
	opWriteFloat byte = 0x0D
	opReadByte   byte = 0x11
	pad          byte = 0x50
)
