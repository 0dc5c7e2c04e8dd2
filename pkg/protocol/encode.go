package protocol

import (
	"encoding/binary"
	"math"

	"github.com/tianrking/HighTorque-Control/pkg/can"
)

// clamp16 scales nothing itself: it takes an already-scaled value, truncates
// it toward zero, and saturates to the int16 range. Out-of-range input never
// wraps or errors.
func clamp16(v float64) int16 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt16:
		return math.MaxInt16
	case v <= math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

func putI16(b []byte, v int16) {
	binary.LittleEndian.PutUint16(b, uint16(v))
}

// EncodeVelocityAccel builds the velocity-mode stream frame: position fixed
// at the sentinel, velocity in rad/s and acceleration in rad/s^2 scaled to
// fixed point. The frame addresses whatever session is active on the bus,
// not a specific id.
func EncodeVelocityAccel(velocity, acceleration float64) can.Frame {
	f := can.Frame{ID: IDVelocityStream, Extended: true, Len: 8}
	putI16(f.Data[0:2], PositionSentinel)
	putI16(f.Data[2:4], clamp16(velocity*VelocityScale))
	putI16(f.Data[4:6], clamp16(acceleration*AccelScale))
	f.Data[6], f.Data[7] = pad, pad
	return f
}

// EncodeAngleStream builds the angle-mode stream frame from a target angle
// in degrees plus the velocity and torque limits that bound the move.
func EncodeAngleStream(angleDegrees, velocityLimit, torqueLimit float64) can.Frame {
	f := can.Frame{ID: IDAngleStream, Extended: true, Len: 8}
	putI16(f.Data[0:2], clamp16(angleDegrees/360*PositionScale))
	putI16(f.Data[2:4], clamp16(velocityLimit*VelocityScale))
	putI16(f.Data[4:6], clamp16(torqueLimit*TorqueScale))
	f.Data[6], f.Data[7] = pad, pad
	return f
}

// EncodePing builds the probe frame for one id: a read of the mode register
// with the reply flag set on the identifier.
func EncodePing(id MotorID) can.Frame {
	return can.Frame{
		ID:       pingIDFlag | uint32(id),
		Extended: true,
		Len:      8,
		Data:     [8]byte{opReadByte, RegMode, pad, pad, pad, pad, pad, pad},
	}
}

// EncodeModeWrite builds the single-byte write that switches the control
// mode, including the disable write (ModeDisable).
func EncodeModeWrite(id MotorID, mode byte) can.Frame {
	return can.Frame{
		ID:       uint32(id),
		Extended: true,
		Len:      8,
		Data:     [8]byte{opWriteByte, RegMode, mode, pad, pad, pad, pad, pad},
	}
}

// EncodeRegisterWrite builds a four-byte float register write, used for the
// torque limit and gain registers during enable.
func EncodeRegisterWrite(id MotorID, reg byte, value float32) can.Frame {
	f := can.Frame{ID: uint32(id), Extended: true, Len: 8}
	f.Data[0] = opWriteFloat
	f.Data[1] = reg
	binary.LittleEndian.PutUint32(f.Data[2:6], math.Float32bits(value))
	f.Data[6], f.Data[7] = pad, pad
	return f
}
