// Package can provides the CAN bus transport used to talk to HighTorque
// actuators: a frame type, a context-aware Bus interface, and concrete
// adapters for Linux SocketCAN, SLCAN serial adapters, and an in-memory
// loopback bus for tests.
package can

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Frame is a classical CAN 2.0 frame: an 11-bit standard or 29-bit extended
// arbitration identifier plus up to 8 data bytes. CAN FD is not supported.
type Frame struct {
	ID       uint32 // 11-bit (standard) or 29-bit (extended) identifier
	Extended bool   // 29-bit identifier format
	RTR      bool   // remote transmission request
	Len      uint8  // 0..8
	Data     [8]byte
}

// Identifier limits.
const (
	MaxStandardID = 0x7FF
	MaxExtendedID = 0x1FFFFFFF
)

var (
	ErrInvalidID  = errors.New("can: invalid identifier")
	ErrInvalidLen = errors.New("can: invalid data length")
)

// Validate reports whether the frame can go on the wire.
func (f Frame) Validate() error {
	if f.Len > 8 {
		return ErrInvalidLen
	}
	max := uint32(MaxStandardID)
	if f.Extended {
		max = MaxExtendedID
	}
	if f.ID > max {
		return ErrInvalidID
	}
	return nil
}

// Linux can_frame flag bits, also used in the 16-byte binary layout below.
const (
	canEFFFlag = 0x80000000
	canRTRFlag = 0x40000000
)

// MarshalBinary encodes the frame in the Linux SocketCAN struct can_frame
// layout (16 bytes, little-endian):
//
//	0..3  can_id including EFF/RTR flag bits
//	4     data length code
//	5..7  padding, zero
//	8..15 data
func (f Frame) MarshalBinary() ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	id := f.ID
	if f.Extended {
		id |= canEFFFlag
	}
	if f.RTR {
		id |= canRTRFlag
	}
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], id)
	buf[4] = f.Len
	copy(buf[8:16], f.Data[:])
	return buf, nil
}

// UnmarshalBinary decodes a frame from the struct can_frame layout.
func (f *Frame) UnmarshalBinary(data []byte) error {
	if len(data) < 16 {
		return fmt.Errorf("can: need 16 bytes, got %d", len(data))
	}
	id := binary.LittleEndian.Uint32(data[0:4])
	f.Extended = id&canEFFFlag != 0
	f.RTR = id&canRTRFlag != 0
	if f.Extended {
		f.ID = id & MaxExtendedID
	} else {
		f.ID = id & MaxStandardID
	}
	f.Len = data[4]
	copy(f.Data[:], data[8:16])
	return f.Validate()
}

// String renders the frame in candump notation, e.g. "000080AD#1100505050505050"
// for an extended frame or "090#R" for a standard RTR frame.
func (f Frame) String() string {
	var sb strings.Builder
	if f.Extended {
		fmt.Fprintf(&sb, "%08X#", f.ID)
	} else {
		fmt.Fprintf(&sb, "%03X#", f.ID)
	}
	if f.RTR {
		sb.WriteByte('R')
		return sb.String()
	}
	for _, b := range f.Data[:f.Len] {
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}
