package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"unicode/utf8"

	"github.com/tianrking/HighTorque-Control/pkg/can"
)

// DecodePingReply recovers the responding motor id from a reply to
// EncodePing(probed). The source id lives in bits 8..14 of the arbitration
// identifier; replies from firmwares that echo the probed id in the low
// byte instead are also accepted. ok is false when neither field yields a
// plausible id.
//
// The low-byte fallback can in principle attribute a late reply from one id
// to a probe of another; scans space their probes to keep that window small.
func DecodePingReply(f can.Frame, probed MotorID) (MotorID, bool) {
	src := MotorID((f.ID >> 8) & 0x7F)
	if src.Validate() == nil {
		return src, true
	}
	if MotorID(f.ID&0xFF) == probed {
		return probed, true
	}
	return 0, false
}

// DecodeInfoReply extracts the device name and hardware version from an
// info-style ping reply (marker byte 0x51). Fields are NUL-trimmed and must
// be valid UTF-8; a reply without the marker is not an info reply.
func DecodeInfoReply(f can.Frame) (name, hwVersion string, ok bool) {
	if f.Len < 4 || f.Data[0] != 0x51 {
		return "", "", false
	}
	name = cleanString(f.Data[1:4])
	if f.Len >= 8 {
		hwVersion = cleanString(f.Data[4:8])
	}
	return name, hwVersion, true
}

// DecodeModeReply extracts the current mode byte from the plain reply shape
// some firmwares send instead of an info payload.
func DecodeModeReply(f can.Frame) (byte, bool) {
	if f.Len < 2 || f.Data[0] == 0x51 {
		return 0, false
	}
	return f.Data[1], true
}

var ErrNotStream = errors.New("protocol: not a stream frame")

// DecodeStream unpacks either stream frame shape back into its raw
// fixed-point fields. The third field is acceleration for velocity-stream
// frames and torque limit for angle-stream frames.
func DecodeStream(f can.Frame) (pos, vel, aux int16, err error) {
	if f.ID != IDVelocityStream && f.ID != IDAngleStream {
		return 0, 0, 0, ErrNotStream
	}
	if f.Len < 6 {
		return 0, 0, 0, ErrNotStream
	}
	pos = int16(binary.LittleEndian.Uint16(f.Data[0:2]))
	vel = int16(binary.LittleEndian.Uint16(f.Data[2:4]))
	aux = int16(binary.LittleEndian.Uint16(f.Data[4:6]))
	return pos, vel, aux, nil
}

func cleanString(b []byte) string {
	b = bytes.TrimRight(b, "\x00")
	if !utf8.Valid(b) {
		return ""
	}
	return string(b)
}
