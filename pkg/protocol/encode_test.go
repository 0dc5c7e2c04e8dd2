package protocol

import (
	"testing"

	"github.com/tianrking/HighTorque-Control/pkg/can"
)

func TestEncodeVelocityAccel(t *testing.T) {
	tests := []struct {
		name     string
		velocity float64
		accel    float64
		wantVel  int16
		wantAcc  int16
	}{
		{"zero", 0, 15, 0, 15000},
		{"forward", 2.0, 15, 8000, 15000},
		{"reverse", -1.5, 10, -6000, 10000},
		{"fractional truncates toward zero", 0.0001, 0.0001, 0, 0},
		{"negative fraction truncates toward zero", -0.0001, 0, 0, 0},
		{"velocity saturates high", 10, 0, 32767, 0},
		{"velocity saturates low", -10, 0, -32768, 0},
		{"accel saturates high", 0, 40, 0, 32767},
	}

	for _, tt := range tests {
		f := EncodeVelocityAccel(tt.velocity, tt.accel)
		if f.ID != IDVelocityStream || !f.Extended || f.Len != 8 {
			t.Errorf("%s: bad frame header %v", tt.name, f)
		}
		pos, vel, acc, err := DecodeStream(f)
		if err != nil {
			t.Fatalf("%s: decode: %v", tt.name, err)
		}
		if pos != PositionSentinel {
			t.Errorf("%s: position = %d, want sentinel %d", tt.name, pos, PositionSentinel)
		}
		if vel != tt.wantVel {
			t.Errorf("%s: velocity = %d, want %d", tt.name, vel, tt.wantVel)
		}
		if acc != tt.wantAcc {
			t.Errorf("%s: acceleration = %d, want %d", tt.name, acc, tt.wantAcc)
		}
		if f.Data[6] != 0x50 || f.Data[7] != 0x50 {
			t.Errorf("%s: padding = % X", tt.name, f.Data[6:8])
		}
	}
}

func TestEncodeAngleStream(t *testing.T) {
	tests := []struct {
		name     string
		degrees  float64
		velLimit float64
		tqeLimit float64
		wantPos  int16
		wantVel  int16
		wantTqe  int16
	}{
		{"quarter turn", 90, 2.0, 3.0, 2500, 8000, 600},
		{"zero", 0, 1.0, 1.0, 0, 4000, 200},
		{"negative angle", -180, 2.0, 3.0, -5000, 8000, 600},
		{"angle saturates", 100000, 2.0, 3.0, 32767, 8000, 600},
	}

	for _, tt := range tests {
		f := EncodeAngleStream(tt.degrees, tt.velLimit, tt.tqeLimit)
		if f.ID != IDAngleStream || !f.Extended || f.Len != 8 {
			t.Errorf("%s: bad frame header %v", tt.name, f)
		}
		pos, vel, tqe, err := DecodeStream(f)
		if err != nil {
			t.Fatalf("%s: decode: %v", tt.name, err)
		}
		if pos != tt.wantPos || vel != tt.wantVel || tqe != tt.wantTqe {
			t.Errorf("%s: got %d/%d/%d, want %d/%d/%d",
				tt.name, pos, vel, tqe, tt.wantPos, tt.wantVel, tt.wantTqe)
		}
	}
}

func TestEncodePing(t *testing.T) {
	f := EncodePing(5)
	if f.ID != 0x8005 || !f.Extended {
		t.Fatalf("ping id = %#x extended=%v", f.ID, f.Extended)
	}
	want := [8]byte{0x11, 0x00, 0x50, 0x50, 0x50, 0x50, 0x50, 0x50}
	if f.Len != 8 || f.Data != want {
		t.Fatalf("ping payload = % X, want % X", f.Data, want)
	}
}

func TestEncodeModeWrite(t *testing.T) {
	f := EncodeModeWrite(5, ModePosition)
	if f.ID != 5 || !f.Extended {
		t.Fatalf("mode write id = %#x extended=%v", f.ID, f.Extended)
	}
	want := [8]byte{0x01, 0x00, 0x0A, 0x50, 0x50, 0x50, 0x50, 0x50}
	if f.Data != want {
		t.Fatalf("mode payload = % X, want % X", f.Data, want)
	}

	off := EncodeModeWrite(5, ModeDisable)
	if off.Data[2] != 0x00 {
		t.Fatalf("disable payload = % X", off.Data)
	}
}

func TestEncodeRegisterWrite(t *testing.T) {
	f := EncodeRegisterWrite(3, RegKP, 2.0)
	if f.ID != 3 || !f.Extended || f.Len != 8 {
		t.Fatalf("register write header %v", f)
	}
	// 2.0 as IEEE-754 single is 0x40000000, little-endian on the wire.
	want := [8]byte{0x0D, 0x23, 0x00, 0x00, 0x00, 0x40, 0x50, 0x50}
	if f.Data != want {
		t.Fatalf("register payload = % X, want % X", f.Data, want)
	}
}

func TestClamp16(t *testing.T) {
	tests := []struct {
		in   float64
		want int16
	}{
		{0, 0},
		{1.9, 1},
		{-1.9, -1},
		{32766.9, 32766},
		{32767, 32767},
		{1e9, 32767},
		{-32768, -32768},
		{-1e9, -32768},
	}
	for _, tt := range tests {
		if got := clamp16(tt.in); got != tt.want {
			t.Errorf("clamp16(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMotorIDValidate(t *testing.T) {
	for _, id := range []MotorID{1, 64, 127} {
		if err := id.Validate(); err != nil {
			t.Errorf("Validate(%d) = %v", id, err)
		}
	}
	for _, id := range []MotorID{0, 128, 255} {
		if err := id.Validate(); err == nil {
			t.Errorf("Validate(%d) accepted", id)
		}
	}
}

func TestDecodeStreamRejects(t *testing.T) {
	if _, _, _, err := DecodeStream(can.Frame{ID: 0x123, Len: 8}); err == nil {
		t.Fatal("non-stream id accepted")
	}
	if _, _, _, err := DecodeStream(can.Frame{ID: IDVelocityStream, Len: 4}); err == nil {
		t.Fatal("short frame accepted")
	}
}
