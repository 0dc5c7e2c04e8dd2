package can

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SLCANOptions configures DialSLCAN.
type SLCANOptions struct {
	BaudRate int // serial line rate, default 115200
	Bitrate  int // CAN bus bitrate, default 1000000
}

// LAWICEL "Sn" setup codes per CAN bitrate.
var slcanBitrateCodes = map[int]byte{
	10000:   '0',
	20000:   '1',
	50000:   '2',
	100000:  '3',
	125000:  '4',
	250000:  '5',
	500000:  '6',
	800000:  '7',
	1000000: '8',
}

// DialSLCAN opens an SLCAN (LAWICEL ASCII) serial CAN adapter on the given
// device, e.g. "/dev/ttyACM0". The channel is closed, set to the requested
// bitrate, and reopened as part of the dial.
func DialSLCAN(device string, opts SLCANOptions) (Bus, error) {
	if opts.BaudRate <= 0 {
		opts.BaudRate = 115200
	}
	if opts.Bitrate <= 0 {
		opts.Bitrate = 1000000
	}
	code, ok := slcanBitrateCodes[opts.Bitrate]
	if !ok {
		return nil, fmt.Errorf("can: no slcan code for bitrate %d", opts.Bitrate)
	}

	port, err := serial.Open(device, &serial.Mode{BaudRate: opts.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("can: open %s: %w", device, err)
	}
	port.ResetInputBuffer()

	for _, cmd := range [][]byte{{'C', '\r'}, {'S', code, '\r'}, {'O', '\r'}} {
		if _, err := port.Write(cmd); err != nil {
			port.Close()
			return nil, fmt.Errorf("can: slcan setup: %w", err)
		}
	}

	return &slcanBus{port: port, closed: make(chan struct{})}, nil
}

type slcanBus struct {
	port serial.Port

	wmu sync.Mutex // serializes adapter writes

	rmu sync.Mutex // serializes reads, guards buf
	buf []byte     // unparsed bytes from the adapter

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

func (b *slcanBus) Send(ctx context.Context, frame Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	select {
	case <-b.closed:
		return ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	line := appendSLCAN(nil, frame)
	b.wmu.Lock()
	_, err := b.port.Write(line)
	b.wmu.Unlock()
	if err != nil {
		return fmt.Errorf("can: slcan write: %w", err)
	}
	return nil
}

func (b *slcanBus) Receive(ctx context.Context) (Frame, error) {
	b.rmu.Lock()
	defer b.rmu.Unlock()

	chunk := make([]byte, 64)
	for {
		if f, ok := b.nextFrame(); ok {
			return f, nil
		}
		select {
		case <-b.closed:
			return Frame{}, ErrClosed
		default:
		}
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}

		timeout := 10 * time.Millisecond
		if deadline, ok := ctx.Deadline(); ok {
			d := time.Until(deadline)
			if d <= 0 {
				return Frame{}, ctx.Err()
			}
			if d < timeout {
				timeout = d
			}
		}
		if err := b.port.SetReadTimeout(timeout); err != nil {
			return Frame{}, fmt.Errorf("can: slcan timeout: %w", err)
		}
		n, err := b.port.Read(chunk)
		if err != nil {
			select {
			case <-b.closed:
				return Frame{}, ErrClosed
			default:
			}
			return Frame{}, fmt.Errorf("can: slcan read: %w", err)
		}
		// n == 0 means the read timed out; the loop re-checks the context.
		b.buf = append(b.buf, chunk[:n]...)
	}
}

// nextFrame consumes buffered bytes up to the next terminator and parses
// them. Command acks and error bells are skipped, not surfaced.
func (b *slcanBus) nextFrame() (Frame, bool) {
	for {
		i := bytes.IndexAny(b.buf, "\r\a")
		if i < 0 {
			if len(b.buf) > 256 {
				b.buf = b.buf[:0] // runaway garbage with no terminator
			}
			return Frame{}, false
		}
		line := b.buf[:i]
		b.buf = b.buf[i+1:]
		if f, ok := parseSLCAN(line); ok {
			return f, true
		}
	}
}

func (b *slcanBus) Close() error {
	b.closeOnce.Do(func() {
		close(b.closed)
		b.wmu.Lock()
		b.port.Write([]byte{'C', '\r'}) // best effort: close the CAN channel
		b.wmu.Unlock()
		b.closeErr = b.port.Close()
	})
	return b.closeErr
}

// appendSLCAN appends the ASCII form of the frame: a type letter
// ('t'/'T' data, 'r'/'R' RTR; upper case for extended ids), the identifier
// as %03X (standard) or %08X (extended), one DLC digit, the data bytes in
// hex, and a CR terminator.
func appendSLCAN(dst []byte, f Frame) []byte {
	switch {
	case f.RTR && f.Extended:
		dst = append(dst, 'R')
	case f.RTR:
		dst = append(dst, 'r')
	case f.Extended:
		dst = append(dst, 'T')
	default:
		dst = append(dst, 't')
	}
	if f.Extended {
		dst = append(dst, fmt.Sprintf("%08X", f.ID&MaxExtendedID)...)
	} else {
		dst = append(dst, fmt.Sprintf("%03X", f.ID&MaxStandardID)...)
	}
	dst = append(dst, '0'+f.Len)
	if !f.RTR {
		for _, b := range f.Data[:f.Len] {
			dst = append(dst, fmt.Sprintf("%02X", b)...)
		}
	}
	return append(dst, '\r')
}

// parseSLCAN decodes one record. ok is false for non-frame records
// (setup acks, status flags) and malformed lines. Trailing adapter
// timestamps after the data bytes are tolerated and ignored.
func parseSLCAN(line []byte) (Frame, bool) {
	if len(line) == 0 {
		return Frame{}, false
	}
	var f Frame
	switch line[0] {
	case 't':
	case 'T':
		f.Extended = true
	case 'r':
		f.RTR = true
	case 'R':
		f.Extended, f.RTR = true, true
	default:
		return Frame{}, false
	}

	idLen := 3
	if f.Extended {
		idLen = 8
	}
	if len(line) < 1+idLen+1 {
		return Frame{}, false
	}
	id, err := strconv.ParseUint(string(line[1:1+idLen]), 16, 32)
	if err != nil {
		return Frame{}, false
	}
	f.ID = uint32(id)

	dlc := line[1+idLen] - '0'
	if dlc > 8 {
		return Frame{}, false
	}
	f.Len = dlc

	if !f.RTR {
		start := 1 + idLen + 1
		if len(line) < start+int(dlc)*2 {
			return Frame{}, false
		}
		for i := 0; i < int(dlc); i++ {
			v, err := strconv.ParseUint(string(line[start+i*2:start+i*2+2]), 16, 8)
			if err != nil {
				return Frame{}, false
			}
			f.Data[i] = byte(v)
		}
	}

	if f.Validate() != nil {
		return Frame{}, false
	}
	return f, true
}
