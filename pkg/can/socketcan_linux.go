//go:build linux

package can

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// socketCAN implements Bus over a raw Linux SocketCAN socket. The socket is
// kept nonblocking; Send and Receive wait for readiness with select(2) so
// context deadlines and cancellation are honored.
type socketCAN struct {
	fd     int
	file   *os.File
	closed chan struct{}
}

// DialSocketCAN opens a raw CAN socket bound to the named network interface,
// e.g. "can0". The interface must exist and be up; see SetInterfaceUp and
// ConfigureInterface.
func DialSocketCAN(iface string) (Bus, error) {
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, unix.CAN_RAW)
	if err != nil {
		return nil, fmt.Errorf("can: socket: %w", err)
	}

	netIf, err := net.InterfaceByName(iface)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("can: interface %s: %w", iface, err)
	}

	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: netIf.Index}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("can: bind %s: %w", iface, err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("can: nonblock: %w", err)
	}

	// Wrapping the fd in an os.File ties its lifetime to Close below.
	f := os.NewFile(uintptr(fd), "socketcan:"+iface)
	return &socketCAN{fd: fd, file: f, closed: make(chan struct{})}, nil
}

func (s *socketCAN) Close() error {
	select {
	case <-s.closed:
		return nil
	default:
	}
	close(s.closed)
	return s.file.Close()
}

// Send writes one frame in the kernel can_frame layout.
func (s *socketCAN) Send(ctx context.Context, frame Frame) error {
	buf, err := frame.MarshalBinary()
	if err != nil {
		return err
	}
	for {
		select {
		case <-s.closed:
			return ErrClosed
		default:
		}
		n, werr := unix.Write(s.fd, buf)
		if werr == nil {
			if n != len(buf) {
				return errors.New("can: short write")
			}
			return nil
		}
		if werr == unix.EAGAIN || werr == unix.EINTR {
			if err := s.wait(ctx, false, true); err != nil {
				return err
			}
			continue
		}
		return fmt.Errorf("can: write: %w", werr)
	}
}

// Receive reads one frame, blocking until data arrives, the context ends,
// or the bus is closed.
func (s *socketCAN) Receive(ctx context.Context) (Frame, error) {
	buf := make([]byte, 16)
	for {
		select {
		case <-s.closed:
			return Frame{}, ErrClosed
		default:
		}
		n, rerr := unix.Read(s.fd, buf)
		if rerr == nil {
			if n != len(buf) {
				return Frame{}, errors.New("can: short read")
			}
			var f Frame
			if err := f.UnmarshalBinary(buf); err != nil {
				return Frame{}, err
			}
			return f, nil
		}
		if rerr == unix.EAGAIN || rerr == unix.EINTR {
			if err := s.wait(ctx, true, false); err != nil {
				return Frame{}, err
			}
			continue
		}
		return Frame{}, fmt.Errorf("can: read: %w", rerr)
	}
}

// wait blocks until the socket is readable/writable, the context ends, or
// the bus is closed. Without a context deadline it polls in 50 ms slices so
// cancellation is still seen promptly.
func (s *socketCAN) wait(ctx context.Context, read, write bool) error {
	for {
		timeout := 50 * time.Millisecond
		if deadline, ok := ctx.Deadline(); ok {
			d := time.Until(deadline)
			if d <= 0 {
				return ctx.Err()
			}
			if d < timeout {
				timeout = d
			}
		}
		tv := unix.NsecToTimeval(timeout.Nanoseconds())

		var rset, wset unix.FdSet
		if read {
			rset.Set(s.fd)
		}
		if write {
			wset.Set(s.fd)
		}
		n, err := unix.Select(s.fd+1, &rset, &wset, nil, &tv)
		if err != nil && err != unix.EINTR {
			return fmt.Errorf("can: select: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closed:
			return ErrClosed
		default:
		}
		if n > 0 {
			return nil
		}
		// Timeout slice expired; loop and re-check the context.
	}
}
