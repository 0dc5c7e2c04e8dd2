package motor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tianrking/HighTorque-Control/pkg/can"
	"github.com/tianrking/HighTorque-Control/pkg/protocol"
)

// Info describes one probed actuator. It is complete once the scan of that
// id returns and is not updated afterwards.
type Info struct {
	ID              protocol.MotorID `json:"id"`
	Online          bool             `json:"online"`
	Name            string           `json:"name,omitempty"`
	HardwareVersion string           `json:"hardware_version,omitempty"`
	Latency         time.Duration    `json:"latency_ns,omitempty"`
	Mode            *byte            `json:"mode,omitempty"`
}

// ModeName names the reported mode, or "n/a" when the reply carried none.
func (i Info) ModeName() string {
	if i.Mode == nil {
		return "n/a"
	}
	return protocol.ModeName(*i.Mode)
}

// Scanner probes an id range and classifies each id online or offline.
// Offline is the expected outcome for an empty id, not an error.
type Scanner struct {
	bus         can.Bus
	window      time.Duration
	readTimeout time.Duration
	spacing     time.Duration
}

// ScanOption adjusts scan timing.
type ScanOption func(*Scanner)

// WithWindow sets the total reply window per probed id.
func WithWindow(d time.Duration) ScanOption {
	return func(s *Scanner) { s.window = d }
}

// WithReadTimeout sets the per-read poll timeout inside the window.
func WithReadTimeout(d time.Duration) ScanOption {
	return func(s *Scanner) { s.readTimeout = d }
}

// WithProbeSpacing sets the pause between consecutive probes so a range
// scan does not flood the bus.
func WithProbeSpacing(d time.Duration) ScanOption {
	return func(s *Scanner) { s.spacing = d }
}

// NewScanner creates a scanner with 50 ms windows, 10 ms reads, and 10 ms
// probe spacing unless options say otherwise.
func NewScanner(bus can.Bus, opts ...ScanOption) *Scanner {
	s := &Scanner{
		bus:         bus,
		window:      50 * time.Millisecond,
		readTimeout: 10 * time.Millisecond,
		spacing:     10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScanOne probes a single id: one ping, then repeated bounded reads until a
// reply decodes to the probed id or the window expires. A transmit failure
// or an invalid id classifies as offline immediately.
func (s *Scanner) ScanOne(ctx context.Context, id protocol.MotorID) Info {
	return s.scan(ctx, id, s.window)
}

func (s *Scanner) scan(ctx context.Context, id protocol.MotorID, window time.Duration) Info {
	info := Info{ID: id}
	if id.Validate() != nil {
		return info
	}

	start := time.Now()
	if err := s.bus.Send(ctx, protocol.EncodePing(id)); err != nil {
		return info
	}

	deadline := start.Add(window)
	for time.Now().Before(deadline) {
		readTimeout := s.readTimeout
		if remain := time.Until(deadline); remain < readTimeout {
			readTimeout = remain
		}
		rctx, cancel := context.WithTimeout(ctx, readTimeout)
		f, err := s.bus.Receive(rctx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				continue // this read timed out, the window may allow another
			}
			return info // cancelled or bus failure
		}

		src, ok := protocol.DecodePingReply(f, id)
		if !ok || src != id {
			continue // someone else's traffic
		}

		info.Online = true
		info.Latency = time.Since(start)
		if name, hw, ok := protocol.DecodeInfoReply(f); ok {
			info.Name, info.HardwareVersion = name, hw
		} else if mode, ok := protocol.DecodeModeReply(f); ok {
			m := mode
			info.Mode = &m
		}
		return info
	}
	return info
}

// ScanRange probes every id from start to end in ascending order with the
// configured spacing between probes. The result preserves probe order and
// has one entry per id. Re-running a scan re-probes every id; an earlier
// offline result never suppresses a later probe.
func (s *Scanner) ScanRange(ctx context.Context, start, end protocol.MotorID) ([]Info, error) {
	if err := start.Validate(); err != nil {
		return nil, fmt.Errorf("motor: scan start: %w", err)
	}
	if err := end.Validate(); err != nil {
		return nil, fmt.Errorf("motor: scan end: %w", err)
	}
	if start > end {
		return nil, fmt.Errorf("motor: scan range %d..%d is inverted", start, end)
	}

	infos := make([]Info, 0, int(end-start)+1)
	for id := start; ; id++ {
		if err := ctx.Err(); err != nil {
			return infos, err
		}
		infos = append(infos, s.ScanOne(ctx, id))
		if id == end {
			break
		}
		if err := sleep(ctx, s.spacing); err != nil {
			return infos, err
		}
	}
	return infos, nil
}

// Reliability timing: short ping windows, unhurried pacing.
const (
	reliabilityWindow  = 20 * time.Millisecond
	reliabilitySpacing = 100 * time.Millisecond
)

// Reliability pings one id count times and reports how many pings got a
// reply, plus the latency of each success. observe, when non-nil, is called
// after every ping with its 1-based sequence number. Communication above
// 90% is healthy wiring; below 70% usually means bus errors or a marginal
// transceiver.
func (s *Scanner) Reliability(ctx context.Context, id protocol.MotorID, count int, observe func(seq int, info Info)) (ok int, latencies []time.Duration) {
	for i := 0; i < count; i++ {
		if i > 0 {
			if err := sleep(ctx, reliabilitySpacing); err != nil {
				return ok, latencies
			}
		}
		info := s.scan(ctx, id, reliabilityWindow)
		if info.Online {
			ok++
			latencies = append(latencies, info.Latency)
		}
		if observe != nil {
			observe(i+1, info)
		}
		if ctx.Err() != nil {
			return ok, latencies
		}
	}
	return ok, latencies
}
