package control

import (
	"context"
	"math"
	"time"
)

// Pattern generates a velocity profile over elapsed time. The returned
// velocity is meaningful only while done is false; once a pattern reports
// done the runner commands zero.
type Pattern interface {
	At(elapsed time.Duration) (velocity float64, done bool)
}

// Sine sweeps velocity sinusoidally around zero. A Duration of zero runs
// until cancelled.
type Sine struct {
	Amplitude float64 // rad/s peak
	Frequency float64 // Hz
	Duration  time.Duration
}

func (p Sine) At(elapsed time.Duration) (float64, bool) {
	if p.Duration > 0 && elapsed >= p.Duration {
		return 0, true
	}
	return p.Amplitude * math.Sin(2*math.Pi*p.Frequency*elapsed.Seconds()), false
}

// Step holds each level in turn for Hold, then finishes.
type Step struct {
	Levels []float64 // rad/s
	Hold   time.Duration
}

func (p Step) At(elapsed time.Duration) (float64, bool) {
	if p.Hold <= 0 || len(p.Levels) == 0 {
		return 0, true
	}
	idx := int(elapsed / p.Hold)
	if idx >= len(p.Levels) {
		return 0, true
	}
	return p.Levels[idx], false
}

// Ramp moves velocity linearly from From to To over Duration.
type Ramp struct {
	From, To float64 // rad/s
	Duration time.Duration
}

func (p Ramp) At(elapsed time.Duration) (float64, bool) {
	if p.Duration <= 0 || elapsed >= p.Duration {
		return p.To, true
	}
	frac := elapsed.Seconds() / p.Duration.Seconds()
	return p.From + (p.To-p.From)*frac, false
}

// RunPattern feeds a velocity profile into a controller, updating the
// setpoint every interval until the pattern finishes or ctx is cancelled.
// The commanded velocity returns to zero on the way out no matter how the
// run ends.
func RunPattern(ctx context.Context, c *Controller, p Pattern, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	defer c.SetVelocity(0)

	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			v, done := p.At(time.Since(start))
			if done {
				return nil
			}
			c.SetVelocity(v)
		}
	}
}
