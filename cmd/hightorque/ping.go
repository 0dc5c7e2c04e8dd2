package main

import (
	"fmt"
	"time"

	"github.com/tianrking/HighTorque-Control/pkg/motor"
	"github.com/tianrking/HighTorque-Control/pkg/protocol"
)

type PingCommand struct {
	ID    int `long:"id" required:"true" description:"Actuator id (1-127)"`
	Count int `long:"count" default:"10" description:"Number of pings"`
}

func (c *PingCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	id := protocol.MotorID(c.ID)
	if err := id.Validate(); err != nil {
		return err
	}
	if c.Count < 1 {
		return fmt.Errorf("count %d must be at least 1", c.Count)
	}

	ctx, stop := signalContext()
	defer stop()

	bus, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	fmt.Printf("Pinging motor %d on %s, %d pings\n\n", id, cfg.Bus.Interface, c.Count)

	sc := motor.NewScanner(bus, motor.WithReadTimeout(cfg.Scan.ReadTimeout()))
	completed := 0
	ok, latencies := sc.Reliability(ctx, id, c.Count, func(seq int, info motor.Info) {
		completed = seq
		if info.Online {
			fmt.Printf("  %2d  %s  %v\n", seq, successStyle.Render("reply"), info.Latency.Round(100*time.Microsecond))
		} else {
			fmt.Printf("  %2d  %s\n", seq, errorStyle.Render("timeout"))
		}
	})

	fmt.Println()
	total := c.Count
	if completed < total && ctx.Err() != nil {
		total = completed
		fmt.Println(dimStyle.Render("interrupted"))
	}
	if total == 0 {
		return nil
	}

	ratio := 100 * float64(ok) / float64(total)
	var verdict string
	switch {
	case ratio >= 90:
		verdict = successStyle.Render("healthy")
	case ratio >= 70:
		verdict = warnStyle.Render("marginal, check termination")
	default:
		verdict = errorStyle.Render("bad, check wiring and bitrate")
	}
	fmt.Printf("%d/%d replies (%.0f%%)  %s\n", ok, total, ratio, verdict)

	if len(latencies) > 0 {
		var sum time.Duration
		lo, hi := latencies[0], latencies[0]
		for _, l := range latencies {
			sum += l
			if l < lo {
				lo = l
			}
			if l > hi {
				hi = l
			}
		}
		avg := sum / time.Duration(len(latencies))
		fmt.Printf("latency min/avg/max = %v/%v/%v\n",
			lo.Round(100*time.Microsecond),
			avg.Round(100*time.Microsecond),
			hi.Round(100*time.Microsecond))
	}
	return nil
}
