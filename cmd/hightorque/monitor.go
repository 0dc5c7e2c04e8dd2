package main

import (
	"fmt"
	"time"

	"github.com/tianrking/HighTorque-Control/pkg/motor"
	"github.com/tianrking/HighTorque-Control/pkg/protocol"
)

type MonitorCommand struct {
	ID       int    `long:"id" required:"true" description:"Actuator id (1-127)"`
	Interval string `long:"interval" default:"1s" description:"Probe interval"`
}

func (c *MonitorCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	id := protocol.MotorID(c.ID)
	if err := id.Validate(); err != nil {
		return err
	}
	interval, err := time.ParseDuration(c.Interval)
	if err != nil || interval <= 0 {
		return fmt.Errorf("interval %q is not a positive duration", c.Interval)
	}

	ctx, stop := signalContext()
	defer stop()

	bus, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	fmt.Printf("Monitoring motor %d on %s every %v. Ctrl-C to stop.\n\n", id, cfg.Bus.Interface, interval)

	sc := motor.NewScanner(bus,
		motor.WithWindow(cfg.Scan.Window()),
		motor.WithReadTimeout(cfg.Scan.ReadTimeout()),
	)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		info := sc.ScanOne(ctx, id)
		stamp := time.Now().Format("15:04:05")
		if info.Online {
			line := fmt.Sprintf("%s  motor %d  %s  %v", stamp, id,
				successStyle.Render("online"), info.Latency.Round(100*time.Microsecond))
			if info.Mode != nil {
				line += "  mode=" + info.ModeName()
			}
			fmt.Println(line)
		} else {
			fmt.Printf("%s  motor %d  %s\n", stamp, id, errorStyle.Render("OFFLINE"))
		}

		select {
		case <-ctx.Done():
			fmt.Println("\nStopped.")
			return nil
		case <-ticker.C:
		}
	}
}
