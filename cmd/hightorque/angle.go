package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tianrking/HighTorque-Control/pkg/control"
	"github.com/tianrking/HighTorque-Control/pkg/motor"
	"github.com/tianrking/HighTorque-Control/pkg/protocol"
)

type AngleCommand struct {
	ID          int     `long:"id" description:"Actuator id (1-127), scans and asks when omitted"`
	Hz          int     `long:"hz" description:"Setpoint rate (overrides config)"`
	KP          float64 `long:"kp" default:"1.0" description:"Position loop kp"`
	KD          float64 `long:"kd" default:"0.1" description:"Position loop kd"`
	VelLimit    float64 `long:"vel-limit" default:"2" description:"Velocity limit in rad/s"`
	TorqueLimit float64 `long:"torque-limit" description:"Torque limit in Nm (overrides config)"`
	Yes         bool    `short:"y" long:"yes" description:"Skip the motion confirmation"`
}

func (c *AngleCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Hz != 0 {
		cfg.Control.Hz = c.Hz
	}
	if c.TorqueLimit != 0 {
		cfg.Control.TorqueLimit = c.TorqueLimit
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if c.ID != 0 {
		if err := protocol.MotorID(c.ID).Validate(); err != nil {
			return err
		}
	}
	if c.KP <= 0 || c.KD < 0 || c.VelLimit <= 0 {
		return fmt.Errorf("kp and vel-limit must be positive, kd must not be negative")
	}

	ctx, stop := signalContext()
	defer stop()

	bus, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	var id protocol.MotorID
	if c.ID == 0 {
		if id, err = pickMotor(ctx, bus, cfg); err != nil {
			return err
		}
	} else {
		id = protocol.MotorID(c.ID)
		if info := motor.NewScanner(bus).ScanOne(ctx, id); !info.Online {
			return fmt.Errorf("motor %d did not answer on %s", id, cfg.Bus.Interface)
		}
	}

	if !c.Yes && !confirm(fmt.Sprintf("Motor %d will move to commanded angles. Start?", id), "Start") {
		fmt.Println("Aborted.")
		return nil
	}

	sess, err := motor.NewSession(bus, id)
	if err != nil {
		return err
	}
	if err := sess.Enable(ctx, motor.AngleEnable(c.KP, c.KD)); err != nil {
		return err
	}
	defer func() {
		dctx, dcancel := context.WithTimeout(context.Background(), time.Second)
		defer dcancel()
		if err := sess.Disable(dctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: disable failed: %v\n", err)
		} else {
			fmt.Println("Motor disabled.")
		}
	}()

	ctrl, err := control.NewController(bus, control.Config{
		Mode: control.ModeAngle,
		Hz:   cfg.Control.Hz,
	})
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	loopDone := make(chan error, 1)
	go func() { loopDone <- ctrl.Start(loopCtx) }()

	velLimit := c.VelLimit
	tqeLimit := cfg.Control.TorqueLimit

	fmt.Println("Angle shell. Type an angle in degrees, 'limits <vel> <torque>', 'center', or 'q'.")
	fmt.Printf("Limits: %.2f rad/s, %.2f Nm\n", velLimit, tqeLimit)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

shell:
	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			break shell
		case line, open := <-lines:
			if !open {
				fmt.Println()
				break shell
			}
			fields := strings.Fields(line)
			switch {
			case len(fields) == 0:
				continue
			case fields[0] == "q" || fields[0] == "quit" || fields[0] == "exit":
				break shell
			case fields[0] == "center":
				ctrl.SetAngle(0, velLimit, tqeLimit)
				fmt.Println("-> 0.0 deg")
			case fields[0] == "limits":
				if len(fields) != 3 {
					fmt.Println("usage: limits <vel rad/s> <torque Nm>")
					continue
				}
				v, verr := strconv.ParseFloat(fields[1], 64)
				tq, terr := strconv.ParseFloat(fields[2], 64)
				if verr != nil || terr != nil || v <= 0 || tq <= 0 {
					fmt.Println("usage: limits <vel rad/s> <torque Nm>")
					continue
				}
				velLimit, tqeLimit = v, tq
				fmt.Printf("Limits: %.2f rad/s, %.2f Nm\n", velLimit, tqeLimit)
			default:
				deg, perr := strconv.ParseFloat(fields[0], 64)
				if perr != nil {
					fmt.Printf("%q is not an angle\n", line)
					continue
				}
				ctrl.SetAngle(deg, velLimit, tqeLimit)
				fmt.Printf("-> %+.1f deg\n", deg)
			}
		}
	}

	cancel()
	<-loopDone
	return nil
}
