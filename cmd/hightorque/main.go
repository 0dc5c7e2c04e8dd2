package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/tianrking/HighTorque-Control/pkg/can"
	"github.com/tianrking/HighTorque-Control/pkg/config"
)

type Options struct {
	Config    string `short:"c" long:"config" default:"hightorque.yaml" description:"Configuration file"`
	Interface string `short:"i" long:"interface" description:"CAN interface or serial device (overrides config)"`
	Adapter   string `long:"adapter" choice:"socketcan" choice:"slcan" description:"Bus adapter (overrides config)"`
	Bitrate   int    `long:"bitrate" description:"CAN bitrate (overrides config)"`
	BringUp   bool   `long:"bring-up" description:"Configure and bring up the CAN interface before connecting"`
	Debug     bool   `long:"debug" description:"Log every bus frame to stderr"`

	Scan     ScanCommand     `command:"scan" description:"Scan an id range for actuators"`
	Ping     PingCommand     `command:"ping" description:"Measure ping reliability for one actuator"`
	Monitor  MonitorCommand  `command:"monitor" description:"Watch one actuator's reachability"`
	Velocity VelocityCommand `command:"velocity" alias:"vel" description:"Drive an actuator in velocity mode"`
	Angle    AngleCommand    `command:"angle" description:"Command absolute angles interactively"`
	Init     InitCommand     `command:"init" description:"Write a default configuration file"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "HighTorque - CAN bus control CLI for HighTorque rotary actuators"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// loadConfig reads the configuration file and applies the global flag
// overrides on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.Interface != "" {
		cfg.Bus.Interface = opts.Interface
	}
	if opts.Adapter != "" {
		cfg.Bus.Adapter = opts.Adapter
	}
	if opts.Bitrate != 0 {
		cfg.Bus.Bitrate = opts.Bitrate
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openBus connects to the configured adapter and drains whatever stale
// frames were sitting in the receive queue.
func openBus(cfg *config.Config) (can.Bus, error) {
	var bus can.Bus
	var err error
	switch cfg.Bus.Adapter {
	case config.AdapterSLCAN:
		bus, err = can.DialSLCAN(cfg.Bus.Interface, can.SLCANOptions{
			BaudRate: cfg.Bus.BaudRate,
			Bitrate:  cfg.Bus.Bitrate,
		})
	default:
		if opts.BringUp {
			if cerr := can.ConfigureInterface(cfg.Bus.Interface, cfg.Bus.Bitrate); cerr != nil {
				return nil, cerr
			}
		} else if up, uerr := can.IsInterfaceUp(cfg.Bus.Interface); uerr == nil && !up {
			return nil, fmt.Errorf("%s is down, run with --bring-up or: sudo ip link set %s up type can bitrate %d",
				cfg.Bus.Interface, cfg.Bus.Interface, cfg.Bus.Bitrate)
		}
		bus, err = can.DialSocketCAN(cfg.Bus.Interface)
	}
	if err != nil {
		return nil, err
	}

	can.Drain(bus, 50*time.Millisecond)

	if opts.Debug {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		bus = can.NewLogged(bus, logger, can.LogAll)
	}
	return bus, nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
