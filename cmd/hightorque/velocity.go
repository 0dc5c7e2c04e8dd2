package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/tianrking/HighTorque-Control/pkg/control"
	"github.com/tianrking/HighTorque-Control/pkg/motor"
	"github.com/tianrking/HighTorque-Control/pkg/protocol"
)

type VelocityCommand struct {
	ID          int     `long:"id" description:"Actuator id (1-127), scans and asks when omitted"`
	Hz          int     `long:"hz" description:"Setpoint rate (overrides config)"`
	Accel       float64 `long:"accel" description:"Cruise acceleration in rad/s^2 (overrides config)"`
	TorqueLimit float64 `long:"torque-limit" description:"Torque limit in Nm (overrides config)"`
	KP          float64 `long:"kp" description:"Velocity loop kp (overrides config)"`
	KD          float64 `long:"kd" description:"Velocity loop kd (overrides config)"`
	Yes         bool    `short:"y" long:"yes" description:"Skip the motion confirmation"`

	Pattern   string  `long:"pattern" choice:"sine" choice:"step" choice:"ramp" description:"Run a velocity profile instead of the interactive TUI"`
	Amplitude float64 `long:"amplitude" default:"2" description:"Sine peak in rad/s"`
	Frequency float64 `long:"frequency" default:"0.5" description:"Sine frequency in Hz"`
	Levels    string  `long:"levels" default:"1,2,3,2,1" description:"Step levels in rad/s, comma separated"`
	Hold      string  `long:"hold" default:"2s" description:"Step hold time"`
	From      float64 `long:"from" default:"0" description:"Ramp start in rad/s"`
	To        float64 `long:"to" default:"3" description:"Ramp end in rad/s"`
	Duration  string  `long:"duration" default:"10s" description:"Sine/ramp duration"`
}

func (c *VelocityCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Hz != 0 {
		cfg.Control.Hz = c.Hz
	}
	if c.Accel != 0 {
		cfg.Control.Acceleration = c.Accel
	}
	if c.TorqueLimit != 0 {
		cfg.Control.TorqueLimit = c.TorqueLimit
	}
	if c.KP != 0 {
		cfg.Control.KP = c.KP
	}
	if c.KD != 0 {
		cfg.Control.KD = c.KD
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if c.ID != 0 {
		if err := protocol.MotorID(c.ID).Validate(); err != nil {
			return err
		}
	}

	var pat control.Pattern
	if c.Pattern != "" {
		pat, err = c.buildPattern()
		if err != nil {
			return err
		}
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
		// Make sure someone is home before spinning anything.
		if info := motor.NewScanner(bus).ScanOne(ctx, id); !info.Online {
			return fmt.Errorf("motor %d did not answer on %s", id, cfg.Bus.Interface)
		}
	}

	if !c.Yes && !confirm(fmt.Sprintf("Motor %d will spin. Start velocity control?", id), "Start") {
		fmt.Println("Aborted.")
		return nil
	}

	sess, err := motor.NewSession(bus, id)
	if err != nil {
		return err
	}
	if err := sess.Enable(ctx, motor.VelocityEnable(cfg.Control.TorqueLimit, cfg.Control.KP, cfg.Control.KD)); err != nil {
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
		Mode:              control.ModeVelocity,
		Hz:                cfg.Control.Hz,
		Acceleration:      cfg.Control.Acceleration,
		BrakeAcceleration: cfg.Control.BrakeAcceleration,
	})
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	loopDone := make(chan error, 1)
	go func() { loopDone <- ctrl.Start(loopCtx) }()

	if pat != nil {
		err = runHeadless(ctx, ctrl, pat)
	} else {
		p := tea.NewProgram(initialVelocityModel(ctrl, id), tea.WithAltScreen())
		_, err = p.Run()
	}

	// Stop the loop before disabling so the brake frame goes out first.
	cancel()
	<-loopDone
	return err
}

func (c *VelocityCommand) buildPattern() (control.Pattern, error) {
	duration, err := time.ParseDuration(c.Duration)
	if err != nil {
		return nil, fmt.Errorf("duration %q is not a duration", c.Duration)
	}
	switch c.Pattern {
	case "sine":
		return control.Sine{Amplitude: c.Amplitude, Frequency: c.Frequency, Duration: duration}, nil
	case "ramp":
		return control.Ramp{From: c.From, To: c.To, Duration: duration}, nil
	case "step":
		hold, err := time.ParseDuration(c.Hold)
		if err != nil || hold <= 0 {
			return nil, fmt.Errorf("hold %q is not a positive duration", c.Hold)
		}
		var levels []float64
		for _, field := range strings.Split(c.Levels, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("levels %q: %q is not a number", c.Levels, field)
			}
			levels = append(levels, v)
		}
		return control.Step{Levels: levels, Hold: hold}, nil
	default:
		return nil, fmt.Errorf("unknown pattern %q", c.Pattern)
	}
}

// runHeadless drives the controller from a pattern and prints the commanded
// state a few times a second.
func runHeadless(ctx context.Context, ctrl *control.Controller, pat control.Pattern) error {
	fmt.Println("Running pattern. Ctrl-C to stop.")

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- control.RunPattern(pctx, ctrl, pat, 10*time.Millisecond) }()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			if errors.Is(err, context.Canceled) {
				fmt.Println("Interrupted.")
				return nil
			}
			fmt.Println("Pattern finished.")
			return err
		case <-ticker.C:
			select {
			case s := <-ctrl.States():
				line := fmt.Sprintf("  v %+6.2f rad/s   a %5.1f rad/s^2", s.Velocity, s.Acceleration)
				if s.Braking {
					line += "  " + dimStyle.Render("brake")
				}
				if s.Err != nil {
					line += "  " + errorStyle.Render(s.Err.Error())
				}
				fmt.Println(line)
			default:
			}
		}
	}
}

const (
	headerHeight = 2 // title + blank line
	statusHeight = 2 // setpoint line + blank
	footerHeight = 8 // log box + help line
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

const (
	velocityStep = 0.5 // rad/s per keypress
	accelStep    = 5.0 // rad/s^2 per keypress
)

var (
	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle        = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	velocityLineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))
)

type velocityModel struct {
	ctrl     *control.Controller
	id       protocol.MotorID
	chart    *streamlinechart.Model
	width    int // terminal width
	height   int // terminal height
	logs     []string
	state    control.State
	quitting bool
}

// Messages from the controller
type stateMsg control.State
type logMsg string

func waitForState(ctrl *control.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *control.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

func initialVelocityModel(ctrl *control.Controller, id protocol.MotorID) velocityModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-8, 8),
	)
	chart.SetDataSetStyles("commanded", runes.ThinLineStyle, velocityLineStyle)

	return velocityModel{
		ctrl:  ctrl,
		id:    id,
		chart: &chart,
	}
}

func (m *velocityModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *velocityModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - statusHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *velocityModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func (m velocityModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m velocityModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			m.ctrl.SetVelocity(m.ctrl.Velocity() + velocityStep)
		case "down", "j":
			m.ctrl.SetVelocity(m.ctrl.Velocity() - velocityStep)
		case "a":
			m.ctrl.SetAcceleration(m.ctrl.Acceleration() + accelStep)
		case "z":
			if next := m.ctrl.Acceleration() - accelStep; next >= accelStep {
				m.ctrl.SetAcceleration(next)
			}
		case "0", " ":
			m.ctrl.SetVelocity(0)
		}
		return m, nil

	case stateMsg:
		m.state = control.State(msg)
		m.chart.PushDataSet("commanded", m.state.Velocity)
		m.chart.DrawAll()
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)
	}

	return m, nil
}

func (m velocityModel) View() string {
	if m.quitting {
		return "Velocity control stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("HighTorque Velocity"))
	sb.WriteString(fmt.Sprintf(" - motor %d - %d Hz", m.id, m.ctrl.Hz()))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Setpoints
	status := fmt.Sprintf("commanded %+5.2f rad/s   accel %4.1f rad/s^2", m.state.Velocity, m.state.Acceleration)
	if m.state.Braking {
		status += "   " + warnStyle.Render("braking")
	}
	sb.WriteString(status)
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("9"))

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("No warnings")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	sb.WriteString(statusStyle.Render("↑/↓ velocity ±0.5  a/z accel ±5  space stop  q quit"))
	sb.WriteString("\n")

	return sb.String()
}
