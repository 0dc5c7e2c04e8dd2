package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/tianrking/HighTorque-Control/pkg/can"
	"github.com/tianrking/HighTorque-Control/pkg/config"
	"github.com/tianrking/HighTorque-Control/pkg/motor"
	"github.com/tianrking/HighTorque-Control/pkg/protocol"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type ScanCommand struct {
	Start int    `long:"start" description:"First id to probe (default from config)"`
	End   int    `long:"end" description:"Last id to probe (default from config)"`
	Save  string `long:"save" description:"Write the results to a JSON report file"`
}

func (c *ScanCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	start, end := cfg.Scan.Start, cfg.Scan.End
	if c.Start != 0 {
		start = c.Start
	}
	if c.End != 0 {
		end = c.End
	}

	ctx, stop := signalContext()
	defer stop()

	bus, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	fmt.Println(headerStyle.Render("HighTorque Scan"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━"))
	fmt.Printf("Probing ids %d-%d on %s...\n\n", start, end, cfg.Bus.Interface)

	sc := motor.NewScanner(bus,
		motor.WithWindow(cfg.Scan.Window()),
		motor.WithReadTimeout(cfg.Scan.ReadTimeout()),
		motor.WithProbeSpacing(cfg.Scan.ProbeSpacing()),
	)
	infos, scanErr := sc.ScanRange(ctx, protocol.MotorID(start), protocol.MotorID(end))
	if len(infos) == 0 && scanErr != nil {
		return scanErr
	}

	fmt.Println(renderScanTable(infos))
	fmt.Println()

	online := 0
	for _, info := range infos {
		if info.Online {
			online++
		}
	}
	if online > 0 {
		fmt.Println(successStyle.Render(fmt.Sprintf("%d of %d ids online", online, len(infos))))
	} else {
		fmt.Println("No actuators found. Check power, wiring, and bitrate.")
	}
	if scanErr != nil {
		fmt.Println(dimStyle.Render("Scan interrupted before the last id."))
	}

	if c.Save != "" {
		report := motor.NewReport(cfg.Bus.Interface, cfg.Bus.Bitrate, infos)
		if err := report.Save(c.Save); err != nil {
			return fmt.Errorf("save report: %w", err)
		}
		fmt.Printf("Report written to %s\n", c.Save)
	}
	return nil
}

func renderScanTable(infos []motor.Info) string {
	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableOnlineStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableOfflineStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Padding(0, 1)

	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		if !info.Online {
			rows = append(rows, []string{strconv.Itoa(int(info.ID)), "offline", "-", "-", "-", "-"})
			continue
		}
		name := info.Name
		if name == "" {
			name = "-"
		}
		hw := info.HardwareVersion
		if hw == "" {
			hw = "-"
		}
		rows = append(rows, []string{
			strconv.Itoa(int(info.ID)),
			"online",
			name,
			hw,
			info.Latency.Round(100 * time.Microsecond).String(),
			info.ModeName(),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("ID", "Status", "Name", "HW", "Latency", "Mode").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			if row >= 0 && row < len(infos) && infos[row].Online {
				if col == 1 {
					return tableOnlineStyle
				}
				return tableCellStyle
			}
			return tableOfflineStyle
		})
	return t.Render()
}

// pickMotor scans the configured id range and asks which of the discovered
// motors to use. Called by commands whose --id flag was left out.
func pickMotor(ctx context.Context, bus can.Bus, cfg *config.Config) (protocol.MotorID, error) {
	fmt.Printf("No --id given, scanning ids %d-%d on %s...\n",
		cfg.Scan.Start, cfg.Scan.End, cfg.Bus.Interface)

	sc := motor.NewScanner(bus,
		motor.WithWindow(cfg.Scan.Window()),
		motor.WithReadTimeout(cfg.Scan.ReadTimeout()),
		motor.WithProbeSpacing(cfg.Scan.ProbeSpacing()),
	)
	infos, err := sc.ScanRange(ctx, protocol.MotorID(cfg.Scan.Start), protocol.MotorID(cfg.Scan.End))
	if err != nil {
		return 0, err
	}

	var options []huh.Option[protocol.MotorID]
	for _, info := range infos {
		if !info.Online {
			continue
		}
		label := fmt.Sprintf("Motor %d", info.ID)
		if info.Name != "" {
			label += "  " + info.Name
			if info.HardwareVersion != "" {
				label += " " + info.HardwareVersion
			}
		}
		options = append(options, huh.NewOption(label, info.ID))
	}
	if len(options) == 0 {
		return 0, fmt.Errorf("no actuators found between ids %d and %d", cfg.Scan.Start, cfg.Scan.End)
	}

	var id protocol.MotorID
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[protocol.MotorID]().
				Title("Which motor?").
				Options(options...).
				Value(&id),
		),
	)
	if err := form.Run(); err != nil {
		return 0, err
	}
	return id, nil
}
