package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"github.com/gwillem/glove/pkg/glove"
	"github.com/gwillem/glove/pkg/ingest"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SetupCommand struct {
	NoServo bool `long:"no-servo" description:"Skip scanning for a servo hand"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Glove Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Step 1: find the glove
	ports := listPorts()
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		fmt.Println("Make sure the glove is connected and powered on.")
		os.Exit(1)
	}
	fmt.Println("Probing serial ports for glove telemetry...")
	fmt.Println()
	if err := selectGlovePort(cfg, probePorts(ports, cfg.BaudRate)); err != nil {
		return err
	}

	// Step 2: mapping options
	if err := selectMapping(cfg); err != nil {
		return err
	}
	if err := cfg.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	// Step 3: optional servo hand
	if !c.NoServo {
		fmt.Println()
		fmt.Println(subHeaderStyle.Render("━━━ Servo Hand ━━━"))
		fmt.Println()
		if servoCfg := setupServoHand(ports, cfg.Port); servoCfg != nil {
			cfg.Servo = servoCfg
			if err := cfg.SaveTo(opts.Config); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
		}
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Start streaming with: " + headerStyle.Render("glove stream"))
	return nil
}

func listPorts() []string {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}
	var out []string
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		out = append(out, port)
	}
	return out
}

type portProbe struct {
	port   string
	fields int
	valid  bool
}

// probePorts reads for a short while from every port and reports whether a
// full glove packet was seen.
func probePorts(ports []string, baud int) []portProbe {
	var out []portProbe
	for _, port := range ports {
		p := portProbe{port: port}
		t, err := ingest.OpenSerial(port, baud, 100*time.Millisecond)
		if err != nil {
			log.WithFields(log.Fields{"port": port, "err": err}).Debug("setup: open failed")
			out = append(out, p)
			continue
		}
		deadline := time.Now().Add(1500 * time.Millisecond)
		for time.Now().Before(deadline) {
			line, err := t.ReadLine()
			if err != nil {
				if ingest.IsTimeout(err) {
					continue
				}
				break
			}
			p.fields = len(glove.SplitFields(line))
			if _, err := glove.ParseSample(line); err == nil {
				p.valid = true
				break
			}
		}
		t.Close()
		if p.valid {
			fmt.Printf("  Found glove telemetry on %s (%d fields)\n", port, p.fields)
		}
		out = append(out, p)
	}
	return out
}

func selectGlovePort(cfg *glove.Config, probes []portProbe) error {
	var options []huh.Option[string]
	for _, p := range probes {
		label := p.port
		switch {
		case p.valid:
			label += " (glove packets)"
		case p.fields > 0:
			label += fmt.Sprintf(" (%d fields, not a glove?)", p.fields)
		default:
			label += " (silent)"
		}
		opt := huh.NewOption(label, p.port)
		if p.valid && cfg.Port == "" {
			cfg.Port = p.port
		}
		options = append(options, opt)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which port is the glove on?").
				Options(options...).
				Value(&cfg.Port),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	return nil
}

func selectMapping(cfg *glove.Config) error {
	var profiles []huh.Option[string]
	for _, name := range glove.PresetNames() {
		profiles = append(profiles, huh.NewOption(name, name))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Sensitivity profile").
				Description("Degrees of phalanx rotation per radian of sensor delta").
				Options(profiles...).
				Value(&cfg.Profile),
			huh.NewSelect[string]().
				Title("Packet hand-off").
				Options(
					huh.NewOption("Latest packet only (lowest latency)", glove.HandoffLatest),
					huh.NewOption("Every packet in order", glove.HandoffQueue),
				).
				Value(&cfg.Handoff),
			huh.NewConfirm().
				Title("Wait for calibration before mapping?").
				Value(&cfg.RequireCalibration),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	return nil
}

type handInfo struct {
	port   string
	servos []feetech.FoundServo
	bus    *feetech.Bus
}

func findServoHand(ports []string, skip string) *handInfo {
	for _, port := range ports {
		if port == skip {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)

		bus, err := feetech.NewBus(feetech.BusConfig{
			Port:     port,
			BaudRate: 1_000_000,
			Protocol: feetech.ProtocolSTS,
			Timeout:  100 * time.Millisecond,
		})
		if err != nil {
			cancel()
			continue
		}

		servos, err := bus.Scan(ctx, 1, glove.NumFingers)
		cancel()
		if err != nil || !isServoHand(servos) {
			bus.Close()
			continue
		}
		fmt.Printf("  Found servo hand on %s\n", port)
		return &handInfo{port: port, servos: servos, bus: bus}
	}
	return nil
}

// isServoHand reports whether servos are exactly IDs 1..5.
func isServoHand(servos []feetech.FoundServo) bool {
	if len(servos) != glove.NumFingers {
		return false
	}
	ids := make(map[int]bool)
	for _, s := range servos {
		ids[s.ID] = true
	}
	for i := 1; i <= glove.NumFingers; i++ {
		if !ids[i] {
			return false
		}
	}
	return true
}

func setupServoHand(ports []string, glovePort string) *glove.ServoConfig {
	fmt.Println("Scanning for a servo hand...")
	hand := findServoHand(ports, glovePort)
	if hand == nil {
		fmt.Println(dimStyle.Render("No servo hand found, skipping."))
		return nil
	}
	defer hand.bus.Close()

	use := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Drive the servo hand on %s?", hand.port)).
				Value(&use),
		),
	)
	if err := form.Run(); err != nil || !use {
		return nil
	}

	ctx := context.Background()
	servoMap := make(map[int]*feetech.Servo)
	for _, s := range hand.servos {
		servoMap[s.ID] = feetech.NewServo(hand.bus, s.ID, s.Model)
	}
	// Torque off so each finger can be moved by hand
	for _, servo := range servoMap {
		servo.Disable(ctx)
	}

	fingers := glove.AllFingers()
	cur := make(map[glove.FingerName]int)
	lo := make(map[glove.FingerName]int)
	hi := make(map[glove.FingerName]int)
	for i, name := range fingers {
		pos, _ := servoMap[i+1].Position(ctx)
		cur[name], lo[name], hi[name] = pos, pos, pos
	}

	fmt.Println(subHeaderStyle.Render("Record range of motion"))
	fmt.Println("Move each servo finger from fully open to fully closed.")
	fmt.Println()

	p := tea.NewProgram(newServoRangeModel(fingers, servoMap, cur, lo, hi))
	final, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error recording servo range: %v\n", err)
		return nil
	}
	m := final.(servoRangeModel)

	cfg := &glove.ServoConfig{
		Port:     hand.port,
		BaudRate: 1_000_000,
		Fingers:  make(map[glove.FingerName]glove.ServoChannel),
	}
	for i, name := range fingers {
		cfg.Fingers[name] = glove.ServoChannel{
			ID:         i + 1,
			RangeMin:   m.lo[name],
			RangeMax:   m.hi[name],
			MaxDegrees: glove.DefaultServoMaxDegrees,
		}
	}
	fmt.Println("Servo hand calibrated.")
	return cfg
}

// servoRangeModel tracks min/max raw positions while the user moves the
// servo fingers by hand.
type servoRangeModel struct {
	fingers  []glove.FingerName
	servoMap map[int]*feetech.Servo
	cur      map[glove.FingerName]int
	lo       map[glove.FingerName]int
	hi       map[glove.FingerName]int
	quitting bool
}

type tickMsg time.Time

func newServoRangeModel(
	fingers []glove.FingerName,
	servoMap map[int]*feetech.Servo,
	cur, lo, hi map[glove.FingerName]int,
) servoRangeModel {
	return servoRangeModel{fingers: fingers, servoMap: servoMap, cur: cur, lo: lo, hi: hi}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m servoRangeModel) Init() tea.Cmd {
	return tick()
}

func (m servoRangeModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		ctx := context.Background()
		for i, name := range m.fingers {
			pos, err := m.servoMap[i+1].Position(ctx)
			if err != nil {
				continue
			}
			m.cur[name] = pos
			m.lo[name] = min(m.lo[name], pos)
			m.hi[name] = max(m.hi[name], pos)
		}
		return m, tick()
	}
	return m, nil
}

func (m servoRangeModel) View() string {
	if m.quitting {
		return ""
	}

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableNameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableCurrentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)
	tableRangeGoodStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableRangeLowStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)

	rows := make([][]string, 0, len(m.fingers))
	ranges := make([]int, 0, len(m.fingers))
	for _, name := range m.fingers {
		r := m.hi[name] - m.lo[name]
		ranges = append(ranges, r)
		ch := glove.ServoChannel{RangeMin: m.lo[name], RangeMax: m.hi[name], MaxDegrees: glove.DefaultServoMaxDegrees}
		rows = append(rows, []string{
			name.Label(),
			fmt.Sprintf("%d", m.cur[name]),
			fmt.Sprintf("%.0f°", ch.Degrees(m.cur[name])),
			fmt.Sprintf("%d", m.lo[name]),
			fmt.Sprintf("%d", m.hi[name]),
			fmt.Sprintf("%d", r),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Finger", "Current", "Angle", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			switch col {
			case 0:
				return tableNameStyle
			case 1, 2:
				return tableCurrentStyle
			case 5:
				if row >= 0 && row < len(ranges) && ranges[row] > 500 {
					return tableRangeGoodStyle
				}
				return tableRangeLowStyle
			default:
				return tableCellStyle
			}
		})

	return t.Render() + "\n\n" + dimStyle.Render("Press Enter when done")
}
