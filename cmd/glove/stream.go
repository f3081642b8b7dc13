package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	log "github.com/sirupsen/logrus"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/glove/pkg/glove"
	"github.com/gwillem/glove/pkg/ingest"
	"github.com/gwillem/glove/pkg/pose"
	"github.com/gwillem/glove/pkg/sink"
	"github.com/gwillem/glove/pkg/teleop"
)

type StreamCommand struct {
	Port     string `short:"p" long:"port" description:"Serial port (overrides config)"`
	Hz       int    `long:"hz" description:"Tick frequency (overrides config)"`
	Headless bool   `long:"headless" description:"No TUI; read c/s/h/q commands from stdin"`
	History  bool   `long:"history" description:"Keep diagnostics history for flushing with 'h'"`
	LogFile  string `long:"log-file" default:"glove.log" description:"Log file used while the TUI is active"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	tableHeight  = 9 // range table
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
)

// Finger colors - distinct colors for each finger
var fingerColors = map[glove.FingerName]string{
	glove.Index:  "196", // red
	glove.Middle: "208", // orange
	glove.Ring:   "226", // yellow
	glove.Pinky:  "46",  // green
	glove.Thumb:  "51",  // cyan
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type streamModel struct {
	ctrl     *teleop.Controller
	chart    *streamlinechart.Model
	width    int      // terminal width
	height   int      // terminal height
	logs     []string // last N log messages
	state    teleop.State
	lastSeq  uint64
	quitting bool
}

func (m *streamModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the controller
type stateMsg teleop.State
type logMsg string

func waitForState(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *teleop.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *streamModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 16 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - tableHeight - footerHeight - borderSize
	if height < 8 {
		height = 8
	}
	return width, height
}

func (m *streamModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialStreamModel(ctrl *teleop.Controller) streamModel {
	chart := streamlinechart.New(80, 16,
		streamlinechart.WithYRange(-180, 180),
	)
	for _, name := range glove.AllFingers() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(fingerColors[name]))
		chart.SetDataSetStyles(string(name), runes.ThinLineStyle, style)
	}
	return streamModel{
		ctrl:  ctrl,
		chart: &chart,
	}
}

func (m streamModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
	)
}

func (m streamModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
		case "c":
			m.ctrl.Calibrate()
		case "s":
			m.ctrl.Capture()
		case "h":
			m.ctrl.FlushHistory()
		}

	case stateMsg:
		state := teleop.State(msg)
		m.state = state
		// Only advance the chart on a new sample (freeze when idle)
		if state.HasPose && state.Pose.Seq != m.lastSeq {
			for _, f := range state.Pose.Fingers {
				m.chart.PushDataSet(string(f.Name), f.Degrees)
			}
			m.chart.DrawAll()
			m.lastSeq = state.Pose.Seq
		}
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)
	}

	return m, nil
}

func (m streamModel) View() string {
	if m.quitting {
		return "Streaming stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("Glove Stream"))
	sb.WriteString(fmt.Sprintf(" - %d Hz - %s", m.ctrl.Hz(), m.state.Calibration))
	if m.state.Error != nil {
		sb.WriteString(errorStyle.Render("  transport lost"))
	}
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(renderLegend())
	sb.WriteString("\n")
	sb.WriteString(renderRanges(m.state))
	sb.WriteString("\n")

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20))

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("c: calibrate  s: capture  h: write history  q: quit")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, name := range glove.AllFingers() {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(fingerColors[name])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+name.Label())
	}
	return strings.Join(items, "  ")
}

func renderRanges(s teleop.State) string {
	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	rows := make([][]string, 0, glove.NumFingers)
	for i, name := range glove.AllFingers() {
		cur := "-"
		if s.HasPose {
			cur = fmt.Sprintf("%.1f°", s.Pose.Fingers[i].Degrees)
		}
		rows = append(rows, []string{name.Label(), cur, fmt.Sprintf("%.1f°", s.Ranges[i])})
	}
	wrist := "-"
	if s.HasPose {
		wrist = fmt.Sprintf("%.1f°", s.Pose.WristDegrees)
	}
	rows = append(rows, []string{pose.WristLabel, wrist, ""})

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(statusStyle).
		Headers("Joint", "Angle", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case col == 0:
				return nameStyle
			default:
				return cellStyle
			}
		})
	footer := statusStyle.Render(fmt.Sprintf("packets %d  short %d  malformed %d",
		s.Ingest.Accepted, s.Ingest.Malformed, s.Malformed))
	return lipgloss.JoinHorizontal(lipgloss.Bottom, t.Render(), "  ", footer)
}

func (c *StreamCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Port != "" {
		cfg.Port = c.Port
	}
	if c.Hz > 0 {
		cfg.Hz = c.Hz
	}
	if c.History {
		cfg.History = true
	}
	if cfg.Port == "" {
		fmt.Fprintln(os.Stderr, "No glove port configured. Run 'glove setup' or pass --port.")
		os.Exit(1)
	}

	if !c.Headless {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		log.SetOutput(f)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	transport, err := ingest.OpenSerial(cfg.Port, cfg.BaudRate, cfg.ReadTimeout())
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"port": cfg.Port, "baud": cfg.BaudRate}).Info("stream: port open")

	ctrl, err := newController(ctx, cfg, transport)
	if err != nil {
		transport.Close()
		return err
	}
	defer ctrl.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- ctrl.Start(ctx)
	}()

	if c.Headless {
		return runHeadless(cancel, ctrl, errCh)
	}

	p := tea.NewProgram(initialStreamModel(ctrl), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run tui: %w", err)
	}
	cancel()
	<-errCh
	return nil
}

// newController wires the configured sinks and capture file around t.
func newController(ctx context.Context, cfg *glove.Config, t ingest.Transport) (*teleop.Controller, error) {
	profiles, err := cfg.Profiles()
	if err != nil {
		return nil, err
	}
	if cfg.LegacyWristDifference {
		log.Warn("stream: legacy wrist difference enabled, wrist rotation is not a true relative rotation")
	}

	var sinks []teleop.Sink
	closeSinks := func() {
		for _, s := range sinks {
			s.Close()
		}
	}

	if cfg.WebSocketAddr != "" {
		hub := sink.NewWSHub()
		go func() {
			if err := hub.Serve(ctx, cfg.WebSocketAddr); err != nil {
				log.WithField("err", err).Error("stream: websocket server stopped")
			}
		}()
		sinks = append(sinks, hub)
	}
	if cfg.MQTT != nil {
		pub, err := sink.NewMQTTPublisher(cfg.MQTT.Broker, cfg.MQTT.Topic, cfg.MQTT.ClientID)
		if err != nil {
			closeSinks()
			return nil, err
		}
		sinks = append(sinks, pub)
	}
	if cfg.Servo != nil {
		hand, err := sink.NewServoHand(ctx, cfg.Servo)
		if err != nil {
			closeSinks()
			return nil, err
		}
		sinks = append(sinks, hand)
	}

	ctrl, err := teleop.NewController(teleop.Config{
		Transport: t,
		Handoff:   cfg.Handoff,
		Session: pose.Options{
			Profiles:           profiles,
			RequireCalibration: cfg.RequireCalibration,
			LegacyWrist:        cfg.LegacyWristDifference,
			LogInterval:        cfg.LogInterval(),
			ReportGain:         cfg.ReportGain,
			History:            cfg.History,
		},
		Hz:                 cfg.Hz,
		JoinTimeout:        cfg.JoinTimeout(),
		AutoCalibrateAfter: cfg.AutoCalibrateAfter(),
		Sinks:              sinks,
		Capture:            &sink.CaptureFile{Path: cfg.CaptureFile, HistoryPath: cfg.HistoryFile},
	})
	if err != nil {
		closeSinks()
		return nil, err
	}
	return ctrl, nil
}

func runHeadless(cancel context.CancelFunc, ctrl *teleop.Controller, errCh <-chan error) error {
	fmt.Println("Streaming. Commands: c (calibrate), s (capture), h (write history), q (quit)")

	go func() {
		for msg := range ctrl.Logs() {
			fmt.Println(msg)
		}
	}()
	go func() {
		for range ctrl.States() {
			// drain, sinks carry the output
		}
	}()

	cmds := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			cmds <- strings.TrimSpace(scanner.Text())
		}
		close(cmds)
	}()

	for {
		select {
		case err := <-errCh:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case <-ctrl.Done():
			cancel()
			<-errCh
			return fmt.Errorf("glove transport stopped")
		case cmd, ok := <-cmds:
			if !ok {
				cmds = nil
				continue
			}
			switch cmd {
			case "c":
				ctrl.Calibrate()
			case "s":
				ctrl.Capture()
			case "h":
				ctrl.FlushHistory()
			case "q":
				cancel()
				<-errCh
				return nil
			case "":
			default:
				fmt.Printf("unknown command %q\n", cmd)
			}
		}
	}
}
