package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	log "github.com/sirupsen/logrus"

	"github.com/gwillem/glove/pkg/glove"
	"github.com/gwillem/glove/pkg/ingest"
	"github.com/gwillem/glove/pkg/pose"
	"github.com/gwillem/glove/pkg/sink"
)

type ReplayCommand struct {
	CalibrateAt uint64 `long:"calibrate-at" default:"1" description:"Calibrate after this many parsed samples (0: never)"`
	Captures    bool   `long:"captures" description:"Append the final angles to the capture file"`
	History     string `long:"history-out" description:"Write diagnostics history to this file"`
	Args        struct {
		File string `positional-arg-name:"FILE" description:"Recorded telemetry, one packet per line"`
	} `positional-args:"yes" required:"yes"`
}

// frameSource hands the session one queued line per tick, the way a device
// streaming at the tick rate would.
type frameSource struct {
	q       *ingest.Queue
	pending []string
}

func (s *frameSource) Drain() []string {
	if len(s.pending) == 0 {
		s.pending = s.q.Drain()
	}
	if len(s.pending) == 0 {
		return nil
	}
	line := s.pending[0]
	s.pending = s.pending[1:]
	return []string{line}
}

func (s *frameSource) Len() int {
	return len(s.pending) + s.q.Len()
}

func (c *ReplayCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	profiles, err := cfg.Profiles()
	if err != nil {
		return err
	}

	f, err := os.Open(c.Args.File)
	if err != nil {
		return err
	}

	queue := ingest.NewQueue()
	transport := ingest.NewReaderTransport(f, 0)
	defer transport.Close()
	loop := ingest.NewLoop(transport, queue)

	src := &frameSource{q: queue}
	dt := time.Second / time.Duration(cfg.Hz)
	sess := pose.NewSession(src, pose.Options{
		Profiles:           profiles,
		RequireCalibration: cfg.RequireCalibration,
		LegacyWrist:        cfg.LegacyWristDifference,
		LogInterval:        cfg.LogInterval(),
		ReportGain:         cfg.ReportGain,
		History:            c.History != "",
	})

	if err := loop.Start(context.Background()); err != nil {
		return err
	}

	calibrated := false
	ticks := 0
	for {
		readerDone := false
		select {
		case <-loop.Done():
			readerDone = true
		default:
		}
		if !readerDone && src.Len() == 0 {
			select {
			case <-loop.Done():
			case <-time.After(time.Millisecond):
			}
			continue
		}
		if readerDone && src.Len() == 0 {
			break
		}

		sess.Tick(dt)
		ticks++
		if c.CalibrateAt > 0 && !calibrated && sess.Samples() >= c.CalibrateAt {
			if err := sess.Calibrate(); err == nil {
				calibrated = true
			}
		}
	}

	if err := loop.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("replay %s: %w", c.Args.File, err)
	}

	stats := loop.Stats()
	fmt.Println(headerStyle.Render("Replay " + c.Args.File))
	fmt.Printf("%d ticks, %d packets, %d short, %d malformed, %s\n\n",
		ticks, stats.Accepted, stats.Malformed, sess.Malformed(), sess.State())
	fmt.Println(renderReplayRanges(sess))

	capture := &sink.CaptureFile{Path: cfg.CaptureFile, HistoryPath: c.History}
	if set, ok := sess.Capture(); ok {
		fmt.Println()
		fmt.Println(set)
		if c.Captures {
			if err := capture.WriteCapture(set); err != nil {
				return err
			}
			log.WithField("file", cfg.CaptureFile).Info("replay: capture written")
		}
	}
	if c.History != "" {
		if err := capture.WriteHistory(sess.History()); err != nil {
			return err
		}
		fmt.Printf("Wrote %d history entries to %s\n", len(sess.History()), c.History)
	}
	return nil
}

func renderReplayRanges(sess *pose.Session) string {
	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	rom := sess.RangeOfMotion()
	rows := make([][]string, 0, glove.NumFingers)
	for i, name := range glove.AllFingers() {
		lo, hi := sess.RangeBounds(i)
		if rom[i] == 0 && lo > hi {
			rows = append(rows, []string{name.Label(), "-", "-", "-"})
			continue
		}
		rows = append(rows, []string{
			name.Label(),
			fmt.Sprintf("%.1f°", lo),
			fmt.Sprintf("%.1f°", hi),
			fmt.Sprintf("%.1f°", rom[i]),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Finger", "Min", "Max", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return cellStyle
		})
	return t.Render()
}
