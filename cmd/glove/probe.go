package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/gwillem/glove/pkg/glove"
	"github.com/gwillem/glove/pkg/ingest"
)

type ProbeCommand struct {
	Port    string `short:"p" long:"port" description:"Serial port (overrides config)"`
	Count   int    `short:"n" long:"count" default:"10" description:"Number of lines to read"`
	Timeout int    `long:"timeout" default:"5" description:"Give up after this many seconds of silence"`
}

var warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

func (c *ProbeCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	port := cfg.Port
	if c.Port != "" {
		port = c.Port
	}
	if port == "" {
		fmt.Fprintln(os.Stderr, "No glove port configured. Run 'glove setup' or pass --port.")
		os.Exit(1)
	}

	t, err := ingest.OpenSerial(port, cfg.BaudRate, cfg.ReadTimeout())
	if err != nil {
		return err
	}
	defer t.Close()

	fmt.Println(headerStyle.Render("Glove Probe"))
	fmt.Printf("Port %s at %d baud\n", port, cfg.BaudRate)
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━"))

	silence := time.Duration(c.Timeout) * time.Second
	lastData := time.Now()
	for n := 0; n < c.Count; {
		line, err := t.ReadLine()
		if ingest.IsTimeout(err) {
			if time.Since(lastData) > silence {
				return fmt.Errorf("no data from %s for %s", port, silence)
			}
			continue
		}
		if err != nil {
			return err
		}
		lastData = time.Now()
		n++

		fields := len(glove.SplitFields(line))
		if !glove.HasMinFields(line) {
			fmt.Println(warnStyle.Render(fmt.Sprintf("%3d  %2d fields  short, dropped", n, fields)))
			continue
		}
		s, err := glove.ParseSample(line)
		if err != nil {
			fmt.Println(warnStyle.Render(fmt.Sprintf("%3d  %2d fields  %v", n, fields, err)))
			continue
		}
		fmt.Printf("%3d  %2d fields  ", n, fields)
		for i, name := range glove.AllFingers() {
			fmt.Printf("%s %.3f  ", name.Label(), s.Angles[i])
		}
		fmt.Printf("wrist (%.3f, %.3f, %.3f, %.3f)\n", s.Wrist.X, s.Wrist.Y, s.Wrist.Z, s.Wrist.W)
	}

	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Probe complete."))
	return nil
}
