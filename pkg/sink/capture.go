// Package sink delivers mapped poses and captured angles to the outside
// world: files, browsers, brokers and servo hands.
package sink

import (
	"fmt"
	"os"
	"strings"

	"github.com/gwillem/glove/pkg/pose"
)

// CaptureFile persists capture events and diagnostics history as text.
type CaptureFile struct {
	Path        string
	HistoryPath string
}

// WriteCapture appends one "<Label>: <deg>°" line per joint followed by a
// blank line.
func (c *CaptureFile) WriteCapture(set pose.AngleSet) error {
	f, err := os.OpenFile(c.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open capture file: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, line := range set.Lines() {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	if _, err := f.WriteString(sb.String()); err != nil {
		return fmt.Errorf("write capture: %w", err)
	}
	return nil
}

// WriteHistory replaces the history file with one comma separated line per
// recorded angle set.
func (c *CaptureFile) WriteHistory(sets []pose.AngleSet) error {
	var sb strings.Builder
	for _, set := range sets {
		sb.WriteString(set.CSV())
		sb.WriteString("\n")
	}
	if err := os.WriteFile(c.HistoryPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return nil
}
