package pose

import (
	"fmt"
	"strings"

	"github.com/gwillem/glove/pkg/glove"
)

// AngleSet is what diagnostics and captures report: finger degrees and the
// signed wrist angle.
type AngleSet struct {
	Fingers [glove.NumFingers]float64 `json:"fingers"`
	Wrist   float64                   `json:"wrist"`
}

// WristLabel labels the wrist angle in reports.
const WristLabel = "Wrist"

// String formats the set on one line, e.g. "Index:12.0°, ..., Wrist:-3.5°".
func (a AngleSet) String() string {
	parts := make([]string, 0, glove.NumFingers+1)
	for i, name := range glove.AllFingers() {
		parts = append(parts, fmt.Sprintf("%s:%.1f°", name.Label(), a.Fingers[i]))
	}
	parts = append(parts, fmt.Sprintf("%s:%.1f°", WristLabel, a.Wrist))
	return strings.Join(parts, ", ")
}

// Lines returns one "<Label>: <deg>°" line per joint.
func (a AngleSet) Lines() []string {
	lines := make([]string, 0, glove.NumFingers+1)
	for i, name := range glove.AllFingers() {
		lines = append(lines, fmt.Sprintf("%s: %.1f°", name.Label(), a.Fingers[i]))
	}
	return append(lines, fmt.Sprintf("%s: %.1f°", WristLabel, a.Wrist))
}

// CSV returns the set as comma separated values, fingers then wrist.
func (a AngleSet) CSV() string {
	parts := make([]string, 0, glove.NumFingers+1)
	for _, v := range a.Fingers {
		parts = append(parts, fmt.Sprintf("%.1f", v))
	}
	parts = append(parts, fmt.Sprintf("%.1f", a.Wrist))
	return strings.Join(parts, ",")
}

func formatRanges(r [glove.NumFingers]float64) string {
	parts := make([]string, 0, glove.NumFingers)
	for i, name := range glove.AllFingers() {
		parts = append(parts, fmt.Sprintf("%s:%.1f", name.Label(), r[i]))
	}
	return strings.Join(parts, " ")
}
