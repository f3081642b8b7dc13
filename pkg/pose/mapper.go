// Package pose turns parsed glove samples into calibrated hand poses.
package pose

import (
	"math"

	"github.com/gwillem/glove/pkg/glove"
)

const rad2deg = 180 / math.Pi

// Baseline is the zero pose recorded by calibration.
type Baseline struct {
	Offsets [glove.NumFingers]float64 `json:"offsets"`
	Wrist   glove.Quat                `json:"wrist"`
}

// ZeroBaseline is used when mapping runs without calibration.
var ZeroBaseline = Baseline{Wrist: glove.Identity}

// FingerPose is the mapped pose of one joint chain.
type FingerPose struct {
	Name      glove.FingerName `json:"name"`
	Delta     float64          `json:"delta"`     // radians from baseline
	Degrees   float64          `json:"degrees"`   // Delta in degrees
	Rotations [3]float64       `json:"rotations"` // proximal, middle, distal about Z
}

// Mapper maps baseline-relative angles through per-finger profiles.
type Mapper struct {
	Profiles [glove.NumFingers]glove.Profile
	// LegacyWrist selects the component subtraction wrist formula.
	LegacyWrist bool
}

// Fingers maps every joint chain of s against b.
func (m Mapper) Fingers(s glove.Sample, b Baseline) [glove.NumFingers]FingerPose {
	var out [glove.NumFingers]FingerPose
	for i, name := range glove.AllFingers() {
		delta := s.Angles[i] - b.Offsets[i]
		out[i] = FingerPose{
			Name:      name,
			Delta:     delta,
			Degrees:   delta * rad2deg,
			Rotations: m.Profiles[i].Rotations(delta),
		}
	}
	return out
}

// Wrist returns the wrist rotation relative to the baseline orientation.
func (m Mapper) Wrist(s glove.Sample, b Baseline) glove.Quat {
	if m.LegacyWrist {
		return glove.LegacyDifference(b.Wrist, s.Wrist)
	}
	return glove.Relative(b.Wrist, s.Wrist)
}
