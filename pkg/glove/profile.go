package glove

import (
	"fmt"
	"math"
	"sort"
)

// Profile converts a baseline-relative finger angle (radians) into the three
// phalanx rotations (degrees). Factors are degrees per radian.
type Profile struct {
	Proximal float64 `json:"proximal"`
	Middle   float64 `json:"middle"`
	Distal   float64 `json:"distal"`
}

// FactorFromRatio converts a ratio written as k/π into a factor.
func FactorFromRatio(k float64) float64 {
	return k / math.Pi
}

// Rotations returns proximal, middle and distal rotation for delta radians.
func (p Profile) Rotations(delta float64) [3]float64 {
	return [3]float64{
		delta * p.Proximal,
		delta * p.Middle,
		delta * p.Distal,
	}
}

// IsZero reports whether the profile has no factors set.
func (p Profile) IsZero() bool {
	return p == Profile{}
}

// Built-in profiles observed on deployed gloves.
var presets = map[string]Profile{
	// MCP sensor placement: strong main joint, near-rigid small joints.
	"mcp": {
		Proximal: FactorFromRatio(360),
		Middle:   FactorFromRatio(1),
		Distal:   FactorFromRatio(1),
	},
	// DIP-weighted: distal phalanx most sensitive.
	"dip": {
		Proximal: FactorFromRatio(250),
		Middle:   FactorFromRatio(300),
		Distal:   FactorFromRatio(350),
	},
	// PIP placement: 2.4x base gain with 1.5 and 1.25 on the outer phalanges.
	"pip": {
		Proximal: 2.4 * 180 / math.Pi,
		Middle:   2.4 * 1.5 * 180 / math.Pi,
		Distal:   2.4 * 1.25 * 180 / math.Pi,
	},
	// One to one: each phalanx follows the sensor angle.
	"flat": {
		Proximal: 180 / math.Pi,
		Middle:   180 / math.Pi,
		Distal:   180 / math.Pi,
	},
}

// DefaultPreset is used when the configuration names no profile.
const DefaultPreset = "mcp"

// Preset returns a built-in profile by name.
func Preset(name string) (Profile, error) {
	p, ok := presets[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (have %v)", name, PresetNames())
	}
	return p, nil
}

// PresetNames returns the built-in profile names, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
