package glove

import "math"

// DefaultServoMaxDegrees is the proximal rotation that drives a servo to
// its RangeMax.
const DefaultServoMaxDegrees = 90.0

// ServoConfig drives a Feetech servo hand from the proximal rotations.
type ServoConfig struct {
	Port     string                      `json:"port"`
	BaudRate int                         `json:"baud_rate,omitempty"`
	Fingers  map[FingerName]ServoChannel `json:"fingers"`
}

// ServoChannel maps one finger onto one servo. A proximal rotation of 0
// degrees maps to RangeMin, MaxDegrees maps to RangeMax.
type ServoChannel struct {
	ID         int     `json:"id"`
	RangeMin   int     `json:"range_min"`
	RangeMax   int     `json:"range_max"`
	MaxDegrees float64 `json:"max_degrees"`
}

// Position converts a rotation in degrees to a raw servo position, clamped
// to the channel range.
func (c ServoChannel) Position(deg float64) int {
	if c.MaxDegrees <= 0 {
		return c.RangeMin
	}
	frac := deg / c.MaxDegrees
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	rangeSize := float64(c.RangeMax - c.RangeMin)
	return int(math.Round(frac*rangeSize)) + c.RangeMin
}

// Degrees converts a raw servo position back to a rotation in degrees.
func (c ServoChannel) Degrees(raw int) float64 {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	if rangeSize == 0 {
		return 0
	}
	return float64(raw-c.RangeMin) / rangeSize * c.MaxDegrees
}

// IDs returns the servo IDs in finger order, skipping unmapped fingers.
func (s *ServoConfig) IDs() []int {
	ids := make([]int, 0, len(s.Fingers))
	for _, name := range AllFingers() {
		if ch, ok := s.Fingers[name]; ok {
			ids = append(ids, ch.ID)
		}
	}
	return ids
}
