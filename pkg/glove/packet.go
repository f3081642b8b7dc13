package glove

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Wire protocol: one comma separated line per sample.
const (
	Delimiter = ","
	MinFields = 24
)

// Field positions of the values used from each line. Other fields are
// reserved by the firmware.
var angleFields = [NumFingers]int{1, 5, 9, 13, 17}

const (
	wristWField = 20
	wristXField = 21
	wristYField = 22
	wristZField = 23
)

// ErrMalformed is returned for lines that cannot produce a sample.
var ErrMalformed = errors.New("malformed packet")

// Sample is one parsed telemetry line.
type Sample struct {
	Angles [NumFingers]float64 `json:"angles"` // radians
	Wrist  Quat                `json:"wrist"`
}

// SplitFields splits a raw line into its fields.
func SplitFields(line string) []string {
	return strings.Split(line, Delimiter)
}

// HasMinFields reports whether a line carries enough fields to be parsed.
func HasMinFields(line string) bool {
	return strings.Count(line, Delimiter)+1 >= MinFields
}

// ParseSample parses a raw line. Either every required field parses or an
// error wrapping ErrMalformed is returned and the sample is zero.
func ParseSample(line string) (Sample, error) {
	fields := SplitFields(strings.TrimSpace(line))
	if len(fields) < MinFields {
		return Sample{}, fmt.Errorf("%w: %d fields, need %d", ErrMalformed, len(fields), MinFields)
	}

	var s Sample
	for i, idx := range angleFields {
		v, err := parseField(fields, idx)
		if err != nil {
			return Sample{}, err
		}
		s.Angles[i] = v
	}

	wrist := [4]float64{}
	for i, idx := range []int{wristWField, wristXField, wristYField, wristZField} {
		v, err := parseField(fields, idx)
		if err != nil {
			return Sample{}, err
		}
		wrist[i] = v
	}
	s.Wrist = Quat{W: wrist[0], X: wrist[1], Y: wrist[2], Z: wrist[3]}

	return s, nil
}

func parseField(fields []string, idx int) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(fields[idx]), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: field %d %q", ErrMalformed, idx, fields[idx])
	}
	return v, nil
}
