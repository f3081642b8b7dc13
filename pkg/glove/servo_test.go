package glove

import (
	"math"
	"testing"
)

func TestServoChannel_Position(t *testing.T) {
	ch := ServoChannel{
		RangeMin:   1000,
		RangeMax:   3000,
		MaxDegrees: 90,
	}

	tests := []struct {
		deg      float64
		expected int
	}{
		{0, 1000},    // rest -> min
		{90, 3000},   // max degrees -> max
		{45, 2000},   // half way
		{22.5, 1500}, // quarter
		{-30, 1000},  // clamped below
		{200, 3000},  // clamped above
		{67.5, 2500}, // three-quarter
	}

	for _, tt := range tests {
		got := ch.Position(tt.deg)
		if got != tt.expected {
			t.Errorf("Position(%f) = %d, want %d", tt.deg, got, tt.expected)
		}
	}
}

func TestServoChannel_InvertedRange(t *testing.T) {
	ch := ServoChannel{RangeMin: 3000, RangeMax: 1000, MaxDegrees: 90}
	if got := ch.Position(45); got != 2000 {
		t.Errorf("Position(45) = %d, want 2000", got)
	}
	if got := ch.Position(90); got != 1000 {
		t.Errorf("Position(90) = %d, want 1000", got)
	}
}

func TestServoChannel_ZeroMaxDegrees(t *testing.T) {
	ch := ServoChannel{RangeMin: 500, RangeMax: 900}
	if got := ch.Position(45); got != 500 {
		t.Errorf("Position(45) = %d, want 500", got)
	}
}

func TestServoChannel_RoundTrip(t *testing.T) {
	ch := ServoChannel{
		RangeMin:   823,
		RangeMax:   3540,
		MaxDegrees: 110,
	}

	// Test round-trip: raw -> degrees -> raw
	for raw := ch.RangeMin; raw <= ch.RangeMax; raw += 100 {
		deg := ch.Degrees(raw)
		back := ch.Position(deg)
		if math.Abs(float64(back-raw)) > 1 {
			t.Errorf("Round-trip failed: %d -> %f -> %d", raw, deg, back)
		}
	}
}

func TestServoConfig_IDs(t *testing.T) {
	cfg := ServoConfig{
		Fingers: map[FingerName]ServoChannel{
			Thumb:  {ID: 5},
			Index:  {ID: 1},
			Ring:   {ID: 3},
			Middle: {ID: 2},
		},
	}

	ids := cfg.IDs()
	expected := []int{1, 2, 3, 5}

	if len(ids) != len(expected) {
		t.Fatalf("IDs returned %d IDs, want %d", len(ids), len(expected))
	}
	for i, id := range ids {
		if id != expected[i] {
			t.Errorf("IDs()[%d] = %d, want %d", i, id, expected[i])
		}
	}
}
