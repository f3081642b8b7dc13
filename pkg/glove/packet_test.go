package glove

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const exampleLine = "x,0.5,x,x,x,0.3,x,x,x,0.1,x,x,x,0.2,x,x,x,0.05,x,x,1,0,0,0"

func TestParseSample(t *testing.T) {
	s, err := ParseSample(exampleLine)
	require.NoError(t, err)

	assert.Equal(t, [NumFingers]float64{0.5, 0.3, 0.1, 0.2, 0.05}, s.Angles)
	assert.Equal(t, Identity, s.Wrist)
}

func TestParseSample_WristFieldOrder(t *testing.T) {
	line := "x,0,x,x,x,0,x,x,x,0,x,x,x,0,x,x,x,0,x,x,0.1,0.2,0.3,0.4"
	s, err := ParseSample(line)
	require.NoError(t, err)
	assert.Equal(t, Quat{W: 0.1, X: 0.2, Y: 0.3, Z: 0.4}, s.Wrist)
}

func TestParseSample_ToleratesWhitespaceAndExtraFields(t *testing.T) {
	s, err := ParseSample(" " + exampleLine + ",extra,fields\r\n")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, s.Angles[0], 1e-12)
}

func TestParseSample_Malformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"ten fields", "1,2,3,4,5,6,7,8,9,10"},
		{"23 fields", strings.Repeat("0,", 22) + "0"},
		{"bad angle", strings.Replace(exampleLine, "0.3", "abc", 1)},
		{"bad wrist", strings.TrimSuffix(exampleLine, "0") + "q"},
		{"nan angle", strings.Replace(exampleLine, "0.5", "NaN", 1)},
		{"inf wrist", strings.Replace(exampleLine, "x,x,1,", "x,x,Inf,", 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSample(tt.line)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformed), "error should wrap ErrMalformed: %v", err)
			assert.Equal(t, Sample{}, s, "failed parse must not return partial values")
		})
	}
}

func TestHasMinFields(t *testing.T) {
	assert.True(t, HasMinFields(exampleLine))
	assert.False(t, HasMinFields("1,2,3,4,5,6,7,8,9,10"))
	assert.False(t, HasMinFields(strings.Repeat("0,", 22)+"0"))
	assert.True(t, HasMinFields(strings.Repeat("0,", 23)+"0"))
}
