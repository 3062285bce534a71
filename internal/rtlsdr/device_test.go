package rtlsdr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGainAuto(t *testing.T) {
	tenths, manual, err := ParseGain("auto")
	require.NoError(t, err)
	assert.False(t, manual)
	assert.Zero(t, tenths)
}

func TestParseGainEmptyDefaultsToAuto(t *testing.T) {
	tenths, manual, err := ParseGain("")
	require.NoError(t, err)
	assert.False(t, manual)
	assert.Zero(t, tenths)
}

func TestParseGainMax(t *testing.T) {
	tenths, manual, err := ParseGain("max")
	require.NoError(t, err)
	assert.True(t, manual)
	assert.Equal(t, 496, tenths)
}

func TestParseGainDecibelValue(t *testing.T) {
	tenths, manual, err := ParseGain("40.2")
	require.NoError(t, err)
	assert.True(t, manual)
	assert.Equal(t, 402, tenths)
}

func TestParseGainRejectsGarbage(t *testing.T) {
	_, _, err := ParseGain("not-a-number")
	assert.Error(t, err)
}
