package harnessports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsWithDefaults(t *testing.T) {
	o := Options{}.WithDefaults()
	assert.Equal(t, DefaultMaxNewTokens, o.MaxNewTokens)
	require.NotNil(t, o.Temperature)
	assert.InDelta(t, DefaultTemperature, *o.Temperature, 1e-6)
	assert.Equal(t, DefaultTimeoutMs, o.TimeoutMs)
	assert.Nil(t, o.TopP)

	o = Options{MaxNewTokens: 64, TopP: Float32(0.9)}.WithDefaults()
	assert.Equal(t, 64, o.MaxNewTokens)
	assert.InDelta(t, DefaultTemperature, *o.Temperature, 1e-6)
	assert.InDelta(t, 0.9, *o.TopP, 1e-6)

	// An explicit zero temperature is kept.
	o = Options{Temperature: Float32(0)}.WithDefaults()
	require.NotNil(t, o.Temperature)
	assert.Zero(t, *o.Temperature)
}

func TestInstructionLegacy(t *testing.T) {
	assert.True(t, Instruction{Kind: InstructionToolCall, Raw: "GET https://x"}.Legacy())
	assert.False(t, Instruction{Kind: InstructionToolCall, Name: "weather"}.Legacy())
	assert.False(t, Instruction{Kind: InstructionRagQuery, Query: "q"}.Legacy())
}
