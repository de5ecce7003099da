package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevelNames(t *testing.T) {
	cases := map[string]Level{
		"error": Error,
		"WARN":  Warn,
		"I":     Info,
		"debug": Debug,
		"t":     MaxLevel,
	}
	for s, want := range cases {
		got, err := parseLevel(s)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestParseLevelNumeric(t *testing.T) {
	got, err := parseLevel("5")
	require.NoError(t, err)
	assert.Equal(t, Level(5), got)
}

func TestParseLevelInvalid(t *testing.T) {
	_, err := parseLevel("bogus")
	assert.Error(t, err)

	_, err = parseLevel("99")
	assert.Error(t, err)
}

func TestLevelLetter(t *testing.T) {
	assert.Equal(t, byte('E'), Error.letter())
	assert.Equal(t, byte('W'), Warn.letter())
	assert.Equal(t, byte('I'), Info.letter())
	assert.Equal(t, byte('D'), Debug.letter())
	assert.Equal(t, byte('5'), Level(5).letter())
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "Error", Error.String())
	assert.Equal(t, "Trace(5)", Level(5).String())
}
