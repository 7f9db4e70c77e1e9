package ptyconnect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser(t *testing.T) {
	p, err := NewParser(`(?P<user>\w+) (?P<uid>\d+)(?: (?P<shell>\S+))?`, map[string]Converter{"uid": Int})
	require.NoError(t, err)
	assert.Equal(t, []string{"user", "uid", "shell"}, p.Names())

	t.Run("Match", func(t *testing.T) {
		v, err := p.Parse("root 0 /bin/bash")
		require.NoError(t, err)
		assert.Equal(t, Values{"user": "root", "uid": 0, "shell": "/bin/bash"}, v)
	})

	t.Run("OptionalGroup", func(t *testing.T) {
		v, err := p.Parse("nobody 65534")
		require.NoError(t, err)
		assert.Equal(t, Values{"user": "nobody", "uid": 65534, "shell": nil}, v)
	})

	t.Run("AnchoredAtStart", func(t *testing.T) {
		v, err := p.Parse("-> root 0")
		require.NoError(t, err)
		assert.Equal(t, p.Default(), v)
	})

	t.Run("NoMatch", func(t *testing.T) {
		v, err := p.Parse("")
		require.NoError(t, err)
		assert.Equal(t, Values{"user": nil, "uid": nil, "shell": nil}, v)
	})

	t.Run("ConverterError", func(t *testing.T) {
		p := MustParser(`(?P<n>\w+)`, map[string]Converter{"n": Int})
		_, err := p.Parse("abc")
		assert.ErrorContains(t, err, `n="abc"`)
	})

	t.Run("Alternation", func(t *testing.T) {
		p := MustParser(`a(?P<x>1)|b(?P<y>2)`, nil)
		v, err := p.Parse("b2")
		require.NoError(t, err)
		assert.Equal(t, Values{"x": nil, "y": "2"}, v)
	})
}

func TestParserConverters(t *testing.T) {
	p := MustParser(`(?P<f>\S+) (?P<b>\S+) (?P<d>\S+)`, map[string]Converter{
		"f": Float,
		"b": Bool,
		"d": Duration,
	})
	v, err := p.Parse("1.5 true 250ms")
	require.NoError(t, err)
	assert.Equal(t, Values{"f": 1.5, "b": true, "d": 250 * time.Millisecond}, v)
}

func TestNewParserErrors(t *testing.T) {
	_, err := NewParser(`(?P<bad`, nil)
	assert.Error(t, err)

	_, err = NewParser(`(?P<n>\d+)`, map[string]Converter{"missing": Int})
	assert.ErrorContains(t, err, `no group named "missing"`)

	assert.Panics(t, func() { MustParser(`(`, nil) })
}
