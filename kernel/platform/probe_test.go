package platform

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstOf_FirstSuccessWins(t *testing.T) {
	calls := []string{}
	probe := func(name string, v int, err error) Probe[int] {
		return Probe[int]{Name: name, Run: func() (int, error) {
			calls = append(calls, name)
			return v, err
		}}
	}

	v, name, err := FirstOf(
		probe("connection", 0, ErrUnsupported),
		probe("mozConnection", 3, nil),
		probe("webkitConnection", 4, nil),
	)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, "mozConnection", name)
	assert.Equal(t, []string{"connection", "mozConnection"}, calls)
}

func TestFirstOf_PanicsAndFailures(t *testing.T) {
	_, _, err := FirstOf(
		Probe[string]{Name: "throws", Run: func() (string, error) { panic("TypeError") }},
		Probe[string]{Name: "missing"},
		Probe[string]{Name: "fails", Run: func() (string, error) { return "", errors.New("denied") }},
	)
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Contains(t, err.Error(), "denied")

	_, _, err = FirstOf[int]()
	assert.ErrorIs(t, err, ErrUnsupported)
}
