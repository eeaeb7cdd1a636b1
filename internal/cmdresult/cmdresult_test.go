package cmdresult

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResult_SuccessTransition(t *testing.T) {
	r := New("org:display")
	assert.Equal(t, Pending, r.State())
	assert.Error(t, r.Err(), "pending result must not look successful")

	r.Set("command", "sf org display --json")
	r.MarkSuccess(map[string]any{"exitCode": 0})

	assert.True(t, r.IsSuccess())
	assert.NoError(t, r.Err())
	v, ok := r.Detail("command")
	require.True(t, ok)
	assert.Equal(t, "sf org display --json", v)
	v, ok = r.Detail("exitCode")
	require.True(t, ok)
	assert.Equal(t, 0, v)
}

func TestResult_ErrorTransitionKeepsCause(t *testing.T) {
	sentinel := errors.New("boom")
	first := New("spawn").MarkError(sentinel, nil)

	second := New("org:display").CausedBy(first)
	outer := errors.New("could not resolve connection")
	second.MarkError(outer, map[string]any{"stage": "resolve"})

	assert.Equal(t, Error, second.State())
	err := second.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, outer)
	assert.ErrorIs(t, err, sentinel, "causal chain must be reachable through errors.Is")
	assert.Same(t, first, second.Cause())
	assert.Contains(t, err.Error(), "caused by")
}

func TestResult_MarkTwicePanics(t *testing.T) {
	r := New("op").MarkSuccess(nil)
	assert.Panics(t, func() { r.MarkSuccess(nil) })
	assert.Panics(t, func() { r.MarkError(errors.New("late"), nil) })
	assert.Panics(t, func() { r.Set("k", "v") })

	e := New("op").MarkError(nil, nil)
	assert.Panics(t, func() { e.MarkSuccess(nil) })
	assert.EqualError(t, e.Err(), "op: op failed")
}

func TestResult_DetailsIsACopy(t *testing.T) {
	r := New("op").MarkSuccess(map[string]any{"a": 1})
	d := r.Details()
	d["a"] = 2
	v, _ := r.Detail("a")
	assert.Equal(t, 1, v)
}
