package clix

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulkload/internal/models"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("limit", 20, "")
	fs.Int("offset", 0, "")
	fs.String("state", "", "")
	fs.Duration("poll-interval", 0, "")
	fs.Duration("wait", 0, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestParsePagination(t *testing.T) {
	p, err := ParsePagination(newFlags(t, "--limit", "5", "--offset", "10"))
	require.NoError(t, err)
	assert.Equal(t, PaginationParams{Limit: 5, Offset: 10}, p)

	p, err = ParsePagination(newFlags(t, "--limit", "0", "--offset", "-3"))
	require.NoError(t, err)
	assert.Equal(t, PaginationParams{Limit: 20, Offset: 0}, p)
}

func TestParseJobState(t *testing.T) {
	s, err := ParseJobState(newFlags(t))
	require.NoError(t, err)
	assert.Empty(t, s)

	s, err = ParseJobState(newFlags(t, "--state", " jobcomplete "))
	require.NoError(t, err)
	assert.Equal(t, models.JobStateJobComplete, s)

	_, err = ParseJobState(newFlags(t, "--state", "Done"))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestParsePolling(t *testing.T) {
	p, err := ParsePolling(newFlags(t), 5*time.Second, time.Minute)
	require.NoError(t, err)
	assert.False(t, p.Overridden)
	assert.Equal(t, 5*time.Second, p.Interval)

	p, err = ParsePolling(newFlags(t, "--wait", "30s"), 5*time.Second, time.Minute)
	require.NoError(t, err)
	assert.True(t, p.Overridden)
	assert.Equal(t, 30*time.Second, p.Timeout)
	assert.Equal(t, 5*time.Second, p.Interval)

	_, err = ParsePolling(newFlags(t, "--poll-interval", "2m"), 5*time.Second, time.Minute)
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = ParsePolling(newFlags(t, "--wait", "0s"), 5*time.Second, time.Minute)
	assert.ErrorIs(t, err, models.ErrValidation)
}
