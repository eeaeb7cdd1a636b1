package clix

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"bulkload/internal/models"
)

type PaginationParams struct {
	Limit  int
	Offset int
}

func ParsePagination(flags *pflag.FlagSet) (PaginationParams, error) {
	limit, _ := flags.GetInt("limit")
	offset, _ := flags.GetInt("offset")
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return PaginationParams{Limit: limit, Offset: offset}, nil
}

var knownStates = []models.JobState{
	models.JobStateOpen,
	models.JobStateUploadComplete,
	models.JobStateInProgress,
	models.JobStateJobComplete,
	models.JobStateFailed,
	models.JobStateAborted,
}

// ParseJobState reads --state and returns its canonical spelling. Matching ignores case.
func ParseJobState(flags *pflag.FlagSet) (models.JobState, error) {
	raw, _ := flags.GetString("state")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	for _, s := range knownStates {
		if strings.EqualFold(raw, string(s)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown job state %q", models.ErrValidation, raw)
}

// PollingParams holds the effective poll settings after flag overrides.
type PollingParams struct {
	Interval time.Duration
	Timeout  time.Duration
	// Overridden is true when either flag was set explicitly.
	Overridden bool
}

// ParsePolling applies --poll-interval and --wait on top of the configured values.
func ParsePolling(flags *pflag.FlagSet, interval, timeout time.Duration) (PollingParams, error) {
	p := PollingParams{Interval: interval, Timeout: timeout}
	if flags.Changed("poll-interval") {
		p.Interval, _ = flags.GetDuration("poll-interval")
		p.Overridden = true
	}
	if flags.Changed("wait") {
		p.Timeout, _ = flags.GetDuration("wait")
		p.Overridden = true
	}
	if p.Interval <= 0 || p.Timeout <= 0 {
		return p, fmt.Errorf("%w: --poll-interval and --wait must be positive", models.ErrValidation)
	}
	if p.Interval > p.Timeout {
		return p, fmt.Errorf("%w: --poll-interval %s exceeds --wait %s", models.ErrValidation, p.Interval, p.Timeout)
	}
	return p, nil
}
