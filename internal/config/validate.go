package config

import (
	"errors"
	"fmt"
	"strings"

	"bulkload/internal/models"
)

func (c *Config) Validate() error {
	// CLI
	if strings.TrimSpace(c.CLI.Bin) == "" {
		return errors.New("cli.bin is required")
	}
	if c.CLI.Timeout <= 0 {
		return errors.New("cli.timeout must be positive")
	}

	// Bulk
	if c.Bulk.PollInterval <= 0 {
		return errors.New("bulk.poll_interval must be positive")
	}
	if c.Bulk.PollTimeout <= 0 {
		return errors.New("bulk.poll_timeout must be positive")
	}
	if c.Bulk.PollInterval > c.Bulk.PollTimeout {
		return fmt.Errorf("bulk.poll_interval (%s) must not exceed bulk.poll_timeout (%s)", c.Bulk.PollInterval, c.Bulk.PollTimeout)
	}
	if c.Bulk.RequestTimeout <= 0 {
		return errors.New("bulk.request_timeout must be positive")
	}
	if c.Bulk.RateLimit <= 0 {
		return errors.New("bulk.rate_limit must be positive")
	}
	if c.Bulk.RateBurst <= 0 {
		return errors.New("bulk.rate_burst must be positive")
	}
	if !models.ValidColumnDelimiter(c.Bulk.ColumnDelimiter) {
		return fmt.Errorf("bulk.column_delimiter %q is not one of BACKQUOTE, CARET, COMMA, PIPE, SEMICOLON, TAB", c.Bulk.ColumnDelimiter)
	}
	if !models.ValidLineEnding(c.Bulk.LineEnding) {
		return fmt.Errorf("bulk.line_ending %q must be LF or CRLF", c.Bulk.LineEnding)
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("database.dsn is required")
	}

	// Log
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q must be text or json", c.Log.Format)
	}

	return nil
}
