package store

import (
	"fmt"

	"bulkload/internal/models"
)

// ErrNotFound also matches models.ErrNotFound so callers outside the store need not import it.
var ErrNotFound = fmt.Errorf("store: run not found: %w", models.ErrNotFound)
