package datasource

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"bulkload/internal/models"
)

// MaxSize is the largest data source accepted for upload, in bytes.
const MaxSize int64 = 1048576

// MaxSizeLabel is how MaxSize is described to operators.
const MaxSizeLabel = "100MB"

// FileMeta holds metadata about a validated data source.
type FileMeta struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

/*
Validate checks, in order, that path is non-empty, that it names a regular file the
current process can read, and that the file is no larger than MaxSize.

It returns a *models.PathError, *models.FileSystemError or *models.DataSourceSizeError.
*/
func Validate(path string) (FileMeta, error) {
	if strings.TrimSpace(path) == "" {
		return FileMeta{}, &models.PathError{Path: path, Reason: "is empty"}
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return FileMeta{}, &models.PathError{Path: path, Reason: "does not exist", Err: err}
		}
		return FileMeta{}, &models.PathError{Path: path, Reason: "cannot be accessed", Err: err}
	}
	if info.IsDir() {
		return FileMeta{}, &models.PathError{Path: path, Reason: "is a directory"}
	}

	f, err := os.Open(path)
	if err != nil {
		return FileMeta{}, &models.PathError{Path: path, Reason: "is not readable", Err: err}
	}
	f.Close()

	if info.Size() > MaxSize {
		return FileMeta{}, &models.DataSourceSizeError{Path: path, Size: info.Size(), Limit: MaxSize, Label: MaxSizeLabel}
	}

	return FileMeta{
		Path:    path,
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// ReadAll reads a validated data source fully, never more than MaxSize bytes.
func ReadAll(meta FileMeta) ([]byte, error) {
	f, err := os.Open(meta.Path)
	if err != nil {
		return nil, &models.FileSystemError{Path: meta.Path, Op: "open", Err: err}
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxSize+1))
	if err != nil {
		return nil, &models.FileSystemError{Path: meta.Path, Op: "read", Err: err}
	}
	if int64(len(data)) > MaxSize {
		// The file grew after validation.
		return nil, &models.DataSourceSizeError{Path: meta.Path, Size: int64(len(data)), Limit: MaxSize, Label: MaxSizeLabel}
	}
	return data, nil
}

// WriteResult persists a downloaded result set verbatim.
func WriteResult(path string, body []byte) error {
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return &models.FileSystemError{Path: path, Op: "write", Err: fmt.Errorf("persist results: %w", err)}
	}
	return nil
}

// RemoveResult deletes a result file left by an earlier run. A missing file is fine.
func RemoveResult(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &models.FileSystemError{Path: path, Op: "remove", Err: fmt.Errorf("clear previous results: %w", err)}
	}
	return nil
}
