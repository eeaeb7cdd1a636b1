package datasource

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bulkload/internal/models"
)

func writeSized(t *testing.T, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.csv")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("a"), int(size)), 0o644))
	return path
}

func TestValidate_SizesAtOrBelowCeiling(t *testing.T) {
	for _, size := range []int64{0, 1, 4096, MaxSize - 1, MaxSize} {
		path := writeSized(t, size)
		meta, err := Validate(path)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, size, meta.Size)
		assert.Equal(t, "accounts.csv", meta.Name)
	}
}

func TestValidate_AboveCeiling(t *testing.T) {
	path := writeSized(t, MaxSize+1)
	_, err := Validate(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDataSourceSize))
	assert.False(t, errors.Is(err, models.ErrPath))

	var sizeErr *models.DataSourceSizeError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, MaxSize+1, sizeErr.Size)
	assert.Contains(t, err.Error(), MaxSizeLabel)
}

func TestValidate_PathErrors(t *testing.T) {
	_, err := Validate("")
	assert.True(t, errors.Is(err, models.ErrPath))

	_, err = Validate("   ")
	assert.True(t, errors.Is(err, models.ErrPath))

	_, err = Validate(filepath.Join(t.TempDir(), "missing.csv"))
	assert.True(t, errors.Is(err, models.ErrPath))
	assert.Contains(t, err.Error(), "does not exist")

	_, err = Validate(t.TempDir())
	assert.True(t, errors.Is(err, models.ErrPath))
}

func TestValidate_Unreadable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can read any file")
	}
	path := writeSized(t, 10)
	require.NoError(t, os.Chmod(path, 0o000))
	_, err := Validate(path)
	assert.True(t, errors.Is(err, models.ErrPath))
}

func TestReadAll(t *testing.T) {
	path := writeSized(t, 128)
	meta, err := Validate(path)
	require.NoError(t, err)

	data, err := ReadAll(meta)
	require.NoError(t, err)
	assert.Len(t, data, 128)

	require.NoError(t, os.Remove(path))
	_, err = ReadAll(meta)
	assert.True(t, errors.Is(err, models.ErrFileSystem))
}

func TestReadAll_GrownAfterValidation(t *testing.T) {
	path := writeSized(t, 10)
	meta, err := Validate(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("b"), int(MaxSize)+5), 0o644))
	_, err = ReadAll(meta)
	assert.True(t, errors.Is(err, models.ErrDataSourceSize))
}

func TestRemoveResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.csv.successfulResults")
	require.NoError(t, RemoveResult(path), "missing file is not an error")

	require.NoError(t, WriteResult(path, []byte("sf__Id\n")))
	require.NoError(t, RemoveResult(path))
	assert.NoFileExists(t, path)
}
