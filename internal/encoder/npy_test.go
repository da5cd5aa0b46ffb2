package encoder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSaveMatrix(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "x.npy")
	require.NoError(t, os.WriteFile(name, []byte("old"), 0600))

	require.NoError(t, SaveMatrix(name, mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})))

	m := readNpy(t, name)
	assert.Equal(t, []float64{4, 5, 6}, m.RawRowView(1))

	info, err := os.Stat(name)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveMatrix_RenameFails(t *testing.T) {
	dir := t.TempDir()

	// a non-empty directory in the way of the destination
	name := filepath.Join(dir, "x.npy")
	require.NoError(t, os.MkdirAll(name, 0755))
	kept := filepath.Join(name, "keep")
	require.NoError(t, os.WriteFile(kept, []byte("keep"), 0644))

	err := SaveMatrix(name, mat.NewDense(1, 2, []float64{1, 2}))
	require.Error(t, err)

	info, err := os.Stat(name)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	data, err := os.ReadFile(kept)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep"), data)

	// no temporary file is left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "x.npy", entries[0].Name())
}

func TestSaveMatrix_MissingDir(t *testing.T) {
	err := SaveMatrix(filepath.Join(t.TempDir(), "missing", "x.npy"), mat.NewDense(1, 1, nil))
	assert.Error(t, err)
}
