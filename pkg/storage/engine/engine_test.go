package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectWritesMarkerOnFirstRun(t *testing.T) {
	resetForTest()
	dir := t.TempDir()

	e, err := Select(dir, Bolt)
	require.NoError(t, err)
	require.NoError(t, e.Shutdown())

	data, err := os.ReadFile(filepath.Join(dir, markerFile))
	require.NoError(t, err)
	assert.Equal(t, "bolt\n", string(data))
}

func TestSelectRejectsEngineMismatch(t *testing.T) {
	resetForTest()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, markerFile), []byte("other\n"), 0o644))

	_, err := Select(dir, Bolt)
	assert.Error(t, err)
}

func TestSelectTwiceOnSameSingletonFails(t *testing.T) {
	resetForTest()
	dir := t.TempDir()

	e, err := Select(dir, Bolt)
	require.NoError(t, err)
	defer e.Shutdown()

	_, err = Select(t.TempDir(), Bolt)
	assert.Error(t, err)
}
