package tempvolume

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesDirectoryUnderBase(t *testing.T) {
	base := t.TempDir()
	v, err := Open(base, "task1")
	require.NoError(t, err)
	defer v.Close()

	info, err := os.Stat(v.Path())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCreateFileWritesInsideVolume(t *testing.T) {
	base := t.TempDir()
	v, err := Open(base, "task2")
	require.NoError(t, err)
	defer v.Close()

	f, path, err := v.CreateFile("rows_sources.bin")
	require.NoError(t, err)
	_, err = f.WriteString("hello")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestCloseRemovesVolumeUnlessKept(t *testing.T) {
	base := t.TempDir()

	v, err := Open(base, "task3")
	require.NoError(t, err)
	dir := v.Path()
	v.Close()
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	v2, err := Open(base, "task4")
	require.NoError(t, err)
	dir2 := v2.Path()
	v2.Keep()
	v2.Close()
	_, err = os.Stat(dir2)
	assert.NoError(t, err)
}
