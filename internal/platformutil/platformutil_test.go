package platformutil

import (
	"path/filepath"
	"testing"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandHome(t *testing.T) {
	home, err := homedir.Dir()
	require.NoError(t, err)

	got, err := ExpandHome("~/mounts/a")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "mounts/a"), got)

	got, err = ExpandHome("/absolute/path")
	require.NoError(t, err)
	assert.Equal(t, "/absolute/path", got)

	got, err = ExpandHome("relative/path")
	require.NoError(t, err)
	assert.Equal(t, "relative/path", got)

	// Other users' homes are not resolved.
	got, err = ExpandHome("~other/x")
	require.NoError(t, err)
	assert.Equal(t, "~other/x", got)
}

func TestAbsExpand(t *testing.T) {
	got, err := AbsExpand("/a/../b")
	require.NoError(t, err)
	assert.Equal(t, "/b", got)

	got, err = AbsExpand("~")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
}

func TestGetDiskUsage(t *testing.T) {
	u, err := GetDiskUsage(t.TempDir())
	require.NoError(t, err)
	assert.Greater(t, u.TotalBytes, uint64(0))
	assert.LessOrEqual(t, u.FreeBytes, u.TotalBytes)

	_, err = GetDiskUsage("/nonexistent/path/for/sure")
	assert.Error(t, err)
}
