package vfs

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/aerrors"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/backend"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/config"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/runner"
)

// mountHandler serves the calls NewMount and a small write workload need.
func mountHandler(in runner.Input) (string, error) {
	switch in.Action {
	case "getconfig":
		return okEnv(`{"read_only":false,"version":"2.1"}`), nil
	case "getlimits":
		return okEnv(`{}`), nil
	case "getfolder":
		return okEnv(folderListing("root", "root", []string{"a.txt"}, nil)), nil
	case "getfsroot":
		return okEnv(folderListing("fsroot", "main", nil, nil)), nil
	case "getfilesystem":
		return okEnv(`{"id":"fs1","name":"main","type":"ftp","chunksize":1024}`), nil
	case "createfile":
		return okEnv(`{"id":"file-new","name":"new.txt"}`), nil
	case "writefile", "upload":
		return okEnv(`{"id":"file-new","name":"new.txt"}`), nil
	}
	return "", fmt.Errorf("unexpected action %q", in.Action)
}

func TestNewMountFolderRoot(t *testing.T) {
	fr := &fakeRunner{handle: mountHandler}
	session := backend.NewSession(fr, config.Default())

	m, err := NewMount(context.Background(), session, config.Default(), RootFolder, "root")
	require.NoError(t, err)

	assert.Equal(t, "root", m.Root().Name())
	assert.Equal(t, "2.1", m.Config().APIVersion)

	items, err := m.Root().GetItems(context.Background())
	require.NoError(t, err)
	assert.Contains(t, items, "a.txt")
	// The initial listing arrived with the mount; no second fetch.
	assert.Equal(t, 1, fr.callCount("getfolder"))
}

func TestNewMountFilesystemRoot(t *testing.T) {
	fr := &fakeRunner{handle: mountHandler}
	session := backend.NewSession(fr, config.Default())

	m, err := NewMount(context.Background(), session, config.Default(), RootFilesystem, "fs1")
	require.NoError(t, err)

	fsys, ok := m.Root().(*Filesystem)
	require.True(t, ok)
	assert.Equal(t, "fs1", fsys.FilesystemID())
	assert.Equal(t, config.WriteModeAppend, fsys.fsConfig.WriteMode)
	assert.Equal(t, int64(1024), fsys.fsConfig.ChunkSize)
}

func TestNewMountSuperRoot(t *testing.T) {
	fr := &fakeRunner{handle: mountHandler}
	session := backend.NewSession(fr, config.Default())

	m, err := NewMount(context.Background(), session, config.Default(), RootSuperRoot, "")
	require.NoError(t, err)

	items, err := m.Root().GetItems(context.Background())
	require.NoError(t, err)
	assert.Contains(t, items, "Filesystems")
	assert.Contains(t, items, "Adopted by others")
}

func TestMountServerReadOnlyWins(t *testing.T) {
	fr := &fakeRunner{handle: func(in runner.Input) (string, error) {
		if in.Action == "getconfig" {
			return okEnv(`{"read_only":true,"version":"2.1"}`), nil
		}
		return mountHandler(in)
	}}
	session := backend.NewSession(fr, config.Default())

	m, err := NewMount(context.Background(), session, config.Default(), RootFolder, "root")
	require.NoError(t, err)

	mf := m.Root().(Mutable)
	_, err = mf.CreateFile(context.Background(), "x")
	assert.ErrorIs(t, err, aerrors.ErrReadOnly)
}

func TestFlushAllWritesDirtyFiles(t *testing.T) {
	fr := &fakeRunner{handle: mountHandler}
	session := backend.NewSession(fr, config.Default())
	ctx := context.Background()

	m, err := NewMount(ctx, session, config.Default(), RootFolder, "root")
	require.NoError(t, err)

	mf := m.Root().(Mutable)
	file, err := mf.CreateFile(ctx, "new.txt")
	require.NoError(t, err)
	require.NoError(t, file.Write(ctx, 0, []byte("pending")))

	m.FlushAll(ctx)
	assert.Equal(t, 1, fr.callCount("writefile"))

	// Shutdown without a created session issues no closesession.
	m.Shutdown(ctx)
	assert.Equal(t, 0, fr.callCount("closesession"))
}
