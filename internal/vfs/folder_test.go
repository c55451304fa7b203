package vfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/aerrors"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/backend"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/config"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/filedata"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/runner"
)

// fakeRunner answers calls from a scripted handler and counts them.
type fakeRunner struct {
	mu     sync.Mutex
	calls  []runner.Input
	handle func(in runner.Input) (string, error)
}

func (f *fakeRunner) RunAction(ctx context.Context, in runner.Input) (io.ReadCloser, error) {
	f.mu.Lock()
	f.calls = append(f.calls, in)
	f.mu.Unlock()
	body, err := f.handle(in)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader([]byte(body))), nil
}

func (f *fakeRunner) callCount(action string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Action == action {
			n++
		}
	}
	return n
}

func (f *fakeRunner) lastCall() runner.Input {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func okEnv(appdata string) string {
	if appdata == "" {
		return `{"ok":true,"code":200}`
	}
	return fmt.Sprintf(`{"ok":true,"code":200,"appdata":%s}`, appdata)
}

func newTestDeps(handle func(in runner.Input) (string, error), cfg config.Config) (*Deps, *fakeRunner, *Arena) {
	fr := &fakeRunner{handle: handle}
	deps := &Deps{
		Session: backend.NewSession(fr, cfg),
		Sem:     filedata.NewSemaphore(4),
		Cfg:     cfg,
		Locks:   &LockManager{},
	}
	return deps, fr, NewArena()
}

// folderListing renders a getfolder response with the given file and
// folder names, assigning ids derived from the names.
func folderListing(id, name string, files, folders []string) string {
	fj := fmt.Sprintf(`{"id":%q,"name":%q,"files":{`, id, name)
	for i, f := range files {
		if i > 0 {
			fj += ","
		}
		fj += fmt.Sprintf(`%q:{"id":"file-%s","name":%q,"size":0}`, f, f, f)
	}
	fj += `},"folders":{`
	for i, d := range folders {
		if i > 0 {
			fj += ","
		}
		fj += fmt.Sprintf(`%q:{"id":"dir-%s","name":%q}`, d, d, d)
	}
	return fj + `}}`
}

func TestGetItemByPath(t *testing.T) {
	deps, _, arena := newTestDeps(func(in runner.Input) (string, error) {
		switch in.Params["folder"] {
		case "root":
			return okEnv(folderListing("root", "root", []string{"top.txt"}, []string{"docs"})), nil
		case "dir-docs":
			return okEnv(folderListing("dir-docs", "docs", []string{"a.txt"}, nil)), nil
		}
		return "", fmt.Errorf("unexpected folder %q", in.Params["folder"])
	}, config.Default())

	root := newPlainFolder(deps, arena, backend.ItemJSON{ID: "root", Name: "root"}, invalidHandle, nil)
	ctx := context.Background()

	it, err := GetItemByPath(ctx, root, "")
	require.NoError(t, err)
	assert.Equal(t, Item(root), it)

	file, err := GetFileByPath(ctx, root, "/docs/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", file.Name())

	folder, err := GetFolderByPath(ctx, root, "docs")
	require.NoError(t, err)
	assert.Equal(t, "docs", folder.Name())

	_, err = GetItemByPath(ctx, root, "/docs/missing")
	assert.ErrorIs(t, err, aerrors.ErrNotFound)

	_, err = GetItemByPath(ctx, root, "/top.txt/impossible")
	assert.ErrorIs(t, err, aerrors.ErrNotFolder)

	_, err = GetFileByPath(ctx, root, "/docs")
	assert.ErrorIs(t, err, aerrors.ErrNotFile)

	_, err = GetFolderByPath(ctx, root, "/top.txt")
	assert.ErrorIs(t, err, aerrors.ErrNotFolder)
}

func TestParentBackReferences(t *testing.T) {
	deps, _, arena := newTestDeps(func(in runner.Input) (string, error) {
		return okEnv(folderListing("root", "root", []string{"a.txt"}, []string{"sub"})), nil
	}, config.Default())

	root := newPlainFolder(deps, arena, backend.ItemJSON{ID: "root", Name: "root"}, invalidHandle, nil)
	items, err := root.GetItems(context.Background())
	require.NoError(t, err)

	for name, it := range items {
		require.NotNil(t, it.Parent(), name)
		assert.Equal(t, Folder(root), it.Parent(), name)
		assert.Equal(t, name, it.Name())
	}
}

func TestRefreshTTL(t *testing.T) {
	cfg := config.Default()
	cfg.DirRefresh = time.Hour
	deps, fr, arena := newTestDeps(func(in runner.Input) (string, error) {
		return okEnv(folderListing("root", "root", []string{"a.txt"}, nil)), nil
	}, cfg)

	root := newPlainFolder(deps, arena, backend.ItemJSON{ID: "root", Name: "root"}, invalidHandle, nil)
	ctx := context.Background()

	_, err := root.GetItems(ctx)
	require.NoError(t, err)
	_, err = root.GetItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fr.callCount("getfolder"))

	// Age the cache past the TTL; the next read reloads.
	root.childrenMu.Lock()
	root.refreshedAt = time.Now().Add(-2 * time.Hour)
	root.childrenMu.Unlock()

	_, err = root.GetItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fr.callCount("getfolder"))
}

func TestSyncContentsPreservesUnflushedFile(t *testing.T) {
	cfg := config.Default()
	cfg.CacheMode = config.CacheModeMemory
	deps, _, arena := newTestDeps(func(in runner.Input) (string, error) {
		return okEnv(folderListing("root", "root", []string{"a.txt"}, nil)), nil
	}, cfg)

	root := newPlainFolder(deps, arena, backend.ItemJSON{ID: "root", Name: "root"}, invalidHandle, nil)
	ctx := context.Background()

	_, err := root.GetItems(ctx)
	require.NoError(t, err)

	// Memory mode synthesizes the create, so the new file has no backend
	// identity yet.
	created, err := root.CreateFile(ctx, "b.txt")
	require.NoError(t, err)
	assert.False(t, created.BackendExists())
	assert.NotEmpty(t, created.ID())

	// Memory mode suppresses TTL refresh entirely.
	root.childrenMu.Lock()
	root.refreshedAt = time.Now().Add(-time.Hour)
	root.childrenMu.Unlock()
	_, err = root.GetItems(ctx)
	require.NoError(t, err)

	// Merge a backend listing that still only knows a.txt: the unflushed
	// local file must survive.
	var fj backend.FolderJSON
	fj.ID = "root"
	fj.Files = map[string]backend.ItemJSON{"a.txt": {ID: "file-a.txt", Name: "a.txt"}}
	root.syncContents(fj)

	items, err := root.GetItems(ctx)
	require.NoError(t, err)
	require.Contains(t, items, "a.txt")
	require.Contains(t, items, "b.txt")
	assert.Equal(t, Item(created), items["b.txt"])
}

func TestSyncContentsDropsRemovedItems(t *testing.T) {
	listing := folderListing("root", "root", []string{"a.txt", "b.txt"}, nil)
	deps, _, arena := newTestDeps(func(in runner.Input) (string, error) {
		return okEnv(listing), nil
	}, config.Default())

	root := newPlainFolder(deps, arena, backend.ItemJSON{ID: "root", Name: "root"}, invalidHandle, nil)
	ctx := context.Background()

	items, err := root.GetItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	kept := items["a.txt"]

	listing = folderListing("root", "root", []string{"a.txt"}, nil)
	root.childrenMu.Lock()
	root.refreshedAt = time.Now().Add(-time.Hour)
	root.childrenMu.Unlock()

	items, err = root.GetItems(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	// The surviving item is refreshed in place, not rebuilt.
	assert.Equal(t, kept, items["a.txt"])
}

func TestCreateFileValidation(t *testing.T) {
	deps, _, arena := newTestDeps(func(in runner.Input) (string, error) {
		switch in.Action {
		case "getfolder":
			return okEnv(folderListing("root", "root", []string{"a.txt"}, nil)), nil
		case "createfile":
			return okEnv(`{"id":"file-new","name":"new.txt"}`), nil
		}
		return "", fmt.Errorf("unexpected action %q", in.Action)
	}, config.Default())

	root := newPlainFolder(deps, arena, backend.ItemJSON{ID: "root", Name: "root"}, invalidHandle, nil)
	ctx := context.Background()

	_, err := root.CreateFile(ctx, "")
	assert.ErrorIs(t, err, aerrors.ErrDuplicateItem)

	_, err = root.CreateFile(ctx, "a.txt")
	assert.ErrorIs(t, err, aerrors.ErrDuplicateItem)

	file, err := root.CreateFile(ctx, "new.txt")
	require.NoError(t, err)
	assert.Equal(t, "file-new", file.ID())
	assert.True(t, file.BackendExists())

	items, _ := root.GetItems(ctx)
	assert.Contains(t, items, "new.txt")
}

func TestRenameRoundTrip(t *testing.T) {
	deps, fr, arena := newTestDeps(func(in runner.Input) (string, error) {
		switch in.Action {
		case "getfolder":
			return okEnv(folderListing("root", "root", []string{"a.txt"}, nil)), nil
		case "renamefile":
			return okEnv(fmt.Sprintf(`{"id":"file-a.txt","name":%q}`, in.Params["name"])), nil
		}
		return "", fmt.Errorf("unexpected action %q", in.Action)
	}, config.Default())

	root := newPlainFolder(deps, arena, backend.ItemJSON{ID: "root", Name: "root"}, invalidHandle, nil)
	ctx := context.Background()

	items, err := root.GetItems(ctx)
	require.NoError(t, err)
	orig := items["a.txt"]

	require.NoError(t, root.RenameItem(ctx, "a.txt", "b.txt", false))
	items, _ = root.GetItems(ctx)
	require.Contains(t, items, "b.txt")
	require.NotContains(t, items, "a.txt")
	assert.Equal(t, orig, items["b.txt"])
	assert.Equal(t, "b.txt", orig.Name())

	require.NoError(t, root.RenameItem(ctx, "b.txt", "a.txt", false))
	items, _ = root.GetItems(ctx)
	require.Contains(t, items, "a.txt")
	assert.Equal(t, orig, items["a.txt"])
	assert.Equal(t, 2, fr.callCount("renamefile"))
}

func TestRenameDuplicateRejected(t *testing.T) {
	deps, _, arena := newTestDeps(func(in runner.Input) (string, error) {
		switch in.Action {
		case "getfolder":
			return okEnv(folderListing("root", "root", []string{"a.txt", "b.txt"}, nil)), nil
		case "renamefile":
			return okEnv(fmt.Sprintf(`{"id":"file-a.txt","name":%q}`, in.Params["name"])), nil
		}
		return "", fmt.Errorf("unexpected action %q", in.Action)
	}, config.Default())

	root := newPlainFolder(deps, arena, backend.ItemJSON{ID: "root", Name: "root"}, invalidHandle, nil)
	ctx := context.Background()

	err := root.RenameItem(ctx, "a.txt", "b.txt", false)
	assert.ErrorIs(t, err, aerrors.ErrDuplicateItem)

	// With overwrite the displaced item is dropped from the map.
	require.NoError(t, root.RenameItem(ctx, "a.txt", "b.txt", true))
	items, _ := root.GetItems(ctx)
	assert.Len(t, items, 1)
}

func TestMoveWithOverwrite(t *testing.T) {
	deps, fr, arena := newTestDeps(func(in runner.Input) (string, error) {
		switch {
		case in.Action == "getfolder" && in.Params["folder"] == "p1":
			return okEnv(folderListing("p1", "p1", []string{"x"}, nil)), nil
		case in.Action == "getfolder" && in.Params["folder"] == "p2":
			return okEnv(folderListing("p2", "p2", []string{"x"}, nil)), nil
		case in.Action == "movefile":
			return okEnv(`{"id":"file-x","name":"x"}`), nil
		}
		return "", fmt.Errorf("unexpected action %q", in.Action)
	}, config.Default())

	p1 := newPlainFolder(deps, arena, backend.ItemJSON{ID: "p1", Name: "p1"}, invalidHandle, nil)
	p2 := newPlainFolder(deps, arena, backend.ItemJSON{ID: "p2", Name: "p2"}, invalidHandle, nil)
	ctx := context.Background()

	items1, err := p1.GetItems(ctx)
	require.NoError(t, err)
	moved := items1["x"]
	_, err = p2.GetItems(ctx)
	require.NoError(t, err)

	// Without overwrite the duplicate in the destination blocks the move.
	err = p1.MoveItem(ctx, "x", p2, false)
	assert.ErrorIs(t, err, aerrors.ErrDuplicateItem)

	require.NoError(t, p1.MoveItem(ctx, "x", p2, true))

	items1, _ = p1.GetItems(ctx)
	assert.NotContains(t, items1, "x")
	items2, _ := p2.GetItems(ctx)
	require.Contains(t, items2, "x")
	assert.Equal(t, moved, items2["x"])
	assert.Equal(t, Folder(p2), moved.Parent())

	assert.Equal(t, 1, fr.callCount("movefile"))
	last := fr.lastCall()
	assert.Equal(t, "true", last.Params["overwrite"])
	assert.Equal(t, "p2", last.Params["parent"])
}

func TestMoveRequiresDestinationID(t *testing.T) {
	deps, _, arena := newTestDeps(func(in runner.Input) (string, error) {
		return okEnv(folderListing("p1", "p1", []string{"x"}, nil)), nil
	}, config.Default())

	p1 := newPlainFolder(deps, arena, backend.ItemJSON{ID: "p1", Name: "p1"}, invalidHandle, nil)
	dest := newPlainFolder(deps, arena, backend.ItemJSON{ID: "", Name: "dest"}, invalidHandle, nil)
	ctx := context.Background()
	_, err := p1.GetItems(ctx)
	require.NoError(t, err)
	dest.replaceAll(map[string]Item{})

	err = p1.MoveItem(ctx, "x", dest, false)
	assert.ErrorIs(t, err, aerrors.ErrNotFound)
}

func TestDeleteItem(t *testing.T) {
	deps, fr, arena := newTestDeps(func(in runner.Input) (string, error) {
		switch in.Action {
		case "getfolder":
			return okEnv(folderListing("root", "root", []string{"a.txt"}, []string{"sub"})), nil
		case "deletefile", "deletefolder":
			return okEnv(""), nil
		}
		return "", fmt.Errorf("unexpected action %q", in.Action)
	}, config.Default())

	root := newPlainFolder(deps, arena, backend.ItemJSON{ID: "root", Name: "root"}, invalidHandle, nil)
	ctx := context.Background()
	items, err := root.GetItems(ctx)
	require.NoError(t, err)
	file := items["a.txt"].(*File)

	require.NoError(t, root.DeleteItem(ctx, "a.txt"))
	require.NoError(t, root.DeleteItem(ctx, "sub"))
	assert.ErrorIs(t, root.DeleteItem(ctx, "a.txt"), aerrors.ErrNotFound)

	assert.Equal(t, 1, fr.callCount("deletefile"))
	assert.Equal(t, 1, fr.callCount("deletefolder"))

	// The deleted file's cache is poisoned.
	_, err = file.Read(ctx, 0, 1)
	assert.ErrorIs(t, err, aerrors.ErrNotFound)
}

func TestScopeLockBlocksDelete(t *testing.T) {
	deps, _, arena := newTestDeps(func(in runner.Input) (string, error) {
		switch in.Action {
		case "getfolder":
			return okEnv(folderListing("root", "root", []string{"a.txt"}, nil)), nil
		case "deletefile":
			return okEnv(""), nil
		}
		return "", fmt.Errorf("unexpected action %q", in.Action)
	}, config.Default())

	root := newPlainFolder(deps, arena, backend.ItemJSON{ID: "root", Name: "root"}, invalidHandle, nil)
	ctx := context.Background()
	items, err := root.GetItems(ctx)
	require.NoError(t, err)

	release := items["a.txt"].BorrowScope()
	assert.ErrorIs(t, root.DeleteItem(ctx, "a.txt"), aerrors.ErrItemBusy)

	release()
	assert.NoError(t, root.DeleteItem(ctx, "a.txt"))
}

func TestReadOnlyPolicy(t *testing.T) {
	roCfg := &config.FSConfig{ReadOnly: true}
	deps, _, arena := newTestDeps(func(in runner.Input) (string, error) {
		return okEnv(folderListing("root", "root", []string{"a.txt"}, nil)), nil
	}, config.Default())

	root := newPlainFolder(deps, arena, backend.ItemJSON{ID: "root", Name: "root"}, invalidHandle, roCfg)
	ctx := context.Background()
	_, err := root.GetItems(ctx)
	require.NoError(t, err)

	_, err = root.CreateFile(ctx, "x")
	assert.ErrorIs(t, err, aerrors.ErrReadOnly)
	_, err = root.CreateFolder(ctx, "d")
	assert.ErrorIs(t, err, aerrors.ErrReadOnly)
	assert.ErrorIs(t, root.DeleteItem(ctx, "a.txt"), aerrors.ErrReadOnly)
	assert.ErrorIs(t, root.RenameItem(ctx, "a.txt", "b", false), aerrors.ErrReadOnly)
	assert.ErrorIs(t, root.MoveItem(ctx, "a.txt", root, false), aerrors.ErrReadOnly)
}

func TestGlobalReadOnlyPolicy(t *testing.T) {
	cfg := config.Default()
	cfg.ReadOnly = true
	deps, _, arena := newTestDeps(func(in runner.Input) (string, error) {
		return okEnv(folderListing("root", "root", nil, nil)), nil
	}, cfg)

	root := newPlainFolder(deps, arena, backend.ItemJSON{ID: "root", Name: "root"}, invalidHandle, nil)
	_, err := root.CreateFile(context.Background(), "x")
	assert.ErrorIs(t, err, aerrors.ErrReadOnly)
}

func TestSuperRootListing(t *testing.T) {
	deps, fr, arena := newTestDeps(func(in runner.Input) (string, error) {
		return "", fmt.Errorf("unexpected action %q", in.Action)
	}, config.Default())

	sr := newSuperRoot(deps, arena)
	ctx := context.Background()

	items, err := sr.GetItems(ctx)
	require.NoError(t, err)
	require.Contains(t, items, "Filesystems")
	require.Contains(t, items, "Adopted by others")

	// The listing is fixed: no backend traffic, ever, and no Mutable
	// capability on any of the special folders.
	_, err = sr.GetItems(ctx)
	require.NoError(t, err)
	assert.Empty(t, fr.calls)

	_, ok := Folder(sr).(Mutable)
	assert.False(t, ok)
	_, ok = items["Filesystems"].(Mutable)
	assert.False(t, ok)
	_, ok = items["Adopted by others"].(Mutable)
	assert.False(t, ok)
}

func TestFilesystemsListing(t *testing.T) {
	deps, _, arena := newTestDeps(func(in runner.Input) (string, error) {
		switch in.Action {
		case "getfilesystems":
			return okEnv(`[{"id":"fs1","name":"main","type":"s3"},{"id":"fs2","name":"archive","type":"ftp"}]`), nil
		case "getlimits":
			return okEnv(`{}`), nil
		}
		return "", fmt.Errorf("unexpected action %q", in.Action)
	}, config.Default())

	fsn := newFilesystems(deps, arena, invalidHandle)
	items, err := fsn.GetItems(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	main := items["main"].(*Filesystem)
	assert.Equal(t, "fs1", main.FilesystemID())
	assert.Equal(t, config.WriteModeNone, main.fsConfig.WriteMode)

	archive := items["archive"].(*Filesystem)
	assert.Equal(t, config.WriteModeAppend, archive.fsConfig.WriteMode)
}

func TestAdoptedListingIsReadOnly(t *testing.T) {
	deps, fr, arena := newTestDeps(func(in runner.Input) (string, error) {
		if in.Action == "getadopted" {
			return okEnv(folderListing("", "", []string{"gift.txt"}, nil)), nil
		}
		return "", fmt.Errorf("unexpected action %q", in.Action)
	}, config.Default())

	ad := newAdopted(deps, arena, invalidHandle)
	ctx := context.Background()

	items, err := ad.GetItems(ctx)
	require.NoError(t, err)
	require.Contains(t, items, "gift.txt")

	// Loaded once, never refreshed.
	_, err = ad.GetItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, fr.callCount("getadopted"))

	// Items under Adopted reject writes.
	file := items["gift.txt"].(*File)
	assert.ErrorIs(t, file.Write(ctx, 0, []byte("x")), aerrors.ErrReadOnly)
}

func TestSharedFolderFromListing(t *testing.T) {
	deps, _, arena := newTestDeps(func(in runner.Input) (string, error) {
		switch in.Params["folder"] {
		case "root":
			return okEnv(`{"id":"root","name":"root","files":{},"folders":{"pub":{"id":"dir-pub","name":"pub","shared":true},"priv":{"id":"dir-priv","name":"priv"}}}`), nil
		case "dir-pub":
			return okEnv(folderListing("dir-pub", "pub", []string{"s.txt"}, nil)), nil
		}
		return "", fmt.Errorf("unexpected folder %q", in.Params["folder"])
	}, config.Default())

	root := newPlainFolder(deps, arena, backend.ItemJSON{ID: "root", Name: "root"}, invalidHandle, nil)
	ctx := context.Background()

	items, err := root.GetItems(ctx)
	require.NoError(t, err)

	// A shared-flagged listing entry becomes a Shared folder; it still has
	// the full PlainFolder behavior.
	sh, ok := items["pub"].(*Shared)
	require.True(t, ok)
	_, ok = items["priv"].(*PlainFolder)
	require.True(t, ok)

	subItems, err := sh.GetItems(ctx)
	require.NoError(t, err)
	assert.Contains(t, subItems, "s.txt")

	_, ok = Folder(sh).(Mutable)
	assert.True(t, ok)

	// A refresh keeps the Shared node in place.
	root.childrenMu.Lock()
	root.refreshedAt = time.Now().Add(-time.Hour)
	root.childrenMu.Unlock()
	items, err = root.GetItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, Item(sh), items["pub"])
}
