package vfs

import (
	"context"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/backend"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/config"
)

// Filesystem is the root folder of one storage (a "Filesystem" in backend terms).
// Its own item ID (the backend root folder's ID, as opposed to the
// filesystem ID used to mount it) is resolved lazily on first load.
type Filesystem struct {
	folderCore
	fsid string
}

func newFilesystem(deps *Deps, arena *Arena, fsid, name string, parentHandle Handle, fsConfig *config.FSConfig) *Filesystem {
	fsys := &Filesystem{fsid: fsid}
	fsys.folderCore = newFolderCore(deps, arena, "", name, parentHandle,
		func(ctx context.Context) (backend.FolderJSON, error) {
			return deps.Session.GetFSRoot(ctx, fsid)
		},
		refreshTTL, true)
	fsys.fsConfig = fsConfig
	fsys.ownHandle = arena.Register(fsys)
	return fsys
}

// FilesystemID returns the server-assigned filesystem identifier (distinct
// from the root folder's own item ID).
func (fsys *Filesystem) FilesystemID() string { return fsys.fsid }

func (fsys *Filesystem) CreateFile(ctx context.Context, name string) (*File, error) {
	return mutableCreateFile(ctx, &fsys.folderCore, name)
}

func (fsys *Filesystem) CreateFolder(ctx context.Context, name string) (Folder, error) {
	return mutableCreateFolder(ctx, &fsys.folderCore, name)
}

func (fsys *Filesystem) DeleteItem(ctx context.Context, name string) error {
	return mutableDeleteItem(ctx, &fsys.folderCore, name)
}

func (fsys *Filesystem) RenameItem(ctx context.Context, oldName, newName string, overwrite bool) error {
	return mutableRenameItem(ctx, &fsys.folderCore, oldName, newName, overwrite)
}

func (fsys *Filesystem) MoveItem(ctx context.Context, name string, newParent Folder, overwrite bool) error {
	return mutableMoveItem(ctx, &fsys.folderCore, name, newParent, overwrite)
}
