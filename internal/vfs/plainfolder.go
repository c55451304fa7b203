package vfs

import (
	"context"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/backend"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/config"
)

// PlainFolder is an ordinary backend folder: TTL-refreshed, mutable subject
// to FSConfig/global read-only policy.
type PlainFolder struct {
	folderCore
}

func newPlainFolder(deps *Deps, arena *Arena, ij backend.ItemJSON, parentHandle Handle, fsConfig *config.FSConfig) *PlainFolder {
	pf := &PlainFolder{}
	pf.folderCore = newFolderCore(deps, arena, ij.ID, ij.Name, parentHandle,
		func(ctx context.Context) (backend.FolderJSON, error) {
			return deps.Session.GetFolder(ctx, pf.ID())
		},
		refreshTTL, true)
	pf.fsConfig = fsConfig
	pf.applyTimestamps(ij.Created, ij.Modified, ij.Accessed)
	pf.ownHandle = arena.Register(pf)
	return pf
}

func (pf *PlainFolder) refresh(ij backend.ItemJSON) {
	pf.setID(ij.ID)
	pf.applyTimestamps(ij.Created, ij.Modified, ij.Accessed)
}

func (pf *PlainFolder) CreateFile(ctx context.Context, name string) (*File, error) {
	return mutableCreateFile(ctx, &pf.folderCore, name)
}

func (pf *PlainFolder) CreateFolder(ctx context.Context, name string) (Folder, error) {
	return mutableCreateFolder(ctx, &pf.folderCore, name)
}

func (pf *PlainFolder) DeleteItem(ctx context.Context, name string) error {
	return mutableDeleteItem(ctx, &pf.folderCore, name)
}

func (pf *PlainFolder) RenameItem(ctx context.Context, oldName, newName string, overwrite bool) error {
	return mutableRenameItem(ctx, &pf.folderCore, oldName, newName, overwrite)
}

func (pf *PlainFolder) MoveItem(ctx context.Context, name string, newParent Folder, overwrite bool) error {
	return mutableMoveItem(ctx, &pf.folderCore, name, newParent, overwrite)
}

// --- treeMutable: a PlainFolder can itself be a child of another PlainFolder ---

func (pf *PlainFolder) doDelete(ctx context.Context, deps *Deps) error {
	return deps.Session.DeleteFolder(ctx, pf.ID())
}

func (pf *PlainFolder) doRename(ctx context.Context, deps *Deps, newName string, overwrite bool) error {
	ij, err := deps.Session.RenameFolder(ctx, pf.ID(), newName, overwrite)
	if err != nil {
		return err
	}
	pf.setID(ij.ID)
	return nil
}

func (pf *PlainFolder) doMove(ctx context.Context, deps *Deps, newParentID string, overwrite bool) error {
	ij, err := deps.Session.MoveFolder(ctx, pf.ID(), newParentID, overwrite)
	if err != nil {
		return err
	}
	pf.setID(ij.ID)
	return nil
}
