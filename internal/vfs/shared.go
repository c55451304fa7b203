package vfs

import (
	"context"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/backend"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/config"
)

// Shared is a folder of items the user has shared out, flagged as such in
// the backend listing. It behaves exactly like a PlainFolder; the distinct
// type exists so callers can tell shared folders apart from ordinary ones.
type Shared struct {
	PlainFolder
}

func newShared(deps *Deps, arena *Arena, ij backend.ItemJSON, parentHandle Handle, fsConfig *config.FSConfig) *Shared {
	sh := &Shared{}
	sh.folderCore = newFolderCore(deps, arena, ij.ID, ij.Name, parentHandle,
		func(ctx context.Context) (backend.FolderJSON, error) {
			return deps.Session.GetFolder(ctx, sh.ID())
		},
		refreshTTL, true)
	sh.fsConfig = fsConfig
	sh.applyTimestamps(ij.Created, ij.Modified, ij.Accessed)
	sh.ownHandle = arena.Register(sh)
	return sh
}

var _ Mutable = (*Shared)(nil)
