package vfs

import (
	"context"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/backend"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/config"
)

// adoptedFSConfig makes every item listed under Adopted read-only,
// regardless of the owning filesystem's own policy.
var adoptedFSConfig = &config.FSConfig{ReadOnly: true}

// Adopted lists items owned by other accounts that were shared into this
// one ("Adopted by others"). It loads once from the dedicated getadopted
// call and never refreshes; its items are never cross-linked into any
// regular folder's map even when the same server ID appears in both.
// Like SuperRoot it does not implement Mutable.
type Adopted struct {
	folderCore
}

func newAdopted(deps *Deps, arena *Arena, parentHandle Handle) *Adopted {
	ad := &Adopted{}
	ad.folderCore = newFolderCore(deps, arena, "", "Adopted by others", parentHandle,
		func(ctx context.Context) (backend.FolderJSON, error) {
			return deps.Session.GetAdopted(ctx)
		},
		refreshOnce, false)
	ad.fsConfig = adoptedFSConfig
	ad.ownHandle = arena.Register(ad)
	return ad
}

var _ Folder = (*Adopted)(nil)
