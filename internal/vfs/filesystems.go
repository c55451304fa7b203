package vfs

import (
	"context"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/config"
)

// Filesystems is the read-only listing of every storage root the account
// can see, refreshed via its own dedicated backend call
// rather than the generic folder listing.
type Filesystems struct {
	folderCore
}

func newFilesystems(deps *Deps, arena *Arena, parentHandle Handle) *Filesystems {
	fsn := &Filesystems{}
	fsn.folderCore = newFolderCore(deps, arena, "", "Filesystems", parentHandle, nil, refreshDedicated, false)
	fsn.ownHandle = arena.Register(fsn)
	return fsn
}

// GetItems overrides the generic folderCore implementation: the backend
// listing comes from GetFilesystems/GetAccountLimits, not GetFolder, and
// each entry becomes a *Filesystem rather than a *File/*PlainFolder.
func (fsn *Filesystems) GetItems(ctx context.Context) (map[string]Item, error) {
	if fsn.needsReload() {
		list, err := fsn.deps.Session.GetFilesystems(ctx)
		if err != nil {
			return nil, err
		}
		limits, err := fsn.deps.Session.GetAccountLimits(ctx)
		if err != nil {
			return nil, err
		}
		accountLimits := config.AccountLimits{
			RandomWriteDisabled: limits.RandomWriteDisabled,
			AppendOnly:          limits.AppendOnly,
		}

		fsn.childrenMu.RLock()
		existing := fsn.children
		fsn.childrenMu.RUnlock()

		children := make(map[string]Item, len(list))
		for _, fj := range list {
			name := fj.Name
			if name == "" {
				name = fj.ID
			}
			if old, ok := existing[name]; ok {
				if oldFsys, ok := old.(*Filesystem); ok && oldFsys.FilesystemID() == fj.ID {
					children[name] = oldFsys
					continue
				}
			}
			fsConfig := config.DeriveFSConfig(fsn.deps.Cfg, config.ServerType(fj.Type), fj.ChunkSize, accountLimits)
			children[name] = newFilesystem(fsn.deps, fsn.arena, fj.ID, name, fsn.selfItem(), &fsConfig)
		}
		fsn.replaceAll(children)
	}

	fsn.childrenMu.RLock()
	defer fsn.childrenMu.RUnlock()
	out := make(map[string]Item, len(fsn.children))
	for k, v := range fsn.children {
		out[k] = v
	}
	return out, nil
}
