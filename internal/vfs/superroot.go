package vfs

import "context"

// SuperRoot is the top-level folder of a mount that exposes more than one
// storage: it lists the Filesystems folder and the Adopted folder as its two
// children, loads exactly once, and never refreshes. It is read-only by construction: it does not
// implement Mutable, so every structural change fails the capability
// assertion with ErrModify.
type SuperRoot struct {
	folderCore
}

func newSuperRoot(deps *Deps, arena *Arena) *SuperRoot {
	sr := &SuperRoot{}
	sr.folderCore = newFolderCore(deps, arena, "", "SuperRoot", invalidHandle, nil, refreshOnce, false)
	sr.ownHandle = arena.Register(sr)
	return sr
}

// GetItems builds the fixed two-entry listing on first call and returns the
// cached copy forever after.
func (sr *SuperRoot) GetItems(ctx context.Context) (map[string]Item, error) {
	if sr.needsReload() {
		adopted := newAdopted(sr.deps, sr.arena, sr.selfItem())
		filesystems := newFilesystems(sr.deps, sr.arena, sr.selfItem())
		sr.replaceAll(map[string]Item{
			adopted.Name():     adopted,
			filesystems.Name(): filesystems,
		})
	}
	sr.childrenMu.RLock()
	defer sr.childrenMu.RUnlock()
	out := make(map[string]Item, len(sr.children))
	for k, v := range sr.children {
		out[k] = v
	}
	return out, nil
}

var _ Folder = (*SuperRoot)(nil)
