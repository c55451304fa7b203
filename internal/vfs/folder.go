package vfs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/aerrors"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/backend"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/config"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/debug"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/stringutil"
)

// Folder is the capability every tree directory node exposes.
// Folders that also accept mutation additionally implement Mutable; folders
// that don't (SuperRoot, Filesystems, Adopted) simply lack those methods, so
// a type assertion against Mutable fails for them.
type Folder interface {
	Item
	GetItems(ctx context.Context) (map[string]Item, error)
}

// Mutable is implemented by folders that accept structural changes:
// PlainFolder and Filesystem, gated internally by their FSConfig/global
// read-only policy.
type Mutable interface {
	Folder
	CreateFile(ctx context.Context, name string) (*File, error)
	CreateFolder(ctx context.Context, name string) (Folder, error)
	DeleteItem(ctx context.Context, name string) error
	RenameItem(ctx context.Context, oldName, newName string, overwrite bool) error
	MoveItem(ctx context.Context, name string, newParent Folder, overwrite bool) error
}

// loader produces a folder's child listing from the backend. It returns the
// folder's own refreshed identity fields plus file/folder entries.
type loader func(ctx context.Context) (backend.FolderJSON, error)

// refreshPolicy controls whether GetItems reloads on TTL expiry.
type refreshPolicy int

const (
	refreshTTL      refreshPolicy = iota // reload after Deps.Cfg.DirRefresh
	refreshOnce                          // load once, never again (SuperRoot, Adopted)
	refreshDedicated                     // reload every call beyond TTL, via a dedicated loader (Filesystems)
)

// folderCore implements the common GetItems/refresh/child-map machinery
// shared by every Folder variant. Concrete variants embed it and supply a
// loader plus a refreshPolicy; mutation methods (when applicable) are
// defined on the concrete variant, not promoted from folderCore, so that
// read-only variants never satisfy Mutable.
type folderCore struct {
	itemBase

	deps *Deps

	ownHandle Handle // this folder's own arena handle, set right after registration
	fsConfig  *config.FSConfig

	childrenMu  sync.RWMutex
	children    map[string]Item
	haveItems   bool
	refreshedAt time.Time

	load   loader
	policy refreshPolicy

	preserveUnflushed bool // SyncContents keeps backendExists==false files (PlainFolder/Filesystem)
}

func newFolderCore(deps *Deps, arena *Arena, id, name string, parentHandle Handle, load loader, policy refreshPolicy, preserveUnflushed bool) folderCore {
	return folderCore{
		itemBase:          newItemBase(arena, id, name, parentHandle),
		deps:              deps,
		children:          make(map[string]Item),
		load:              load,
		policy:            policy,
		preserveUnflushed: preserveUnflushed,
	}
}

func (f *folderCore) IsFolder() bool { return true }

// core lets package-internal helpers recover the shared folderCore from any
// Folder-implementing variant without a type switch over every variant.
func (f *folderCore) core() *folderCore { return f }

func (f *folderCore) fsConfigSource() *config.FSConfig { return f.fsConfig }

func (f *folderCore) needsReload() bool {
	f.childrenMu.RLock()
	defer f.childrenMu.RUnlock()
	if !f.haveItems {
		return true
	}
	switch f.policy {
	case refreshOnce:
		return false
	default:
		// Memory mode never refreshes a populated folder; the synthetic
		// state would be clobbered by the real backend listing.
		if f.deps.Cfg.CacheMode == config.CacheModeMemory {
			return false
		}
		return time.Since(f.refreshedAt) > f.deps.Cfg.DirRefresh
	}
}

// GetItems returns the current child map, reloading first if stale. The
// returned map is a fresh copy, safe for the caller to range over
// without holding any lock.
func (f *folderCore) GetItems(ctx context.Context) (map[string]Item, error) {
	if f.needsReload() {
		fj, err := f.load(ctx)
		if err != nil {
			return nil, err
		}
		if fj.ID != "" {
			// Resolves a Filesystem's own root ID lazily on first load.
			f.setID(fj.ID)
		}
		f.applyTimestamps(fj.Created, fj.Modified, fj.Accessed)
		f.syncContents(fj)
	}
	f.childrenMu.RLock()
	defer f.childrenMu.RUnlock()
	out := make(map[string]Item, len(f.children))
	for k, v := range f.children {
		out[k] = v
	}
	return out, nil
}

// syncContents merges a fresh backend listing into the child map:
// existing children are refreshed in place, new
// entries are constructed, and entries absent from the new listing are
// removed unless preserveUnflushed keeps an un-uploaded local File alive.
func (f *folderCore) syncContents(fj backend.FolderJSON) {
	f.childrenMu.Lock()
	defer f.childrenMu.Unlock()

	self := f.selfItem()

	for name, ij := range fj.Files {
		if existing, ok := f.children[name]; ok {
			if file, ok := existing.(*File); ok {
				file.refresh(ij)
				continue
			}
		}
		f.children[name] = newFile(f.deps, f.arena, ij, self, true, f.fsConfig)
	}
	for name, ij := range fj.Folders {
		if existing, ok := f.children[name]; ok {
			switch ex := existing.(type) {
			case *PlainFolder:
				ex.refresh(ij)
				continue
			case *Shared:
				ex.refresh(ij)
				continue
			}
		}
		if ij.Shared {
			f.children[name] = newShared(f.deps, f.arena, ij, self, f.fsConfig)
		} else {
			f.children[name] = newPlainFolder(f.deps, f.arena, ij, self, f.fsConfig)
		}
	}

	for name, existing := range f.children {
		_, wantFile := fj.Files[name]
		_, wantFolder := fj.Folders[name]
		if wantFile || wantFolder {
			continue
		}
		if f.preserveUnflushed {
			if file, ok := existing.(*File); ok && !file.BackendExists() {
				continue
			}
		}
		delete(f.children, name)
	}

	f.haveItems = true
	f.refreshedAt = time.Now()
	debug.Debugf("vfs.folder", "%s synced: %d files, %d folders", f.Name(), len(fj.Files), len(fj.Folders))
}

// selfItem returns the Handle this folderCore is registered under, so new
// children can be given a parent back-reference. Concrete variants register
// themselves in the arena at construction and must set ownHandle before any
// syncContents call.
func (f *folderCore) selfItem() Handle { return f.ownHandle }

// replaceAll installs a synthetic listing directly (used by
// SuperRoot/Filesystems/Adopted, which build their children programmatically
// rather than from a FolderJSON).
func (f *folderCore) replaceAll(children map[string]Item) {
	f.childrenMu.Lock()
	defer f.childrenMu.Unlock()
	f.children = children
	f.haveItems = true
	f.refreshedAt = time.Now()
}

func (f *folderCore) lookupChild(name string) (Item, bool) {
	f.childrenMu.RLock()
	defer f.childrenMu.RUnlock()
	it, ok := f.children[name]
	return it, ok
}

func (f *folderCore) insertChild(name string, it Item) {
	f.childrenMu.Lock()
	f.children[name] = it
	f.childrenMu.Unlock()
}

func (f *folderCore) removeChildLocked(name string) {
	delete(f.children, name)
}

// loadedChildren snapshots the current child map without triggering a load,
// used by tree walks (flush-all) that must not touch the backend.
func (f *folderCore) loadedChildren() map[string]Item {
	f.childrenMu.RLock()
	defer f.childrenMu.RUnlock()
	if !f.haveItems {
		return nil
	}
	out := make(map[string]Item, len(f.children))
	for k, v := range f.children {
		out[k] = v
	}
	return out
}

// --- Path resolution ---

// GetItemByPath resolves rel (a "/"-separated path, possibly empty) against
// root, iterating rather than recursing to keep stack depth bounded.
func GetItemByPath(ctx context.Context, root Folder, rel string) (Item, error) {
	parts := stringutil.SplitPath(rel)
	var cur Item = root
	for _, part := range parts {
		folder, ok := cur.(Folder)
		if !ok {
			return nil, aerrors.ErrNotFolder
		}
		items, err := folder.GetItems(ctx)
		if err != nil {
			return nil, err
		}
		child, ok := items[part]
		if !ok {
			return nil, aerrors.ErrNotFound
		}
		release := child.BorrowScope()
		cur = child
		release()
	}
	return cur, nil
}

// GetFolderByPath resolves rel and asserts the result is a Folder.
func GetFolderByPath(ctx context.Context, root Folder, rel string) (Folder, error) {
	it, err := GetItemByPath(ctx, root, rel)
	if err != nil {
		return nil, err
	}
	f, ok := it.(Folder)
	if !ok {
		return nil, aerrors.ErrNotFolder
	}
	return f, nil
}

// GetFileByPath resolves rel and asserts the result is a File.
func GetFileByPath(ctx context.Context, root Folder, rel string) (*File, error) {
	it, err := GetItemByPath(ctx, root, rel)
	if err != nil {
		return nil, err
	}
	file, ok := it.(*File)
	if !ok {
		return nil, aerrors.ErrNotFile
	}
	return file, nil
}

// --- Shared mutation machinery used by PlainFolder and Filesystem ---

func mutableCreateFile(ctx context.Context, f *folderCore, name string) (*File, error) {
	if name == "" {
		return nil, aerrors.ErrDuplicateItem
	}
	if err := checkWritable(f); err != nil {
		return nil, err
	}
	if _, err := f.GetItems(ctx); err != nil {
		return nil, err
	}
	f.childrenMu.Lock()
	if _, exists := f.children[name]; exists {
		f.childrenMu.Unlock()
		return nil, aerrors.ErrDuplicateItem
	}
	f.childrenMu.Unlock()

	ij, err := f.deps.Session.CreateFile(ctx, f.ID(), name)
	if err != nil {
		return nil, err
	}
	// A synthetic response (memory mode) carries no server ID: the file is
	// local-only until its first flush uploads it. Give it a local ID so it
	// still has a stable identity.
	backendExists := ij.ID != ""
	if !backendExists {
		ij.ID = localID()
	}
	ij.Name = name
	file := newFile(f.deps, f.arena, ij, f.selfItem(), backendExists, f.fsConfig)
	f.insertChild(name, file)
	return file, nil
}

func mutableCreateFolder(ctx context.Context, f *folderCore, name string) (*PlainFolder, error) {
	if name == "" {
		return nil, aerrors.ErrDuplicateItem
	}
	if err := checkWritable(f); err != nil {
		return nil, err
	}
	if _, err := f.GetItems(ctx); err != nil {
		return nil, err
	}
	f.childrenMu.Lock()
	if _, exists := f.children[name]; exists {
		f.childrenMu.Unlock()
		return nil, aerrors.ErrDuplicateItem
	}
	f.childrenMu.Unlock()

	ij, err := f.deps.Session.CreateFolder(ctx, f.ID(), name)
	if err != nil {
		return nil, err
	}
	if ij.ID == "" {
		ij.ID = localID()
	}
	ij.Name = name
	pf := newPlainFolder(f.deps, f.arena, ij, f.selfItem(), f.fsConfig)
	f.insertChild(name, pf)
	return pf, nil
}

func mutableDeleteItem(ctx context.Context, f *folderCore, name string) error {
	if err := checkWritable(f); err != nil {
		return err
	}
	child, ok := f.lookupChild(name)
	if !ok {
		return aerrors.ErrNotFound
	}
	// Take the scope lock exclusively for the whole removal so no borrower
	// can acquire the item while it is being deleted.
	release, acquired := tryScopeExclusive(child)
	if !acquired {
		return aerrors.ErrItemBusy
	}
	defer release()
	if err := subDelete(ctx, f.deps, child); err != nil {
		return err
	}
	f.childrenMu.Lock()
	f.removeChildLocked(name)
	f.childrenMu.Unlock()
	if file, ok := child.(*File); ok {
		file.markDeleted()
	}
	if ch, ok := child.(coreHolder); ok {
		// Unlinked folders release their arena handle; any straggling child
		// parent lookup resolves to nil instead of a dangling reference.
		f.arena.Forget(ch.core().ownHandle)
	}
	return nil
}

func mutableRenameItem(ctx context.Context, f *folderCore, oldName, newName string, overwrite bool) error {
	if err := checkWritable(f); err != nil {
		return err
	}
	if _, err := f.GetItems(ctx); err != nil {
		return err
	}
	child, ok := f.lookupChild(oldName)
	if !ok {
		return aerrors.ErrNotFound
	}
	if _, exists := f.lookupChild(newName); exists && !overwrite {
		return aerrors.ErrDuplicateItem
	}
	if err := subRename(ctx, f.deps, child, newName, overwrite); err != nil {
		return err
	}
	f.childrenMu.Lock()
	if displaced, exists := f.children[newName]; exists && displaced != child {
		if file, ok := displaced.(*File); ok {
			file.markDeleted()
		}
	}
	delete(f.children, oldName)
	f.children[newName] = child
	f.childrenMu.Unlock()
	setItemName(child, newName)
	return nil
}

func mutableMoveItem(ctx context.Context, f *folderCore, name string, newParent Folder, overwrite bool) error {
	if err := checkWritable(f); err != nil {
		return err
	}
	destCore, err := folderCoreOf(newParent)
	if err != nil {
		return err
	}
	if err := checkWritable(destCore); err != nil {
		return err
	}
	// The tree-wide lock serializes cross-folder structure changes so the
	// check below stays valid while the backend call runs with no folder
	// lock held.
	unlockTree := f.deps.Locks.LockTree()
	defer unlockTree()

	unlock := lockFoldersOrdered(f, destCore)
	child, ok := f.children[name]
	if !ok {
		unlock()
		return aerrors.ErrNotFound
	}
	if newParent.ID() == "" {
		unlock()
		return aerrors.ErrNotFound
	}
	if _, exists := destCore.children[name]; exists && !overwrite {
		unlock()
		return aerrors.ErrDuplicateItem
	}
	unlock()

	if err := subMove(ctx, f.deps, child, newParent.ID(), overwrite); err != nil {
		return err
	}

	unlock = lockFoldersOrdered(f, destCore)
	if displaced, exists := destCore.children[name]; exists && displaced != child {
		if file, ok := displaced.(*File); ok {
			file.markDeleted()
		}
	}
	delete(f.children, name)
	destCore.children[name] = child
	unlock()
	setItemParent(child, destCore.selfItem())
	return nil
}

// localID synthesizes a stable local identity for an item the backend has
// not assigned an ID yet (memory mode, or a file awaiting its first flush).
func localID() string { return "local-" + uuid.NewString() }

// checkWritable enforces the read-only policy for PlainFolder and
// Filesystem (SuperRoot/Filesystems/Adopted never call this; they simply
// don't implement Mutable).
func checkWritable(f *folderCore) error {
	fsc := f.fsConfigSource()
	if fsc != nil && fsc.ReadOnly {
		return aerrors.ErrReadOnly
	}
	if f.deps.Cfg.EffectiveReadOnly() {
		return aerrors.ErrReadOnly
	}
	return nil
}

// coreHolder is implemented (via promotion) by every Folder variant, since
// each embeds folderCore somewhere in its chain.
type coreHolder interface {
	core() *folderCore
}

func folderCoreOf(f Folder) (*folderCore, error) {
	ch, ok := f.(coreHolder)
	if !ok {
		return nil, aerrors.ErrNotFolder
	}
	return ch.core(), nil
}

// treeMutable is implemented by *File and *PlainFolder: the child kinds that
// can be deleted, renamed, or moved by a parent's mutation methods. Special
// folders never appear as a child under a Mutable parent.
type treeMutable interface {
	doDelete(ctx context.Context, deps *Deps) error
	doRename(ctx context.Context, deps *Deps, newName string, overwrite bool) error
	doMove(ctx context.Context, deps *Deps, newParentID string, overwrite bool) error
}

func subDelete(ctx context.Context, deps *Deps, it Item) error {
	tm, ok := it.(treeMutable)
	if !ok {
		return aerrors.ErrModify
	}
	return tm.doDelete(ctx, deps)
}

func subRename(ctx context.Context, deps *Deps, it Item, newName string, overwrite bool) error {
	tm, ok := it.(treeMutable)
	if !ok {
		return aerrors.ErrModify
	}
	return tm.doRename(ctx, deps, newName, overwrite)
}

func subMove(ctx context.Context, deps *Deps, it Item, newParentID string, overwrite bool) error {
	tm, ok := it.(treeMutable)
	if !ok {
		return aerrors.ErrModify
	}
	return tm.doMove(ctx, deps, newParentID, overwrite)
}

// nameSetter/parentSetter/scopeLocker are satisfied (via promotion from
// itemBase) by every concrete Item; the helpers below use them instead of a
// type switch over every variant.
type nameSetter interface{ setName(string) }
type parentSetter interface{ setParentHandle(Handle) }
type scopeLocker interface {
	tryBorrowExclusive() (func(), bool)
}

func tryScopeExclusive(it Item) (func(), bool) {
	sl, ok := it.(scopeLocker)
	if !ok {
		return func() {}, true
	}
	return sl.tryBorrowExclusive()
}

func setItemName(it Item, name string) {
	if ns, ok := it.(nameSetter); ok {
		ns.setName(name)
	}
}

func setItemParent(it Item, h Handle) {
	if ps, ok := it.(parentSetter); ok {
		ps.setParentHandle(h)
	}
}
