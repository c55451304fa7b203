package vfs

import (
	"context"
	"sync/atomic"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/aerrors"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/backend"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/config"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/debug"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/filedata"
)

// File is the leaf Item: a PageCache-backed regular file. Reads
// and writes never touch the backend directly; they go through the cache,
// which in turn drives a PageBackend under the global semaphore.
type File struct {
	itemBase

	deps     *Deps
	fsConfig *config.FSConfig

	cache   *filedata.PageCache
	backend *filedata.PageBackend

	deleted int32
}

func newFile(deps *Deps, arena *Arena, ij backend.ItemJSON, parentHandle Handle, backendExists bool, fsConfig *config.FSConfig) *File {
	f := &File{
		deps:     deps,
		fsConfig: fsConfig,
	}
	f.itemBase = newItemBase(arena, ij.ID, ij.Name, parentHandle)
	f.itemBase.applyTimestamps(ij.Created, ij.Modified, ij.Accessed)
	// Files are never a parent reference, so unlike folders they need no
	// arena registration of their own.

	pageSize := deps.Cfg.PageSize
	writeMode := config.WriteModeNone
	if fsConfig != nil {
		writeMode = fsConfig.WriteMode
	}

	parentID := func() string {
		p := f.Parent()
		if p == nil {
			return ""
		}
		return p.ID()
	}
	pb := filedata.NewPageBackend(deps.Session, deps.Sem, pageSize, ij.ID, backendExists, ij.Size,
		parentID, func() string { return f.Name() },
	)
	f.backend = pb
	f.cache = filedata.NewPageCache(pb, pageSize, deps.Cfg, ij.Size, writeMode)
	return f
}

func (f *File) IsFolder() bool { return false }

// BackendExists reports whether this file has ever been created/uploaded on
// the backend.
func (f *File) BackendExists() bool { return f.backend.BackendExists() }

// BackendSize returns the last known server-authoritative size.
func (f *File) BackendSize() int64 { return f.backend.BackendSize() }

// LocalSize returns the cache's notion of the current file length, which may
// exceed BackendSize if dirty pages extend past it.
func (f *File) LocalSize() int64 { return f.cache.LocalSize() }

func (f *File) isDeleted() bool { return atomic.LoadInt32(&f.deleted) != 0 }

func (f *File) markDeleted() {
	atomic.StoreInt32(&f.deleted, 1)
	f.cache.Delete()
}

// Read services a host-bridge read.
func (f *File) Read(ctx context.Context, offset, length int64) ([]byte, error) {
	if f.isDeleted() {
		return nil, aerrors.ErrNotFound
	}
	f.touch()
	return f.cache.Read(ctx, offset, length)
}

// Write services a host-bridge write, subject to FSConfig's
// write-mode policy.
func (f *File) Write(ctx context.Context, offset int64, data []byte) error {
	if f.isDeleted() {
		return aerrors.ErrNotFound
	}
	if err := f.checkFileWritable(); err != nil {
		return err
	}
	f.touch()
	return f.cache.Write(ctx, offset, data)
}

// Flush writes dirty pages back to the backend. A new file that was never
// written still gets created, so closing an empty file materializes it.
func (f *File) Flush(ctx context.Context, nothrow bool) error {
	if f.isDeleted() {
		return nil
	}
	if err := f.cache.Flush(ctx, nothrow); err != nil {
		return err
	}
	if !f.backend.BackendExists() {
		if err := f.backend.FlushCreate(ctx); err != nil {
			if !nothrow {
				return err
			}
			debug.Errorf("vfs.file", "flush create %q: %v", f.Name(), err)
		}
	}
	return nil
}

// Truncate resizes the file.
func (f *File) Truncate(ctx context.Context, size int64) error {
	if f.isDeleted() {
		return aerrors.ErrNotFound
	}
	if err := f.checkFileWritable(); err != nil {
		return err
	}
	f.touch()
	return f.cache.Truncate(ctx, size)
}

func (f *File) checkFileWritable() error {
	if f.fsConfig != nil && f.fsConfig.ReadOnly {
		return aerrors.ErrReadOnly
	}
	if f.deps.Cfg.EffectiveReadOnly() {
		return aerrors.ErrReadOnly
	}
	return nil
}

// refresh updates identity fields from a backend listing, without disturbing the page cache.
func (f *File) refresh(ij backend.ItemJSON) {
	f.setID(ij.ID)
	f.applyTimestamps(ij.Created, ij.Modified, ij.Accessed)
	f.backend.SetID(ij.ID)
}

// --- treeMutable ---

func (f *File) doDelete(ctx context.Context, deps *Deps) error {
	if !f.BackendExists() {
		return nil
	}
	return deps.Session.DeleteFile(ctx, f.ID())
}

func (f *File) doRename(ctx context.Context, deps *Deps, newName string, overwrite bool) error {
	if !f.BackendExists() {
		return nil
	}
	ij, err := deps.Session.RenameFile(ctx, f.ID(), newName, overwrite)
	if err != nil {
		return err
	}
	f.setID(ij.ID)
	f.backend.SetID(ij.ID)
	return nil
}

func (f *File) doMove(ctx context.Context, deps *Deps, newParentID string, overwrite bool) error {
	if !f.BackendExists() {
		return nil
	}
	ij, err := deps.Session.MoveFile(ctx, f.ID(), newParentID, overwrite)
	if err != nil {
		return err
	}
	f.setID(ij.ID)
	f.backend.SetID(ij.ID)
	return nil
}
