package vfs

import (
	"context"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/backend"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/config"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/debug"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/filedata"
)

// RootType selects what a Mount exposes as its root directory.
type RootType int

const (
	// RootSuperRoot lists every storage plus the adopted items.
	RootSuperRoot RootType = iota
	// RootFilesystem mounts one storage root by filesystem ID ("" = default).
	RootFilesystem
	// RootFolder mounts one plain folder by item ID.
	RootFolder
)

// Mount owns one item tree: the arena, the shared Deps, and the root folder.
// It is the object handed to the host bridge.
type Mount struct {
	deps  *Deps
	arena *Arena
	root  Folder
}

// NewMount fetches server capabilities and account limits, derives the
// per-filesystem policy, and builds the requested root.
func NewMount(ctx context.Context, session *backend.Session, cfg config.Config, rootType RootType, id string) (*Mount, error) {
	serverCfg, err := session.GetConfig(ctx)
	if err != nil {
		return nil, err
	}
	cfg.ServerReadOnly = serverCfg.ReadOnly
	cfg.APIVersion = serverCfg.APIVersion

	limitsJSON, err := session.GetAccountLimits(ctx)
	if err != nil {
		return nil, err
	}
	limits := config.AccountLimits{
		RandomWriteDisabled: limitsJSON.RandomWriteDisabled,
		AppendOnly:          limitsJSON.AppendOnly,
	}

	deps := &Deps{
		Session: session,
		Sem:     filedata.NewSemaphore(int64(cfg.BackendRunners)),
		Cfg:     cfg,
		Locks:   &LockManager{},
	}
	arena := NewArena()

	m := &Mount{deps: deps, arena: arena}
	switch rootType {
	case RootSuperRoot:
		m.root = newSuperRoot(deps, arena)

	case RootFilesystem:
		fj, err := session.GetFilesystem(ctx, id)
		if err != nil {
			return nil, err
		}
		fsConfig := config.DeriveFSConfig(cfg, config.ServerType(fj.Type), fj.ChunkSize, limits)
		m.root = newFilesystem(deps, arena, fj.ID, fj.Name, invalidHandle, &fsConfig)

	case RootFolder:
		fj, err := session.GetFolder(ctx, id)
		if err != nil {
			return nil, err
		}
		// A bare folder mount has no filesystem record to derive a type
		// from; it gets the most permissive mode the account allows.
		fsConfig := config.DeriveFSConfig(cfg, config.ServerTypeUnknown, 0, limits)
		pf := newPlainFolder(deps, arena, fj.ItemJSON, invalidHandle, &fsConfig)
		pf.syncContents(fj)
		m.root = pf
	}
	debug.Infof("vfs.mount", "mounted root %q (api %s)", m.root.Name(), cfg.APIVersion)
	return m, nil
}

// Root returns the tree root the host bridge resolves paths against.
func (m *Mount) Root() Folder { return m.root }

// Config returns the effective mount configuration after server
// capabilities were merged in.
func (m *Mount) Config() config.Config { return m.deps.Cfg }

// FlushAll writes back every dirty page in every loaded file. Failures are
// logged and flushing continues, so a dying mount gets as much data out as
// it can.
func (m *Mount) FlushAll(ctx context.Context) {
	stack := []Folder{m.root}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		core, err := folderCoreOf(f)
		if err != nil {
			continue
		}
		for _, child := range core.loadedChildren() {
			switch c := child.(type) {
			case *File:
				if err := c.Flush(ctx, true); err != nil {
					debug.Errorf("vfs.mount", "flush %q: %v", c.Name(), err)
				}
			case Folder:
				stack = append(stack, c)
			}
		}
	}
}

// Shutdown flushes all dirty data and closes the backend session if this
// process opened it. It never fails; teardown errors are logged.
func (m *Mount) Shutdown(ctx context.Context) {
	m.FlushAll(ctx)
	m.deps.Session.CloseSession(ctx)
}
