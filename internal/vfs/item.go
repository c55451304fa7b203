package vfs

import (
	"sync"
	"time"
)

// Item is the common surface of every tree node: identity,
// mutable name, timestamps, a weak parent reference resolved through the
// owning Arena, and the scope lock.
type Item interface {
	ID() string
	Name() string
	Parent() Folder

	Created() time.Time
	Modified() time.Time
	Accessed() time.Time

	IsFolder() bool

	// BorrowScope acquires a shared scope lock, keeping the item's identity
	// valid across a suspending operation; the returned func releases it.
	BorrowScope() func()
}

// itemBase implements the Item surface and is embedded by File and
// folderCore. Parent is stored as an Arena Handle, never a raw pointer, so
// it can never dangle.
type itemBase struct {
	arena *Arena

	mu           sync.RWMutex
	id           string
	name         string
	parentHandle Handle
	created      time.Time
	modified     time.Time
	accessed     time.Time

	scopeMu sync.RWMutex
}

func newItemBase(arena *Arena, id, name string, parentHandle Handle) itemBase {
	now := time.Now()
	return itemBase{
		arena:        arena,
		id:           id,
		name:         name,
		parentHandle: parentHandle,
		created:      now,
		modified:     now,
		accessed:     now,
	}
}

func (ib *itemBase) ID() string {
	ib.mu.RLock()
	defer ib.mu.RUnlock()
	return ib.id
}

func (ib *itemBase) setID(id string) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	ib.id = id
}

func (ib *itemBase) Name() string {
	ib.mu.RLock()
	defer ib.mu.RUnlock()
	return ib.name
}

func (ib *itemBase) setName(name string) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	ib.name = name
}

func (ib *itemBase) Parent() Folder {
	ib.mu.RLock()
	h := ib.parentHandle
	ib.mu.RUnlock()
	it := ib.arena.Get(h)
	if it == nil {
		return nil
	}
	f, _ := it.(Folder)
	return f
}

func (ib *itemBase) setParentHandle(h Handle) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	ib.parentHandle = h
}

func (ib *itemBase) Created() time.Time {
	ib.mu.RLock()
	defer ib.mu.RUnlock()
	return ib.created
}

func (ib *itemBase) Modified() time.Time {
	ib.mu.RLock()
	defer ib.mu.RUnlock()
	return ib.modified
}

func (ib *itemBase) Accessed() time.Time {
	ib.mu.RLock()
	defer ib.mu.RUnlock()
	return ib.accessed
}

func (ib *itemBase) touch() {
	ib.mu.Lock()
	ib.accessed = time.Now()
	ib.mu.Unlock()
}

// applyTimestamps updates created/modified/accessed from backend-reported
// unix seconds, used at construction, by the refresh methods, and on folder
// reload. Zero values leave the current timestamp unchanged.
func (ib *itemBase) applyTimestamps(created, modified, accessed int64) {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	if created > 0 {
		ib.created = time.Unix(created, 0)
	}
	if modified > 0 {
		ib.modified = time.Unix(modified, 0)
	}
	if accessed > 0 {
		ib.accessed = time.Unix(accessed, 0)
	}
}

func (ib *itemBase) BorrowScope() func() {
	ib.scopeMu.RLock()
	return ib.scopeMu.RUnlock
}

// tryBorrowExclusive attempts to take the scope lock exclusively without
// blocking. Deletion uses it: a delete must fail, not wait, while any
// borrower holds the item.
func (ib *itemBase) tryBorrowExclusive() (func(), bool) {
	if !ib.scopeMu.TryLock() {
		return nil, false
	}
	return ib.scopeMu.Unlock, true
}
