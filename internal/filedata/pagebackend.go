package filedata

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/backend"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/debug"
)

// ErrEmptyRange is returned by FetchPages when the computed read size is
// non-positive.
var ErrEmptyRange = errors.New("filedata: empty fetch range")

// NewSemaphore builds the process-wide background-I/O concurrency limiter,
// backed by golang.org/x/sync/semaphore.
func NewSemaphore(limit int64) *semaphore.Weighted {
	if limit <= 0 {
		limit = 4
	}
	return semaphore.NewWeighted(limit)
}

// PageHandler receives one fully assembled page as FetchPages streams a
// backend read.
type PageHandler func(index, pageStart, size int64, data []byte) error

// PageBackend wraps a backend.Session and the global concurrency
// semaphore to translate page fetches/flushes into backend byte-range
// I/O. It is also the sole owner of backendSize/backendExists, since
// every mutation of them happens at the point of a successful backend
// call.
type PageBackend struct {
	session  *backend.Session
	sem      *semaphore.Weighted
	pageSize int64

	parentID func() string
	name     func() string

	mu            sync.RWMutex
	id            string
	backendExists bool
	backendSize   int64
}

// NewPageBackend constructs a PageBackend for one file. parentID/name are
// callbacks rather than fixed strings because a file's parent can change
// under a Move after construction.
func NewPageBackend(session *backend.Session, sem *semaphore.Weighted, pageSize int64, id string, backendExists bool, backendSize int64, parentID, name func() string) *PageBackend {
	return &PageBackend{
		session:       session,
		sem:           sem,
		pageSize:      pageSize,
		id:            id,
		backendExists: backendExists,
		backendSize:   backendSize,
		parentID:      parentID,
		name:          name,
	}
}

func (b *PageBackend) ID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.id
}

func (b *PageBackend) SetID(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.id = id
}

func (b *PageBackend) BackendExists() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.backendExists
}

func (b *PageBackend) BackendSize() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.backendSize
}

// FetchPages reads count pages starting at index, clamped to the file's
// current backend size, and delivers each fully assembled page to handler
// in order.
func (b *PageBackend) FetchPages(ctx context.Context, index, count int64, handler PageHandler) error {
	b.mu.RLock()
	id := b.id
	backendSize := b.backendSize
	b.mu.RUnlock()

	pageStart := index * b.pageSize
	readSize := backendSize - pageStart
	if want := count * b.pageSize; want < readSize {
		readSize = want
	}
	if readSize <= 0 {
		return ErrEmptyRange
	}

	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer b.sem.Release(1)

	curIdx := index
	curStart := pageStart
	buf := make([]byte, 0, b.pageSize)

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		if err := handler(curIdx, curStart, int64(len(buf)), buf); err != nil {
			return err
		}
		curIdx++
		curStart += int64(len(buf))
		buf = make([]byte, 0, b.pageSize)
		return nil
	}

	err := b.session.ReadFile(ctx, id, pageStart, readSize, func(bufOffset int64, p []byte) error {
		abs := pageStart + bufOffset
		if abs+int64(len(p)) > backendSize {
			// Fragment straddles the tail after a concurrent truncation;
			// drop it rather than corrupt the page.
			if abs >= backendSize {
				return nil
			}
			p = p[:backendSize-abs]
		}
		for len(p) > 0 {
			capacity := int(b.pageSize) - len(buf)
			n := len(p)
			if n > capacity {
				n = capacity
			}
			buf = append(buf, p[:n]...)
			p = p[n:]
			if len(buf) == int(b.pageSize) || curStart+int64(len(buf)) >= backendSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return flush()
}

// FlushPageList writes a single contiguous run of dirty pages back via
// one of three paths: create (index!=0, no file yet), upload (index==0,
// no file yet), or a plain range write.
func (b *PageBackend) FlushPageList(ctx context.Context, startIndex int64, data []byte) error {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer b.sem.Release(1)

	b.mu.RLock()
	exists := b.backendExists
	id := b.id
	b.mu.RUnlock()

	pageStart := startIndex * b.pageSize

	switch {
	case !exists && startIndex != 0:
		item, err := b.session.CreateFile(ctx, b.parentID(), b.name())
		if err != nil {
			return err
		}
		id = item.ID
		b.SetID(id)
		if err := b.session.WriteFile(ctx, id, pageStart, data); err != nil {
			return err
		}
	case !exists && startIndex == 0:
		item, err := b.session.UploadFile(ctx, b.parentID(), b.name(), data)
		if err != nil {
			return err
		}
		b.SetID(item.ID)
	default:
		if err := b.session.WriteFile(ctx, id, pageStart, data); err != nil {
			return err
		}
	}

	b.mu.Lock()
	newEnd := pageStart + int64(len(data))
	if newEnd > b.backendSize {
		b.backendSize = newEnd
	}
	b.backendExists = true
	b.mu.Unlock()
	debug.Debugf("filedata.pagebackend", "flushed run start=%d len=%d", startIndex, len(data))
	return nil
}

// FlushCreate forces creation of a zero-length backend file if none exists
// yet, used when a file must have a backend identity before some other
// operation (e.g. a rename) can proceed.
func (b *PageBackend) FlushCreate(ctx context.Context) error {
	b.mu.RLock()
	exists := b.backendExists
	b.mu.RUnlock()
	if exists {
		return nil
	}
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer b.sem.Release(1)
	item, err := b.session.CreateFile(ctx, b.parentID(), b.name())
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.id = item.ID
	b.backendExists = true
	b.mu.Unlock()
	return nil
}

// Truncate forwards to the backend when the file already exists there,
// otherwise is a no-op (the eventual flush/create will pick up the final
// size via localSize instead).
func (b *PageBackend) Truncate(ctx context.Context, size int64) error {
	b.mu.RLock()
	exists := b.backendExists
	id := b.id
	b.mu.RUnlock()
	if !exists {
		return nil
	}
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer b.sem.Release(1)
	if err := b.session.TruncateFile(ctx, id, size); err != nil {
		return err
	}
	b.mu.Lock()
	b.backendSize = size
	b.mu.Unlock()
	return nil
}
