package filedata

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/aerrors"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/config"
	"github.com/lightray22/andromeda-desktop-clients-sub001/internal/debug"
)

// pageFuture lets concurrent readers of the same missing page coalesce
// onto a single in-flight fetch, so two overlapping reads issue at most
// one backend request per page.
type pageFuture struct {
	done chan struct{}
	err  error
}

func newPageFuture() *pageFuture { return &pageFuture{done: make(chan struct{})} }

func (f *pageFuture) resolve(err error) {
	f.err = err
	close(f.done)
}

// PageCache is the per-file cache: the central read/write data path. All
// of its methods serialize on mu, which is never held across a PageBackend
// fetch, flush or truncate (and so never across a suspension point); only
// PageBackend's size/existence getters are read under it.
type PageCache struct {
	mu sync.Mutex

	pageSize int64
	maxDirty int64
	pages    map[int64]*Page
	inFlight map[int64]*pageFuture

	backend *PageBackend

	localSize  int64
	dirtyBytes int64
	deleted    bool

	writeMode      config.WriteMode
	readAheadPages int64
	readAheadTime  time.Duration
	maxReadBytes   int64

	bandwidthBytesPerSec float64
}

// NewPageCache constructs a cache for one file. initialLocalSize should be
// the file's current backendSize (or 0 for a brand new file).
func NewPageCache(pb *PageBackend, pageSize int64, cfg config.Config, initialLocalSize int64, writeMode config.WriteMode) *PageCache {
	maxReadBytes := cfg.ReadAheadBuffer
	if cfg.ReadMaxCacheFrac > 0 {
		maxReadBytes = cfg.ReadAheadBuffer / int64(cfg.ReadMaxCacheFrac)
	}
	return &PageCache{
		pageSize:             pageSize,
		maxDirty:             cfg.ReadAheadBuffer * 4,
		pages:                map[int64]*Page{},
		inFlight:             map[int64]*pageFuture{},
		backend:              pb,
		localSize:            initialLocalSize,
		writeMode:            writeMode,
		readAheadTime:        cfg.ReadAheadTime,
		maxReadBytes:         maxReadBytes,
		bandwidthBytesPerSec: 1 << 20, // 1 MiB/s until measured otherwise
	}
}

func (c *PageCache) pageRange(offset, length int64) (i0, i1 int64) {
	i0 = offset / c.pageSize
	i1 = (offset + length - 1) / c.pageSize
	return
}

// LocalSize returns the file's current size including unflushed dirty
// extensions.
func (c *PageCache) LocalSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localSize
}

func (c *PageCache) BackendSize() int64 { return c.backend.BackendSize() }

// Read ensures every touched page is resident (coalescing concurrent
// fetches of the same page), copies the requested slice out, and kicks
// off background read-ahead before returning.
func (c *PageCache) Read(ctx context.Context, offset, length int64) ([]byte, error) {
	if length <= 0 {
		return nil, nil
	}
	c.mu.Lock()
	if c.deleted {
		c.mu.Unlock()
		return nil, aerrors.ErrNotFound
	}
	if offset >= c.localSize {
		c.mu.Unlock()
		return nil, nil
	}
	if offset+length > c.localSize {
		length = c.localSize - offset
	}
	i0, i1 := c.pageRange(offset, length)
	c.mu.Unlock()

	if err := c.ensureResident(ctx, i0, i1); err != nil {
		return nil, err
	}

	c.mu.Lock()
	out := make([]byte, 0, length)
	for idx := i0; idx <= i1; idx++ {
		pageStart := idx * c.pageSize
		winLo := offset
		if pageStart > winLo {
			winLo = pageStart
		}
		winHi := offset + length
		if pageStart+c.pageSize < winHi {
			winHi = pageStart + c.pageSize
		}
		if winLo >= winHi {
			continue
		}
		p, ok := c.pages[idx]
		if !ok {
			// Absent past backendSize with no dirty extension: zero fill.
			out = append(out, make([]byte, winHi-winLo)...)
			continue
		}
		p.touch()
		data := p.Bytes()
		actualHi := pageStart + int64(len(data))
		if winHi > actualHi {
			if winLo < actualHi {
				out = append(out, data[winLo-pageStart:actualHi-pageStart]...)
			}
			zeroFrom := winLo
			if actualHi > zeroFrom {
				zeroFrom = actualHi
			}
			out = append(out, make([]byte, winHi-zeroFrom)...)
		} else {
			out = append(out, data[winLo-pageStart:winHi-pageStart]...)
		}
	}
	c.mu.Unlock()

	c.scheduleReadAhead(ctx, i1)
	return out, nil
}

// ensureResident fetches (or waits on an in-flight fetch for) every page in
// [i0,i1], batching missing contiguous runs into single PageBackend calls.
func (c *PageCache) ensureResident(ctx context.Context, i0, i1 int64) error {
	for {
		c.mu.Lock()
		var waitOn *pageFuture
		var missingStart, missingEnd int64 = -1, -1
		for idx := i0; idx <= i1; idx++ {
			if _, ok := c.pages[idx]; ok {
				continue
			}
			if f, ok := c.inFlight[idx]; ok {
				waitOn = f
				break
			}
			if c.pastLocalExtension(idx) {
				// Past backendSize with no cached dirty page: treated as
				// zero-filled, nothing to fetch.
				continue
			}
			if missingStart == -1 {
				missingStart = idx
			}
			missingEnd = idx
		}
		if waitOn != nil {
			c.mu.Unlock()
			<-waitOn.done
			if waitOn.err != nil {
				return waitOn.err
			}
			continue
		}
		if missingStart == -1 {
			c.mu.Unlock()
			return nil
		}
		future := newPageFuture()
		for idx := missingStart; idx <= missingEnd; idx++ {
			c.inFlight[idx] = future
		}
		c.mu.Unlock()

		err := c.fetchRun(ctx, missingStart, missingEnd-missingStart+1)

		c.mu.Lock()
		for idx := missingStart; idx <= missingEnd; idx++ {
			delete(c.inFlight, idx)
		}
		c.mu.Unlock()
		future.resolve(err)
		if err != nil && err != ErrEmptyRange {
			return err
		}
	}
}

// pastLocalExtension reports whether page idx lies entirely beyond the
// backend's authoritative size, i.e. it can only exist as a dirty
// extension we created locally.
func (c *PageCache) pastLocalExtension(idx int64) bool {
	return idx*c.pageSize >= c.backend.BackendSize()
}

func (c *PageCache) fetchRun(ctx context.Context, start, count int64) error {
	return c.backend.FetchPages(ctx, start, count, func(index, pageStart, size int64, data []byte) error {
		cp := make([]byte, size)
		copy(cp, data)
		c.mu.Lock()
		if _, exists := c.pages[index]; !exists {
			c.pages[index] = newPage(cp)
		}
		c.mu.Unlock()
		return nil
	})
}

// scheduleReadAhead starts background fetches for pages beyond the last
// page just read, sized to the configured read-ahead budget. It never
// blocks the caller.
func (c *PageCache) scheduleReadAhead(ctx context.Context, lastIndex int64) {
	c.mu.Lock()
	bw := c.bandwidthBytesPerSec
	maxReadBytes := c.maxReadBytes
	backendSize := c.backend.BackendSize()
	k := int64(bw * c.readAheadTime.Seconds() / float64(c.pageSize))
	if maxByBudget := maxReadBytes / c.pageSize; k > maxByBudget {
		k = maxByBudget
	}
	var toFetch []int64
	for idx := lastIndex + 1; idx < lastIndex+1+k && idx*c.pageSize < backendSize; idx++ {
		if _, ok := c.pages[idx]; ok {
			continue
		}
		if _, ok := c.inFlight[idx]; ok {
			continue
		}
		toFetch = append(toFetch, idx)
	}
	if len(toFetch) == 0 {
		c.mu.Unlock()
		return
	}
	future := newPageFuture()
	for _, idx := range toFetch {
		c.inFlight[idx] = future
	}
	c.mu.Unlock()

	go func() {
		start := time.Now()
		err := c.fetchRun(ctx, toFetch[0], toFetch[len(toFetch)-1]-toFetch[0]+1)
		elapsed := time.Since(start).Seconds()
		c.mu.Lock()
		for _, idx := range toFetch {
			delete(c.inFlight, idx)
		}
		if err == nil && elapsed > 0 {
			fetched := float64((toFetch[len(toFetch)-1] - toFetch[0] + 1) * c.pageSize)
			c.bandwidthBytesPerSec = fetched / elapsed
		}
		c.mu.Unlock()
		future.resolve(err)
		if err != nil && err != ErrEmptyRange {
			debug.Debugf("filedata.pagecache", "read-ahead fetch failed: %v", err)
		}
	}()
}

// Write validates the write mode, read-modify-writes partially-covered
// pages, marks pages dirty, and triggers a flush if the dirty budget is
// exceeded.
func (c *PageCache) Write(ctx context.Context, offset int64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	c.mu.Lock()
	if c.deleted {
		c.mu.Unlock()
		return aerrors.ErrNotFound
	}
	switch c.writeMode {
	case config.WriteModeNone:
		c.mu.Unlock()
		return aerrors.ErrWriteType
	case config.WriteModeAppend:
		if offset != c.localSize {
			c.mu.Unlock()
			return aerrors.ErrWriteType
		}
	}
	i0, i1 := c.pageRange(offset, int64(len(data)))
	backendSize := c.backend.BackendSize()
	c.mu.Unlock()

	// Read-modify-write: fetch any touched page that isn't fully covered by
	// the incoming range and isn't already resident, unless it lies beyond
	// backendSize (in which case it's created zero-filled, no fetch needed).
	var needFetchStart, needFetchEnd int64 = -1, -1
	c.mu.Lock()
	for idx := i0; idx <= i1; idx++ {
		pageStart := idx * c.pageSize
		fullyCovered := pageStart >= offset && pageStart+c.pageSize <= offset+int64(len(data))
		if fullyCovered {
			continue
		}
		if _, ok := c.pages[idx]; ok {
			continue
		}
		if pageStart >= backendSize {
			continue
		}
		if needFetchStart == -1 {
			needFetchStart = idx
		}
		needFetchEnd = idx
	}
	c.mu.Unlock()
	if needFetchStart != -1 {
		if err := c.ensureResident(ctx, needFetchStart, needFetchEnd); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for idx := i0; idx <= i1; idx++ {
		pageStart := idx * c.pageSize
		p, ok := c.pages[idx]
		if !ok {
			size := c.pageSize
			if pageStart+size > c.localSize && c.localSize > pageStart {
				size = c.localSize - pageStart
			} else if c.localSize <= pageStart {
				size = 0
			}
			p = newPage(make([]byte, size))
			c.pages[idx] = p
		}
		oldSize := p.Size()
		writeEndInPage := offset + int64(len(data)) - pageStart
		need := writeEndInPage
		if need > c.pageSize {
			need = c.pageSize
		}
		if int64(len(p.data)) < need {
			grown := make([]byte, need)
			copy(grown, p.data)
			p.data = grown
		}
		// Compute the slice of data that lands on this page.
		copyStart := int64(0)
		if pageStart > offset {
			copyStart = pageStart - offset
		}
		copyEnd := int64(len(data))
		if pageStart+int64(len(p.data)) < offset+int64(len(data)) {
			copyEnd = pageStart + int64(len(p.data)) - offset
		}
		if copyStart < copyEnd {
			dstOff := int64(0)
			if offset > pageStart {
				dstOff = offset - pageStart
			}
			copy(p.data[dstOff:], data[copyStart:copyEnd])
		}
		if !p.dirty {
			c.dirtyBytes += p.Size()
			p.dirty = true
		} else {
			c.dirtyBytes += p.Size() - oldSize
		}
		p.touch()
	}
	if offset+int64(len(data)) > c.localSize {
		c.localSize = offset + int64(len(data))
	}

	if c.dirtyBytes > c.maxDirty {
		// Flush while still holding mu is unsafe (suspends with lock
		// held); release, flush, and return — the caller-visible write
		// has already landed in cache either way.
		c.mu.Unlock()
		err := c.Flush(ctx, false)
		c.mu.Lock()
		if err != nil {
			return err
		}
	}
	return nil
}

type dirtyRun struct {
	start int64
	data  []byte
}

// Flush groups dirty pages into maximal contiguous runs and writes each
// back via PageBackend.FlushPageList. When nothrow is true, failures are
// logged and flushing continues with the remaining runs; otherwise the
// remaining runs are still attempted and the first failure is returned
// once all runs have been tried. A run that fails stays entirely
// dirty, so the next Flush retries it whole.
func (c *PageCache) Flush(ctx context.Context, nothrow bool) error {
	c.mu.Lock()
	if c.deleted {
		c.mu.Unlock()
		return nil
	}
	var indices []int64
	for idx, p := range c.pages {
		if p.dirty {
			indices = append(indices, idx)
		}
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	var runs []dirtyRun
	for i := 0; i < len(indices); {
		start := indices[i]
		j := i
		for j+1 < len(indices) && indices[j+1] == indices[j]+1 {
			j++
		}
		buf := make([]byte, 0)
		for k := i; k <= j; k++ {
			buf = append(buf, c.pages[indices[k]].Bytes()...)
		}
		runs = append(runs, dirtyRun{start: start, data: buf})
		i = j + 1
	}
	c.mu.Unlock()

	var firstErr error
	for _, run := range runs {
		if err := c.backend.FlushPageList(ctx, run.start, run.data); err != nil {
			debug.Errorf("filedata.pagecache", "flush run start=%d failed: %v", run.start, err)
			if !nothrow && firstErr == nil {
				firstErr = err
			}
			continue
		}
		c.mu.Lock()
		idx := run.start
		for consumed := int64(0); consumed < int64(len(run.data)); idx++ {
			p, ok := c.pages[idx]
			if !ok {
				break
			}
			if p.dirty {
				p.dirty = false
				c.dirtyBytes -= p.Size()
			}
			consumed += p.Size()
		}
		c.mu.Unlock()
	}
	if !nothrow {
		return firstErr
	}
	return nil
}

// Truncate drops pages beyond the new size, zero-extends in place when
// growing, and forwards to the backend immediately if the file already
// exists there.
func (c *PageCache) Truncate(ctx context.Context, newSize int64) error {
	c.mu.Lock()
	if c.deleted {
		c.mu.Unlock()
		return aerrors.ErrNotFound
	}
	for idx, p := range c.pages {
		pageStart := idx * c.pageSize
		if pageStart >= newSize {
			if p.dirty {
				c.dirtyBytes -= p.Size()
			}
			delete(c.pages, idx)
			continue
		}
		if pageStart+p.Size() > newSize {
			if p.dirty {
				c.dirtyBytes -= pageStart + p.Size() - newSize
			}
			p.data = p.data[:newSize-pageStart]
		}
	}
	c.localSize = newSize
	exists := c.backend.BackendExists()
	c.mu.Unlock()

	if exists {
		return c.backend.Truncate(ctx, newSize)
	}
	return nil
}

// Delete discards all cached pages without flushing and marks the file
// unusable.
func (c *PageCache) Delete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages = map[int64]*Page{}
	c.dirtyBytes = 0
	c.deleted = true
}

// Evict drops clean pages, least-recently-accessed first, until total
// cached bytes across this file is at most maxBytes. Dirty pages are never
// evicted.
func (c *PageCache) Evict(maxBytes int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	type entry struct {
		idx int64
		at  time.Time
	}
	var clean []entry
	for idx, p := range c.pages {
		total += p.Size()
		if !p.dirty {
			clean = append(clean, entry{idx, p.accessedAt})
		}
	}
	if total <= maxBytes {
		return
	}
	sort.Slice(clean, func(i, j int) bool { return clean[i].at.Before(clean[j].at) })
	for _, e := range clean {
		if total <= maxBytes {
			break
		}
		total -= c.pages[e.idx].Size()
		delete(c.pages, e.idx)
	}
}

// DirtyBytes reports the current dirty byte total, used by an external
// cache manager to decide when to call Flush across files.
func (c *PageCache) DirtyBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirtyBytes
}
