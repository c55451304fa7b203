// Package filedata implements the per-file data path: PageCache
// (fixed-size pages, dirty tracking, read-ahead, write-back) and
// PageBackend (translates page fetches/flushes into backend byte-range
// I/O under a global concurrency semaphore).
package filedata

import "time"

// Page is a single fixed-size (except possibly the last) byte buffer of a
// file.
type Page struct {
	data       []byte
	dirty      bool
	accessedAt time.Time
}

func newPage(data []byte) *Page {
	return &Page{data: data, accessedAt: time.Now()}
}

// Size returns the page's current byte length, which is pageSize for every
// page except possibly the last.
func (p *Page) Size() int64 { return int64(len(p.data)) }

// Bytes returns the page's backing buffer. Callers that mutate it must hold
// the owning PageCache's lock.
func (p *Page) Bytes() []byte { return p.data }

func (p *Page) touch() { p.accessedAt = time.Now() }
