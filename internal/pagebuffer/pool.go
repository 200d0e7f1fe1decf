/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package pagebuffer implements the bounded, globally shared page cache
that sits between the buffered filesystem adapter (C8) and individual
files (C4): a fixed pool of fixed-size frames, LRU-with-pin-protection
eviction, dirty write-back, and a bypass path for files or moments that
can't be cached.

The pool never calls the host runtime directly — it calls back into a
PageHost, which the vfs package implements on top of WebFile/
WebFileHandle (C4), which is in turn the only component that talks to
hostfs (C1). This mirrors the control-flow chain spec.md §2 draws: C8
consults C7, which on a miss calls C4, which calls C1.
*/
package pagebuffer

import (
	"container/list"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"webdb/internal/ferrors"
	"webdb/internal/hostfs"
	"webdb/internal/logging"
	"webdb/internal/metrics"
)

var log = logging.NewLogger("pagebuffer")

// DefaultPageSize is P in spec.md §3 — 16 KiB.
const DefaultPageSize = 16 * 1024

// DefaultPoolBytes is the pool's default total size — 16 MiB.
const DefaultPoolBytes = 16 * 1024 * 1024

// Intent distinguishes a read-only get_page from one that intends to
// write into the page (and therefore marks it dirty on unpin).
type Intent int

const (
	IntentRead Intent = iota
	IntentWrite
)

// PageKey identifies one page of one file.
type PageKey struct {
	FileID hostfs.FileID
	PageNo uint64
}

// PageHost is how the pool loads and writes back raw page content. It
// is implemented by the vfs package on top of WebFile (C4), never
// calls back into the pool, and must not block holding any lock the
// pool itself needs.
type PageHost interface {
	// LoadPage reads up to len(buf) bytes at pageNo*pageSize into buf,
	// returning the number of bytes actually available (< len(buf) only
	// for the file's final, short page).
	LoadPage(fileID hostfs.FileID, pageNo uint64, buf []byte) (int, error)
	// StorePage writes data back at pageNo*pageSize.
	StorePage(fileID hostfs.FileID, pageNo uint64, data []byte) error
}

type frame struct {
	key     PageKey
	valid   bool
	bytes   []byte
	filled  int // valid bytes in the last page of a file may be < pageSize
	dirty   bool
	pinned  int32
	element *list.Element // this frame's node in the pool's LRU list
}

// Pool is the bounded, shared page cache.
type Pool struct {
	mu       sync.Mutex
	pageSize int
	frames   []*frame
	free     []*frame
	lru      *list.List // front = least recently used, back = most recently used
	index    map[PageKey]*frame
	host     PageHost
	epoch    atomic.Uint64
	loadOnce singleflight.Group

	evictions atomic.Uint64
	hits      atomic.Uint64
	misses    atomic.Uint64
	bypasses  atomic.Uint64

	metrics *metrics.PageBufferMetrics
}

// SetMetrics attaches a metrics sink created by metrics.NewPageBufferMetrics.
// A nil sink (the default, and whatever metrics.NewPageBufferMetrics
// returns when metrics.InitRegistry was never called) makes every
// recording call below a no-op.
func (p *Pool) SetMetrics(m *metrics.PageBufferMetrics) {
	p.mu.Lock()
	p.metrics = m
	p.mu.Unlock()
}

// NewPool creates a pool of poolBytes/pageSize frames.
func NewPool(host PageHost, pageSize, poolBytes int) *Pool {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if poolBytes <= 0 {
		poolBytes = DefaultPoolBytes
	}
	n := poolBytes / pageSize
	if n < 1 {
		n = 1
	}
	p := &Pool{
		pageSize: pageSize,
		frames:   make([]*frame, n),
		lru:      list.New(),
		index:    make(map[PageKey]*frame),
		host:     host,
	}
	for i := range p.frames {
		f := &frame{bytes: make([]byte, pageSize)}
		p.frames[i] = f
		p.free = append(p.free, f)
	}
	return p
}

// PageSize returns the configured frame size.
func (p *Pool) PageSize() int { return p.pageSize }

// PinnedPage is a live reference into the pool returned by GetPage. It
// must be released exactly once via Unpin. A page with no backing frame
// was served via direct bypass I/O; Unpin on such a bypass page writes
// through immediately if dirty.
type PinnedPage struct {
	pool    *Pool
	f       *frame
	key     PageKey
	bypass  []byte
	filled  int
}

// Bytes returns the page's valid content (length <= pool.PageSize()).
func (pg *PinnedPage) Bytes() []byte {
	if pg.f != nil {
		return pg.f.bytes[:pg.filled]
	}
	return pg.bypass[:pg.filled]
}

// WriteAt copies data into the page's backing storage at localOffset
// (clamped to the page's capacity), extending the page's valid length
// if the write reaches past it. Returns the number of bytes copied.
// Callers must still Unpin(dirty: true) to mark the page written.
func (pg *PinnedPage) WriteAt(localOffset int, data []byte) int {
	dst := pg.bypass
	if pg.f != nil {
		dst = pg.f.bytes
	}
	end := localOffset + len(data)
	if end > len(dst) {
		end = len(dst)
	}
	n := copy(dst[localOffset:end], data)
	if end > pg.filled {
		pg.filled = end
		if pg.f != nil {
			pg.f.filled = end
		}
	}
	return n
}

// GetPage pins and returns the page (fileID, pageNo), loading it from
// the host on a miss. expectedLen is the number of valid bytes the
// caller expects in this page (pageSize, except for a file's final
// page).
func (p *Pool) GetPage(key PageKey, intent Intent, expectedLen int) (*PinnedPage, error) {
	p.mu.Lock()
	if f, ok := p.index[key]; ok {
		atomic.AddInt32(&f.pinned, 1)
		p.lru.MoveToBack(f.element)
		p.epoch.Add(1)
		p.hits.Add(1)
		p.metrics.RecordHit()
		p.mu.Unlock()
		return &PinnedPage{pool: p, f: f, key: key, filled: f.filled}, nil
	}
	p.misses.Add(1)
	p.metrics.RecordMiss()

	f := p.acquireFrameLocked()
	m := p.metrics
	p.mu.Unlock()

	if f == nil {
		// No unpinned frame to evict: serve this one request directly
		// from the host with no caching, per spec.md §4.7.
		p.bypasses.Add(1)
		m.RecordBypass()
		buf := make([]byte, expectedLen)
		n, err := p.host.LoadPage(key.FileID, key.PageNo, buf)
		if err != nil {
			return nil, err
		}
		return &PinnedPage{pool: p, bypass: buf, key: key, filled: n}, nil
	}

	// Load (or wait for a concurrent identical load of) this page's
	// content before installing it, so two racing misses on the same
	// key issue exactly one host read.
	v, err, _ := p.loadOnce.Do(keyString(key), func() (any, error) {
		n, err := p.host.LoadPage(key.FileID, key.PageNo, f.bytes)
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), f.bytes[:n]...), nil
	})
	if err != nil {
		p.mu.Lock()
		p.returnFrameLocked(f)
		p.mu.Unlock()
		return nil, err
	}
	n := copy(f.bytes, v.([]byte))

	p.mu.Lock()
	f.key = key
	f.valid = true
	f.filled = n
	f.dirty = false
	f.pinned = 1
	f.element = p.lru.PushBack(f)
	p.index[key] = f
	p.epoch.Add(1)
	p.mu.Unlock()

	return &PinnedPage{pool: p, f: f, key: key, filled: n}, nil
}

// acquireFrameLocked must be called with p.mu held. It returns a frame
// ready to receive new content, either from the free list or by
// evicting the least-recently-used unpinned frame (writing it back
// first if dirty). Returns nil if every frame is pinned.
func (p *Pool) acquireFrameLocked() *frame {
	if len(p.free) > 0 {
		f := p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
		return f
	}

	for e := p.lru.Front(); e != nil; e = e.Next() {
		f := e.Value.(*frame)
		if atomic.LoadInt32(&f.pinned) != 0 {
			continue
		}
		p.lru.Remove(e)
		delete(p.index, f.key)
		if f.dirty {
			// Write back outside the pool lock: release, store, then
			// reacquire before the caller proceeds to reuse the frame.
			key, data := f.key, append([]byte(nil), f.bytes[:f.filled]...)
			p.mu.Unlock()
			if err := p.host.StorePage(key.FileID, key.PageNo, data); err != nil {
				log.Error("evict write-back failed", "file_id", keyString(key), "err", err.Error())
			}
			p.mu.Lock()
		}
		p.evictions.Add(1)
		p.metrics.RecordEviction()
		f.dirty = false
		f.element = nil
		return f
	}
	return nil
}

func (p *Pool) returnFrameLocked(f *frame) {
	f.valid = false
	f.dirty = false
	f.pinned = 0
	f.element = nil
	p.free = append(p.free, f)
}

// Unpin releases a page obtained from GetPage. dirty marks it modified
// (meaningless for a bypass page, which instead writes through now).
func (pg *PinnedPage) Unpin(dirty bool) error {
	if pg.f == nil {
		if dirty {
			return pg.pool.host.StorePage(pg.key.FileID, pg.key.PageNo, pg.bypass[:pg.filled])
		}
		return nil
	}
	pg.pool.mu.Lock()
	if dirty {
		pg.f.dirty = true
		pg.pool.metrics.RecordWrite()
	}
	atomic.AddInt32(&pg.f.pinned, -1)
	pg.pool.mu.Unlock()
	return nil
}

// FlushFile writes back every dirty frame belonging to fileID, leaving
// them clean and resident.
func (p *Pool) FlushFile(fileID hostfs.FileID) error {
	return p.flushMatching(func(k PageKey) bool { return k.FileID == fileID })
}

// FlushFiles writes back every dirty frame in the pool, across all
// files, writing the dirty pages back in parallel (one goroutine per
// page).
func (p *Pool) FlushFiles() error {
	return p.flushMatching(func(PageKey) bool { return true })
}

func (p *Pool) flushMatching(match func(PageKey) bool) error {
	type dirty struct {
		key  PageKey
		data []byte
	}
	p.mu.Lock()
	var toFlush []dirty
	for k, f := range p.index {
		if f.dirty && match(k) {
			toFlush = append(toFlush, dirty{key: k, data: append([]byte(nil), f.bytes[:f.filled]...)})
		}
	}
	p.mu.Unlock()

	if len(toFlush) == 0 {
		return nil
	}

	var g errgroup.Group
	for _, d := range toFlush {
		d := d
		g.Go(func() error {
			if err := p.host.StorePage(d.key.FileID, d.key.PageNo, d.data); err != nil {
				return ferrors.IoError(err, "flush page %v", d.key)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	p.mu.Lock()
	for _, d := range toFlush {
		if f, ok := p.index[d.key]; ok {
			f.dirty = false
		}
	}
	p.mu.Unlock()
	return nil
}

// TryDropFile invalidates every frame belonging to fileID and returns
// true, unless some frame for it is currently pinned, in which case it
// refuses and returns false without modifying anything.
func (p *Pool) TryDropFile(fileID hostfs.FileID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for k, f := range p.index {
		if k.FileID == fileID && atomic.LoadInt32(&f.pinned) != 0 {
			return false
		}
	}
	for k, f := range p.index {
		if k.FileID != fileID {
			continue
		}
		p.lru.Remove(f.element)
		delete(p.index, k)
		p.returnFrameLocked(f)
	}
	return true
}

// Stats is a point-in-time snapshot of pool counters, consumed by
// internal/metrics.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Bypasses  uint64
	FramesTot int
	FramesUsed int
}

// Stats returns a snapshot of cumulative counters, refreshing the
// pinned/dirty/hit-ratio gauges on the attached metrics sink (if any)
// as a side effect — callers that poll Stats periodically (e.g. the
// shell's \pool command, through DB.PoolStats) keep the Prometheus
// gauges current for free.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	used := len(p.index)
	pinned, dirty := 0, 0
	for _, f := range p.index {
		if atomic.LoadInt32(&f.pinned) != 0 {
			pinned++
		}
		if f.dirty {
			dirty++
		}
	}
	m := p.metrics
	p.mu.Unlock()

	hits, misses := p.hits.Load(), p.misses.Load()
	m.SetGauges(pinned, dirty, hits, misses)

	return Stats{
		Hits:       hits,
		Misses:     misses,
		Evictions:  p.evictions.Load(),
		Bypasses:   p.bypasses.Load(),
		FramesTot:  len(p.frames),
		FramesUsed: used,
	}
}

func keyString(k PageKey) string {
	return strconv.FormatUint(uint64(k.FileID), 10) + ":" + strconv.FormatUint(k.PageNo, 10)
}
