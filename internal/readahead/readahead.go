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
Package readahead implements the per-caller sequential-read cache that
sits in front of non-buffered protocols (NATIVE, ranged HTTP).

A Context holds exactly one prefetched window at a time — matching the
source's "single window per thread" design — and is meant to be owned
by whichever goroutine is issuing reads against a filesystem, the same
explicit-context-threading pattern internal/hostfs uses for its
LocalState. A Manager tracks every live Context for a given filesystem
instance so that a write or truncate on one file can invalidate any
caller's cached window over that file without reaching into
goroutine-local storage (spec.md §9 rules that out).
*/
package readahead

import (
	"sync"

	"webdb/internal/hostfs"
)

// MinWindow is the smallest prefetch window fetched on a miss, per
// spec.md §4.5.
const MinWindow = 32 * 1024

// Fetcher reads len(buf) bytes from fileID at offset via the host
// runtime. It is the same shape as hostfs.Runtime.Read, passed in
// directly so this package stays independent of the registry/handle
// layer above it.
type Fetcher func(fileID hostfs.FileID, buf []byte, offset int64) (int, error)

// Context is one caller's read-ahead window. Not safe for concurrent
// use by more than one goroutine — exactly like the source's
// per-thread buffer.
type Context struct {
	mu sync.Mutex

	manager *Manager
	fileID  hostfs.FileID
	offset  int64
	data    []byte

	ColdBytes   int64
	CachedBytes int64
}

// Manager tracks every live Context belonging to one filesystem
// instance so writes/truncates can invalidate matching windows across
// all of them.
type Manager struct {
	mu       sync.Mutex
	contexts map[*Context]struct{}
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{contexts: make(map[*Context]struct{})}
}

// NewContext allocates a Context registered with m. Callers should keep
// exactly one Context per goroutine that reads through this
// filesystem, the same way they keep one hostfs.LocalState per
// goroutine.
func (m *Manager) NewContext() *Context {
	c := &Context{manager: m}
	m.mu.Lock()
	m.contexts[c] = struct{}{}
	m.mu.Unlock()
	return c
}

// Release unregisters c from m. Call when the owning goroutine is done
// with the filesystem (e.g. a handle closes).
func (m *Manager) Release(c *Context) {
	m.mu.Lock()
	delete(m.contexts, c)
	m.mu.Unlock()
}

// Invalidate clears the cached window of every registered Context that
// currently holds data for fileID. Called on write and truncate.
func (m *Manager) Invalidate(fileID hostfs.FileID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c := range m.contexts {
		c.mu.Lock()
		if c.data != nil && c.fileID == fileID {
			c.fileID = 0
			c.offset = 0
			c.data = nil
		}
		c.mu.Unlock()
	}
}

// Read serves len(buf) bytes for fileID at offset, using the cached
// window when it covers the request and otherwise refilling via fetch
// with a window of at least MinWindow bytes (capped to fileSize).
// Returns the number of bytes copied and whether the request was
// served from cache.
func (c *Context) Read(fileID hostfs.FileID, buf []byte, offset int64, fileSize int64, fetch Fetcher) (n int, cached bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data != nil && c.fileID == fileID && offset >= c.offset && offset+int64(len(buf)) <= c.offset+int64(len(c.data)) {
		n = copy(buf, c.data[offset-c.offset:])
		c.CachedBytes += int64(n)
		return n, true, nil
	}

	want := len(buf)
	if want < MinWindow {
		want = MinWindow
	}
	if remaining := fileSize - offset; int64(want) > remaining {
		want = int(remaining)
	}
	if want <= 0 {
		return 0, false, nil
	}

	window := make([]byte, want)
	got, err := fetch(fileID, window, offset)
	if err != nil {
		return 0, false, err
	}
	window = window[:got]

	c.fileID = fileID
	c.offset = offset
	c.data = window
	c.ColdBytes += int64(got)

	n = copy(buf, window)
	return n, false, nil
}
