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
Package bufferedfs is the engine-facing filesystem adapter (C8): the one
surface the engine (internal/engine, through internal/webdb) actually
opens, reads, writes and globs against. It routes BUFFER and
force_direct_io files straight to the vfs handle (C4) with no paging,
and everything else through a shared pagebuffer.Pool (C7), splitting
multi-page requests into one pool access per page touched.
*/
package bufferedfs

import (
	"webdb/internal/hostfs"
	"webdb/internal/pagebuffer"
	"webdb/internal/vfs"
)

// FS is the buffered filesystem adapter shared by every Connection of
// one webdb.DB instance.
type FS struct {
	registry *vfs.Registry
	pool     *pagebuffer.Pool
}

// New builds an FS over registry, paging non-direct files through pool.
func New(registry *vfs.Registry, pool *pagebuffer.Pool) *FS {
	return &FS{registry: registry, pool: pool}
}

// CanSeek is always true: every file this adapter exposes supports
// positional access, satisfying spec.md §4.8.
func (fs *FS) CanSeek() bool { return true }

// OnDiskFile is always true, enabling the engine's random-read
// optimizations per spec.md §4.8.
func (fs *FS) OnDiskFile() bool { return true }

// Registry exposes the underlying file registry for callers (the
// webdb facade) that need registration, glob or file-info operations
// C8 itself doesn't wrap.
func (fs *FS) Registry() *vfs.Registry { return fs.registry }

// File is one open file as seen by the engine.
type File struct {
	fs *FS
	h  *vfs.WebFileHandle
}

// Open opens name (registering it first if this is its first open).
func (fs *FS) Open(name, url string, createNew bool) (*File, error) {
	h, err := fs.registry.Open(name, url, createNew)
	if err != nil {
		return nil, err
	}
	return &File{fs: fs, h: h}, nil
}

// Close releases the underlying handle.
func (f *File) Close() error { return f.h.Close() }

func (f *File) direct() bool {
	wf := f.h.File()
	return wf.DataProtocol == vfs.ProtocolBuffer || wf.ForceDirectIO
}

// Seek updates this file's handle-local position.
func (f *File) Seek(offset int64) { f.h.Seek(offset) }

// Read reads at the handle's current position, advancing it.
func (f *File) Read(buf []byte) (int, error) {
	n, err := f.ReadAt(buf, f.h.Position())
	if err == nil {
		f.h.Seek(f.h.Position() + int64(n))
	}
	return n, err
}

// Write writes at the handle's current position, advancing it.
func (f *File) Write(buf []byte) (int, error) {
	n, err := f.WriteAt(buf, f.h.Position())
	if err == nil {
		f.h.Seek(f.h.Position() + int64(n))
	}
	return n, err
}

// ReadAt reads len(buf) bytes at offset, routing BUFFER/force_direct_io
// files straight to C4 and everything else through the page buffer.
func (f *File) ReadAt(buf []byte, offset int64) (int, error) {
	if f.direct() {
		return f.h.ReadAt(buf, offset)
	}
	return f.fs.pagedReadAt(f.h.File(), buf, offset)
}

// WriteAt writes len(buf) bytes at offset.
func (f *File) WriteAt(buf []byte, offset int64) (int, error) {
	if f.direct() {
		return f.h.WriteAt(buf, offset)
	}
	return f.fs.pagedWriteAt(f.h.File(), buf, offset)
}

// FileSize returns the file's current authoritative size.
func (f *File) FileSize() int64 { return f.h.FileSize() }

// LastModified returns the host's modification time for the file.
func (f *File) LastModified() (int64, error) { return f.h.LastModified() }

// Sync flushes the file: for paged files this drains its dirty pages
// through the pool first, then asks the host to fsync.
func (f *File) Sync() error {
	if !f.direct() {
		if err := f.fs.pool.FlushFile(f.h.FileID()); err != nil {
			return err
		}
	}
	return f.h.Sync()
}

// Truncate resizes the file, dropping any now-stale cached pages.
func (f *File) Truncate(newSize int64) error {
	if err := f.h.Truncate(newSize); err != nil {
		return err
	}
	if !f.direct() {
		f.fs.pool.TryDropFile(f.h.FileID())
	}
	return nil
}

// Mkdir creates a host directory.
func (fs *FS) Mkdir(path string) error { return fs.registry.MkDir(path) }

// Glob matches registered and host file names against pattern.
func (fs *FS) Glob(pattern string) ([]string, error) { return fs.registry.Glob(pattern) }

// TryDropFile drops fileID's cached pages from the page buffer, refusing
// if any are still pinned. The webdb facade calls this ahead of a
// RegisterFileBuffer re-registration so a file still mid-query can't be
// silently replaced out from under it.
func (fs *FS) TryDropFile(fileID hostfs.FileID) bool { return fs.pool.TryDropFile(fileID) }
