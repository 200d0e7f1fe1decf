/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package vfs

import (
	"runtime"
	"sync"
	"sync/atomic"

	"webdb/internal/ferrors"
	"webdb/internal/hostfs"
	"webdb/internal/readahead"
)

// WebFileHandle is a reference-counted handle to a WebFile (C4). It
// owns a shared reference to the file, a handle-local position cursor,
// and — resolved lazily on first read — a read-ahead window scoped to
// this handle. Handles are meant to be explicitly Close()d by their
// owner; the runtime finalizer registered in newHandle is a last-resort
// safety net only, never relied on for correctness.
type WebFileHandle struct {
	registry *Registry
	file     *WebFile
	position atomic.Int64

	raMu sync.Mutex
	ra   *readahead.Context

	closeOnce sync.Once
}

func newHandle(r *Registry, f *WebFile) *WebFileHandle {
	h := &WebFileHandle{registry: r, file: f}
	runtime.SetFinalizer(h, func(h *WebFileHandle) { h.Close() })
	return h
}

// FileID returns the underlying file's id.
func (h *WebFileHandle) FileID() hostfs.FileID { return h.file.FileID }

// File exposes the underlying WebFile record, for components (the
// page-buffer adapter, bufferedfs) that need more than the handle's
// position-tracking read/write surface.
func (h *WebFileHandle) File() *WebFile { return h.file }

// FileSize returns the file's current authoritative size.
func (h *WebFileHandle) FileSize() int64 {
	h.file.FileLock.RLock()
	defer h.file.FileLock.RUnlock()
	return h.file.FileSize
}

// Seek updates the handle-local position; per spec.md §4.8 seeking is
// always supported and purely a local cursor update.
func (h *WebFileHandle) Seek(offset int64) { h.position.Store(offset) }

// Position returns the handle's current cursor.
func (h *WebFileHandle) Position() int64 { return h.position.Load() }

func (h *WebFileHandle) raContext() *readahead.Context {
	h.raMu.Lock()
	defer h.raMu.Unlock()
	if h.ra == nil {
		h.ra = h.registry.readahead.NewContext()
	}
	return h.ra
}

// Read reads len(buf) bytes at the handle's current position, advancing
// it by the number of bytes read, and routes BUFFER files straight to
// the buffer while NATIVE/HTTP files go through this handle's read-ahead
// window.
func (h *WebFileHandle) Read(buf []byte) (int, error) {
	return h.ReadAt(buf, h.position.Load())
}

// ReadAt reads len(buf) bytes at offset and moves the handle's position
// cursor to just past the bytes read (offset+n). Used by positional
// callers such as bufferedfs.
func (h *WebFileHandle) ReadAt(buf []byte, offset int64) (int, error) {
	h.file.FileLock.RLock()
	proto := h.file.DataProtocol
	size := h.file.FileSize
	if proto == ProtocolBuffer {
		n := h.file.DataBuffer.ReadAt(buf, int(offset))
		h.file.FileLock.RUnlock()
		h.registry.metrics.RecordIO(proto.String(), "read", n)
		h.position.Store(offset + int64(n))
		return n, nil
	}
	h.file.FileLock.RUnlock()

	ra := h.raContext()
	ls := hostfs.NewLocalState()
	n, _, err := ra.Read(h.file.FileID, buf, offset, size, func(fileID hostfs.FileID, b []byte, off int64) (int, error) {
		return h.registry.host.Read(ls, fileID, b, off)
	})
	if err != nil {
		return 0, err
	}
	h.registry.metrics.RecordIO(proto.String(), "read", n)
	h.position.Store(offset + int64(n))
	return n, nil
}

// Write writes len(buf) bytes at the handle's current position,
// advancing it, and invalidates any read-ahead window held by any
// handle over this file.
func (h *WebFileHandle) Write(buf []byte) (int, error) {
	return h.WriteAt(buf, h.position.Load())
}

// WriteAt writes len(buf) bytes at offset and moves the handle's
// position cursor to just past the bytes written (offset+n).
func (h *WebFileHandle) WriteAt(buf []byte, offset int64) (int, error) {
	h.file.FileLock.Lock()
	proto := h.file.DataProtocol
	n, err := h.file.writeCore(hostfs.NewLocalState(), h.registry.host, buf, offset)
	h.file.FileLock.Unlock()
	if err != nil {
		return 0, err
	}
	h.registry.metrics.RecordIO(proto.String(), "write", n)
	h.registry.readahead.Invalidate(h.file.FileID)
	h.position.Store(offset + int64(n))
	return n, nil
}

// Truncate resizes the file and invalidates read-ahead windows over it.
func (h *WebFileHandle) Truncate(newSize int64) error {
	h.file.FileLock.Lock()
	var err error
	switch h.file.DataProtocol {
	case ProtocolBuffer:
		h.file.DataBuffer.Resize(int(newSize))
		h.file.FileSize = int64(h.file.DataBuffer.Size())
	default:
		ls := hostfs.NewLocalState()
		if err = h.registry.host.Truncate(ls, h.file.FileID, newSize); err == nil {
			h.file.FileSize = newSize
		}
	}
	h.file.FileLock.Unlock()
	if err != nil {
		return err
	}
	h.registry.readahead.Invalidate(h.file.FileID)
	if c := h.file.FileStats; c != nil {
		c.Resize(newSize)
	}
	return nil
}

// LastModified returns the host's last-modified time for the file, or
// zero for a BUFFER file (no host record exists).
func (h *WebFileHandle) LastModified() (int64, error) {
	h.file.FileLock.RLock()
	proto := h.file.DataProtocol
	id := h.file.FileID
	h.file.FileLock.RUnlock()
	if proto == ProtocolBuffer {
		return 0, nil
	}
	return h.registry.host.LastModified(hostfs.NewLocalState(), id)
}

// Sync flushes the file to its host, a no-op for BUFFER files.
func (h *WebFileHandle) Sync() error {
	h.file.FileLock.RLock()
	proto := h.file.DataProtocol
	id := h.file.FileID
	h.file.FileLock.RUnlock()
	if proto == ProtocolBuffer {
		return nil
	}
	return h.registry.host.Sync(hostfs.NewLocalState(), id)
}

// Close implements spec.md §4.4's close flow: a non-blocking exclusive
// lock attempt, then a handle-count decrement, then — only if the count
// reached zero and the lock was actually acquired — a host close and
// registry cleanup. Safe to call more than once; only the first call
// does anything.
func (h *WebFileHandle) Close() error {
	var closeErr error
	h.closeOnce.Do(func() {
		closeErr = h.closeLocked()
	})
	runtime.SetFinalizer(h, nil)
	return closeErr
}

func (h *WebFileHandle) closeLocked() error {
	f := h.file
	h.registry.metrics.RecordClose()

	h.raMu.Lock()
	if h.ra != nil {
		h.registry.readahead.Release(h.ra)
		h.ra = nil
	}
	h.raMu.Unlock()

	gotLock := f.FileLock.TryLock()
	remaining := f.HandleCount.Add(-1)

	if remaining > 0 {
		if gotLock {
			f.FileLock.Unlock()
		}
		return nil
	}
	if !gotLock {
		// Another goroutine is mid-operation on this file; it will
		// observe the zero count when it releases the lock. We must not
		// also try to close the host handle.
		return nil
	}
	defer f.FileLock.Unlock()

	if f.DataProtocol == ProtocolBuffer {
		return nil
	}

	ls := hostfs.NewLocalState()
	if err := h.registry.host.Close(ls, f.FileID); err != nil {
		log.Error("host close failed", "file", f.FileName, "err", err.Error())
		return ferrors.IoError(err, "close %q", f.FileName)
	}

	h.registry.fsMutex.Lock()
	delete(h.registry.filesByID, f.FileID)
	delete(h.registry.filesByName, f.FileName)
	h.registry.fsMutex.Unlock()
	return nil
}
