/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package bufferedfs

import (
	"path/filepath"
	"testing"

	"webdb/internal/filestats"
	"webdb/internal/hostfs"
	"webdb/internal/pagebuffer"
	"webdb/internal/vfs"
)

func newTestFS(t *testing.T, pageSize, poolBytes int) (*FS, string) {
	t.Helper()
	dir := t.TempDir()
	host := hostfs.NewNative(dir)
	registry := vfs.NewRegistry(host, filestats.NewRegistry(uint32(pageSize)))
	pool := pagebuffer.NewPool(registry, pageSize, poolBytes)
	return New(registry, pool), dir
}

func TestPagedWriteThenReadAcrossPageBoundary(t *testing.T) {
	fs, dir := newTestFS(t, 16, 16*4)
	f, err := fs.Open("multi.dat", filepath.Join(dir, "multi.dat"), true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	payload := make([]byte, 40)
	for i := range payload {
		payload[i] = byte(i)
	}
	n, err := f.WriteAt(payload, 5) // spans pages 0,1,2 given pageSize=16
	if err != nil || n != len(payload) {
		t.Fatalf("WriteAt: n=%d err=%v", n, err)
	}

	got := make([]byte, len(payload))
	n, err = f.ReadAt(got, 5)
	if err != nil || n != len(payload) {
		t.Fatalf("ReadAt: n=%d err=%v", n, err)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d: got %d want %d", i, got[i], payload[i])
		}
	}
}

func TestDirectBufferFileBypassesPool(t *testing.T) {
	fs, _ := newTestFS(t, 16, 16*4)
	h, err := fs.Registry().RegisterBuffer("b.dat", []byte("0123456789"))
	if err != nil {
		t.Fatalf("RegisterBuffer: %v", err)
	}
	f := &File{fs: fs, h: h}
	defer f.Close()

	if !f.direct() {
		t.Fatal("expected a BUFFER-protocol file to be routed directly, not through the pool")
	}

	buf := make([]byte, 4)
	n, err := f.ReadAt(buf, 2)
	if err != nil || n != 4 || string(buf) != "2345" {
		t.Fatalf("ReadAt: n=%d err=%v buf=%q", n, err, buf)
	}

	stats := fs.pool.Stats()
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Errorf("expected the pool untouched by a direct read, got %+v", stats)
	}
}

func TestSyncFlushesDirtyPages(t *testing.T) {
	fs, dir := newTestFS(t, 16, 16*4)
	f, err := fs.Open("sync.dat", filepath.Join(dir, "sync.dat"), true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	if _, err := f.WriteAt([]byte("dirty"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	if err := f.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	// After Sync, re-reading via a fresh FS instance over the same
	// directory must observe the write-back to the host file.
	fs2, _ := newTestFSSamedir(t, dir, 16, 16*4)
	f2, err := fs2.Open("sync.dat", filepath.Join(dir, "sync.dat"), false)
	if err != nil {
		t.Fatalf("Open (reopen): %v", err)
	}
	defer f2.Close()
	buf := make([]byte, 5)
	if n, err := f2.ReadAt(buf, 0); err != nil || n != 5 || string(buf) != "dirty" {
		t.Fatalf("ReadAt after reopen: n=%d err=%v buf=%q", n, err, buf)
	}
}

func newTestFSSamedir(t *testing.T, dir string, pageSize, poolBytes int) (*FS, string) {
	t.Helper()
	host := hostfs.NewNative(dir)
	registry := vfs.NewRegistry(host, filestats.NewRegistry(uint32(pageSize)))
	pool := pagebuffer.NewPool(registry, pageSize, poolBytes)
	return New(registry, pool), dir
}
