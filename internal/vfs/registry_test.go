/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package vfs

import (
	"path/filepath"
	"testing"

	"webdb/internal/filestats"
	"webdb/internal/hostfs"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := t.TempDir()
	host := hostfs.NewNative(dir)
	return NewRegistry(host, filestats.NewRegistry(4096)), dir
}

func TestRegisterBufferThenOpenRoundTrip(t *testing.T) {
	r, _ := newTestRegistry(t)

	h, err := r.RegisterBuffer("mem.csv", []byte("a,b,c\n"))
	if err != nil {
		t.Fatalf("RegisterBuffer: %v", err)
	}
	if h.File().DataProtocol != ProtocolBuffer {
		t.Fatalf("expected BUFFER protocol, got %v", h.File().DataProtocol)
	}

	buf := make([]byte, 6)
	n, err := h.Read(buf)
	if err != nil || n != 6 || string(buf) != "a,b,c\n" {
		t.Fatalf("Read: n=%d err=%v buf=%q", n, err, buf)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestOpenNativeFileWriteReadClose(t *testing.T) {
	r, dir := newTestRegistry(t)
	path := filepath.Join(dir, "t.dat")

	h, err := r.Open("t.dat", path, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if n, err := h.Write([]byte("hello")); err != nil || n != 5 {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}

	buf := make([]byte, 5)
	if n, err := h.ReadAt(buf, 0); err != nil || n != 5 || string(buf) != "hello" {
		t.Fatalf("ReadAt: n=%d err=%v buf=%q", n, err, buf)
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := r.FileInfoByName("t.dat"); ok {
		t.Fatalf("expected file to be unregistered after last handle closed")
	}
}

func TestTryDropRefusesWhileHandleOpen(t *testing.T) {
	r, _ := newTestRegistry(t)

	h, err := r.RegisterBuffer("x.bin", []byte("data"))
	if err != nil {
		t.Fatalf("RegisterBuffer: %v", err)
	}
	if r.TryDrop("x.bin") {
		t.Fatal("expected TryDrop to refuse while a handle is open")
	}
	h.Close()
	if !r.TryDrop("x.bin") {
		t.Fatal("expected TryDrop to succeed once the handle closed")
	}
}

func TestRegisterURLSameNameDifferentURLFails(t *testing.T) {
	r, dir := newTestRegistry(t)

	if _, err := r.RegisterURL("dup", filepath.Join(dir, "one.dat"), 0); err != nil {
		t.Fatalf("RegisterURL: %v", err)
	}
	if _, err := r.RegisterURL("dup", filepath.Join(dir, "two.dat"), 0); err == nil {
		t.Fatal("expected AlreadyRegistered error for a name re-registered with a different URL")
	}
}

func TestRegisterBufferReplacesNativeAndClosesHostHandle(t *testing.T) {
	r, dir := newTestRegistry(t)
	path := filepath.Join(dir, "n.dat")

	h1, err := r.Open("n.dat", path, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	h1.Write([]byte("native"))
	h1.Close()

	h2, err := r.RegisterBuffer("n.dat", []byte("buffered"))
	if err != nil {
		t.Fatalf("RegisterBuffer: %v", err)
	}
	if h2.File().DataProtocol != ProtocolBuffer {
		t.Fatalf("expected file to switch to BUFFER protocol")
	}
	h2.Close()
}

func TestGlobUnionsInMemoryAndHostMatches(t *testing.T) {
	r, dir := newTestRegistry(t)

	hostPath := filepath.Join(dir, "host.csv")
	hHost, err := r.Open("host.csv", hostPath, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer hHost.Close()

	hMem, err := r.RegisterBuffer(filepath.Join(dir, "mem.csv"), []byte("x"))
	if err != nil {
		t.Fatalf("RegisterBuffer: %v", err)
	}
	defer hMem.Close()

	matches, err := r.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 glob matches, got %d: %v", len(matches), matches)
	}
}
