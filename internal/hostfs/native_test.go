/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package hostfs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNativeOpenWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	rt := NewNative(dir)
	ls := NewLocalState()

	res, err := rt.Open(ls, 1, filepath.Join(dir, "t.dat"), true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if res.FileSize != 0 {
		t.Fatalf("expected fresh file size 0, got %d", res.FileSize)
	}

	n, err := rt.Write(ls, 1, []byte("hello"), 0)
	if err != nil || n != 5 {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}

	buf := make([]byte, 5)
	n, err = rt.Read(ls, 1, buf, 0)
	if err != nil || n != 5 || string(buf) != "hello" {
		t.Fatalf("Read: n=%d err=%v buf=%q", n, err, buf)
	}

	if err := rt.Close(ls, 1); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNativeGlobMatchesHostFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.csv", "b.csv", "c.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	rt := NewNative(dir)
	ls := NewLocalState()

	matches, err := rt.Glob(ls, filepath.Join(dir, "*.csv"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d: %v", len(matches), matches)
	}
	if len(ls.TakeGlobResults()) != 2 {
		t.Errorf("expected glob results pushed to LocalState")
	}
}
