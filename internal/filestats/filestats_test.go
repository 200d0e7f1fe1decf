/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package filestats

import (
	"bytes"
	"testing"
)

func TestResizePreservesExistingCounts(t *testing.T) {
	c := NewCollector(16*1024, 3*16*1024)
	c.RecordReadCold(0)
	c.RecordReadCached(1)
	c.RecordWrite(2)

	c.Resize(5 * 16 * 1024)
	snap := c.Snapshot()
	if len(snap) != 5 {
		t.Fatalf("expected 5 pages, got %d", len(snap))
	}
	if snap[0].ReadsCold != 1 || snap[1].ReadsCached != 1 || snap[2].Writes != 1 {
		t.Errorf("existing counts not preserved: %+v", snap[:3])
	}
	if snap[3] != (PageCounters{}) || snap[4] != (PageCounters{}) {
		t.Errorf("expected new pages to be zeroed, got %+v %+v", snap[3], snap[4])
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	c := NewCollector(4096, 3*4096)
	c.RecordReadCold(0)
	c.RecordReadCold(0)
	c.RecordReadCached(1)
	c.RecordWrite(2)

	var buf bytes.Buffer
	if err := c.Export(&buf); err != nil {
		t.Fatalf("Export: %v", err)
	}

	got, err := Import(&buf)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	gotSnap, wantSnap := got.Snapshot(), c.Snapshot()
	if len(gotSnap) != len(wantSnap) {
		t.Fatalf("page count mismatch: got %d want %d", len(gotSnap), len(wantSnap))
	}
	for i := range wantSnap {
		if gotSnap[i] != wantSnap[i] {
			t.Errorf("page %d: got %+v want %+v", i, gotSnap[i], wantSnap[i])
		}
	}
}

func TestRegistryEnableIsIdempotent(t *testing.T) {
	r := NewRegistry(4096)
	c1 := r.Enable("t.csv", true, 4096)
	c2 := r.Enable("t.csv", true, 4096)
	if c1 != c2 {
		t.Error("expected Enable to return the same collector on repeat calls")
	}
	if r.Enable("t.csv", false, 0) != nil {
		t.Error("expected disabling to return nil")
	}
	if _, ok := r.Lookup("t.csv"); ok {
		t.Error("expected collector to be gone after disabling")
	}
}
