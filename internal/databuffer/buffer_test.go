/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package databuffer

import "testing"

func TestResizeGrowsExponentially(t *testing.T) {
	b := New()
	b.Resize(10)
	if b.Size() != 10 {
		t.Fatalf("Size() = %d, want 10", b.Size())
	}
	capAfterFirstGrow := b.Cap()

	b.Resize(11)
	if want := capAfterFirstGrow*2 + capAfterFirstGrow/4; b.Cap() != want {
		t.Errorf("expected growth to 2.25x the previous capacity (%d), cap = %d", want, b.Cap())
	}
}

func TestResizeShrinksBelowHalf(t *testing.T) {
	b := New()
	b.Resize(1000)
	bigCap := b.Cap()

	b.Resize(10) // well below bigCap/2
	if b.Cap() >= bigCap {
		t.Errorf("expected shrink to reallocate, cap stayed at %d", b.Cap())
	}
}

func TestWriteAtReadAtRoundTrip(t *testing.T) {
	b := New()
	msg := []byte("hello")
	if n := b.WriteAt(msg, 0); n != len(msg) {
		t.Fatalf("WriteAt returned %d, want %d", n, len(msg))
	}
	got := make([]byte, len(msg))
	if n := b.ReadAt(got, 0); n != len(msg) {
		t.Fatalf("ReadAt returned %d, want %d", n, len(msg))
	}
	if string(got) != "hello" {
		t.Errorf("ReadAt = %q, want %q", got, "hello")
	}
}

func TestWriteAtExtendsSize(t *testing.T) {
	b := New()
	b.WriteAt([]byte("ab"), 3)
	if b.Size() != 5 {
		t.Fatalf("Size() = %d, want 5", b.Size())
	}
	if b.Bytes()[0] != 0 || b.Bytes()[2] != 0 {
		t.Errorf("expected zero-fill of the gap, got %v", b.Bytes())
	}
}

func TestReadAtPastEOFReturnsZero(t *testing.T) {
	b := New()
	b.Resize(4)
	got := make([]byte, 10)
	if n := b.ReadAt(got, 4); n != 0 {
		t.Errorf("ReadAt past end = %d, want 0", n)
	}
}

func TestTakeOwnershipResetsBuffer(t *testing.T) {
	b := New()
	b.WriteAt([]byte("data"), 0)
	out := b.TakeOwnership()
	if string(out) != "data" {
		t.Errorf("TakeOwnership = %q, want %q", out, "data")
	}
	if b.Size() != 0 {
		t.Errorf("expected buffer reset to size 0, got %d", b.Size())
	}
}
