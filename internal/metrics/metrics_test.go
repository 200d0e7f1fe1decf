/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package metrics

import "testing"

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *PageBufferMetrics
	m.RecordHit()
	m.RecordMiss()
	m.RecordWrite()
	m.RecordEviction()
	m.RecordBypass()
	m.SetGauges(0, 0, 0, 0)

	var v *VFSMetrics
	v.RecordOpen("NATIVE")
	v.RecordClose()
	v.SetRegisteredFiles(0)
	v.RecordIO("NATIVE", "read", 10)
}

func TestDisabledRegistryReturnsNil(t *testing.T) {
	mu.Lock()
	registry = nil
	mu.Unlock()

	if IsEnabled() {
		t.Fatal("expected metrics disabled before InitRegistry")
	}
	if NewPageBufferMetrics() != nil {
		t.Error("expected nil PageBufferMetrics before InitRegistry")
	}
	if NewVFSMetrics() != nil {
		t.Error("expected nil VFSMetrics before InitRegistry")
	}
}

func TestInitRegistryEnablesCollectors(t *testing.T) {
	mu.Lock()
	registry = nil
	mu.Unlock()

	InitRegistry()
	if !IsEnabled() {
		t.Fatal("expected metrics enabled after InitRegistry")
	}

	pm := NewPageBufferMetrics()
	if pm == nil {
		t.Fatal("expected non-nil PageBufferMetrics once enabled")
	}
	pm.RecordHit()
	pm.RecordMiss()
	pm.SetGauges(3, 1, 9, 1)

	vm := NewVFSMetrics()
	if vm == nil {
		t.Fatal("expected non-nil VFSMetrics once enabled")
	}
	vm.RecordOpen("HTTP")
	vm.RecordIO("HTTP", "read", 128)
}
