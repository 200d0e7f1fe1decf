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

// Package metrics exposes Prometheus instrumentation for the page
// buffer and virtual filesystem layers. Collection is opt-in: until
// InitRegistry is called, NewPageBufferMetrics returns nil and every
// method on a nil *PageBufferMetrics is a no-op, so instrumented code
// never has to branch on whether metrics are enabled.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry creates the process-wide metrics registry. Safe to call
// more than once; later calls are no-ops once a registry exists.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// Registry returns the process-wide registry, or nil if metrics were
// never enabled.
func Registry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// PageBufferMetrics instruments internal/pagebuffer.Pool; the read and
// write paths in internal/vfs report through VFSMetrics instead.
type PageBufferMetrics struct {
	reads      *prometheus.CounterVec
	writes     prometheus.Counter
	evictions  prometheus.Counter
	bypasses   prometheus.Counter
	pinned     prometheus.Gauge
	dirty      prometheus.Gauge
	hitRatio   prometheus.Gauge
}

// NewPageBufferMetrics registers the page-buffer metric family against
// the process-wide registry. Returns nil if metrics are not enabled.
func NewPageBufferMetrics() *PageBufferMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := Registry()
	return &PageBufferMetrics{
		reads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "webdb_pagebuffer_reads_total",
				Help: "Page reads served by the page buffer, by outcome.",
			},
			[]string{"outcome"}, // "hit", "miss"
		),
		writes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "webdb_pagebuffer_writes_total",
			Help: "Pages unpinned dirty, pending write-back.",
		}),
		evictions: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "webdb_pagebuffer_evictions_total",
			Help: "Frames reclaimed from the LRU list to satisfy a miss.",
		}),
		bypasses: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "webdb_pagebuffer_bypasses_total",
			Help: "Page accesses served without a frame because none was free to evict.",
		}),
		pinned: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "webdb_pagebuffer_pinned_frames",
			Help: "Frames currently pinned (ineligible for eviction).",
		}),
		dirty: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "webdb_pagebuffer_dirty_frames",
			Help: "Frames currently holding unwritten modifications.",
		}),
		hitRatio: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "webdb_pagebuffer_hit_ratio",
			Help: "Cumulative hits / (hits + misses).",
		}),
	}
}

func (m *PageBufferMetrics) RecordHit() {
	if m == nil {
		return
	}
	m.reads.WithLabelValues("hit").Inc()
}

func (m *PageBufferMetrics) RecordMiss() {
	if m == nil {
		return
	}
	m.reads.WithLabelValues("miss").Inc()
}

func (m *PageBufferMetrics) RecordWrite() {
	if m == nil {
		return
	}
	m.writes.Inc()
}

func (m *PageBufferMetrics) RecordEviction() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}

func (m *PageBufferMetrics) RecordBypass() {
	if m == nil {
		return
	}
	m.bypasses.Inc()
}

// SetGauges overwrites the point-in-time gauges from a pagebuffer.Stats
// snapshot. Called from pagebuffer.Pool.Stats (e.g. via the shell's
// `\pool` command) rather
// than on every page access, since these values are cheap to recompute
// but not worth the atomic overhead of updating on every hit/miss.
func (m *PageBufferMetrics) SetGauges(pinnedFrames, dirtyFrames int, hits, misses uint64) {
	if m == nil {
		return
	}
	m.pinned.Set(float64(pinnedFrames))
	m.dirty.Set(float64(dirtyFrames))
	total := hits + misses
	if total > 0 {
		m.hitRatio.Set(float64(hits) / float64(total))
	}
}

// VFSMetrics instruments file open/close/registration traffic in
// internal/vfs.
type VFSMetrics struct {
	opens       *prometheus.CounterVec
	closes      prometheus.Counter
	registered  prometheus.Gauge
	protocolIO  *prometheus.CounterVec
}

// NewVFSMetrics registers the file-registry metric family. Returns nil
// if metrics are not enabled.
func NewVFSMetrics() *VFSMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := Registry()
	return &VFSMetrics{
		opens: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "webdb_vfs_opens_total",
				Help: "File handles opened, by data protocol.",
			},
			[]string{"protocol"},
		),
		closes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "webdb_vfs_closes_total",
			Help: "File handles closed.",
		}),
		registered: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "webdb_vfs_registered_files",
			Help: "Files currently registered in the file registry.",
		}),
		protocolIO: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "webdb_vfs_bytes_total",
				Help: "Bytes transferred, by data protocol and direction.",
			},
			[]string{"protocol", "direction"}, // direction: "read", "write"
		),
	}
}

func (m *VFSMetrics) RecordOpen(protocol string) {
	if m == nil {
		return
	}
	m.opens.WithLabelValues(protocol).Inc()
}

func (m *VFSMetrics) RecordClose() {
	if m == nil {
		return
	}
	m.closes.Inc()
}

func (m *VFSMetrics) SetRegisteredFiles(n int) {
	if m == nil {
		return
	}
	m.registered.Set(float64(n))
}

func (m *VFSMetrics) RecordIO(protocol, direction string, bytes int) {
	if m == nil || bytes <= 0 {
		return
	}
	m.protocolIO.WithLabelValues(protocol, direction).Add(float64(bytes))
}
