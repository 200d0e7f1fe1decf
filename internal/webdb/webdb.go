/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

/*
Package webdb is the WebDB Facade (C9) and Connection (C10): the
engine-owning lifecycle object that spec.md §4.10 describes, and the
per-session query surface spec.md §4.9 describes on top of it.
*/
package webdb

import (
	"bytes"
	"path/filepath"
	"sync"

	"webdb/internal/bufferedfs"
	"webdb/internal/engine"
	"webdb/internal/ferrors"
	"webdb/internal/filestats"
	"webdb/internal/hostfs"
	"webdb/internal/logging"
	"webdb/internal/metrics"
	"webdb/internal/pagebuffer"
	"webdb/internal/vfs"
)

var log = logging.NewLogger("webdb")

// DB is the WebDB Facade (C9): one engine instance, one file registry,
// one buffered filesystem, and the set of connections opened against
// them, behind a short-critical-section mutex (spec.md §5 lock #1).
type DB struct {
	mu sync.Mutex

	cfg           Config
	host          hostfs.Runtime
	statsRegistry *filestats.Registry
	registry      *vfs.Registry
	pool          *pagebuffer.Pool
	fs            *bufferedfs.FS
	engine        *engine.Engine

	connections    map[uint64]*Connection
	nextConnID     uint64
	pinnedWebFiles map[string]*vfs.WebFileHandle
}

// Open decodes configJSON and constructs a DB from scratch, per
// spec.md §4.10: a fresh Buffered Filesystem, the Parquet extension
// "loaded", and an empty connection set.
func Open(configJSON []byte) (*DB, error) {
	cfg, err := ParseConfig(configJSON)
	if err != nil {
		return nil, err
	}
	db := &DB{}
	if err := db.reopen(cfg); err != nil {
		return nil, err
	}
	return db, nil
}

// Reset re-invokes Open with the database's stored configuration,
// matching spec.md §4.10's Reset.
func (db *DB) Reset() error {
	db.mu.Lock()
	cfg := db.cfg
	db.mu.Unlock()
	return db.reopen(cfg)
}

func (db *DB) reopen(cfg Config) error {
	root := "."
	if !cfg.IsInMemory() {
		if d := filepath.Dir(cfg.Path); d != "" {
			root = d
		}
	}

	host := hostfs.NewNative(root)
	statsRegistry := filestats.NewRegistry(pagebuffer.DefaultPageSize)
	registry := vfs.NewRegistry(host, statsRegistry)
	registry.SetMetrics(metrics.NewVFSMetrics())
	pool := pagebuffer.NewPool(registry, pagebuffer.DefaultPageSize, pagebuffer.DefaultPoolBytes)
	pool.SetMetrics(metrics.NewPageBufferMetrics())
	fs := bufferedfs.New(registry, pool)

	eng := engine.NewEngine()
	if err := eng.LoadExtension("parquet"); err != nil {
		return ferrors.ExecutionError(err, "constructing engine")
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	db.cfg = cfg
	db.host = host
	db.statsRegistry = statsRegistry
	db.registry = registry
	db.pool = pool
	db.fs = fs
	db.engine = eng
	db.connections = make(map[uint64]*Connection)
	db.pinnedWebFiles = make(map[string]*vfs.WebFileHandle)
	log.Info("engine (re)opened", "path", cfg.Path, "inMemory", cfg.IsInMemory())
	return nil
}

func (db *DB) emitBigint() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.cfg.EmitBigint
}

// RegisterFileURL routes to the file registry and pins the resulting
// handle so the file survives with no active engine handle, per
// spec.md §4.10.
func (db *DB) RegisterFileURL(name, url string, size int64) (vfs.FileInfo, error) {
	db.mu.Lock()
	registry := db.registry
	old, hadOld := db.pinnedWebFiles[name]
	db.mu.Unlock()

	h, err := registry.RegisterURL(name, url, size)
	if err != nil {
		return vfs.FileInfo{}, err
	}

	db.mu.Lock()
	db.pinnedWebFiles[name] = h
	db.mu.Unlock()
	if hadOld {
		old.Close()
	}

	info, _ := registry.FileInfoByName(name)
	return info, nil
}

// RegisterFileBuffer routes to the file registry and pins the
// resulting handle. Re-registering a name first drops its buffered-FS
// entry; if that fails because a page is still pinned, the call fails
// with Invalid rather than silently replacing a file mid-query, per
// spec.md §4.10's "File is already registered and is still buffered".
func (db *DB) RegisterFileBuffer(name string, data []byte) (vfs.FileInfo, error) {
	db.mu.Lock()
	registry, fs := db.registry, db.fs
	old, hadOld := db.pinnedWebFiles[name]
	db.mu.Unlock()

	if hadOld {
		if !fs.TryDropFile(old.FileID()) {
			return vfs.FileInfo{}, ferrors.Invalid("File is already registered and is still buffered")
		}
	}

	h, err := registry.RegisterBuffer(name, data)
	if err != nil {
		return vfs.FileInfo{}, err
	}

	db.mu.Lock()
	db.pinnedWebFiles[name] = h
	db.mu.Unlock()
	if hadOld {
		old.Close()
	}

	info, _ := registry.FileInfoByName(name)
	return info, nil
}

// GetFileInfo looks up one registered file's info by name.
func (db *DB) GetFileInfo(name string) (vfs.FileInfo, bool) {
	db.mu.Lock()
	registry := db.registry
	db.mu.Unlock()
	return registry.FileInfoByName(name)
}

// GlobFileInfos matches pattern against registered and host file names
// and returns each match's info.
func (db *DB) GlobFileInfos(pattern string) ([]vfs.FileInfo, error) {
	db.mu.Lock()
	registry := db.registry
	db.mu.Unlock()

	names, err := registry.Glob(pattern)
	if err != nil {
		return nil, err
	}
	infos := make([]vfs.FileInfo, 0, len(names))
	for _, name := range names {
		if info, ok := registry.FileInfoByName(name); ok {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// EnableStatistics enables or disables the statistics collector for
// path.
func (db *DB) EnableStatistics(path string, enable bool) {
	db.mu.Lock()
	registry := db.registry
	db.mu.Unlock()
	registry.EnableStats(path, enable)
}

// ExportStatistics renders path's collector in spec.md §4.6's binary
// format, or Invalid if no collector is enabled for it.
func (db *DB) ExportStatistics(path string) ([]byte, error) {
	db.mu.Lock()
	statsRegistry := db.statsRegistry
	db.mu.Unlock()

	c, ok := statsRegistry.Lookup(path)
	if !ok {
		return nil, ferrors.Invalid("no statistics collector enabled for %q", path)
	}
	var buf bytes.Buffer
	if err := c.Export(&buf); err != nil {
		return nil, ferrors.IoError(err, "exporting statistics for %q", path)
	}
	return buf.Bytes(), nil
}

// PoolStats returns a snapshot of the shared page buffer's cumulative
// counters, refreshing its Prometheus gauges as a side effect.
func (db *DB) PoolStats() pagebuffer.Stats {
	db.mu.Lock()
	pool := db.pool
	db.mu.Unlock()
	return pool.Stats()
}

// FlushFile writes back every dirty page cached for path.
func (db *DB) FlushFile(path string) error {
	db.mu.Lock()
	registry, pool := db.registry, db.pool
	db.mu.Unlock()
	info, ok := registry.FileInfoByName(path)
	if !ok {
		return ferrors.KeyErrorf("unknown file %q", path)
	}
	return pool.FlushFile(info.FileID)
}

// NewConnection opens a fresh Connection (C10) against this DB's
// current engine and filesystem.
func (db *DB) NewConnection() *Connection {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.nextConnID++
	conn := newConnection(db, db.engine, db.fs)
	db.connections[db.nextConnID] = conn
	return conn
}

// Close releases every pinned web file handle this DB holds.
func (db *DB) Close() {
	db.mu.Lock()
	pinned := db.pinnedWebFiles
	db.pinnedWebFiles = make(map[string]*vfs.WebFileHandle)
	db.connections = make(map[uint64]*Connection)
	db.mu.Unlock()

	for _, h := range pinned {
		h.Close()
	}
}
