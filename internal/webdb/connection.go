/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package webdb

import (
	"sync"

	"webdb/internal/bufferedfs"
	"webdb/internal/engine"
)

// Connection is one engine session (C10): query execution, the
// prepared statement table, and the single in-flight streamed result
// spec.md §4.9 allows per connection.
type Connection struct {
	db     *DB
	engine *engine.Engine
	fs     *bufferedfs.FS

	mu         sync.Mutex
	stream     *streamEncoder
	prepared   map[uint64]string
	nextStmtID uint64
	arrowState *arrowIngestState
}

func newConnection(db *DB, eng *engine.Engine, fs *bufferedfs.FS) *Connection {
	return &Connection{
		db:       db,
		engine:   eng,
		fs:       fs,
		prepared: make(map[uint64]string),
	}
}

// RunQuery executes sqlText to completion and materializes the result
// end-to-end into a single Arrow IPC buffer (schema, every record
// batch, EOS), per spec.md §4.9.
func (c *Connection) RunQuery(sqlText string, args []any) ([]byte, error) {
	res, err := c.engine.Query(sqlText, args)
	if err != nil {
		return nil, err
	}
	return EncodeFull(res, c.db.emitBigint())
}

// SendQuery executes sqlText, keeps the result as this connection's one
// in-flight stream (discarding any previous stream), and returns only
// its schema's IPC bytes. Subsequent FetchQueryResults calls drain it
// one record batch at a time.
func (c *Connection) SendQuery(sqlText string, args []any) ([]byte, error) {
	res, err := c.engine.Query(sqlText, args)
	if err != nil {
		return nil, err
	}
	enc := newStreamEncoder(res, c.db.emitBigint())
	schemaBytes, err := enc.SchemaBytes()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.stream = enc
	c.mu.Unlock()
	return schemaBytes, nil
}

// FetchQueryResults returns the next record batch's IPC bytes for this
// connection's in-flight stream. ok is false once the stream is
// exhausted (or none is in flight), clearing current_query_result so
// the next call is a cheap no-op.
func (c *Connection) FetchQueryResults() (batch []byte, ok bool, err error) {
	c.mu.Lock()
	enc := c.stream
	c.mu.Unlock()
	if enc == nil {
		return nil, false, nil
	}

	batch, ok, err = enc.Next()
	if err != nil || !ok {
		c.mu.Lock()
		c.stream = nil
		c.mu.Unlock()
		return nil, false, err
	}
	return batch, true, nil
}

// Close discards this connection's in-flight stream and any partial
// Arrow IPC ingest.
func (c *Connection) Close() error {
	c.mu.Lock()
	c.stream = nil
	c.arrowState = nil
	c.mu.Unlock()
	return nil
}
