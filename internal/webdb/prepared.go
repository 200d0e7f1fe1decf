/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package webdb

import (
	"encoding/json"

	"webdb/internal/ferrors"
)

// CreatePrepared registers sqlText as a prepared statement and returns
// its id. Ids come from a counter that wraps modulo 2⁶⁴−1, skipping the
// sentinel 0, per spec.md §3/§4.9.
func (c *Connection) CreatePrepared(sqlText string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextStmtID++
	if c.nextStmtID == 0 {
		c.nextStmtID = 1
	}
	id := c.nextStmtID
	c.prepared[id] = sqlText
	return id
}

// RunPrepared decodes argsJSON and runs prepared statement id to
// completion, returning a full Arrow IPC buffer.
func (c *Connection) RunPrepared(id uint64, argsJSON []byte) ([]byte, error) {
	sqlText, args, err := c.resolvePrepared(id, argsJSON)
	if err != nil {
		return nil, err
	}
	return c.RunQuery(sqlText, args)
}

// SendPrepared decodes argsJSON and starts streaming prepared statement
// id, returning its schema buffer.
func (c *Connection) SendPrepared(id uint64, argsJSON []byte) ([]byte, error) {
	sqlText, args, err := c.resolvePrepared(id, argsJSON)
	if err != nil {
		return nil, err
	}
	return c.SendQuery(sqlText, args)
}

// ClosePrepared retires prepared statement id; a later Run/Send against
// it fails with KeyError.
func (c *Connection) ClosePrepared(id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.prepared[id]; !ok {
		return ferrors.KeyErrorf("unknown prepared statement %d", id)
	}
	delete(c.prepared, id)
	return nil
}

func (c *Connection) resolvePrepared(id uint64, argsJSON []byte) (string, []any, error) {
	c.mu.Lock()
	sqlText, ok := c.prepared[id]
	c.mu.Unlock()
	if !ok {
		return "", nil, ferrors.KeyErrorf("unknown prepared statement %d", id)
	}
	args, err := decodeScalarArgs(argsJSON)
	if err != nil {
		return "", nil, err
	}
	return sqlText, args, nil
}

// decodeScalarArgs parses a JSON array of scalars (number, string,
// boolean, or null) per spec.md §4.9; anything else is rejected by
// position rather than silently coerced.
func decodeScalarArgs(argsJSON []byte) ([]any, error) {
	if len(argsJSON) == 0 {
		return nil, nil
	}
	var raw []any
	if err := json.Unmarshal(argsJSON, &raw); err != nil {
		return nil, ferrors.Invalid("parsing argument JSON: %v", err)
	}

	args := make([]any, len(raw))
	for i, v := range raw {
		switch v.(type) {
		case float64, string, bool, nil:
			args[i] = v
		default:
			return nil, ferrors.Invalid("invalid column type for argument %d", i)
		}
	}
	return args, nil
}
