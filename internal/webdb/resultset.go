/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package webdb

import (
	"bytes"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"webdb/internal/engine"
	"webdb/internal/ferrors"
)

// defaultBatchRows bounds how many rows SendQuery/FetchQueryResults
// materializes into a single Arrow record batch at a time.
const defaultBatchRows = 2048

var allocator = memory.NewGoAllocator()

// arrowTypeFor maps one engine column to its wire Arrow type. When
// emitBigint is false, a BIGINT column is patched to DOUBLE per
// spec.md §4.9's schema-patching rule.
func arrowTypeFor(col engine.Column, emitBigint bool) arrow.DataType {
	switch col.Type {
	case engine.TypeInt64:
		if !emitBigint {
			return arrow.PrimitiveTypes.Float64
		}
		return arrow.PrimitiveTypes.Int64
	case engine.TypeFloat64:
		return arrow.PrimitiveTypes.Float64
	case engine.TypeBool:
		return arrow.FixedWidthTypes.Boolean
	default:
		// TypeString and TypeNull (the engine never actually emits a
		// NULL-typed column; this default only exists to keep the
		// mapping total).
		return arrow.BinaryTypes.String
	}
}

// patchedSchema builds the Arrow schema for res.Schema, applying the
// emit_bigint rewrite.
func patchedSchema(schema engine.Schema, emitBigint bool) *arrow.Schema {
	fields := make([]arrow.Field, len(schema))
	for i, col := range schema {
		fields[i] = arrow.Field{Name: col.Name, Type: arrowTypeFor(col, emitBigint), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// buildRecord materializes rows[start:end) as one Arrow record batch
// matching the patched schema, rewriting int64 values to float64 in
// place when emitBigint is false (values outside the lossless double
// range are still emitted — the truncation is the documented contract).
func buildRecord(schema engine.Schema, rows [][]any, start, end int, emitBigint bool) (arrow.Record, error) {
	as := patchedSchema(schema, emitBigint)
	builders := make([]array.Builder, len(schema))
	for i, col := range schema {
		builders[i] = array.NewBuilder(allocator, arrowTypeFor(col, emitBigint))
	}
	defer func() {
		for _, b := range builders {
			b.Release()
		}
	}()

	for r := start; r < end; r++ {
		row := rows[r]
		for c, col := range schema {
			v := row[c]
			if v == nil {
				builders[c].AppendNull()
				continue
			}
			if err := appendValue(builders[c], col, v, emitBigint); err != nil {
				return nil, err
			}
		}
	}

	cols := make([]arrow.Array, len(builders))
	for i, b := range builders {
		cols[i] = b.NewArray()
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	return array.NewRecord(as, cols, int64(end-start)), nil
}

func appendValue(b array.Builder, col engine.Column, v any, emitBigint bool) error {
	switch col.Type {
	case engine.TypeInt64:
		i, ok := v.(int64)
		if !ok {
			return ferrors.ExecutionError(nil, "column %q: expected int64, got %T", col.Name, v)
		}
		if emitBigint {
			b.(*array.Int64Builder).Append(i)
		} else {
			b.(*array.Float64Builder).Append(float64(i))
		}
	case engine.TypeFloat64:
		f, ok := v.(float64)
		if !ok {
			return ferrors.ExecutionError(nil, "column %q: expected float64, got %T", col.Name, v)
		}
		b.(*array.Float64Builder).Append(f)
	case engine.TypeBool:
		bv, ok := v.(bool)
		if !ok {
			return ferrors.ExecutionError(nil, "column %q: expected bool, got %T", col.Name, v)
		}
		b.(*array.BooleanBuilder).Append(bv)
	default:
		s, ok := v.(string)
		if !ok {
			return ferrors.ExecutionError(nil, "column %q: expected string, got %T", col.Name, v)
		}
		b.(*array.StringBuilder).Append(s)
	}
	return nil
}

// EncodeFull renders res as a complete Arrow IPC stream (schema message,
// every row in one or more record batches, EOS marker) — RunQuery's
// "materialize end-to-end into a columnar file buffer" contract.
func EncodeFull(res *engine.Result, emitBigint bool) ([]byte, error) {
	var buf bytes.Buffer
	as := patchedSchema(res.Schema, emitBigint)
	w, err := ipc.NewWriter(&buf, ipc.WithSchema(as), ipc.WithAllocator(allocator))
	if err != nil {
		return nil, ferrors.ExecutionError(err, "creating IPC writer")
	}

	total := len(res.Rows)
	batches := 1
	if total > 0 {
		batches = (total + defaultBatchRows - 1) / defaultBatchRows
	}
	for i := 0; i < batches; i++ {
		start := i * defaultBatchRows
		end := start + defaultBatchRows
		if end > total {
			end = total
		}
		rec, err := buildRecord(res.Schema, res.Rows, start, end, emitBigint)
		if err != nil {
			w.Close()
			return nil, err
		}
		err = w.Write(rec)
		rec.Release()
		if err != nil {
			w.Close()
			return nil, ferrors.ExecutionError(err, "writing record batch")
		}
	}
	if err := w.Close(); err != nil {
		return nil, ferrors.ExecutionError(err, "closing IPC writer")
	}
	return buf.Bytes(), nil
}

// streamEncoder implements SendQuery/FetchQueryResults' two-phase
// protocol: SchemaBytes is handed back once, then Next is called
// repeatedly until it reports no more data.
type streamEncoder struct {
	schema    *arrow.Schema
	rows      [][]any
	cols      engine.Schema
	cursor    int
	batchRows int
	emitBig   bool
}

func newStreamEncoder(res *engine.Result, emitBigint bool) *streamEncoder {
	return &streamEncoder{
		schema:    patchedSchema(res.Schema, emitBigint),
		rows:      res.Rows,
		cols:      res.Schema,
		batchRows: defaultBatchRows,
		emitBig:   emitBigint,
	}
}

// SchemaBytes renders just the schema message, matching SendQuery's
// "serialize only the schema" contract.
func (s *streamEncoder) SchemaBytes() ([]byte, error) {
	var buf bytes.Buffer
	w, err := ipc.NewWriter(&buf, ipc.WithSchema(s.schema), ipc.WithAllocator(allocator))
	if err != nil {
		return nil, ferrors.ExecutionError(err, "creating IPC schema writer")
	}
	if err := w.Close(); err != nil {
		return nil, ferrors.ExecutionError(err, "closing IPC schema writer")
	}
	return buf.Bytes(), nil
}

// Next returns the next record batch's IPC bytes, or (nil, false, nil)
// once every row has been delivered.
func (s *streamEncoder) Next() ([]byte, bool, error) {
	if s.cursor >= len(s.rows) {
		return nil, false, nil
	}
	end := s.cursor + s.batchRows
	if end > len(s.rows) {
		end = len(s.rows)
	}
	rec, err := buildRecord(s.cols, s.rows, s.cursor, end, s.emitBig)
	if err != nil {
		return nil, false, err
	}
	defer rec.Release()

	var buf bytes.Buffer
	w, err := ipc.NewWriter(&buf, ipc.WithSchema(s.schema), ipc.WithAllocator(allocator))
	if err != nil {
		return nil, false, ferrors.ExecutionError(err, "creating IPC batch writer")
	}
	if err := w.Write(rec); err != nil {
		w.Close()
		return nil, false, ferrors.ExecutionError(err, "writing record batch")
	}
	if err := w.Close(); err != nil {
		return nil, false, ferrors.ExecutionError(err, "closing IPC batch writer")
	}
	s.cursor = end
	return buf.Bytes(), true, nil
}
