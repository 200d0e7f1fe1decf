/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package webdb

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"

	"webdb/internal/engine"
	"webdb/internal/ferrors"
)

// CSVOptions is spec.md §4.9's CSV insert option struct.
type CSVOptions struct {
	SchemaName      string            `json:"schema_name"`
	TableName       string            `json:"table_name"`
	Header          bool              `json:"header"`
	Delimiter       string            `json:"delimiter"`
	Escape          string            `json:"escape"`
	Quote           string            `json:"quote"`
	Skip            int               `json:"skip"`
	DateFormat      string            `json:"dateformat"`
	TimestampFormat string            `json:"timestampformat"`
	Columns         map[string]string `json:"columns"`
	AutoDetect      *bool             `json:"auto_detect"`
}

func parseCSVOptions(optionsJSON []byte) (CSVOptions, error) {
	opts := CSVOptions{Header: true}
	if len(optionsJSON) > 0 {
		if err := json.Unmarshal(optionsJSON, &opts); err != nil {
			return CSVOptions{}, ferrors.Invalid("parsing CSV options: %v", err)
		}
	}
	if opts.TableName == "" {
		return CSVOptions{}, ferrors.Invalid("missing 'name' option")
	}
	return opts, nil
}

// InsertCSVFromPath reads a registered file's full contents through the
// buffered filesystem adapter (C8) and ingests them as CSV, the path
// spec.md §8's BUFFER-CSV-ingest scenario drives.
func (c *Connection) InsertCSVFromPath(path string, optionsJSON []byte) error {
	data, err := c.readWholeFile(path)
	if err != nil {
		return err
	}
	return c.InsertCSVFromBuffer(data, optionsJSON)
}

func (c *Connection) readWholeFile(path string) ([]byte, error) {
	f, err := c.fs.Open(path, path, false)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, f.FileSize())
	if len(buf) > 0 {
		if _, err := f.ReadAt(buf, 0); err != nil && err != io.EOF {
			return nil, err
		}
	}
	return buf, nil
}

// InsertCSVFromBuffer implements spec.md §4.9's synchronous CSV insert:
// parse data and hand the resulting rows to the engine as opts.TableName.
func (c *Connection) InsertCSVFromBuffer(data []byte, optionsJSON []byte) error {
	opts, err := parseCSVOptions(optionsJSON)
	if err != nil {
		return err
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	if opts.Delimiter != "" {
		r.Comma = []rune(opts.Delimiter)[0]
	}

	for i := 0; i < opts.Skip; i++ {
		if _, err := r.Read(); err != nil && err != io.EOF {
			return ferrors.Invalid("skipping CSV rows: %v", err)
		}
	}

	var header []string
	if opts.Header {
		row, err := r.Read()
		if err != nil {
			return ferrors.Invalid("reading CSV header: %v", err)
		}
		header = row
	}

	var raw [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ferrors.Invalid("parsing CSV: %v", err)
		}
		raw = append(raw, row)
	}
	if header == nil {
		width := 0
		if len(raw) > 0 {
			width = len(raw[0])
		}
		header = make([]string, width)
		for i := range header {
			header[i] = fmt.Sprintf("column%d", i)
		}
	}

	schema, rows := inferCSVTable(header, raw, opts.Columns)
	return c.engine.CreateOrInsertTable(opts.TableName, schema, rows, true)
}

func inferCSVTable(header []string, raw [][]string, overrides map[string]string) (engine.Schema, [][]any) {
	ncols := len(header)
	types := make([]engine.ColumnType, ncols)
	for i := range types {
		types[i] = engine.TypeNull
	}
	for _, row := range raw {
		for i := 0; i < ncols && i < len(row); i++ {
			types[i] = widenColumnType(types[i], inferScalarType(row[i]))
		}
	}

	schema := make(engine.Schema, ncols)
	for i, name := range header {
		t := types[i]
		if override, ok := overrides[name]; ok {
			t = columnTypeFromName(override)
		} else if t == engine.TypeNull {
			t = engine.TypeString
		}
		schema[i] = engine.Column{Name: name, Type: t}
	}

	rows := make([][]any, len(raw))
	for r, row := range raw {
		vals := make([]any, ncols)
		for i := 0; i < ncols; i++ {
			var cell string
			if i < len(row) {
				cell = row[i]
			}
			vals[i] = convertScalar(cell, schema[i].Type)
		}
		rows[r] = vals
	}
	return schema, rows
}

// inferScalarType guesses the narrowest engine.ColumnType a raw CSV
// cell fits: an integer literal first, then a float literal, else
// string. An empty cell carries no type information of its own.
func inferScalarType(cell string) engine.ColumnType {
	if cell == "" {
		return engine.TypeNull
	}
	if _, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return engine.TypeInt64
	}
	if _, err := strconv.ParseFloat(cell, 64); err == nil {
		return engine.TypeFloat64
	}
	return engine.TypeString
}

// widenColumnType merges two column-type observations into the
// narrowest type that fits both (int64 widens to float64 widens to
// string; a null observation never overrides one that carries type
// information).
func widenColumnType(a, b engine.ColumnType) engine.ColumnType {
	if b == engine.TypeNull {
		return a
	}
	if a == engine.TypeNull {
		return b
	}
	if a == b {
		return a
	}
	if (a == engine.TypeInt64 && b == engine.TypeFloat64) || (a == engine.TypeFloat64 && b == engine.TypeInt64) {
		return engine.TypeFloat64
	}
	return engine.TypeString
}

func columnTypeFromName(name string) engine.ColumnType {
	switch name {
	case "BIGINT", "INTEGER", "INT":
		return engine.TypeInt64
	case "DOUBLE", "FLOAT", "REAL":
		return engine.TypeFloat64
	case "BOOLEAN", "BOOL":
		return engine.TypeBool
	default:
		return engine.TypeString
	}
}

func convertScalar(cell string, t engine.ColumnType) any {
	if cell == "" {
		return nil
	}
	switch t {
	case engine.TypeInt64:
		v, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return cell
		}
		return v
	case engine.TypeFloat64:
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return cell
		}
		return v
	case engine.TypeBool:
		v, err := strconv.ParseBool(cell)
		if err != nil {
			return cell
		}
		return v
	default:
		return cell
	}
}

// JSONOptions is spec.md §4.9's JSON insert option struct.
type JSONOptions struct {
	SchemaName string            `json:"schema_name"`
	TableName  string            `json:"table_name"`
	TableShape string            `json:"table_shape"` // "row-array", "column-object", "unrecognized"
	AutoDetect *bool             `json:"auto_detect"`
	Columns    map[string]string `json:"columns"`
}

func parseJSONOptions(optionsJSON []byte) (JSONOptions, error) {
	var opts JSONOptions
	if len(optionsJSON) > 0 {
		if err := json.Unmarshal(optionsJSON, &opts); err != nil {
			return JSONOptions{}, ferrors.Invalid("parsing JSON options: %v", err)
		}
	}
	if opts.TableName == "" {
		return JSONOptions{}, ferrors.Invalid("missing 'name' option")
	}
	return opts, nil
}

// InsertJSONFromBuffer implements spec.md §4.9's JSON insert. When the
// shape is unset or "unrecognized" it runs an inference pass over data
// before the real decode, trying row-array then column-object.
func (c *Connection) InsertJSONFromBuffer(data []byte, optionsJSON []byte) error {
	opts, err := parseJSONOptions(optionsJSON)
	if err != nil {
		return err
	}

	shape := opts.TableShape
	if shape == "" || shape == "unrecognized" {
		shape = detectJSONShape(data)
	}

	var records []map[string]any
	switch shape {
	case "row-array":
		if err := json.Unmarshal(data, &records); err != nil {
			return ferrors.Invalid("parsing JSON row array: %v", err)
		}
	case "column-object":
		var cols map[string][]any
		if err := json.Unmarshal(data, &cols); err != nil {
			return ferrors.Invalid("parsing JSON column object: %v", err)
		}
		records = rowsFromColumns(cols)
	default:
		return ferrors.Invalid("unrecognized JSON table shape")
	}

	schema, rows := inferJSONTable(records, opts.Columns)
	return c.engine.CreateOrInsertTable(opts.TableName, schema, rows, true)
}

// detectJSONShape tries row-array then column-object against a copy of
// data, matching spec.md §4.9's "inference pass over a copy of the
// stream before the real read".
func detectJSONShape(data []byte) string {
	probe := append([]byte(nil), data...)
	var rows []map[string]any
	if err := json.Unmarshal(probe, &rows); err == nil {
		return "row-array"
	}
	var cols map[string][]any
	if err := json.Unmarshal(probe, &cols); err == nil {
		return "column-object"
	}
	return "unrecognized"
}

func rowsFromColumns(cols map[string][]any) []map[string]any {
	n := 0
	for _, vals := range cols {
		if len(vals) > n {
			n = len(vals)
		}
	}
	records := make([]map[string]any, n)
	for i := range records {
		records[i] = make(map[string]any, len(cols))
		for name, vals := range cols {
			if i < len(vals) {
				records[i][name] = vals[i]
			}
		}
	}
	return records
}

// inferJSONTable builds a schema from the union of every record's keys
// (sorted for determinism — JSON objects carry no ordering contract of
// their own) and converts each record's values against it.
func inferJSONTable(records []map[string]any, overrides map[string]string) (engine.Schema, [][]any) {
	seen := make(map[string]bool)
	var names []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)

	types := make([]engine.ColumnType, len(names))
	for i := range types {
		types[i] = engine.TypeNull
	}
	for _, rec := range records {
		for i, name := range names {
			types[i] = widenColumnType(types[i], jsonScalarType(rec[name]))
		}
	}

	schema := make(engine.Schema, len(names))
	for i, name := range names {
		t := types[i]
		if override, ok := overrides[name]; ok {
			t = columnTypeFromName(override)
		} else if t == engine.TypeNull {
			t = engine.TypeString
		}
		schema[i] = engine.Column{Name: name, Type: t}
	}

	rows := make([][]any, len(records))
	for r, rec := range records {
		vals := make([]any, len(names))
		for i, name := range names {
			vals[i] = convertJSONScalar(rec[name], schema[i].Type)
		}
		rows[r] = vals
	}
	return schema, rows
}

func jsonScalarType(v any) engine.ColumnType {
	switch t := v.(type) {
	case nil:
		return engine.TypeNull
	case bool:
		return engine.TypeBool
	case float64:
		if t == float64(int64(t)) {
			return engine.TypeInt64
		}
		return engine.TypeFloat64
	default:
		return engine.TypeString
	}
}

func convertJSONScalar(v any, t engine.ColumnType) any {
	if v == nil {
		return nil
	}
	switch t {
	case engine.TypeInt64:
		if f, ok := v.(float64); ok {
			return int64(f)
		}
	case engine.TypeFloat64:
		if f, ok := v.(float64); ok {
			return f
		}
	case engine.TypeBool:
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fmt.Sprintf("%v", v)
}

// ArrowIngestOptions is the options payload
// InsertArrowFromIPCStream's first call parses, per spec.md §4.9.
type ArrowIngestOptions struct {
	SchemaName string `json:"schema_name"`
	TableName  string `json:"table_name"`
	CreateNew  bool   `json:"create_new"`
}

type arrowIngestState struct {
	opts ArrowIngestOptions
	buf  bytes.Buffer
}

func parseArrowIngestOptions(optionsJSON []byte) (ArrowIngestOptions, error) {
	var opts ArrowIngestOptions
	if err := json.Unmarshal(optionsJSON, &opts); err != nil {
		return ArrowIngestOptions{}, ferrors.Invalid("parsing Arrow ingest options: %v", err)
	}
	if opts.TableName == "" {
		return ArrowIngestOptions{}, ferrors.Invalid("missing 'name' option")
	}
	return opts, nil
}

// InsertArrowFromIPCStream implements spec.md §4.9's Arrow IPC insert:
// the first call (when no ingest is in progress) parses optionsJSON and
// opens a buffering decoder; every call appends chunk to it. A
// zero-length chunk signals end of stream, at which point the buffered
// bytes are decoded as a full IPC stream and handed to the engine as
// either a table creation or an insert. Any failure resets the partial
// decoder and options, per spec.md §4.9/§7.
func (c *Connection) InsertArrowFromIPCStream(chunk []byte, optionsJSON []byte) error {
	c.mu.Lock()
	state := c.arrowState
	if state == nil {
		opts, err := parseArrowIngestOptions(optionsJSON)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		state = &arrowIngestState{opts: opts}
		c.arrowState = state
	}
	c.mu.Unlock()

	if len(chunk) == 0 {
		return c.finishArrowIngest()
	}
	state.buf.Write(chunk)
	return nil
}

func (c *Connection) finishArrowIngest() error {
	c.mu.Lock()
	state := c.arrowState
	c.arrowState = nil
	c.mu.Unlock()
	if state == nil {
		return ferrors.Invalid("no Arrow IPC ingest in progress")
	}

	reader, err := ipc.NewReader(bytes.NewReader(state.buf.Bytes()), ipc.WithAllocator(allocator))
	if err != nil {
		return ferrors.Invalid("decoding Arrow IPC stream: %v", err)
	}
	defer reader.Release()

	schema := engineSchemaFromArrow(reader.Schema())
	var rows [][]any
	for reader.Next() {
		rows = append(rows, rowsFromRecord(reader.Record(), schema)...)
	}
	if err := reader.Err(); err != nil && err != io.EOF {
		return ferrors.Invalid("reading Arrow IPC record batch: %v", err)
	}

	return c.engine.CreateOrInsertTable(state.opts.TableName, schema, rows, state.opts.CreateNew)
}

func engineSchemaFromArrow(schema *arrow.Schema) engine.Schema {
	cols := make(engine.Schema, schema.NumFields())
	for i, f := range schema.Fields() {
		cols[i] = engine.Column{Name: f.Name, Type: engineTypeFromArrow(f.Type)}
	}
	return cols
}

func engineTypeFromArrow(t arrow.DataType) engine.ColumnType {
	switch t.ID() {
	case arrow.INT64:
		return engine.TypeInt64
	case arrow.FLOAT64:
		return engine.TypeFloat64
	case arrow.BOOL:
		return engine.TypeBool
	default:
		return engine.TypeString
	}
}

func rowsFromRecord(rec arrow.Record, schema engine.Schema) [][]any {
	n := int(rec.NumRows())
	rows := make([][]any, n)
	for r := 0; r < n; r++ {
		row := make([]any, len(schema))
		for c, col := range schema {
			row[c] = arrowCellAt(rec.Column(c), col.Type, r)
		}
		rows[r] = row
	}
	return rows
}

// arrowCellAt reads row from col by col's own concrete array type
// rather than the inferred engine.ColumnType, so an unexpected arrow
// type never trips a failed assertion — it degrades to its string
// representation instead.
func arrowCellAt(col arrow.Array, _ engine.ColumnType, row int) any {
	if col.IsNull(row) {
		return nil
	}
	switch a := col.(type) {
	case *array.Int64:
		return a.Value(row)
	case *array.Float64:
		return a.Value(row)
	case *array.Boolean:
		return a.Value(row)
	case *array.String:
		return a.Value(row)
	default:
		return fmt.Sprintf("%v", col)
	}
}
