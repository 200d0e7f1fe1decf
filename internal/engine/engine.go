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

/*
Package engine is a small, deterministic, in-memory evaluator standing
in for the real embedded SQL engine internal/webdb would otherwise
drive. It recognizes exactly the statement shapes needed to exercise
the Connection/WebDB facade end to end — a literal scalar SELECT, an
aggregate SELECT over an ingested table, SELECT * FROM range(a, b), a
two-placeholder arithmetic SELECT, and table creation/insertion handed
to it by the CSV/JSON/Arrow IPC ingestion paths — and nothing else. It
is not a SQL engine implementation; swapping it for a real one touches
no other package.
*/
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"webdb/internal/ferrors"
	"webdb/internal/logging"
)

var log = logging.NewLogger("engine")

// ColumnType is the scalar type carried by one result column. It
// mirrors the teacher's internal/sql.ColumnType vocabulary, trimmed to
// the subset a deterministic in-memory evaluator needs.
type ColumnType int

const (
	TypeInt64 ColumnType = iota
	TypeFloat64
	TypeString
	TypeBool
	TypeNull
)

func (t ColumnType) String() string {
	switch t {
	case TypeInt64:
		return "BIGINT"
	case TypeFloat64:
		return "DOUBLE"
	case TypeString:
		return "VARCHAR"
	case TypeBool:
		return "BOOLEAN"
	default:
		return "NULL"
	}
}

// Column names and types one result or table column.
type Column struct {
	Name string
	Type ColumnType
}

// Schema is an ordered list of columns.
type Schema []Column

// Result is a fully-materialized query result: a schema plus every row,
// values ordered to match the schema.
type Result struct {
	Schema Schema
	Rows   [][]any
}

// Table is an ingested or created in-memory table.
type Table struct {
	Name   string
	Schema Schema
	Rows   [][]any
}

// Engine owns every table a WebDB session has created or ingested into.
// Safe for concurrent use.
type Engine struct {
	mu     sync.Mutex
	tables map[string]*Table
}

// NewEngine returns an engine with no tables.
func NewEngine() *Engine {
	return &Engine{tables: make(map[string]*Table)}
}

// LoadExtension is a marker call: webdb.DB.Open calls this once per
// spec.md §4.10's "loads the Parquet extension" step. Real extension
// loading is the business of whatever engine a production build swaps
// this stand-in for; here it only logs.
func (e *Engine) LoadExtension(name string) error {
	log.Debug("extension load requested", "name", name)
	return nil
}

// CreateOrInsertTable implements the table-function contract
// spec.md §4.9's ingestion paths hand rows to: createNew=true replaces
// any existing table of the same name, otherwise rows are appended
// after a schema compatibility check.
func (e *Engine) CreateOrInsertTable(name string, schema Schema, rows [][]any, createNew bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, exists := e.tables[name]
	if createNew || !exists {
		cp := append([][]any(nil), rows...)
		e.tables[name] = &Table{Name: name, Schema: schema, Rows: cp}
		return nil
	}
	if len(t.Schema) != len(schema) {
		return ferrors.Invalid("schema mismatch inserting into %q: %d columns vs %d", name, len(schema), len(t.Schema))
	}
	for i := range schema {
		if schema[i].Type != t.Schema[i].Type {
			return ferrors.Invalid("schema mismatch inserting into %q: column %q type differs", name, schema[i].Name)
		}
	}
	t.Rows = append(t.Rows, rows...)
	return nil
}

// Table returns the named table, if it exists.
func (e *Engine) Table(name string) (*Table, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.tables[name]
	return t, ok
}

var (
	reRange    = regexp.MustCompile(`(?i)^SELECT\s+\*\s+FROM\s+range\(\s*(-?\d+)\s*,\s*(-?\d+)\s*\)\s*;?$`)
	reSum      = regexp.MustCompile(`(?i)^SELECT\s+sum\(\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\)\s+FROM\s+([a-zA-Z_][a-zA-Z0-9_.]*)\s*;?$`)
	reSelect   = regexp.MustCompile(`(?i)^SELECT\s+(.+?)\s*;?$`)
	reAddition = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)\s*\+\s*(-?\d+(?:\.\d+)?)$`)
	reQuoted   = regexp.MustCompile(`^'(.*)'$`)
)

// Query evaluates sqlText, substituting args for each '?' placeholder
// in order, and returns a fully materialized Result.
func (e *Engine) Query(sqlText string, args []any) (*Result, error) {
	trimmed := strings.TrimSpace(sqlText)

	if m := reRange.FindStringSubmatch(trimmed); m != nil {
		return e.queryRange(m[1], m[2])
	}
	if m := reSum.FindStringSubmatch(trimmed); m != nil {
		return e.querySum(m[1], m[2])
	}
	if m := reSelect.FindStringSubmatch(trimmed); m != nil {
		return e.queryScalar(m[1], args)
	}
	return nil, ferrors.ExecutionError(nil, "unsupported statement: %s", sqlText).WithSQLState(ferrors.SQLStateSyntaxError)
}

func (e *Engine) queryRange(fromStr, toStr string) (*Result, error) {
	from, _ := strconv.ParseInt(fromStr, 10, 64)
	to, _ := strconv.ParseInt(toStr, 10, 64)
	rows := make([][]any, 0, max64(to-from, 0))
	for i := from; i < to; i++ {
		rows = append(rows, []any{i})
	}
	return &Result{Schema: Schema{{Name: "range", Type: TypeInt64}}, Rows: rows}, nil
}

func (e *Engine) querySum(column, table string) (*Result, error) {
	t, ok := e.Table(table)
	if !ok {
		return nil, ferrors.ExecutionError(nil, "table %q does not exist", table).WithSQLState(ferrors.SQLStateTableNotFound)
	}
	colIdx := -1
	for i, c := range t.Schema {
		if strings.EqualFold(c.Name, column) {
			colIdx = i
			break
		}
	}
	if colIdx < 0 {
		return nil, ferrors.ExecutionError(nil, "column %q does not exist in %q", column, table).WithSQLState(ferrors.SQLStateColumnNotFound)
	}

	var sum float64
	isInt := t.Schema[colIdx].Type == TypeInt64
	for _, row := range t.Rows {
		switch v := row[colIdx].(type) {
		case int64:
			sum += float64(v)
		case float64:
			sum += v
			isInt = false
		}
	}
	if isInt {
		return &Result{Schema: Schema{{Name: "sum", Type: TypeInt64}}, Rows: [][]any{{int64(sum)}}}, nil
	}
	return &Result{Schema: Schema{{Name: "sum", Type: TypeFloat64}}, Rows: [][]any{{sum}}}, nil
}

func (e *Engine) queryScalar(expr string, args []any) (*Result, error) {
	expr = substitutePlaceholders(expr, args)

	if m := reAddition.FindStringSubmatch(expr); m != nil {
		a, err1 := strconv.ParseFloat(m[1], 64)
		b, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			return nil, ferrors.ExecutionError(nil, "malformed numeric literal in %q", expr).WithSQLState(ferrors.SQLStateDataException)
		}
		if !strings.Contains(m[1], ".") && !strings.Contains(m[2], ".") {
			return &Result{Schema: Schema{{Name: "col0", Type: TypeInt64}}, Rows: [][]any{{int64(a + b)}}}, nil
		}
		return &Result{Schema: Schema{{Name: "col0", Type: TypeFloat64}}, Rows: [][]any{{a + b}}}, nil
	}

	if m := reQuoted.FindStringSubmatch(expr); m != nil {
		return &Result{Schema: Schema{{Name: "col0", Type: TypeString}}, Rows: [][]any{{m[1]}}}, nil
	}

	if i, err := strconv.ParseInt(expr, 10, 64); err == nil {
		return &Result{Schema: Schema{{Name: "col0", Type: TypeInt64}}, Rows: [][]any{{i}}}, nil
	}
	if f, err := strconv.ParseFloat(expr, 64); err == nil {
		return &Result{Schema: Schema{{Name: "col0", Type: TypeFloat64}}, Rows: [][]any{{f}}}, nil
	}

	return nil, ferrors.ExecutionError(nil, "unsupported scalar expression: %s", expr).WithSQLState(ferrors.SQLStateSyntaxError)
}

// substitutePlaceholders replaces each '?' in expr, in order, with a
// literal rendering of the matching argument.
func substitutePlaceholders(expr string, args []any) string {
	if !strings.Contains(expr, "?") {
		return expr
	}
	var b strings.Builder
	argIdx := 0
	for _, r := range expr {
		if r == '?' && argIdx < len(args) {
			b.WriteString(literalOf(args[argIdx]))
			argIdx++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func literalOf(v any) string {
	switch t := v.(type) {
	case string:
		return "'" + t + "'"
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return fmt.Sprintf("%v", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
