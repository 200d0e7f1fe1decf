/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package engine

import "testing"

func TestQueryLiteralNumber(t *testing.T) {
	e := NewEngine()
	res, err := e.Query("SELECT 1", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Rows[0][0].(int64) != 1 {
		t.Errorf("got %v", res.Rows[0][0])
	}
}

func TestQueryLiteralString(t *testing.T) {
	e := NewEngine()
	res, err := e.Query("SELECT 'hello'", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Rows[0][0].(string) != "hello" {
		t.Errorf("got %v", res.Rows[0][0])
	}
}

func TestQueryParamAddition(t *testing.T) {
	e := NewEngine()
	res, err := e.Query("SELECT ?+?", []any{int64(2), int64(3)})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Rows[0][0].(int64) != 5 {
		t.Errorf("got %v", res.Rows[0][0])
	}
}

func TestQueryRange(t *testing.T) {
	e := NewEngine()
	res, err := e.Query("SELECT * FROM range(2, 5)", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(res.Rows))
	}
	if res.Rows[0][0].(int64) != 2 || res.Rows[2][0].(int64) != 4 {
		t.Errorf("unexpected range contents: %v", res.Rows)
	}
}

func TestQuerySumOverIngestedTable(t *testing.T) {
	e := NewEngine()
	schema := Schema{{Name: "n", Type: TypeInt64}}
	if err := e.CreateOrInsertTable("nums", schema, [][]any{{int64(1)}, {int64(2)}, {int64(3)}}, true); err != nil {
		t.Fatalf("CreateOrInsertTable: %v", err)
	}
	res, err := e.Query("SELECT sum(n) FROM nums", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Rows[0][0].(int64) != 6 {
		t.Errorf("got %v", res.Rows[0][0])
	}
}

func TestInsertAppendsWhenNotCreateNew(t *testing.T) {
	e := NewEngine()
	schema := Schema{{Name: "n", Type: TypeInt64}}
	e.CreateOrInsertTable("t", schema, [][]any{{int64(1)}}, true)
	if err := e.CreateOrInsertTable("t", schema, [][]any{{int64(2)}}, false); err != nil {
		t.Fatalf("append: %v", err)
	}
	tbl, _ := e.Table("t")
	if len(tbl.Rows) != 2 {
		t.Fatalf("expected 2 rows after append, got %d", len(tbl.Rows))
	}
}

func TestInsertSchemaMismatchFails(t *testing.T) {
	e := NewEngine()
	e.CreateOrInsertTable("t", Schema{{Name: "n", Type: TypeInt64}}, [][]any{{int64(1)}}, true)
	err := e.CreateOrInsertTable("t", Schema{{Name: "n", Type: TypeString}}, [][]any{{"x"}}, false)
	if err == nil {
		t.Fatal("expected schema mismatch error")
	}
}
