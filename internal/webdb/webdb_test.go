/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package webdb

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/ipc"

	"webdb/internal/ferrors"
	"webdb/internal/pagebuffer"
	"webdb/internal/vfs"
)

// decodeIPC drains every record batch in buf and returns each row as a
// []any of its cells, for assertion convenience.
func decodeIPC(t *testing.T, buf []byte) [][]any {
	t.Helper()
	r, err := ipc.NewReader(bytes.NewReader(buf), ipc.WithAllocator(allocator))
	if err != nil {
		t.Fatalf("decoding IPC stream: %v", err)
	}
	defer r.Release()

	var rows [][]any
	for r.Next() {
		rec := r.Record()
		for i := 0; i < int(rec.NumRows()); i++ {
			row := make([]any, rec.NumCols())
			for c := range row {
				row[c] = arrowCellAt(rec.Column(c), 0, i)
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func mustOpen(t *testing.T, configJSON string) *DB {
	t.Helper()
	db, err := Open([]byte(configJSON))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return db
}

// Scenario 1: BUFFER CSV ingest + sum query.
func TestEndToEndBufferCSVIngestAndSum(t *testing.T) {
	db := mustOpen(t, `{}`)
	if _, err := db.RegisterFileBuffer("t.csv", []byte("a,b\n1,2\n3,4\n")); err != nil {
		t.Fatalf("RegisterFileBuffer: %v", err)
	}

	conn := db.NewConnection()
	opts := `{"table_name":"T","header":true}`
	if err := conn.InsertCSVFromPath("t.csv", []byte(opts)); err != nil {
		t.Fatalf("InsertCSVFromPath: %v", err)
	}

	buf, err := conn.RunQuery("SELECT sum(a) FROM T", nil)
	if err != nil {
		t.Fatalf("RunQuery: %v", err)
	}
	rows := decodeIPC(t, buf)
	if len(rows) != 1 || rows[0][0].(int64) != 4 {
		t.Fatalf("expected one row [4], got %v", rows)
	}
}

// Scenario 2: streaming fetch of a 10000-row range.
func TestEndToEndStreamingFetch(t *testing.T) {
	db := mustOpen(t, `{}`)
	conn := db.NewConnection()

	if _, err := conn.SendQuery("SELECT * FROM range(0, 10000)", nil); err != nil {
		t.Fatalf("SendQuery: %v", err)
	}

	total := 0
	batches := 0
	for {
		batch, ok, err := conn.FetchQueryResults()
		if err != nil {
			t.Fatalf("FetchQueryResults: %v", err)
		}
		if !ok {
			break
		}
		batches++
		total += len(decodeIPC(t, batch))
	}
	if total != 10000 {
		t.Fatalf("expected 10000 rows total, got %d across %d batches", total, batches)
	}
	if batches < 1 {
		t.Fatalf("expected at least one batch")
	}
}

// Scenario 3: patched schema preserves 2^31 exactly under emit_bigint=false.
func TestEndToEndPatchedSchemaBigint(t *testing.T) {
	db := mustOpen(t, `{"emit_bigint":false}`)
	conn := db.NewConnection()

	buf, err := conn.RunQuery("SELECT 2147483648", nil) // 2^31
	if err != nil {
		t.Fatalf("RunQuery: %v", err)
	}
	rows := decodeIPC(t, buf)
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %v", rows)
	}
	got, ok := rows[0][0].(float64)
	if !ok {
		t.Fatalf("expected float64 column under emit_bigint=false, got %T", rows[0][0])
	}
	if got != float64(2147483648) {
		t.Fatalf("expected 2^31 preserved exactly, got %v", got)
	}
}

// Scenario 4: registering an HTTP URL served by a non-range host
// promotes the file to BUFFER on first open, retaining data_url.
func TestEndToEndHTTPPromotion(t *testing.T) {
	const body = "hello from a non-range http host"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	db := mustOpen(t, `{}`)
	info, err := db.RegisterFileURL("x.parquet", srv.URL, 0)
	if err != nil {
		t.Fatalf("RegisterFileURL: %v", err)
	}
	if info.DataProtocol != int(vfs.ProtocolHTTP) {
		t.Fatalf("expected HTTP protocol before first open, got %d", info.DataProtocol)
	}

	conn := db.NewConnection()
	f, err := conn.fs.Open("x.parquet", srv.URL, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	buf := make([]byte, len(body))
	if _, err := f.ReadAt(buf, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf) != body {
		t.Fatalf("expected %q, got %q", body, buf)
	}

	promoted, ok := db.GetFileInfo("x.parquet")
	if !ok {
		t.Fatalf("expected x.parquet to still be registered")
	}
	if promoted.DataProtocol != int(vfs.ProtocolBuffer) {
		t.Fatalf("expected promotion to BUFFER, got protocol %d", promoted.DataProtocol)
	}
	if promoted.DataURL != srv.URL {
		t.Fatalf("expected data_url to survive promotion (invariant I5), got %q", promoted.DataURL)
	}
}

// Scenario 5: re-registering a BUFFER file always succeeds, since BUFFER
// files are direct-I/O and never cached in the page buffer (so they can
// never be "still buffered" by C7).
func TestEndToEndReregistrationWhileBuffered(t *testing.T) {
	db := mustOpen(t, `{}`)

	if _, err := db.RegisterFileBuffer("x.csv", []byte("a\n1\n")); err != nil {
		t.Fatalf("RegisterFileBuffer: %v", err)
	}
	if _, err := db.RegisterFileBuffer("x.csv", []byte("a\n2\n")); err != nil {
		t.Fatalf("expected re-registration of a BUFFER file to succeed, got %v", err)
	}

	info, ok := db.GetFileInfo("x.csv")
	if !ok {
		t.Fatalf("expected x.csv to be registered")
	}
	if info.FileSize != int64(len("a\n2\n")) {
		t.Fatalf("expected updated contents, got size %d", info.FileSize)
	}
}

// Scenario 5b: re-registering a NATIVE file with a pinned page fails
// with Invalid("... still buffered"), and succeeds once the page is
// unpinned, per spec.md §8 scenario 5.
func TestEndToEndReregistrationRefusedWhilePagePinned(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.csv")
	if err := os.WriteFile(path, []byte("a\n1\n2\n3\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	db := mustOpen(t, `{}`)
	info, err := db.RegisterFileURL("x.csv", path, 0)
	if err != nil {
		t.Fatalf("RegisterFileURL: %v", err)
	}

	// Read once through the buffered filesystem so the file's first page
	// is actually resident in the pool (pagedReadAt pins and unpins it
	// internally, so this alone leaves nothing pinned).
	conn := db.NewConnection()
	f, err := conn.fs.Open("x.csv", path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rbuf := make([]byte, 4)
	if _, err := f.ReadAt(rbuf, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	f.Close()

	// Simulate a page still in flight mid-query: pin it directly and
	// hold the pin across the re-registration attempt.
	pg, err := db.pool.GetPage(pagebuffer.PageKey{FileID: info.FileID, PageNo: 0}, pagebuffer.IntentRead, db.pool.PageSize())
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}

	_, err = db.RegisterFileBuffer("x.csv", []byte("a\n9\n"))
	if err == nil {
		t.Fatalf("expected Invalid while a page for x.csv is still pinned")
	}
	if !strings.Contains(err.Error(), "still buffered") {
		t.Fatalf("expected a \"still buffered\" error, got %v", err)
	}

	if err := pg.Unpin(false); err != nil {
		t.Fatalf("Unpin: %v", err)
	}

	if _, err := db.RegisterFileBuffer("x.csv", []byte("a\n9\n")); err != nil {
		t.Fatalf("expected re-registration to succeed once unpinned, got %v", err)
	}
}

// Scenario 6: prepared statement create/run/close/KeyError-after-close.
func TestEndToEndPreparedStatementLifecycle(t *testing.T) {
	db := mustOpen(t, `{}`)
	conn := db.NewConnection()

	id := conn.CreatePrepared("SELECT ?+?")
	if id == 0 {
		t.Fatalf("expected a non-zero prepared statement id")
	}

	buf, err := conn.RunPrepared(id, []byte(`[1,2]`))
	if err != nil {
		t.Fatalf("RunPrepared: %v", err)
	}
	rows := decodeIPC(t, buf)
	if len(rows) != 1 || rows[0][0].(int64) != 3 {
		t.Fatalf("expected [[3]], got %v", rows)
	}

	if err := conn.ClosePrepared(id); err != nil {
		t.Fatalf("ClosePrepared: %v", err)
	}

	_, err = conn.RunPrepared(id, []byte(`[1,2]`))
	if !ferrors.IsKeyError(err) {
		t.Fatalf("expected KeyError after close, got %v", err)
	}
}

func TestCSVInsertMissingTableNameIsInvalid(t *testing.T) {
	db := mustOpen(t, `{}`)
	conn := db.NewConnection()
	err := conn.InsertCSVFromBuffer([]byte("a\n1\n"), []byte(`{}`))
	if err == nil || err.Error() == "" {
		t.Fatalf("expected an error for a missing table_name option")
	}
}

func TestJSONInsertRowArray(t *testing.T) {
	db := mustOpen(t, `{}`)
	conn := db.NewConnection()

	data := []byte(`[{"a":1,"b":"x"},{"a":2,"b":"y"}]`)
	if err := conn.InsertJSONFromBuffer(data, []byte(`{"table_name":"J"}`)); err != nil {
		t.Fatalf("InsertJSONFromBuffer: %v", err)
	}

	buf, err := conn.RunQuery("SELECT sum(a) FROM J", nil)
	if err != nil {
		t.Fatalf("RunQuery: %v", err)
	}
	rows := decodeIPC(t, buf)
	if len(rows) != 1 || rows[0][0].(int64) != 3 {
		t.Fatalf("expected [[3]], got %v", rows)
	}
}

func TestResetClearsConnectionsAndEngine(t *testing.T) {
	db := mustOpen(t, `{}`)
	conn := db.NewConnection()
	if err := conn.InsertCSVFromBuffer([]byte("a\n1\n"), []byte(`{"table_name":"T"}`)); err != nil {
		t.Fatalf("InsertCSVFromBuffer: %v", err)
	}

	if err := db.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	conn2 := db.NewConnection()
	if _, err := conn2.RunQuery("SELECT sum(a) FROM T", nil); err == nil {
		t.Fatalf("expected table T to be gone after Reset")
	}
}
