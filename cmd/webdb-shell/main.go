/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

/*
webdb-shell is an interactive SQL REPL over the embedded virtual
filesystem and page-buffering core in internal/webdb: it registers
files, runs statements, and renders the Arrow IPC result stream as a
pkg/cli table.

Usage:

	webdb-shell [--path FILE] [--config FILE] [--format table|json|plain]

REPL commands (in addition to SQL, auto-detected and sent to the
engine):

	\register NAME URL-OR-PATH   register a file (NATIVE/HTTP by URL shape)
	\files                       list registered files
	\stats NAME on|off           enable/disable statistics collection
	\flush NAME                  flush a file's dirty pages
	\format table|json|plain     change result rendering
	\q, \quit                    exit
*/
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"webdb/internal/config"
	"webdb/internal/ferrors"
	"webdb/internal/logging"
	"webdb/internal/metrics"
	"webdb/internal/webdb"
	"webdb/pkg/cli"
)

var log = logging.NewLogger("webdb-shell")

var shellAllocator = memory.NewGoAllocator()

func main() {
	root := &cobra.Command{
		Use:           "webdb-shell",
		Short:         "interactive SQL shell over the embedded webdb core",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	root.Flags().String("path", "", "database storage path (empty or :memory: for in-memory)")
	root.Flags().String("config", "", "process config TOML file (ports, role, log settings)")
	root.Flags().Bool("emit-bigint", true, "emit BIGINT columns as int64 instead of patching to DOUBLE")
	root.Flags().String("format", "table", "result format: table, json, or plain")
	root.Flags().Bool("metrics", false, "collect page-buffer/VFS Prometheus metrics (see \\pool)")

	viper.BindPFlag("path", root.Flags().Lookup("path"))
	viper.BindPFlag("config", root.Flags().Lookup("config"))
	viper.BindPFlag("emit_bigint", root.Flags().Lookup("emit-bigint"))
	viper.BindPFlag("format", root.Flags().Lookup("format"))
	viper.BindPFlag("metrics", root.Flags().Lookup("metrics"))
	viper.SetEnvPrefix("WEBDB")
	viper.AutomaticEnv()

	if err := root.Execute(); err != nil {
		cli.NewCLIError(err.Error()).Exit()
	}
}

func run(*cobra.Command, []string) error {
	mgr := config.Global()
	if p := viper.GetString("config"); p != "" {
		if err := mgr.LoadFromFile(p); err != nil {
			return err
		}
	}
	mgr.LoadFromEnv()
	procCfg := mgr.Get()
	logging.SetGlobalLevel(logging.ParseLevel(procCfg.LogLevel))
	logging.SetJSONMode(procCfg.LogJSON)

	if viper.GetBool("metrics") {
		metrics.InitRegistry()
	}

	dbCfg := map[string]any{
		"path":        viper.GetString("path"),
		"emit_bigint": viper.GetBool("emit_bigint"),
	}
	configJSON, err := json.Marshal(dbCfg)
	if err != nil {
		return ferrors.Invalid("encoding database config: %v", err)
	}

	db, err := webdb.Open(configJSON)
	if err != nil {
		return err
	}
	defer db.Close()
	conn := db.NewConnection()
	log.Info("webdb-shell starting", "path", viper.GetString("path"))

	sh := &shell{
		db:     db,
		conn:   conn,
		format: cli.ParseOutputFormat(viper.GetString("format")),
	}
	return sh.runLoop()
}

type shell struct {
	db     *webdb.DB
	conn   *webdb.Connection
	format cli.OutputFormat
}

func (s *shell) runLoop() error {
	rl, err := readline.New("webdb> ")
	if err != nil {
		return ferrors.IoError(err, "starting readline")
	}
	defer rl.Close()

	cli.PrintInfo("webdb-shell ready. Type \\h for help, \\q to quit.")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return ferrors.IoError(err, "reading input")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		handled, quit := s.dispatchMeta(line)
		if quit {
			return nil
		}
		if handled {
			continue
		}
		s.runStatement(line)
	}
}

// dispatchMeta handles a leading-backslash REPL command, reporting
// whether line was one (vs. a SQL statement to forward to the engine)
// and whether the shell should exit.
func (s *shell) dispatchMeta(line string) (handled, quit bool) {
	if !strings.HasPrefix(line, "\\") {
		return false, false
	}
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "\\q", "\\quit":
		return true, true
	case "\\h", "\\help":
		s.printHelp()
	case "\\format":
		if len(args) != 1 {
			cli.NewCLIError("usage: \\format table|json|plain").Print()
			return true, false
		}
		s.format = cli.ParseOutputFormat(args[0])
		cli.PrintSuccess("output format set to %s", s.format)
	case "\\register":
		s.cmdRegister(args)
	case "\\files":
		s.cmdFiles(args)
	case "\\stats":
		s.cmdStats(args)
	case "\\flush":
		s.cmdFlush(args)
	case "\\pool":
		s.cmdPool()
	default:
		cli.ErrInvalidCommand(cmd).Print()
	}
	return true, false
}

func (s *shell) printHelp() {
	h := cli.NewHelpFormatter("webdb-shell", "1.0.0")
	h.AddCommand(cli.Command{Name: "\\register", Description: "register a file: \\register NAME URL-OR-PATH"})
	h.AddCommand(cli.Command{Name: "\\files", Description: "list registered files, or \\files PATTERN to glob"})
	h.AddCommand(cli.Command{Name: "\\stats", Description: "\\stats NAME on|off — toggle statistics collection"})
	h.AddCommand(cli.Command{Name: "\\flush", Description: "\\flush NAME — write back a file's dirty pages"})
	h.AddCommand(cli.Command{Name: "\\pool", Description: "show page buffer hit/miss/eviction counters (--metrics exports them to Prometheus too)"})
	h.AddCommand(cli.Command{Name: "\\format", Description: "\\format table|json|plain — change result rendering"})
	h.AddCommand(cli.Command{Name: "\\q", Description: "quit"})
	h.PrintUsage()
}

func (s *shell) cmdRegister(args []string) {
	if len(args) != 2 {
		cli.ErrMissingArgument("NAME URL-OR-PATH", "\\register NAME URL-OR-PATH").Print()
		return
	}
	name, loc := args[0], args[1]
	info, err := s.db.RegisterFileURL(name, loc, 0)
	if err != nil {
		cli.NewCLIError("Registration failed").WithDetail(err.Error()).Print()
		return
	}
	cli.PrintSuccess("registered %s (%d bytes, protocol %d)", info.FileName, info.FileSize, info.DataProtocol)
}

func (s *shell) cmdFiles(args []string) {
	pattern := "*"
	if len(args) == 1 {
		pattern = args[0]
	}
	infos, err := s.db.GlobFileInfos(pattern)
	if err != nil {
		cli.NewCLIError("Glob failed").WithDetail(err.Error()).Print()
		return
	}
	t := cli.NewTable("name", "size", "protocol", "url")
	t.SetFormat(s.format)
	for _, info := range infos {
		t.AddRow(info.FileName, strconv.FormatInt(info.FileSize, 10), strconv.Itoa(info.DataProtocol), info.DataURL)
	}
	t.Print()
}

func (s *shell) cmdStats(args []string) {
	if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
		cli.NewCLIError("usage: \\stats NAME on|off").Print()
		return
	}
	s.db.EnableStatistics(args[0], args[1] == "on")
	cli.PrintSuccess("statistics for %s: %s", args[0], args[1])
}

func (s *shell) cmdFlush(args []string) {
	if len(args) != 1 {
		cli.ErrMissingArgument("NAME", "\\flush NAME").Print()
		return
	}
	if err := s.db.FlushFile(args[0]); err != nil {
		cli.NewCLIError("Flush failed").WithDetail(err.Error()).Print()
		return
	}
	cli.PrintSuccess("flushed %s", args[0])
}

// cmdPool prints the shared page buffer's cumulative counters. Fetching
// them also refreshes the pinned/dirty/hit-ratio gauges on the
// Prometheus sink started by --metrics, if any.
func (s *shell) cmdPool() {
	st := s.db.PoolStats()
	t := cli.NewTable("metric", "value")
	t.SetFormat(s.format)
	t.AddRow("hits", strconv.FormatUint(st.Hits, 10))
	t.AddRow("misses", strconv.FormatUint(st.Misses, 10))
	t.AddRow("evictions", strconv.FormatUint(st.Evictions, 10))
	t.AddRow("bypasses", strconv.FormatUint(st.Bypasses, 10))
	t.AddRow("frames_used", strconv.Itoa(st.FramesUsed))
	t.AddRow("frames_total", strconv.Itoa(st.FramesTot))
	t.Print()
}

func (s *shell) runStatement(sqlText string) {
	buf, err := s.conn.RunQuery(sqlText, nil)
	if err != nil {
		cli.ErrQueryFailed(sqlText, err).Print()
		return
	}
	headers, rows, err := decodeIPCTable(buf)
	if err != nil {
		cli.NewCLIError("Decoding result").WithDetail(err.Error()).Print()
		return
	}
	t := cli.NewTable(headers...)
	t.SetFormat(s.format)
	for _, row := range rows {
		t.AddRow(row...)
	}
	t.Print()
}

// decodeIPCTable drains every record batch in buf into string rows,
// the same cell-reading switch ingest.go uses for Arrow insert paths,
// sized here to rendering instead of loading.
func decodeIPCTable(buf []byte) (headers []string, rows [][]string, err error) {
	r, err := ipc.NewReader(bytes.NewReader(buf), ipc.WithAllocator(shellAllocator))
	if err != nil {
		return nil, nil, ferrors.ExecutionError(err, "decoding result stream")
	}
	defer r.Release()

	schema := r.Schema()
	headers = make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		headers[i] = f.Name
	}

	for r.Next() {
		rec := r.Record()
		for i := 0; i < int(rec.NumRows()); i++ {
			row := make([]string, rec.NumCols())
			for c := range row {
				row[c] = formatCell(rec.Column(c), i)
			}
			rows = append(rows, row)
		}
	}
	return headers, rows, nil
}

func formatCell(col arrow.Array, row int) string {
	if col.IsNull(row) {
		return "NULL"
	}
	switch a := col.(type) {
	case *array.Int64:
		return strconv.FormatInt(a.Value(row), 10)
	case *array.Float64:
		return strconv.FormatFloat(a.Value(row), 'g', -1, 64)
	case *array.Boolean:
		return strconv.FormatBool(a.Value(row))
	case *array.String:
		return a.Value(row)
	default:
		return fmt.Sprintf("%v", col)
	}
}
