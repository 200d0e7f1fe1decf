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

package hostfs

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"webdb/internal/ferrors"
	"webdb/internal/logging"
)

var nativeLog = logging.NewLogger("hostfs.native")

type nativeEntry struct {
	file *os.File // nil for HTTP-backed entries
	url  string

	httpRanges bool // whether the server advertised Accept-Ranges: bytes
	httpSize   int64
}

// Native is a reference Runtime implementation for use outside an
// actual sandboxed host (this repo's own tests and its demo shell):
// NATIVE files go straight through os.File positional ReadAt/WriteAt,
// HTTP files are served with ranged GETs when the origin advertises
// support and fall back to a single full-body fetch (triggering
// promotion to BUFFER in the caller) otherwise.
//
// Production embeddings of this core replace Native with a runtime
// that calls back into the actual host (e.g. a JS bridge) — Native
// exists so the rest of this module has something real to run against.
type Native struct {
	mu      sync.Mutex
	entries map[FileID]*nativeEntry
	rootDir string
	client  *http.Client
}

// NewNative returns a Native runtime rooted at rootDir for relative
// NATIVE paths (absolute paths are used as-is).
func NewNative(rootDir string) *Native {
	return &Native{
		entries: make(map[FileID]*nativeEntry),
		rootDir: rootDir,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (n *Native) resolvePath(path string) string {
	if filepath.IsAbs(path) || n.rootDir == "" {
		return path
	}
	return filepath.Join(n.rootDir, path)
}

func (n *Native) Open(ls *LocalState, id FileID, url string, createNew bool) (OpenResult, error) {
	switch {
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return n.openHTTP(ls, id, url)
	default:
		return n.openNative(ls, id, url, createNew)
	}
}

func (n *Native) openNative(ls *LocalState, id FileID, url string, createNew bool) (OpenResult, error) {
	path := strings.TrimPrefix(url, "file://")
	path = n.resolvePath(path)

	flags := os.O_RDWR | os.O_CREATE
	if createNew {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return OpenResult{}, ferrors.IoError(err, "open %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return OpenResult{}, ferrors.IoError(err, "stat %s", path)
	}

	n.mu.Lock()
	n.entries[id] = &nativeEntry{file: f, url: url}
	n.mu.Unlock()
	ls.OpenHandles[id] = struct{}{}

	return OpenResult{FileSize: info.Size()}, nil
}

func (n *Native) openHTTP(ls *LocalState, id FileID, url string) (OpenResult, error) {
	req, err := http.NewRequest(http.MethodHead, url, nil)
	if err != nil {
		return OpenResult{}, ferrors.IoError(err, "build HEAD request for %s", url)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return OpenResult{}, ferrors.IoError(err, "HEAD %s", url)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return OpenResult{}, ferrors.HttpError(resp.StatusCode, "HEAD %s failed", url)
	}

	rangesOK := resp.Header.Get("Accept-Ranges") == "bytes"
	size := resp.ContentLength

	entry := &nativeEntry{url: url, httpRanges: rangesOK, httpSize: size}
	n.mu.Lock()
	n.entries[id] = entry
	n.mu.Unlock()
	ls.OpenHandles[id] = struct{}{}

	if rangesOK {
		return OpenResult{FileSize: size}, nil
	}

	// Server doesn't support ranges: fetch the whole body now and
	// report it inline so the caller promotes this file to BUFFER.
	nativeLog.Debug("promoting HTTP source to inline buffer", "url", url)
	body, status, err := n.fetchAll(url)
	if err != nil {
		return OpenResult{}, err
	}
	if status >= 300 {
		return OpenResult{}, ferrors.HttpError(status, "GET %s failed", url)
	}
	return OpenResult{FileSize: int64(len(body)), InlineBuffer: body}, nil
}

func (n *Native) fetchAll(url string) ([]byte, int, error) {
	resp, err := n.client.Get(url)
	if err != nil {
		return nil, 0, ferrors.IoError(err, "GET %s", url)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, ferrors.IoError(err, "read body of %s", url)
	}
	return body, resp.StatusCode, nil
}

func (n *Native) entry(id FileID) (*nativeEntry, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	e, ok := n.entries[id]
	if !ok {
		return nil, ferrors.KeyErrorf("unknown file id %d", id)
	}
	return e, nil
}

func (n *Native) Close(ls *LocalState, id FileID) error {
	n.mu.Lock()
	e, ok := n.entries[id]
	if ok {
		delete(n.entries, id)
	}
	n.mu.Unlock()
	delete(ls.OpenHandles, id)
	if !ok {
		return nil
	}
	if e.file != nil {
		if err := e.file.Close(); err != nil {
			return ferrors.IoError(err, "close file id %d", id)
		}
	}
	return nil
}

func (n *Native) Sync(ls *LocalState, id FileID) error {
	e, err := n.entry(id)
	if err != nil {
		return err
	}
	if e.file == nil {
		return nil
	}
	if err := e.file.Sync(); err != nil {
		return ferrors.IoError(err, "sync file id %d", id)
	}
	return nil
}

func (n *Native) Truncate(ls *LocalState, id FileID, newSize int64) error {
	e, err := n.entry(id)
	if err != nil {
		return err
	}
	if e.file == nil {
		return wrapNotSupported("truncate")
	}
	if err := e.file.Truncate(newSize); err != nil {
		return ferrors.IoError(err, "truncate file id %d", id)
	}
	return nil
}

func (n *Native) LastModified(ls *LocalState, id FileID) (int64, error) {
	e, err := n.entry(id)
	if err != nil {
		return 0, err
	}
	if e.file == nil {
		return 0, nil
	}
	info, err := e.file.Stat()
	if err != nil {
		return 0, ferrors.IoError(err, "stat file id %d", id)
	}
	return info.ModTime().Unix(), nil
}

func (n *Native) Read(ls *LocalState, id FileID, buf []byte, offset int64) (int, error) {
	e, err := n.entry(id)
	if err != nil {
		return 0, err
	}
	if e.file != nil {
		nr, err := e.file.ReadAt(buf, offset)
		if err != nil && err != io.EOF {
			return nr, ferrors.IoError(err, "read file id %d", id)
		}
		return nr, nil
	}
	return n.readHTTPRange(e, buf, offset)
}

func (n *Native) readHTTPRange(e *nativeEntry, buf []byte, offset int64) (int, error) {
	if !e.httpRanges {
		return 0, wrapNotSupported("ranged read on a non-range HTTP source")
	}
	end := offset + int64(len(buf)) - 1
	req, err := http.NewRequest(http.MethodGet, e.url, nil)
	if err != nil {
		return 0, ferrors.IoError(err, "build range GET for %s", e.url)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, end))
	resp, err := n.client.Do(req)
	if err != nil {
		return 0, ferrors.IoError(err, "range GET %s", e.url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return 0, ferrors.HttpError(resp.StatusCode, "range GET %s failed", e.url)
	}
	nr, err := io.ReadFull(resp.Body, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nr, ferrors.IoError(err, "read range body of %s", e.url)
	}
	return nr, nil
}

func (n *Native) Write(ls *LocalState, id FileID, buf []byte, offset int64) (int, error) {
	e, err := n.entry(id)
	if err != nil {
		return 0, err
	}
	if e.file == nil {
		return 0, wrapNotSupported("write to an HTTP-backed file")
	}
	nw, err := e.file.WriteAt(buf, offset)
	if err != nil {
		return nw, ferrors.IoError(err, "write file id %d", id)
	}
	return nw, nil
}

func (n *Native) MkDir(ls *LocalState, path string) error {
	if err := os.MkdirAll(n.resolvePath(path), 0o755); err != nil {
		return ferrors.IoError(err, "mkdir %s", path)
	}
	return nil
}

func (n *Native) RmDir(ls *LocalState, path string) error {
	if err := os.Remove(n.resolvePath(path)); err != nil {
		return ferrors.IoError(err, "rmdir %s", path)
	}
	return nil
}

func (n *Native) Exists(ls *LocalState, path string) (bool, error) {
	_, err := os.Stat(n.resolvePath(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, ferrors.IoError(err, "stat %s", path)
}

func (n *Native) ListFiles(ls *LocalState, path string, cb func(name string)) error {
	entries, err := os.ReadDir(n.resolvePath(path))
	if err != nil {
		return ferrors.IoError(err, "readdir %s", path)
	}
	for _, e := range entries {
		cb(e.Name())
	}
	return nil
}

func (n *Native) Glob(ls *LocalState, pattern string) ([]string, error) {
	matches, err := filepath.Glob(n.resolvePath(pattern))
	if err != nil {
		return nil, ferrors.Invalid("bad glob pattern %q: %v", pattern, err)
	}
	for _, m := range matches {
		ls.PushGlobResult(m)
	}
	return matches, nil
}

func (n *Native) Move(ls *LocalState, from, to string) error {
	if err := os.Rename(n.resolvePath(from), n.resolvePath(to)); err != nil {
		return ferrors.IoError(err, "move %s -> %s", from, to)
	}
	return nil
}

func (n *Native) FileExists(ls *LocalState, path string) (bool, error) {
	return n.Exists(ls, path)
}

var _ Runtime = (*Native)(nil)
