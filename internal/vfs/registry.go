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
Package vfs is the file registry and per-file state machine (C3/C4): the
mapping from a registered name to its WebFile record, and the
reference-counted WebFileHandle that engine code actually reads and
writes through.

A Registry holds exactly one WebFile per name (invariant I1) behind a
single non-reentrant fsMutex, mirroring the lock-hierarchy position
spec.md §5 assigns the File Registry (lock #3, below the page buffer's
internal mutex and above a file's own shared/exclusive lock).
*/
package vfs

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"webdb/internal/databuffer"
	"webdb/internal/ferrors"
	"webdb/internal/filestats"
	"webdb/internal/hostfs"
	"webdb/internal/metrics"
	"webdb/internal/readahead"
)

// DataProtocol tags how a WebFile's bytes are actually stored.
type DataProtocol int

const (
	// ProtocolBuffer means the bytes live entirely in process memory.
	ProtocolBuffer DataProtocol = iota
	// ProtocolNative means the file was opened via the host's native
	// filesystem, optionally with a prebound descriptor.
	ProtocolNative
	// ProtocolHTTP means the file is read via ranged host HTTP GETs.
	ProtocolHTTP
)

// String renders the protocol the way FileInfo's JSON encodes it
// (spec.md §6: BUFFER=0, NATIVE=1, HTTP=2 — this just names them).
func (p DataProtocol) String() string {
	switch p {
	case ProtocolBuffer:
		return "BUFFER"
	case ProtocolNative:
		return "NATIVE"
	case ProtocolHTTP:
		return "HTTP"
	default:
		return "UNKNOWN"
	}
}

// inferProtocol implements spec.md §4.3's protocol-inference rule from a
// URL string. It never returns ProtocolBuffer: that protocol is only
// ever reached through RegisterBuffer or an in-place promotion.
func inferProtocol(url string) (proto DataProtocol, strippedURL string) {
	switch {
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return ProtocolHTTP, url
	case strings.HasPrefix(url, "file://"):
		return ProtocolNative, strings.TrimPrefix(url, "file://")
	default:
		return ProtocolNative, url
	}
}

// WebFile is one registered file's shared state (spec.md §3). Every
// field but FileLock itself is protected by FileLock in its shared or
// exclusive mode once the file is reachable from the registry; the two
// exceptions are FileID and FileName, which never change after
// creation, and HandleCount, which is its own atomic counter per
// invariant I4.
type WebFile struct {
	FileID   hostfs.FileID
	FileName string

	// FileLock serializes protocol switches, size changes and
	// truncation (spec.md §5 lock #4). Reads share it; anything that
	// can change FileSize, DataProtocol or DataBuffer takes it
	// exclusively.
	FileLock RWMutex

	DataProtocol DataProtocol
	DataURL      string // may survive a promotion to BUFFER — invariant I5
	DataFD       *uint32
	FileSize     int64
	DataBuffer   *databuffer.Buffer // present iff BUFFER (invariant I2)
	FileStats    *filestats.Collector

	ForceDirectIO bool // set when the source is a raw buffer; routes C8 around C7

	HandleCount atomic.Int64
}

// Registry is the File Registry (C3): the name/id-keyed map of every
// live WebFile, guarded by fsMutex.
type Registry struct {
	fsMutex     sync.Mutex
	filesByID   map[hostfs.FileID]*WebFile
	filesByName map[string]*WebFile
	nextID      atomic.Uint64

	host      hostfs.Runtime
	stats     *filestats.Registry
	readahead *readahead.Manager
	metrics   *metrics.VFSMetrics
}

// SetMetrics attaches a metrics sink created by metrics.NewVFSMetrics. A
// nil sink (the default) makes every recording call below a no-op.
func (r *Registry) SetMetrics(m *metrics.VFSMetrics) {
	r.fsMutex.Lock()
	r.metrics = m
	r.fsMutex.Unlock()
}

func (r *Registry) recordRegisteredLocked() {
	r.metrics.SetRegisteredFiles(len(r.filesByName))
}

// NewRegistry returns an empty registry backed by host for any
// operation that needs to reach the native/HTTP filesystem, and stats
// for per-file statistics collector lookup.
func NewRegistry(host hostfs.Runtime, stats *filestats.Registry) *Registry {
	return &Registry{
		filesByID:   make(map[hostfs.FileID]*WebFile),
		filesByName: make(map[string]*WebFile),
		host:        host,
		stats:       stats,
		readahead:   readahead.NewManager(),
	}
}

func (r *Registry) allocID() hostfs.FileID {
	return hostfs.FileID(r.nextID.Add(1))
}

// RegisterURL implements spec.md §4.3's register_url: if name already
// exists with a matching URL, return a new handle to it; if it exists
// with a different URL, fail AlreadyRegistered; otherwise allocate a
// new WebFile.
func (r *Registry) RegisterURL(name, url string, size int64) (*WebFileHandle, error) {
	r.fsMutex.Lock()
	if f, ok := r.filesByName[name]; ok {
		if f.DataURL != url {
			r.fsMutex.Unlock()
			return nil, ferrors.AlreadyRegistered(name)
		}
		f.HandleCount.Add(1)
		r.metrics.RecordOpen(f.DataProtocol.String())
		r.fsMutex.Unlock()
		return newHandle(r, f), nil
	}

	proto, _ := inferProtocol(url)
	f := &WebFile{
		FileID:       r.allocID(),
		FileName:     name,
		DataProtocol: proto,
		DataURL:      url,
		FileSize:     size,
	}
	f.HandleCount.Add(1)
	r.filesByID[f.FileID] = f
	r.filesByName[name] = f
	r.metrics.RecordOpen(proto.String())
	r.recordRegisteredLocked()
	r.fsMutex.Unlock()
	return newHandle(r, f), nil
}

// RegisterBuffer implements spec.md §4.3's register_buffer: if name
// exists, replace its contents in place (switching protocol to BUFFER,
// closing any underlying NATIVE host handle after releasing fsMutex);
// otherwise create a fresh BUFFER file.
func (r *Registry) RegisterBuffer(name string, data []byte) (*WebFileHandle, error) {
	buf := databuffer.FromBytes(data)

	r.fsMutex.Lock()
	f, existed := r.filesByName[name]
	if !existed {
		f = &WebFile{
			FileID:        r.allocID(),
			FileName:      name,
			ForceDirectIO: true,
		}
		r.filesByID[f.FileID] = f
		r.filesByName[name] = f
		r.recordRegisteredLocked()
	}
	f.HandleCount.Add(1)
	r.metrics.RecordOpen(ProtocolBuffer.String())
	r.fsMutex.Unlock()

	f.FileLock.Lock()
	wasNative := f.DataProtocol == ProtocolNative
	fileID := f.FileID
	f.DataProtocol = ProtocolBuffer
	f.DataBuffer = buf
	f.FileSize = int64(buf.Size())
	f.ForceDirectIO = true
	f.FileLock.Unlock()

	if wasNative {
		ls := hostfs.NewLocalState()
		if err := r.host.Close(ls, fileID); err != nil {
			return nil, ferrors.IoError(err, "close replaced native file %q", name)
		}
	}

	return newHandle(r, f), nil
}

// TryDrop implements spec.md's try_drop: removes name iff its handle
// count is zero, returning whether it was dropped.
func (r *Registry) TryDrop(name string) bool {
	r.fsMutex.Lock()
	defer r.fsMutex.Unlock()
	f, ok := r.filesByName[name]
	if !ok || f.HandleCount.Load() != 0 {
		return false
	}
	delete(r.filesByName, name)
	delete(r.filesByID, f.FileID)
	r.recordRegisteredLocked()
	return true
}

// DropDangling removes every registered file with a zero handle count.
func (r *Registry) DropDangling() {
	r.fsMutex.Lock()
	defer r.fsMutex.Unlock()
	for name, f := range r.filesByName {
		if f.HandleCount.Load() == 0 {
			delete(r.filesByName, name)
			delete(r.filesByID, f.FileID)
		}
	}
	r.recordRegisteredLocked()
}

// SetFD prebinds a native file descriptor for fileID, skipping a host
// open on the next handle-open flow.
func (r *Registry) SetFD(fileID hostfs.FileID, fd uint32) error {
	r.fsMutex.Lock()
	f, ok := r.filesByID[fileID]
	r.fsMutex.Unlock()
	if !ok {
		return ferrors.KeyErrorf("unknown file id %d", fileID)
	}
	f.FileLock.Lock()
	f.DataFD = &fd
	f.FileLock.Unlock()
	return nil
}

// FileInfo is the JSON-shaped record spec.md §6 defines for
// GetFileInfo/GlobFileInfos.
type FileInfo struct {
	FileID             hostfs.FileID `json:"fileId"`
	FileName           string        `json:"fileName"`
	FileSize           int64         `json:"fileSize"`
	DataProtocol       int           `json:"dataProtocol"`
	DataURL            string        `json:"dataUrl,omitempty"`
	DataNativeFd       *uint32       `json:"dataNativeFd,omitempty"`
	AllowFullHTTPReads bool          `json:"allowFullHttpReads,omitempty"`
}

// FileInfoByName looks up one file's info by name.
func (r *Registry) FileInfoByName(name string) (FileInfo, bool) {
	r.fsMutex.Lock()
	f, ok := r.filesByName[name]
	r.fsMutex.Unlock()
	if !ok {
		return FileInfo{}, false
	}
	return fileInfoOf(f), true
}

// FileInfoByID looks up one file's info by id.
func (r *Registry) FileInfoByID(id hostfs.FileID) (FileInfo, bool) {
	r.fsMutex.Lock()
	f, ok := r.filesByID[id]
	r.fsMutex.Unlock()
	if !ok {
		return FileInfo{}, false
	}
	return fileInfoOf(f), true
}

func fileInfoOf(f *WebFile) FileInfo {
	f.FileLock.RLock()
	defer f.FileLock.RUnlock()
	return FileInfo{
		FileID:       f.FileID,
		FileName:     f.FileName,
		FileSize:     f.FileSize,
		DataProtocol: int(f.DataProtocol),
		DataURL:      f.DataURL,
		DataNativeFd: f.DataFD,
	}
}

var globCollator = collate.New(language.English, collate.Loose)

// Glob implements spec.md §4.3's glob: in-memory name matches (anchored
// glob-to-regex) unioned with host-runtime glob results, sorted with a
// locale-stable collator and deduped.
func (r *Registry) Glob(pattern string) ([]string, error) {
	re, err := globToRegexp(pattern)
	if err != nil {
		return nil, ferrors.Invalid("bad glob pattern %q: %v", pattern, err)
	}

	r.fsMutex.Lock()
	var inMemory []string
	for name := range r.filesByName {
		if re.MatchString(name) {
			inMemory = append(inMemory, name)
		}
	}
	r.fsMutex.Unlock()

	ls := hostfs.NewLocalState()
	hostMatches, err := r.host.Glob(ls, pattern)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(inMemory)+len(hostMatches))
	all := make([]string, 0, len(inMemory)+len(hostMatches))
	for _, name := range append(inMemory, hostMatches...) {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		all = append(all, name)
	}

	sort.Slice(all, func(i, j int) bool { return globCollator.CompareString(all[i], all[j]) < 0 })
	return all, nil
}

// globToRegexp turns a shell-style glob (`*`, `?`) into an anchored
// regular expression.
func globToRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return regexp.Compile(b.String())
}
