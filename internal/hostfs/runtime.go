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
Package hostfs defines the boundary between the virtual filesystem core
and the host environment that actually owns bytes: the sandboxed
runtime's native filesystem, its HTTP stack, or (for BUFFER files) raw
process memory.

The boundary is stateless and thread-local-context-threading: every
call that needs per-caller scratch space (glob results, the last
error) takes a *LocalState explicitly. There is no global filesystem
singleton and no goroutine-local trickery — callers are expected to own
one LocalState per goroutine that talks to the host and thread it
through, exactly as spec.md's redesign notes require. A StateRegistry
is provided only for the case where the host pushes results back via a
callback keyed by an opaque id rather than a direct return value (the
glob-push path).

Every method reports failure through a tagged *ferrors.Error rather
than panicking; "NotSupported" failures (e.g. writing to an HTTP file)
are KindNotSupported.
*/
package hostfs

import (
	"sync"

	"webdb/internal/ferrors"
)

// FileID is the opaque, monotonically assigned file identifier shared
// across the whole core. Reuse after a file is dropped is permitted.
type FileID uint64

// OpenResult is what a host Open call reports back.
type OpenResult struct {
	FileSize int64
	// InlineBuffer is non-nil when the host could not (or chooses not
	// to) support further range reads and hands back the entire
	// contents up front instead — this triggers promotion to BUFFER in
	// the file layer (C4).
	InlineBuffer []byte
}

// Runtime is the capability set the host environment must provide.
// Implementations must be safe for concurrent use by multiple
// goroutines, each passing its own *LocalState.
type Runtime interface {
	Open(ls *LocalState, id FileID, url string, createNew bool) (OpenResult, error)
	Close(ls *LocalState, id FileID) error
	Sync(ls *LocalState, id FileID) error
	Truncate(ls *LocalState, id FileID, newSize int64) error
	LastModified(ls *LocalState, id FileID) (int64, error)

	Read(ls *LocalState, id FileID, buf []byte, offset int64) (int, error)
	Write(ls *LocalState, id FileID, buf []byte, offset int64) (int, error)

	MkDir(ls *LocalState, path string) error
	RmDir(ls *LocalState, path string) error
	Exists(ls *LocalState, path string) (bool, error)
	ListFiles(ls *LocalState, path string, cb func(name string)) error
	Glob(ls *LocalState, pattern string) ([]string, error)
	Move(ls *LocalState, from, to string) error
	FileExists(ls *LocalState, path string) (bool, error)
}

// LocalState is the thread-local scratch space a single caller-owned
// goroutine threads through every Runtime call it makes. It replaces
// the source's global mutex-guarded thread-local map (spec.md §9):
// ownership is explicit, not implicit.
type LocalState struct {
	OpenHandles map[FileID]struct{}
	GlobResults []string
	LastErr     error
}

// NewLocalState returns a fresh, empty LocalState for one goroutine.
func NewLocalState() *LocalState {
	return &LocalState{OpenHandles: make(map[FileID]struct{})}
}

// PushGlobResult appends a single path, used by host runtimes that
// deliver glob matches via repeated callback rather than a batch
// return value.
func (ls *LocalState) PushGlobResult(path string) {
	ls.GlobResults = append(ls.GlobResults, path)
}

// TakeGlobResults drains and returns the accumulated glob matches.
func (ls *LocalState) TakeGlobResults() []string {
	out := ls.GlobResults
	ls.GlobResults = nil
	return out
}

// StateRegistry is a process-wide lookup from an opaque caller-chosen
// key to a LocalState, used only where the host must locate a
// particular caller's state from a bare callback with no other context
// (e.g. glob_add_path pushes in the ABI of spec.md §6). It is an
// explicit, lock-guarded map — never a package-level global pointer —
// so multiple independent filesystem instances in the same process
// never collide (spec.md §9: no WEBFS singleton).
type StateRegistry struct {
	mu     sync.Mutex
	states map[string]*LocalState
}

// NewStateRegistry returns an empty registry.
func NewStateRegistry() *StateRegistry {
	return &StateRegistry{states: make(map[string]*LocalState)}
}

// Register associates key with ls, replacing any previous association.
func (r *StateRegistry) Register(key string, ls *LocalState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[key] = ls
}

// Lookup returns the LocalState registered for key, if any.
func (r *StateRegistry) Lookup(key string) (*LocalState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ls, ok := r.states[key]
	return ls, ok
}

// Unregister removes key's association.
func (r *StateRegistry) Unregister(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, key)
}

// wrapNotSupported is a helper shared by Runtime implementations to
// report operations with no meaning for a given protocol (e.g. Write
// against an HTTP-backed file).
func wrapNotSupported(op string) error {
	return ferrors.NotSupported("%s is not supported by this host runtime", op)
}
