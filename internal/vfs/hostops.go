/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package vfs

import "webdb/internal/hostfs"

// MkDir, RmDir, Exists, FileExists and Move are thin pass-throughs to
// the host runtime for the directory operations spec.md §4.1 lists
// alongside file open/read/write. internal/bufferedfs exposes MkDir to
// the engine as FS.Mkdir; the others are reachable through
// FS.Registry().

func (r *Registry) MkDir(path string) error {
	return r.host.MkDir(hostfs.NewLocalState(), path)
}

func (r *Registry) RmDir(path string) error {
	return r.host.RmDir(hostfs.NewLocalState(), path)
}

func (r *Registry) Exists(path string) (bool, error) {
	return r.host.Exists(hostfs.NewLocalState(), path)
}

func (r *Registry) FileExists(path string) (bool, error) {
	return r.host.FileExists(hostfs.NewLocalState(), path)
}

func (r *Registry) Move(from, to string) error {
	if err := r.host.Move(hostfs.NewLocalState(), from, to); err != nil {
		return err
	}
	r.fsMutex.Lock()
	if f, ok := r.filesByName[from]; ok {
		delete(r.filesByName, from)
		f.FileName = to
		r.filesByName[to] = f
	}
	r.fsMutex.Unlock()
	r.stats.Rename(from, to)
	return nil
}
