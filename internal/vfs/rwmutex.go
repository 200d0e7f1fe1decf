/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package vfs

import "sync"

// RWMutex is a thin wrapper around sync.RWMutex that gives the close
// flow a non-blocking exclusive attempt (spec.md §4.4 step 1, §9's "no
// upgrade protocol" note). There is deliberately no way to hold a
// shared lock and then upgrade it to exclusive in place — a caller that
// needs exclusive access after reading shared state must release the
// shared lock and re-acquire exclusively, exactly as the source
// requires, accepting the brief window where another goroutine could
// intervene.
type RWMutex struct {
	mu sync.RWMutex
}

func (l *RWMutex) Lock()    { l.mu.Lock() }
func (l *RWMutex) Unlock()  { l.mu.Unlock() }
func (l *RWMutex) RLock()   { l.mu.RLock() }
func (l *RWMutex) RUnlock() { l.mu.RUnlock() }

// TryLock attempts to acquire the exclusive lock without blocking,
// reporting whether it succeeded.
func (l *RWMutex) TryLock() bool { return l.mu.TryLock() }
