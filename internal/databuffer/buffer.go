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
Package databuffer implements the growable, owned byte region backing
BUFFER-protocol files and fully-inlined HTTP promotions.

Growth is exponential (max(2.25*cap, n)) to keep amortized append cost
constant; shrinking reallocates only once usage falls below half of
capacity, to avoid thrashing on workloads that oscillate near a
boundary. The buffer is never aliased: ownership transfers by move
(TakeOwnership) when it is handed to a file record.
*/
package databuffer

// Buffer is a growable, contiguous, exclusively-owned byte region.
type Buffer struct {
	data []byte
	size int
}

// New creates an empty buffer with no preallocated capacity.
func New() *Buffer {
	return &Buffer{}
}

// FromBytes takes ownership of b as the buffer's initial contents. The
// caller must not retain or mutate b afterward.
func FromBytes(b []byte) *Buffer {
	return &Buffer{data: b, size: len(b)}
}

// Size returns the number of valid bytes currently stored.
func (b *Buffer) Size() int { return b.size }

// Cap returns the allocated capacity.
func (b *Buffer) Cap() int { return cap(b.data) }

// Bytes returns the valid prefix of the underlying storage. The slice
// is only valid until the next mutating call.
func (b *Buffer) Bytes() []byte { return b.data[:b.size] }

// growTarget computes the new capacity for growing to at least n bytes:
// max(2.25*cap, n).
func growTarget(curCap, n int) int {
	grown := 2*curCap + curCap/4 // 2.25x without floating point
	if grown < n {
		return n
	}
	return grown
}

// Resize changes the valid length to n, growing or shrinking the
// backing allocation as needed. Growing reallocates+copies only when n
// exceeds current capacity; shrinking reallocates+copies only when n
// drops below half of current capacity. New bytes introduced by growth
// are zeroed.
func (b *Buffer) Resize(n int) {
	if n < 0 {
		panic("databuffer: negative size")
	}
	curCap := cap(b.data)
	switch {
	case n > curCap:
		newCap := growTarget(curCap, n)
		next := make([]byte, n, newCap)
		copy(next, b.data[:b.size])
		b.data = next
	case curCap > 0 && n < curCap/2:
		next := make([]byte, n)
		copy(next, b.data[:min(n, b.size)])
		b.data = next
	default:
		if n > len(b.data) {
			b.data = b.data[:cap(b.data)]
		}
		b.data = b.data[:n]
	}
	if n > b.size {
		clear(b.data[b.size:n])
	}
	b.size = n
}

// WriteAt copies p into the buffer at offset, growing the buffer if the
// write extends past the current size.
func (b *Buffer) WriteAt(p []byte, offset int) int {
	end := offset + len(p)
	if end > b.size {
		b.Resize(end)
	}
	return copy(b.data[offset:end], p)
}

// ReadAt copies up to len(p) bytes starting at offset into p, returning
// the number of bytes copied (0 if offset is at or past size).
func (b *Buffer) ReadAt(p []byte, offset int) int {
	if offset >= b.size {
		return 0
	}
	return copy(p, b.data[offset:b.size])
}

// TakeOwnership returns the underlying storage and resets the receiver
// to empty. Used when a buffer's storage moves into a WebFile record.
func (b *Buffer) TakeOwnership() []byte {
	out := b.data[:b.size]
	b.data = nil
	b.size = 0
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
