// allocator.go: Raw storage allocators for bitmap pixels
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package pixmem

import (
	"fmt"
	"sync/atomic"
)

// Allocator produces and frees raw pixel storage.
type Allocator interface {
	// Allocate returns a slice of exactly size bytes.
	Allocate(size int) ([]byte, error)
	// Free returns storage obtained from Allocate. The slice must not be used afterwards.
	Free(buf []byte)
}

// HeapAllocator allocates pixel storage on the Go heap. Free is a no-op.
type HeapAllocator struct{}

// Allocate returns a zeroed heap slice.
func (HeapAllocator) Allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid allocation size %d", size)
	}
	return make([]byte, size), nil
}

// Free lets the garbage collector reclaim buf.
func (HeapAllocator) Free([]byte) {}

// LimitedAllocator enforces a byte budget on top of another allocator.
type LimitedAllocator struct {
	next  Allocator
	limit int64
	used  atomic.Int64
}

// NewLimitedAllocator wraps next with a budget of limit bytes.
func NewLimitedAllocator(next Allocator, limit int64) *LimitedAllocator {
	if next == nil {
		next = HeapAllocator{}
	}
	return &LimitedAllocator{next: next, limit: limit}
}

// Allocate reserves size bytes from the budget before delegating.
func (a *LimitedAllocator) Allocate(size int) ([]byte, error) {
	if a.used.Add(int64(size)) > a.limit {
		a.used.Add(-int64(size))
		return nil, fmt.Errorf("budget of %d bytes exhausted: %w", a.limit, ErrAllocationFailure)
	}
	buf, err := a.next.Allocate(size)
	if err != nil {
		a.used.Add(-int64(size))
		return nil, err
	}
	return buf, nil
}

// Free returns the storage and its budget.
func (a *LimitedAllocator) Free(buf []byte) {
	a.used.Add(-int64(cap(buf)))
	a.next.Free(buf)
}

// Used returns the bytes currently allocated through a.
func (a *LimitedAllocator) Used() int64 { return a.used.Load() }

// NewAllocator returns the allocator registered under name: "heap" (default) or "mmap".
func NewAllocator(name string) (Allocator, error) {
	switch name {
	case "", "heap":
		return HeapAllocator{}, nil
	case "mmap":
		return newMmapAllocator(), nil
	default:
		return nil, fmt.Errorf("unknown allocator %q: %w", name, ErrInvalidConfig)
	}
}
