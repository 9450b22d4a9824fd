// allocator_mmap.go: Off-heap pixel storage using anonymous memory mappings
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

//go:build unix

package pixmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// MmapAllocator places pixel storage in private anonymous mappings outside the
// Go heap. Storage is returned to the kernel by Free.
type MmapAllocator struct{}

func newMmapAllocator() Allocator { return MmapAllocator{} }

// Allocate maps size bytes of zeroed memory.
func (MmapAllocator) Allocate(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid allocation size %d", size)
	}
	buf, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}
	return buf, nil
}

// Free unmaps buf, which must be the full slice returned by Allocate.
func (MmapAllocator) Free(buf []byte) {
	if len(buf) == 0 {
		return
	}
	_ = unix.Munmap(buf)
}
