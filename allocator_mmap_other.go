// allocator_mmap_other.go: Heap fallback where anonymous mappings are unavailable
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

//go:build !unix

package pixmem

func newMmapAllocator() Allocator { return HeapAllocator{} }
