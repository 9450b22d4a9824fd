// bitmap.go: Decoded image buffer type for the pixmem image memory library
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package pixmem

import (
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"
)

// PixelFormat describes the in-memory layout of one pixel.
type PixelFormat int

// Supported pixel formats.
const (
	Alpha8 PixelFormat = iota + 1
	RGB565
	ARGB8888
	RGBAF16
)

// BytesPerPixel returns the storage width of one pixel, 0 for unknown formats.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case Alpha8:
		return 1
	case RGB565:
		return 2
	case ARGB8888:
		return 4
	case RGBAF16:
		return 8
	default:
		return 0
	}
}

// String returns the format name.
func (f PixelFormat) String() string {
	switch f {
	case Alpha8:
		return "ALPHA_8"
	case RGB565:
		return "RGB_565"
	case ARGB8888:
		return "ARGB_8888"
	case RGBAF16:
		return "RGBA_F16"
	default:
		return fmt.Sprintf("PixelFormat(%d)", int(f))
	}
}

// SizeInBytes returns the number of bytes a width x height image needs in
// format f, or 0 for shapes that are empty or do not fit in an int.
func SizeInBytes(width, height int, f PixelFormat) int {
	bpp := f.BytesPerPixel()
	if width <= 0 || height <= 0 || bpp <= 0 {
		return 0
	}
	if width > math.MaxInt/height/bpp {
		return 0
	}
	return width * height * bpp
}

type bitmapState int

const (
	bitmapInUse bitmapState = iota
	bitmapFree
	bitmapDisposed
)

// Bitmap is a decoded image buffer. Its pixel storage may live outside the Go
// heap, so it must be returned to its pool or disposed explicitly.
type Bitmap struct {
	mu        sync.Mutex
	id        uuid.UUID
	width     int
	height    int
	format    PixelFormat
	pixels    []byte
	sizeClass int
	poolID    uuid.UUID
	allocator Allocator
	state     bitmapState
}

// NewBitmap allocates a standalone bitmap from allocator. A nil allocator uses the heap.
func NewBitmap(width, height int, format PixelFormat, allocator Allocator) (*Bitmap, error) {
	size := SizeInBytes(width, height, format)
	if size <= 0 {
		return nil, &AllocationError{Size: size, Reason: "invalid bitmap shape"}
	}
	if allocator == nil {
		allocator = HeapAllocator{}
	}
	pixels, err := allocator.Allocate(size)
	if err != nil {
		return nil, &AllocationError{Size: size, Reason: "allocator failed", Err: err}
	}
	return &Bitmap{
		id:        uuid.New(),
		width:     width,
		height:    height,
		format:    format,
		pixels:    pixels[:size],
		sizeClass: cap(pixels),
		allocator: allocator,
	}, nil
}

// ID returns a unique identifier for log correlation.
func (b *Bitmap) ID() uuid.UUID { return b.id }

// Width returns the current width in pixels.
func (b *Bitmap) Width() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.width
}

// Height returns the current height in pixels.
func (b *Bitmap) Height() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.height
}

// Format returns the current pixel format.
func (b *Bitmap) Format() PixelFormat {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.format
}

// Pixels returns the pixel storage for the current shape, nil once disposed.
func (b *Bitmap) Pixels() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == bitmapDisposed {
		return nil
	}
	return b.pixels
}

// SizeInBytes returns the bytes used by the current shape.
func (b *Bitmap) SizeInBytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return SizeInBytes(b.width, b.height, b.format)
}

// AllocationByteCount returns the capacity of the backing storage.
func (b *Bitmap) AllocationByteCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cap(b.pixels)
}

// IsDisposed reports whether the storage was freed.
func (b *Bitmap) IsDisposed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == bitmapDisposed
}

// Reconfigure reshapes the bitmap in place and clears its pixels so no previous
// content survives. It fails with ErrAllocationFailure if the storage is too small.
func (b *Bitmap) Reconfigure(width, height int, format PixelFormat) error {
	size := SizeInBytes(width, height, format)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == bitmapDisposed {
		return ErrUseAfterClose
	}
	if size <= 0 {
		return &AllocationError{Size: size, SizeClass: b.sizeClass, Reason: "invalid bitmap shape"}
	}
	if size > cap(b.pixels) {
		return &AllocationError{Size: size, SizeClass: b.sizeClass, Reason: "bitmap storage too small"}
	}
	b.pixels = b.pixels[:size]
	clear(b.pixels)
	b.width = width
	b.height = height
	b.format = format
	return nil
}

// Dispose frees the storage. It is safe to call more than once.
func (b *Bitmap) Dispose() {
	b.mu.Lock()
	if b.state == bitmapDisposed {
		b.mu.Unlock()
		return
	}
	b.state = bitmapDisposed
	pixels := b.pixels[:cap(b.pixels)]
	b.pixels = nil
	allocator := b.allocator
	b.mu.Unlock()

	if allocator != nil {
		allocator.Free(pixels)
	}
}

// String returns a debug representation.
func (b *Bitmap) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("Bitmap(%s %dx%d %s class=%d)", b.id, b.width, b.height, b.format, b.sizeClass)
}

func (b *Bitmap) setState(from, to bitmapState) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != from {
		return false
	}
	b.state = to
	return true
}
