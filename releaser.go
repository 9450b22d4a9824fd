// releaser.go: Resource releaser capability
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package pixmem

import "io"

// Releaser disposes of or recycles a value once its last reference closes.
// Implementations must be safe for concurrent use.
type Releaser[T any] interface {
	Release(value T)
}

// ReleaserFunc adapts a plain function to the Releaser interface.
type ReleaserFunc[T any] func(value T)

// Release calls f(value).
func (f ReleaserFunc[T]) Release(value T) { f(value) }

// DirectBitmapReleaser frees bitmaps for real instead of recycling them.
type DirectBitmapReleaser struct{}

// Release disposes the bitmap.
func (DirectBitmapReleaser) Release(b *Bitmap) {
	if b != nil {
		b.Dispose()
	}
}

// closerReleaser releases values by closing them.
type closerReleaser[T io.Closer] struct{}

func (closerReleaser[T]) Release(value T) {
	_ = value.Close()
}
