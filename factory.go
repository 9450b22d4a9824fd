// factory.go: Bitmap factory backed by the bitmap pool
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package pixmem

// BitmapFactory creates pooled bitmaps of an exact shape.
type BitmapFactory struct {
	pool *BitmapPool
}

// NewBitmapFactory returns a factory drawing from pool.
func NewBitmapFactory(pool *BitmapPool) *BitmapFactory {
	return &BitmapFactory{pool: pool}
}

// CreateBitmap returns a reference to a width x height bitmap in format. The
// reference releases the bitmap back to the pool when its last clone closes.
func (f *BitmapFactory) CreateBitmap(width, height int, format PixelFormat) (*CloseableReference[*Bitmap], error) {
	size := SizeInBytes(width, height, format)
	if size <= 0 {
		return nil, &AllocationError{Size: size, Reason: "invalid bitmap shape"}
	}
	bmp, err := f.pool.Get(size)
	if err != nil {
		return nil, err
	}
	if err := bmp.Reconfigure(width, height, format); err != nil {
		f.pool.Release(bmp)
		return nil, err
	}
	return Of[*Bitmap](bmp, f.pool), nil
}
