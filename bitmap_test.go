// bitmap_test.go: Tests for bitmaps and allocators
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package pixmem

import (
	"errors"
	"math"
	"runtime"
	"testing"
)

func TestPixelFormat_BytesPerPixel(t *testing.T) {
	cases := []struct {
		format PixelFormat
		bpp    int
		name   string
	}{
		{Alpha8, 1, "ALPHA_8"},
		{RGB565, 2, "RGB_565"},
		{ARGB8888, 4, "ARGB_8888"},
		{RGBAF16, 8, "RGBA_F16"},
	}
	for _, tc := range cases {
		if got := tc.format.BytesPerPixel(); got != tc.bpp {
			t.Errorf("%v.BytesPerPixel() = %d, want %d", tc.format, got, tc.bpp)
		}
		if got := tc.format.String(); got != tc.name {
			t.Errorf("String() = %q, want %q", got, tc.name)
		}
	}
	if SizeInBytes(10, 20, ARGB8888) != 800 {
		t.Errorf("SizeInBytes(10, 20, ARGB8888) = %d", SizeInBytes(10, 20, ARGB8888))
	}
	if SizeInBytes(0, 20, ARGB8888) != 0 || SizeInBytes(10, -1, Alpha8) != 0 {
		t.Error("degenerate shapes should have size 0")
	}
}

func TestSizeInBytes_Overflow(t *testing.T) {
	// huge*4 wraps to a small positive int
	huge := math.MaxInt/2 + 2
	shapes := []struct {
		width, height int
		format        PixelFormat
	}{
		{huge, 4, Alpha8},
		{math.MaxInt, 2, Alpha8},
		{math.MaxInt / 2, 3, Alpha8},
		{math.MaxInt / 8, 1, RGBAF16 + 1},
	}
	for _, s := range shapes {
		if got := SizeInBytes(s.width, s.height, s.format); got != 0 {
			t.Errorf("SizeInBytes(%d, %d, %v) = %d, want 0", s.width, s.height, s.format, got)
		}
	}
	if got := SizeInBytes(math.MaxInt/8, 1, RGBAF16); got != math.MaxInt/8*8 {
		t.Errorf("largest representable shape: got %d", got)
	}

	if _, err := NewBitmap(huge, 4, Alpha8, nil); !errors.Is(err, ErrAllocationFailure) {
		t.Errorf("NewBitmap of an overflowing shape: err = %v", err)
	}
	pool, err := NewBitmapPool(PoolConfig{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	if ref, err := NewBitmapFactory(pool).CreateBitmap(huge, 4, Alpha8); err == nil {
		_ = ref.Close()
		t.Error("CreateBitmap of an overflowing shape should fail")
	}
	bmp, err := NewBitmap(2, 2, Alpha8, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer bmp.Dispose()
	if err := bmp.Reconfigure(huge, 4, Alpha8); err == nil {
		t.Error("Reconfigure to an overflowing shape should fail")
	}
}

func TestNewBitmap(t *testing.T) {
	bmp, err := NewBitmap(8, 4, RGB565, nil)
	if err != nil {
		t.Fatalf("NewBitmap() error: %v", err)
	}
	if bmp.Width() != 8 || bmp.Height() != 4 || bmp.Format() != RGB565 {
		t.Errorf("unexpected shape %s", bmp)
	}
	if bmp.SizeInBytes() != 64 || len(bmp.Pixels()) != 64 {
		t.Errorf("SizeInBytes = %d, len(Pixels) = %d", bmp.SizeInBytes(), len(bmp.Pixels()))
	}

	if _, err := NewBitmap(0, 4, Alpha8, nil); !errors.Is(err, ErrAllocationFailure) {
		t.Errorf("zero width: err = %v, want ErrAllocationFailure", err)
	}
}

func TestBitmap_ReconfigureClearsPixels(t *testing.T) {
	bmp, err := NewBitmap(16, 16, ARGB8888, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := range bmp.Pixels() {
		bmp.Pixels()[i] = 0xFF
	}

	if err := bmp.Reconfigure(8, 8, RGBAF16); err != nil {
		t.Fatalf("Reconfigure() error: %v", err)
	}
	if bmp.Width() != 8 || bmp.Height() != 8 || bmp.Format() != RGBAF16 {
		t.Errorf("unexpected shape after reconfigure: %s", bmp)
	}
	for i, b := range bmp.Pixels() {
		if b != 0 {
			t.Fatalf("pixel byte %d not cleared", i)
		}
	}

	err = bmp.Reconfigure(64, 64, ARGB8888)
	var allocErr *AllocationError
	if !errors.As(err, &allocErr) || !errors.Is(err, ErrAllocationFailure) {
		t.Fatalf("oversized reconfigure: err = %v", err)
	}
	if bmp.Width() != 8 {
		t.Error("failed reconfigure must not change the shape")
	}
}

func TestBitmap_Dispose(t *testing.T) {
	alloc := NewLimitedAllocator(HeapAllocator{}, 1024)
	bmp, err := NewBitmap(16, 16, Alpha8, alloc)
	if err != nil {
		t.Fatal(err)
	}
	if alloc.Used() != 256 {
		t.Fatalf("Used() = %d, want 256", alloc.Used())
	}

	bmp.Dispose()
	bmp.Dispose()
	if !bmp.IsDisposed() || bmp.Pixels() != nil {
		t.Error("disposed bitmap should expose no pixels")
	}
	if alloc.Used() != 0 {
		t.Errorf("Dispose freed %d bytes too few", alloc.Used())
	}
	if err := bmp.Reconfigure(1, 1, Alpha8); !errors.Is(err, ErrUseAfterClose) {
		t.Errorf("Reconfigure after Dispose: err = %v", err)
	}
}

func TestLimitedAllocator_Budget(t *testing.T) {
	alloc := NewLimitedAllocator(nil, 100)
	a, err := alloc.Allocate(60)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := alloc.Allocate(60); !errors.Is(err, ErrAllocationFailure) {
		t.Fatalf("over budget: err = %v", err)
	}
	if alloc.Used() != 60 {
		t.Errorf("failed allocation leaked budget: Used() = %d", alloc.Used())
	}
	alloc.Free(a)
	if _, err := alloc.Allocate(100); err != nil {
		t.Errorf("budget not returned by Free: %v", err)
	}
}

func TestNewAllocator(t *testing.T) {
	for _, name := range []string{"", "heap", "mmap"} {
		a, err := NewAllocator(name)
		if err != nil {
			t.Fatalf("NewAllocator(%q) error: %v", name, err)
		}
		buf, err := a.Allocate(4096)
		if err != nil {
			t.Fatalf("%q Allocate error: %v", name, err)
		}
		if len(buf) != 4096 {
			t.Errorf("%q len = %d", name, len(buf))
		}
		buf[0], buf[4095] = 1, 2
		a.Free(buf)
	}
	if _, err := NewAllocator("gpu"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("unknown allocator: err = %v", err)
	}
}

func TestMmapAllocator_BitmapRoundTrip(t *testing.T) {
	if runtime.GOOS == "windows" || runtime.GOOS == "js" || runtime.GOOS == "wasip1" {
		t.Skip("mmap allocator falls back to the heap on this platform")
	}
	a, err := NewAllocator("mmap")
	if err != nil {
		t.Fatal(err)
	}
	bmp, err := NewBitmap(64, 64, ARGB8888, a)
	if err != nil {
		t.Fatalf("NewBitmap() error: %v", err)
	}
	px := bmp.Pixels()
	px[0], px[len(px)-1] = 0xAB, 0xCD
	if err := bmp.Reconfigure(32, 32, ARGB8888); err != nil {
		t.Fatal(err)
	}
	if bmp.Pixels()[0] != 0 {
		t.Error("reconfigure should clear mapped pixels")
	}
	bmp.Dispose()
}
