// image.go: Closeable image wrappers owning bitmap references
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package pixmem

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"
)

// QualityInfo describes how close a decoded image is to its final quality.
type QualityInfo struct {
	Quality           int  `json:"quality"`
	GoodEnoughQuality bool `json:"good_enough_quality"`
	FullQuality       bool `json:"full_quality"`
}

// FullQuality is the quality of a completely decoded image.
var FullQuality = QualityInfo{Quality: math.MaxInt32, GoodEnoughQuality: true, FullQuality: true}

// CloseableImage is a decoded image with an explicit Open -> Closed lifecycle.
// Metric accessors return 0 once the image is closed.
type CloseableImage interface {
	io.Closer
	IsClosed() bool
	Width() int
	Height() int
	SizeInBytes() int
	QualityInfo() QualityInfo
}

// CloseableStaticBitmap is a CloseableImage holding a single bitmap reference.
//
// CloseableStaticBitmap is safe for concurrent use.
type CloseableStaticBitmap struct {
	mu       sync.Mutex
	ref      *CloseableReference[*Bitmap]
	bitmap   *Bitmap
	quality  QualityInfo
	rotation int
}

// NewCloseableStaticBitmap wraps bmp in a new reference released to releaser.
func NewCloseableStaticBitmap(bmp *Bitmap, releaser Releaser[*Bitmap], quality QualityInfo, rotation int) *CloseableStaticBitmap {
	ref := Of(bmp, releaser)
	return &CloseableStaticBitmap{ref: ref, bitmap: bmp, quality: quality, rotation: rotation}
}

// NewCloseableStaticBitmapFromReference wraps a clone of ref; the caller keeps ownership of ref.
func NewCloseableStaticBitmapFromReference(ref *CloseableReference[*Bitmap], quality QualityInfo, rotation int) (*CloseableStaticBitmap, error) {
	clone, err := ref.Clone()
	if err != nil {
		return nil, err
	}
	bmp, err := clone.Get()
	if err != nil {
		_ = clone.Close()
		return nil, err
	}
	return &CloseableStaticBitmap{ref: clone, bitmap: bmp, quality: quality, rotation: rotation}, nil
}

func (s *CloseableStaticBitmap) detach() *CloseableReference[*Bitmap] {
	ref := s.ref
	s.ref = nil
	s.bitmap = nil
	return ref
}

// ConvertToBitmapReference hands the bitmap reference over to the caller
// without releasing it. The image is closed afterwards and the caller becomes
// responsible for closing the returned reference.
func (s *CloseableStaticBitmap) ConvertToBitmapReference() (*CloseableReference[*Bitmap], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ref == nil {
		return nil, ErrAlreadyClosed
	}
	return s.detach(), nil
}

// UnderlyingBitmap returns the wrapped bitmap.
func (s *CloseableStaticBitmap) UnderlyingBitmap() (*Bitmap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bitmap == nil {
		return nil, ErrUseAfterClose
	}
	return s.bitmap, nil
}

func (s *CloseableStaticBitmap) current() *Bitmap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bitmap
}

// Width returns the bitmap width, 0 when closed.
func (s *CloseableStaticBitmap) Width() int {
	if bmp := s.current(); bmp != nil {
		return bmp.Width()
	}
	return 0
}

// Height returns the bitmap height, 0 when closed.
func (s *CloseableStaticBitmap) Height() int {
	if bmp := s.current(); bmp != nil {
		return bmp.Height()
	}
	return 0
}

// SizeInBytes returns the bitmap size, 0 when closed.
func (s *CloseableStaticBitmap) SizeInBytes() int {
	if bmp := s.current(); bmp != nil {
		return bmp.SizeInBytes()
	}
	return 0
}

// QualityInfo returns the decode quality.
func (s *CloseableStaticBitmap) QualityInfo() QualityInfo { return s.quality }

// RotationAngle returns the rotation in degrees to apply when displaying.
func (s *CloseableStaticBitmap) RotationAngle() int { return s.rotation }

// IsClosed reports whether the image was closed or converted.
func (s *CloseableStaticBitmap) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ref == nil
}

// Close releases the bitmap reference. It is safe to call repeatedly.
func (s *CloseableStaticBitmap) Close() error {
	s.mu.Lock()
	ref := s.detach()
	s.mu.Unlock()
	if ref != nil {
		return ref.Close()
	}
	return nil
}

// String returns a debug representation.
func (s *CloseableStaticBitmap) String() string {
	return fmt.Sprintf("CloseableStaticBitmap(%dx%d, rotation=%d, closed=%t)", s.Width(), s.Height(), s.rotation, s.IsClosed())
}

// CloseableAnimatedBitmap is a CloseableImage holding one reference per frame.
//
// CloseableAnimatedBitmap is safe for concurrent use.
type CloseableAnimatedBitmap struct {
	mu        sync.Mutex
	frames    []*CloseableReference[*Bitmap]
	durations []time.Duration
	quality   QualityInfo
}

// NewCloseableAnimatedBitmap wraps clones of frames; the caller keeps ownership
// of the passed references. durations must have one entry per frame.
func NewCloseableAnimatedBitmap(frames []*CloseableReference[*Bitmap], durations []time.Duration, quality QualityInfo) (*CloseableAnimatedBitmap, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("pixmem: animated bitmap needs at least one frame")
	}
	if len(frames) != len(durations) {
		return nil, fmt.Errorf("pixmem: %d frames but %d durations", len(frames), len(durations))
	}
	clones, err := CloneAll(frames)
	if err != nil {
		return nil, err
	}
	return &CloseableAnimatedBitmap{
		frames:    clones,
		durations: append([]time.Duration(nil), durations...),
		quality:   quality,
	}, nil
}

// FrameCount returns the number of frames, 0 when closed.
func (a *CloseableAnimatedBitmap) FrameCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.frames)
}

// Frame returns the bitmap of frame i.
func (a *CloseableAnimatedBitmap) Frame(i int) (*Bitmap, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frames == nil {
		return nil, ErrUseAfterClose
	}
	if i < 0 || i >= len(a.frames) {
		return nil, fmt.Errorf("pixmem: frame %d out of range [0,%d)", i, len(a.frames))
	}
	return a.frames[i].Get()
}

// Duration returns how long frame i is displayed, 0 when closed or out of range.
func (a *CloseableAnimatedBitmap) Duration(i int) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frames == nil || i < 0 || i >= len(a.durations) {
		return 0
	}
	return a.durations[i]
}

func (a *CloseableAnimatedBitmap) firstFrame() *Bitmap {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.frames) == 0 {
		return nil
	}
	bmp, err := a.frames[0].Get()
	if err != nil {
		return nil
	}
	return bmp
}

// Width returns the width of the first frame, 0 when closed.
func (a *CloseableAnimatedBitmap) Width() int {
	if bmp := a.firstFrame(); bmp != nil {
		return bmp.Width()
	}
	return 0
}

// Height returns the height of the first frame, 0 when closed.
func (a *CloseableAnimatedBitmap) Height() int {
	if bmp := a.firstFrame(); bmp != nil {
		return bmp.Height()
	}
	return 0
}

// SizeInBytes returns the total size of all frames, 0 when closed.
func (a *CloseableAnimatedBitmap) SizeInBytes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	total := 0
	for _, ref := range a.frames {
		if bmp, err := ref.Get(); err == nil {
			total += bmp.SizeInBytes()
		}
	}
	return total
}

// QualityInfo returns the decode quality.
func (a *CloseableAnimatedBitmap) QualityInfo() QualityInfo { return a.quality }

// IsClosed reports whether the image was closed or converted.
func (a *CloseableAnimatedBitmap) IsClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frames == nil
}

// ConvertToFrameReferences hands every frame reference over to the caller.
func (a *CloseableAnimatedBitmap) ConvertToFrameReferences() ([]*CloseableReference[*Bitmap], error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frames == nil {
		return nil, ErrAlreadyClosed
	}
	frames := a.frames
	a.frames = nil
	return frames, nil
}

// Close releases every frame reference. It is safe to call repeatedly.
func (a *CloseableAnimatedBitmap) Close() error {
	a.mu.Lock()
	frames := a.frames
	a.frames = nil
	a.mu.Unlock()
	CloseSafely(frames...)
	return nil
}
