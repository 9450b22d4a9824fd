// bitmap_pool.go: Size-bucketed bitmap pool for the pixmem image memory library
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package pixmem

import (
	"fmt"
	"math/bits"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/docker/go-units"
	"github.com/eapache/queue"
	"github.com/google/btree"
	"github.com/google/uuid"
)

const (
	defaultMinSizeClass     = 4 * 1024
	defaultMaxFreePerBucket = 8
	bucketIndexDegree       = 8
)

// bucket holds the free bitmaps of one size class
type bucket struct {
	sizeClass int
	maxFree   int

	mu        sync.Mutex
	free      *queue.Queue // *Bitmap, FIFO
	inUse     int
	allocated int64
	reused    int64
	recycled  int64
	disposed  int64
}

// take removes a free bitmap, nil if the free list is empty
func (b *bucket) take() *Bitmap {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.free.Length() == 0 {
		return nil
	}
	bmp := b.free.Remove().(*Bitmap)
	b.inUse++
	b.reused++
	return bmp
}

// offer pushes bmp onto the free list if the soft capacity allows it
func (b *bucket) offer(bmp *Bitmap) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inUse--
	if b.free.Length() >= b.maxFree {
		b.disposed++
		return false
	}
	b.free.Add(bmp)
	b.recycled++
	return true
}

func (b *bucket) stats() BucketStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BucketStats{
		SizeClass: b.sizeClass,
		Free:      b.free.Length(),
		InUse:     b.inUse,
		Allocated: b.allocated,
		Reused:    b.reused,
		Recycled:  b.recycled,
		Disposed:  b.disposed,
	}
}

// BucketStats reports the state of one size class.
type BucketStats struct {
	SizeClass int   `json:"size_class"`
	Free      int   `json:"free"`
	InUse     int   `json:"in_use"`
	Allocated int64 `json:"allocated"`
	Reused    int64 `json:"reused"`
	Recycled  int64 `json:"recycled"`
	Disposed  int64 `json:"disposed"`
}

// PoolStats aggregates pool accounting.
type PoolStats struct {
	UsedBytes int64         `json:"used_bytes"`
	FreeBytes int64         `json:"free_bytes"`
	Buckets   []BucketStats `json:"buckets"`
}

// String returns a human-readable summary.
func (s PoolStats) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Pool Stats: %s used, %s free, %d buckets",
		units.BytesSize(float64(s.UsedBytes)), units.BytesSize(float64(s.FreeBytes)), len(s.Buckets))
	for _, b := range s.Buckets {
		fmt.Fprintf(&sb, "\n  %-9s in use %d, free %d, allocated %d, reused %d, recycled %d, disposed %d",
			units.BytesSize(float64(b.SizeClass)), b.InUse, b.Free, b.Allocated, b.Reused, b.Recycled, b.Disposed)
	}
	return sb.String()
}

// BitmapPool recycles bitmaps by size class. It implements Releaser[*Bitmap],
// so references created with Of(bitmap, pool) return their bitmap here when
// the last handle closes.
//
// BitmapPool is safe for concurrent use.
type BitmapPool struct {
	id        uuid.UUID
	config    PoolConfig
	allocator Allocator
	logger    Logger

	mu      sync.RWMutex
	buckets *btree.BTreeG[*bucket]

	usedBytes atomic.Int64
	freeBytes atomic.Int64
	closed    atomic.Bool
}

// NewBitmapPool creates a pool using the allocator named in config.
func NewBitmapPool(config PoolConfig, logger Logger) (*BitmapPool, error) {
	allocator, err := NewAllocator(config.Allocator)
	if err != nil {
		return nil, err
	}
	return NewBitmapPoolWithAllocator(config, allocator, logger), nil
}

// NewBitmapPoolWithAllocator creates a pool drawing fresh storage from allocator.
func NewBitmapPoolWithAllocator(config PoolConfig, allocator Allocator, logger Logger) *BitmapPool {
	if config.MinSizeClass <= 0 {
		config.MinSizeClass = defaultMinSizeClass
	}
	config.MinSizeClass = roundUpPowerOf2(config.MinSizeClass)
	if config.MaxFreePerBucket <= 0 {
		config.MaxFreePerBucket = defaultMaxFreePerBucket
	}
	if allocator == nil {
		allocator = HeapAllocator{}
	}
	return &BitmapPool{
		id:        uuid.New(),
		config:    config,
		allocator: allocator,
		logger:    loggerOrNop(logger),
		buckets: btree.NewG(bucketIndexDegree, func(a, b *bucket) bool {
			return a.sizeClass < b.sizeClass
		}),
	}
}

// SizeClass returns the bucket size class covering size bytes.
func (p *BitmapPool) SizeClass(size int) int {
	if size <= p.config.MinSizeClass {
		return p.config.MinSizeClass
	}
	return roundUpPowerOf2(size)
}

// bucketFor returns the bucket of a size class, creating it on first use
func (p *BitmapPool) bucketFor(class int) *bucket {
	pivot := &bucket{sizeClass: class}
	p.mu.RLock()
	b, ok := p.buckets.Get(pivot)
	p.mu.RUnlock()
	if ok {
		return b
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.buckets.Get(pivot); ok {
		return b
	}
	b = &bucket{
		sizeClass: class,
		maxFree:   p.config.MaxFreePerBucket,
		free:      queue.New(),
	}
	p.buckets.ReplaceOrInsert(b)
	return b
}

// Get returns a bitmap whose storage holds at least size bytes. A recycled
// instance is reset to a size x 1 Alpha8 shape with cleared pixels; callers
// reconfigure it to the shape they need. Failures are reported as
// *AllocationError and are never retried.
func (p *BitmapPool) Get(size int) (*Bitmap, error) {
	if size <= 0 {
		return nil, &AllocationError{Size: size, Reason: "invalid size"}
	}
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	class := p.SizeClass(size)
	b := p.bucketFor(class)

	if bmp := b.take(); bmp != nil {
		p.freeBytes.Add(-int64(class))
		p.usedBytes.Add(int64(class))
		bmp.reuse(size)
		return bmp, nil
	}

	if !p.reserve(class) {
		p.logger.Error("bitmap pool hard cap reached", "size", size, "size_class", class, "max_used_bytes", p.config.MaxUsedBytes)
		return nil, &AllocationError{Size: size, SizeClass: class, Reason: "pool hard cap reached"}
	}
	pixels, err := p.allocator.Allocate(class)
	if err != nil {
		p.usedBytes.Add(-int64(class))
		p.logger.Error("bitmap allocation failed", "size", size, "size_class", class, "error", err)
		return nil, &AllocationError{Size: size, SizeClass: class, Reason: "allocator failed", Err: err}
	}

	b.mu.Lock()
	b.inUse++
	b.allocated++
	b.mu.Unlock()

	return &Bitmap{
		id:        uuid.New(),
		width:     size,
		height:    1,
		format:    Alpha8,
		pixels:    pixels[:size],
		sizeClass: class,
		poolID:    p.id,
		allocator: p.allocator,
	}, nil
}

// reserve accounts class bytes as used, honouring the hard cap
func (p *BitmapPool) reserve(class int) bool {
	limit := p.config.MaxUsedBytes
	if limit <= 0 {
		p.usedBytes.Add(int64(class))
		return true
	}
	if p.usedBytes.Load()+p.freeBytes.Load()+int64(class) > limit {
		p.Trim(limit - p.usedBytes.Load() - int64(class))
	}
	for {
		used := p.usedBytes.Load()
		if used+p.freeBytes.Load()+int64(class) > limit {
			return false
		}
		if p.usedBytes.CompareAndSwap(used, used+int64(class)) {
			return true
		}
	}
}

// Release recycles bmp into its bucket, or disposes it when the bucket is at
// its soft capacity, the pool is closed, or bmp belongs to another pool.
func (p *BitmapPool) Release(bmp *Bitmap) {
	if bmp == nil {
		return
	}
	if bmp.poolID != p.id {
		bmp.Dispose()
		return
	}
	if !bmp.setState(bitmapInUse, bitmapFree) {
		corruptState("BitmapPool.Release", "bitmap %s released while not in use", bmp.id)
	}
	class := bmp.sizeClass
	p.usedBytes.Add(-int64(class))

	b := p.bucketFor(class)
	closed := p.closed.Load()
	if !closed && b.offer(bmp) {
		p.freeBytes.Add(int64(class))
		return
	}
	if closed {
		b.mu.Lock()
		b.inUse--
		b.disposed++
		b.mu.Unlock()
	}
	p.logger.Debug("bitmap disposed on release", "bitmap", bmp.id.String(), "size_class", class)
	bmp.Dispose()
}

// Trim disposes free bitmaps, largest size classes first, until the free bytes
// are at or below target. It returns the number of bytes released.
func (p *BitmapPool) Trim(target int64) int64 {
	if target < 0 {
		target = 0
	}
	var ordered []*bucket
	p.mu.RLock()
	p.buckets.Descend(func(b *bucket) bool {
		ordered = append(ordered, b)
		return true
	})
	p.mu.RUnlock()

	var released int64
	for _, b := range ordered {
		if p.freeBytes.Load() <= target {
			break
		}
		var victims []*Bitmap
		b.mu.Lock()
		for b.free.Length() > 0 && p.freeBytes.Load() > target {
			victims = append(victims, b.free.Remove().(*Bitmap))
			b.disposed++
			p.freeBytes.Add(-int64(b.sizeClass))
		}
		b.mu.Unlock()
		for _, bmp := range victims {
			bmp.Dispose()
			released += int64(b.sizeClass)
		}
	}
	if released > 0 {
		p.logger.Debug("bitmap pool trimmed", "released_bytes", released, "target", target)
	}
	return released
}

// Stats returns a snapshot of the pool accounting.
func (p *BitmapPool) Stats() PoolStats {
	var buckets []*bucket
	p.mu.RLock()
	p.buckets.Ascend(func(b *bucket) bool {
		buckets = append(buckets, b)
		return true
	})
	p.mu.RUnlock()

	stats := PoolStats{
		UsedBytes: p.usedBytes.Load(),
		FreeBytes: p.freeBytes.Load(),
		Buckets:   make([]BucketStats, 0, len(buckets)),
	}
	for _, b := range buckets {
		stats.Buckets = append(stats.Buckets, b.stats())
	}
	return stats
}

// Close disposes every free bitmap. Bitmaps released afterwards are disposed
// instead of recycled and Get fails with ErrPoolClosed.
func (p *BitmapPool) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.Trim(0)
}

// reuse resets a recycled bitmap for a new tenant
func (b *Bitmap) reuse(size int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != bitmapFree {
		corruptState("BitmapPool.Get", "bitmap %s handed out while not free", b.id)
	}
	b.state = bitmapInUse
	b.pixels = b.pixels[:size]
	clear(b.pixels)
	b.width = size
	b.height = 1
	b.format = Alpha8
}

func roundUpPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}
