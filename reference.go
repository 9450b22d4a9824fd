// reference.go: Reference-counted shared ownership of off-heap resources
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package pixmem

import (
	"fmt"
	"io"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"
)

// SharedReference holds a value together with the number of live handles
// pointing at it. When the count drops to zero the releaser runs exactly once
// and the value becomes unreachable through this state.
type SharedReference[T any] struct {
	mu        sync.Mutex
	value     T
	refCount  int
	releaser  Releaser[T]
	valueType string
}

func newSharedReference[T any](value T, releaser Releaser[T]) *SharedReference[T] {
	return &SharedReference[T]{
		value:     value,
		refCount:  1,
		releaser:  releaser,
		valueType: fmt.Sprintf("%T", value),
	}
}

// addReference increments the count unless the state was already released.
// Once zero has been observed no clone can succeed.
func (s *SharedReference[T]) addReference() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refCount <= 0 {
		return ErrUseAfterClose
	}
	s.refCount++
	return nil
}

// deleteReference decrements the count and releases the value at zero.
// The releaser is invoked after the lock is dropped.
func (s *SharedReference[T]) deleteReference() {
	s.mu.Lock()
	if s.refCount <= 0 {
		count := s.refCount
		s.mu.Unlock()
		corruptState("SharedReference.deleteReference", "reference count is %d", count)
	}
	s.refCount--
	if s.refCount > 0 {
		s.mu.Unlock()
		return
	}
	value := s.value
	releaser := s.releaser
	var zero T
	s.value = zero
	s.releaser = nil
	s.mu.Unlock()

	if releaser == nil {
		corruptState("SharedReference.deleteReference", "value of type %s released twice", s.valueType)
	}
	releaser.Release(value)
}

func (s *SharedReference[T]) get() (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refCount <= 0 {
		var zero T
		return zero, ErrUseAfterClose
	}
	return s.value, nil
}

// RefCount returns the number of live handles sharing this state.
func (s *SharedReference[T]) RefCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refCount
}

// CloseableReference is one handle onto a SharedReference. Each handle must be
// closed exactly once by its owner; further closes are no-ops.
//
// CloseableReference is safe for concurrent use.
type CloseableReference[T any] struct {
	mu      sync.Mutex
	shared  *SharedReference[T]
	closed  bool
	tracked bool
}

// Of wraps value in a new reference with a count of one. A nil value or a nil
// releaser is a programming error and panics.
func Of[T any](value T, releaser Releaser[T]) *CloseableReference[T] {
	if isNil(value) {
		panic("pixmem: Of called with a nil value")
	}
	if isNil(releaser) {
		panic("pixmem: Of called with a nil releaser")
	}
	return newReference(newSharedReference(value, releaser))
}

// OfCloser wraps a value that is released by calling its Close method.
func OfCloser[T io.Closer](value T) *CloseableReference[T] {
	return Of[T](value, closerReleaser[T]{})
}

func newReference[T any](shared *SharedReference[T]) *CloseableReference[T] {
	r := &CloseableReference[T]{shared: shared}
	if leakHandler.Load() != nil {
		r.tracked = true
		runtime.SetFinalizer(r, (*CloseableReference[T]).reportLeak)
	}
	return r
}

// Clone returns a new handle sharing the same value.
// It fails with ErrUseAfterClose if this handle or the shared state is closed.
func (r *CloseableReference[T]) Clone() (*CloseableReference[T], error) {
	if r == nil {
		return nil, ErrUseAfterClose
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrUseAfterClose
	}
	if err := r.shared.addReference(); err != nil {
		return nil, err
	}
	return newReference(r.shared), nil
}

// CloneOrNil is Clone without the error: a closed handle yields nil.
func (r *CloseableReference[T]) CloneOrNil() *CloseableReference[T] {
	clone, err := r.Clone()
	if err != nil {
		return nil
	}
	return clone
}

// Get returns the referenced value.
func (r *CloseableReference[T]) Get() (T, error) {
	var zero T
	if r == nil {
		return zero, ErrUseAfterClose
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return zero, ErrUseAfterClose
	}
	return r.shared.get()
}

// IsValid reports whether the handle is still open.
func (r *CloseableReference[T]) IsValid() bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed
}

// RefCount returns the number of live handles sharing the value, 0 once released.
func (r *CloseableReference[T]) RefCount() int {
	if r == nil {
		return 0
	}
	return r.shared.RefCount()
}

// Close releases this handle. The first call decrements the shared count and,
// when it was the last handle, runs the releaser synchronously. Close always
// returns nil so that references satisfy io.Closer.
func (r *CloseableReference[T]) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	tracked := r.tracked
	r.mu.Unlock()

	if tracked {
		runtime.SetFinalizer(r, nil)
	}
	r.shared.deleteReference()
	return nil
}

// String returns a debug representation.
func (r *CloseableReference[T]) String() string {
	if r == nil {
		return "CloseableReference(nil)"
	}
	return fmt.Sprintf("CloseableReference(%s, refs=%d, valid=%t)", r.shared.valueType, r.RefCount(), r.IsValid())
}

func (r *CloseableReference[T]) reportLeak() {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return
	}
	if h := leakHandler.Load(); h != nil {
		(*h)(LeakReport{ValueType: r.shared.valueType, RefCount: r.shared.RefCount()})
	}
	_ = r.Close()
}

// CloseSafely closes every non-nil reference.
func CloseSafely[T any](refs ...*CloseableReference[T]) {
	for _, ref := range refs {
		if ref != nil {
			_ = ref.Close()
		}
	}
}

// CloneAll clones every reference or none: on failure the clones made so far
// are closed and the error is returned.
func CloneAll[T any](refs []*CloseableReference[T]) ([]*CloseableReference[T], error) {
	out := make([]*CloseableReference[T], 0, len(refs))
	for _, ref := range refs {
		clone, err := ref.Clone()
		if err != nil {
			CloseSafely(out...)
			return nil, err
		}
		out = append(out, clone)
	}
	return out, nil
}

// LeakReport describes a reference that was garbage collected while open.
type LeakReport struct {
	ValueType string
	RefCount  int
}

var leakHandler atomic.Pointer[func(LeakReport)]

// SetLeakHandler installs a callback for references collected without being
// closed. Only references created after the call are tracked. A nil handler
// disables tracking.
func SetLeakHandler(handler func(LeakReport)) {
	if handler == nil {
		leakHandler.Store(nil)
		return
	}
	leakHandler.Store(&handler)
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}
