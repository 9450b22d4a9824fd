// errors.go: Error taxonomy for the pixmem image memory library
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package pixmem

import (
	"errors"
	"fmt"
)

// Common errors returned by references, images, pools and caches.
var (
	// ErrUseAfterClose is returned when a closed reference or image is accessed.
	ErrUseAfterClose = errors.New("pixmem: use after close")
	// ErrAlreadyClosed is returned when ownership is extracted from a closed image.
	ErrAlreadyClosed = errors.New("pixmem: already closed")
	// ErrAllocationFailure is returned when a resource of the requested shape cannot be produced.
	ErrAllocationFailure = errors.New("pixmem: allocation failure")
	// ErrPoolClosed is returned by Get on a closed pool.
	ErrPoolClosed = errors.New("pixmem: pool is closed")
	// ErrInvalidConfig is returned when a configuration file cannot be applied.
	ErrInvalidConfig = errors.New("pixmem: invalid configuration")
)

// AllocationError describes a failed pool or allocator request.
type AllocationError struct {
	Size      int    // requested bytes
	SizeClass int    // bucket size class, 0 if not resolved
	Reason    string // short human readable cause
	Err       error  // underlying allocator error, may be nil
}

// Error implements the error interface.
func (e *AllocationError) Error() string {
	msg := fmt.Sprintf("pixmem: cannot allocate %d bytes (class %d): %s", e.Size, e.SizeClass, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is.
func (e *AllocationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrAllocationFailure, e.Err}
	}
	return []error{ErrAllocationFailure}
}

// CorruptStateError is the panic value raised on internal invariant violations
// such as a negative reference count or a double release. It is never returned.
type CorruptStateError struct {
	Op      string
	Message string
}

// Error implements the error interface.
func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("pixmem: corrupt state in %s: %s", e.Op, e.Message)
}

func corruptState(op, format string, args ...interface{}) {
	panic(&CorruptStateError{Op: op, Message: fmt.Sprintf(format, args...)})
}
