// binary_resource.go: Byte sources consumed by the image pipeline
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package pixmem

import (
	"fmt"
	"io"
	"os"

	"github.com/valyala/bytebufferpool"
)

// BinaryResource is an opaque provider of encoded image bytes.
type BinaryResource interface {
	// OpenStream returns a fresh reader over the bytes; the caller closes it.
	OpenStream() (io.ReadCloser, error)
	// Read returns all the bytes.
	Read() ([]byte, error)
	// Size returns the length in bytes, 0 if unknown.
	Size() int64
}

// FileBinaryResource is a BinaryResource backed by a file on disk.
type FileBinaryResource struct {
	path string
}

// NewFileBinaryResource returns a resource for path. The file is not opened.
func NewFileBinaryResource(path string) *FileBinaryResource {
	if path == "" {
		panic("pixmem: NewFileBinaryResource called with an empty path")
	}
	return &FileBinaryResource{path: path}
}

// FileBinaryResourceOrNil returns nil for an empty path instead of panicking.
func FileBinaryResourceOrNil(path string) *FileBinaryResource {
	if path == "" {
		return nil
	}
	return &FileBinaryResource{path: path}
}

// Path returns the file path.
func (r *FileBinaryResource) Path() string { return r.path }

// OpenStream opens the file for reading.
func (r *FileBinaryResource) OpenStream() (io.ReadCloser, error) {
	// #nosec G304 -- the path is chosen by the caller that built the resource
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", r.path, err)
	}
	return f, nil
}

// Read returns the whole file content.
func (r *FileBinaryResource) Read() ([]byte, error) {
	stream, err := r.OpenStream()
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if _, err := buf.ReadFrom(stream); err != nil {
		return nil, fmt.Errorf("read %s: %w", r.path, err)
	}
	out := make([]byte, buf.Len())
	copy(out, buf.B)
	return out, nil
}

// Size returns the file length, 0 if the file does not exist.
func (r *FileBinaryResource) Size() int64 {
	info, err := os.Stat(r.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Equal reports whether both resources point at the same path.
func (r *FileBinaryResource) Equal(other *FileBinaryResource) bool {
	return other != nil && r.path == other.path
}
