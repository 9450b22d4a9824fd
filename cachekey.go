// cachekey.go: Cache key contract and implementations
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package pixmem

import "fmt"

// CacheKey identifies a cached value. Equality and hashing come from Go's ==
// on the comparable key type, String is for debugging, and ContainsURI reports
// whether the key was derived from the given source locator.
type CacheKey interface {
	comparable
	String() string
	ContainsURI(uri string) bool
}

// SimpleCacheKey is a key made of a single source locator.
type SimpleCacheKey struct {
	URI string
}

// String returns the locator.
func (k SimpleCacheKey) String() string { return k.URI }

// ContainsURI reports whether uri is the key's locator.
func (k SimpleCacheKey) ContainsURI(uri string) bool { return k.URI == uri }

// BitmapMemoryCacheKey identifies a decoded image: its source plus every
// option that changes the decoded pixels.
type BitmapMemoryCacheKey struct {
	SourceURI         string
	ResizeWidth       int
	ResizeHeight      int
	AutoRotated       bool
	DecodeOptions     string
	PostprocessorName string
}

// String returns a debug representation.
func (k BitmapMemoryCacheKey) String() string {
	return fmt.Sprintf("%s[%dx%d rotated=%t decode=%q post=%q]",
		k.SourceURI, k.ResizeWidth, k.ResizeHeight, k.AutoRotated, k.DecodeOptions, k.PostprocessorName)
}

// ContainsURI reports whether the key was built from uri.
func (k BitmapMemoryCacheKey) ContainsURI(uri string) bool { return k.SourceURI == uri }

// MatchURI returns a predicate selecting keys derived from uri.
func MatchURI[K CacheKey](uri string) func(K) bool {
	return func(k K) bool { return k.ContainsURI(uri) }
}

// MatchAll returns a predicate selecting every key.
func MatchAll[K CacheKey]() func(K) bool {
	return func(K) bool { return true }
}
