// binary_resource_test.go: Tests for file backed byte sources
//
// Copyright (c) 2025 AGILira
// Series: an AGLIra fragment
// SPDX-License-Identifier: MPL-2.0

package pixmem

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"
)

func TestFileBinaryResource_Read(t *testing.T) {
	content := bytes.Repeat([]byte("\x89PNG\r\n"), 5000)
	path := writeFile(t, t.TempDir(), "image.png", string(content))

	var res BinaryResource = NewFileBinaryResource(path)
	if res.Size() != int64(len(content)) {
		t.Errorf("Size() = %d, want %d", res.Size(), len(content))
	}
	data, err := res.Read()
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("Read() returned different bytes")
	}

	stream, err := res.OpenStream()
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()
	head := make([]byte, 4)
	if _, err := io.ReadFull(stream, head); err != nil || string(head) != "\x89PNG" {
		t.Errorf("OpenStream() head = %q, %v", head, err)
	}
}

func TestFileBinaryResource_Missing(t *testing.T) {
	res := NewFileBinaryResource(filepath.Join(t.TempDir(), "nope"))
	if res.Size() != 0 {
		t.Error("missing file should have size 0")
	}
	if _, err := res.Read(); err == nil {
		t.Error("Read() of a missing file should fail")
	}
}

func TestFileBinaryResource_Constructors(t *testing.T) {
	if FileBinaryResourceOrNil("") != nil {
		t.Error("FileBinaryResourceOrNil(\"\") should be nil")
	}
	a := FileBinaryResourceOrNil("/tmp/a")
	if a == nil || a.Path() != "/tmp/a" || !a.Equal(NewFileBinaryResource("/tmp/a")) || a.Equal(nil) {
		t.Error("constructor or Equal mismatch")
	}

	defer func() {
		if recover() == nil {
			t.Error("NewFileBinaryResource(\"\") should panic")
		}
	}()
	NewFileBinaryResource("")
}
