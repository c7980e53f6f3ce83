// Copyright © 2023-2024 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package mmap

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen(t *testing.T) {
	file := filepath.Join(t.TempDir(), "t.bin")
	content := []byte("the quick brown fox jumps over the lazy dog")
	if err := os.WriteFile(file, content, 0644); err != nil {
		t.Error(err)
		return
	}

	d, err := Open(file)
	if err != nil {
		t.Error(err)
		return
	}
	if !bytes.Equal(d.Bytes(), content) {
		t.Errorf("expected %q, got %q", content, d.Bytes())
	}
	if d.Len() != len(content) {
		t.Errorf("expected length %d, got %d", len(content), d.Len())
	}
	if err = d.Close(); err != nil {
		t.Error(err)
		return
	}
	if err = d.Close(); err != nil {
		t.Errorf("Close must be idempotent, got %v", err)
	}
}

func TestOpenEmpty(t *testing.T) {
	file := filepath.Join(t.TempDir(), "empty.bin")
	if err := os.WriteFile(file, nil, 0644); err != nil {
		t.Error(err)
		return
	}
	d, err := Open(file)
	if err != nil {
		t.Error(err)
		return
	}
	defer d.Close()
	if d.Len() != 0 {
		t.Errorf("expected empty mapping, got %d bytes", d.Len())
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "nope.bin")); err == nil {
		t.Error("expected error for missing file")
	}
}
