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

// Package mmap maps whole files read-only into memory. On unix platforms
// the mapping is a real mmap; elsewhere the file is read into a buffer,
// which preserves the read-only whole-file-view contract at the cost of
// memory.
package mmap

// Data is a read-only view of a whole file. The byte slice is shared
// between all readers of the file; it must never be written to, and must
// not be used after Close.
type Data struct {
	b      []byte
	unmap  func([]byte) error
	closed bool
}

// Bytes returns the mapped file contents.
func (d *Data) Bytes() []byte {
	return d.b
}

// Len returns the size of the mapped file in bytes.
func (d *Data) Len() int {
	return len(d.b)
}

// Close releases the mapping. Close is idempotent.
func (d *Data) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	b := d.b
	d.b = nil
	if d.unmap != nil {
		return d.unmap(b)
	}
	return nil
}
