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

// Package bq reads and writes BQ files: the fixed-length BINSEQ flavor.
//
// A BQ file is a 32-byte header followed by fixed-size records. Every
// record is a 64-bit flag and the 2-bit packed primary (and, for paired
// files, secondary) sequence. Because the record size is constant within
// a file, any record's offset is computable in O(1) and the reader offers
// true random access over a memory-mapped view.
//
// File layout (all little-endian):
//
//	Offset  Size  Field
//	0       4     magic (0x42534551)
//	4       1     format version (2)
//	5       4     slen, primary sequence length, > 0
//	9       4     xlen, secondary sequence length, 0 for unpaired files
//	13      19    reserved, zero
//
// Records follow immediately. Record size is 8*(1 + ceil(slen/32) +
// ceil(xlen/32)) bytes and (fileSize-32) must divide evenly by it.
package bq

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/EricLBuehler/binseq/binseq"
)

var le = binary.LittleEndian

// Magic identifies BQ files.
const Magic uint32 = 0x42534551

// Format is the supported format version. Version 1 used a 16-byte
// header and is rejected.
const Format uint8 = 2

// SizeHeader is the size of the BQ file header in bytes.
const SizeHeader = binseq.SizeHeader

// ErrBadMagic means the first four bytes are not the BQ magic number.
var ErrBadMagic = errors.New("bq: invalid magic number")

// ErrUnsupportedVersion means the magic matched but the format version
// byte is not supported by this implementation.
var ErrUnsupportedVersion = errors.New("bq: unsupported format version")

// InvalidHeaderError means the header parsed but is self-inconsistent.
type InvalidHeaderError struct {
	Field  string
	Reason string
}

func (e InvalidHeaderError) Error() string {
	return fmt.Sprintf("bq: invalid header field %s: %s", e.Field, e.Reason)
}

// Header holds the sequence lengths of a BQ file. All records in the
// file share these lengths.
type Header struct {
	Slen uint32
	Xlen uint32
}

// NewHeader returns a header for unpaired records of slen bases.
func NewHeader(slen uint32) Header {
	return Header{Slen: slen}
}

// NewHeaderPaired returns a header for paired records of slen and xlen bases.
func NewHeaderPaired(slen, xlen uint32) Header {
	return Header{Slen: slen, Xlen: xlen}
}

// IsPaired reports whether records carry a secondary sequence.
func (h Header) IsPaired() bool {
	return h.Xlen > 0
}

// RecordSize returns the constant on-disk record size in bytes.
func (h Header) RecordSize() uint64 {
	return binseq.RecordSize(h.Slen, h.Xlen)
}

func (h Header) validate() error {
	if h.Slen == 0 {
		return InvalidHeaderError{Field: "slen", Reason: "must be > 0"}
	}
	return nil
}

// ParseHeader parses and validates a header from the first SizeHeader
// bytes of buf.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < SizeHeader {
		return Header{}, InvalidHeaderError{Field: "size", Reason: fmt.Sprintf("%d bytes, need %d", len(buf), SizeHeader)}
	}
	if le.Uint32(buf[0:4]) != Magic {
		return Header{}, ErrBadMagic
	}
	if buf[4] != Format {
		return Header{}, ErrUnsupportedVersion
	}
	h := Header{
		Slen: le.Uint32(buf[5:9]),
		Xlen: le.Uint32(buf[9:13]),
	}
	if err := h.validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

// ReadHeader reads and validates a header from r.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [SizeHeader]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	return ParseHeader(buf[:])
}

// WriteTo writes the 32-byte header to w.
func (h Header) WriteTo(w io.Writer) error {
	if err := h.validate(); err != nil {
		return err
	}
	var buf [SizeHeader]byte
	le.PutUint32(buf[0:4], Magic)
	buf[4] = Format
	le.PutUint32(buf[5:9], h.Slen)
	le.PutUint32(buf[9:13], h.Xlen)
	_, err := w.Write(buf[:])
	return err
}
