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

// Package vbq reads and writes VBQ files: the variable-length BINSEQ
// flavor with optional quality scores and record names.
//
// A VBQ file is a 32-byte header, a run of blocks, a block index, and a
// trailing 8-byte offset of that index. Each block is a 32-byte block
// header followed by an optionally zstd-compressed payload holding a run
// of records. The index lists every block's file offset and record span
// and is the authoritative record locator; random access binary-searches
// the index, decompresses one block into reader-local scratch, and walks
// to the target record.
//
// File header layout (little-endian):
//
//	Offset  Size  Field
//	0       4     magic (0x56534551)
//	4       1     format version (1)
//	5       1     flags: bit0 quality, bit1 names, bit2 paired
//	6       1     compression codec: 0 none, 1 zstd
//	7       1     reserved, zero
//	8       8     file offset of the block index (patched at finalize)
//	16      16    reserved, zero
//
// Record layout inside a (decompressed) block payload:
//
//	flag u64, slen u32, [xlen u32 if paired],
//	primary limbs, [primary quality, slen bytes], [name_len u16 + name],
//	[secondary limbs, quality, name, same order, if paired]
package vbq

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/EricLBuehler/binseq/binseq"
)

var le = binary.LittleEndian

// Magic identifies VBQ files.
const Magic uint32 = 0x56534551

// Format is the supported format version.
const Format uint8 = 1

// SizeHeader is the size of the VBQ file header in bytes.
const SizeHeader = binseq.SizeHeader

// BlockMagic identifies block headers ("BLOCKSEQ").
const BlockMagic uint64 = 0x5145534B434F4C42

// SizeBlockHeader is the size of a block header in bytes.
const SizeBlockHeader = 32

// offsetIndexOffset is the byte position of the index offset field,
// patched in place at finalize.
const offsetIndexOffset = 8

const (
	flagQuality = 1 << 0
	flagNames   = 1 << 1
	flagPaired  = 1 << 2
)

// Codec identifies the per-block compression algorithm.
type Codec uint8

const (
	// CodecNone stores block payloads uncompressed.
	CodecNone Codec = 0

	// CodecZstd compresses each block payload with zstd.
	CodecZstd Codec = 1
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	}
	return fmt.Sprintf("unknown(%d)", uint8(c))
}

// ErrBadMagic means the first four bytes are not the VBQ magic number.
var ErrBadMagic = errors.New("vbq: invalid magic number")

// ErrUnsupportedVersion means the magic matched but the format version
// byte is not supported by this implementation.
var ErrUnsupportedVersion = errors.New("vbq: unsupported format version")

// UnsupportedCodecError means the header names a compression codec this
// implementation does not know.
type UnsupportedCodecError struct {
	Codec uint8
}

func (e UnsupportedCodecError) Error() string {
	return fmt.Sprintf("vbq: unsupported compression codec id %d", e.Codec)
}

// InvalidHeaderError means the file or index header parsed but is
// self-inconsistent.
type InvalidHeaderError struct {
	Field  string
	Reason string
}

func (e InvalidHeaderError) Error() string {
	return fmt.Sprintf("vbq: invalid header field %s: %s", e.Field, e.Reason)
}

// CorruptBlockError means a block's header or payload does not match the
// index or its own declared sizes.
type CorruptBlockError struct {
	Block  int
	Reason string
}

func (e CorruptBlockError) Error() string {
	return fmt.Sprintf("vbq: corrupt block %d: %s", e.Block, e.Reason)
}

// Header holds a VBQ file's configuration flags and the offset of its
// block index.
type Header struct {
	// Quality reports whether records carry per-base quality scores.
	Quality bool

	// Names reports whether records carry names.
	Names bool

	// Paired reports whether records carry a secondary sequence.
	Paired bool

	// Codec is the per-block compression codec.
	Codec Codec

	// IndexOffset is the file offset of the block index, 0 while the
	// file is being written.
	IndexOffset uint64
}

// ParseHeader parses and validates a file header from the first
// SizeHeader bytes of buf.
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
	flags := buf[5]
	codec := Codec(buf[6])
	switch codec {
	case CodecNone, CodecZstd:
	default:
		return Header{}, UnsupportedCodecError{Codec: uint8(codec)}
	}
	return Header{
		Quality:     flags&flagQuality != 0,
		Names:       flags&flagNames != 0,
		Paired:      flags&flagPaired != 0,
		Codec:       codec,
		IndexOffset: le.Uint64(buf[8:16]),
	}, nil
}

// WriteTo writes the 32-byte file header to w.
func (h Header) WriteTo(w io.Writer) error {
	var buf [SizeHeader]byte
	le.PutUint32(buf[0:4], Magic)
	buf[4] = Format
	var flags uint8
	if h.Quality {
		flags |= flagQuality
	}
	if h.Names {
		flags |= flagNames
	}
	if h.Paired {
		flags |= flagPaired
	}
	buf[5] = flags
	buf[6] = uint8(h.Codec)
	le.PutUint64(buf[8:16], h.IndexOffset)
	_, err := w.Write(buf[:])
	return err
}

// BlockHeader describes one block: the payload size before and after
// compression and the number of records it holds.
type BlockHeader struct {
	USize   uint64
	CSize   uint64
	Records uint32
}

// parseBlockHeader parses a block header from buf. block is the block's
// position in the index, used for error reporting.
func parseBlockHeader(buf []byte, block int) (BlockHeader, error) {
	if len(buf) < SizeBlockHeader {
		return BlockHeader{}, CorruptBlockError{Block: block, Reason: "truncated block header"}
	}
	if le.Uint64(buf[0:8]) != BlockMagic {
		return BlockHeader{}, CorruptBlockError{Block: block, Reason: "invalid block magic"}
	}
	return BlockHeader{
		USize:   le.Uint64(buf[8:16]),
		CSize:   le.Uint64(buf[16:24]),
		Records: le.Uint32(buf[24:28]),
	}, nil
}

// appendTo appends the 32-byte block header encoding to buf.
func (h BlockHeader) appendTo(buf []byte) []byte {
	buf = le.AppendUint64(buf, BlockMagic)
	buf = le.AppendUint64(buf, h.USize)
	buf = le.AppendUint64(buf, h.CSize)
	buf = le.AppendUint32(buf, h.Records)
	return append(buf, 0, 0, 0, 0)
}
