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

package vbq

import (
	"fmt"
	"sort"
)

// IndexMagic identifies the block index ("VBQINDEX").
const IndexMagic uint64 = 0x5845444E49514256

// SizeIndexHeader is the size of the index header (magic + block count).
const SizeIndexHeader = 16

// SizeIndexEntry is the serialized size of one BlockRange.
const SizeIndexEntry = 20

// SizeIndexTrailer is the size of the trailing index offset at the end
// of the file.
const SizeIndexTrailer = 8

// BlockRange locates one block and the span of records it holds.
type BlockRange struct {
	// Offset is the file offset of the block header.
	Offset uint64

	// FirstRecord is the index of the block's first record.
	FirstRecord uint64

	// Records is the number of records in the block.
	Records uint32
}

// BlockIndex is the in-memory block index of a VBQ file. It is read-only
// after parse and safe for concurrent use.
type BlockIndex struct {
	ranges []BlockRange
	total  uint64
}

// NumBlocks returns the number of blocks in the file.
func (x *BlockIndex) NumBlocks() int { return len(x.ranges) }

// NumRecords returns the total number of records in the file.
func (x *BlockIndex) NumRecords() uint64 { return x.total }

// Ranges returns the index entries in file order. The slice is shared;
// callers must not modify it.
func (x *BlockIndex) Ranges() []BlockRange { return x.ranges }

// FindBlock returns the position of the block containing record rec.
// rec must be < NumRecords().
func (x *BlockIndex) FindBlock(rec uint64) int {
	// first block whose span ends beyond rec
	return sort.Search(len(x.ranges), func(i int) bool {
		r := x.ranges[i]
		return r.FirstRecord+uint64(r.Records) > rec
	})
}

// appendTo appends the serialized index to buf: the index header, one
// entry per block, and the trailing offset off.
func (x *BlockIndex) appendTo(buf []byte, off uint64) []byte {
	buf = le.AppendUint64(buf, IndexMagic)
	buf = le.AppendUint64(buf, uint64(len(x.ranges)))
	for _, r := range x.ranges {
		buf = le.AppendUint64(buf, r.Offset)
		buf = le.AppendUint64(buf, r.FirstRecord)
		buf = le.AppendUint32(buf, r.Records)
	}
	return le.AppendUint64(buf, off)
}

// parseIndex parses and validates the block index of the mapped file.
// off is the index offset recorded in the file header; the index runs
// from off to the end of the file, whose last 8 bytes must repeat off.
func parseIndex(file []byte, off uint64) (*BlockIndex, error) {
	size := uint64(len(file))
	if off < SizeHeader || off+SizeIndexHeader+SizeIndexTrailer > size {
		return nil, InvalidHeaderError{Field: "index offset", Reason: fmt.Sprintf("%d out of range for %d-byte file", off, size)}
	}
	trailer := le.Uint64(file[size-SizeIndexTrailer:])
	if trailer != off {
		return nil, InvalidHeaderError{Field: "index trailer", Reason: fmt.Sprintf("trailing offset %d does not match header offset %d", trailer, off)}
	}

	buf := file[off : size-SizeIndexTrailer]
	if le.Uint64(buf[0:8]) != IndexMagic {
		return nil, InvalidHeaderError{Field: "index magic", Reason: "not a block index"}
	}
	n := le.Uint64(buf[8:16])
	if uint64(len(buf)-SizeIndexHeader) != n*SizeIndexEntry {
		return nil, InvalidHeaderError{Field: "index", Reason: fmt.Sprintf("%d entries do not fit %d index bytes", n, len(buf)-SizeIndexHeader)}
	}

	x := &BlockIndex{ranges: make([]BlockRange, 0, n)}
	pos := SizeIndexHeader
	var prevEnd uint64 = SizeHeader
	for i := uint64(0); i < n; i++ {
		r := BlockRange{
			Offset:      le.Uint64(buf[pos : pos+8]),
			FirstRecord: le.Uint64(buf[pos+8 : pos+16]),
			Records:     le.Uint32(buf[pos+16 : pos+20]),
		}
		pos += SizeIndexEntry
		if r.Offset < prevEnd {
			return nil, InvalidHeaderError{Field: "index", Reason: fmt.Sprintf("block %d offset %d overlaps previous block", i, r.Offset)}
		}
		if r.Offset+SizeBlockHeader > off {
			return nil, InvalidHeaderError{Field: "index", Reason: fmt.Sprintf("block %d offset %d beyond index", i, r.Offset)}
		}
		if r.FirstRecord != x.total {
			return nil, InvalidHeaderError{Field: "index", Reason: fmt.Sprintf("block %d first record %d, expected %d", i, r.FirstRecord, x.total)}
		}
		if r.Records == 0 {
			return nil, InvalidHeaderError{Field: "index", Reason: fmt.Sprintf("block %d is empty", i)}
		}
		x.total += uint64(r.Records)
		prevEnd = r.Offset + SizeBlockHeader
		x.ranges = append(x.ranges, r)
	}
	return x, nil
}
