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

// Package binseq provides the shared types of the BINSEQ binary sequence
// container formats: the record view interface, record layout arithmetic,
// the parallel processor contract, and nucleotide correction policies.
//
// The two on-disk flavors live in subpackages:
//
//   - bq:  fixed-length records, no quality scores, O(1) random access.
//   - vbq: variable-length records, optional quality scores and names,
//     block-structured with an embedded block index.
//
// All integers are little-endian on disk. Sequences are 2-bit packed into
// 64-bit limbs (32 bases per limb), see the twobit subpackage.
package binseq

import "github.com/EricLBuehler/binseq/binseq/twobit"

// SizeHeader is the size of the fixed file header in bytes,
// shared by both the BQ and VBQ flavors.
const SizeHeader = 32

// Record is a read-only view of one sequencing record. Implementations
// borrow from the underlying file mapping or block buffer: a Record must
// not be retained after the call that yielded it returns. Copy out what
// you need to keep.
type Record interface {
	// Flag returns the 8-byte implementation-defined metadata field.
	Flag() uint64

	// Index returns the position of this record in the file (0-based).
	Index() uint64

	// Slen returns the primary sequence length in bases.
	Slen() uint32

	// Xlen returns the secondary sequence length in bases, 0 when unpaired.
	Xlen() uint32

	// Sequence returns the 2-bit packed primary sequence limbs.
	Sequence() []uint64

	// SequenceX returns the 2-bit packed secondary sequence limbs,
	// nil when the record is unpaired.
	SequenceX() []uint64

	// Quality returns the primary quality scores (Phred+33), nil when the
	// file carries no quality data.
	Quality() []byte

	// QualityX returns the secondary quality scores, nil when unpaired or
	// when the file carries no quality data.
	QualityX() []byte

	// Name returns the record name, nil when the file carries no names.
	Name() []byte

	// NameX returns the secondary record name, nil when unpaired or when
	// the file carries no names.
	NameX() []byte

	// IsPaired reports whether the record has a secondary sequence.
	IsPaired() bool

	// HasQuality reports whether the record carries quality scores.
	HasQuality() bool
}

// DecodeS appends the ASCII nucleotides of the primary sequence to dst
// and returns the extended slice.
func DecodeS(r Record, dst []byte) []byte {
	return twobit.Unpack(r.Sequence(), int(r.Slen()), dst)
}

// DecodeX appends the ASCII nucleotides of the secondary sequence to dst
// and returns the extended slice. For unpaired records dst is returned
// unchanged.
func DecodeX(r Record, dst []byte) []byte {
	if !r.IsPaired() {
		return dst
	}
	return twobit.Unpack(r.SequenceX(), int(r.Xlen()), dst)
}
