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

package binseq

import (
	"fmt"
	"math"
)

// IndexOverflowError means a record index exceeds the addressable range
// for the file's record size.
type IndexOverflowError struct {
	Index uint64
}

func (e IndexOverflowError) Error() string {
	return fmt.Sprintf("binseq: record index overflows offset arithmetic: %d", e.Index)
}

// SeqLimbs returns the number of 64-bit limbs needed to hold n bases,
// i.e. ceil(n/32).
func SeqLimbs(n uint32) uint64 {
	return (uint64(n) + 31) / 32
}

// RecordSize returns the on-disk size in bytes of one fixed-length record:
// the 8-byte flag plus 8 bytes per limb of both sequences.
func RecordSize(slen, xlen uint32) uint64 {
	return 8 * (1 + SeqLimbs(slen) + SeqLimbs(xlen))
}

// RecordOffset returns the byte offset of record index in a BQ file with
// the given sequence lengths. Indices whose offsets would overflow uint64
// fail with IndexOverflowError.
func RecordOffset(index uint64, slen, xlen uint32) (uint64, error) {
	size := RecordSize(slen, xlen)
	if index > (math.MaxUint64-SizeHeader)/size {
		return 0, IndexOverflowError{Index: index}
	}
	return SizeHeader + index*size, nil
}
