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

// Package twobit packs DNA sequences into 64-bit limbs, two bits per base.
//
// Encoding: A=00, C=01, G=10, T=11. The base at sequence index i occupies
// bits [2*(i%32), 2*(i%32)+2) of limb i/32, so limb k holds bases
// 32k..32k+31. A sequence of n bases packs into exactly ceil(n/32) limbs;
// unused high bits of the final limb are zero.
package twobit

import (
	"errors"
	"fmt"
)

// BasesPerLimb is the number of nucleotides held by one 64-bit limb.
const BasesPerLimb = 32

// ErrCorruptPadding means the unused high bits of a sequence's final limb
// are nonzero. Writers always zero them, so nonzero padding is corruption.
var ErrCorruptPadding = errors.New("twobit: nonzero padding bits in final limb")

// InvalidNucleotideError means a byte outside {A, C, G, T} was found
// while packing.
type InvalidNucleotideError struct {
	Position int
	Byte     byte
}

func (e InvalidNucleotideError) Error() string {
	return fmt.Sprintf("twobit: invalid nucleotide %q at position %d", e.Byte, e.Position)
}

// 0xff marks bytes outside the alphabet. Only upper-case A/C/G/T are
// valid; lower-case, N, U and IUPAC codes are rejected.
var base2bit = func() (t [256]uint8) {
	for i := range t {
		t[i] = 0xff
	}
	t['A'] = 0
	t['C'] = 1
	t['G'] = 2
	t['T'] = 3
	return
}()

var bit2base = [4]byte{'A', 'C', 'G', 'T'}

// Limbs returns the number of limbs needed for n bases.
func Limbs(n int) int {
	return (n + BasesPerLimb - 1) / BasesPerLimb
}

// Pack appends the 2-bit encoding of seq to dst and returns the extended
// slice. It fails with InvalidNucleotideError on the first byte outside
// {A, C, G, T}; dst is returned unextended in that case.
func Pack(seq []byte, dst []uint64) ([]uint64, error) {
	base := len(dst)
	var limb uint64
	var shift uint
	for i, b := range seq {
		code := base2bit[b]
		if code == 0xff {
			return dst[:base], InvalidNucleotideError{Position: i, Byte: b}
		}
		limb |= uint64(code) << shift
		shift += 2
		if shift == 64 {
			dst = append(dst, limb)
			limb = 0
			shift = 0
		}
	}
	if shift > 0 {
		dst = append(dst, limb)
	}
	return dst, nil
}

// Unpack appends the ASCII bases of the first n nucleotides of limbs to
// dst and returns the extended slice. Unpack is total: it does not
// inspect padding bits (see CheckPadding).
func Unpack(limbs []uint64, n int, dst []byte) []byte {
	full := n / BasesPerLimb
	for i := 0; i < full; i++ {
		limb := limbs[i]
		for k := 0; k < BasesPerLimb; k++ {
			dst = append(dst, bit2base[limb&3])
			limb >>= 2
		}
	}
	if rem := n % BasesPerLimb; rem > 0 {
		limb := limbs[full]
		for k := 0; k < rem; k++ {
			dst = append(dst, bit2base[limb&3])
			limb >>= 2
		}
	}
	return dst
}

// CheckPadding verifies that the unused high bits of the final limb of an
// n-base sequence are zero, and that the limb count matches exactly
// ceil(n/32).
func CheckPadding(limbs []uint64, n int) error {
	if len(limbs) != Limbs(n) {
		return ErrCorruptPadding
	}
	rem := n % BasesPerLimb
	if rem == 0 || len(limbs) == 0 {
		return nil
	}
	if limbs[len(limbs)-1]>>(2*uint(rem)) != 0 {
		return ErrCorruptPadding
	}
	return nil
}
