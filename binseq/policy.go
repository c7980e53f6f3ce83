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

import "math/rand"

// RngSeed seeds the random number generator used by the RandomDraw policy,
// so repeated encodes of the same input produce the same file.
const RngSeed int64 = 42

// FlagSubstituted is set in a record's flag word by writers that corrected
// invalid nucleotides before encoding (any policy other than BreakOnInvalid
// and IgnoreSequence).
const FlagSubstituted uint64 = 1 << 63

// Policy selects how writers handle nucleotides outside {A, C, G, T}.
//
// The zero value is BreakOnInvalid: writers reject the record with an
// InvalidNucleotideError and write nothing.
type Policy uint8

const (
	// BreakOnInvalid fails the write with an error (default).
	BreakOnInvalid Policy = iota

	// IgnoreSequence silently skips records containing invalid nucleotides.
	IgnoreSequence

	// RandomDraw replaces invalid nucleotides with random bases drawn from
	// a generator seeded with RngSeed.
	RandomDraw

	// SetToA replaces invalid nucleotides with 'A'.
	SetToA

	// SetToC replaces invalid nucleotides with 'C'.
	SetToC

	// SetToG replaces invalid nucleotides with 'G'.
	SetToG

	// SetToT replaces invalid nucleotides with 'T'.
	SetToT
)

var policyNames = []string{"break", "ignore", "random", "A", "C", "G", "T"}

func (p Policy) String() string {
	if int(p) < len(policyNames) {
		return policyNames[p]
	}
	return "unknown"
}

var drawBases = [4]byte{'A', 'C', 'G', 'T'}

// Apply appends a corrected copy of seq to buf and returns the extended
// slice. Invalid nucleotides are replaced according to the policy; valid
// bases pass through unchanged. Apply must only be called for the
// substituting policies (RandomDraw, SetToA..SetToT).
func (p Policy) Apply(seq []byte, buf []byte, rng *rand.Rand) []byte {
	var repl byte
	switch p {
	case SetToA:
		repl = 'A'
	case SetToC:
		repl = 'C'
	case SetToG:
		repl = 'G'
	case SetToT:
		repl = 'T'
	}
	for _, b := range seq {
		switch b {
		case 'A', 'C', 'G', 'T':
			buf = append(buf, b)
		default:
			if p == RandomDraw {
				buf = append(buf, drawBases[rng.Intn(4)])
			} else {
				buf = append(buf, repl)
			}
		}
	}
	return buf
}
