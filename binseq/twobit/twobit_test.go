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

package twobit

import (
	"bytes"
	"errors"
	"testing"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	_seq := []byte("ACTAGACGACGTACGCGTACGTAGTACGATGCTCGAACGTACGTACGTACGTACGTACGTACGTACGT")
	for n := 1; n <= len(_seq); n++ {
		s := _seq[:n]
		limbs, err := Pack(s, nil)
		if err != nil {
			t.Error(err)
			return
		}
		if len(limbs) != Limbs(n) {
			t.Errorf("n=%d: expected %d limbs, got %d", n, Limbs(n), len(limbs))
			return
		}
		s2 := Unpack(limbs, n, nil)
		if !bytes.Equal(s, s2) {
			t.Errorf("n=%d: expected: %s, results: %s", n, s, s2)
			return
		}
	}
}

func TestPackBitLayout(t *testing.T) {
	// A=00, C=01, G=10, T=11 packed little-endian: "ACGT" -> 11 10 01 00 = 0xE4
	limbs, err := Pack([]byte("ACGT"), nil)
	if err != nil {
		t.Error(err)
		return
	}
	if len(limbs) != 1 {
		t.Errorf("expected 1 limb, got %d", len(limbs))
		return
	}
	if limbs[0] != 0xE4 {
		t.Errorf("expected limb 0xE4, got %#x", limbs[0])
	}
}

func TestPackPaddingIsZero(t *testing.T) {
	seq := bytes.Repeat([]byte("ACGT"), 9)[:33] // 33 bases, 2 limbs
	limbs, err := Pack(seq, nil)
	if err != nil {
		t.Error(err)
		return
	}
	if len(limbs) != 2 {
		t.Errorf("expected 2 limbs, got %d", len(limbs))
		return
	}
	if limbs[1]>>2 != 0 {
		t.Errorf("expected zero padding in final limb, got %#x", limbs[1])
	}
	if err = CheckPadding(limbs, 33); err != nil {
		t.Error(err)
	}
}

func TestPackInvalidNucleotide(t *testing.T) {
	for _, c := range []struct {
		seq []byte
		pos int
		b   byte
	}{
		{[]byte("ACGNT"), 3, 'N'},
		{[]byte("acgt"), 0, 'a'},
		{[]byte("ACGU"), 3, 'U'},
	} {
		dst, err := Pack(c.seq, nil)
		if err == nil {
			t.Errorf("expected error for %q", c.seq)
			return
		}
		var inv InvalidNucleotideError
		if !errors.As(err, &inv) {
			t.Errorf("expected InvalidNucleotideError, got %v", err)
			return
		}
		if inv.Position != c.pos || inv.Byte != c.b {
			t.Errorf("expected position %d byte %q, got %d %q", c.pos, c.b, inv.Position, inv.Byte)
		}
		if len(dst) != 0 {
			t.Errorf("expected no limbs on error, got %d", len(dst))
		}
	}
}

func TestCheckPadding(t *testing.T) {
	limbs, err := Pack([]byte("ACGT"), nil)
	if err != nil {
		t.Error(err)
		return
	}
	if err = CheckPadding(limbs, 4); err != nil {
		t.Error(err)
	}

	// corrupt the padding
	bad := []uint64{limbs[0] | 1<<20}
	if err = CheckPadding(bad, 4); err == nil {
		t.Error("expected padding error for corrupted limb")
	}

	// limb count mismatch
	if err = CheckPadding([]uint64{0, 0}, 4); err == nil {
		t.Error("expected padding error for limb count mismatch")
	}
}
