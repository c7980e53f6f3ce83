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

package bq

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/EricLBuehler/binseq/binseq"
	"github.com/EricLBuehler/binseq/binseq/twobit"
)

func randSeq(rng *rand.Rand, n int) []byte {
	bases := []byte("ACGT")
	s := make([]byte, n)
	for i := range s {
		s[i] = bases[rng.Intn(4)]
	}
	return s
}

func TestEmptyFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "empty.bq")

	w, err := NewWriter(file, NewHeader(50))
	if err != nil {
		t.Error(err)
		return
	}
	if err = w.Finalize(); err != nil {
		t.Error(err)
		return
	}

	fi, err := os.Stat(file)
	if err != nil {
		t.Error(err)
		return
	}
	if fi.Size() != SizeHeader {
		t.Errorf("expected %d-byte file, got %d", SizeHeader, fi.Size())
	}

	r, err := Open(file)
	if err != nil {
		t.Error(err)
		return
	}
	defer r.Close()
	if r.NumRecords() != 0 {
		t.Errorf("expected 0 records, got %d", r.NumRecords())
	}
	if _, ok := r.Iter().Next(); ok {
		t.Error("expected no records from iterator")
	}
}

func TestSingleLimbRecord(t *testing.T) {
	file := filepath.Join(t.TempDir(), "t.bq")

	w, err := NewWriter(file, NewHeader(4))
	if err != nil {
		t.Error(err)
		return
	}
	if _, err = w.Write(0, []byte("ACGT")); err != nil {
		t.Error(err)
		return
	}
	if err = w.Finalize(); err != nil {
		t.Error(err)
		return
	}

	// on disk: 32-byte header, 8-byte flag, one limb whose low byte is 0xE4
	raw, err := os.ReadFile(file)
	if err != nil {
		t.Error(err)
		return
	}
	if len(raw) != 48 {
		t.Errorf("expected 48-byte file, got %d", len(raw))
		return
	}
	if raw[40] != 0xE4 {
		t.Errorf("expected sequence byte 0xE4, got %#x", raw[40])
	}

	r, err := Open(file)
	if err != nil {
		t.Error(err)
		return
	}
	defer r.Close()
	rec, err := r.Get(0)
	if err != nil {
		t.Error(err)
		return
	}
	if rec.Flag() != 0 {
		t.Errorf("expected flag 0, got %d", rec.Flag())
	}
	if s := rec.DecodeS(nil); !bytes.Equal(s, []byte("ACGT")) {
		t.Errorf("expected ACGT, got %s", s)
	}
}

func TestNonAlignedLength(t *testing.T) {
	file := filepath.Join(t.TempDir(), "t.bq")
	rng := rand.New(rand.NewSource(1))
	seq := randSeq(rng, 33)

	w, err := NewWriter(file, NewHeader(33))
	if err != nil {
		t.Error(err)
		return
	}
	if _, err = w.Write(7, seq); err != nil {
		t.Error(err)
		return
	}
	if err = w.Finalize(); err != nil {
		t.Error(err)
		return
	}

	r, err := Open(file)
	if err != nil {
		t.Error(err)
		return
	}
	defer r.Close()

	if r.h.RecordSize() != 24 {
		t.Errorf("expected record size 24, got %d", r.h.RecordSize())
	}
	rec, err := r.Get(0)
	if err != nil {
		t.Error(err)
		return
	}
	limbs := rec.Sequence()
	if len(limbs) != 2 {
		t.Errorf("expected 2 limbs, got %d", len(limbs))
		return
	}
	if limbs[1]>>2 != 0 {
		t.Errorf("expected top 62 bits of second limb zero, got %#x", limbs[1])
	}
	if err = twobit.CheckPadding(limbs, 33); err != nil {
		t.Error(err)
	}
	if s := rec.DecodeS(nil); !bytes.Equal(s, seq) {
		t.Errorf("expected %s, got %s", seq, s)
	}
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for _, slen := range []uint32{1, 10, 32, 33, 50, 64, 100, 1000} {
		for _, n := range []int{1, 10, 32, 100, 256} {
			file := filepath.Join(t.TempDir(), "t.bq")

			w, err := NewWriter(file, NewHeader(slen))
			if err != nil {
				t.Error(err)
				return
			}
			seqs := make([][]byte, n)
			for i := range seqs {
				seqs[i] = randSeq(rng, int(slen))
				if _, err = w.Write(uint64(i), seqs[i]); err != nil {
					t.Error(err)
					return
				}
			}
			if err = w.Finalize(); err != nil {
				t.Error(err)
				return
			}

			fi, _ := os.Stat(file)
			if uint64(fi.Size()) != ExpectedFileSize(uint64(n), slen, 0) {
				t.Errorf("slen=%d n=%d: unexpected file size %d", slen, n, fi.Size())
				return
			}

			r, err := Open(file)
			if err != nil {
				t.Error(err)
				return
			}
			if r.NumRecords() != uint64(n) {
				t.Errorf("expected %d records, got %d", n, r.NumRecords())
				r.Close()
				return
			}
			it := r.Iter()
			var i int
			for rec, ok := it.Next(); ok; rec, ok = it.Next() {
				if rec.Flag() != uint64(i) {
					t.Errorf("record %d: flag %d", i, rec.Flag())
				}
				if s := rec.DecodeS(nil); !bytes.Equal(s, seqs[i]) {
					t.Errorf("record %d: expected %s, got %s", i, seqs[i], s)
				}
				i++
			}
			if i != n {
				t.Errorf("iterated %d records, expected %d", i, n)
			}
			r.Close()
			os.RemoveAll(file)
		}
	}
}

func TestPairedRoundTrip(t *testing.T) {
	file := filepath.Join(t.TempDir(), "t.bq")
	rng := rand.New(rand.NewSource(42))

	w, err := NewWriter(file, NewHeaderPaired(100, 100))
	if err != nil {
		t.Error(err)
		return
	}
	const n = 1000
	primaries := make([][]byte, n)
	secondaries := make([][]byte, n)
	for i := 0; i < n; i++ {
		primaries[i] = randSeq(rng, 100)
		secondaries[i] = randSeq(rng, 100)
		if _, err = w.WritePaired(uint64(i), primaries[i], secondaries[i]); err != nil {
			t.Error(err)
			return
		}
	}
	if err = w.Finalize(); err != nil {
		t.Error(err)
		return
	}

	r, err := Open(file)
	if err != nil {
		t.Error(err)
		return
	}
	defer r.Close()

	for i := uint64(0); i < n; i++ {
		rec, err := r.Get(i)
		if err != nil {
			t.Error(err)
			return
		}
		if !rec.IsPaired() {
			t.Error("expected paired record")
			return
		}
		if s := rec.DecodeS(nil); !bytes.Equal(s, primaries[i]) {
			t.Errorf("record %d: primary mismatch", i)
			return
		}
		if x := rec.DecodeX(nil); !bytes.Equal(x, secondaries[i]) {
			t.Errorf("record %d: secondary mismatch", i)
			return
		}
	}
}

// countProcessor counts records and checks per-partition ordering.
type countProcessor struct {
	mu      *sync.Mutex
	totals  *[]uint64
	count   uint64
	lastIdx uint64
	first   bool
	t       *testing.T
}

func (p *countProcessor) ProcessRecord(rec binseq.Record) error {
	if !p.first && rec.Index() <= p.lastIdx {
		p.t.Errorf("records out of order within partition: %d after %d", rec.Index(), p.lastIdx)
	}
	p.first = false
	p.lastIdx = rec.Index()
	p.count++
	return nil
}

func (p *countProcessor) OnBatchComplete() error {
	p.mu.Lock()
	*p.totals = append(*p.totals, p.count)
	p.mu.Unlock()
	return nil
}

func TestProcessParallel(t *testing.T) {
	file := filepath.Join(t.TempDir(), "t.bq")
	rng := rand.New(rand.NewSource(3))

	w, err := NewWriter(file, NewHeaderPaired(100, 100))
	if err != nil {
		t.Error(err)
		return
	}
	const n = 1000
	for i := 0; i < n; i++ {
		if _, err = w.WritePaired(uint64(i), randSeq(rng, 100), randSeq(rng, 100)); err != nil {
			t.Error(err)
			return
		}
	}
	if err = w.Finalize(); err != nil {
		t.Error(err)
		return
	}

	r, err := Open(file)
	if err != nil {
		t.Error(err)
		return
	}
	defer r.Close()

	for _, workers := range []int{1, 2, 4, 7, 16} {
		var mu sync.Mutex
		var totals []uint64
		stats, err := r.ProcessParallel(workers, func(tid int) binseq.ParallelProcessor {
			return &countProcessor{mu: &mu, totals: &totals, first: true, t: t}
		})
		if err != nil {
			t.Error(err)
			return
		}
		var sum uint64
		for _, c := range totals {
			sum += c
		}
		if sum != n {
			t.Errorf("workers=%d: worker counts sum to %d, expected %d", workers, sum, n)
		}
		if stats.Records != n {
			t.Errorf("workers=%d: stats reported %d records", workers, stats.Records)
		}
	}
}

type failingProcessor struct {
	n uint64
}

func (p *failingProcessor) ProcessRecord(rec binseq.Record) error {
	p.n++
	if rec.Index() == 3 {
		return errors.New("boom")
	}
	return nil
}

func (p *failingProcessor) OnBatchComplete() error { return nil }

func TestProcessParallelError(t *testing.T) {
	file := filepath.Join(t.TempDir(), "t.bq")
	rng := rand.New(rand.NewSource(5))

	w, err := NewWriter(file, NewHeader(50))
	if err != nil {
		t.Error(err)
		return
	}
	for i := 0; i < 100; i++ {
		if _, err = w.Write(0, randSeq(rng, 50)); err != nil {
			t.Error(err)
			return
		}
	}
	if err = w.Finalize(); err != nil {
		t.Error(err)
		return
	}

	r, err := Open(file)
	if err != nil {
		t.Error(err)
		return
	}
	defer r.Close()

	_, err = r.ProcessParallel(4, func(tid int) binseq.ParallelProcessor {
		return &failingProcessor{}
	})
	if err == nil {
		t.Error("expected processor error to surface")
		return
	}
	var perr binseq.ProcessorError
	if !errors.As(err, &perr) {
		t.Errorf("expected ProcessorError, got %v", err)
	}
}

func TestInvalidNucleotideRejection(t *testing.T) {
	file := filepath.Join(t.TempDir(), "t.bq")

	w, err := NewWriter(file, NewHeader(5))
	if err != nil {
		t.Error(err)
		return
	}
	if _, err = w.Write(0, []byte("ACGTA")); err != nil {
		t.Error(err)
		return
	}
	if err = w.Flush(); err != nil {
		t.Error(err)
		return
	}
	before, _ := os.Stat(file)

	_, err = w.Write(0, []byte("ACGNT"))
	if err == nil {
		t.Error("expected InvalidNucleotideError")
		return
	}
	var inv twobit.InvalidNucleotideError
	if !errors.As(err, &inv) {
		t.Errorf("expected InvalidNucleotideError, got %v", err)
		return
	}
	if inv.Position != 3 || inv.Byte != 'N' {
		t.Errorf("expected position 3 byte 'N', got %d %q", inv.Position, inv.Byte)
	}

	// nothing reached the file
	if err = w.Flush(); err != nil {
		t.Error(err)
		return
	}
	after, _ := os.Stat(file)
	if before.Size() != after.Size() {
		t.Errorf("file changed on rejected write: %d -> %d", before.Size(), after.Size())
	}

	if err = w.Finalize(); err != nil {
		t.Error(err)
		return
	}
}

func TestLengthMismatchSticky(t *testing.T) {
	file := filepath.Join(t.TempDir(), "t.bq")

	w, err := NewWriter(file, NewHeader(10))
	if err != nil {
		t.Error(err)
		return
	}
	_, err = w.Write(0, []byte("ACGT"))
	var lm LengthMismatchError
	if !errors.As(err, &lm) {
		t.Errorf("expected LengthMismatchError, got %v", err)
		return
	}
	if lm.Expected != 10 || lm.Got != 4 {
		t.Errorf("unexpected error fields: %+v", lm)
	}

	// the writer refuses further writes until reset
	if _, err = w.Write(0, []byte("ACGTACGTAC")); err == nil {
		t.Error("expected sticky error before Reset")
		return
	}
	w.Reset()
	if _, err = w.Write(0, []byte("ACGTACGTAC")); err != nil {
		t.Error(err)
		return
	}
	if err = w.Finalize(); err != nil {
		t.Error(err)
	}
}

func TestPolicies(t *testing.T) {
	for _, c := range []struct {
		policy binseq.Policy
		expect byte
	}{
		{binseq.SetToA, 'A'},
		{binseq.SetToC, 'C'},
		{binseq.SetToG, 'G'},
		{binseq.SetToT, 'T'},
	} {
		file := filepath.Join(t.TempDir(), "t.bq")
		w, err := NewWriterWithPolicy(file, NewHeader(10), c.policy)
		if err != nil {
			t.Error(err)
			return
		}
		written, err := w.Write(0, []byte("NNNNNNNNNN"))
		if err != nil {
			t.Error(err)
			return
		}
		if !written {
			t.Errorf("policy %s: expected record to be written", c.policy)
			return
		}
		if err = w.Finalize(); err != nil {
			t.Error(err)
			return
		}

		r, err := Open(file)
		if err != nil {
			t.Error(err)
			return
		}
		rec, err := r.Get(0)
		if err != nil {
			t.Error(err)
			r.Close()
			return
		}
		if rec.Flag()&binseq.FlagSubstituted == 0 {
			t.Errorf("policy %s: expected substitution flag", c.policy)
		}
		for _, b := range rec.DecodeS(nil) {
			if b != c.expect {
				t.Errorf("policy %s: expected all %c, got %c", c.policy, c.expect, b)
				break
			}
		}
		r.Close()
		os.RemoveAll(file)
	}

	// IgnoreSequence skips the record
	file := filepath.Join(t.TempDir(), "t.bq")
	w, err := NewWriterWithPolicy(file, NewHeader(10), binseq.IgnoreSequence)
	if err != nil {
		t.Error(err)
		return
	}
	written, err := w.Write(0, []byte("NNNNNNNNNN"))
	if err != nil {
		t.Error(err)
		return
	}
	if written {
		t.Error("IgnoreSequence: expected record to be skipped")
	}
	if w.NumRecords() != 0 {
		t.Errorf("expected 0 records, got %d", w.NumRecords())
	}
	if err = w.Finalize(); err != nil {
		t.Error(err)
	}

	// RandomDraw substitutes with valid bases
	file2 := filepath.Join(t.TempDir(), "t2.bq")
	w2, err := NewWriterWithPolicy(file2, NewHeader(10), binseq.RandomDraw)
	if err != nil {
		t.Error(err)
		return
	}
	if _, err = w2.Write(0, []byte("NNNNNNNNNN")); err != nil {
		t.Error(err)
		return
	}
	if err = w2.Finalize(); err != nil {
		t.Error(err)
		return
	}
	r2, err := Open(file2)
	if err != nil {
		t.Error(err)
		return
	}
	defer r2.Close()
	rec, err := r2.Get(0)
	if err != nil {
		t.Error(err)
		return
	}
	for _, b := range rec.DecodeS(nil) {
		if b == 'N' {
			t.Error("RandomDraw: expected no N in decoded sequence")
			break
		}
	}
}

func TestStreamRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rng := rand.New(rand.NewSource(17))

	w, err := NewStreamWriter(&buf, NewHeader(40))
	if err != nil {
		t.Error(err)
		return
	}
	seqs := make([][]byte, 25)
	for i := range seqs {
		seqs[i] = randSeq(rng, 40)
		if _, err = w.Write(uint64(i), seqs[i]); err != nil {
			t.Error(err)
			return
		}
	}
	if err = w.Flush(); err != nil {
		t.Error(err)
		return
	}

	r, err := NewStreamReader(&buf)
	if err != nil {
		t.Error(err)
		return
	}
	for i := range seqs {
		rec, err := r.Next()
		if err != nil {
			t.Error(err)
			return
		}
		if rec.Flag() != uint64(i) {
			t.Errorf("record %d: flag %d", i, rec.Flag())
		}
		if s := rec.DecodeS(nil); !bytes.Equal(s, seqs[i]) {
			t.Errorf("record %d: sequence mismatch", i)
		}
	}
	if _, err = r.Next(); err == nil {
		t.Error("expected EOF after last record")
	}
}

func TestOpenRejectsBadHeaders(t *testing.T) {
	dir := t.TempDir()

	// wrong magic
	file := filepath.Join(dir, "magic.bq")
	raw := make([]byte, SizeHeader)
	copy(raw, "nonsense")
	if err := os.WriteFile(file, raw, 0644); err != nil {
		t.Error(err)
		return
	}
	if _, err := Open(file); !errors.Is(err, ErrBadMagic) {
		t.Errorf("expected ErrBadMagic, got %v", err)
	}

	// v1 format byte
	file = filepath.Join(dir, "v1.bq")
	le.PutUint32(raw[0:4], Magic)
	raw[4] = 1
	le.PutUint32(raw[5:9], 50)
	if err := os.WriteFile(file, raw, 0644); err != nil {
		t.Error(err)
		return
	}
	if _, err := Open(file); !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("expected ErrUnsupportedVersion, got %v", err)
	}

	// slen == 0
	file = filepath.Join(dir, "slen.bq")
	raw[4] = Format
	le.PutUint32(raw[5:9], 0)
	if err := os.WriteFile(file, raw, 0644); err != nil {
		t.Error(err)
		return
	}
	var ih InvalidHeaderError
	if _, err := Open(file); !errors.As(err, &ih) {
		t.Errorf("expected InvalidHeaderError, got %v", err)
	}

	// truncated record section
	file = filepath.Join(dir, "trunc.bq")
	le.PutUint32(raw[5:9], 50)
	raw = append(raw, 1, 2, 3)
	if err := os.WriteFile(file, raw, 0644); err != nil {
		t.Error(err)
		return
	}
	if _, err := Open(file); !errors.As(err, &ih) {
		t.Errorf("expected InvalidHeaderError for divisibility failure, got %v", err)
	}
}
