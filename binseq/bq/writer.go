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
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"

	"github.com/EricLBuehler/binseq/binseq"
	"github.com/EricLBuehler/binseq/binseq/twobit"
)

// BufferSize is the size of the writer's output buffer.
var BufferSize = 65536

// ErrPairedness means Write was called on a paired file or WritePaired
// on an unpaired one.
var ErrPairedness = errors.New("bq: record pairedness does not match header")

// ErrFinalized means the writer was used after Finalize.
var ErrFinalized = errors.New("bq: writer already finalized")

// LengthMismatchError means a sequence's length does not match the
// fixed length declared in the header. The writer refuses further
// writes until Reset is called.
type LengthMismatchError struct {
	Expected uint32
	Got      int
}

func (e LengthMismatchError) Error() string {
	return fmt.Sprintf("bq: sequence length %d does not match header length %d", e.Got, e.Expected)
}

// StreamWriter emits BQ records to any io.Writer. The header is written
// on construction; records are buffered and flushed with Flush.
type StreamWriter struct {
	w      *bufio.Writer
	h      Header
	policy binseq.Policy
	rng    *rand.Rand

	sbuf []uint64
	xbuf []uint64
	ibuf []byte
	obuf []byte

	n   uint64
	err error
}

// NewStreamWriter writes the header for h to w and returns a writer with
// the default strict nucleotide policy.
func NewStreamWriter(w io.Writer, h Header) (*StreamWriter, error) {
	return NewStreamWriterWithPolicy(w, h, binseq.BreakOnInvalid)
}

// NewStreamWriterWithPolicy writes the header for h to w and returns a
// writer using policy for invalid nucleotides.
func NewStreamWriterWithPolicy(w io.Writer, h Header, policy binseq.Policy) (*StreamWriter, error) {
	bw := bufio.NewWriterSize(w, BufferSize)
	if err := h.WriteTo(bw); err != nil {
		return nil, err
	}
	return &StreamWriter{
		w:      bw,
		h:      h,
		policy: policy,
		rng:    rand.New(rand.NewSource(binseq.RngSeed)),
	}, nil
}

// Header returns the writer's file header.
func (w *StreamWriter) Header() Header { return w.h }

// NumRecords returns the number of records written so far.
func (w *StreamWriter) NumRecords() uint64 { return w.n }

// Reset clears the sticky error left by a failed write so the writer
// accepts records again. Reset does not revive a finalized writer.
func (w *StreamWriter) Reset() {
	if w.err != ErrFinalized {
		w.err = nil
	}
}

// Write encodes one unpaired record. It reports whether the record was
// written: under the IgnoreSequence policy, records containing invalid
// nucleotides are skipped with written=false and a nil error.
func (w *StreamWriter) Write(flag uint64, primary []byte) (written bool, err error) {
	if w.err != nil {
		return false, w.err
	}
	if w.h.IsPaired() {
		return false, ErrPairedness
	}
	return w.writeRecord(flag, primary, nil)
}

// WritePaired encodes one paired record.
func (w *StreamWriter) WritePaired(flag uint64, primary, secondary []byte) (written bool, err error) {
	if w.err != nil {
		return false, w.err
	}
	if !w.h.IsPaired() {
		return false, ErrPairedness
	}
	return w.writeRecord(flag, primary, secondary)
}

func (w *StreamWriter) writeRecord(flag uint64, primary, secondary []byte) (bool, error) {
	if len(primary) != int(w.h.Slen) {
		w.err = LengthMismatchError{Expected: w.h.Slen, Got: len(primary)}
		return false, w.err
	}
	if w.h.IsPaired() && len(secondary) != int(w.h.Xlen) {
		w.err = LengthMismatchError{Expected: w.h.Xlen, Got: len(secondary)}
		return false, w.err
	}

	// Both sequences are packed into scratch before any byte reaches the
	// output, so a rejected record leaves the stream unchanged.
	var substituted bool
	sbuf, ok, subst, err := w.encode(primary, w.sbuf[:0])
	if err != nil || !ok {
		w.sbuf = sbuf
		return false, err
	}
	w.sbuf = sbuf
	substituted = subst

	if w.h.IsPaired() {
		xbuf, ok, subst, err := w.encode(secondary, w.xbuf[:0])
		if err != nil || !ok {
			w.xbuf = xbuf
			return false, err
		}
		w.xbuf = xbuf
		substituted = substituted || subst
	}

	if substituted {
		flag |= binseq.FlagSubstituted
	}

	obuf := w.obuf[:0]
	obuf = le.AppendUint64(obuf, flag)
	for _, limb := range w.sbuf {
		obuf = le.AppendUint64(obuf, limb)
	}
	if w.h.IsPaired() {
		for _, limb := range w.xbuf {
			obuf = le.AppendUint64(obuf, limb)
		}
	}
	w.obuf = obuf

	if _, err := w.w.Write(obuf); err != nil {
		return false, err
	}
	w.n++
	return true, nil
}

// encode packs seq, applying the writer's nucleotide policy on invalid
// input. ok is false when the record should be skipped.
func (w *StreamWriter) encode(seq []byte, dst []uint64) (limbs []uint64, ok, substituted bool, err error) {
	limbs, err = twobit.Pack(seq, dst)
	if err == nil {
		return limbs, true, false, nil
	}
	switch w.policy {
	case binseq.BreakOnInvalid:
		return limbs, false, false, err
	case binseq.IgnoreSequence:
		return limbs, false, false, nil
	}
	w.ibuf = w.policy.Apply(seq, w.ibuf[:0], w.rng)
	limbs, err = twobit.Pack(w.ibuf, dst)
	return limbs, err == nil, true, err
}

// Flush writes all buffered records to the underlying writer.
func (w *StreamWriter) Flush() error {
	return w.w.Flush()
}

// Writer emits BQ records to a file. The writer holds the file handle
// exclusively (the file must not already exist) until Finalize.
type Writer struct {
	*StreamWriter
	file      string
	fh        *os.File
	finalized bool
}

// NewWriter creates the file and writes the header for h. The file must
// not already exist: BQ files are write-once.
func NewWriter(file string, h Header) (*Writer, error) {
	return NewWriterWithPolicy(file, h, binseq.BreakOnInvalid)
}

// NewWriterWithPolicy creates the file with the given nucleotide policy.
func NewWriterWithPolicy(file string, h Header, policy binseq.Policy) (*Writer, error) {
	fh, err := os.OpenFile(file, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	sw, err := NewStreamWriterWithPolicy(fh, h, policy)
	if err != nil {
		fh.Close()
		os.Remove(file)
		return nil, err
	}
	return &Writer{StreamWriter: sw, file: file, fh: fh}, nil
}

// Finalize flushes buffered records and closes the file. Finalize is
// idempotent; writes after Finalize fail with ErrFinalized.
func (w *Writer) Finalize() error {
	if w.finalized {
		return nil
	}
	w.finalized = true
	w.err = ErrFinalized
	if err := w.w.Flush(); err != nil {
		return err
	}
	if err := w.fh.Sync(); err != nil {
		return err
	}
	return w.fh.Close()
}

// ExpectedFileSize returns the size in bytes of a BQ file holding n
// records of the given lengths.
func ExpectedFileSize(n uint64, slen, xlen uint32) uint64 {
	return SizeHeader + n*binseq.RecordSize(slen, xlen)
}
