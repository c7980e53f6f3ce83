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
	"fmt"
	"io"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sync/errgroup"

	"github.com/EricLBuehler/binseq/binseq"
	"github.com/EricLBuehler/binseq/binseq/mmap"
	"github.com/EricLBuehler/binseq/binseq/twobit"
)

// limbsOf reinterprets b as little-endian 64-bit limbs without copying.
// All record offsets are multiples of 8 from the page-aligned mapping,
// so the cast is always aligned. Big-endian hosts must byteswap instead.
func limbsOf(b []byte) []uint64 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&b[0])), len(b)/8)
}

// RecordView is a borrowed view of one BQ record. The packed sequence
// slices reference the reader's mapping: a view must not be used after
// the reader is closed, and views yielded by StreamReader.Next are
// invalidated by the following Next call.
type RecordView struct {
	flag  uint64
	index uint64
	slen  uint32
	xlen  uint32
	s     []uint64
	x     []uint64
}

// Flag returns the 8-byte metadata field.
func (v RecordView) Flag() uint64 { return v.flag }

// Index returns the record's position in the file.
func (v RecordView) Index() uint64 { return v.index }

// Slen returns the primary sequence length in bases.
func (v RecordView) Slen() uint32 { return v.slen }

// Xlen returns the secondary sequence length in bases.
func (v RecordView) Xlen() uint32 { return v.xlen }

// Sequence returns the packed primary sequence limbs.
func (v RecordView) Sequence() []uint64 { return v.s }

// SequenceX returns the packed secondary sequence limbs, nil when unpaired.
func (v RecordView) SequenceX() []uint64 { return v.x }

// Quality returns nil: BQ files carry no quality scores.
func (v RecordView) Quality() []byte { return nil }

// QualityX returns nil: BQ files carry no quality scores.
func (v RecordView) QualityX() []byte { return nil }

// Name returns nil: BQ files carry no record names.
func (v RecordView) Name() []byte { return nil }

// NameX returns nil: BQ files carry no record names.
func (v RecordView) NameX() []byte { return nil }

// IsPaired reports whether the record has a secondary sequence.
func (v RecordView) IsPaired() bool { return v.xlen > 0 }

// HasQuality returns false: BQ files carry no quality scores.
func (v RecordView) HasQuality() bool { return false }

// DecodeS appends the ASCII primary sequence to dst.
func (v RecordView) DecodeS(dst []byte) []byte {
	return twobit.Unpack(v.s, int(v.slen), dst)
}

// DecodeX appends the ASCII secondary sequence to dst. For unpaired
// records dst is returned unchanged.
func (v RecordView) DecodeX(dst []byte) []byte {
	if v.xlen == 0 {
		return dst
	}
	return twobit.Unpack(v.x, int(v.xlen), dst)
}

// Reader provides O(1) random access over a memory-mapped BQ file.
// A Reader is safe for concurrent use: all state is read-only after Open.
type Reader struct {
	path    string
	data    *mmap.Data
	h       Header
	recSize uint64
	slimbs  int
	xlimbs  int
	n       uint64
}

// Open maps the BQ file at path and validates its header and size
// invariant.
func Open(path string) (*Reader, error) {
	data, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	h, err := ParseHeader(data.Bytes())
	if err != nil {
		data.Close()
		return nil, err
	}
	recSize := h.RecordSize()
	rest := uint64(data.Len()) - SizeHeader
	if rest%recSize != 0 {
		data.Close()
		return nil, InvalidHeaderError{
			Field:  "size",
			Reason: fmt.Sprintf("%d payload bytes not divisible by record size %d", rest, recSize),
		}
	}
	return &Reader{
		path:    path,
		data:    data,
		h:       h,
		recSize: recSize,
		slimbs:  int(binseq.SeqLimbs(h.Slen)),
		xlimbs:  int(binseq.SeqLimbs(h.Xlen)),
		n:       rest / recSize,
	}, nil
}

// Close releases the mapping. Views obtained from the reader are invalid
// afterwards.
func (r *Reader) Close() error {
	return r.data.Close()
}

// Header returns the file header.
func (r *Reader) Header() Header { return r.h }

// NumRecords returns the number of records in the file.
func (r *Reader) NumRecords() uint64 { return r.n }

// Path returns the path the reader was opened from.
func (r *Reader) Path() string { return r.path }

// Get returns the record at index i.
func (r *Reader) Get(i uint64) (RecordView, error) {
	if i >= r.n {
		return RecordView{}, fmt.Errorf("bq: record index %d out of range [0, %d)", i, r.n)
	}
	off, err := binseq.RecordOffset(i, r.h.Slen, r.h.Xlen)
	if err != nil {
		return RecordView{}, err
	}
	return r.view(off, i), nil
}

// view builds a record view at a pre-validated offset.
func (r *Reader) view(off uint64, i uint64) RecordView {
	b := r.data.Bytes()[off : off+r.recSize]
	v := RecordView{
		flag:  le.Uint64(b[0:8]),
		index: i,
		slen:  r.h.Slen,
		xlen:  r.h.Xlen,
		s:     limbsOf(b[8 : 8+8*r.slimbs]),
	}
	if r.xlimbs > 0 {
		v.x = limbsOf(b[8+8*r.slimbs:])
	}
	return v
}

// Iter returns an iterator over all records in file order.
func (r *Reader) Iter() *Iter {
	return &Iter{r: r}
}

// Iter iterates the records of a Reader in file order.
type Iter struct {
	r *Reader
	i uint64
}

// Next returns the next record view. ok is false when the file is
// exhausted.
func (it *Iter) Next() (v RecordView, ok bool) {
	if it.i >= it.r.n {
		return RecordView{}, false
	}
	off := SizeHeader + it.i*it.r.recSize
	v = it.r.view(off, it.i)
	it.i++
	return v, true
}

// Reset rewinds the iterator to the first record.
func (it *Iter) Reset() { it.i = 0 }

// ProcessParallel divides the record range across workers goroutines and
// drives one processor per worker over its contiguous partition. Within
// a partition records are delivered in ascending file order; across
// partitions no order is guaranteed. The first processor error cancels
// the remaining work cooperatively and is returned after all workers
// have drained.
func (r *Reader) ProcessParallel(workers int, factory binseq.ProcessorFactory) (binseq.Stats, error) {
	ranges := binseq.PartitionRanges(r.n, workers)
	var canceled atomic.Bool
	var delivered atomic.Uint64
	var g errgroup.Group
	for tid, rg := range ranges {
		proc := factory(tid)
		start, end := rg[0], rg[1]
		g.Go(func() error {
			var count uint64
			defer func() { delivered.Add(count) }()
			off := SizeHeader + start*r.recSize
			for i := start; i < end; i++ {
				if canceled.Load() {
					return nil
				}
				if err := proc.ProcessRecord(r.view(off, i)); err != nil {
					canceled.Store(true)
					return binseq.ProcessorError{Inner: err}
				}
				count++
				off += r.recSize
			}
			if err := proc.OnBatchComplete(); err != nil {
				canceled.Store(true)
				return binseq.ProcessorError{Inner: err}
			}
			return nil
		})
	}
	err := g.Wait()
	return binseq.Stats{Records: delivered.Load(), Workers: len(ranges)}, err
}

// StreamReader iterates BQ records from a non-seekable stream. It is not
// restartable; reopen the stream to iterate again.
type StreamReader struct {
	r    *bufio.Reader
	h    Header
	size int
	buf  []byte
	idx  uint64
}

// NewStreamReader reads and validates the header from r and returns a
// sequential reader over the following records.
func NewStreamReader(r io.Reader) (*StreamReader, error) {
	br := bufio.NewReaderSize(r, 1<<16)
	h, err := ReadHeader(br)
	if err != nil {
		return nil, err
	}
	return &StreamReader{
		r:    br,
		h:    h,
		size: int(h.RecordSize()),
		buf:  make([]byte, h.RecordSize()),
	}, nil
}

// Header returns the stream's file header.
func (s *StreamReader) Header() Header { return s.h }

// Next returns the next record. The view borrows the reader's internal
// buffer and is invalidated by the following call. io.EOF signals a
// clean end of stream; a record cut short fails with
// io.ErrUnexpectedEOF.
func (s *StreamReader) Next() (RecordView, error) {
	if _, err := io.ReadFull(s.r, s.buf); err != nil {
		if err == io.ErrUnexpectedEOF {
			return RecordView{}, fmt.Errorf("bq: truncated record %d: %w", s.idx, err)
		}
		return RecordView{}, err
	}
	slimbs := int(binseq.SeqLimbs(s.h.Slen))
	v := RecordView{
		flag:  le.Uint64(s.buf[0:8]),
		index: s.idx,
		slen:  s.h.Slen,
		xlen:  s.h.Xlen,
		s:     limbsOf(s.buf[8 : 8+8*slimbs]),
	}
	if s.h.Xlen > 0 {
		v.x = limbsOf(s.buf[8+8*slimbs:])
	}
	s.idx++
	return v, nil
}
