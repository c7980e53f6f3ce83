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
	"io"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"github.com/EricLBuehler/binseq/binseq"
	"github.com/EricLBuehler/binseq/binseq/mmap"
	"github.com/EricLBuehler/binseq/binseq/twobit"
)

// Record is a borrowed view of one VBQ record. Its slices reference the
// cursor's scratch buffers (or the mapping for uncompressed payloads):
// a Record is invalidated by the next record access on the same reader
// or iterator and must not cross goroutines.
type Record struct {
	flag    uint64
	index   uint64
	slen    uint32
	xlen    uint32
	s       []uint64
	x       []uint64
	qual    []byte
	xqual   []byte
	name    []byte
	xname   []byte
	paired  bool
	hasQual bool
}

// Flag returns the 8-byte metadata field.
func (r Record) Flag() uint64 { return r.flag }

// Index returns the record's position in the file.
func (r Record) Index() uint64 { return r.index }

// Slen returns the primary sequence length in bases.
func (r Record) Slen() uint32 { return r.slen }

// Xlen returns the secondary sequence length in bases.
func (r Record) Xlen() uint32 { return r.xlen }

// Sequence returns the packed primary sequence limbs.
func (r Record) Sequence() []uint64 { return r.s }

// SequenceX returns the packed secondary sequence limbs, nil when unpaired.
func (r Record) SequenceX() []uint64 { return r.x }

// Quality returns the primary quality scores, nil when the file carries
// none.
func (r Record) Quality() []byte { return r.qual }

// QualityX returns the secondary quality scores.
func (r Record) QualityX() []byte { return r.xqual }

// Name returns the record name, nil when the file carries none.
func (r Record) Name() []byte { return r.name }

// NameX returns the secondary record name.
func (r Record) NameX() []byte { return r.xname }

// IsPaired reports whether the record has a secondary sequence.
func (r Record) IsPaired() bool { return r.paired }

// HasQuality reports whether the record carries quality scores.
func (r Record) HasQuality() bool { return r.hasQual }

// DecodeS appends the ASCII primary sequence to dst.
func (r Record) DecodeS(dst []byte) []byte {
	return twobit.Unpack(r.s, int(r.slen), dst)
}

// DecodeX appends the ASCII secondary sequence to dst. For unpaired
// records dst is returned unchanged.
func (r Record) DecodeX(dst []byte) []byte {
	if !r.paired {
		return dst
	}
	return twobit.Unpack(r.x, int(r.xlen), dst)
}

// cursor is one consumer's scratch state: a decompression buffer, the
// per-record limb buffers, and the zstd decoder. Cursors are never
// shared: the reader owns one for Get/Iter and ProcessParallel gives
// each worker its own.
type cursor struct {
	data  []byte
	h     Header
	index *BlockIndex

	dec     *zstd.Decoder
	buf     []byte
	payload []byte
	block   int

	slimbs []uint64
	xlimbs []uint64
}

func (r *Reader) newCursor() (*cursor, error) {
	c := &cursor{
		data:  r.data.Bytes(),
		h:     r.h,
		index: r.index,
		block: -1,
	}
	if r.h.Codec == CodecZstd {
		var err error
		c.dec, err = zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *cursor) close() {
	if c.dec != nil {
		c.dec.Close()
	}
}

// load makes block bi's decompressed payload current. Loading the block
// that is already current is free.
func (c *cursor) load(bi int) error {
	if bi == c.block {
		return nil
	}
	rg := c.index.Ranges()[bi]
	off := rg.Offset
	bh, err := parseBlockHeader(c.data[off:], bi)
	if err != nil {
		return err
	}
	if bh.Records != rg.Records {
		return CorruptBlockError{Block: bi, Reason: fmt.Sprintf("block header says %d records, index says %d", bh.Records, rg.Records)}
	}
	start := off + SizeBlockHeader
	if start+bh.CSize > uint64(len(c.data)) {
		return CorruptBlockError{Block: bi, Reason: "payload extends past end of file"}
	}
	raw := c.data[start : start+bh.CSize]
	switch c.h.Codec {
	case CodecNone:
		if bh.CSize != bh.USize {
			return CorruptBlockError{Block: bi, Reason: "size mismatch in uncompressed block"}
		}
		c.payload = raw
	case CodecZstd:
		c.buf, err = c.dec.DecodeAll(raw, c.buf[:0])
		if err != nil {
			return CorruptBlockError{Block: bi, Reason: err.Error()}
		}
		if uint64(len(c.buf)) != bh.USize {
			return CorruptBlockError{Block: bi, Reason: fmt.Sprintf("decompressed to %d bytes, expected %d", len(c.buf), bh.USize)}
		}
		c.payload = c.buf
	}
	c.block = bi
	return nil
}

// parseAt decodes the record starting at pos in the current payload and
// returns the position past it. The returned record borrows the
// cursor's scratch.
func (c *cursor) parseAt(pos int, idx uint64) (Record, int, error) {
	rec := Record{
		index:   idx,
		paired:  c.h.Paired,
		hasQual: c.h.Quality,
	}
	p := c.payload

	need := 12
	if c.h.Paired {
		need = 16
	}
	if pos+need > len(p) {
		return Record{}, 0, c.corrupt(pos, "truncated record prefix")
	}
	rec.flag = le.Uint64(p[pos:])
	pos += 8
	rec.slen = le.Uint32(p[pos:])
	pos += 4
	if c.h.Paired {
		rec.xlen = le.Uint32(p[pos:])
		pos += 4
	}

	var err error
	c.slimbs, rec.qual, rec.name, pos, err = c.parseSide(pos, rec.slen, c.slimbs[:0])
	if err != nil {
		return Record{}, 0, err
	}
	rec.s = c.slimbs
	if c.h.Paired {
		c.xlimbs, rec.xqual, rec.xname, pos, err = c.parseSide(pos, rec.xlen, c.xlimbs[:0])
		if err != nil {
			return Record{}, 0, err
		}
		rec.x = c.xlimbs
	}
	return rec, pos, nil
}

// parseSide decodes one side's limbs, quality and name.
func (c *cursor) parseSide(pos int, n uint32, limbs []uint64) ([]uint64, []byte, []byte, int, error) {
	p := c.payload
	nl := twobit.Limbs(int(n))
	if pos+8*nl > len(p) {
		return limbs, nil, nil, 0, c.corrupt(pos, "truncated sequence")
	}
	for i := 0; i < nl; i++ {
		limbs = append(limbs, le.Uint64(p[pos:]))
		pos += 8
	}

	var qual []byte
	if c.h.Quality {
		if pos+int(n) > len(p) {
			return limbs, nil, nil, 0, c.corrupt(pos, "truncated quality")
		}
		qual = p[pos : pos+int(n)]
		pos += int(n)
	}

	var name []byte
	if c.h.Names {
		if pos+2 > len(p) {
			return limbs, nil, nil, 0, c.corrupt(pos, "truncated name length")
		}
		nameLen := int(le.Uint16(p[pos:]))
		pos += 2
		if pos+nameLen > len(p) {
			return limbs, nil, nil, 0, c.corrupt(pos, "truncated name")
		}
		name = p[pos : pos+nameLen]
		pos += nameLen
	}
	return limbs, qual, name, pos, nil
}

func (c *cursor) corrupt(pos int, reason string) error {
	return CorruptBlockError{Block: c.block, Reason: fmt.Sprintf("%s at payload offset %d", reason, pos)}
}

// Reader provides random and sequential access over a memory-mapped VBQ
// file. Get and Iter share the reader's cursor and must not be used
// concurrently; ProcessParallel gives every worker its own cursor and
// may run while the reader itself is idle.
type Reader struct {
	path  string
	data  *mmap.Data
	h     Header
	index *BlockIndex
	cur   *cursor
}

// Open maps the VBQ file at path, validates the header, and parses the
// block index from the file tail.
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
	if h.IndexOffset == 0 {
		data.Close()
		return nil, InvalidHeaderError{Field: "index offset", Reason: "zero; file was not finalized"}
	}
	index, err := parseIndex(data.Bytes(), h.IndexOffset)
	if err != nil {
		data.Close()
		return nil, err
	}
	r := &Reader{path: path, data: data, h: h, index: index}
	if r.cur, err = r.newCursor(); err != nil {
		data.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the mapping. Records obtained from the reader are
// invalid afterwards.
func (r *Reader) Close() error {
	r.cur.close()
	return r.data.Close()
}

// Header returns the file header.
func (r *Reader) Header() Header { return r.h }

// Index returns the parsed block index.
func (r *Reader) Index() *BlockIndex { return r.index }

// NumRecords returns the total number of records in the file.
func (r *Reader) NumRecords() uint64 { return r.index.NumRecords() }

// NumBlocks returns the number of blocks in the file.
func (r *Reader) NumBlocks() int { return r.index.NumBlocks() }

// Path returns the path the reader was opened from.
func (r *Reader) Path() string { return r.path }

// Get returns the record at index i. It binary-searches the block index,
// loads (and decompresses) the containing block into the reader's
// scratch, and walks to the record.
func (r *Reader) Get(i uint64) (Record, error) {
	if i >= r.index.NumRecords() {
		return Record{}, fmt.Errorf("vbq: record index %d out of range [0, %d)", i, r.index.NumRecords())
	}
	bi := r.index.FindBlock(i)
	if err := r.cur.load(bi); err != nil {
		return Record{}, err
	}
	rg := r.index.Ranges()[bi]
	pos := 0
	for idx := rg.FirstRecord; ; idx++ {
		rec, next, err := r.cur.parseAt(pos, idx)
		if err != nil {
			return Record{}, err
		}
		if idx == i {
			return rec, nil
		}
		pos = next
	}
}

// Iter returns an iterator over all records in file order.
func (r *Reader) Iter() *Iter {
	return &Iter{r: r}
}

// Iter iterates the records of a Reader in file order.
type Iter struct {
	r     *Reader
	block int
	left  uint32
	pos   int
	idx   uint64
}

// Next returns the next record, or io.EOF when the file is exhausted.
// The record is invalidated by the following call.
func (it *Iter) Next() (Record, error) {
	for it.left == 0 {
		if it.block >= it.r.index.NumBlocks() {
			return Record{}, io.EOF
		}
		rg := it.r.index.Ranges()[it.block]
		if err := it.r.cur.load(it.block); err != nil {
			return Record{}, err
		}
		it.left = rg.Records
		it.pos = 0
		it.block++
	}
	// the loaded block is it.block-1
	if err := it.r.cur.load(it.block - 1); err != nil {
		return Record{}, err
	}
	rec, next, err := it.r.cur.parseAt(it.pos, it.idx)
	if err != nil {
		return Record{}, err
	}
	it.pos = next
	it.left--
	it.idx++
	return rec, nil
}

// Reset rewinds the iterator to the first record.
func (it *Iter) Reset() {
	it.block = 0
	it.left = 0
	it.pos = 0
	it.idx = 0
}

// ProcessParallel divides the file's blocks across workers goroutines
// and drives one processor per worker over its contiguous run of whole
// blocks. Partitioning is by block, never within one: decompression
// state is per block, so splitting would force redundant decompression.
// Within a partition records are delivered in ascending file order.
// The first processor error cancels remaining work cooperatively and is
// returned after all workers have drained.
func (r *Reader) ProcessParallel(workers int, factory binseq.ProcessorFactory) (binseq.Stats, error) {
	ranges := binseq.PartitionRanges(uint64(r.index.NumBlocks()), workers)
	var canceled atomic.Bool
	var delivered atomic.Uint64
	var g errgroup.Group
	for tid, rg := range ranges {
		proc := factory(tid)
		start, end := rg[0], rg[1]
		g.Go(func() error {
			c, err := r.newCursor()
			if err != nil {
				canceled.Store(true)
				return err
			}
			defer c.close()
			var count uint64
			defer func() { delivered.Add(count) }()
			for bi := int(start); bi < int(end); bi++ {
				if err := c.load(bi); err != nil {
					canceled.Store(true)
					return err
				}
				blockRange := r.index.Ranges()[bi]
				pos := 0
				idx := blockRange.FirstRecord
				for k := uint32(0); k < blockRange.Records; k++ {
					if canceled.Load() {
						return nil
					}
					rec, next, err := c.parseAt(pos, idx)
					if err != nil {
						canceled.Store(true)
						return err
					}
					if err := proc.ProcessRecord(rec); err != nil {
						canceled.Store(true)
						return binseq.ProcessorError{Inner: err}
					}
					count++
					pos = next
					idx++
				}
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
