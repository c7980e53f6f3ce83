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
	"bufio"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/EricLBuehler/binseq/binseq"
	"github.com/EricLBuehler/binseq/binseq/twobit"
)

// BufferSize is the size of the writer's output buffer.
var BufferSize = 65536

// DefaultBlockBytes is the default uncompressed block size threshold.
const DefaultBlockBytes = 256 << 10

// DefaultBlockRecords is the default per-block record count cap.
const DefaultBlockRecords = 16384

// ErrFinalized means the writer was used after Finalize.
var ErrFinalized = errors.New("vbq: writer already finalized")

// ErrPairedness means a record's shape does not match the writer's
// paired configuration.
var ErrPairedness = errors.New("vbq: record pairedness does not match writer config")

// ErrUnexpectedQuality means quality scores were supplied to a writer
// not configured to store them.
var ErrUnexpectedQuality = errors.New("vbq: quality given but not enabled in writer config")

// ErrUnexpectedName means a record name was supplied to a writer not
// configured to store names.
var ErrUnexpectedName = errors.New("vbq: name given but not enabled in writer config")

// ErrNameTooLong means a record name exceeds the 65535-byte limit of
// the name length prefix.
var ErrNameTooLong = errors.New("vbq: record name longer than 65535 bytes")

// QualityLengthError means a quality string's length does not match its
// sequence.
type QualityLengthError struct {
	Expected int
	Got      int
}

func (e QualityLengthError) Error() string {
	return fmt.Sprintf("vbq: quality length %d does not match sequence length %d", e.Got, e.Expected)
}

// WriterConfig configures a VBQ writer.
type WriterConfig struct {
	// Paired stores a secondary sequence per record.
	Paired bool

	// Quality stores per-base quality scores (Phred+33).
	Quality bool

	// Names stores a name per record.
	Names bool

	// Codec is the per-block compression codec.
	Codec Codec

	// BlockBytes is the uncompressed block size threshold; a block is
	// flushed before a record would push it past this. Defaults to
	// DefaultBlockBytes.
	BlockBytes uint32

	// BlockRecords caps the number of records per block. Defaults to
	// DefaultBlockRecords.
	BlockRecords uint32

	// Policy selects how invalid nucleotides are handled. The zero
	// value rejects them.
	Policy binseq.Policy
}

// WriteRecord is one record to append. Qual (and QualX) must match the
// sequence length when quality is enabled and must be nil otherwise; Name
// (and NameX) must be nil when names are disabled, and a nil name is
// stored as empty when they are enabled. SeqX is required for paired
// writers; all secondary fields are forbidden for unpaired writers.
type WriteRecord struct {
	Flag uint64

	Seq  []byte
	Qual []byte
	Name []byte

	SeqX  []byte
	QualX []byte
	NameX []byte
}

// Writer appends records to a VBQ file, accumulating them into blocks
// and flushing each block (compressed when configured) with an index
// entry. Finalize writes the block index at the file tail and patches
// its offset into the header.
type Writer struct {
	file string
	fh   *os.File
	w    *bufio.Writer
	cfg  WriterConfig
	rng  *rand.Rand
	enc  *zstd.Encoder

	ubuf []byte // uncompressed block accumulation
	zbuf []byte // compressed block scratch
	sbuf []uint64
	xbuf []uint64
	ibuf []byte

	blockRecords uint32
	offset       uint64 // file offset of the next block
	total        uint64
	substituted  uint64

	index     BlockIndex
	err       error
	finalized bool
}

// NewWriter creates the file and writes a header for cfg. The file must
// not already exist: VBQ files are write-once.
func NewWriter(file string, cfg WriterConfig) (*Writer, error) {
	if cfg.BlockBytes == 0 {
		cfg.BlockBytes = DefaultBlockBytes
	}
	if cfg.BlockRecords == 0 {
		cfg.BlockRecords = DefaultBlockRecords
	}
	switch cfg.Codec {
	case CodecNone, CodecZstd:
	default:
		return nil, UnsupportedCodecError{Codec: uint8(cfg.Codec)}
	}

	fh, err := os.OpenFile(file, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, err
	}
	w := &Writer{
		file:   file,
		fh:     fh,
		w:      bufio.NewWriterSize(fh, BufferSize),
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(binseq.RngSeed)),
		ubuf:   make([]byte, 0, cfg.BlockBytes),
		offset: SizeHeader,
	}
	if cfg.Codec == CodecZstd {
		w.enc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			fh.Close()
			os.Remove(file)
			return nil, err
		}
	}
	h := Header{
		Quality: cfg.Quality,
		Names:   cfg.Names,
		Paired:  cfg.Paired,
		Codec:   cfg.Codec,
	}
	if err := h.WriteTo(w.w); err != nil {
		fh.Close()
		os.Remove(file)
		return nil, err
	}
	return w, nil
}

// Config returns the writer's configuration.
func (w *Writer) Config() WriterConfig { return w.cfg }

// NumRecords returns the number of records written so far.
func (w *Writer) NumRecords() uint64 { return w.total }

// NumSubstituted returns the number of written records whose sequences
// had invalid nucleotides corrected by the policy.
func (w *Writer) NumSubstituted() uint64 { return w.substituted }

// Reset clears the sticky error left by a failed write so the writer
// accepts records again. Reset does not revive a finalized writer.
func (w *Writer) Reset() {
	if w.err != ErrFinalized {
		w.err = nil
	}
}

// Write appends one unpaired record without quality or name. It reports
// whether the record was written: under the IgnoreSequence policy,
// records containing invalid nucleotides are skipped with written=false
// and a nil error.
func (w *Writer) Write(flag uint64, seq []byte) (bool, error) {
	return w.WriteRecord(WriteRecord{Flag: flag, Seq: seq})
}

// WritePaired appends one paired record without quality or names.
func (w *Writer) WritePaired(flag uint64, seq, seqX []byte) (bool, error) {
	return w.WriteRecord(WriteRecord{Flag: flag, Seq: seq, SeqX: seqX})
}

// WriteRecord validates rec against the writer configuration and
// appends it. A rejected record leaves the file unchanged.
func (w *Writer) WriteRecord(rec WriteRecord) (bool, error) {
	if w.err != nil {
		return false, w.err
	}
	if err := w.checkShape(rec); err != nil {
		w.err = err
		return false, err
	}

	// Pack everything into scratch first so rejection is side-effect free.
	var substituted bool
	sbuf, ok, subst, err := w.encode(rec.Seq, w.sbuf[:0])
	w.sbuf = sbuf
	if err != nil || !ok {
		return false, err
	}
	substituted = subst
	if w.cfg.Paired {
		xbuf, ok, subst, err := w.encode(rec.SeqX, w.xbuf[:0])
		w.xbuf = xbuf
		if err != nil || !ok {
			return false, err
		}
		substituted = substituted || subst
	}

	flag := rec.Flag
	if substituted {
		flag |= binseq.FlagSubstituted
		w.substituted++
	}

	size := w.recordSize(rec)
	if len(w.ubuf) > 0 && uint64(len(w.ubuf))+size > uint64(w.cfg.BlockBytes) {
		if err := w.flushBlock(); err != nil {
			w.err = err
			return false, err
		}
	}

	w.ubuf = le.AppendUint64(w.ubuf, flag)
	w.ubuf = le.AppendUint32(w.ubuf, uint32(len(rec.Seq)))
	if w.cfg.Paired {
		w.ubuf = le.AppendUint32(w.ubuf, uint32(len(rec.SeqX)))
	}
	w.appendSide(w.sbuf, rec.Qual, rec.Name)
	if w.cfg.Paired {
		w.appendSide(w.xbuf, rec.QualX, rec.NameX)
	}

	w.total++
	w.blockRecords++
	if w.blockRecords >= w.cfg.BlockRecords || uint64(len(w.ubuf)) >= uint64(w.cfg.BlockBytes) {
		if err := w.flushBlock(); err != nil {
			w.err = err
			return false, err
		}
	}
	return true, nil
}

func (w *Writer) checkShape(rec WriteRecord) error {
	if uint64(len(rec.Seq)) > math.MaxUint32 {
		return LengthOverflowError{Got: len(rec.Seq)}
	}
	if w.cfg.Paired {
		if rec.SeqX == nil {
			return ErrPairedness
		}
		if uint64(len(rec.SeqX)) > math.MaxUint32 {
			return LengthOverflowError{Got: len(rec.SeqX)}
		}
	} else if rec.SeqX != nil || rec.QualX != nil || rec.NameX != nil {
		return ErrPairedness
	}
	if w.cfg.Quality {
		if len(rec.Qual) != len(rec.Seq) {
			return QualityLengthError{Expected: len(rec.Seq), Got: len(rec.Qual)}
		}
		if w.cfg.Paired && len(rec.QualX) != len(rec.SeqX) {
			return QualityLengthError{Expected: len(rec.SeqX), Got: len(rec.QualX)}
		}
	} else if rec.Qual != nil || rec.QualX != nil {
		return ErrUnexpectedQuality
	}
	if w.cfg.Names {
		if len(rec.Name) > math.MaxUint16 || len(rec.NameX) > math.MaxUint16 {
			return ErrNameTooLong
		}
	} else if rec.Name != nil || rec.NameX != nil {
		return ErrUnexpectedName
	}
	return nil
}

// recordSize returns the serialized size of rec within a block.
func (w *Writer) recordSize(rec WriteRecord) uint64 {
	size := uint64(8 + 4 + 8*len(w.sbuf))
	if w.cfg.Quality {
		size += uint64(len(rec.Qual))
	}
	if w.cfg.Names {
		size += 2 + uint64(len(rec.Name))
	}
	if w.cfg.Paired {
		size += uint64(4 + 8*len(w.xbuf))
		if w.cfg.Quality {
			size += uint64(len(rec.QualX))
		}
		if w.cfg.Names {
			size += 2 + uint64(len(rec.NameX))
		}
	}
	return size
}

// appendSide appends one side's limbs, quality and name to the block
// buffer, honoring the writer configuration.
func (w *Writer) appendSide(limbs []uint64, qual, name []byte) {
	for _, limb := range limbs {
		w.ubuf = le.AppendUint64(w.ubuf, limb)
	}
	if w.cfg.Quality {
		w.ubuf = append(w.ubuf, qual...)
	}
	if w.cfg.Names {
		w.ubuf = le.AppendUint16(w.ubuf, uint16(len(name)))
		w.ubuf = append(w.ubuf, name...)
	}
}

// encode packs seq, applying the writer's nucleotide policy on invalid
// input. ok is false when the record should be skipped.
func (w *Writer) encode(seq []byte, dst []uint64) (limbs []uint64, ok, substituted bool, err error) {
	limbs, err = twobit.Pack(seq, dst)
	if err == nil {
		return limbs, true, false, nil
	}
	switch w.cfg.Policy {
	case binseq.BreakOnInvalid:
		return limbs, false, false, err
	case binseq.IgnoreSequence:
		return limbs, false, false, nil
	}
	w.ibuf = w.cfg.Policy.Apply(seq, w.ibuf[:0], w.rng)
	limbs, err = twobit.Pack(w.ibuf, dst)
	return limbs, err == nil, true, err
}

// flushBlock compresses and writes the accumulated block and appends its
// index entry. Empty blocks are skipped.
func (w *Writer) flushBlock() error {
	if w.blockRecords == 0 {
		return nil
	}
	payload := w.ubuf
	if w.cfg.Codec == CodecZstd {
		w.zbuf = w.enc.EncodeAll(w.ubuf, w.zbuf[:0])
		payload = w.zbuf
	}
	bh := BlockHeader{
		USize:   uint64(len(w.ubuf)),
		CSize:   uint64(len(payload)),
		Records: w.blockRecords,
	}
	var hbuf [SizeBlockHeader]byte
	if _, err := w.w.Write(bh.appendTo(hbuf[:0])); err != nil {
		return err
	}
	if _, err := w.w.Write(payload); err != nil {
		return err
	}
	w.index.ranges = append(w.index.ranges, BlockRange{
		Offset:      w.offset,
		FirstRecord: w.total - uint64(w.blockRecords),
		Records:     w.blockRecords,
	})
	w.index.total = w.total
	w.offset += SizeBlockHeader + bh.CSize
	w.ubuf = w.ubuf[:0]
	w.blockRecords = 0
	return nil
}

// Finalize flushes the open block, writes the block index and its
// trailing offset, patches the index offset into the header, and closes
// the file. Finalize is idempotent; writes after Finalize fail with
// ErrFinalized.
func (w *Writer) Finalize() error {
	if w.finalized {
		return nil
	}
	w.finalized = true
	w.err = ErrFinalized

	if err := w.flushBlock(); err != nil {
		return err
	}
	indexOffset := w.offset
	if _, err := w.w.Write(w.index.appendTo(nil, indexOffset)); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	if w.enc != nil {
		w.enc.Close()
	}

	// Patch the index offset into the header in place.
	var off [8]byte
	le.PutUint64(off[:], indexOffset)
	if _, err := w.fh.WriteAt(off[:], offsetIndexOffset); err != nil {
		return err
	}
	if err := w.fh.Sync(); err != nil {
		return err
	}
	return w.fh.Close()
}

// LengthOverflowError means a sequence is longer than the 32-bit length
// prefix can express.
type LengthOverflowError struct {
	Got int
}

func (e LengthOverflowError) Error() string {
	return fmt.Sprintf("vbq: sequence length %d overflows the record length field", e.Got)
}
