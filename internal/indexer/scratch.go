package indexer

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"github.com/pierrec/lz4/v4"

	"github.com/lazycsv/lazycsv/internal/lazyerr"
)

// scratchRecordSize is the fixed width of one entry in the row-major
// scratch stream: Col(4) + Row(4) + End-with-quoted-bit(8).
const scratchRecordSize = 4 + 4 + 8

// scratchBatchRecords is how many records are buffered in memory before
// a batch is handed to the LZ4 writer, mirroring the reference
// implementation's 64KB block target (scratchRecordSize * 4096 == 64KiB).
const scratchBatchRecords = 4096

// scratchQuotedBit mirrors idxfile.QuotedBit but at the scratch record's
// own width (the end offset is always stored in a 64-bit field here;
// partitioning narrows it to the column's chosen idxfile.Width later).
const scratchQuotedBit uint64 = 1 << 63

// scratchRecord is one column cell observed during the single forward
// pass: which column, which data row, and the cell's end offset (the
// value the column stream ultimately stores) tagged with the quoted bit.
type scratchRecord struct {
	Col uint32
	Row uint32
	End uint64 // quoted bit pre-OR'd in
}

// scratchWriter buffers scratchRecords and flushes them as LZ4-compressed
// batches to an underlying file, the way the reference implementation's
// BlockWriter buffers IndexRecords before compressing each ~64KB block.
// Unlike that reference, this stream is write-once/read-once (no sparse
// footer, no seek-based block index): the indexer writes it during the
// lexer pass and the partition step reads it back start to end exactly
// once, so there is nothing to look up by key.
type scratchWriter struct {
	f      *os.File
	bw     *bufio.Writer
	lw     *lz4.Writer
	buf    []scratchRecord
	rawBuf []byte
}

func newScratchWriter(path string) (*scratchWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, lazyerr.Wrap(lazyerr.Io, "create scratch spool", err)
	}
	bw := bufio.NewWriterSize(f, 256*1024)
	lw := lz4.NewWriter(bw)
	if err := lw.Apply(lz4.BlockSizeOption(lz4.Block64Kb)); err != nil {
		f.Close()
		return nil, lazyerr.Wrap(lazyerr.Io, "configure scratch compressor", err)
	}
	return &scratchWriter{
		f:   f,
		bw:  bw,
		lw:  lw,
		buf: make([]scratchRecord, 0, scratchBatchRecords),
	}, nil
}

func (w *scratchWriter) put(col, row uint32, end uint64, quoted bool) error {
	if quoted {
		end |= scratchQuotedBit
	}
	w.buf = append(w.buf, scratchRecord{Col: col, Row: row, End: end})
	if len(w.buf) >= scratchBatchRecords {
		return w.flush()
	}
	return nil
}

func (w *scratchWriter) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	need := len(w.buf) * scratchRecordSize
	if cap(w.rawBuf) < need {
		w.rawBuf = make([]byte, need)
	}
	w.rawBuf = w.rawBuf[:need]
	for i, rec := range w.buf {
		off := i * scratchRecordSize
		binary.BigEndian.PutUint32(w.rawBuf[off:], rec.Col)
		binary.BigEndian.PutUint32(w.rawBuf[off+4:], rec.Row)
		binary.BigEndian.PutUint64(w.rawBuf[off+8:], rec.End)
	}
	if _, err := w.lw.Write(w.rawBuf); err != nil {
		return lazyerr.Wrap(lazyerr.Io, "compress scratch batch", err)
	}
	w.buf = w.buf[:0]
	return nil
}

// close flushes any buffered records, closes the LZ4 stream and the
// underlying file.
func (w *scratchWriter) close() error {
	if err := w.flush(); err != nil {
		w.f.Close()
		return err
	}
	if err := w.lw.Close(); err != nil {
		w.f.Close()
		return lazyerr.Wrap(lazyerr.Io, "finalize scratch compressor", err)
	}
	if err := w.bw.Flush(); err != nil {
		w.f.Close()
		return lazyerr.Wrap(lazyerr.Io, "flush scratch spool", err)
	}
	return w.f.Close()
}

// scratchReader reads a scratch spool back sequentially, decompressing
// and batch-decoding fixed-width records exactly as
// common.ReadBatchRecords does for the reference's IndexRecord stream.
type scratchReader struct {
	f      *os.File
	lr     *lz4.Reader
	raw    []byte
	pos    int
	filled int
}

func openScratchReader(path string) (*scratchReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, lazyerr.Wrap(lazyerr.Io, "open scratch spool", err)
	}
	return &scratchReader{
		f:   f,
		lr:  lz4.NewReader(f),
		raw: make([]byte, scratchRecordSize*scratchBatchRecords),
	}, nil
}

// next decodes the next record, returning io.EOF once the stream is
// exhausted.
func (r *scratchReader) next() (scratchRecord, error) {
	if r.pos >= r.filled {
		n, err := io.ReadFull(r.lr, r.raw)
		if n == 0 {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return scratchRecord{}, io.EOF
			}
			if err != nil {
				return scratchRecord{}, lazyerr.Wrap(lazyerr.Io, "read scratch batch", err)
			}
		}
		// io.ReadFull on a short final batch returns ErrUnexpectedEOF with
		// n > 0 containing the tail; only a round batch count is valid.
		n -= n % scratchRecordSize
		if n == 0 {
			return scratchRecord{}, io.EOF
		}
		r.filled = n
		r.pos = 0
	}
	off := r.pos
	rec := scratchRecord{
		Col: binary.BigEndian.Uint32(r.raw[off:]),
		Row: binary.BigEndian.Uint32(r.raw[off+4:]),
		End: binary.BigEndian.Uint64(r.raw[off+8:]),
	}
	r.pos += scratchRecordSize
	return rec, nil
}

func (r *scratchReader) close() error {
	return r.f.Close()
}
