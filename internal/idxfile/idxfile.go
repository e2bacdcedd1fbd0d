// Package idxfile implements the fixed-width, append-only offset files
// that back anchors.idx and the per-column col_<k>.idx streams: a thin
// emitter of unsigned integers of a configurable width, buffered and
// flushed on Close, with one reserved top bit per value for the
// "quoted" flag.
package idxfile

import (
	"bufio"
	"encoding/binary"
	"os"
	"sync"

	"github.com/lazycsv/lazycsv/internal/bytesrc"
	"github.com/lazycsv/lazycsv/internal/lazyerr"
)

// WriterPool recycles the 64 KiB bufio.Writer buffers used by
// CreatePooled, the way the teacher's sorter.go recycles bufio.Writers
// across chunk flushes instead of allocating one per flush. The partition
// step opens every column file at once, so a build holds one pooled
// buffer per column simultaneously; Close returns each buffer to the pool
// for reuse by a later build.
var WriterPool = sync.Pool{
	New: func() interface{} {
		return bufio.NewWriterSize(nil, 64*1024)
	},
}

// Width selects the on-disk integer width for one index file.
type Width int

const (
	Width16 Width = 2
	Width32 Width = 4
	Width64 Width = 8
)

// QuotedBit is the reserved top bit of a column-stream value, used by the
// reader to know whether a cell needs unquoting.
const QuotedBit uint64 = 1 << 63

// maxValue returns the largest representable unsigned value for w, minus
// the bit reserved for the quoted flag.
func (w Width) maxValue() uint64 {
	switch w {
	case Width16:
		return 1<<15 - 1
	case Width32:
		return 1<<31 - 1
	case Width64:
		return 1<<63 - 1
	default:
		return 0
	}
}

// Writer appends fixed-width unsigned values to a file, buffering writes
// and flushing on Close. Overflow of the configured width is reported as
// *lazyerr.Error with Kind == lazyerr.IndexOverflow; the caller is
// expected to abort the whole construction (per spec, this is fatal).
type Writer struct {
	f      *os.File
	bw     *bufio.Writer
	width  Width
	buf    [8]byte
	pooled bool
}

// Create opens path for writing, truncating any existing contents.
func Create(path string, width Width) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, lazyerr.Wrap(lazyerr.Io, "create index file", err)
	}
	return &Writer{f: f, bw: bufio.NewWriterSize(f, 256*1024), width: width}, nil
}

// CreatePooled is like Create but draws its buffered writer from
// WriterPool instead of allocating a fresh one, for callers (the column
// partition step) that open many index files.
func CreatePooled(path string, width Width) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, lazyerr.Wrap(lazyerr.Io, "create index file", err)
	}
	bw := WriterPool.Get().(*bufio.Writer)
	bw.Reset(f)
	return &Writer{f: f, bw: bw, width: width, pooled: true}, nil
}

// Append writes one unquoted value.
func (w *Writer) Append(v uint64) error {
	return w.appendTagged(v, false)
}

// AppendTagged writes one value with the quoted-bit set according to
// quoted.
func (w *Writer) AppendTagged(v uint64, quoted bool) error {
	return w.appendTagged(v, quoted)
}

func (w *Writer) appendTagged(v uint64, quoted bool) error {
	if v > w.width.maxValue() {
		return lazyerr.New(lazyerr.IndexOverflow,
			"offset exceeds chosen index width; rebuild with a wider type")
	}
	if quoted {
		v |= QuotedBit >> (64 - 8*uint(w.width))
	}
	switch w.width {
	case Width16:
		binary.BigEndian.PutUint16(w.buf[:2], uint16(v))
		_, err := w.bw.Write(w.buf[:2])
		return err
	case Width32:
		binary.BigEndian.PutUint32(w.buf[:4], uint32(v))
		_, err := w.bw.Write(w.buf[:4])
		return err
	default:
		binary.BigEndian.PutUint64(w.buf[:8], v)
		_, err := w.bw.Write(w.buf[:8])
		return err
	}
}

// Close flushes buffered writes and closes the underlying file. If the
// writer was obtained via CreatePooled, its buffer is returned to
// WriterPool first.
func (w *Writer) Close() error {
	flushErr := w.bw.Flush()
	if w.pooled {
		w.bw.Reset(nil)
		WriterPool.Put(w.bw)
	}
	if flushErr != nil {
		w.f.Close()
		return lazyerr.Wrap(lazyerr.Io, "flush index file", flushErr)
	}
	return w.f.Close()
}

// Reader provides O(1) random access into a fixed-width index file via a
// memory mapping, used at query time by internal/reader.
type Reader struct {
	data  []byte
	width Width
}

// Open memory-maps an existing index file for reading.
func Open(path string, width Width) (*Reader, error) {
	data, err := bytesrc.MmapReadOnly(path)
	if err != nil {
		return nil, err
	}
	return &Reader{data: data, width: width}, nil
}

// Count reports how many fixed-width records are stored.
func (r *Reader) Count() int {
	if len(r.data) == 0 {
		return 0
	}
	return len(r.data) / int(r.width)
}

// At returns the raw stored value (quoted bit included) at index i.
func (r *Reader) At(i int) uint64 {
	off := i * int(r.width)
	switch r.width {
	case Width16:
		return uint64(binary.BigEndian.Uint16(r.data[off : off+2]))
	case Width32:
		return uint64(binary.BigEndian.Uint32(r.data[off : off+4]))
	default:
		return binary.BigEndian.Uint64(r.data[off : off+8])
	}
}

// Decode splits a raw stored value into its offset and quoted flag for
// this reader's width.
func (r *Reader) Decode(raw uint64) (offset uint64, quoted bool) {
	bit := QuotedBit >> (64 - 8*uint(r.width))
	return raw &^ bit, raw&bit != 0
}

// Close unmaps the reader's backing memory.
func (r *Reader) Close() error {
	return bytesrc.MunmapReadOnly(r.data)
}
