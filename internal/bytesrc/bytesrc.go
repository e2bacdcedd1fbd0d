// Package bytesrc owns access to the raw bytes of a CSV file: a
// memory-mapped view for random access, and a small buffered cursor for
// the single sequential pass the indexer makes over the same bytes.
package bytesrc

import (
	"bufio"
	"io"
	"os"

	"github.com/lazycsv/lazycsv/internal/lazyerr"
)

// Source is an immutable view over a file's bytes, addressed by absolute
// byte offset in [0, Len()].
type Source struct {
	f    *os.File
	data []byte
	size int64
}

// Open memory-maps path for the lifetime of the returned Source. Callers
// must call Close when done.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, lazyerr.Wrap(lazyerr.Io, "open source file", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, lazyerr.Wrap(lazyerr.Io, "stat source file", err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, lazyerr.New(lazyerr.BadArgument, "source path is not a regular file")
	}

	size := info.Size()
	data, err := mmapFile(f, size)
	if err != nil {
		f.Close()
		return nil, lazyerr.Wrap(lazyerr.Io, "mmap source file", err)
	}

	return &Source{f: f, data: data, size: size}, nil
}

// MmapReadOnly memory-maps an arbitrary read-only file (used by the
// idxfile package for anchors.idx / col_<k>.idx, so every mapped view in
// the engine goes through the same platform split).
func MmapReadOnly(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, lazyerr.Wrap(lazyerr.Io, "open index file", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, lazyerr.Wrap(lazyerr.Io, "stat index file", err)
	}
	data, err := mmapFile(f, info.Size())
	if err != nil {
		return nil, lazyerr.Wrap(lazyerr.Io, "mmap index file", err)
	}
	return data, nil
}

// MunmapReadOnly releases a mapping obtained from MmapReadOnly.
func MunmapReadOnly(data []byte) error {
	return munmapFile(data)
}

// Close releases the mapping and the underlying file handle, in that
// order (reverse of acquisition).
func (s *Source) Close() error {
	var err error
	if s.data != nil {
		err = munmapFile(s.data)
		s.data = nil
	}
	if s.f != nil {
		if cerr := s.f.Close(); err == nil {
			err = cerr
		}
		s.f = nil
	}
	return err
}

// Len returns the total byte length of the file.
func (s *Source) Len() int64 { return s.size }

// Byte returns the byte at absolute offset off. off must be < Len().
func (s *Source) Byte(off int64) byte { return s.data[off] }

// Slice returns the half-open byte range [start, end). The returned slice
// is a view into the mapping and must not outlive the Source.
func (s *Source) Slice(start, end int64) []byte {
	if start == end {
		return nil
	}
	return s.data[start:end]
}

// Reader opens a fresh sequential cursor over the same bytes, buffered at
// the given chunk size (bufio raises sizes below 16 bytes to 16), for the
// indexer's single forward pass. It does not share state with the
// mmap-backed random-access path.
func (s *Source) Reader(bufferSize int) *SeqReader {
	return &SeqReader{
		br:  bufio.NewReaderSize(&sectionReader{data: s.data}, bufferSize),
		off: 0,
	}
}

// sectionReader adapts the mapped byte slice to io.Reader; each Read
// copies the next bytes of the mapping into the caller's buffer.
type sectionReader struct {
	data []byte
	pos  int
}

func (r *sectionReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

// SeqReader is a buffered, forward-only cursor over a Source's bytes. The
// lexer consumes it one byte at a time, tracking absolute offsets itself.
// Bytes pass through a bufio chunk buffer that is refilled from the mmap;
// ReadByte returns bytes by value, and only PeekChunk exposes the buffer
// itself, valid until the next read.
type SeqReader struct {
	br  *bufio.Reader
	off int64
}

// ReadByte returns the next byte and its absolute offset, or io.EOF.
func (r *SeqReader) ReadByte() (byte, int64, error) {
	b, err := r.br.ReadByte()
	if err != nil {
		return 0, r.off, err
	}
	off := r.off
	r.off++
	return b, off, nil
}

// Offset returns the absolute offset of the next unread byte.
func (r *SeqReader) Offset() int64 { return r.off }

// PeekChunk returns as much of the reader's currently buffered chunk as
// is available, without consuming it. The lexer uses this to bulk-scan
// for the next structural byte; the returned slice is only valid until
// the next Discard or ReadByte call refills the buffer.
func (r *SeqReader) PeekChunk() []byte {
	b, _ := r.br.Peek(r.br.Size())
	return b
}

// Discard advances the cursor by n bytes without returning them,
// following a PeekChunk that determined n bytes are all non-structural.
func (r *SeqReader) Discard(n int) error {
	if n == 0 {
		return nil
	}
	k, err := r.br.Discard(n)
	r.off += int64(k)
	return err
}
