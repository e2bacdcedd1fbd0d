// Package metafile reads and writes meta.idx, the small fixed-layout file
// that ties an index set back to the source file it was built from: its
// shape, its construction options, and the source's size/mtime fingerprint
// used to detect a stale index set on reopen.
package metafile

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"github.com/lazycsv/lazycsv/internal/idxfile"
	"github.com/lazycsv/lazycsv/internal/lazyerr"
)

// Magic is the fixed 6-byte header identifying a meta.idx file.
var Magic = [6]byte{'L', 'Z', 'C', 'S', 'V', 0}

// Version is the current meta.idx layout version.
const Version byte = 1

// Meta is the decoded content of meta.idx.
type Meta struct {
	Width       idxfile.Width
	Rows        uint64
	Cols        uint32
	SkipHeaders bool
	Unquote     bool
	SourcePath  string // absolute path of the source file
	SourceSize  int64
	SourceMtime int64 // Unix nanoseconds
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// Write serializes m to path, truncating any existing file.
func Write(path string, m Meta) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return lazyerr.Wrap(lazyerr.Io, "create meta.idx", err)
	}
	defer f.Close()

	pathBytes := []byte(m.SourcePath)
	buf := make([]byte, 0, 6+1+1+8+4+1+1+4+len(pathBytes)+8+8)
	buf = append(buf, Magic[:]...)
	buf = append(buf, Version)
	buf = append(buf, byte(m.Width))

	var tmp8 [8]byte
	binary.BigEndian.PutUint64(tmp8[:], m.Rows)
	buf = append(buf, tmp8[:]...)

	var tmp4 [4]byte
	binary.BigEndian.PutUint32(tmp4[:], m.Cols)
	buf = append(buf, tmp4[:]...)

	buf = append(buf, boolByte(m.SkipHeaders), boolByte(m.Unquote))

	binary.BigEndian.PutUint32(tmp4[:], uint32(len(pathBytes)))
	buf = append(buf, tmp4[:]...)
	buf = append(buf, pathBytes...)

	binary.BigEndian.PutUint64(tmp8[:], uint64(m.SourceSize))
	buf = append(buf, tmp8[:]...)
	binary.BigEndian.PutUint64(tmp8[:], uint64(m.SourceMtime))
	buf = append(buf, tmp8[:]...)

	if _, err := f.Write(buf); err != nil {
		return lazyerr.Wrap(lazyerr.Io, "write meta.idx", err)
	}
	return nil
}

// Read parses path into a Meta.
func Read(path string) (Meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Meta{}, lazyerr.Wrap(lazyerr.Io, "read meta.idx", err)
	}
	const fixedLen = 6 + 1 + 1 + 8 + 4 + 1 + 1 + 4
	if len(data) < fixedLen {
		return Meta{}, lazyerr.New(lazyerr.Io, "meta.idx is truncated")
	}
	if [6]byte(data[0:6]) != Magic {
		return Meta{}, lazyerr.New(lazyerr.Io, "meta.idx has wrong magic bytes")
	}
	// data[6] is the version byte; only version 1 exists so far.
	w := idxfile.Width(data[7])

	pos := 8
	rows := binary.BigEndian.Uint64(data[pos:])
	pos += 8
	cols := binary.BigEndian.Uint32(data[pos:])
	pos += 4
	skipHeaders := data[pos] != 0
	pos++
	unquote := data[pos] != 0
	pos++
	pathLen := int(binary.BigEndian.Uint32(data[pos:]))
	pos += 4
	if len(data) < pos+pathLen+16 {
		return Meta{}, lazyerr.New(lazyerr.Io, "meta.idx is truncated")
	}
	sourcePath := string(data[pos : pos+pathLen])
	pos += pathLen
	size := int64(binary.BigEndian.Uint64(data[pos:]))
	pos += 8
	mtime := int64(binary.BigEndian.Uint64(data[pos:]))

	return Meta{
		Width:       w,
		Rows:        rows,
		Cols:        cols,
		SkipHeaders: skipHeaders,
		Unquote:     unquote,
		SourcePath:  sourcePath,
		SourceSize:  size,
		SourceMtime: mtime,
	}, nil
}

// Stale reports whether m no longer matches the source file on disk at
// m.SourcePath, by comparing size and modification time. A missing source
// file is also reported as stale (the caller surfaces the stat error).
func (m Meta) Stale() (bool, error) {
	info, err := os.Stat(m.SourcePath)
	if err != nil {
		return true, lazyerr.Wrap(lazyerr.Io, "stat source file", err)
	}
	return info.Size() != m.SourceSize || info.ModTime().UnixNano() != m.SourceMtime, nil
}

// AbsPath resolves path the way Open does before it is recorded in
// meta.idx, so callers building a fresh Meta and callers comparing against
// an existing one agree on the same absolute form.
func AbsPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", lazyerr.Wrap(lazyerr.BadArgument, "resolve absolute source path", err)
	}
	return abs, nil
}
