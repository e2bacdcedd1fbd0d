// Package lazycsv provides random access to the cells of a delimited
// text file without holding the file, or a decoded form of it, resident
// in memory. A single streaming pass builds compact on-disk side files
// once; afterwards, cell, row, and column lookups are O(1) expected disk
// reads against a memory-mapped view of the source plus those side
// files.
package lazycsv

import (
	"os"
	"path/filepath"

	"github.com/lazycsv/lazycsv/internal/idxfile"
	"github.com/lazycsv/lazycsv/internal/indexer"
	"github.com/lazycsv/lazycsv/internal/lazyerr"
	"github.com/lazycsv/lazycsv/internal/metafile"
	"github.com/lazycsv/lazycsv/internal/reader"
)

// Width selects the on-disk integer width used for offsets; re-exported
// from internal/idxfile so callers never need to import an internal
// package themselves.
type Width = idxfile.Width

const (
	Width16 = idxfile.Width16
	Width32 = idxfile.Width32
	Width64 = idxfile.Width64
)

// Slice is re-exported from internal/reader for the same reason.
type Slice = reader.Slice

// Options configures both index construction and how an existing index
// set is validated on reopen.
type Options struct {
	SkipHeaders bool
	Unquote     bool
	BufferSize  int
	// IndexDir, if empty, selects a fresh temporary directory that is
	// removed when the Reader is closed. If set, the index set is built
	// (or reused) there and left on disk after Close.
	IndexDir  string
	Delimiter byte
	Quote     byte
	Width     Width
	Verbose   bool
	Debug     bool
}

func (o Options) withDefaults() Options {
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	if o.Quote == 0 {
		o.Quote = '"'
	}
	if o.BufferSize == 0 {
		o.BufferSize = indexer.DefaultBufferSize
	}
	if o.Width == 0 {
		o.Width = idxfile.Width32
	}
	return o
}

func (o Options) indexerOptions() indexer.Options {
	return indexer.Options{
		Delimiter:   o.Delimiter,
		Quote:       o.Quote,
		Unquote:     o.Unquote,
		SkipHeaders: o.SkipHeaders,
		BufferSize:  o.BufferSize,
		Width:       o.Width,
		Verbose:     o.Verbose,
		Debug:       o.Debug,
	}
}

// Reader is the public handle returned by Open: it owns the memory
// mapping over the source file plus every index file mapping, and is
// not safe for concurrent use from multiple goroutines unless each
// holds its own Reader over the same index_dir (see spec.md §5).
type Reader struct {
	*reader.Reader
	ephemeralDir string
}

// Open builds (or reuses) an index set for path and returns a Reader.
//
// If opts.IndexDir is empty, a fresh temporary directory is used and
// removed when the Reader is closed. If opts.IndexDir already holds a
// meta.idx whose recorded source size/mtime matches the live file, the
// existing index set is reused; otherwise it is rebuilt in place, per
// spec.md §6's default "rebuild" policy for a stale index.
func Open(path string, opts Options) (*Reader, error) {
	opts = opts.withDefaults()
	if opts.BufferSize <= 0 {
		return nil, lazyerr.New(lazyerr.BadArgument, "buffer_size must be positive")
	}

	absSource, err := filepath.Abs(path)
	if err != nil {
		return nil, lazyerr.Wrap(lazyerr.BadArgument, "resolve source path", err)
	}
	if info, statErr := os.Stat(absSource); statErr != nil {
		return nil, lazyerr.Wrap(lazyerr.Io, "stat source file", statErr)
	} else if !info.Mode().IsRegular() {
		return nil, lazyerr.New(lazyerr.BadArgument, "source path is not a regular file")
	}

	ephemeralDir := ""
	indexDir := opts.IndexDir
	if indexDir == "" {
		dir, err := os.MkdirTemp("", "lazycsv-*")
		if err != nil {
			return nil, lazyerr.Wrap(lazyerr.Io, "create temporary index directory", err)
		}
		indexDir = dir
		ephemeralDir = dir
	}

	if needsBuild(indexDir, absSource) {
		if _, err := indexer.Build(absSource, indexDir, opts.indexerOptions()); err != nil {
			if ephemeralDir != "" {
				os.RemoveAll(ephemeralDir)
			}
			return nil, err
		}
	}

	rd, err := reader.Open(indexDir)
	if err != nil {
		if ephemeralDir != "" {
			os.RemoveAll(ephemeralDir)
		}
		return nil, err
	}

	return &Reader{Reader: rd, ephemeralDir: ephemeralDir}, nil
}

// needsBuild reports whether indexDir lacks a usable, fresh index set
// for the live file at absSource.
func needsBuild(indexDir, absSource string) bool {
	metaPath := filepath.Join(indexDir, indexer.MetaFile)
	if _, err := os.Stat(metaPath); err != nil {
		return true
	}
	meta, err := metafile.Read(metaPath)
	if err != nil {
		return true
	}
	if meta.SourcePath != absSource {
		return true
	}
	stale, err := meta.Stale()
	if err != nil || stale {
		return true
	}
	return false
}

// Close releases every open handle and, if the index directory was
// ephemeral, removes it.
func (r *Reader) Close() error {
	err := r.Reader.Close()
	if r.ephemeralDir != "" {
		os.RemoveAll(r.ephemeralDir)
	}
	return err
}
