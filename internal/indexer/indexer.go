// Package indexer drives a single left-to-right pass of internal/lexer
// over a source file and produces the on-disk index set the reader later
// opens: a header blob, a row-anchor stream, one fixed-width offset
// stream per column, a sparse ragged-row map, and meta.idx.
package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lazycsv/lazycsv/internal/bytesrc"
	"github.com/lazycsv/lazycsv/internal/idxfile"
	"github.com/lazycsv/lazycsv/internal/lazyerr"
	"github.com/lazycsv/lazycsv/internal/lexer"
	"github.com/lazycsv/lazycsv/internal/metafile"
	"github.com/lazycsv/lazycsv/internal/simd"
)

// DefaultBufferSize is the sequential read chunk size used during
// indexing when Options.BufferSize is left at zero.
const DefaultBufferSize = 1 << 20

// DefaultHeaderCap is the maximum number of header-row bytes this
// indexer will hold in memory before aborting with HeaderTooLarge.
const DefaultHeaderCap = 128 << 20

// Options configures one index-construction pass.
type Options struct {
	Delimiter   byte
	Quote       byte
	Unquote     bool
	SkipHeaders bool
	BufferSize  int
	Width       idxfile.Width
	HeaderCap   int64
	// Verbose prints a progress line to stdout while indexing, the way
	// the teacher's indexer does for its own (much longer) Run.
	Verbose bool
	// Debug enables the lexer's per-transition trace to stderr.
	Debug bool
}

func (o Options) withDefaults() Options {
	if o.Delimiter == 0 {
		o.Delimiter = ','
	}
	if o.Quote == 0 {
		o.Quote = '"'
	}
	if o.BufferSize == 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.Width == 0 {
		o.Width = idxfile.Width32
	}
	if o.HeaderCap == 0 {
		o.HeaderCap = DefaultHeaderCap
	}
	return o
}

// Result summarizes a completed build, enough for the caller to open a
// reader without re-parsing meta.idx immediately.
type Result struct {
	Rows       uint64
	Cols       uint32
	Headers    [][]byte
	RaggedRows int
}

// Filenames under an index directory, per spec §6.
const (
	AnchorsFile = "anchors.idx"
	HeadersFile = "headers.blob"
	RaggedFile  = "ragged.idx"
	MetaFile    = "meta.idx"
	scratchFile = ".scratch.lz4"
)

// ColumnFile returns the per-column index file name for column c.
func ColumnFile(c int) string {
	return fmt.Sprintf("col_%d.idx", c)
}

// Build runs one indexing pass over sourcePath and writes the resulting
// index set into indexDir, creating it if necessary. On any fatal error
// the partially written index set is removed before returning.
func Build(sourcePath, indexDir string, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if opts.BufferSize <= 0 {
		return nil, lazyerr.New(lazyerr.BadArgument, "buffer_size must be positive")
	}

	if err := os.MkdirAll(indexDir, 0755); err != nil {
		return nil, lazyerr.Wrap(lazyerr.Io, "create index directory", err)
	}

	absSource, err := metafile.AbsPath(sourcePath)
	if err != nil {
		return nil, err
	}

	if opts.Verbose {
		printBanner(absSource, indexDir)
	}

	src, err := bytesrc.Open(sourcePath)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	info, statErr := os.Stat(sourcePath)
	if statErr != nil {
		return nil, lazyerr.Wrap(lazyerr.Io, "stat source file", statErr)
	}

	result, buildErr := build(src, indexDir, opts)
	if buildErr != nil {
		removeIndexSet(indexDir)
		return nil, buildErr
	}

	meta := metafile.Meta{
		Width:       opts.Width,
		Rows:        result.Rows,
		Cols:        result.Cols,
		SkipHeaders: opts.SkipHeaders,
		Unquote:     opts.Unquote,
		SourcePath:  absSource,
		SourceSize:  info.Size(),
		SourceMtime: info.ModTime().UnixNano(),
	}
	if err := metafile.Write(filepath.Join(indexDir, MetaFile), meta); err != nil {
		removeIndexSet(indexDir)
		return nil, err
	}

	if opts.Verbose {
		fmt.Printf("\nStatistics:\n")
		fmt.Printf("  Rows:   %d\n", result.Rows)
		fmt.Printf("  Cols:   %d\n", result.Cols)
		fmt.Printf("  Ragged: %d\n", result.RaggedRows)
	}

	return result, nil
}

// printBanner prints the one-shot construction summary header, the way
// the teacher's indexer.go Run opens with a boxed title before diving
// into the pipeline.
func printBanner(absSource, indexDir string) {
	fmt.Println("╔══════════════════════════════════════════════════════════════════════════╗")
	fmt.Println("║     LAZYCSV INDEXER                                                      ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nInput:  %s\n", absSource)
	fmt.Printf("Output: %s\n", indexDir)
	accel := "SWAR"
	if simd.HasAVX2 {
		accel = "SWAR (AVX2-capable host)"
	}
	fmt.Printf("Scan:   %s\n\n", accel)
}

func removeIndexSet(indexDir string) {
	_ = os.RemoveAll(indexDir)
}

// build performs the lexer pass plus the scratch-stream partition,
// assuming the caller has already validated options and opened src.
func build(src *bytesrc.Source, indexDir string, opts Options) (*Result, error) {
	if src.Len() == 0 {
		if err := writeHeadersBlob(filepath.Join(indexDir, HeadersFile), nil); err != nil {
			return nil, err
		}
		if err := writeRaggedMap(filepath.Join(indexDir, RaggedFile), nil); err != nil {
			return nil, err
		}
		aw, err := idxfile.Create(filepath.Join(indexDir, AnchorsFile), opts.Width)
		if err != nil {
			return nil, err
		}
		if err := aw.Close(); err != nil {
			return nil, err
		}
		return &Result{Rows: 0, Cols: 0, Headers: [][]byte{}}, nil
	}

	scratchPath := filepath.Join(indexDir, scratchFile)
	scratch, err := newScratchWriter(scratchPath)
	if err != nil {
		return nil, err
	}

	anchors, err := idxfile.Create(filepath.Join(indexDir, AnchorsFile), opts.Width)
	if err != nil {
		scratch.close()
		return nil, err
	}

	h := &buildHandler{
		src:         src,
		skipHeaders: opts.SkipHeaders,
		headerCap:   opts.HeaderCap,
		anchors:     anchors,
		scratch:     scratch,
		verbose:     opts.Verbose,
		firstRow:    true,
	}

	lx := lexer.New(lexer.Options{
		Delimiter: opts.Delimiter,
		Quote:     opts.Quote,
		Unquote:   opts.Unquote,
		Debug:     opts.Debug,
	})

	sr := src.Reader(opts.BufferSize)
	runErr := lx.Run(sr, h)

	closeErr := anchors.Close()
	scratchCloseErr := scratch.close()

	if runErr != nil {
		os.Remove(scratchPath)
		return nil, runErr
	}
	if h.err != nil {
		os.Remove(scratchPath)
		return nil, h.err
	}
	if closeErr != nil {
		os.Remove(scratchPath)
		return nil, lazyerr.Wrap(lazyerr.Io, "close anchors.idx", closeErr)
	}
	if scratchCloseErr != nil {
		return nil, scratchCloseErr
	}

	if h.verbose {
		fmt.Println() // newline after any progress output
	}

	if err := writeHeadersBlob(filepath.Join(indexDir, HeadersFile), h.headers); err != nil {
		os.Remove(scratchPath)
		return nil, err
	}
	if err := writeRaggedMap(filepath.Join(indexDir, RaggedFile), h.raggedRows); err != nil {
		os.Remove(scratchPath)
		return nil, err
	}

	if err := partition(scratchPath, indexDir, h.cols, int(h.dataRow), opts.Width); err != nil {
		os.Remove(scratchPath)
		return nil, err
	}
	os.Remove(scratchPath)

	return &Result{
		Rows:       uint64(h.dataRow),
		Cols:       uint32(h.cols),
		Headers:    h.headers,
		RaggedRows: len(h.raggedRows),
	}, nil
}

// buildHandler implements lexer.Handler, accumulating one row's worth of
// field boundaries at a time and, on each row boundary, either capturing
// the header or emitting the row's cells into the scratch stream.
type buildHandler struct {
	src         *bytesrc.Source
	skipHeaders bool
	headerCap   int64
	verbose     bool

	firstRow bool
	cols     int

	headers     [][]byte
	headerBytes int64

	anchors *idxfile.Writer
	scratch *scratchWriter
	dataRow uint32

	raggedRows   []raggedEntry
	warnedNarrow bool
	warnedWide   bool

	fstart  []int64
	fend    []int64
	fquoted []bool

	lastProgress time.Time
	err          error
}

func (h *buildHandler) Field(start, end int64, quoted bool) {
	h.fstart = append(h.fstart, start)
	h.fend = append(h.fend, end)
	h.fquoted = append(h.fquoted, quoted)
}

func (h *buildHandler) RowEnd(offset int64) {
	if h.err != nil {
		return
	}
	n := len(h.fstart)

	if h.firstRow {
		h.firstRow = false
		if !h.skipHeaders {
			h.captureHeaderRow(n)
			h.resetRow()
			return
		}
		h.cols = n
	}

	h.writeDataRow(n, offset)
	h.resetRow()

	if h.verbose {
		h.reportProgress()
	}
}

func (h *buildHandler) captureHeaderRow(n int) {
	h.cols = n
	for i := 0; i < n; i++ {
		cell := h.src.Slice(h.fstart[i], h.fend[i])
		h.headerBytes += int64(len(cell))
		if h.headerBytes > h.headerCap {
			h.err = lazyerr.New(lazyerr.HeaderTooLarge,
				"header row exceeds the configured header size cap")
			return
		}
		buf := make([]byte, len(cell))
		copy(buf, cell)
		h.headers = append(h.headers, buf)
	}
}

func (h *buildHandler) writeDataRow(observed int, terminatorOffset int64) {
	if err := h.anchors.Append(uint64(h.fstart[0])); err != nil {
		h.err = err
		return
	}

	limit := observed
	if limit > h.cols {
		limit = h.cols
	}
	for c := 0; c < limit; c++ {
		if err := h.scratch.put(uint32(c), h.dataRow, uint64(h.fend[c]), h.fquoted[c]); err != nil {
			h.err = err
			return
		}
	}

	switch {
	case observed < h.cols:
		if !h.warnedNarrow {
			fmt.Fprintf(os.Stderr,
				"lazycsv: warning: ragged row %d has %d fields, expected %d; padding with empty cells\n",
				h.dataRow, observed, h.cols)
			h.warnedNarrow = true
		}
		h.raggedRows = append(h.raggedRows, raggedEntry{Row: h.dataRow, Width: uint32(observed)})
		for c := observed; c < h.cols; c++ {
			if err := h.scratch.put(uint32(c), h.dataRow, uint64(terminatorOffset), false); err != nil {
				h.err = err
				return
			}
		}
	case observed > h.cols:
		if !h.warnedWide {
			fmt.Fprintf(os.Stderr,
				"lazycsv: warning: ragged row %d has %d fields, expected %d; discarding the excess\n",
				h.dataRow, observed, h.cols)
			h.warnedWide = true
		}
	}

	h.dataRow++
}

func (h *buildHandler) resetRow() {
	h.fstart = h.fstart[:0]
	h.fend = h.fend[:0]
	h.fquoted = h.fquoted[:0]
}

func (h *buildHandler) reportProgress() {
	if time.Since(h.lastProgress) < time.Second {
		return
	}
	h.lastProgress = time.Now()
	fmt.Printf("\r\033[K[Indexing] Rows: %d | Ragged: %d", h.dataRow, len(h.raggedRows))
}
