// Package reader opens a constructed index set and answers cell, row,
// and column queries in O(1) expected disk reads, combining the
// source file's memory mapping with the anchor and per-column offset
// streams internal/indexer wrote.
package reader

import (
	"path/filepath"

	"github.com/lazycsv/lazycsv/internal/bytesrc"
	"github.com/lazycsv/lazycsv/internal/idxfile"
	"github.com/lazycsv/lazycsv/internal/indexer"
	"github.com/lazycsv/lazycsv/internal/metafile"
)

// delimWidth is fixed: the lexer only ever recognizes a single-byte
// delimiter, so no per-row accounting for it is needed (see DESIGN.md's
// column-stream encoding notes: a cell's start is derived from the
// previous column's stored end plus this width).
const delimWidth = 1

// Reader is a read-only view over one index set plus the source file it
// was built from. The zero value is not usable; construct with Open.
type Reader struct {
	src     *bytesrc.Source
	anchors *idxfile.Reader
	cols    []*idxfile.Reader
	headers [][]byte
	ragged  map[uint32]uint32

	rows    int
	colsLen int
	unquote bool
	name    string

	indexDir string
}

// Open loads an already-built index set from indexDir. Callers are
// expected to have already verified (or rebuilt) meta.idx's freshness;
// see the lazycsv package's Open for that policy.
func Open(indexDir string) (*Reader, error) {
	meta, err := metafile.Read(filepath.Join(indexDir, indexer.MetaFile))
	if err != nil {
		return nil, err
	}

	src, err := bytesrc.Open(meta.SourcePath)
	if err != nil {
		return nil, err
	}

	anchors, err := idxfile.Open(filepath.Join(indexDir, indexer.AnchorsFile), meta.Width)
	if err != nil {
		src.Close()
		return nil, err
	}

	cols := make([]*idxfile.Reader, meta.Cols)
	for c := range cols {
		cr, err := idxfile.Open(filepath.Join(indexDir, indexer.ColumnFile(c)), meta.Width)
		if err != nil {
			closeAll(src, anchors, cols[:c])
			return nil, err
		}
		cols[c] = cr
	}

	headers, err := indexer.ReadHeadersBlob(filepath.Join(indexDir, indexer.HeadersFile))
	if err != nil {
		closeAll(src, anchors, cols)
		return nil, err
	}

	ragged, err := indexer.ReadRaggedMap(filepath.Join(indexDir, indexer.RaggedFile))
	if err != nil {
		closeAll(src, anchors, cols)
		return nil, err
	}

	return &Reader{
		src:      src,
		anchors:  anchors,
		cols:     cols,
		headers:  headers,
		ragged:   ragged,
		rows:     int(meta.Rows),
		colsLen:  int(meta.Cols),
		unquote:  meta.Unquote,
		name:     meta.SourcePath,
		indexDir: indexDir,
	}, nil
}

func closeAll(src *bytesrc.Source, anchors *idxfile.Reader, cols []*idxfile.Reader) {
	src.Close()
	if anchors != nil {
		anchors.Close()
	}
	for _, c := range cols {
		if c != nil {
			c.Close()
		}
	}
}

// Close releases every handle the reader holds, in reverse order of
// acquisition: per-column mappings, the anchor mapping, then the source
// mapping.
func (r *Reader) Close() error {
	var firstErr error
	for i := len(r.cols) - 1; i >= 0; i-- {
		if err := r.cols[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := r.anchors.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := r.src.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Headers returns the decoded header cells, empty when skip_headers was
// set at construction time.
func (r *Reader) Headers() [][]byte { return r.headers }

// Rows returns the number of data rows.
func (r *Reader) Rows() int { return r.rows }

// Cols returns the number of columns.
func (r *Reader) Cols() int { return r.colsLen }

// Name returns the absolute path of the source file.
func (r *Reader) Name() string { return r.name }

func (r *Reader) anchorOf(row int) int64 {
	raw, _ := r.anchors.Decode(r.anchors.At(row))
	return int64(raw)
}

// columnEnd decodes column c's stored value for row, returning its end
// offset and quoted flag.
func (r *Reader) columnEnd(row, col int) (int64, bool) {
	raw, quoted := r.cols[col].Decode(r.cols[col].At(row))
	return int64(raw), quoted
}

// Cell returns the byte span of the cell at (row, col). Negative indices
// count from the end; out-of-range indices fail with OutOfRange.
func (r *Reader) Cell(row, col int) ([]byte, error) {
	row, err := ResolveIndex(row, r.rows)
	if err != nil {
		return nil, err
	}
	col, err = ResolveIndex(col, r.colsLen)
	if err != nil {
		return nil, err
	}
	return r.cellAt(row, col), nil
}

// cellAt assumes row and col are already resolved (non-negative,
// in-bounds) absolute indices.
func (r *Reader) cellAt(row, col int) []byte {
	if width, ok := r.ragged[uint32(row)]; ok && col >= int(width) {
		a := r.anchorOf(row)
		return r.src.Slice(a, a)
	}

	end, quotedC := r.columnEnd(row, col)

	var start int64
	if col == 0 {
		start = r.anchorOf(row)
	} else {
		prevEnd, quotedPrev := r.columnEnd(row, col-1)
		start = prevEnd
		if quotedPrev && r.unquote {
			start++
		}
		start += delimWidth
		if quotedC && r.unquote {
			start++
		}
	}

	cell := r.src.Slice(start, end)
	return cell
}

// ColIter is a single-pass, finite cursor over one column's cells in row
// order (or reverse). Creating one is cheap; it holds no hidden cache.
type ColIter struct {
	r        *Reader
	col      int
	reversed bool
	pos      int // next row index to yield, or -1 when done
}

// ColIter builds an iterator over column c. c may be negative.
func (r *Reader) ColIter(col int, reversed bool) (*ColIter, error) {
	col, err := ResolveIndex(col, r.colsLen)
	if err != nil {
		return nil, err
	}
	start := 0
	if reversed {
		start = r.rows - 1
	}
	return &ColIter{r: r, col: col, reversed: reversed, pos: start}, nil
}

// Next returns the next cell, or ok == false once the column is
// exhausted.
func (it *ColIter) Next() (cell []byte, ok bool) {
	if it.reversed {
		if it.pos < 0 {
			return nil, false
		}
		cell = it.r.cellAt(it.pos, it.col)
		it.pos--
		return cell, true
	}
	if it.pos >= it.r.rows {
		return nil, false
	}
	cell = it.r.cellAt(it.pos, it.col)
	it.pos++
	return cell, true
}

// RowIter is a single-pass, finite cursor over one row's cells in column
// order (or reverse).
type RowIter struct {
	r        *Reader
	row      int
	reversed bool
	pos      int
}

// RowIter builds an iterator over row r. r may be negative.
func (r *Reader) RowIter(row int, reversed bool) (*RowIter, error) {
	row, err := ResolveIndex(row, r.rows)
	if err != nil {
		return nil, err
	}
	start := 0
	if reversed {
		start = r.colsLen - 1
	}
	return &RowIter{r: r, row: row, reversed: reversed, pos: start}, nil
}

// Next returns the next cell, or ok == false once the row is exhausted.
func (it *RowIter) Next() (cell []byte, ok bool) {
	if it.reversed {
		if it.pos < 0 {
			return nil, false
		}
		cell = it.r.cellAt(it.row, it.pos)
		it.pos--
		return cell, true
	}
	if it.pos >= it.r.colsLen {
		return nil, false
	}
	cell = it.r.cellAt(it.row, it.pos)
	it.pos++
	return cell, true
}

// Slice materializes the grid selected by rowSlice and colSlice, per
// spec.md §4.E's half-open, negative-index, optional-step semantics.
// Unlike ColIter/RowIter this is eager: the result is a concrete [][]byte,
// not a cursor, matching the spec's framing of slice as a bulk operation
// distinct from the two lazy iterators.
func (r *Reader) Slice(rowSlice, colSlice Slice) ([][]byte, error) {
	rowIdx, err := rowSlice.Indices(r.rows)
	if err != nil {
		return nil, err
	}
	colIdx, err := colSlice.Indices(r.colsLen)
	if err != nil {
		return nil, err
	}

	out := make([][]byte, 0, len(rowIdx)*len(colIdx))
	for _, row := range rowIdx {
		for _, col := range colIdx {
			out = append(out, r.cellAt(row, col))
		}
	}
	return out, nil
}

// Stale reports whether this reader's index set is out of date against
// the live source file (size or modification time changed since build).
func (r *Reader) Stale() (bool, error) {
	meta, err := metafile.Read(filepath.Join(r.indexDir, indexer.MetaFile))
	if err != nil {
		return true, err
	}
	return meta.Stale()
}
