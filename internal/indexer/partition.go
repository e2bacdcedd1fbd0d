package indexer

import (
	"io"
	"path/filepath"

	"github.com/lazycsv/lazycsv/internal/idxfile"
	"github.com/lazycsv/lazycsv/internal/lazyerr"
)

// partition re-reads the compressed scratch spool sequentially and
// splits its row-major (column, row, end) stream into cols dense,
// row-ordered per-column index files — the "single sequential
// partitioning step" spec.md's Indexer module allows as an alternative
// to round-robin writing during the lexer pass itself.
func partition(scratchPath, indexDir string, cols, rows int, width idxfile.Width) error {
	if cols == 0 {
		return nil
	}

	writers := make([]*idxfile.Writer, cols)
	for c := 0; c < cols; c++ {
		w, err := idxfile.CreatePooled(filepath.Join(indexDir, ColumnFile(c)), width)
		if err != nil {
			closeWriters(writers)
			return err
		}
		writers[c] = w
	}

	sr, err := openScratchReader(scratchPath)
	if err != nil {
		closeWriters(writers)
		return err
	}
	defer sr.close()

	for {
		rec, err := sr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			closeWriters(writers)
			return err
		}
		if int(rec.Col) >= cols || int(rec.Row) >= rows {
			// Defensive: the writer never emits an out-of-range column or
			// row, but a corrupt scratch spool should not panic the
			// partition.
			continue
		}
		rawEnd := rec.End &^ scratchQuotedBit
		quoted := rec.End&scratchQuotedBit != 0
		if err := writers[rec.Col].AppendTagged(rawEnd, quoted); err != nil {
			closeWriters(writers)
			return err
		}
	}

	for _, w := range writers {
		if err := w.Close(); err != nil {
			return lazyerr.Wrap(lazyerr.Io, "close column index file", err)
		}
	}
	return nil
}

func closeWriters(writers []*idxfile.Writer) {
	for _, w := range writers {
		if w != nil {
			w.Close()
		}
	}
}
