// Package lexer implements the single left-to-right byte-stream state
// machine that turns raw CSV bytes into field-boundary and row-boundary
// events, tracking quote state, CR/LF variants, and embedded newlines
// inside quoted fields.
package lexer

import (
	"fmt"
	"io"
	"os"

	"github.com/lazycsv/lazycsv/internal/bytesrc"
	"github.com/lazycsv/lazycsv/internal/simd"
)

// state is one of the six states from the specification's transition
// table.
type state int

const (
	fieldStart state = iota
	inField
	inQuoted
	afterQuote
	crSeen
	eof
)

func (s state) String() string {
	switch s {
	case fieldStart:
		return "FIELD_START"
	case inField:
		return "IN_FIELD"
	case inQuoted:
		return "IN_QUOTED"
	case afterQuote:
		return "AFTER_QUOTE"
	case crSeen:
		return "CR_SEEN"
	default:
		return "EOF"
	}
}

// Handler receives the two event kinds the lexer emits. Field reports the
// half-open byte range [start, end) of one cell and whether it was a
// quoted field (when Options.Unquote is set, the range already excludes
// the opening and closing quote bytes). RowEnd
// reports a completed row and the absolute offset its terminator began
// at (or the end-of-file offset, for a final unterminated row).
type Handler interface {
	Field(start, end int64, quoted bool)
	RowEnd(offset int64)
}

// Options configures the byte values the lexer treats as delimiter and
// quote, plus whether already-closed quotes are stripped from reported
// field boundaries.
type Options struct {
	Delimiter byte
	Quote     byte
	Unquote   bool
	// Debug, when true, writes one line per state transition to stderr.
	// This is the build-time debug-tracing toggle from the
	// specification, exposed as a runtime field per its own suggestion
	// that such toggles may live on the reader/indexer instead.
	Debug bool
}

// Lexer drives the state machine described in the specification over one
// sequential byte cursor.
type Lexer struct {
	opts Options
}

// New builds a Lexer for the given options.
func New(opts Options) *Lexer {
	return &Lexer{opts: opts}
}

// Run consumes sr to completion, invoking h for every field and row
// boundary. It never allocates per cell; it records absolute file
// offsets only.
func (lx *Lexer) Run(sr *bytesrc.SeqReader, h Handler) error {
	st := fieldStart
	var start int64       // offset of the current field's first byte
	var quoted bool       // whether the current field opened with a quote
	var rowHasField bool  // whether any field has been emitted in this row

	trace := func(from state, b byte, to state, off int64) {
		if lx.opts.Debug {
			fmt.Fprintf(os.Stderr, "lexer: %s --[%q@%d]--> %s\n", from, b, off, to)
		}
	}

	emit := func(end int64) {
		h.Field(start, end, quoted)
		rowHasField = true
	}

	endRow := func(off int64) {
		h.RowEnd(off)
		rowHasField = false
	}

	// fieldStartByte applies the FIELD_START transition for byte b at
	// offset off, used both for a normal FIELD_START byte and for the
	// byte CR_SEEN reprocesses when no LF follows a lone CR.
	fieldStartByte := func(b byte, off int64) state {
		switch {
		case b == lx.opts.Quote:
			if lx.opts.Unquote {
				start = off + 1
			} else {
				start = off
			}
			quoted = true
			return inQuoted
		case b == lx.opts.Delimiter:
			start = off
			quoted = false
			emit(off)
			return fieldStart
		case b == '\r':
			start = off
			quoted = false
			emit(off)
			return crSeen
		case b == '\n':
			start = off
			quoted = false
			emit(off)
			endRow(off)
			return fieldStart
		default:
			start = off
			quoted = false
			return inField
		}
	}

	for {
		// Fast path: bulk-skip runs of non-structural bytes so the byte
		// loop below only ever stops on bytes that actually change
		// state.
		if st == inField {
			if chunk := sr.PeekChunk(); len(chunk) > 0 {
				n := simd.IndexStructural(chunk, lx.opts.Delimiter, lx.opts.Quote)
				if n > 0 {
					sr.Discard(n)
				}
			}
		} else if st == inQuoted {
			if chunk := sr.PeekChunk(); len(chunk) > 0 {
				n := simd.IndexByte(chunk, lx.opts.Quote)
				if n > 0 {
					sr.Discard(n)
				}
			}
		}

		b, off, err := sr.ReadByte()
		if err != nil {
			if err != io.EOF {
				return err
			}
			// EOF: flush a pending field, then a pending row, per spec.
			switch st {
			case afterQuote:
				end := off
				if lx.opts.Unquote {
					end = off - 1
				}
				emit(end)
				st = eof
			case inField, inQuoted:
				emit(off)
				st = eof
			}
			if rowHasField {
				if st == crSeen {
					// The row ended with a lone CR, one byte back.
					endRow(off - 1)
				} else {
					endRow(off)
				}
			}
			return nil
		}

		switch st {
		case fieldStart:
			next := fieldStartByte(b, off)
			trace(st, b, next, off)
			st = next

		case inField:
			switch b {
			case lx.opts.Delimiter:
				emit(off)
				trace(st, b, fieldStart, off)
				st = fieldStart
			case '\r':
				emit(off)
				trace(st, b, crSeen, off)
				st = crSeen
			case '\n':
				emit(off)
				trace(st, b, fieldStart, off)
				endRow(off)
				st = fieldStart
			}
			// else: stay in IN_FIELD.

		case inQuoted:
			if b == lx.opts.Quote {
				trace(st, b, afterQuote, off)
				st = afterQuote
			}
			// else: newlines and everything else stay inside the quote.

		case afterQuote:
			switch {
			case b == lx.opts.Quote:
				// Escaped quote: remain (logically) inside quoted
				// content.
				trace(st, b, inQuoted, off)
				st = inQuoted
			case b == lx.opts.Delimiter:
				end := off
				if lx.opts.Unquote {
					end = off - 1
				}
				emit(end)
				trace(st, b, fieldStart, off)
				st = fieldStart
			case b == '\r':
				end := off
				if lx.opts.Unquote {
					end = off - 1
				}
				emit(end)
				trace(st, b, crSeen, off)
				st = crSeen
			case b == '\n':
				end := off
				if lx.opts.Unquote {
					end = off - 1
				}
				emit(end)
				trace(st, b, fieldStart, off)
				endRow(off)
				st = fieldStart
			default:
				// Tolerant: data after a closing quote joins the field.
				trace(st, b, inField, off)
				st = inField
			}

		case crSeen:
			if b == '\n' {
				trace(st, b, fieldStart, off)
				// Terminator offset is the CR's position, one byte back.
				endRow(off - 1)
				st = fieldStart
				continue
			}
			// End of row now; reprocess b as the first byte of the next
			// row via FIELD_START's own transition. The row terminator was
			// the lone CR, one byte before this one.
			endRow(off - 1)
			next := fieldStartByte(b, off)
			trace(crSeen, b, next, off)
			st = next
		}
	}
}
