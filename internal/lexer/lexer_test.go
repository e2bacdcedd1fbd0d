package lexer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lazycsv/lazycsv/internal/bytesrc"
)

type field struct {
	start, end int64
	quoted     bool
}

type recorder struct {
	fields  []field
	rowEnds []int64
}

func (r *recorder) Field(start, end int64, quoted bool) {
	r.fields = append(r.fields, field{start, end, quoted})
}

func (r *recorder) RowEnd(offset int64) {
	r.rowEnds = append(r.rowEnds, offset)
}

func run(t *testing.T, input string, opts Options) *recorder {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "in.csv")
	if err := os.WriteFile(path, []byte(input), 0644); err != nil {
		t.Fatal(err)
	}
	src, err := bytesrc.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	rec := &recorder{}
	lx := New(opts)
	if err := lx.Run(src.Reader(16), rec); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return rec
}

func cell(t *testing.T, src string, f field) string {
	t.Helper()
	return src[f.start:f.end]
}

func TestSimpleRow(t *testing.T) {
	input := "a,b,c\n"
	rec := run(t, input, Options{Delimiter: ',', Quote: '"'})
	if len(rec.fields) != 3 {
		t.Fatalf("got %d fields, want 3", len(rec.fields))
	}
	want := []string{"a", "b", "c"}
	for i, f := range rec.fields {
		if got := cell(t, input, f); got != want[i] {
			t.Errorf("field %d: got %q, want %q", i, got, want[i])
		}
		if f.quoted {
			t.Errorf("field %d: unexpectedly quoted", i)
		}
	}
	if len(rec.rowEnds) != 1 || rec.rowEnds[0] != 5 {
		t.Errorf("rowEnds = %v, want [5]", rec.rowEnds)
	}
}

func TestQuotedFieldUnquote(t *testing.T) {
	input := `a,"bc",d` + "\n"
	rec := run(t, input, Options{Delimiter: ',', Quote: '"', Unquote: true})
	if len(rec.fields) != 3 {
		t.Fatalf("got %d fields, want 3", len(rec.fields))
	}
	if got := cell(t, input, rec.fields[1]); got != "bc" {
		t.Errorf("quoted field = %q, want %q", got, "bc")
	}
	if !rec.fields[1].quoted {
		t.Error("expected quoted flag set")
	}
}

func TestQuotedFieldNoUnquote(t *testing.T) {
	input := `a,"bc",d` + "\n"
	rec := run(t, input, Options{Delimiter: ',', Quote: '"', Unquote: false})
	if got := cell(t, input, rec.fields[1]); got != `"bc"` {
		t.Errorf("quoted field = %q, want %q", got, `"bc"`)
	}
}

func TestEscapedQuote(t *testing.T) {
	input := `"a""b",c` + "\n"
	rec := run(t, input, Options{Delimiter: ',', Quote: '"', Unquote: true})
	if got := cell(t, input, rec.fields[0]); got != `a""b` {
		t.Errorf("escaped field = %q, want %q", got, `a""b`)
	}
}

func TestCRLFRowEnd(t *testing.T) {
	input := "a,b\r\nc,d\r\n"
	rec := run(t, input, Options{Delimiter: ',', Quote: '"'})
	if len(rec.rowEnds) != 2 {
		t.Fatalf("got %d row ends, want 2", len(rec.rowEnds))
	}
	// terminator offset is the CR's own position.
	if rec.rowEnds[0] != 3 {
		t.Errorf("first rowEnd = %d, want 3", rec.rowEnds[0])
	}
	if rec.rowEnds[1] != 8 {
		t.Errorf("second rowEnd = %d, want 8", rec.rowEnds[1])
	}
}

func TestLoneCR(t *testing.T) {
	input := "a,b\rc,d\n"
	rec := run(t, input, Options{Delimiter: ',', Quote: '"'})
	if len(rec.rowEnds) != 2 {
		t.Fatalf("got %d row ends, want 2", len(rec.rowEnds))
	}
	if rec.rowEnds[0] != 3 {
		t.Errorf("first rowEnd = %d, want 3", rec.rowEnds[0])
	}
}

func TestNoTrailingNewline(t *testing.T) {
	input := "a,b,c"
	rec := run(t, input, Options{Delimiter: ',', Quote: '"'})
	if len(rec.fields) != 3 {
		t.Fatalf("got %d fields, want 3", len(rec.fields))
	}
	if len(rec.rowEnds) != 1 || rec.rowEnds[0] != int64(len(input)) {
		t.Errorf("rowEnds = %v, want [%d]", rec.rowEnds, len(input))
	}
}

func TestEmbeddedNewlineInQuotes(t *testing.T) {
	input := "a,\"b\nc\",d\n"
	rec := run(t, input, Options{Delimiter: ',', Quote: '"', Unquote: true})
	if len(rec.rowEnds) != 1 {
		t.Fatalf("got %d row ends, want 1 (newline inside quotes must not end the row)", len(rec.rowEnds))
	}
	if got := cell(t, input, rec.fields[1]); got != "b\nc" {
		t.Errorf("quoted field = %q, want %q", got, "b\nc")
	}
}

func TestEmptyFields(t *testing.T) {
	input := ",,\n"
	rec := run(t, input, Options{Delimiter: ',', Quote: '"'})
	if len(rec.fields) != 3 {
		t.Fatalf("got %d fields, want 3", len(rec.fields))
	}
	for i, f := range rec.fields {
		if f.start != f.end {
			t.Errorf("field %d: expected empty, got [%d,%d)", i, f.start, f.end)
		}
	}
}

func TestMultipleRows(t *testing.T) {
	input := "a,b\nc,d\ne,f\n"
	rec := run(t, input, Options{Delimiter: ',', Quote: '"'})
	if len(rec.rowEnds) != 3 {
		t.Fatalf("got %d row ends, want 3", len(rec.rowEnds))
	}
	if len(rec.fields) != 6 {
		t.Fatalf("got %d fields, want 6", len(rec.fields))
	}
}

func TestTolerantDataAfterClosingQuote(t *testing.T) {
	input := "\"ab\"cd,e\n"
	rec := run(t, input, Options{Delimiter: ',', Quote: '"', Unquote: true})
	if got := cell(t, input, rec.fields[0]); got != `ab"cd` {
		t.Errorf("field = %q, want %q", got, `ab"cd`)
	}
}
