package reader

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/lazycsv/lazycsv/internal/indexer"
)

func buildIndex(t *testing.T, content string, opts indexer.Options) (*Reader, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	csvPath := filepath.Join(tmpDir, "data.csv")
	if err := os.WriteFile(csvPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	indexDir := filepath.Join(tmpDir, "idx")
	if _, err := indexer.Build(csvPath, indexDir, opts); err != nil {
		t.Fatalf("Build: %v", err)
	}
	rd, err := Open(indexDir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return rd, func() { rd.Close() }
}

func TestCellBasic(t *testing.T) {
	rd, closeFn := buildIndex(t, "id,name,value\n1,alice,100\n2,bob,200\n", indexer.Options{Unquote: true})
	defer closeFn()

	cases := []struct {
		row, col int
		want     string
	}{
		{0, 0, "1"}, {0, 1, "alice"}, {0, 2, "100"},
		{1, 0, "2"}, {1, 1, "bob"}, {1, 2, "200"},
	}
	for _, c := range cases {
		got, err := rd.Cell(c.row, c.col)
		if err != nil {
			t.Fatalf("Cell(%d,%d): %v", c.row, c.col, err)
		}
		if string(got) != c.want {
			t.Errorf("Cell(%d,%d) = %q, want %q", c.row, c.col, got, c.want)
		}
	}
}

func TestCellNegativeIndices(t *testing.T) {
	rd, closeFn := buildIndex(t, "a,b,c\n1,2,3\n4,5,6\n", indexer.Options{Unquote: true})
	defer closeFn()

	got, err := rd.Cell(-1, -1)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "6" {
		t.Errorf("Cell(-1,-1) = %q, want %q", got, "6")
	}
}

func TestCellOutOfRange(t *testing.T) {
	rd, closeFn := buildIndex(t, "a,b\n1,2\n", indexer.Options{Unquote: true})
	defer closeFn()

	if _, err := rd.Cell(5, 0); err == nil {
		t.Error("expected OutOfRange error for row 5")
	}
	if _, err := rd.Cell(0, 5); err == nil {
		t.Error("expected OutOfRange error for col 5")
	}
}

func TestQuotedFieldUnquote(t *testing.T) {
	rd, closeFn := buildIndex(t, "a,b\n1,\"hello, world\"\n", indexer.Options{Unquote: true})
	defer closeFn()

	got, err := rd.Cell(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello, world" {
		t.Errorf("Cell(0,1) = %q, want %q", got, "hello, world")
	}
}

func TestQuotedFieldNoUnquote(t *testing.T) {
	rd, closeFn := buildIndex(t, "a,b\n1,\"hello, world\"\n", indexer.Options{Unquote: false})
	defer closeFn()

	got, err := rd.Cell(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `"hello, world"` {
		t.Errorf("Cell(0,1) = %q, want %q", got, `"hello, world"`)
	}
}

func TestRaggedRowNarrowPadsEmpty(t *testing.T) {
	rd, closeFn := buildIndex(t, "a,b,c\n1,2,3\n4,5\n", indexer.Options{Unquote: true})
	defer closeFn()

	got, err := rd.Cell(1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("Cell(1,2) = %q, want empty", got)
	}
	got, err = rd.Cell(1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "5" {
		t.Errorf("Cell(1,1) = %q, want %q", got, "5")
	}
}

func TestRaggedRowWideDiscardsExcess(t *testing.T) {
	rd, closeFn := buildIndex(t, "a,b\n1,2,3,4\n", indexer.Options{Unquote: true})
	defer closeFn()

	if rd.Cols() != 2 {
		t.Fatalf("Cols() = %d, want 2", rd.Cols())
	}
	got, err := rd.Cell(0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "2" {
		t.Errorf("Cell(0,1) = %q, want %q", got, "2")
	}
}

func TestColIter(t *testing.T) {
	rd, closeFn := buildIndex(t, "a,b\n1,x\n2,y\n3,z\n", indexer.Options{Unquote: true})
	defer closeFn()

	it, err := rd.ColIter(0, false)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for {
		cell, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(cell))
	}
	want := []string{"1", "2", "3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestColIterReversed(t *testing.T) {
	rd, closeFn := buildIndex(t, "a\n1\n2\n3\n", indexer.Options{Unquote: true})
	defer closeFn()

	it, err := rd.ColIter(0, true)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for {
		cell, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(cell))
	}
	want := []string{"3", "2", "1"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRowIter(t *testing.T) {
	rd, closeFn := buildIndex(t, "a,b,c\n1,2,3\n", indexer.Options{Unquote: true})
	defer closeFn()

	it, err := rd.RowIter(0, false)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for {
		cell, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, string(cell))
	}
	want := []string{"1", "2", "3"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSliceBasic(t *testing.T) {
	rd, closeFn := buildIndex(t, "a,b,c\n1,2,3\n4,5,6\n7,8,9\n", indexer.Options{Unquote: true})
	defer closeFn()

	one := 1
	rows, err := rd.Slice(Slice{Stop: &one}, Slice{})
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d cells, want 3 (1 row x 3 cols)", len(rows))
	}
	want := []string{"1", "2", "3"}
	for i := range want {
		if string(rows[i]) != want[i] {
			t.Errorf("rows[%d] = %q, want %q", i, rows[i], want[i])
		}
	}
}

func TestSliceStep(t *testing.T) {
	rd, closeFn := buildIndex(t, "a\n1\n2\n3\n4\n5\n", indexer.Options{Unquote: true})
	defer closeFn()

	rows, err := rd.Slice(Slice{Step: 2}, Slice{})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"1", "3", "5"}
	if len(rows) != len(want) {
		t.Fatalf("got %d cells, want %d", len(rows), len(want))
	}
	for i := range want {
		if string(rows[i]) != want[i] {
			t.Errorf("rows[%d] = %q, want %q", i, rows[i], want[i])
		}
	}
}

func TestHeadersAndShape(t *testing.T) {
	rd, closeFn := buildIndex(t, "id,name\n1,a\n2,b\n", indexer.Options{Unquote: true})
	defer closeFn()

	headers := rd.Headers()
	if len(headers) != 2 || string(headers[0]) != "id" || string(headers[1]) != "name" {
		t.Errorf("Headers() = %v", headers)
	}
	if rd.Rows() != 2 {
		t.Errorf("Rows() = %d, want 2", rd.Rows())
	}
	if rd.Cols() != 2 {
		t.Errorf("Cols() = %d, want 2", rd.Cols())
	}
}

// TestSmallBufferSizeStraddlesBoundaries drives the full indexing
// pipeline with sequential read buffers of at most a few rows' length
// (sizes below 16 run as 16), forcing delimiters, a quoted comma, an
// escaped quote, and a CRLF
// terminator to each land on a buffer refill at some point during the
// scan. Output must be identical to a default-sized buffer run.
func TestSmallBufferSizeStraddlesBoundaries(t *testing.T) {
	content := "id,name,note\r\n" +
		"1,alice,\"hello, world\"\r\n" +
		"2,bob,\"she said \"\"hi\"\"\"\r\n" +
		"3,carol,plain\r\n"

	want := [][]string{
		{"1", "alice", "hello, world"},
		{"2", "bob", `she said ""hi""`},
		{"3", "carol", "plain"},
	}

	for _, bufSize := range []int{4, 8, 16, 17, 32} {
		t.Run(fmt.Sprintf("buffer_%d", bufSize), func(t *testing.T) {
			rd, closeFn := buildIndex(t, content, indexer.Options{Unquote: true, BufferSize: bufSize})
			defer closeFn()

			if rd.Rows() != len(want) {
				t.Fatalf("Rows() = %d, want %d", rd.Rows(), len(want))
			}
			for row := range want {
				for col := range want[row] {
					got, err := rd.Cell(row, col)
					if err != nil {
						t.Fatalf("Cell(%d,%d): %v", row, col, err)
					}
					if string(got) != want[row][col] {
						t.Errorf("Cell(%d,%d) = %q, want %q", row, col, got, want[row][col])
					}
				}
			}
		})
	}
}

func TestStaleAfterSourceChanges(t *testing.T) {
	tmpDir := t.TempDir()
	csvPath := filepath.Join(tmpDir, "data.csv")
	if err := os.WriteFile(csvPath, []byte("a,b\n1,2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	indexDir := filepath.Join(tmpDir, "idx")
	if _, err := indexer.Build(csvPath, indexDir, indexer.Options{}); err != nil {
		t.Fatal(err)
	}
	rd, err := Open(indexDir)
	if err != nil {
		t.Fatal(err)
	}
	defer rd.Close()

	stale, err := rd.Stale()
	if err != nil {
		t.Fatal(err)
	}
	if stale {
		t.Error("expected fresh index immediately after build")
	}

	if err := os.WriteFile(csvPath, []byte("a,b\n1,2\n3,4\n"), 0644); err != nil {
		t.Fatal(err)
	}
	stale, err = rd.Stale()
	if err != nil {
		t.Fatal(err)
	}
	if !stale {
		t.Error("expected stale after source file changed")
	}
}
