package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/csvquery/csvcore/internal/token"
)

func TestNextRowIteration(t *testing.T) {
	p := OpenBuffer([]byte("a,b\n1,2\n3,4\n"), Config{})
	defer p.Close()

	var rows [][]string
	for p.NextRow() {
		row := make([]string, p.FieldCount())
		for i := range row {
			v, _ := p.Field(i)
			row[i] = string(v)
		}
		rows = append(rows, row)
	}

	want := [][]string{{"a", "b"}, {"1", "2"}, {"3", "4"}}
	if len(rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rows), len(want))
	}
	for i := range want {
		for j := range want[i] {
			if rows[i][j] != want[i][j] {
				t.Fatalf("row %d field %d = %q, want %q", i, j, rows[i][j], want[i][j])
			}
		}
	}
	if p.NextRow() {
		t.Fatal("NextRow should return false after the last row")
	}
}

func TestFieldUnescapedUsesCache(t *testing.T) {
	p := OpenBuffer([]byte(`"a""b",c`+"\n"), Config{})
	defer p.Close()

	if !p.NextRow() {
		t.Fatal("expected a row")
	}
	if !p.FieldNeedsUnescape(0) {
		t.Fatal("expected field 0 to need unescaping")
	}
	v, ok := p.FieldUnescaped(0)
	if !ok || string(v) != `a"b` {
		t.Fatalf("FieldUnescaped(0) = %q, %v, want %q, true", v, ok, `a"b`)
	}
	if p.CacheSize() == 0 {
		t.Fatal("expected the field cache to record the unescaped value")
	}

	if p.FieldNeedsUnescape(1) {
		t.Fatal("unquoted field 1 should not need unescaping")
	}
}

func TestHeaderConfig(t *testing.T) {
	p := OpenBuffer([]byte("name,age\nalice,30\n"), Config{HasHeader: true})
	defer p.Close()

	if !p.NextRow() {
		t.Fatal("expected the header row")
	}
	if !p.HeaderFound() {
		t.Fatal("expected HeaderFound = true")
	}
	v, _ := p.Field(0)
	if string(v) != "name" {
		t.Fatalf("header field 0 = %q, want %q", v, "name")
	}

	if !p.NextRow() {
		t.Fatal("expected a data row")
	}
	v2, _ := p.Field(0)
	if string(v2) != "alice" {
		t.Fatalf("data field 0 = %q, want %q", v2, "alice")
	}
}

func TestPauseResume(t *testing.T) {
	p := OpenBuffer([]byte("a\nb\n"), Config{})
	defer p.Close()

	p.Pause()
	if p.NextRow() {
		t.Fatal("NextRow should return false while paused")
	}
	p.Resume()
	if !p.NextRow() {
		t.Fatal("NextRow should succeed after Resume")
	}
}

func TestParseAllProjection(t *testing.T) {
	p := OpenBuffer([]byte("a,b\n1,2\n"), Config{})
	defer p.Close()

	arena := p.ParseAll()
	if len(arena) < 16 {
		t.Fatal("structured projection arena too small to hold its header")
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.csv"), Config{})
	if err == nil {
		t.Fatal("expected an error opening a missing file")
	}
}

func TestCheckModified(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(path, []byte("a,b\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := Open(path, Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if p.CheckModified() {
		t.Fatal("CheckModified should be false immediately after Open")
	}
}

func TestCloseIdempotent(t *testing.T) {
	p := OpenBuffer([]byte("a\n"), Config{})
	if err := p.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}

func TestStats(t *testing.T) {
	p := OpenBuffer([]byte("name,val\na,1\nb,2\n"), Config{HasHeader: true})
	defer p.Close()
	for p.NextRow() {
	}
	stats := p.Stats()
	if stats.RowsEmitted != 2 {
		t.Fatalf("RowsEmitted = %d, want 2 (header excluded)", stats.RowsEmitted)
	}
}

func TestTotalRowsAndFields(t *testing.T) {
	p := OpenBuffer([]byte("a,b\n1,2\n3,4\n"), Config{})
	defer p.Close()

	if p.TotalRows() != 3 {
		t.Fatalf("TotalRows() = %d, want 3", p.TotalRows())
	}
	if p.TotalFields() != 6 {
		t.Fatalf("TotalFields() = %d, want 6", p.TotalFields())
	}
}

func TestFieldCountMismatchSurfacesTooManyFields(t *testing.T) {
	p := OpenBuffer([]byte("n,a\nA,1\nB,1,extra\nC,1\n"), Config{HasHeader: true})
	defer p.Close()

	rows := 0
	for p.NextRow() {
		rows++
	}
	if rows != 4 {
		t.Fatalf("got %d rows, want 4 (header + 3 data rows)", rows)
	}

	errs := p.Errors()
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1: %+v", len(errs), errs)
	}
	if errs[0].Kind != token.TooManyFields {
		t.Fatalf("error kind = %v, want TooManyFields", errs[0].Kind)
	}
	if errs[0].RowIndex != 1 {
		t.Fatalf("error row = %d, want 1", errs[0].RowIndex)
	}
}

func TestFieldCountMatchingHeaderRecordsNoError(t *testing.T) {
	p := OpenBuffer([]byte("n,a\nA,1\nB,2\n"), Config{HasHeader: true})
	defer p.Close()
	for p.NextRow() {
	}
	if len(p.Errors()) != 0 {
		t.Fatalf("got %d errors, want 0: %+v", len(p.Errors()), p.Errors())
	}
}

func TestAutoDetectDelimiter(t *testing.T) {
	p := OpenBuffer([]byte("a;b;c\n1;2;3\n"), Config{AutoDetectDelimiter: true})
	defer p.Close()
	if !p.NextRow() {
		t.Fatal("expected a row")
	}
	if p.FieldCount() != 3 {
		t.Fatalf("FieldCount() = %d, want 3 (delimiter should have been detected as ';')", p.FieldCount())
	}
}

func TestAutoDetectDelimiterSkipsPreambleFirst(t *testing.T) {
	// The preamble line itself contains commas and no semicolons; if
	// detection ran before the preamble skip it would sample this line
	// and either fail to detect ';' or pick ',' instead.
	p := OpenBuffer([]byte("some,metadata,line\na;b;c\n1;2;3\n"), Config{
		AutoDetectDelimiter: true,
		SkipFirstNLines:     1,
	})
	defer p.Close()
	if !p.NextRow() {
		t.Fatal("expected a row")
	}
	if p.FieldCount() != 3 {
		t.Fatalf("FieldCount() = %d, want 3 (delimiter should have been detected as ';' from the post-preamble sample)", p.FieldCount())
	}
	v, _ := p.Field(0)
	if string(v) != "a" {
		t.Fatalf("Field(0) = %q, want %q", v, "a")
	}
}
