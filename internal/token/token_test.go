package token

import "testing"

func field(data []byte, f FieldSpan) string {
	return string(data[f.Start : f.Start+f.Length])
}

func TestTokenizeSimple(t *testing.T) {
	data := []byte("a,b,c\n1,2,3\n")
	r := Tokenize(data, Config{})

	if len(r.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(r.Rows))
	}
	want := [][]string{{"a", "b", "c"}, {"1", "2", "3"}}
	for i, row := range r.Rows {
		if int(row.FieldCount) != len(want[i]) {
			t.Fatalf("row %d: field count = %d, want %d", i, row.FieldCount, len(want[i]))
		}
		for j := 0; j < int(row.FieldCount); j++ {
			got := field(data, r.Fields[int(row.FieldStart)+j])
			if got != want[i][j] {
				t.Fatalf("row %d field %d = %q, want %q", i, j, got, want[i][j])
			}
		}
	}
}

func TestTokenizeQuotedField(t *testing.T) {
	data := []byte(`a,"b,c",d` + "\n")
	r := Tokenize(data, Config{})
	if len(r.Rows) != 1 || r.Rows[0].FieldCount != 3 {
		t.Fatalf("unexpected rows: %+v", r.Rows)
	}
	f := r.Fields[1]
	if f.Flags&FlagNeedsUnescape == 0 {
		t.Fatal("quoted field must have FlagNeedsUnescape")
	}
	if got := field(data, f); got != `"b,c"` {
		t.Fatalf("raw span = %q, want %q (quotes included)", got, `"b,c"`)
	}
}

func TestTokenizeDoubledQuoteEscape(t *testing.T) {
	data := []byte(`"a""b",c` + "\n")
	r := Tokenize(data, Config{})
	f := r.Fields[0]
	if got := field(data, f); got != `"a""b"` {
		t.Fatalf("raw span = %q, want %q", got, `"a""b"`)
	}
	if f.Flags&FlagNeedsUnescape == 0 {
		t.Fatal("expected FlagNeedsUnescape")
	}
}

func TestTokenizeCRLF(t *testing.T) {
	data := []byte("a,b\r\nc,d\r\n")
	r := Tokenize(data, Config{})
	if len(r.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(r.Rows))
	}
	last := r.Fields[len(r.Fields)-1]
	if got := field(data, last); got != "d" {
		t.Fatalf("last field = %q, want %q (no trailing CR)", got, "d")
	}
}

func TestTokenizeEmbeddedNewlineInQuotes(t *testing.T) {
	data := []byte("a,\"line1\nline2\",b\n")
	r := Tokenize(data, Config{})
	if len(r.Rows) != 1 {
		t.Fatalf("got %d rows, want 1 (newline was inside quotes)", len(r.Rows))
	}
}

func TestTokenizeMissingClosingQuote(t *testing.T) {
	data := []byte(`a,"unterminated`)
	r := Tokenize(data, Config{})
	if len(r.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(r.Rows))
	}
	if len(r.Errors) != 1 || r.Errors[0].Kind != MissingQuotes {
		t.Fatalf("errors = %+v, want one MissingQuotes", r.Errors)
	}
}

func TestTokenizeQuoteInsideUnquotedField(t *testing.T) {
	data := []byte(`ab"cd,ef` + "\n")
	r := Tokenize(data, Config{})
	if len(r.Errors) != 1 || r.Errors[0].Kind != InvalidQuotes {
		t.Fatalf("errors = %+v, want one InvalidQuotes", r.Errors)
	}
}

func TestTokenizeSkipEmptyRows(t *testing.T) {
	data := []byte("a,b\n\nc,d\n")
	r := Tokenize(data, Config{SkipEmptyRows: true})
	if len(r.Rows) != 2 {
		t.Fatalf("got %d rows, want 2 (blank line suppressed)", len(r.Rows))
	}

	r2 := Tokenize(data, Config{SkipEmptyRows: false})
	if len(r2.Rows) != 3 {
		t.Fatalf("got %d rows, want 3 (blank line kept)", len(r2.Rows))
	}
}

func TestTokenizeCommentLines(t *testing.T) {
	data := []byte("# a comment\na,b\n# another\nc,d\n")
	r := Tokenize(data, Config{CommentByte: '#'})
	if len(r.Rows) != 2 {
		t.Fatalf("got %d rows, want 2, rows=%+v", len(r.Rows), r.Rows)
	}
}

func TestTokenizeHeader(t *testing.T) {
	data := []byte("name,age\nalice,30\nbob,40\n")
	r := Tokenize(data, Config{HasHeader: true})
	if !r.HeaderFound {
		t.Fatal("expected HeaderFound = true")
	}
	if len(r.Rows) != 3 {
		t.Fatalf("got %d rows (header + 2 data), want 3", len(r.Rows))
	}
	header := r.Rows[0]
	if got := field(data, r.Fields[header.FieldStart]); got != "name" {
		t.Fatalf("header field 0 = %q, want %q", got, "name")
	}
}

func TestTokenizePreview(t *testing.T) {
	data := []byte("name,age\na,1\nb,2\nc,3\n")
	r := Tokenize(data, Config{HasHeader: true, Preview: 2})
	if !r.Truncated {
		t.Fatal("expected Truncated = true")
	}
	// header + 2 previewed data rows
	if len(r.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(r.Rows))
	}
}

func TestTokenizeEmptyInput(t *testing.T) {
	r := Tokenize(nil, Config{})
	if len(r.Rows) != 0 || len(r.Fields) != 0 {
		t.Fatalf("expected no rows/fields for empty input, got %+v", r)
	}
}

func TestTokenizeTrailingDelimiterEmitsEmptyField(t *testing.T) {
	data := []byte("a,b,\n")
	r := Tokenize(data, Config{})
	if r.Rows[0].FieldCount != 3 {
		t.Fatalf("field count = %d, want 3", r.Rows[0].FieldCount)
	}
	last := r.Fields[2]
	if last.Length != 0 {
		t.Fatalf("trailing field length = %d, want 0", last.Length)
	}
	if last.Flags&FlagNullSentinel == 0 {
		t.Fatal("expected FlagNullSentinel on empty unquoted field")
	}
}

func TestSkipPreambleLines(t *testing.T) {
	data := []byte("junk line 1\r\njunk line 2\na,b\n")
	off := SkipPreambleLines(data, 2)
	if string(data[off:]) != "a,b\n" {
		t.Fatalf("SkipPreambleLines left %q, want %q", data[off:], "a,b\n")
	}
}
