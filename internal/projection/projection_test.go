package projection

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/csvquery/csvcore/internal/token"
)

func tokenize(t *testing.T, data string) (*token.Result, []byte) {
	t.Helper()
	src := []byte(data)
	r := token.Tokenize(src, token.Config{})
	return r, src
}

func TestUnescapeStripsQuotesAndDoubles(t *testing.T) {
	r, src := tokenize(t, `"a""b",c`+"\n")
	got := Unescape(src, r.Fields[0], '"')
	if string(got) != `a"b` {
		t.Fatalf("Unescape = %q, want %q", got, `a"b`)
	}
	got2 := Unescape(src, r.Fields[1], '"')
	if string(got2) != "c" {
		t.Fatalf("Unescape (unquoted) = %q, want %q", got2, "c")
	}
}

func TestBuildStructuredLayout(t *testing.T) {
	r, src := tokenize(t, "a,bb\nccc,d\n")
	arena, hasMore := BuildStructured(src, '"', r.Rows, r.Fields, 0, -1)
	if hasMore {
		t.Fatal("hasMore should be false when all rows requested")
	}

	totalRows := binary.LittleEndian.Uint32(arena[0:4])
	totalFields := binary.LittleEndian.Uint32(arena[4:8])
	dataSize := binary.LittleEndian.Uint32(arena[8:12])

	if totalRows != 2 {
		t.Fatalf("total_rows = %d, want 2", totalRows)
	}
	if totalFields != 4 {
		t.Fatalf("total_fields = %d, want 4", totalFields)
	}
	if int(dataSize) != len("a")+len("bb")+len("ccc")+len("d") {
		t.Fatalf("data_size = %d, want %d", dataSize, len("a")+len("bb")+len("ccc")+len("d"))
	}

	rowCountsOff := 16
	fieldOffsetsOff := rowCountsOff + 2*4
	fieldLengthsOff := fieldOffsetsOff + 4*4
	dataOff := fieldLengthsOff + 4*4

	if c := binary.LittleEndian.Uint32(arena[rowCountsOff : rowCountsOff+4]); c != 2 {
		t.Fatalf("row 0 field count = %d, want 2", c)
	}

	off0 := binary.LittleEndian.Uint32(arena[fieldOffsetsOff : fieldOffsetsOff+4])
	len0 := binary.LittleEndian.Uint32(arena[fieldLengthsOff : fieldLengthsOff+4])
	if got := string(arena[dataOff+int(off0) : dataOff+int(off0)+int(len0)]); got != "a" {
		t.Fatalf("field 0 data = %q, want %q", got, "a")
	}
}

func TestBuildStructuredBatching(t *testing.T) {
	r, src := tokenize(t, "a\nb\nc\nd\n")
	arena, hasMore := BuildStructured(src, '"', r.Rows, r.Fields, 0, 2)
	if !hasMore {
		t.Fatal("expected hasMore = true with 4 rows and a batch of 2")
	}
	totalRows := binary.LittleEndian.Uint32(arena[0:4])
	if totalRows != 2 {
		t.Fatalf("total_rows = %d, want 2", totalRows)
	}

	arena2, hasMore2 := BuildStructured(src, '"', r.Rows, r.Fields, 2, 2)
	if hasMore2 {
		t.Fatal("expected hasMore = false on the final batch")
	}
	totalRows2 := binary.LittleEndian.Uint32(arena2[0:4])
	if totalRows2 != 2 {
		t.Fatalf("total_rows = %d, want 2", totalRows2)
	}
}

func TestBuildDelimited(t *testing.T) {
	r, src := tokenize(t, "a,b\nc,d\n")
	out := BuildDelimited(src, '"', r.Rows, r.Fields)
	want := []byte{'a', 0x00, 'b', 0x00, 0x01, 'c', 0x00, 'd', 0x00, 0x01}
	if !bytes.Equal(out, want) {
		t.Fatalf("BuildDelimited = %v, want %v", out, want)
	}
}

func TestBuildPositions(t *testing.T) {
	r, src := tokenize(t, "a,bb\n")
	out := BuildPositions(r.Rows, r.Fields)

	start0 := binary.LittleEndian.Uint32(out[0:4])
	len0 := binary.LittleEndian.Uint16(out[4:6])
	if string(src[start0:uint32(start0)+uint32(len0)]) != "a" {
		t.Fatalf("record 0 = %q, want %q", src[start0:uint32(start0)+uint32(len0)], "a")
	}

	countsOff := len(r.Fields) * positionRecordSize
	count0 := binary.LittleEndian.Uint16(out[countsOff : countsOff+2])
	if count0 != 2 {
		t.Fatalf("row 0 field count = %d, want 2", count0)
	}
}
