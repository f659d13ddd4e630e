// Package projection implements the eager projection builders from
// spec.md §4.6: structured, delimited, and position-only byte layouts,
// each built in a single allocate-then-offset-write pass over a
// tokenizer result, mirroring the teacher's IndexRecord binary-layout
// helpers (one big buffer, fixed-width fields written at computed
// offsets, no incremental io.Writer calls).
//
// All multi-byte integers are written little-endian: these layouts
// exist to be read by a foreign caller across the cgo boundary (see
// cmd/libcsvcore), and the host toolchain for that boundary is
// overwhelmingly little-endian (amd64/arm64).
package projection

import (
	"encoding/binary"

	"github.com/csvquery/csvcore/internal/token"
)

// Unescape returns the logical value of a field: the raw bytes
// untouched when span.Flags has no FlagNeedsUnescape, or with the
// surrounding quote pair stripped and every doubled quote collapsed to
// one when it does (spec.md §3 Field Span semantics).
func Unescape(source []byte, span token.FieldSpan, quote byte) []byte {
	raw := source[span.Start : span.Start+span.Length]
	if span.Flags&token.FlagNeedsUnescape == 0 {
		return raw
	}
	if len(raw) < 2 {
		return raw
	}
	inner := raw[1 : len(raw)-1]

	out := make([]byte, 0, len(inner))
	for i := 0; i < len(inner); i++ {
		if inner[i] == quote && i+1 < len(inner) && inner[i+1] == quote {
			out = append(out, quote)
			i++
			continue
		}
		out = append(out, inner[i])
	}
	return out
}

// headerSize is the 16-byte structured-projection header: total_rows,
// total_fields, data_size, pad (all u32).
const headerSize = 16

// BuildStructured produces the structured projection arena for
// rows[start:start+count] (count<0 means "all remaining rows").
// Returns the arena and whether more rows remain past what was built.
func BuildStructured(source []byte, quote byte, rows []token.RowDescriptor, fields []token.FieldSpan, start, count int) (arena []byte, hasMore bool) {
	if count < 0 || start+count > len(rows) {
		count = len(rows) - start
	}
	slice := rows[start : start+count]
	hasMore = start+count < len(rows)

	totalFields := 0
	for _, r := range slice {
		totalFields += int(r.FieldCount)
	}

	values := make([][]byte, totalFields)
	dataSize := 0
	idx := 0
	for _, r := range slice {
		for f := 0; f < int(r.FieldCount); f++ {
			v := Unescape(source, fields[int(r.FieldStart)+f], quote)
			values[idx] = v
			dataSize += len(v)
			idx++
		}
	}

	rowCountsOff := headerSize
	fieldOffsetsOff := rowCountsOff + len(slice)*4
	fieldLengthsOff := fieldOffsetsOff + totalFields*4
	dataOff := fieldLengthsOff + totalFields*4
	arena = make([]byte, dataOff+dataSize)

	binary.LittleEndian.PutUint32(arena[0:4], uint32(len(slice)))
	binary.LittleEndian.PutUint32(arena[4:8], uint32(totalFields))
	binary.LittleEndian.PutUint32(arena[8:12], uint32(dataSize))

	for i, r := range slice {
		binary.LittleEndian.PutUint32(arena[rowCountsOff+i*4:rowCountsOff+i*4+4], uint32(r.FieldCount))
	}

	dataCursor := dataOff
	for i, v := range values {
		binary.LittleEndian.PutUint32(arena[fieldOffsetsOff+i*4:fieldOffsetsOff+i*4+4], uint32(dataCursor-dataOff))
		binary.LittleEndian.PutUint32(arena[fieldLengthsOff+i*4:fieldLengthsOff+i*4+4], uint32(len(v)))
		copy(arena[dataCursor:dataCursor+len(v)], v)
		dataCursor += len(v)
	}

	return arena, hasMore
}

// BuildDelimited produces the "fast" delimited projection: every field
// is followed by \x00 and every row by \x01, including the last ones.
func BuildDelimited(source []byte, quote byte, rows []token.RowDescriptor, fields []token.FieldSpan) []byte {
	const fieldSep, rowSep = 0x00, 0x01

	size := 0
	for _, r := range rows {
		for f := 0; f < int(r.FieldCount); f++ {
			span := fields[int(r.FieldStart)+f]
			size += unescapedLen(source, span, quote)
		}
		size += int(r.FieldCount) // field separators, one trailing per field including the last before the row separator
	}
	size += len(rows) // row separators

	out := make([]byte, 0, size)
	for _, r := range rows {
		for f := 0; f < int(r.FieldCount); f++ {
			v := Unescape(source, fields[int(r.FieldStart)+f], quote)
			out = append(out, v...)
			out = append(out, fieldSep)
		}
		out = append(out, rowSep)
	}
	return out
}

// positionRecordSize is the {start u32, len u16, needs_unescape u8,
// pad u8} record from spec.md §4.6.
const positionRecordSize = 8

// BuildPositions produces the position-only projection: one fixed
// record per field (raw span, no unescaping performed) plus one u16
// field count per row.
func BuildPositions(rows []token.RowDescriptor, fields []token.FieldSpan) []byte {
	out := make([]byte, len(fields)*positionRecordSize+len(rows)*2)

	for i, f := range fields {
		off := i * positionRecordSize
		binary.LittleEndian.PutUint32(out[off:off+4], f.Start)
		binary.LittleEndian.PutUint16(out[off+4:off+6], uint16(f.Length))
		needsUnescape := byte(0)
		if f.Flags&token.FlagNeedsUnescape != 0 {
			needsUnescape = 1
		}
		out[off+6] = needsUnescape
		out[off+7] = 0
	}

	countsOff := len(fields) * positionRecordSize
	for i, r := range rows {
		binary.LittleEndian.PutUint16(out[countsOff+i*2:countsOff+i*2+2], r.FieldCount)
	}
	return out
}

func unescapedLen(source []byte, span token.FieldSpan, quote byte) int {
	if span.Flags&token.FlagNeedsUnescape == 0 {
		return int(span.Length)
	}
	return len(Unescape(source, span, quote))
}
