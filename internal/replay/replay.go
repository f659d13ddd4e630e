// Package replay implements the write-out side of spec.md §6.2's Writer
// Cooperation contract. The modification log itself (cell edits, row
// deletes, row inserts) is an external collaborator per spec.md §1; the
// core's only obligation is to replay its field iterator against that
// log deterministically and to apply the writer's byte-exact quoting
// rule. Nothing here parses — it only re-serializes rows a RowSource
// already produced.
//
// Grounded on internal/updatemgr/manager.go's row/column override map
// shape (Overrides[row][col] = value), generalized from a JSON sidecar
// keyed by line-number strings to an in-memory log keyed by (row, col)
// pairs, and on internal/writer/writer.go's quoting intent (quote a
// field when it contains the delimiter, the quote byte, CR or LF;
// double an embedded quote) reimplemented byte-oriented against
// io.Writer instead of encoding/csv — see DESIGN.md for why.
package replay

import (
	"bufio"
	"io"
	"sort"
)

// RowSource is the subset of *internal/parser.Parser's iteration API
// Replay needs: a forward cursor over rows already in source order,
// with raw (still possibly quoted) field access. internal/parser.Parser
// satisfies this directly.
type RowSource interface {
	NextRow() bool
	FieldCount() int
	Field(col int) ([]byte, bool)
}

// CellKey identifies one cell of one original row by its 0-based
// source-order row index and column index.
type CellKey struct {
	Row int
	Col int
}

// ModificationLog is the side-mutation table spec.md §1 describes as an
// external collaborator: a set of per-cell edits, a set of deleted
// original rows, and a set of inserted rows keyed by the output
// position at which they should appear.
type ModificationLog struct {
	CellEdits map[CellKey][]byte
	Deleted   map[int]bool
	Inserts   map[int][][][]byte // output position -> ordered list of rows, each a list of field values
}

// NewModificationLog returns an empty log ready for use.
func NewModificationLog() *ModificationLog {
	return &ModificationLog{
		CellEdits: make(map[CellKey][]byte),
		Deleted:   make(map[int]bool),
		Inserts:   make(map[int][][][]byte),
	}
}

// SetCell records that column col of original row row should read value
// instead of its original content when replayed.
func (m *ModificationLog) SetCell(row, col int, value []byte) {
	m.CellEdits[CellKey{row, col}] = value
}

// DeleteRow marks original row row to be omitted from replay.
func (m *ModificationLog) DeleteRow(row int) {
	m.Deleted[row] = true
}

// InsertRowAt appends a row of field values to be emitted once the
// output cursor reaches pos, ahead of whatever original row would
// otherwise be emitted next.
func (m *ModificationLog) InsertRowAt(pos int, fields [][]byte) {
	m.Inserts[pos] = append(m.Inserts[pos], fields)
}

// WriteConfig carries the byte values the quoting rule tests against.
// The zero value is comma-delimited, double-quoted, LF-terminated.
type WriteConfig struct {
	Delimiter byte
	Quote     byte
}

func (c WriteConfig) normalize() WriteConfig {
	if c.Delimiter == 0 {
		c.Delimiter = ','
	}
	if c.Quote == 0 {
		c.Quote = '"'
	}
	return c
}

// Replay walks src in source order per spec.md §6.2's algorithm,
// writing RFC 4180 rows to w:
//
//  1. emit any inserted rows whose output position equals the current
//     output cursor;
//  2. skip the original row if log marks it deleted;
//  3. otherwise emit it, substituting any cell edit for the row, and
//     advance the cursor;
//  4. once every original row has been visited, emit any remaining
//     inserts (those positioned at or past the last original row).
func Replay(src RowSource, log *ModificationLog, w io.Writer, cfg WriteConfig) error {
	cfg = cfg.normalize()
	bw := bufio.NewWriter(w)

	positions := make([]int, 0, len(log.Inserts))
	for pos := range log.Inserts {
		positions = append(positions, pos)
	}
	sort.Ints(positions)

	cursor := 0
	emitInsertsAt := func(pos int) error {
		for _, values := range log.Inserts[pos] {
			fields := make([]fieldOut, len(values))
			for i, v := range values {
				fields[i] = fieldOut{value: v}
			}
			if err := writeRow(bw, fields, cfg); err != nil {
				return err
			}
			cursor++
		}
		return nil
	}
	nextInsertIdx := 0
	// cursor is re-read on every iteration: each emitted insert advances
	// it, which can make the next insert position due as well.
	flushDueInserts := func() error {
		for nextInsertIdx < len(positions) && positions[nextInsertIdx] <= cursor {
			if err := emitInsertsAt(positions[nextInsertIdx]); err != nil {
				return err
			}
			nextInsertIdx++
		}
		return nil
	}

	row := 0
	for src.NextRow() {
		if err := flushDueInserts(); err != nil {
			return err
		}

		if log.Deleted[row] {
			row++
			continue
		}

		n := src.FieldCount()
		fields := make([]fieldOut, n)
		for col := 0; col < n; col++ {
			if edited, ok := log.CellEdits[CellKey{row, col}]; ok {
				fields[col] = fieldOut{value: edited}
				continue
			}
			raw, _ := src.Field(col)
			fields[col] = fieldOut{value: raw, verbatim: true}
		}
		if err := writeRow(bw, fields, cfg); err != nil {
			return err
		}
		cursor++
		row++
	}

	// Remaining inserts: any position not yet reached is emitted here,
	// in position order, regardless of its exact value.
	for ; nextInsertIdx < len(positions); nextInsertIdx++ {
		if err := emitInsertsAt(positions[nextInsertIdx]); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// fieldOut is a field queued for output. verbatim fields are raw bytes
// taken unchanged from the Source View — already valid CSV text,
// including any surrounding quotes — and are written byte-for-byte.
// Non-verbatim fields are logical values (from an edit or an insert)
// and go through WriteField's quoting rule.
type fieldOut struct {
	value    []byte
	verbatim bool
}

func writeRow(w *bufio.Writer, fields []fieldOut, cfg WriteConfig) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(cfg.Delimiter); err != nil {
				return err
			}
		}
		if f.verbatim {
			if _, err := w.Write(f.value); err != nil {
				return err
			}
			continue
		}
		if err := WriteField(w, f.value, cfg); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

// WriteField writes value to w applying spec.md §6.2's quoting rule: a
// field is quoted when it contains the delimiter, the quote byte, CR,
// or LF, and an embedded quote byte is escaped by doubling it. Fields
// that need none of this are written unchanged.
func WriteField(w *bufio.Writer, value []byte, cfg WriteConfig) error {
	cfg = cfg.normalize()
	if !needsQuoting(value, cfg) {
		_, err := w.Write(value)
		return err
	}
	if err := w.WriteByte(cfg.Quote); err != nil {
		return err
	}
	for _, b := range value {
		if b == cfg.Quote {
			if err := w.WriteByte(cfg.Quote); err != nil {
				return err
			}
		}
		if err := w.WriteByte(b); err != nil {
			return err
		}
	}
	return w.WriteByte(cfg.Quote)
}

func needsQuoting(value []byte, cfg WriteConfig) bool {
	for _, b := range value {
		if b == cfg.Delimiter || b == cfg.Quote || b == '\r' || b == '\n' {
			return true
		}
	}
	return false
}
