// Package token implements the row tokenizer described in spec.md
// §4.4: a state machine that walks a byte buffer (plus the vectorized
// bitmaps from internal/simd) and produces field spans and row
// descriptors without copying or unescaping anything. Unescaping is the
// field cache's job; the tokenizer only ever records where a field's
// raw bytes live and whether the host will need to strip quotes from
// them later.
package token

import (
	"math/bits"

	"github.com/csvquery/csvcore/internal/simd"
)

// Flag bits for FieldSpan.Flags.
const (
	FlagNeedsUnescape  uint8 = 1 << 0
	FlagNullSentinel   uint8 = 1 << 1
)

// FieldSpan locates a field's raw bytes in the source. When the field
// was quoted, Start points at the opening quote byte and the span
// includes both surrounding quotes; the host strips them (and unescapes
// doubled quotes) only when FlagNeedsUnescape is set.
type FieldSpan struct {
	Start  uint32
	Length uint32
	Flags  uint8
}

// RowDescriptor locates a row's fields in the flat field array returned
// alongside it: fields[FieldStart : FieldStart+FieldCount].
type RowDescriptor struct {
	FieldStart uint32
	FieldCount uint16
}

// ErrorKind enumerates the per-row conditions surfaced to the host
// (spec.md §7). InvalidQuotes and MissingQuotes are raised by the
// tokenizer itself; TooFewFields and TooManyFields are raised one
// level up, by internal/parser comparing each row's field count
// against the header's, since the tokenizer enforces no schema. All
// are non-fatal: parsing always continues after recording one.
type ErrorKind int

const (
	InvalidQuotes ErrorKind = iota + 1
	MissingQuotes
	TooFewFields
	TooManyFields
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidQuotes:
		return "InvalidQuotes"
	case MissingQuotes:
		return "MissingQuotes"
	case TooFewFields:
		return "TooFewFields"
	case TooManyFields:
		return "TooManyFields"
	default:
		return "unknown"
	}
}

// RowError pairs a non-fatal condition with the row and byte offset it
// was observed at.
type RowError struct {
	RowIndex int
	Pos      uint32
	Kind     ErrorKind
}

// Config holds the subset of the parser configuration the tokenizer
// needs (spec.md §3 "Parser Configuration"). Zero-value Delimiter/
// Quote/Escape are replaced with RFC 4180 defaults by Normalize.
type Config struct {
	Delimiter       byte
	Quote           byte
	Escape          byte
	CommentByte     byte // 0 disables comment-line skipping
	SkipEmptyRows   bool
	HasHeader       bool
	Preview         int // 0 = unlimited; header row doesn't count against it
	SkipFirstNLines int
}

// Normalize fills in defaults: delimiter ',', quote '"', escape = quote.
func (c Config) Normalize() Config {
	if c.Delimiter == 0 {
		c.Delimiter = ','
	}
	if c.Quote == 0 {
		c.Quote = '"'
	}
	if c.Escape == 0 {
		c.Escape = c.Quote
	}
	return c
}

// Result is the full output of a single Tokenize call: a flat field
// array, the row descriptors that slice it, whether a header row was
// consumed, whether output was truncated by Preview, and any non-fatal
// row errors encountered along the way.
type Result struct {
	Fields      []FieldSpan
	Rows        []RowDescriptor
	HeaderFound bool
	Truncated   bool
	Errors      []RowError
}

// tokenizer state machine states (spec.md §4.4).
type state int

const (
	stateFieldStart state = iota
	stateUnquoted
	stateQuoted
	stateQuotedPossibleEscape
)

// Tokenize scans data (already positioned at the start of the region to
// parse — the caller applies skip_first_n_lines and BOM stripping
// beforehand via internal/detect) and produces every field span and row
// descriptor it contains, honoring cfg's comment/empty-row/preview
// policies.
func Tokenize(data []byte, cfg Config) *Result {
	cfg = cfg.Normalize()

	m := simd.NewMasks(len(data))
	simd.Scan(data, cfg.Delimiter, cfg.Quote, '\r', '\n', m)
	term := orMasks(m.CRs, m.LFs)
	unquotedStop := orMasks(term, m.Delims)

	tz := &tokenizer{
		data:         data,
		cfg:          cfg,
		masks:        m,
		term:         term,
		unquotedStop: unquotedStop,
		result:       &Result{},
	}
	tz.run()
	return tz.result
}

type tokenizer struct {
	data         []byte
	cfg          Config
	masks        *simd.Masks
	term         []uint64 // CR | LF
	unquotedStop []uint64 // CR | LF | delimiter

	pos           int
	fieldStart    int
	fieldQuoted   bool
	rowFieldStart int
	state         state
	headerTaken   bool
	dataRows      int

	result *Result
}

func (tz *tokenizer) run() {
	n := len(tz.data)
	for tz.pos <= n {
		switch tz.state {
		case stateFieldStart:
			if tz.handleFieldStart(n) {
				return
			}
		case stateUnquoted:
			if tz.handleUnquoted(n) {
				return
			}
		case stateQuoted:
			if tz.handleQuoted(n) {
				return
			}
		case stateQuotedPossibleEscape:
			if tz.handleQuotedPossibleEscape(n) {
				return
			}
		}
		if tz.pos >= n && tz.state == stateFieldStart && tz.rowFieldStart == len(tz.result.Fields) {
			// Clean EOF with nothing pending: no trailing empty row.
			return
		}
	}
}

// handleFieldStart processes the FieldStart row of spec.md §4.4's
// transition table. Returns true when the scan is finished (EOF or
// preview truncation).
func (tz *tokenizer) handleFieldStart(n int) bool {
	if tz.atCommentStart() {
		tz.skipCommentLine(n)
		return tz.pos > n
	}

	next := nextSetBit(tz.masks.Interest, tz.pos, n)
	if next == -1 {
		if tz.pos >= n {
			if tz.rowFieldStart < len(tz.result.Fields) {
				// The input ended right after a delimiter: the empty
				// last field still closes the pending row.
				tz.fieldQuoted = false
				tz.emit(n, n, 0)
				tz.finalizeRow()
			}
			return true
		}
		tz.fieldStart = tz.pos
		tz.fieldQuoted = false
		tz.pos = n
		tz.state = stateUnquoted
		return false
	}
	if next > tz.pos {
		tz.fieldStart = tz.pos
		tz.fieldQuoted = false
		tz.pos = next
		tz.state = stateUnquoted
		return false
	}

	b := tz.data[tz.pos]
	switch {
	case b == tz.cfg.Delimiter:
		tz.fieldQuoted = false
		tz.emit(tz.pos, tz.pos, 0)
		tz.pos++
	case b == tz.cfg.Quote:
		tz.fieldStart = tz.pos
		tz.fieldQuoted = true
		tz.pos++
		tz.state = stateQuoted
	case b == '\r' || b == '\n':
		tz.fieldQuoted = false
		tz.emit(tz.pos, tz.pos, 0)
		tz.advancePastTerminator(b)
		return tz.finalizeRow()
	}
	return false
}

// handleUnquoted processes the Unquoted row: only delimiter/CR/LF end
// the field, quote bytes are literal.
func (tz *tokenizer) handleUnquoted(n int) bool {
	next := nextSetBit(tz.unquotedStop, tz.pos, n)
	if next == -1 {
		tz.reportInvalidQuotesIfAny(tz.fieldStart, n)
		tz.emit(tz.fieldStart, n, 0)
		tz.pos = n
		return tz.finalizeRow()
	}

	tz.reportInvalidQuotesIfAny(tz.fieldStart, next)
	b := tz.data[next]
	switch b {
	case tz.cfg.Delimiter:
		tz.emit(tz.fieldStart, next, 0)
		tz.pos = next + 1
		tz.state = stateFieldStart
		return false
	case '\r', '\n':
		tz.emit(tz.fieldStart, next, 0)
		tz.pos = next
		tz.advancePastTerminator(b)
		return tz.finalizeRow()
	}
	return false
}

// handleQuoted processes the Quoted row: every byte is literal except a
// quote, which moves to QuotedPossibleEscape.
func (tz *tokenizer) handleQuoted(n int) bool {
	next := nextSetBit(tz.masks.Quotes, tz.pos, n)
	if next == -1 {
		tz.result.Errors = append(tz.result.Errors, RowError{
			RowIndex: len(tz.result.Rows),
			Pos:      uint32(tz.fieldStart),
			Kind:     MissingQuotes,
		})
		tz.emit(tz.fieldStart, n, FlagNeedsUnescape)
		tz.pos = n
		return tz.finalizeRow()
	}
	tz.pos = next + 1
	tz.state = stateQuotedPossibleEscape
	return false
}

// handleQuotedPossibleEscape processes exactly the one byte following a
// closing quote.
func (tz *tokenizer) handleQuotedPossibleEscape(n int) bool {
	if tz.pos >= n {
		tz.emit(tz.fieldStart, tz.pos, FlagNeedsUnescape)
		return tz.finalizeRow()
	}

	b := tz.data[tz.pos]
	switch {
	case b == tz.cfg.Quote || (tz.cfg.Escape != tz.cfg.Quote && b == tz.cfg.Escape):
		tz.pos++
		tz.state = stateQuoted
	case b == tz.cfg.Delimiter:
		tz.emit(tz.fieldStart, tz.pos, FlagNeedsUnescape)
		tz.pos++
		tz.state = stateFieldStart
	case b == '\r' || b == '\n':
		tz.emit(tz.fieldStart, tz.pos, FlagNeedsUnescape)
		tz.advancePastTerminator(b)
		return tz.finalizeRow()
	default:
		// Malformed but tolerated: trailing garbage after a closing
		// quote is folded into the same field instead of starting a
		// new one, and scanning resumes in Unquoted.
		tz.pos++
		tz.state = stateUnquoted
	}
	return false
}

func (tz *tokenizer) advancePastTerminator(b byte) {
	if b == '\r' {
		if tz.pos+1 < len(tz.data) && tz.data[tz.pos+1] == '\n' {
			tz.pos += 2
			return
		}
		tz.pos++
		return
	}
	tz.pos++
}

func (tz *tokenizer) emit(start, end int, extraFlags uint8) {
	flags := extraFlags
	if tz.fieldQuoted {
		flags |= FlagNeedsUnescape
	}
	length := end - start
	if length == 0 && !tz.fieldQuoted {
		flags |= FlagNullSentinel
	}
	tz.result.Fields = append(tz.result.Fields, FieldSpan{
		Start:  uint32(start),
		Length: uint32(length),
		Flags:  flags,
	})
}

// finalizeRow closes out the row currently being accumulated in
// result.Fields[rowFieldStart:], applying skip_empty_rows, has_header,
// and preview. Returns true when Tokenize should stop entirely.
func (tz *tokenizer) finalizeRow() bool {
	fields := tz.result.Fields
	fieldCount := len(fields) - tz.rowFieldStart

	isEmptyRow := tz.cfg.SkipEmptyRows && fieldCount == 1 && fields[tz.rowFieldStart].Length == 0 && fields[tz.rowFieldStart].Flags&FlagNeedsUnescape == 0
	if isEmptyRow {
		tz.result.Fields = fields[:tz.rowFieldStart]
		tz.rowFieldStart = len(tz.result.Fields)
		tz.state = stateFieldStart
		return tz.pos >= len(tz.data)
	}

	if tz.cfg.HasHeader && !tz.headerTaken {
		tz.headerTaken = true
		tz.result.HeaderFound = true
		tz.result.Rows = append(tz.result.Rows, RowDescriptor{
			FieldStart: uint32(tz.rowFieldStart),
			FieldCount: uint16(fieldCount),
		})
		tz.rowFieldStart = len(tz.result.Fields)
		tz.state = stateFieldStart
		return tz.pos >= len(tz.data)
	}

	if tz.cfg.Preview > 0 && tz.dataRows >= tz.cfg.Preview {
		tz.result.Fields = fields[:tz.rowFieldStart]
		tz.result.Truncated = true
		return true
	}

	tz.dataRows++
	tz.result.Rows = append(tz.result.Rows, RowDescriptor{
		FieldStart: uint32(tz.rowFieldStart),
		FieldCount: uint16(fieldCount),
	})
	tz.rowFieldStart = len(tz.result.Fields)
	tz.state = stateFieldStart
	return tz.pos >= len(tz.data)
}

func (tz *tokenizer) atCommentStart() bool {
	return tz.cfg.CommentByte != 0 &&
		tz.rowFieldStart == len(tz.result.Fields) &&
		tz.pos < len(tz.data) &&
		tz.data[tz.pos] == tz.cfg.CommentByte
}

func (tz *tokenizer) skipCommentLine(n int) {
	next := nextSetBit(tz.term, tz.pos, n)
	if next == -1 {
		tz.pos = n + 1
		return
	}
	tz.pos = next
	tz.advancePastTerminator(tz.data[tz.pos])
}

func (tz *tokenizer) reportInvalidQuotesIfAny(from, to int) {
	if pos := nextSetBit(tz.masks.Quotes, from, to); pos != -1 {
		tz.result.Errors = append(tz.result.Errors, RowError{
			RowIndex: len(tz.result.Rows),
			Pos:      uint32(pos),
			Kind:     InvalidQuotes,
		})
	}
}

// SkipPreambleLines returns the byte offset past the first n raw lines
// of data, counting both \n and \r\n as one line terminator each and
// treating quote bytes as ordinary content (spec.md §4.4 "the preamble
// is treated as raw text").
func SkipPreambleLines(data []byte, n int) int {
	pos := 0
	for i := 0; i < n && pos < len(data); i++ {
		idx := indexByte2(data[pos:], '\n', '\r')
		if idx == -1 {
			return len(data)
		}
		pos += idx
		if data[pos] == '\r' && pos+1 < len(data) && data[pos+1] == '\n' {
			pos += 2
		} else {
			pos++
		}
	}
	return pos
}

func indexByte2(data []byte, a, b byte) int {
	for i, c := range data {
		if c == a || c == b {
			return i
		}
	}
	return -1
}

func orMasks(a, b []uint64) []uint64 {
	out := make([]uint64, len(a))
	for i := range a {
		out[i] = a[i] | b[i]
	}
	return out
}

// nextSetBit returns the index of the next set bit in bitmap at or
// after from, limited to < limit, or -1 if none.
func nextSetBit(bitmap []uint64, from, limit int) int {
	if from >= limit {
		return -1
	}
	wordIdx := from / 64
	bitIdx := uint(from % 64)
	if wordIdx >= len(bitmap) {
		return -1
	}
	word := bitmap[wordIdx] >> bitIdx
	if word != 0 {
		pos := from + bits.TrailingZeros64(word)
		if pos < limit {
			return pos
		}
		return -1
	}
	for wordIdx++; wordIdx < len(bitmap); wordIdx++ {
		if bitmap[wordIdx] != 0 {
			pos := wordIdx*64 + bits.TrailingZeros64(bitmap[wordIdx])
			if pos < limit {
				return pos
			}
			return -1
		}
	}
	return -1
}
