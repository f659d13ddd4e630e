// Package parser wires internal/source, internal/detect, internal/
// token, internal/cache, internal/projection, and internal/parallel
// behind the single façade spec.md §6.1 describes as a handle: open a
// source, iterate rows lazily, or pull an eager projection, with a
// field cache and pause/resume/modification-check lifecycle riding
// alongside. cmd/libcsvcore is a thin cgo skin over exactly this type.
package parser

import (
	"github.com/csvquery/csvcore/internal/cache"
	"github.com/csvquery/csvcore/internal/detect"
	"github.com/csvquery/csvcore/internal/parallel"
	"github.com/csvquery/csvcore/internal/projection"
	"github.com/csvquery/csvcore/internal/source"
	"github.com/csvquery/csvcore/internal/token"
)

// Config is the full parser configuration from spec.md §3 "Parser
// Configuration", plus the detector and parallel-execution knobs that
// sit above the tokenizer proper.
type Config struct {
	Delimiter       byte
	Quote           byte
	Escape          byte
	HasHeader       bool
	SkipEmptyRows   bool
	CommentByte     byte
	Preview         int
	SkipFirstNLines int

	// AutoDetectDelimiter runs internal/detect.Delimiter over a sample
	// of the source before tokenizing; Delimiter is only a fallback
	// when detection is disabled or inconclusive.
	AutoDetectDelimiter bool
	DelimiterCandidates []byte

	// Parallel requests internal/parallel.Parse instead of a single
	// token.Tokenize pass. ChunkCount, when > 0, overrides the
	// size-based heuristic.
	Parallel   bool
	ChunkCount int

	SoftCacheLimit int64
	HardCacheLimit int64
}

func (c Config) tokenConfig() token.Config {
	return token.Config{
		Delimiter:       c.Delimiter,
		Quote:           c.Quote,
		Escape:          c.Escape,
		CommentByte:     c.CommentByte,
		SkipEmptyRows:   c.SkipEmptyRows,
		HasHeader:       c.HasHeader,
		Preview:         c.Preview,
		SkipFirstNLines: c.SkipFirstNLines,
	}
}

// Stats holds the monotonic counters from spec.md §3 "Parse
// Statistics".
type Stats struct {
	BytesProcessed  int64
	TotalBytes      int64
	RowsEmitted     int64
	ErrorCount      int64
	CacheBytesInUse int64
}

// Parser is the handle spec.md §6.1 describes. The whole source is
// tokenized eagerly at construction (it is already fully resident in
// memory via the Source View, mmap or otherwise), so row iteration is
// just a cursor over the precomputed result.
type Parser struct {
	view   *source.View
	source []byte // post-BOM, post-preamble slice that every FieldSpan is relative to

	cfg    Config
	result *token.Result
	cache  *cache.Cache

	cursor      int // current row index, -1 before the first NextRow
	batchCursor int
	paused      bool
	closed      bool
}

// Open opens path as a memory-mapped Source View and tokenizes it per
// cfg.
func Open(path string, cfg Config) (*Parser, error) {
	v, err := source.Open(path)
	if err != nil {
		return nil, err
	}
	return newParser(v, cfg), nil
}

// OpenBuffer wraps an in-memory buffer (caller retains ownership, per
// spec.md §6.1's init_buffer) as a Source View and tokenizes it per
// cfg.
func OpenBuffer(buf []byte, cfg Config) *Parser {
	return newParser(source.NewBuffer(buf), cfg)
}

func newParser(v *source.View, cfg Config) *Parser {
	data := v.Bytes()

	data = data[detect.StripBOM(data):]

	// Preamble lines are skipped before delimiter detection samples the
	// buffer: skip_first_n_lines exists precisely to discard non-CSV
	// text (titles, metadata) above the real rows, so a detector run
	// before this strip would sample that discarded text instead of the
	// delimiter it's actually supposed to find (spec.md §3, §6.3
	// scenario 4's preamble-skip + tab-delimiter case).
	data = data[token.SkipPreambleLines(data, cfg.SkipFirstNLines):]

	if cfg.AutoDetectDelimiter {
		candidates := cfg.DelimiterCandidates
		if len(candidates) == 0 {
			candidates = detect.DefaultCandidates
		}
		if d, ok := detect.Delimiter(data, candidates, cfg.normalizedQuote()); ok {
			cfg.Delimiter = d
		}
	}

	tcfg := cfg.tokenConfig()
	tcfg.SkipFirstNLines = 0

	var result *token.Result
	if cfg.Parallel {
		result = parallel.Parse(data, tcfg, cfg.ChunkCount)
	} else {
		result = token.Tokenize(data, tcfg)
	}
	validateFieldCounts(result, cfg.HasHeader)

	return &Parser{
		view:   v,
		source: data,
		cfg:    cfg,
		result: result,
		cache:  cache.New(cfg.SoftCacheLimit, cfg.HardCacheLimit),
		cursor: -1,
	}
}

// validateFieldCounts implements spec.md §7's FieldMismatch check: the
// tokenizer enforces no schema, so the host compares every data row's
// field count against the header row's and records TooFewFields /
// TooManyFields for the ones that disagree. Without a header there is
// no baseline to compare against, so the check is skipped.
func validateFieldCounts(result *token.Result, hasHeader bool) {
	if !hasHeader || !result.HeaderFound || len(result.Rows) == 0 {
		return
	}
	expected := int(result.Rows[0].FieldCount)
	for i := 1; i < len(result.Rows); i++ {
		fc := int(result.Rows[i].FieldCount)
		if fc == expected {
			continue
		}
		kind := token.TooFewFields
		if fc > expected {
			kind = token.TooManyFields
		}
		result.Errors = append(result.Errors, token.RowError{
			RowIndex: i - 1,
			Kind:     kind,
		})
	}
}

func (c Config) normalizedQuote() byte {
	if c.Quote == 0 {
		return '"'
	}
	return c.Quote
}

// NextRow advances to the next row. It returns false (and does not
// advance) once every row has been emitted, or while the parser is
// paused.
func (p *Parser) NextRow() bool {
	if p.paused || p.closed {
		return false
	}
	if p.cursor+1 >= len(p.result.Rows) {
		return false
	}
	p.cursor++
	return true
}

func (p *Parser) currentRow() (token.RowDescriptor, bool) {
	if p.cursor < 0 || p.cursor >= len(p.result.Rows) {
		return token.RowDescriptor{}, false
	}
	return p.result.Rows[p.cursor], true
}

// FieldCount returns the current row's field count, or 0 before the
// first NextRow / after the last.
func (p *Parser) FieldCount() int {
	row, ok := p.currentRow()
	if !ok {
		return 0
	}
	return int(row.FieldCount)
}

func (p *Parser) fieldSpan(col int) (token.FieldSpan, bool) {
	row, ok := p.currentRow()
	if !ok || col < 0 || col >= int(row.FieldCount) {
		return token.FieldSpan{}, false
	}
	return p.result.Fields[int(row.FieldStart)+col], true
}

// Field returns the raw span for column col of the current row,
// including surrounding quotes when the field was quoted.
func (p *Parser) Field(col int) ([]byte, bool) {
	span, ok := p.fieldSpan(col)
	if !ok {
		return nil, false
	}
	return p.source[span.Start : span.Start+span.Length], true
}

// FieldNeedsUnescape reports whether Field(col)'s raw bytes need quote
// stripping before use.
func (p *Parser) FieldNeedsUnescape(col int) bool {
	span, ok := p.fieldSpan(col)
	return ok && span.Flags&token.FlagNeedsUnescape != 0
}

// FieldUnescaped returns the logical value of column col: the raw span
// unchanged when it needs no unescaping, or the field-cache-backed
// unescaped value otherwise.
func (p *Parser) FieldUnescaped(col int) ([]byte, bool) {
	span, ok := p.fieldSpan(col)
	if !ok {
		return nil, false
	}
	if span.Flags&token.FlagNeedsUnescape == 0 {
		return p.source[span.Start : span.Start+span.Length], true
	}

	if v, hit := p.cache.Get(p.cursor, col); hit {
		return v, true
	}
	v := projection.Unescape(p.source, span, p.cfg.normalizedQuote())
	p.cache.Put(p.cursor, col, v)
	return v, true
}

// ParseBatch builds the structured projection for up to maxRows rows
// starting after the last batch returned, advancing the batch cursor.
func (p *Parser) ParseBatch(maxRows int) (arena []byte, hasMore bool) {
	arena, hasMore = projection.BuildStructured(p.source, p.cfg.normalizedQuote(), p.result.Rows, p.result.Fields, p.batchCursor, maxRows)
	if maxRows <= 0 || p.batchCursor+maxRows > len(p.result.Rows) {
		p.batchCursor = len(p.result.Rows)
	} else {
		p.batchCursor += maxRows
	}
	return arena, hasMore
}

// ParseAll builds the structured projection for every row.
func (p *Parser) ParseAll() []byte {
	arena, _ := projection.BuildStructured(p.source, p.cfg.normalizedQuote(), p.result.Rows, p.result.Fields, 0, -1)
	return arena
}

// ParseAllFast builds the delimited ("fast") projection for every row.
func (p *Parser) ParseAllFast() []byte {
	return projection.BuildDelimited(p.source, p.cfg.normalizedQuote(), p.result.Rows, p.result.Fields)
}

// ParsePositions builds the position-only projection for every row.
func (p *Parser) ParsePositions() []byte {
	return projection.BuildPositions(p.result.Rows, p.result.Fields)
}

// TotalRows reports how many rows the tokenizer produced, matching the
// row-count records appended after ParsePositions' field array.
func (p *Parser) TotalRows() int { return len(p.result.Rows) }

// TotalFields reports how many field records ParsePositions (and the
// structured/delimited projections) packs in total across every row.
func (p *Parser) TotalFields() int { return len(p.result.Fields) }

// Cache control, delegating to internal/cache.
func (p *Parser) CacheSize() int64          { return p.cache.UsedBytes() }
func (p *Parser) CacheStatus() cache.Status { return p.cache.Status() }
func (p *Parser) ClearCache()               { p.cache.Clear() }
func (p *Parser) SetSoftCacheLimit(n int64) { p.cache.SetSoftLimit(n) }
func (p *Parser) SetHardCacheLimit(n int64) { p.cache.SetHardLimit(n) }

// Pause suspends NextRow (it returns false without advancing) until
// Resume is called.
func (p *Parser) Pause()  { p.paused = true }
func (p *Parser) Resume() { p.paused = false }

// CheckModified reports whether the underlying file has changed size
// or mtime since Open.
func (p *Parser) CheckModified() bool {
	return p.view.ModifiedSince()
}

// Errors returns the non-fatal tokenizer errors recorded while parsing.
func (p *Parser) Errors() []token.RowError {
	return p.result.Errors
}

// HeaderFound reports whether the configured header row was present
// and consumed.
func (p *Parser) HeaderFound() bool {
	return p.result.HeaderFound
}

// Stats reports the monotonic parse counters from spec.md §3.
func (p *Parser) Stats() Stats {
	rows := len(p.result.Rows)
	if p.result.HeaderFound {
		rows--
	}
	return Stats{
		BytesProcessed:  int64(len(p.source)),
		TotalBytes:      int64(p.view.Len()),
		RowsEmitted:     int64(rows),
		ErrorCount:      int64(len(p.result.Errors)),
		CacheBytesInUse: p.cache.UsedBytes(),
	}
}

// Close releases the Source View's OS resources. Double-close is a
// no-op.
func (p *Parser) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return p.view.Close()
}
