// Package parallel implements the chunked parallel parser from spec.md
// §4.7: split a buffer into quote-parity-safe spans, tokenize each span
// on its own goroutine, and merge the per-span results back into the
// same row sequence a single-threaded tokenizer would have produced.
//
// The boundary-repair scan is adapted from the teacher's
// findSafeRecordBoundary in internal/indexer/scanner.go, generalized to
// a configurable quote byte and exposed as a pure function instead of a
// Scanner method.
package parallel

import (
	"bytes"
	"sync"

	"github.com/csvquery/csvcore/internal/token"
)

// ChunkCount applies spec.md §4.7's data-size heuristic: 1 below 10
// MiB, 2 below 100 MiB, 4 below 500 MiB, else 8. override, when > 0,
// replaces the heuristic outright.
func ChunkCount(size int64, override int) int {
	if override > 0 {
		return override
	}
	const (
		mib = 1024 * 1024
		ten = 10 * mib
		hun = 100 * mib
		fiv = 500 * mib
	)
	switch {
	case size < ten:
		return 1
	case size < hun:
		return 2
	case size < fiv:
		return 4
	default:
		return 8
	}
}

// findSafeBoundary returns the first offset after hint that both falls
// right after a line terminator and is not inside a quoted region.
// Quote bytes are counted modulo 2 from the start of data (a known-safe
// anchor), so even parity before a candidate offset means every quote
// opened before it was closed; doubled quotes count twice and cancel.
func findSafeBoundary(data []byte, hint int, quote byte) int {
	pos := hint
	if pos >= len(data) {
		return len(data)
	}

	nextNL := bytes.IndexByte(data[pos:], '\n')
	if nextNL == -1 {
		return len(data)
	}
	currentNL := pos + nextNL
	quotes := bytes.Count(data[:currentNL+1], []byte{quote})

	for {
		if currentNL+1 >= len(data) {
			return len(data)
		}
		if quotes%2 == 0 {
			return currentNL + 1
		}
		nl := bytes.IndexByte(data[currentNL+1:], '\n')
		if nl == -1 {
			return len(data)
		}
		nextPos := currentNL + 1 + nl
		quotes += bytes.Count(data[currentNL+1:nextPos], []byte{quote})
		currentNL = nextPos
	}
}

// Spans divides data into chunkCount quote-parity-safe, contiguous,
// non-overlapping byte ranges covering all of data.
func Spans(data []byte, chunkCount int, quote byte) [][2]int {
	if chunkCount < 1 {
		chunkCount = 1
	}
	if chunkCount == 1 || len(data) == 0 {
		return [][2]int{{0, len(data)}}
	}

	boundaries := make([]int, chunkCount+1)
	boundaries[0] = 0
	boundaries[chunkCount] = len(data)
	step := len(data) / chunkCount
	for i := 1; i < chunkCount; i++ {
		hint := i * step
		boundaries[i] = findSafeBoundary(data, hint, quote)
	}
	// A boundary search can overshoot past an earlier one on skewed
	// inputs (a very long quoted field spanning several naive splits);
	// clamp so spans stay monotonic and non-overlapping.
	for i := 1; i <= chunkCount; i++ {
		if boundaries[i] < boundaries[i-1] {
			boundaries[i] = boundaries[i-1]
		}
	}

	spans := make([][2]int, 0, chunkCount)
	for i := 0; i < chunkCount; i++ {
		if boundaries[i] < boundaries[i+1] {
			spans = append(spans, [2]int{boundaries[i], boundaries[i+1]})
		}
	}
	if len(spans) == 0 {
		spans = append(spans, [2]int{0, len(data)})
	}
	return spans
}

// Parse tokenizes data across up to chunkCountOverride goroutines (0 =
// use the size heuristic) and merges the results deterministically: row
// order follows chunk order, and every field index in a later chunk's
// rows is rebased by the cumulative field count of every earlier chunk.
//
// data must already have any skip_first_n_lines preamble removed (that
// policy applies once, to the whole buffer, not per chunk) — cfg's
// SkipFirstNLines is ignored here.
func Parse(data []byte, cfg token.Config, chunkCountOverride int) *token.Result {
	cfg = cfg.Normalize()
	spans := Spans(data, ChunkCount(int64(len(data)), chunkCountOverride), cfg.Quote)

	results := make([]*token.Result, len(spans))
	var wg sync.WaitGroup
	for i, span := range spans {
		wg.Add(1)
		go func(i int, span [2]int) {
			defer wg.Done()
			chunkCfg := cfg
			chunkCfg.HasHeader = cfg.HasHeader && i == 0
			chunkCfg.Preview = 0         // preview is enforced globally after merge
			chunkCfg.SkipFirstNLines = 0 // preamble is a whole-buffer concern, already applied by the caller
			results[i] = token.Tokenize(data[span[0]:span[1]], chunkCfg)
			rebase(results[i], uint32(span[0]))
		}(i, span)
	}
	wg.Wait()

	return merge(results, cfg)
}

// rebase shifts every field span's Start by baseOffset, turning
// chunk-relative offsets into absolute offsets into the original
// buffer.
func rebase(r *token.Result, baseOffset uint32) {
	for i := range r.Fields {
		r.Fields[i].Start += baseOffset
	}
}

func merge(results []*token.Result, cfg token.Config) *token.Result {
	out := &token.Result{}
	fieldBase := uint32(0)
	rowBase := 0

	for _, r := range results {
		if r == nil {
			continue
		}
		if r.HeaderFound {
			out.HeaderFound = true
		}
		out.Fields = append(out.Fields, r.Fields...)
		for _, row := range r.Rows {
			out.Rows = append(out.Rows, token.RowDescriptor{
				FieldStart: row.FieldStart + fieldBase,
				FieldCount: row.FieldCount,
			})
		}
		for _, e := range r.Errors {
			e.RowIndex += rowBase
			out.Errors = append(out.Errors, e)
		}
		fieldBase += uint32(len(r.Fields))
		rowBase += len(r.Rows)
	}

	applyPreview(out, cfg.Preview)
	return out
}

// applyPreview trims out's rows (and matching fields) down to preview
// data rows, keeping the header row if one was found. It mirrors
// token.Tokenize's own preview truncation so chunked and single-chunk
// parses agree.
func applyPreview(out *token.Result, preview int) {
	if preview <= 0 {
		return
	}

	keepRows := preview
	if out.HeaderFound {
		keepRows++
	}
	if len(out.Rows) <= keepRows {
		return
	}

	out.Truncated = true
	lastField := out.Rows[keepRows-1].FieldStart + uint32(out.Rows[keepRows-1].FieldCount)
	out.Rows = out.Rows[:keepRows]
	out.Fields = out.Fields[:lastField]

	kept := out.Errors[:0]
	for _, e := range out.Errors {
		if e.RowIndex < keepRows {
			kept = append(kept, e)
		}
	}
	out.Errors = kept
}
