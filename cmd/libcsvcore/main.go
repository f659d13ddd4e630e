//go:build cgo

// Command libcsvcore is the cgo c-shared Foreign Call Surface from
// spec.md §6.1: a thin, handle-based shim around internal/parser and
// internal/parallel. Every opaque handle the C side holds is a
// runtime/cgo.Handle value (spec.md §9's "typed ownership" redesign
// note) rather than an index into a process-global map, so a handle's
// lifetime is exactly the Go object it points at.
//
// Field spans never cross the boundary as C pointer types; they cross
// as (uintptr, length) pairs into memory Go already owns. Go's garbage
// collector does not relocate heap objects once allocated, and the
// handle map keeps every exposed allocation reachable for as long as
// its handle is open, so a uintptr captured here stays valid until the
// matching free/close call.
//
// Grounded on the pack's only cgo c-shared export, iceberg-go's
// cmd/libiceberg/planner.go: the //go:build cgo tag, //export-per-
// function shape, and runtime/cgo.Handle for opaque handles. This file
// plugs csvcore's own domain (parser/parallel/cache/detect) into that
// shape instead of iceberg's table/scan domain.
package main

/*
#include <stdbool.h>
#include <stdint.h>
#include <stddef.h>

typedef struct {
	uint8_t  delimiter;
	uint8_t  quote;
	uint8_t  escape;
	uint8_t  has_header;
	uint8_t  skip_empty_rows;
	uint8_t  comment_byte;
	uint8_t  auto_detect_delimiter;
	uint8_t  pad;
	int32_t  preview;
	int32_t  skip_first_n_lines;
	int32_t  chunk_count;
	int64_t  soft_cache_limit;
	int64_t  hard_cache_limit;
} csvcore_config;

#define CSVCORE_BATCH_WIDTH 64

typedef struct {
	uint32_t field_count;
	uint32_t pad;
	uintptr_t ptrs[CSVCORE_BATCH_WIDTH];
	uint32_t lens[CSVCORE_BATCH_WIDTH];
	uint8_t flags[CSVCORE_BATCH_WIDTH];
} csvcore_batch_row;
*/
import "C"

import (
	"runtime/cgo"
	"sync"
	"unsafe"

	"github.com/csvquery/csvcore/internal/cache"
	"github.com/csvquery/csvcore/internal/detect"
	"github.com/csvquery/csvcore/internal/parallel"
	"github.com/csvquery/csvcore/internal/parser"
)

// closedHandles tracks which H/H_par values close()/parallel_close()
// already deleted. cgo.Handle.Value() and .Delete() both panic on a
// handle that was already deleted, so a second close(h) call must be
// caught here, before either is called — not after, since by then it's
// already too late to recover. Shared across both handle kinds: every
// cgo.Handle value is unique regardless of what it points at.
var closedHandles sync.Map

// markClosed records h as closed and reports whether it was already
// closed, so the caller can no-op instead of touching a deleted handle.
func markClosed(h C.uintptr_t) (alreadyClosed bool) {
	_, loaded := closedHandles.LoadOrStore(uintptr(h), struct{}{})
	return loaded
}

// parserHandle is what H (a cgo.Handle) actually points at: the parser
// plus the eager-projection arenas currently alive for it. Each arena
// lives here (not as a Go global) precisely so multiple handles never
// share state — spec.md §9's "global projection arenas -> per-handle
// arenas" note.
type parserHandle struct {
	p *parser.Parser

	batchArena []byte // last parse_batch() result
	batchMore  bool

	fullArena []byte // last parse_all() result

	fastArena []byte

	posArena      []byte
	posRowCount   int
	posFieldCount int
}

// parallelHandle is H_par: a parser opened with Config.Parallel set,
// plus the chunk count actually used so parallel_chunk_count can report
// it without re-deriving the heuristic.
type parallelHandle struct {
	p          *parser.Parser
	chunkCount int
}

func main() {} // required by the c-shared build mode; never runs.

func toConfig(c C.csvcore_config) parser.Config {
	return parser.Config{
		Delimiter:           byte(c.delimiter),
		Quote:               byte(c.quote),
		Escape:              byte(c.escape),
		HasHeader:           c.has_header != 0,
		SkipEmptyRows:       c.skip_empty_rows != 0,
		CommentByte:         byte(c.comment_byte),
		Preview:             int(c.preview),
		SkipFirstNLines:     int(c.skip_first_n_lines),
		AutoDetectDelimiter: c.auto_detect_delimiter != 0,
		ChunkCount:          int(c.chunk_count),
		SoftCacheLimit:      int64(c.soft_cache_limit),
		HardCacheLimit:      int64(c.hard_cache_limit),
	}
}

func bytesFromC(ptr *C.uchar, length C.size_t) []byte {
	if ptr == nil || length == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), int(length))
}

func ptrOf(b []byte) C.uintptr_t {
	if len(b) == 0 {
		return 0
	}
	return C.uintptr_t(uintptr(unsafe.Pointer(&b[0])))
}

// ---- Construction ----

//export init
func csvcore_init(path *C.char) C.uintptr_t {
	p, err := parser.Open(C.GoString(path), parser.Config{})
	if err != nil {
		return 0
	}
	return C.uintptr_t(cgo.NewHandle(&parserHandle{p: p}))
}

//export init_with_config
func csvcore_init_with_config(path *C.char, cfg C.csvcore_config) C.uintptr_t {
	p, err := parser.Open(C.GoString(path), toConfig(cfg))
	if err != nil {
		return 0
	}
	return C.uintptr_t(cgo.NewHandle(&parserHandle{p: p}))
}

//export init_buffer
func csvcore_init_buffer(ptr *C.uchar, length C.size_t) C.uintptr_t {
	p := parser.OpenBuffer(bytesFromC(ptr, length), parser.Config{})
	return C.uintptr_t(cgo.NewHandle(&parserHandle{p: p}))
}

//export init_buffer_with_config
func csvcore_init_buffer_with_config(ptr *C.uchar, length C.size_t, cfg C.csvcore_config) C.uintptr_t {
	p := parser.OpenBuffer(bytesFromC(ptr, length), toConfig(cfg))
	return C.uintptr_t(cgo.NewHandle(&parserHandle{p: p}))
}

func lookup(h C.uintptr_t) (*parserHandle, bool) {
	v, ok := cgo.Handle(h).Value().(*parserHandle)
	return v, ok
}

// ---- Row iteration ----

//export next_row
func next_row(h C.uintptr_t) C.bool {
	ph, ok := lookup(h)
	if !ok {
		return false
	}
	return C.bool(ph.p.NextRow())
}

//export field_count
func field_count(h C.uintptr_t) C.uint32_t {
	ph, ok := lookup(h)
	if !ok {
		return 0
	}
	return C.uint32_t(ph.p.FieldCount())
}

//export field_ptr
func field_ptr(h C.uintptr_t, col C.int32_t) C.uintptr_t {
	ph, ok := lookup(h)
	if !ok {
		return 0
	}
	v, present := ph.p.Field(int(col))
	if !present {
		return 0
	}
	return ptrOf(v)
}

//export field_len
func field_len(h C.uintptr_t, col C.int32_t) C.uint32_t {
	ph, ok := lookup(h)
	if !ok {
		return 0
	}
	v, present := ph.p.Field(int(col))
	if !present {
		return 0
	}
	return C.uint32_t(len(v))
}

//export field_needs_unescape
func field_needs_unescape(h C.uintptr_t, col C.int32_t) C.bool {
	ph, ok := lookup(h)
	if !ok {
		return false
	}
	return C.bool(ph.p.FieldNeedsUnescape(int(col)))
}

//export field_unescaped
func field_unescaped(h C.uintptr_t, col C.int32_t, out_len *C.uint64_t) C.uintptr_t {
	ph, ok := lookup(h)
	if !ok {
		return 0
	}
	v, present := ph.p.FieldUnescaped(int(col))
	if !present {
		return 0
	}
	if out_len != nil {
		*out_len = C.uint64_t(len(v))
	}
	return ptrOf(v)
}

// ---- Batched access ----

//export load_batch_row
func load_batch_row(h C.uintptr_t, out *C.csvcore_batch_row) C.bool {
	ph, ok := lookup(h)
	if !ok || out == nil {
		return false
	}
	n := ph.p.FieldCount()
	if n > 64 {
		n = 64
	}
	out.field_count = C.uint32_t(n)
	for i := 0; i < n; i++ {
		v, _ := ph.p.Field(i)
		out.ptrs[i] = ptrOf(v)
		out.lens[i] = C.uint32_t(len(v))
		flag := C.uint8_t(0)
		if ph.p.FieldNeedsUnescape(i) {
			flag = 1
		}
		out.flags[i] = flag
	}
	return true
}

// ---- Eager projections ----

//export parse_batch
func parse_batch(h C.uintptr_t, max_rows C.int32_t) C.bool {
	ph, ok := lookup(h)
	if !ok {
		return false
	}
	ph.batchArena, ph.batchMore = ph.p.ParseBatch(int(max_rows))
	return true
}

//export batch_rows
func batch_rows(h C.uintptr_t) C.uintptr_t {
	ph, ok := lookup(h)
	if !ok {
		return 0
	}
	return ptrOf(ph.batchArena)
}

//export batch_fields
func batch_fields(h C.uintptr_t) C.bool {
	ph, ok := lookup(h)
	if !ok {
		return false
	}
	return C.bool(ph.batchMore)
}

//export parse_all
func parse_all(h C.uintptr_t) C.bool {
	ph, ok := lookup(h)
	if !ok {
		return false
	}
	ph.fullArena = ph.p.ParseAll()
	return true
}

//export full_parse_buffer
func full_parse_buffer(h C.uintptr_t) C.uintptr_t {
	ph, ok := lookup(h)
	if !ok {
		return 0
	}
	return ptrOf(ph.fullArena)
}

//export free_full_parse
func free_full_parse(h C.uintptr_t) {
	if ph, ok := lookup(h); ok {
		ph.fullArena = nil
	}
}

//export parse_all_fast
func parse_all_fast(h C.uintptr_t) C.bool {
	ph, ok := lookup(h)
	if !ok {
		return false
	}
	ph.fastArena = ph.p.ParseAllFast()
	return true
}

//export fast_parse_len
func fast_parse_len(h C.uintptr_t) C.uint64_t {
	ph, ok := lookup(h)
	if !ok {
		return 0
	}
	return C.uint64_t(len(ph.fastArena))
}

//export fast_parse_rows
func fast_parse_rows(h C.uintptr_t) C.uintptr_t {
	ph, ok := lookup(h)
	if !ok {
		return 0
	}
	return ptrOf(ph.fastArena)
}

//export free_fast_parse
func free_fast_parse(h C.uintptr_t) {
	if ph, ok := lookup(h); ok {
		ph.fastArena = nil
	}
}

//export parse_positions
func parse_positions(h C.uintptr_t) C.bool {
	ph, ok := lookup(h)
	if !ok {
		return false
	}
	ph.posArena = ph.p.ParsePositions()
	ph.posRowCount = ph.p.TotalRows()
	ph.posFieldCount = ph.p.TotalFields()
	return true
}

//export positions_ptr
func positions_ptr(h C.uintptr_t) C.uintptr_t {
	ph, ok := lookup(h)
	if !ok {
		return 0
	}
	return ptrOf(ph.posArena)
}

//export row_counts_ptr
func row_counts_ptr(h C.uintptr_t) C.uintptr_t {
	ph, ok := lookup(h)
	if !ok || len(ph.posArena) == 0 {
		return 0
	}
	off := ph.posFieldCount * 8
	return ptrOf(ph.posArena[off:])
}

//export positions_row_count
func positions_row_count(h C.uintptr_t) C.uint32_t {
	ph, ok := lookup(h)
	if !ok {
		return 0
	}
	return C.uint32_t(ph.posRowCount)
}

//export positions_field_count
func positions_field_count(h C.uintptr_t) C.uint32_t {
	ph, ok := lookup(h)
	if !ok {
		return 0
	}
	return C.uint32_t(ph.posFieldCount)
}

//export free_positions
func free_positions(h C.uintptr_t) {
	if ph, ok := lookup(h); ok {
		ph.posArena = nil
		ph.posRowCount = 0
		ph.posFieldCount = 0
	}
}

// ---- Cache control ----

//export get_cache_size
func get_cache_size(h C.uintptr_t) C.int64_t {
	ph, ok := lookup(h)
	if !ok {
		return 0
	}
	return C.int64_t(ph.p.CacheSize())
}

//export get_cache_status
func get_cache_status(h C.uintptr_t) C.uint8_t {
	ph, ok := lookup(h)
	if !ok {
		return C.uint8_t(cache.OK)
	}
	return C.uint8_t(ph.p.CacheStatus())
}

//export clear_cache
func clear_cache(h C.uintptr_t) {
	if ph, ok := lookup(h); ok {
		ph.p.ClearCache()
	}
}

//export set_soft_cache_limit
func set_soft_cache_limit(h C.uintptr_t, bytes C.int64_t) {
	if ph, ok := lookup(h); ok {
		ph.p.SetSoftCacheLimit(int64(bytes))
	}
}

//export set_hard_cache_limit
func set_hard_cache_limit(h C.uintptr_t, bytes C.int64_t) {
	if ph, ok := lookup(h); ok {
		ph.p.SetHardCacheLimit(int64(bytes))
	}
}

// ---- Parallel ----

//export optimal_thread_count
func optimal_thread_count(data_len C.uint64_t) C.size_t {
	return C.size_t(parallel.ChunkCount(int64(data_len), 0))
}

//export parallel_init
func parallel_init(ptr *C.uchar, length C.size_t, thread_count C.int32_t) C.uintptr_t {
	cfg := parser.Config{Parallel: true, ChunkCount: int(thread_count)}
	p := parser.OpenBuffer(bytesFromC(ptr, length), cfg)
	chunks := parallel.ChunkCount(int64(length), int(thread_count))
	return C.uintptr_t(cgo.NewHandle(&parallelHandle{p: p, chunkCount: chunks}))
}

//export parallel_process
func parallel_process(h C.uintptr_t) C.bool {
	// Tokenizing already happened eagerly in parallel_init; this call
	// exists only to match spec.md §6.1's process/poll-style surface.
	_, ok := cgo.Handle(h).Value().(*parallelHandle)
	return C.bool(ok)
}

//export parallel_row_count
func parallel_row_count(h C.uintptr_t) C.uint64_t {
	ph, ok := cgo.Handle(h).Value().(*parallelHandle)
	if !ok {
		return 0
	}
	return C.uint64_t(ph.p.Stats().RowsEmitted)
}

//export parallel_bytes_processed
func parallel_bytes_processed(h C.uintptr_t) C.uint64_t {
	ph, ok := cgo.Handle(h).Value().(*parallelHandle)
	if !ok {
		return 0
	}
	return C.uint64_t(ph.p.Stats().BytesProcessed)
}

//export parallel_chunk_count
func parallel_chunk_count(h C.uintptr_t) C.int32_t {
	ph, ok := cgo.Handle(h).Value().(*parallelHandle)
	if !ok {
		return 0
	}
	return C.int32_t(ph.chunkCount)
}

//export parallel_close
func parallel_close(h C.uintptr_t) {
	if markClosed(h) {
		return
	}
	handle := cgo.Handle(h)
	if ph, ok := handle.Value().(*parallelHandle); ok {
		ph.p.Close()
	}
	handle.Delete()
}

// ---- Detection helpers ----

//export detect_encoding
func detect_encoding(ptr *C.uchar, length C.size_t) C.uint8_t {
	kind, _ := detect.Encoding(bytesFromC(ptr, length))
	return C.uint8_t(kind)
}

//export detect_bom
func detect_bom(ptr *C.uchar, length C.size_t) C.uint64_t {
	return C.uint64_t(detect.StripBOM(bytesFromC(ptr, length)))
}

//export detect_delimiter
func detect_delimiter(ptr *C.uchar, length C.size_t, candidates_ptr *C.uchar, num_candidates C.int32_t, quote_byte C.uint8_t) C.uint8_t {
	candidates := bytesFromC(candidates_ptr, C.size_t(num_candidates))
	if len(candidates) == 0 {
		candidates = detect.DefaultCandidates
	}
	d, _ := detect.Delimiter(bytesFromC(ptr, length), candidates, byte(quote_byte))
	return C.uint8_t(d)
}

// ---- Lifecycle ----

//export pause
func pause(h C.uintptr_t) {
	if ph, ok := lookup(h); ok {
		ph.p.Pause()
	}
}

//export resume
func resume(h C.uintptr_t) {
	if ph, ok := lookup(h); ok {
		ph.p.Resume()
	}
}

//export check_modified
func check_modified(h C.uintptr_t) C.bool {
	ph, ok := lookup(h)
	if !ok {
		return false
	}
	return C.bool(ph.p.CheckModified())
}

//export close
func close_handle(h C.uintptr_t) {
	if markClosed(h) {
		return
	}
	handle := cgo.Handle(h)
	if ph, ok := handle.Value().(*parserHandle); ok {
		ph.p.Close()
	}
	handle.Delete()
}
