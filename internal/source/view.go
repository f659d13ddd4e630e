// Package source provides a read-only, zero-copy byte view over a CSV
// input: a memory-mapped file, a caller-supplied buffer, or a buffer the
// host has already collected ownership of (e.g. from a stream or URL
// fetch upstream of this package).
package source

import (
	"errors"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// Origin describes how a View's bytes were obtained.
type Origin int

const (
	// OriginMapped means the bytes are backed by an OS memory mapping.
	OriginMapped Origin = iota
	// OriginBorrowed means the bytes were supplied by the caller, who
	// must keep them alive for the View's lifetime. The View never
	// copies them.
	OriginBorrowed
	// OriginOwned means the bytes were handed to the View with
	// ownership transferred (e.g. pre-collected stream/URL bytes).
	OriginOwned
)

// ErrCannotOpen is returned, wrapped, when a path cannot be opened.
var ErrCannotOpen = errors.New("source: cannot open")

// watchSnapshot records the file size and modification time observed at
// open, so a later call to ModifiedSince can detect a change out from
// under the parser.
type watchSnapshot struct {
	path    string
	size    int64
	modTime int64
	valid   bool
}

// View is a read-only, contiguous byte view over a CSV source. Bytes are
// immutable for the lifetime of the View; len(data) never changes after
// construction.
type View struct {
	data   []byte
	origin Origin
	file   *os.File
	mm     mmap.MMap
	watch  watchSnapshot
	closed bool
}

// Open opens path, memory-mapping it read-only when possible and
// falling back to a full in-memory read when mapping isn't supported
// (e.g. zero-length files, or a platform/filesystem that rejects the
// mapping). Mapping failures never surface as an error; only the
// initial os.Open failing does, wrapped in ErrCannotOpen.
func Open(path string) (*View, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCannotOpen, err)
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %v", ErrCannotOpen, err)
	}

	v := &View{
		origin: OriginMapped,
		file:   f,
		watch: watchSnapshot{
			path:    path,
			size:    stat.Size(),
			modTime: stat.ModTime().UnixNano(),
			valid:   true,
		},
	}

	if stat.Size() == 0 {
		v.data = nil
		return v, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		// Mapping errors are tolerated: fall back to a plain read and
		// keep the file handle closed, since we no longer need it.
		data, readErr := os.ReadFile(path)
		_ = f.Close()
		v.file = nil
		if readErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrCannotOpen, readErr)
		}
		v.data = data
		v.origin = OriginOwned
		return v, nil
	}

	v.mm = m
	v.data = []byte(m)
	return v, nil
}

// NewBuffer wraps a caller-supplied byte slice without copying it. The
// caller must keep buf alive and unmodified for the View's lifetime.
func NewBuffer(buf []byte) *View {
	return &View{data: buf, origin: OriginBorrowed}
}

// NewOwnedBuffer wraps buf, transferring ownership to the View (used by
// the stream/URL path, where the host has already collected the bytes
// into a buffer it no longer needs).
func NewOwnedBuffer(buf []byte) *View {
	return &View{data: buf, origin: OriginOwned}
}

// Bytes returns the full, read-only byte slice of the source.
func (v *View) Bytes() []byte { return v.data }

// Len returns the length of the source in bytes.
func (v *View) Len() int { return len(v.data) }

// Origin reports how this View's bytes were obtained.
func (v *View) Origin() Origin { return v.origin }

// ModifiedSince re-stats the underlying file (for mapped/owned views
// opened from a path) and reports whether its size or modification
// time has changed since Open. Buffer-origin views never report
// modification, since they have no backing path.
func (v *View) ModifiedSince() bool {
	if !v.watch.valid {
		return false
	}
	stat, err := os.Stat(v.watch.path)
	if err != nil {
		// Treat an unreadable path (e.g. deleted file) as modified.
		return true
	}
	return stat.Size() != v.watch.size || stat.ModTime().UnixNano() != v.watch.modTime
}

// Close releases any OS resources (mapping, then handle) held by the
// View. Close is idempotent; calling it more than once is a no-op.
func (v *View) Close() error {
	if v.closed {
		return nil
	}
	v.closed = true

	var err error
	if v.mm != nil {
		err = v.mm.Unmap()
		v.mm = nil
	}
	if v.file != nil {
		if cerr := v.file.Close(); err == nil {
			err = cerr
		}
		v.file = nil
	}
	v.data = nil
	return err
}
