// Package cache implements the Field Cache described in spec.md §4.5:
// a per-parser-instance store of unescaped field bytes, keyed by
// (row, column), with soft/hard byte budgets. Only quoted fields are
// ever cached; unquoted fields are cheap enough for the host to slice
// straight from the Source View every time.
package cache

import (
	"sync"

	"github.com/pierrec/lz4/v4"
)

// Status reports which byte-budget threshold the cache currently sits
// at, per spec.md §4.5.
type Status int

const (
	OK Status = iota
	SoftLimitExceeded
	HardLimitExceeded
)

func (s Status) String() string {
	switch s {
	case SoftLimitExceeded:
		return "SoftLimitExceeded"
	case HardLimitExceeded:
		return "HardLimitExceeded"
	default:
		return "OK"
	}
}

// DefaultSoftLimit and DefaultHardLimit are the byte budgets spec.md
// §4.5 names.
const (
	DefaultSoftLimit = 256 * 1024 * 1024
	DefaultHardLimit = 1024 * 1024 * 1024
)

// compressThreshold is the unescaped-value length above which an entry
// is stored LZ4-block-compressed instead of verbatim, trading CPU for
// extending the effective capacity of the same byte budget.
const compressThreshold = 256

type key struct {
	row, col int
}

type entry struct {
	data       []byte
	compressed bool
	rawLen     int // uncompressed length; counts against the byte budget either way
}

// Cache is the (row, col) -> unescaped bytes map. It is safe for
// concurrent use, so the host may read one Cache from multiple
// goroutines.
type Cache struct {
	mu sync.Mutex

	entries    map[key]entry
	usedBytes  int64
	softLimit  int64
	hardLimit  int64
}

// New creates a Cache with the given soft/hard limits. A zero value for
// either falls back to the spec.md default.
func New(softLimit, hardLimit int64) *Cache {
	if softLimit <= 0 {
		softLimit = DefaultSoftLimit
	}
	if hardLimit <= 0 {
		hardLimit = DefaultHardLimit
	}
	return &Cache{
		entries:   make(map[key]entry),
		softLimit: softLimit,
		hardLimit: hardLimit,
	}
}

// Get returns the cached unescaped value for (row, col), if present.
func (c *Cache) Get(row, col int) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key{row, col}]
	if !ok {
		return nil, false
	}
	if !e.compressed {
		return e.data, true
	}
	out := make([]byte, e.rawLen)
	n, err := lz4.UncompressBlock(e.data, out)
	if err != nil || n != e.rawLen {
		return nil, false
	}
	return out, true
}

// Put inserts the unescaped value for (row, col). If committing it
// would leave usedBytes above the hard limit, Put is a no-op and
// returns false — per spec.md §4.5, "further caching attempts return
// 'please slice from source yourself'; existing entries remain," and
// per spec.md §8's invariant that cache_bytes never exceeds hard_limit
// immediately after a successful insertion.
func (c *Cache) Put(row, col int, value []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.usedBytes+int64(len(value)) > c.hardLimit {
		return false
	}

	e := entry{rawLen: len(value)}
	if len(value) > compressThreshold {
		bound := lz4.CompressBlockBound(len(value))
		dst := make([]byte, bound)
		var ht [1 << 16]int
		n, err := lz4.CompressBlock(value, dst, ht[:])
		if err == nil && n > 0 && n < len(value) {
			e.data = dst[:n]
			e.compressed = true
		}
	}
	if e.data == nil {
		owned := make([]byte, len(value))
		copy(owned, value)
		e.data = owned
	}

	c.entries[key{row, col}] = e
	c.usedBytes += int64(e.rawLen)
	return true
}

// Status reports the cache's current limit status.
func (c *Cache) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Cache) statusLocked() Status {
	switch {
	case c.usedBytes >= c.hardLimit:
		return HardLimitExceeded
	case c.usedBytes >= c.softLimit:
		return SoftLimitExceeded
	default:
		return OK
	}
}

// UsedBytes reports the logical (uncompressed) byte count currently
// tracked against the budget, matching spec.md's "sum of owned byte
// lengths" invariant — compression is an internal storage detail, not
// something the host's accounting should see.
func (c *Cache) UsedBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedBytes
}

// Clear drops every entry and resets the used-bytes counter to zero.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[key]entry)
	c.usedBytes = 0
}

// SetSoftLimit and SetHardLimit let the host (and the foreign call
// surface's set_soft_cache_limit/set_hard_cache_limit entry points)
// adjust budgets after construction.
func (c *Cache) SetSoftLimit(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > 0 {
		c.softLimit = n
	}
}

func (c *Cache) SetHardLimit(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > 0 {
		c.hardLimit = n
	}
}
