//go:build amd64

package simd

import "golang.org/x/sys/cpu"

// hasAVX2 is probed once at package init, mirroring the capability-gate
// idiom the teacher's simd package uses around x/sys/cpu.X86 feature
// bits, but without declaring any assembly backing: everything below is
// portable Go, just organized so an AVX2-capable core runs four 8-byte
// SWAR lanes per iteration instead of one.
var hasAVX2 = cpu.X86.HasAVX2

const (
	laneWords4x = 4 // words processed per unrolled batch on AVX2-capable cores
	wordBytes   = 8
)

// scanLanes processes as many full 8-byte words as possible, four words
// at a time when the CPU advertises AVX2, one word at a time otherwise,
// and returns how many leading bytes of data it consumed. The remainder
// is left for the scalar path in Scan.
func scanLanes(data []byte, delim, quote, cr, lf byte, m *Masks) int {
	m.LaneWidth = wordBytes
	if hasAVX2 {
		m.LaneWidth = wordBytes * laneWords4x
		return scanLanesUnrolled(data, delim, quote, cr, lf, m)
	}
	return scanLanesSingle(data, delim, quote, cr, lf, m)
}

func scanLanesSingle(data []byte, delim, quote, cr, lf byte, m *Masks) int {
	n := len(data) / wordBytes
	for i := 0; i < n; i++ {
		scanWordAt(data, i*wordBytes, delim, quote, cr, lf, m)
	}
	return n * wordBytes
}

func scanLanesUnrolled(data []byte, delim, quote, cr, lf byte, m *Masks) int {
	batch := wordBytes * laneWords4x
	n := len(data) / batch
	for i := 0; i < n; i++ {
		base := i * batch
		for w := 0; w < laneWords4x; w++ {
			scanWordAt(data, base+w*wordBytes, delim, quote, cr, lf, m)
		}
	}
	consumed := n * batch

	rem := (len(data) - consumed) / wordBytes
	for i := 0; i < rem; i++ {
		scanWordAt(data, consumed+i*wordBytes, delim, quote, cr, lf, m)
	}
	consumed += rem * wordBytes
	return consumed
}
