//go:build !amd64

package simd

const wordBytes = 8

// scanLanes processes full 8-byte words one at a time. Architectures
// without an AVX2-style capability probe get the plain SWAR lane; it is
// still considerably faster than the byte-at-a-time scalar path and,
// crucially, produces bit-identical output to it.
func scanLanes(data []byte, delim, quote, cr, lf byte, m *Masks) int {
	m.LaneWidth = wordBytes
	n := len(data) / wordBytes
	for i := 0; i < n; i++ {
		scanWordAt(data, i*wordBytes, delim, quote, cr, lf, m)
	}
	return n * wordBytes
}
