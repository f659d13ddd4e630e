package detect

// DefaultCandidates is the default delimiter candidate set used when a
// caller doesn't supply one: comma, tab, pipe, semicolon.
var DefaultCandidates = []byte{',', '\t', '|', ';'}

// maxSampleBytes bounds how much of the input is inspected when sniffing
// a delimiter, per spec.md §4.2.
const maxSampleBytes = 8192

// minSampleLines is the minimum number of logical lines the scorer
// tries to gather before scoring, when the sample has that many.
const minSampleLines = 3

// Delimiter scores each byte in candidates over the first up-to-8KiB of
// data and returns the best-scoring one. quote is the quote byte used
// to recognize (and ignore) delimiter occurrences inside quoted
// regions. ok is false when no candidate produced any split at all; in
// that case the first candidate is returned anyway (spec.md's chosen
// default is to fall back silently, optionally surfacing
// UndetectableDelimiter to a caller that checks ok).
func Delimiter(data []byte, candidates []byte, quote byte) (byte, bool) {
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}

	sample := data
	if len(sample) > maxSampleBytes {
		sample = sample[:maxSampleBytes]
	}
	lines := splitLogicalLines(sample, quote)

	bestIdx := 0
	bestScore := -1
	anySplit := false

	for i, c := range candidates {
		score, split := scoreCandidate(lines, c, quote)
		if split {
			anySplit = true
		}
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	return candidates[bestIdx], anySplit
}

// splitLogicalLines breaks data into lines, treating \n and \r\n as
// terminators, but never splitting on a terminator that falls inside a
// quoted region (quote bytes counted modulo 2, doubled quotes treated
// as literal by virtue of being counted twice and cancelling out).
func splitLogicalLines(data []byte, quote byte) [][]byte {
	var lines [][]byte
	start := 0
	inQuote := false

	for i := 0; i < len(data); i++ {
		b := data[i]
		switch {
		case b == quote:
			inQuote = !inQuote
		case b == '\n' && !inQuote:
			end := i
			if end > start && data[end-1] == '\r' {
				end--
			}
			lines = append(lines, data[start:end])
			start = i + 1
			if len(lines) >= minSampleLines+1 {
				return lines
			}
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}

// scoreCandidate counts candidate occurrences outside quoted regions on
// each line, then scores as (count of lines matching the modal count) *
// (modal count itself), per spec.md §4.2. split reports whether any
// line contained at least one occurrence.
func scoreCandidate(lines [][]byte, c byte, quote byte) (score int, split bool) {
	if len(lines) == 0 {
		return 0, false
	}

	counts := make([]int, 0, len(lines))
	for _, line := range lines {
		n := countOutsideQuotes(line, c, quote)
		counts = append(counts, n)
		if n > 0 {
			split = true
		}
	}

	modal, modalCount := mode(counts)
	if modal == 0 {
		return 0, split
	}
	return modalCount * modal, split
}

func countOutsideQuotes(line []byte, c, quote byte) int {
	n := 0
	inQuote := false
	for _, b := range line {
		switch {
		case b == quote:
			inQuote = !inQuote
		case b == c && !inQuote:
			n++
		}
	}
	return n
}

// mode returns the most frequent value in counts and how many times it
// appears.
func mode(counts []int) (value, frequency int) {
	tally := make(map[int]int, len(counts))
	for _, n := range counts {
		tally[n]++
	}
	bestValue, bestFreq := 0, 0
	for v, f := range tally {
		if f > bestFreq || (f == bestFreq && v > bestValue) {
			bestValue, bestFreq = v, f
		}
	}
	return bestValue, bestFreq
}
