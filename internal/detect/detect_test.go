package detect

import "testing"

func TestStripBOM(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want int
	}{
		{"none", []byte("a,b\n"), 0},
		{"utf8", []byte{0xEF, 0xBB, 0xBF, 'a'}, 3},
		{"utf16le", []byte{0xFF, 0xFE, 'a', 0}, 2},
		{"utf16be", []byte{0xFE, 0xFF, 0, 'a'}, 2},
		{"utf32le", []byte{0xFF, 0xFE, 0x00, 0x00, 'a'}, 4},
		{"utf32be", []byte{0x00, 0x00, 0xFE, 0xFF, 'a'}, 4},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripBOM(tt.data); got != tt.want {
				t.Fatalf("StripBOM(%v) = %d, want %d", tt.data, got, tt.want)
			}
		})
	}
}

func TestEncodingReportsKind(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantKind byte
		wantLen  int
	}{
		{"none", []byte("a,b\n"), Unknown, 0},
		{"utf8", []byte{0xEF, 0xBB, 0xBF, 'a'}, UTF8, 3},
		{"utf16le", []byte{0xFF, 0xFE, 'a', 0}, UTF16LE, 2},
		{"utf16be", []byte{0xFE, 0xFF, 0, 'a'}, UTF16BE, 2},
		{"utf32le", []byte{0xFF, 0xFE, 0x00, 0x00, 'a'}, UTF32LE, 4},
		{"utf32be", []byte{0x00, 0x00, 0xFE, 0xFF, 'a'}, UTF32BE, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, n := Encoding(tt.data)
			if kind != tt.wantKind || n != tt.wantLen {
				t.Fatalf("Encoding(%v) = (%d, %d), want (%d, %d)", tt.data, kind, n, tt.wantKind, tt.wantLen)
			}
		})
	}
}

func TestDelimiterDetection(t *testing.T) {
	data := []byte("n;a;c\nA;1;x\nB;2;y\n")
	got, ok := Delimiter(data, []byte{',', '\t', '|', ';'}, '"')
	if !ok {
		t.Fatal("expected a discriminating candidate")
	}
	if got != ';' {
		t.Fatalf("Delimiter() = %q, want ';'", got)
	}
}

func TestDelimiterIgnoresQuotedOccurrences(t *testing.T) {
	data := []byte(`a,b,c` + "\n" + `"x,y,z",2,3` + "\n" + `5,6,7` + "\n")
	got, ok := Delimiter(data, DefaultCandidates, '"')
	if !ok {
		t.Fatal("expected a discriminating candidate")
	}
	if got != ',' {
		t.Fatalf("Delimiter() = %q, want ','", got)
	}
}

func TestDelimiterFallback(t *testing.T) {
	// No candidate byte appears anywhere: falls back to the first
	// candidate and reports ok=false.
	got, ok := Delimiter([]byte("abcabcabc\nabcabc\n"), DefaultCandidates, '"')
	if ok {
		t.Fatal("expected ok=false when nothing discriminates")
	}
	if got != DefaultCandidates[0] {
		t.Fatalf("Delimiter() = %q, want fallback %q", got, DefaultCandidates[0])
	}
}
