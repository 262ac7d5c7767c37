package lsp

import "testing"

func TestColumnToByte(t *testing.T) {
	// "a" (1 byte), "é" (2 bytes, 1 utf-16 unit), "😀" (4 bytes, 2 utf-16 units), "b"
	line := "aé😀b"

	tests := []struct {
		name   string
		column int
		enc    OffsetEncoding
		want   int
	}{
		{"start", 0, UTF16, 0},
		{"utf16 after accent", 2, UTF16, 3},
		{"utf16 after emoji", 4, UTF16, 7},
		{"utf16 inside surrogate pair", 3, UTF16, 3},
		{"utf8 byte offset", 3, UTF8, 3},
		{"utf8 inside sequence", 2, UTF8, 1},
		{"utf32 after emoji", 3, UTF32, 7},
		{"past end clamps", 40, UTF16, len(line)},
		{"negative", -1, UTF16, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ColumnToByte(line, tt.column, tt.enc); got != tt.want {
				t.Errorf("ColumnToByte(%d, %s) = %d, want %d", tt.column, tt.enc, got, tt.want)
			}
		})
	}
}

func TestByteToColumn(t *testing.T) {
	line := "aé😀b"

	tests := []struct {
		name   string
		offset int
		enc    OffsetEncoding
		want   int
	}{
		{"utf16 end", len(line), UTF16, 5},
		{"utf8 end", len(line), UTF8, len(line)},
		{"utf32 end", len(line), UTF32, 4},
		{"inside emoji rounds down", 5, UTF16, 2},
		{"past end clamps", 99, UTF32, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ByteToColumn(line, tt.offset, tt.enc); got != tt.want {
				t.Errorf("ByteToColumn(%d, %s) = %d, want %d", tt.offset, tt.enc, got, tt.want)
			}
		})
	}
}

func TestRangeValidate(t *testing.T) {
	ok := Range{Start: Position{Line: 1, Character: 2}, End: Position{Line: 1, Character: 4}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Expected valid range, got %v", err)
	}

	inverted := Range{Start: Position{Line: 2}, End: Position{Line: 1}}
	if err := inverted.Validate(); err == nil {
		t.Fatalf("Expected inverted range to fail validation")
	}

	negative := Range{Start: Position{Line: -1}}
	if err := negative.Validate(); err == nil {
		t.Fatalf("Expected negative position to fail validation")
	}
}

func TestRangeOverlaps(t *testing.T) {
	a := Range{Start: Position{Line: 0, Character: 0}, End: Position{Line: 0, Character: 5}}
	b := Range{Start: Position{Line: 0, Character: 5}, End: Position{Line: 0, Character: 9}}
	c := Range{Start: Position{Line: 1}, End: Position{Line: 1, Character: 1}}

	if !a.Overlaps(b) {
		t.Errorf("Expected touching ranges to overlap")
	}
	if a.Overlaps(c) {
		t.Errorf("Expected disjoint ranges not to overlap")
	}
}
