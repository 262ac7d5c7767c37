package lsp

import (
	"unicode/utf16"
	"unicode/utf8"
)

// OffsetEncoding is the unit a Position's Character counts.
type OffsetEncoding string

const (
	UTF8  OffsetEncoding = "utf-8"
	UTF16 OffsetEncoding = "utf-16"
	UTF32 OffsetEncoding = "utf-32"
)

// Valid reports whether e is a known encoding.
func (e OffsetEncoding) Valid() bool {
	switch e {
	case UTF8, UTF16, UTF32:
		return true
	}
	return false
}

// units returns the width of r in the encoding's code units.
func (e OffsetEncoding) units(r rune, size int) int {
	switch e {
	case UTF8:
		return size
	case UTF32:
		return 1
	default:
		if n := utf16.RuneLen(r); n > 0 {
			return n
		}
		return 1
	}
}

// ColumnToByte converts a character offset on line into a byte offset. A
// column inside a multi-unit character rounds down to the character start;
// a column past the end clamps to len(line).
func ColumnToByte(line string, column int, enc OffsetEncoding) int {
	if column <= 0 {
		return 0
	}
	units := 0
	for i := 0; i < len(line); {
		r, size := utf8.DecodeRuneInString(line[i:])
		w := enc.units(r, size)
		if units+w > column {
			return i
		}
		units += w
		i += size
	}
	return len(line)
}

// ByteToColumn converts a byte offset on line into a character offset in enc.
// An offset inside a UTF-8 sequence rounds down to the character start.
func ByteToColumn(line string, offset int, enc OffsetEncoding) int {
	if offset > len(line) {
		offset = len(line)
	}
	units := 0
	for i := 0; i < offset; {
		r, size := utf8.DecodeRuneInString(line[i:])
		if i+size > offset {
			break
		}
		units += enc.units(r, size)
		i += size
	}
	return units
}
