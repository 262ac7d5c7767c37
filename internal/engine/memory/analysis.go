package memory

import (
	"context"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/valkyrie-lang/valkyrie-lsp/lsp"
)

// occurrence is a whole-word match of an identifier.
type occurrence struct {
	uri     lsp.DocumentURI
	line    int
	start   int // byte column
	end     int // byte column
	keyword string
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// wordAt returns the identifier touching byte column col of line.
func wordAt(line string, col int) (string, int, int, bool) {
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(line[:start])
		if !isIdentRune(r) {
			break
		}
		start -= size
	}
	end := col
	for end < len(line) {
		r, size := utf8.DecodeRuneInString(line[end:])
		if !isIdentRune(r) {
			break
		}
		end += size
	}

	if start == end {
		return "", 0, 0, false
	}
	return line[start:end], start, end, true
}

// previousWord returns the identifier immediately before byte column col,
// skipping whitespace.
func previousWord(line string, col int) string {
	i := col
	for i > 0 {
		r, size := utf8.DecodeLastRuneInString(line[:i])
		if r != ' ' && r != '\t' {
			break
		}
		i -= size
	}
	word, _, _, ok := wordAt(line, i)
	if !ok || i == col {
		return ""
	}
	return word
}

// findWord returns the byte columns of whole-word matches of word on line.
func findWord(line, word string) [][2]int {
	if word == "" {
		return nil
	}
	var out [][2]int
	for from := 0; from <= len(line)-len(word); {
		idx := strings.Index(line[from:], word)
		if idx < 0 {
			break
		}
		start := from + idx
		end := start + len(word)

		before, _ := utf8.DecodeLastRuneInString(line[:start])
		after, _ := utf8.DecodeRuneInString(line[end:])
		if (start == 0 || !isIdentRune(before)) && (end == len(line) || !isIdentRune(after)) {
			out = append(out, [2]int{start, end})
		}
		from = end
	}
	return out
}

// occurrences scans docs for word. Each result records the keyword that
// precedes it on its line, if any.
func occurrences(ctx context.Context, docs []*document, word string) ([]occurrence, error) {
	var out []occurrence
	for _, doc := range docs {
		for i := range doc.lineCount() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			line := doc.line(i)
			for _, m := range findWord(line, word) {
				out = append(out, occurrence{
					uri:     doc.uri,
					line:    i,
					start:   m[0],
					end:     m[1],
					keyword: previousWord(line, m[0]),
				})
			}
		}
	}
	return out, nil
}

// definitions scans docs for identifiers introduced by one of keywords.
func definitions(ctx context.Context, docs []*document, keywords []string) ([]occurrence, error) {
	var out []occurrence
	for _, doc := range docs {
		for i := range doc.lineCount() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			line := doc.line(i)
			for col := 0; col < len(line); {
				r, size := utf8.DecodeRuneInString(line[col:])
				if !isIdentRune(r) {
					col += size
					continue
				}
				_, start, end, _ := wordAt(line, col)
				if kw := previousWord(line, start); slices.Contains(keywords, kw) {
					out = append(out, occurrence{uri: doc.uri, line: i, start: start, end: end, keyword: kw})
				}
				col = end
			}
		}
	}
	return out, nil
}

// annotatedType returns the identifier after a ':' that follows byte column
// end on line, as in "let x: Point".
func annotatedType(line string, end int) string {
	rest := strings.TrimLeft(line[end:], " \t")
	if !strings.HasPrefix(rest, ":") {
		return ""
	}
	rest = strings.TrimLeft(rest[1:], " \t")
	word, start, _, ok := wordAt(rest, 0)
	if !ok || start != 0 {
		return ""
	}
	return word
}

// trailingWhitespace returns the byte column where trailing blanks start on
// line, or -1 if there are none.
func trailingWhitespace(line string) int {
	trimmed := strings.TrimRight(line, " \t")
	if len(trimmed) == len(line) {
		return -1
	}
	return len(trimmed)
}

func symbolKind(keyword string) lsp.SymbolKind {
	switch keyword {
	case "fn", "func", "def", "function":
		return lsp.SymbolFunction
	case "class":
		return lsp.SymbolClass
	case "struct":
		return lsp.SymbolStruct
	case "interface", "trait":
		return lsp.SymbolInterface
	case "enum":
		return lsp.SymbolEnum
	case "const":
		return lsp.SymbolConstant
	case "type":
		return lsp.SymbolTypeParam
	case "module", "mod", "package":
		return lsp.SymbolModule
	default:
		return lsp.SymbolVariable
	}
}
