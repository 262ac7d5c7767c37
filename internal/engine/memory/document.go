package memory

import (
	"fmt"
	"strings"

	"github.com/valkyrie-lang/valkyrie-lsp/lsp"
)

// document is an open text document. It is immutable; edits produce a new
// value so queries can hold on to a snapshot without locking.
type document struct {
	uri        lsp.DocumentURI
	languageID string
	version    int
	text       string
	lineStarts []int
	// rev is assigned by the engine when the document is stored and grows
	// with every stored edit, reopen or reload.
	rev uint64
}

func newDocument(uri lsp.DocumentURI, languageID string, version int, text string) *document {
	d := &document{uri: uri, languageID: languageID, version: version, text: text}
	d.index()
	return d
}

func (d *document) index() {
	d.lineStarts = append(d.lineStarts[:0], 0)
	for i := 0; i < len(d.text); i++ {
		if d.text[i] == '\n' {
			d.lineStarts = append(d.lineStarts, i+1)
		}
	}
}

func (d *document) lineCount() int {
	return len(d.lineStarts)
}

// line returns line i without its line terminator.
func (d *document) line(i int) string {
	if i < 0 || i >= len(d.lineStarts) {
		return ""
	}
	end := len(d.text)
	if i+1 < len(d.lineStarts) {
		end = d.lineStarts[i+1] - 1
	}
	line := d.text[d.lineStarts[i]:end]
	return strings.TrimSuffix(line, "\r")
}

// offset converts a position into a byte offset. Positions past the end of
// a line or the document clamp.
func (d *document) offset(pos lsp.Position, enc lsp.OffsetEncoding) int {
	if pos.Line >= len(d.lineStarts) {
		return len(d.text)
	}
	return d.lineStarts[pos.Line] + lsp.ColumnToByte(d.line(pos.Line), pos.Character, enc)
}

// position converts a byte column on line into a position.
func (d *document) position(line, byteCol int, enc lsp.OffsetEncoding) lsp.Position {
	return lsp.Position{Line: line, Character: lsp.ByteToColumn(d.line(line), byteCol, enc)}
}

func (d *document) span(line, start, end int, enc lsp.OffsetEncoding) lsp.Range {
	return lsp.Range{Start: d.position(line, start, enc), End: d.position(line, end, enc)}
}

// apply returns the document after changes.
func (d *document) apply(version int, changes []lsp.TextDocumentContentChangeEvent, enc lsp.OffsetEncoding) (*document, error) {
	next := &document{uri: d.uri, languageID: d.languageID, version: version, text: d.text}
	next.index()

	for i, change := range changes {
		if change.Range == nil {
			next.text = change.Text
			next.index()
			continue
		}
		start := next.offset(change.Range.Start, enc)
		end := next.offset(change.Range.End, enc)
		if end < start {
			return nil, fmt.Errorf("change %d: range end precedes start", i)
		}
		next.text = next.text[:start] + change.Text + next.text[end:]
		next.index()
	}
	return next, nil
}
