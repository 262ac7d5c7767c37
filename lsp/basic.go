// Package lsp contains the Language Server Protocol wire types used by the
// server: positions, documents, lifecycle payloads, language features and
// workspace operations.
package lsp

import (
	"errors"
	"fmt"
)

// ErrMissingURI is returned by Validate when a document URI is empty.
var ErrMissingURI = errors.New("missing document uri")

// DocumentURI is a document identity. The server treats it as an opaque key.
type DocumentURI string

// Position is a zero-based (line, character) coordinate. Character counts code
// units of the negotiated OffsetEncoding.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Validate rejects negative coordinates.
func (p Position) Validate() error {
	if p.Line < 0 || p.Character < 0 {
		return fmt.Errorf("invalid position %d:%d", p.Line, p.Character)
	}
	return nil
}

// Before reports whether p sorts strictly before other.
func (p Position) Before(other Position) bool {
	return p.Line < other.Line || (p.Line == other.Line && p.Character < other.Character)
}

// Range is a half-open span between two positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Validate rejects negative coordinates and inverted ranges.
func (r Range) Validate() error {
	if err := r.Start.Validate(); err != nil {
		return err
	}
	if err := r.End.Validate(); err != nil {
		return err
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("range end %d:%d precedes start %d:%d", r.End.Line, r.End.Character, r.Start.Line, r.Start.Character)
	}
	return nil
}

// Overlaps reports whether two ranges share at least one position. Empty
// ranges touching a boundary count as overlapping.
func (r Range) Overlaps(other Range) bool {
	return !r.End.Before(other.Start) && !other.End.Before(r.Start)
}

// Location is a range inside a document.
type Location struct {
	URI   DocumentURI `json:"uri"`
	Range Range       `json:"range"`
}

// TextDocumentIdentifier identifies a document.
type TextDocumentIdentifier struct {
	URI DocumentURI `json:"uri"`
}

// Validate requires a URI.
func (t TextDocumentIdentifier) Validate() error {
	if t.URI == "" {
		return ErrMissingURI
	}
	return nil
}

// VersionedTextDocumentIdentifier identifies a specific document version.
type VersionedTextDocumentIdentifier struct {
	TextDocumentIdentifier
	Version int `json:"version"`
}

// TextDocumentItem is a document transferred on open.
type TextDocumentItem struct {
	URI        DocumentURI `json:"uri"`
	LanguageID string      `json:"languageId"`
	Version    int         `json:"version"`
	Text       string      `json:"text"`
}

// TextDocumentPositionParams is the common shape of position-based requests.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// Validate checks the document and position.
func (p TextDocumentPositionParams) Validate() error {
	if err := p.TextDocument.Validate(); err != nil {
		return err
	}
	return p.Position.Validate()
}

// WorkDoneProgressParams carries an optional progress token.
type WorkDoneProgressParams struct {
	WorkDoneToken any `json:"workDoneToken,omitempty"`
}

// PartialResultParams carries an optional partial result token.
type PartialResultParams struct {
	PartialResultToken any `json:"partialResultToken,omitempty"`
}

// TextEdit replaces a range with new text.
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// WorkspaceEdit is a set of changes across documents.
type WorkspaceEdit struct {
	Changes map[DocumentURI][]TextEdit `json:"changes,omitempty"`
}

// Command is a reference to a command the client can run.
type Command struct {
	Title     string `json:"title"`
	Command   string `json:"command"`
	Arguments []any  `json:"arguments,omitempty"`
}

// MarkupKind is the format of MarkupContent.
type MarkupKind string

const (
	PlainText MarkupKind = "plaintext"
	Markdown  MarkupKind = "markdown"
)

// MarkupContent is human readable content in a given format.
type MarkupContent struct {
	Kind  MarkupKind `json:"kind"`
	Value string     `json:"value"`
}
