package lsp

import "fmt"

// TextDocumentSyncKind selects how document changes are sent.
type TextDocumentSyncKind int

const (
	SyncNone        TextDocumentSyncKind = 0
	SyncFull        TextDocumentSyncKind = 1
	SyncIncremental TextDocumentSyncKind = 2
)

// TextDocumentSyncOptions announces document synchronization support.
type TextDocumentSyncOptions struct {
	OpenClose         bool                 `json:"openClose"`
	Change            TextDocumentSyncKind `json:"change"`
	WillSave          bool                 `json:"willSave,omitempty"`
	WillSaveWaitUntil bool                 `json:"willSaveWaitUntil,omitempty"`
	Save              *SaveOptions         `json:"save,omitempty"`
}

// SaveOptions configures didSave.
type SaveOptions struct {
	IncludeText bool `json:"includeText,omitempty"`
}

// DidOpenTextDocumentParams is sent when a document is opened.
// Method: textDocument/didOpen
type DidOpenTextDocumentParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// Validate requires a URI.
func (p DidOpenTextDocumentParams) Validate() error {
	if p.TextDocument.URI == "" {
		return ErrMissingURI
	}
	return nil
}

// TextDocumentContentChangeEvent is either a full replacement (Range nil) or
// an incremental edit.
type TextDocumentContentChangeEvent struct {
	Range *Range `json:"range,omitempty"`
	Text  string `json:"text"`
}

// DidChangeTextDocumentParams is sent when a document changes.
// Method: textDocument/didChange
type DidChangeTextDocumentParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

// Validate requires a URI and well-formed change ranges.
func (p DidChangeTextDocumentParams) Validate() error {
	if err := p.TextDocument.Validate(); err != nil {
		return err
	}
	for i, change := range p.ContentChanges {
		if change.Range == nil {
			continue
		}
		if err := change.Range.Validate(); err != nil {
			return fmt.Errorf("content change %d: %w", i, err)
		}
	}
	return nil
}

// DidSaveTextDocumentParams contains the saved document.
// Method: textDocument/didSave
type DidSaveTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Text         *string                `json:"text,omitempty"` // If includeText is true
}

// Validate requires a URI.
func (p DidSaveTextDocumentParams) Validate() error {
	return p.TextDocument.Validate()
}

// DidCloseTextDocumentParams contains the closed document identifier.
// Method: textDocument/didClose
type DidCloseTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// Validate requires a URI.
func (p DidCloseTextDocumentParams) Validate() error {
	return p.TextDocument.Validate()
}

// TextDocumentSaveReason says why a document is saved.
type TextDocumentSaveReason int

const (
	SaveManual     TextDocumentSaveReason = 1
	SaveAfterDelay TextDocumentSaveReason = 2
	SaveFocusOut   TextDocumentSaveReason = 3
)

// WillSaveTextDocumentParams is sent before a document is saved.
// Method: textDocument/willSave, textDocument/willSaveWaitUntil
type WillSaveTextDocumentParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Reason       TextDocumentSaveReason `json:"reason"`
}

// Validate requires a URI.
func (p WillSaveTextDocumentParams) Validate() error {
	return p.TextDocument.Validate()
}
