// Package engine defines the boundary between the protocol core and the
// language analysis backend.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/valkyrie-lang/valkyrie-lsp/lsp"
)

var (
	// ErrUnknownDocument is returned for a URI the engine has not seen.
	ErrUnknownDocument = errors.New("engine: unknown document")
	// ErrContentModified is returned when a result no longer matches the
	// document it was computed for.
	ErrContentModified = errors.New("engine: content modified")
	// ErrInvalidParams is returned when arguments are well-formed JSON but
	// meaningless to the engine.
	ErrInvalidParams = errors.New("engine: invalid params")
	// ErrUnknownCommand is returned by ExecuteCommand for a command it does
	// not know.
	ErrUnknownCommand = fmt.Errorf("%w: unknown command", ErrInvalidParams)
)

// InitializeParams is what the engine learns from the initialize handshake.
type InitializeParams struct {
	RootURI  lsp.DocumentURI
	Folders  []lsp.WorkspaceFolder
	Encoding lsp.OffsetEncoding
	Options  json.RawMessage
	// Markdown reports whether the client renders markdown hovers.
	Markdown bool
}

// DocumentDiagnostics are the diagnostics of one document version.
type DocumentDiagnostics struct {
	URI     lsp.DocumentURI
	Version int
	// ResultID names the content the diagnostics were computed from and
	// changes whenever it does. Empty disables unchanged reports.
	ResultID string
	Items    []lsp.Diagnostic
}

// FileOperationKind distinguishes file operation hooks.
type FileOperationKind int

const (
	FileCreate FileOperationKind = iota + 1
	FileRename
	FileDelete
)

func (k FileOperationKind) String() string {
	switch k {
	case FileCreate:
		return "create"
	case FileRename:
		return "rename"
	case FileDelete:
		return "delete"
	default:
		return fmt.Sprintf("FileOperationKind(%d)", int(k))
	}
}

// FileChange is one file in a file operation. OldURI is set for renames.
type FileChange struct {
	OldURI lsp.DocumentURI
	URI    lsp.DocumentURI
}

// FileOperation is a batch of workspace file changes.
type FileOperation struct {
	Kind  FileOperationKind
	Files []FileChange
}

// Engine answers language queries. Every method receives the request context
// and must return ctx.Err() promptly once it is cancelled. Mutating methods
// are never called concurrently with each other; queries may run
// concurrently with everything.
type Engine interface {
	Initialize(ctx context.Context, params InitializeParams) error
	Shutdown(ctx context.Context) error

	DidOpen(ctx context.Context, doc lsp.TextDocumentItem) error
	DidChange(ctx context.Context, doc lsp.VersionedTextDocumentIdentifier, changes []lsp.TextDocumentContentChangeEvent) error
	DidSave(ctx context.Context, uri lsp.DocumentURI, text *string) error
	DidClose(ctx context.Context, uri lsp.DocumentURI) error
	WillSaveWaitUntil(ctx context.Context, uri lsp.DocumentURI, reason lsp.TextDocumentSaveReason) ([]lsp.TextEdit, error)

	Hover(ctx context.Context, uri lsp.DocumentURI, pos lsp.Position) (*lsp.Hover, error)
	Declaration(ctx context.Context, uri lsp.DocumentURI, pos lsp.Position) ([]lsp.Location, error)
	Definition(ctx context.Context, uri lsp.DocumentURI, pos lsp.Position) ([]lsp.Location, error)
	TypeDefinition(ctx context.Context, uri lsp.DocumentURI, pos lsp.Position) ([]lsp.Location, error)
	Implementation(ctx context.Context, uri lsp.DocumentURI, pos lsp.Position) ([]lsp.Location, error)
	References(ctx context.Context, uri lsp.DocumentURI, pos lsp.Position, includeDeclaration bool) ([]lsp.Location, error)
	CodeActions(ctx context.Context, uri lsp.DocumentURI, rng lsp.Range, actx lsp.CodeActionContext) ([]lsp.CodeAction, error)
	ResolveCodeAction(ctx context.Context, action lsp.CodeAction) (lsp.CodeAction, error)

	Diagnostics(ctx context.Context, uri lsp.DocumentURI) (DocumentDiagnostics, error)
	WorkspaceDiagnostics(ctx context.Context) ([]DocumentDiagnostics, error)
	WorkspaceSymbols(ctx context.Context, query string) ([]lsp.SymbolInformation, error)

	Commands() []string
	ExecuteCommand(ctx context.Context, command string, args []json.RawMessage) (any, error)

	DidChangeConfiguration(ctx context.Context, settings json.RawMessage) error
	DidChangeWorkspaceFolders(ctx context.Context, added, removed []lsp.WorkspaceFolder) error
	DidChangeWatchedFiles(ctx context.Context, changes []lsp.FileEvent) error
	WillChangeFiles(ctx context.Context, op FileOperation) (*lsp.WorkspaceEdit, error)
	DidChangeFiles(ctx context.Context, op FileOperation) error
}

// Unimplemented answers every query with an empty result. Embed it to
// implement only part of Engine.
type Unimplemented struct{}

var _ Engine = Unimplemented{}

func (Unimplemented) Initialize(context.Context, InitializeParams) error { return nil }
func (Unimplemented) Shutdown(context.Context) error                     { return nil }

func (Unimplemented) DidOpen(context.Context, lsp.TextDocumentItem) error { return nil }
func (Unimplemented) DidChange(context.Context, lsp.VersionedTextDocumentIdentifier, []lsp.TextDocumentContentChangeEvent) error {
	return nil
}
func (Unimplemented) DidSave(context.Context, lsp.DocumentURI, *string) error { return nil }
func (Unimplemented) DidClose(context.Context, lsp.DocumentURI) error         { return nil }
func (Unimplemented) WillSaveWaitUntil(context.Context, lsp.DocumentURI, lsp.TextDocumentSaveReason) ([]lsp.TextEdit, error) {
	return []lsp.TextEdit{}, nil
}

func (Unimplemented) Hover(context.Context, lsp.DocumentURI, lsp.Position) (*lsp.Hover, error) {
	return nil, nil
}
func (Unimplemented) Declaration(context.Context, lsp.DocumentURI, lsp.Position) ([]lsp.Location, error) {
	return []lsp.Location{}, nil
}
func (Unimplemented) Definition(context.Context, lsp.DocumentURI, lsp.Position) ([]lsp.Location, error) {
	return []lsp.Location{}, nil
}
func (Unimplemented) TypeDefinition(context.Context, lsp.DocumentURI, lsp.Position) ([]lsp.Location, error) {
	return []lsp.Location{}, nil
}
func (Unimplemented) Implementation(context.Context, lsp.DocumentURI, lsp.Position) ([]lsp.Location, error) {
	return []lsp.Location{}, nil
}
func (Unimplemented) References(context.Context, lsp.DocumentURI, lsp.Position, bool) ([]lsp.Location, error) {
	return []lsp.Location{}, nil
}
func (Unimplemented) CodeActions(context.Context, lsp.DocumentURI, lsp.Range, lsp.CodeActionContext) ([]lsp.CodeAction, error) {
	return []lsp.CodeAction{}, nil
}
func (Unimplemented) ResolveCodeAction(_ context.Context, action lsp.CodeAction) (lsp.CodeAction, error) {
	return action, nil
}

func (Unimplemented) Diagnostics(_ context.Context, uri lsp.DocumentURI) (DocumentDiagnostics, error) {
	return DocumentDiagnostics{URI: uri, Items: []lsp.Diagnostic{}}, nil
}
func (Unimplemented) WorkspaceDiagnostics(context.Context) ([]DocumentDiagnostics, error) {
	return nil, nil
}
func (Unimplemented) WorkspaceSymbols(context.Context, string) ([]lsp.SymbolInformation, error) {
	return []lsp.SymbolInformation{}, nil
}

func (Unimplemented) Commands() []string { return nil }
func (Unimplemented) ExecuteCommand(_ context.Context, command string, _ []json.RawMessage) (any, error) {
	return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, command)
}

func (Unimplemented) DidChangeConfiguration(context.Context, json.RawMessage) error { return nil }
func (Unimplemented) DidChangeWorkspaceFolders(context.Context, []lsp.WorkspaceFolder, []lsp.WorkspaceFolder) error {
	return nil
}
func (Unimplemented) DidChangeWatchedFiles(context.Context, []lsp.FileEvent) error { return nil }
func (Unimplemented) WillChangeFiles(context.Context, FileOperation) (*lsp.WorkspaceEdit, error) {
	return nil, nil
}
func (Unimplemented) DidChangeFiles(context.Context, FileOperation) error { return nil }
