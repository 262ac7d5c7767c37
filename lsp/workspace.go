package lsp

import (
	"encoding/json"
	"fmt"
)

// DidChangeConfigurationParams carries the new client settings.
// Method: workspace/didChangeConfiguration
type DidChangeConfigurationParams struct {
	Settings json.RawMessage `json:"settings"`
}

// WorkspaceFoldersChangeEvent lists added and removed folders.
type WorkspaceFoldersChangeEvent struct {
	Added   []WorkspaceFolder `json:"added"`
	Removed []WorkspaceFolder `json:"removed"`
}

// DidChangeWorkspaceFoldersParams is sent when folders are added or removed.
// Method: workspace/didChangeWorkspaceFolders
type DidChangeWorkspaceFoldersParams struct {
	Event WorkspaceFoldersChangeEvent `json:"event"`
}

// Validate requires every folder to have a URI.
func (p DidChangeWorkspaceFoldersParams) Validate() error {
	for _, folder := range append(append([]WorkspaceFolder(nil), p.Event.Added...), p.Event.Removed...) {
		if folder.URI == "" {
			return fmt.Errorf("workspace folder %q: %w", folder.Name, ErrMissingURI)
		}
	}
	return nil
}

// FileChangeType is the kind of a watched file event.
type FileChangeType int

const (
	FileCreated FileChangeType = 1
	FileChanged FileChangeType = 2
	FileDeleted FileChangeType = 3
)

// FileEvent is a single watched file event.
type FileEvent struct {
	URI  DocumentURI    `json:"uri"`
	Type FileChangeType `json:"type"`
}

// DidChangeWatchedFilesParams is sent when watched files change on disk.
// Method: workspace/didChangeWatchedFiles
type DidChangeWatchedFilesParams struct {
	Changes []FileEvent `json:"changes"`
}

// Validate requires every event to have a URI.
func (p DidChangeWatchedFilesParams) Validate() error {
	for _, change := range p.Changes {
		if change.URI == "" {
			return ErrMissingURI
		}
	}
	return nil
}

// FileCreate names a created file.
type FileCreate struct {
	URI string `json:"uri"`
}

// CreateFilesParams is the payload of workspace/willCreateFiles and didCreateFiles.
type CreateFilesParams struct {
	Files []FileCreate `json:"files"`
}

// FileRename names a renamed file.
type FileRename struct {
	OldURI string `json:"oldUri"`
	NewURI string `json:"newUri"`
}

// RenameFilesParams is the payload of workspace/willRenameFiles and didRenameFiles.
type RenameFilesParams struct {
	Files []FileRename `json:"files"`
}

// FileDelete names a deleted file.
type FileDelete struct {
	URI string `json:"uri"`
}

// DeleteFilesParams is the payload of workspace/willDeleteFiles and didDeleteFiles.
type DeleteFilesParams struct {
	Files []FileDelete `json:"files"`
}

// ExecuteCommandParams is the payload of workspace/executeCommand.
type ExecuteCommandParams struct {
	WorkDoneProgressParams
	Command   string            `json:"command"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
}

// Validate requires a command name.
func (p ExecuteCommandParams) Validate() error {
	if p.Command == "" {
		return fmt.Errorf("missing command")
	}
	return nil
}

// WorkspaceSymbolParams is the payload of workspace/symbol.
type WorkspaceSymbolParams struct {
	WorkDoneProgressParams
	PartialResultParams
	Query string `json:"query"`
}

// SymbolKind classifies a symbol.
type SymbolKind int

const (
	SymbolFile      SymbolKind = 1
	SymbolModule    SymbolKind = 2
	SymbolClass     SymbolKind = 5
	SymbolMethod    SymbolKind = 6
	SymbolField     SymbolKind = 8
	SymbolEnum      SymbolKind = 10
	SymbolInterface SymbolKind = 11
	SymbolFunction  SymbolKind = 12
	SymbolVariable  SymbolKind = 13
	SymbolConstant  SymbolKind = 14
	SymbolStruct    SymbolKind = 23
	SymbolTypeParam SymbolKind = 26
)

// SymbolInformation is one entry of a workspace/symbol result.
type SymbolInformation struct {
	Name          string     `json:"name"`
	Kind          SymbolKind `json:"kind"`
	Location      Location   `json:"location"`
	ContainerName string     `json:"containerName,omitempty"`
}
