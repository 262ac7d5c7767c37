package lsp

import (
	"encoding/json"
	"fmt"
)

// ClientInfo identifies the client.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// WorkspaceFolder is a root folder opened in the client.
type WorkspaceFolder struct {
	URI  DocumentURI `json:"uri"`
	Name string      `json:"name"`
}

// InitializeParams is sent with the initialize request.
type InitializeParams struct {
	WorkDoneProgressParams
	ProcessID             *int               `json:"processId"`
	ClientInfo            *ClientInfo        `json:"clientInfo,omitempty"`
	Locale                string             `json:"locale,omitempty"`
	RootPath              string             `json:"rootPath,omitempty"`
	RootURI               DocumentURI        `json:"rootUri,omitempty"`
	InitializationOptions json.RawMessage    `json:"initializationOptions,omitempty"`
	Capabilities          ClientCapabilities `json:"capabilities"`
	Trace                 string             `json:"trace,omitempty"`
	WorkspaceFolders      []WorkspaceFolder  `json:"workspaceFolders,omitempty"`
}

// Validate checks the parts of initialize the server relies on.
func (p InitializeParams) Validate() error {
	for _, folder := range p.WorkspaceFolders {
		if folder.URI == "" {
			return fmt.Errorf("workspace folder %q: %w", folder.Name, ErrMissingURI)
		}
	}
	return nil
}

// ClientCapabilities is the subset of client capabilities the server reads.
type ClientCapabilities struct {
	Workspace    *WorkspaceClientCapabilities    `json:"workspace,omitempty"`
	TextDocument *TextDocumentClientCapabilities `json:"textDocument,omitempty"`
	General      *GeneralClientCapabilities      `json:"general,omitempty"`
	// OffsetEncoding is the clangd extension predating positionEncodings.
	OffsetEncoding []OffsetEncoding `json:"offsetEncoding,omitempty"`
}

// GeneralClientCapabilities holds general client capabilities.
type GeneralClientCapabilities struct {
	PositionEncodings []OffsetEncoding `json:"positionEncodings,omitempty"`
}

// WorkspaceClientCapabilities holds workspace client capabilities.
type WorkspaceClientCapabilities struct {
	WorkspaceFolders bool `json:"workspaceFolders,omitempty"`
	Configuration    bool `json:"configuration,omitempty"`
}

// TextDocumentClientCapabilities holds the text document capabilities the
// server adapts to.
type TextDocumentClientCapabilities struct {
	Hover      *HoverClientCapabilities      `json:"hover,omitempty"`
	CodeAction *CodeActionClientCapabilities `json:"codeAction,omitempty"`
}

// HoverClientCapabilities lists the markup formats the client renders.
type HoverClientCapabilities struct {
	ContentFormat []MarkupKind `json:"contentFormat,omitempty"`
}

// CodeActionClientCapabilities describes code action support.
type CodeActionClientCapabilities struct {
	DataSupport bool `json:"dataSupport,omitempty"`
}

// InitializeResult is the response to initialize.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   *ServerInfo        `json:"serverInfo,omitempty"`
	// OffsetEncoding mirrors PositionEncoding for clients using the clangd extension.
	OffsetEncoding OffsetEncoding `json:"offsetEncoding,omitempty"`
}

// ServerInfo identifies the server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializedParams is the (empty) payload of initialized.
type InitializedParams struct{}

// SetTraceParams changes the trace level.
type SetTraceParams struct {
	Value string `json:"value"`
}

// CancelParams is the payload of $/cancelRequest. ID is a number or a string.
type CancelParams struct {
	ID json.RawMessage `json:"id"`
}

// MessageType is the severity of a window message.
type MessageType int

const (
	MessageTypeError   MessageType = 1
	MessageTypeWarning MessageType = 2
	MessageTypeInfo    MessageType = 3
	MessageTypeLog     MessageType = 4
)

// LogMessageParams is the payload of window/logMessage.
type LogMessageParams struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// WorkDoneProgressOptions marks a provider as reporting progress.
type WorkDoneProgressOptions struct {
	WorkDoneProgress bool `json:"workDoneProgress,omitempty"`
}

// ServerCapabilities is the negotiated feature set sent in InitializeResult.
type ServerCapabilities struct {
	PositionEncoding        OffsetEncoding               `json:"positionEncoding,omitempty"`
	TextDocumentSync        *TextDocumentSyncOptions     `json:"textDocumentSync,omitempty"`
	HoverProvider           *HoverOptions                `json:"hoverProvider,omitempty"`
	DeclarationProvider     *DeclarationOptions          `json:"declarationProvider,omitempty"`
	DefinitionProvider      *DefinitionOptions           `json:"definitionProvider,omitempty"`
	TypeDefinitionProvider  *TypeDefinitionOptions       `json:"typeDefinitionProvider,omitempty"`
	ImplementationProvider  *ImplementationOptions       `json:"implementationProvider,omitempty"`
	ReferencesProvider      *ReferenceOptions            `json:"referencesProvider,omitempty"`
	CodeActionProvider      *CodeActionOptions           `json:"codeActionProvider,omitempty"`
	WorkspaceSymbolProvider *WorkspaceSymbolOptions      `json:"workspaceSymbolProvider,omitempty"`
	ExecuteCommandProvider  *ExecuteCommandOptions       `json:"executeCommandProvider,omitempty"`
	DiagnosticProvider      *DiagnosticOptions           `json:"diagnosticProvider,omitempty"`
	Workspace               *WorkspaceServerCapabilities `json:"workspace,omitempty"`
}

// HoverOptions configures the hover provider.
type HoverOptions struct {
	WorkDoneProgressOptions
}

// DeclarationOptions configures the declaration provider.
type DeclarationOptions struct {
	WorkDoneProgressOptions
}

// DefinitionOptions configures the definition provider.
type DefinitionOptions struct {
	WorkDoneProgressOptions
}

// TypeDefinitionOptions configures the type definition provider.
type TypeDefinitionOptions struct {
	WorkDoneProgressOptions
}

// ImplementationOptions configures the implementation provider.
type ImplementationOptions struct {
	WorkDoneProgressOptions
}

// ReferenceOptions configures the references provider.
type ReferenceOptions struct {
	WorkDoneProgressOptions
}

// CodeActionOptions configures the code action provider.
type CodeActionOptions struct {
	WorkDoneProgressOptions
	CodeActionKinds []CodeActionKind `json:"codeActionKinds,omitempty"`
	ResolveProvider bool             `json:"resolveProvider,omitempty"`
}

// WorkspaceSymbolOptions configures the workspace symbol provider.
type WorkspaceSymbolOptions struct {
	WorkDoneProgressOptions
}

// ExecuteCommandOptions lists the commands the server executes.
type ExecuteCommandOptions struct {
	WorkDoneProgressOptions
	Commands []string `json:"commands"`
}

// DiagnosticOptions configures pull diagnostics.
type DiagnosticOptions struct {
	Identifier            string `json:"identifier,omitempty"`
	InterFileDependencies bool   `json:"interFileDependencies"`
	WorkspaceDiagnostics  bool   `json:"workspaceDiagnostics"`
}

// WorkspaceServerCapabilities holds workspace-level server capabilities.
type WorkspaceServerCapabilities struct {
	WorkspaceFolders *WorkspaceFoldersServerCapabilities `json:"workspaceFolders,omitempty"`
	FileOperations   *FileOperationOptions               `json:"fileOperations,omitempty"`
}

// WorkspaceFoldersServerCapabilities announces workspace folder support.
type WorkspaceFoldersServerCapabilities struct {
	Supported           bool `json:"supported"`
	ChangeNotifications bool `json:"changeNotifications"`
}

// FileOperationOptions announces interest in file operations.
type FileOperationOptions struct {
	DidCreate  *FileOperationRegistrationOptions `json:"didCreate,omitempty"`
	WillCreate *FileOperationRegistrationOptions `json:"willCreate,omitempty"`
	DidRename  *FileOperationRegistrationOptions `json:"didRename,omitempty"`
	WillRename *FileOperationRegistrationOptions `json:"willRename,omitempty"`
	DidDelete  *FileOperationRegistrationOptions `json:"didDelete,omitempty"`
	WillDelete *FileOperationRegistrationOptions `json:"willDelete,omitempty"`
}

// FileOperationRegistrationOptions filters the files a hook applies to.
type FileOperationRegistrationOptions struct {
	Filters []FileOperationFilter `json:"filters"`
}

// FileOperationFilter matches files by scheme and glob.
type FileOperationFilter struct {
	Scheme  string               `json:"scheme,omitempty"`
	Pattern FileOperationPattern `json:"pattern"`
}

// FileOperationPattern is a glob pattern.
type FileOperationPattern struct {
	Glob string `json:"glob"`
}
