// Package capability holds the features a server instance advertises and
// renders them into the initialize response.
package capability

import (
	"slices"

	"github.com/valkyrie-lang/valkyrie-lsp/lsp"
)

// Feature names an independently toggled server capability.
type Feature string

const (
	Hover            Feature = "hover"
	Declaration      Feature = "declaration"
	Definition       Feature = "definition"
	TypeDefinition   Feature = "typeDefinition"
	Implementation   Feature = "implementation"
	References       Feature = "references"
	CodeAction       Feature = "codeAction"
	DocumentSync     Feature = "documentSync"
	WorkspaceFolders Feature = "workspaceFolders"
	FileOperations   Feature = "fileOperations"
	WorkspaceSymbol  Feature = "workspaceSymbol"
	ExecuteCommand   Feature = "executeCommand"
	Diagnostics      Feature = "diagnostics"
)

// All lists every feature in a stable order.
var All = []Feature{
	Hover, Declaration, Definition, TypeDefinition, Implementation, References,
	CodeAction, DocumentSync, WorkspaceFolders, FileOperations,
	WorkspaceSymbol, ExecuteCommand, Diagnostics,
}

// Options are feature-specific settings.
type Options struct {
	CodeActionResolve bool
	SyncKind          lsp.TextDocumentSyncKind
	SaveIncludesText  bool
	WillSave          bool
	Commands          []string
	WorkDoneProgress  bool
	// FileOperationGlob filters file-operation hooks. Empty means "**/*".
	FileOperationGlob string
}

// Registry is an immutable feature table.
type Registry struct {
	enabled map[Feature]bool
	opts    Options
}

// Option configures a Registry.
type Option func(*Registry)

// WithFeatures replaces the enabled set.
func WithFeatures(features ...Feature) Option {
	return func(r *Registry) {
		r.enabled = make(map[Feature]bool, len(features))
		for _, f := range features {
			r.enabled[f] = true
		}
	}
}

// Without disables the given features.
func Without(features ...Feature) Option {
	return func(r *Registry) {
		for _, f := range features {
			delete(r.enabled, f)
		}
	}
}

// WithOptions sets the feature options.
func WithOptions(opts Options) Option {
	return func(r *Registry) {
		r.opts = opts
	}
}

// DefaultOptions matches what the server supports out of the box.
func DefaultOptions() Options {
	return Options{
		CodeActionResolve: true,
		SyncKind:          lsp.SyncIncremental,
		SaveIncludesText:  false,
		WillSave:          true,
		WorkDoneProgress:  true,
	}
}

// New returns a registry with every feature enabled unless options say
// otherwise.
func New(opts ...Option) *Registry {
	r := &Registry{opts: DefaultOptions()}
	WithFeatures(All...)(r)
	for _, opt := range opts {
		opt(r)
	}
	r.opts.Commands = slices.Clone(r.opts.Commands)
	return r
}

// Enabled reports whether f is advertised. The empty feature is always
// enabled; it marks lifecycle methods.
func (r *Registry) Enabled(f Feature) bool {
	if f == "" {
		return true
	}
	return r.enabled[f]
}

// Features returns the enabled features in stable order.
func (r *Registry) Features() []Feature {
	var out []Feature
	for _, f := range All {
		if r.enabled[f] {
			out = append(out, f)
		}
	}
	return out
}

// Options returns the feature options.
func (r *Registry) Options() Options {
	opts := r.opts
	opts.Commands = slices.Clone(r.opts.Commands)
	return opts
}

// NegotiateEncoding picks the offset encoding for a client: utf-8 when the
// client offers it, the protocol default utf-16 otherwise.
func NegotiateEncoding(caps lsp.ClientCapabilities) lsp.OffsetEncoding {
	var offered []lsp.OffsetEncoding
	if caps.General != nil {
		offered = append(offered, caps.General.PositionEncodings...)
	}
	offered = append(offered, caps.OffsetEncoding...)

	if slices.Contains(offered, lsp.UTF8) {
		return lsp.UTF8
	}
	return lsp.UTF16
}

// Render returns exactly the enabled subset as server capabilities.
func (r *Registry) Render(enc lsp.OffsetEncoding) lsp.ServerCapabilities {
	progress := lsp.WorkDoneProgressOptions{WorkDoneProgress: r.opts.WorkDoneProgress}
	caps := lsp.ServerCapabilities{PositionEncoding: enc}

	if r.enabled[DocumentSync] {
		sync := &lsp.TextDocumentSyncOptions{
			OpenClose:         true,
			Change:            r.opts.SyncKind,
			WillSave:          r.opts.WillSave,
			WillSaveWaitUntil: r.opts.WillSave,
			Save:              &lsp.SaveOptions{IncludeText: r.opts.SaveIncludesText},
		}
		if sync.Change == lsp.SyncNone {
			sync.Change = lsp.SyncFull
		}
		caps.TextDocumentSync = sync
	}
	if r.enabled[Hover] {
		caps.HoverProvider = &lsp.HoverOptions{WorkDoneProgressOptions: progress}
	}
	if r.enabled[Declaration] {
		caps.DeclarationProvider = &lsp.DeclarationOptions{WorkDoneProgressOptions: progress}
	}
	if r.enabled[Definition] {
		caps.DefinitionProvider = &lsp.DefinitionOptions{WorkDoneProgressOptions: progress}
	}
	if r.enabled[TypeDefinition] {
		caps.TypeDefinitionProvider = &lsp.TypeDefinitionOptions{WorkDoneProgressOptions: progress}
	}
	if r.enabled[Implementation] {
		caps.ImplementationProvider = &lsp.ImplementationOptions{WorkDoneProgressOptions: progress}
	}
	if r.enabled[References] {
		caps.ReferencesProvider = &lsp.ReferenceOptions{WorkDoneProgressOptions: progress}
	}
	if r.enabled[CodeAction] {
		caps.CodeActionProvider = &lsp.CodeActionOptions{
			WorkDoneProgressOptions: progress,
			CodeActionKinds:         []lsp.CodeActionKind{lsp.CodeActionQuickFix},
			ResolveProvider:         r.opts.CodeActionResolve,
		}
	}
	if r.enabled[WorkspaceSymbol] {
		caps.WorkspaceSymbolProvider = &lsp.WorkspaceSymbolOptions{WorkDoneProgressOptions: progress}
	}
	if r.enabled[ExecuteCommand] {
		caps.ExecuteCommandProvider = &lsp.ExecuteCommandOptions{
			WorkDoneProgressOptions: progress,
			Commands:                append([]string{}, r.opts.Commands...),
		}
	}
	if r.enabled[Diagnostics] {
		caps.DiagnosticProvider = &lsp.DiagnosticOptions{
			Identifier:           "valkyrie",
			WorkspaceDiagnostics: true,
		}
	}
	if r.enabled[WorkspaceFolders] || r.enabled[FileOperations] {
		caps.Workspace = &lsp.WorkspaceServerCapabilities{}
		if r.enabled[WorkspaceFolders] {
			caps.Workspace.WorkspaceFolders = &lsp.WorkspaceFoldersServerCapabilities{
				Supported:           true,
				ChangeNotifications: true,
			}
		}
		if r.enabled[FileOperations] {
			caps.Workspace.FileOperations = r.fileOperations()
		}
	}
	return caps
}

func (r *Registry) fileOperations() *lsp.FileOperationOptions {
	glob := r.opts.FileOperationGlob
	if glob == "" {
		glob = "**/*"
	}
	reg := func() *lsp.FileOperationRegistrationOptions {
		return &lsp.FileOperationRegistrationOptions{
			Filters: []lsp.FileOperationFilter{{Scheme: "file", Pattern: lsp.FileOperationPattern{Glob: glob}}},
		}
	}
	return &lsp.FileOperationOptions{
		DidCreate:  reg(),
		WillCreate: reg(),
		DidRename:  reg(),
		WillRename: reg(),
		DidDelete:  reg(),
		WillDelete: reg(),
	}
}
