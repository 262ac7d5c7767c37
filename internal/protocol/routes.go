package protocol

import (
	"context"
	"encoding/json"

	"github.com/valkyrie-lang/valkyrie-lsp/internal/capability"
	"github.com/valkyrie-lang/valkyrie-lsp/lsp"
)

// scope is what a message reads or writes.
type scope int

const (
	scopeNone scope = iota
	scopeDocument
	scopeWorkspace
)

// effect decides how a message is scheduled.
type effect int

const (
	// effectRead runs a request as a concurrent task.
	effectRead effect = iota
	// effectMutate runs a notification inline and bumps its scope's generation.
	effectMutate
	// effectLifecycle runs inline on the reader goroutine.
	effectLifecycle
)

type handlerFunc func(s *Server, ctx context.Context, params json.RawMessage) (any, error)

// route is one entry of the method table. A nil handler marks a method of
// the protocol surface this server does not implement.
type route struct {
	request bool
	feature capability.Feature
	// option further gates the route on the advertised options.
	option  func(capability.Options) bool
	scope   scope
	effect  effect
	handler handlerFunc
}

func request(feature capability.Feature, sc scope, h handlerFunc) route {
	return route{request: true, feature: feature, scope: sc, effect: effectRead, handler: h}
}

func notification(feature capability.Feature, sc scope, eff effect, h handlerFunc) route {
	return route{feature: feature, scope: sc, effect: eff, handler: h}
}

func unimplemented(isRequest bool) route {
	return route{request: isRequest}
}

// when returns r gated on an option.
func (r route) when(option func(capability.Options) bool) route {
	r.option = option
	return r
}

func willSaveOption(o capability.Options) bool          { return o.WillSave }
func codeActionResolveOption(o capability.Options) bool { return o.CodeActionResolve }

var routes = map[string]route{
	// Lifecycle
	lsp.MethodInitialize:  {request: true, effect: effectLifecycle, handler: (*Server).initialize},
	lsp.MethodShutdown:    {request: true, effect: effectLifecycle, handler: (*Server).shutdown},
	lsp.MethodInitialized: notification("", scopeNone, effectLifecycle, (*Server).initialized),
	lsp.MethodSetTrace:    notification("", scopeNone, effectLifecycle, (*Server).setTrace),
	// exit and $/cancelRequest are handled by the dispatcher itself.
	lsp.MethodExit:           unimplemented(false),
	lsp.MethodCancel:         unimplemented(false),
	lsp.MethodProgress:       unimplemented(false),
	lsp.MethodLogTrace:       unimplemented(false),
	lsp.MethodWorkDoneCancel: unimplemented(false),

	// Text document sync
	lsp.MethodDidOpen:           notification(capability.DocumentSync, scopeDocument, effectMutate, (*Server).didOpen),
	lsp.MethodDidChange:         notification(capability.DocumentSync, scopeDocument, effectMutate, (*Server).didChange),
	lsp.MethodDidSave:           notification(capability.DocumentSync, scopeDocument, effectMutate, (*Server).didSave),
	lsp.MethodDidClose:          notification(capability.DocumentSync, scopeDocument, effectMutate, (*Server).didClose),
	lsp.MethodWillSave:          notification(capability.DocumentSync, scopeDocument, effectRead, (*Server).willSave).when(willSaveOption),
	lsp.MethodWillSaveWaitUntil: request(capability.DocumentSync, scopeDocument, (*Server).willSaveWaitUntil).when(willSaveOption),

	// Navigation
	lsp.MethodDeclaration:    request(capability.Declaration, scopeDocument, (*Server).declaration),
	lsp.MethodDefinition:     request(capability.Definition, scopeDocument, (*Server).definition),
	lsp.MethodTypeDefinition: request(capability.TypeDefinition, scopeDocument, (*Server).typeDefinition),
	lsp.MethodImplementation: request(capability.Implementation, scopeDocument, (*Server).implementation),
	lsp.MethodReferences:     request(capability.References, scopeDocument, (*Server).references),

	// Language features
	lsp.MethodHover:               request(capability.Hover, scopeDocument, (*Server).hover),
	lsp.MethodCodeAction:          request(capability.CodeAction, scopeDocument, (*Server).codeAction),
	lsp.MethodCodeActionResolve:   request(capability.CodeAction, scopeNone, (*Server).resolveCodeAction).when(codeActionResolveOption),
	lsp.MethodCodeLens:            unimplemented(true),
	lsp.MethodCodeLensResolve:     unimplemented(true),
	lsp.MethodDocumentHighlight:   unimplemented(true),
	lsp.MethodDocumentSymbol:      unimplemented(true),
	lsp.MethodDocumentLink:        unimplemented(true),
	lsp.MethodDocumentLinkResolve: unimplemented(true),
	lsp.MethodDocumentColor:       unimplemented(true),
	lsp.MethodColorPresentation:   unimplemented(true),
	lsp.MethodFoldingRange:        unimplemented(true),
	lsp.MethodSelectionRange:      unimplemented(true),
	lsp.MethodSignatureHelp:       unimplemented(true),
	lsp.MethodRename:              unimplemented(true),
	lsp.MethodPrepareRename:       unimplemented(true),
	lsp.MethodLinkedEditingRange:  unimplemented(true),
	lsp.MethodMoniker:             unimplemented(true),
	lsp.MethodInlayHint:           unimplemented(true),
	lsp.MethodInlayHintResolve:    unimplemented(true),
	lsp.MethodInlineValue:         unimplemented(true),

	// Completion
	lsp.MethodCompletion:        unimplemented(true),
	lsp.MethodCompletionResolve: unimplemented(true),

	// Formatting
	lsp.MethodFormatting:       unimplemented(true),
	lsp.MethodRangeFormatting:  unimplemented(true),
	lsp.MethodRangesFormatting: unimplemented(true),
	lsp.MethodOnTypeFormatting: unimplemented(true),

	// Semantic tokens
	lsp.MethodSemanticTokensFull:      unimplemented(true),
	lsp.MethodSemanticTokensFullDelta: unimplemented(true),
	lsp.MethodSemanticTokensRange:     unimplemented(true),

	// Call and type hierarchy
	lsp.MethodPrepareCallHierarchy: unimplemented(true),
	lsp.MethodIncomingCalls:        unimplemented(true),
	lsp.MethodOutgoingCalls:        unimplemented(true),
	lsp.MethodPrepareTypeHierarchy: unimplemented(true),
	lsp.MethodSupertypes:           unimplemented(true),
	lsp.MethodSubtypes:             unimplemented(true),

	// Diagnostics
	lsp.MethodDocumentDiagnostic:  request(capability.Diagnostics, scopeDocument, (*Server).documentDiagnostic),
	lsp.MethodWorkspaceDiagnostic: request(capability.Diagnostics, scopeWorkspace, (*Server).workspaceDiagnostic),

	// Workspace
	lsp.MethodDidChangeConfiguration:    notification("", scopeWorkspace, effectMutate, (*Server).didChangeConfiguration),
	lsp.MethodDidChangeWorkspaceFolders: notification(capability.WorkspaceFolders, scopeWorkspace, effectMutate, (*Server).didChangeWorkspaceFolders),
	lsp.MethodDidChangeWatchedFiles:     notification("", scopeWorkspace, effectMutate, (*Server).didChangeWatchedFiles),
	lsp.MethodExecuteCommand:            request(capability.ExecuteCommand, scopeWorkspace, (*Server).executeCommand),
	lsp.MethodWorkspaceSymbol:           request(capability.WorkspaceSymbol, scopeWorkspace, (*Server).workspaceSymbol),
	lsp.MethodWorkspaceSymbolResolve:    unimplemented(true),
	lsp.MethodWillCreateFiles:           request(capability.FileOperations, scopeWorkspace, (*Server).willCreateFiles),
	lsp.MethodDidCreateFiles:            notification(capability.FileOperations, scopeWorkspace, effectMutate, (*Server).didCreateFiles),
	lsp.MethodWillRenameFiles:           request(capability.FileOperations, scopeWorkspace, (*Server).willRenameFiles),
	lsp.MethodDidRenameFiles:            notification(capability.FileOperations, scopeWorkspace, effectMutate, (*Server).didRenameFiles),
	lsp.MethodWillDeleteFiles:           request(capability.FileOperations, scopeWorkspace, (*Server).willDeleteFiles),
	lsp.MethodDidDeleteFiles:            notification(capability.FileOperations, scopeWorkspace, effectMutate, (*Server).didDeleteFiles),
}
