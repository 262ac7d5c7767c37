package lsp

// LSP method names.
const (
	// Lifecycle
	MethodInitialize     = "initialize"
	MethodInitialized    = "initialized"
	MethodShutdown       = "shutdown"
	MethodExit           = "exit"
	MethodCancel         = "$/cancelRequest"
	MethodProgress       = "$/progress"
	MethodSetTrace       = "$/setTrace"
	MethodLogTrace       = "$/logTrace"
	MethodWorkDoneCancel = "window/workDoneProgress/cancel"

	// Text document sync
	MethodDidOpen           = "textDocument/didOpen"
	MethodDidChange         = "textDocument/didChange"
	MethodDidSave           = "textDocument/didSave"
	MethodDidClose          = "textDocument/didClose"
	MethodWillSave          = "textDocument/willSave"
	MethodWillSaveWaitUntil = "textDocument/willSaveWaitUntil"

	// Navigation
	MethodDeclaration    = "textDocument/declaration"
	MethodDefinition     = "textDocument/definition"
	MethodTypeDefinition = "textDocument/typeDefinition"
	MethodImplementation = "textDocument/implementation"
	MethodReferences     = "textDocument/references"

	// Language features
	MethodHover               = "textDocument/hover"
	MethodCodeAction          = "textDocument/codeAction"
	MethodCodeActionResolve   = "codeAction/resolve"
	MethodCodeLens            = "textDocument/codeLens"
	MethodCodeLensResolve     = "codeLens/resolve"
	MethodDocumentHighlight   = "textDocument/documentHighlight"
	MethodDocumentSymbol      = "textDocument/documentSymbol"
	MethodDocumentLink        = "textDocument/documentLink"
	MethodDocumentLinkResolve = "documentLink/resolve"
	MethodDocumentColor       = "textDocument/documentColor"
	MethodColorPresentation   = "textDocument/colorPresentation"
	MethodFoldingRange        = "textDocument/foldingRange"
	MethodSelectionRange      = "textDocument/selectionRange"
	MethodSignatureHelp       = "textDocument/signatureHelp"
	MethodRename              = "textDocument/rename"
	MethodPrepareRename       = "textDocument/prepareRename"
	MethodLinkedEditingRange  = "textDocument/linkedEditingRange"
	MethodMoniker             = "textDocument/moniker"
	MethodInlayHint           = "textDocument/inlayHint"
	MethodInlayHintResolve    = "inlayHint/resolve"
	MethodInlineValue         = "textDocument/inlineValue"

	// Completion
	MethodCompletion        = "textDocument/completion"
	MethodCompletionResolve = "completionItem/resolve"

	// Formatting
	MethodFormatting       = "textDocument/formatting"
	MethodRangeFormatting  = "textDocument/rangeFormatting"
	MethodRangesFormatting = "textDocument/rangesFormatting"
	MethodOnTypeFormatting = "textDocument/onTypeFormatting"

	// Semantic tokens
	MethodSemanticTokensFull      = "textDocument/semanticTokens/full"
	MethodSemanticTokensFullDelta = "textDocument/semanticTokens/full/delta"
	MethodSemanticTokensRange     = "textDocument/semanticTokens/range"

	// Call and type hierarchy
	MethodPrepareCallHierarchy = "textDocument/prepareCallHierarchy"
	MethodIncomingCalls        = "callHierarchy/incomingCalls"
	MethodOutgoingCalls        = "callHierarchy/outgoingCalls"
	MethodPrepareTypeHierarchy = "textDocument/prepareTypeHierarchy"
	MethodSupertypes           = "typeHierarchy/supertypes"
	MethodSubtypes             = "typeHierarchy/subtypes"

	// Diagnostics
	MethodDocumentDiagnostic  = "textDocument/diagnostic"
	MethodWorkspaceDiagnostic = "workspace/diagnostic"
	MethodPublishDiagnostics  = "textDocument/publishDiagnostics"

	// Workspace
	MethodDidChangeConfiguration    = "workspace/didChangeConfiguration"
	MethodDidChangeWorkspaceFolders = "workspace/didChangeWorkspaceFolders"
	MethodDidChangeWatchedFiles     = "workspace/didChangeWatchedFiles"
	MethodExecuteCommand            = "workspace/executeCommand"
	MethodWorkspaceSymbol           = "workspace/symbol"
	MethodWorkspaceSymbolResolve    = "workspaceSymbol/resolve"
	MethodWillCreateFiles           = "workspace/willCreateFiles"
	MethodDidCreateFiles            = "workspace/didCreateFiles"
	MethodWillRenameFiles           = "workspace/willRenameFiles"
	MethodDidRenameFiles            = "workspace/didRenameFiles"
	MethodWillDeleteFiles           = "workspace/willDeleteFiles"
	MethodDidDeleteFiles            = "workspace/didDeleteFiles"

	// Server to client
	MethodLogMessage  = "window/logMessage"
	MethodShowMessage = "window/showMessage"
)
