package lsp

import "encoding/json"

// HoverParams is the payload of textDocument/hover.
type HoverParams struct {
	TextDocumentPositionParams
	WorkDoneProgressParams
}

// Hover is the result of textDocument/hover.
type Hover struct {
	Contents MarkupContent `json:"contents"`
	Range    *Range        `json:"range,omitempty"`
}

// DeclarationParams is the payload of textDocument/declaration.
type DeclarationParams struct {
	TextDocumentPositionParams
	WorkDoneProgressParams
	PartialResultParams
}

// DefinitionParams is the payload of textDocument/definition.
type DefinitionParams struct {
	TextDocumentPositionParams
	WorkDoneProgressParams
	PartialResultParams
}

// TypeDefinitionParams is the payload of textDocument/typeDefinition.
type TypeDefinitionParams struct {
	TextDocumentPositionParams
	WorkDoneProgressParams
	PartialResultParams
}

// ImplementationParams is the payload of textDocument/implementation.
type ImplementationParams struct {
	TextDocumentPositionParams
	WorkDoneProgressParams
	PartialResultParams
}

// ReferenceContext controls whether the declaration is part of the result.
type ReferenceContext struct {
	IncludeDeclaration bool `json:"includeDeclaration"`
}

// ReferenceParams is the payload of textDocument/references.
type ReferenceParams struct {
	TextDocumentPositionParams
	WorkDoneProgressParams
	PartialResultParams
	Context ReferenceContext `json:"context"`
}

// CodeActionKind classifies code actions.
type CodeActionKind string

const (
	CodeActionQuickFix     CodeActionKind = "quickfix"
	CodeActionRefactor     CodeActionKind = "refactor"
	CodeActionSource       CodeActionKind = "source"
	CodeActionSourceFixAll CodeActionKind = "source.fixAll"
)

// CodeActionContext carries the diagnostics at the requested range.
type CodeActionContext struct {
	Diagnostics []Diagnostic     `json:"diagnostics"`
	Only        []CodeActionKind `json:"only,omitempty"`
	TriggerKind int              `json:"triggerKind,omitempty"`
}

// CodeActionParams is the payload of textDocument/codeAction.
type CodeActionParams struct {
	WorkDoneProgressParams
	PartialResultParams
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Range        Range                  `json:"range"`
	Context      CodeActionContext      `json:"context"`
}

// Validate checks the document and range.
func (p CodeActionParams) Validate() error {
	if err := p.TextDocument.Validate(); err != nil {
		return err
	}
	return p.Range.Validate()
}

// CodeAction is a change the client can apply. Edit is filled in by
// codeAction/resolve when the server defers it; Data round-trips the state
// needed to resolve.
type CodeAction struct {
	Title       string          `json:"title"`
	Kind        CodeActionKind  `json:"kind,omitempty"`
	Diagnostics []Diagnostic    `json:"diagnostics,omitempty"`
	IsPreferred bool            `json:"isPreferred,omitempty"`
	Edit        *WorkspaceEdit  `json:"edit,omitempty"`
	Command     *Command        `json:"command,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// DiagnosticSeverity is the severity of a diagnostic.
type DiagnosticSeverity int

const (
	SeverityError       DiagnosticSeverity = 1
	SeverityWarning     DiagnosticSeverity = 2
	SeverityInformation DiagnosticSeverity = 3
	SeverityHint        DiagnosticSeverity = 4
)

// Diagnostic is a problem found in a document.
type Diagnostic struct {
	Range    Range              `json:"range"`
	Severity DiagnosticSeverity `json:"severity,omitempty"`
	Code     string             `json:"code,omitempty"`
	Source   string             `json:"source,omitempty"`
	Message  string             `json:"message"`
}

// PublishDiagnosticsParams is the payload of textDocument/publishDiagnostics.
type PublishDiagnosticsParams struct {
	URI         DocumentURI  `json:"uri"`
	Version     *int         `json:"version,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// DocumentDiagnosticParams is the payload of textDocument/diagnostic.
type DocumentDiagnosticParams struct {
	WorkDoneProgressParams
	PartialResultParams
	TextDocument     TextDocumentIdentifier `json:"textDocument"`
	Identifier       string                 `json:"identifier,omitempty"`
	PreviousResultID string                 `json:"previousResultId,omitempty"`
}

// Validate requires a URI.
func (p DocumentDiagnosticParams) Validate() error {
	return p.TextDocument.Validate()
}

// DiagnosticReportKind distinguishes full and unchanged reports.
type DiagnosticReportKind string

const (
	ReportFull      DiagnosticReportKind = "full"
	ReportUnchanged DiagnosticReportKind = "unchanged"
)

// DocumentDiagnosticReport is the result of textDocument/diagnostic.
type DocumentDiagnosticReport struct {
	Kind     DiagnosticReportKind `json:"kind"`
	ResultID string               `json:"resultId,omitempty"`
	Items    []Diagnostic         `json:"items"`
}

// PreviousResultID pairs a document with the last report id the client saw.
type PreviousResultID struct {
	URI   DocumentURI `json:"uri"`
	Value string      `json:"value"`
}

// WorkspaceDiagnosticParams is the payload of workspace/diagnostic.
type WorkspaceDiagnosticParams struct {
	WorkDoneProgressParams
	PartialResultParams
	Identifier        string             `json:"identifier,omitempty"`
	PreviousResultIDs []PreviousResultID `json:"previousResultIds"`
}

// WorkspaceDocumentDiagnosticReport is one document's report inside a
// workspace report.
type WorkspaceDocumentDiagnosticReport struct {
	Kind     DiagnosticReportKind `json:"kind"`
	ResultID string               `json:"resultId,omitempty"`
	URI      DocumentURI          `json:"uri"`
	Version  *int                 `json:"version"`
	Items    []Diagnostic         `json:"items"`
}

// WorkspaceDiagnosticReport is the result of workspace/diagnostic.
type WorkspaceDiagnosticReport struct {
	Items []WorkspaceDocumentDiagnosticReport `json:"items"`
}
