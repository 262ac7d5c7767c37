package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/valkyrie-lang/valkyrie-lsp/internal/engine"
	"github.com/valkyrie-lang/valkyrie-lsp/lsp"
)

const codeTrailingWhitespace = "trailing-whitespace"

// actionData is carried in CodeAction.Data until resolve. Line -1 fixes the
// whole document.
type actionData struct {
	URI     lsp.DocumentURI `json:"uri"`
	Version int             `json:"version"`
	Line    int             `json:"line"`
}

func diagnose(ctx context.Context, doc *document, enc lsp.OffsetEncoding) ([]lsp.Diagnostic, error) {
	out := []lsp.Diagnostic{}
	for i := range doc.lineCount() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := doc.line(i)
		if col := trailingWhitespace(line); col >= 0 {
			out = append(out, lsp.Diagnostic{
				Range:    doc.span(i, col, len(line), enc),
				Severity: lsp.SeverityWarning,
				Code:     codeTrailingWhitespace,
				Source:   Source,
				Message:  "trailing whitespace",
			})
		}
	}
	return out, nil
}

// trimEdits deletes trailing whitespace on line, or on every line when
// line is -1.
func trimEdits(ctx context.Context, doc *document, line int, enc lsp.OffsetEncoding) ([]lsp.TextEdit, error) {
	edits := []lsp.TextEdit{}
	for i := range doc.lineCount() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if line >= 0 && i != line {
			continue
		}
		text := doc.line(i)
		if col := trailingWhitespace(text); col >= 0 {
			edits = append(edits, lsp.TextEdit{Range: doc.span(i, col, len(text), enc)})
		}
	}
	return edits, nil
}

// Diagnostics reports trailing whitespace in an open document.
func (e *Engine) Diagnostics(ctx context.Context, uri lsp.DocumentURI) (engine.DocumentDiagnostics, error) {
	v := e.viewOf(uri)
	doc, ok := v.byURI[uri]
	if !ok {
		return engine.DocumentDiagnostics{}, fmt.Errorf("%w: %s", engine.ErrUnknownDocument, uri)
	}
	items, err := diagnose(ctx, doc, v.enc)
	if err != nil {
		return engine.DocumentDiagnostics{}, err
	}
	return engine.DocumentDiagnostics{URI: uri, Version: doc.version, ResultID: resultID(doc), Items: items}, nil
}

// WorkspaceDiagnostics reports every open document.
func (e *Engine) WorkspaceDiagnostics(ctx context.Context) ([]engine.DocumentDiagnostics, error) {
	v := e.view()
	out := make([]engine.DocumentDiagnostics, 0, len(v.docs))
	for _, doc := range v.docs {
		items, err := diagnose(ctx, doc, v.enc)
		if err != nil {
			return nil, err
		}
		out = append(out, engine.DocumentDiagnostics{URI: doc.uri, Version: doc.version, ResultID: resultID(doc), Items: items})
	}
	return out, nil
}

func resultID(doc *document) string {
	return strconv.FormatUint(doc.rev, 10)
}

func kindAllowed(kind lsp.CodeActionKind, only []lsp.CodeActionKind) bool {
	if len(only) == 0 {
		return true
	}
	return slices.ContainsFunc(only, func(o lsp.CodeActionKind) bool {
		return kind == o || strings.HasPrefix(string(kind), string(o)+".")
	})
}

// CodeActions offers quick fixes for diagnostics overlapping rng. Edits are
// computed by ResolveCodeAction.
func (e *Engine) CodeActions(ctx context.Context, uri lsp.DocumentURI, rng lsp.Range, actx lsp.CodeActionContext) ([]lsp.CodeAction, error) {
	v := e.viewOf(uri)
	doc, ok := v.byURI[uri]
	if !ok {
		return []lsp.CodeAction{}, nil
	}

	diags, err := diagnose(ctx, doc, v.enc)
	if err != nil {
		return nil, err
	}

	actions := []lsp.CodeAction{}
	if kindAllowed(lsp.CodeActionQuickFix, actx.Only) {
		for _, d := range diags {
			if !d.Range.Overlaps(rng) {
				continue
			}
			data, err := json.Marshal(actionData{URI: uri, Version: doc.version, Line: d.Range.Start.Line})
			if err != nil {
				return nil, err
			}
			actions = append(actions, lsp.CodeAction{
				Title:       "Remove trailing whitespace",
				Kind:        lsp.CodeActionQuickFix,
				Diagnostics: []lsp.Diagnostic{d},
				IsPreferred: true,
				Data:        data,
			})
		}
	}

	if len(diags) > 1 && kindAllowed(lsp.CodeActionSourceFixAll, actx.Only) {
		data, err := json.Marshal(actionData{URI: uri, Version: doc.version, Line: -1})
		if err != nil {
			return nil, err
		}
		actions = append(actions, lsp.CodeAction{
			Title: fmt.Sprintf("Remove all trailing whitespace (%d lines)", len(diags)),
			Kind:  lsp.CodeActionSourceFixAll,
			Data:  data,
		})
	}
	return actions, nil
}

// ResolveCodeAction fills in the edit of an action from CodeActions.
// Resolving the same action twice yields the same edit; an action computed
// for an older document version fails with ErrContentModified.
func (e *Engine) ResolveCodeAction(ctx context.Context, action lsp.CodeAction) (lsp.CodeAction, error) {
	if action.Edit != nil {
		return action, nil
	}

	var data actionData
	if len(action.Data) == 0 {
		return action, fmt.Errorf("%w: code action has no data", engine.ErrInvalidParams)
	}
	if err := json.Unmarshal(action.Data, &data); err != nil {
		return action, fmt.Errorf("%w: code action data: %v", engine.ErrInvalidParams, err)
	}

	v := e.view()
	doc, ok := v.byURI[data.URI]
	if !ok || doc.version != data.Version {
		return action, fmt.Errorf("%w: %s", engine.ErrContentModified, data.URI)
	}

	edits, err := trimEdits(ctx, doc, data.Line, v.enc)
	if err != nil {
		return action, err
	}

	resolved := action
	resolved.Edit = &lsp.WorkspaceEdit{Changes: map[lsp.DocumentURI][]lsp.TextEdit{data.URI: edits}}
	return resolved, nil
}

// CommandDocumentStats reports line, word and definition counts of a document.
const CommandDocumentStats = "valkyrie.documentStats"

// DocumentStats is the result of CommandDocumentStats.
type DocumentStats struct {
	URI         lsp.DocumentURI `json:"uri"`
	Version     int             `json:"version"`
	Lines       int             `json:"lines"`
	Words       int             `json:"words"`
	Definitions int             `json:"definitions"`
}

// Commands lists the commands ExecuteCommand accepts.
func (e *Engine) Commands() []string {
	return []string{CommandDocumentStats}
}

// ExecuteCommand runs a command from Commands.
func (e *Engine) ExecuteCommand(ctx context.Context, command string, args []json.RawMessage) (any, error) {
	if command != CommandDocumentStats {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownCommand, command)
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: %s takes one document uri", engine.ErrInvalidParams, command)
	}

	var uri lsp.DocumentURI
	if err := json.Unmarshal(args[0], &uri); err != nil || uri == "" {
		return nil, fmt.Errorf("%w: %s takes one document uri", engine.ErrInvalidParams, command)
	}

	v := e.view()
	doc, ok := v.byURI[uri]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrUnknownDocument, uri)
	}

	defs, err := definitions(ctx, []*document{doc}, v.cfg.DefinitionKeywords)
	if err != nil {
		return nil, err
	}
	return DocumentStats{
		URI:         uri,
		Version:     doc.version,
		Lines:       doc.lineCount(),
		Words:       len(strings.Fields(doc.text)),
		Definitions: len(defs),
	}, nil
}
