package protocol

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/valkyrie-lang/valkyrie-lsp/internal/engine"
	"github.com/valkyrie-lang/valkyrie-lsp/lsp"
	"github.com/valkyrie-lang/valkyrie-lsp/rpc"
)

func (s *Server) hover(ctx context.Context, raw json.RawMessage) (any, error) {
	var params lsp.HoverParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	h, err := s.engine.Hover(ctx, params.TextDocument.URI, params.Position)
	if errors.Is(err, engine.ErrUnknownDocument) {
		return nil, nil
	}
	if err != nil || h == nil {
		return nil, err
	}
	return h, nil
}

type locationQuery func(ctx context.Context, uri lsp.DocumentURI, pos lsp.Position) ([]lsp.Location, error)

// locations answers a navigation request. Nothing found is an empty array,
// never null.
func locations(ctx context.Context, raw json.RawMessage, query locationQuery) (any, error) {
	var params lsp.TextDocumentPositionParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	locs, err := query(ctx, params.TextDocument.URI, params.Position)
	if errors.Is(err, engine.ErrUnknownDocument) {
		return []lsp.Location{}, nil
	}
	if err != nil {
		return nil, err
	}
	if locs == nil {
		locs = []lsp.Location{}
	}
	return locs, nil
}

func (s *Server) declaration(ctx context.Context, raw json.RawMessage) (any, error) {
	return locations(ctx, raw, s.engine.Declaration)
}

func (s *Server) definition(ctx context.Context, raw json.RawMessage) (any, error) {
	return locations(ctx, raw, s.engine.Definition)
}

func (s *Server) typeDefinition(ctx context.Context, raw json.RawMessage) (any, error) {
	return locations(ctx, raw, s.engine.TypeDefinition)
}

func (s *Server) implementation(ctx context.Context, raw json.RawMessage) (any, error) {
	return locations(ctx, raw, s.engine.Implementation)
}

func (s *Server) references(ctx context.Context, raw json.RawMessage) (any, error) {
	var params lsp.ReferenceParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	return locations(ctx, raw, func(ctx context.Context, uri lsp.DocumentURI, pos lsp.Position) ([]lsp.Location, error) {
		return s.engine.References(ctx, uri, pos, params.Context.IncludeDeclaration)
	})
}

// codeAction lists actions for a range. When resolve is not advertised the
// edits are computed up front.
func (s *Server) codeAction(ctx context.Context, raw json.RawMessage) (any, error) {
	var params lsp.CodeActionParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	actions, err := s.engine.CodeActions(ctx, params.TextDocument.URI, params.Range, params.Context)
	if errors.Is(err, engine.ErrUnknownDocument) {
		return []lsp.CodeAction{}, nil
	}
	if err != nil {
		return nil, err
	}
	if actions == nil {
		return []lsp.CodeAction{}, nil
	}

	if !s.registry.Options().CodeActionResolve {
		for i, action := range actions {
			if action.Edit != nil {
				continue
			}
			resolved, err := s.engine.ResolveCodeAction(ctx, action)
			if err != nil {
				return nil, err
			}
			resolved.Data = nil
			actions[i] = resolved
		}
	}
	return actions, nil
}

func (s *Server) resolveCodeAction(ctx context.Context, raw json.RawMessage) (any, error) {
	var action lsp.CodeAction
	if err := decodeParams(raw, &action); err != nil {
		return nil, err
	}
	if action.Title == "" {
		return nil, rpc.Errorf(rpc.CodeInvalidParams, "invalid params: code action has no title")
	}
	return s.engine.ResolveCodeAction(ctx, action)
}

// documentDiagnostic answers a pull request. The engine's result id names
// the content, so a client holding it gets an unchanged report.
func (s *Server) documentDiagnostic(ctx context.Context, raw json.RawMessage) (any, error) {
	var params lsp.DocumentDiagnosticParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	d, err := s.engine.Diagnostics(ctx, params.TextDocument.URI)
	if errors.Is(err, engine.ErrUnknownDocument) {
		return lsp.DocumentDiagnosticReport{Kind: lsp.ReportFull, Items: []lsp.Diagnostic{}}, nil
	}
	if err != nil {
		return nil, err
	}

	resultID := d.ResultID
	if resultID != "" && params.PreviousResultID == resultID {
		return lsp.DocumentDiagnosticReport{Kind: lsp.ReportUnchanged, ResultID: resultID}, nil
	}
	items := d.Items
	if items == nil {
		items = []lsp.Diagnostic{}
	}
	return lsp.DocumentDiagnosticReport{Kind: lsp.ReportFull, ResultID: resultID, Items: items}, nil
}

func (s *Server) workspaceDiagnostic(ctx context.Context, raw json.RawMessage) (any, error) {
	var params lsp.WorkspaceDiagnosticParams
	if len(raw) > 0 && string(raw) != "null" {
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
	}
	previous := make(map[lsp.DocumentURI]string, len(params.PreviousResultIDs))
	for _, p := range params.PreviousResultIDs {
		previous[p.URI] = p.Value
	}

	docs, err := s.engine.WorkspaceDiagnostics(ctx)
	if err != nil {
		return nil, err
	}

	report := lsp.WorkspaceDiagnosticReport{Items: make([]lsp.WorkspaceDocumentDiagnosticReport, 0, len(docs))}
	for _, d := range docs {
		version := d.Version
		item := lsp.WorkspaceDocumentDiagnosticReport{
			Kind:     lsp.ReportFull,
			ResultID: d.ResultID,
			URI:      d.URI,
			Version:  &version,
			Items:    d.Items,
		}
		if item.ResultID != "" && previous[d.URI] == item.ResultID {
			item.Kind = lsp.ReportUnchanged
			item.Items = nil
		} else if item.Items == nil {
			item.Items = []lsp.Diagnostic{}
		}
		report.Items = append(report.Items, item)
	}
	s.logger.Debug("Workspace diagnostics", zap.Int("documents", len(report.Items)))
	return report, nil
}
