package protocol

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/valkyrie-lang/valkyrie-lsp/internal/engine"
	"github.com/valkyrie-lang/valkyrie-lsp/lsp"
)

func (s *Server) didOpen(ctx context.Context, raw json.RawMessage) (any, error) {
	var params lsp.DidOpenTextDocumentParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := s.engine.DidOpen(ctx, params.TextDocument); err != nil {
		return nil, err
	}
	s.publish(ctx, params.TextDocument.URI)
	return nil, nil
}

func (s *Server) didChange(ctx context.Context, raw json.RawMessage) (any, error) {
	var params lsp.DidChangeTextDocumentParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := s.engine.DidChange(ctx, params.TextDocument, params.ContentChanges); err != nil {
		return nil, err
	}
	s.publish(ctx, params.TextDocument.URI)
	return nil, nil
}

func (s *Server) didSave(ctx context.Context, raw json.RawMessage) (any, error) {
	var params lsp.DidSaveTextDocumentParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := s.engine.DidSave(ctx, params.TextDocument.URI, params.Text); err != nil {
		return nil, err
	}
	s.logger.Debug("Document saved", zap.String("uri", string(params.TextDocument.URI)))
	s.publish(ctx, params.TextDocument.URI)
	return nil, nil
}

func (s *Server) didClose(ctx context.Context, raw json.RawMessage) (any, error) {
	var params lsp.DidCloseTextDocumentParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := s.engine.DidClose(ctx, params.TextDocument.URI); err != nil {
		return nil, err
	}
	s.publish(ctx, params.TextDocument.URI)
	return nil, nil
}

func (s *Server) willSave(_ context.Context, raw json.RawMessage) (any, error) {
	var params lsp.WillSaveTextDocumentParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	s.logger.Debug("Document will be saved",
		zap.String("uri", string(params.TextDocument.URI)),
		zap.Int("reason", int(params.Reason)))
	return nil, nil
}

func (s *Server) willSaveWaitUntil(ctx context.Context, raw json.RawMessage) (any, error) {
	var params lsp.WillSaveTextDocumentParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	edits, err := s.engine.WillSaveWaitUntil(ctx, params.TextDocument.URI, params.Reason)
	if err != nil {
		return nil, err
	}
	if edits == nil {
		edits = []lsp.TextEdit{}
	}
	return edits, nil
}

// publish pushes the current diagnostics of uri. A document the engine no
// longer knows gets an empty list, which clears it in the client.
func (s *Server) publish(ctx context.Context, uri lsp.DocumentURI) {
	if !s.publishDiagnostics {
		return
	}

	params := lsp.PublishDiagnosticsParams{URI: uri, Diagnostics: []lsp.Diagnostic{}}
	d, err := s.engine.Diagnostics(ctx, uri)
	switch {
	case err == nil:
		version := d.Version
		params.Version = &version
		if d.Items != nil {
			params.Diagnostics = d.Items
		}
	case errors.Is(err, engine.ErrUnknownDocument):
	default:
		s.logger.Warn("Diagnostics failed", zap.String("uri", string(uri)), zap.Error(err))
		return
	}
	s.notify(lsp.MethodPublishDiagnostics, params)
}
