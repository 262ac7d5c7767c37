package protocol

import (
	"context"
	"encoding/json"
	"slices"

	"go.uber.org/zap"

	"github.com/valkyrie-lang/valkyrie-lsp/internal/capability"
	"github.com/valkyrie-lang/valkyrie-lsp/internal/engine"
	"github.com/valkyrie-lang/valkyrie-lsp/internal/session"
	"github.com/valkyrie-lang/valkyrie-lsp/lsp"
	"github.com/valkyrie-lang/valkyrie-lsp/rpc"
)

// initialize negotiates the session. A failure returns the session to
// Uninitialized so the client may retry.
func (s *Server) initialize(ctx context.Context, raw json.RawMessage) (any, error) {
	if err := s.session.BeginInitialize(); err != nil {
		return nil, rpc.Errorf(rpc.CodeInvalidRequest, "%v", err)
	}
	done := false
	defer func() {
		if !done {
			s.session.AbortInitialize()
		}
	}()

	var params lsp.InitializeParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}

	enc := capability.NegotiateEncoding(params.Capabilities)
	caps := s.registry.Render(enc)

	root := params.RootURI
	if root == "" && len(params.WorkspaceFolders) > 0 {
		root = params.WorkspaceFolders[0].URI
	}

	err := s.engine.Initialize(ctx, engine.InitializeParams{
		RootURI:  root,
		Folders:  params.WorkspaceFolders,
		Encoding: enc,
		Options:  params.InitializationOptions,
		Markdown: wantsMarkdown(params.Capabilities),
	})
	if err != nil {
		return nil, err
	}

	err = s.session.CompleteInitialize(session.Negotiated{
		Encoding:     enc,
		Capabilities: caps,
		Client:       params.ClientInfo,
		RootURI:      root,
		Folders:      params.WorkspaceFolders,
		Trace:        params.Trace,
	})
	if err != nil {
		return nil, rpc.Errorf(rpc.CodeInternalError, "%v", err)
	}
	done = true

	client := "unknown"
	if params.ClientInfo != nil {
		client = params.ClientInfo.Name + " " + params.ClientInfo.Version
	}
	s.logger.Info("Client initialized",
		zap.String("client", client),
		zap.String("root", string(root)),
		zap.String("encoding", string(enc)))

	return lsp.InitializeResult{
		Capabilities:   caps,
		ServerInfo:     &lsp.ServerInfo{Name: s.name, Version: s.version},
		OffsetEncoding: enc,
	}, nil
}

// wantsMarkdown reports whether hovers may use markdown. Clients that do
// not state a preference get markdown.
func wantsMarkdown(caps lsp.ClientCapabilities) bool {
	if caps.TextDocument == nil || caps.TextDocument.Hover == nil || len(caps.TextDocument.Hover.ContentFormat) == 0 {
		return true
	}
	return slices.Contains(caps.TextDocument.Hover.ContentFormat, lsp.Markdown)
}

func (s *Server) initialized(context.Context, json.RawMessage) (any, error) {
	s.notify(lsp.MethodLogMessage, lsp.LogMessageParams{
		Type:    lsp.MessageTypeInfo,
		Message: "server initialized!",
	})
	return nil, nil
}

// shutdown releases nothing; teardown happens on exit.
func (s *Server) shutdown(context.Context, json.RawMessage) (any, error) {
	if err := s.session.Shutdown(); err != nil {
		return nil, rpc.Errorf(rpc.CodeInvalidRequest, "%v", err)
	}
	s.logger.Info("Shutdown requested", zap.Int("in_flight", s.pending.Len()))
	return nil, nil
}

func (s *Server) setTrace(_ context.Context, raw json.RawMessage) (any, error) {
	var params lsp.SetTraceParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	s.session.SetTrace(params.Value)
	return nil, nil
}
