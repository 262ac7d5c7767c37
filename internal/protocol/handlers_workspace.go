package protocol

import (
	"context"
	"encoding/json"
	"slices"

	"go.uber.org/zap"

	"github.com/valkyrie-lang/valkyrie-lsp/internal/engine"
	"github.com/valkyrie-lang/valkyrie-lsp/lsp"
	"github.com/valkyrie-lang/valkyrie-lsp/rpc"
)

func (s *Server) didChangeConfiguration(ctx context.Context, raw json.RawMessage) (any, error) {
	var params lsp.DidChangeConfigurationParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	return nil, s.engine.DidChangeConfiguration(ctx, params.Settings)
}

func (s *Server) didChangeWorkspaceFolders(ctx context.Context, raw json.RawMessage) (any, error) {
	var params lsp.DidChangeWorkspaceFoldersParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	s.session.UpdateFolders(params.Event.Added, params.Event.Removed)
	s.logger.Info("Workspace folders changed",
		zap.Int("added", len(params.Event.Added)),
		zap.Int("removed", len(params.Event.Removed)))
	return nil, s.engine.DidChangeWorkspaceFolders(ctx, params.Event.Added, params.Event.Removed)
}

func (s *Server) didChangeWatchedFiles(ctx context.Context, raw json.RawMessage) (any, error) {
	var params lsp.DidChangeWatchedFilesParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	return nil, s.engine.DidChangeWatchedFiles(ctx, params.Changes)
}

// executeCommand runs one of the advertised commands. Anything else is
// rejected before the engine sees it.
func (s *Server) executeCommand(ctx context.Context, raw json.RawMessage) (any, error) {
	var params lsp.ExecuteCommandParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if !slices.Contains(s.registry.Options().Commands, params.Command) {
		return nil, rpc.Errorf(rpc.CodeInvalidParams, "unknown command: %s", params.Command)
	}
	s.logger.Debug("Executing command", zap.String("command", params.Command))
	return s.engine.ExecuteCommand(ctx, params.Command, params.Arguments)
}

func (s *Server) workspaceSymbol(ctx context.Context, raw json.RawMessage) (any, error) {
	var params lsp.WorkspaceSymbolParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	symbols, err := s.engine.WorkspaceSymbols(ctx, params.Query)
	if err != nil {
		return nil, err
	}
	if symbols == nil {
		symbols = []lsp.SymbolInformation{}
	}
	return symbols, nil
}

func (s *Server) willCreateFiles(ctx context.Context, raw json.RawMessage) (any, error) {
	op, err := decodeFileOperation(raw, engine.FileCreate)
	if err != nil {
		return nil, err
	}
	return s.willChangeFiles(ctx, op)
}

func (s *Server) didCreateFiles(ctx context.Context, raw json.RawMessage) (any, error) {
	op, err := decodeFileOperation(raw, engine.FileCreate)
	if err != nil {
		return nil, err
	}
	return nil, s.engine.DidChangeFiles(ctx, op)
}

func (s *Server) willRenameFiles(ctx context.Context, raw json.RawMessage) (any, error) {
	op, err := decodeFileOperation(raw, engine.FileRename)
	if err != nil {
		return nil, err
	}
	return s.willChangeFiles(ctx, op)
}

func (s *Server) didRenameFiles(ctx context.Context, raw json.RawMessage) (any, error) {
	op, err := decodeFileOperation(raw, engine.FileRename)
	if err != nil {
		return nil, err
	}
	return nil, s.engine.DidChangeFiles(ctx, op)
}

func (s *Server) willDeleteFiles(ctx context.Context, raw json.RawMessage) (any, error) {
	op, err := decodeFileOperation(raw, engine.FileDelete)
	if err != nil {
		return nil, err
	}
	return s.willChangeFiles(ctx, op)
}

func (s *Server) didDeleteFiles(ctx context.Context, raw json.RawMessage) (any, error) {
	op, err := decodeFileOperation(raw, engine.FileDelete)
	if err != nil {
		return nil, err
	}
	return nil, s.engine.DidChangeFiles(ctx, op)
}

// willChangeFiles returns the engine's edit, or null when nothing needs to
// change.
func (s *Server) willChangeFiles(ctx context.Context, op engine.FileOperation) (any, error) {
	edit, err := s.engine.WillChangeFiles(ctx, op)
	if err != nil || edit == nil {
		return nil, err
	}
	return edit, nil
}

func decodeFileOperation(raw json.RawMessage, kind engine.FileOperationKind) (engine.FileOperation, error) {
	op := engine.FileOperation{Kind: kind}

	switch kind {
	case engine.FileCreate:
		var params lsp.CreateFilesParams
		if err := decodeParams(raw, &params); err != nil {
			return op, err
		}
		for _, f := range params.Files {
			op.Files = append(op.Files, engine.FileChange{URI: lsp.DocumentURI(f.URI)})
		}
	case engine.FileRename:
		var params lsp.RenameFilesParams
		if err := decodeParams(raw, &params); err != nil {
			return op, err
		}
		for _, f := range params.Files {
			op.Files = append(op.Files, engine.FileChange{OldURI: lsp.DocumentURI(f.OldURI), URI: lsp.DocumentURI(f.NewURI)})
		}
	case engine.FileDelete:
		var params lsp.DeleteFilesParams
		if err := decodeParams(raw, &params); err != nil {
			return op, err
		}
		for _, f := range params.Files {
			op.Files = append(op.Files, engine.FileChange{URI: lsp.DocumentURI(f.URI)})
		}
	}

	for _, f := range op.Files {
		if f.URI == "" || (kind == engine.FileRename && f.OldURI == "") {
			return op, rpc.Errorf(rpc.CodeInvalidParams, "invalid params: %s without uri", kind)
		}
	}
	return op, nil
}
