package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/valkyrie-lang/valkyrie-lsp/internal/engine"
	"github.com/valkyrie-lang/valkyrie-lsp/internal/session"
	"github.com/valkyrie-lang/valkyrie-lsp/lsp"
	"github.com/valkyrie-lang/valkyrie-lsp/rpc"
)

// handle dispatches one decoded message on the reader goroutine. It reports
// whether the connection should stop.
func (s *Server) handle(ctx context.Context, msg *rpc.Message) bool {
	kind := msg.Kind()
	if kind == rpc.KindResponse {
		s.logger.Debug("Ignoring response from client", zap.Any("id", msg.ID))
		return false
	}
	isRequest := kind == rpc.KindRequest

	s.logger.Debug("Received", zap.String("method", msg.Method), zap.Stringer("kind", kind))

	verdict := s.session.Check(msg.Method, isRequest)
	switch verdict {
	case session.Drop:
		s.logger.Debug("Dropped by lifecycle",
			zap.String("method", msg.Method),
			zap.Stringer("state", s.session.State()))
		return false
	case session.RejectNotInitialized, session.RejectInvalid:
		s.replyError(*msg.ID, verdict.Err(msg.Method, s.session.State()))
		return false
	}

	switch {
	case msg.Method == lsp.MethodExit && !isRequest:
		s.exit()
		return true
	case msg.Method == lsp.MethodCancel && !isRequest:
		s.cancelRequest(msg.Params)
		return false
	}

	r, known := routes[msg.Method]
	if !known || r.handler == nil || r.request != isRequest || !s.enabled(r) {
		if isRequest {
			s.replyError(*msg.ID, rpc.Errorf(rpc.CodeMethodNotFound, "method not found: %s", msg.Method))
		} else if !strings.HasPrefix(msg.Method, "$/") {
			s.logger.Debug("Ignoring notification", zap.String("method", msg.Method))
		}
		return false
	}

	switch {
	case !isRequest:
		s.runNotification(ctx, msg, r)
	case r.effect == effectLifecycle:
		result, err := s.call(ctx, msg, r)
		s.reply(*msg.ID, result, err)
	default:
		s.startTask(ctx, msg, r)
	}
	return false
}

// enabled reports whether the route's feature and options are advertised.
func (s *Server) enabled(r route) bool {
	if !s.registry.Enabled(r.feature) {
		return false
	}
	return r.option == nil || r.option(s.registry.Options())
}

// exit ends the session. Serve finishes the teardown.
func (s *Server) exit() {
	clean := s.session.Exit()
	if clean {
		s.exitCode.Store(0)
	}
	s.logger.Info("Exit received", zap.Bool("clean", clean))
}

func (s *Server) cancelRequest(raw json.RawMessage) {
	var p lsp.CancelParams
	if err := json.Unmarshal(raw, &p); err != nil || len(p.ID) == 0 {
		s.logger.Debug("Malformed cancel request", zap.ByteString("params", raw))
		return
	}
	var id rpc.ID
	if err := json.Unmarshal(p.ID, &id); err != nil {
		s.logger.Debug("Malformed cancel request id", zap.ByteString("id", p.ID))
		return
	}
	if s.pending.Cancel(id) {
		s.logger.Debug("Request cancelled", zap.Stringer("id", id))
	}
}

// runNotification applies a notification inline. Failures are logged and
// never answered.
func (s *Server) runNotification(ctx context.Context, msg *rpc.Message, r route) {
	if r.effect == effectMutate {
		s.gens.bump(r.scope, documentURI(msg.Params))
	}
	if _, err := s.call(ctx, msg, r); err != nil {
		s.logger.Warn("Notification failed", zap.String("method", msg.Method), zap.Error(err))
	}
}

// startTask runs a request concurrently. The task owns a pending entry from
// registration until its response is written.
func (s *Server) startTask(ctx context.Context, msg *rpc.Message, r route) {
	id := *msg.ID
	taskCtx, cancel := context.WithCancel(ctx)
	if err := s.pending.Register(id, msg.Method, cancel); err != nil {
		cancel()
		s.replyError(id, rpc.Errorf(rpc.CodeInvalidRequest, "request id %s is already in flight", id))
		return
	}

	uri := documentURI(msg.Params)
	stamp := s.gens.stamp(r.scope, uri)

	s.tasks.Add(1)
	go func() {
		defer s.tasks.Done()
		defer cancel()

		var result any
		err := s.sem.Acquire(taskCtx, 1)
		if err == nil {
			result, err = s.call(taskCtx, msg, r)
			s.sem.Release(1)
		}

		s.gens.guard(r.scope, uri, stamp, func(current bool) {
			if entry := s.pending.Complete(id); entry != nil && entry.Cancelled() {
				result, err = nil, context.Canceled
			}
			if err == nil && !current {
				err = rpc.Errorf(rpc.CodeContentModified, "content modified while computing %s", msg.Method)
			}
			s.reply(id, result, err)
		})
	}()
}

// call runs a handler with telemetry, recovering panics as InternalError.
func (s *Server) call(ctx context.Context, msg *rpc.Message, r route) (result any, err error) {
	kind := msg.Kind()
	ctx, span := s.inst.start(ctx, msg.Method, kind)
	started := time.Now()
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("Handler panicked",
				zap.String("method", msg.Method),
				zap.Any("panic", p),
				zap.StackSkip("stack", 1))
			result, err = nil, rpc.Errorf(rpc.CodeInternalError, "internal error handling %s", msg.Method)
		}
		s.inst.finish(ctx, span, msg.Method, kind, started, err)
	}()

	return r.handler(s, ctx, msg.Params)
}

func (s *Server) reply(id rpc.ID, result any, err error) {
	if err != nil {
		s.replyError(id, toRPCError(err))
		return
	}
	resp, merr := rpc.NewResult(id, result)
	if merr != nil {
		s.logger.Error("Result not encodable", zap.Stringer("id", id), zap.Error(merr))
		s.replyError(id, rpc.Errorf(rpc.CodeInternalError, "encode result: %v", merr))
		return
	}
	s.write(resp)
}

func (s *Server) replyError(id rpc.ID, rerr *rpc.Error) {
	s.logger.Debug("Error response", zap.Stringer("id", id), zap.Stringer("code", rerr.Code), zap.String("message", rerr.Message))
	s.write(rpc.NewErrorResponse(&id, rerr))
}

// toRPCError maps handler errors onto protocol error codes.
func toRPCError(err error) *rpc.Error {
	var rerr *rpc.Error
	switch {
	case errors.As(err, &rerr):
		return rerr
	case errors.Is(err, engine.ErrInvalidParams), errors.Is(err, engine.ErrUnknownDocument):
		return rpc.Errorf(rpc.CodeInvalidParams, "%v", err)
	case errors.Is(err, engine.ErrContentModified):
		return rpc.Errorf(rpc.CodeContentModified, "%v", err)
	case errors.Is(err, context.Canceled):
		return rpc.Errorf(rpc.CodeRequestCancelled, "request cancelled")
	default:
		return rpc.Errorf(rpc.CodeInternalError, "%v", err)
	}
}

// decodeParams unmarshals raw into v and runs its Validate method, if any.
// Both failures are InvalidParams.
func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return rpc.Errorf(rpc.CodeInvalidParams, "missing params")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return rpc.Errorf(rpc.CodeInvalidParams, "invalid params: %v", err)
	}
	if val, ok := v.(interface{ Validate() error }); ok {
		if err := val.Validate(); err != nil {
			return rpc.Errorf(rpc.CodeInvalidParams, "invalid params: %v", err)
		}
	}
	return nil
}

// documentURI extracts textDocument.uri for generation tracking. It is empty
// when params carry no document.
func documentURI(raw json.RawMessage) lsp.DocumentURI {
	var p struct {
		TextDocument struct {
			URI lsp.DocumentURI `json:"uri"`
		} `json:"textDocument"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &p) != nil {
		return ""
	}
	return p.TextDocument.URI
}

// generations count mutations per document and for the workspace, so a read
// can tell whether its inputs changed while it ran.
type generations struct {
	mu        sync.Mutex
	total     uint64
	workspace uint64
	docs      map[lsp.DocumentURI]uint64
}

func newGenerations() *generations {
	return &generations{docs: make(map[lsp.DocumentURI]uint64)}
}

func (g *generations) bump(sc scope, uri lsp.DocumentURI) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.total++
	if sc == scopeDocument && uri != "" {
		g.docs[uri]++
		return
	}
	g.workspace++
}

func (g *generations) stampLocked(sc scope, uri lsp.DocumentURI) uint64 {
	switch sc {
	case scopeDocument:
		return g.docs[uri] + g.workspace
	case scopeWorkspace:
		return g.total
	default:
		return 0
	}
}

func (g *generations) stamp(sc scope, uri lsp.DocumentURI) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stampLocked(sc, uri)
}

// guard runs fn while no mutation can be recorded. current reports whether
// the scope is unchanged since stamp was taken.
func (g *generations) guard(sc scope, uri lsp.DocumentURI, stamp uint64, fn func(current bool)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.stampLocked(sc, uri) == stamp)
}
