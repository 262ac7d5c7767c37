// Package protocol serves one LSP connection: it gates messages on the
// session lifecycle, routes them through a static method table and delegates
// language queries to an engine.Engine.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/valkyrie-lang/valkyrie-lsp/internal/capability"
	"github.com/valkyrie-lang/valkyrie-lsp/internal/engine"
	"github.com/valkyrie-lang/valkyrie-lsp/internal/pending"
	"github.com/valkyrie-lang/valkyrie-lsp/internal/session"
	"github.com/valkyrie-lang/valkyrie-lsp/internal/transport"
	"github.com/valkyrie-lang/valkyrie-lsp/rpc"
)

const (
	DefaultName                  = "Valkyrie Language Server"
	DefaultMaxConcurrentRequests = 8
)

// ErrServing is returned when Serve is called twice.
var ErrServing = errors.New("protocol: server already serving")

// Server handles one connection.
type Server struct {
	engine   engine.Engine
	registry *capability.Registry
	logger   *zap.Logger

	name               string
	version            string
	maxConcurrent      int64
	publishDiagnostics bool

	session  *session.Session
	pending  *pending.Table
	gens     *generations
	inst     *instruments
	// tracers and meters replace the otel globals when set.
	tracers  trace.TracerProvider
	meters   metric.MeterProvider
	sem      *semaphore.Weighted
	tasks    sync.WaitGroup
	serving  atomic.Bool
	exitCode atomic.Int32

	connMu sync.RWMutex
	conn   transport.Transport
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. nil disables logging.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger == nil {
			logger = zap.NewNop()
		}
		s.logger = logger
	}
}

// WithServerInfo sets the serverInfo reported by initialize.
func WithServerInfo(name, version string) Option {
	return func(s *Server) {
		s.name = name
		s.version = version
	}
}

// WithMaxConcurrentRequests bounds the requests processed at once. Values
// below one are ignored.
func WithMaxConcurrentRequests(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxConcurrent = int64(n)
		}
	}
}

// WithPublishDiagnostics pushes textDocument/publishDiagnostics after every
// document sync notification.
func WithPublishDiagnostics(enabled bool) Option {
	return func(s *Server) {
		s.publishDiagnostics = enabled
	}
}

// WithSession serves an existing session, for callers that register it
// elsewhere before serving.
func WithSession(sess *session.Session) Option {
	return func(s *Server) {
		if sess != nil {
			s.session = sess
		}
	}
}

// New creates a server over eng. A nil registry advertises every feature
// with the engine's commands.
func New(eng engine.Engine, reg *capability.Registry, opts ...Option) *Server {
	if reg == nil {
		o := capability.DefaultOptions()
		o.Commands = eng.Commands()
		reg = capability.New(capability.WithOptions(o))
	}

	s := &Server{
		engine:        eng,
		registry:      reg,
		logger:        zap.NewNop(),
		name:          DefaultName,
		maxConcurrent: DefaultMaxConcurrentRequests,
		session:       session.New(),
		pending:       pending.New(),
		gens:          newGenerations(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sem = semaphore.NewWeighted(s.maxConcurrent)
	s.exitCode.Store(1)

	inst, err := newInstruments(s.tracers, s.meters)
	if err != nil {
		s.logger.Warn("Telemetry disabled", zap.Error(err))
		inst = nil
	}
	s.inst = inst
	return s
}

// Session returns the session served by s.
func (s *Server) Session() *session.Session {
	return s.session
}

// ExitCode is 0 when shutdown preceded exit and 1 otherwise.
func (s *Server) ExitCode() int {
	return int(s.exitCode.Load())
}

// Serve reads messages from t until exit, end of stream, a fatal protocol
// error or ctx cancellation. It cancels outstanding requests, waits for
// their responses, shuts the engine down and closes t before returning.
// A clean end of stream and exit return nil.
func (s *Server) Serve(ctx context.Context, t transport.Transport) error {
	if !s.serving.CompareAndSwap(false, true) {
		return ErrServing
	}

	s.connMu.Lock()
	s.conn = t
	s.connMu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopRead := context.AfterFunc(ctx, func() { _ = t.Close() })
	defer stopRead()

	s.logger.Info("Serving connection", zap.String("session", s.session.ID()))
	err := s.readLoop(ctx, t)
	if ctx.Err() != nil && err == nil {
		err = context.Cause(ctx)
	}
	return s.stop(ctx, t, err)
}

func (s *Server) readLoop(ctx context.Context, t transport.Transport) error {
	for {
		body, err := t.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Debug("Connection closed by peer")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("protocol: read: %w", err)
		}

		msg, err := rpc.Decode(body)
		if err != nil {
			var rerr *rpc.Error
			if !errors.As(err, &rerr) {
				rerr = rpc.Errorf(rpc.CodeInternalError, "%v", err)
			}
			if rerr.Code == rpc.CodeParseError {
				s.logger.Warn("Unparseable message, closing connection", zap.Error(err))
				s.write(rpc.NewErrorResponse(nil, rerr))
				return fmt.Errorf("protocol: %w", err)
			}
			var id *rpc.ID
			if msg != nil {
				id = msg.ID
			}
			s.logger.Warn("Invalid message", zap.Error(err))
			s.write(rpc.NewErrorResponse(id, rerr))
			continue
		}

		if s.handle(ctx, msg) {
			return nil
		}
	}
}

// stop tears the connection down. Requests still running see their context
// cancelled and answer before the transport closes.
func (s *Server) stop(ctx context.Context, t transport.Transport, cause error) error {
	if s.session.Exit() {
		s.exitCode.Store(0)
	}

	for _, e := range s.pending.Snapshot() {
		s.logger.Debug("Request in flight at exit",
			zap.Stringer("id", e.ID),
			zap.String("method", e.Method),
			zap.Duration("age", time.Since(e.StartedAt)))
	}
	if n := s.pending.CancelAll(); n > 0 {
		s.logger.Debug("Cancelled outstanding requests", zap.Int("count", n))
	}
	s.tasks.Wait()

	if err := s.engine.Shutdown(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("Engine shutdown failed", zap.Error(err))
	}
	if err := t.Close(); err != nil {
		s.logger.Debug("Transport close failed", zap.Error(err))
	}

	s.logger.Info("Connection finished",
		zap.String("session", s.session.ID()),
		zap.Int("exit_code", s.ExitCode()))
	return cause
}

// write sends one message, logging failures. A broken transport ends the
// read loop on its own.
func (s *Server) write(msg any) {
	s.connMu.RLock()
	t := s.conn
	s.connMu.RUnlock()

	if t == nil {
		return
	}
	if err := t.Write(msg); err != nil {
		s.logger.Debug("Write failed", zap.Error(err))
	}
}

// notify sends a server-to-client notification.
func (s *Server) notify(method string, params any) {
	s.write(rpc.NewNotification(method, params))
}
