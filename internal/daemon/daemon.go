// Package daemon serves LSP sessions over a unix socket, one protocol server
// per connection.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/valkyrie-lang/valkyrie-lsp/internal/protocol"
	"github.com/valkyrie-lang/valkyrie-lsp/internal/session"
	"github.com/valkyrie-lang/valkyrie-lsp/internal/transport"
)

// DefaultStaleSocketAge is how old an abandoned socket must be before it is
// removed at startup.
const DefaultStaleSocketAge = 24 * time.Hour

// ErrNotListening is returned by Serve before Listen succeeded.
var ErrNotListening = errors.New("daemon: not listening")

// ServerFactory builds the server for one connection. It must serve sess.
type ServerFactory func(sess *session.Session) *protocol.Server

// Config configures a Daemon.
type Config struct {
	// SocketPath is where to listen. Empty picks a per-process socket in the
	// manager's socket directory.
	SocketPath string
	// Workspace, when set, gets a discovery file pointing at the socket.
	Workspace string
	// MaxMessageBytes bounds a single frame body. Zero uses the default.
	MaxMessageBytes int
	// StaleSocketAge is passed to session.Manager.CleanupStaleSockets.
	StaleSocketAge time.Duration
}

// Daemon accepts connections and runs a protocol.Server for each.
type Daemon struct {
	cfg       Config
	manager   *session.Manager
	newServer ServerFactory
	logger    *zap.Logger

	mu       sync.Mutex
	listener *transport.SocketListener
}

// New creates a daemon. A nil manager uses the default socket directory.
func New(cfg Config, manager *session.Manager, newServer ServerFactory, logger *zap.Logger) *Daemon {
	if manager == nil {
		manager = session.NewManager()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StaleSocketAge <= 0 {
		cfg.StaleSocketAge = DefaultStaleSocketAge
	}
	return &Daemon{
		cfg:       cfg,
		manager:   manager,
		newServer: newServer,
		logger:    logger.Named("daemon"),
	}
}

// Sessions lists the connected sessions.
func (d *Daemon) Sessions() []session.Info {
	return d.manager.List()
}

// SocketPath returns the socket being listened on, or "" before Listen.
func (d *Daemon) SocketPath() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener == nil {
		return ""
	}
	return d.listener.Path()
}

// Listen prepares the socket directory, removes stale sockets and starts
// listening.
func (d *Daemon) Listen() error {
	path := d.cfg.SocketPath
	if path == "" {
		if err := d.manager.EnsureSocketDir(); err != nil {
			return fmt.Errorf("daemon: %w", err)
		}
		if err := d.manager.CleanupStaleSockets(d.cfg.StaleSocketAge); err != nil {
			d.logger.Warn("Failed to clean up stale sockets", zap.Error(err))
		}
		path = d.manager.ProcessSocketPath(os.Getpid())
	}

	l, err := transport.NewSocketListener(path, d.cfg.MaxMessageBytes)
	if err != nil {
		return fmt.Errorf("daemon: %w", err)
	}

	d.mu.Lock()
	d.listener = l
	d.mu.Unlock()

	d.logger.Info("Listening", zap.String("socket", path))
	return nil
}

// Serve accepts connections until ctx is done. It closes the listener,
// waits for every connection to finish and removes the discovery file
// before returning.
func (d *Daemon) Serve(ctx context.Context) error {
	d.mu.Lock()
	l := d.listener
	d.mu.Unlock()
	if l == nil {
		return ErrNotListening
	}

	if d.cfg.Workspace != "" {
		if err := session.WriteDiscovery(d.cfg.Workspace, l.Path()); err != nil {
			return multierr.Append(fmt.Errorf("daemon: %w", err), l.Close())
		}
		defer session.RemoveDiscovery(d.cfg.Workspace)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		d.logger.Info("Closing listener", zap.Int("sessions", len(d.Sessions())))
		return l.Close()
	})
	g.Go(func() error {
		for {
			t, err := l.Accept()
			if err != nil {
				if gctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return nil
				}
				return fmt.Errorf("daemon: accept: %w", err)
			}
			g.Go(func() error {
				d.serveConn(gctx, t)
				return nil
			})
		}
	})

	err := g.Wait()
	d.logger.Info("Daemon stopped", zap.Error(err))
	return err
}

// Run listens and serves until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Listen(); err != nil {
		return err
	}
	return d.Serve(ctx)
}

// serveConn runs one session. Its failure ends only that connection.
func (d *Daemon) serveConn(ctx context.Context, t *transport.SocketTransport) {
	sess := session.New()
	srv := d.newServer(sess)
	logger := d.logger.With(zap.String("session", sess.ID()))

	d.manager.Add(srv.Session(), t.RemoteAddr())
	defer d.manager.Remove(srv.Session().ID())

	logger.Info("Client connected",
		zap.String("remote", d.manager.Remote(sess.ID())),
		zap.Int("sessions", d.manager.Len()))
	err := srv.Serve(ctx, t)
	info := sess.Info()
	logger = logger.With(zap.String("root", string(info.RootURI)))
	if info.Client != nil {
		logger = logger.With(zap.String("client", info.Client.Name))
	}
	switch {
	case err == nil:
		logger.Info("Client disconnected", zap.Int("exit_code", srv.ExitCode()))
	case errors.Is(err, context.Canceled):
		logger.Info("Client disconnected by daemon shutdown")
	default:
		logger.Warn("Session ended with error", zap.Error(err))
	}
}
