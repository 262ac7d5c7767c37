package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/valkyrie-lang/valkyrie-lsp/rpc"
)

// SocketTransport implements Transport over a stream connection.
type SocketTransport struct {
	conn   net.Conn
	reader *rpc.Reader
	writer *rpc.Writer

	closed  bool
	closeMu sync.Mutex
}

// NewSocketTransport creates a transport from an existing connection.
func NewSocketTransport(conn net.Conn, maxSize int) *SocketTransport {
	return &SocketTransport{
		conn:   conn,
		reader: rpc.NewReader(conn, maxSize),
		writer: rpc.NewWriter(conn),
	}
}

func (t *SocketTransport) isClosed() bool {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	return t.closed
}

// Read reads a single LSP message body.
func (t *SocketTransport) Read() ([]byte, error) {
	if t.isClosed() {
		return nil, io.EOF
	}
	frame, err := t.reader.ReadFrame()
	if err != nil && errors.Is(err, net.ErrClosed) {
		return nil, io.EOF
	}
	return frame, err
}

// Write writes an LSP message.
func (t *SocketTransport) Write(msg any) error {
	if t.isClosed() {
		return io.ErrClosedPipe
	}
	return t.writer.Write(msg)
}

// Close closes the transport.
func (t *SocketTransport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

// RemoteAddr describes the peer for logs.
func (t *SocketTransport) RemoteAddr() string {
	if addr := t.conn.RemoteAddr(); addr != nil && addr.String() != "" {
		return addr.String()
	}
	return "unix"
}

// SocketListener listens for socket connections.
type SocketListener struct {
	listener net.Listener
	path     string
	maxSize  int
}

// NewSocketListener creates a new Unix socket listener. A stale socket file
// at path is replaced; the new one is readable by the owner only.
func NewSocketListener(path string, maxSize int) (*SocketListener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on socket: %w", err)
	}

	if err := os.Chmod(path, 0o600); err != nil {
		return nil, multierr.Append(fmt.Errorf("failed to set socket permissions: %w", err), listener.Close())
	}

	return &SocketListener{
		listener: listener,
		path:     path,
		maxSize:  maxSize,
	}, nil
}

// Accept accepts a new connection and returns a transport.
func (l *SocketListener) Accept() (*SocketTransport, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		return nil, err
	}
	return NewSocketTransport(conn, l.maxSize), nil
}

// Close closes the listener and removes the socket file.
func (l *SocketListener) Close() error {
	err := l.listener.Close()
	if rmErr := os.Remove(l.path); rmErr != nil && !os.IsNotExist(rmErr) {
		err = multierr.Append(err, rmErr)
	}
	return err
}

// Path returns the socket path.
func (l *SocketListener) Path() string {
	return l.path
}

// DialSocket connects to a Unix socket and returns a transport.
func DialSocket(path string, timeout time.Duration) (*SocketTransport, error) {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket: %w", err)
	}
	return NewSocketTransport(conn, 0), nil
}
