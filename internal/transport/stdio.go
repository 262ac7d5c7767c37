// Package transport moves framed LSP messages over byte streams.
package transport

import (
	"io"
	"sync"

	"go.uber.org/multierr"

	"github.com/valkyrie-lang/valkyrie-lsp/rpc"
)

// Transport represents a bidirectional LSP transport.
type Transport interface {
	// Read returns the body of the next frame. It returns io.EOF once the
	// peer has closed the stream or the transport was closed.
	Read() ([]byte, error)
	// Write frames and writes one message. It is safe for concurrent use.
	Write(msg any) error
	// Close closes the transport.
	Close() error
}

// StdioTransport implements Transport over a reader and a writer, usually
// stdin and stdout.
type StdioTransport struct {
	reader  *rpc.Reader
	writer  *rpc.Writer
	closers []io.Closer

	closed  bool
	closeMu sync.Mutex
}

// NewStdioTransport creates a transport. maxSize bounds a single frame body;
// zero selects rpc.DefaultMaxMessageSize. reader and writer are closed on
// Close when they implement io.Closer.
func NewStdioTransport(reader io.Reader, writer io.Writer, maxSize int) *StdioTransport {
	t := &StdioTransport{
		reader: rpc.NewReader(reader, maxSize),
		writer: rpc.NewWriter(writer),
	}
	if c, ok := reader.(io.Closer); ok {
		t.closers = append(t.closers, c)
	}
	if c, ok := writer.(io.Closer); ok {
		t.closers = append(t.closers, c)
	}
	return t
}

func (t *StdioTransport) isClosed() bool {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()
	return t.closed
}

// Read reads a single LSP message body.
func (t *StdioTransport) Read() ([]byte, error) {
	if t.isClosed() {
		return nil, io.EOF
	}
	return t.reader.ReadFrame()
}

// Write writes an LSP message.
func (t *StdioTransport) Write(msg any) error {
	if t.isClosed() {
		return io.ErrClosedPipe
	}
	return t.writer.Write(msg)
}

// Close closes the transport.
func (t *StdioTransport) Close() error {
	t.closeMu.Lock()
	defer t.closeMu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	var err error
	for _, c := range t.closers {
		err = multierr.Append(err, c.Close())
	}
	return err
}
