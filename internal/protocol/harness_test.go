package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/valkyrie-lang/valkyrie-lsp/internal/capability"
	"github.com/valkyrie-lang/valkyrie-lsp/internal/engine"
	"github.com/valkyrie-lang/valkyrie-lsp/lsp"
	"github.com/valkyrie-lang/valkyrie-lsp/rpc"
)

const waitTimeout = 5 * time.Second

// chanTransport hands bodies to the server and collects what it writes.
type chanTransport struct {
	in   chan []byte
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func newChanTransport() *chanTransport {
	return &chanTransport{
		in:   make(chan []byte, 64),
		out:  make(chan []byte, 256),
		done: make(chan struct{}),
	}
}

func (t *chanTransport) Read() ([]byte, error) {
	select {
	case body, ok := <-t.in:
		if !ok {
			return nil, io.EOF
		}
		return body, nil
	case <-t.done:
		return nil, io.EOF
	}
}

func (t *chanTransport) Write(msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case <-t.done:
		return io.ErrClosedPipe
	default:
	}
	select {
	case t.out <- body:
		return nil
	case <-t.done:
		return io.ErrClosedPipe
	}
}

func (t *chanTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

// incoming is anything the server writes.
type incoming struct {
	ID     *rpc.ID         `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	Result json.RawMessage `json:"result"`
	Error  *rpc.Error      `json:"error"`
}

func (m incoming) isResponse() bool { return m.Method == "" }

type harness struct {
	t      *testing.T
	srv    *Server
	tr     *chanTransport
	errc   chan error
	nextID int64

	// notes holds notifications seen while waiting for responses.
	notes []incoming
	// early holds responses that arrived before they were asked for.
	early map[string]incoming
}

func newHarness(t *testing.T, eng engine.Engine, opts ...Option) *harness {
	t.Helper()
	return newHarnessWith(t, eng, nil, opts...)
}

func newHarnessWith(t *testing.T, eng engine.Engine, reg *capability.Registry, opts ...Option) *harness {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	h := &harness{
		t:     t,
		srv:   New(eng, reg, opts...),
		tr:    newChanTransport(),
		errc:  make(chan error, 1),
		early: make(map[string]incoming),
	}
	go func() { h.errc <- h.srv.Serve(context.Background(), h.tr) }()
	t.Cleanup(func() {
		_ = h.tr.Close()
		select {
		case <-h.errc:
		case <-time.After(waitTimeout):
			t.Error("Serve did not return")
		}
	})
	return h
}

func (h *harness) sendRaw(body string) {
	h.t.Helper()
	select {
	case h.tr.in <- []byte(body):
	case <-time.After(waitTimeout):
		h.t.Fatal("Timed out sending message")
	}
}

func (h *harness) send(msg map[string]any) {
	h.t.Helper()
	msg["jsonrpc"] = "2.0"
	body, err := json.Marshal(msg)
	if err != nil {
		h.t.Fatalf("Failed to marshal message: %v", err)
	}
	h.sendRaw(string(body))
}

// request sends a request and returns its id.
func (h *harness) request(method string, params any) int64 {
	h.t.Helper()
	h.nextID++
	msg := map[string]any{"id": h.nextID, "method": method}
	if params != nil {
		msg["params"] = params
	}
	h.send(msg)
	return h.nextID
}

func (h *harness) notify(method string, params any) {
	h.t.Helper()
	msg := map[string]any{"method": method}
	if params != nil {
		msg["params"] = params
	}
	h.send(msg)
}

// next returns the next message written by the server.
func (h *harness) next() incoming {
	h.t.Helper()
	select {
	case body := <-h.tr.out:
		var m incoming
		if err := json.Unmarshal(body, &m); err != nil {
			h.t.Fatalf("Server wrote invalid JSON %q: %v", body, err)
		}
		return m
	case <-time.After(waitTimeout):
		h.t.Fatal("Timed out waiting for server output")
		return incoming{}
	}
}

// response waits for the response to id, keeping notifications and other
// responses seen on the way.
func (h *harness) response(id int64) incoming {
	h.t.Helper()
	key := rpc.NumberID(id).Key()
	if m, ok := h.early[key]; ok {
		delete(h.early, key)
		return m
	}
	for {
		m := h.next()
		if !m.isResponse() {
			h.notes = append(h.notes, m)
			continue
		}
		if m.ID == nil {
			h.t.Fatalf("Unexpected response with null id: %+v", m.Error)
		}
		if m.ID.Key() == key {
			return m
		}
		if _, dup := h.early[m.ID.Key()]; dup {
			h.t.Fatalf("Second response for id %s", m.ID)
		}
		h.early[m.ID.Key()] = m
	}
}

// notification waits for the next notification with method.
func (h *harness) notification(method string) incoming {
	h.t.Helper()
	for i, m := range h.notes {
		if m.Method == method {
			h.notes = append(h.notes[:i], h.notes[i+1:]...)
			return m
		}
	}
	for {
		m := h.next()
		if m.isResponse() {
			if m.ID != nil {
				h.early[m.ID.Key()] = m
			}
			continue
		}
		if m.Method == method {
			return m
		}
		h.notes = append(h.notes, m)
	}
}

func (h *harness) call(method string, params any) incoming {
	h.t.Helper()
	return h.response(h.request(method, params))
}

func (h *harness) initialize() incoming {
	h.t.Helper()
	return h.initializeAt("file:///proj")
}

// initializeAt runs the handshake with root as the workspace root.
func (h *harness) initializeAt(root lsp.DocumentURI) incoming {
	h.t.Helper()
	resp := h.call(lsp.MethodInitialize, map[string]any{
		"processId":    nil,
		"rootUri":      root,
		"capabilities": map[string]any{},
		"clientInfo":   map[string]any{"name": "test-client", "version": "1.0"},
	})
	if resp.Error != nil {
		h.t.Fatalf("initialize failed: %v", resp.Error)
	}
	h.notify(lsp.MethodInitialized, map[string]any{})
	if msg := h.notification(lsp.MethodLogMessage); !strings.Contains(string(msg.Params), "server initialized!") {
		h.t.Fatalf("Unexpected log message %s", msg.Params)
	}
	return resp
}

func (h *harness) open(uri lsp.DocumentURI, version int, text string) {
	h.t.Helper()
	h.notify(lsp.MethodDidOpen, map[string]any{
		"textDocument": lsp.TextDocumentItem{URI: uri, LanguageID: "valkyrie", Version: version, Text: text},
	})
}

// wait returns what Serve returned.
func (h *harness) wait() error {
	h.t.Helper()
	select {
	case err := <-h.errc:
		h.errc <- err
		return err
	case <-time.After(waitTimeout):
		h.t.Fatal("Timed out waiting for Serve to return")
		return nil
	}
}

// quiet fails if the server writes anything within d.
func (h *harness) quiet(d time.Duration) {
	h.t.Helper()
	select {
	case body := <-h.tr.out:
		h.t.Fatalf("Expected no output, got %s", body)
	case <-time.After(d):
	}
}

func expectError(t *testing.T, m incoming, code rpc.Code) {
	t.Helper()
	if m.Error == nil {
		t.Fatalf("Expected %s error, got result %s", code, m.Result)
	}
	if m.Error.Code != code {
		t.Fatalf("Expected %s error, got %s: %s", code, m.Error.Code, m.Error.Message)
	}
	if len(m.Result) > 0 {
		t.Fatalf("Error response also carries result %s", m.Result)
	}
}

func expectResult(t *testing.T, m incoming) json.RawMessage {
	t.Helper()
	if m.Error != nil {
		t.Fatalf("Expected result, got %s: %s", m.Error.Code, m.Error.Message)
	}
	if len(m.Result) == 0 {
		t.Fatal("Response carries neither result nor error")
	}
	return m.Result
}

func position(uri lsp.DocumentURI, line, char int) map[string]any {
	return map[string]any{
		"textDocument": map[string]any{"uri": uri},
		"position":     map[string]any{"line": line, "character": char},
	}
}

// fakeEngine lets tests block, fail or panic inside handlers.
type fakeEngine struct {
	engine.Unimplemented

	hoverStarted chan struct{}
	// release unblocks Hover. A nil channel makes Hover wait for
	// cancellation instead.
	release chan struct{}
	changed chan struct{}

	mu          sync.Mutex
	diagnostics map[lsp.DocumentURI]engine.DocumentDiagnostics
	shutdowns   int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		hoverStarted: make(chan struct{}, 8),
		changed:      make(chan struct{}, 8),
		diagnostics:  make(map[lsp.DocumentURI]engine.DocumentDiagnostics),
	}
}

func (f *fakeEngine) Hover(ctx context.Context, _ lsp.DocumentURI, _ lsp.Position) (*lsp.Hover, error) {
	f.hoverStarted <- struct{}{}
	if f.release == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	<-f.release
	return &lsp.Hover{Contents: lsp.MarkupContent{Kind: lsp.PlainText, Value: "stale"}}, nil
}

func (f *fakeEngine) Definition(context.Context, lsp.DocumentURI, lsp.Position) ([]lsp.Location, error) {
	panic("definition exploded")
}

func (f *fakeEngine) References(context.Context, lsp.DocumentURI, lsp.Position, bool) ([]lsp.Location, error) {
	return nil, errors.New("index unavailable")
}

func (f *fakeEngine) DidChange(context.Context, lsp.VersionedTextDocumentIdentifier, []lsp.TextDocumentContentChangeEvent) error {
	f.changed <- struct{}{}
	return nil
}

func (f *fakeEngine) Diagnostics(_ context.Context, uri lsp.DocumentURI) (engine.DocumentDiagnostics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.diagnostics[uri]
	if !ok {
		return engine.DocumentDiagnostics{}, engine.ErrUnknownDocument
	}
	return d, nil
}

func (f *fakeEngine) setDiagnostics(uri lsp.DocumentURI, version int, messages ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if version < 0 {
		delete(f.diagnostics, uri)
		return
	}
	d := engine.DocumentDiagnostics{URI: uri, Version: version, ResultID: strconv.Itoa(version), Items: []lsp.Diagnostic{}}
	for _, msg := range messages {
		d.Items = append(d.Items, lsp.Diagnostic{Message: msg, Severity: lsp.SeverityError})
	}
	f.diagnostics[uri] = d
}

func (f *fakeEngine) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
	return nil
}

func (f *fakeEngine) Commands() []string { return []string{"fake.echo"} }

func (f *fakeEngine) ExecuteCommand(_ context.Context, command string, args []json.RawMessage) (any, error) {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, string(a))
	}
	return command + ":" + strings.Join(parts, ","), nil
}
