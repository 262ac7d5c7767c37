// Package mcpbridge exposes the analysis engine to MCP clients such as
// coding agents. Files are read from disk and opened in the engine on demand.
package mcpbridge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/valkyrie-lang/valkyrie-lsp/internal/engine"
	"github.com/valkyrie-lang/valkyrie-lsp/lsp"
)

// LanguageID is reported for every document the bridge opens.
const LanguageID = "valkyrie"

// ErrNotFile is returned for a path that is a directory or not a regular file.
var ErrNotFile = errors.New("mcpbridge: not a regular file")

// DocumentInput names a file.
type DocumentInput struct {
	Path string `json:"path" jsonschema:"absolute or working-directory relative path of the file"`
}

// PositionInput names a position in a file. Line and column are 1-based;
// the column counts bytes.
type PositionInput struct {
	Path   string `json:"path" jsonschema:"absolute or working-directory relative path of the file"`
	Line   int    `json:"line" jsonschema:"1-based line number"`
	Column int    `json:"column" jsonschema:"1-based column in bytes"`
}

// ReferencesInput is the input for the references tool.
type ReferencesInput struct {
	Path               string `json:"path" jsonschema:"absolute or working-directory relative path of the file"`
	Line               int    `json:"line" jsonschema:"1-based line number"`
	Column             int    `json:"column" jsonschema:"1-based column in bytes"`
	IncludeDeclaration bool   `json:"include_declaration,omitempty" jsonschema:"also list definition sites"`
}

// OpenDocumentOutput describes the opened document.
type OpenDocumentOutput struct {
	URI     string `json:"uri"`
	Version int    `json:"version"`
	Lines   int    `json:"lines"`
}

// HoverOutput is the output for the hover tool.
type HoverOutput struct {
	Found    bool   `json:"found"`
	Contents string `json:"contents,omitempty"`
}

// Location is a range in a file, 1-based like the inputs.
type Location struct {
	Path      string `json:"path"`
	Line      int    `json:"line"`
	Column    int    `json:"column"`
	EndLine   int    `json:"end_line"`
	EndColumn int    `json:"end_column"`
}

// LocationsOutput is the output for the definition and references tools.
type LocationsOutput struct {
	Locations []Location `json:"locations"`
}

// Diagnostic is one reported problem.
type Diagnostic struct {
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Severity string `json:"severity"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
}

// DiagnosticsOutput is the output for the diagnostics tool.
type DiagnosticsOutput struct {
	Version     int          `json:"version"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Bridge serves MCP tools backed by an engine.Engine.
type Bridge struct {
	engine engine.Engine
	server *mcp.Server
	logger *zap.Logger

	mu       sync.Mutex
	versions map[lsp.DocumentURI]int
}

// New creates a bridge over eng. The engine must be initialized with
// Initialize before tools are called.
func New(eng engine.Engine, name, version string, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    name,
			Version: version,
		},
		&mcp.ServerOptions{
			Instructions: "Answers hover, definition, references and diagnostics queries for source files on disk",
		},
	)

	b := &Bridge{
		engine:   eng,
		server:   server,
		logger:   logger.Named("mcp"),
		versions: make(map[lsp.DocumentURI]int),
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        "open_document",
		Description: "Load a file from disk into the language engine, or reload it if it changed. Other tools open files on demand.",
	}, b.openDocumentHandler)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "hover",
		Description: "Describe the identifier at a position: its definition keyword, where it is defined and how often it occurs.",
	}, b.hoverHandler)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "definition",
		Description: "List the definition sites of the identifier at a position across all opened files.",
	}, b.definitionHandler)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "references",
		Description: "List every occurrence of the identifier at a position across all opened files.",
	}, b.referencesHandler)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "diagnostics",
		Description: "Report the problems the language engine finds in a file.",
	}, b.diagnosticsHandler)

	return b
}

// Initialize initializes the engine with root as the workspace.
func (b *Bridge) Initialize(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("mcpbridge: %w", err)
	}
	uri := pathToURI(abs)
	return b.engine.Initialize(ctx, engine.InitializeParams{
		RootURI:  uri,
		Folders:  []lsp.WorkspaceFolder{{URI: uri, Name: filepath.Base(abs)}},
		Encoding: lsp.UTF8,
		Markdown: true,
	})
}

// Server returns the underlying MCP server.
func (b *Bridge) Server() *mcp.Server {
	return b.server
}

// Run serves MCP on stdio until the client disconnects or ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	return b.server.Run(ctx, &mcp.StdioTransport{})
}

// Close shuts the engine down.
func (b *Bridge) Close(ctx context.Context) error {
	return b.engine.Shutdown(ctx)
}

func (b *Bridge) openDocumentHandler(ctx context.Context, _ *mcp.CallToolRequest, input DocumentInput) (*mcp.CallToolResult, OpenDocumentOutput, error) {
	uri, version, text, err := b.open(ctx, input.Path)
	if err != nil {
		return nil, OpenDocumentOutput{}, err
	}
	return nil, OpenDocumentOutput{
		URI:     string(uri),
		Version: version,
		Lines:   strings.Count(text, "\n") + 1,
	}, nil
}

func (b *Bridge) hoverHandler(ctx context.Context, _ *mcp.CallToolRequest, input PositionInput) (*mcp.CallToolResult, HoverOutput, error) {
	uri, pos, err := b.position(ctx, input)
	if err != nil {
		return nil, HoverOutput{}, err
	}
	h, err := b.engine.Hover(ctx, uri, pos)
	if err != nil {
		return nil, HoverOutput{}, err
	}
	if h == nil {
		return nil, HoverOutput{}, nil
	}
	return nil, HoverOutput{Found: true, Contents: h.Contents.Value}, nil
}

func (b *Bridge) definitionHandler(ctx context.Context, _ *mcp.CallToolRequest, input PositionInput) (*mcp.CallToolResult, LocationsOutput, error) {
	uri, pos, err := b.position(ctx, input)
	if err != nil {
		return nil, LocationsOutput{}, err
	}
	locs, err := b.engine.Definition(ctx, uri, pos)
	if err != nil {
		return nil, LocationsOutput{}, err
	}
	return nil, toLocations(locs), nil
}

func (b *Bridge) referencesHandler(ctx context.Context, _ *mcp.CallToolRequest, input ReferencesInput) (*mcp.CallToolResult, LocationsOutput, error) {
	uri, pos, err := b.position(ctx, PositionInput{Path: input.Path, Line: input.Line, Column: input.Column})
	if err != nil {
		return nil, LocationsOutput{}, err
	}
	locs, err := b.engine.References(ctx, uri, pos, input.IncludeDeclaration)
	if err != nil {
		return nil, LocationsOutput{}, err
	}
	return nil, toLocations(locs), nil
}

func (b *Bridge) diagnosticsHandler(ctx context.Context, _ *mcp.CallToolRequest, input DocumentInput) (*mcp.CallToolResult, DiagnosticsOutput, error) {
	uri, _, _, err := b.open(ctx, input.Path)
	if err != nil {
		return nil, DiagnosticsOutput{}, err
	}
	d, err := b.engine.Diagnostics(ctx, uri)
	if err != nil {
		return nil, DiagnosticsOutput{}, err
	}

	out := DiagnosticsOutput{Version: d.Version, Diagnostics: make([]Diagnostic, 0, len(d.Items))}
	for _, item := range d.Items {
		out.Diagnostics = append(out.Diagnostics, Diagnostic{
			Line:     item.Range.Start.Line + 1,
			Column:   item.Range.Start.Character + 1,
			Severity: severityName(item.Severity),
			Code:     item.Code,
			Message:  item.Message,
		})
	}
	return nil, out, nil
}

// open reads path and hands it to the engine: didOpen the first time, a full
// didChange when the file is already open.
func (b *Bridge) open(ctx context.Context, path string) (lsp.DocumentURI, int, string, error) {
	if path == "" {
		return "", 0, "", fmt.Errorf("%w: path is required", engine.ErrInvalidParams)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", 0, "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", 0, "", err
	}
	if !info.Mode().IsRegular() {
		return "", 0, "", fmt.Errorf("%w: %s", ErrNotFile, abs)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", 0, "", err
	}
	text := string(data)
	uri := pathToURI(abs)

	b.mu.Lock()
	defer b.mu.Unlock()

	version, open := b.versions[uri]
	version++
	if open {
		err = b.engine.DidChange(ctx,
			lsp.VersionedTextDocumentIdentifier{TextDocumentIdentifier: lsp.TextDocumentIdentifier{URI: uri}, Version: version},
			[]lsp.TextDocumentContentChangeEvent{{Text: text}})
	} else {
		err = b.engine.DidOpen(ctx, lsp.TextDocumentItem{URI: uri, LanguageID: LanguageID, Version: version, Text: text})
	}
	if err != nil {
		return "", 0, "", err
	}
	b.versions[uri] = version
	b.logger.Debug("Opened document", zap.String("uri", string(uri)), zap.Int("version", version))
	return uri, version, text, nil
}

func (b *Bridge) position(ctx context.Context, input PositionInput) (lsp.DocumentURI, lsp.Position, error) {
	if input.Line < 1 || input.Column < 1 {
		return "", lsp.Position{}, fmt.Errorf("%w: line and column start at 1", engine.ErrInvalidParams)
	}
	uri, _, _, err := b.open(ctx, input.Path)
	if err != nil {
		return "", lsp.Position{}, err
	}
	return uri, lsp.Position{Line: input.Line - 1, Character: input.Column - 1}, nil
}

func toLocations(locs []lsp.Location) LocationsOutput {
	out := LocationsOutput{Locations: make([]Location, 0, len(locs))}
	for _, l := range locs {
		out.Locations = append(out.Locations, Location{
			Path:      uriToPath(l.URI),
			Line:      l.Range.Start.Line + 1,
			Column:    l.Range.Start.Character + 1,
			EndLine:   l.Range.End.Line + 1,
			EndColumn: l.Range.End.Character + 1,
		})
	}
	return out
}

func severityName(s lsp.DiagnosticSeverity) string {
	switch s {
	case lsp.SeverityError:
		return "error"
	case lsp.SeverityWarning:
		return "warning"
	case lsp.SeverityInformation:
		return "info"
	default:
		return "hint"
	}
}

func pathToURI(path string) lsp.DocumentURI {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return lsp.DocumentURI(u.String())
}

func uriToPath(uri lsp.DocumentURI) string {
	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" {
		return string(uri)
	}
	return filepath.FromSlash(u.Path)
}
