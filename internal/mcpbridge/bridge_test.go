package mcpbridge_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap/zaptest"

	"github.com/valkyrie-lang/valkyrie-lsp/internal/engine/memory"
	"github.com/valkyrie-lang/valkyrie-lsp/internal/mcpbridge"
)

const source = "let alpha = 1  \nreturn alpha\n"

func connect(t *testing.T) (*mcp.ClientSession, string) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "main.src")
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatal(err)
	}

	logger := zaptest.NewLogger(t)
	b := mcpbridge.New(memory.New(memory.DefaultConfig(), logger), "valkyrie-test", "0.0.1", logger)
	if err := b.Initialize(ctx, dir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := b.Server().Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("Server connect failed: %v", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("Client connect failed: %v", err)
	}
	t.Cleanup(func() {
		cs.Close()
		ss.Wait()
		if err := b.Close(context.Background()); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return cs, path
}

func callTool[T any](t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) T {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool %s failed: %v", name, err)
	}
	if res.IsError {
		t.Fatalf("Tool %s reported an error: %+v", name, res.Content)
	}
	data, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatalf("Failed to marshal structured content: %v", err)
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Failed to decode %s output %s: %v", name, data, err)
	}
	return out
}

func TestListTools(t *testing.T) {
	cs, _ := connect(t)

	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	for _, want := range []string{"open_document", "hover", "definition", "references", "diagnostics"} {
		if !slices.Contains(names, want) {
			t.Errorf("Missing tool %s in %v", want, names)
		}
	}
}

func TestOpenDocumentBumpsVersion(t *testing.T) {
	cs, path := connect(t)

	first := callTool[mcpbridge.OpenDocumentOutput](t, cs, "open_document", map[string]any{"path": path})
	if first.Version != 1 || first.Lines != 3 || !strings.HasPrefix(first.URI, "file://") {
		t.Fatalf("Unexpected output %+v", first)
	}
	second := callTool[mcpbridge.OpenDocumentOutput](t, cs, "open_document", map[string]any{"path": path})
	if second.Version != 2 || second.URI != first.URI {
		t.Fatalf("Expected version 2 of the same document, got %+v", second)
	}
}

func TestNavigation(t *testing.T) {
	cs, path := connect(t)

	defs := callTool[mcpbridge.LocationsOutput](t, cs, "definition", map[string]any{"path": path, "line": 2, "column": 9})
	want := mcpbridge.Location{Path: path, Line: 1, Column: 5, EndLine: 1, EndColumn: 10}
	if len(defs.Locations) != 1 || defs.Locations[0] != want {
		t.Fatalf("Expected %+v, got %+v", want, defs.Locations)
	}

	refs := callTool[mcpbridge.LocationsOutput](t, cs, "references", map[string]any{
		"path": path, "line": 2, "column": 9, "include_declaration": true,
	})
	if len(refs.Locations) != 2 {
		t.Errorf("Expected 2 references, got %+v", refs.Locations)
	}

	hover := callTool[mcpbridge.HoverOutput](t, cs, "hover", map[string]any{"path": path, "line": 1, "column": 6})
	if !hover.Found || !strings.Contains(hover.Contents, "alpha") {
		t.Errorf("Unexpected hover %+v", hover)
	}

	miss := callTool[mcpbridge.HoverOutput](t, cs, "hover", map[string]any{"path": path, "line": 3, "column": 1})
	if miss.Found {
		t.Errorf("Expected no hover past the last line, got %+v", miss)
	}
}

func TestDiagnostics(t *testing.T) {
	cs, path := connect(t)

	out := callTool[mcpbridge.DiagnosticsOutput](t, cs, "diagnostics", map[string]any{"path": path})
	if len(out.Diagnostics) != 1 {
		t.Fatalf("Expected one diagnostic, got %+v", out.Diagnostics)
	}
	d := out.Diagnostics[0]
	if d.Line != 1 || d.Column != 14 || d.Severity != "warning" {
		t.Errorf("Unexpected diagnostic %+v", d)
	}
}

func TestToolErrors(t *testing.T) {
	cs, path := connect(t)

	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"missing file", "diagnostics", map[string]any{"path": filepath.Join(filepath.Dir(path), "missing.src")}},
		{"directory", "open_document", map[string]any{"path": filepath.Dir(path)}},
		{"zero line", "hover", map[string]any{"path": path, "line": 0, "column": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: tt.tool, Arguments: tt.args})
			if err != nil {
				t.Fatalf("CallTool failed: %v", err)
			}
			if !res.IsError {
				t.Errorf("Expected a tool error, got %+v", res.StructuredContent)
			}
		})
	}
}
