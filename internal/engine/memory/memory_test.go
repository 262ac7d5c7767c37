package memory_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/valkyrie-lang/valkyrie-lsp/internal/engine"
	"github.com/valkyrie-lang/valkyrie-lsp/internal/engine/memory"
	"github.com/valkyrie-lang/valkyrie-lsp/lsp"
)

const (
	mainURI  lsp.DocumentURI = "file:///proj/main.src"
	shapeURI lsp.DocumentURI = "file:///proj/shape.src"
)

const mainText = `let origin: Point = make()
fn area(p) {
  return origin
}
`

const shapeText = `struct Point {
}
impl Point for Shape
extern area
`

func newEngine(t *testing.T) *memory.Engine {
	t.Helper()
	ctx := context.Background()
	e := memory.New(memory.DefaultConfig(), zaptest.NewLogger(t))
	if err := e.Initialize(ctx, engine.InitializeParams{Encoding: lsp.UTF16, Markdown: true}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	for uri, text := range map[lsp.DocumentURI]string{mainURI: mainText, shapeURI: shapeText} {
		if err := e.DidOpen(ctx, lsp.TextDocumentItem{URI: uri, LanguageID: "valkyrie", Version: 1, Text: text}); err != nil {
			t.Fatalf("DidOpen failed: %v", err)
		}
	}
	return e
}

func pos(line, char int) lsp.Position {
	return lsp.Position{Line: line, Character: char}
}

func TestDefinitionFindsKeywordSite(t *testing.T) {
	e := newEngine(t)

	locs, err := e.Definition(context.Background(), mainURI, pos(2, 10))
	if err != nil {
		t.Fatalf("Definition failed: %v", err)
	}
	if len(locs) != 1 {
		t.Fatalf("Expected one definition, got %+v", locs)
	}
	want := lsp.Location{URI: mainURI, Range: lsp.Range{Start: pos(0, 4), End: pos(0, 10)}}
	if locs[0] != want {
		t.Fatalf("Expected %+v, got %+v", want, locs[0])
	}
}

func TestDefinitionMissIsEmptyList(t *testing.T) {
	e := newEngine(t)

	tests := []struct {
		name string
		uri  lsp.DocumentURI
		pos  lsp.Position
	}{
		{"whitespace", mainURI, pos(2, 0)},
		{"unknown document", "file:///nowhere.src", pos(0, 0)},
		{"past end", mainURI, pos(40, 0)},
		{"no definition", mainURI, pos(0, 21)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locs, err := e.Definition(context.Background(), tt.uri, tt.pos)
			if err != nil {
				t.Fatalf("Definition failed: %v", err)
			}
			if locs == nil || len(locs) != 0 {
				t.Fatalf("Expected empty non-nil list, got %#v", locs)
			}
			data, _ := json.Marshal(locs)
			if string(data) != "[]" {
				t.Fatalf("Expected [], got %s", data)
			}
		})
	}
}

func TestDeclarationPrefersForwardDeclaration(t *testing.T) {
	e := newEngine(t)

	locs, err := e.Declaration(context.Background(), mainURI, pos(1, 4))
	if err != nil {
		t.Fatalf("Declaration failed: %v", err)
	}
	if len(locs) != 1 || locs[0].URI != shapeURI || locs[0].Range.Start != pos(3, 7) {
		t.Fatalf("Expected the extern declaration, got %+v", locs)
	}
}

func TestTypeDefinitionFollowsAnnotation(t *testing.T) {
	e := newEngine(t)

	locs, err := e.TypeDefinition(context.Background(), mainURI, pos(2, 10))
	if err != nil {
		t.Fatalf("TypeDefinition failed: %v", err)
	}
	if len(locs) != 1 || locs[0].URI != shapeURI || locs[0].Range.Start != pos(0, 7) {
		t.Fatalf("Expected struct Point, got %+v", locs)
	}
}

func TestImplementation(t *testing.T) {
	e := newEngine(t)

	locs, err := e.Implementation(context.Background(), shapeURI, pos(0, 8))
	if err != nil {
		t.Fatalf("Implementation failed: %v", err)
	}
	if len(locs) != 1 || locs[0].Range.Start != pos(2, 5) {
		t.Fatalf("Expected impl site, got %+v", locs)
	}
}

func TestReferences(t *testing.T) {
	e := newEngine(t)

	all, err := e.References(context.Background(), mainURI, pos(0, 13), true)
	if err != nil {
		t.Fatalf("References failed: %v", err)
	}
	// main: "origin: Point"; shape: "struct Point", "impl Point"
	if len(all) != 3 {
		t.Fatalf("Expected 3 references, got %+v", all)
	}

	uses, err := e.References(context.Background(), mainURI, pos(0, 13), false)
	if err != nil {
		t.Fatalf("References failed: %v", err)
	}
	if len(uses) != 2 {
		t.Fatalf("Expected declaration to be excluded, got %+v", uses)
	}
}

func TestHoverReflectsLatestChange(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	rng := lsp.Range{Start: pos(2, 9), End: pos(2, 15)}
	if err := e.DidChange(ctx, lsp.VersionedTextDocumentIdentifier{
		TextDocumentIdentifier: lsp.TextDocumentIdentifier{URI: mainURI},
		Version:                2,
	}, []lsp.TextDocumentContentChangeEvent{{Range: &rng, Text: "renamed"}}); err != nil {
		t.Fatalf("DidChange failed: %v", err)
	}

	hover, err := e.Hover(ctx, mainURI, pos(2, 10))
	if err != nil {
		t.Fatalf("Hover failed: %v", err)
	}
	if hover == nil {
		t.Fatal("Expected hover")
	}
	if !strings.Contains(hover.Contents.Value, "renamed") || !strings.Contains(hover.Contents.Value, "version 2") {
		t.Fatalf("Hover does not reflect the change: %q", hover.Contents.Value)
	}
	if hover.Contents.Kind != lsp.Markdown {
		t.Fatalf("Expected markdown, got %s", hover.Contents.Kind)
	}
}

func TestHoverMissIsNil(t *testing.T) {
	e := newEngine(t)
	hover, err := e.Hover(context.Background(), "file:///unknown", pos(0, 0))
	if err != nil || hover != nil {
		t.Fatalf("Expected nil hover without error, got %+v, %v", hover, err)
	}
}

func TestIncrementalChangeInUTF8(t *testing.T) {
	ctx := context.Background()
	e := memory.New(memory.DefaultConfig(), nil)
	if err := e.Initialize(ctx, engine.InitializeParams{Encoding: lsp.UTF8}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if err := e.DidOpen(ctx, lsp.TextDocumentItem{URI: mainURI, Version: 1, Text: "let é = 1\n"}); err != nil {
		t.Fatalf("DidOpen failed: %v", err)
	}

	// "é" spans bytes 4..6; replace it.
	rng := lsp.Range{Start: pos(0, 4), End: pos(0, 6)}
	if err := e.DidChange(ctx, lsp.VersionedTextDocumentIdentifier{
		TextDocumentIdentifier: lsp.TextDocumentIdentifier{URI: mainURI},
		Version:                2,
	}, []lsp.TextDocumentContentChangeEvent{{Range: &rng, Text: "x"}}); err != nil {
		t.Fatalf("DidChange failed: %v", err)
	}

	locs, err := e.Definition(ctx, mainURI, pos(0, 4))
	if err != nil {
		t.Fatalf("Definition failed: %v", err)
	}
	if len(locs) != 1 || locs[0].Range.End != pos(0, 5) {
		t.Fatalf("Expected x to be defined at 0:4-0:5, got %+v", locs)
	}
}

func TestDidChangeUnknownDocument(t *testing.T) {
	e := newEngine(t)
	err := e.DidChange(context.Background(), lsp.VersionedTextDocumentIdentifier{
		TextDocumentIdentifier: lsp.TextDocumentIdentifier{URI: "file:///missing"},
	}, nil)
	if !errors.Is(err, engine.ErrUnknownDocument) {
		t.Fatalf("Expected ErrUnknownDocument, got %v", err)
	}
}

func TestCodeActionResolveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	if err := e.DidOpen(ctx, lsp.TextDocumentItem{URI: "file:///ws.src", Version: 3, Text: "let a = 1  \nlet b = 2\t\n"}); err != nil {
		t.Fatalf("DidOpen failed: %v", err)
	}

	diags, err := e.Diagnostics(ctx, "file:///ws.src")
	if err != nil {
		t.Fatalf("Diagnostics failed: %v", err)
	}
	if len(diags.Items) != 2 || diags.Version != 3 {
		t.Fatalf("Expected two diagnostics at version 3, got %+v", diags)
	}

	actions, err := e.CodeActions(ctx, "file:///ws.src", lsp.Range{Start: pos(0, 0), End: pos(0, 11)}, lsp.CodeActionContext{})
	if err != nil {
		t.Fatalf("CodeActions failed: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("Expected quick fix and fix-all, got %+v", actions)
	}
	if actions[0].Edit != nil {
		t.Fatal("Expected the edit to be deferred to resolve")
	}

	first, err := e.ResolveCodeAction(ctx, actions[0])
	if err != nil {
		t.Fatalf("ResolveCodeAction failed: %v", err)
	}
	second, err := e.ResolveCodeAction(ctx, actions[0])
	if err != nil {
		t.Fatalf("ResolveCodeAction failed: %v", err)
	}
	if !reflect.DeepEqual(first.Edit, second.Edit) {
		t.Fatalf("Resolve is not idempotent: %+v vs %+v", first.Edit, second.Edit)
	}
	edits := first.Edit.Changes["file:///ws.src"]
	if len(edits) != 1 || edits[0].Range != (lsp.Range{Start: pos(0, 9), End: pos(0, 11)}) {
		t.Fatalf("Unexpected edits %+v", edits)
	}

	fixAll, err := e.ResolveCodeAction(ctx, actions[1])
	if err != nil {
		t.Fatalf("ResolveCodeAction failed: %v", err)
	}
	if n := len(fixAll.Edit.Changes["file:///ws.src"]); n != 2 {
		t.Fatalf("Expected 2 fix-all edits, got %d", n)
	}
}

func TestCodeActionResolveAfterEditIsContentModified(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	if err := e.DidOpen(ctx, lsp.TextDocumentItem{URI: "file:///ws.src", Version: 1, Text: "x  \n"}); err != nil {
		t.Fatalf("DidOpen failed: %v", err)
	}
	actions, err := e.CodeActions(ctx, "file:///ws.src", lsp.Range{End: pos(0, 3)}, lsp.CodeActionContext{})
	if err != nil || len(actions) != 1 {
		t.Fatalf("Expected one action, got %+v, %v", actions, err)
	}

	if err := e.DidChange(ctx, lsp.VersionedTextDocumentIdentifier{
		TextDocumentIdentifier: lsp.TextDocumentIdentifier{URI: "file:///ws.src"},
		Version:                2,
	}, []lsp.TextDocumentContentChangeEvent{{Text: "y\n"}}); err != nil {
		t.Fatalf("DidChange failed: %v", err)
	}

	if _, err := e.ResolveCodeAction(ctx, actions[0]); !errors.Is(err, engine.ErrContentModified) {
		t.Fatalf("Expected ErrContentModified, got %v", err)
	}
}

func TestCodeActionOnlyFilter(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	if err := e.DidOpen(ctx, lsp.TextDocumentItem{URI: "file:///ws.src", Version: 1, Text: "a \nb \n"}); err != nil {
		t.Fatalf("DidOpen failed: %v", err)
	}

	actions, err := e.CodeActions(ctx, "file:///ws.src", lsp.Range{End: pos(1, 2)}, lsp.CodeActionContext{Only: []lsp.CodeActionKind{lsp.CodeActionSource}})
	if err != nil {
		t.Fatalf("CodeActions failed: %v", err)
	}
	if len(actions) != 1 || actions[0].Kind != lsp.CodeActionSourceFixAll {
		t.Fatalf("Expected only the fix-all source action, got %+v", actions)
	}
}

func TestCancelledContextStopsQueries(t *testing.T) {
	e := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.References(ctx, mainURI, pos(0, 13), true); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestWorkspaceSymbols(t *testing.T) {
	e := newEngine(t)

	symbols, err := e.WorkspaceSymbols(context.Background(), "poi")
	if err != nil {
		t.Fatalf("WorkspaceSymbols failed: %v", err)
	}
	if len(symbols) != 1 || symbols[0].Name != "Point" || symbols[0].Kind != lsp.SymbolStruct {
		t.Fatalf("Expected struct Point, got %+v", symbols)
	}
}

func TestExecuteDocumentStats(t *testing.T) {
	e := newEngine(t)
	arg, _ := json.Marshal(mainURI)

	result, err := e.ExecuteCommand(context.Background(), memory.CommandDocumentStats, []json.RawMessage{arg})
	if err != nil {
		t.Fatalf("ExecuteCommand failed: %v", err)
	}
	stats := result.(memory.DocumentStats)
	if stats.Definitions != 2 || stats.Lines != 5 {
		t.Fatalf("Unexpected stats %+v", stats)
	}

	if _, err := e.ExecuteCommand(context.Background(), "nope", nil); !errors.Is(err, engine.ErrInvalidParams) {
		t.Fatalf("Expected unknown command to be invalid params, got %v", err)
	}
}

func TestDidChangeConfigurationUpdatesKeywords(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	if err := e.DidOpen(ctx, lsp.TextDocumentItem{URI: "file:///p.src", Version: 1, Text: "proc run\nrun\n"}); err != nil {
		t.Fatalf("DidOpen failed: %v", err)
	}

	if err := e.DidChangeConfiguration(ctx, json.RawMessage(`{"valkyrie":{"definitionKeywords":["proc"]}}`)); err != nil {
		t.Fatalf("DidChangeConfiguration failed: %v", err)
	}
	locs, err := e.Definition(ctx, "file:///p.src", pos(1, 1))
	if err != nil || len(locs) != 1 {
		t.Fatalf("Expected proc definition, got %+v, %v", locs, err)
	}

	if err := e.DidChangeConfiguration(ctx, json.RawMessage(`[1]`)); !errors.Is(err, engine.ErrInvalidParams) {
		t.Fatalf("Expected ErrInvalidParams, got %v", err)
	}
}

func TestFileOperations(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	if err := e.DidOpen(ctx, lsp.TextDocumentItem{URI: "file:///proj/app.src", Version: 1, Text: "import shape\nshape.draw()\n"}); err != nil {
		t.Fatalf("DidOpen failed: %v", err)
	}

	op := engine.FileOperation{Kind: engine.FileRename, Files: []engine.FileChange{{OldURI: shapeURI, URI: "file:///proj/geometry.src"}}}
	edit, err := e.WillChangeFiles(ctx, op)
	if err != nil {
		t.Fatalf("WillChangeFiles failed: %v", err)
	}
	if edit == nil || len(edit.Changes["file:///proj/app.src"]) != 2 {
		t.Fatalf("Expected two import edits, got %+v", edit)
	}

	if err := e.DidChangeFiles(ctx, op); err != nil {
		t.Fatalf("DidChangeFiles failed: %v", err)
	}
	if _, err := e.Diagnostics(ctx, shapeURI); !errors.Is(err, engine.ErrUnknownDocument) {
		t.Fatalf("Expected old uri to be gone, got %v", err)
	}
	if _, err := e.Diagnostics(ctx, "file:///proj/geometry.src"); err != nil {
		t.Fatalf("Expected renamed document, got %v", err)
	}

	if err := e.DidChangeWatchedFiles(ctx, []lsp.FileEvent{{URI: mainURI, Type: lsp.FileChanged}}); err != nil {
		t.Fatalf("DidChangeWatchedFiles failed: %v", err)
	}
	if _, err := e.Diagnostics(ctx, mainURI); err != nil {
		t.Fatalf("Expected the open document to survive a watch event, got %v", err)
	}
}

func dirURI(dir string) lsp.DocumentURI {
	return lsp.DocumentURI("file://" + filepath.ToSlash(dir))
}

func writeFile(t *testing.T, path, text string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestUnopenedWorkspaceFilesAreReadFromDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	outside := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.src"), "alpha = 1  \nlet beta = alpha\n")
	writeFile(t, filepath.Join(outside, "b.src"), "gamma\n")

	root := dirURI(dir)
	aURI := root + "/a.src"
	e := memory.New(memory.DefaultConfig(), zaptest.NewLogger(t))
	if err := e.Initialize(ctx, engine.InitializeParams{RootURI: root, Encoding: lsp.UTF16}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	hover, err := e.Hover(ctx, aURI, pos(0, 0))
	if err != nil || hover == nil {
		t.Fatalf("Expected hover from disk, got %+v, %v", hover, err)
	}
	if !strings.Contains(hover.Contents.Value, "alpha") || hover.Contents.Kind != lsp.PlainText {
		t.Fatalf("Unexpected hover %+v", hover.Contents)
	}

	d, err := e.Diagnostics(ctx, aURI)
	if err != nil || len(d.Items) != 1 || d.Version != 0 {
		t.Fatalf("Expected one diagnostic at version 0, got %+v, %v", d, err)
	}

	if hover, err := e.Hover(ctx, root+"/missing.src", pos(0, 0)); err != nil || hover != nil {
		t.Fatalf("Expected nil hover for a missing file, got %+v, %v", hover, err)
	}
	if _, err := e.Diagnostics(ctx, dirURI(outside)+"/b.src"); !errors.Is(err, engine.ErrUnknownDocument) {
		t.Fatalf("Expected a file outside the workspace to stay unknown, got %v", err)
	}

	writeFile(t, filepath.Join(dir, "a.src"), "alpha = 1\n")
	if err := e.DidChangeWatchedFiles(ctx, []lsp.FileEvent{{URI: aURI, Type: lsp.FileChanged}}); err != nil {
		t.Fatalf("DidChangeWatchedFiles failed: %v", err)
	}
	next, err := e.Diagnostics(ctx, aURI)
	if err != nil || len(next.Items) != 0 {
		t.Fatalf("Expected the rewritten file to be clean, got %+v, %v", next, err)
	}
	if next.ResultID == d.ResultID {
		t.Fatalf("Expected a new result id after the reload, got %q twice", d.ResultID)
	}

	if err := e.DidChangeWorkspaceFolders(ctx, []lsp.WorkspaceFolder{{URI: dirURI(outside), Name: "outside"}}, nil); err != nil {
		t.Fatalf("DidChangeWorkspaceFolders failed: %v", err)
	}
	if _, err := e.Diagnostics(ctx, dirURI(outside)+"/b.src"); err != nil {
		t.Fatalf("Expected a file in an added folder to load, got %v", err)
	}
}

func TestResultIDChangesOnReopen(t *testing.T) {
	ctx := context.Background()
	e := memory.New(memory.DefaultConfig(), nil)

	open := func(text string) engine.DocumentDiagnostics {
		t.Helper()
		if err := e.DidOpen(ctx, lsp.TextDocumentItem{URI: mainURI, Version: 1, Text: text}); err != nil {
			t.Fatalf("DidOpen failed: %v", err)
		}
		d, err := e.Diagnostics(ctx, mainURI)
		if err != nil {
			t.Fatalf("Diagnostics failed: %v", err)
		}
		return d
	}

	first := open("clean\n")
	if again, _ := e.Diagnostics(ctx, mainURI); again.ResultID != first.ResultID {
		t.Fatalf("Expected a stable result id, got %q then %q", first.ResultID, again.ResultID)
	}
	if err := e.DidClose(ctx, mainURI); err != nil {
		t.Fatalf("DidClose failed: %v", err)
	}
	second := open("a  \nb  \n")
	if second.ResultID == first.ResultID || len(second.Items) != 2 {
		t.Fatalf("Expected a new result id with two diagnostics, got %+v after %q", second, first.ResultID)
	}

	saved := "clean\n"
	if err := e.DidSave(ctx, mainURI, &saved); err != nil {
		t.Fatalf("DidSave failed: %v", err)
	}
	third, _ := e.Diagnostics(ctx, mainURI)
	if third.ResultID == second.ResultID || third.Version != 1 {
		t.Fatalf("Expected a new result id at the same version after save, got %+v", third)
	}
}

func TestWillSaveWaitUntilTrims(t *testing.T) {
	ctx := context.Background()
	cfg := memory.DefaultConfig()
	cfg.TrimOnSave = true
	e := memory.New(cfg, nil)
	if err := e.DidOpen(ctx, lsp.TextDocumentItem{URI: mainURI, Version: 1, Text: "a  \nb\n"}); err != nil {
		t.Fatalf("DidOpen failed: %v", err)
	}

	edits, err := e.WillSaveWaitUntil(ctx, mainURI, lsp.SaveManual)
	if err != nil {
		t.Fatalf("WillSaveWaitUntil failed: %v", err)
	}
	if len(edits) != 1 {
		t.Fatalf("Expected one edit, got %+v", edits)
	}
}
