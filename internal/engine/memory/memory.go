// Package memory is a self-contained analysis engine over the open documents
// and the workspace files queries touch. It resolves identifiers by
// whole-word matching and keyword heuristics and needs no knowledge of a
// particular language grammar.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/valkyrie-lang/valkyrie-lsp/internal/engine"
	"github.com/valkyrie-lang/valkyrie-lsp/lsp"
)

// Source is the diagnostic source name.
const Source = "valkyrie"

// Config tunes the engine's heuristics.
type Config struct {
	// DefinitionKeywords introduce a definition: "fn main".
	DefinitionKeywords []string
	// DeclarationKeywords introduce a forward declaration: "extern printf".
	DeclarationKeywords []string
	// ImplementationKeywords introduce an implementation: "impl Shape".
	ImplementationKeywords []string
	// TrimOnSave makes willSaveWaitUntil strip trailing whitespace.
	TrimOnSave bool
}

// DefaultConfig returns keyword sets covering common C-family and ML-family
// spellings.
func DefaultConfig() Config {
	return Config{
		DefinitionKeywords: []string{
			"def", "fn", "func", "function", "let", "var", "const",
			"class", "struct", "enum", "trait", "interface", "type", "module",
		},
		DeclarationKeywords:    []string{"extern", "declare"},
		ImplementationKeywords: []string{"impl", "implements"},
	}
}

// Engine keeps open documents in memory and answers queries from them.
type Engine struct {
	logger *zap.Logger

	mu       sync.RWMutex
	cfg      Config
	enc      lsp.OffsetEncoding
	markdown bool
	root     lsp.DocumentURI
	folders  []lsp.WorkspaceFolder
	docs     map[lsp.DocumentURI]*document
	// fromDisk marks documents read from disk rather than opened by the
	// client.
	fromDisk map[lsp.DocumentURI]bool
	rev      uint64
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger:   logger,
		cfg:      cfg,
		enc:      lsp.UTF16,
		markdown: true,
		docs:     make(map[lsp.DocumentURI]*document),
		fromDisk: make(map[lsp.DocumentURI]bool),
	}
}

// view is a consistent snapshot for one query.
type view struct {
	docs     []*document
	byURI    map[lsp.DocumentURI]*document
	enc      lsp.OffsetEncoding
	markdown bool
	cfg      Config
}

func (e *Engine) view() *view {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v := &view{
		docs:     make([]*document, 0, len(e.docs)),
		byURI:    make(map[lsp.DocumentURI]*document, len(e.docs)),
		enc:      e.enc,
		markdown: e.markdown,
		cfg:      e.cfg,
	}
	for uri, doc := range e.docs {
		v.docs = append(v.docs, doc)
		v.byURI[uri] = doc
	}
	slices.SortFunc(v.docs, func(a, b *document) int { return strings.Compare(string(a.uri), string(b.uri)) })
	return v
}

func (v *view) location(o occurrence) lsp.Location {
	doc := v.byURI[o.uri]
	return lsp.Location{URI: o.uri, Range: doc.span(o.line, o.start, o.end, v.enc)}
}

func (v *view) locations(occs []occurrence, keep func(occurrence) bool) []lsp.Location {
	out := make([]lsp.Location, 0, len(occs))
	for _, o := range occs {
		if keep == nil || keep(o) {
			out = append(out, v.location(o))
		}
	}
	return out
}

// identAt returns the identifier under pos, or ok=false for an unknown
// document or a position outside any identifier.
func (v *view) identAt(uri lsp.DocumentURI, pos lsp.Position) (doc *document, word string, start, end int, ok bool) {
	doc, found := v.byURI[uri]
	if !found || pos.Line >= doc.lineCount() {
		return nil, "", 0, 0, false
	}
	line := doc.line(pos.Line)
	word, start, end, ok = wordAt(line, lsp.ColumnToByte(line, pos.Character, v.enc))
	return doc, word, start, end, ok
}

func (v *view) definitionsOf(ctx context.Context, word string, keywords []string) ([]occurrence, error) {
	occs, err := occurrences(ctx, v.docs, word)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(occs, func(o occurrence) bool {
		return !slices.Contains(keywords, o.keyword)
	}), nil
}

// storeLocked records doc under a fresh revision.
func (e *Engine) storeLocked(doc *document) {
	e.rev++
	doc.rev = e.rev
	e.docs[doc.uri] = doc
}

// viewOf is view after reading uri from disk when the client has not opened
// it.
func (e *Engine) viewOf(uri lsp.DocumentURI) *view {
	e.load(uri)
	return e.view()
}

// load reads a file inside the workspace that the client has not opened.
// Files that cannot be read stay unknown.
func (e *Engine) load(uri lsp.DocumentURI) {
	e.mu.RLock()
	_, known := e.docs[uri]
	inside := e.inWorkspaceLocked(uri)
	e.mu.RUnlock()
	if known || !inside {
		return
	}

	path, ok := uriToPath(uri)
	if !ok {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		e.logger.Debug("Document not on disk", zap.String("uri", string(uri)), zap.Error(err))
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, known := e.docs[uri]; known {
		return
	}
	e.storeLocked(newDocument(uri, "", 0, string(data)))
	e.fromDisk[uri] = true
	e.logger.Debug("Document read from disk", zap.String("uri", string(uri)))
}

func (e *Engine) inWorkspaceLocked(uri lsp.DocumentURI) bool {
	roots := make([]lsp.DocumentURI, 0, len(e.folders)+1)
	roots = append(roots, e.root)
	for _, f := range e.folders {
		roots = append(roots, f.URI)
	}
	for _, root := range roots {
		if root == "" {
			continue
		}
		if strings.HasPrefix(string(uri), strings.TrimSuffix(string(root), "/")+"/") {
			return true
		}
	}
	return false
}

func uriToPath(uri lsp.DocumentURI) (string, bool) {
	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" || u.Path == "" {
		return "", false
	}
	return filepath.FromSlash(u.Path), true
}

// Initialize records the negotiated encoding and workspace.
func (e *Engine) Initialize(_ context.Context, params engine.InitializeParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if params.Encoding.Valid() {
		e.enc = params.Encoding
	}
	e.markdown = params.Markdown
	e.root = params.RootURI
	e.folders = slices.Clone(params.Folders)

	if len(params.Options) > 0 && string(params.Options) != "null" {
		if err := mergeConfig(&e.cfg, params.Options); err != nil {
			return err
		}
	}

	e.logger.Debug("Engine initialized",
		zap.String("root", string(e.root)),
		zap.String("encoding", string(e.enc)),
		zap.Int("folders", len(e.folders)))
	return nil
}

// Shutdown drops all documents.
func (e *Engine) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.docs)
	clear(e.fromDisk)
	return nil
}

// DidOpen stores a document, replacing any previous copy.
func (e *Engine) DidOpen(_ context.Context, item lsp.TextDocumentItem) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.storeLocked(newDocument(item.URI, item.LanguageID, item.Version, item.Text))
	delete(e.fromDisk, item.URI)
	e.logger.Debug("Document opened", zap.String("uri", string(item.URI)), zap.Int("version", item.Version))
	return nil
}

// DidChange applies content changes in order.
func (e *Engine) DidChange(_ context.Context, id lsp.VersionedTextDocumentIdentifier, changes []lsp.TextDocumentContentChangeEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, ok := e.docs[id.URI]
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrUnknownDocument, id.URI)
	}
	next, err := doc.apply(id.Version, changes, e.enc)
	if err != nil {
		return fmt.Errorf("%w: %v", engine.ErrInvalidParams, err)
	}
	e.storeLocked(next)
	delete(e.fromDisk, id.URI)
	return nil
}

// DidSave replaces the content when the client includes it.
func (e *Engine) DidSave(_ context.Context, uri lsp.DocumentURI, text *string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, ok := e.docs[uri]
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrUnknownDocument, uri)
	}
	if text != nil {
		e.storeLocked(newDocument(uri, doc.languageID, doc.version, *text))
	}
	return nil
}

// DidClose forgets a document.
func (e *Engine) DidClose(_ context.Context, uri lsp.DocumentURI) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.docs[uri]; !ok {
		return fmt.Errorf("%w: %s", engine.ErrUnknownDocument, uri)
	}
	delete(e.docs, uri)
	delete(e.fromDisk, uri)
	e.logger.Debug("Document closed", zap.String("uri", string(uri)))
	return nil
}

// WillSaveWaitUntil strips trailing whitespace when TrimOnSave is set.
func (e *Engine) WillSaveWaitUntil(ctx context.Context, uri lsp.DocumentURI, _ lsp.TextDocumentSaveReason) ([]lsp.TextEdit, error) {
	v := e.view()
	doc, ok := v.byURI[uri]
	if !ok || !v.cfg.TrimOnSave {
		return []lsp.TextEdit{}, nil
	}
	return trimEdits(ctx, doc, -1, v.enc)
}

// Hover describes the identifier under the cursor.
func (e *Engine) Hover(ctx context.Context, uri lsp.DocumentURI, pos lsp.Position) (*lsp.Hover, error) {
	v := e.viewOf(uri)
	doc, word, start, end, ok := v.identAt(uri, pos)
	if !ok {
		return nil, nil
	}

	occs, err := occurrences(ctx, v.docs, word)
	if err != nil {
		return nil, err
	}

	var def *occurrence
	files := make(map[lsp.DocumentURI]bool)
	for i, o := range occs {
		files[o.uri] = true
		if def == nil && slices.Contains(v.cfg.DefinitionKeywords, o.keyword) {
			def = &occs[i]
		}
	}

	var b strings.Builder
	kind := lsp.PlainText
	if v.markdown {
		kind = lsp.Markdown
		b.WriteString("```\n")
		if def != nil {
			b.WriteString(def.keyword + " ")
		}
		b.WriteString(word + "\n```\n\n")
	} else {
		if def != nil {
			b.WriteString(def.keyword + " ")
		}
		b.WriteString(word + "\n\n")
	}
	if def != nil {
		fmt.Fprintf(&b, "Defined in %s at line %d.\n", def.uri, def.line+1)
	}
	fmt.Fprintf(&b, "%d occurrences in %d documents. %s version %d.", len(occs), len(files), doc.uri, doc.version)

	rng := doc.span(pos.Line, start, end, v.enc)
	return &lsp.Hover{
		Contents: lsp.MarkupContent{Kind: kind, Value: b.String()},
		Range:    &rng,
	}, nil
}

// Declaration returns forward declarations of the identifier, falling back
// to its definitions.
func (e *Engine) Declaration(ctx context.Context, uri lsp.DocumentURI, pos lsp.Position) ([]lsp.Location, error) {
	v := e.viewOf(uri)
	_, word, _, _, ok := v.identAt(uri, pos)
	if !ok {
		return []lsp.Location{}, nil
	}

	decls, err := v.definitionsOf(ctx, word, v.cfg.DeclarationKeywords)
	if err != nil {
		return nil, err
	}
	if len(decls) == 0 {
		if decls, err = v.definitionsOf(ctx, word, v.cfg.DefinitionKeywords); err != nil {
			return nil, err
		}
	}
	return v.locations(decls, nil), nil
}

// Definition returns every definition of the identifier.
func (e *Engine) Definition(ctx context.Context, uri lsp.DocumentURI, pos lsp.Position) ([]lsp.Location, error) {
	v := e.viewOf(uri)
	_, word, _, _, ok := v.identAt(uri, pos)
	if !ok {
		return []lsp.Location{}, nil
	}

	defs, err := v.definitionsOf(ctx, word, v.cfg.DefinitionKeywords)
	if err != nil {
		return nil, err
	}
	return v.locations(defs, nil), nil
}

// TypeDefinition resolves the type annotated on the identifier's definition,
// as in "let origin: Point".
func (e *Engine) TypeDefinition(ctx context.Context, uri lsp.DocumentURI, pos lsp.Position) ([]lsp.Location, error) {
	v := e.viewOf(uri)
	_, word, _, _, ok := v.identAt(uri, pos)
	if !ok {
		return []lsp.Location{}, nil
	}

	defs, err := v.definitionsOf(ctx, word, v.cfg.DefinitionKeywords)
	if err != nil {
		return nil, err
	}

	var types []string
	for _, d := range defs {
		if t := annotatedType(v.byURI[d.uri].line(d.line), d.end); t != "" && !slices.Contains(types, t) {
			types = append(types, t)
		}
	}

	out := []lsp.Location{}
	for _, t := range types {
		typeDefs, err := v.definitionsOf(ctx, t, v.cfg.DefinitionKeywords)
		if err != nil {
			return nil, err
		}
		out = append(out, v.locations(typeDefs, nil)...)
	}
	return out, nil
}

// Implementation returns sites introduced by an implementation keyword.
func (e *Engine) Implementation(ctx context.Context, uri lsp.DocumentURI, pos lsp.Position) ([]lsp.Location, error) {
	v := e.viewOf(uri)
	_, word, _, _, ok := v.identAt(uri, pos)
	if !ok {
		return []lsp.Location{}, nil
	}

	impls, err := v.definitionsOf(ctx, word, v.cfg.ImplementationKeywords)
	if err != nil {
		return nil, err
	}
	return v.locations(impls, nil), nil
}

// References returns every occurrence of the identifier.
func (e *Engine) References(ctx context.Context, uri lsp.DocumentURI, pos lsp.Position, includeDeclaration bool) ([]lsp.Location, error) {
	v := e.viewOf(uri)
	_, word, _, _, ok := v.identAt(uri, pos)
	if !ok {
		return []lsp.Location{}, nil
	}

	occs, err := occurrences(ctx, v.docs, word)
	if err != nil {
		return nil, err
	}
	if includeDeclaration {
		return v.locations(occs, nil), nil
	}
	return v.locations(occs, func(o occurrence) bool {
		return !slices.Contains(v.cfg.DefinitionKeywords, o.keyword) &&
			!slices.Contains(v.cfg.DeclarationKeywords, o.keyword)
	}), nil
}

// WorkspaceSymbols lists definitions whose name contains query, ignoring case.
func (e *Engine) WorkspaceSymbols(ctx context.Context, query string) ([]lsp.SymbolInformation, error) {
	v := e.view()
	defs, err := definitions(ctx, v.docs, v.cfg.DefinitionKeywords)
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	out := []lsp.SymbolInformation{}
	for _, d := range defs {
		name := v.byURI[d.uri].line(d.line)[d.start:d.end]
		if !strings.Contains(strings.ToLower(name), query) {
			continue
		}
		out = append(out, lsp.SymbolInformation{
			Name:          name,
			Kind:          symbolKind(d.keyword),
			Location:      v.location(d),
			ContainerName: path.Base(string(d.uri)),
		})
	}
	return out, nil
}

// DidChangeConfiguration merges client settings into the engine config.
func (e *Engine) DidChangeConfiguration(_ context.Context, settings json.RawMessage) error {
	if len(settings) == 0 || string(settings) == "null" {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return mergeConfig(&e.cfg, settings)
}

// mergeConfig overlays settings onto cfg. Settings may be nested under a
// "valkyrie" key; absent fields keep their value.
func mergeConfig(cfg *Config, settings json.RawMessage) error {
	var nested struct {
		Valkyrie *json.RawMessage `json:"valkyrie"`
	}
	if err := json.Unmarshal(settings, &nested); err != nil {
		return fmt.Errorf("%w: settings: %v", engine.ErrInvalidParams, err)
	}
	if nested.Valkyrie != nil {
		settings = *nested.Valkyrie
	}

	var patch struct {
		DefinitionKeywords     *[]string `json:"definitionKeywords"`
		DeclarationKeywords    *[]string `json:"declarationKeywords"`
		ImplementationKeywords *[]string `json:"implementationKeywords"`
		TrimOnSave             *bool     `json:"trimOnSave"`
	}
	if err := json.Unmarshal(settings, &patch); err != nil {
		return fmt.Errorf("%w: settings: %v", engine.ErrInvalidParams, err)
	}

	if patch.DefinitionKeywords != nil {
		cfg.DefinitionKeywords = *patch.DefinitionKeywords
	}
	if patch.DeclarationKeywords != nil {
		cfg.DeclarationKeywords = *patch.DeclarationKeywords
	}
	if patch.ImplementationKeywords != nil {
		cfg.ImplementationKeywords = *patch.ImplementationKeywords
	}
	if patch.TrimOnSave != nil {
		cfg.TrimOnSave = *patch.TrimOnSave
	}
	return nil
}

// DidChangeWorkspaceFolders tracks the workspace folders and forgets files
// read from folders that were removed.
func (e *Engine) DidChangeWorkspaceFolders(_ context.Context, added, removed []lsp.WorkspaceFolder) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.folders = slices.DeleteFunc(e.folders, func(f lsp.WorkspaceFolder) bool {
		return slices.ContainsFunc(removed, func(r lsp.WorkspaceFolder) bool { return r.URI == f.URI })
	})
	e.folders = append(e.folders, added...)

	for uri := range e.fromDisk {
		if !e.inWorkspaceLocked(uri) {
			delete(e.docs, uri)
			delete(e.fromDisk, uri)
		}
	}
	return nil
}

// DidChangeWatchedFiles drops documents read from disk that changed there,
// so the next query reads them again. Documents the client opened are its
// own and stay.
func (e *Engine) DidChangeWatchedFiles(_ context.Context, changes []lsp.FileEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, c := range changes {
		if e.fromDisk[c.URI] {
			delete(e.docs, c.URI)
			delete(e.fromDisk, c.URI)
		}
	}
	return nil
}

// WillChangeFiles renames whole-word uses of a renamed file's stem in open
// documents, as in "import util" when util.src becomes helpers.src.
func (e *Engine) WillChangeFiles(ctx context.Context, op engine.FileOperation) (*lsp.WorkspaceEdit, error) {
	if op.Kind != engine.FileRename {
		return nil, nil
	}

	v := e.view()
	edit := &lsp.WorkspaceEdit{Changes: make(map[lsp.DocumentURI][]lsp.TextEdit)}
	for _, f := range op.Files {
		oldStem, newStem := stem(f.OldURI), stem(f.URI)
		if oldStem == newStem || !isIdent(oldStem) || !isIdent(newStem) {
			continue
		}
		occs, err := occurrences(ctx, v.docs, oldStem)
		if err != nil {
			return nil, err
		}
		for _, o := range occs {
			loc := v.location(o)
			edit.Changes[loc.URI] = append(edit.Changes[loc.URI], lsp.TextEdit{Range: loc.Range, NewText: newStem})
		}
	}

	if len(edit.Changes) == 0 {
		return nil, nil
	}
	return edit, nil
}

// DidChangeFiles moves or drops documents after file operations.
func (e *Engine) DidChangeFiles(_ context.Context, op engine.FileOperation) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, f := range op.Files {
		switch op.Kind {
		case engine.FileCreate:
			if e.fromDisk[f.URI] {
				delete(e.docs, f.URI)
				delete(e.fromDisk, f.URI)
			}
		case engine.FileRename:
			if doc, ok := e.docs[f.OldURI]; ok {
				delete(e.docs, f.OldURI)
				e.storeLocked(newDocument(f.URI, doc.languageID, doc.version, doc.text))
			}
			if e.fromDisk[f.OldURI] {
				delete(e.fromDisk, f.OldURI)
				e.fromDisk[f.URI] = true
			}
		case engine.FileDelete:
			delete(e.docs, f.URI)
			delete(e.fromDisk, f.URI)
		}
	}
	return nil
}

func stem(uri lsp.DocumentURI) string {
	base := path.Base(string(uri))
	return strings.TrimSuffix(base, path.Ext(base))
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isIdentRune(r) {
			return false
		}
	}
	return true
}
