// Package config loads server settings: defaults, then a TOML file, then
// VALKYRIE_* environment variables (env wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joeshaw/envdecode"

	"github.com/valkyrie-lang/valkyrie-lsp/internal/capability"
	"github.com/valkyrie-lang/valkyrie-lsp/internal/engine/memory"
	"github.com/valkyrie-lang/valkyrie-lsp/lsp"
	"github.com/valkyrie-lang/valkyrie-lsp/rpc"
)

// DefaultFileName is looked up in the working directory when no path is given.
const DefaultFileName = "valkyrie.toml"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Config is the whole valkyrie.toml file.
type Config struct {
	Server       ServerConfig       `toml:"server"`
	Log          LogConfig          `toml:"log"`
	Capabilities CapabilitiesConfig `toml:"capabilities"`
	Engine       EngineConfig       `toml:"engine"`
	Daemon       DaemonConfig       `toml:"daemon"`
}

// ServerConfig is the [server] table.
type ServerConfig struct {
	Name                  string `toml:"name" env:"VALKYRIE_SERVER_NAME"`
	MaxConcurrentRequests int    `toml:"max_concurrent_requests" env:"VALKYRIE_MAX_CONCURRENT_REQUESTS"`
	MaxMessageBytes       int    `toml:"max_message_bytes" env:"VALKYRIE_MAX_MESSAGE_BYTES"`
	// StrictExit makes the process exit 1 when exit arrives without shutdown.
	StrictExit         bool `toml:"strict_exit" env:"VALKYRIE_STRICT_EXIT"`
	PublishDiagnostics bool `toml:"publish_diagnostics" env:"VALKYRIE_PUBLISH_DIAGNOSTICS"`
}

// LogConfig is the [log] table.
type LogConfig struct {
	Level  string `toml:"level" env:"VALKYRIE_LOG_LEVEL"`
	Format string `toml:"format" env:"VALKYRIE_LOG_FORMAT"`
	File   string `toml:"file" env:"VALKYRIE_LOG_FILE"`
}

// CapabilitiesConfig is the [capabilities] table. Each flag advertises a
// feature group at initialize.
type CapabilitiesConfig struct {
	Hover            bool `toml:"hover" env:"VALKYRIE_CAP_HOVER"`
	Declaration      bool `toml:"declaration" env:"VALKYRIE_CAP_DECLARATION"`
	Definition       bool `toml:"definition" env:"VALKYRIE_CAP_DEFINITION"`
	TypeDefinition   bool `toml:"type_definition" env:"VALKYRIE_CAP_TYPE_DEFINITION"`
	Implementation   bool `toml:"implementation" env:"VALKYRIE_CAP_IMPLEMENTATION"`
	References       bool `toml:"references" env:"VALKYRIE_CAP_REFERENCES"`
	CodeAction       bool `toml:"code_action" env:"VALKYRIE_CAP_CODE_ACTION"`
	DocumentSync     bool `toml:"document_sync" env:"VALKYRIE_CAP_DOCUMENT_SYNC"`
	WorkspaceFolders bool `toml:"workspace_folders" env:"VALKYRIE_CAP_WORKSPACE_FOLDERS"`
	FileOperations   bool `toml:"file_operations" env:"VALKYRIE_CAP_FILE_OPERATIONS"`
	WorkspaceSymbol  bool `toml:"workspace_symbol" env:"VALKYRIE_CAP_WORKSPACE_SYMBOL"`
	ExecuteCommand   bool `toml:"execute_command" env:"VALKYRIE_CAP_EXECUTE_COMMAND"`
	Diagnostics      bool `toml:"diagnostics" env:"VALKYRIE_CAP_DIAGNOSTICS"`

	CodeActionResolve bool `toml:"code_action_resolve" env:"VALKYRIE_CAP_CODE_ACTION_RESOLVE"`
	// SyncKind is "full" or "incremental".
	SyncKind          string `toml:"sync_kind" env:"VALKYRIE_CAP_SYNC_KIND"`
	SaveIncludesText  bool   `toml:"save_includes_text" env:"VALKYRIE_CAP_SAVE_INCLUDES_TEXT"`
	WillSave          bool   `toml:"will_save" env:"VALKYRIE_CAP_WILL_SAVE"`
	FileOperationGlob string `toml:"file_operation_glob" env:"VALKYRIE_CAP_FILE_OPERATION_GLOB"`
}

// EngineConfig tunes the built-in analysis engine. Keyword lists are only
// read from the file.
type EngineConfig struct {
	DefinitionKeywords     []string `toml:"definition_keywords"`
	DeclarationKeywords    []string `toml:"declaration_keywords"`
	ImplementationKeywords []string `toml:"implementation_keywords"`
	TrimOnSave             bool     `toml:"trim_on_save" env:"VALKYRIE_ENGINE_TRIM_ON_SAVE"`
}

// DaemonConfig is the [daemon] table, read only with --listen.
type DaemonConfig struct {
	// Socket is the unix socket path. Empty selects one under the runtime dir.
	Socket string `toml:"socket" env:"VALKYRIE_DAEMON_SOCKET"`
	// Workspace gets a discovery file pointing at the socket.
	Workspace string `toml:"workspace" env:"VALKYRIE_DAEMON_WORKSPACE"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	eng := memory.DefaultConfig()
	return Config{
		Server: ServerConfig{
			Name:                  "Valkyrie Language Server",
			MaxConcurrentRequests: 8,
			MaxMessageBytes:       rpc.DefaultMaxMessageSize,
			PublishDiagnostics:    true,
		},
		Log: LogConfig{Level: "info", Format: "console"},
		Capabilities: CapabilitiesConfig{
			Hover:             true,
			Declaration:       true,
			Definition:        true,
			TypeDefinition:    true,
			Implementation:    true,
			References:        true,
			CodeAction:        true,
			DocumentSync:      true,
			WorkspaceFolders:  true,
			FileOperations:    true,
			WorkspaceSymbol:   true,
			ExecuteCommand:    true,
			Diagnostics:       true,
			CodeActionResolve: true,
			SyncKind:          "incremental",
			WillSave:          true,
		},
		Engine: EngineConfig{
			DefinitionKeywords:     eng.DefinitionKeywords,
			DeclarationKeywords:    eng.DeclarationKeywords,
			ImplementationKeywords: eng.ImplementationKeywords,
		},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins). An empty
// path tries DefaultFileName and ignores its absence; an explicit path must
// exist. Keys the file sets that Config does not know are returned as
// warnings.
func Load(path string) (Config, []string, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}

	var warnings []string
	md, err := toml.DecodeFile(path, &cfg)
	switch {
	case err == nil:
		for _, key := range md.Undecoded() {
			warnings = append(warnings, fmt.Sprintf("%s: unknown key %q", path, key.String()))
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, nil, fmt.Errorf("config: environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"console", "json"}
)

// Validate reports the first setting that is out of range.
func (c Config) Validate() error {
	if c.Server.MaxConcurrentRequests < 1 {
		return fmt.Errorf("%w: server.max_concurrent_requests must be at least 1", ErrInvalid)
	}
	if c.Server.MaxMessageBytes < 1024 {
		return fmt.Errorf("%w: server.max_message_bytes must be at least 1024", ErrInvalid)
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("%w: log.level %q", ErrInvalid, c.Log.Level)
	}
	if !slices.Contains(logFormats, strings.ToLower(c.Log.Format)) {
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	if _, err := c.Capabilities.syncKind(); err != nil {
		return err
	}
	return nil
}

func (c CapabilitiesConfig) syncKind() (lsp.TextDocumentSyncKind, error) {
	switch strings.ToLower(c.SyncKind) {
	case "full":
		return lsp.SyncFull, nil
	case "incremental", "":
		return lsp.SyncIncremental, nil
	default:
		return lsp.SyncNone, fmt.Errorf("%w: capabilities.sync_kind %q", ErrInvalid, c.SyncKind)
	}
}

// Features returns the enabled capability features.
func (c CapabilitiesConfig) Features() []capability.Feature {
	toggles := map[capability.Feature]bool{
		capability.Hover:            c.Hover,
		capability.Declaration:      c.Declaration,
		capability.Definition:       c.Definition,
		capability.TypeDefinition:   c.TypeDefinition,
		capability.Implementation:   c.Implementation,
		capability.References:       c.References,
		capability.CodeAction:       c.CodeAction,
		capability.DocumentSync:     c.DocumentSync,
		capability.WorkspaceFolders: c.WorkspaceFolders,
		capability.FileOperations:   c.FileOperations,
		capability.WorkspaceSymbol:  c.WorkspaceSymbol,
		capability.ExecuteCommand:   c.ExecuteCommand,
		capability.Diagnostics:      c.Diagnostics,
	}

	var out []capability.Feature
	for _, f := range capability.All {
		if toggles[f] {
			out = append(out, f)
		}
	}
	return out
}

// Registry builds the capability registry. commands are advertised by
// workspace/executeCommand.
func (c Config) Registry(commands []string) *capability.Registry {
	kind, err := c.Capabilities.syncKind()
	if err != nil {
		kind = lsp.SyncIncremental
	}

	opts := capability.DefaultOptions()
	opts.CodeActionResolve = c.Capabilities.CodeActionResolve
	opts.SyncKind = kind
	opts.SaveIncludesText = c.Capabilities.SaveIncludesText
	opts.WillSave = c.Capabilities.WillSave
	opts.FileOperationGlob = c.Capabilities.FileOperationGlob
	opts.Commands = commands

	return capability.New(
		capability.WithFeatures(c.Capabilities.Features()...),
		capability.WithOptions(opts),
	)
}

// MemoryEngine returns the settings of the built-in engine.
func (c Config) MemoryEngine() memory.Config {
	return memory.Config{
		DefinitionKeywords:     slices.Clone(c.Engine.DefinitionKeywords),
		DeclarationKeywords:    slices.Clone(c.Engine.DeclarationKeywords),
		ImplementationKeywords: slices.Clone(c.Engine.ImplementationKeywords),
		TrimOnSave:             c.Engine.TrimOnSave,
	}
}
