package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valkyrie-lang/valkyrie-lsp/internal/config"
	"github.com/valkyrie-lang/valkyrie-lsp/internal/daemon"
	"github.com/valkyrie-lang/valkyrie-lsp/internal/engine/memory"
	"github.com/valkyrie-lang/valkyrie-lsp/internal/logging"
	"github.com/valkyrie-lang/valkyrie-lsp/internal/protocol"
	"github.com/valkyrie-lang/valkyrie-lsp/internal/session"
	"github.com/valkyrie-lang/valkyrie-lsp/internal/transport"
)

var version = "0.1.0"

// autoSocket as the --listen value picks a socket in the runtime directory.
const autoSocket = "auto"

type options struct {
	configPath string
	logPath    string
	logLevel   string
	listen     string
	workspace  string
}

// app carries the flags and the stdio streams of one invocation.
type app struct {
	opts     options
	stdin    io.Reader
	stdout   io.Writer
	exitCode int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdin: os.Stdin, stdout: os.Stdout}
	if err := fang.Execute(ctx, newRootCmd(a), fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
	os.Exit(a.exitCode)
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "valkyrie-lsp",
		Short: "Language server for Valkyrie",
		Long: `Runs a Language Server Protocol server for Valkyrie source files.

By default the server speaks LSP on stdin/stdout for a single editor.
With --listen it runs as a daemon on a unix socket, serving one session per
connection. The connect command bridges stdio to a running daemon, and the
mcp command serves the same analysis to MCP clients.

Configuration:
  valkyrie.toml in the working directory, or --config FILE.
  VALKYRIE_* environment variables override the file.

Files:
  .valkyrie/session             Daemon discovery (workspace root)
  $XDG_RUNTIME_DIR/valkyrie-lsp/ Sockets (Linux)
  $TMPDIR/valkyrie-lsp-$UID/     Sockets (macOS)`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.opts.listen != "" {
				return a.runDaemon(cmd.Context())
			}
			return a.runStdio(cmd.Context())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.opts.configPath, "config", "", "Config file path (default ./valkyrie.toml)")
	flags.StringVar(&a.opts.logPath, "log", "", "Log file path (default stderr)")
	flags.StringVar(&a.opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	rootCmd.Flags().StringVar(&a.opts.listen, "listen", "", `Serve as a daemon on this unix socket ("auto" picks one)`)
	rootCmd.Flags().StringVar(&a.opts.workspace, "workspace", "", "Workspace root that gets a daemon discovery file")

	rootCmd.AddCommand(newConnectCmd(a), newMCPCmd(a))
	return rootCmd
}

// setup loads the config, applies flag overrides and builds the logger.
func (a *app) setup() (config.Config, *zap.Logger, error) {
	cfg, warnings, err := config.Load(a.opts.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if a.opts.logPath != "" {
		cfg.Log.File = a.opts.logPath
	}
	if a.opts.logLevel != "" {
		cfg.Log.Level = a.opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return config.Config{}, nil, err
	}
	for _, w := range warnings {
		logger.Warn("Config warning", zap.String("warning", w))
	}
	return cfg, logger, nil
}

// newServer builds a protocol server with its own engine. A nil session
// gets a fresh one.
func newServer(cfg config.Config, logger *zap.Logger, sess *session.Session) *protocol.Server {
	eng := memory.New(cfg.MemoryEngine(), logger)
	return protocol.New(eng, cfg.Registry(eng.Commands()),
		protocol.WithLogger(logger),
		protocol.WithServerInfo(cfg.Server.Name, version),
		protocol.WithMaxConcurrentRequests(cfg.Server.MaxConcurrentRequests),
		protocol.WithPublishDiagnostics(cfg.Server.PublishDiagnostics),
		protocol.WithSession(sess),
	)
}

func (a *app) runStdio(ctx context.Context) error {
	cfg, logger, err := a.setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	srv := newServer(cfg, logger, nil)
	t := transport.NewStdioTransport(a.stdin, a.stdout, cfg.Server.MaxMessageBytes)

	err = srv.Serve(ctx, t)
	if cfg.Server.StrictExit {
		a.exitCode = srv.ExitCode()
	}
	if errors.Is(err, context.Canceled) {
		logger.Info("Stopped by signal")
		return nil
	}
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func (a *app) runDaemon(ctx context.Context) error {
	cfg, logger, err := a.setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	socket := a.opts.listen
	if socket == autoSocket {
		socket = cfg.Daemon.Socket
	}
	workspace := a.opts.workspace
	if workspace == "" {
		workspace = cfg.Daemon.Workspace
	}

	d := daemon.New(daemon.Config{
		SocketPath:      socket,
		Workspace:       workspace,
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
	}, nil, func(sess *session.Session) *protocol.Server {
		return newServer(cfg, logger, sess)
	}, logger)
	return d.Run(ctx)
}
