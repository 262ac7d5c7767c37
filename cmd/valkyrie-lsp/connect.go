package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/valkyrie-lang/valkyrie-lsp/internal/session"
	"github.com/valkyrie-lang/valkyrie-lsp/internal/transport"
)

const dialTimeout = 2 * time.Second

func newConnectCmd(a *app) *cobra.Command {
	var socket string
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Bridge stdio to a running daemon",
		Long: `Connects an editor speaking LSP on stdin/stdout to a daemon started with
--listen. The socket comes from --socket or from the discovery file of the
workspace (default: the working directory).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := a.setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if socket == "" {
				workspace := a.opts.workspace
				if workspace == "" {
					if workspace, err = os.Getwd(); err != nil {
						return err
					}
				}
				disc, err := session.ReadDiscovery(workspace)
				if err != nil {
					return fmt.Errorf("no daemon for %s: %w", workspace, err)
				}
				socket = disc.SocketPath
			}

			remote, err := transport.DialSocket(socket, dialTimeout)
			if err != nil {
				return err
			}
			logger.Info("Connected to daemon", zap.String("socket", socket))
			return bridge(cmd.Context(), a.stdin, a.stdout, remote, cfg.Server.MaxMessageBytes)
		},
	}
	cmd.Flags().StringVar(&socket, "socket", "", "Daemon socket path")
	cmd.Flags().StringVar(&a.opts.workspace, "workspace", "", "Workspace root holding the discovery file")
	return cmd
}

// bridge copies frames between the editor on in/out and remote until either
// side ends the stream or ctx is done. Every frame is re-framed, so bodies
// keep their Content-Length headers on both sides.
func bridge(ctx context.Context, in io.Reader, out io.Writer, remote transport.Transport, maxSize int) error {
	local := transport.NewStdioTransport(in, out, maxSize)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	pump := func(from, to transport.Transport) error {
		defer cancel()
		for {
			body, err := from.Read()
			if err != nil {
				if errors.Is(err, io.EOF) || ctx.Err() != nil {
					return nil
				}
				return err
			}
			if err := to.Write(json.RawMessage(body)); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}

	g.Go(func() error { return pump(local, remote) })
	g.Go(func() error { return pump(remote, local) })
	g.Go(func() error {
		<-ctx.Done()
		return multierr.Append(local.Close(), remote.Close())
	})
	return g.Wait()
}
