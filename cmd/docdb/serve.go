package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/docdb"
	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/mcptools"
	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Address = addr
		}

		logger := docdb.NewLogger(cfg.Logging, os.Stderr)
		rt, err := docdb.NewRuntime(cfg, logger)
		if err != nil {
			return err
		}
		defer rt.Close()

		srv := server.New(rt.Registry, logger, server.Config{
			Address:      cfg.Server.Address,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			MaxBodyBytes: cfg.Server.MaxBodyBytes,
		})
		if err := srv.Start(); err != nil {
			return err
		}
		logger.Info("docdb started", "address", srv.Addr(), "dataDir", cfg.Storage.DataDir, "sink", cfg.Pipeline.Sink)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		logger.Info("shutting down")
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancelShutdown()
		return srv.Stop(shutdownCtx)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the namespace as MCP tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")

		rt, err := openRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		store, err := rt.Registry.Get(namespace)
		if err != nil {
			return err
		}
		srv := mcptools.NewServer(docdb.New(store))

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		switch transport {
		case "stdio":
			rt.Logger.Info("mcp server starting", "transport", "stdio", "namespace", namespace)
			return srv.Run(ctx, &mcp.StdioTransport{})
		case "http":
			handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
				return srv
			}, nil)
			rt.Logger.Info("mcp server listening", "address", addr, "namespace", namespace)
			httpServer := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-ctx.Done()
				_ = httpServer.Close()
			}()
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		default:
			return fmt.Errorf("unknown transport: %s (use stdio or http)", transport)
		}
	},
}
