package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/hyperengineering/dialectic"
	"github.com/hyperengineering/dialectic/docs"
	dialecticmcp "github.com/hyperengineering/dialectic/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for coding agent integration",
	Long: `Start a Model Context Protocol (MCP) server over stdio.

Coding agents can then analyze events, generate agent specs and report
outcomes through dialectic_* tools. Batch references (E1, E2, ...) live
for the lifetime of the server.

Configuration in an MCP client:

  {
    "mcpServers": {
      "dialectic": {
        "command": "dialectic",
        "args": ["mcp"],
        "env": {
          "DIALECTIC_STORE": "my-project"
        }
      }
    }
  }

Environment variables:
  DIALECTIC_STORAGE_DIR  Root directory for learning stores
  DIALECTIC_STORE        Store ID (default: default)
  DIALECTIC_BACKEND      sqlite (default) or json
  DIALECTIC_TUNING       YAML tuning file
  DIALECTIC_ADAPTIVE     Ask an Ollama model to propose agents
  DIALECTIC_MODEL        Ollama model name
  OLLAMA_HOST            Ollama server address
  DIALECTIC_LOG          Log file (stdio is reserved for the protocol)`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

var (
	mcpMetricsAddr string
	mcpDocsRoot    string
	mcpNoDocs      bool
)

func init() {
	mcpCmd.Flags().StringVar(&mcpMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9464)")
	mcpCmd.Flags().StringVar(&mcpDocsRoot, "docs-root", "", "Directory documentation targets are resolved against")
	mcpCmd.Flags().BoolVar(&mcpNoDocs, "no-docs", false, "Do not attach the documentation projector")

	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if mcpDocsRoot != "" {
		cfg.DocsRoot = mcpDocsRoot
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg)
	var opts []dialectic.Option
	if !mcpNoDocs {
		p, err := docs.New(docs.Options{Root: cfg.DocsRoot, Logger: logger})
		if err != nil {
			_ = logger.Close()
			return fmt.Errorf("documentation projector: %w", err)
		}
		opts = append(opts, dialectic.WithProjector(p))
	}

	s, err := openSessionWith(cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	if mcpMetricsAddr != "" {
		stop, err := serveMetrics(mcpMetricsAddr, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	return dialecticmcp.NewServer(s.client, version).Run()
}

// serveMetrics exposes the default Prometheus registry on addr until stop
// is called.
func serveMetrics(addr string, logger *dialectic.Logger) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", err, nil)
		}
	}()
	logger.Info("serving metrics", logrus.Fields{"addr": ln.Addr().String()})

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
