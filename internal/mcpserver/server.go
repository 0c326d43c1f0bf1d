// Package mcpserver exposes the tool families over the Model Context
// Protocol, on stdio or SSE transports.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ThrownLemon/snow-mcp/internal/audit"
	"github.com/ThrownLemon/snow-mcp/internal/config"
	"github.com/ThrownLemon/snow-mcp/internal/observability"
	"github.com/ThrownLemon/snow-mcp/internal/servicenow"
	"github.com/ThrownLemon/snow-mcp/internal/tools"
)

// Toolset bundles one instance of every tool family.
type Toolset struct {
	Incidents       *tools.IncidentTools
	Catalog         *tools.CatalogTools
	Changesets      *tools.ChangesetTools
	Knowledge       *tools.KnowledgeTools
	ScriptIncludes  *tools.ScriptIncludeTools
	Tables          *tools.TableTools
	Workflows       *tools.WorkflowTools
	NaturalLanguage *tools.NaturalLanguageTools
}

// NewToolset wires every tool family to the shared client and audit
// publisher.
func NewToolset(client servicenow.Client, auditor *audit.Publisher, logger *slog.Logger) *Toolset {
	return &Toolset{
		Incidents:       tools.NewIncidentTools(client, auditor, logger),
		Catalog:         tools.NewCatalogTools(client, auditor, logger),
		Changesets:      tools.NewChangesetTools(client, auditor, logger),
		Knowledge:       tools.NewKnowledgeTools(client, auditor, logger),
		ScriptIncludes:  tools.NewScriptIncludeTools(client, auditor, logger),
		Tables:          tools.NewTableTools(client, auditor, logger),
		Workflows:       tools.NewWorkflowTools(client, auditor, logger),
		NaturalLanguage: tools.NewNaturalLanguageTools(client, auditor, logger),
	}
}

// Server hosts the MCP endpoint.
type Server struct {
	mcp    *server.MCPServer
	cfg    config.ServerConfig
	logger *slog.Logger
}

// New builds an MCP server and registers every tool.
func New(cfg config.ServerConfig, ts *Toolset, version string, logger *slog.Logger) *Server {
	s := server.NewMCPServer(
		"snow-mcp",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	registerTools(s, ts)
	return &Server{
		mcp:    s,
		cfg:    cfg,
		logger: logger.With("component", "mcp-server"),
	}
}

// Run serves MCP requests until the context is cancelled. The transport is
// chosen by configuration: stdio for editor/agent integration, SSE for
// networked clients.
func (s *Server) Run(ctx context.Context) error {
	switch s.cfg.Transport {
	case config.TransportStdio:
		s.logger.Info("serving mcp on stdio")
		stdio := server.NewStdioServer(s.mcp)
		return stdio.Listen(ctx, os.Stdin, os.Stdout)
	case config.TransportSSE:
		s.logger.Info("serving mcp over sse", "addr", s.cfg.Addr)
		sse := server.NewSSEServer(s.mcp)
		errCh := make(chan error, 1)
		go func() { errCh <- sse.Start(s.cfg.Addr) }()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sse.Shutdown(shutdownCtx); err != nil {
				s.logger.Warn("sse shutdown", "error", err)
			}
			return ctx.Err()
		}
	default:
		return fmt.Errorf("unsupported transport %q", s.cfg.Transport)
	}
}

// addTool registers one tool function. Arguments are bound into P, the
// envelope R is serialized back as the tool result, and invocation metrics
// are recorded per tool name.
func addTool[P any, R interface{ Succeeded() bool }](s *server.MCPServer, tool mcp.Tool, fn func(ctx context.Context, p P) R) {
	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		observability.Metrics.ToolInvocationsTotal.WithLabelValues(tool.Name).Inc()
		start := time.Now()

		var p P
		if err := req.BindArguments(&p); err != nil {
			observability.Metrics.ToolErrorsTotal.WithLabelValues(tool.Name).Inc()
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		res := fn(ctx, p)
		observability.Metrics.ToolDuration.WithLabelValues(tool.Name).Observe(time.Since(start).Seconds())
		if !res.Succeeded() {
			observability.Metrics.ToolErrorsTotal.WithLabelValues(tool.Name).Inc()
		}

		payload, err := json.Marshal(res)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(payload)), nil
	})
}
