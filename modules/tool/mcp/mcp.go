// Package mcptool bridges external MCP servers into the tool registry.
// Each server runs as a child process speaking MCP over stdio; its tools
// are registered like native ones and routed through the approval gate
// under the same rules.
package mcptool

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/loopgate/loopgate/internal/tool"
)

// ServerConfig describes one stdio MCP server.
type ServerConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// Source is a connected MCP server whose tools can be registered.
type Source struct {
	name   string
	client *client.Client
	logger *slog.Logger
}

// Connect launches the server process and completes the MCP handshake.
func Connect(ctx context.Context, cfg ServerConfig, logger *slog.Logger) (*Source, error) {
	if logger == nil {
		logger = slog.Default()
	}

	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}

	c, err := client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("mcp: start server %s: %w", cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "loopgate", Version: "1.0"}

	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mcp: initialize %s: %w", cfg.Name, err)
	}

	logger.Info("mcp server connected", "server", cfg.Name)
	return &Source{name: cfg.Name, client: c, logger: logger}, nil
}

// Tools lists the server's tools converted to registry definitions. Each
// executor re-zips the registry's positional arguments into the named map
// the server expects and forwards the call.
func (s *Source) Tools(ctx context.Context) ([]tool.Definition, error) {
	res, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp: list tools on %s: %w", s.name, err)
	}

	defs := make([]tool.Definition, 0, len(res.Tools))
	for _, t := range res.Tools {
		defs = append(defs, s.convert(t))
	}
	return defs, nil
}

func (s *Source) convert(t mcp.Tool) tool.Definition {
	params := paramsFromSchema(t.InputSchema)
	name := t.Name

	return tool.Definition{
		Name:        name,
		Description: t.Description,
		Params:      params,
		Exec: func(ctx context.Context, args ...any) (string, error) {
			req := mcp.CallToolRequest{}
			req.Params.Name = name
			req.Params.Arguments = zipArgs(params, args)

			res, err := s.client.CallTool(ctx, req)
			if err != nil {
				return "", fmt.Errorf("mcp server %s: %w", s.name, err)
			}

			text := resultText(res)
			if res.IsError {
				return "", fmt.Errorf("mcp server %s: %s", s.name, text)
			}
			return text, nil
		},
	}
}

// Close terminates the server process.
func (s *Source) Close() error {
	return s.client.Close()
}
