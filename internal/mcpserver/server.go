// Package mcpserver exposes the agent's action catalog as MCP tools so other
// MCP clients can drive the same search and negotiation operations the REPL
// does.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpgo "github.com/mark3labs/mcp-go/server"

	"github.com/WolfverusWasTaken/cheapskate.ai/internal/agent"
)

// Server bridges the action registry to the MCP runtime. Tools share the
// dispatcher's browser session and negotiation store, so MCP calls and REPL
// turns see the same state.
type Server struct {
	registry  *agent.Registry
	mcpServer *mcpgo.MCPServer
}

// NewServer wraps every registered action as an MCP tool.
func NewServer(name, version string, registry *agent.Registry) *Server {
	srv := mcpgo.NewMCPServer(
		name,
		version,
		mcpgo.WithToolCapabilities(true),
		mcpgo.WithLogging(),
		mcpgo.WithRecovery(),
	)

	s := &Server{registry: registry, mcpServer: srv}
	for _, toolName := range registry.Names() {
		action, _ := registry.Get(toolName)
		s.registerAction(action)
	}
	return s
}

// Start serves MCP over stdio.
func (s *Server) Start(ctx context.Context) error {
	stdio := mcpgo.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// StartSSE hosts the server over HTTP SSE endpoints with graceful shutdown.
func (s *Server) StartSSE(ctx context.Context, port int) error {
	sseServer := mcpgo.NewSSEServer(s.mcpServer, mcpgo.WithBaseURL("http://localhost:"+strconv.Itoa(port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Printf("MCP SSE server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerAction(action *agent.Action) {
	schema := action.Parameters
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		raw = json.RawMessage(`{"type":"object"}`)
	}

	tool := mcp.NewToolWithRawSchema(action.Name, action.Description, raw)
	s.mcpServer.AddTool(tool, wrapAction(action))
}

func wrapAction(action *agent.Action) mcpgo.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]any{}
		}

		result, err := action.Handler(ctx, args)
		if err != nil {
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf("%s failed: %v", action.Name, err))},
				IsError: true,
			}, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(result)},
			IsError: false,
		}, nil
	}
}
