package mcpserver

import (
	"context"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/WolfverusWasTaken/cheapskate.ai/internal/agent"
)

func testRegistry() *agent.Registry {
	r := agent.NewRegistry()
	r.Register(&agent.Action{
		Name:        "echo",
		Description: "Echo a message back.",
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			msg, _ := args["message"].(string)
			return "echo: " + msg, nil
		},
	})
	r.Register(&agent.Action{
		Name:        "boom",
		Description: "Always fails.",
		Handler: func(context.Context, map[string]any) (string, error) {
			return "", fmt.Errorf("kaboom")
		},
	})
	return r
}

func TestNewServerRegistersActions(t *testing.T) {
	s := NewServer("test-server", "1.0.0", testRegistry())
	if s == nil {
		t.Fatal("expected non-nil server")
	}
	if s.mcpServer == nil {
		t.Fatal("expected an underlying MCP server")
	}
}

func TestWrapActionSuccess(t *testing.T) {
	reg := testRegistry()
	action, _ := reg.Get("echo")
	handler := wrapAction(action)

	req := mcp.CallToolRequest{}
	req.Params.Arguments = map[string]any{"message": "hi"}

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatal("expected success result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type %T, want TextContent", result.Content[0])
	}
	if text.Text != "echo: hi" {
		t.Errorf("text = %q", text.Text)
	}
}

func TestWrapActionErrorBecomesToolError(t *testing.T) {
	reg := testRegistry()
	action, _ := reg.Get("boom")
	handler := wrapAction(action)

	result, err := handler(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type %T, want TextContent", result.Content[0])
	}
	if text.Text != "boom failed: kaboom" {
		t.Errorf("text = %q", text.Text)
	}
}
