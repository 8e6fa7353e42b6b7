package llm

import (
	"testing"

	"github.com/WolfverusWasTaken/cheapskate.ai/internal/config"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.LLMConfig
		wantName string
		wantErr  bool
	}{
		{
			name:     "ollama",
			cfg:      config.LLMConfig{Provider: "ollama", OllamaURL: "http://localhost:11434", OllamaModel: "llama3"},
			wantName: "ollama",
		},
		{
			name:     "gemini",
			cfg:      config.LLMConfig{Provider: "gemini", GeminiAPIKey: "key", GeminiModel: "gemini-2.0-flash"},
			wantName: "gemini",
		},
		{
			name:    "unknown",
			cfg:     config.LLMConfig{Provider: "gpt"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != tt.wantName {
				t.Errorf("expected provider %q, got %q", tt.wantName, p.Name())
			}
		})
	}
}

func TestParseTextToolCalls(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantCalls int
		wantFirst string
	}{
		{
			name:      "empty",
			content:   "",
			wantCalls: 0,
		},
		{
			name:      "plain text",
			content:   "I found 3 listings for you.",
			wantCalls: 0,
		},
		{
			name:      "single object",
			content:   `{"name": "search", "arguments": {"query": "iphone", "max_price": 600}}`,
			wantCalls: 1,
			wantFirst: "search",
		},
		{
			name:      "array",
			content:   `[{"name": "search", "arguments": {"query": "iphone"}}, {"name": "extract_listings", "arguments": {}}]`,
			wantCalls: 2,
			wantFirst: "search",
		},
		{
			name:      "tagged",
			content:   `<tool_call>{"name": "open_listing", "arguments": {"listing_index": 2}}</tool_call>`,
			wantCalls: 1,
			wantFirst: "open_listing",
		},
		{
			name:      "tagged without closing tag",
			content:   `<tool_call>{"name": "take_screenshot", "arguments": {}}`,
			wantCalls: 1,
			wantFirst: "take_screenshot",
		},
		{
			name:      "object without name",
			content:   `{"arguments": {"query": "iphone"}}`,
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := parseTextToolCalls(tt.content)
			if len(calls) != tt.wantCalls {
				t.Fatalf("expected %d calls, got %d: %+v", tt.wantCalls, len(calls), calls)
			}
			if tt.wantCalls > 0 && calls[0].Name != tt.wantFirst {
				t.Errorf("expected first call %q, got %q", tt.wantFirst, calls[0].Name)
			}
		})
	}
}
