package anyllm

import (
	"context"
	"slices"
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/natuvoice/pkg/provider/llm"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		model    string
	}{
		{"empty provider", "", "gpt-4o"},
		{"empty model", "openai", ""},
		{"unsupported provider", "fakecloud", "some-model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.provider, tt.model, anyllmlib.WithAPIKey("dummy")); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNew_Backends(t *testing.T) {
	tests := []struct {
		provider string
		model    string
	}{
		{"openai", "gpt-4o-mini"},
		{"OpenAI", "gpt-4o-mini"},
		{"anthropic", "claude-3-5-haiku-latest"},
		{"gemini", "gemini-2.0-flash"},
		{"mistral", "mistral-small-latest"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p, err := New(tt.provider, tt.model, anyllmlib.WithAPIKey("test-key"))
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if p.Model() != tt.model {
				t.Errorf("model = %q, want %q", p.Model(), tt.model)
			}
			if p.Name() != strings.ToLower(tt.provider) {
				t.Errorf("name = %q", p.Name())
			}
		})
	}
}

func TestSupported(t *testing.T) {
	got := Supported()
	if !slices.IsSorted(got) {
		t.Errorf("Supported() not sorted: %v", got)
	}
	for _, name := range []string{"openai", "anthropic", "ollama", "llamafile"} {
		if !slices.Contains(got, name) {
			t.Errorf("Supported() missing %q", name)
		}
	}
}

func TestNew_OllamaNoAPIKey(t *testing.T) {
	if _, err := New("ollama", "llama3.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBuildParams(t *testing.T) {
	p := &Provider{model: "gemini-2.0-flash"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Eres NatuBot.",
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: "¿Tienen champú sin sulfatos?"}},
		Temperature:  0.2,
		MaxTokens:    300,
	})

	if params.Model != "gemini-2.0-flash" {
		t.Errorf("model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem || params.Messages[0].ContentString() != "Eres NatuBot." {
		t.Errorf("system message = %+v", params.Messages[0])
	}
	if params.Messages[1].Role != llm.RoleUser {
		t.Errorf("user role = %q", params.Messages[1].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.2 {
		t.Errorf("temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 300 {
		t.Errorf("max tokens = %v", params.MaxTokens)
	}
}

func TestBuildParams_Defaults(t *testing.T) {
	p := &Provider{model: "m"}
	params := p.buildParams(llm.CompletionRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}}})
	if len(params.Messages) != 1 {
		t.Errorf("system prompt must be omitted when empty, got %d messages", len(params.Messages))
	}
	if params.Temperature != nil || params.MaxTokens != nil {
		t.Error("zero temperature and max tokens must be left unset")
	}
}

func TestComplete_NoMessages(t *testing.T) {
	p := &Provider{model: "m"}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{SystemPrompt: "x"}); err == nil {
		t.Fatal("expected error for empty messages")
	}
}
