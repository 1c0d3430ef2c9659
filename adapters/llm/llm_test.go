package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/satriahrh/kundli/server/domain/entities"
	"github.com/satriahrh/kundli/server/domain/repositories"
)

func TestOpenAIChatComplete(t *testing.T) {
	var received struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Unexpected authorization header %q", got)
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Saturn sits in your seventh house."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 40, "completion_tokens": 9, "total_tokens": 49}
		}`))
	}))
	defer server.Close()

	chat := NewOpenAIChat("test-key", server.URL, "gpt-4o-mini", zap.NewNop())
	resp, err := chat.Complete(context.Background(), repositories.ChatRequest{
		Messages: []repositories.ChatMessage{
			{Role: entities.TurnRoleSystem, Content: "You are Tina."},
			{Role: entities.TurnRoleAssistant, Content: "Namaste"},
			{Role: entities.TurnRoleUser, Content: "When will I marry?"},
		},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	if resp.Content != "Saturn sits in your seventh house." {
		t.Errorf("Unexpected content %q", resp.Content)
	}
	if resp.TokensUsed != 49 {
		t.Errorf("Expected 49 tokens, got %d", resp.TokensUsed)
	}
	if received.Model != "gpt-4o-mini" || len(received.Messages) != 3 {
		t.Fatalf("Unexpected request %+v", received)
	}
	roles := []string{received.Messages[0].Role, received.Messages[1].Role, received.Messages[2].Role}
	if strings.Join(roles, ",") != "system,assistant,user" {
		t.Errorf("Unexpected roles %v", roles)
	}
}

func TestOpenAIChatError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	chat := NewOpenAIChat("bad", server.URL, "gpt-4o-mini", zap.NewNop())
	if _, err := chat.Complete(context.Background(), repositories.ChatRequest{}); err == nil {
		t.Error("Expected an error for an unauthorized request")
	}
}

func TestMockChatEchoesClosingQuestion(t *testing.T) {
	resp, err := NewMockChat().Complete(context.Background(), repositories.ChatRequest{
		Messages: []repositories.ChatMessage{
			{Role: entities.TurnRoleSystem, Content: `Task: ... End with exactly: "Do you want to know the solution?"`},
			{Role: entities.TurnRoleUser, Content: "Tell me more"},
		},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !strings.HasSuffix(resp.Content, "Do you want to know the solution?") {
		t.Errorf("Unexpected mock reply %q", resp.Content)
	}
	if resp.TokensUsed == 0 {
		t.Error("Expected token usage to be reported")
	}
}

func TestToGeminiContents(t *testing.T) {
	system, contents := toGeminiContents([]repositories.ChatMessage{
		{Role: entities.TurnRoleSystem, Content: "rules"},
		{Role: entities.TurnRoleUser, Content: "hi"},
		{Role: entities.TurnRoleAssistant, Content: "namaste"},
	})
	if system != "rules" {
		t.Errorf("Expected system instruction, got %q", system)
	}
	if len(contents) != 2 || contents[0].Role != "user" || contents[1].Role != "model" {
		t.Errorf("Unexpected contents %+v", contents)
	}
}

func TestFactory(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Options{Provider: ProviderMock}, zap.NewNop()); err != nil {
		t.Errorf("Mock provider error = %v", err)
	}
	if _, err := New(ctx, Options{Provider: ProviderGemini}, zap.NewNop()); err == nil {
		t.Error("Expected error for Gemini without a key")
	}
	if _, err := New(ctx, Options{Provider: "claude"}, zap.NewNop()); err == nil {
		t.Error("Expected error for an unknown provider")
	}
}
