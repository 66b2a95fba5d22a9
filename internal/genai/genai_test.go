package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/openai/openai-go"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   openai.ChatCompletion
	err    error
	params []openai.ChatCompletionNewParams
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.params = append(m.params, params)
	return m.resp, m.err
}

func completion(content string) openai.ChatCompletion {
	return openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestGeneratePromptWithContext_Success(t *testing.T) {
	mock := &mockChatService{resp: completion("Hello World")}
	client := &Client{chat: mock, model: "test-model", temperature: 0.7}
	out, err := client.GeneratePromptWithContext(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected 'Hello World', got '%s'", out)
	}
	if len(mock.params) != 1 || len(mock.params[0].Messages) != 2 {
		t.Fatalf("expected one request with two messages, got %+v", mock.params)
	}
	if mock.params[0].Model != "test-model" {
		t.Errorf("expected model test-model, got %s", mock.params[0].Model)
	}
}

func TestGenerateWithMessages_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}}
	_, err := client.GenerateWithMessages(context.Background(), []openai.ChatCompletionMessageParamUnion{openai.UserMessage("hi")})
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestGenerateWithMessages_NoChoices(t *testing.T) {
	mockResp := openai.ChatCompletion{Choices: []openai.ChatCompletionChoice{}}
	client := &Client{chat: &mockChatService{resp: mockResp}}
	_, err := client.GenerateWithMessages(context.Background(), []openai.ChatCompletionMessageParamUnion{openai.UserMessage("hi")})
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected no choices returned error, got %v", err)
	}
}

func TestGenerateJSONWithMessages_SetsJSONMode(t *testing.T) {
	mock := &mockChatService{resp: completion(`{"intent":"chat"}`)}
	client := &Client{chat: mock, model: "test-model", temperature: 0.7, maxTokens: 50}
	out, err := client.GenerateJSONWithMessages(context.Background(), []openai.ChatCompletionMessageParamUnion{openai.UserMessage("hi")}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"intent":"chat"}` {
		t.Errorf("unexpected output %q", out)
	}
	params := mock.params[0]
	if params.ResponseFormat.OfJSONObject == nil {
		t.Error("expected JSON object response format")
	}
	if params.Temperature.Value != 0 || !params.Temperature.Valid() {
		t.Errorf("expected explicit temperature 0, got %+v", params.Temperature)
	}
	if params.MaxTokens.Value != 50 {
		t.Errorf("expected max tokens 50, got %d", params.MaxTokens.Value)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	_, err := NewClient()
	if err == nil {
		t.Error("expected error when API key not provided, got nil")
	}
}

func TestNewClient_WithKey(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"), WithModel("gpt-test"), WithTemperature(0.2))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if cli.model != "gpt-test" || cli.temperature != 0.2 {
		t.Errorf("options not applied: model=%s temperature=%v", cli.model, cli.temperature)
	}
}

func TestNewClient_Defaults(t *testing.T) {
	cli, err := NewClient(WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cli.model != DefaultModel || cli.temperature != DefaultTemperature {
		t.Errorf("unexpected defaults: model=%s temperature=%v", cli.model, cli.temperature)
	}
}
