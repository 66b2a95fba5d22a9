package genai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"

	"github.com/BTreeMap/BookingPipe/internal/flow"
	"github.com/BTreeMap/BookingPipe/internal/models"
)

// fakeClient implements ClientInterface and records the last call.
type fakeClient struct {
	reply       string
	err         error
	messages    []openai.ChatCompletionMessageParamUnion
	temperature float64
	jsonCalls   int
	textCalls   int
}

func (f *fakeClient) GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.textCalls++
	return f.reply, f.err
}

func (f *fakeClient) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	f.textCalls++
	f.messages = messages
	return f.reply, f.err
}

func (f *fakeClient) GenerateJSONWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, temperature float64) (string, error) {
	f.jsonCalls++
	f.messages = messages
	f.temperature = temperature
	return f.reply, f.err
}

func systemText(t *testing.T, messages []openai.ChatCompletionMessageParamUnion) string {
	t.Helper()
	if len(messages) == 0 || messages[0].OfSystem == nil {
		t.Fatalf("expected a leading system message, got %+v", messages)
	}
	return messages[0].OfSystem.Content.OfString.Value
}

func TestParseExtraction(t *testing.T) {
	raw := "```json\n" + `{"intent":"booking","entities":{"phone":"0532 123-45-67","service":"haircut","expert_name":null,"date":"2026-10-20","time":"9:30"},"confidence":0.92}` + "\n```"
	res, err := parseExtraction(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Intent != models.IntentBooking {
		t.Errorf("intent = %s, want booking", res.Intent)
	}
	want := map[models.Slot]string{
		models.SlotPhone:   "05321234567",
		models.SlotService: "haircut",
		models.SlotDate:    "2026-10-20",
		models.SlotTime:    "09:30",
	}
	if len(res.Entities) != len(want) {
		t.Errorf("unexpected entities: %v", res.Entities)
	}
	for k, v := range want {
		if res.Entities[k] != v {
			t.Errorf("%s = %q, want %q", k, res.Entities[k], v)
		}
	}
	if res.Confidence != 0.92 {
		t.Errorf("confidence = %v, want 0.92", res.Confidence)
	}
	if res.Confirmed != nil {
		t.Errorf("expected no confirmation signal, got %v", *res.Confirmed)
	}
}

func TestParseExtractionDropsInvalidEntities(t *testing.T) {
	res, err := parseExtraction(`Sure! {"intent":"booking","entities":{"phone":"12345","date":"20.10.2026","time":"25:99","service":"  "}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Entities) != 0 {
		t.Errorf("expected every entity dropped, got %v", res.Entities)
	}
	if res.Confidence != defaultConfidence {
		t.Errorf("expected default confidence, got %v", res.Confidence)
	}
}

func TestParseExtractionIntentMapping(t *testing.T) {
	cases := map[string]models.Intent{
		`{"intent":"CANCEL"}`:            models.IntentCancel,
		`{"intent":"query_appointment"}`: models.IntentQuery,
		`{"intent":"campaigns"}`:         models.IntentCampaignInquiry,
		`{"intent":"weather"}`:           models.IntentChat,
		`{}`:                             models.IntentChat,
	}
	for raw, want := range cases {
		res, err := parseExtraction(raw)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", raw, err)
		}
		if res.Intent != want {
			t.Errorf("%s: intent = %s, want %s", raw, res.Intent, want)
		}
	}
}

func TestParseExtractionConfirmed(t *testing.T) {
	res, err := parseExtraction(`{"intent":"booking","entities":{"confirmed":false}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Confirmed == nil || *res.Confirmed {
		t.Errorf("expected confirmed=false, got %v", res.Confirmed)
	}
	res, _ = parseExtraction(`{"intent":"booking","confirmed":true,"confidence":7}`)
	if res.Confirmed == nil || !*res.Confirmed {
		t.Errorf("expected confirmed=true, got %v", res.Confirmed)
	}
	if res.Confidence != 1 {
		t.Errorf("expected confidence clamped to 1, got %v", res.Confidence)
	}
}

func TestParseExtractionInvalid(t *testing.T) {
	for _, raw := range []string{"", "no json here", `{"intent": "booking"`} {
		if _, err := parseExtraction(raw); !errors.Is(err, ErrInvalidExtraction) {
			t.Errorf("%q: expected ErrInvalidExtraction, got %v", raw, err)
		}
	}
}

func TestExtractorPrompt(t *testing.T) {
	client := &fakeClient{reply: `{"intent":"booking","entities":{"date":"2026-10-16"}}`}
	now := func() time.Time { return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC) }
	ext := NewExtractor(client, WithClock(now), WithKnowledgeBase(KnowledgeBase("Salon Bella", "09:00-19:00", "", []string{"haircut", "manicure"})))

	history := []models.Turn{{Role: models.RoleUser, Text: "hi"}, {Role: models.RoleAssistant, Text: "hello"}}
	res, err := ext.Extract(context.Background(), flow.ExtractionRequest{
		Text:      "tomorrow please",
		Collected: models.Slots{models.SlotPhone: "05321234567"},
		History:   history,
		Context:   models.Context{PendingConfirmation: models.IntentBooking},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Entities[models.SlotDate] != "2026-10-16" {
		t.Errorf("unexpected entities: %v", res.Entities)
	}
	if client.jsonCalls != 1 || client.temperature != 0 {
		t.Errorf("expected one JSON call at temperature 0, got calls=%d temperature=%v", client.jsonCalls, client.temperature)
	}

	prompt := systemText(t, client.messages)
	for _, want := range []string{"2026-10-15", "2026-10-16", "Salon Bella", "haircut, manicure", "Phone: 05321234567", "User: hi", "Bot: hello", "confirmed"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if client.messages[1].OfUser == nil || client.messages[1].OfUser.Content.OfString.Value != "tomorrow please" {
		t.Errorf("expected the user text as the second message")
	}
}

func TestExtractorErrors(t *testing.T) {
	ext := NewExtractor(&fakeClient{err: errors.New("timeout")})
	if _, err := ext.Extract(context.Background(), flow.ExtractionRequest{Text: "hi"}); err == nil {
		t.Error("expected client error to propagate")
	}
	ext = NewExtractor(&fakeClient{reply: "I am not JSON"})
	if _, err := ext.Extract(context.Background(), flow.ExtractionRequest{Text: "hi"}); !errors.Is(err, ErrInvalidExtraction) {
		t.Errorf("expected ErrInvalidExtraction, got %v", err)
	}
}

func TestFormatHistoryKeepsRecentTurns(t *testing.T) {
	var history []models.Turn
	for i := 0; i < 10; i++ {
		history = append(history, models.Turn{Role: models.RoleUser, Text: string(rune('a' + i))})
	}
	out := formatHistory(history)
	if strings.Count(out, "\n") != historyLimit-1 {
		t.Errorf("expected %d lines, got %q", historyLimit, out)
	}
	if strings.Contains(out, "User: d") || !strings.Contains(out, "User: e") {
		t.Errorf("expected only the last %d turns, got %q", historyLimit, out)
	}
}
