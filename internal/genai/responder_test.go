package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/BookingPipe/internal/flow"
	"github.com/BTreeMap/BookingPipe/internal/models"
)

func TestRespondMessageActionsVerbatim(t *testing.T) {
	client := &fakeClient{reply: "should not be used"}
	r := NewResponder(client)
	actions := []models.NextAction{
		models.NewAskMissing(models.SlotPhone, "What is your phone number?"),
		models.NewConfirm("Shall I book it?"),
		models.NewAskAlternative("Shall I look for other times?"),
	}
	for _, a := range actions {
		got, err := r.Respond(context.Background(), flow.ResponseRequest{Action: a})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", a.Kind(), err)
		}
		if got != a.(models.MessageAction).ReplyText() {
			t.Errorf("%s: got %q", a.Kind(), got)
		}
	}
	if client.textCalls != 0 {
		t.Errorf("expected no model calls, got %d", client.textCalls)
	}
}

func TestRespondToolResultPrompt(t *testing.T) {
	client := &fakeClient{reply: "Your appointment is booked. Code: RNV42."}
	r := NewResponder(client, WithKnowledgeBase(KnowledgeBase("Salon Bella", "", "", nil)))
	result := models.ToolResult{Success: true, Appointment: &models.Appointment{Code: "RNV42"}}
	got, err := r.Respond(context.Background(), flow.ResponseRequest{
		Action:     models.NewToolCall(models.ToolCreateAppointment, models.ToolParams{}),
		ToolResult: &result,
		Context: models.Context{
			CustomerName: "Elif",
			ActiveCampaigns: []models.Campaign{
				{Name: "Autumn", Discount: "20"},
				{Name: "Student", Discount: "10"},
				{Name: "Hidden", Discount: "5"},
			},
		},
		UserText: "yes",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Your appointment is booked. Code: RNV42." {
		t.Errorf("unexpected reply %q", got)
	}
	prompt := systemText(t, client.messages)
	for _, want := range []string{"create_appointment", "RNV42", "Elif", "Autumn: 20% discount", "Student", "Salon Bella"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "Hidden") {
		t.Error("expected at most two campaigns in the prompt")
	}
}

func TestRespondChatUsesHistory(t *testing.T) {
	client := &fakeClient{reply: "Hello! How can I help?"}
	r := NewResponder(client)
	history := []models.Turn{
		{Role: models.RoleUser, Text: "hi"},
		{Role: models.RoleAssistant, Text: "hello"},
		{Role: models.RoleUser, Text: "how are you"},
	}
	if _, err := r.Respond(context.Background(), flow.ResponseRequest{Action: models.Chat{}, UserText: "how are you", History: history}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// system + 2 prior turns + current user text
	if len(client.messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(client.messages))
	}
	if client.messages[2].OfAssistant == nil {
		t.Error("expected the assistant turn to be replayed")
	}
	last := client.messages[3]
	if last.OfUser == nil || last.OfUser.Content.OfString.Value != "how are you" {
		t.Error("expected the current user text last")
	}
}

func TestRespondClientError(t *testing.T) {
	r := NewResponder(&fakeClient{err: errors.New("boom")})
	if _, err := r.Respond(context.Background(), flow.ResponseRequest{Action: models.Chat{}, UserText: "hi"}); err == nil {
		t.Error("expected error")
	}
}

func TestCleanReply(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "  Hello there  ", "Hello there"},
		{"response key", `{"response":"Booked!"}`, "Booked!"},
		{"message key", "```json\n{\"message\":\"See you\"}\n```", "See you"},
		{"other json", `{"foo":"bar"}`, `{"foo":"bar"}`},
		{"long", strings.Repeat("a", 310), strings.Repeat("a", 300) + "..."},
	}
	for _, c := range cases {
		if got := cleanReply(c.raw); got != c.want {
			t.Errorf("%s: got %q, want %q", c.name, got, c.want)
		}
	}
}
