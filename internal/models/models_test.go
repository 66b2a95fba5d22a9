package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSessionCloneIsIndependent(t *testing.T) {
	s := NewSession("s1", time.Unix(0, 0))
	s.Collected[SlotPhone] = "05551234567"
	s.Context.ExpertList = []string{"Ayse"}
	s.Context.LatestAppointment = &Appointment{ID: "7", Service: "haircut"}
	s.AppendTurn(RoleUser, "hi", time.Unix(1, 0))

	c := s.Clone()
	c.Collected[SlotPhone] = "changed"
	c.Context.ExpertList[0] = "Mehmet"
	c.Context.LatestAppointment.Service = "nails"
	c.History[0].Text = "changed"

	if s.Collected[SlotPhone] != "05551234567" {
		t.Errorf("clone shares slots: %q", s.Collected[SlotPhone])
	}
	if s.Context.ExpertList[0] != "Ayse" {
		t.Errorf("clone shares expert list: %q", s.Context.ExpertList[0])
	}
	if s.Context.LatestAppointment.Service != "haircut" {
		t.Errorf("clone shares latest appointment: %q", s.Context.LatestAppointment.Service)
	}
	if s.History[0].Text != "hi" {
		t.Errorf("clone shares history: %q", s.History[0].Text)
	}
}

func TestCloneNilSession(t *testing.T) {
	var s *Session
	if s.Clone() != nil {
		t.Error("expected nil clone of nil session")
	}
}

func TestTruncateHistoryKeepsMostRecent(t *testing.T) {
	s := NewSession("s1", time.Now())
	for i := 0; i < 25; i++ {
		s.AppendTurn(RoleUser, string(rune('a'+i)), time.Now())
	}
	s.TruncateHistory(MaxHistoryEntries)
	if len(s.History) != MaxHistoryEntries {
		t.Fatalf("expected %d entries, got %d", MaxHistoryEntries, len(s.History))
	}
	if s.History[0].Text != "f" || s.History[19].Text != "y" {
		t.Errorf("unexpected retained range: first=%q last=%q", s.History[0].Text, s.History[19].Text)
	}
}

func TestRecentHistory(t *testing.T) {
	s := NewSession("s1", time.Now())
	if got := s.RecentHistory(6); got != nil {
		t.Errorf("expected nil for empty history, got %v", got)
	}
	for i := 0; i < 8; i++ {
		s.AppendTurn(RoleAssistant, string(rune('0'+i)), time.Now())
	}
	got := s.RecentHistory(6)
	if len(got) != 6 || got[0].Text != "2" || got[5].Text != "7" {
		t.Errorf("unexpected recent history: %+v", got)
	}
}

func TestParseIntent(t *testing.T) {
	cases := map[string]Intent{
		"booking":            IntentBooking,
		"cancel":             IntentCancel,
		"query_appointment":  IntentQuery,
		"campaign_inquiry":   IntentCampaignInquiry,
		"chat":               IntentChat,
		"cancel_appointment": IntentCancel,
		"weather":            IntentChat,
		"":                   IntentChat,
	}
	for in, want := range cases {
		if got := ParseIntent(in); got != want {
			t.Errorf("ParseIntent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestActionConstructorsNeverEmpty(t *testing.T) {
	if NewAskMissing(SlotExpertName, "").Message != "Could you tell me your expert name?" {
		t.Errorf("unexpected generic message: %q", NewAskMissing(SlotExpertName, "").Message)
	}
	if NewConfirm("").Message == "" {
		t.Error("confirm message should not be empty")
	}
	if NewAskAlternative("").Message == "" {
		t.Error("ask alternative message should not be empty")
	}
	var a NextAction = NewAskMissing(SlotPhone, "phone?")
	if _, ok := a.(MessageAction); !ok {
		t.Error("AskMissing should carry a reply text")
	}
	var c NextAction = Chat{}
	if _, ok := c.(MessageAction); ok {
		t.Error("Chat should not carry a reply text")
	}
}

func TestToolResultIsNotFound(t *testing.T) {
	cases := []struct {
		name string
		res  ToolResult
		want bool
	}{
		{"error field", ToolResult{Error: "customer not found"}, true},
		{"message field", ToolResult{Message: "Müşteri bulunamadı"}, true},
		{"upper case", ToolResult{Error: "Customer Not Found"}, true},
		{"other failure", ToolResult{Error: "database timeout"}, false},
		{"success", ToolResult{Success: true, Message: "not found"}, false},
	}
	for _, tc := range cases {
		if got := tc.res.IsNotFound(); got != tc.want {
			t.Errorf("%s: IsNotFound() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestToolResultDecodesNumericIDs(t *testing.T) {
	raw := `{"success":true,"appointments":[{"id":42,"date":"2025-01-10 14:00","service":"haircut","expert":"Ayse","status":"confirmed"}],"customer":{"id":7,"name":"Ali"}}`
	var res ToolResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Appointments[0].ID != "42" {
		t.Errorf("expected id 42, got %q", res.Appointments[0].ID)
	}
	if res.Customer.ID != "7" {
		t.Errorf("expected customer id 7, got %q", res.Customer.ID)
	}
	if res.Appointments[0].Reference() != "42" {
		t.Errorf("expected reference 42, got %q", res.Appointments[0].Reference())
	}
}

func TestIsDataQuery(t *testing.T) {
	if ToolCheckCustomer.IsDataQuery() {
		t.Error("check_customer must be re-decided after it runs")
	}
	if ToolCreateAppointment.IsDataQuery() {
		t.Error("create_appointment is mutating")
	}
	if !ToolCheckAvailability.IsDataQuery() {
		t.Error("check_availability is a data query")
	}
}

func TestMessageRequestValidate(t *testing.T) {
	r := MessageRequest{}
	if err := r.Validate(); err == nil {
		t.Error("expected error for empty text")
	}
	r.Text = "hello"
	if err := r.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
