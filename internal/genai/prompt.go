package genai

import (
	"fmt"
	"strings"
	"time"

	"github.com/BTreeMap/BookingPipe/internal/models"
)

// historyLimit is the number of recent turns shown to the model.
const historyLimit = 6

// PromptOption configures the prompts built by Extractor and Responder.
type PromptOption func(*promptConfig)

type promptConfig struct {
	knowledgeBase string
	now           func() time.Time
}

func newPromptConfig(opts []PromptOption) promptConfig {
	cfg := promptConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.knowledgeBase == "" {
		cfg.knowledgeBase = "(no business information configured)"
	}
	return cfg
}

// WithKnowledgeBase sets the business summary included in every prompt.
func WithKnowledgeBase(kb string) PromptOption {
	return func(c *promptConfig) {
		c.knowledgeBase = strings.TrimSpace(kb)
	}
}

// WithClock overrides the clock used to resolve relative dates.
func WithClock(now func() time.Time) PromptOption {
	return func(c *promptConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// KnowledgeBase summarizes the business for the prompts. Empty fields are omitted.
func KnowledgeBase(name, hours, address string, services []string) string {
	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "Business: %s\n", name)
	}
	if hours != "" {
		fmt.Fprintf(&b, "Opening hours: %s\n", hours)
	}
	if address != "" {
		fmt.Fprintf(&b, "Address: %s\n", address)
	}
	if len(services) > 0 {
		fmt.Fprintf(&b, "Services: %s\n", strings.Join(services, ", "))
	}
	return strings.TrimSpace(b.String())
}

func formatHistory(history []models.Turn) string {
	if len(history) == 0 {
		return "(no conversation yet)"
	}
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	lines := make([]string, 0, len(history))
	for _, t := range history {
		role := "Bot"
		if t.Role == models.RoleUser {
			role = "User"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, t.Text))
	}
	return strings.Join(lines, "\n")
}

var collectedLabels = []struct {
	slot  models.Slot
	label string
}{
	{models.SlotPhone, "Phone"},
	{models.SlotService, "Service"},
	{models.SlotExpertName, "Expert"},
	{models.SlotDate, "Date"},
	{models.SlotTime, "Time"},
	{models.SlotAppointmentCode, "Appointment code"},
}

func formatCollected(collected models.Slots) string {
	var lines []string
	for _, l := range collectedLabels {
		if v := collected[l.slot]; v != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", l.label, v))
		}
	}
	if len(lines) == 0 {
		return "(nothing collected yet)"
	}
	return strings.Join(lines, "\n")
}

// stripCodeFence removes a surrounding markdown code fence, if any.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// jsonObject returns the outermost {...} span of s, or "" when there is none.
func jsonObject(s string) string {
	s = stripCodeFence(s)
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
