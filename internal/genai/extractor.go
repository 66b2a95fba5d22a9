package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/tidwall/gjson"

	"github.com/BTreeMap/BookingPipe/internal/flow"
	"github.com/BTreeMap/BookingPipe/internal/models"
)

// defaultConfidence is used when the model omits a confidence score.
const defaultConfidence = 0.8

// ErrInvalidExtraction is returned when the model reply holds no usable JSON object.
var ErrInvalidExtraction = errors.New("extraction reply is not a JSON object")

var phoneCleaner = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")

// Extractor classifies user turns and extracts slot values with a JSON-mode completion.
type Extractor struct {
	client ClientInterface
	cfg    promptConfig
}

// NewExtractor creates an Extractor backed by client.
func NewExtractor(client ClientInterface, opts ...PromptOption) *Extractor {
	return &Extractor{client: client, cfg: newPromptConfig(opts)}
}

var _ flow.Extractor = (*Extractor)(nil)

// Extract implements flow.Extractor.
func (e *Extractor) Extract(ctx context.Context, req flow.ExtractionRequest) (flow.ExtractionResult, error) {
	if e.client == nil {
		return flow.ExtractionResult{}, fmt.Errorf("extractor has no client")
	}
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(e.buildPrompt(req)),
		openai.UserMessage(req.Text),
	}
	raw, err := e.client.GenerateJSONWithMessages(ctx, messages, 0)
	if err != nil {
		return flow.ExtractionResult{}, fmt.Errorf("extraction request failed: %w", err)
	}
	result, err := parseExtraction(raw)
	if err != nil {
		slog.Warn("Extractor.Extract: unusable reply", "error", err, "reply", truncate(raw, 200))
		return flow.ExtractionResult{}, err
	}
	slog.Debug("Extractor.Extract: extracted", "intent", result.Intent, "entities", len(result.Entities), "confidence", result.Confidence)
	return result, nil
}

func (e *Extractor) buildPrompt(req flow.ExtractionRequest) string {
	today := e.cfg.now()
	todayStr := today.Format("2006-01-02")
	tomorrowStr := today.AddDate(0, 0, 1).Format("2006-01-02")

	var pending string
	if req.Context.ConfirmationPending() {
		pending = "\nThe assistant has just asked the user to confirm an operation. Set \"confirmed\" to true or false if the user answers it.\n"
	}

	return fmt.Sprintf(`### TASK ###
Identify the user's intent and extract booking details from the message. The user may write in Turkish or English.

### DATES ###
Today: %[1]s ("today", "bugün")
Tomorrow: %[2]s ("tomorrow", "yarın")

### BUSINESS ###
%[3]s

### ALREADY COLLECTED ###
%[4]s

### CONVERSATION ###
%[5]s
%[6]s
### INTENTS ###
- booking: wants a new appointment, or asks about services, experts, availability or times
- query_appointment: asks about their existing appointments
- cancel: wants to cancel an appointment
- campaign_inquiry: asks about campaigns, discounts or promotions
- chat: only greetings or unrelated small talk. Any question about the business is never chat.

### ENTITIES ###
- phone: digits only, e.g. "532 123 45 67" -> "05321234567"
- service: a service name from BUSINESS, matched loosely
- expert_name: the expert's name as written
- date: YYYY-MM-DD, resolve relative dates against Today
- time: HH:MM, "morning" -> "09:00", "afternoon" -> "14:00", "evening" -> "17:00"
- appointment_code: an appointment code the user quotes
Only return values the user stated in this message. Do not repeat ALREADY COLLECTED values.

### OUTPUT (JSON only) ###
{"intent": "booking|query_appointment|cancel|campaign_inquiry|chat", "entities": {"phone": null, "service": null, "expert_name": null, "date": null, "time": null, "appointment_code": null}, "confirmed": null, "confidence": 0.0}`,
		todayStr, tomorrowStr, e.cfg.knowledgeBase, formatCollected(req.Collected), formatHistory(req.History), pending)
}

// parseExtraction decodes a model reply. Invalid entity values are dropped.
func parseExtraction(raw string) (flow.ExtractionResult, error) {
	body := jsonObject(raw)
	if body == "" || !gjson.Valid(body) {
		return flow.ExtractionResult{}, fmt.Errorf("%w: %q", ErrInvalidExtraction, truncate(raw, 80))
	}
	root := gjson.Parse(body)

	result := flow.ExtractionResult{
		Intent:     models.ParseIntent(strings.ToLower(strings.TrimSpace(root.Get("intent").String()))),
		Entities:   map[models.Slot]string{},
		Confidence: defaultConfidence,
	}
	if c := root.Get("confidence"); c.Type == gjson.Number {
		result.Confidence = clamp01(c.Float())
	}

	entities := root.Get("entities")
	for _, slot := range models.KnownSlots {
		v := entities.Get(string(slot))
		if v.Type != gjson.String && v.Type != gjson.Number {
			continue
		}
		if value, ok := validateEntity(slot, v.String()); ok {
			result.Entities[slot] = value
		}
	}

	confirmed := root.Get("confirmed")
	if !confirmed.Exists() {
		confirmed = entities.Get("confirmed")
	}
	if confirmed.Type == gjson.True || confirmed.Type == gjson.False {
		b := confirmed.Bool()
		result.Confirmed = &b
	}
	return result, nil
}

// validateEntity normalizes a slot value and reports whether it is acceptable.
func validateEntity(slot models.Slot, raw string) (string, bool) {
	v := strings.TrimSpace(raw)
	if v == "" || strings.EqualFold(v, "null") {
		return "", false
	}
	switch slot {
	case models.SlotPhone:
		cleaned := phoneCleaner.Replace(v)
		if len(cleaned) < 10 || len(cleaned) > 11 || !isDigits(cleaned) {
			slog.Warn("Extractor: invalid phone dropped", "value", v)
			return "", false
		}
		return cleaned, true
	case models.SlotDate:
		if _, err := time.Parse("2006-01-02", v); err != nil {
			slog.Warn("Extractor: invalid date dropped", "value", v)
			return "", false
		}
		return v, true
	case models.SlotTime:
		t, err := time.Parse("15:04", v)
		if err != nil {
			slog.Warn("Extractor: invalid time dropped", "value", v)
			return "", false
		}
		return t.Format("15:04"), true
	}
	return v, true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
