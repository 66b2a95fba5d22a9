package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/tidwall/gjson"

	"github.com/BTreeMap/BookingPipe/internal/flow"
	"github.com/BTreeMap/BookingPipe/internal/models"
)

const (
	// maxReplyRunes caps generated replies; longer ones are cut and suffixed with "...".
	maxReplyRunes = 300
	// maxPromptCampaigns is the number of active campaigns mentioned in a reply prompt.
	maxPromptCampaigns = 2
)

// Responder turns tool results and chat turns into user-facing replies.
type Responder struct {
	client ClientInterface
	cfg    promptConfig
}

// NewResponder creates a Responder backed by client.
func NewResponder(client ClientInterface, opts ...PromptOption) *Responder {
	return &Responder{client: client, cfg: newPromptConfig(opts)}
}

var _ flow.Responder = (*Responder)(nil)

// Respond implements flow.Responder. Actions that carry their own message are
// returned verbatim without calling the model.
func (r *Responder) Respond(ctx context.Context, req flow.ResponseRequest) (string, error) {
	if msg, ok := req.Action.(models.MessageAction); ok {
		return msg.ReplyText(), nil
	}
	if r.client == nil {
		return "", fmt.Errorf("responder has no client")
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if call, ok := req.Action.(models.ToolCall); ok && req.ToolResult != nil {
		prompt, err := r.toolPrompt(call.Tool, *req.ToolResult, req.Context)
		if err != nil {
			return "", err
		}
		messages = []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt),
			openai.UserMessage(req.UserText),
		}
	} else {
		messages = r.chatMessages(req)
	}

	raw, err := r.client.GenerateWithMessages(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("response generation failed: %w", err)
	}
	reply := cleanReply(raw)
	slog.Debug("Responder.Respond: reply generated", "action", req.Action.Kind(), "length", len(reply))
	return reply, nil
}

func (r *Responder) toolPrompt(tool models.ToolName, result models.ToolResult, c models.Context) (string, error) {
	resultJSON, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode tool result: %w", err)
	}
	customer := c.CustomerName
	if customer == "" {
		customer = "(unknown)"
	}

	var campaigns strings.Builder
	for i, camp := range c.ActiveCampaigns {
		if i == maxPromptCampaigns {
			break
		}
		if i == 0 {
			campaigns.WriteString("\n### ACTIVE CAMPAIGNS ###\n")
		}
		fmt.Fprintf(&campaigns, "- %s: %s%% discount\n", camp.Name, camp.Discount)
	}

	return fmt.Sprintf(`### TASK ###
Turn the tool result into a short, natural reply for the customer of %s. Answer in the language the customer uses.

### CONTEXT ###
Customer name: %s
%s
### TOOL RESULT ###
Tool: %s
Result:
%s

### RULES ###
1. Appointment created: give the appointment code and say you look forward to seeing them.
2. Appointment list: if empty, say there are no appointments. Otherwise list date, time, service and expert of the active ones only.
3. Alternative times: at most 3 options in a short list, then ask which one suits.
4. Availability: list the free slots briefly.
5. Experts: name them and ask which one they prefer.
6. Campaigns: mention them briefly when there are any.
7. Failure ("success": false): apologize, then offer an alternative or ask for the missing detail.
8. Warm and professional. Use the customer's name when known.
9. Two or three sentences at most. No emoji, no JSON, no markup.`,
		businessName(r.cfg.knowledgeBase), customer, campaigns.String(), tool, resultJSON), nil
}

func (r *Responder) chatMessages(req flow.ResponseRequest) []openai.ChatCompletionMessageParamUnion {
	system := fmt.Sprintf(`You are the booking assistant of the business below. Answer in the language the customer uses, in at most two sentences, without emoji.
If the customer seems to want an appointment, invite them to share the service, date and time they would like.

### BUSINESS ###
%s`, r.cfg.knowledgeBase)

	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(system)}
	history := req.History
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	// The current user text is usually the last history entry already.
	if n := len(history); n > 0 && history[n-1].Role == models.RoleUser && history[n-1].Text == req.UserText {
		history = history[:n-1]
	}
	for _, t := range history {
		if t.Role == models.RoleUser {
			messages = append(messages, openai.UserMessage(t.Text))
		} else {
			messages = append(messages, openai.AssistantMessage(t.Text))
		}
	}
	return append(messages, openai.UserMessage(req.UserText))
}

// cleanReply unwraps JSON replies and caps the reply length.
func cleanReply(raw string) string {
	reply := stripCodeFence(raw)
	if strings.HasPrefix(reply, "{") && gjson.Valid(reply) {
		root := gjson.Parse(reply)
		for _, key := range []string{"response", "message"} {
			if v := root.Get(key); v.Type == gjson.String && strings.TrimSpace(v.String()) != "" {
				reply = strings.TrimSpace(v.String())
				break
			}
		}
	}
	if runes := []rune(reply); len(runes) > maxReplyRunes {
		reply = string(runes[:maxReplyRunes]) + "..."
	}
	return reply
}

func businessName(kb string) string {
	for _, line := range strings.Split(kb, "\n") {
		if name, ok := strings.CutPrefix(line, "Business: "); ok {
			return name
		}
	}
	return "the business"
}
