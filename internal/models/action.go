package models

import "fmt"

// ActionKind identifies the variant of a NextAction.
type ActionKind string

const (
	ActionAskMissing     ActionKind = "ask_missing"
	ActionToolCall       ActionKind = "tool_call"
	ActionConfirm        ActionKind = "confirm"
	ActionAskAlternative ActionKind = "ask_alternative"
	ActionChat           ActionKind = "chat"
)

// NextAction is the decision produced for a turn. The set of implementations
// is closed: AskMissing, ToolCall, Confirm, AskAlternative and Chat.
type NextAction interface {
	Kind() ActionKind
	isNextAction()
}

// MessageAction is implemented by actions whose reply text is fixed by the flow.
type MessageAction interface {
	NextAction
	ReplyText() string
}

// AskMissing asks the user for an absent slot.
type AskMissing struct {
	Field   Slot
	Message string
}

// ToolCall runs a backend operation before the flow can continue.
type ToolCall struct {
	Tool   ToolName
	Params ToolParams
}

// Confirm asks the user to confirm a mutating operation.
type Confirm struct {
	Message string
}

// AskAlternative asks whether alternative times should be searched.
type AskAlternative struct {
	Message string
}

// Chat defers to free-form reply generation.
type Chat struct{}

func (AskMissing) Kind() ActionKind     { return ActionAskMissing }
func (ToolCall) Kind() ActionKind       { return ActionToolCall }
func (Confirm) Kind() ActionKind        { return ActionConfirm }
func (AskAlternative) Kind() ActionKind { return ActionAskAlternative }
func (Chat) Kind() ActionKind           { return ActionChat }

func (AskMissing) isNextAction()     {}
func (ToolCall) isNextAction()       {}
func (Confirm) isNextAction()        {}
func (AskAlternative) isNextAction() {}
func (Chat) isNextAction()           {}

func (a AskMissing) ReplyText() string     { return a.Message }
func (a Confirm) ReplyText() string        { return a.Message }
func (a AskAlternative) ReplyText() string { return a.Message }

// NewAskMissing builds an AskMissing action. An empty message is replaced by a generic question.
func NewAskMissing(field Slot, message string) AskMissing {
	if message == "" {
		message = fmt.Sprintf("Could you tell me your %s?", humanizeSlot(field))
	}
	return AskMissing{Field: field, Message: message}
}

// NewConfirm builds a Confirm action. An empty message is replaced by a generic question.
func NewConfirm(message string) Confirm {
	if message == "" {
		message = "Shall I go ahead?"
	}
	return Confirm{Message: message}
}

// NewAskAlternative builds an AskAlternative action. An empty message is replaced by the default offer.
func NewAskAlternative(message string) AskAlternative {
	if message == "" {
		message = "That time is not available. Would you like me to look for other available times?"
	}
	return AskAlternative{Message: message}
}

// NewToolCall builds a ToolCall action.
func NewToolCall(tool ToolName, params ToolParams) ToolCall {
	return ToolCall{Tool: tool, Params: params}
}

func humanizeSlot(s Slot) string {
	out := []byte(s)
	for i, c := range out {
		if c == '_' {
			out[i] = ' '
		}
	}
	return string(out)
}
