package flow

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/BTreeMap/BookingPipe/internal/models"
	"github.com/BTreeMap/BookingPipe/internal/store"
	"github.com/BTreeMap/BookingPipe/internal/util"
)

// extractionHistoryLimit bounds the history passed to the extractor and responder.
const extractionHistoryLimit = 6

// Opts holds optional orchestrator collaborators.
type Opts struct {
	Matcher QuickMatcher
	Clock   func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Opts)

// WithPatternMatcher short-circuits small-talk turns through m.
func WithPatternMatcher(m QuickMatcher) Option {
	return func(o *Opts) {
		o.Matcher = m
	}
}

// WithClock overrides the time source used for history timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) {
		o.Clock = clock
	}
}

// Orchestrator runs one conversation turn end to end: it loads the session,
// resolves the turn into an action, executes at most the tool calls the flow
// requires and commits the session with the reply.
type Orchestrator struct {
	store     store.SessionStore
	matcher   QuickMatcher
	extractor Extractor
	responder Responder
	tools     ToolDispatcher
	manager   *Manager
	now       func() time.Time
}

// NewOrchestrator creates an orchestrator over the given store and collaborators.
func NewOrchestrator(st store.SessionStore, extractor Extractor, responder Responder, tools ToolDispatcher, opts ...Option) *Orchestrator {
	var o Opts
	for _, opt := range opts {
		opt(&o)
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return &Orchestrator{
		store:     st,
		matcher:   o.Matcher,
		extractor: extractor,
		responder: responder,
		tools:     tools,
		manager:   NewManager(),
		now:       o.Clock,
	}
}

// turn is the working state of one ProcessTurn call.
type turn struct {
	id   string
	text string
	sess *models.Session
	// safe is the last checkpoint committed if the turn fails.
	safe *models.Session
}

func (t *turn) checkpoint() {
	t.safe = t.sess.Clone()
}

// ProcessTurn handles one user message and returns the reply. Failures of the
// collaborators never surface as errors; only store failures are returned, and
// then together with the reply that was produced.
func (o *Orchestrator) ProcessTurn(ctx context.Context, sessionID, text string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", models.ErrEmptySessionID
	}
	t := &turn{id: util.GenerateTurnID(), text: text}

	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		slog.Error("Orchestrator.ProcessTurn: failed to load session", "session", sessionID, "turn", t.id, "error", err)
		return ApologyMessage, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if sess == nil {
		sess = models.NewSession(sessionID, o.now())
		slog.Info("Orchestrator.ProcessTurn: created session", "session", sessionID, "turn", t.id)
	}
	sess.AppendTurn(models.RoleUser, text, o.now())
	t.sess = sess
	t.checkpoint()

	reply, err := o.runTurn(ctx, t)
	if err != nil {
		slog.Error("Orchestrator.ProcessTurn: turn failed, restoring last checkpoint", "session", sessionID, "turn", t.id, "error", err)
		t.sess = t.safe
		reply = ApologyMessage
	}

	t.sess.AppendTurn(models.RoleAssistant, reply, o.now())
	t.sess.TruncateHistory(models.MaxHistoryEntries)
	t.sess.UpdatedAt = o.now()
	if err := o.store.SaveSession(ctx, t.sess); err != nil {
		slog.Error("Orchestrator.ProcessTurn: failed to save session", "session", sessionID, "turn", t.id, "error", err)
		return reply, fmt.Errorf("failed to save session %s: %w", sessionID, err)
	}
	return reply, nil
}

// runTurn executes the turn and converts a panic into an error.
func (o *Orchestrator) runTurn(ctx context.Context, t *turn) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Orchestrator.runTurn: recovered from panic", "session", t.sess.ID, "turn", t.id, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic during turn: %v", r)
		}
	}()
	return o.step(ctx, t)
}

func (o *Orchestrator) step(ctx context.Context, t *turn) (string, error) {
	sess := t.sess

	if o.matcher != nil {
		if reply, ok := o.matcher.Match(t.text); ok {
			slog.Debug("Orchestrator.step: pattern reply", "session", sess.ID, "turn", t.id)
			return reply, nil
		}
	}

	result := o.extract(ctx, t)
	intent := result.Intent
	if intent == models.IntentChat && len(result.Entities) > 0 && isFlowIntent(sess.Context.LastIntent) {
		// A bare slot value ("tomorrow at 3") continues the flow in progress.
		intent = sess.Context.LastIntent
		result.Intent = intent
	}
	if pending := sess.Context.PendingConfirmation; result.Confirmed != nil && pending != "" && !isFlowIntent(intent) {
		// A bare "yes"/"no" answers the outstanding question.
		intent = pending
		result.Intent = intent
	}

	confirmedYes := result.Confirmed != nil && *result.Confirmed
	approveAlternatives := sess.Context.AwaitingAlternativeApproval && (IsAffirmative(t.text) || confirmedYes)
	if approveAlternatives {
		// The "yes" answers the alternatives offer, not a pending confirmation.
		result.Confirmed = nil
	}

	changed := MergeExtraction(result, sess)
	dropForeignConfirmations(intent, &sess.Context)
	if isFlowIntent(intent) {
		sess.Context.LastIntent = intent
	}
	slog.Debug("Orchestrator.step: extraction merged", "session", sess.ID, "turn", t.id, "intent", intent, "changed", changed)
	t.checkpoint()

	if approveAlternatives && sess.Context.AwaitingAlternativeApproval {
		call := models.NewToolCall(models.ToolSuggestAlternativeTimes, models.ToolParams{
			ServiceType: sess.Collected[models.SlotService],
			Date:        sess.Collected[models.SlotDate],
			ExpertName:  sess.Collected[models.SlotExpertName],
		})
		res := o.execute(ctx, t, call)
		sess.Context.Booking.AlternativesShown = true
		sess.Context.AwaitingAlternativeApproval = false
		sess.Context.PendingConfirmation = ""
		t.checkpoint()
		return o.respond(ctx, t, call, &res), nil
	}

	declined := result.Confirmed != nil && !*result.Confirmed
	action := o.manager.Decide(intent, sess.Collected, sess.Context)
	if _, ok := action.(models.Confirm); ok && declined {
		// Asking the same question straight after a "no" would loop; let the
		// reply acknowledge the decline and wait for a change.
		action = models.Chat{}
	}
	var executed *models.ToolCall
	var toolResult *models.ToolResult
	if call, ok := action.(models.ToolCall); ok {
		res := o.execute(ctx, t, call)
		executed, toolResult = &call, &res
		if !call.Tool.IsDataQuery() && res.Success {
			action = o.manager.Decide(intent, sess.Collected, sess.Context)
			slog.Debug("Orchestrator.step: re-decided after tool", "session", sess.ID, "turn", t.id, "tool", call.Tool, "action", action.Kind())
			if next, ok := action.(models.ToolCall); ok {
				// One tool per turn; the next call runs on the following turn.
				slog.Debug("Orchestrator.step: deferring follow-up tool call", "session", sess.ID, "turn", t.id, "tool", call.Tool, "deferred", next.Tool)
			}
		}
	}

	// Only a question asked in this turn can be answered by the next one.
	sess.Context.PendingConfirmation = ""
	switch a := action.(type) {
	case models.AskAlternative:
		sess.Context.AwaitingAlternativeApproval = true
		return a.Message, nil
	case models.Confirm:
		sess.Context.PendingConfirmation = intent
		sess.Context.LastIntent = intent
		return a.Message, nil
	case models.AskMissing:
		return a.Message, nil
	}

	if executed != nil {
		return o.respond(ctx, t, *executed, toolResult), nil
	}
	return o.respond(ctx, t, action, nil), nil
}

func (o *Orchestrator) extract(ctx context.Context, t *turn) ExtractionResult {
	sess := t.sess
	if o.extractor == nil {
		return ExtractionResult{Intent: models.IntentChat}
	}
	result, err := o.extractor.Extract(ctx, ExtractionRequest{
		Text:      t.text,
		Collected: sess.Collected.Clone(),
		History:   sess.RecentHistory(extractionHistoryLimit),
		Context:   sess.Context.Clone(),
	})
	if err != nil {
		slog.Warn("Orchestrator.extract: extraction failed, falling back to chat", "session", sess.ID, "turn", t.id, "error", err)
		return ExtractionResult{Intent: models.IntentChat}
	}
	if result.Intent == "" {
		result.Intent = models.IntentChat
	}
	return result
}

// execute dispatches call and reconciles its result into the session.
func (o *Orchestrator) execute(ctx context.Context, t *turn, call models.ToolCall) models.ToolResult {
	sess := t.sess
	slog.Info("Orchestrator.execute: calling tool", "session", sess.ID, "turn", t.id, "tool", call.Tool, "params", formatToolValueForLog(call.Params))
	var res models.ToolResult
	if o.tools == nil {
		res = models.Failure(fmt.Sprintf("%s: %s", models.ErrUnknownTool, call.Tool))
	} else {
		res = o.tools.Dispatch(ctx, call.Tool, call.Params, sess.Clone())
	}
	ApplyToolResult(call.Tool, res, sess)
	t.checkpoint()
	if res.Success {
		slog.Debug("Orchestrator.execute: tool succeeded", "session", sess.ID, "turn", t.id, "tool", call.Tool, "result", formatToolValueForLog(res))
	} else {
		slog.Warn("Orchestrator.execute: tool failed", "session", sess.ID, "turn", t.id, "tool", call.Tool, "error", res.ErrorText(), "not_found", res.IsNotFound())
	}
	return res
}

// respond produces the reply for non-message actions, falling back to fixed
// sentences when the responder fails.
func (o *Orchestrator) respond(ctx context.Context, t *turn, action models.NextAction, result *models.ToolResult) string {
	sess := t.sess
	if o.responder == nil {
		return FallbackReply(action, result)
	}
	reply, err := o.responder.Respond(ctx, ResponseRequest{
		Action:     action,
		ToolResult: result,
		Context:    sess.Context.Clone(),
		Collected:  sess.Collected.Clone(),
		UserText:   t.text,
		History:    sess.RecentHistory(extractionHistoryLimit),
	})
	if err != nil {
		slog.Warn("Orchestrator.respond: response generation failed, using fallback", "session", sess.ID, "turn", t.id, "error", err)
		return FallbackReply(action, result)
	}
	if strings.TrimSpace(reply) == "" {
		slog.Warn("Orchestrator.respond: empty reply, using fallback", "session", sess.ID, "turn", t.id)
		return FallbackReply(action, result)
	}
	return reply
}

func isFlowIntent(i models.Intent) bool {
	switch i {
	case models.IntentBooking, models.IntentCancel, models.IntentQuery, models.IntentCampaignInquiry:
		return true
	}
	return false
}
