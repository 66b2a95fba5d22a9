// Package flow implements the deterministic dialogue controller for appointment booking.
//
// A turn is resolved into exactly one NextAction by Manager.Decide, tool results are
// folded back into the session by ApplyToolResult, and Orchestrator sequences a whole
// turn against the injected extraction, response and tool collaborators.
package flow

import (
	"context"

	"github.com/BTreeMap/BookingPipe/internal/models"
)

// ExtractionRequest is the input of the intent and entity extraction collaborator.
type ExtractionRequest struct {
	Text      string
	Collected models.Slots
	History   []models.Turn
	Context   models.Context
}

// ExtractionResult is the typed output of extraction. Entities may be empty and
// Confirmed is nil when the user neither confirmed nor declined.
type ExtractionResult struct {
	Intent     models.Intent
	Entities   map[models.Slot]string
	Confirmed  *bool
	Confidence float64
}

// Extractor classifies a user turn and extracts slot values.
type Extractor interface {
	Extract(ctx context.Context, req ExtractionRequest) (ExtractionResult, error)
}

// ResponseRequest is the input of the response generation collaborator.
type ResponseRequest struct {
	Action     models.NextAction
	ToolResult *models.ToolResult
	Context    models.Context
	Collected  models.Slots
	UserText   string
	History    []models.Turn
}

// Responder produces the reply text for non-message actions.
type Responder interface {
	Respond(ctx context.Context, req ResponseRequest) (string, error)
}

// ToolDispatcher runs a backend tool. Failures are reported in the result,
// never as a Go error.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, tool models.ToolName, params models.ToolParams, session *models.Session) models.ToolResult
}

// QuickMatcher short-circuits small-talk turns.
type QuickMatcher interface {
	Match(text string) (string, bool)
}
