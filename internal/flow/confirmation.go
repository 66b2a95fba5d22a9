package flow

import (
	"context"
	"log/slog"
	"strings"

	"github.com/BTreeMap/BookingPipe/internal/models"
	"github.com/BTreeMap/BookingPipe/internal/pattern"
)

var (
	affirmativeWords = []string{"yes", "yeah", "yep", "sure", "ok", "okay", "confirm", "correct", "go ahead", "evet", "onaylıyorum", "onayla", "tamam", "eminim", "doğru"}
	negativeWords    = []string{"no", "nope", "cancel", "don't", "do not", "not now", "hayır", "hayir", "vazgeçtim", "istemiyorum", "kalsın"}
)

// IsAffirmative reports whether text contains a "yes" word.
func IsAffirmative(text string) bool {
	return containsWord(text, affirmativeWords)
}

// IsNegative reports whether text contains a "no" word.
func IsNegative(text string) bool {
	return containsWord(text, negativeWords)
}

func containsWord(text string, words []string) bool {
	padded := " " + pattern.Normalize(text) + " "
	for _, w := range words {
		if strings.Contains(padded, " "+w+" ") {
			return true
		}
	}
	return false
}

// ConfirmationRouter answers yes/no turns locally while a confirmation
// question is outstanding, and delegates every other turn to Next.
type ConfirmationRouter struct {
	Next Extractor
}

// NewConfirmationRouter wraps next.
func NewConfirmationRouter(next Extractor) *ConfirmationRouter {
	return &ConfirmationRouter{Next: next}
}

// Extract implements Extractor.
func (r *ConfirmationRouter) Extract(ctx context.Context, req ExtractionRequest) (ExtractionResult, error) {
	if req.Context.ConfirmationPending() {
		var confirmed *bool
		switch {
		case IsAffirmative(req.Text):
			yes := true
			confirmed = &yes
		case IsNegative(req.Text):
			no := false
			confirmed = &no
		}
		if confirmed != nil {
			intent := req.Context.PendingConfirmation
			slog.Debug("ConfirmationRouter.Extract: resolved locally", "intent", intent, "confirmed", *confirmed)
			return ExtractionResult{Intent: intent, Confirmed: confirmed, Confidence: 1}, nil
		}
	}
	if r.Next == nil {
		return ExtractionResult{Intent: models.IntentChat}, nil
	}
	return r.Next.Extract(ctx, req)
}
