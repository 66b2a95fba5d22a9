package flow

import (
	"log/slog"
	"strings"

	"github.com/BTreeMap/BookingPipe/internal/models"
)

// slotsAffectingAvailability invalidate a previous availability check when changed.
var slotsAffectingAvailability = map[models.Slot]bool{
	models.SlotDate:       true,
	models.SlotTime:       true,
	models.SlotExpertName: true,
	models.SlotService:    true,
}

// MergeExtraction applies an extraction result to the session and returns the
// slots whose value changed. A newly extracted non-empty value overwrites the
// stored one. Changing a slot that a checkpoint depends on clears that
// checkpoint so the flow re-runs the check.
func MergeExtraction(result ExtractionResult, sess *models.Session) []models.Slot {
	if sess == nil {
		return nil
	}
	if sess.Collected == nil {
		sess.Collected = models.Slots{}
	}
	applyConfirmation(result, sess)

	var changed []models.Slot
	for _, slot := range models.KnownSlots {
		value := strings.TrimSpace(result.Entities[slot])
		if value == "" {
			continue
		}
		previous := sess.Collected[slot]
		if previous == value {
			continue
		}
		sess.Collected[slot] = value
		changed = append(changed, slot)
		// The cancel target is optional, so even a first value replaces the
		// appointment a pending question was about.
		if previous == "" && slot != models.SlotAppointmentCode {
			continue
		}
		invalidateDependents(slot, sess)
		slog.Debug("MergeExtraction: slot overwritten", "session", sess.ID, "slot", slot, "old", previous, "new", value)
	}
	for slot := range result.Entities {
		if !models.IsKnownSlot(slot) {
			slog.Debug("MergeExtraction: ignoring unknown slot", "session", sess.ID, "slot", slot)
		}
	}
	return changed
}

// applyConfirmation consumes the yes/no signal. A "yes" only confirms the
// intent whose question is outstanding, and only when the turn is not about a
// different flow; a "no" is always honored.
func applyConfirmation(result ExtractionResult, sess *models.Session) {
	if result.Confirmed == nil {
		return
	}
	fc := &sess.Context
	pending := fc.PendingConfirmation
	yes := *result.Confirmed
	if yes {
		if pending == "" {
			slog.Debug("MergeExtraction: ignoring confirmation with no pending question", "session", sess.ID)
			return
		}
		if isFlowIntent(result.Intent) && result.Intent != pending {
			slog.Debug("MergeExtraction: ignoring confirmation for another intent", "session", sess.ID, "pending", pending, "intent", result.Intent)
			return
		}
	}

	target := pending
	if target == "" {
		target = result.Intent
		if target != models.IntentBooking && target != models.IntentCancel {
			target = fc.LastIntent
		}
	}
	setConfirmed(fc, target, yes)
	fc.PendingConfirmation = ""
}

func setConfirmed(fc *models.Context, intent models.Intent, confirmed bool) {
	switch intent {
	case models.IntentBooking:
		fc.Booking.Confirmed = confirmed
	case models.IntentCancel:
		fc.Cancel.Confirmed = confirmed
	}
}

// dropForeignConfirmations clears the confirmations of every flow other than
// intent, so a "yes" given to one question never authorizes another action.
func dropForeignConfirmations(intent models.Intent, fc *models.Context) {
	if !isFlowIntent(intent) {
		return
	}
	if intent != models.IntentBooking {
		fc.Booking.Confirmed = false
	}
	if intent != models.IntentCancel {
		fc.Cancel.Confirmed = false
	}
}

func invalidateDependents(slot models.Slot, sess *models.Session) {
	fc := &sess.Context
	if slot == models.SlotAppointmentCode {
		fc.Cancel.Confirmed = false
		clearPending(fc, models.IntentCancel)
	}
	if slotsAffectingAvailability[slot] {
		fc.Booking.ResetAvailability()
		fc.Booking.Confirmed = false
		clearPending(fc, models.IntentBooking)
		fc.AwaitingAlternativeApproval = false
		fc.AlternativeTimes = nil
		if slot == models.SlotService {
			fc.Booking.ExpertsListed = false
			fc.ExpertList = nil
		}
	}
	if slot == models.SlotPhone {
		fc.PendingConfirmation = ""
		fc.Booking.Confirmed = false
		fc.Booking.CustomerChecked = false
		fc.CustomerID = ""
		fc.CustomerName = ""
		fc.IsNewCustomer = false
		fc.Cancel.AppointmentsFetched = false
		fc.Cancel.Confirmed = false
		fc.Appointments = nil
		fc.LatestAppointment = nil
		fc.AppointmentCode = ""
	}
}

func clearPending(fc *models.Context, intent models.Intent) {
	if fc.PendingConfirmation == intent {
		fc.PendingConfirmation = ""
	}
}
