package flow

import (
	"testing"

	"github.com/BTreeMap/BookingPipe/internal/models"
)

func boolPtr(b bool) *bool { return &b }

func checkedBookingSession() *models.Session {
	sess := newTestSession()
	sess.Collected = fullBookingSlots()
	sess.Context.Booking = models.BookingMarkers{
		CustomerChecked:     true,
		ExpertsListed:       true,
		AvailabilityChecked: true,
		Available:           true,
	}
	return sess
}

func TestMergeExtraction_NewOverwritesOld(t *testing.T) {
	sess := newTestSession()
	sess.Collected[models.SlotService] = "haircut"
	changed := MergeExtraction(ExtractionResult{
		Intent:   models.IntentBooking,
		Entities: map[models.Slot]string{models.SlotService: " manicure ", models.SlotPhone: "5551234567", models.SlotDate: ""},
	}, sess)
	if sess.Collected[models.SlotService] != "manicure" || sess.Collected[models.SlotPhone] != "5551234567" {
		t.Errorf("unexpected slots: %v", sess.Collected)
	}
	if sess.Collected.Has(models.SlotDate) {
		t.Error("empty values must not be merged")
	}
	if len(changed) != 2 {
		t.Errorf("expected 2 changed slots, got %v", changed)
	}
}

func TestMergeExtraction_IgnoresUnknownSlots(t *testing.T) {
	sess := newTestSession()
	MergeExtraction(ExtractionResult{Entities: map[models.Slot]string{"favourite_color": "blue"}}, sess)
	if len(sess.Collected) != 0 {
		t.Errorf("unknown slot was merged: %v", sess.Collected)
	}
}

func TestMergeExtraction_TimeChangeInvalidatesAvailability(t *testing.T) {
	sess := checkedBookingSession()
	sess.Context.Booking.AlternativesShown = true

	MergeExtraction(ExtractionResult{Intent: models.IntentBooking, Entities: map[models.Slot]string{models.SlotTime: "16:00"}}, sess)

	b := sess.Context.Booking
	if b.AvailabilityChecked || b.Available || b.AlternativesShown {
		t.Fatalf("expected availability reset, got %+v", b)
	}
	action := NewManager().Decide(models.IntentBooking, sess.Collected, sess.Context)
	call, ok := action.(models.ToolCall)
	if !ok || call.Tool != models.ToolCheckAvailability {
		t.Fatalf("expected check_availability again, got %#v", action)
	}
	if call.Params.DateTime != "2026-10-20T16:00:00" {
		t.Errorf("expected new time in params, got %q", call.Params.DateTime)
	}
}

func TestMergeExtraction_SameValueKeepsMarkers(t *testing.T) {
	sess := checkedBookingSession()
	MergeExtraction(ExtractionResult{Intent: models.IntentBooking, Entities: map[models.Slot]string{models.SlotTime: "14:00"}}, sess)
	if !sess.Context.Booking.AvailabilityChecked {
		t.Error("repeating the same value must not invalidate")
	}
}

func TestMergeExtraction_FirstValueDoesNotInvalidate(t *testing.T) {
	sess := checkedBookingSession()
	delete(sess.Collected, models.SlotDate)
	MergeExtraction(ExtractionResult{Intent: models.IntentBooking, Entities: map[models.Slot]string{models.SlotDate: "2026-10-22"}}, sess)
	if !sess.Context.Booking.AvailabilityChecked {
		t.Error("filling an empty slot must not invalidate")
	}
}

func TestMergeExtraction_PhoneChangeResetsCustomer(t *testing.T) {
	sess := checkedBookingSession()
	sess.Context.CustomerName = "Elif"
	sess.Context.Cancel.AppointmentsFetched = true
	MergeExtraction(ExtractionResult{Intent: models.IntentBooking, Entities: map[models.Slot]string{models.SlotPhone: "5559876543"}}, sess)
	if sess.Context.Booking.CustomerChecked || sess.Context.CustomerName != "" || sess.Context.Cancel.AppointmentsFetched {
		t.Errorf("expected customer state reset, got %+v", sess.Context)
	}
}

func TestMergeExtraction_ServiceChangeRelistsExperts(t *testing.T) {
	sess := checkedBookingSession()
	sess.Context.ExpertList = []string{"Ayse"}
	MergeExtraction(ExtractionResult{Intent: models.IntentBooking, Entities: map[models.Slot]string{models.SlotService: "manicure"}}, sess)
	if sess.Context.Booking.ExpertsListed || sess.Context.ExpertList != nil || sess.Context.Booking.AvailabilityChecked {
		t.Errorf("expected expert list and availability reset, got %+v", sess.Context)
	}
}

func TestMergeExtraction_ConfirmationRequiresPendingQuestion(t *testing.T) {
	sess := checkedBookingSession()
	MergeExtraction(ExtractionResult{Intent: models.IntentBooking, Confirmed: boolPtr(true)}, sess)
	if sess.Context.Booking.Confirmed {
		t.Error("yes without a pending confirmation must be ignored")
	}

	sess.Context.PendingConfirmation = models.IntentBooking
	MergeExtraction(ExtractionResult{Intent: models.IntentBooking, Confirmed: boolPtr(true)}, sess)
	if !sess.Context.Booking.Confirmed || sess.Context.ConfirmationPending() {
		t.Errorf("expected confirmation consumed, got %+v", sess.Context)
	}
}

func TestMergeExtraction_ConfirmationUsesPendingIntent(t *testing.T) {
	sess := newTestSession()
	sess.Context.PendingConfirmation = models.IntentCancel
	sess.Context.LastIntent = models.IntentBooking
	MergeExtraction(ExtractionResult{Intent: models.IntentChat, Confirmed: boolPtr(true)}, sess)
	if !sess.Context.Cancel.Confirmed || sess.Context.Booking.Confirmed {
		t.Errorf("expected cancel confirmation, got %+v", sess.Context)
	}
}

func TestMergeExtraction_DeclineAlwaysApplies(t *testing.T) {
	sess := checkedBookingSession()
	sess.Context.Booking.Confirmed = true
	MergeExtraction(ExtractionResult{Intent: models.IntentBooking, Confirmed: boolPtr(false)}, sess)
	if sess.Context.Booking.Confirmed {
		t.Error("expected decline to clear Confirmed")
	}
}

func TestMergeExtraction_CorrectionAfterConfirmRequiresNewConfirmation(t *testing.T) {
	sess := checkedBookingSession()
	sess.Context.Booking.Confirmed = true
	MergeExtraction(ExtractionResult{Intent: models.IntentBooking, Entities: map[models.Slot]string{models.SlotDate: "2026-10-23"}}, sess)
	if sess.Context.Booking.Confirmed {
		t.Error("a changed date must not keep the old confirmation")
	}
}

func TestMergeExtraction_ConfirmationForAnotherIntentIgnored(t *testing.T) {
	sess := checkedBookingSession()
	sess.Context.PendingConfirmation = models.IntentBooking
	MergeExtraction(ExtractionResult{Intent: models.IntentCancel, Confirmed: boolPtr(true)}, sess)
	if sess.Context.Booking.Confirmed || sess.Context.Cancel.Confirmed {
		t.Errorf("a yes about another intent must not confirm anything, got %+v", sess.Context)
	}
}

func TestMergeExtraction_AppointmentCodeResetsCancelConfirmation(t *testing.T) {
	sess := newTestSession()
	sess.Context.Cancel = models.CancelMarkers{AppointmentsFetched: true, Confirmed: true}
	sess.Collected[models.SlotAppointmentCode] = "12"
	MergeExtraction(ExtractionResult{Intent: models.IntentCancel, Entities: map[models.Slot]string{models.SlotAppointmentCode: "7"}}, sess)
	if sess.Context.Cancel.Confirmed {
		t.Error("a changed appointment code must not keep the old confirmation")
	}

	// A first code given while the question about the latest appointment is open.
	sess = newTestSession()
	sess.Context.Cancel = models.CancelMarkers{AppointmentsFetched: true}
	sess.Context.PendingConfirmation = models.IntentCancel
	MergeExtraction(ExtractionResult{Intent: models.IntentCancel, Confirmed: boolPtr(true), Entities: map[models.Slot]string{models.SlotAppointmentCode: "7"}}, sess)
	if sess.Context.Cancel.Confirmed || sess.Context.ConfirmationPending() {
		t.Errorf("expected the question to be asked again for the new code, got %+v", sess.Context)
	}
}
