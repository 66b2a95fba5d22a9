package flow

import (
	"log/slog"

	"github.com/BTreeMap/BookingPipe/internal/models"
)

// Manager decides the next action for a turn. Each intent is an ordered
// checklist; the first unmet step determines the action. There is no stored
// state id: the position in a flow is inferred from the slots and markers on
// every call, so Decide is idempotent and safe to replay.
type Manager struct{}

// NewManager creates a flow manager.
func NewManager() *Manager {
	return &Manager{}
}

// Decide returns the next action. It never mutates its inputs and never fails;
// unknown intents map to Chat.
func (m *Manager) Decide(intent models.Intent, collected models.Slots, fc models.Context) models.NextAction {
	switch intent {
	case models.IntentBooking:
		return m.decideBooking(collected, fc)
	case models.IntentCancel:
		return m.decideCancel(collected, fc)
	case models.IntentQuery:
		return m.decideQuery(collected)
	case models.IntentCampaignInquiry:
		return models.NewToolCall(models.ToolCheckCampaigns, models.ToolParams{Phone: collected[models.SlotPhone]})
	default:
		return models.Chat{}
	}
}

// BookingDateTime formats the date and time slots as the backend date_time parameter.
func BookingDateTime(collected models.Slots) string {
	return collected[models.SlotDate] + "T" + collected[models.SlotTime] + ":00"
}

func (m *Manager) decideBooking(collected models.Slots, fc models.Context) models.NextAction {
	b := fc.Booking
	switch {
	case !collected.Has(models.SlotPhone):
		return models.NewAskMissing(models.SlotPhone, MissingFieldMessage(models.SlotPhone))
	case !b.CustomerChecked:
		return models.NewToolCall(models.ToolCheckCustomer, models.ToolParams{Phone: collected[models.SlotPhone]})
	case !collected.Has(models.SlotService):
		return models.NewAskMissing(models.SlotService, MissingFieldMessage(models.SlotService))
	case !collected.Has(models.SlotExpertName):
		if !b.ExpertsListed {
			return models.NewToolCall(models.ToolListExperts, models.ToolParams{ServiceType: collected[models.SlotService]})
		}
		return models.NewAskMissing(models.SlotExpertName, expertQuestion(fc.ExpertList))
	case !collected.Has(models.SlotDate):
		return models.NewAskMissing(models.SlotDate, MissingFieldMessage(models.SlotDate))
	case !collected.Has(models.SlotTime):
		return models.NewAskMissing(models.SlotTime, MissingFieldMessage(models.SlotTime))
	case !b.AvailabilityChecked:
		return models.NewToolCall(models.ToolCheckAvailability, models.ToolParams{
			ServiceType: collected[models.SlotService],
			DateTime:    BookingDateTime(collected),
			Date:        collected[models.SlotDate],
			ExpertName:  collected[models.SlotExpertName],
		})
	case !b.Available:
		if !b.AlternativesShown {
			return models.NewAskAlternative(alternativeOfferMessage)
		}
		// The reply to the alternatives offer is left to free-form handling.
		return models.Chat{}
	case b.Booked:
		return models.Chat{}
	case !b.Confirmed:
		return models.NewConfirm(bookingConfirmationMessage(collected))
	case b.Confirmed:
		return models.NewToolCall(models.ToolCreateAppointment, models.ToolParams{
			Phone:       collected[models.SlotPhone],
			ServiceType: collected[models.SlotService],
			DateTime:    BookingDateTime(collected),
			ExpertName:  collected[models.SlotExpertName],
		})
	}
	slog.Warn("Manager.decideBooking: checklist exhausted without an action", "markers", b)
	return models.Chat{}
}

func (m *Manager) decideCancel(collected models.Slots, fc models.Context) models.NextAction {
	c := fc.Cancel
	switch {
	case !collected.Has(models.SlotPhone):
		return models.NewAskMissing(models.SlotPhone, MissingFieldMessage(models.SlotPhone))
	case !c.AppointmentsFetched:
		return models.NewToolCall(models.ToolGetCustomerAppointments, models.ToolParams{Phone: collected[models.SlotPhone]})
	case cancelTarget(collected, fc) == "":
		// Nothing to cancel; the reply explains that no appointment was found.
		return models.Chat{}
	case !c.Confirmed:
		code := cancelTarget(collected, fc)
		return models.NewConfirm(cancelConfirmationMessage(code, findAppointment(fc, code)))
	case c.Confirmed:
		return models.NewToolCall(models.ToolCancelAppointment, models.ToolParams{
			Phone:           collected[models.SlotPhone],
			AppointmentCode: cancelTarget(collected, fc),
		})
	}
	slog.Warn("Manager.decideCancel: checklist exhausted without an action", "markers", c)
	return models.Chat{}
}

// cancelTarget returns the appointment to cancel: a code given by the user
// wins over the most recent fetched appointment.
func cancelTarget(collected models.Slots, fc models.Context) string {
	if code := collected[models.SlotAppointmentCode]; code != "" {
		return code
	}
	return fc.AppointmentCode
}

// findAppointment returns the fetched appointment with the given id or code.
func findAppointment(fc models.Context, code string) *models.Appointment {
	if code == "" {
		return nil
	}
	for i := range fc.Appointments {
		a := fc.Appointments[i]
		if a.ID.String() == code || a.Code.String() == code {
			return &a
		}
	}
	if a := fc.LatestAppointment; a != nil && (a.ID.String() == code || a.Code.String() == code) {
		latest := *a
		return &latest
	}
	return nil
}

func (m *Manager) decideQuery(collected models.Slots) models.NextAction {
	if !collected.Has(models.SlotPhone) {
		return models.NewAskMissing(models.SlotPhone, MissingFieldMessage(models.SlotPhone))
	}
	return models.NewToolCall(models.ToolGetCustomerAppointments, models.ToolParams{Phone: collected[models.SlotPhone]})
}
