package flow

import (
	"log/slog"

	"github.com/BTreeMap/BookingPipe/internal/models"
)

// ApplyToolResult folds a tool result into the session context. A "not found"
// lookup is an expected answer and sets markers like a success; any other
// failure leaves every marker untouched so the same step is retried next turn.
func ApplyToolResult(tool models.ToolName, result models.ToolResult, sess *models.Session) {
	if sess == nil {
		return
	}
	fc := &sess.Context

	if !result.Success {
		switch {
		case tool == models.ToolCheckCustomer && result.IsNotFound():
			fc.CustomerID = ""
			fc.CustomerName = ""
			fc.IsNewCustomer = true
			fc.Booking.CustomerChecked = true
			slog.Debug("ApplyToolResult: customer not found, treating as new customer", "session", sess.ID)
		case tool == models.ToolGetCustomerAppointments && result.IsNotFound():
			fc.Appointments = nil
			fc.LatestAppointment = nil
			fc.AppointmentCode = ""
			fc.Cancel.AppointmentsFetched = true
			slog.Debug("ApplyToolResult: no appointments found", "session", sess.ID)
		default:
			slog.Warn("ApplyToolResult: tool failed, markers unchanged", "session", sess.ID, "tool", tool, "error", result.ErrorText())
		}
		return
	}

	switch tool {
	case models.ToolCheckCustomer:
		applyCustomer(fc, result.Customer)
		if result.Customer == nil {
			fc.IsNewCustomer = true
		}
		fc.Booking.CustomerChecked = true

	case models.ToolGetCustomerAppointments:
		fc.Appointments = append([]models.Appointment(nil), result.Appointments...)
		fc.LatestAppointment = nil
		fc.AppointmentCode = ""
		if len(fc.Appointments) > 0 {
			latest := fc.Appointments[0]
			fc.LatestAppointment = &latest
			fc.AppointmentCode = latest.Reference()
		}
		if result.CustomerName != "" {
			fc.CustomerName = result.CustomerName
		}
		fc.Cancel.AppointmentsFetched = true

	case models.ToolCheckAvailability:
		available := result.Available != nil && *result.Available
		fc.Booking.AvailabilityChecked = true
		fc.Booking.Available = available
		fc.AwaitingAlternativeApproval = !available

	case models.ToolListExperts:
		names := make([]string, 0, len(result.Experts))
		for _, e := range result.Experts {
			if e.Name != "" {
				names = append(names, e.Name)
			}
		}
		fc.ExpertList = names
		fc.Booking.ExpertsListed = true

	case models.ToolSuggestAlternativeTimes:
		fc.AlternativeTimes = append([]models.AlternativeTime(nil), result.Alternatives...)
		fc.Booking.AlternativesShown = true
		fc.AwaitingAlternativeApproval = false

	case models.ToolCheckCampaigns:
		fc.ActiveCampaigns = append([]models.Campaign{}, result.Campaigns...)

	case models.ToolListServices:
		fc.Services = append([]string(nil), result.Services...)

	case models.ToolCreateNewCustomer:
		applyCustomer(fc, result.Customer)
		fc.IsNewCustomer = false
		fc.Booking.CustomerChecked = true

	case models.ToolCreateAppointment:
		if result.Appointment != nil {
			fc.LastAppointmentCode = result.Appointment.Code.String()
		}
		fc.Booking.Booked = true
		fc.Booking.Confirmed = false
		fc.PendingConfirmation = ""

	case models.ToolCancelAppointment:
		fc.Cancel.Confirmed = false
		fc.Cancel.AppointmentsFetched = false
		fc.Appointments = nil
		fc.LatestAppointment = nil
		fc.AppointmentCode = ""
		fc.PendingConfirmation = ""
		delete(sess.Collected, models.SlotAppointmentCode)

	default:
		slog.Warn("ApplyToolResult: unknown tool, nothing applied", "session", sess.ID, "tool", tool)
	}
}

func applyCustomer(fc *models.Context, c *models.Customer) {
	if c == nil {
		return
	}
	fc.CustomerID = c.ID.String()
	fc.CustomerName = c.Name
	fc.IsNewCustomer = false
}
