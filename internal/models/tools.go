// Package models defines the backend tool contract used by the flow controller.
package models

import (
	"encoding/json"
	"strings"
)

// ToolName identifies a backend operation.
type ToolName string

const (
	ToolCheckCustomer           ToolName = "check_customer"
	ToolCreateAppointment       ToolName = "create_appointment"
	ToolCancelAppointment       ToolName = "cancel_appointment"
	ToolGetCustomerAppointments ToolName = "get_customer_appointments"
	ToolCheckAvailability       ToolName = "check_availability"
	ToolListExperts             ToolName = "list_experts"
	ToolListServices            ToolName = "list_services"
	ToolCheckCampaigns          ToolName = "check_campaigns"
	ToolSuggestAlternativeTimes ToolName = "suggest_alternative_times"
	ToolCreateNewCustomer       ToolName = "create_new_customer"
)

// KnownTools lists every tool the flow controller can request.
var KnownTools = []ToolName{
	ToolCheckCustomer,
	ToolCreateAppointment,
	ToolCancelAppointment,
	ToolGetCustomerAppointments,
	ToolCheckAvailability,
	ToolListExperts,
	ToolListServices,
	ToolCheckCampaigns,
	ToolSuggestAlternativeTimes,
	ToolCreateNewCustomer,
}

// IsDataQuery reports whether the tool only reads data. Read-only tools do not
// trigger a second flow decision in the same turn.
func (t ToolName) IsDataQuery() bool {
	switch t {
	case ToolListExperts, ToolCheckAvailability, ToolGetCustomerAppointments,
		ToolCheckCampaigns, ToolSuggestAlternativeTimes, ToolListServices:
		return true
	}
	return false
}

// ToolParams carries the arguments of a tool call. Unused fields are empty.
type ToolParams struct {
	Phone           string `json:"phone,omitempty"`
	ServiceType     string `json:"service_type,omitempty"`
	DateTime        string `json:"date_time,omitempty"` // YYYY-MM-DDTHH:MM:00
	Date            string `json:"date,omitempty"`
	ExpertName      string `json:"expert_name,omitempty"`
	AppointmentCode string `json:"appointment_code,omitempty"`
	FullName        string `json:"full_name,omitempty"`
}

// FlexString decodes a JSON string or number into a string.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// String returns the underlying string.
func (f FlexString) String() string { return string(f) }

// Customer is a customer record returned by check_customer or create_new_customer.
type Customer struct {
	ID                FlexString `json:"id"`
	Name              string     `json:"name"`
	Phone             string     `json:"phone,omitempty"`
	TotalAppointments int        `json:"total_appointments,omitempty"`
}

// Appointment is an appointment record returned by the backend.
type Appointment struct {
	ID       FlexString `json:"id,omitempty"`
	Code     FlexString `json:"code,omitempty"`
	Date     string     `json:"date"`
	Service  string     `json:"service"`
	Expert   string     `json:"expert"`
	Status   string     `json:"status,omitempty"`
	Customer string     `json:"customer,omitempty"`
	Duration int        `json:"duration,omitempty"`
}

// Reference returns the identifier used to cancel the appointment.
func (a Appointment) Reference() string {
	if a.ID != "" {
		return a.ID.String()
	}
	return a.Code.String()
}

// Expert is an expert record returned by list_experts.
type Expert struct {
	Name        string   `json:"name"`
	Specialties []string `json:"specialties,omitempty"`
}

// AlternativeTime is a slot suggested by suggest_alternative_times.
type AlternativeTime struct {
	Date    string `json:"date"`
	Time    string `json:"time"`
	Expert  string `json:"expert"`
	DayType string `json:"day_type,omitempty"`
}

// Campaign is an active promotion returned by check_campaigns.
type Campaign struct {
	Name        string     `json:"name"`
	Code        FlexString `json:"code,omitempty"`
	Discount    FlexString `json:"discount,omitempty"`
	Description string     `json:"description,omitempty"`
	EndDate     string     `json:"end_date,omitempty"`
}

// ToolResult is the outcome of a tool call. Success is always set; the other
// fields are populated according to the tool.
type ToolResult struct {
	Success      bool              `json:"success"`
	Error        string            `json:"error,omitempty"`
	Message      string            `json:"message,omitempty"`
	Customer     *Customer         `json:"customer,omitempty"`
	CustomerName string            `json:"customer_name,omitempty"`
	Appointments []Appointment     `json:"appointments,omitempty"`
	Appointment  *Appointment      `json:"appointment,omitempty"`
	Available    *bool             `json:"available,omitempty"`
	Experts      []Expert          `json:"experts,omitempty"`
	Services     []string          `json:"services,omitempty"`
	Alternatives []AlternativeTime `json:"alternatives,omitempty"`
	Campaigns    []Campaign        `json:"campaigns,omitempty"`
}

// Failure returns an unsuccessful result with the given error text.
func Failure(errText string) ToolResult {
	return ToolResult{Success: false, Error: errText}
}

// notFoundPhrases are the backend phrases meaning a lookup matched nothing.
var notFoundPhrases = []string{"not found", "bulunamadı", "bulunamadi"}

// IsNotFound reports whether a failed result means the lookup matched nothing.
// Both the error and message fields are inspected.
func (r ToolResult) IsNotFound() bool {
	if r.Success {
		return false
	}
	for _, text := range []string{r.Error, r.Message} {
		lower := strings.ToLower(text)
		for _, phrase := range notFoundPhrases {
			if strings.Contains(lower, phrase) {
				return true
			}
		}
	}
	return false
}

// ErrorText returns the most descriptive failure text of the result.
func (r ToolResult) ErrorText() string {
	if r.Error != "" {
		return r.Error
	}
	return r.Message
}
