package models

import "time"

// MaxHistoryEntries is the number of history turns kept on a session after each turn.
const MaxHistoryEntries = 20

// Intent is the conversation goal recognized for a user turn.
type Intent string

const (
	// IntentBooking creates a new appointment.
	IntentBooking Intent = "booking"
	// IntentCancel cancels the customer's most recent appointment.
	IntentCancel Intent = "cancel"
	// IntentQuery lists the customer's appointments.
	IntentQuery Intent = "query_appointment"
	// IntentCampaignInquiry asks about active campaigns.
	IntentCampaignInquiry Intent = "campaign_inquiry"
	// IntentChat is free-form conversation with no deterministic flow.
	IntentChat Intent = "chat"
)

// ParseIntent maps an intent label to a known Intent. Unknown labels map to IntentChat.
func ParseIntent(label string) Intent {
	switch Intent(label) {
	case IntentBooking, IntentCancel, IntentQuery, IntentCampaignInquiry, IntentChat:
		return Intent(label)
	}
	switch label {
	case "book", "appointment":
		return IntentBooking
	case "cancel_appointment":
		return IntentCancel
	case "query", "query_appointments":
		return IntentQuery
	case "campaign", "campaigns":
		return IntentCampaignInquiry
	}
	return IntentChat
}

// Slot names a fact the booking flows need from the user.
type Slot string

const (
	SlotPhone           Slot = "phone"
	SlotService         Slot = "service"
	SlotExpertName      Slot = "expert_name"
	SlotDate            Slot = "date"
	SlotTime            Slot = "time"
	SlotAppointmentCode Slot = "appointment_code"
)

// KnownSlots lists every slot in the order they are usually collected.
var KnownSlots = []Slot{SlotPhone, SlotService, SlotExpertName, SlotDate, SlotTime, SlotAppointmentCode}

// IsKnownSlot reports whether s is one of KnownSlots.
func IsKnownSlot(s Slot) bool {
	for _, k := range KnownSlots {
		if k == s {
			return true
		}
	}
	return false
}

// Slots holds collected slot values. A slot is present when its value is non-empty.
type Slots map[Slot]string

// Has reports whether the slot has a non-empty value.
func (s Slots) Has(k Slot) bool {
	return s[k] != ""
}

// Clone returns an independent copy of the slots.
func (s Slots) Clone() Slots {
	out := make(Slots, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Role identifies the author of a history turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the conversation history.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// BookingMarkers records which booking checkpoints have been passed.
type BookingMarkers struct {
	CustomerChecked     bool `json:"customer_checked"`
	ExpertsListed       bool `json:"experts_listed"`
	AvailabilityChecked bool `json:"availability_checked"`
	Available           bool `json:"available"`
	AlternativesShown   bool `json:"alternatives_shown"`
	Confirmed           bool `json:"confirmed"`
	Booked              bool `json:"booked"` // create_appointment succeeded for the current slots
}

// ResetAvailability clears the availability checkpoint and everything after it.
func (m *BookingMarkers) ResetAvailability() {
	m.AvailabilityChecked = false
	m.Available = false
	m.AlternativesShown = false
	m.Booked = false
}

// CancelMarkers records which cancellation checkpoints have been passed.
type CancelMarkers struct {
	AppointmentsFetched bool `json:"appointments_fetched"`
	Confirmed           bool `json:"confirmed"`
}

// Context holds state markers and facts derived from tool results.
type Context struct {
	Booking BookingMarkers `json:"booking"`
	Cancel  CancelMarkers  `json:"cancel"`

	CustomerID    string `json:"customer_id,omitempty"`
	CustomerName  string `json:"customer_name,omitempty"`
	IsNewCustomer bool   `json:"is_new_customer"`

	Appointments        []Appointment `json:"appointments,omitempty"`
	LatestAppointment   *Appointment  `json:"latest_appointment,omitempty"`
	AppointmentCode     string        `json:"appointment_code,omitempty"`
	LastAppointmentCode string        `json:"last_appointment_code,omitempty"`

	ActiveCampaigns  []Campaign        `json:"active_campaigns,omitempty"`
	ExpertList       []string          `json:"expert_list,omitempty"`
	AlternativeTimes []AlternativeTime `json:"alternative_times,omitempty"`
	Services         []string          `json:"services,omitempty"`

	// Turn control flags carried between turns.
	AwaitingAlternativeApproval bool   `json:"awaiting_alternative_approval"`
	LastIntent                  Intent `json:"last_intent,omitempty"`

	// PendingConfirmation is the intent whose confirmation question is
	// outstanding; empty when none is.
	PendingConfirmation Intent `json:"pending_confirmation,omitempty"`
}

// ConfirmationPending reports whether a confirmation question is outstanding.
func (c Context) ConfirmationPending() bool {
	return c.PendingConfirmation != ""
}

// Clone returns a deep copy of the context.
func (c Context) Clone() Context {
	out := c
	if c.Appointments != nil {
		out.Appointments = append([]Appointment(nil), c.Appointments...)
	}
	if c.LatestAppointment != nil {
		latest := *c.LatestAppointment
		out.LatestAppointment = &latest
	}
	if c.ActiveCampaigns != nil {
		out.ActiveCampaigns = append([]Campaign(nil), c.ActiveCampaigns...)
	}
	if c.ExpertList != nil {
		out.ExpertList = append([]string(nil), c.ExpertList...)
	}
	if c.AlternativeTimes != nil {
		out.AlternativeTimes = append([]AlternativeTime(nil), c.AlternativeTimes...)
	}
	if c.Services != nil {
		out.Services = append([]string(nil), c.Services...)
	}
	return out
}

// Session is the per-conversation record persisted between turns.
type Session struct {
	ID        string    `json:"id"`
	Collected Slots     `json:"collected"`
	Context   Context   `json:"context"`
	History   []Turn    `json:"history"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession returns an empty session with the given id.
func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Collected: Slots{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the session. Clone of nil is nil.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.Collected != nil {
		out.Collected = s.Collected.Clone()
	} else {
		out.Collected = Slots{}
	}
	out.Context = s.Context.Clone()
	if s.History != nil {
		out.History = append([]Turn(nil), s.History...)
	}
	return &out
}

// AppendTurn adds a history entry.
func (s *Session) AppendTurn(role Role, text string, at time.Time) {
	s.History = append(s.History, Turn{Role: role, Text: text, Timestamp: at})
}

// TruncateHistory keeps only the most recent max entries.
func (s *Session) TruncateHistory(max int) {
	if max < 0 {
		max = 0
	}
	if len(s.History) <= max {
		return
	}
	kept := make([]Turn, max)
	copy(kept, s.History[len(s.History)-max:])
	s.History = kept
}

// RecentHistory returns up to n of the most recent history entries.
func (s *Session) RecentHistory(n int) []Turn {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	if len(s.History) <= n {
		return append([]Turn(nil), s.History...)
	}
	return append([]Turn(nil), s.History[len(s.History)-n:]...)
}
