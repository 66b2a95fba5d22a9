package flow

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/BookingPipe/internal/models"
)

// ApologyMessage is returned when a turn fails unexpectedly.
const ApologyMessage = "Sorry, something went wrong. Could you please try again?"

const (
	alternativeOfferMessage = "Unfortunately that time is not available. Would you like me to suggest other available times?"
	genericFailureMessage   = "Sorry, I couldn't complete that right now. Please try again in a moment."
	genericDefaultMessage   = "How can I help you with your appointment?"
)

var missingFieldMessages = map[models.Slot]string{
	models.SlotPhone:           "May I have your phone number?",
	models.SlotService:         "Which of our services would you like?",
	models.SlotExpertName:      "Which of our experts would you like to book with?",
	models.SlotDate:            "Which date works for you?",
	models.SlotTime:            "What time suits you?",
	models.SlotAppointmentCode: "Could you tell me the code or date of the appointment you want to cancel?",
}

// toolFallbackMessages replace the generated reply when response generation
// fails after a successful tool call.
var toolFallbackMessages = map[models.ToolName]string{
	models.ToolCheckCustomer:           "Thank you, I have found your details.",
	models.ToolCreateAppointment:       "Your appointment has been created.",
	models.ToolCancelAppointment:       "Your appointment has been cancelled.",
	models.ToolGetCustomerAppointments: "Here are your appointments.",
	models.ToolCheckAvailability:       "I have checked availability for the requested time.",
	models.ToolListExperts:             "Here are the experts available for that service.",
	models.ToolListServices:            "Here are the services we offer.",
	models.ToolCheckCampaigns:          "Here are our current campaigns.",
	models.ToolSuggestAlternativeTimes: "Here are some alternative times.",
	models.ToolCreateNewCustomer:       "Your registration is complete.",
}

// MissingFieldMessage returns the question asked for an absent slot.
func MissingFieldMessage(slot models.Slot) string {
	return missingFieldMessages[slot]
}

func expertQuestion(experts []string) string {
	msg := missingFieldMessages[models.SlotExpertName]
	if len(experts) == 0 {
		return msg
	}
	return fmt.Sprintf("%s Available experts: %s.", msg, strings.Join(experts, ", "))
}

func bookingConfirmationMessage(collected models.Slots) string {
	return fmt.Sprintf("Shall I book a %s appointment with %s on %s at %s?",
		collected[models.SlotService],
		collected[models.SlotExpertName],
		collected[models.SlotDate],
		collected[models.SlotTime])
}

// cancelConfirmationMessage describes the appointment that will be cancelled.
// An unknown code is named as is.
func cancelConfirmationMessage(code string, appt *models.Appointment) string {
	if appt == nil {
		if code == "" {
			return "Are you sure you want to cancel your appointment?"
		}
		return fmt.Sprintf("Are you sure you want to cancel appointment %s?", code)
	}
	if appt.Service == "" {
		return fmt.Sprintf("Are you sure you want to cancel your appointment on %s?", appt.Date)
	}
	return fmt.Sprintf("Are you sure you want to cancel your %s appointment on %s?", appt.Service, appt.Date)
}

// FallbackReply returns the fixed reply used when response generation fails.
func FallbackReply(action models.NextAction, result *models.ToolResult) string {
	if result != nil && !result.Success {
		return genericFailureMessage
	}
	if call, ok := action.(models.ToolCall); ok {
		if msg, ok := toolFallbackMessages[call.Tool]; ok {
			return msg
		}
	}
	return genericDefaultMessage
}
