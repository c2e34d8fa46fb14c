package messenger

import "fmt"

// InstructionMessage is sent once, right after the YES verification handshake.
func InstructionMessage() string {
	return "You're all set! Text this number anytime and your messages will be saved to your journal. " +
		"Messages sent on the same day are combined into a single entry."
}

// ConfirmationMessage acknowledges the first journaled message of a day.
func ConfirmationMessage() string {
	return "Saved to your journal."
}

// BillingReminderMessage nudges an unsubscribed sender toward checkout.
func BillingReminderMessage(checkoutURL string) string {
	return fmt.Sprintf("Your journal subscription isn't active, so this message wasn't saved. Subscribe here: %s", checkoutURL)
}
