package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Field limits enforced after extraction.
const (
	maxMessageIDLen = 100
	maxPhoneLen     = 20
	maxBodyLen      = 10_000
)

const eventMessageReceived = "message.received"

// AttachmentDescriptor is a provider-hosted media reference on an inbound
// message.
type AttachmentDescriptor struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Message is the canonical inbound message, resolved once at ingress from
// whichever payload shape the provider sent.
type Message struct {
	EventType      string
	MessageID      string
	Body           string
	FromPhone      string
	ConversationID string
	Attachments    []AttachmentDescriptor
}

// newFormat is the current provider payload: {event, properties}.
type newFormat struct {
	Event      string `json:"event"`
	Properties struct {
		ID      string `json:"id"`
		Content string `json:"content"`
		Contact struct {
			PhoneNumber string `json:"phone_number"`
		} `json:"contact"`
		Conversation struct {
			ID string `json:"id"`
		} `json:"conversation"`
		Attachments []AttachmentDescriptor `json:"attachments"`
	} `json:"properties"`
}

// legacyFormat is the older payload: {type, data}.
type legacyFormat struct {
	Type string `json:"type"`
	Data struct {
		ID           string `json:"id"`
		Body         string `json:"body"`
		Conversation struct {
			ID      string `json:"id"`
			Contact struct {
				PhoneNumber string `json:"phone_number"`
			} `json:"contact"`
		} `json:"conversation"`
		Attachments []AttachmentDescriptor `json:"attachments"`
	} `json:"data"`
}

// NormalizeResult carries either a canonical message or the decision to
// ignore the delivery (test pings, unknown shapes, non-message events).
type NormalizeResult struct {
	Ignore  bool
	Message Message
}

// Normalize parses raw JSON into the canonical message. Unknown shapes and
// non-message events yield Ignore; only field-level violations are errors.
func Normalize(raw []byte) (NormalizeResult, error) {
	var probe struct {
		Event string `json:"event"`
		Type  string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return NormalizeResult{}, &ValidationError{Reason: "malformed JSON body"}
	}

	var msg Message
	switch {
	case probe.Event != "":
		var p newFormat
		if err := json.Unmarshal(raw, &p); err != nil {
			return NormalizeResult{}, &ValidationError{Reason: "malformed payload"}
		}
		msg = Message{
			EventType:      p.Event,
			MessageID:      p.Properties.ID,
			Body:           p.Properties.Content,
			FromPhone:      p.Properties.Contact.PhoneNumber,
			ConversationID: p.Properties.Conversation.ID,
			Attachments:    p.Properties.Attachments,
		}
	case probe.Type != "":
		var p legacyFormat
		if err := json.Unmarshal(raw, &p); err != nil {
			return NormalizeResult{}, &ValidationError{Reason: "malformed payload"}
		}
		msg = Message{
			EventType:      p.Type,
			MessageID:      p.Data.ID,
			Body:           p.Data.Body,
			FromPhone:      p.Data.Conversation.Contact.PhoneNumber,
			ConversationID: p.Data.Conversation.ID,
			Attachments:    p.Data.Attachments,
		}
	default:
		// Neither shape: provider test ping or unknown event carrier.
		return NormalizeResult{Ignore: true}, nil
	}

	if msg.EventType != eventMessageReceived {
		return NormalizeResult{Ignore: true}, nil
	}

	if err := validateMessage(&msg); err != nil {
		return NormalizeResult{Message: msg}, err
	}
	return NormalizeResult{Message: msg}, nil
}

func validateMessage(msg *Message) error {
	if msg.MessageID == "" {
		return &ValidationError{Reason: "message id is required"}
	}
	if len(msg.MessageID) > maxMessageIDLen {
		return &ValidationError{Reason: fmt.Sprintf("message id exceeds %d characters", maxMessageIDLen)}
	}
	if strings.TrimSpace(msg.FromPhone) == "" {
		return &ValidationError{Reason: "sender phone is required"}
	}
	if len(msg.FromPhone) > maxPhoneLen {
		return &ValidationError{Reason: fmt.Sprintf("sender phone exceeds %d characters", maxPhoneLen)}
	}
	if strings.TrimSpace(msg.Body) == "" && len(msg.Attachments) == 0 {
		return &ValidationError{Reason: "message has no content"}
	}
	if len(msg.Body) > maxBodyLen {
		// The caller persists the truncated body with an error marker before
		// rejecting, so oversized sends stay inspectable.
		return &ValidationError{Reason: fmt.Sprintf("body exceeds %d characters", maxBodyLen), Oversized: true}
	}
	return nil
}
