package websocket

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/satriahrh/kundli/server/domain"
)

var ErrInvalidMessage = errors.New("invalid message")

// MessageValidator checks client events before they reach the mediator
type MessageValidator struct {
	maxPayload int
}

// NewMessageValidator creates a validator. maxPayload bounds the base64 audio
// payload; zero disables the check.
func NewMessageValidator(maxPayload int) *MessageValidator {
	return &MessageValidator{maxPayload: maxPayload}
}

// ValidateMessage decodes and validates an incoming text frame
func (v *MessageValidator) ValidateMessage(messageBytes []byte) (domain.ClientMessage, error) {
	var msg domain.ClientMessage
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		return msg, fmt.Errorf("%w: invalid JSON format: %v", ErrInvalidMessage, err)
	}

	switch msg.Type {
	case domain.ClientEventConfig:
		if msg.PersonaID == "" {
			return msg, fmt.Errorf("%w: persona_id is required", ErrInvalidMessage)
		}
	case domain.ClientEventAudio:
		if msg.Payload == "" {
			return msg, fmt.Errorf("%w: payload is required", ErrInvalidMessage)
		}
		if v.maxPayload > 0 && len(msg.Payload) > v.maxPayload {
			return msg, fmt.Errorf("%w: payload exceeds %d bytes", ErrInvalidMessage, v.maxPayload)
		}
	case domain.ClientEventPing:
	case "":
		return msg, fmt.Errorf("%w: type is required", ErrInvalidMessage)
	default:
		return msg, fmt.Errorf("%w: unsupported message type: %s", ErrInvalidMessage, msg.Type)
	}
	return msg, nil
}
