package protocol

import (
	"encoding/json"
	"fmt"

	hostErrors "github.com/remotekeys/host/internal/errors"
)

// ControlType is the kind of a client control message.
type ControlType string

// Control message types.
const (
	ControlCommand      ControlType = "command"
	ControlTyping       ControlType = "typing"
	ControlDisconnect   ControlType = "disconnect"
	ControlStatusUpdate ControlType = "status_update"
)

// ControlPayload carries the type-specific fields of a control message.
type ControlPayload struct {
	Command    string  `json:"command,omitempty" validate:"omitempty,keyname"`
	TextToType *string `json:"text_to_type,omitempty"`
	Message    string  `json:"message,omitempty" validate:"max=1024"`
}

// ControlMessage is what the control panel sends.
type ControlMessage struct {
	MessageType ControlType     `json:"message_type" validate:"required,oneof=command typing disconnect status_update"`
	Payload     *ControlPayload `json:"payload,omitempty"`
}

// ParseControl decodes and validates a control message. Malformed JSON and
// schema violations both return a server.invalid_message error; callers drop
// such messages.
func ParseControl(raw []byte) (*ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, hostErrors.Wrap(hostErrors.CodeServerInvalidMessage, "malformed control message", err)
	}
	if err := Validator().Struct(msg); err != nil {
		return nil, hostErrors.Wrap(hostErrors.CodeServerInvalidMessage, "invalid control message", err)
	}
	if msg.Payload != nil {
		if err := Validator().Struct(msg.Payload); err != nil {
			return nil, hostErrors.Wrap(hostErrors.CodeServerInvalidMessage, "invalid control payload", err)
		}
	}
	return &msg, nil
}

// Command returns payload.command, or a missing-field error.
func (m *ControlMessage) Command() (string, error) {
	if m.Payload == nil || m.Payload.Command == "" {
		return "", hostErrors.MissingField(string(m.MessageType), "command")
	}
	return m.Payload.Command, nil
}

// Text returns payload.text_to_type, or a missing-field error. An explicit
// empty string is a valid, if pointless, request.
func (m *ControlMessage) Text() (string, error) {
	if m.Payload == nil || m.Payload.TextToType == nil {
		return "", hostErrors.MissingField(string(m.MessageType), "text_to_type")
	}
	return *m.Payload.TextToType, nil
}

// String summarizes the message for logs without echoing typed text.
func (m *ControlMessage) String() string {
	switch {
	case m.Payload == nil:
		return string(m.MessageType)
	case m.Payload.Command != "":
		return fmt.Sprintf("%s(%s)", m.MessageType, m.Payload.Command)
	case m.Payload.TextToType != nil:
		return fmt.Sprintf("%s(%d chars)", m.MessageType, len([]rune(*m.Payload.TextToType)))
	default:
		return string(m.MessageType)
	}
}
