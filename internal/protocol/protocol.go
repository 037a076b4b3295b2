// Package protocol defines the messages exchanged over the role channels:
// the server-to-panel envelope and the control messages a client sends.
package protocol

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	hostErrors "github.com/remotekeys/host/internal/errors"
	"github.com/remotekeys/host/internal/input"
)

// MessageType is the envelope discriminator.
type MessageType string

// Envelope types.
const (
	TypeChallengeCreated  MessageType = "CHALLENGE_CREATED"
	TypeChallengeVerified MessageType = "CHALLENGE_VERIFIED"
	TypeCommand           MessageType = "COMMAND"
	TypeNotify            MessageType = "NOTIFY"
)

// ChallengeCreated is pushed to the waiting screen on every rotation.
type ChallengeCreated struct {
	ChallengeID string    `json:"challenge_id" validate:"required,uuid"`
	Pin         string    `json:"pin" validate:"required,len=6,numeric"`
	ExpiresAt   time.Time `json:"expires_at" validate:"required"`
}

// ChallengeVerified tells the waiting screen and admin a device paired.
type ChallengeVerified struct {
	DeviceID         string    `json:"device_id" validate:"required"`
	SessionExpiresAt time.Time `json:"session_expires_at" validate:"required"`
}

// CommandResult reports the outcome of a client control message.
type CommandResult struct {
	Succeeded     bool            `json:"succeeded"`
	EchoedCommand *ControlMessage `json:"echoedCommand,omitempty"`
	Error         string          `json:"error,omitempty"`
	ErrorCode     string          `json:"error_code,omitempty"`
}

// Notify carries a human-readable event for the admin.
type Notify struct {
	Message string `json:"message" validate:"required"`
}

// Envelope is the frame every role channel carries.
type Envelope struct {
	Type MessageType `json:"type" validate:"required,oneof=CHALLENGE_CREATED CHALLENGE_VERIFIED COMMAND NOTIFY"`
	Data any         `json:"data" validate:"-"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with the envelope rules and the
// keyname tag registered.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterStructValidation(envelopeMatchesData, Envelope{})
		if err := v.RegisterValidation("keyname", func(fl validator.FieldLevel) bool {
			return input.IsKnownKey(fl.Field().String())
		}); err != nil {
			panic(fmt.Sprintf("register keyname validation: %v", err))
		}
		validate = v
	})
	return validate
}

// envelopeMatchesData rejects an envelope whose data shape disagrees with its type.
func envelopeMatchesData(sl validator.StructLevel) {
	env := sl.Current().Interface().(Envelope)
	if env.Data == nil {
		sl.ReportError(env.Data, "Data", "data", "required", "")
		return
	}
	if !dataMatches(env.Type, env.Data) {
		sl.ReportError(env.Data, "Data", "data", "matches_type", string(env.Type))
	}
}

func dataMatches(t MessageType, data any) bool {
	switch data.(type) {
	case ChallengeCreated, *ChallengeCreated:
		return t == TypeChallengeCreated
	case ChallengeVerified, *ChallengeVerified:
		return t == TypeChallengeVerified
	case CommandResult, *CommandResult:
		return t == TypeCommand
	case Notify, *Notify:
		return t == TypeNotify
	default:
		return false
	}
}

// NewEnvelope builds an envelope, rejecting a type/data mismatch or an
// invalid payload.
func NewEnvelope(t MessageType, data any) (Envelope, error) {
	env := Envelope{Type: t, Data: data}
	v := Validator()
	if err := v.Struct(env); err != nil {
		return Envelope{}, hostErrors.Wrap(hostErrors.CodeProtocolInvalidEnvelope, fmt.Sprintf("invalid %s envelope", t), err)
	}
	switch data.(type) {
	case CommandResult, *CommandResult:
		// Results echo client input verbatim, including rejected messages.
	default:
		if err := v.Struct(data); err != nil {
			return Envelope{}, hostErrors.Wrap(hostErrors.CodeProtocolInvalidEnvelope, fmt.Sprintf("invalid %s data", t), err)
		}
	}
	return env, nil
}

// Marshal encodes the envelope as JSON.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// NewNotify builds a NOTIFY envelope.
func NewNotify(message string) (Envelope, error) {
	return NewEnvelope(TypeNotify, Notify{Message: message})
}

// NewCommandResult builds a COMMAND envelope. A nil err reports success.
func NewCommandResult(echo *ControlMessage, err error) Envelope {
	result := CommandResult{Succeeded: err == nil, EchoedCommand: echo}
	if err != nil {
		result.ErrorCode, result.Error = hostErrors.ToCodeAndMessage(err)
	}
	return Envelope{Type: TypeCommand, Data: result}
}

// RawEnvelope is an envelope with undecoded data, for readers of the channel.
type RawEnvelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}
