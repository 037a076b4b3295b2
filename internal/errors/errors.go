// Package errors provides standardized error codes for the host application.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (auth, broker, input, server)
//   - error: The specific error type within that domain
//
// These codes are stable and can be used by panel clients for programmatic
// error handling. Human-readable messages are provided alongside codes.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
const (
	// Auth domain - pairing and credential errors
	CodeAuthPairInvalidRequest     = "auth.pair_invalid_request"     // Body could not be decoded
	CodeAuthPairMissingCredentials = "auth.pair_missing_credentials" // Neither challenge_id nor pin supplied
	CodeAuthPairInvalidChallenge   = "auth.pair_invalid_challenge"   // Challenge not found, used, or expired
	CodeAuthPairInvalidPin         = "auth.pair_invalid_pin"         // PIN invalid, blocked, or not found
	CodeAuthPairRateLimited        = "auth.pair_rate_limited"        // Too many verify attempts
	CodeAuthPairInternal           = "auth.pair_internal"            // Token minting failed
	CodeAuthLocalOnly              = "auth.local_only"               // Endpoint restricted to the host's own network addresses
	CodeAuthTokenMissing           = "auth.token_missing"            // No device token presented
	CodeAuthTokenInvalid           = "auth.token_invalid"            // Token unknown
	CodeAuthTokenRevoked           = "auth.token_revoked"            // Token already claimed
	CodeAuthTokenExpired           = "auth.token_expired"            // Token past its expiry

	// Broker domain - role slot errors
	CodeBrokerNotAttached = "broker.not_attached" // Target role has no live connection
	CodeBrokerSendFailed  = "broker.send_failed"  // Transport write failed
	CodeBrokerUnknownRole = "broker.unknown_role" // Role outside admin/client/waiting
	CodeBrokerBadMode     = "broker.bad_mode"     // Payload does not fit the send mode

	// Input domain - keyboard controller errors
	CodeInputAlreadyRunning = "input.already_running" // A controlling session is already bound
	CodeInputNoController   = "input.no_controller"   // No controlling session bound
	CodeInputUnknownKey     = "input.unknown_key"     // Key name outside the recognized set
	CodeInputBackendFailed  = "input.backend_failed"  // Backend press/release/type failed
	CodeInputUnmappable     = "input.unmappable"      // Character has no key mapping
	CodeInputRateLimited    = "input.rate_limited"    // Too many control messages per second
	CodeInputMissingField   = "input.missing_field"   // Control message lacks its payload field

	// Keep-awake domain - sleep inhibitor errors
	CodeKeepAwakeUnsupported   = "keepawake.unsupported"    // No inhibitor tool on this host
	CodeKeepAwakeAcquireFailed = "keepawake.acquire_failed" // Inhibitor failed to start

	// Protocol domain - wire envelope errors
	CodeProtocolInvalidEnvelope = "protocol.invalid_envelope" // Type and data disagree

	// Server domain - WebSocket and network errors
	CodeServerUpgradeFailed  = "server.upgrade_failed"  // WebSocket upgrade failed
	CodeServerInvalidMessage = "server.invalid_message" // Malformed or invalid message

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal server error
)

// nextActions maps codes to the single primary recovery action for the operator.
var nextActions = map[string]string{
	CodeAuthPairInvalidRequest:     "Send a JSON body with challenge_id or pin.",
	CodeAuthPairMissingCredentials: "Provide the challenge_id from the QR code or the 6-digit PIN.",
	CodeAuthPairInvalidChallenge:   "Scan the current QR code on the waiting screen.",
	CodeAuthPairInvalidPin:         "Enter the PIN currently shown on the waiting screen.",
	CodeAuthPairRateLimited:        "Wait a minute before trying again.",
	CodeAuthPairInternal:           "Retry pairing; check host logs if it keeps failing.",
	CodeAuthLocalOnly:              "Run this request on the host machine.",
	CodeAuthTokenMissing:           "Pair the device first to obtain a device token.",
	CodeAuthTokenInvalid:           "Pair the device again.",
	CodeAuthTokenRevoked:           "Pair the device again; device tokens open one connection.",
	CodeAuthTokenExpired:           "Pair the device again.",
	CodeInputAlreadyRunning:        "Disconnect the other control panel first.",
	CodeInputNoController:          "Reconnect the control panel.",
	CodeInputUnknownKey:            "Use one of the supported key names.",
	CodeInputRateLimited:           "Slow down input.",
	CodeKeepAwakeUnsupported:       "Install systemd-inhibit (Linux) or caffeinate (macOS), or disable keep_awake.",
}

// GetNextAction returns the recovery hint for a code, or a generic hint.
func GetNextAction(code string) string {
	if action, ok := nextActions[code]; ok {
		return action
	}
	return "Retry the request; check host logs if it keeps failing."
}

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "input.unknown_key")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a CodedError with the same code.
// Sentinels built with New therefore match wrapped copies carrying extra detail.
func (e *CodedError) Is(target error) bool {
	var t *CodedError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// Falls back to CodeUnknown for unrecognized errors.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
// If the error is a CodedError, returns its message.
// Otherwise, returns the error's Error() string.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for converting errors to client responses.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// InvalidMessage creates a "server.invalid_message" error.
func InvalidMessage(reason string) *CodedError {
	return New(CodeServerInvalidMessage, reason)
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}

// NotAttached creates a "broker.not_attached" error for the given role.
func NotAttached(role string) *CodedError {
	return New(CodeBrokerNotAttached, fmt.Sprintf("no %s connection attached", role))
}

// SendFailed creates a "broker.send_failed" error.
// The role slot has already been cleared when this is returned.
func SendFailed(role string, cause error) *CodedError {
	return Wrap(CodeBrokerSendFailed, fmt.Sprintf("send to %s failed", role), cause)
}

// UnknownKey creates an "input.unknown_key" error naming the rejected key.
func UnknownKey(key string) *CodedError {
	return New(CodeInputUnknownKey, fmt.Sprintf("unknown key: %s", key))
}

// MissingField creates an "input.missing_field" error for a control message.
func MissingField(messageType, field string) *CodedError {
	return New(CodeInputMissingField, fmt.Sprintf("%s message requires payload.%s", messageType, field))
}
