package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hostErrors "github.com/remotekeys/host/internal/errors"
)

func TestParseControl_Valid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ControlType
	}{
		{"command", `{"message_type":"command","payload":{"command":"VOLUME_UP"}}`, ControlCommand},
		{"combination command", `{"message_type":"command","payload":{"command":"ALT_TAB"}}`, ControlCommand},
		{"typing", `{"message_type":"typing","payload":{"text_to_type":"hello"}}`, ControlTyping},
		{"disconnect", `{"message_type":"disconnect"}`, ControlDisconnect},
		{"status", `{"message_type":"status_update","payload":{"message":"battery low"}}`, ControlStatusUpdate},
		{"command without payload", `{"message_type":"command"}`, ControlCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseControl([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.MessageType)
		})
	}
}

func TestParseControl_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"message_type":`},
		{"array", `[1,2,3]`},
		{"missing type", `{"payload":{"command":"UP"}}`},
		{"unknown type", `{"message_type":"alert"}`},
		{"unknown key", `{"message_type":"command","payload":{"command":"F13"}}`},
		{"lowercase key", `{"message_type":"command","payload":{"command":"up"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseControl([]byte(tt.raw))
			require.Error(t, err)
			assert.Equal(t, hostErrors.CodeServerInvalidMessage, hostErrors.GetCode(err))
		})
	}
}

func TestControlMessage_MissingFields(t *testing.T) {
	cmd, err := ParseControl([]byte(`{"message_type":"command","payload":{}}`))
	require.NoError(t, err)
	_, err = cmd.Command()
	assert.Equal(t, hostErrors.CodeInputMissingField, hostErrors.GetCode(err))
	assert.Contains(t, err.Error(), "payload.command")

	typing, err := ParseControl([]byte(`{"message_type":"typing"}`))
	require.NoError(t, err)
	_, err = typing.Text()
	assert.Contains(t, err.Error(), "payload.text_to_type")

	empty, err := ParseControl([]byte(`{"message_type":"typing","payload":{"text_to_type":""}}`))
	require.NoError(t, err)
	text, err := empty.Text()
	assert.NoError(t, err)
	assert.Empty(t, text)
}

func TestControlMessage_String(t *testing.T) {
	text := "secret"
	assert.Equal(t, "command(UP)", (&ControlMessage{MessageType: ControlCommand, Payload: &ControlPayload{Command: "UP"}}).String())
	assert.Equal(t, "typing(6 chars)", (&ControlMessage{MessageType: ControlTyping, Payload: &ControlPayload{TextToType: &text}}).String())
	assert.Equal(t, "disconnect", (&ControlMessage{MessageType: ControlDisconnect}).String())
}
