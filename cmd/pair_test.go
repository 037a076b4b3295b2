package main

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hostErrors "github.com/remotekeys/host/internal/errors"
	"github.com/remotekeys/host/internal/pairing"
)

func TestRequestChallenge(t *testing.T) {
	expires := time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/challenge", r.URL.Path)
		json.NewEncoder(w).Encode(pairing.ChallengeResponse{
			ChallengeID: "c-1",
			PinCode:     "042424",
			ExpiresAt:   expires,
		})
	}))
	defer ts.Close()

	resp, err := requestChallenge(strings.TrimPrefix(ts.URL, "http://"))
	require.NoError(t, err)
	assert.Equal(t, "c-1", resp.ChallengeID)
	assert.Equal(t, "042424", resp.PinCode)
	assert.True(t, expires.Equal(resp.ExpiresAt))
}

func TestRequestChallenge_Refused(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pairing.WriteError(w, http.StatusForbidden, errForTest)
	}))
	defer ts.Close()

	_, err := requestChallenge(strings.TrimPrefix(ts.URL, "http://"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.local_only")
}

func TestRequestChallenge_HostDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = requestChallenge(addr)
	assert.Error(t, err)
}

func TestFormatCodeWithSpaces(t *testing.T) {
	assert.Equal(t, "0 4 2 4 2 4", FormatCodeWithSpaces("042424"))
	assert.Equal(t, "", FormatCodeWithSpaces(""))
}

func TestDisplayPairingCode(t *testing.T) {
	var buf bytes.Buffer
	DisplayPairingCode(&buf, pairing.ChallengeResponse{PinCode: "123456", ExpiresAt: time.Now()}, "192.168.1.5:8000")

	out := buf.String()
	assert.Contains(t, out, "1 2 3 4 5 6")
	assert.Contains(t, out, "192.168.1.5:8000")
}

func TestDisplayQRCode(t *testing.T) {
	var buf bytes.Buffer
	DisplayQRCode(&buf, pairing.ChallengeResponse{ChallengeID: "c-1", PinCode: "123456", ExpiresAt: time.Now()}, "192.168.1.5:8000")

	out := buf.String()
	assert.Contains(t, out, "SCAN TO PAIR")
	assert.Contains(t, out, "1 2 3 4 5 6")
	assert.Contains(t, out, "c-1")
}

func TestLanAddr(t *testing.T) {
	assert.Equal(t, "192.168.1.5:8000", lanAddr("192.168.1.5:8000"))
	assert.Equal(t, "not-an-addr", lanAddr("not-an-addr"))

	_, port, err := net.SplitHostPort(lanAddr("127.0.0.1:8123"))
	require.NoError(t, err)
	assert.Equal(t, "8123", port)
}

var errForTest = hostErrors.New(hostErrors.CodeAuthLocalOnly, "pairing is only available from the host machine")
