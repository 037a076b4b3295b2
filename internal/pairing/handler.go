package pairing

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	hostErrors "github.com/remotekeys/host/internal/errors"
	"github.com/remotekeys/host/internal/logging"
)

// ErrorResponse is the JSON body of every failed HTTP call.
type ErrorResponse struct {
	// Error is the short error name (e.g., "pair_invalid_pin").
	Error string `json:"error"`

	// ErrorCode is the stable dotted code (e.g., "auth.pair_invalid_pin").
	ErrorCode string `json:"error_code"`

	// Message is a human-readable description.
	Message string `json:"message"`

	// NextAction is the single primary recovery action.
	NextAction string `json:"next_action"`
}

// WriteError sends err as an ErrorResponse with the given status.
func WriteError(w http.ResponseWriter, status int, err error) {
	code, message := hostErrors.ToCodeAndMessage(err)
	short := code
	if i := strings.IndexByte(code, '.'); i >= 0 {
		short = code[i+1:]
	}
	WriteJSON(w, status, ErrorResponse{
		Error:      short,
		ErrorCode:  code,
		Message:    message,
		NextAction: hostErrors.GetNextAction(code),
	})
}

// WriteJSON sends v as a JSON body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ChallengeHandler serves POST /auth/challenge. The router restricts it to
// local callers.
type ChallengeHandler struct {
	svc *Service
	log logrus.FieldLogger
}

// NewChallengeHandler creates the challenge endpoint.
func NewChallengeHandler(svc *Service, logger logrus.FieldLogger) *ChallengeHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ChallengeHandler{svc: svc, log: logging.Component(logger, "pairing")}
}

func (h *ChallengeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.CreateChallenge()
	if err != nil {
		h.log.WithError(err).Error("create challenge")
		WriteError(w, http.StatusInternalServerError, err)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}

// VerifyHandler serves POST /auth/verify. A shared token bucket caps
// attempts across all callers on top of the per-PIN lockout.
type VerifyHandler struct {
	svc     *Service
	limiter *rate.Limiter
	log     logrus.FieldLogger
}

// NewVerifyHandler creates the verify endpoint allowing perMinute attempts
// per minute. Zero disables the limiter.
func NewVerifyHandler(svc *Service, perMinute int, logger logrus.FieldLogger) *VerifyHandler {
	if logger == nil {
		logger = logging.Discard()
	}
	h := &VerifyHandler{svc: svc, log: logging.Component(logger, "pairing")}
	if perMinute > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(float64(perMinute)/60), perMinute)
	}
	return h
}

var errRateLimited = hostErrors.New(hostErrors.CodeAuthPairRateLimited, "Too many pairing attempts, please wait")

func (h *VerifyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow() {
		h.log.WithField("remote", r.RemoteAddr).Warn("verify rate limit exceeded")
		WriteError(w, http.StatusTooManyRequests, errRateLimited)
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, hostErrors.Wrap(hostErrors.CodeAuthPairInvalidRequest, "Invalid JSON body", err))
		return
	}
	req.ChallengeID = strings.TrimSpace(req.ChallengeID)
	req.Pin = strings.TrimSpace(req.Pin)

	resp, err := h.svc.Verify(req)
	if err != nil {
		switch hostErrors.GetCode(err) {
		case hostErrors.CodeAuthPairMissingCredentials:
			WriteError(w, http.StatusBadRequest, err)
		case hostErrors.CodeAuthPairInvalidChallenge, hostErrors.CodeAuthPairInvalidPin:
			WriteError(w, http.StatusUnauthorized, err)
		default:
			h.log.WithError(err).Error("verify failed")
			WriteError(w, http.StatusInternalServerError, err)
		}
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}
