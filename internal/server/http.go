package server

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	hostErrors "github.com/remotekeys/host/internal/errors"
	"github.com/remotekeys/host/internal/netinfo"
	"github.com/remotekeys/host/internal/pairing"
)

// qrSize is the edge length in pixels of the pairing QR PNG.
const qrSize = 256

var errLocalOnly = hostErrors.New(hostErrors.CodeAuthLocalOnly, "This endpoint is only available from the host machine")

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// localOnly rejects requests that do not come from this machine.
func (s *Server) localOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.deps.Guard.IsLocal(r) {
			s.log.WithFields(logrus.Fields{
				"remote": r.RemoteAddr,
				"path":   r.URL.Path,
			}).Warn("rejected non-local request")
			pairing.WriteError(w, http.StatusForbidden, errLocalOnly)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LANIPResponse is the body of GET /utils/get-lan-ip.
type LANIPResponse struct {
	IPAddress string `json:"ip_address"`
}

func (s *Server) handleLANIP(w http.ResponseWriter, r *http.Request) {
	pairing.WriteJSON(w, http.StatusOK, LANIPResponse{IPAddress: netinfo.LANIP()})
}

// PairURL is the QR payload a phone scans to pair with host.
func PairURL(host, challengeID string) string {
	return fmt.Sprintf("remotekeys://pair?host=%s&challenge=%s",
		url.QueryEscape(host),
		url.QueryEscape(challengeID))
}

func (s *Server) handleChallengeQR(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.deps.Pairing.ChallengeValid(id) {
		pairing.WriteError(w, http.StatusNotFound, pairing.ErrInvalidChallenge)
		return
	}

	png, err := qrcode.Encode(PairURL(netinfo.HostPort(s.Addr()), id), qrcode.Medium, qrSize)
	if err != nil {
		s.log.WithError(err).Error("render pairing qr")
		pairing.WriteError(w, http.StatusInternalServerError, hostErrors.Internal("render qr", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
