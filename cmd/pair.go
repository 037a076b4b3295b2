package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/remotekeys/host/internal/netinfo"
	"github.com/remotekeys/host/internal/pairing"
	"github.com/remotekeys/host/internal/server"
)

var (
	pairAddr string
	pairQR   bool
)

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Print a pairing PIN from the running host",
	Long: `Ask the running host for a fresh challenge and print its PIN.

The host only issues challenges to requests from this machine, so run this
on the host itself. The PIN is valid for 5 minutes and works once.

Example:
  remotekeys pair
  remotekeys pair --qr`,
	Args: cobra.NoArgs,
	RunE: runPair,
}

func init() {
	pairCmd.Flags().StringVar(&pairAddr, "addr", "127.0.0.1:8000", "Address of the running host")
	pairCmd.Flags().BoolVar(&pairQR, "qr", false, "Display pairing information as a QR code")
	rootCmd.AddCommand(pairCmd)
}

func runPair(cmd *cobra.Command, args []string) error {
	resp, err := requestChallenge(pairAddr)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "\nThe host must be running to pair. Start it with: remotekeys serve\n")
		return err
	}

	displayHost := lanAddr(pairAddr)
	if pairQR {
		DisplayQRCode(cmd.OutOrStdout(), resp, displayHost)
	} else {
		DisplayPairingCode(cmd.OutOrStdout(), resp, displayHost)
	}
	return nil
}

// requestChallenge creates a challenge on the host at addr.
func requestChallenge(addr string) (pairing.ChallengeResponse, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(fmt.Sprintf("http://%s%s", addr, server.PathChallenge), "application/json", nil)
	if err != nil {
		return pairing.ChallengeResponse{}, fmt.Errorf("contact host at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp pairing.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Message != "" {
			return pairing.ChallengeResponse{}, fmt.Errorf("host refused: %s (%s)", errResp.Message, errResp.ErrorCode)
		}
		return pairing.ChallengeResponse{}, fmt.Errorf("host refused: %s", resp.Status)
	}

	var out pairing.ChallengeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return pairing.ChallengeResponse{}, fmt.Errorf("decode challenge: %w", err)
	}
	return out, nil
}

// lanAddr swaps a loopback host for the LAN IP so a phone can reach it.
func lanAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	ip := net.ParseIP(host)
	if host == "localhost" || (ip != nil && (ip.IsLoopback() || ip.IsUnspecified())) {
		return net.JoinHostPort(netinfo.LANIP(), port)
	}
	return addr
}

// DisplayPairingCode shows the PIN.
func DisplayPairingCode(w io.Writer, c pairing.ChallengeResponse, addr string) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "         PAIRING PIN")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "           %s\n", FormatCodeWithSpaces(c.PinCode))
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "  Expires: %s\n", c.ExpiresAt.Local().Format("15:04:05"))
	fmt.Fprintf(w, "  Host:    %s\n", addr)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  Enter this PIN on your phone to pair.")
	fmt.Fprintln(w, "  The PIN can only be used once.")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
}

// DisplayQRCode shows the pairing link as a QR code with a plain-text fallback.
func DisplayQRCode(w io.Writer, c pairing.ChallengeResponse, addr string) {
	qr, err := qrcode.New(server.PairURL(addr, c.ChallengeID), qrcode.Medium)
	if err != nil {
		fmt.Fprintf(w, "Error generating QR code: %v\n", err)
		fmt.Fprintf(w, "Falling back to text display.\n\n")
		DisplayPairingCode(w, c, addr)
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "         SCAN TO PAIR")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")

	// Half-block characters, no border.
	fmt.Fprint(w, qr.ToSmallString(false))

	fmt.Fprintln(w, "-------------------------------------------")
	fmt.Fprintln(w, "  Plain-text fallback:")
	fmt.Fprintf(w, "  PIN:       %s\n", FormatCodeWithSpaces(c.PinCode))
	fmt.Fprintf(w, "  Host:      %s\n", addr)
	fmt.Fprintf(w, "  Challenge: %s\n", c.ChallengeID)
	fmt.Fprintf(w, "  Expires:   %s\n", c.ExpiresAt.Local().Format("15:04:05"))
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
}

// FormatCodeWithSpaces adds spaces between digits for readability.
// "123456" -> "1 2 3 4 5 6"
func FormatCodeWithSpaces(code string) string {
	return strings.Join(strings.Split(code, ""), " ")
}
