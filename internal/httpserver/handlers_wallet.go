package httpserver

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/tarigateway/reconciler/internal/engineerr"
)

// resolvePeerIP picks the caller IP walletauth.Admit should trust,
// honoring the configured proxy-header policy. X-Forwarded-For is
// checked before Forwarded; neither is trusted unless explicitly
// enabled, since either can be spoofed by a caller that isn't actually
// behind the configured proxy.
func (h *handlers) resolvePeerIP(r *http.Request) string {
	if h.cfg.WalletAuth.UseXForwardedFor {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			return strings.TrimSpace(parts[0])
		}
	}
	if h.cfg.WalletAuth.UseForwarded {
		if fwd := r.Header.Get("Forwarded"); fwd != "" {
			if ip := parseForwardedFor(fwd); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// parseForwardedFor extracts the for= parameter from an RFC 7239
// Forwarded header's first element.
func parseForwardedFor(header string) string {
	first := strings.SplitN(header, ",", 2)[0]
	for _, part := range strings.Split(first, ";") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 && strings.EqualFold(kv[0], "for") {
			return strings.Trim(kv[1], `"`)
		}
	}
	return ""
}

// observeWalletAuth feeds the admission counters off one notification's
// outcome. Failures past admission (a malformed payment body, a
// database error) still count as accepted admissions.
func (h *handlers) observeWalletAuth(err error) {
	if h.metrics == nil {
		return
	}
	var ee *engineerr.Error
	if errors.As(err, &ee) {
		switch ee.Code {
		case engineerr.CodeInvalidSignature, engineerr.CodeWalletNotFound,
			engineerr.CodeInvalidIPAddress, engineerr.CodeInvalidNonce:
			h.metrics.ObserveWalletAuthRejected(string(ee.Code))
			return
		}
	}
	h.metrics.ObserveWalletAuthAccepted()
}

// walletPayment admits and processes an inbound wallet payment
// notification.
func (h *handlers) walletPayment(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	defer r.Body.Close()

	payment, err := h.wallet.HandlePayment(r.Context(), raw, h.resolvePeerIP(r))
	h.observeWalletAuth(err)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPaymentDTO(payment))
}

// walletConfirmation admits and processes a transaction confirmation.
func (h *handlers) walletConfirmation(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	defer r.Body.Close()

	payment, err := h.wallet.HandleConfirmation(r.Context(), raw, h.resolvePeerIP(r))
	h.observeWalletAuth(err)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPaymentDTO(payment))
}
