package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tarigateway/reconciler/internal/tari"
)

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (h *handlers) adminMarkPaid(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	_ = decodeJSON(r, &req)
	order, err := h.admin.MarkPaid(r.Context(), chi.URLParam(r, "orderID"), req.Reason)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderDTO(order))
}

func (h *handlers) adminCancel(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	_ = decodeJSON(r, &req)
	order, err := h.admin.Cancel(r.Context(), chi.URLParam(r, "orderID"), req.Reason)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderDTO(order))
}

func (h *handlers) adminReset(w http.ResponseWriter, r *http.Request) {
	order, err := h.admin.Reset(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderDTO(order))
}

type modifyMemoRequest struct {
	Memo string `json:"memo"`
}

func (h *handlers) adminModifyMemo(w http.ResponseWriter, r *http.Request) {
	var req modifyMemoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	order, err := h.admin.ModifyMemo(r.Context(), chi.URLParam(r, "orderID"), req.Memo)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderDTO(order))
}

type modifyPriceRequest struct {
	TotalPrice int64 `json:"total_price"`
}

func (h *handlers) adminModifyPrice(w http.ResponseWriter, r *http.Request) {
	var req modifyPriceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	order, err := h.admin.ModifyPrice(r.Context(), chi.URLParam(r, "orderID"), tari.MicroTari(req.TotalPrice))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderDTO(order))
}

type reassignCustomerRequest struct {
	NewCustomerID string `json:"new_customer_id"`
}

func (h *handlers) adminReassignCustomer(w http.ResponseWriter, r *http.Request) {
	var req reassignCustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	order, err := h.admin.ReassignCustomer(r.Context(), chi.URLParam(r, "orderID"), req.NewCustomerID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderDTO(order))
}

type expireRequest struct {
	FromStatus string `json:"from_status"`
	OlderThan  string `json:"older_than"`
}

func (h *handlers) adminExpire(w http.ResponseWriter, r *http.Request) {
	var req expireRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	olderThan, err := time.ParseDuration(req.OlderThan)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed older_than duration"})
		return
	}
	orders, err := h.admin.Expire(r.Context(), tari.OrderStatus(req.FromStatus), olderThan)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderDTOs(orders))
}

type creditNoteRequest struct {
	CustomerID string `json:"customer_id"`
	Amount     int64  `json:"amount"`
	Reason     string `json:"reason"`
}

func (h *handlers) adminCreditNote(w http.ResponseWriter, r *http.Request) {
	var req creditNoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	payment, err := h.admin.CreditNote(r.Context(), req.CustomerID, tari.MicroTari(req.Amount), req.Reason)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPaymentDTO(payment))
}

type registerWalletRequest struct {
	Address      string `json:"address"`
	IPAddress    string `json:"ip_address"`
	InitialNonce int64  `json:"initial_nonce"`
}

func (h *handlers) adminRegisterWallet(w http.ResponseWriter, r *http.Request) {
	var req registerWalletRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	address, err := tari.ParseAddress(req.Address)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed address"})
		return
	}
	wa, err := h.admin.RegisterWallet(r.Context(), address, req.IPAddress, req.InitialNonce)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newWalletAuthDTO(wa))
}

type addressRequest struct {
	Address string `json:"address"`
}

func (h *handlers) adminDeregisterWallet(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	address, err := tari.ParseAddress(req.Address)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed address"})
		return
	}
	if err := h.admin.DeregisterWallet(r.Context(), address); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type rolesRequest struct {
	Address string   `json:"address"`
	Roles   []string `json:"roles"`
}

func parseRolesRequest(r *http.Request) (tari.Address, []tari.Role, error) {
	var req rolesRequest
	if err := decodeJSON(r, &req); err != nil {
		return tari.Address{}, nil, err
	}
	address, err := tari.ParseAddress(req.Address)
	if err != nil {
		return tari.Address{}, nil, err
	}
	roleList := make([]tari.Role, len(req.Roles))
	for i, role := range req.Roles {
		roleList[i] = tari.Role(role)
	}
	return address, roleList, nil
}

func (h *handlers) adminAssignRoles(w http.ResponseWriter, r *http.Request) {
	address, roleList, err := parseRolesRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	set, err := h.admin.AssignRoles(r.Context(), address, roleList...)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roleStrings(set))
}

func (h *handlers) adminRemoveRoles(w http.ResponseWriter, r *http.Request) {
	address, roleList, err := parseRolesRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	set, err := h.admin.RemoveRoles(r.Context(), address, roleList...)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, roleStrings(set))
}

type setExchangeRateRequest struct {
	Currency string `json:"currency"`
	Rate     int64  `json:"rate"`
}

func (h *handlers) adminSetExchangeRate(w http.ResponseWriter, r *http.Request) {
	var req setExchangeRateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	rate, err := h.admin.SetExchangeRate(r.Context(), req.Currency, req.Rate)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newExchangeRateDTO(rate))
}
