package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tarigateway/reconciler/internal/tari"
)

func (h *handlers) listOrdersForAddress(w http.ResponseWriter, r *http.Request) {
	address, err := tari.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed address"})
		return
	}
	q := r.URL.Query()
	orders, err := h.query.OrdersForAddress(r.Context(), address, parsePagination(q.Get("limit"), q.Get("offset")))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderDTOs(orders))
}

func (h *handlers) listPaymentsForAddress(w http.ResponseWriter, r *http.Request) {
	address, err := tari.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed address"})
		return
	}
	q := r.URL.Query()
	payments, err := h.query.PaymentsForAddress(r.Context(), address, parsePagination(q.Get("limit"), q.Get("offset")))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPaymentDTOs(payments))
}

func (h *handlers) getAddressBalance(w http.ResponseWriter, r *http.Request) {
	address, err := tari.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed address"})
		return
	}
	balance, err := h.query.AddressBalance(r.Context(), address)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAddressBalanceDTO(balance))
}

func (h *handlers) listAddresses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	addresses, err := h.query.Addresses(r.Context(), parsePagination(q.Get("limit"), q.Get("offset")))
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]string, len(addresses))
	for i, a := range addresses {
		out[i] = a.String()
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getCustomerBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.query.CustomerBalance(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCustomerBalanceDTO(balance))
}

func (h *handlers) listCustomerIDs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ids, err := h.query.CustomerIDs(r.Context(), parsePagination(q.Get("limit"), q.Get("offset")))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

func (h *handlers) listCreditors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	creditors, err := h.query.Creditors(r.Context(), parsePagination(q.Get("limit"), q.Get("offset")))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newAddressBalanceDTOs(creditors))
}
