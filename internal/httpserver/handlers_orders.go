package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tarigateway/reconciler/internal/sig"
	"github.com/tarigateway/reconciler/internal/storefront"
	"github.com/tarigateway/reconciler/internal/tari"
)

// ingestOrder converts a Shopify-shaped order into engine input and
// ingests it. Ingestion is idempotent on order_id.
func (h *handlers) ingestOrder(w http.ResponseWriter, r *http.Request) {
	var order storefront.Order
	if err := decodeJSON(r, &order); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	in, err := h.storefront.ConvertOrder(r.Context(), order)
	if err != nil {
		writeErr(w, err)
		return
	}

	created, err := h.engine.ProcessNewOrder(r.Context(), in)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderDTO(created))
}

// getOrder looks up a single order by order_id.
func (h *handlers) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.query.OrderByID(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderDTO(order))
}

// listOrders lists orders matching the query string's filter fields.
func (h *handlers) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := buildOrderFilter(q)
	page := parsePagination(q.Get("limit"), q.Get("offset"))

	orders, err := h.query.OrdersByFilter(r.Context(), filter, page)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderDTOs(orders))
}

// getOrderHistory returns the combined orders+payments+settlements
// projection for one order.
func (h *handlers) getOrderHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.query.History(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderHistoryDTO(history))
}

type claimOrderRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

// claimOrder binds an Unclaimed order to a wallet address via its memo
// signature, moving it to New.
func (h *handlers) claimOrder(w http.ResponseWriter, r *http.Request) {
	var req claimOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}

	address, err := tari.ParseAddress(req.Address)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed address"})
		return
	}
	signature, err := sig.Decode(req.Signature)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed signature"})
		return
	}

	allowed := []tari.OrderStatus{tari.OrderUnclaimed}
	if ok, rerr := h.roles.HasRoles(r.Context(), address, tari.RoleWrite); rerr == nil && ok {
		allowed = []tari.OrderStatus{tari.OrderUnclaimed, tari.OrderNew, tari.OrderExpired}
	}

	order, err := h.engine.ClaimOrder(r.Context(), chi.URLParam(r, "orderID"), address, signature, allowed)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderDTO(order))
}
