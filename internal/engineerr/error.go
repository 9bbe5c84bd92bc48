package engineerr

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error is the typed error value returned by the engine and its collaborators.
// Adapters map it to a transport-specific response via Code.HTTPStatus().
type Error struct {
	Code    Code
	Message string
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New constructs an *Error with no extra detail fields.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs an *Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetail returns a copy of e with one additional detail field set.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &Error{Code: e.Code, Message: e.Message, Details: details}
}

// OrderNotFound returns the typed not-found error for an order id.
func OrderNotFound(orderID string) *Error {
	return New(CodeOrderNotFound, "order not found").WithDetail("order_id", orderID)
}

// PaymentNotFound returns the typed not-found error for a payment's txid.
func PaymentNotFound(txid string) *Error {
	return New(CodePaymentNotFound, "payment not found").WithDetail("txid", txid)
}

// OrderAlreadyExists signals an idempotency conflict on order ingestion.
func OrderAlreadyExists(orderID string) *Error {
	return New(CodeOrderAlreadyExists, "order already exists").WithDetail("order_id", orderID)
}

// PaymentAlreadyExists signals an idempotency conflict on payment ingestion.
func PaymentAlreadyExists(txid string) *Error {
	return New(CodePaymentAlreadyExists, "payment already exists").WithDetail("txid", txid)
}

// DatabaseError wraps a persistence-layer transport/IO failure.
func DatabaseError(msg string) *Error {
	return New(CodeDatabaseError, msg)
}

// BackendError wraps an unclassified backend failure.
func BackendError(msg string) *Error {
	return New(CodeBackendError, msg)
}

// RoleNotAllowed reports a permission failure naming how many required roles were missing.
func RoleNotAllowed(missingCount int) *Error {
	return New(CodeRoleNotAllowed, "caller lacks required role").WithDetail("missing_count", missingCount)
}

// Response is the standardized error format returned to HTTP clients.
type Response struct {
	Error Detail `json:"error"`
}

// Detail contains the error code, message, and optional context.
type Detail struct {
	Code    Code                   `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewResponse builds a standardized error response from an *Error.
func NewResponse(e *Error) Response {
	return Response{Error: Detail{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}}
}

// WriteJSON writes the error response as JSON to the HTTP response writer.
func (r Response) WriteJSON(w http.ResponseWriter) {
	status := r.Error.Code.HTTPStatus()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(r)
}

// WriteError writes an *Error to the response in one call.
func WriteError(w http.ResponseWriter, e *Error) {
	NewResponse(e).WriteJSON(w)
}
