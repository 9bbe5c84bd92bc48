// Package engineerr defines the typed error taxonomy returned by the
// reconciliation engine and its collaborators.
package engineerr

// Code is a machine-readable error identifier.
type Code string

// Input errors: malformed or unauthenticated input.
const (
	CodeInvalidSignature           Code = "invalid_signature"
	CodePoorlyFormattedToken       Code = "poorly_formatted_token"
	CodeInvalidNonce               Code = "invalid_nonce"
	CodeInvalidIPAddress           Code = "invalid_ip_address"
	CodeUnsupportedCurrency        Code = "unsupported_currency"
	CodeOrderModificationForbidden Code = "order_modification_forbidden"
	CodeOrderModificationNoOp      Code = "order_modification_no_op"
	CodePaymentStatusUpdate        Code = "payment_status_update_error"
)

// Not-found errors.
const (
	CodeOrderNotFound   Code = "order_not_found"
	CodePaymentNotFound Code = "payment_not_found"
	CodeWalletNotFound  Code = "wallet_not_found"
	CodeAddressNotFound Code = "address_not_found"
	CodeRoleNotFound    Code = "role_not_found"
)

// Conflict errors: both are idempotency signals, not failures.
const (
	CodeOrderAlreadyExists   Code = "order_already_exists"
	CodePaymentAlreadyExists Code = "payment_already_exists"
)

// Business errors.
const (
	CodeInsufficientFunds         Code = "insufficient_funds"
	CodeAccountShouldExistForOrder Code = "account_should_exist_for_order"
	CodeAmbiguousCustomerLink     Code = "ambiguous_customer_link"
)

// System errors: wrap transport/IO failures.
const (
	CodeDatabaseError Code = "database_error"
	CodeBackendError  Code = "backend_error"
)

// Permission errors.
const (
	CodeRoleNotAllowed Code = "role_not_allowed"
)

// IsConflict reports whether this code represents an idempotency conflict
// that the engine surface treats as a successful no-op rather than a failure.
func (c Code) IsConflict() bool {
	switch c {
	case CodeOrderAlreadyExists, CodePaymentAlreadyExists:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the HTTP status an adapter should map this code to.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidSignature, CodeInvalidNonce, CodeInvalidIPAddress:
		return 401
	case CodePoorlyFormattedToken, CodeUnsupportedCurrency,
		CodeOrderModificationForbidden, CodeOrderModificationNoOp,
		CodePaymentStatusUpdate:
		return 400
	case CodeOrderNotFound, CodePaymentNotFound, CodeWalletNotFound,
		CodeAddressNotFound, CodeRoleNotFound:
		return 404
	case CodeOrderAlreadyExists, CodePaymentAlreadyExists:
		return 200
	case CodeInsufficientFunds:
		return 402
	case CodeAmbiguousCustomerLink:
		return 409
	case CodeRoleNotAllowed:
		return 403
	case CodeAccountShouldExistForOrder:
		return 500
	case CodeDatabaseError, CodeBackendError:
		return 502
	default:
		return 500
	}
}
