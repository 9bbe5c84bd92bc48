package engine

import (
	"github.com/tarigateway/reconciler/internal/engineerr"
	"github.com/tarigateway/reconciler/internal/tari"
)

// transitionEvent names the reason an order's status is changing. Every
// status change in the engine goes through nextOrderStatus so the legal
// transition graph lives in exactly one place.
type transitionEvent string

const (
	eventClaim           transitionEvent = "claim"
	eventSettle          transitionEvent = "settle"
	eventExpireUnclaimed transitionEvent = "expire_unclaimed"
	eventExpireNew       transitionEvent = "expire_new"
	eventAdminCancel     transitionEvent = "admin_cancel"
	eventAdminReset      transitionEvent = "admin_reset"
)

// defaultClaimAllowed is the allowed-status set for a claim when the
// caller supplies none: only a never-claimed order may be claimed.
var defaultClaimAllowed = []tari.OrderStatus{tari.OrderUnclaimed}

// statusAllowed reports whether current appears in allowed.
func statusAllowed(allowed []tari.OrderStatus, current tari.OrderStatus) bool {
	for _, s := range allowed {
		if s == current {
			return true
		}
	}
	return false
}

// nextOrderStatus is the order state machine's single source of truth.
// It returns the status current should move to for event, or a typed
// error if the transition is not legal from current. allowed is only
// consulted for eventClaim, where it widens the claimable status set
// beyond the default Unclaimed-only (an admin may permit re-claiming a
// New or Expired order); every other event ignores it.
func nextOrderStatus(current tari.OrderStatus, event transitionEvent, allowed ...tari.OrderStatus) (tari.OrderStatus, error) {
	switch event {
	case eventClaim:
		set := allowed
		if len(set) == 0 {
			set = defaultClaimAllowed
		}
		if !statusAllowed(set, current) {
			return "", engineerr.Newf(engineerr.CodeOrderModificationForbidden,
				"claim requires status in %v, order is %s", set, current)
		}
		return tari.OrderNew, nil

	case eventSettle:
		if current != tari.OrderNew {
			return "", engineerr.Newf(engineerr.CodeOrderModificationForbidden,
				"settlement requires New status, order is %s", current)
		}
		return tari.OrderPaid, nil

	case eventExpireUnclaimed:
		if current != tari.OrderUnclaimed {
			return "", engineerr.New(engineerr.CodeOrderModificationNoOp, "order is not Unclaimed")
		}
		return tari.OrderExpired, nil

	case eventExpireNew:
		if current != tari.OrderNew {
			return "", engineerr.New(engineerr.CodeOrderModificationNoOp, "order is not New")
		}
		return tari.OrderExpired, nil

	case eventAdminCancel:
		if current == tari.OrderPaid {
			return "", engineerr.New(engineerr.CodeOrderModificationForbidden, "cannot cancel a paid order")
		}
		return tari.OrderCancelled, nil

	case eventAdminReset:
		if current != tari.OrderExpired && current != tari.OrderCancelled {
			return "", engineerr.Newf(engineerr.CodeOrderModificationForbidden,
				"reset requires Expired or Cancelled status, order is %s", current)
		}
		return tari.OrderNew, nil

	default:
		return "", engineerr.Newf(engineerr.CodeOrderModificationForbidden, "unknown transition event %q", event)
	}
}
