package tari

import "time"

// AuthLog is the replay-defense nonce record for memo-signature
// verification. Invariant: LastNonce strictly increases on every update.
type AuthLog struct {
	Address   Address
	LastNonce int64
}

// WalletAuth is the replay-defense and IP-binding record for wallet
// payment notifications. Same monotonicity invariant as AuthLog; the
// address must also match the source IP on every notification.
type WalletAuth struct {
	Address   Address
	IPAddress string
	LastNonce int64
}

// ExchangeRate is an append-only quote for converting a storefront
// currency into MicroTari. Rate is expressed as base-units per 100 units
// of BaseCurrency. Lookups return the most recently inserted row.
type ExchangeRate struct {
	BaseCurrency string
	Rate         int64
	UpdatedAt    time.Time
}
