// Package storefront converts Shopify-shaped order objects into the
// order-flow engine's NewOrderInput.
// It owns exactly one translation: external amount/currency
// representation into internal MicroTari, the same kind of job a
// payment adapter does for any other external money format.
package storefront

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tarigateway/reconciler/internal/engine"
	"github.com/tarigateway/reconciler/internal/engineerr"
	"github.com/tarigateway/reconciler/internal/exchangerate"
	"github.com/tarigateway/reconciler/internal/persistence"
	"github.com/tarigateway/reconciler/internal/sig"
	"github.com/tarigateway/reconciler/internal/tari"
)

// Order is the subset of a Shopify Order resource this adapter reads.
// TotalPrice is Shopify's decimal string form (e.g. "49.99"); Currency
// is the ISO 4217 code Shopify reports it in.
type Order struct {
	ID         string `json:"id"`
	CustomerID string `json:"customer_id"`
	Note       string `json:"note"`
	TotalPrice string `json:"total_price"`
	Currency   string `json:"currency"`
}

// noteEnvelope is the optional JSON-encoded memo signature a storefront
// may embed in an order's note field. When Note doesn't parse as this
// shape, it is treated as a plain-text memo with no claim.
type noteEnvelope struct {
	Memo  string `json:"memo"`
	Claim *struct {
		Address   string `json:"address"`
		Signature string `json:"signature"`
	} `json:"claim"`
}

// Adapter converts Shopify orders into engine input, consulting rates
// for currency conversion.
type Adapter struct {
	rates *exchangerate.Store
}

// NewAdapter constructs an Adapter over a currency-rate store.
func NewAdapter(rates *exchangerate.Store) *Adapter {
	return &Adapter{rates: rates}
}

// ConvertOrder converts a Shopify order into engine.NewOrderInput,
// converting total_price from Shopify's minor-unit decimal currency
// into MicroTari via the latest recorded exchange rate.
//
// Example:
//   - Order{TotalPrice: "49.99", Currency: "USD"} → total_price in
//     MicroTari at the currently recorded USD rate.
func (a *Adapter) ConvertOrder(ctx context.Context, order Order) (engine.NewOrderInput, error) {
	minorUnits, err := parseMinorUnits(order.TotalPrice)
	if err != nil {
		return engine.NewOrderInput{}, engineerr.New(engineerr.CodeUnsupportedCurrency, err.Error())
	}

	currency := strings.ToUpper(order.Currency)
	microTari, err := a.rates.Convert(ctx, currency, minorUnits)
	if err != nil {
		return engine.NewOrderInput{}, err
	}

	memo, claim := parseNote(order.Note)

	return engine.NewOrderInput{
		Order: persistence.NewOrder{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			Memo:       memo,
			TotalPrice: microTari,
			Currency:   currency,
		},
		Claim: claim,
	}, nil
}

// parseMinorUnits parses a decimal currency string (e.g. "49.99") into
// an integer count of the currency's minor unit (cents), matching the
// fixed-point discipline the rest of the engine uses for money.
func parseMinorUnits(decimal string) (int64, error) {
	parts := strings.SplitN(decimal, ".", 2)
	if len(parts) > 2 {
		return 0, fmt.Errorf("storefront: invalid total_price %q", decimal)
	}

	whole, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("storefront: invalid total_price %q", decimal)
	}

	fraction := "00"
	if len(parts) == 2 {
		fraction = parts[1]
		if len(fraction) > 2 {
			fraction = fraction[:2]
		}
		for len(fraction) < 2 {
			fraction += "0"
		}
	}
	cents, err := strconv.ParseInt(fraction, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("storefront: invalid total_price %q", decimal)
	}
	if whole < 0 {
		cents = -cents
	}

	return whole*100 + cents, nil
}

// parseNote extracts the plain memo text and an optional order claim
// from a Shopify order's note field.
func parseNote(note string) (string, *engine.OrderClaim) {
	var env noteEnvelope
	if err := json.Unmarshal([]byte(note), &env); err != nil || env.Claim == nil {
		return note, nil
	}

	address, err := tari.ParseAddress(env.Claim.Address)
	if err != nil {
		return env.Memo, nil
	}
	signature, err := sig.Decode(env.Claim.Signature)
	if err != nil {
		return env.Memo, nil
	}

	return env.Memo, &engine.OrderClaim{Address: address, Signature: signature}
}
