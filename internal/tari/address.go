package tari

import (
	"bytes"
	"encoding/hex"
	"errors"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// AddressSize is the length in bytes of the binary address form: one network
// byte followed by a 32-byte compressed curve point (the spend key).
const AddressSize = 1 + 32

// ErrInvalidAddress is returned when an address fails to parse or does not
// decode to a valid curve point.
var ErrInvalidAddress = errors.New("tari: invalid address")

// Network tags recognized by the address encoding.
const (
	NetworkMainNet byte = 0x00
	NetworkTestNet byte = 0x01
)

// Address is a wallet identifier: a network tag plus a 32-byte spend key.
// Equality is on the full binary form.
type Address struct {
	Network byte
	Spend   [32]byte
}

// Bytes returns the canonical binary encoding: network byte || spend key.
func (a Address) Bytes() [AddressSize]byte {
	var out [AddressSize]byte
	out[0] = a.Network
	copy(out[1:], a.Spend[:])
	return out
}

// String renders the address in base58, the canonical display form.
func (a Address) String() string {
	b := a.Bytes()
	return base58.Encode(b[:])
}

// Hex renders the address in canonical hex form.
func (a Address) Hex() string {
	b := a.Bytes()
	return hex.EncodeToString(b[:])
}

// Equal reports whether two addresses have the same binary form.
func (a Address) Equal(other Address) bool {
	return a.Network == other.Network && a.Spend == other.Spend
}

// ParseAddress decodes a base58-encoded address, verifying the spend key
// decompresses to a valid curve point.
func ParseAddress(s string) (Address, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return Address{}, ErrInvalidAddress
	}
	return addressFromBytes(raw)
}

// ParseAddressHex decodes a hex-encoded address.
func ParseAddressHex(s string) (Address, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, ErrInvalidAddress
	}
	return addressFromBytes(raw)
}

func addressFromBytes(raw []byte) (Address, error) {
	if len(raw) != AddressSize {
		return Address{}, ErrInvalidAddress
	}

	var spend [32]byte
	copy(spend[:], raw[1:])

	if !IsValidCurvePoint(spend) {
		return Address{}, ErrInvalidAddress
	}

	return Address{Network: raw[0], Spend: spend}, nil
}

// IsValidCurvePoint reports whether the 32-byte buffer is the canonical
// encoding of a point on the curve, without constructing an Address.
// Non-canonical encodings of valid points are rejected. Used by address
// parsing and by the dummy address derivation retry loop.
func IsValidCurvePoint(b [32]byte) bool {
	p, err := new(edwards25519.Point).SetBytes(b[:])
	return err == nil && bytes.Equal(p.Bytes(), b[:])
}
