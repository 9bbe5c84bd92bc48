// Package tari defines the fixed-point monetary type and address/role value
// types shared across the reconciliation engine.
package tari

import (
	"errors"
	"math/big"
	"strconv"
	"strings"
)

// MicroTari is a signed count of millionths of the base Tari unit. All
// settlement-path arithmetic uses this type; no floating point appears here.
type MicroTari int64

// MicroTariPerTari is the number of MicroTari in one Tari.
const MicroTariPerTari = 1_000_000

var (
	// ErrOverflow occurs when an operation would exceed int64 capacity.
	ErrOverflow = errors.New("tari: arithmetic overflow")

	// ErrInvalidFormat occurs when parsing a decimal or atomic string fails.
	ErrInvalidFormat = errors.New("tari: invalid format")
)

// Zero is the additive identity.
const Zero MicroTari = 0

// FromTari parses a decimal Tari amount (e.g. "10.500000") into MicroTari,
// rounding half-up when more than six fractional digits are given.
func FromTari(major string) (MicroTari, error) {
	parts := strings.SplitN(major, ".", 2)
	if len(parts) > 2 {
		return 0, ErrInvalidFormat
	}

	integerPart := parts[0]
	fractionalPart := ""
	if len(parts) == 2 {
		fractionalPart = parts[1]
	}

	integerVal, err := strconv.ParseInt(integerPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidFormat
	}

	var atomicFromFraction int64
	if fractionalPart != "" {
		if len(fractionalPart) > 6 {
			roundDigit := fractionalPart[6] - '0'
			fractionalPart = fractionalPart[:6]
			parsed, perr := strconv.ParseInt(fractionalPart, 10, 64)
			if perr != nil {
				return 0, ErrInvalidFormat
			}
			atomicFromFraction = parsed
			if roundDigit >= 5 {
				atomicFromFraction++
			}
		} else {
			for len(fractionalPart) < 6 {
				fractionalPart += "0"
			}
			parsed, perr := strconv.ParseInt(fractionalPart, 10, 64)
			if perr != nil {
				return 0, ErrInvalidFormat
			}
			atomicFromFraction = parsed
		}
	}

	if integerVal < 0 {
		atomicFromFraction = -atomicFromFraction
	}

	bigResult := new(big.Int).Mul(big.NewInt(integerVal), big.NewInt(MicroTariPerTari))
	bigResult.Add(bigResult, big.NewInt(atomicFromFraction))
	if !bigResult.IsInt64() {
		return 0, ErrOverflow
	}

	return MicroTari(bigResult.Int64()), nil
}

// ToTari renders the amount as a decimal Tari string with six fractional digits.
func (m MicroTari) ToTari() string {
	integerPart := int64(m) / MicroTariPerTari
	fractionalPart := int64(m) % MicroTariPerTari
	if fractionalPart < 0 {
		fractionalPart = -fractionalPart
	}

	var buf strings.Builder
	buf.WriteString(strconv.FormatInt(integerPart, 10))
	buf.WriteByte('.')
	fractionalStr := strconv.FormatInt(fractionalPart, 10)
	for i := 0; i < 6-len(fractionalStr); i++ {
		buf.WriteByte('0')
	}
	buf.WriteString(fractionalStr)
	return buf.String()
}

// Add returns m+other, failing on int64 overflow.
func (m MicroTari) Add(other MicroTari) (MicroTari, error) {
	result := m + other
	if (result > m) != (other > 0) {
		return 0, ErrOverflow
	}
	return result, nil
}

// Sub returns m-other, failing on int64 underflow.
func (m MicroTari) Sub(other MicroTari) (MicroTari, error) {
	result := m - other
	if (result < m) != (other > 0) {
		return 0, ErrOverflow
	}
	return result, nil
}

// Min returns the smaller of m and other.
func (m MicroTari) Min(other MicroTari) MicroTari {
	if m < other {
		return m
	}
	return other
}

// IsPositive reports whether m > 0.
func (m MicroTari) IsPositive() bool { return m > 0 }

// IsZero reports whether m == 0.
func (m MicroTari) IsZero() bool { return m == 0 }

// IsNegative reports whether m < 0.
func (m MicroTari) IsNegative() bool { return m < 0 }
