package tari

import "testing"

func validSpendKey(t *testing.T) [32]byte {
	t.Helper()
	// The identity point's compressed encoding is always a valid curve point.
	var identity [32]byte
	identity[0] = 1
	if !IsValidCurvePoint(identity) {
		t.Fatal("expected identity encoding to be a valid curve point")
	}
	return identity
}

func TestAddress_StringHexRoundTrip(t *testing.T) {
	addr := Address{Network: NetworkMainNet, Spend: validSpendKey(t)}

	parsedFromString, err := ParseAddress(addr.String())
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if !parsedFromString.Equal(addr) {
		t.Fatalf("base58 round trip mismatch: got %+v, want %+v", parsedFromString, addr)
	}

	parsedFromHex, err := ParseAddressHex(addr.Hex())
	if err != nil {
		t.Fatalf("ParseAddressHex: %v", err)
	}
	if !parsedFromHex.Equal(addr) {
		t.Fatalf("hex round trip mismatch: got %+v, want %+v", parsedFromHex, addr)
	}
}

func TestParseAddress_WrongLength(t *testing.T) {
	if _, err := ParseAddress("abc"); err != ErrInvalidAddress {
		t.Fatalf("err = %v, want ErrInvalidAddress", err)
	}
}

func TestParseAddress_InvalidCurvePoint(t *testing.T) {
	// The little-endian encoding of p = 2^255-19 itself: a non-canonical
	// field element every conformant edwards25519 decoder rejects.
	raw := make([]byte, AddressSize)
	raw[0] = NetworkMainNet
	nonCanonical := []byte{
		0xed, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f,
	}
	copy(raw[1:], nonCanonical)
	if _, err := addressFromBytes(raw); err != ErrInvalidAddress {
		t.Fatalf("err = %v, want ErrInvalidAddress", err)
	}
}

func TestAddress_Equal(t *testing.T) {
	a := Address{Network: NetworkMainNet, Spend: validSpendKey(t)}
	b := a
	b.Network = NetworkTestNet
	if a.Equal(b) {
		t.Fatal("addresses with different networks should not be equal")
	}
	if !a.Equal(a) {
		t.Fatal("address should equal itself")
	}
}
