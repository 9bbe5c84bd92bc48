// Package sig implements the two domain-separated Schnorr signature
// schemes used by the reconciliation engine: memo signatures (binding a
// wallet to an order) and wallet signatures (authenticating a payment
// notification). Both run over edwards25519 scalar/point arithmetic
// with a Blake2b-512 challenge hash, and both fail closed: any malformed
// input surfaces as ErrInvalidSignature, never a lower-level parse error.
package sig

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/blake2b"

	"github.com/tarigateway/reconciler/internal/tari"
)

// Domain separators. Keeping memo and wallet signatures on distinct
// domains means a signature produced for one can never verify under
// the other.
const (
	DomainMemo   = "MemoSignature"
	DomainWallet = "WalletSignature"
)

// ErrInvalidSignature is returned for every signature failure mode:
// malformed hex, wrong length, key parse failure, or verification
// failure. Callers never need to distinguish the cause.
var ErrInvalidSignature = errors.New("sig: invalid signature")

// encodedLen is the hex length of a serialized signature: 32-byte public
// nonce (R) || 32-byte scalar (s).
const encodedLen = 128

// Signature is a Schnorr signature: the public nonce point R and the
// response scalar s.
type Signature struct {
	R [32]byte
	S [32]byte
}

// Encode renders the signature as the 128-hex-char wire form.
func (s Signature) Encode() string {
	var buf [64]byte
	copy(buf[:32], s.R[:])
	copy(buf[32:], s.S[:])
	return hex.EncodeToString(buf[:])
}

// Decode parses the 128-hex-char wire form of a signature.
func Decode(encoded string) (Signature, error) {
	if len(encoded) != encodedLen {
		return Signature{}, ErrInvalidSignature
	}
	raw, err := hex.DecodeString(encoded)
	if err != nil {
		return Signature{}, ErrInvalidSignature
	}
	var s Signature
	copy(s.R[:], raw[:32])
	copy(s.S[:], raw[32:])
	return s, nil
}

// PrivateKey is a signing scalar. It never appears on the verification
// path: the engine only ever holds addresses (public spend keys).
type PrivateKey struct {
	scalar *edwards25519.Scalar
}

// NewPrivateKeyFromSeed derives a signing scalar from 32 bytes of
// uniform randomness via Blake2b-512, the same wide-reduction technique
// used for the challenge hash below.
func NewPrivateKeyFromSeed(seed [32]byte) (PrivateKey, error) {
	wide := blake2b.Sum512(seed[:])
	scalar, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		return PrivateKey{}, ErrInvalidSignature
	}
	return PrivateKey{scalar: scalar}, nil
}

// GeneratePrivateKey produces a fresh random signing key.
func GeneratePrivateKey() (PrivateKey, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return PrivateKey{}, err
	}
	return NewPrivateKeyFromSeed(seed)
}

// PublicPoint returns the public point x*G for this key.
func (k PrivateKey) PublicPoint() *edwards25519.Point {
	return edwards25519.NewIdentityPoint().ScalarBaseMult(k.scalar)
}

// Address derives the wallet address for this key under the given
// network tag.
func (k PrivateKey) Address(network byte) tari.Address {
	var spend [32]byte
	copy(spend[:], k.PublicPoint().Bytes())
	return tari.Address{Network: network, Spend: spend}
}

// SignMemo produces a memo signature binding address to orderID.
// Message = "{base58(address)}:{order_id}".
func (k PrivateKey) SignMemo(address tari.Address, orderID string) (Signature, error) {
	msg := address.String() + ":" + orderID
	return sign(k, DomainMemo, []byte(msg))
}

// VerifyMemo checks a memo signature against the claimed address and
// order id.
func VerifyMemo(address tari.Address, orderID string, s Signature) error {
	msg := address.String() + ":" + orderID
	return verify(address, DomainMemo, []byte(msg), s)
}

// SignWallet produces a wallet signature over a notification body.
// Message = "{address}:{nonce}:{serialized(payload)}" where address is
// the base58 form and payload is the canonical JSON of the notification.
func (k PrivateKey) SignWallet(address tari.Address, nonce int64, canonicalPayload []byte) (Signature, error) {
	msg := walletMessage(address, nonce, canonicalPayload)
	return sign(k, DomainWallet, msg)
}

// VerifyWallet checks a wallet signature over a notification body.
func VerifyWallet(address tari.Address, nonce int64, canonicalPayload []byte, s Signature) error {
	msg := walletMessage(address, nonce, canonicalPayload)
	return verify(address, DomainWallet, msg, s)
}

func walletMessage(address tari.Address, nonce int64, canonicalPayload []byte) []byte {
	msg := address.String() + ":" + strconv.FormatInt(nonce, 10) + ":"
	out := make([]byte, 0, len(msg)+len(canonicalPayload))
	out = append(out, []byte(msg)...)
	out = append(out, canonicalPayload...)
	return out
}

func sign(k PrivateKey, domain string, message []byte) (Signature, error) {
	var nonceSeed [32]byte
	if _, err := rand.Read(nonceSeed[:]); err != nil {
		return Signature{}, err
	}
	wide := blake2b.Sum512(append(nonceSeed[:], k.scalar.Bytes()...))
	r, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		return Signature{}, ErrInvalidSignature
	}

	R := edwards25519.NewIdentityPoint().ScalarBaseMult(r)
	P := k.PublicPoint()

	e, err := challenge(domain, R, P, message)
	if err != nil {
		return Signature{}, err
	}

	s := edwards25519.NewScalar().MultiplyAdd(e, k.scalar, r)

	var sig Signature
	copy(sig.R[:], R.Bytes())
	copy(sig.S[:], s.Bytes())
	return sig, nil
}

func verify(address tari.Address, domain string, message []byte, s Signature) error {
	P, err := edwards25519.NewIdentityPoint().SetBytes(address.Spend[:])
	if err != nil {
		return ErrInvalidSignature
	}
	R, err := edwards25519.NewIdentityPoint().SetBytes(s.R[:])
	if err != nil {
		return ErrInvalidSignature
	}
	sScalar, err := edwards25519.NewScalar().SetCanonicalBytes(s.S[:])
	if err != nil {
		return ErrInvalidSignature
	}

	e, err := challenge(domain, R, P, message)
	if err != nil {
		return err
	}

	// Check s*G == R + e*P.
	lhs := edwards25519.NewIdentityPoint().ScalarBaseMult(sScalar)
	rhs := edwards25519.NewIdentityPoint().Add(R, edwards25519.NewIdentityPoint().ScalarMult(e, P))

	if lhs.Equal(rhs) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

func challenge(domain string, R, P *edwards25519.Point, message []byte) (*edwards25519.Scalar, error) {
	h, err := blake2b.New512(nil)
	if err != nil {
		return nil, ErrInvalidSignature
	}
	h.Write([]byte(domain))
	h.Write(R.Bytes())
	h.Write(P.Bytes())
	h.Write(message)
	sum := h.Sum(nil)

	e, err := edwards25519.NewScalar().SetUniformBytes(sum)
	if err != nil {
		return nil, ErrInvalidSignature
	}
	return e, nil
}
