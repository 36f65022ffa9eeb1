package crypto

import (
	"errors"
	"fmt"
	"math/big"
)

const maxSignAttempts = 8

var (
	// ErrSigningFailed wraps failures of the underlying signature primitive.
	ErrSigningFailed = errors.New("signing failed")
	// ErrMessageOutOfRange is returned for messages at or above 2^251, which
	// Starknet verifiers refuse.
	ErrMessageOutOfRange = errors.New("message hash out of range")

	elementUpperBound = new(big.Int).Lsh(big.NewInt(1), 251)
)

// Signature is an ECDSA (r, s) pair over the Stark curve.
type Signature struct {
	R Felt `json:"r"`
	S Felt `json:"s"`
}

func (sig Signature) bytes() []byte {
	r := sig.R.Bytes()
	s := sig.S.Bytes()
	out := make([]byte, 0, 2*FeltBytes)
	out = append(out, r[:]...)
	return append(out, s[:]...)
}

// Signer holds the process signing key. It is safe for concurrent use.
type Signer struct {
	key *PrivateKey
	pub *PublicKey
}

// NewSigner wraps key. The key is never exposed again; only the public half is.
func NewSigner(key *PrivateKey) (*Signer, error) {
	if key == nil || key.key == nil {
		return nil, errors.New("crypto: nil private key")
	}
	return &Signer{key: key, pub: key.PubKey()}, nil
}

func (s *Signer) PublicKey() *PublicKey {
	return s.pub
}

// Sign produces a signature over msg. Nonces that yield r or s outside the
// Starknet range are discarded and the signature is recomputed.
func (s *Signer) Sign(msg Felt) (Signature, error) {
	if msg.BigInt().Cmp(elementUpperBound) >= 0 {
		return Signature{}, ErrMessageOutOfRange
	}
	msgBytes := msg.Bytes()
	for attempt := 0; attempt < maxSignAttempts; attempt++ {
		raw, err := s.key.key.Sign(msgBytes[:], nil)
		if err != nil {
			return Signature{}, fmt.Errorf("%w: %v", ErrSigningFailed, err)
		}
		if len(raw) != 2*FeltBytes {
			return Signature{}, fmt.Errorf("%w: unexpected signature length %d", ErrSigningFailed, len(raw))
		}
		r := new(big.Int).SetBytes(raw[:FeltBytes])
		sv := new(big.Int).SetBytes(raw[FeltBytes:])
		if r.Cmp(elementUpperBound) >= 0 || sv.Cmp(elementUpperBound) >= 0 {
			continue
		}
		return Signature{R: FeltFromBigInt(r), S: FeltFromBigInt(sv)}, nil
	}
	return Signature{}, fmt.Errorf("%w: no in-range signature after %d attempts", ErrSigningFailed, maxSignAttempts)
}
