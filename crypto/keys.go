package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	starkcurve "github.com/consensys/gnark-crypto/ecc/stark-curve"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/ecdsa"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fr"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrInvalidPrivateKey is returned when key material is not a scalar in [1, n).
var ErrInvalidPrivateKey = errors.New("invalid stark private key")

// --- Key Management ---

// PrivateKey is a Stark-curve ECDSA signing key.
type PrivateKey struct {
	key *ecdsa.PrivateKey
}

// PublicKey is the curve point matching a PrivateKey.
type PublicKey struct {
	key ecdsa.PublicKey
}

// GeneratePrivateKey draws a new key from r, or from crypto/rand when r is nil.
func GeneratePrivateKey(r io.Reader) (*PrivateKey, error) {
	if r == nil {
		r = rand.Reader
	}
	key, err := ecdsa.GenerateKey(r)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromScalar builds a key from its secret scalar, deriving the public
// point.
func PrivateKeyFromScalar(scalar *big.Int) (*PrivateKey, error) {
	if scalar == nil || scalar.Sign() <= 0 || scalar.Cmp(fr.Modulus()) >= 0 {
		return nil, ErrInvalidPrivateKey
	}
	var pub starkcurve.G1Affine
	pub.ScalarMultiplicationBase(scalar)

	pubBytes := pub.Bytes()
	buf := make([]byte, 0, len(pubBytes)+fr.Bytes)
	buf = append(buf, pubBytes[:]...)
	buf = append(buf, scalar.FillBytes(make([]byte, fr.Bytes))...)

	key := new(ecdsa.PrivateKey)
	if _, err := key.SetBytes(buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes reads a 32-byte big-endian scalar.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != fr.Bytes {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidPrivateKey, fr.Bytes, len(b))
	}
	return PrivateKeyFromScalar(new(big.Int).SetBytes(b))
}

// PrivateKeyFromHex parses a 0x-prefixed hex scalar such as the value of a
// FREEDOMAIN_SIGNER_KEY environment variable.
func PrivateKeyFromHex(s string) (*PrivateKey, error) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		trimmed = "0x" + trimmed
	}
	scalar, err := hexutil.DecodeBig(trimmed)
	if err != nil {
		// hexutil rejects leading zeros in quantities; fall back to raw bytes.
		raw, rawErr := hexutil.Decode(trimmed)
		if rawErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
		}
		if len(raw) > fr.Bytes {
			return nil, fmt.Errorf("%w: scalar longer than %d bytes", ErrInvalidPrivateKey, fr.Bytes)
		}
		scalar = new(big.Int).SetBytes(raw)
	}
	return PrivateKeyFromScalar(scalar)
}

// Bytes returns the 32-byte big-endian secret scalar.
func (k *PrivateKey) Bytes() []byte {
	full := k.key.Bytes()
	out := make([]byte, fr.Bytes)
	copy(out, full[len(full)-fr.Bytes:])
	return out
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{key: k.key.PublicKey}
}

// X returns the x coordinate, which is how Starknet contracts identify a
// signer's public key.
func (k *PublicKey) X() Felt {
	return Felt{e: k.key.A.X}
}

// Bytes returns the compressed point encoding.
func (k *PublicKey) Bytes() []byte {
	return k.key.Bytes()
}

// PublicKeyFromBytes decodes a compressed point produced by PublicKey.Bytes.
func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	var pub PublicKey
	if _, err := pub.key.SetBytes(b); err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	return &pub, nil
}

// Verify reports whether sig is a valid signature of msg under k.
func (k *PublicKey) Verify(msg Felt, sig Signature) bool {
	msgBytes := msg.Bytes()
	ok, err := k.key.Verify(sig.bytes(), msgBytes[:], nil)
	return err == nil && ok
}
