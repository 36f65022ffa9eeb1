package crypto

import (
	pedersenhash "github.com/consensys/gnark-crypto/ecc/stark-curve/pedersen-hash"
)

// Pedersen is the StarkWare two-input Pedersen hash. Operand order matters.
func Pedersen(a, b Felt) Felt {
	return Felt{e: pedersenhash.Pedersen(a.element(), b.element())}
}

// HashChain binds a claimant address, an encoded domain label, a coupon code and
// a campaign constant into the message a voucher signs:
//
//	H(H(H(addr, encodedLabel), code), campaign)
//
// Verifiers recompute the same chain, so the nesting and argument order are
// part of the wire contract.
func HashChain(addr, encodedLabel, code, campaign Felt) Felt {
	h := Pedersen(addr, encodedLabel)
	h = Pedersen(h, code)
	return Pedersen(h, campaign)
}
