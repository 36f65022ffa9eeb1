package crypto

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"
)

const starkPrime = "3618502788666131213697322783095070105623107215331596699973092056135872020481"

func TestFeltFromDecimal(t *testing.T) {
	f, err := FeltFromDecimal("12345")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.String() != "12345" {
		t.Fatalf("unexpected value %s", f)
	}
	if f.Hex() != "0x3039" {
		t.Fatalf("unexpected hex %s", f.Hex())
	}

	pMinusOne := new(big.Int)
	pMinusOne.SetString(starkPrime, 10)
	pMinusOne.Sub(pMinusOne, big.NewInt(1))
	top, err := FeltFromDecimal(pMinusOne.String())
	if err != nil {
		t.Fatalf("p-1 should parse: %v", err)
	}
	if top.String() != pMinusOne.String() {
		t.Fatalf("p-1 round trip mismatch: %s", top)
	}
}

func TestFeltFromDecimalRejects(t *testing.T) {
	for _, input := range []string{"", "-1", "+1", "0x10", "12a", " 12", "1.5", starkPrime} {
		if _, err := FeltFromDecimal(input); !errors.Is(err, ErrInvalidFieldElement) {
			t.Fatalf("expected ErrInvalidFieldElement for %q, got %v", input, err)
		}
	}
}

func TestFeltFromCouponUsesDecimalRule(t *testing.T) {
	if _, err := FeltFromCoupon("SUMMER-2024"); !errors.Is(err, ErrInvalidFieldElement) {
		t.Fatalf("expected non-numeric coupon to fail, got %v", err)
	}
	code, err := FeltFromCoupon("000123")
	if err != nil {
		t.Fatalf("coupon: %v", err)
	}
	if !code.Equal(FeltFromUint64(123)) {
		t.Fatalf("unexpected coupon felt %s", code)
	}
}

func TestParseFeltHexAndDecimal(t *testing.T) {
	hex, err := ParseFelt("0x3039")
	if err != nil {
		t.Fatalf("hex: %v", err)
	}
	dec, err := ParseFelt("12345")
	if err != nil {
		t.Fatalf("decimal: %v", err)
	}
	if !hex.Equal(dec) {
		t.Fatalf("hex and decimal forms differ: %s vs %s", hex, dec)
	}
	if _, err := ParseFelt("0x"); err == nil {
		t.Fatalf("expected empty hex to fail")
	}
	if _, err := ParseFelt("0x800000000000011000000000000000000000000000000000000000000000001"); err == nil {
		t.Fatalf("expected p in hex to be rejected")
	}
}

func TestFeltFromBytes(t *testing.T) {
	f, err := FeltFromBytes([]byte{0x30, 0x39})
	if err != nil {
		t.Fatalf("bytes: %v", err)
	}
	if f.String() != "12345" {
		t.Fatalf("unexpected value %s", f)
	}
	b := f.Bytes()
	if b[FeltBytes-2] != 0x30 || b[FeltBytes-1] != 0x39 {
		t.Fatalf("unexpected big-endian encoding %x", b)
	}
	if _, err := FeltFromBytes(make([]byte, FeltBytes+1)); err == nil {
		t.Fatalf("expected oversize input to fail")
	}
}

func TestFeltFromBigIntReduces(t *testing.T) {
	p, _ := new(big.Int).SetString(starkPrime, 10)
	over := new(big.Int).Add(p, big.NewInt(7))
	if got := FeltFromBigInt(over); !got.Equal(FeltFromUint64(7)) {
		t.Fatalf("expected reduction mod p, got %s", got)
	}
}

func TestFeltJSON(t *testing.T) {
	payload, err := json.Marshal(struct {
		V Felt `json:"v"`
	}{V: FeltFromUint64(255)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(payload) != `{"v":"0xff"}` {
		t.Fatalf("unexpected json %s", payload)
	}
	var decoded struct {
		A Felt `json:"a"`
		B Felt `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":"0xff","b":255}`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.A.Equal(decoded.B) {
		t.Fatalf("expected equal felts, got %s and %s", decoded.A, decoded.B)
	}
}
