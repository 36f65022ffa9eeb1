package naming

import (
	"errors"
	"strings"
	"testing"

	"starkvoucher/crypto"
)

func TestEncodeLabelVectors(t *testing.T) {
	cases := map[string]uint64{
		"a":     37,
		"b":     1,
		"ben":   18925,
		"abcde": 8508086,
		"ba":    1 + 37*38,
		"ab":    38,
		"这":     75,
		"来":     113,
		"这a":    2849,
		"ben来":  6219461,
	}
	for label, want := range cases {
		got, err := EncodeLabel(label)
		if err != nil {
			t.Fatalf("encode %q: %v", label, err)
		}
		if !got.Equal(crypto.FeltFromUint64(want)) {
			t.Fatalf("encode %q: got %s want %d", label, got, want)
		}
	}
}

func TestDecodeLabelRoundTrip(t *testing.T) {
	labels := []string{"a", "aa", "ab", "ba", "ben", "abcde", "starknet", "free-domain-2024", "zzzzz", "0000a",
		"这这这这这", "来这abc", "abc这来x", "starknet这", "这来这来这"}
	for _, label := range labels {
		encoded, err := EncodeLabel(label)
		if err != nil {
			t.Fatalf("encode %q: %v", label, err)
		}
		decoded, err := DecodeLabel(encoded)
		if err != nil {
			t.Fatalf("decode %q: %v", label, err)
		}
		if decoded != label {
			t.Fatalf("round trip mismatch: %q became %q", label, decoded)
		}
	}
}

func TestEncodeLabelRejects(t *testing.T) {
	if _, err := EncodeLabel(""); !errors.Is(err, ErrEmptyLabel) {
		t.Fatalf("expected ErrEmptyLabel, got %v", err)
	}
	for _, label := range []string{"Hello", "café", "a_b", "a.b", "百度", "你好你好你"} {
		if _, err := EncodeLabel(label); !errors.Is(err, ErrUnsupportedCharacter) {
			t.Fatalf("expected ErrUnsupportedCharacter for %q, got %v", label, err)
		}
	}
	if _, err := EncodeLabel(strings.Repeat("z", 64)); !errors.Is(err, ErrLabelTooLong) {
		t.Fatalf("expected ErrLabelTooLong, got %v", err)
	}
}

func TestEncodeLabelReportsRune(t *testing.T) {
	_, err := EncodeLabel("abcdé")
	if !errors.Is(err, ErrUnsupportedCharacter) {
		t.Fatalf("expected ErrUnsupportedCharacter, got %v", err)
	}
	if !strings.Contains(err.Error(), "'é' at position 4") {
		t.Fatalf("error should name the offending character: %v", err)
	}
}

func TestDecodeLabelYieldsPreimage(t *testing.T) {
	symbols := []string{"a", "b", "-", "这", "来"}
	labels := []string{""}
	for n := 1; n <= 4; n++ {
		var grown []string
		for _, prefix := range labels {
			for _, sym := range symbols {
				grown = append(grown, prefix+sym)
			}
		}
		labels = grown
		for _, label := range labels {
			encoded, err := EncodeLabel(label)
			if err != nil {
				t.Fatalf("encode %q: %v", label, err)
			}
			decoded, err := DecodeLabel(encoded)
			if err != nil {
				t.Fatalf("decode %q: %v", label, err)
			}
			again, err := EncodeLabel(decoded)
			if err != nil {
				t.Fatalf("re-encode %q: %v", decoded, err)
			}
			if !again.Equal(encoded) {
				t.Fatalf("%q decoded to %q which encodes differently", label, decoded)
			}
		}
	}
}

func TestDecodeLabelSharedEncoding(t *testing.T) {
	encoded, err := EncodeLabel("这b")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeLabel(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != "来" {
		t.Fatalf("expected canonical label 来, got %q", decoded)
	}
}

func TestDecodeLabelRejectsZero(t *testing.T) {
	if _, err := DecodeLabel(crypto.Felt{}); !errors.Is(err, ErrEmptyLabel) {
		t.Fatalf("expected ErrEmptyLabel, got %v", err)
	}
}
