// Package naming converts Starknet domain labels to and from their field
// element encoding.
package naming

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"starkvoucher/crypto"
)

const (
	basicAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789-"
	// bigAlphabet holds the characters reachable through the escape digit.
	bigAlphabet = "这来"
)

var (
	// ErrEmptyLabel is returned for a zero-length label.
	ErrEmptyLabel = errors.New("naming: empty label")
	// ErrUnsupportedCharacter is returned when a label contains characters
	// outside both alphabets.
	ErrUnsupportedCharacter = errors.New("naming: unsupported character")
	// ErrLabelTooLong is returned when the encoding does not fit in a field
	// element.
	ErrLabelTooLong = errors.New("naming: label too long")

	basicRunes = []rune(basicAlphabet)
	bigRunes   = []rune(bigAlphabet)

	basicSize        = big.NewInt(int64(len(basicRunes)))
	basicSizePlusOne = big.NewInt(int64(len(basicRunes) + 1))
	bigSize          = big.NewInt(int64(len(bigRunes)))
	bigSizePlusOne   = big.NewInt(int64(len(bigRunes) + 1))
)

func indexRune(alphabet []rune, r rune) int {
	for i, c := range alphabet {
		if c == r {
			return i
		}
	}
	return -1
}

// EncodeLabel maps a single domain label to its field encoding. Basic
// characters are base-38 digits. Digit 37 escapes either a trailing "a" or a
// character of the big alphabet, which then takes one base-2 digit (base 3
// when it ends the label).
func EncodeLabel(label string) (crypto.Felt, error) {
	if label == "" {
		return crypto.Felt{}, ErrEmptyLabel
	}
	encoded := new(big.Int)
	multiplier := big.NewInt(1)
	add := func(digit int64) {
		encoded.Add(encoded, new(big.Int).Mul(multiplier, big.NewInt(digit)))
	}

	runes := []rune(label)
	last := len(runes) - 1
	for i, r := range runes {
		if idx := indexRune(basicRunes, r); idx >= 0 {
			if i == last && idx == 0 {
				add(basicSize.Int64())
				multiplier.Mul(multiplier, basicSizePlusOne)
				multiplier.Mul(multiplier, basicSizePlusOne)
				continue
			}
			add(int64(idx))
			multiplier.Mul(multiplier, basicSizePlusOne)
			continue
		}
		idx := indexRune(bigRunes, r)
		if idx < 0 {
			return crypto.Felt{}, fmt.Errorf("%w: %q at position %d", ErrUnsupportedCharacter, r, i)
		}
		add(basicSize.Int64())
		multiplier.Mul(multiplier, basicSizePlusOne)
		if i == last {
			idx++
		}
		add(int64(idx))
		multiplier.Mul(multiplier, bigSize)
	}

	felt, err := crypto.FeltFromBytes(encoded.Bytes())
	if err != nil {
		return crypto.Felt{}, fmt.Errorf("%w: %d characters", ErrLabelTooLong, utf8.RuneCountInString(label))
	}
	return felt, nil
}

// DecodeLabel inverts EncodeLabel. Some labels share an encoding (a trailing
// "来" and "这b" for instance); the result is always a label that encodes
// back to the same value.
func DecodeLabel(encoded crypto.Felt) (string, error) {
	if encoded.IsZero() {
		return "", ErrEmptyLabel
	}
	v := encoded.BigInt()
	digit := new(big.Int)
	next := new(big.Int)
	var b strings.Builder
	for v.Sign() > 0 {
		v.DivMod(v, basicSizePlusOne, digit)
		d := int(digit.Int64())
		if d != len(basicRunes) {
			b.WriteRune(basicRunes[d])
			continue
		}
		next.Quo(v, bigSizePlusOne)
		if next.Sign() == 0 {
			// Final escape: 0 is a trailing "a", otherwise a big character.
			switch last := int(v.Int64()); last {
			case 0:
				b.WriteRune(basicRunes[0])
			default:
				b.WriteRune(bigRunes[last-1])
			}
			break
		}
		v.DivMod(v, bigSize, digit)
		b.WriteRune(bigRunes[digit.Int64()])
	}
	return b.String(), nil
}
