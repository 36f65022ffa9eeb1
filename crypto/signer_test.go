package crypto

import (
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := PrivateKeyFromHex("0x4f3edf983ac636a65a842ce7c78d9aa706d3b113b37e2b8c3c6d53295d85f81")
	require.NoError(t, err)
	signer, err := NewSigner(key)
	require.NoError(t, err)
	return signer
}

func TestSignVerify(t *testing.T) {
	signer := newTestSigner(t)
	msg := HashChain(FeltFromUint64(1), FeltFromUint64(2), FeltFromUint64(3), FeltFromUint64(4))
	if msg.BitLen() > 251 {
		t.Skip("reference message exceeds signable range")
	}

	sig, err := signer.Sign(msg)
	require.NoError(t, err)
	require.True(t, signer.PublicKey().Verify(msg, sig))
	require.Less(t, sig.R.BitLen(), 252)
	require.Less(t, sig.S.BitLen(), 252)

	require.False(t, signer.PublicKey().Verify(FeltFromUint64(99), sig))

	other, err := GeneratePrivateKey(nil)
	require.NoError(t, err)
	require.False(t, other.PubKey().Verify(msg, sig))
}

func TestSignRejectsOutOfRangeMessage(t *testing.T) {
	signer := newTestSigner(t)
	msg := FeltFromBigInt(new(big.Int).Lsh(big.NewInt(1), 251))
	_, err := signer.Sign(msg)
	if !errors.Is(err, ErrMessageOutOfRange) {
		t.Fatalf("expected ErrMessageOutOfRange, got %v", err)
	}
}

func TestSignConcurrent(t *testing.T) {
	signer := newTestSigner(t)
	pub := signer.PublicKey()
	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := FeltFromUint64(uint64(1000 + i))
			sig, err := signer.Sign(msg)
			if err != nil {
				errs <- err
				return
			}
			if !pub.Verify(msg, sig) {
				errs <- errors.New("signature did not verify")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

func TestPrivateKeyRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey(nil)
	require.NoError(t, err)
	restored, err := PrivateKeyFromBytes(key.Bytes())
	require.NoError(t, err)
	require.True(t, key.PubKey().X().Equal(restored.PubKey().X()))

	pub, err := PublicKeyFromBytes(key.PubKey().Bytes())
	require.NoError(t, err)
	require.True(t, pub.X().Equal(key.PubKey().X()))
}

func TestPrivateKeyFromScalarRejectsZero(t *testing.T) {
	if _, err := PrivateKeyFromScalar(big.NewInt(0)); !errors.Is(err, ErrInvalidPrivateKey) {
		t.Fatalf("expected ErrInvalidPrivateKey, got %v", err)
	}
	if _, err := PrivateKeyFromHex("not-hex"); err == nil {
		t.Fatalf("expected invalid hex to fail")
	}
}
