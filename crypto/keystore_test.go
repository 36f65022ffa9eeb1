package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey(nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "signer.json")
	opts := &KeystoreOptions{ScryptN: keystore.LightScryptN, ScryptP: keystore.LightScryptP}
	if err := SaveToKeystore(path, key, "correct horse", opts); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("unexpected keystore permissions %o", perm)
	}

	loaded, err := LoadFromKeystore(path, "correct horse")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.PubKey().X().Equal(key.PubKey().X()) {
		t.Fatalf("loaded key does not match")
	}

	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}

func TestSaveToKeystoreRequiresPassphrase(t *testing.T) {
	key, err := GeneratePrivateKey(nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := SaveToKeystore(filepath.Join(t.TempDir(), "k.json"), key, "", nil); err == nil {
		t.Fatalf("expected empty passphrase to be rejected")
	}
}
