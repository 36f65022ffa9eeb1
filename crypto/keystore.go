package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

const (
	keystoreVersion = 1
	keystoreCurve   = "stark"
)

// keyFile is the on-disk layout of an encrypted signer key.
type keyFile struct {
	Version   int                 `json:"version"`
	Curve     string              `json:"curve"`
	PublicKey string              `json:"publicKey"`
	Crypto    keystore.CryptoJSON `json:"crypto"`
}

// KeystoreOptions tunes the scrypt cost. Zero values select the go-ethereum
// standard parameters.
type KeystoreOptions struct {
	ScryptN int
	ScryptP int
}

// SaveToKeystore encrypts the key's scalar with the passphrase and writes it to
// path. The parent directory is created with 0700 permissions if missing.
func SaveToKeystore(path string, key *PrivateKey, passphrase string, opts *KeystoreOptions) error {
	if key == nil || key.key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	if passphrase == "" {
		return errors.New("crypto: empty keystore passphrase")
	}
	scryptN, scryptP := keystore.StandardScryptN, keystore.StandardScryptP
	if opts != nil && opts.ScryptN > 0 {
		scryptN = opts.ScryptN
	}
	if opts != nil && opts.ScryptP > 0 {
		scryptP = opts.ScryptP
	}

	encrypted, err := keystore.EncryptDataV3(key.Bytes(), []byte(passphrase), scryptN, scryptP)
	if err != nil {
		return fmt.Errorf("crypto: encrypt key: %w", err)
	}
	payload, err := json.MarshalIndent(keyFile{
		Version:   keystoreVersion,
		Curve:     keystoreCurve,
		PublicKey: key.PubKey().X().Hex(),
		Crypto:    encrypted,
	}, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "keystore-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// LoadFromKeystore decrypts a key written by SaveToKeystore.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file keyFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("crypto: decode keystore: %w", err)
	}
	if file.Version != keystoreVersion || file.Curve != keystoreCurve {
		return nil, fmt.Errorf("crypto: unsupported keystore version %d curve %q", file.Version, file.Curve)
	}
	scalar, err := keystore.DecryptDataV3(file.Crypto, passphrase)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt keystore: %w", err)
	}
	key, err := PrivateKeyFromBytes(scalar)
	if err != nil {
		return nil, err
	}
	if file.PublicKey != "" && key.PubKey().X().Hex() != file.PublicKey {
		return nil, errors.New("crypto: keystore public key does not match decrypted scalar")
	}
	return key, nil
}
