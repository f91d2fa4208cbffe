package crypto

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// SaveToKeystore encrypts the private key into a v3 keystore file at path,
// creating the parent directory if needed. The file ends up owner-readable
// only; authority keys never touch disk unencrypted.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keystore path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	// The keystore package only writes into a directory it manages, so stage
	// the import in a temp store and move the resulting file into place.
	staging, err := os.MkdirTemp(dir, "keystore-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)

	store := keystore.NewKeyStore(staging, keystore.StandardScryptN, keystore.StandardScryptP)
	if _, err := store.ImportECDSA(key.PrivateKey, passphrase); err != nil {
		return fmt.Errorf("crypto: keystore import: %w", err)
	}

	entries, err := os.ReadDir(staging)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.New("crypto: keystore import produced no file")
	}

	staged := filepath.Join(staging, entries[0].Name())
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Rename(staged, path); err != nil {
		return err
	}
	return os.Chmod(path, 0o600)
}

// LoadFromKeystore decrypts a v3 keystore file with the supplied passphrase.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}

	encrypted, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	decrypted, err := keystore.DecryptKey(encrypted, passphrase)
	if err != nil {
		return nil, fmt.Errorf("crypto: keystore decrypt: %w", err)
	}
	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}
