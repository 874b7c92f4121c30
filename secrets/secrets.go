// Package secrets stores credentials and session cookies in the OS secret
// store, with a file-based fallback for headless machines.
package secrets

import (
	"encoding/base64"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/zalando/go-keyring"

	"github.com/imxup/imxup/internal/atomicfile"
)

// service namespaces all imxup entries in the OS secret store.
const service = "imxup"

// ErrNotFound is returned when no secret exists under the given key.
var ErrNotFound = errors.New("secret not found")

// Store persists named secrets.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// NewKeyring returns a Store backed by the OS secret store.
func NewKeyring() Store { return keyringStore{} }

type keyringStore struct{}

func (keyringStore) Get(key string) (string, error) {
	v, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}

	return v, errors.Wrap(err, "keyring get")
}

func (keyringStore) Set(key, value string) error {
	return errors.Wrap(keyring.Set(service, key, value), "keyring set")
}

func (keyringStore) Delete(key string) error {
	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}

	return errors.Wrap(err, "keyring delete")
}

// NewFile returns a Store writing base64-obfuscated files under dir. It is
// the fallback when no OS secret store is reachable.
func NewFile(dir string) Store { return fileStore{dir: dir} }

type fileStore struct {
	dir string
}

func (f fileStore) path(key string) string {
	return filepath.Join(f.dir, key+".secret")
}

func (f fileStore) Get(key string) (string, error) {
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}

	if err != nil {
		return "", errors.Wrap(err, "unable to read secret")
	}

	decoded, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return "", errors.Wrap(err, "corrupted secret")
	}

	return string(decoded), nil
}

func (f fileStore) Set(key, value string) error {
	if err := os.MkdirAll(f.dir, 0o700); err != nil {
		return errors.Wrap(err, "unable to create secrets directory")
	}

	encoded := base64.StdEncoding.EncodeToString([]byte(value))

	return errors.Wrap(atomicfile.WriteBytes(f.path(key), []byte(encoded)), "unable to write secret")
}

func (f fileStore) Delete(key string) error {
	err := os.Remove(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return errors.Wrap(err, "unable to delete secret")
}
