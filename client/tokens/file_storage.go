package tokens

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/santierhq/santier/pkg/crypto"
)

// FileStorage keeps the token pair in an AES-256-GCM encrypted file. It
// stands in for platform secure storage on desktop builds.
type FileStorage struct {
	mu   sync.Mutex
	path string
	key  []byte
}

type tokenFile struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// NewFileStorage builds a FileStorage. The key must be 32 bytes.
func NewFileStorage(path string, key []byte) (*FileStorage, error) {
	if len(key) != 32 {
		return nil, errors.New("tokens: encryption key must be 32 bytes")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("tokens: create dir: %w", err)
	}
	return &FileStorage{path: path, key: key}, nil
}

func (f *FileStorage) GetAccessToken() (string, error) {
	pair, err := f.load()
	if err != nil {
		return "", err
	}
	return pair.AccessToken, nil
}

func (f *FileStorage) GetRefreshToken() (string, error) {
	pair, err := f.load()
	if err != nil {
		return "", err
	}
	return pair.RefreshToken, nil
}

func (f *FileStorage) SetTokens(access, refresh string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, err := json.Marshal(tokenFile{AccessToken: access, RefreshToken: refresh})
	if err != nil {
		return err
	}

	sealed, err := crypto.Encrypt(raw, f.key)
	if err != nil {
		return fmt.Errorf("tokens: encrypt: %w", err)
	}

	return os.WriteFile(f.path, []byte(sealed), 0o600)
}

func (f *FileStorage) ClearTokens() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (f *FileStorage) load() (tokenFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sealed, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return tokenFile{}, nil
	}
	if err != nil {
		return tokenFile{}, err
	}

	raw, err := crypto.Decrypt(string(sealed), f.key)
	if err != nil {
		return tokenFile{}, fmt.Errorf("tokens: decrypt: %w", err)
	}

	var pair tokenFile
	if err := json.Unmarshal(raw, &pair); err != nil {
		return tokenFile{}, err
	}
	return pair, nil
}
