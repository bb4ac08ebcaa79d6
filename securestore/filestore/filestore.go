package filestore

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/go-sso-client/autherrors"
	"github.com/jrsteele09/go-sso-client/securestore"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	dirPerm  = 0o700
	filePerm = 0o600
	keySize  = 32
	nonceLen = 24
)

var (
	ErrInvalidKey  = errors.New("sealing key must be 32 bytes hex encoded")
	ErrUnsealFails = errors.New("unable to unseal value")
)

var _ securestore.SecureStore = (*Store)(nil)

// Store keeps one file per key under a private directory. When a sealing key
// is configured values are encrypted with NaCl secretbox before they are
// written.
type Store struct {
	dir  string
	key  *[keySize]byte
	lock sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithSealingKey enables secretbox sealing of stored values.
func WithSealingKey(key [keySize]byte) Option {
	return func(s *Store) {
		k := key
		s.key = &k
	}
}

// ParseKey decodes a hex encoded 32-byte sealing key.
func ParseKey(hexKey string) ([keySize]byte, error) {
	var key [keySize]byte
	b, err := hex.DecodeString(hexKey)
	if err != nil || len(b) != keySize {
		return key, ErrInvalidKey
	}
	copy(key[:], b)
	return key, nil
}

// New creates the directory if needed and returns a Store rooted at it.
func New(dir string, options ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("[filestore.New] create %s: %w", dir, err)
	}
	s := &Store{dir: dir}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, base64.RawURLEncoding.EncodeToString([]byte(key)))
}

func (s *Store) Get(key string) ([]byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, autherrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("[filestore.Get] %w", err)
	}
	return s.open(data)
}

// Set writes through a temp file and rename so readers never see a partial
// value.
func (s *Store) Set(key string, value []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	data, err := s.seal(value)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("[filestore.Set] create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("[filestore.Set] chmod: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("[filestore.Set] write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("[filestore.Set] sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[filestore.Set] close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return fmt.Errorf("[filestore.Set] rename: %w", err)
	}
	return nil
}

func (s *Store) Remove(key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("[filestore.Remove] %w", err)
	}
	return nil
}

func (s *Store) seal(value []byte) ([]byte, error) {
	if s.key == nil {
		return value, nil
	}
	var nonce [nonceLen]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("[filestore.seal] nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], value, &nonce, s.key), nil
}

func (s *Store) open(data []byte) ([]byte, error) {
	if s.key == nil {
		return data, nil
	}
	if len(data) < nonceLen {
		return nil, ErrUnsealFails
	}
	var nonce [nonceLen]byte
	copy(nonce[:], data[:nonceLen])
	out, ok := secretbox.Open(nil, data[nonceLen:], &nonce, s.key)
	if !ok {
		return nil, ErrUnsealFails
	}
	return out, nil
}
