package credential

import (
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-sso-client/autherrors"
	"github.com/jrsteele09/go-sso-client/securestore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StorageKey is the SecureStore key holding the serialized credential.
const StorageKey = "KeycloakCredentials"

// Store loads, saves and clears the persisted copy of a Credential. It holds
// no live reference: every Load decodes a new value.
type Store struct {
	secure  securestore.SecureStore
	key     string
	logger  zerolog.Logger
	nowTime func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

func WithStoreLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithStorageKey overrides StorageKey, allowing several realms to share one
// SecureStore.
func WithStorageKey(key string) StoreOption {
	return func(s *Store) {
		s.key = key
	}
}

// WithStoreNowTime sets the clock used for blobs that predate absolute
// expiry instants.
func WithStoreNowTime(nowFunc func() time.Time) StoreOption {
	return func(s *Store) {
		s.nowTime = nowFunc
	}
}

func NewStore(secure securestore.SecureStore, options ...StoreOption) *Store {
	s := &Store{
		secure:  secure,
		key:     StorageKey,
		logger:  log.Logger,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Load returns the stored credential. A missing entry, a read failure and an
// unparsable blob all report ok=false: a corrupt store is the same as no
// store.
func (s *Store) Load() (cred *Credential, ok bool) {
	blob, err := s.secure.Get(s.key)
	if errors.Is(err, autherrors.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("Unable to read stored credentials")
		return nil, false
	}

	cred, err = Unmarshal(blob, s.nowTime())
	if err != nil {
		s.logger.Warn().Err(err).Str("key", s.key).Msg("Ignoring corrupt stored credentials")
		return nil, false
	}
	return cred, true
}

// Save persists the credential. Failure is wrapped in
// autherrors.ErrStoreWriteFailed: the store is assumed durable, so a failed
// write means auth state cannot be kept and the calling operation must abort.
func (s *Store) Save(cred *Credential) error {
	if cred == nil {
		return fmt.Errorf("[credential.Store.Save] nil credential: %w", autherrors.ErrStoreWriteFailed)
	}
	blob, err := cred.Marshal()
	if err != nil {
		return fmt.Errorf("[credential.Store.Save] %v: %w", err, autherrors.ErrStoreWriteFailed)
	}
	if err := s.secure.Set(s.key, blob); err != nil {
		s.logger.Error().Err(err).Str("key", s.key).Msg("Unable to store auth credentials")
		return fmt.Errorf("[credential.Store.Save] %v: %w", err, autherrors.ErrStoreWriteFailed)
	}
	return nil
}

// Clear removes the stored entry. Clearing an absent entry is not an error.
func (s *Store) Clear() error {
	if err := s.secure.Remove(s.key); err != nil && !errors.Is(err, autherrors.ErrNotFound) {
		return fmt.Errorf("[credential.Store.Clear] %v: %w", err, autherrors.ErrStoreWriteFailed)
	}
	return nil
}
