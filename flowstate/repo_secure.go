package flowstate

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-sso-client/autherrors"
	"github.com/jrsteele09/go-sso-client/securestore"
)

// StorageKey is the SecureStore key holding the serialized flow state.
const StorageKey = "Serialized.AuthFlowState"

var _ Repo = (*SecureRepo)(nil)

// SecureRepo keeps the flow state as JSON in a SecureStore next to the
// credential.
type SecureRepo struct {
	secure securestore.SecureStore
	key    string
}

func NewSecureRepo(secure securestore.SecureStore) *SecureRepo {
	return &SecureRepo{
		secure: secure,
		key:    StorageKey,
	}
}

// WithKey returns a copy of the repo using a different storage key.
func (r *SecureRepo) WithKey(key string) *SecureRepo {
	return &SecureRepo{secure: r.secure, key: key}
}

func (r *SecureRepo) Upsert(state *AuthFlowState) error {
	if state == nil {
		return errors.New("[flowstate.Upsert] state cannot be nil")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("[flowstate.Upsert] %v: %w", err, autherrors.ErrStoreWriteFailed)
	}
	if err := r.secure.Set(r.key, data); err != nil {
		return fmt.Errorf("[flowstate.Upsert] %v: %w", err, autherrors.ErrStoreWriteFailed)
	}
	return nil
}

func (r *SecureRepo) Get() (*AuthFlowState, error) {
	data, err := r.secure.Get(r.key)
	if err != nil {
		return nil, fmt.Errorf("[flowstate.Get] %w", err)
	}
	var state AuthFlowState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("[flowstate.Get] %v: %w", err, autherrors.ErrStoreCorrupt)
	}
	return &state, nil
}

func (r *SecureRepo) Delete() error {
	if err := r.secure.Remove(r.key); err != nil && !errors.Is(err, autherrors.ErrNotFound) {
		return fmt.Errorf("[flowstate.Delete] %v: %w", err, autherrors.ErrStoreWriteFailed)
	}
	return nil
}
