package securestore

// SecureStore is opaque key/value persistence with confidentiality
// guarantees (keychain, keyring, sealed files).
//
// Get returns autherrors.ErrNotFound when the key is absent. Remove of an
// absent key is not an error.
type SecureStore interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Remove(key string) error
}
