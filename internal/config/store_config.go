package config

import (
	"os"
	"path/filepath"
)

const (
	storeDirVar = "SSO_STORE_DIR"
	storeKeyVar = "SSO_STORE_KEY"
)

type StoreConfig interface {
	GetStoreDir() string
	GetStoreKey() string
}

type Store struct{}

var _ StoreConfig = Store{}

// GetStoreDir defaults to a per-user directory under the OS config dir.
func (Store) GetStoreDir() string {
	if dir := GetEnv(storeDirVar, ""); dir != "" {
		return dir
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(base, "ssoctl")
}

// GetStoreKey returns the hex encoded sealing key, or "" for an unsealed store.
func (Store) GetStoreKey() string {
	return GetEnv(storeKeyVar, "")
}
