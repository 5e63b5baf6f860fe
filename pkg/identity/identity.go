// Package identity is the interface to the external user directory. The
// core only stores opaque username references; registration credentials,
// sessions and profiles live outside this repository.
package identity

import (
	"strings"

	"chabrush/pkg/cerrs"
	"chabrush/pkg/store"
)

// Directory answers "does this user exist" for boundary validation.
type Directory interface {
	Register(name string) error
	Exists(name string) bool
	List() ([]string, error)
}

const acctPrefix = "acct:"

// storeDirectory keeps username references in the shared pebble store.
type storeDirectory struct{}

// NewStoreDirectory returns a Directory backed by the opened store.
func NewStoreDirectory() Directory { return storeDirectory{} }

func (storeDirectory) Register(name string) error {
	name = strings.TrimSpace(name)
	if len(name) < 3 {
		return cerrs.Validationf("username must be at least 3 characters")
	}
	if strings.ContainsAny(name, ":/ \t\n") {
		return cerrs.Validationf("username contains invalid characters")
	}
	if _, err := store.Get(acctPrefix + name); err == nil {
		return cerrs.Validationf("username %s already taken", name)
	}
	return store.Set(acctPrefix+name, []byte("1"))
}

func (storeDirectory) Exists(name string) bool {
	_, err := store.Get(acctPrefix + name)
	return err == nil
}

func (storeDirectory) List() ([]string, error) {
	out := []string{}
	err := store.ScanPrefix(acctPrefix, func(key string, _ []byte) error {
		out = append(out, strings.TrimPrefix(key, acctPrefix))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
