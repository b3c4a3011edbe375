// Package kv provides string key-value stores for client-side style storage.
//
// A Store behaves like a browser's local storage: keys and values are plain
// strings, a missing key is not an error, and deleting a missing key is a no-op.
package kv

// Store is a persistent string key-value store.
type Store interface {
	// Get returns the value stored under key. ok is false if the key is absent.
	Get(key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(key, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error
}

// PrefixedStore namespaces every key of an underlying Store.
type PrefixedStore struct {
	store  Store
	prefix string
}

// Prefixed returns a Store that prepends prefix to every key before
// delegating to s. It lets many clients share one server-side store.
func Prefixed(s Store, prefix string) *PrefixedStore {
	return &PrefixedStore{store: s, prefix: prefix}
}

func (p *PrefixedStore) Get(key string) (string, bool, error) {
	return p.store.Get(p.prefix + key)
}

func (p *PrefixedStore) Set(key, value string) error {
	return p.store.Set(p.prefix+key, value)
}

func (p *PrefixedStore) Delete(key string) error {
	return p.store.Delete(p.prefix + key)
}

// Backend is a Store that holds resources which must be released.
type Backend interface {
	Store
	Close() error
}
