package kv

import (
	"github.com/patrickmn/go-cache"
)

// Memory is an in-process Store. Values never expire and are lost when the
// process exits.
type Memory struct {
	c *cache.Cache
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{c: cache.New(cache.NoExpiration, 0)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	x, found := m.c.Get(key)
	if !found {
		return "", false, nil
	}
	v, _ := x.(string)
	return v, true, nil
}

func (m *Memory) Set(key, value string) error {
	m.c.Set(key, value, cache.NoExpiration)
	return nil
}

func (m *Memory) Delete(key string) error {
	m.c.Delete(key)
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	return m.c.ItemCount()
}

// Close is a no-op; it lets Memory stand in wherever a closable backend is expected.
func (m *Memory) Close() error {
	return nil
}
