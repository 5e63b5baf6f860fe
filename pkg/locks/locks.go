// Package locks provides per-key mutual exclusion so concurrent mutations
// of the same record serialize without a global lock across unrelated
// records.
package locks

import "sync"

// Keyed hands out one mutex per key, created on first use.
type Keyed struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (k *Keyed) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.m == nil {
		k.m = make(map[string]*sync.Mutex)
	}
	if l, ok := k.m[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	k.m[key] = l
	return l
}

// Lock acquires the mutex for key.
func (k *Keyed) Lock(key string) { k.get(key).Lock() }

// Unlock releases the mutex for key.
func (k *Keyed) Unlock(key string) { k.get(key).Unlock() }
