// Package datastore implements virt-who's thread-safe keyed report slot map
// (spec.md §4.3): every put is atomic with respect to every get, and both
// put and get operate on a deep copy of the report so neither producer nor
// consumer can mutate the stored value through their own reference.
package datastore

import (
	"fmt"
	"sync"

	"github.com/candlepin/virt-who/report"
)

// Datastore maps source config name to that source's latest report.
type Datastore struct {
	mu    sync.Mutex
	slots map[string]report.Report
}

// New creates an empty Datastore.
func New() *Datastore {
	return &Datastore{slots: make(map[string]report.Report)}
}

// Put stores a deep copy of value under key, overwriting any prior value.
func (d *Datastore) Put(key string, value report.Report) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.slots[key] = value.Clone()
}

// Get returns a deep copy of the report stored under key. If key is unset,
// it returns def if one was provided, otherwise a key-not-found error.
func (d *Datastore) Get(key string, def ...report.Report) (report.Report, error) {
	d.mu.Lock()
	v, ok := d.slots[key]
	d.mu.Unlock()
	if !ok {
		if len(def) > 0 {
			return def[0], nil
		}
		return nil, fmt.Errorf("datastore: key %q not found", key)
	}
	return v.Clone(), nil
}

// Has reports whether key currently has a stored value.
func (d *Datastore) Has(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.slots[key]
	return ok
}
