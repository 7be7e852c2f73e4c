// Package status persists the last-known heartbeat of every source and
// destination worker to a JSON file for `virt-who --status`, reusing the
// generic flock-guarded JSON store in storage/json
// (spec.md SPEC_FULL.md §4.11).
package status

import (
	"context"
	"time"

	jsonstore "github.com/candlepin/virt-who/storage/json"
)

// Default status file paths (spec.md §6: "an implementation-defined path").
const (
	DefaultLockPath = "/var/lib/virt-who/status.lock"
	DefaultDataPath = "/var/lib/virt-who/status.json"
)

// Entry is one worker's last-known status.
type Entry struct {
	LastSuccess time.Time      `json:"lastSuccess"`
	LastError   string         `json:"lastError,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Document is the on-disk schema: one Entry per named source and
// destination worker.
type Document struct {
	Sources      map[string]Entry `json:"sources"`
	Destinations map[string]Entry `json:"destinations"`
}

// Init satisfies storage.Initer so a missing or partially-written file
// never yields nil maps.
func (d *Document) Init() {
	if d.Sources == nil {
		d.Sources = make(map[string]Entry)
	}
	if d.Destinations == nil {
		d.Destinations = make(map[string]Entry)
	}
}

// Store provides locked read/modify/write access to the status document.
type Store struct {
	inner *jsonstore.Store[Document]
}

// New creates a Store backed by the JSON file at dataPath, using lockPath
// for the flock.
func New(lockPath, dataPath string) *Store {
	return &Store{inner: jsonstore.New[Document](lockPath, dataPath)}
}

// RecordSourceSuccess updates a source's last-success timestamp and data.
func (s *Store) RecordSourceSuccess(ctx context.Context, name string, data map[string]any) error {
	return s.inner.Update(ctx, func(d *Document) error {
		d.Sources[name] = Entry{LastSuccess: now(), Data: data}
		return nil
	})
}

// RecordSourceError records a source's last failure, preserving the
// previous LastSuccess.
func (s *Store) RecordSourceError(ctx context.Context, name string, errMsg string) error {
	return s.inner.Update(ctx, func(d *Document) error {
		e := d.Sources[name]
		e.LastError = errMsg
		d.Sources[name] = e
		return nil
	})
}

// RecordDestinationSuccess updates a destination's last-success timestamp.
func (s *Store) RecordDestinationSuccess(ctx context.Context, name string, data map[string]any) error {
	return s.inner.Update(ctx, func(d *Document) error {
		d.Destinations[name] = Entry{LastSuccess: now(), Data: data}
		return nil
	})
}

// Snapshot returns a copy of the current document for `--status` reporting.
func (s *Store) Snapshot(ctx context.Context) (Document, error) {
	var out Document
	err := s.inner.With(ctx, func(d *Document) error {
		out = *d
		return nil
	})
	return out, err
}

// now is a seam so tests can stub the clock; production uses wall time.
var now = time.Now
