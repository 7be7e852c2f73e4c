// Package source implements the source worker side of virt-who: one worker
// per configured hypervisor section, polling an Adapter on a cadence and
// writing reports into the shared datastore (spec.md §4.6).
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/projecteru2/core/log"

	"github.com/candlepin/virt-who/datastore"
	"github.com/candlepin/virt-who/filter"
	"github.com/candlepin/virt-who/report"
	"github.com/candlepin/virt-who/worker"
)

// VirtError is raised by an Adapter on a recoverable failure (bad network,
// bad credentials for this cycle, malformed response). The base loop
// catches it, logs, and retries after the interval; it never crashes the
// process.
type VirtError struct {
	Config string
	Err    error
}

func (e *VirtError) Error() string {
	return fmt.Sprintf("virt backend %q: %v", e.Config, e.Err)
}

func (e *VirtError) Unwrap() error { return e.Err }

// NewVirtError wraps err as a VirtError for config.
func NewVirtError(config string, err error) *VirtError {
	return &VirtError{Config: config, Err: err}
}

// Adapter is the capability every hypervisor protocol adapter presents to
// the core (vSphere, RHEV, Hyper-V, libvirt, XenAPI, Kubernetes, Nutanix,
// AHV, Satellite 5, or a fake/local adapter). Out of scope per spec.md §1:
// only this interface is specified, concrete adapters are black boxes.
type Adapter interface {
	// IsHypervisor reports whether this adapter represents a hypervisor
	// manager (getHostGuestMapping) or a single local host (listDomains).
	IsHypervisor() bool
	Prepare(ctx context.Context) error
	Cleanup(ctx context.Context) error
	// GetHostGuestMapping is called when IsHypervisor is true.
	GetHostGuestMapping(ctx context.Context) ([]report.Hypervisor, error)
	// ListDomains is called when IsHypervisor is false.
	ListDomains(ctx context.Context) ([]report.Guest, string, error)
}

// StatusAdapter is optionally implemented by an Adapter to support
// status-mode liveness/credential probing in place of normal collection.
type StatusAdapter interface {
	Status(ctx context.Context) (map[string]any, error)
}

// Worker is one source worker: one per configured hypervisor section.
type Worker struct {
	*worker.IntervalThread

	ConfigName string
	Adapter    Adapter
	Store      *datastore.Datastore
	Filter     *filter.Matcher
	Interval   time.Duration
	Oneshot    bool
	Status     bool
}

// NewWorker constructs a source Worker.
func NewWorker(configName string, adapter Adapter, store *datastore.Datastore, m *filter.Matcher, interval time.Duration, oneshot, status bool, external *worker.Terminate) *Worker {
	return &Worker{
		IntervalThread: worker.New(configName, external),
		ConfigName:     configName,
		Adapter:        adapter,
		Store:          store,
		Filter:         m,
		Interval:       interval,
		Oneshot:        oneshot,
		Status:         status,
	}
}

// Run executes the worker's lifetime: prepare once, then poll on Interval
// until terminated, emitting an Error report downstream on failure (so
// destination workers in oneshot mode don't block forever waiting for
// data) and retrying after one full interval.
func (w *Worker) Run(ctx context.Context) error {
	logger := log.WithFunc("source.Run")
	if err := w.Adapter.Prepare(ctx); err != nil {
		logger.Errorf(ctx, "backend %q failed to prepare: %v", w.ConfigName, err)
		return err
	}
	defer func() { _ = w.Adapter.Cleanup(ctx) }()

	return w.RunLoop(ctx, w.Interval, w.Oneshot, func(ctx context.Context) error {
		r, err := w.cycle(ctx)
		if err != nil {
			var ve *VirtError
			if !errors.As(err, &ve) {
				ve = NewVirtError(w.ConfigName, err)
			}
			logger.Errorf(ctx, "backend %q fails with error: %v", w.ConfigName, ve.Err)
			w.Store.Put(w.ConfigName, report.NewErrorReport(w.ConfigName, ve))
			return err
		}
		w.Store.Put(w.ConfigName, r)
		return nil
	})
}

// cycle performs one collection and returns the report it produced.
func (w *Worker) cycle(ctx context.Context) (report.Report, error) {
	if w.Status {
		sa, ok := w.Adapter.(StatusAdapter)
		if !ok {
			return nil, NewVirtError(w.ConfigName, fmt.Errorf("adapter does not support status mode"))
		}
		data, err := sa.Status(ctx)
		if err != nil {
			return nil, err
		}
		sr := report.NewStatusReport(w.ConfigName)
		sr.Source = data
		return sr, nil
	}

	if w.Adapter.IsHypervisor() {
		hvs, err := w.Adapter.GetHostGuestMapping(ctx)
		if err != nil {
			return nil, err
		}
		return report.NewHostGuestAssociationReport(w.ConfigName, hvs, w.Filter), nil
	}

	guests, hypervisorID, err := w.Adapter.ListDomains(ctx)
	if err != nil {
		return nil, err
	}
	return report.NewGuestListReport(w.ConfigName, guests, hypervisorID), nil
}
