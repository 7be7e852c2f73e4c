// Package launcher wires a loaded configuration into running source and
// destination workers: one source worker per hypervisor section, one
// destination worker per distinct DestinationInfo, all sharing a Datastore
// and a single external terminate flag fanned out via errgroup (spec.md §2).
package launcher

import (
	"context"

	"github.com/projecteru2/core/log"
	"golang.org/x/sync/errgroup"

	"github.com/candlepin/virt-who/config"
	"github.com/candlepin/virt-who/datastore"
	"github.com/candlepin/virt-who/destination"
	"github.com/candlepin/virt-who/source"
	"github.com/candlepin/virt-who/status"
	"github.com/candlepin/virt-who/worker"
)

// AdapterFactory builds a source.Adapter for one configured section. The
// concrete protocol implementations (vSphere, RHEV, libvirt, ...) are
// outside this package's scope; the launcher only needs to construct one.
type AdapterFactory func(sec config.Section) (source.Adapter, error)

// ClientFactory builds a destination.Client for one DestinationInfo, shared
// by every source that resolves to the same key.
type ClientFactory func(info config.DestinationInfo) (destination.Client, error)

// Launcher owns the full set of running workers for one process lifetime.
type Launcher struct {
	Store       *datastore.Datastore
	External    *worker.Terminate
	StatusStore *status.Store

	sources      []*source.Worker
	destinations []*destination.Worker
}

// New builds a Launcher from an EffectiveConfig: one source.Worker per
// config.Section, grouped into one destination.Worker per distinct
// DestinationInfo.Key().
func New(ec *config.EffectiveConfig, adapters AdapterFactory, clients ClientFactory) (*Launcher, error) {
	l := &Launcher{
		Store:       datastore.New(),
		External:    worker.NewTerminate(),
		StatusStore: status.New(status.DefaultLockPath, status.DefaultDataPath),
	}

	destGroups := make(map[string][]string) // dest key -> owned source names
	destInfos := make(map[string]config.DestinationInfo)

	for _, sec := range ec.Sections {
		adapter, err := adapters(sec)
		if err != nil {
			return nil, err
		}
		sw := source.NewWorker(sec.Name, adapter, l.Store, sec.Filter, sec.Interval, ec.Oneshot, ec.Status, l.External)
		l.sources = append(l.sources, sw)

		key := sec.Destination.Key()
		destGroups[key] = append(destGroups[key], sec.Name)
		destInfos[key] = sec.Destination
	}

	for key, owned := range destGroups {
		info := destInfos[key]
		client, err := clients(info)
		if err != nil {
			return nil, err
		}
		perSource := info.Type() == config.DestinationSatellite5
		dw := destination.NewWorker(key, client, l.Store, l.StatusStore, owned, ec.Interval, ec.Oneshot, ec.Status, perSource, l.External)
		l.destinations = append(l.destinations, dw)
	}

	return l, nil
}

// Run starts every source and destination worker concurrently and blocks
// until they all finish (oneshot mode) or ctx is canceled.
func (l *Launcher) Run(ctx context.Context) error {
	logger := log.WithFunc("launcher.Run")
	g, ctx := errgroup.WithContext(ctx)

	for _, sw := range l.sources {
		sw := sw
		g.Go(func() error {
			if err := sw.Run(ctx); err != nil {
				logger.Warnf(ctx, "source worker %q exited: %v", sw.ConfigName, err)
			}
			return nil
		})
	}
	for _, dw := range l.destinations {
		dw := dw
		g.Go(func() error {
			if err := dw.Run(ctx); err != nil {
				logger.Warnf(ctx, "destination worker %q exited: %v", dw.Name, err)
				return err
			}
			return nil
		})
	}

	go func() {
		<-ctx.Done()
		l.External.Set()
	}()

	return g.Wait()
}

// Stop trips the shared external terminate flag, asking every worker to
// wind down at the next wait-slice check.
func (l *Launcher) Stop() {
	l.External.Set()
}
