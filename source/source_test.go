package source

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/candlepin/virt-who/datastore"
	"github.com/candlepin/virt-who/report"
	"github.com/candlepin/virt-who/worker"
)

func writeFixture(t *testing.T, fx fakeFixture) string {
	t.Helper()
	data, err := json.Marshal(fx)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestFakeAdapterGetHostGuestMapping(t *testing.T) {
	path := writeFixture(t, fakeFixture{Hypervisors: []fakeHypervisor{
		{
			UUID: "hv-1",
			Name: "host-1",
			Guests: []fakeGuest{
				{GuestID: "guest-1", State: int(report.StateRunning)},
			},
		},
	}})

	a := NewFakeAdapter(path, true, "")
	hvs, err := a.GetHostGuestMapping(context.Background())
	if err != nil {
		t.Fatalf("GetHostGuestMapping: %v", err)
	}
	if len(hvs) != 1 || hvs[0].HypervisorID != "hv-1" {
		t.Fatalf("unexpected hypervisors: %+v", hvs)
	}
	if len(hvs[0].Guests) != 1 || hvs[0].Guests[0].UUID != "guest-1" {
		t.Fatalf("unexpected guests: %+v", hvs[0].Guests)
	}
}

func TestFakeAdapterListDomainsRejectsMultipleHypervisors(t *testing.T) {
	path := writeFixture(t, fakeFixture{Hypervisors: []fakeHypervisor{
		{UUID: "hv-1"}, {UUID: "hv-2"},
	}})

	a := NewFakeAdapter(path, false, "local")
	if _, _, err := a.ListDomains(context.Background()); err == nil {
		t.Fatalf("expected error for multi-hypervisor fixture on a non-hypervisor adapter")
	}
}

func TestWorkerOneshotWritesReportToDatastore(t *testing.T) {
	path := writeFixture(t, fakeFixture{Hypervisors: []fakeHypervisor{
		{UUID: "hv-1", Guests: []fakeGuest{{GuestID: "g1", State: int(report.StateRunning)}}},
	}})

	store := datastore.New()
	a := NewFakeAdapter(path, true, "")
	w := NewWorker("test-source", a, store, nil, time.Minute, true, false, worker.NewTerminate())

	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	r, err := store.Get("test-source")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	hgar, ok := r.(*report.HostGuestAssociationReport)
	if !ok {
		t.Fatalf("expected HostGuestAssociationReport, got %T", r)
	}
	if len(hgar.Association()) != 1 {
		t.Fatalf("expected 1 hypervisor, got %d", len(hgar.Association()))
	}
}

func TestWorkerOneshotPropagatesErrorReport(t *testing.T) {
	store := datastore.New()
	a := NewFakeAdapter(filepath.Join(t.TempDir(), "missing.json"), true, "")
	w := NewWorker("bad-source", a, store, nil, time.Minute, true, false, worker.NewTerminate())

	if err := w.Run(context.Background()); err == nil {
		t.Fatalf("expected Run to return the underlying VirtError in oneshot mode")
	}

	r, err := store.Get("bad-source")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Kind() != report.KindError {
		t.Fatalf("expected an Error report, got kind %v", r.Kind())
	}
}
