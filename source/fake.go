package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/candlepin/virt-who/report"
)

// fakeFixture is the on-disk JSON shape a FakeAdapter reads: a list of
// hypervisor maps under "hypervisors". A bare single-hypervisor object at the
// top level is read as a fixture with no hypervisors.
type fakeFixture struct {
	Hypervisors []fakeHypervisor `json:"hypervisors"`
}

type fakeHypervisor struct {
	UUID   string      `json:"uuid"`
	Name   string      `json:"name"`
	Guests []fakeGuest `json:"guests"`
}

type fakeGuest struct {
	GuestID    string `json:"guestId"`
	State      int    `json:"state"`
	Attributes struct {
		VirtWhoType string `json:"virtWhoType"`
	} `json:"attributes"`
}

// FakeAdapter reads a canned JSON fixture from disk and replays it as
// hypervisor/guest data, standing in for a real hypervisor protocol in
// tests. Its on-disk shape mirrors the Python reference implementation's
// FakeVirt test double: one or more hypervisors, each with a list of guests
// keyed by guestId/state/attributes.virtWhoType.
type FakeAdapter struct {
	Path         string
	IsHV         bool
	HypervisorID string // used only when IsHV is false
}

func NewFakeAdapter(path string, isHypervisor bool, hypervisorID string) *FakeAdapter {
	return &FakeAdapter{Path: path, IsHV: isHypervisor, HypervisorID: hypervisorID}
}

func (f *FakeAdapter) IsHypervisor() bool { return f.IsHV }

func (f *FakeAdapter) Prepare(ctx context.Context) error { return nil }
func (f *FakeAdapter) Cleanup(ctx context.Context) error { return nil }

func (f *FakeAdapter) load() (*fakeFixture, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, NewVirtError(f.Path, fmt.Errorf("reading fixture: %w", err))
	}
	var fx fakeFixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, NewVirtError(f.Path, fmt.Errorf("parsing fixture: %w", err))
	}
	return &fx, nil
}

func toGuest(g fakeGuest) report.Guest {
	return report.NewGuest(g.GuestID, g.Attributes.VirtWhoType, report.State(g.State))
}

// GetHostGuestMapping returns every hypervisor in the fixture.
func (f *FakeAdapter) GetHostGuestMapping(ctx context.Context) ([]report.Hypervisor, error) {
	fx, err := f.load()
	if err != nil {
		return nil, err
	}
	out := make([]report.Hypervisor, 0, len(fx.Hypervisors))
	for _, h := range fx.Hypervisors {
		guests := make([]report.Guest, 0, len(h.Guests))
		for _, g := range h.Guests {
			guests = append(guests, toGuest(g))
		}
		out = append(out, report.Hypervisor{
			HypervisorID: h.UUID,
			Name:         h.Name,
			Guests:       guests,
		})
	}
	return out, nil
}

// ListDomains returns the guests of the first hypervisor in the fixture,
// standing in for a local, non-managed host. A fixture with more than one
// hypervisor entry is a config/adapter mismatch.
func (f *FakeAdapter) ListDomains(ctx context.Context) ([]report.Guest, string, error) {
	fx, err := f.load()
	if err != nil {
		return nil, "", err
	}
	if len(fx.Hypervisors) != 1 {
		return nil, "", NewVirtError(f.Path, fmt.Errorf("fixture has %d hypervisors, expected exactly 1 for a non-hypervisor adapter", len(fx.Hypervisors)))
	}
	h := fx.Hypervisors[0]
	guests := make([]report.Guest, 0, len(h.Guests))
	for _, g := range h.Guests {
		guests = append(guests, toGuest(g))
	}
	id := f.HypervisorID
	if id == "" {
		id = h.UUID
	}
	return guests, id, nil
}
