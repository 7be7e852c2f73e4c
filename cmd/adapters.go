package cmd

import (
	"fmt"

	"github.com/candlepin/virt-who/config"
	"github.com/candlepin/virt-who/destination"
	"github.com/candlepin/virt-who/source"
)

// adapterFactory constructs the source.Adapter for one configured section.
// Only the fake/local adapter, used for fixture-driven testing and
// demonstration, ships with this package; real hypervisor protocol
// adapters (vSphere, RHEV-M, Hyper-V, libvirt, XenAPI, Kubevirt, AHV) are
// out of scope here and are wired in by adding a case below.
func adapterFactory(sec config.Section) (source.Adapter, error) {
	switch sec.Type {
	case config.SourceTypeFake:
		return source.NewFakeAdapter(sec.Server, true, ""), nil
	default:
		return nil, fmt.Errorf("section %q: no adapter registered for type %q", sec.Name, sec.Type)
	}
}

// clientFactory constructs the destination.Client for one resolved
// DestinationInfo. Real subscription-manager/Satellite clients are out of
// scope here; wire them in by adding cases below.
func clientFactory(info config.DestinationInfo) (destination.Client, error) {
	return nil, fmt.Errorf("no destination client registered for %s", info.Type())
}
