package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMainFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "virt-who.conf")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write main file: %v", err)
	}
	return path
}

func TestLoadSimpleSection(t *testing.T) {
	path := writeMainFile(t, `
[esx1]
type=esx
server=vcenter.example.com
username=admin
password=secret
owner=myorg
env=prod
`)
	l := NewLoader(path, "")
	l.Env = map[string]string{}
	ec, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(ec.Sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(ec.Sections))
	}
	s := ec.Sections[0]
	if s.Server != "vcenter.example.com" || s.Owner != "myorg" {
		t.Fatalf("unexpected section: %+v", s)
	}
	if s.HypervisorID != "uuid" {
		t.Fatalf("expected default hypervisor_id uuid, got %q", s.HypervisorID)
	}
}

func TestDefaultsSectionAppliesToNamedSections(t *testing.T) {
	path := writeMainFile(t, `
[defaults]
owner=sharedorg
env=shared-env

[esx1]
type=esx
server=vc1
username=u1
`)
	l := NewLoader(path, "")
	l.Env = map[string]string{}
	ec, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ec.Sections[0].Owner != "sharedorg" {
		t.Fatalf("expected defaults to propagate owner, got %q", ec.Sections[0].Owner)
	}
}

func TestSamRequiresOwnerAndEnv(t *testing.T) {
	path := writeMainFile(t, `
[esx1]
type=esx
server=vc1
username=u1
`)
	l := NewLoader(path, "")
	l.Env = map[string]string{}
	if _, err := l.Load(); err == nil {
		t.Fatalf("expected error when sm_type=sam (default) lacks owner/env")
	}
}

func TestLibvirtDefaultsToLocalURL(t *testing.T) {
	path := writeMainFile(t, `
[local]
type=libvirt
owner=org
env=env
`)
	l := NewLoader(path, "")
	l.Env = map[string]string{}
	ec, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ec.Sections[0].Server != "qemu:///system" {
		t.Fatalf("expected default libvirt URL, got %q", ec.Sections[0].Server)
	}
}

func TestIntervalClampedToMinimum(t *testing.T) {
	path := writeMainFile(t, `
[esx1]
type=esx
owner=o
env=e
interval=5
`)
	l := NewLoader(path, "")
	l.Env = map[string]string{}
	ec, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ec.Sections[0].Interval != MinimumInterval {
		t.Fatalf("expected interval clamped to %s, got %s", MinimumInterval, ec.Sections[0].Interval)
	}
}

func TestEnvOverridesConfigFile(t *testing.T) {
	path := writeMainFile(t, `
[esx1]
type=esx
owner=o
env=e
server=original
`)
	l := NewLoader(path, "")
	l.Env = map[string]string{"VIRTWHO_ESX1_SERVER": "overridden"}
	ec, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ec.Sections[0].Server != "overridden" {
		t.Fatalf("expected env override to win, got %q", ec.Sections[0].Server)
	}
}

func TestContinuationLine(t *testing.T) {
	path := writeMainFile(t, `
[esx1]
type=esx
owner=o
env=e
filter_hosts=host1,\
host2
`)
	l := NewLoader(path, "")
	l.Env = map[string]string{}
	ec, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ec.Sections[0].Filter.Matches("host1") || !ec.Sections[0].Filter.Matches("host2") {
		t.Fatalf("expected continuation line to join both hosts into filter_hosts")
	}
}
