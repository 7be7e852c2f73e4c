// Package config implements virt-who's layered configuration: built-in
// defaults, a main INI file's [defaults]/[global]/named sections, drop-in
// *.conf files, environment variables, and CLI flags, in ascending priority
// (spec.md §6).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/candlepin/virt-who/filter"
	"github.com/candlepin/virt-who/password"
)

// DefaultInterval is the built-in polling cadence when a section sets none.
const DefaultInterval = 1 * time.Hour

// MinimumInterval is the floor below which a configured interval is
// silently clamped up.
const MinimumInterval = 60 * time.Second

// SourceType names a hypervisor adapter family. Concrete adapters live
// outside this package; SourceType only drives config validation and
// adapter selection in the launcher.
type SourceType string

const (
	SourceTypeESX      SourceType = "esx"
	SourceTypeRHEVM    SourceType = "rhevm"
	SourceTypeHyperV   SourceType = "hyperv"
	SourceTypeLibvirt  SourceType = "libvirt"
	SourceTypeXen      SourceType = "xen"
	SourceTypeKubevirt SourceType = "kubevirt"
	SourceTypeAHV      SourceType = "ahv"
	SourceTypeFake     SourceType = "fake"
)

// Section is one fully-resolved hypervisor configuration, after layering
// and validation.
type Section struct {
	Name string
	Type SourceType

	Server   string
	Username string
	Password string
	Owner    string
	Env      string

	HypervisorID string // "uuid", "hostname", or "hwuuid"

	Filter     *filter.Matcher
	FilterType filter.Type

	Interval time.Duration
	Insecure bool

	Destination DestinationInfo
}

// EffectiveConfig is the fully-resolved, validated configuration for one
// virt-who process run.
type EffectiveConfig struct {
	Debug      bool
	Background bool
	Oneshot    bool
	Interval   time.Duration
	Print      bool
	Status     bool

	Sections []Section
}

// Loader assembles an EffectiveConfig from a main file, an optional
// drop-in directory, and environment variables.
type Loader struct {
	MainFile  string
	DropInDir string
	Env       map[string]string
	Keyfile   *password.Keyfile
	WarnFunc  func(format string, args ...any)
}

// NewLoader constructs a Loader reading process environment variables.
func NewLoader(mainFile, dropInDir string) *Loader {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if i := strings.Index(kv, "="); i >= 0 {
			env[kv[:i]] = kv[i+1:]
		}
	}
	return &Loader{MainFile: mainFile, DropInDir: dropInDir, Env: env, WarnFunc: func(string, ...any) {}}
}

// Load reads and layers every config file, applies VIRTWHO_<SECTION>_<KEY>
// environment overrides, and validates the result.
func (l *Loader) Load() (*EffectiveConfig, error) {
	merged := make(map[string]*section)
	var order []string

	addFile := func(path string) error {
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		secs, secOrder, err := parseINI(f, l.WarnFunc)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		for _, name := range secOrder {
			if _, ok := merged[name]; !ok {
				merged[name] = secs[name]
				order = append(order, name)
			} else {
				for _, k := range secs[name].order {
					merged[name].set(k, secs[name].kv[k])
				}
			}
		}
		return nil
	}

	if l.MainFile != "" {
		if err := addFile(l.MainFile); err != nil {
			return nil, err
		}
	}
	if l.DropInDir != "" {
		entries, err := os.ReadDir(l.DropInDir)
		if err == nil {
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				if !e.IsDir() && strings.HasSuffix(e.Name(), ".conf") {
					names = append(names, e.Name())
				}
			}
			sort.Strings(names)
			for _, n := range names {
				if err := addFile(filepath.Join(l.DropInDir, n)); err != nil {
					return nil, err
				}
			}
		}
	}

	defaults := merged["defaults"]

	ec := &EffectiveConfig{Interval: DefaultInterval}

	for _, name := range order {
		if name == "defaults" || name == "global" {
			continue
		}
		sec := merged[name]
		resolved := newSection(name)
		if defaults != nil {
			for _, k := range defaults.order {
				resolved.set(k, defaults.kv[k])
			}
		}
		for _, k := range sec.order {
			resolved.set(k, sec.kv[k])
		}
		l.applyEnv(resolved)

		cfg, err := l.buildSection(name, resolved)
		if err != nil {
			return nil, fmt.Errorf("section %q: %w", name, err)
		}
		ec.Sections = append(ec.Sections, *cfg)
	}

	if global := merged["global"]; global != nil {
		if v, ok := global.kv["interval"]; ok {
			d, err := parseIntervalSeconds(v)
			if err != nil {
				return nil, fmt.Errorf("[global] interval: %w", err)
			}
			ec.Interval = d
		}
	}

	return ec, nil
}

func (l *Loader) applyEnv(s *section) {
	prefix := "VIRTWHO_" + strings.ToUpper(s.name) + "_"
	for k, v := range l.Env {
		if strings.HasPrefix(k, prefix) {
			key := strings.ToLower(strings.TrimPrefix(k, prefix))
			s.set(key, v)
		}
	}
}

func (l *Loader) buildSection(name string, kv *section) (*Section, error) {
	typ := SourceType(kv.kv["type"])
	if typ == "" {
		return nil, fmt.Errorf("missing required key %q", "type")
	}

	cfg := &Section{
		Name:         name,
		Type:         typ,
		Server:       kv.kv["server"],
		Username:     kv.kv["username"],
		Owner:        kv.kv["owner"],
		Env:          kv.kv["env"],
		HypervisorID: kv.kv["hypervisor_id"],
		Interval:     DefaultInterval,
	}
	if cfg.HypervisorID == "" {
		cfg.HypervisorID = "uuid"
	}
	if cfg.HypervisorID != "uuid" && cfg.HypervisorID != "hostname" && cfg.HypervisorID != "hwuuid" {
		return nil, fmt.Errorf("invalid hypervisor_id %q", cfg.HypervisorID)
	}

	if v, ok := kv.kv["password"]; ok {
		cfg.Password = v
	}
	if v, ok := kv.kv["encrypted_password"]; ok {
		if l.Keyfile == nil {
			return nil, fmt.Errorf("encrypted_password set but no keyfile configured")
		}
		pt, err := l.Keyfile.Decrypt(v)
		if err != nil {
			return nil, fmt.Errorf("decrypting password: %w", err)
		}
		cfg.Password = pt
	}

	if v, ok := kv.kv["insecure"]; ok {
		b, err := parseBool(v)
		if err != nil {
			return nil, fmt.Errorf("insecure: %w", err)
		}
		cfg.Insecure = b
	}

	if v, ok := kv.kv["interval"]; ok {
		d, err := parseIntervalSeconds(v)
		if err != nil {
			return nil, fmt.Errorf("interval: %w", err)
		}
		cfg.Interval = d
	}

	ft, err := filter.ParseType(kv.kv["filter_type"])
	if err != nil {
		return nil, err
	}
	cfg.FilterType = ft

	include := splitList(kv.kv["filter_hosts"])
	exclude := splitList(kv.kv["exclude_hosts"])
	m, err := filter.New(include, exclude, ft)
	if err != nil {
		return nil, err
	}
	cfg.Filter = m

	if err := applySemanticChecks(cfg, kv); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applySemanticChecks implements the cross-field rules that depend on more
// than one key: sm_type=sam requiring owner+env, libvirt's default local
// URL, RHEV-M's https default, and Xen's scheme prefix.
func applySemanticChecks(cfg *Section, kv *section) error {
	switch cfg.Type {
	case SourceTypeLibvirt:
		if cfg.Server == "" {
			cfg.Server = "qemu:///system"
		}
	case SourceTypeRHEVM:
		if cfg.Server != "" && !strings.Contains(cfg.Server, "://") {
			cfg.Server = "https://" + cfg.Server
		}
	case SourceTypeXen:
		if cfg.Server != "" && !strings.Contains(cfg.Server, "://") {
			cfg.Server = "xenapi://" + cfg.Server
		}
	}

	destType := DestinationSAM
	if smType, ok := kv.kv["sm_type"]; ok {
		switch strings.ToLower(smType) {
		case "sam", "":
			destType = DestinationSAM
		case "satellite", "satellite6":
			destType = DestinationSatellite6
		case "satellite5":
			destType = DestinationSatellite5
		default:
			return fmt.Errorf("unknown sm_type %q", smType)
		}
	}

	if destType == DestinationSAM && (cfg.Owner == "" || cfg.Env == "") {
		return fmt.Errorf("sm_type=sam requires both owner and env")
	}

	if destType == DestinationSatellite5 {
		cfg.Destination = Satellite5DestinationInfo{
			Server:   cfg.Server,
			Username: cfg.Username,
			Insecure: cfg.Insecure,
		}
		return nil
	}

	cfg.Destination = DefaultDestinationInfo{
		DestType: destType,
		Server:   cfg.Server,
		Username: cfg.Username,
		Owner:    cfg.Owner,
		Env:      cfg.Env,
		Insecure: cfg.Insecure,
	}
	return nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean: %q", v)
	}
}

// parseIntervalSeconds parses an integer number of seconds and clamps it up
// to MinimumInterval.
func parseIntervalSeconds(v string) (time.Duration, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", v)
	}
	d := time.Duration(n) * time.Second
	if d < MinimumInterval {
		d = MinimumInterval
	}
	return d, nil
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
