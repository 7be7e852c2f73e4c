package report

import (
	"fmt"
	"sort"

	"github.com/candlepin/virt-who/filter"
)

// Kind tags which variant of the Report sum type a value is.
type Kind int

const (
	KindGuestList Kind = iota
	KindHostGuestAssociation
	KindStatus
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindGuestList:
		return "GuestList"
	case KindHostGuestAssociation:
		return "HostGuestAssociation"
	case KindStatus:
		return "Status"
	case KindError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Phase is the lifecycle state of an in-flight submission to a destination.
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseProcessing
	PhaseFinished
	PhaseFailed
	PhaseCanceled
)

func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "Created"
	case PhaseProcessing:
		return "Processing"
	case PhaseFinished:
		return "Finished"
	case PhaseFailed:
		return "Failed"
	case PhaseCanceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further job-poll transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhaseFinished || p == PhaseFailed || p == PhaseCanceled
}

// Report is virt-who's sum type: GuestList, HostGuestAssociation, Status or
// Error. Dispatch on concrete type is a type switch, not an inheritance tree
// (spec.md §9).
type Report interface {
	Kind() Kind
	Config() string
	Hash() (string, error)
	Phase() Phase
	SetPhase(Phase)
	JobID() string
	SetJobID(string)
	Clone() Report
}

type base struct {
	config string
	phase  Phase
	jobID  string
}

func (b *base) Config() string   { return b.config }
func (b *base) Phase() Phase     { return b.phase }
func (b *base) SetPhase(p Phase) { b.phase = p }
func (b *base) JobID() string    { return b.jobID }
func (b *base) SetJobID(id string) {
	b.jobID = id
}

// GuestListReport is a flat list of guests tied to the machine virt-who runs
// on (local hypervisor mode).
type GuestListReport struct {
	base
	Guests       []Guest
	HypervisorID string
}

// NewGuestListReport constructs a GuestListReport in the Created phase.
func NewGuestListReport(config string, guests []Guest, hypervisorID string) *GuestListReport {
	return &GuestListReport{
		base:         base{config: config, phase: PhaseCreated},
		Guests:       append([]Guest(nil), guests...),
		HypervisorID: hypervisorID,
	}
}

func (r *GuestListReport) Kind() Kind { return KindGuestList }

func (r *GuestListReport) Hash() (string, error) {
	guests := append([]Guest(nil), r.Guests...)
	sortGuests(guests)
	maps := make([]map[string]any, len(guests))
	for i, g := range guests {
		maps[i] = g.toMap()
	}
	return canonicalHash(maps)
}

func (r *GuestListReport) Clone() Report {
	return &GuestListReport{
		base:         r.base,
		Guests:       append([]Guest(nil), r.Guests...),
		HypervisorID: r.HypervisorID,
	}
}

// HostGuestAssociationReport is the common case for remote hypervisor
// managers: a set of hypervisors each with their guests. The raw association
// is kept unfiltered; Association() applies the configured filter lazily,
// at read time, per spec.md §4.2.
type HostGuestAssociationReport struct {
	base
	assoc  []Hypervisor
	filter *filter.Matcher
}

// NewHostGuestAssociationReport constructs a HostGuestAssociationReport.
// m may be nil, meaning no filtering.
func NewHostGuestAssociationReport(config string, hypervisors []Hypervisor, m *filter.Matcher) *HostGuestAssociationReport {
	return &HostGuestAssociationReport{
		base:   base{config: config, phase: PhaseCreated},
		assoc:  cloneHypervisors(hypervisors),
		filter: m,
	}
}

func (r *HostGuestAssociationReport) Kind() Kind { return KindHostGuestAssociation }

// Association returns the filtered view of the hypervisors in this report,
// sorted by hypervisor id.
func (r *HostGuestAssociationReport) Association() []Hypervisor {
	var out []Hypervisor
	for _, h := range r.assoc {
		if r.filter != nil && !r.filter.Empty() && !r.filter.Matches(h.HypervisorID) {
			continue
		}
		out = append(out, h)
	}
	return sortedHypervisors(out)
}

func (r *HostGuestAssociationReport) Hash() (string, error) {
	assoc := r.Association()
	maps := make([]map[string]any, len(assoc))
	for i, h := range assoc {
		maps[i] = h.toMap()
	}
	return canonicalHash(map[string]any{"hypervisors": maps})
}

func (r *HostGuestAssociationReport) Clone() Report {
	return &HostGuestAssociationReport{
		base:   r.base,
		assoc:  cloneHypervisors(r.assoc),
		filter: r.filter,
	}
}

// StatusReport is a heartbeat/status probe; fields are populated in transit
// by source and destination workers.
type StatusReport struct {
	base
	Source      map[string]any
	Destination map[string]any
}

func NewStatusReport(config string) *StatusReport {
	return &StatusReport{base: base{config: config, phase: PhaseCreated}}
}

func (r *StatusReport) Kind() Kind { return KindStatus }

func (r *StatusReport) Hash() (string, error) {
	return canonicalHash(map[string]any{"source": r.Source, "destination": r.Destination})
}

func (r *StatusReport) Clone() Report {
	return &StatusReport{base: r.base, Source: cloneAnyMap(r.Source), Destination: cloneAnyMap(r.Destination)}
}

// ErrorReport signals a failed collection.
type ErrorReport struct {
	base
	Err error
}

func NewErrorReport(config string, err error) *ErrorReport {
	return &ErrorReport{base: base{config: config, phase: PhaseCreated}, Err: err}
}

func (r *ErrorReport) Kind() Kind { return KindError }

func (r *ErrorReport) Hash() (string, error) {
	msg := ""
	if r.Err != nil {
		msg = r.Err.Error()
	}
	return canonicalHash(map[string]any{"error": msg})
}

func (r *ErrorReport) Clone() Report {
	return &ErrorReport{base: r.base, Err: r.Err}
}

func (r *ErrorReport) Error() string {
	if r.Err == nil {
		return fmt.Sprintf("error report from %q", r.config)
	}
	return r.Err.Error()
}

func sortGuests(g []Guest) {
	sort.Slice(g, func(i, j int) bool { return g[i].UUID < g[j].UUID })
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneAny(v)
	}
	return out
}

// cloneAny copies nested map[string]any and []any values; any other value is
// shared as is.
func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneAnyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneAny(e)
		}
		return out
	default:
		return v
	}
}
