package report

import "sort"

// Hypervisor is one physical or logical host running zero or more Guests.
type Hypervisor struct {
	HypervisorID string
	Name         string
	Facts        map[string]string
	Guests       []Guest
}

// sortedGuests returns a copy of Guests sorted by UUID, bytewise.
func (h Hypervisor) sortedGuests() []Guest {
	out := make([]Guest, len(h.Guests))
	copy(out, h.Guests)
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out
}

// toMap returns the canonical wire/hash representation: guestIds sorted by
// guestId, name/facts present only when set.
func (h Hypervisor) toMap() map[string]any {
	guests := h.sortedGuests()
	guestMaps := make([]map[string]any, len(guests))
	for i, g := range guests {
		guestMaps[i] = g.toMap()
	}
	m := map[string]any{
		"hypervisorId": map[string]any{"hypervisorId": h.HypervisorID},
		"guestIds":     guestMaps,
	}
	if h.Name != "" {
		m["name"] = h.Name
	}
	if h.Facts != nil {
		m["facts"] = h.Facts
	}
	return m
}

func (h Hypervisor) clone() Hypervisor {
	out := h
	if h.Guests != nil {
		out.Guests = append([]Guest(nil), h.Guests...)
	}
	if h.Facts != nil {
		out.Facts = make(map[string]string, len(h.Facts))
		for k, v := range h.Facts {
			out.Facts[k] = v
		}
	}
	return out
}

func sortedHypervisors(hvs []Hypervisor) []Hypervisor {
	out := make([]Hypervisor, len(hvs))
	copy(out, hvs)
	sort.Slice(out, func(i, j int) bool { return out[i].HypervisorID < out[j].HypervisorID })
	return out
}

func cloneHypervisors(hvs []Hypervisor) []Hypervisor {
	if hvs == nil {
		return nil
	}
	out := make([]Hypervisor, len(hvs))
	for i, h := range hvs {
		out[i] = h.clone()
	}
	return out
}
