// Package report implements virt-who's typed report model: Guest and
// Hypervisor value types, the Report sum type (GuestList, HostGuestAssociation,
// Status, Error), and the canonical-JSON hashing used to detect duplicate
// submissions.
package report

// State is the lifecycle state of a guest as reported by its hypervisor.
type State int

const (
	StateUnknown State = iota
	StateRunning
	StateBlocked
	StatePaused
	StateShuttingDown
	StateShutoff
	StateCrashed
	StatePMSuspended
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StatePaused:
		return "paused"
	case StateShuttingDown:
		return "shutting_down"
	case StateShutoff:
		return "shutoff"
	case StateCrashed:
		return "crashed"
	case StatePMSuspended:
		return "pmsuspended"
	default:
		return "unknown"
	}
}

// Guest is one virtual machine observed on a hypervisor. Immutable after
// creation.
type Guest struct {
	UUID     string
	VirtType string
	State    State
}

// NewGuest constructs a Guest.
func NewGuest(uuid, virtType string, state State) Guest {
	return Guest{UUID: uuid, VirtType: virtType, State: state}
}

// Active is the derived attribute sent on the wire: 1 iff the guest is
// Running or Paused.
func (g Guest) Active() int {
	if g.State == StateRunning || g.State == StatePaused {
		return 1
	}
	return 0
}

// toMap returns the canonical wire representation used both for hashing and
// for submission to the destination client.
func (g Guest) toMap() map[string]any {
	return map[string]any{
		"guestId": g.UUID,
		"state":   int(g.State),
		"attributes": map[string]any{
			"virtWhoType": g.VirtType,
			"active":      g.Active(),
		},
	}
}
