package config

import "fmt"

// DestinationType distinguishes the destination backends virt-who talks to.
type DestinationType int

const (
	DestinationSAM DestinationType = iota
	DestinationSatellite6
	DestinationSatellite5
)

func (t DestinationType) String() string {
	switch t {
	case DestinationSAM:
		return "sam"
	case DestinationSatellite6:
		return "satellite"
	case DestinationSatellite5:
		return "satellite5"
	default:
		return "unknown"
	}
}

// DestinationInfo identifies one logical destination connection: every
// source whose resolved connection details are equal shares one
// destination worker (spec.md §2). Key returns a value suitable for use as
// a map key, so equal connections collapse naturally.
type DestinationInfo interface {
	Type() DestinationType
	Key() string
}

// DefaultDestinationInfo covers the subscription-manager (SAM) and
// Satellite 6 cases, which share the same rhsm-style connection shape.
type DefaultDestinationInfo struct {
	DestType DestinationType
	Server   string
	Username string
	Owner    string
	Env      string
	Insecure bool
}

func (d DefaultDestinationInfo) Type() DestinationType { return d.DestType }

func (d DefaultDestinationInfo) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%t", d.DestType, d.Server, d.Username, d.Owner, d.Env, d.Insecure)
}

// Satellite5DestinationInfo is the legacy XML-RPC Satellite 5 connection.
type Satellite5DestinationInfo struct {
	Server   string
	Username string
	Insecure bool
}

func (Satellite5DestinationInfo) Type() DestinationType { return DestinationSatellite5 }

func (d Satellite5DestinationInfo) Key() string {
	return fmt.Sprintf("satellite5|%s|%s|%t", d.Server, d.Username, d.Insecure)
}
