package domain

import (
	"slices"
	"strings"
	"time"
)

// SystemKind selects the enrichment routine that runs after discovery
type SystemKind string

const (
	KindCloudService SystemKind = "cloud_service"
	KindIoTDevice    SystemKind = "iot_device"
	KindUnknown      SystemKind = "unknown"
)

// ParseSystemKind converts a raw discovery label to a SystemKind, defaulting to KindUnknown
func ParseSystemKind(s string) SystemKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cloud_service", "cloud", "cloudservice":
		return KindCloudService
	case "iot_device", "iot", "iotdevice", "device":
		return KindIoTDevice
	default:
		return KindUnknown
	}
}

// Interface is one named, protocol-tagged capability surface of a system
type Interface struct {
	Name     string `json:"name" yaml:"name"`
	Protocol string `json:"protocol" yaml:"protocol"`
}

// Credentials is the opaque credential blob of a cloud service.
// A nil *Credentials on a profile means "not yet fetched"; a non-nil value with
// no data means "fetched, nothing there".
type Credentials struct {
	Data      map[string]string `json:"-"`
	Source    string            `json:"source,omitempty"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// Clone returns a deep copy
func (c *Credentials) Clone() *Credentials {
	if c == nil {
		return nil
	}
	out := &Credentials{Source: c.Source, FetchedAt: c.FetchedAt}
	if c.Data != nil {
		out.Data = make(map[string]string, len(c.Data))
		for k, v := range c.Data {
			out.Data[k] = v
		}
	}
	return out
}

// Reachability is the last known liveness of a system
type Reachability struct {
	Reachable bool      `json:"reachable"`
	CheckedAt time.Time `json:"checked_at"`
}

// Known reports whether a liveness check has ever been recorded
func (r Reachability) Known() bool {
	return !r.CheckedAt.IsZero()
}

// SystemProfile describes one discovered external system
type SystemProfile struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Kind         SystemKind   `json:"kind"`
	Address      string       `json:"address,omitempty"`
	Interfaces   []Interface  `json:"interfaces"`
	Credentials  *Credentials `json:"credentials,omitempty"`
	Reachability Reachability `json:"reachability"`
	Source       string       `json:"source,omitempty"`
	FirstSeen    time.Time    `json:"first_seen"`
	LastSeen     time.Time    `json:"last_seen"`
}

// Clone returns a copy that shares no mutable state with p
func (p SystemProfile) Clone() SystemProfile {
	p.Interfaces = slices.Clone(p.Interfaces)
	p.Credentials = p.Credentials.Clone()
	return p
}

// NeedsCredentials reports whether a credential lookup must happen before connecting
func (p *SystemProfile) NeedsCredentials() bool {
	return p.Kind == KindCloudService && p.Credentials == nil
}

// RawRecord is a device record as produced by a discovery source, before profiling
type RawRecord struct {
	ID         string      `json:"id" yaml:"id"`
	Name       string      `json:"name" yaml:"name"`
	Kind       string      `json:"kind" yaml:"kind"`
	Address    string      `json:"address,omitempty" yaml:"address,omitempty"`
	Interfaces []Interface `json:"interfaces" yaml:"interfaces"`
	// Reachable is set by sources that observed the system responding during discovery
	Reachable bool `json:"reachable" yaml:"reachable"`
}

// NewProfile builds a profile from a raw discovery record.
// Interfaces with an empty name are dropped and duplicate names keep their first occurrence.
func NewProfile(rec RawRecord, source string, now time.Time) SystemProfile {
	name := rec.Name
	if name == "" {
		name = rec.ID
	}

	seen := make(map[string]bool, len(rec.Interfaces))
	ifaces := make([]Interface, 0, len(rec.Interfaces))
	for _, iface := range rec.Interfaces {
		if iface.Name == "" || seen[iface.Name] {
			continue
		}
		seen[iface.Name] = true
		ifaces = append(ifaces, Interface{
			Name:     iface.Name,
			Protocol: strings.ToLower(strings.TrimSpace(iface.Protocol)),
		})
	}

	p := SystemProfile{
		ID:         rec.ID,
		Name:       name,
		Kind:       ParseSystemKind(rec.Kind),
		Address:    rec.Address,
		Interfaces: ifaces,
		Source:     source,
		FirstSeen:  now,
		LastSeen:   now,
	}
	if rec.Reachable {
		p.Reachability = Reachability{Reachable: true, CheckedAt: now}
	}
	return p
}
