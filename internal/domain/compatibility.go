package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// Endpoint names one interface on one system
type Endpoint struct {
	SystemID  string `json:"system_id"`
	Interface string `json:"interface"`
}

func endpointLess(a, b Endpoint) bool {
	if a.SystemID != b.SystemID {
		return a.SystemID < b.SystemID
	}
	return a.Interface < b.Interface
}

type endpointSet map[Endpoint]struct{}

// CompatibilityMap is an immutable, symmetric snapshot of interface-to-interface
// compatibility across all analysed systems. A nil map behaves as an empty one.
type CompatibilityMap struct {
	generation uint64
	builtAt    time.Time
	entries    map[string]map[string]endpointSet
}

// CompatibilityBuilder accumulates entries for one analysis pass
type CompatibilityBuilder struct {
	entries map[string]map[string]endpointSet
}

// NewCompatibilityBuilder creates an empty builder
func NewCompatibilityBuilder() *CompatibilityBuilder {
	return &CompatibilityBuilder{entries: make(map[string]map[string]endpointSet)}
}

// AddSystem records a system even if none of its interfaces end up in the map
func (b *CompatibilityBuilder) AddSystem(systemID string) {
	if _, ok := b.entries[systemID]; !ok {
		b.entries[systemID] = make(map[string]endpointSet)
	}
}

// AddInterface records an interface with an (initially) empty compatibility set
func (b *CompatibilityBuilder) AddInterface(ep Endpoint) {
	b.AddSystem(ep.SystemID)
	if _, ok := b.entries[ep.SystemID][ep.Interface]; !ok {
		b.entries[ep.SystemID][ep.Interface] = make(endpointSet)
	}
}

// Link records that x and y are compatible, in both directions
func (b *CompatibilityBuilder) Link(x, y Endpoint) {
	b.AddInterface(x)
	b.AddInterface(y)
	b.entries[x.SystemID][x.Interface][y] = struct{}{}
	b.entries[y.SystemID][y.Interface][x] = struct{}{}
}

// Build freezes the builder into a map. The builder must not be used afterwards.
func (b *CompatibilityBuilder) Build(generation uint64, builtAt time.Time) *CompatibilityMap {
	m := &CompatibilityMap{
		generation: generation,
		builtAt:    builtAt,
		entries:    b.entries,
	}
	b.entries = nil
	return m
}

// Generation is the sequence number of the analysis pass that built the map
func (m *CompatibilityMap) Generation() uint64 {
	if m == nil {
		return 0
	}
	return m.generation
}

// BuiltAt is when the map was built
func (m *CompatibilityMap) BuiltAt() time.Time {
	if m == nil {
		return time.Time{}
	}
	return m.builtAt
}

// HasSystem reports whether the system was part of the analysis
func (m *CompatibilityMap) HasSystem(systemID string) bool {
	if m == nil {
		return false
	}
	_, ok := m.entries[systemID]
	return ok
}

// Systems returns all analysed system IDs, sorted
func (m *CompatibilityMap) Systems() []string {
	if m == nil {
		return nil
	}
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Interfaces returns the recorded interface names of a system, sorted
func (m *CompatibilityMap) Interfaces(systemID string) []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.entries[systemID]))
	for name := range m.entries[systemID] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Peers returns every endpoint compatible with ep, sorted
func (m *CompatibilityMap) Peers(ep Endpoint) []Endpoint {
	if m == nil {
		return nil
	}
	set := m.entries[ep.SystemID][ep.Interface]
	peers := make([]Endpoint, 0, len(set))
	for peer := range set {
		peers = append(peers, peer)
	}
	sort.Slice(peers, func(i, j int) bool { return endpointLess(peers[i], peers[j]) })
	return peers
}

// Compatible reports whether x and y are recorded as compatible
func (m *CompatibilityMap) Compatible(x, y Endpoint) bool {
	if m == nil {
		return false
	}
	_, ok := m.entries[x.SystemID][x.Interface][y]
	return ok
}

// Pairs returns every compatible interface pair between the two systems of key,
// ordered by A's interface name then B's
func (m *CompatibilityMap) Pairs(key PairKey) []InterfacePair {
	if m == nil || key.A == key.B {
		return nil
	}
	var pairs []InterfacePair
	for _, name := range m.Interfaces(key.A) {
		a := Endpoint{SystemID: key.A, Interface: name}
		for _, peer := range m.Peers(a) {
			if peer.SystemID == key.B {
				pairs = append(pairs, InterfacePair{A: a, B: peer})
			}
		}
	}
	return pairs
}

// Eligible reports whether at least one compatible interface pair exists for key
func (m *CompatibilityMap) Eligible(key PairKey) bool {
	return len(m.Pairs(key)) > 0
}

// IsSymmetric verifies that every recorded entry has its reverse entry
func (m *CompatibilityMap) IsSymmetric() bool {
	if m == nil {
		return true
	}
	for sys, ifaces := range m.entries {
		for name, peers := range ifaces {
			self := Endpoint{SystemID: sys, Interface: name}
			for peer := range peers {
				if !m.Compatible(peer, self) {
					return false
				}
			}
		}
	}
	return true
}

// Len returns the number of directed compatibility entries
func (m *CompatibilityMap) Len() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, ifaces := range m.entries {
		for _, peers := range ifaces {
			n += len(peers)
		}
	}
	return n
}

// MarshalJSON renders the map as system -> interface -> sorted peer list
func (m *CompatibilityMap) MarshalJSON() ([]byte, error) {
	out := struct {
		Generation uint64                           `json:"generation"`
		BuiltAt    time.Time                        `json:"built_at"`
		Systems    map[string]map[string][]Endpoint `json:"systems"`
	}{
		Generation: m.Generation(),
		BuiltAt:    m.BuiltAt(),
		Systems:    make(map[string]map[string][]Endpoint),
	}
	for _, sys := range m.Systems() {
		ifaces := make(map[string][]Endpoint)
		for _, name := range m.Interfaces(sys) {
			ifaces[name] = m.Peers(Endpoint{SystemID: sys, Interface: name})
		}
		out.Systems[sys] = ifaces
	}
	return json.Marshal(out)
}
