package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ep(sys, iface string) Endpoint {
	return Endpoint{SystemID: sys, Interface: iface}
}

func TestCompatibilityBuilder_LinkIsSymmetric(t *testing.T) {
	b := NewCompatibilityBuilder()
	b.Link(ep("a", "http"), ep("b", "web"))
	b.AddInterface(ep("c", "mqtt"))
	m := b.Build(1, time.Now())

	assert.True(t, m.Compatible(ep("a", "http"), ep("b", "web")))
	assert.True(t, m.Compatible(ep("b", "web"), ep("a", "http")))
	assert.False(t, m.Compatible(ep("a", "http"), ep("c", "mqtt")))
	assert.True(t, m.IsSymmetric())
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, uint64(1), m.Generation())
}

func TestCompatibilityMap_EmptyInterfaceStillListed(t *testing.T) {
	b := NewCompatibilityBuilder()
	b.AddInterface(ep("c", "mqtt"))
	m := b.Build(1, time.Now())

	assert.True(t, m.HasSystem("c"))
	assert.Equal(t, []string{"mqtt"}, m.Interfaces("c"))
	assert.Empty(t, m.Peers(ep("c", "mqtt")))
	assert.NotNil(t, m.Peers(ep("c", "mqtt")))
}

func TestCompatibilityMap_PairsOrderedAndOriented(t *testing.T) {
	b := NewCompatibilityBuilder()
	b.Link(ep("b", "y2"), ep("a", "x1"))
	b.Link(ep("a", "x1"), ep("b", "y1"))
	b.Link(ep("a", "x0"), ep("b", "y1"))
	m := b.Build(3, time.Now())

	pairs := m.Pairs(NewPairKey("b", "a"))
	require.Len(t, pairs, 3)
	assert.Equal(t, InterfacePair{A: ep("a", "x0"), B: ep("b", "y1")}, pairs[0])
	assert.Equal(t, InterfacePair{A: ep("a", "x1"), B: ep("b", "y1")}, pairs[1])
	assert.Equal(t, InterfacePair{A: ep("a", "x1"), B: ep("b", "y2")}, pairs[2])
	assert.True(t, m.Eligible(NewPairKey("a", "b")))
	assert.False(t, m.Eligible(NewPairKey("a", "a")))
}

func TestCompatibilityMap_NilIsEmpty(t *testing.T) {
	var m *CompatibilityMap

	assert.False(t, m.HasSystem("a"))
	assert.Nil(t, m.Systems())
	assert.False(t, m.Eligible(NewPairKey("a", "b")))
	assert.True(t, m.IsSymmetric())
	assert.Equal(t, 0, m.Len())
	assert.Zero(t, m.Generation())
}

func TestCompatibilityMap_MarshalJSON(t *testing.T) {
	b := NewCompatibilityBuilder()
	b.Link(ep("a", "http"), ep("b", "http"))
	b.AddInterface(ep("c", "mqtt"))
	m := b.Build(7, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var decoded struct {
		Generation uint64                           `json:"generation"`
		Systems    map[string]map[string][]Endpoint `json:"systems"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, uint64(7), decoded.Generation)
	assert.Equal(t, []Endpoint{ep("b", "http")}, decoded.Systems["a"]["http"])
	assert.Empty(t, decoded.Systems["c"]["mqtt"])
}
