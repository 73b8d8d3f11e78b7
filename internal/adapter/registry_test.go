package adapter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interlink/internal/domain"
	"interlink/internal/logger"
	"interlink/internal/metrics"
)

type staticSource struct {
	name    string
	records []domain.RawRecord
	err     error
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Discover(ctx context.Context) ([]domain.RawRecord, error) {
	return s.records, s.err
}

type fakeProber struct {
	mu      sync.Mutex
	down    map[string]bool
	calls   []string
	active  atomic.Int32
	maxSeen atomic.Int32
	delay   time.Duration
}

func (p *fakeProber) Probe(ctx context.Context, address string) error {
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		old := p.maxSeen.Load()
		if n <= old || p.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	p.calls = append(p.calls, address)
	down := p.down[address]
	p.mu.Unlock()

	if down {
		return domain.ErrUnreachable
	}
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) PublishDiscoveryEvent(eventType string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry(nil, logger.NewTestLogger())

	require.NoError(t, r.Register(&staticSource{name: "inventory"}))
	require.NoError(t, r.Register(&staticSource{name: "nmap"}))
	assert.ErrorIs(t, r.Register(&staticSource{name: "nmap"}), ErrSourceExists)
	assert.Equal(t, []string{"inventory", "nmap"}, r.Sources())
}

func TestRegistry_DiscoverEnrichesByKind(t *testing.T) {
	prober := &fakeProber{down: map[string]bool{"10.0.0.2": true}}
	pub := &recordingPublisher{}
	r := NewRegistry(prober, logger.NewTestLogger(), WithEventPublisher(pub))

	require.NoError(t, r.Register(&staticSource{name: "inventory", records: []domain.RawRecord{
		{ID: "lamp", Kind: "iot_device", Address: "10.0.0.1", Interfaces: []domain.Interface{{Name: "ctl", Protocol: "coap"}}},
		{ID: "plug", Kind: "iot_device", Address: "10.0.0.2"},
		{ID: "scanned", Kind: "iot_device", Address: "10.0.0.3", Reachable: true},
		{ID: "bare", Kind: "iot_device"},
		{ID: "crm", Kind: "cloud_service", Address: "crm.example.com"},
		{ID: "mystery", Kind: "toaster"},
	}}))

	report, err := r.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Profiles, 6)
	assert.True(t, report.Complete())
	assert.Equal(t, 2, report.Probed)

	byID := make(map[string]domain.SystemProfile)
	for _, p := range report.Profiles {
		byID[p.ID] = p
	}

	assert.True(t, byID["lamp"].Reachability.Reachable)
	assert.True(t, byID["lamp"].Reachability.Known())
	assert.False(t, byID["plug"].Reachability.Reachable)
	assert.True(t, byID["plug"].Reachability.Known())
	assert.True(t, byID["scanned"].Reachability.Reachable, "source-reported reachability is kept")
	assert.False(t, byID["bare"].Reachability.Known(), "no address means unknown reachability")
	assert.False(t, byID["crm"].Reachability.Known(), "cloud services are not probed")
	assert.Nil(t, byID["crm"].Credentials, "credentials are deferred")
	assert.Equal(t, domain.KindUnknown, byID["mystery"].Kind, "unknown kinds are kept")
	assert.Equal(t, "inventory", byID["lamp"].Source)

	assert.ElementsMatch(t, []string{"10.0.0.1", "10.0.0.2"}, prober.calls)
	assert.Contains(t, pub.events, EventDiscoveryStarted)
	assert.Contains(t, pub.events, EventDiscoveryProgress)
	assert.Contains(t, pub.events, EventDiscoveryComplete)
}

func TestRegistry_SourceFailureIsIsolated(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	r := NewRegistry(nil, logger.NewTestLogger(), WithRegistryMetrics(m))

	require.NoError(t, r.Register(&staticSource{name: "nmap", err: errors.New("scan failed")}))
	require.NoError(t, r.Register(&staticSource{name: "inventory", records: []domain.RawRecord{{ID: "a"}}}))

	report, err := r.Discover(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Complete())
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Profiles, 1)
	assert.Equal(t, "a", report.Profiles[0].ID)

	require.Len(t, report.Sources, 2)
	assert.Equal(t, "scan failed", report.Sources[0].Error)
	assert.Equal(t, 1, report.Sources[1].Records)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshesTotal.WithLabelValues("nmap", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RefreshesTotal.WithLabelValues("inventory", "success")))
}

func TestRegistry_DuplicatesAndMissingIDs(t *testing.T) {
	r := NewRegistry(nil, logger.NewTestLogger())

	require.NoError(t, r.Register(&staticSource{name: "inventory", records: []domain.RawRecord{
		{ID: "gw", Name: "Gateway", Kind: "iot_device"},
		{Name: "no id"},
	}}))
	require.NoError(t, r.Register(&staticSource{name: "nmap", records: []domain.RawRecord{
		{ID: "gw", Name: "10.0.0.1", Kind: "iot_device"},
		{ID: "cam", Kind: "iot_device"},
	}}))

	report, err := r.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Profiles, 2)
	assert.Equal(t, "Gateway", report.Profiles[0].Name, "earlier source wins")
	assert.Equal(t, "inventory", report.Profiles[0].Source)
	assert.Equal(t, "cam", report.Profiles[1].ID)
}

func TestRegistry_ProbeLimit(t *testing.T) {
	prober := &fakeProber{delay: 10 * time.Millisecond}
	r := NewRegistry(prober, logger.NewTestLogger(), WithProbeLimit(2), WithProbeTimeout(time.Second))

	var records []domain.RawRecord
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		records = append(records, domain.RawRecord{ID: id, Kind: "iot_device", Address: id + ".local"})
	}
	require.NoError(t, r.Register(&staticSource{name: "inventory", records: records}))

	report, err := r.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, report.Probed)
	assert.LessOrEqual(t, prober.maxSeen.Load(), int32(2))
}

func TestRegistry_Cancelled(t *testing.T) {
	r := NewRegistry(nil, logger.NewTestLogger())
	require.NoError(t, r.Register(&staticSource{name: "inventory"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Discover(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
