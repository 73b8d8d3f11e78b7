package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interlink/internal/domain"
)

func profile(id string, ifaces ...domain.Interface) domain.SystemProfile {
	return domain.SystemProfile{ID: id, Name: id, Kind: domain.KindIoTDevice, Interfaces: ifaces}
}

func TestUpsert_InsertAndReplace(t *testing.T) {
	s := New()
	t0 := time.Unix(1000, 0)
	t1 := t0.Add(time.Minute)

	p := profile("a", domain.Interface{Name: "api", Protocol: "http"})
	p.LastSeen = t0
	assert.True(t, s.Upsert(p))

	p2 := profile("a", domain.Interface{Name: "mq", Protocol: "mqtt"})
	p2.Name = "renamed"
	p2.LastSeen = t1
	assert.False(t, s.Upsert(p2))

	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Equal(t, []domain.Interface{{Name: "mq", Protocol: "mqtt"}}, got.Interfaces, "interfaces are replaced wholesale")
	assert.Equal(t, t0, got.FirstSeen)
	assert.Equal(t, t1, got.LastSeen)
	assert.Equal(t, 1, s.Len())
}

func TestUpsert_KeepsCredentialsAndReachability(t *testing.T) {
	s := New()
	now := time.Now()

	s.Upsert(domain.SystemProfile{ID: "c", Kind: domain.KindCloudService})
	require.NoError(t, s.SetCredentials("c", &domain.Credentials{Data: map[string]string{"token": "x"}}))
	require.NoError(t, s.SetReachability("c", true, now))

	s.Upsert(domain.SystemProfile{ID: "c", Kind: domain.KindCloudService})

	got, err := s.Get("c")
	require.NoError(t, err)
	require.NotNil(t, got.Credentials)
	assert.Equal(t, "x", got.Credentials.Data["token"])
	assert.True(t, got.Reachability.Reachable)

	s.Upsert(domain.SystemProfile{
		ID:           "c",
		Reachability: domain.Reachability{Reachable: false, CheckedAt: now.Add(time.Second)},
	})
	got, _ = s.Get("c")
	assert.False(t, got.Reachability.Reachable, "a known reachability replaces the stored one")
}

func TestGet_NotFound(t *testing.T) {
	s := New()
	_, err := s.Get("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.SetReachability("missing", true, time.Now()), domain.ErrNotFound)
	assert.ErrorIs(t, s.SetCredentials("missing", nil), domain.ErrNotFound)
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := New()
	s.Upsert(profile("a", domain.Interface{Name: "api", Protocol: "http"}))

	got, _ := s.Get("a")
	got.Interfaces[0].Protocol = "mqtt"

	again, _ := s.Get("a")
	assert.Equal(t, "http", again.Interfaces[0].Protocol)
}

func TestList_OrderedRestartableAndBounded(t *testing.T) {
	s := New()
	for _, id := range []string{"c", "a", "b"} {
		s.Upsert(profile(id))
	}

	collect := func() []string {
		var ids []string
		for p := range s.List() {
			ids = append(ids, p.ID)
		}
		return ids
	}

	assert.Equal(t, []string{"c", "a", "b"}, collect())
	assert.Equal(t, []string{"c", "a", "b"}, collect(), "restartable")

	var seen []string
	for p := range s.List() {
		seen = append(seen, p.ID)
		if p.ID == "c" {
			s.Upsert(profile("d"))
		}
	}
	assert.Equal(t, []string{"c", "a", "b"}, seen, "bounded by the length at start")

	var first []string
	for p := range s.List() {
		first = append(first, p.ID)
		break
	}
	assert.Equal(t, []string{"c"}, first)
}

func TestMarkUnreachableExcept(t *testing.T) {
	s := New()
	now := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		s.Upsert(profile(id))
		s.SetReachability(id, true, now)
	}

	changed := s.MarkUnreachableExcept(map[string]struct{}{"b": {}}, now.Add(time.Minute))
	assert.ElementsMatch(t, []string{"a", "c"}, changed)

	b, _ := s.Get("b")
	assert.True(t, b.Reachability.Reachable)
	a, _ := s.Get("a")
	assert.False(t, a.Reachability.Reachable)
	assert.Equal(t, 3, s.Len(), "stale profiles are never deleted")

	s.Upsert(profile("fresh"))
	changed = s.MarkUnreachableExcept(map[string]struct{}{"b": {}}, now.Add(2*time.Minute))
	assert.Equal(t, []string{"fresh"}, changed, "already unreachable systems are not reported again")
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Upsert(profile(fmt.Sprintf("sys-%d", j%10)))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				for range s.List() {
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, s.Len())
}
