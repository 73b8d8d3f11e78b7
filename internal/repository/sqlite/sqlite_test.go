package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	"interlink/internal/domain"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestRepo creates an in-memory SQLite repository for testing
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assertEqual fails the test if expected != actual
func assertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

func testProfile(id string, firstSeen time.Time) domain.SystemProfile {
	return domain.SystemProfile{
		ID:      id,
		Name:    "system " + id,
		Kind:    domain.KindIoTDevice,
		Address: "10.0.0.1",
		Source:  "inventory",
		Interfaces: []domain.Interface{
			{Name: "telemetry", Protocol: "mqtt"},
			{Name: "admin", Protocol: "http"},
		},
		Reachability: domain.Reachability{Reachable: true, CheckedAt: firstSeen},
		FirstSeen:    firstSeen,
		LastSeen:     firstSeen,
	}
}

// ============================================================================
// Helper Function Tests
// ============================================================================

func TestNullToString(t *testing.T) {
	tests := []struct {
		name     string
		input    sql.NullString
		expected string
	}{
		{"valid", sql.NullString{String: "x", Valid: true}, "x"},
		{"null", sql.NullString{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertEqual(t, tt.expected, nullToString(tt.input))
		})
	}
}

func TestTimeToNullRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		input time.Time
	}{
		{"zero", time.Time{}},
		{"set", time.Unix(1700000000, 123456789)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nullToTime(timeToNull(tt.input))
			if !got.Equal(tt.input) {
				t.Fatalf("expected %v, got %v", tt.input, got)
			}
		})
	}
}

func TestMarshalToNull(t *testing.T) {
	ns, err := marshalToNull([]domain.Interface(nil))
	assertNoError(t, err)
	assertEqual(t, false, ns.Valid)

	ns, err = marshalToNull([]domain.Interface{{Name: "a", Protocol: "http"}})
	assertNoError(t, err)
	assertEqual(t, true, ns.Valid)
}

// ============================================================================
// Profile Tests
// ============================================================================

func TestSaveAndGetProfile(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Unix(1700000000, 0)

	p := testProfile("sensor-1", now)
	p.Credentials = &domain.Credentials{Data: map[string]string{"token": "secret"}}
	assertNoError(t, repo.SaveProfiles(ctx, []domain.SystemProfile{p}))

	got, err := repo.GetProfile(ctx, "sensor-1")
	assertNoError(t, err)

	assertEqual(t, p.Name, got.Name)
	assertEqual(t, p.Kind, got.Kind)
	assertEqual(t, p.Address, got.Address)
	assertEqual(t, p.Interfaces, got.Interfaces)
	assertEqual(t, true, got.Reachability.Reachable)
	if !got.FirstSeen.Equal(now) {
		t.Fatalf("expected first seen %v, got %v", now, got.FirstSeen)
	}
	if got.Credentials != nil {
		t.Fatal("credentials must not be persisted")
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetProfile(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveProfiles_UpsertKeepsFirstSeen(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	t0 := time.Unix(1700000000, 0)
	t1 := t0.Add(time.Hour)

	assertNoError(t, repo.SaveProfiles(ctx, []domain.SystemProfile{testProfile("a", t0)}))

	updated := testProfile("a", t1)
	updated.Name = "renamed"
	updated.Interfaces = nil
	updated.Reachability = domain.Reachability{Reachable: false, CheckedAt: t1}
	assertNoError(t, repo.SaveProfiles(ctx, []domain.SystemProfile{updated}))

	got, err := repo.GetProfile(ctx, "a")
	assertNoError(t, err)
	assertEqual(t, "renamed", got.Name)
	assertEqual(t, 0, len(got.Interfaces))
	assertEqual(t, false, got.Reachability.Reachable)
	if !got.FirstSeen.Equal(t0) {
		t.Fatalf("expected first seen %v, got %v", t0, got.FirstSeen)
	}
	if !got.LastSeen.Equal(t1) {
		t.Fatalf("expected last seen %v, got %v", t1, got.LastSeen)
	}
}

func TestListProfiles(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	profiles := []domain.SystemProfile{
		testProfile("c", base.Add(2*time.Minute)),
		testProfile("a", base),
		testProfile("b", base.Add(time.Minute)),
	}
	assertNoError(t, repo.SaveProfiles(ctx, profiles))

	got, err := repo.ListProfiles(ctx)
	assertNoError(t, err)
	assertEqual(t, 3, len(got))

	ids := []string{got[0].ID, got[1].ID, got[2].ID}
	assertEqual(t, []string{"a", "b", "c"}, ids)
}

func TestSaveProfiles_Empty(t *testing.T) {
	repo := newTestRepo(t)
	assertNoError(t, repo.SaveProfiles(context.Background(), nil))

	got, err := repo.ListProfiles(context.Background())
	assertNoError(t, err)
	assertEqual(t, 0, len(got))
}
