// Package store holds the in-memory registry of discovered system profiles.
//
// The store never deletes a profile. Rediscovery replaces the mutable fields of the
// existing entry and systems that drop out of discovery are marked unreachable.
package store

import (
	"iter"
	"sync"
	"time"

	"interlink/internal/domain"
)

// Store is a concurrency-safe profile registry keyed by system ID
type Store struct {
	mu       sync.RWMutex
	profiles map[string]*domain.SystemProfile
	order    []string
}

// New creates an empty store
func New() *Store {
	return &Store{
		profiles: make(map[string]*domain.SystemProfile),
	}
}

// Upsert inserts or replaces a profile by ID.
// Nil credentials and unknown reachability on the incoming profile keep the stored values.
// It reports whether the profile was newly inserted.
func (s *Store) Upsert(p domain.SystemProfile) bool {
	p = p.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.profiles[p.ID]
	if !ok {
		if p.FirstSeen.IsZero() {
			p.FirstSeen = p.LastSeen
		}
		s.profiles[p.ID] = &p
		s.order = append(s.order, p.ID)
		return true
	}

	if p.Credentials == nil {
		p.Credentials = prev.Credentials
	}
	if !p.Reachability.Known() {
		p.Reachability = prev.Reachability
	}
	if !prev.FirstSeen.IsZero() {
		p.FirstSeen = prev.FirstSeen
	}
	*prev = p
	return false
}

// Get returns a copy of the profile or domain.ErrNotFound
func (s *Store) Get(id string) (domain.SystemProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return domain.SystemProfile{}, domain.ErrNotFound
	}
	return p.Clone(), nil
}

// List returns a lazy sequence over profiles in insertion order.
// The sequence is bounded by the number of profiles present when iteration starts and
// may be ranged over any number of times. Each element is a copy.
func (s *Store) List() iter.Seq[domain.SystemProfile] {
	return func(yield func(domain.SystemProfile) bool) {
		s.mu.RLock()
		n := len(s.order)
		s.mu.RUnlock()

		for i := 0; i < n; i++ {
			s.mu.RLock()
			p := s.profiles[s.order[i]].Clone()
			s.mu.RUnlock()

			if !yield(p) {
				return
			}
		}
	}
}

// Len returns the number of profiles
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// SetReachability records a liveness observation
func (s *Store) SetReachability(id string, reachable bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Reachability = domain.Reachability{Reachable: reachable, CheckedAt: at}
	return nil
}

// SetCredentials stores fetched credentials; nil clears them so they are fetched again
func (s *Store) SetCredentials(id string, creds *domain.Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Credentials = creds.Clone()
	return nil
}

// MarkUnreachableExcept marks every profile whose ID is not in seen as unreachable.
// It returns the IDs that were not already known to be unreachable.
func (s *Store) MarkUnreachableExcept(seen map[string]struct{}, at time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	for _, id := range s.order {
		if _, ok := seen[id]; ok {
			continue
		}
		p := s.profiles[id]
		if p.Reachability.Reachable || !p.Reachability.Known() {
			changed = append(changed, id)
		}
		p.Reachability = domain.Reachability{Reachable: false, CheckedAt: at}
	}
	return changed
}
