// Package lifecycle owns the per-pair connection state machine.
//
// Every unordered pair of systems has a slot with its own mutex, so attempts on
// unrelated pairs never contend. A slot holds at most one connection and at most
// one in-flight establish attempt. Callers that arrive while an attempt is running
// join it and receive the same outcome.
//
//	pending  -> active     Initialize succeeded
//	pending  -> pending    attempt failed, retry after backoff
//	pending  -> closed     retries exhausted or pair no longer compatible
//	active   -> degraded   relay reported a transport failure
//	degraded -> active     reestablished on the same interface pair
//	degraded -> closed     retries exhausted or pair no longer compatible
//	any      -> closed     Disconnect
package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"interlink/internal/domain"
	"interlink/internal/logger"
	"interlink/internal/metrics"
)

// Option configures a Manager
type Option func(*Manager)

// WithCredentialProvider sets the provider consulted for cloud services without credentials
func WithCredentialProvider(p CredentialProvider) Option {
	return func(m *Manager) { m.creds = p }
}

// WithMetrics enables metric recording
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithObserver registers a transition observer.
// It is called with the pair lock held and must not call back into the manager.
func WithObserver(fn func(domain.Transition)) Option {
	return func(m *Manager) { m.observer = fn }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager drives connections between compatible systems
type Manager struct {
	cfg       Config
	profiles  ProfileSource
	transport TransportFactory
	creds     CredentialProvider
	logger    logger.Logger
	metrics   *metrics.Metrics
	observer  func(domain.Transition)
	now       func() time.Time

	compat atomic.Pointer[domain.CompatibilityMap]
	slots  sync.Map // domain.PairKey -> *slot
	byID   sync.Map // connection ID -> domain.PairKey

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type slot struct {
	mu        sync.Mutex
	conn      *domain.Connection
	connector Connector
	attempt   *attempt
}

// attempt is the token of one establish run. done is closed exactly once, by
// whoever clears slot.attempt while holding the slot lock.
type attempt struct {
	done   chan struct{}
	cancel context.CancelFunc
	result domain.Connection
}

// NewManager creates a manager. Background attempts run until Close.
func NewManager(cfg Config, profiles ProfileSource, transport TransportFactory, log logger.Logger, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:       cfg.withDefaults(),
		profiles:  profiles,
		transport: transport,
		logger:    log.WithComponent("lifecycle"),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetCompatibility installs a new compatibility map
func (m *Manager) SetCompatibility(cm *domain.CompatibilityMap) {
	m.compat.Store(cm)
}

// Compatibility returns the current compatibility map, possibly nil
func (m *Manager) Compatibility() *domain.CompatibilityMap {
	return m.compat.Load()
}

func (m *Manager) slotFor(key domain.PairKey) *slot {
	if s, ok := m.slots.Load(key); ok {
		return s.(*slot)
	}
	s, _ := m.slots.LoadOrStore(key, &slot{})
	return s.(*slot)
}

func (m *Manager) lookupSlot(key domain.PairKey) (*slot, bool) {
	s, ok := m.slots.Load(key)
	if !ok {
		return nil, false
	}
	return s.(*slot), true
}

// Connect brings the pair to Active, creating a connection if none is live.
// It blocks until the attempt settles or ctx ends; the attempt itself keeps
// running after ctx ends. The returned error describes a non-Active outcome.
func (m *Manager) Connect(ctx context.Context, a, b string) (domain.Connection, error) {
	if a == b {
		return domain.Connection{}, fmt.Errorf("connect %s to itself: %w", a, domain.ErrIncompatible)
	}
	for _, id := range []string{a, b} {
		if _, err := m.profiles.Get(id); err != nil {
			return domain.Connection{}, fmt.Errorf("system %s: %w", id, err)
		}
	}

	key := domain.NewPairKey(a, b)
	if !m.compat.Load().Eligible(key) {
		return domain.Connection{}, fmt.Errorf("no compatible interface pair for %s: %w", key, domain.ErrIncompatible)
	}

	s := m.slotFor(key)
	s.mu.Lock()

	if s.conn == nil || s.conn.IsClosed() {
		m.create(s, key)
	}

	if s.conn.State == domain.StateActive {
		snap := snapshot(s.conn)
		s.mu.Unlock()
		return snap, nil
	}

	att := s.attempt
	if att == nil {
		att = m.startAttempt(s, key)
	}
	s.mu.Unlock()

	select {
	case <-att.done:
		return att.result, outcome(att.result)
	case <-ctx.Done():
		snap, _ := m.Get(a, b)
		return snap, ctx.Err()
	}
}

// create installs a new Pending connection; caller holds s.mu
func (m *Manager) create(s *slot, key domain.PairKey) {
	if s.conn != nil {
		m.byID.Delete(s.conn.ID)
		m.metrics.RecordRemoval(string(s.conn.State))
	}

	now := m.now()
	s.conn = &domain.Connection{
		ID:        uuid.New().String(),
		Pair:      key,
		CreatedAt: now,
	}
	s.connector = nil
	m.byID.Store(s.conn.ID, key)
	m.transition(s.conn, domain.StatePending, "created")
}

// startAttempt launches an establish run; caller holds s.mu and s.attempt is nil
func (m *Manager) startAttempt(s *slot, key domain.PairKey) *attempt {
	ctx, cancel := context.WithCancel(m.ctx)
	att := &attempt{done: make(chan struct{}), cancel: cancel}
	s.attempt = att
	s.conn.InFlight = true

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.establish(ctx, s, key, att)
	}()
	return att
}

// settle ends att; caller holds s.mu and s.attempt == att
func (m *Manager) settle(s *slot, att *attempt) {
	s.attempt = nil
	if s.conn != nil {
		s.conn.InFlight = false
		att.result = snapshot(s.conn)
	}
	close(att.done)
}

// establish runs attempts until the connection is Active, Closed or blocked on an
// unreachable system. Each iteration re-validates that att is still the slot's attempt.
func (m *Manager) establish(ctx context.Context, s *slot, key domain.PairKey, att *attempt) {
	bo := newBackOff(m.cfg.BaseBackoff, m.cfg.MaxBackoff)
	for {
		s.mu.Lock()
		if s.attempt != att {
			s.mu.Unlock()
			return
		}
		conn := s.conn

		sel, ok := m.selectPair(key, conn)
		if !ok {
			m.closeConn(conn, domain.CloseIncompatibleChange, "interface pair no longer compatible")
			m.settle(s, att)
			s.mu.Unlock()
			return
		}

		pa, pb, err := m.endpoints(sel)
		if err != nil {
			conn.LastError = err.Error()
			conn.LastErrorKind = domain.KindOf(err)
			m.logger.Info().
				Str("connection", conn.ID).
				Str("pair", key.String()).
				Err(err).
				Msg("system unreachable, waiting for the next refresh")
			m.settle(s, att)
			s.mu.Unlock()
			return
		}

		conn.AttemptCount++
		n := conn.AttemptCount
		s.mu.Unlock()

		connector, err := m.tryOnce(ctx, &pa, &pb, sel)

		s.mu.Lock()
		if s.attempt != att {
			s.mu.Unlock()
			if err == nil {
				m.shutdown(connector, key)
			}
			return
		}

		if err == nil {
			m.metrics.RecordAttempt(true)
			if !m.compat.Load().Compatible(sel.A, sel.B) {
				m.closeConn(conn, domain.CloseIncompatibleChange, "compatibility changed during establish")
				m.settle(s, att)
				s.mu.Unlock()
				m.shutdown(connector, key)
				return
			}

			selected := sel
			conn.Selected = &selected
			conn.LastError = ""
			conn.LastErrorKind = domain.ErrorKindNone
			conn.LastActivityAt = m.now()
			s.connector = connector
			m.transition(conn, domain.StateActive, fmt.Sprintf("initialized after %d attempts", n))
			m.settle(s, att)
			s.mu.Unlock()
			return
		}

		if ctx.Err() != nil {
			conn.LastError = err.Error()
			conn.LastErrorKind = domain.ErrorKindCancelled
			m.settle(s, att)
			s.mu.Unlock()
			return
		}

		m.metrics.RecordAttempt(false)
		conn.LastError = err.Error()
		conn.LastErrorKind = domain.KindOf(err)

		if n >= m.cfg.MaxAttempts {
			m.closeConn(conn, domain.ClosePermanentFailure, fmt.Sprintf("gave up after %d attempts", n))
			m.settle(s, att)
			s.mu.Unlock()
			return
		}

		delay := bo.NextBackOff()
		s.mu.Unlock()

		m.logger.Warn().
			Str("connection", conn.ID).
			Str("pair", key.String()).
			Int("attempt", n).
			Dur("backoff", delay).
			Err(err).
			Msg("establish attempt failed, retrying")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.mu.Lock()
			if s.attempt == att {
				m.settle(s, att)
			}
			s.mu.Unlock()
			return
		case <-timer.C:
		}
	}
}

// selectPair picks the interface pair for an attempt. A reestablish keeps the
// interface pair the connection was active on.
func (m *Manager) selectPair(key domain.PairKey, conn *domain.Connection) (domain.InterfacePair, bool) {
	cm := m.compat.Load()
	if conn.Selected != nil {
		return *conn.Selected, cm.Compatible(conn.Selected.A, conn.Selected.B)
	}
	pairs := cm.Pairs(key)
	if len(pairs) == 0 {
		return domain.InterfacePair{}, false
	}
	return pairs[0], true
}

// endpoints loads both profiles of sel and checks that neither is known to be unreachable
func (m *Manager) endpoints(sel domain.InterfacePair) (domain.SystemProfile, domain.SystemProfile, error) {
	var out [2]domain.SystemProfile
	for i, id := range []string{sel.A.SystemID, sel.B.SystemID} {
		p, err := m.profiles.Get(id)
		if err != nil {
			return out[0], out[1], fmt.Errorf("system %s: %w", id, domain.ErrUnreachable)
		}
		if p.Reachability.Known() && !p.Reachability.Reachable {
			return out[0], out[1], fmt.Errorf("system %s last checked %s: %w",
				id, p.Reachability.CheckedAt.Format(time.RFC3339), domain.ErrUnreachable)
		}
		out[i] = p
	}
	return out[0], out[1], nil
}

// tryOnce performs one establish attempt without holding the slot lock
func (m *Manager) tryOnce(ctx context.Context, pa, pb *domain.SystemProfile, sel domain.InterfacePair) (Connector, error) {
	for _, p := range []*domain.SystemProfile{pa, pb} {
		if !p.NeedsCredentials() {
			continue
		}
		if err := m.fetchCredentials(ctx, p); err != nil {
			return nil, err
		}
	}

	connector, err := m.transport.NewConnector(*pa, *pb, sel)
	if err != nil {
		return nil, fmt.Errorf("create connector: %w", err)
	}

	actx, cancel := context.WithTimeout(ctx, m.cfg.EstablishTimeout)
	defer cancel()

	if err := connector.Initialize(actx); err != nil {
		return nil, fmt.Errorf("initialize connector: %w", err)
	}
	return connector, nil
}

func (m *Manager) fetchCredentials(ctx context.Context, p *domain.SystemProfile) error {
	if m.creds == nil {
		return fmt.Errorf("system %s: no credential provider configured: %w", p.ID, domain.ErrCredentials)
	}

	creds, err := m.creds.Fetch(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("fetch credentials for %s: %w: %v", p.ID, domain.ErrCredentials, err)
	}
	if creds == nil {
		creds = &domain.Credentials{}
	}
	if creds.FetchedAt.IsZero() {
		creds.FetchedAt = m.now()
	}

	if err := m.profiles.SetCredentials(p.ID, creds); err != nil {
		m.logger.Warn().Err(err).Str("system", p.ID).Msg("failed to store fetched credentials")
	}
	p.Credentials = creds
	return nil
}

// ReportFailure moves an Active connection to Degraded and starts reestablishing it.
// Reports for connections that are not Active, or no longer exist, are ignored.
func (m *Manager) ReportFailure(connectionID string, err error) {
	key, ok := m.byID.Load(connectionID)
	if !ok {
		return
	}
	s, ok := m.lookupSlot(key.(domain.PairKey))
	if !ok {
		return
	}

	s.mu.Lock()
	if s.conn == nil || s.conn.ID != connectionID || s.conn.State != domain.StateActive {
		s.mu.Unlock()
		return
	}

	old := s.connector
	s.connector = nil
	s.conn.LastError = err.Error()
	s.conn.LastErrorKind = domain.KindOf(err)
	s.conn.AttemptCount = 0
	m.transition(s.conn, domain.StateDegraded, "transport failure")
	m.startAttempt(s, key.(domain.PairKey))
	s.mu.Unlock()

	m.shutdown(old, key.(domain.PairKey))
}

// Acquire returns the live connector of an Active connection
func (m *Manager) Acquire(connectionID string) (Connector, domain.Connection, error) {
	s, err := m.slotByID(connectionID)
	if err != nil {
		return nil, domain.Connection{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || s.conn.ID != connectionID {
		return nil, domain.Connection{}, fmt.Errorf("connection %s: %w", connectionID, domain.ErrNotFound)
	}
	if s.conn.State != domain.StateActive || s.connector == nil {
		return nil, snapshot(s.conn), fmt.Errorf("connection %s is %s: %w", connectionID, s.conn.State, domain.ErrNotActive)
	}
	return s.connector, snapshot(s.conn), nil
}

// Touch records data activity on an Active connection
func (m *Manager) Touch(connectionID string, at time.Time) {
	s, err := m.slotByID(connectionID)
	if err != nil {
		return
	}
	s.mu.Lock()
	if s.conn != nil && s.conn.ID == connectionID && s.conn.State == domain.StateActive {
		s.conn.LastActivityAt = at
	}
	s.mu.Unlock()
}

func (m *Manager) slotByID(connectionID string) (*slot, error) {
	key, ok := m.byID.Load(connectionID)
	if !ok {
		return nil, fmt.Errorf("connection %s: %w", connectionID, domain.ErrNotFound)
	}
	s, ok := m.lookupSlot(key.(domain.PairKey))
	if !ok {
		return nil, fmt.Errorf("connection %s: %w", connectionID, domain.ErrNotFound)
	}
	return s, nil
}

// Disconnect closes and removes the pair's connection. It always succeeds and is
// idempotent. An in-flight attempt is cancelled without waiting for it.
func (m *Manager) Disconnect(ctx context.Context, a, b string) domain.Connection {
	key := domain.NewPairKey(a, b)
	closed := domain.Connection{Pair: key, State: domain.StateClosed, CloseReason: domain.CloseDisconnected}

	s, ok := m.lookupSlot(key)
	if !ok {
		return closed
	}

	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return closed
	}

	conn := s.conn
	if att := s.attempt; att != nil {
		att.cancel()
	}
	if !conn.IsClosed() {
		m.closeConn(conn, domain.CloseDisconnected, "disconnect requested")
	}
	if att := s.attempt; att != nil {
		m.settle(s, att)
	}

	connector := s.connector
	s.connector = nil
	s.conn = nil
	m.byID.Delete(conn.ID)
	m.metrics.RecordRemoval(string(domain.StateClosed))
	snap := snapshot(conn)
	s.mu.Unlock()

	if connector != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.EstablishTimeout)
		defer cancel()
		if err := connector.Shutdown(sctx); err != nil {
			m.logger.Warn().Err(err).Str("pair", key.String()).Msg("connector shutdown failed")
		}
	}
	return snap
}

func (m *Manager) shutdown(c Connector, key domain.PairKey) {
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.EstablishTimeout)
	defer cancel()
	if err := c.Shutdown(ctx); err != nil {
		m.logger.Warn().Err(err).Str("pair", key.String()).Msg("connector shutdown failed")
	}
}

// closeConn moves conn to Closed; caller holds the slot lock
func (m *Manager) closeConn(conn *domain.Connection, reason domain.CloseReason, why string) {
	conn.CloseReason = reason
	m.transition(conn, domain.StateClosed, why)
}

func (m *Manager) transition(conn *domain.Connection, to domain.ConnectionState, reason string) {
	from := conn.State
	now := m.now()

	conn.State = to
	if to == domain.StateClosed {
		conn.ClosedAt = &now
		conn.InFlight = false
	}

	m.metrics.RecordTransition(string(from), string(to))
	m.logger.Info().
		Str("connection", conn.ID).
		Str("pair", conn.Pair.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Int("attempts", conn.AttemptCount).
		Str("reason", reason).
		Msg("connection state changed")

	if m.observer != nil {
		m.observer(domain.Transition{
			ConnectionID: conn.ID,
			Pair:         conn.Pair,
			From:         from,
			To:           to,
			Reason:       reason,
			At:           now,
		})
	}
}

// Get returns the pair's connection, including a retained Closed one
func (m *Manager) Get(a, b string) (domain.Connection, error) {
	key := domain.NewPairKey(a, b)
	s, ok := m.lookupSlot(key)
	if !ok {
		return domain.Connection{}, fmt.Errorf("connection %s: %w", key, domain.ErrNotFound)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return domain.Connection{}, fmt.Errorf("connection %s: %w", key, domain.ErrNotFound)
	}
	return snapshot(s.conn), nil
}

// GetByID returns a connection by its ID
func (m *Manager) GetByID(connectionID string) (domain.Connection, error) {
	s, err := m.slotByID(connectionID)
	if err != nil {
		return domain.Connection{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.conn.ID != connectionID {
		return domain.Connection{}, fmt.Errorf("connection %s: %w", connectionID, domain.ErrNotFound)
	}
	return snapshot(s.conn), nil
}

// List returns all tracked connections ordered by pair
func (m *Manager) List() []domain.Connection {
	var out []domain.Connection
	m.slots.Range(func(_, v any) bool {
		s := v.(*slot)
		s.mu.Lock()
		if s.conn != nil {
			out = append(out, snapshot(s.conn))
		}
		s.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].Pair.String() < out[j].Pair.String()
	})
	return out
}

// Sweep removes Closed connections older than the retention period and
// returns how many were removed
func (m *Manager) Sweep(now time.Time) int {
	removed := 0
	m.slots.Range(func(_, v any) bool {
		s := v.(*slot)
		s.mu.Lock()
		if c := s.conn; c != nil && c.IsClosed() && c.ClosedAt != nil &&
			!now.Before(c.ClosedAt.Add(m.cfg.ClosedRetention)) {
			m.byID.Delete(c.ID)
			s.conn = nil
			m.metrics.RecordRemoval(string(domain.StateClosed))
			removed++
		}
		s.mu.Unlock()
		return true
	})
	if removed > 0 {
		m.logger.Debug().Int("removed", removed).Msg("swept closed connections")
	}
	return removed
}

// Reconcile applies the current compatibility map and profiles to every live
// connection. Connections whose interface pair is no longer compatible are
// closed; idle Pending and Degraded connections are driven again.
func (m *Manager) Reconcile(ctx context.Context) {
	cm := m.compat.Load()
	shutdowns := make(map[domain.PairKey]Connector)

	m.slots.Range(func(k, v any) bool {
		if ctx.Err() != nil {
			return false
		}
		key := k.(domain.PairKey)
		s := v.(*slot)

		s.mu.Lock()
		defer s.mu.Unlock()

		conn := s.conn
		if conn == nil || conn.IsClosed() {
			return true
		}

		compatible := cm.Eligible(key)
		if conn.Selected != nil {
			compatible = cm.Compatible(conn.Selected.A, conn.Selected.B)
		}
		if !compatible {
			if att := s.attempt; att != nil {
				att.cancel()
			}
			m.closeConn(conn, domain.CloseIncompatibleChange, "pair no longer compatible")
			if att := s.attempt; att != nil {
				m.settle(s, att)
			}
			if s.connector != nil {
				shutdowns[key] = s.connector
				s.connector = nil
			}
			return true
		}

		if conn.State != domain.StateActive && s.attempt == nil {
			m.startAttempt(s, key)
		}
		return true
	})

	for key, c := range shutdowns {
		m.shutdown(c, key)
	}
}

// Run sweeps Closed connections periodically until ctx is done
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(m.now())
		}
	}
}

// Close disconnects every connection and waits for background attempts to exit
func (m *Manager) Close(ctx context.Context) {
	var keys []domain.PairKey
	m.slots.Range(func(k, _ any) bool {
		keys = append(keys, k.(domain.PairKey))
		return true
	})
	for _, key := range keys {
		m.Disconnect(ctx, key.A, key.B)
	}

	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn().Msg("timed out waiting for establish attempts to exit")
	}
}

func snapshot(c *domain.Connection) domain.Connection {
	out := *c
	if c.Selected != nil {
		sel := *c.Selected
		out.Selected = &sel
	}
	if c.ClosedAt != nil {
		at := *c.ClosedAt
		out.ClosedAt = &at
	}
	return out
}

// outcome maps a settled connection to the error Connect reports
func outcome(c domain.Connection) error {
	switch c.State {
	case domain.StateActive:
		return nil
	case domain.StateClosed:
		switch c.CloseReason {
		case domain.CloseIncompatibleChange:
			return fmt.Errorf("connection %s closed: %w", c.Pair, domain.ErrIncompatible)
		case domain.ClosePermanentFailure:
			return fmt.Errorf("connection %s closed after %d attempts: %w: %s",
				c.Pair, c.AttemptCount, domain.ErrPermanentFailure, c.LastError)
		default:
			return fmt.Errorf("connection %s disconnected: %w", c.Pair, domain.ErrNotActive)
		}
	default:
		if c.LastErrorKind == domain.ErrorKindUnreachable {
			return fmt.Errorf("connection %s is %s: %w", c.Pair, c.State, domain.ErrUnreachable)
		}
		return fmt.Errorf("connection %s is %s: %w", c.Pair, c.State, domain.ErrNotActive)
	}
}
