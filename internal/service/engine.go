package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"interlink/internal/adapter"
	"interlink/internal/analyzer"
	"interlink/internal/domain"
	"interlink/internal/lifecycle"
	"interlink/internal/logger"
	"interlink/internal/metrics"
	"interlink/internal/relay"
	"interlink/internal/repository"
	"interlink/internal/store"
)

// Discoverer runs one discovery pass across all sources
type Discoverer interface {
	Discover(ctx context.Context) (*adapter.Report, error)
}

// Deps are the collaborators of an Engine. Repository, Discovery, Events and
// Metrics are optional.
type Deps struct {
	Profiles   *store.Store
	Repository repository.Repository
	Discovery  Discoverer
	Analyzer   *analyzer.Analyzer
	Manager    *lifecycle.Manager
	Relay      *relay.Relay
	Events     *EventBus
	Metrics    *metrics.Metrics
	Logger     logger.Logger
}

// RefreshResult summarises one RefreshProfiles call
type RefreshResult struct {
	Discovered        int                    `json:"discovered"`
	Added             int                    `json:"added"`
	Updated           int                    `json:"updated"`
	MarkedUnreachable []string               `json:"marked_unreachable,omitempty"`
	Sources           []adapter.SourceResult `json:"sources"`
	At                time.Time              `json:"at"`
}

// Engine is the public surface of interlink: profile refresh, compatibility
// analysis, connection lifecycle and data relay
type Engine struct {
	profiles  *store.Store
	repo      repository.Repository
	discovery Discoverer
	analyzer  *analyzer.Analyzer
	manager   *lifecycle.Manager
	relay     *relay.Relay
	events    *EventBus
	metrics   *metrics.Metrics
	log       logger.Logger
	now       func() time.Time

	refreshMu sync.Mutex
	analyzeMu sync.Mutex

	refreshCh chan struct{}
	analyzeCh chan struct{}
}

// NewEngine wires an engine from its collaborators
func NewEngine(d Deps) *Engine {
	events := d.Events
	if events == nil {
		events = NewEventBus()
	}
	return &Engine{
		profiles:  d.Profiles,
		repo:      d.Repository,
		discovery: d.Discovery,
		analyzer:  d.Analyzer,
		manager:   d.Manager,
		relay:     d.Relay,
		events:    events,
		metrics:   d.Metrics,
		log:       d.Logger.WithComponent("engine"),
		now:       time.Now,
		refreshCh: make(chan struct{}, 1),
		analyzeCh: make(chan struct{}, 1),
	}
}

// Events returns the engine's event bus
func (e *Engine) Events() *EventBus {
	return e.events
}

// Restore loads the persisted profile snapshot into the store
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if e.repo == nil {
		return 0, nil
	}

	saved, err := e.repo.ListProfiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore profiles: %w", err)
	}
	for _, p := range saved {
		e.profiles.Upsert(p)
	}
	e.metrics.SetProfiles(e.profiles.Len())

	e.log.Info().Int("profiles", len(saved)).Msg("restored profile snapshot")
	return len(saved), nil
}

// RefreshProfiles runs discovery and merges the result into the profile store.
// Systems that no source reported are marked unreachable, but only when every
// source succeeded.
func (e *Engine) RefreshProfiles(ctx context.Context) (*RefreshResult, error) {
	if e.discovery == nil {
		return &RefreshResult{At: e.now()}, nil
	}

	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	report, err := e.discovery.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}

	now := e.now()
	res := &RefreshResult{
		Discovered: len(report.Profiles),
		Sources:    report.Sources,
		At:         now,
	}

	seen := make(map[string]struct{}, len(report.Profiles))
	ids := make([]string, 0, len(report.Profiles))
	for _, p := range report.Profiles {
		if e.profiles.Upsert(p) {
			res.Added++
		} else {
			res.Updated++
		}
		seen[p.ID] = struct{}{}
		ids = append(ids, p.ID)
	}

	if report.Complete() {
		res.MarkedUnreachable = e.profiles.MarkUnreachableExcept(seen, now)
		ids = append(ids, res.MarkedUnreachable...)
	} else {
		e.log.Warn().Int("failed_sources", report.Failed).Msg("partial discovery, keeping reachability of unseen systems")
	}

	e.persist(ctx, ids)
	e.metrics.SetProfiles(e.profiles.Len())

	e.events.Publish(Event{Type: EventProfilesRefreshed, Payload: res})
	e.log.Info().
		Int("discovered", res.Discovered).
		Int("added", res.Added).
		Int("updated", res.Updated).
		Int("marked_unreachable", len(res.MarkedUnreachable)).
		Msg("profiles refreshed")

	return res, nil
}

// persist saves the merged store copies of ids. Failures are logged only.
func (e *Engine) persist(ctx context.Context, ids []string) {
	if e.repo == nil || len(ids) == 0 {
		return
	}

	batch := make([]domain.SystemProfile, 0, len(ids))
	for _, id := range ids {
		if p, err := e.profiles.Get(id); err == nil {
			batch = append(batch, p)
		}
	}
	if err := e.repo.SaveProfiles(ctx, batch); err != nil {
		e.log.Error().Err(err).Int("profiles", len(batch)).Msg("failed to persist profiles")
	}
}

// Analyze rebuilds the compatibility map from the current profiles, installs it
// and reconciles existing connections against it. On failure the previous map
// stays in place.
func (e *Engine) Analyze(ctx context.Context) (*domain.CompatibilityMap, error) {
	e.analyzeMu.Lock()
	defer e.analyzeMu.Unlock()

	cm, err := e.analyzer.Analyze(ctx, e.profiles.List())
	if err != nil {
		return nil, err
	}

	e.manager.SetCompatibility(cm)
	e.manager.Reconcile(ctx)

	e.events.Publish(Event{Type: EventCompatibilityUpdated, Payload: e.analyzer.LastStats()})
	return cm, nil
}

// Connect establishes, or joins, the connection between two systems
func (e *Engine) Connect(ctx context.Context, a, b string) (domain.Connection, error) {
	return e.manager.Connect(ctx, a, b)
}

// Disconnect tears down the connection between two systems. It always succeeds.
func (e *Engine) Disconnect(ctx context.Context, a, b string) domain.Connection {
	return e.manager.Disconnect(ctx, a, b)
}

// Send relays payload over an Active connection
func (e *Engine) Send(ctx context.Context, connectionID string, payload []byte) ([]byte, error) {
	return e.relay.Send(ctx, connectionID, payload)
}

// GetConnectionState returns the connection between two systems
func (e *Engine) GetConnectionState(a, b string) (domain.Connection, error) {
	return e.manager.Get(a, b)
}

// GetConnection returns a connection by ID
func (e *Engine) GetConnection(connectionID string) (domain.Connection, error) {
	return e.manager.GetByID(connectionID)
}

// Profiles returns a copy of every known profile in discovery order
func (e *Engine) Profiles() []domain.SystemProfile {
	return slices.Collect(e.profiles.List())
}

// Profile returns a single profile or domain.ErrNotFound
func (e *Engine) Profile(id string) (domain.SystemProfile, error) {
	return e.profiles.Get(id)
}

// Compatibility returns the installed map, nil before the first analysis
func (e *Engine) Compatibility() *domain.CompatibilityMap {
	return e.manager.Compatibility()
}

// AnalysisStats returns the statistics of the last successful analysis
func (e *Engine) AnalysisStats() analyzer.Stats {
	return e.analyzer.LastStats()
}

// Connections returns every tracked connection
func (e *Engine) Connections() []domain.Connection {
	return e.manager.List()
}

// RequestRefresh asks the Run loop for a refresh followed by an analysis
func (e *Engine) RequestRefresh() {
	select {
	case e.refreshCh <- struct{}{}:
	default:
	}
}

// RequestAnalysis asks the Run loop for an analysis
func (e *Engine) RequestAnalysis() {
	select {
	case e.analyzeCh <- struct{}{}:
	default:
	}
}

// RunConfig holds the periods of the background loops. A zero period disables
// the timer but requests are still served.
type RunConfig struct {
	RefreshInterval  time.Duration
	AnalysisInterval time.Duration
}

// Run refreshes and analyzes once, then keeps profiles, compatibility and
// connections current until ctx is cancelled
func (e *Engine) Run(ctx context.Context, cfg RunConfig) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		e.manager.Run(ctx)
		return nil
	})

	g.Go(func() error {
		e.cycle(ctx, true)

		refresh, stopRefresh := ticker(cfg.RefreshInterval)
		defer stopRefresh()
		analyze, stopAnalyze := ticker(cfg.AnalysisInterval)
		defer stopAnalyze()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-refresh:
				e.cycle(ctx, true)
			case <-e.refreshCh:
				e.cycle(ctx, true)
			case <-analyze:
				e.cycle(ctx, false)
			case <-e.analyzeCh:
				e.cycle(ctx, false)
			}
		}
	})

	return g.Wait()
}

// cycle runs an optional refresh and then an analysis, logging failures
func (e *Engine) cycle(ctx context.Context, refresh bool) {
	if refresh {
		if _, err := e.RefreshProfiles(ctx); err != nil && ctx.Err() == nil {
			e.log.Error().Err(err).Msg("profile refresh failed")
		}
	}
	if _, err := e.Analyze(ctx); err != nil && ctx.Err() == nil {
		e.log.Error().Err(err).Str("kind", string(domain.KindOf(err))).Msg("compatibility analysis failed")
	}
}

// ticker returns a nil channel for a disabled period
func ticker(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}
