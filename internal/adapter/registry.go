package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"interlink/internal/domain"
	"interlink/internal/logger"
	"interlink/internal/metrics"
)

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithProbeLimit bounds the number of concurrent liveness probes
func WithProbeLimit(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.probeLimit = n
		}
	}
}

// WithProbeTimeout bounds a single liveness probe
func WithProbeTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.probeTimeout = d
		}
	}
}

// WithRegistryMetrics records per-source refresh outcomes
func WithRegistryMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithEventPublisher sets the publisher for discovery progress events
func WithEventPublisher(pub EventPublisher) RegistryOption {
	return func(r *Registry) {
		r.publisher = pub
	}
}

// Registry runs discovery sources and enriches what they find
type Registry struct {
	mu           sync.RWMutex
	sources      []Source
	prober       Prober
	probeLimit   int
	probeTimeout time.Duration
	publisher    EventPublisher
	metrics      *metrics.Metrics
	log          logger.Logger
	now          func() time.Time
}

// NewRegistry creates a registry. A nil prober disables liveness probes.
func NewRegistry(prober Prober, log logger.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		prober:       prober,
		probeLimit:   10,
		probeTimeout: 2 * time.Second,
		log:          log.WithComponent("discovery"),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a source. Sources registered earlier win when two report the same ID.
func (r *Registry) Register(src Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.sources {
		if existing.Name() == src.Name() {
			return fmt.Errorf("%w: %s", ErrSourceExists, src.Name())
		}
	}

	r.sources = append(r.sources, src)
	r.log.Info().Str("source", src.Name()).Msg("registered source")
	return nil
}

// Sources lists registered source names in registration order
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.sources))
	for i, src := range r.sources {
		names[i] = src.Name()
	}
	return names
}

// Discover runs every source concurrently, builds profiles from their records and
// enriches them by kind. A failing source is recorded in the report and does not
// stop the others. Only cancellation of ctx returns an error.
func (r *Registry) Discover(ctx context.Context) (*Report, error) {
	r.mu.RLock()
	sources := make([]Source, len(r.sources))
	copy(sources, r.sources)
	r.mu.RUnlock()

	r.publish(EventDiscoveryStarted, map[string]any{
		"sources": len(sources),
		"message": fmt.Sprintf("Starting discovery across %d sources", len(sources)),
	})

	type sourceOutput struct {
		records []domain.RawRecord
		err     error
	}
	outputs := make([]sourceOutput, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			records, err := src.Discover(ctx)
			outputs[i] = sourceOutput{records: records, err: err}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := r.now()
	report := &Report{}
	seen := make(map[string]string)
	for i, src := range sources {
		out := outputs[i]
		res := SourceResult{Source: src.Name(), Records: len(out.records)}
		r.metrics.RecordRefresh(src.Name(), out.err == nil)

		if out.err != nil {
			res.Error = out.err.Error()
			report.Failed++
			r.log.Warn().Err(out.err).Str("source", src.Name()).Msg("discovery source failed")
			report.Sources = append(report.Sources, res)
			continue
		}

		for _, rec := range out.records {
			if rec.ID == "" {
				r.log.Warn().Str("source", src.Name()).Str("name", rec.Name).Msg("skipping record without id")
				continue
			}
			if owner, dup := seen[rec.ID]; dup {
				r.log.Debug().Str("id", rec.ID).Str("source", src.Name()).Str("kept", owner).Msg("duplicate record")
				continue
			}
			seen[rec.ID] = src.Name()
			report.Profiles = append(report.Profiles, domain.NewProfile(rec, src.Name(), now))
		}
		report.Sources = append(report.Sources, res)
	}

	probed, err := r.enrich(ctx, report.Profiles)
	if err != nil {
		return nil, err
	}
	report.Probed = probed

	r.publish(EventDiscoveryComplete, map[string]any{
		"profiles": len(report.Profiles),
		"probed":   probed,
		"failed":   report.Failed,
		"message":  fmt.Sprintf("Discovery complete: %d systems", len(report.Profiles)),
	})

	r.log.Info().
		Int("profiles", len(report.Profiles)).
		Int("probed", probed).
		Int("failed_sources", report.Failed).
		Msg("discovery complete")

	return report, nil
}

// enrich runs the kind-specific step for each profile in place
func (r *Registry) enrich(ctx context.Context, profiles []domain.SystemProfile) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.probeLimit)

	var (
		mu     sync.Mutex
		probed int
	)

	for i := range profiles {
		p := &profiles[i]
		switch p.Kind {
		case domain.KindCloudService:
			// Credentials are looked up when a connection is first established
			r.log.Debug().Str("system", p.ID).Msg("cloud service, credentials deferred")

		case domain.KindIoTDevice:
			if r.prober == nil || p.Reachability.Known() {
				continue
			}
			if p.Address == "" {
				r.log.Debug().Str("system", p.ID).Msg("device has no address, reachability unknown")
				continue
			}
			g.Go(func() error {
				pctx, cancel := context.WithTimeout(gctx, r.probeTimeout)
				defer cancel()

				err := r.prober.Probe(pctx, p.Address)
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.Reachability = domain.Reachability{Reachable: err == nil, CheckedAt: r.now()}
				if err != nil {
					r.log.Debug().Err(err).Str("system", p.ID).Msg("device unreachable")
				}

				mu.Lock()
				probed++
				mu.Unlock()

				r.publish(EventDiscoveryProgress, map[string]any{
					"system":    p.ID,
					"address":   p.Address,
					"reachable": err == nil,
				})
				return nil
			})

		default:
			r.log.Warn().Str("system", p.ID).Str("name", p.Name).Msg("unknown system kind, storing profile as-is")
		}
	}

	if err := g.Wait(); err != nil {
		return probed, err
	}
	return probed, nil
}

func (r *Registry) publish(eventType string, payload any) {
	if r.publisher != nil {
		r.publisher.PublishDiscoveryEvent(eventType, payload)
	}
}
