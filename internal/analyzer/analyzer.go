// Package analyzer builds the compatibility map from system profiles.
//
// Each pass is a pure function of the profiles it is given and the oracle's answers:
// it queries the oracle once per distinct protocol tag, links every interface whose
// tag is in the returned set with the matching interfaces of every other system and
// emits a fresh immutable domain.CompatibilityMap. Links are recorded in both
// directions, so the result is symmetric even if the oracle is not.
package analyzer

//go:generate mockgen -destination=mock_oracle.go -package=analyzer interlink/internal/analyzer Oracle

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"interlink/internal/domain"
	"interlink/internal/logger"
	"interlink/internal/metrics"
)

// Oracle answers which protocol tags a given tag can talk to.
// It returns domain.ErrOracleUnavailable when it cannot answer at all and an
// empty slice when the tag has no known compatibilities.
type Oracle interface {
	CompatibleWith(ctx context.Context, protocol string) ([]string, error)
}

// Stats describes one analysis pass
type Stats struct {
	Generation      uint64        `json:"generation"`
	Profiles        int           `json:"profiles"`
	Interfaces      int           `json:"interfaces"`
	Pairs           int           `json:"pairs"`
	PartialFailures int           `json:"partial_failures"`
	Duration        time.Duration `json:"duration"`
	At              time.Time     `json:"at"`
}

// Analyzer runs compatibility passes
type Analyzer struct {
	oracle     Oracle
	logger     logger.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	generation atomic.Uint64

	mu        sync.Mutex
	lastStats Stats
}

// New creates an analyzer backed by oracle
func New(oracle Oracle, log logger.Logger, m *metrics.Metrics) *Analyzer {
	return &Analyzer{
		oracle:  oracle,
		logger:  log.WithComponent("analyzer"),
		metrics: m,
		now:     time.Now,
	}
}

type oracleAnswer struct {
	tags map[string]struct{}
	err  error
}

// Analyze builds a compatibility map from profiles.
// An interface the oracle fails for is left out of the map entirely. An
// ErrOracleUnavailable answer aborts the pass with no map.
func (a *Analyzer) Analyze(ctx context.Context, profiles iter.Seq[domain.SystemProfile]) (*domain.CompatibilityMap, error) {
	start := a.now()

	var list []domain.SystemProfile
	for p := range profiles {
		list = append(list, p)
	}

	answers := make(map[string]oracleAnswer)
	builder := domain.NewCompatibilityBuilder()
	usable := make([][]domain.Interface, len(list))
	stats := Stats{Profiles: len(list)}

	for i, p := range list {
		builder.AddSystem(p.ID)
		for _, iface := range p.Interfaces {
			stats.Interfaces++

			ans, err := a.lookup(ctx, answers, iface.Protocol)
			if err != nil {
				return nil, err
			}
			if ans.err != nil {
				stats.PartialFailures++
				a.logger.Warn().Err(ans.err).
					Str("system", p.ID).
					Str("interface", iface.Name).
					Str("protocol", iface.Protocol).
					Msg("oracle failed for interface, omitting it from the map")
				continue
			}

			builder.AddInterface(domain.Endpoint{SystemID: p.ID, Interface: iface.Name})
			usable[i] = append(usable[i], iface)
		}
	}

	for i, p := range list {
		for _, x := range usable[i] {
			compatible := answers[x.Protocol].tags
			if len(compatible) == 0 {
				continue
			}
			from := domain.Endpoint{SystemID: p.ID, Interface: x.Name}

			for j, q := range list {
				if q.ID == p.ID {
					continue
				}
				for _, y := range usable[j] {
					if _, ok := compatible[y.Protocol]; ok {
						builder.Link(from, domain.Endpoint{SystemID: q.ID, Interface: y.Name})
					}
				}
			}
		}
	}

	gen := a.generation.Add(1)
	cm := builder.Build(gen, a.now())

	stats.Generation = gen
	stats.Pairs = cm.Len() / 2
	stats.At = cm.BuiltAt()
	stats.Duration = a.now().Sub(start)

	a.mu.Lock()
	a.lastStats = stats
	a.mu.Unlock()

	a.metrics.RecordAnalysis(stats.Duration, stats.Pairs, stats.PartialFailures)
	a.logger.Info().
		Uint64("generation", gen).
		Int("profiles", stats.Profiles).
		Int("interfaces", stats.Interfaces).
		Int("pairs", stats.Pairs).
		Int("partial_failures", stats.PartialFailures).
		Dur("duration", stats.Duration).
		Msg("compatibility analysis complete")

	return cm, nil
}

// lookup returns the cached oracle answer for tag, querying the oracle on first use.
// The returned error is non-nil only when the whole pass must stop.
func (a *Analyzer) lookup(ctx context.Context, answers map[string]oracleAnswer, tag string) (oracleAnswer, error) {
	if ans, ok := answers[tag]; ok {
		return ans, nil
	}
	if err := ctx.Err(); err != nil {
		return oracleAnswer{}, fmt.Errorf("analysis cancelled: %w", err)
	}

	tags, err := a.oracle.CompatibleWith(ctx, tag)
	if errors.Is(err, domain.ErrOracleUnavailable) {
		a.logger.Error().Err(err).Str("protocol", tag).Msg("oracle unavailable, aborting analysis")
		return oracleAnswer{}, fmt.Errorf("analyze protocol %q: %w", tag, err)
	}

	ans := oracleAnswer{err: err}
	if err == nil {
		ans.tags = make(map[string]struct{}, len(tags))
		for _, t := range tags {
			ans.tags[t] = struct{}{}
		}
	}
	answers[tag] = ans
	return ans, nil
}

// LastStats returns statistics of the most recent successful pass
func (a *Analyzer) LastStats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastStats
}
