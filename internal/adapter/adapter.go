package adapter

import (
	"context"

	"interlink/internal/domain"
)

// Source produces raw system records. Implementations are safe to call repeatedly;
// each call is a complete observation of the systems the source can see.
type Source interface {
	// Name returns the unique identifier for this source
	Name() string

	// Discover returns every system the source currently observes
	Discover(ctx context.Context) ([]domain.RawRecord, error)
}

// Prober checks liveness of a single network address
type Prober interface {
	Probe(ctx context.Context, address string) error
}

// EventPublisher allows the registry to publish discovery progress
type EventPublisher interface {
	PublishDiscoveryEvent(eventType string, payload any)
}

// Discovery event types
const (
	EventDiscoveryStarted  = "discovery-started"
	EventDiscoveryProgress = "discovery-progress"
	EventDiscoveryComplete = "discovery-complete"
)

// SourceResult reports the outcome of one source during a refresh
type SourceResult struct {
	Source  string `json:"source"`
	Records int    `json:"records"`
	Error   string `json:"error,omitempty"`
}

// Report is the outcome of a full discovery pass
type Report struct {
	Profiles []domain.SystemProfile `json:"-"`
	Sources  []SourceResult         `json:"sources"`
	Probed   int                    `json:"probed"`
	Failed   int                    `json:"failed"`
}

// Complete reports whether every source succeeded
func (r *Report) Complete() bool {
	return r.Failed == 0
}
