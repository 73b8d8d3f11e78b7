package credentials

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"interlink/internal/domain"
)

// StaticProvider serves credentials held in memory
type StaticProvider struct {
	mu      sync.RWMutex
	secrets map[string]map[string]string
}

// NewStaticProvider creates a provider over a copy of secrets
func NewStaticProvider(secrets map[string]map[string]string) *StaticProvider {
	p := &StaticProvider{secrets: make(map[string]map[string]string, len(secrets))}
	for id, data := range secrets {
		p.secrets[id] = maps.Clone(data)
	}
	return p
}

// Set replaces the credentials of one system
func (p *StaticProvider) Set(systemID string, data map[string]string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.secrets[systemID] = maps.Clone(data)
}

// Fetch returns a copy of the stored credentials
func (p *StaticProvider) Fetch(ctx context.Context, systemID string) (*domain.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	data, ok := p.secrets[systemID]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("credentials for %s: %w", systemID, domain.ErrNotFound)
	}

	return &domain.Credentials{
		Data:      maps.Clone(data),
		Source:    "static",
		FetchedAt: time.Now(),
	}, nil
}
