package repository

import (
	"context"

	"interlink/internal/domain"
)

// Repository persists profile snapshots between process runs.
// Credentials and connections are never written.
type Repository interface {
	// SaveProfiles upserts the given profiles by ID
	SaveProfiles(ctx context.Context, profiles []domain.SystemProfile) error
	// GetProfile returns domain.ErrNotFound for an unknown ID
	GetProfile(ctx context.Context, id string) (domain.SystemProfile, error)
	// ListProfiles returns every stored profile ordered by first sighting
	ListProfiles(ctx context.Context) ([]domain.SystemProfile, error)

	// Close releases resources
	Close() error
}
