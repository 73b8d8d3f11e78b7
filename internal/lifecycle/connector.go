package lifecycle

//go:generate mockgen -destination=mock_lifecycle.go -package=lifecycle interlink/internal/lifecycle Connector,TransportFactory,CredentialProvider

import (
	"context"
	"time"

	"interlink/internal/domain"
)

// Connector is the transport-level link between the two systems of a connection.
// A connector whose Initialize failed holds no resources and is discarded.
type Connector interface {
	Initialize(ctx context.Context) error
	SendData(ctx context.Context, payload []byte) ([]byte, error)
	Shutdown(ctx context.Context) error
}

// TransportFactory creates a connector for a selected interface pair.
// a is the profile of pair.A.SystemID and b of pair.B.SystemID.
type TransportFactory interface {
	NewConnector(a, b domain.SystemProfile, pair domain.InterfacePair) (Connector, error)
}

// CredentialProvider fetches credentials for cloud services.
// It returns domain.ErrNotFound when the system has none.
type CredentialProvider interface {
	Fetch(ctx context.Context, systemID string) (*domain.Credentials, error)
}

// ProfileSource is the part of the profile store the manager reads and writes
type ProfileSource interface {
	Get(id string) (domain.SystemProfile, error)
	SetCredentials(id string, creds *domain.Credentials) error
}

// Config tunes the connection state machine
type Config struct {
	MaxAttempts      int
	BaseBackoff      time.Duration
	MaxBackoff       time.Duration
	EstablishTimeout time.Duration
	ClosedRetention  time.Duration
	SweepInterval    time.Duration
}

// DefaultConfig returns the manager defaults
func DefaultConfig() Config {
	return Config{
		MaxAttempts:      5,
		BaseBackoff:      500 * time.Millisecond,
		MaxBackoff:       30 * time.Second,
		EstablishTimeout: 10 * time.Second,
		ClosedRetention:  5 * time.Minute,
		SweepInterval:    30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = def.BaseBackoff
	}
	if c.MaxBackoff < c.BaseBackoff {
		c.MaxBackoff = max(def.MaxBackoff, c.BaseBackoff)
	}
	if c.EstablishTimeout <= 0 {
		c.EstablishTimeout = def.EstablishTimeout
	}
	if c.ClosedRetention < 0 {
		c.ClosedRetention = 0
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	return c
}
