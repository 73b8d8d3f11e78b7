package adapter

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"interlink/internal/domain"
	"interlink/internal/logger"
)

// InventoryFile is the on-disk shape of a static inventory
type InventoryFile struct {
	Systems []domain.RawRecord `yaml:"systems"`
}

// InventorySource reads systems from a YAML file. The file is re-read on every
// Discover so edits show up on the next refresh.
type InventorySource struct {
	path string
	log  logger.Logger
}

// NewInventorySource creates a source backed by the file at path
func NewInventorySource(path string, log logger.Logger) *InventorySource {
	return &InventorySource{
		path: path,
		log:  log.WithComponent("inventory"),
	}
}

// Name returns the source identifier
func (s *InventorySource) Name() string {
	return "inventory"
}

// Path returns the inventory file location
func (s *InventorySource) Path() string {
	return s.path
}

// Discover parses the inventory file
func (s *InventorySource) Discover(ctx context.Context) ([]domain.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}

	records, err := ParseInventory(data)
	if err != nil {
		return nil, err
	}

	s.log.Debug().Str("path", s.path).Int("systems", len(records)).Msg("inventory loaded")
	return records, nil
}

// ParseInventory decodes and checks inventory YAML. Every system needs an ID and
// IDs must be unique.
func ParseInventory(data []byte) ([]domain.RawRecord, error) {
	var file InventoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInventory, err)
	}

	seen := make(map[string]bool, len(file.Systems))
	for i, rec := range file.Systems {
		if rec.ID == "" {
			return nil, fmt.Errorf("%w: system %d has no id", ErrInvalidInventory, i)
		}
		if seen[rec.ID] {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidInventory, rec.ID)
		}
		seen[rec.ID] = true
	}

	return file.Systems, nil
}
