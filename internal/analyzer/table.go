package analyzer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"interlink/internal/domain"
)

// ErrEmptyProtocol is returned for interfaces that carry no protocol tag
var ErrEmptyProtocol = errors.New("interface has no protocol tag")

// TableFile is the on-disk format of a protocol compatibility table:
//
//	symmetric: true
//	protocols:
//	  http: [http, https]
//	  mqtt: [mqtt]
type TableFile struct {
	// Symmetric adds the reverse of every listed relation
	Symmetric bool                `yaml:"symmetric"`
	Protocols map[string][]string `yaml:"protocols"`
}

// Table is an Oracle backed by a YAML compatibility table.
// It is unavailable until a table has been loaded; a failed reload keeps the previous table.
type Table struct {
	path string

	mu      sync.RWMutex
	entries map[string][]string
}

// NewTable creates a table oracle for path without loading it
func NewTable(path string) *Table {
	return &Table{path: path}
}

// DefaultTableFile pairs each common protocol with itself and its TLS variant
func DefaultTableFile() TableFile {
	return TableFile{
		Symmetric: true,
		Protocols: map[string][]string{
			"http":   {"http", "https"},
			"https":  {"https"},
			"mqtt":   {"mqtt", "mqtts"},
			"mqtts":  {"mqtts"},
			"coap":   {"coap"},
			"amqp":   {"amqp"},
			"modbus": {"modbus"},
			"opcua":  {"opcua"},
		},
	}
}

// NewStaticTable creates a loaded table from an in-memory definition
func NewStaticTable(def TableFile) *Table {
	t := &Table{}
	t.entries = def.compile()
	return t
}

// Path returns the file the table is loaded from
func (t *Table) Path() string {
	return t.path
}

// Reload reads the table file again
func (t *Table) Reload() error {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("read oracle table: %w", err)
	}

	var def TableFile
	if err := yaml.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("parse oracle table: %w", err)
	}

	entries := def.compile()

	t.mu.Lock()
	t.entries = entries
	t.mu.Unlock()
	return nil
}

// Len returns the number of protocol tags with at least one relation
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// CompatibleWith implements Oracle
func (t *Table) CompatibleWith(ctx context.Context, protocol string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.entries == nil {
		return nil, fmt.Errorf("no compatibility table loaded: %w", domain.ErrOracleUnavailable)
	}

	tag := normalizeTag(protocol)
	if tag == "" {
		return nil, ErrEmptyProtocol
	}

	out := make([]string, len(t.entries[tag]))
	copy(out, t.entries[tag])
	return out, nil
}

func (def TableFile) compile() map[string][]string {
	sets := make(map[string]map[string]struct{})
	add := func(from, to string) {
		if from == "" || to == "" {
			return
		}
		if sets[from] == nil {
			sets[from] = make(map[string]struct{})
		}
		sets[from][to] = struct{}{}
	}

	for from, tos := range def.Protocols {
		from = normalizeTag(from)
		for _, to := range tos {
			to = normalizeTag(to)
			add(from, to)
			if def.Symmetric {
				add(to, from)
			}
		}
	}

	entries := make(map[string][]string, len(sets))
	for from, set := range sets {
		for to := range set {
			entries[from] = append(entries[from], to)
		}
	}
	return entries
}

func normalizeTag(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
