// Package credentials fetches the credential blobs of cloud services from
// mounted secret volumes.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"gopkg.in/yaml.v3"

	"interlink/internal/domain"
	"interlink/internal/logger"
)

// Well-known keys inside a credential blob
const (
	KeyPrivateKey = "private_key"
	KeyPassphrase = "passphrase"
)

// MountedProvider reads credentials from secret volumes. For a system ID "crm"
// each base path is searched, in order, for:
//
//	<path>/crm.yaml or <path>/crm.yml  a flat YAML map of string values
//	<path>/crm/                        one file per key, as mounted by Kubernetes
//
// The first match wins.
type MountedProvider struct {
	paths []string
	log   logger.Logger
	now   func() time.Time
}

// NewMountedProvider creates a provider over the given base paths
func NewMountedProvider(paths []string, log logger.Logger) *MountedProvider {
	return &MountedProvider{
		paths: paths,
		log:   log.WithComponent("credentials"),
		now:   time.Now,
	}
}

// Paths returns the configured base paths
func (p *MountedProvider) Paths() []string {
	return p.paths
}

// Fetch returns the credentials of systemID, or an error wrapping
// domain.ErrNotFound when no base path holds them
func (p *MountedProvider) Fetch(ctx context.Context, systemID string) (*domain.Credentials, error) {
	if err := validateID(systemID); err != nil {
		return nil, err
	}

	for _, base := range p.paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, source, err := p.readFrom(base, systemID)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}

		signer, err := parseKey(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
		if signer != nil {
			p.log.Info().
				Str("system", systemID).
				Str("fingerprint", ssh.FingerprintSHA256(signer.PublicKey())).
				Msg("loaded ssh key")
		}

		p.log.Debug().Str("system", systemID).Str("source", source).Int("keys", len(data)).Msg("credentials loaded")
		return &domain.Credentials{
			Data:      data,
			Source:    source,
			FetchedAt: p.now(),
		}, nil
	}

	return nil, fmt.Errorf("credentials for %s: %w", systemID, domain.ErrNotFound)
}

// readFrom looks for the secret of id under one base path
func (p *MountedProvider) readFrom(base, id string) (map[string]string, string, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(base, id+ext)
		raw, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, path, fmt.Errorf("failed to read %s: %w", path, err)
		}

		data := make(map[string]string)
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, path, fmt.Errorf("%w: %s: %v", ErrMalformedSecret, path, err)
		}
		return data, path, nil
	}

	dir := filepath.Join(base, id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, dir, err
	}

	data := make(map[string]string, len(entries))
	for _, entry := range entries {
		// Kubernetes mounts carry ..data symlinks and timestamped dirs
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			p.log.Warn().Err(err).Str("path", dir).Str("key", entry.Name()).Msg("failed to read secret key")
			continue
		}
		data[entry.Name()] = strings.TrimRight(string(raw), "\n")
	}
	return data, dir, nil
}

func validateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidSystemID, id)
	}
	return nil
}

// parseKey parses the private_key entry, using the passphrase when present.
// A blob without a key yields a nil signer.
func parseKey(data map[string]string) (ssh.Signer, error) {
	key := data[KeyPrivateKey]
	if key == "" {
		return nil, nil
	}

	var (
		signer ssh.Signer
		err    error
	)
	if passphrase := data[KeyPassphrase]; passphrase != "" {
		signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(key), []byte(passphrase))
	} else {
		signer, err = ssh.ParsePrivateKey([]byte(key))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return signer, nil
}
