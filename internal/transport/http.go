// Package transport provides connector implementations for the lifecycle manager.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"interlink/internal/domain"
	"interlink/internal/lifecycle"
	"interlink/internal/logger"
)

const (
	// DefaultHealthPath is probed by Initialize
	DefaultHealthPath = "/health"

	maxResponseBytes = 10 << 20

	headerSource    = "X-Interlink-Source"
	headerInterface = "X-Interlink-Interface"
)

// ErrNoAddress is returned when the target system has no address to connect to
var ErrNoAddress = errors.New("target system has no address")

// HTTPFactory creates connectors that relay payloads as HTTP POSTs from the A
// side of a pair to the B side
type HTTPFactory struct {
	timeout    time.Duration
	healthPath string
	log        logger.Logger
}

// NewHTTPFactory creates a factory whose connectors use the given request timeout
func NewHTTPFactory(timeout time.Duration, log logger.Logger) *HTTPFactory {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPFactory{
		timeout:    timeout,
		healthPath: DefaultHealthPath,
		log:        log.WithComponent("transport"),
	}
}

// SetHealthPath overrides the path probed by Initialize
func (f *HTTPFactory) SetHealthPath(path string) {
	f.healthPath = "/" + strings.TrimPrefix(path, "/")
}

// NewConnector builds a connector towards b's address
func (f *HTTPFactory) NewConnector(a, b domain.SystemProfile, pair domain.InterfacePair) (lifecycle.Connector, error) {
	base, err := baseURL(b.Address)
	if err != nil {
		return nil, fmt.Errorf("system %s: %w", b.ID, err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &HTTPConnector{
		client:     &http.Client{Transport: transport, Timeout: f.timeout},
		transport:  transport,
		base:       base,
		healthPath: f.healthPath,
		source:     a.ID,
		pair:       pair,
		token:      bearerToken(b.Credentials),
		log:        f.log,
	}, nil
}

// HTTPConnector is one live HTTP link. It owns its connection pool.
type HTTPConnector struct {
	client     *http.Client
	transport  *http.Transport
	base       *url.URL
	healthPath string
	source     string
	pair       domain.InterfacePair
	token      string
	log        logger.Logger

	mu     sync.Mutex
	closed bool
}

// Initialize checks the target's health endpoint
func (c *HTTPConnector) Initialize(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.JoinPath(c.healthPath).String(), nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w: %w", domain.ErrTransientTransport, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health check: %w: status %d", domain.ErrTransientTransport, resp.StatusCode)
	}
	return nil
}

// SendData posts payload to the B interface and returns the response body
func (c *HTTPConnector) SendData(ctx context.Context, payload []byte) ([]byte, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, domain.ErrNotActive
	}

	target := c.base.JoinPath(c.pair.B.Interface).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(headerSource, c.source)
	req.Header.Set(headerInterface, c.pair.A.Interface)
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send: %w: %w", domain.ErrTransientTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w: %w", domain.ErrTransientTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("send: %w: status %d", domain.ErrTransientTransport, resp.StatusCode)
	}
	return body, nil
}

// Shutdown stops the connector and drops pooled connections. Safe to call twice.
func (c *HTTPConnector) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.transport.CloseIdleConnections()
	c.log.Debug().Str("target", c.base.String()).Str("interface", c.pair.B.Interface).Msg("connector shut down")
	return nil
}

func (c *HTTPConnector) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// baseURL turns a profile address into a URL, defaulting to http
func baseURL(address string) (*url.URL, error) {
	if address == "" {
		return nil, ErrNoAddress
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", address, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid address %q: missing host", address)
	}
	return u, nil
}

func bearerToken(creds *domain.Credentials) string {
	if creds == nil {
		return ""
	}
	return creds.Data["token"]
}
