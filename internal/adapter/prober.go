package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"interlink/internal/domain"
)

// TCPProber checks liveness with TCP connects. An address with a port is dialed
// directly; a bare host is tried on each fallback port in turn. A refused
// connection still proves the host is up.
type TCPProber struct {
	Timeout time.Duration
	Ports   []int
}

// NewTCPProber returns a prober with the given per-dial timeout
func NewTCPProber(timeout time.Duration) *TCPProber {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &TCPProber{
		Timeout: timeout,
		Ports:   []int{22, 80, 443, 1883},
	}
}

// Probe returns nil when the host answered and an error wrapping
// domain.ErrUnreachable otherwise
func (p *TCPProber) Probe(ctx context.Context, address string) error {
	if address == "" {
		return ErrNoAddress
	}

	var targets []string
	if _, _, err := net.SplitHostPort(address); err == nil {
		targets = []string{address}
	} else {
		for _, port := range p.Ports {
			targets = append(targets, net.JoinHostPort(address, strconv.Itoa(port)))
		}
	}

	var lastErr error
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}

		dialer := net.Dialer{Timeout: p.Timeout}
		conn, err := dialer.DialContext(ctx, "tcp", target)
		if err == nil {
			conn.Close()
			return nil
		}
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil
		}
		lastErr = err
	}

	return fmt.Errorf("%w: %s: %v", domain.ErrUnreachable, address, lastErr)
}
