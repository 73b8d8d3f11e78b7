// Package relay forwards payloads over Active connections.
//
// The relay holds no connection state. It borrows the live connector from the
// lifecycle manager for each send and reports transport failures back so the
// manager can degrade and reestablish the connection. Sends are never retried
// here; the caller decides whether to resubmit.
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"interlink/internal/domain"
	"interlink/internal/lifecycle"
	"interlink/internal/logger"
	"interlink/internal/metrics"
)

// Connections is the lifecycle surface the relay depends on
type Connections interface {
	Acquire(connectionID string) (lifecycle.Connector, domain.Connection, error)
	ReportFailure(connectionID string, err error)
	Touch(connectionID string, at time.Time)
}

// Relay sends application payloads with a per-call timeout
type Relay struct {
	conns   Connections
	timeout time.Duration
	logger  logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// New creates a relay. A non-positive timeout selects 5s.
func New(conns Connections, timeout time.Duration, log logger.Logger, m *metrics.Metrics) *Relay {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Relay{
		conns:   conns,
		timeout: timeout,
		logger:  log.WithComponent("relay"),
		metrics: m,
		now:     time.Now,
	}
}

// Send delivers payload on the connection and returns the peer's response.
// A connection that is not Active fails with domain.ErrNotActive and no transport
// call is made. Transport errors and timeouts degrade the connection and are
// returned wrapping domain.ErrTransientTransport.
func (r *Relay) Send(ctx context.Context, connectionID string, payload []byte) ([]byte, error) {
	start := r.now()

	connector, conn, err := r.conns.Acquire(connectionID)
	if err != nil {
		r.metrics.RecordSend(false, 0)
		return nil, err
	}

	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := connector.SendData(sctx, payload)
	elapsed := r.now().Sub(start)
	if err != nil {
		r.metrics.RecordSend(false, elapsed)

		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("send on %s: %w", connectionID, ctx.Err())
		}

		if errors.Is(sctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("send on %s timed out after %s: %w: %w",
				connectionID, r.timeout, domain.ErrTransientTransport, context.DeadlineExceeded)
		} else {
			err = fmt.Errorf("send on %s: %w: %w", connectionID, domain.ErrTransientTransport, err)
		}

		r.logger.Warn().
			Err(err).
			Str("connection", connectionID).
			Str("pair", conn.Pair.String()).
			Int("bytes", len(payload)).
			Msg("send failed, degrading connection")
		r.conns.ReportFailure(connectionID, err)
		return nil, err
	}

	r.metrics.RecordSend(true, elapsed)
	r.conns.Touch(connectionID, r.now())
	r.logger.Debug().
		Str("connection", connectionID).
		Int("bytes_out", len(payload)).
		Int("bytes_in", len(resp)).
		Dur("elapsed", elapsed).
		Msg("payload relayed")
	return resp, nil
}
