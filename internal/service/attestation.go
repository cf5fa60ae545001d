package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ayo6706/stablesend/internal/gateway"
	"github.com/ayo6706/stablesend/internal/observability"
)

// ErrAttestationExhausted is reported when the poller gives up before the
// attestation service observes the burn.
var ErrAttestationExhausted = errors.New("attestation retries exhausted")

// AttestationWaiter blocks until an attestation is available or the retry
// budget runs out. It runs on its own goroutine, never on a request path.
type AttestationWaiter interface {
	AwaitAttestation(ctx context.Context, messageHash string) (string, error)
}

// Poller polls the attestation service on a fixed interval with a bounded
// attempt count.
type Poller struct {
	client      gateway.AttestationClient
	maxAttempts int
	interval    time.Duration
}

var _ AttestationWaiter = (*Poller)(nil)

func NewPoller(client gateway.AttestationClient, maxAttempts int, interval time.Duration) *Poller {
	return &Poller{client: client, maxAttempts: maxAttempts, interval: interval}
}

func (p *Poller) AwaitAttestation(ctx context.Context, messageHash string) (string, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		att, err := p.client.Lookup(ctx, messageHash)
		switch {
		case err != nil:
			// Transient lookup failures consume an attempt like a
			// pending status does.
			observability.IncrementAttestationAttempt("error")
			zap.L().Warn("attestation lookup failed",
				zap.String("message_hash", messageHash),
				zap.Int("attempt", attempt), zap.Error(err))
		case att.Status == gateway.AttestationComplete:
			observability.IncrementAttestationAttempt("complete")
			return att.Attestation, nil
		default:
			observability.IncrementAttestationAttempt("pending")
		}

		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
	return "", ErrAttestationExhausted
}
