package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ayo6706/stablesend/internal/models"
)

// StallLister finds non-terminal records that have not moved recently.
type StallLister interface {
	ListStalledTransfers(ctx context.Context, cutoff int64, limit int32) ([]models.TransferRecord, error)
}

// StallMonitor surfaces records stuck between stages, typically because an
// expected webhook never arrived. It only reports; it never mutates records.
type StallMonitor struct {
	lister    StallLister
	threshold time.Duration
}

func NewStallMonitor(lister StallLister, threshold time.Duration) *StallMonitor {
	return &StallMonitor{lister: lister, threshold: threshold}
}

// Sweep logs every stalled record and returns how many were found.
func (m *StallMonitor) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-m.threshold).Unix()
	stalled, err := m.lister.ListStalledTransfers(ctx, cutoff, 100)
	if err != nil {
		return 0, fmt.Errorf("list stalled transfers: %w", err)
	}
	for i := range stalled {
		rec := &stalled[i]
		zap.L().Warn("transfer stalled",
			zap.String("transfer_id", rec.ID.String()),
			zap.String("stage", string(rec.Stage)),
			zap.String("kind", string(rec.Kind)),
			zap.Time("updated_at", rec.UpdatedAt))
	}
	return len(stalled), nil
}
