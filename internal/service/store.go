package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/ayo6706/stablesend/internal/models"
)

// RecordStore persists in-flight transfer records. Save must be atomic: a
// partially written record is never observable.
type RecordStore interface {
	SaveTransfer(ctx context.Context, rec *models.TransferRecord) error
	GetTransfer(ctx context.Context, id uuid.UUID) (*models.TransferRecord, error)
}

// UserDirectory looks up chat users and their custodial wallets.
type UserDirectory interface {
	UserByID(ctx context.Context, id int64) (*models.User, error)
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	UserByWalletID(ctx context.Context, walletID string) (*models.User, error)
	UserByWalletAddress(ctx context.Context, address string) (*models.User, error)
}
