package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ayo6706/stablesend/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository persists transfer records and the user directory in Postgres.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateUser registers a chat user with their wallet.
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (id, username, wallet_id, wallet_address, wallet_blockchain, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW()) RETURNING created_at`
	err := r.db.QueryRow(ctx, query,
		user.ID, user.Username, user.Wallet.ID, user.Wallet.Address, user.Wallet.Blockchain,
	).Scan(&user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *Repository) UserByID(ctx context.Context, id int64) (*models.User, error) {
	return r.userWhere(ctx, `id = $1`, id)
}

func (r *Repository) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.userWhere(ctx, `username = $1`, username)
}

func (r *Repository) UserByWalletID(ctx context.Context, walletID string) (*models.User, error) {
	return r.userWhere(ctx, `wallet_id = $1`, walletID)
}

func (r *Repository) UserByWalletAddress(ctx context.Context, address string) (*models.User, error) {
	return r.userWhere(ctx, `LOWER(wallet_address) = LOWER($1)`, address)
}

func (r *Repository) userWhere(ctx context.Context, where string, arg any) (*models.User, error) {
	user := &models.User{}
	query := `SELECT id, username, wallet_id, wallet_address, wallet_blockchain, created_at FROM users WHERE ` + where
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&user.ID, &user.Username, &user.Wallet.ID, &user.Wallet.Address, &user.Wallet.Blockchain, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// SaveTransfer upserts a transfer record in a single statement, so a reader
// either sees the previous state or the new one, never a partial write.
func (r *Repository) SaveTransfer(ctx context.Context, rec *models.TransferRecord) error {
	requestJSON, err := json.Marshal(rec.Request)
	if err != nil {
		return fmt.Errorf("failed to encode transfer request: %w", err)
	}

	query := `INSERT INTO transfers (
			id, owner_id, chat_id, message_id, kind, stage, request, external_ids,
			amount_usd, source_chain, destination_chain, sender_wallet_id,
			recipient_address, recipient_wallet_id, burn_tx_hash, burn_message_hex,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			stage = EXCLUDED.stage,
			external_ids = EXCLUDED.external_ids,
			recipient_address = EXCLUDED.recipient_address,
			recipient_wallet_id = EXCLUDED.recipient_wallet_id,
			burn_tx_hash = EXCLUDED.burn_tx_hash,
			burn_message_hex = EXCLUDED.burn_message_hex,
			updated_at = NOW()
		RETURNING created_at, updated_at`
	err = r.db.QueryRow(ctx, query,
		rec.ID, rec.OwnerID, rec.ChatID, rec.MessageID, rec.Kind, rec.Stage, requestJSON, rec.ExternalIDs,
		rec.AmountUSD.String(), rec.SourceChain, rec.DestinationChain, rec.SenderWalletID,
		rec.RecipientAddress, rec.RecipientWalletID, rec.BurnTxHash, rec.BurnMessageHex,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save transfer %s: %w", rec.ID, err)
	}
	return nil
}

func (r *Repository) GetTransfer(ctx context.Context, id uuid.UUID) (*models.TransferRecord, error) {
	query := `SELECT id, owner_id, chat_id, message_id, kind, stage, request, external_ids,
			amount_usd, source_chain, destination_chain, sender_wallet_id,
			recipient_address, recipient_wallet_id, burn_tx_hash, burn_message_hex,
			created_at, updated_at
		FROM transfers WHERE id = $1`
	rec, err := scanTransfer(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transfer %s: %w", id, err)
	}
	return rec, nil
}

// ListStalledTransfers returns non-terminal records that have not moved since
// the cutoff, for the stall sweep to flag.
func (r *Repository) ListStalledTransfers(ctx context.Context, cutoff int64, limit int32) ([]models.TransferRecord, error) {
	query := `SELECT id, owner_id, chat_id, message_id, kind, stage, request, external_ids,
			amount_usd, source_chain, destination_chain, sender_wallet_id,
			recipient_address, recipient_wallet_id, burn_tx_hash, burn_message_hex,
			created_at, updated_at
		FROM transfers
		WHERE stage NOT IN ('COMPLETE', 'FAILED') AND updated_at < to_timestamp($1)
		ORDER BY updated_at ASC
		LIMIT $2`
	rows, err := r.db.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stalled transfers: %w", err)
	}
	defer rows.Close()

	var out []models.TransferRecord
	for rows.Next() {
		rec, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stalled transfer: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (*models.TransferRecord, error) {
	rec := &models.TransferRecord{}
	var requestJSON []byte
	var amountUSD string
	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.ChatID, &rec.MessageID, &rec.Kind, &rec.Stage, &requestJSON, &rec.ExternalIDs,
		&amountUSD, &rec.SourceChain, &rec.DestinationChain, &rec.SenderWalletID,
		&rec.RecipientAddress, &rec.RecipientWalletID, &rec.BurnTxHash, &rec.BurnMessageHex,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(requestJSON, &rec.Request); err != nil {
		return nil, fmt.Errorf("decode transfer request: %w", err)
	}
	rec.AmountUSD, err = decimal.NewFromString(amountUSD)
	if err != nil {
		return nil, fmt.Errorf("decode transfer amount: %w", err)
	}
	return rec, nil
}
