package models

import (
	"errors"
	"time"

	"github.com/ayo6706/stablesend/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
)

// Wallet is the custodial wallet the wallet service holds for a user.
type Wallet struct {
	ID         string            `json:"id"`
	Address    string            `json:"address"`
	Blockchain domain.Blockchain `json:"blockchain"`
}

// User ties a chat-platform identity to its wallet.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Wallet    Wallet    `json:"wallet"`
	CreatedAt time.Time `json:"created_at"`
}

// TransferRequest is a single proposed value transfer as entered by a user.
type TransferRequest struct {
	Amount        decimal.Decimal      `json:"amount"`
	Currency      string               `json:"currency"`
	Recipient     string               `json:"recipient"`
	RecipientKind domain.RecipientKind `json:"recipient_kind"`
	Network       string               `json:"network"`
	ValueKind     domain.ValueKind     `json:"value_kind"`
	FiatCurrency  string               `json:"fiat_currency,omitempty"`
}

// TransferRecord is the durable state of one in-flight transfer pipeline.
// It is created and persisted before the first external call that can produce
// a webhook referencing it, and only the orchestrator mutates it afterwards.
type TransferRecord struct {
	ID          uuid.UUID           `json:"id"`
	OwnerID     int64               `json:"owner_id"`
	ChatID      int64               `json:"chat_id"`
	MessageID   int64               `json:"message_id"`
	Kind        domain.TransferKind `json:"kind"`
	Stage       domain.Stage        `json:"stage"`
	Request     TransferRequest     `json:"request"`
	ExternalIDs []string            `json:"external_ids"`

	// Settlement context resolved at confirmation time and filled in as the
	// pipeline advances.
	AmountUSD         decimal.Decimal   `json:"amount_usd"`
	SourceChain       domain.Blockchain `json:"source_chain"`
	DestinationChain  domain.Blockchain `json:"destination_chain"`
	SenderWalletID    string            `json:"sender_wallet_id"`
	RecipientAddress  string            `json:"recipient_address"`
	RecipientWalletID string            `json:"recipient_wallet_id,omitempty"`
	BurnTxHash        string            `json:"burn_tx_hash,omitempty"`
	BurnMessageHex    string            `json:"burn_message_hex,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
