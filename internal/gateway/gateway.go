package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// TransferParams describes a token transfer submission.
type TransferParams struct {
	WalletID           string
	DestinationAddress string
	TokenID            string
	Amount             decimal.Decimal
	// IdempotencyKey is the single-use dedupe token for this submission,
	// distinct from the record id.
	IdempotencyKey string
	// RefID is the correlation key echoed back by the completion webhook.
	RefID string
}

// ContractParams describes an arbitrary contract execution submission.
type ContractParams struct {
	WalletID        string
	ContractAddress string
	// FunctionSignature is the ABI signature, e.g. "approve(address,uint256)".
	FunctionSignature string
	Parameters        []any
	IdempotencyKey    string
	RefID             string
}

// TransactionDetail is the wallet service's view of a submitted transaction.
type TransactionDetail struct {
	ID     string
	State  string
	TxHash string
}

// Gateway is the wallet-service interface: transfer and contract submissions
// return external call ids; completion arrives later via webhook.
type Gateway interface {
	Transfer(ctx context.Context, params TransferParams) (string, error)
	ExecuteContract(ctx context.Context, params ContractParams) (string, error)
	USDCBalance(ctx context.Context, walletID string) (decimal.Decimal, error)
	Transaction(ctx context.Context, id string) (*TransactionDetail, error)
}
