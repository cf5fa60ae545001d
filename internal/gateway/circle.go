package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ayo6706/stablesend/internal/domain"
	"github.com/shopspring/decimal"
)

const defaultCircleBaseURL = "https://api.circle.com/v1/w3s"

// CircleClient talks to the Circle developer-controlled wallets API.
type CircleClient struct {
	baseURL          string
	apiKey           string
	entityCiphertext string
	httpClient       *http.Client
}

var _ Gateway = (*CircleClient)(nil)

// NewCircleClient creates a wallet-service client. baseURL may be empty to
// use the production endpoint.
func NewCircleClient(baseURL, apiKey, entityCiphertext string) *CircleClient {
	if baseURL == "" {
		baseURL = defaultCircleBaseURL
	}
	return &CircleClient{
		baseURL:          baseURL,
		apiKey:           apiKey,
		entityCiphertext: entityCiphertext,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type transferRequest struct {
	IdempotencyKey         string   `json:"idempotencyKey"`
	WalletID               string   `json:"walletId"`
	TokenID                string   `json:"tokenId"`
	DestinationAddress     string   `json:"destinationAddress"`
	Amounts                []string `json:"amounts"`
	RefID                  string   `json:"refId,omitempty"`
	EntitySecretCiphertext string   `json:"entitySecretCiphertext"`
	FeeLevel               string   `json:"feeLevel"`
}

type contractExecutionRequest struct {
	IdempotencyKey         string `json:"idempotencyKey"`
	WalletID               string `json:"walletId"`
	ContractAddress        string `json:"contractAddress"`
	ABIFunctionSignature   string `json:"abiFunctionSignature"`
	ABIParameters          []any  `json:"abiParameters"`
	RefID                  string `json:"refId,omitempty"`
	EntitySecretCiphertext string `json:"entitySecretCiphertext"`
	FeeLevel               string `json:"feeLevel"`
}

type submissionResponse struct {
	Data struct {
		ID    string `json:"id"`
		State string `json:"state"`
	} `json:"data"`
}

// Transfer submits a USDC token transfer and returns the external call id.
func (c *CircleClient) Transfer(ctx context.Context, params TransferParams) (string, error) {
	body := transferRequest{
		IdempotencyKey:         params.IdempotencyKey,
		WalletID:               params.WalletID,
		TokenID:                params.TokenID,
		DestinationAddress:     params.DestinationAddress,
		Amounts:                []string{params.Amount.StringFixed(domain.TokenDecimals)},
		RefID:                  params.RefID,
		EntitySecretCiphertext: c.entityCiphertext,
		FeeLevel:               "MEDIUM",
	}

	var resp submissionResponse
	if err := c.post(ctx, "/developer/transactions/transfer", body, &resp); err != nil {
		return "", fmt.Errorf("submit transfer: %w", err)
	}
	return resp.Data.ID, nil
}

// ExecuteContract submits a contract execution and returns the external call id.
func (c *CircleClient) ExecuteContract(ctx context.Context, params ContractParams) (string, error) {
	body := contractExecutionRequest{
		IdempotencyKey:         params.IdempotencyKey,
		WalletID:               params.WalletID,
		ContractAddress:        params.ContractAddress,
		ABIFunctionSignature:   params.FunctionSignature,
		ABIParameters:          params.Parameters,
		RefID:                  params.RefID,
		EntitySecretCiphertext: c.entityCiphertext,
		FeeLevel:               "MEDIUM",
	}

	var resp submissionResponse
	if err := c.post(ctx, "/developer/transactions/contractExecution", body, &resp); err != nil {
		return "", fmt.Errorf("submit contract execution: %w", err)
	}
	return resp.Data.ID, nil
}

type balancesResponse struct {
	Data struct {
		TokenBalances []struct {
			Token struct {
				Symbol string `json:"symbol"`
			} `json:"token"`
			Amount string `json:"amount"`
		} `json:"tokenBalances"`
	} `json:"data"`
}

// USDCBalance returns the wallet's USDC balance, zero when the wallet holds none.
func (c *CircleClient) USDCBalance(ctx context.Context, walletID string) (decimal.Decimal, error) {
	var resp balancesResponse
	if err := c.get(ctx, "/wallets/"+walletID+"/balances", &resp); err != nil {
		return decimal.Zero, fmt.Errorf("query wallet balance: %w", err)
	}
	for _, tb := range resp.Data.TokenBalances {
		if tb.Token.Symbol == "USDC" {
			amount, err := decimal.NewFromString(tb.Amount)
			if err != nil {
				return decimal.Zero, fmt.Errorf("parse balance %q: %w", tb.Amount, err)
			}
			return amount, nil
		}
	}
	return decimal.Zero, nil
}

type transactionResponse struct {
	Data struct {
		Transaction struct {
			ID     string `json:"id"`
			State  string `json:"state"`
			TxHash string `json:"txHash"`
		} `json:"transaction"`
	} `json:"data"`
}

// Transaction looks up a previously submitted transaction by external call id.
func (c *CircleClient) Transaction(ctx context.Context, id string) (*TransactionDetail, error) {
	var resp transactionResponse
	if err := c.get(ctx, "/transactions/"+id, &resp); err != nil {
		return nil, fmt.Errorf("query transaction %s: %w", id, err)
	}
	return &TransactionDetail{
		ID:     resp.Data.Transaction.ID,
		State:  resp.Data.Transaction.State,
		TxHash: resp.Data.Transaction.TxHash,
	}, nil
}

func (c *CircleClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *CircleClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *CircleClient) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("wallet service returned %d: %s", resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
