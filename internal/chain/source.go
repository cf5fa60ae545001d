package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/ayo6706/stablesend/internal/domain"
)

// ErrMessageNotFound is returned when a burn transaction receipt carries no
// MessageSent event.
var ErrMessageNotFound = errors.New("chain: no MessageSent event in receipt")

// messageSentTopic identifies the MessageTransmitter MessageSent(bytes) event.
var messageSentTopic = crypto.Keccak256Hash([]byte("MessageSent(bytes)"))

// Source reads burn messages emitted on a source chain.
type Source interface {
	// BurnMessage extracts the raw burn message and its keccak256 hash from
	// the receipt of a depositForBurn transaction.
	BurnMessage(ctx context.Context, chain domain.Blockchain, txHash string) (message []byte, messageHash string, err error)
}

// RPCSource reads receipts over JSON-RPC, dialing each chain's endpoint lazily
// and caching the connection.
type RPCSource struct {
	endpoints map[domain.Blockchain]string

	mu      sync.Mutex
	clients map[domain.Blockchain]*ethclient.Client
}

var _ Source = (*RPCSource)(nil)

func NewRPCSource(infuraKey string) *RPCSource {
	return &RPCSource{
		endpoints: domain.RPCEndpoints(infuraKey),
		clients:   make(map[domain.Blockchain]*ethclient.Client),
	}
}

func (s *RPCSource) BurnMessage(ctx context.Context, chain domain.Blockchain, txHash string) ([]byte, string, error) {
	client, err := s.client(ctx, chain)
	if err != nil {
		return nil, "", err
	}

	receipt, err := client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, "", fmt.Errorf("fetch receipt %s on %s: %w", txHash, chain, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, "", fmt.Errorf("transaction %s on %s reverted", txHash, chain)
	}

	for _, log := range receipt.Logs {
		if len(log.Topics) == 0 || log.Topics[0] != messageSentTopic {
			continue
		}
		message, err := messageFromLogData(log.Data)
		if err != nil {
			return nil, "", err
		}
		return message, crypto.Keccak256Hash(message).Hex(), nil
	}
	return nil, "", ErrMessageNotFound
}

func (s *RPCSource) client(ctx context.Context, chain domain.Blockchain) (*ethclient.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[chain]; ok {
		return c, nil
	}
	endpoint, ok := s.endpoints[chain]
	if !ok {
		return nil, fmt.Errorf("no RPC endpoint for chain %s", chain)
	}
	c, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", chain, err)
	}
	s.clients[chain] = c
	return c, nil
}

// messageFromLogData decodes the single non-indexed bytes argument of a
// MessageSent event.
func messageFromLogData(data []byte) ([]byte, error) {
	bytesType, err := abi.NewType("bytes", "", nil)
	if err != nil {
		return nil, err
	}
	args := abi.Arguments{{Type: bytesType}}

	values, err := args.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack MessageSent data: %w", err)
	}
	message, ok := values[0].([]byte)
	if !ok || len(message) == 0 {
		return nil, errors.New("chain: empty MessageSent payload")
	}
	return message, nil
}

// LeftPadAddress encodes an EVM address as the 32-byte recipient argument
// expected by depositForBurn.
func LeftPadAddress(address string) [32]byte {
	var padded [32]byte
	raw := common.HexToAddress(strings.TrimSpace(address))
	copy(padded[12:], raw.Bytes())
	return padded
}

// PaddedRecipientHex is LeftPadAddress rendered as a 0x-prefixed hex string,
// the form the wallet service accepts for bytes32 ABI parameters.
func PaddedRecipientHex(address string) string {
	padded := LeftPadAddress(address)
	return hexutil.Encode(padded[:])
}
