package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Attestation statuses reported by the attestation service.
const (
	AttestationComplete = "complete"
	AttestationPending  = "pending_confirmations"
)

const defaultAttestationBaseURL = "https://iris-api.circle.com"

// Attestation is the signed authorization to mint on the destination chain.
type Attestation struct {
	Status      string `json:"status"`
	Attestation string `json:"attestation"`
}

// AttestationClient fetches burn attestations by message hash.
type AttestationClient interface {
	Lookup(ctx context.Context, messageHash string) (*Attestation, error)
}

// HTTPAttestationClient queries the Circle Iris attestation API.
type HTTPAttestationClient struct {
	baseURL    string
	httpClient *http.Client
}

var _ AttestationClient = (*HTTPAttestationClient)(nil)

func NewAttestationClient(baseURL string) *HTTPAttestationClient {
	if baseURL == "" {
		baseURL = defaultAttestationBaseURL
	}
	return &HTTPAttestationClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Lookup returns the attestation for a burn message hash. A 404 from the
// service means the message has not been observed yet and is reported as
// pending rather than an error.
func (c *HTTPAttestationClient) Lookup(ctx context.Context, messageHash string) (*Attestation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/attestations/"+messageHash, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &Attestation{Status: AttestationPending}, nil
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("attestation service returned %d: %s", resp.StatusCode, raw)
	}

	var att Attestation
	if err := json.NewDecoder(resp.Body).Decode(&att); err != nil {
		return nil, fmt.Errorf("decode attestation: %w", err)
	}
	return &att, nil
}
