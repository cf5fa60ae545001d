// Package ens resolves ENS names to addresses through the ensdata HTTP API.
package ens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrNotResolved is returned when a name has no address record.
var ErrNotResolved = errors.New("ens: name not resolved")

const defaultBaseURL = "https://api.ensdata.net"

type Resolver interface {
	Resolve(ctx context.Context, name string) (string, error)
	// ReverseLookup returns the primary name for an address, if any.
	ReverseLookup(ctx context.Context, address string) (string, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ Resolver = (*Client)(nil)

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Resolve returns the address an ENS name points to.
func (c *Client) Resolve(ctx context.Context, name string) (string, error) {
	payload, err := c.lookup(ctx, strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return "", err
	}
	if payload.Address == "" {
		return "", ErrNotResolved
	}
	return payload.Address, nil
}

// ReverseLookup returns the primary ENS name registered for an address.
func (c *Client) ReverseLookup(ctx context.Context, address string) (string, error) {
	payload, err := c.lookup(ctx, strings.TrimSpace(address))
	if err != nil {
		return "", err
	}
	if payload.ENS == "" {
		return "", ErrNotResolved
	}
	return payload.ENS, nil
}

type lookupResponse struct {
	Address string `json:"address"`
	ENS     string `json:"ens"`
}

// lookup queries the ensdata API, which accepts either a name or an address
// as the path segment.
func (c *Client) lookup(ctx context.Context, subject string) (*lookupResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+subject, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotResolved
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ens lookup returned %d", resp.StatusCode)
	}

	var payload lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode ens response: %w", err)
	}
	return &payload, nil
}
