package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "github.com/W3LABS/points_engine/internal/errors"
	"github.com/W3LABS/points_engine/internal/types"
)

// Service is the slice of the block explorer API the engine consumes.
type Service interface {
	AccountTransactions(ctx context.Context, address string) ([]types.ExplorerTxRecord, error)
	AccountTokenTransfers(ctx context.Context, address string) ([]types.ExplorerTokenTransfer, error)
}

// Client talks to the block explorer's account-transactions endpoint.
// The explorer is rate limited and occasionally unavailable; every failure
// is surfaced as an ExplorerError so callers can leave existing state alone.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// AccountTransactions fetches the normal-transaction history for an address.
// An empty result is not an error.
func (c *Client) AccountTransactions(ctx context.Context, address string) ([]types.ExplorerTxRecord, error) {
	var records []types.ExplorerTxRecord
	if err := c.fetch(ctx, address, "normal", &records); err != nil {
		return nil, err
	}
	return records, nil
}

// AccountTokenTransfers fetches the token-transfer history for an address.
func (c *Client) AccountTokenTransfers(ctx context.Context, address string) ([]types.ExplorerTokenTransfer, error) {
	var records []types.ExplorerTokenTransfer
	if err := c.fetch(ctx, address, "token", &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) fetch(ctx context.Context, address, txType string, out interface{}) error {
	endpoint := fmt.Sprintf("%s/account/transactions?%s", c.baseURL, url.Values{
		"address": {address},
		"type":    {txType},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &apperrors.ExplorerError{Operation: "build request", Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &apperrors.ExplorerError{Operation: "fetch " + txType + " transactions", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &apperrors.ExplorerError{
			Operation: "fetch " + txType + " transactions",
			Err:       fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &apperrors.ExplorerError{Operation: "decode response", Err: err}
	}
	return nil
}
