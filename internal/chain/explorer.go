// Package chain talks to the Somnia network: the Shannon block explorer for
// transfer history and the JSON-RPC endpoint for balance and chain-id reads.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/somniax/backend/internal/circuitbreaker"
)

// ExplorerTx is one entry from the explorer's account txlist query. All
// numeric fields arrive as decimal strings; Value is exact wei.
type ExplorerTx struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	IsError     string `json:"isError"`
	BlockNumber string `json:"blockNumber"`
	TimeStamp   string `json:"timeStamp"`
}

// Succeeded reports whether the transfer executed without error.
func (tx ExplorerTx) Succeeded() bool { return tx.IsError == "0" }

type txListResponse struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	Result  []ExplorerTx `json:"result"`
}

// ExplorerClient queries an etherscan-style explorer API. Calls go through a
// circuit breaker so a flapping explorer fails fast to the caller's cached
// fallback instead of holding requests open.
type ExplorerClient struct {
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *log.Logger
}

// NewExplorerClient creates a client for the given explorer API base URL
// (e.g. "https://shannon-explorer.somnia.network/api").
func NewExplorerClient(baseURL string) *ExplorerClient {
	return &ExplorerClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		breaker: circuitbreaker.New(circuitbreaker.DefaultConfig("explorer")),
		logger:  log.New(log.Writer(), "[Explorer] ", log.LstdFlags),
	}
}

// ListTransactions fetches the full transaction list for an address, newest
// first. A "no transactions found" response is an empty list, not an error.
func (c *ExplorerClient) ListTransactions(ctx context.Context, address common.Address) ([]ExplorerTx, error) {
	var txs []ExplorerTx

	err := c.breaker.Execute(func() error {
		url := fmt.Sprintf("%s?module=account&action=txlist&address=%s&sort=desc", c.baseURL, address.Hex())

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("explorer query: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("explorer returned HTTP %d: %s", resp.StatusCode, body)
		}

		var parsed txListResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("decode explorer response: %w", err)
		}

		// Status "0" covers both errors and the empty-account case; only the
		// latter carries a result-shaped payload.
		if parsed.Status != "1" {
			if len(parsed.Result) == 0 {
				c.logger.Printf("no transactions for %s (%s)", address.Hex(), parsed.Message)
				txs = nil
				return nil
			}
			return fmt.Errorf("explorer error: %s", parsed.Message)
		}

		txs = parsed.Result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txs, nil
}
