package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client wraps the JSON-RPC endpoint for the reads the service needs:
// native balances and the network's chain id.
type Client struct {
	eth *ethclient.Client
	url string
}

// Dial connects to the chain RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", rpcURL, err)
	}
	return &Client{eth: eth, url: rpcURL}, nil
}

// ChainID returns the network's reported chain id.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	return id, nil
}

// BalanceAt returns the current native balance of an address in wei.
func (c *Client) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	bal, err := c.eth.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("read balance of %s: %w", address.Hex(), err)
	}
	return bal, nil
}

// Raw exposes the underlying ethclient for callers that need to submit
// transactions (the operator wallet signer).
func (c *Client) Raw() *ethclient.Client { return c.eth }

// Close tears down the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}
