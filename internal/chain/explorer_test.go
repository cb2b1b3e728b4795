package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")

func explorerServer(t *testing.T, handler http.HandlerFunc) *ExplorerClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewExplorerClient(srv.URL)
}

func TestListTransactions(t *testing.T) {
	client := explorerServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "account", r.URL.Query().Get("module"))
		assert.Equal(t, "txlist", r.URL.Query().Get("action"))
		assert.Equal(t, testAddr.Hex(), r.URL.Query().Get("address"))
		assert.Equal(t, "desc", r.URL.Query().Get("sort"))

		json.NewEncoder(w).Encode(txListResponse{
			Status:  "1",
			Message: "OK",
			Result: []ExplorerTx{
				{Hash: "0xabc", To: "0xdef", Value: "100000000000000000", IsError: "0"},
				{Hash: "0x123", To: "0xdef", Value: "100000000000000000", IsError: "1"},
			},
		})
	})

	txs, err := client.ListTransactions(context.Background(), testAddr)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.True(t, txs[0].Succeeded())
	assert.False(t, txs[1].Succeeded())
}

func TestListTransactionsEmptyAccount(t *testing.T) {
	client := explorerServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(txListResponse{
			Status:  "0",
			Message: "No transactions found",
			Result:  []ExplorerTx{},
		})
	})

	txs, err := client.ListTransactions(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestListTransactionsHTTPError(t *testing.T) {
	client := explorerServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})

	_, err := client.ListTransactions(context.Background(), testAddr)
	assert.Error(t, err)
}

func TestListTransactionsMalformedBody(t *testing.T) {
	client := explorerServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	})

	_, err := client.ListTransactions(context.Background(), testAddr)
	assert.Error(t, err)
}

func TestListTransactionsBreakerOpensAfterFailures(t *testing.T) {
	calls := 0
	client := explorerServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := client.ListTransactions(ctx, testAddr)
		require.Error(t, err)
	}
	served := calls

	// Breaker is open now; further calls fail without hitting the server.
	_, err := client.ListTransactions(ctx, testAddr)
	assert.Error(t, err)
	assert.Equal(t, served, calls)
}
