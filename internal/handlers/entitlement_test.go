package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somniax/backend/internal/chain"
	"github.com/somniax/backend/internal/entitlement"
)

type fakeLister struct {
	txs []chain.ExplorerTx
	err error
}

func (f *fakeLister) ListTransactions(ctx context.Context, address common.Address) ([]chain.ExplorerTx, error) {
	return f.txs, f.err
}

func scanTracker(lister *fakeLister) *entitlement.Tracker {
	return entitlement.NewTracker(entitlement.Config{
		ChainID:           50312,
		Recipient:         common.HexToAddress("0xE867be6751b23Bd389792AC080F604C4608a8637"),
		PriceWei:          big.NewInt(100000000000000000),
		MessagesPerBundle: 30,
	}, entitlement.NewMemoryStore(), lister, nil)
}

func callWithVars(t *testing.T, handler http.HandlerFunc, method, address string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, "/", bytes.NewReader(raw))
	} else {
		req = httptest.NewRequest(method, "/", nil)
	}
	req = mux.SetURLVars(req, map[string]string{"address": address})
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestGetEntitlementFreshWallet(t *testing.T) {
	tracker := newTestTracker(t, 0)

	rec := callWithVars(t, GetEntitlement(tracker), http.MethodGet, testWallet.Hex(), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp EntitlementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.MessagesRemaining)
	assert.True(t, resp.NeedsPayment)
	assert.Equal(t, string(entitlement.StatusDisconnected), resp.Status)
}

func TestGetEntitlementInvalidAddress(t *testing.T) {
	rec := callWithVars(t, GetEntitlement(newTestTracker(t, 0)), http.MethodGet, "nonsense", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConsumeEntitlement(t *testing.T) {
	tracker := newTestTracker(t, 2)

	rec := callWithVars(t, ConsumeEntitlement(tracker), http.MethodPost, testWallet.Hex(), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp EntitlementResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.MessagesRemaining)
}

func TestConsumeEntitlementEmptyBalance(t *testing.T) {
	rec := callWithVars(t, ConsumeEntitlement(newTestTracker(t, 0)), http.MethodPost, testWallet.Hex(), nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestRecordPaymentCreditsOnce(t *testing.T) {
	tracker := newTestTracker(t, 0)
	hash := "0xbbbb000000000000000000000000000000000000000000000000000000000001"

	rec := callWithVars(t, RecordPayment(tracker), http.MethodPost, testWallet.Hex(),
		RecordPaymentRequest{TxHash: hash})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["credited"])
	assert.Equal(t, float64(30), resp["messages_remaining"])

	// Replay of the same hash is a no-op.
	rec = callWithVars(t, RecordPayment(tracker), http.MethodPost, testWallet.Hex(),
		RecordPaymentRequest{TxHash: hash})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["credited"])
	assert.Equal(t, float64(30), resp["messages_remaining"])
}

func TestRecordPaymentRejectsMalformedHash(t *testing.T) {
	rec := callWithVars(t, RecordPayment(newTestTracker(t, 0)), http.MethodPost, testWallet.Hex(),
		RecordPaymentRequest{TxHash: "deadbeef"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyEntitlementReconciles(t *testing.T) {
	lister := &fakeLister{txs: []chain.ExplorerTx{{
		Hash:    "0xcccc000000000000000000000000000000000000000000000000000000000001",
		To:      "0xE867be6751b23Bd389792AC080F604C4608a8637",
		Value:   "100000000000000000",
		IsError: "0",
	}}}
	tracker := scanTracker(lister)

	rec := callWithVars(t, VerifyEntitlement(tracker), http.MethodPost, testWallet.Hex(), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status       string                          `json:"status"`
		Verification entitlement.VerificationRecord `json:"verification"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Verification.TotalPayments)
	assert.Equal(t, 30, resp.Verification.MessagesRemaining)
	assert.Equal(t, string(entitlement.StatusVerified), resp.Status)

	// The scan result now backs the trusted balance.
	st, err := tracker.State(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, 30, st.MessagesRemaining)
}

func TestVerifyEntitlementWithUsageEstimate(t *testing.T) {
	lister := &fakeLister{txs: []chain.ExplorerTx{{
		Hash:    "0xcccc000000000000000000000000000000000000000000000000000000000001",
		To:      "0xE867be6751b23Bd389792AC080F604C4608a8637",
		Value:   "100000000000000000",
		IsError: "0",
	}}}
	tracker := scanTracker(lister)

	used := 12
	rec := callWithVars(t, VerifyEntitlement(tracker), http.MethodPost, testWallet.Hex(),
		VerifyEntitlementRequest{MessagesUsed: &used})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Verification entitlement.VerificationRecord `json:"verification"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 12, resp.Verification.MessagesUsed)
	assert.Equal(t, 18, resp.Verification.MessagesRemaining)
}

func TestVerifyEntitlementExplorerDown(t *testing.T) {
	tracker := scanTracker(&fakeLister{err: assert.AnError})

	rec := callWithVars(t, VerifyEntitlement(tracker), http.MethodPost, testWallet.Hex(), nil)

	// Explorer failure degrades to a zeroed record, never a 5xx.
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Verification entitlement.VerificationRecord `json:"verification"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Verification.TotalPayments)
}
