package entitlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/somniax/backend/internal/chain"
	"github.com/somniax/backend/internal/config"
	"github.com/somniax/backend/internal/wallet"
)

var (
	testRecipient = common.HexToAddress("0xE867be6751b23Bd389792AC080F604C4608a8637")
	testWallet    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testPrice     = big.NewInt(100000000000000000) // 0.1 in wei
)

func testConfig() Config {
	return Config{
		ChainID:           50312,
		Recipient:         testRecipient,
		PriceWei:          new(big.Int).Set(testPrice),
		MessagesPerBundle: 30,
	}
}

// fakeExplorer returns a fixed transaction list or an error.
type fakeExplorer struct {
	txs   []chain.ExplorerTx
	err   error
	calls int
}

func (f *fakeExplorer) ListTransactions(ctx context.Context, address common.Address) ([]chain.ExplorerTx, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.txs, nil
}

// fakeSigner implements wallet.Signer without touching a chain.
type fakeSigner struct {
	address common.Address
	chainID *big.Int
	sendErr error
	sent    int
	hash    common.Hash
}

func (f *fakeSigner) Address() common.Address { return f.address }

func (f *fakeSigner) ChainID(ctx context.Context) (*big.Int, error) {
	return f.chainID, nil
}

func (f *fakeSigner) SendNative(ctx context.Context, to common.Address, valueWei *big.Int) (common.Hash, error) {
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.sent++
	return f.hash, nil
}

var _ wallet.Signer = (*fakeSigner)(nil)

func paymentTx(hash string) chain.ExplorerTx {
	return chain.ExplorerTx{
		Hash:    hash,
		To:      testRecipient.Hex(),
		Value:   testPrice.String(),
		IsError: "0",
	}
}

func newTestSigner() *fakeSigner {
	return &fakeSigner{
		address: testWallet,
		chainID: big.NewInt(50312),
		hash:    common.HexToHash("0xaaaa000000000000000000000000000000000000000000000000000000000001"),
	}
}

func TestFreshWalletNeedsPayment(t *testing.T) {
	tracker := NewTracker(testConfig(), NewMemoryStore(), nil, nil)
	ctx := context.Background()

	st, err := tracker.State(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, 0, st.MessagesRemaining)

	needs, err := tracker.NeedsPayment(ctx, testWallet)
	require.NoError(t, err)
	assert.True(t, needs)
	assert.Equal(t, StatusDisconnected, tracker.Status(testWallet))
}

func TestProcessPaymentCreditsBundle(t *testing.T) {
	tracker := NewTracker(testConfig(), NewMemoryStore(), nil, nil)
	ctx := context.Background()
	signer := newTestSigner()

	hash, err := tracker.ProcessPayment(ctx, signer)
	require.NoError(t, err)
	assert.Equal(t, signer.hash, hash)
	assert.Equal(t, 1, signer.sent)

	st, err := tracker.State(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, 30, st.MessagesRemaining)
	assert.Equal(t, signer.hash.Hex(), st.LastPaymentHash)

	needs, err := tracker.NeedsPayment(ctx, testWallet)
	require.NoError(t, err)
	assert.False(t, needs)

	// The accepted payment is also counted in the verification record.
	rec, found, err := tracker.Verification(ctx, testWallet)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, rec.TotalPayments)
	assert.Equal(t, 30, rec.TotalMessagesPurchased)
}

func TestProcessPaymentStacksBundles(t *testing.T) {
	tracker := NewTracker(testConfig(), NewMemoryStore(), nil, nil)
	ctx := context.Background()
	signer := newTestSigner()

	_, err := tracker.ProcessPayment(ctx, signer)
	require.NoError(t, err)

	signer.hash = common.HexToHash("0xaaaa000000000000000000000000000000000000000000000000000000000002")
	_, err = tracker.ProcessPayment(ctx, signer)
	require.NoError(t, err)

	st, err := tracker.State(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, 60, st.MessagesRemaining)
}

func TestProcessPaymentNoSigner(t *testing.T) {
	tracker := NewTracker(testConfig(), NewMemoryStore(), nil, nil)

	_, err := tracker.ProcessPayment(context.Background(), nil)
	assert.ErrorIs(t, err, ErrWalletUnavailable)
}

func TestProcessPaymentWrongNetwork(t *testing.T) {
	tracker := NewTracker(testConfig(), NewMemoryStore(), nil, nil)
	signer := newTestSigner()
	signer.chainID = big.NewInt(1)

	_, err := tracker.ProcessPayment(context.Background(), signer)

	var mismatch *NetworkMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, int64(50312), mismatch.Required)
	assert.Equal(t, int64(1), mismatch.Current)
	assert.Equal(t, 0, signer.sent)

	// Balance untouched by the failed attempt.
	st, err := tracker.State(context.Background(), testWallet)
	require.NoError(t, err)
	assert.Equal(t, 0, st.MessagesRemaining)
}

func TestProcessPaymentTransactionFailure(t *testing.T) {
	tracker := NewTracker(testConfig(), NewMemoryStore(), nil, nil)
	signer := newTestSigner()
	signer.sendErr = errors.New("insufficient funds")

	_, err := tracker.ProcessPayment(context.Background(), signer)
	assert.ErrorIs(t, err, ErrTransactionFailed)

	st, stateErr := tracker.State(context.Background(), testWallet)
	require.NoError(t, stateErr)
	assert.Equal(t, 0, st.MessagesRemaining)
}

func TestDecrementFloorsAtZero(t *testing.T) {
	tracker := NewTracker(testConfig(), NewMemoryStore(), nil, nil)
	ctx := context.Background()
	signer := newTestSigner()

	_, err := tracker.ProcessPayment(ctx, signer)
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		st, err := tracker.DecrementMessageCount(ctx, testWallet)
		require.NoError(t, err)
		assert.Equal(t, 29-i, st.MessagesRemaining)
	}

	// Extra debits do not go negative.
	st, err := tracker.DecrementMessageCount(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, 0, st.MessagesRemaining)

	needs, err := tracker.NeedsPayment(ctx, testWallet)
	require.NoError(t, err)
	assert.True(t, needs)
}

func TestCreditPaymentDeduplicates(t *testing.T) {
	tracker := NewTracker(testConfig(), NewMemoryStore(), nil, nil)
	ctx := context.Background()
	hash := "0xbbbb000000000000000000000000000000000000000000000000000000000001"

	st, err := tracker.CreditPayment(ctx, testWallet, hash)
	require.NoError(t, err)
	assert.Equal(t, 30, st.MessagesRemaining)

	// Re-posting the same hash changes nothing, even with different casing.
	st, err = tracker.CreditPayment(ctx, testWallet, "0xBBBB000000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, 30, st.MessagesRemaining)

	rec, found, err := tracker.Verification(ctx, testWallet)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, rec.TotalPayments)
}

func TestVerifyScanFiltersTransfers(t *testing.T) {
	explorer := &fakeExplorer{txs: []chain.ExplorerTx{
		paymentTx("0xcccc000000000000000000000000000000000000000000000000000000000001"),
		paymentTx("0xcccc000000000000000000000000000000000000000000000000000000000002"),
		// Wrong amount.
		{Hash: "0xdddd01", To: testRecipient.Hex(), Value: "999", IsError: "0"},
		// Wrong recipient.
		{Hash: "0xdddd02", To: testWallet.Hex(), Value: testPrice.String(), IsError: "0"},
		// Reverted.
		{Hash: "0xdddd03", To: testRecipient.Hex(), Value: testPrice.String(), IsError: "1"},
		// Duplicate of the first.
		paymentTx("0xCCCC000000000000000000000000000000000000000000000000000000000001"),
	}}
	tracker := NewTracker(testConfig(), NewMemoryStore(), explorer, nil)

	rec := tracker.VerifyWalletPayments(context.Background(), testWallet, 10)

	assert.Equal(t, 2, rec.TotalPayments)
	assert.Equal(t, 60, rec.TotalMessagesPurchased)
	assert.Equal(t, 10, rec.MessagesUsed)
	assert.Equal(t, 50, rec.MessagesRemaining)
	assert.NotEmpty(t, rec.LastVerified)
	assert.Equal(t, StatusVerified, tracker.Status(testWallet))
}

func TestVerifyRecipientMatchIsCaseInsensitive(t *testing.T) {
	tx := paymentTx("0xcccc000000000000000000000000000000000000000000000000000000000009")
	tx.To = "0xe867be6751b23bd389792ac080f604c4608a8637"
	explorer := &fakeExplorer{txs: []chain.ExplorerTx{tx}}
	tracker := NewTracker(testConfig(), NewMemoryStore(), explorer, nil)

	rec := tracker.VerifyWalletPayments(context.Background(), testWallet, 0)
	assert.Equal(t, 1, rec.TotalPayments)
}

func TestVerifyFallsBackToCache(t *testing.T) {
	explorer := &fakeExplorer{txs: []chain.ExplorerTx{
		paymentTx("0xcccc000000000000000000000000000000000000000000000000000000000001"),
	}}
	tracker := NewTracker(testConfig(), NewMemoryStore(), explorer, nil)
	ctx := context.Background()

	// First scan succeeds and caches its record.
	rec := tracker.VerifyWalletPayments(ctx, testWallet, 5)
	require.Equal(t, 1, rec.TotalPayments)

	// Explorer goes down; the cached record is served, never an error.
	explorer.err = errors.New("explorer timeout")
	rec = tracker.VerifyWalletPayments(ctx, testWallet, 5)
	assert.Equal(t, 1, rec.TotalPayments)
	assert.Equal(t, 30, rec.TotalMessagesPurchased)
	assert.Equal(t, 25, rec.MessagesRemaining)
}

func TestVerifyZeroedWhenNoCache(t *testing.T) {
	explorer := &fakeExplorer{err: errors.New("explorer timeout")}
	tracker := NewTracker(testConfig(), NewMemoryStore(), explorer, nil)

	rec := tracker.VerifyWalletPayments(context.Background(), testWallet, 7)
	assert.Equal(t, 0, rec.TotalPayments)
	assert.Equal(t, 0, rec.TotalMessagesPurchased)
	assert.Equal(t, 7, rec.MessagesUsed)
	assert.NotEmpty(t, rec.LastVerified)
}

func TestVerifyNilExplorerDegrades(t *testing.T) {
	tracker := NewTracker(testConfig(), NewMemoryStore(), nil, nil)

	rec := tracker.VerifyWalletPayments(context.Background(), testWallet, 0)
	assert.Equal(t, 0, rec.TotalPayments)
}

func TestReconcileOverwritesLocalBalance(t *testing.T) {
	// Two payments on-chain, but only 10 messages remain locally: 50 were
	// consumed somewhere.
	explorer := &fakeExplorer{txs: []chain.ExplorerTx{
		paymentTx("0xcccc000000000000000000000000000000000000000000000000000000000001"),
		paymentTx("0xcccc000000000000000000000000000000000000000000000000000000000002"),
	}}
	store := NewMemoryStore()
	tracker := NewTracker(testConfig(), store, explorer, nil)
	ctx := context.Background()

	require.NoError(t, tracker.saveState(ctx, testWallet, State{MessagesRemaining: 10}))

	rec, err := tracker.Reconcile(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.TotalPayments)
	assert.Equal(t, 60, rec.TotalMessagesPurchased)
	assert.Equal(t, 50, rec.MessagesUsed)
	assert.Equal(t, 10, rec.MessagesRemaining)

	st, err := tracker.State(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, 10, st.MessagesRemaining)
	assert.Equal(t, "0xcccc000000000000000000000000000000000000000000000000000000000002", st.LastPaymentHash)
	assert.Equal(t, StatusVerified, tracker.Status(testWallet))
}

func TestReconcileKeepsLocalBalanceOnScanFailure(t *testing.T) {
	explorer := &fakeExplorer{err: errors.New("explorer down")}
	tracker := NewTracker(testConfig(), NewMemoryStore(), explorer, nil)
	ctx := context.Background()

	require.NoError(t, tracker.saveState(ctx, testWallet, State{MessagesRemaining: 12}))

	_, err := tracker.Reconcile(ctx, testWallet)
	require.NoError(t, err)

	st, err := tracker.State(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, 12, st.MessagesRemaining)
}

func TestReconcileLocalBalanceAboveScanClampsUsage(t *testing.T) {
	// One payment observed but local balance claims 40 messages: usage
	// clamps at zero and the balance resets to what the chain supports.
	explorer := &fakeExplorer{txs: []chain.ExplorerTx{
		paymentTx("0xcccc000000000000000000000000000000000000000000000000000000000001"),
	}}
	tracker := NewTracker(testConfig(), NewMemoryStore(), explorer, nil)
	ctx := context.Background()

	require.NoError(t, tracker.saveState(ctx, testWallet, State{MessagesRemaining: 40}))

	rec, err := tracker.Reconcile(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.MessagesUsed)
	assert.Equal(t, 30, rec.MessagesRemaining)

	st, err := tracker.State(ctx, testWallet)
	require.NoError(t, err)
	assert.Equal(t, 30, st.MessagesRemaining)
}

func TestCorruptVerificationRecordTreatedAsAbsent(t *testing.T) {
	store := NewMemoryStore()
	tracker := NewTracker(testConfig(), store, nil, nil)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, verifiedPaymentsKey(testWallet.Hex()), "{not json"))

	_, found, err := tracker.Verification(ctx, testWallet)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStateKeysAreCaseInsensitive(t *testing.T) {
	tracker := NewTracker(testConfig(), NewMemoryStore(), nil, nil)
	ctx := context.Background()

	_, err := tracker.CreditPayment(ctx, testWallet, "0xbbbb000000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)

	// The same wallet parsed from a lowercase string reads the same state.
	lower := common.HexToAddress("0x1111111111111111111111111111111111111111")
	st, err := tracker.State(ctx, lower)
	require.NoError(t, err)
	assert.Equal(t, 30, st.MessagesRemaining)
}

func TestEventCallbackSequence(t *testing.T) {
	tracker := NewTracker(testConfig(), NewMemoryStore(), nil, nil)
	ctx := context.Background()

	var events []string
	tracker.SetEventCallback(func(e Event) {
		events = append(events, e.Type)
	})

	_, err := tracker.ProcessPayment(ctx, newTestSigner())
	require.NoError(t, err)
	_, err = tracker.DecrementMessageCount(ctx, testWallet)
	require.NoError(t, err)

	assert.Equal(t, []string{
		EventPaymentSubmitted,
		EventPaymentRecorded,
		EventMessageConsumed,
	}, events)
}

func TestConcurrentDecrementsNeverNegative(t *testing.T) {
	tracker := NewTracker(testConfig(), NewMemoryStore(), nil, nil)
	ctx := context.Background()

	_, err := tracker.ProcessPayment(ctx, newTestSigner())
	require.NoError(t, err)

	done := make(chan struct{})
	for i := 0; i < 40; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, _ = tracker.DecrementMessageCount(ctx, testWallet)
		}()
	}
	for i := 0; i < 40; i++ {
		<-done
	}

	st, err := tracker.State(ctx, testWallet)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, st.MessagesRemaining, 0)
}

func TestConfigFromValidation(t *testing.T) {
	chainCfg := testChainConfig()
	payCfg := testPaymentConfig()

	cfg, err := ConfigFrom(chainCfg, payCfg)
	require.NoError(t, err)
	assert.Equal(t, int64(50312), cfg.ChainID)
	assert.Equal(t, testRecipient, cfg.Recipient)
	assert.Equal(t, "100000000000000000", cfg.PriceWei.String())
	assert.Equal(t, 30, cfg.MessagesPerBundle)

	bad := payCfg
	bad.RecipientAddress = "not-an-address"
	_, err = ConfigFrom(chainCfg, bad)
	assert.Error(t, err)

	bad = payCfg
	bad.PricePerBundle = "abc"
	_, err = ConfigFrom(chainCfg, bad)
	assert.Error(t, err)

	bad = payCfg
	bad.MessagesPerBundle = 0
	_, err = ConfigFrom(chainCfg, bad)
	assert.Error(t, err)
}

func TestVerificationRecordAddTransaction(t *testing.T) {
	var rec VerificationRecord
	assert.True(t, rec.AddTransaction("0xAA"))
	assert.False(t, rec.AddTransaction("0xaa"))
	assert.True(t, rec.AddTransaction("0xbb"))
	assert.Len(t, rec.Transactions, 2)
}

func TestLargeTransactionHistory(t *testing.T) {
	var txs []chain.ExplorerTx
	for i := 0; i < 200; i++ {
		txs = append(txs, paymentTx(fmt.Sprintf("0xcccc%060d", i)))
	}
	explorer := &fakeExplorer{txs: txs}
	tracker := NewTracker(testConfig(), NewMemoryStore(), explorer, nil)

	rec := tracker.VerifyWalletPayments(context.Background(), testWallet, 0)
	assert.Equal(t, 200, rec.TotalPayments)
	assert.Equal(t, 6000, rec.TotalMessagesPurchased)
}

func testChainConfig() config.ChainConfig {
	return config.ChainConfig{
		ChainID:     50312,
		Name:        "Somnia Testnet",
		RPCURL:      "https://dream-rpc.somnia.network",
		ExplorerAPI: "https://shannon-explorer.somnia.network/api",
	}
}

func testPaymentConfig() config.PaymentConfig {
	return config.PaymentConfig{
		RecipientAddress:  testRecipient.Hex(),
		PricePerBundle:    "0.1",
		MessagesPerBundle: 30,
		TokenSymbol:       "STT",
		TokenDecimals:     18,
	}
}
