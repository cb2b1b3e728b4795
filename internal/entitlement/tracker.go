// Package entitlement gates chat usage behind a paid-message balance. It
// debits the balance on each accepted chat turn, credits it optimistically
// after a payment is submitted, and reconciles against transfers actually
// observed on-chain via the block explorer.
package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/somniax/backend/internal/chain"
	"github.com/somniax/backend/internal/config"
	"github.com/somniax/backend/internal/wallet"
)

// TxLister is the slice of the explorer client the tracker depends on.
type TxLister interface {
	ListTransactions(ctx context.Context, address common.Address) ([]chain.ExplorerTx, error)
}

// Config is the fixed payment parameters the tracker enforces. PriceWei is
// compared against explorer values exactly — a transfer of any other amount
// is not a payment.
type Config struct {
	ChainID           int64
	Recipient         common.Address
	PriceWei          *big.Int
	MessagesPerBundle int
}

// ConfigFrom builds a tracker Config from the service configuration,
// converting the decimal bundle price to wei.
func ConfigFrom(chainCfg config.ChainConfig, payCfg config.PaymentConfig) (Config, error) {
	if !common.IsHexAddress(payCfg.RecipientAddress) {
		return Config{}, fmt.Errorf("invalid recipient address %q", payCfg.RecipientAddress)
	}
	priceWei, err := chain.ParseNative(payCfg.PricePerBundle)
	if err != nil {
		return Config{}, fmt.Errorf("invalid bundle price: %w", err)
	}
	if payCfg.MessagesPerBundle <= 0 {
		return Config{}, fmt.Errorf("messages per bundle must be positive, got %d", payCfg.MessagesPerBundle)
	}
	return Config{
		ChainID:           chainCfg.ChainID,
		Recipient:         common.HexToAddress(payCfg.RecipientAddress),
		PriceWei:          priceWei,
		MessagesPerBundle: payCfg.MessagesPerBundle,
	}, nil
}

// Tracker owns per-wallet entitlement state. All persistence goes through the
// injected Store; the explorer is consulted only during verification passes.
type Tracker struct {
	cfg      Config
	store    Store
	explorer TxLister
	metrics  *Metrics
	logger   *log.Logger

	mu       sync.Mutex
	inflight map[common.Address]bool
	statuses map[common.Address]WalletStatus

	onEvent func(Event)
}

// NewTracker creates a tracker. explorer may be nil, in which case every
// verification pass degrades to the cached record. metrics may be nil.
func NewTracker(cfg Config, store Store, explorer TxLister, metrics *Metrics) *Tracker {
	return &Tracker{
		cfg:      cfg,
		store:    store,
		explorer: explorer,
		metrics:  metrics,
		logger:   log.New(log.Writer(), "[Entitlements] ", log.LstdFlags),
		inflight: make(map[common.Address]bool),
		statuses: make(map[common.Address]WalletStatus),
	}
}

// SetEventCallback registers an optional callback for lifecycle events.
func (t *Tracker) SetEventCallback(fn func(Event)) {
	t.onEvent = fn
}

// Status returns the wallet's position in the verification state machine.
func (t *Tracker) Status(address common.Address) WalletStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.statuses[address]; ok {
		return s
	}
	return StatusDisconnected
}

// Connect marks a wallet as connected but not yet verified.
func (t *Tracker) Connect(address common.Address) {
	t.setStatus(address, StatusUnverified)
}

// State reads the trusted balance for a wallet. A wallet never seen before
// has a zero balance, not an error.
func (t *Tracker) State(ctx context.Context, address common.Address) (State, error) {
	addr := address.Hex()

	var st State
	raw, found, err := t.store.Get(ctx, messageCountKey(addr))
	if err != nil {
		return State{}, fmt.Errorf("read balance: %w", err)
	}
	if found {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 0 {
			n = 0
		}
		st.MessagesRemaining = n
	}

	if hash, ok, err := t.store.Get(ctx, lastPaymentKey(addr)); err == nil && ok {
		st.LastPaymentHash = hash
	}
	return st, nil
}

// NeedsPayment reports whether the wallet has no paid messages left.
func (t *Tracker) NeedsPayment(ctx context.Context, address common.Address) (bool, error) {
	st, err := t.State(ctx, address)
	if err != nil {
		return true, err
	}
	return st.NeedsPayment(), nil
}

func (t *Tracker) saveState(ctx context.Context, address common.Address, st State) error {
	addr := address.Hex()
	if err := t.store.Set(ctx, messageCountKey(addr), strconv.Itoa(st.MessagesRemaining)); err != nil {
		return fmt.Errorf("persist balance: %w", err)
	}
	if st.LastPaymentHash != "" {
		if err := t.store.Set(ctx, lastPaymentKey(addr), st.LastPaymentHash); err != nil {
			return fmt.Errorf("persist payment hash: %w", err)
		}
	}
	if t.metrics != nil {
		t.metrics.MessagesRemaining.WithLabelValues(strings.ToLower(addr)).Set(float64(st.MessagesRemaining))
	}
	return nil
}

// Verification reads the cached verification record for a wallet.
func (t *Tracker) Verification(ctx context.Context, address common.Address) (VerificationRecord, bool, error) {
	raw, found, err := t.store.Get(ctx, verifiedPaymentsKey(address.Hex()))
	if err != nil {
		return VerificationRecord{}, false, fmt.Errorf("read verification record: %w", err)
	}
	if !found {
		return VerificationRecord{}, false, nil
	}
	var rec VerificationRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		// A corrupt cache entry is treated as absent.
		t.logger.Printf("discarding corrupt verification record for %s: %v", address.Hex(), err)
		return VerificationRecord{}, false, nil
	}
	return rec, true, nil
}

func (t *Tracker) saveVerification(ctx context.Context, address common.Address, rec VerificationRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := t.store.Set(ctx, verifiedPaymentsKey(address.Hex()), string(data)); err != nil {
		return fmt.Errorf("persist verification record: %w", err)
	}
	if t.metrics != nil {
		t.metrics.PaymentsObserved.WithLabelValues(strings.ToLower(address.Hex())).Set(float64(rec.TotalPayments))
	}
	return nil
}

// ProcessPayment submits one bundle payment through the wallet's signing
// capability and optimistically credits the balance once the transaction is
// accepted. At most one payment per wallet is processed at a time; a second
// concurrent call fails with ErrPaymentInFlight instead of double-charging.
func (t *Tracker) ProcessPayment(ctx context.Context, signer wallet.Signer) (common.Hash, error) {
	if signer == nil {
		if t.metrics != nil {
			t.metrics.PaymentsTotal.WithLabelValues("no_wallet").Inc()
		}
		return common.Hash{}, ErrWalletUnavailable
	}
	address := signer.Address()

	t.mu.Lock()
	if t.inflight[address] {
		t.mu.Unlock()
		return common.Hash{}, ErrPaymentInFlight
	}
	t.inflight[address] = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.inflight, address)
		t.mu.Unlock()
	}()

	chainID, err := signer.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrWalletUnavailable, err)
	}
	if chainID.Int64() != t.cfg.ChainID {
		if t.metrics != nil {
			t.metrics.PaymentsTotal.WithLabelValues("wrong_network").Inc()
		}
		return common.Hash{}, &NetworkMismatchError{Required: t.cfg.ChainID, Current: chainID.Int64()}
	}

	st, err := t.State(ctx, address)
	if err != nil {
		return common.Hash{}, err
	}

	t.logger.Printf("submitting payment: from=%s to=%s value=%s wei",
		address.Hex(), t.cfg.Recipient.Hex(), t.cfg.PriceWei.String())

	hash, err := signer.SendNative(ctx, t.cfg.Recipient, new(big.Int).Set(t.cfg.PriceWei))
	if err != nil {
		if t.metrics != nil {
			t.metrics.PaymentsTotal.WithLabelValues("rejected").Inc()
		}
		return common.Hash{}, fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}

	t.emit(Event{Type: EventPaymentSubmitted, Wallet: address.Hex(), TxHash: hash.Hex(), Timestamp: time.Now()})

	// Optimistic credit: the bundle is granted as soon as the node accepts
	// the transaction. The next reconciliation pass corrects any drift.
	st.MessagesRemaining += t.cfg.MessagesPerBundle
	st.LastPaymentHash = hash.Hex()
	if err := t.saveState(ctx, address, st); err != nil {
		return hash, err
	}

	if err := t.RecordPayment(ctx, address, hash.Hex()); err != nil {
		t.logger.Printf("record payment %s: %v", hash.Hex(), err)
	}

	if t.metrics != nil {
		t.metrics.PaymentsTotal.WithLabelValues("accepted").Inc()
	}
	t.logger.Printf("payment accepted: wallet=%s tx=%s remaining=%d",
		address.Hex(), hash.Hex(), st.MessagesRemaining)
	return hash, nil
}

// RecordPayment counts an accepted transaction in the verification record.
// Duplicate hashes are ignored so re-recording an already-counted payment
// does not inflate the totals.
func (t *Tracker) RecordPayment(ctx context.Context, address common.Address, txHash string) error {
	rec, _, err := t.Verification(ctx, address)
	if err != nil {
		return err
	}

	if !rec.AddTransaction(txHash) {
		return nil
	}
	rec.TotalPayments++
	rec.TotalMessagesPurchased = rec.TotalPayments * t.cfg.MessagesPerBundle
	rec.MessagesRemaining = max(0, rec.TotalMessagesPurchased-rec.MessagesUsed)
	rec.Touch(time.Now())

	if err := t.saveVerification(ctx, address, rec); err != nil {
		return err
	}
	t.emit(Event{Type: EventPaymentRecorded, Wallet: address.Hex(), TxHash: txHash,
		Remaining: rec.MessagesRemaining, Timestamp: time.Now()})
	return nil
}

// CreditPayment applies the optimistic bundle credit for a payment submitted
// outside the tracker — the browser-wallet path, where the front-end signs
// the transfer and posts the accepted hash back. The hash is counted at most
// once: re-posting an already-credited hash changes nothing.
func (t *Tracker) CreditPayment(ctx context.Context, address common.Address, txHash string) (State, error) {
	st, err := t.State(ctx, address)
	if err != nil {
		return State{}, err
	}
	rec, _, err := t.Verification(ctx, address)
	if err != nil {
		return State{}, err
	}

	if !rec.AddTransaction(txHash) {
		return st, nil
	}
	rec.TotalPayments++
	rec.TotalMessagesPurchased = rec.TotalPayments * t.cfg.MessagesPerBundle
	rec.MessagesRemaining = max(0, rec.TotalMessagesPurchased-rec.MessagesUsed)
	rec.Touch(time.Now())
	if err := t.saveVerification(ctx, address, rec); err != nil {
		return State{}, err
	}

	st.MessagesRemaining += t.cfg.MessagesPerBundle
	st.LastPaymentHash = txHash
	if err := t.saveState(ctx, address, st); err != nil {
		return State{}, err
	}

	if t.metrics != nil {
		t.metrics.PaymentsTotal.WithLabelValues("accepted").Inc()
	}
	t.emit(Event{Type: EventPaymentRecorded, Wallet: address.Hex(), TxHash: txHash,
		Remaining: st.MessagesRemaining, Timestamp: time.Now()})
	return st, nil
}

// DecrementMessageCount debits one chat turn. Called exactly once per
// accepted completion; the balance floors at zero.
func (t *Tracker) DecrementMessageCount(ctx context.Context, address common.Address) (State, error) {
	st, err := t.State(ctx, address)
	if err != nil {
		return State{}, err
	}
	if st.MessagesRemaining > 0 {
		st.MessagesRemaining--
	}
	if err := t.saveState(ctx, address, st); err != nil {
		return State{}, err
	}

	// Keep the scan-derived view's usage counter in step.
	if rec, found, err := t.Verification(ctx, address); err == nil && found {
		rec.MessagesUsed++
		rec.MessagesRemaining = max(0, rec.TotalMessagesPurchased-rec.MessagesUsed)
		if err := t.saveVerification(ctx, address, rec); err != nil {
			t.logger.Printf("update usage for %s: %v", address.Hex(), err)
		}
	}

	if t.metrics != nil {
		t.metrics.MessagesConsumed.Inc()
	}
	t.emit(Event{Type: EventMessageConsumed, Wallet: address.Hex(),
		Remaining: st.MessagesRemaining, Timestamp: time.Now()})
	return st, nil
}

// VerifyWalletPayments re-derives the verification record from a full scan of
// the wallet's on-chain transfers to the service address. messagesUsed is the
// caller's usage estimate. On explorer failure the cached record is returned,
// or a zeroed record when no cache exists — never an error.
func (t *Tracker) VerifyWalletPayments(ctx context.Context, address common.Address, messagesUsed int) VerificationRecord {
	rec, _ := t.scan(ctx, address, messagesUsed)
	return rec
}

// scan performs the explorer query and derivation. ok is false when the scan
// could not run and the returned record came from cache or is zeroed.
func (t *Tracker) scan(ctx context.Context, address common.Address, messagesUsed int) (VerificationRecord, bool) {
	prev := t.Status(address)
	t.setStatus(address, StatusVerifying)

	txs, err := t.listTransactions(ctx, address)
	if err != nil {
		t.setStatus(address, prev)
		t.logger.Printf("%v: %v; falling back to cached record for %s",
			ErrDataSourceUnavailable, err, address.Hex())

		if cached, found, cacheErr := t.Verification(ctx, address); cacheErr == nil && found {
			if t.metrics != nil {
				t.metrics.ReconciliationsTotal.WithLabelValues("cache_fallback").Inc()
			}
			t.emit(Event{Type: EventVerifyFallback, Wallet: address.Hex(),
				Remaining: cached.MessagesRemaining, Timestamp: time.Now()})
			return cached, false
		}

		if t.metrics != nil {
			t.metrics.ReconciliationsTotal.WithLabelValues("zeroed").Inc()
		}
		zero := VerificationRecord{MessagesUsed: messagesUsed, Transactions: []string{}}
		zero.Touch(time.Now())
		return zero, false
	}

	wantValue := t.cfg.PriceWei.String()
	rec := VerificationRecord{MessagesUsed: messagesUsed, Transactions: []string{}}
	for _, tx := range txs {
		if !strings.EqualFold(tx.To, t.cfg.Recipient.Hex()) {
			continue
		}
		if tx.Value != wantValue {
			continue
		}
		if !tx.Succeeded() {
			continue
		}
		if rec.AddTransaction(tx.Hash) {
			rec.TotalPayments++
		}
	}
	rec.TotalMessagesPurchased = rec.TotalPayments * t.cfg.MessagesPerBundle
	rec.MessagesRemaining = max(0, rec.TotalMessagesPurchased-rec.MessagesUsed)
	rec.Touch(time.Now())

	if err := t.saveVerification(ctx, address, rec); err != nil {
		t.logger.Printf("cache verification for %s: %v", address.Hex(), err)
	}
	if t.metrics != nil {
		t.metrics.ReconciliationsTotal.WithLabelValues("scanned").Inc()
	}
	t.setStatus(address, StatusVerified)
	return rec, true
}

// Reconcile is the wallet-connection pass: it scans the chain, derives how
// many messages were actually used from the locally stored balance, and
// overwrites the local balance with the scan result. When the scan cannot
// run, the local balance is left untouched.
func (t *Tracker) Reconcile(ctx context.Context, address common.Address) (VerificationRecord, error) {
	t.Connect(address)

	st, err := t.State(ctx, address)
	if err != nil {
		return VerificationRecord{}, err
	}

	rec, ok := t.scan(ctx, address, 0)
	if !ok {
		return rec, nil
	}

	// The local balance is the only usage signal we have: everything bought
	// on-chain that is not still remaining locally was consumed.
	used := max(0, rec.TotalMessagesPurchased-st.MessagesRemaining)
	rec.MessagesUsed = used
	rec.MessagesRemaining = max(0, rec.TotalMessagesPurchased-used)
	if err := t.saveVerification(ctx, address, rec); err != nil {
		return rec, err
	}

	st.MessagesRemaining = rec.MessagesRemaining
	if n := len(rec.Transactions); n > 0 {
		st.LastPaymentHash = rec.Transactions[n-1]
	}
	if err := t.saveState(ctx, address, st); err != nil {
		return rec, err
	}

	t.emit(Event{Type: EventReconciled, Wallet: address.Hex(),
		Remaining: rec.MessagesRemaining, Timestamp: time.Now()})
	t.logger.Printf("reconciled %s: payments=%d purchased=%d used=%d remaining=%d",
		address.Hex(), rec.TotalPayments, rec.TotalMessagesPurchased, rec.MessagesUsed, rec.MessagesRemaining)
	return rec, nil
}

func (t *Tracker) listTransactions(ctx context.Context, address common.Address) ([]chain.ExplorerTx, error) {
	if t.explorer == nil {
		return nil, fmt.Errorf("no explorer configured")
	}
	return t.explorer.ListTransactions(ctx, address)
}

func (t *Tracker) setStatus(address common.Address, s WalletStatus) {
	t.mu.Lock()
	t.statuses[address] = s
	t.mu.Unlock()
}

func (t *Tracker) emit(event Event) {
	if t.onEvent != nil {
		t.onEvent(event)
	}
}
