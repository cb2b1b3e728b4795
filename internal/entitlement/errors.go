package entitlement

import (
	"errors"
	"fmt"
)

// Error taxonomy for the payment flow. Handlers map these to HTTP statuses;
// the tracker never retries internally.
var (
	// ErrWalletUnavailable means no signing capability was provided.
	ErrWalletUnavailable = errors.New("wallet not available, connect a wallet first")

	// ErrTransactionFailed means the transfer was rejected or reverted. The
	// balance is left unchanged.
	ErrTransactionFailed = errors.New("payment transaction failed")

	// ErrPaymentInFlight means another payment for the same wallet has not
	// finished yet.
	ErrPaymentInFlight = errors.New("payment already in progress for this wallet")

	// ErrDataSourceUnavailable means the explorer query failed and no cached
	// verification record existed.
	ErrDataSourceUnavailable = errors.New("chain data source unavailable")
)

// NetworkMismatchError is returned when the wallet reports a different chain
// than the one payments are accepted on.
type NetworkMismatchError struct {
	Required int64
	Current  int64
}

func (e *NetworkMismatchError) Error() string {
	return fmt.Sprintf("wrong network: wallet is on chain %d, required chain %d. Switch networks and retry",
		e.Current, e.Required)
}
