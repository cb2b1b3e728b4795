package entitlement

import (
	"strings"
	"time"
)

// State is the balance the UI trusts for gating: how many paid chat turns a
// wallet has left. MessagesRemaining never goes below zero.
type State struct {
	MessagesRemaining int    `json:"messages_remaining"`
	LastPaymentHash   string `json:"last_payment_hash,omitempty"`
}

// NeedsPayment reports whether the wallet has no unconsumed turns left.
func (s State) NeedsPayment() bool { return s.MessagesRemaining <= 0 }

// VerificationRecord is the parallel, scan-derived view of a wallet's
// entitlement: payments observed on-chain, messages purchased and used, and
// the transaction hashes already counted.
type VerificationRecord struct {
	TotalPayments          int      `json:"total_payments"`
	TotalMessagesPurchased int      `json:"total_messages_purchased"`
	MessagesUsed           int      `json:"messages_used"`
	MessagesRemaining      int      `json:"messages_remaining"`
	LastVerified           string   `json:"last_verified"`
	Transactions           []string `json:"transactions"`
}

// AddTransaction appends a hash if not already counted. Returns false when
// the hash was a duplicate.
func (r *VerificationRecord) AddTransaction(hash string) bool {
	for _, h := range r.Transactions {
		if strings.EqualFold(h, hash) {
			return false
		}
	}
	r.Transactions = append(r.Transactions, hash)
	return true
}

// Touch stamps the record with the verification time.
func (r *VerificationRecord) Touch(now time.Time) {
	r.LastVerified = now.UTC().Format(time.RFC3339)
}

// WalletStatus is the per-wallet verification state machine. Failures leave
// the previous status intact; there is no terminal error state.
type WalletStatus string

const (
	StatusDisconnected WalletStatus = "DISCONNECTED"
	StatusUnverified   WalletStatus = "UNVERIFIED"
	StatusVerifying    WalletStatus = "VERIFYING"
	StatusVerified     WalletStatus = "VERIFIED"
)
