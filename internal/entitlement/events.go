package entitlement

import "time"

// Event is emitted on every entitlement lifecycle change. The API server
// forwards these to connected websocket clients and the audit log.
type Event struct {
	Type      string    `json:"type"` // PAYMENT_SUBMITTED, PAYMENT_RECORDED, MESSAGE_CONSUMED, RECONCILED, VERIFY_FALLBACK
	Wallet    string    `json:"wallet"`
	TxHash    string    `json:"tx_hash,omitempty"`
	Remaining int       `json:"remaining"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventPaymentSubmitted = "PAYMENT_SUBMITTED"
	EventPaymentRecorded  = "PAYMENT_RECORDED"
	EventMessageConsumed  = "MESSAGE_CONSUMED"
	EventReconciled       = "RECONCILED"
	EventVerifyFallback   = "VERIFY_FALLBACK"
)
