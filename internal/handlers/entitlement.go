package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/somniax/backend/internal/entitlement"
)

func parseWallet(w http.ResponseWriter, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid wallet address")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// EntitlementResponse is the trusted balance view returned to the front-end.
type EntitlementResponse struct {
	Wallet            string `json:"wallet"`
	Status            string `json:"status"`
	MessagesRemaining int    `json:"messages_remaining"`
	NeedsPayment      bool   `json:"needs_payment"`
	LastPaymentHash   string `json:"last_payment_hash,omitempty"`
}

// GetEntitlement returns the stored balance for a wallet. Unknown wallets get
// a zero balance, not a 404.
func GetEntitlement(tracker *entitlement.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, ok := parseWallet(w, mux.Vars(r)["address"])
		if !ok {
			return
		}

		st, err := tracker.State(r.Context(), addr)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to read entitlement state")
			return
		}
		writeJSON(w, http.StatusOK, EntitlementResponse{
			Wallet:            addr.Hex(),
			Status:            string(tracker.Status(addr)),
			MessagesRemaining: st.MessagesRemaining,
			NeedsPayment:      st.NeedsPayment(),
			LastPaymentHash:   st.LastPaymentHash,
		})
	}
}

// VerifyEntitlementRequest selects between a full reconciliation and a plain
// scan with a caller-supplied usage estimate.
type VerifyEntitlementRequest struct {
	MessagesUsed *int `json:"messages_used,omitempty"`
}

// VerifyEntitlement re-derives a wallet's purchase history from the chain.
// Without a messages_used field the stored balance is reconciled against the
// scan; with one, the scan is returned using the caller's usage estimate.
func VerifyEntitlement(tracker *entitlement.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, ok := parseWallet(w, mux.Vars(r)["address"])
		if !ok {
			return
		}

		var req VerifyEntitlementRequest
		if r.Body != nil {
			// An empty body means a full reconciliation.
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		var (
			rec entitlement.VerificationRecord
			err error
		)
		if req.MessagesUsed != nil {
			rec = tracker.VerifyWalletPayments(r.Context(), addr, *req.MessagesUsed)
		} else {
			rec, err = tracker.Reconcile(r.Context(), addr)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to reconcile entitlement state")
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"wallet":       addr.Hex(),
			"status":       string(tracker.Status(addr)),
			"verification": rec,
		})
	}
}

// ConsumeEntitlement debits one message from the wallet's balance. A wallet
// with no balance left gets 402 and an unchanged state.
func ConsumeEntitlement(tracker *entitlement.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, ok := parseWallet(w, mux.Vars(r)["address"])
		if !ok {
			return
		}

		st, err := tracker.State(r.Context(), addr)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to read entitlement state")
			return
		}
		if st.NeedsPayment() {
			writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
				"error":              "payment required",
				"messages_remaining": 0,
			})
			return
		}

		st, err = tracker.DecrementMessageCount(r.Context(), addr)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to debit message")
			return
		}
		writeJSON(w, http.StatusOK, EntitlementResponse{
			Wallet:            addr.Hex(),
			Status:            string(tracker.Status(addr)),
			MessagesRemaining: st.MessagesRemaining,
			NeedsPayment:      st.NeedsPayment(),
			LastPaymentHash:   st.LastPaymentHash,
		})
	}
}

// RecordPaymentRequest carries the hash of a transfer the wallet already
// submitted and the node accepted.
type RecordPaymentRequest struct {
	TxHash string `json:"tx_hash"`
}

// RecordPayment credits a bundle for a payment signed in the user's own
// wallet. The hash is credited at most once; re-posting it returns the
// current state with credited=false.
func RecordPayment(tracker *entitlement.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, ok := parseWallet(w, mux.Vars(r)["address"])
		if !ok {
			return
		}

		var req RecordPaymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		hash := strings.TrimSpace(req.TxHash)
		if len(hash) != 66 || !strings.HasPrefix(hash, "0x") {
			writeError(w, http.StatusBadRequest, "tx_hash must be a 0x-prefixed transaction hash")
			return
		}

		before, err := tracker.State(r.Context(), addr)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to read entitlement state")
			return
		}
		st, err := tracker.CreditPayment(r.Context(), addr, hash)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to record payment")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"wallet":             addr.Hex(),
			"credited":           st.MessagesRemaining > before.MessagesRemaining,
			"messages_remaining": st.MessagesRemaining,
			"last_payment_hash":  st.LastPaymentHash,
			"recorded_at":        time.Now().UTC().Format(time.RFC3339),
		})
	}
}
