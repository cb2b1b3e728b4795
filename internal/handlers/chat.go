package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/somniax/backend/internal/ai"
	"github.com/somniax/backend/internal/database"
	"github.com/somniax/backend/internal/entitlement"
)

// Completer is the slice of the AI client the chat handlers depend on.
type Completer interface {
	Chat(ctx context.Context, messages []ai.Message) (string, error)
}

// AgentLister is the directory read used by the assistant's discovery path.
type AgentLister interface {
	ListAgents(ctx context.Context, limit int) ([]database.Agent, error)
}

// ChatRequest is a paid per-query turn with a registered agent.
type ChatRequest struct {
	Message          string       `json:"message"`
	AgentName        string       `json:"agentName,omitempty"`
	AgentDescription string       `json:"agentDescription,omitempty"`
	Context          []ai.Message `json:"context,omitempty"`
}

// Chat handles a paid chat turn. The caller's wallet (X-Wallet-Address) must
// hold entitlement; the balance is debited only after a completion is
// actually returned, never speculatively.
func Chat(client Completer, tracker *entitlement.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			writeError(w, http.StatusBadRequest, "message is required")
			return
		}

		walletHeader := r.Header.Get("X-Wallet-Address")
		if !common.IsHexAddress(walletHeader) {
			writeError(w, http.StatusBadRequest, "X-Wallet-Address header is required")
			return
		}
		address := common.HexToAddress(walletHeader)

		needsPayment, err := tracker.NeedsPayment(r.Context(), address)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if needsPayment {
			writeError(w, http.StatusPaymentRequired, "no messages remaining, purchase a bundle to continue")
			return
		}

		systemPrompt := ai.AssistantSystemPrompt
		if req.AgentName != "" {
			systemPrompt = ai.AgentSystemPrompt(req.AgentName, req.AgentDescription)
		}

		messages := make([]ai.Message, 0, len(req.Context)+2)
		messages = append(messages, ai.Message{Role: "system", Content: systemPrompt})
		messages = append(messages, req.Context...)
		messages = append(messages, ai.Message{Role: "user", Content: req.Message})

		response, err := client.Chat(r.Context(), messages)
		if err != nil {
			writeError(w, http.StatusBadGateway, "failed to get AI response")
			return
		}

		st, err := tracker.DecrementMessageCount(r.Context(), address)
		if err != nil {
			// The completion already happened; report it with the stale balance.
			writeJSON(w, http.StatusOK, map[string]interface{}{"response": response})
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"response":          response,
			"messagesRemaining": st.MessagesRemaining,
		})
	}
}

// AssistantChatRequest is a free platform-assistant turn.
type AssistantChatRequest struct {
	Message string `json:"message"`
}

// AssistantChat handles the platform assistant. Agent-discovery questions
// get the current directory listing injected into context and echoed back in
// the response.
func AssistantChat(client Completer, directory AgentLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AssistantChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Message == "" {
			writeError(w, http.StatusBadRequest, "message is required")
			return
		}
		if err := ai.ValidateQuery(req.Message); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		systemPrompt := ai.AssistantSystemPrompt
		var agents []database.Agent

		if ai.IsAgentDiscoveryQuery(req.Message) && directory != nil {
			listed, err := directory.ListAgents(r.Context(), 100)
			if err == nil && len(listed) > 0 {
				agents = listed
				var sb strings.Builder
				sb.WriteString("\n\nCurrent registered agents in the marketplace:\n")
				for _, a := range listed {
					fmt.Fprintf(&sb, "- %s (%s): %s - Price: %v STT per query\n",
						a.Name, a.Category, a.Description, a.PricePerQuery)
				}
				systemPrompt += sb.String()
			}
		}

		response, err := client.Chat(r.Context(), []ai.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: req.Message},
		})
		if err != nil {
			writeError(w, http.StatusBadGateway, "failed to get AI response")
			return
		}

		result := map[string]interface{}{"response": response}
		if len(agents) > 0 {
			result["agents"] = agents
		}
		writeJSON(w, http.StatusOK, result)
	}
}
