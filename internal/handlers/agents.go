package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/somniax/backend/internal/ai"
	"github.com/somniax/backend/internal/database"
)

// Directory is the slice of the Supabase store the agent handlers use.
type Directory interface {
	ListAgents(ctx context.Context, limit int) ([]database.Agent, error)
	ListAgentsByCategory(ctx context.Context, category string, limit int) ([]database.Agent, error)
	ListAgentsByCreator(ctx context.Context, creatorWallet string, limit int) ([]database.Agent, error)
	GetAgentBySlug(ctx context.Context, slug string) (*database.Agent, error)
	SlugAvailable(ctx context.Context, slug string) (bool, error)
	CreateAgent(ctx context.Context, agent *database.Agent) error
	DeleteAgent(ctx context.Context, id, creatorWallet string) error
}

// Moderator validates submissions before they are listed.
type Moderator interface {
	ValidateAgent(ctx context.Context, name, description, category string) (ai.ModerationResult, error)
}

// Generator produces suggested listing text.
type Generator interface {
	GenerateAgentInfo(ctx context.Context, req ai.GenerateRequest) (string, error)
}

const directoryListLimit = 100

// ListAgents returns the directory, optionally filtered by ?category= or
// ?creator=.
func ListAgents(directory Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			agents []database.Agent
			err    error
		)
		switch {
		case r.URL.Query().Get("category") != "":
			agents, err = directory.ListAgentsByCategory(r.Context(), r.URL.Query().Get("category"), directoryListLimit)
		case r.URL.Query().Get("creator") != "":
			agents, err = directory.ListAgentsByCreator(r.Context(), r.URL.Query().Get("creator"), directoryListLimit)
		default:
			agents, err = directory.ListAgents(r.Context(), directoryListLimit)
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if agents == nil {
			agents = []database.Agent{}
		}
		writeJSON(w, http.StatusOK, agents)
	}
}

// GetAgent returns a single listing by slug.
func GetAgent(directory Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := mux.Vars(r)["slug"]

		agent, err := directory.GetAgentBySlug(r.Context(), slug)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if agent == nil {
			writeError(w, http.StatusNotFound, "agent not found")
			return
		}
		writeJSON(w, http.StatusOK, agent)
	}
}

// CreateAgentRequest is a new listing submission.
type CreateAgentRequest struct {
	Name          string  `json:"name"`
	Description   string  `json:"description"`
	Category      string  `json:"category"`
	PricePerQuery float64 `json:"price_per_query"`
	PaymentWallet string  `json:"payment_wallet"`
	CreatorWallet string  `json:"creator_wallet"`
}

// CreateAgent registers a new listing. The submission is moderated before it
// is stored; a denial returns 422 with the moderator's reason. Moderator
// outages do not block listings.
func CreateAgent(directory Directory, moderator Moderator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAgentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Name == "" || req.Description == "" || req.Category == "" {
			writeError(w, http.StatusBadRequest, "name, description and category are required")
			return
		}
		if !common.IsHexAddress(req.CreatorWallet) {
			writeError(w, http.StatusBadRequest, "creator_wallet must be a valid address")
			return
		}
		if req.PaymentWallet == "" {
			req.PaymentWallet = req.CreatorWallet
		}

		slug := Slugify(req.Name)
		available, err := directory.SlugAvailable(r.Context(), slug)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !available {
			writeError(w, http.StatusConflict, "an agent with this name already exists")
			return
		}

		if moderator != nil {
			verdict, err := moderator.ValidateAgent(r.Context(), req.Name, req.Description, req.Category)
			if err == nil && !verdict.Approved {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
					"error":  "agent submission rejected",
					"reason": verdict.Reason,
				})
				return
			}
		}

		agent := &database.Agent{
			Name:          req.Name,
			Slug:          slug,
			Description:   req.Description,
			Category:      req.Category,
			PricePerQuery: req.PricePerQuery,
			PaymentWallet: req.PaymentWallet,
			CreatorWallet: req.CreatorWallet,
		}
		if err := directory.CreateAgent(r.Context(), agent); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, agent)
	}
}

// DeleteAgentRequest identifies the listing and the wallet claiming it.
type DeleteAgentRequest struct {
	AgentID       string `json:"agentId"`
	CreatorWallet string `json:"creatorWallet"`
}

// DeleteAgent removes a listing; only its creator wallet may do so.
func DeleteAgent(directory Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DeleteAgentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.AgentID == "" || req.CreatorWallet == "" {
			writeError(w, http.StatusBadRequest, "agent ID and creator wallet are required")
			return
		}

		err := directory.DeleteAgent(r.Context(), req.AgentID, req.CreatorWallet)
		switch {
		case errors.Is(err, database.ErrAgentNotFound):
			writeError(w, http.StatusNotFound, "agent not found")
		case errors.Is(err, database.ErrNotCreator):
			writeError(w, http.StatusForbidden, "unauthorized: you can only delete your own agents")
		case err != nil:
			writeError(w, http.StatusInternalServerError, "failed to delete agent")
		default:
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"message": "agent deleted successfully",
			})
		}
	}
}

// ValidateAgentRequest is a moderation check without creating a listing.
type ValidateAgentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// ValidateAgent exposes moderation as its own endpoint so the submit form
// can pre-check content.
func ValidateAgent(moderator Moderator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ValidateAgentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Name == "" || req.Description == "" {
			writeError(w, http.StatusBadRequest, "name and description are required")
			return
		}

		verdict, err := moderator.ValidateAgent(r.Context(), req.Name, req.Description, req.Category)
		if err != nil {
			writeError(w, http.StatusBadGateway, "failed to validate agent")
			return
		}
		writeJSON(w, http.StatusOK, verdict)
	}
}

// GenerateAgentInfoRequest mirrors the submit form's generate buttons.
type GenerateAgentInfoRequest struct {
	CurrentName        string   `json:"currentName,omitempty"`
	CurrentDescription string   `json:"currentDescription,omitempty"`
	Categories         []string `json:"categories,omitempty"`
	GenerateField      string   `json:"generateField"`
}

// GenerateAgentInfo produces a suggested name or description for a listing.
func GenerateAgentInfo(generator Generator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GenerateAgentInfoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		text, err := generator.GenerateAgentInfo(r.Context(), ai.GenerateRequest{
			CurrentName:        req.CurrentName,
			CurrentDescription: req.CurrentDescription,
			Categories:         req.Categories,
			Field:              req.GenerateField,
		})
		if err != nil {
			writeError(w, http.StatusBadGateway, "failed to generate agent information")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":       true,
			"generatedText": text,
			"field":         req.GenerateField,
		})
	}
}

var slugCleaner = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL slug from a listing name.
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugCleaner.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
