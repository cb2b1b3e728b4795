package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	supabase "github.com/supabase-community/supabase-go"
)

// ============================================================================
// SUPABASE CLIENT - Agent Directory Store
// ============================================================================

var (
	// ErrAgentNotFound means no listing matched the id or slug.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrNotCreator means a wallet other than the listing's creator tried a
	// privileged operation.
	ErrNotCreator = errors.New("only the creator wallet can modify this agent")
)

// SupabaseClient wraps the Supabase Go client with the directory operations.
type SupabaseClient struct {
	client *supabase.Client
}

// NewSupabaseClient creates a new Supabase client from the environment.
func NewSupabaseClient() (*SupabaseClient, error) {
	url := os.Getenv("SUPABASE_URL")
	key := os.Getenv("SUPABASE_SERVICE_KEY")

	if url == "" || key == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set")
	}

	client, err := supabase.NewClient(url, key, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Supabase client: %w", err)
	}

	return &SupabaseClient{client: client}, nil
}

// ============================================================================
// DATA MODELS
// ============================================================================

// Agent is one marketplace listing.
type Agent struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Slug          string  `json:"slug"`
	Description   string  `json:"description"`
	Category      string  `json:"category"`
	PricePerQuery float64 `json:"price_per_query"`
	PaymentWallet string  `json:"payment_wallet"`
	CreatorWallet string  `json:"creator_wallet"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"created_at,omitempty"` // String to handle Supabase timestamp format
	UpdatedAt     string  `json:"updated_at,omitempty"`
}

// ============================================================================
// AGENTS OPERATIONS
// ============================================================================

// ListAgents returns all listings.
func (sc *SupabaseClient) ListAgents(ctx context.Context, limit int) ([]Agent, error) {
	var agents []Agent
	_, err := sc.client.From("agents").
		Select("*", "", false).
		Order("created_at", nil).
		Limit(limit, "").
		ExecuteTo(&agents)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return agents, nil
}

// GetAgentBySlug retrieves one listing by its slug. Returns nil, not an
// error, when no listing matches.
func (sc *SupabaseClient) GetAgentBySlug(ctx context.Context, slug string) (*Agent, error) {
	var agents []Agent
	_, err := sc.client.From("agents").
		Select("*", "", false).
		Eq("slug", slug).
		ExecuteTo(&agents)

	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	if len(agents) == 0 {
		return nil, nil
	}
	return &agents[0], nil
}

// GetAgentByID retrieves one listing by id. Returns nil when absent.
func (sc *SupabaseClient) GetAgentByID(ctx context.Context, id string) (*Agent, error) {
	var agents []Agent
	_, err := sc.client.From("agents").
		Select("*", "", false).
		Eq("id", id).
		ExecuteTo(&agents)

	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	if len(agents) == 0 {
		return nil, nil
	}
	return &agents[0], nil
}

// SlugAvailable reports whether no listing already claims the slug.
func (sc *SupabaseClient) SlugAvailable(ctx context.Context, slug string) (bool, error) {
	var agents []Agent
	_, err := sc.client.From("agents").
		Select("slug", "", false).
		Eq("slug", slug).
		ExecuteTo(&agents)
	if err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return len(agents) == 0, nil
}

// CreateAgent inserts a new listing, assigning an id and timestamps.
func (sc *SupabaseClient) CreateAgent(ctx context.Context, agent *Agent) error {
	if agent.ID == "" {
		agent.ID = uuid.NewString()
	}
	now := time.Now().UTC().Format(time.RFC3339)
	agent.CreatedAt = now
	agent.UpdatedAt = now
	if agent.Status == "" {
		agent.Status = "active"
	}

	var result []Agent
	_, err := sc.client.From("agents").
		Insert(agent, false, "", "", "").
		ExecuteTo(&result)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	return nil
}

// UpdateAgent replaces a listing's mutable fields.
func (sc *SupabaseClient) UpdateAgent(ctx context.Context, agent *Agent) error {
	agent.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	var result []Agent
	_, err := sc.client.From("agents").
		Update(agent, "", "").
		Eq("id", agent.ID).
		ExecuteTo(&result)
	if err != nil {
		return fmt.Errorf("failed to update agent: %w", err)
	}
	return nil
}

// ListAgentsByCategory returns listings in one category.
func (sc *SupabaseClient) ListAgentsByCategory(ctx context.Context, category string, limit int) ([]Agent, error) {
	var agents []Agent
	_, err := sc.client.From("agents").
		Select("*", "", false).
		Eq("category", category).
		Order("created_at", nil).
		Limit(limit, "").
		ExecuteTo(&agents)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents by category: %w", err)
	}
	return agents, nil
}

// ListAgentsByCreator returns a wallet's own listings.
func (sc *SupabaseClient) ListAgentsByCreator(ctx context.Context, creatorWallet string, limit int) ([]Agent, error) {
	var agents []Agent
	_, err := sc.client.From("agents").
		Select("*", "", false).
		Eq("creator_wallet", creatorWallet).
		Order("created_at", nil).
		Limit(limit, "").
		ExecuteTo(&agents)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents by creator: %w", err)
	}
	return agents, nil
}

// DeleteAgent removes a listing after verifying the requesting wallet is its
// creator. Wallet comparison is case-insensitive.
func (sc *SupabaseClient) DeleteAgent(ctx context.Context, id, creatorWallet string) error {
	agent, err := sc.GetAgentByID(ctx, id)
	if err != nil {
		return err
	}
	if agent == nil {
		return ErrAgentNotFound
	}
	if !strings.EqualFold(agent.CreatorWallet, creatorWallet) {
		return ErrNotCreator
	}

	_, _, err = sc.client.From("agents").
		Delete("", "").
		Eq("id", id).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to delete agent: %w", err)
	}
	return nil
}

// DeleteAllAgents wipes the directory. Used by the cleanup tool only.
func (sc *SupabaseClient) DeleteAllAgents(ctx context.Context) error {
	_, _, err := sc.client.From("agents").
		Delete("", "").
		Neq("id", uuid.Nil.String()).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to delete agents: %w", err)
	}
	return nil
}
