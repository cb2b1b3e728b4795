// Package api assembles the HTTP surface: REST/JSON routes for the React
// front-end, the Prometheus endpoint, and the entitlement event stream.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/somniax/backend/internal/ai"
	"github.com/somniax/backend/internal/config"
	"github.com/somniax/backend/internal/database"
	"github.com/somniax/backend/internal/entitlement"
	"github.com/somniax/backend/internal/handlers"
	"github.com/somniax/backend/internal/middleware"
)

// APIServer wires the marketplace services behind one router.
type APIServer struct {
	cfg     *config.Config
	ai      *ai.Client
	db      *database.SupabaseClient
	tracker *entitlement.Tracker
	stream  *EventStream
	limiter *middleware.RateLimiter
	logger  *log.Logger
}

func NewAPIServer(cfg *config.Config, aiClient *ai.Client, db *database.SupabaseClient, tracker *entitlement.Tracker) *APIServer {
	s := &APIServer{
		cfg:     cfg,
		ai:      aiClient,
		db:      db,
		tracker: tracker,
		stream:  NewEventStream(),
		limiter: middleware.NewRateLimiter(middleware.RateLimitConfig{
			MaxCallsPerMinute: cfg.RateLimit.MaxCallsPerMinute,
			BurstSize:         cfg.RateLimit.BurstSize,
		}),
		logger: log.New(log.Writer(), "[API] ", log.LstdFlags),
	}
	// Entitlement lifecycle events feed the WebSocket stream.
	tracker.SetEventCallback(s.stream.Publish)
	return s
}

// Router builds the full route table.
func (s *APIServer) Router() *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.CORS)
	r.Use(s.loggingMiddleware)

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.limiter.Middleware)

	// Chat
	api.HandleFunc("/chat", handlers.Chat(s.ai, s.tracker)).Methods("POST")
	api.HandleFunc("/chat/assistant", handlers.AssistantChat(s.ai, s.db)).Methods("POST")

	// Agent directory
	api.HandleFunc("/agents", handlers.ListAgents(s.db)).Methods("GET")
	api.HandleFunc("/agents", handlers.CreateAgent(s.db, s.ai)).Methods("POST")
	api.HandleFunc("/agents", handlers.DeleteAgent(s.db)).Methods("DELETE")
	api.HandleFunc("/agents/{slug}", handlers.GetAgent(s.db)).Methods("GET")
	api.HandleFunc("/validate-agent", handlers.ValidateAgent(s.ai)).Methods("POST")
	api.HandleFunc("/generate-agent-info", handlers.GenerateAgentInfo(s.ai)).Methods("POST")

	// Entitlements
	api.HandleFunc("/entitlements/{address}", handlers.GetEntitlement(s.tracker)).Methods("GET")
	api.HandleFunc("/entitlements/{address}/verify", handlers.VerifyEntitlement(s.tracker)).Methods("POST")
	api.HandleFunc("/entitlements/{address}/consume", handlers.ConsumeEntitlement(s.tracker)).Methods("POST")
	api.HandleFunc("/entitlements/{address}/payments", handlers.RecordPayment(s.tracker)).Methods("POST")

	// Real-time entitlement updates
	r.HandleFunc("/ws/entitlements", s.stream.HandleWebSocket)

	return r
}

// Start blocks serving HTTP until the context is cancelled, then shuts down
// gracefully.
func (s *APIServer) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:         ":" + s.cfg.Server.Port,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		s.logger.Println("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	supabaseStatus := "connected"
	if _, err := s.db.ListAgents(ctx, 1); err != nil {
		supabaseStatus = "error"
	}

	json.NewEncoder(w).Encode(map[string]string{
		"status":   "healthy",
		"service":  "somniax-api",
		"env":      s.cfg.Server.Env,
		"supabase": supabaseStatus,
	})
}

func (s *APIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
