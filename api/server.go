// Package api exposes the gateway's HTTP surface: a gorilla/mux router
// implementing the universal-swap and swap-analysis endpoint families,
// wrapping every response in a uniform success/error envelope.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/fluxswap/gateway/approval"
	"github.com/fluxswap/gateway/cache"
	"github.com/fluxswap/gateway/config"
	"github.com/fluxswap/gateway/evmchain"
	"github.com/fluxswap/gateway/execution"
	"github.com/fluxswap/gateway/health"
	"github.com/fluxswap/gateway/orchestrator"
	"github.com/fluxswap/gateway/precheck"
	"github.com/fluxswap/gateway/ratelimit"
	"github.com/fluxswap/gateway/registry"
	"github.com/fluxswap/gateway/routing"
)

// Server holds every collaborator a handler might need and lazily builds
// the per-chain EVM resources (client, approval workflow, pre-check
// checker, execution coordinator) that can only be constructed once an
// RPC URL is known for a given chain.
type Server struct {
	cfg        *config.Config
	reg        *registry.Registry
	classifier *routing.Classifier
	orch       *orchestrator.Orchestrator
	monitor    *health.Monitor
	quoteCache *cache.SupportedQuoteCache
	limiter    *ratelimit.Limiter
	vault      *config.APIKeyVault

	mu           sync.Mutex
	clients      map[uint64]*evmchain.Client
	workflows    map[uint64]*approval.Workflow
	checkers     map[uint64]*precheck.Checker
	coordinators map[uint64]*execution.Coordinator
}

// NewServer constructs a Server bound to its collaborators.
func NewServer(
	cfg *config.Config,
	reg *registry.Registry,
	classifier *routing.Classifier,
	orch *orchestrator.Orchestrator,
	monitor *health.Monitor,
	quoteCache *cache.SupportedQuoteCache,
	limiter *ratelimit.Limiter,
	vault *config.APIKeyVault,
) *Server {
	return &Server{
		cfg:          cfg,
		reg:          reg,
		classifier:   classifier,
		orch:         orch,
		monitor:      monitor,
		quoteCache:   quoteCache,
		limiter:      limiter,
		vault:        vault,
		clients:      make(map[uint64]*evmchain.Client),
		workflows:    make(map[uint64]*approval.Workflow),
		checkers:     make(map[uint64]*precheck.Checker),
		coordinators: make(map[uint64]*execution.Coordinator),
	}
}

// Router builds the mux.Router serving every endpoint, wrapped in the
// rate-limit and CORS middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/universal-swap/quote", s.handleQuote).Methods(http.MethodPost)
	r.HandleFunc("/universal-swap/pre-check", s.handlePreCheck).Methods(http.MethodPost)
	r.HandleFunc("/universal-swap/execute", s.handleExecute).Methods(http.MethodPost)
	r.HandleFunc("/universal-swap/status", s.handleStatus).Methods(http.MethodPost)
	r.HandleFunc("/universal-swap/approval/status", s.handleApprovalStatus).Methods(http.MethodPost)
	r.HandleFunc("/universal-swap/approval/execute", s.handleApprovalExecute).Methods(http.MethodPost)
	r.HandleFunc("/universal-swap/supported-chains", s.handleSupportedChains).Methods(http.MethodGet)
	r.HandleFunc("/universal-swap/aggregators", s.handleAggregators).Methods(http.MethodGet)
	r.HandleFunc("/universal-swap/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/swap-analysis/analyze", s.handleAnalyze).Methods(http.MethodGet)
	r.HandleFunc("/swap-analysis/ecosystems", s.handleEcosystems).Methods(http.MethodGet)

	r.Use(s.corsMiddleware)
	r.Use(s.rateLimitMiddleware)
	return r
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		allowed, retryAfter := s.limiter.Allow(ip)
		if !allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
			writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"message":    "rate limit exceeded",
				"retryAfter": retryAfter.Seconds(),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

// chainClient lazily dials and caches an evmchain.Client for chainID,
// using the RPC URL resolved at config load time.
func (s *Server) chainClient(ctx context.Context, chainID uint64) (*evmchain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[chainID]; ok {
		return c, nil
	}
	rpcURL, ok := s.cfg.ChainRPCURLs[chainID]
	if !ok || rpcURL == "" {
		return nil, fmt.Errorf("api: no RPC URL configured for chain %d", chainID)
	}
	c, err := evmchain.Dial(ctx, chainID, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("api: dialing chain %d: %w", chainID, err)
	}
	s.clients[chainID] = c
	log.Info().Uint64("chainId", chainID).Msg("api: evm client dialed")
	return c, nil
}

func (s *Server) chainWorkflow(ctx context.Context, chainID uint64) (*approval.Workflow, error) {
	s.mu.Lock()
	if w, ok := s.workflows[chainID]; ok {
		s.mu.Unlock()
		return w, nil
	}
	s.mu.Unlock()

	client, err := s.chainClient(ctx, chainID)
	if err != nil {
		return nil, err
	}
	w := approval.NewWorkflow(client, s.cfg.SpenderTTL)

	s.mu.Lock()
	s.workflows[chainID] = w
	s.mu.Unlock()
	return w, nil
}

func (s *Server) chainChecker(ctx context.Context, chainID uint64) (*precheck.Checker, error) {
	s.mu.Lock()
	if c, ok := s.checkers[chainID]; ok {
		s.mu.Unlock()
		return c, nil
	}
	s.mu.Unlock()

	client, err := s.chainClient(ctx, chainID)
	if err != nil {
		return nil, err
	}
	w, err := s.chainWorkflow(ctx, chainID)
	if err != nil {
		return nil, err
	}
	checker := precheck.NewChecker(s.classifier, s.orch, w, client, s.monitor, s.quoteCache)

	s.mu.Lock()
	s.checkers[chainID] = checker
	s.mu.Unlock()
	return checker, nil
}

func (s *Server) chainCoordinator(ctx context.Context, chainID uint64) (*execution.Coordinator, error) {
	s.mu.Lock()
	if c, ok := s.coordinators[chainID]; ok {
		s.mu.Unlock()
		return c, nil
	}
	s.mu.Unlock()

	client, err := s.chainClient(ctx, chainID)
	if err != nil {
		return nil, err
	}
	w, err := s.chainWorkflow(ctx, chainID)
	if err != nil {
		return nil, err
	}
	checker, err := s.chainChecker(ctx, chainID)
	if err != nil {
		return nil, err
	}
	coord := execution.NewCoordinator(s.orch, w, checker, client)

	s.mu.Lock()
	s.coordinators[chainID] = coord
	s.mu.Unlock()
	return coord, nil
}
