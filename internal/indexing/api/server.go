// Package api exposes query results, invalidation and health over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/nftscan/internal/core/domain"
	"github.com/vietddude/nftscan/internal/indexing/health"
	"github.com/vietddude/nftscan/internal/indexing/query"
)

// seenTTL is how long a published transaction hash suppresses re-publishing.
const seenTTL = 10 * time.Minute

// Querier answers cached queries.
type Querier interface {
	OwnedTokens(ctx context.Context, owner string) ([]domain.ReconciledEntity, error)
	Listings(ctx context.Context) ([]domain.ReconciledEntity, error)
	Invalidate(inv domain.Invalidation, source string) int
}

// Publisher fans invalidations out to other replicas.
type Publisher interface {
	MarkSeen(ctx context.Context, txHash string, ttl time.Duration) (bool, error)
	Publish(ctx context.Context, inv domain.Invalidation) error
}

// Server provides the HTTP API.
type Server struct {
	svc       Querier
	monitor   *health.Monitor
	publisher Publisher
	server    *http.Server
}

// NewServer creates a new API server. monitor and publisher may be nil.
func NewServer(svc Querier, monitor *health.Monitor, publisher Publisher, port int) *Server {
	s := &Server{
		svc:       svc,
		monitor:   monitor,
		publisher: publisher,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/owners/{address}/tokens", s.handleOwned)
	mux.HandleFunc("GET /v1/listings", s.handleListings)
	mux.HandleFunc("POST /v1/invalidate", s.handleInvalidate)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	slog.Info("API server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type tokenJSON struct {
	TokenID string `json:"token_id"`
	Owner   string `json:"owner"`
}

type ownedResponse struct {
	Owner  string      `json:"owner"`
	Count  int         `json:"count"`
	Tokens []tokenJSON `json:"tokens"`
}

type listingJSON struct {
	TokenID  string `json:"token_id"`
	Seller   string `json:"seller"`
	Price    string `json:"price"`
	PriceETH string `json:"price_eth"`
}

type listingsResponse struct {
	Count    int           `json:"count"`
	Listings []listingJSON `json:"listings"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

func (s *Server) handleOwned(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("address")
	entities, err := s.svc.OwnedTokens(r.Context(), owner)
	if err != nil {
		writeQueryError(w, err)
		return
	}

	resp := ownedResponse{
		Owner:  domain.NormalizeAddress(owner),
		Count:  len(entities),
		Tokens: make([]tokenJSON, 0, len(entities)),
	}
	for _, e := range entities {
		resp.Tokens = append(resp.Tokens, tokenJSON{TokenID: e.ID.String(), Owner: e.Owner})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	entities, err := s.svc.Listings(r.Context())
	if err != nil {
		writeQueryError(w, err)
		return
	}

	resp := listingsResponse{
		Count:    len(entities),
		Listings: make([]listingJSON, 0, len(entities)),
	}
	for _, e := range entities {
		l := listingJSON{TokenID: e.ID.String(), Seller: e.Seller, Price: "0", PriceETH: FormatEther(nil)}
		if e.Price != nil {
			l.Price = e.Price.String()
			l.PriceETH = FormatEther(e.Price)
		}
		resp.Listings = append(resp.Listings, l)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	var inv domain.Invalidation
	if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid body: " + err.Error()})
		return
	}
	switch inv.Kind {
	case "", domain.QueryOwned, domain.QueryListings:
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("unknown kind %q", inv.Kind)})
		return
	}
	if inv.Address != "" && !common.IsHexAddress(inv.Address) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid address %q", inv.Address)})
		return
	}
	inv.Address = domain.NormalizeAddress(inv.Address)

	n := s.svc.Invalidate(inv, "http")
	published := false
	if s.publisher != nil {
		var err error
		published, err = s.publish(r.Context(), inv)
		if err != nil {
			slog.Warn("Failed to publish invalidation", "address", inv.Address, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"invalidated": n,
		"published":   published,
	})
}

func (s *Server) publish(ctx context.Context, inv domain.Invalidation) (bool, error) {
	first, err := s.publisher.MarkSeen(ctx, inv.TxHash, seenTTL)
	if err != nil {
		return false, err
	}
	if !first {
		return false, nil
	}
	if err := s.publisher.Publish(ctx, inv); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := health.StatusHealthy
	if s.monitor != nil {
		status = s.monitor.CheckHealth(r.Context()).SystemStatus
	}

	code := http.StatusOK
	if status == health.StatusCritical {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": string(status)})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		writeJSON(w, http.StatusOK, health.Report{SystemStatus: health.StatusHealthy})
		return
	}
	writeJSON(w, http.StatusOK, s.monitor.CheckHealth(r.Context()))
}

// writeQueryError maps a failed query onto a status. A failed run is
// "temporarily unknown", never an empty result.
func writeQueryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, query.ErrInvalidAddress):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, query.ErrNotConfigured):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		slog.Warn("Query failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Retryable: true})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var weiPerEther = new(big.Float).SetInt(big.NewInt(1_000_000_000_000_000_000))

// FormatEther renders a wei amount in ether with four decimals.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0.0000"
	}
	f := new(big.Float).SetPrec(256).SetInt(wei)
	return f.Quo(f, weiPerEther).Text('f', 4)
}
