// Package httpapi exposes the swap engine over a REST interface: submit
// an outbound swap request, and inspect the state of any swap this node
// is party to. Mirrors the Start/Stop/mux-and-corsMiddleware shape of
// the node's original JSON-RPC server, adapted to a plain REST surface
// since the protocol here is request/response over libp2p, not JSON-RPC
// over the wire.
package httpapi

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/klingon-exchange/cnd/internal/config"
	"github.com/klingon-exchange/cnd/internal/comit"
	"github.com/klingon-exchange/cnd/internal/ledger"
	"github.com/klingon-exchange/cnd/internal/rfc003"
	"github.com/klingon-exchange/cnd/internal/seed"
	"github.com/klingon-exchange/cnd/internal/spawner"
	"github.com/klingon-exchange/cnd/internal/swapstate"
	"github.com/klingon-exchange/cnd/internal/swapstore"
	"github.com/klingon-exchange/cnd/pkg/logging"
)

// Server is the REST front end over a single node's swap engine.
type Server struct {
	root      seed.Seed
	store     *swapstore.Store
	spawner   *spawner.Spawner
	transport *comit.Transport
	announcer *comit.Announcer
	origins   config.AllowedOrigins
	log       *logging.Logger

	server   *http.Server
	listener net.Listener
}

// New constructs a Server. It does not start listening; call Start.
// announcer may be nil, in which case proposed swaps are never gossiped.
func New(root seed.Seed, store *swapstore.Store, sp *spawner.Spawner, transport *comit.Transport, announcer *comit.Announcer, origins config.AllowedOrigins) *Server {
	return &Server{
		root:      root,
		store:     store,
		spawner:   sp,
		transport: transport,
		announcer: announcer,
		origins:   origins,
		log:       logging.GetDefault().Component("httpapi"),
	}
}

// Start binds addr and begins serving in the background.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("httpapi: listen on %s: %w", addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("POST /swaps", s.handleInitiateSwap)
	mux.HandleFunc("GET /swaps", s.handleListSwaps)
	mux.HandleFunc("GET /swaps/{id}", s.handleGetSwap)
	mux.HandleFunc("GET /swaps/{id}/actions", s.handleGetActions)

	s.server = &http.Server{
		Handler:      s.corsMiddleware(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("http api server error", "error", err)
		}
	}()

	s.log.Info("http api started", "addr", addr)
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// initiateSwapRequest is the body of POST /swaps.
type initiateSwapRequest struct {
	CounterpartyPeerID string   `json:"counterparty_peer_id"`
	CounterpartyHints  []string `json:"counterparty_addrs,omitempty"`
	AlphaLedger        string   `json:"alpha_ledger"`
	BetaLedger         string   `json:"beta_ledger"`
	AlphaAsset         string   `json:"alpha_asset"`
	BetaAsset          string   `json:"beta_asset"`
	AlphaExpiry        int64    `json:"alpha_expiry"`
	BetaExpiry         int64    `json:"beta_expiry"`
}

type swapView struct {
	SwapID        string `json:"swap_id"`
	Role          string `json:"role"`
	Status        string `json:"status"`
	AlphaState    string `json:"alpha_state"`
	BetaState     string `json:"beta_state"`
	AlphaLedger   string `json:"alpha_ledger,omitempty"`
	BetaLedger    string `json:"beta_ledger,omitempty"`
	SecretRevealed bool  `json:"secret_revealed"`
}

func toSwapView(state swapstate.ActorState) swapView {
	view := swapView{
		SwapID:         state.SwapID,
		Role:           state.Role.String(),
		Status:         state.Communication.Status.String(),
		AlphaState:     state.Alpha.Sub.String(),
		BetaState:      state.Beta.Sub.String(),
		SecretRevealed: state.Secret() != nil,
	}
	if state.Communication.Request.Headers.ID != "" {
		view.AlphaLedger = string(state.Communication.Request.Headers.AlphaLedger)
		view.BetaLedger = string(state.Communication.Request.Headers.BetaLedger)
	}
	return view
}

// handleInitiateSwap is Alice's side: build an RFC003 request, dial the
// counterparty, and block for its accept/decline. On accept the machine
// is spawned before the HTTP response returns.
func (s *Server) handleInitiateSwap(w http.ResponseWriter, r *http.Request) {
	var body initiateSwapRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	counterparty, err := peer.Decode(body.CounterpartyPeerID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid counterparty_peer_id: "+err.Error())
		return
	}

	hints := make([]multiaddr.Multiaddr, 0, len(body.CounterpartyHints))
	for _, h := range body.CounterpartyHints {
		ma, err := multiaddr.NewMultiaddr(h)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid counterparty address hint: "+err.Error())
			return
		}
		hints = append(hints, ma)
	}

	swapID := uuid.New().String()
	swapSeed := seed.SwapSeed(s.root, swapID)
	secret := seed.DeriveSecret(swapSeed)
	secretHash := seed.SecretHash(secret)
	refundKey := seed.DeriveRefundIdentity(swapSeed)
	redeemKey := seed.DeriveRedeemIdentity(swapSeed)

	req := rfc003.Request{
		Headers: rfc003.Headers{
			ID:           swapID,
			AlphaLedger:  ledger.Kind(body.AlphaLedger),
			BetaLedger:   ledger.Kind(body.BetaLedger),
			AlphaAsset:   body.AlphaAsset,
			BetaAsset:    body.BetaAsset,
			Protocol:     rfc003.ProtocolID,
			HashFunction: rfc003.HashFunction,
		},
		Body: rfc003.RequestBody{
			AlphaLedgerRefundIdentity: hex.EncodeToString(refundKey[:]),
			BetaLedgerRedeemIdentity:  hex.EncodeToString(redeemKey[:]),
			AlphaExpiry:               body.AlphaExpiry,
			BetaExpiry:                body.BetaExpiry,
			SecretHash:                hex.EncodeToString(secretHash[:]),
		},
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.announcer != nil {
		if err := s.announcer.Announce(r.Context(), req.Headers); err != nil {
			s.log.Warn("failed to gossip swap announcement", "swap_id", swapID, "error", err)
		}
	}

	resp, err := s.transport.SendRequest(r.Context(), counterparty, hints, req)
	if err != nil {
		writeError(w, http.StatusBadGateway, "counterparty unreachable: "+err.Error())
		return
	}

	if resp.Decision == rfc003.DecisionDeclined {
		writeJSON(w, http.StatusOK, map[string]any{
			"swap_id":  swapID,
			"decision": "declined",
			"reason":   resp.Decline.Reason,
		})
		return
	}

	if _, err := s.spawner.SpawnAlice(context.Background(), swapID, req, resp.Accept); err != nil {
		writeError(w, http.StatusInternalServerError, "accepted but failed to spawn: "+err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"swap_id":  swapID,
		"decision": "accepted",
	})
}

func (s *Server) handleListSwaps(w http.ResponseWriter, r *http.Request) {
	all := s.store.RetrieveAll()
	views := make([]swapView, 0, len(all))
	for _, state := range all {
		views = append(views, toSwapView(state))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetSwap(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, err := s.store.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toSwapView(state))
}

func (s *Server) handleGetActions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	state, err := s.store.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	actions := swapstate.Actions(state, time.Now())
	writeJSON(w, http.StatusOK, actions)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// corsMiddleware applies the node's configured allowed-origins policy:
// "none" sets no CORS headers at all, "all" reflects the request's
// Origin, and an explicit list only reflects an Origin it contains.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.allowOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowOrigin(origin string) bool {
	if s.origins.None {
		return false
	}
	if s.origins.All {
		return true
	}
	for _, allowed := range s.origins.List {
		if allowed == origin {
			return true
		}
	}
	return false
}
