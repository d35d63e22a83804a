package main

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/klingon-exchange/cnd/internal/ledger"
	"github.com/klingon-exchange/cnd/internal/rfc003"
	"github.com/klingon-exchange/cnd/internal/seed"
	"github.com/klingon-exchange/cnd/internal/spawner"
	"github.com/klingon-exchange/cnd/pkg/logging"
)

// handleIncomingRequest is Bob's side of the RFC003 handshake: validate
// the request, derive this node's redeem/refund identities for the
// swap, and either accept (spawning the machine) or decline (recording
// the outcome without starting one).
//
// Acceptance is unconditional once a request validates: there is no rate
// or liquidity policy here, only the protocol-level invariant that
// req.Validate already checked.
func handleIncomingRequest(ctx context.Context, log *logging.Logger, root seed.Seed, sp *spawner.Spawner, req rfc003.Request) rfc003.Response {
	swapID := req.Headers.ID

	if err := req.Validate(); err != nil {
		reason := rfc003.ReasonUnsatisfactoryTimeout
		if errors.Is(err, rfc003.ErrProtocolUnsupported) {
			reason = rfc003.ReasonProtocolUnsupported
		}
		log.Warn("declining invalid request", "swap_id", swapID, "error", err)
		return declineSwap(sp, swapID, req, reason)
	}

	swapSeed := seed.SwapSeed(root, swapID)
	redeemKey := seed.DeriveRedeemIdentity(swapSeed)
	refundKey := seed.DeriveRefundIdentity(swapSeed)

	accept := &rfc003.AcceptBody{
		AlphaLedgerRedeemIdentity: hex.EncodeToString(redeemKey[:]),
		BetaLedgerRefundIdentity:  hex.EncodeToString(refundKey[:]),
	}

	if _, err := sp.SpawnBob(ctx, swapID, req, accept); err != nil {
		log.Warn("failed to spawn swap, declining", "swap_id", swapID, "error", err)
		return declineSwap(sp, swapID, req, rfc003.ReasonOther)
	}

	log.Info("accepted swap", "swap_id", swapID, "alpha_ledger", req.Headers.AlphaLedger, "beta_ledger", req.Headers.BetaLedger)
	return rfc003.Response{ID: swapID, Decision: rfc003.DecisionAccepted, Accept: accept}
}

func declineSwap(sp *spawner.Spawner, swapID string, req rfc003.Request, reason rfc003.DeclineReason) rfc003.Response {
	decline := &rfc003.DeclineBody{Reason: reason}
	if err := sp.SpawnDeclined(swapID, ledger.Bob, req, decline); err != nil {
		// Already recorded (e.g. a retransmitted request); the response
		// we send back is unaffected either way.
		_ = err
	}
	return rfc003.Response{ID: swapID, Decision: rfc003.DecisionDeclined, Decline: decline}
}
