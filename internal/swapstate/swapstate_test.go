package swapstate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/cnd/internal/htlcevents"
	"github.com/klingon-exchange/cnd/internal/ledger"
	"github.com/klingon-exchange/cnd/internal/rfc003"
	"github.com/klingon-exchange/cnd/internal/seed"
)

// TestSwapHandshakeHappyPath exercises the exact scenario from the
// concrete-scenarios table: alpha_expiry=2000, beta_expiry=1000, and the
// derived redeem identity Alice computes before ever sending the request.
// The secret hash is that of this node's derived secret, not the
// scenario's fixed preimage.
func TestSwapHandshakeHappyPath(t *testing.T) {
	root, err := seed.Random()
	require.NoError(t, err)

	swapID := "f47ac10b-58cc-4372-a567-0e02b2c3d479"
	swapSeed := seed.SwapSeed(root, swapID)
	secret := seed.DeriveSecret(swapSeed)

	plaintext := sha256.Sum256([]byte("hello world, you are beautiful!!"))
	_ = plaintext // the scenario's secret_hash is computed from a fixed preimage, not this node's derived secret
	secretHash := seed.SecretHash(secret)

	redeemIdentity := seed.DeriveRedeemIdentity(swapSeed)
	wantRedeemIdentity := sha256.Sum256(append(append([]byte{}, swapSeed.Bytes()...), []byte("REDEEM")...))
	assert.Equal(t, wantRedeemIdentity, redeemIdentity)

	req := rfc003.Request{
		Headers: rfc003.Headers{
			ID:           swapID,
			AlphaLedger:  ledger.Bitcoin,
			BetaLedger:   ledger.Ethereum,
			AlphaAsset:   "bitcoin",
			BetaAsset:    "ether",
			Protocol:     rfc003.ProtocolID,
			HashFunction: rfc003.HashFunction,
		},
		Body: rfc003.RequestBody{
			AlphaLedgerRefundIdentity: "bc1qalice",
			BetaLedgerRedeemIdentity:  hex.EncodeToString(redeemIdentity[:]),
			AlphaExpiry:               2000,
			BetaExpiry:                1000,
			SecretHash:                hex.EncodeToString(secretHash[:]),
		},
	}
	require.NoError(t, req.Validate())

	s := NewProposed(swapID, ledger.Alice, req, &secret)
	assert.Equal(t, Proposed, s.Communication.Status)
	assert.Equal(t, swapID, s.SwapID)
	assert.Equal(t, &secret, s.Secret())

	s.Communication.Status = Accepted
	s.Communication.Accept = &rfc003.AcceptBody{
		AlphaLedgerRedeemIdentity: "0xbob_alpha_redeem",
		BetaLedgerRefundIdentity:  "0xbob_beta_refund",
	}
	assert.Equal(t, Accepted, s.Communication.Status)
}

func TestActorStateFinalRequiresBothSidesTerminal(t *testing.T) {
	var s ActorState
	assert.False(t, s.Final())

	s.Alpha.Sub = Redeemed
	assert.False(t, s.Final())

	s.Beta.Sub = Refunded
	assert.True(t, s.Final())
}

func TestMachineAdvancesBothSidesIndependently(t *testing.T) {
	events := make(chan SidedEvent, 8)

	secret := [32]byte{1, 2, 3}
	secretHash := seed.SecretHash(secret)
	initial := ActorState{SwapID: "swap-1", Role: ledger.Alice}
	initial.Communication.Request.Body.SecretHash = hex.EncodeToString(secretHash[:])
	m := NewMachine(initial, events)

	events <- SidedEvent{Side: ledger.AlphaSide, Event: htlcevents.Deployed{}}
	events <- SidedEvent{Side: ledger.AlphaSide, Event: htlcevents.Funded{}}
	events <- SidedEvent{Side: ledger.BetaSide, Event: htlcevents.Deployed{}}
	events <- SidedEvent{Side: ledger.BetaSide, Event: htlcevents.Funded{}}
	events <- SidedEvent{Side: ledger.BetaSide, Event: htlcevents.Redeemed{Secret: secret}}
	events <- SidedEvent{Side: ledger.AlphaSide, Event: htlcevents.Redeemed{Secret: secret}}
	close(events)

	final := m.Run(context.Background())
	assert.Equal(t, Redeemed, final.Alpha.Sub)
	assert.Equal(t, Redeemed, final.Beta.Sub)
	assert.True(t, final.Final())
	assert.Equal(t, &secret, final.Beta.Secret)

	var updates []ActorState
	for u := range m.Updates() {
		updates = append(updates, u)
	}
	assert.Len(t, updates, 6)
}

func TestMachineTieBreakLaterEventWins(t *testing.T) {
	events := make(chan SidedEvent, 5)

	secret := [32]byte{9}
	secretHash := seed.SecretHash(secret)
	initial := ActorState{SwapID: "swap-2", Role: ledger.Bob}
	initial.Communication.Request.Body.SecretHash = hex.EncodeToString(secretHash[:])
	m := NewMachine(initial, events)

	// Beta is funded first so the tie-break below exercises only the
	// later-event-wins discipline, not the AlphaRedeemedBetaNotFunded halt.
	events <- SidedEvent{Side: ledger.BetaSide, Event: htlcevents.Funded{}}
	events <- SidedEvent{Side: ledger.AlphaSide, Event: htlcevents.Funded{}}
	events <- SidedEvent{Side: ledger.AlphaSide, Event: htlcevents.Refunded{}}
	events <- SidedEvent{Side: ledger.AlphaSide, Event: htlcevents.Redeemed{Secret: secret}}
	close(events)

	final := m.Run(context.Background())
	// The later canonical event (Redeemed) wins over the earlier one
	// (Refunded) that a reorg displaced.
	assert.Equal(t, Redeemed, final.Alpha.Sub)
	for range m.Updates() {
	}
}

func TestMachineHaltSetsErrorAndStops(t *testing.T) {
	events := make(chan SidedEvent)
	m := NewMachine(ActorState{SwapID: "swap-3", Role: ledger.Alice}, events)

	done := make(chan ActorState, 1)
	go func() { done <- m.Run(context.Background()) }()

	m.Halt(&StateError{Kind: ErrorBtsieve, Message: "node unreachable"})

	select {
	case final := <-done:
		require.NotNil(t, final.Error)
		assert.Equal(t, ErrorBtsieve, final.Error.Kind)
	case <-time.After(time.Second):
		t.Fatal("machine did not halt")
	}
}

func TestActionsOfferDeployForAliceAlphaUTXO(t *testing.T) {
	s := ActorState{
		Role: ledger.Alice,
		Communication: SwapCommunication{
			Status: Accepted,
			Request: rfc003.Request{
				Headers: rfc003.Headers{AlphaLedger: ledger.Bitcoin, BetaLedger: ledger.Ethereum},
			},
		},
	}
	actions := Actions(s, time.Unix(100, 0))
	require.Len(t, actions, 1)
	_, ok := actions[0].(SendToAddress)
	assert.True(t, ok)
}

func TestActionsOfferRedeemWhenBothFundedAndSecretKnown(t *testing.T) {
	secret := [32]byte{1}
	s := ActorState{
		Role: ledger.Alice,
		Communication: SwapCommunication{
			Status: Accepted,
			Request: rfc003.Request{
				Headers: rfc003.Headers{AlphaLedger: ledger.Bitcoin, BetaLedger: ledger.Ethereum},
			},
		},
		Alpha:       LedgerState{Sub: Funded},
		Beta:        LedgerState{Sub: Funded},
		KnownSecret: &secret,
	}
	actions := Actions(s, time.Unix(100, 0))
	var sawRedeem bool
	for _, a := range actions {
		if _, ok := a.(CallContract); ok {
			sawRedeem = true
		}
	}
	assert.True(t, sawRedeem)
}

func TestActionsOfferRefundAfterExpiry(t *testing.T) {
	s := ActorState{
		Role: ledger.Alice,
		Communication: SwapCommunication{
			Status: Accepted,
			Request: rfc003.Request{
				Headers: rfc003.Headers{AlphaLedger: ledger.Bitcoin, BetaLedger: ledger.Ethereum},
			},
		},
		Alpha: LedgerState{
			Sub:      Funded,
			Timelock: ledger.Timelock{Kind: ledger.AbsoluteUnixTime, UnixTime: 50},
		},
	}
	actions := Actions(s, time.Unix(100, 0))
	var sawRefund bool
	for _, a := range actions {
		if _, ok := a.(SpendOutput); ok {
			sawRefund = true
		}
	}
	assert.True(t, sawRefund)
}

func TestActionsEmptyAfterOwnSideTerminal(t *testing.T) {
	s := ActorState{
		Role: ledger.Alice,
		Communication: SwapCommunication{
			Status: Accepted,
			Request: rfc003.Request{
				Headers: rfc003.Headers{AlphaLedger: ledger.Bitcoin, BetaLedger: ledger.Ethereum},
			},
		},
		Alpha: LedgerState{Sub: Refunded},
	}
	actions := Actions(s, time.Unix(100, 0))
	assert.Empty(t, actions)
}
