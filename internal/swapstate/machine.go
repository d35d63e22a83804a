package swapstate

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/klingon-exchange/cnd/internal/htlcevents"
	"github.com/klingon-exchange/cnd/internal/ledger"
	"github.com/klingon-exchange/cnd/internal/seed"
	"github.com/klingon-exchange/cnd/pkg/helpers"
	"github.com/klingon-exchange/cnd/pkg/logging"
)

// SidedEvent tags an htlcevents.Event with which leg of the swap it
// belongs to, the shape the merged alpha/beta event stream is delivered
// in.
type SidedEvent struct {
	Side  ledger.Side
	Event htlcevents.Event
}

// Machine drives one swap's ActorState forward from a merged, ordered
// event stream. Each axis (alpha, beta) advances independently; the
// product is Final once both have reached a terminal sub-state.
//
// Concurrent events on the two ledgers are accepted in either order,
// since each axis only reads its own side out of the incoming event.
// Should both a Redeemed and a Refunded match the same side — possible
// only via a pathological reorg — the later event simply overwrites the
// earlier one: there is no explicit "previous wins" guard, so the
// canonical-chain event that is observed last always wins.
type Machine struct {
	state   ActorState
	events  <-chan SidedEvent
	updates *unboundedChan[ActorState]
	log     *logging.Logger

	halt chan *StateError
}

// NewMachine constructs a Machine for a swap whose handshake has already
// been accepted. events is the merged alpha/beta event stream; Updates()
// returns every subsequent ActorState snapshot in order, for forwarding
// to the state store.
func NewMachine(initial ActorState, events <-chan SidedEvent) *Machine {
	return &Machine{
		state:   initial,
		events:  events,
		updates: newUnboundedChan[ActorState](),
		log:     logging.GetDefault().Component("swapstate"),
		halt:    make(chan *StateError, 1),
	}
}

// Updates returns the ordered stream of ActorState snapshots: one per
// processed event, plus a final one if the machine halts on error.
func (m *Machine) Updates() <-chan ActorState {
	return m.updates.out
}

// Halt sets a halting error on the machine from outside the event loop —
// e.g. the btsieve poll backing one of the event sources has exhausted
// its retry budget. The machine stops processing further events but its
// last-known state remains queryable.
func (m *Machine) Halt(err *StateError) {
	select {
	case m.halt <- err:
	default:
	}
}

// Run consumes events until ctx is cancelled, the swap reaches Final, or
// Halt is called. It emits one ActorState snapshot per transition on
// Updates(), then closes that channel.
func (m *Machine) Run(ctx context.Context) ActorState {
	defer m.updates.close()

	for {
		if m.state.Final() {
			return m.state
		}
		select {
		case <-ctx.Done():
			return m.state
		case err := <-m.halt:
			m.state.Error = err
			m.state.touch()
			m.updates.send(m.state)
			return m.state
		case ev, ok := <-m.events:
			if !ok {
				return m.state
			}
			if err := m.apply(ev); err != nil {
				m.state.Error = &StateError{Kind: ErrorInternal, Message: err.Error()}
				m.state.touch()
				m.updates.send(m.state)
				return m.state
			}
			m.state.touch()
			m.updates.send(m.state)
		}
	}
}

func (m *Machine) apply(se SidedEvent) error {
	ls := m.sideState(se.Side)
	switch e := se.Event.(type) {
	case htlcevents.Deployed:
		if ls.Sub == NotDeployed {
			ls.Sub = Deployed
			ls.Location = e.Location
		}
	case htlcevents.Funded:
		if ls.Sub == NotDeployed || ls.Sub == Deployed {
			ls.Sub = Funded
			ls.Asset = e.Asset
			if ls.Location == nil {
				ls.Location = e.Location
			}
		}
	case htlcevents.Redeemed:
		if err := m.verifySecret(e.Secret); err != nil {
			return err
		}
		secret := e.Secret
		ls.Sub = Redeemed
		ls.Secret = &secret
		if ls.Location == nil {
			ls.Location = e.Location
		}
		if err := m.checkCounterpartyFunded(se.Side); err != nil {
			return err
		}
	case htlcevents.Refunded:
		ls.Sub = Refunded
		if ls.Location == nil {
			ls.Location = e.Location
		}
	case htlcevents.Retracted:
		// The emission this retracts belongs to the most recent
		// observation on this side; eager emission means we cannot
		// know which prior sub-state to restore exactly, so roll all
		// the way back to NotDeployed and let the broad/narrow
		// searches re-observe canonically.
		*ls = LedgerState{Timelock: ls.Timelock}
	default:
		return fmt.Errorf("unrecognised event type %T", se.Event)
	}
	return nil
}

// verifySecret checks a revealed secret against the swap's negotiated
// secret hash before the machine ever trusts it. A redeem witness or
// calldata match is necessary but not sufficient: extractSecretFromWitness
// and extractSecretFromCalldata only recognise a 32-byte element in the
// expected position, which an unrelated spend could satisfy by accident.
func (m *Machine) verifySecret(secret [32]byte) error {
	want, err := hex.DecodeString(m.state.Communication.Request.Body.SecretHash)
	if err != nil {
		return fmt.Errorf("decode negotiated secret hash: %w", err)
	}
	got := seed.SecretHash(secret)
	if !helpers.ConstantTimeCompare(got[:], want) {
		return fmt.Errorf("revealed secret does not match the negotiated secret hash")
	}
	return nil
}

// checkCounterpartyFunded enforces the AlphaRedeemedBetaNotFunded
// invariant (and its beta-redeemed mirror): once one side has been
// redeemed, the counterparty side must already be at least Funded. If it
// isn't, the counterparty's funding never materialised while our own
// side was already spent, which no further waiting can fix, so the
// machine halts rather than continue toward a Final it will never reach.
func (m *Machine) checkCounterpartyFunded(side ledger.Side) error {
	other := m.sideState(side.Opposite())
	if other.Sub < Funded {
		return fmt.Errorf("%s side redeemed while counterparty side is only %s", side, other.Sub)
	}
	return nil
}

func (m *Machine) sideState(side ledger.Side) *LedgerState {
	if side == ledger.AlphaSide {
		return &m.state.Alpha
	}
	return &m.state.Beta
}
