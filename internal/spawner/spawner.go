// Package spawner turns a resolved RFC003 handshake into a running swap:
// it derives the swap seed, inserts the initial ActorState, wires up
// both ledgers' event sources, and submits the state machine to the
// task runtime.
package spawner

import (
	"context"
	"fmt"

	"github.com/klingon-exchange/cnd/internal/htlcevents"
	"github.com/klingon-exchange/cnd/internal/ledger"
	"github.com/klingon-exchange/cnd/internal/rfc003"
	"github.com/klingon-exchange/cnd/internal/seed"
	"github.com/klingon-exchange/cnd/internal/swapstate"
	"github.com/klingon-exchange/cnd/internal/swapstore"
	"github.com/klingon-exchange/cnd/internal/taskrunner"
	"github.com/klingon-exchange/cnd/pkg/logging"
)

// CreateLedgerEvents is the capability the spawner needs to obtain an
// HTLC event source for one side of one swap, grounded on the now-known
// request/accept headers for that side (ledger kind, asset, expiry).
// Concrete wiring (constructing a btsieve poller against a live RPC
// connector) lives above this package; the spawner only needs the
// resulting Source.
type CreateLedgerEvents func(ctx context.Context, side ledger.Side, req rfc003.Request, accept *rfc003.AcceptBody) (htlcevents.Source, error)

// Spawner owns the shared infrastructure every spawned swap's machine
// runs against: the state store it reports into, the task pool it runs
// on, the root seed swap seeds are derived from, and the capability to
// construct ledger event sources.
type Spawner struct {
	root         seed.Seed
	store        *swapstore.Store
	pool         *taskrunner.Pool
	createEvents CreateLedgerEvents
	log          *logging.Logger
}

// New constructs a Spawner. createEvents is typically backed by a
// btsieve.Poller plus htlcevents adapter per ledger family.
func New(root seed.Seed, store *swapstore.Store, pool *taskrunner.Pool, createEvents CreateLedgerEvents) *Spawner {
	return &Spawner{
		root:         root,
		store:        store,
		pool:         pool,
		createEvents: createEvents,
		log:          logging.GetDefault().Component("spawner"),
	}
}

// SpawnAlice derives Alice's view of a just-accepted swap and starts its
// machine. req is the request Alice sent; accept is Bob's response body.
// Returns the running Machine so callers can observe StateError halts or
// wait for Final synchronously if they want to.
func (s *Spawner) SpawnAlice(ctx context.Context, swapID string, req rfc003.Request, accept *rfc003.AcceptBody) (*swapstate.Machine, error) {
	swapSeed := seed.SwapSeed(s.root, swapID)
	secret := seed.DeriveSecret(swapSeed)
	initial := swapstate.NewProposed(swapID, ledger.Alice, req, &secret)
	initial.Communication.Status = swapstate.Accepted
	initial.Communication.Accept = accept
	return s.spawn(ctx, initial, req, accept)
}

// SpawnBob derives Bob's view of a swap it just accepted. Bob never
// knows the secret until it is revealed on chain, so KnownSecret stays
// nil; once the machine observes a Redeemed event, the secret is read
// from that side's ledger state through ActorState.Secret.
func (s *Spawner) SpawnBob(ctx context.Context, swapID string, req rfc003.Request, accept *rfc003.AcceptBody) (*swapstate.Machine, error) {
	initial := swapstate.NewProposed(swapID, ledger.Bob, req, nil)
	initial.Communication.Status = swapstate.Accepted
	initial.Communication.Accept = accept
	return s.spawn(ctx, initial, req, accept)
}

// SpawnDeclined records a declined handshake without creating any event
// sources or submitting a machine: step 3 of the spawn sequence — "if
// Declined, stop."
func (s *Spawner) SpawnDeclined(swapID string, role ledger.Role, req rfc003.Request, decline *rfc003.DeclineBody) error {
	initial := swapstate.NewProposed(swapID, role, req, nil)
	initial.Communication.Status = swapstate.Declined
	initial.Communication.Decline = decline
	return s.store.Insert(initial)
}

func (s *Spawner) spawn(ctx context.Context, initial swapstate.ActorState, req rfc003.Request, accept *rfc003.AcceptBody) (*swapstate.Machine, error) {
	if err := s.store.Insert(initial); err != nil {
		return nil, fmt.Errorf("spawner: insert initial state: %w", err)
	}

	alphaSource, err := s.createEvents(ctx, ledger.AlphaSide, req, accept)
	if err != nil {
		return nil, fmt.Errorf("spawner: create alpha events: %w", err)
	}
	betaSource, err := s.createEvents(ctx, ledger.BetaSide, req, accept)
	if err != nil {
		return nil, fmt.Errorf("spawner: create beta events: %w", err)
	}

	merged := mergeEvents(ctx, ledger.AlphaSide, alphaSource, ledger.BetaSide, betaSource)
	machine := swapstate.NewMachine(initial, merged)

	s.pool.Submit(func(ctx context.Context) {
		machine.Run(ctx)
	})
	s.pool.Submit(func(ctx context.Context) {
		s.forwardUpdates(initial.SwapID, machine)
	})

	return machine, nil
}

// forwardUpdates drains a machine's update stream into the shared store
// through the unbounded, ordered channel Machine.Updates() already is.
func (s *Spawner) forwardUpdates(swapID string, machine *swapstate.Machine) {
	for state := range machine.Updates() {
		if err := s.store.Update(swapID, state); err != nil {
			s.log.Warn("dropping update for unknown swap", "swap_id", swapID, "error", err)
		}
	}
}

// mergeEvents fans two per-side htlcevents.Source channels into a single
// ordered SidedEvent stream. "Ordered" here means per-side FIFO is
// preserved; there is no global ordering promise across sides, matching
// the concurrency model's "each axis advances independently."
func mergeEvents(ctx context.Context, alphaSide ledger.Side, alpha htlcevents.Source, betaSide ledger.Side, beta htlcevents.Source) <-chan swapstate.SidedEvent {
	out := make(chan swapstate.SidedEvent)
	alphaCh := alpha.Events(ctx)
	betaCh := beta.Events(ctx)

	go func() {
		defer close(out)
		for alphaCh != nil || betaCh != nil {
			select {
			case ev, ok := <-alphaCh:
				if !ok {
					alphaCh = nil
					continue
				}
				select {
				case out <- swapstate.SidedEvent{Side: alphaSide, Event: ev}:
				case <-ctx.Done():
					return
				}
			case ev, ok := <-betaCh:
				if !ok {
					betaCh = nil
					continue
				}
				select {
				case out <- swapstate.SidedEvent{Side: betaSide, Event: ev}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
