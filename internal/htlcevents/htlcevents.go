// Package htlcevents adapts btsieve pattern matches into the five
// ledger-agnostic events the swap state machine consumes.
package htlcevents

import (
	"context"

	"github.com/klingon-exchange/cnd/internal/ledger"
)

// Deployed fires once the HTLC has been published on chain. For Bitcoin
// this is collapsed with Funded (the funding transaction is the
// deployment).
type Deployed struct {
	Location ledger.HtlcLocation
}

// Funded fires once a funding transaction for the HTLC location has been
// observed. Asset is the amount the adapter reports; neither the adapters
// nor the state machine compare it with the negotiated quantity.
type Funded struct {
	Location ledger.HtlcLocation
	Asset    ledger.Asset
}

// Redeemed fires once the counterparty has spent the HTLC via the
// redeem path, revealing the secret.
type Redeemed struct {
	Location ledger.HtlcLocation
	Secret   [32]byte
}

// Refunded fires once the HTLC's timelock path has been spent.
type Refunded struct {
	Location ledger.HtlcLocation
}

// Retracted signals that a previously emitted event's block was displaced
// by a reorg before its effects were otherwise confirmed. Events are
// emitted eagerly, so the consumer must be able to roll the affected
// side's state backward in response; swapstate.Machine resets that side
// to NotDeployed.
type Retracted struct {
	Location ledger.HtlcLocation
}

// Event is the sum of the five event kinds above, delivered over a single
// per-side channel in arrival order.
type Event any

// Source produces the merged, ordered event stream for one side (alpha or
// beta) of a single swap: a broad search for Deployed/Funded anchored at
// start_of_swap, and — once Deployed fires — a narrow search for
// Redeemed/Refunded anchored at the now-known HTLC location.
type Source interface {
	// Events returns a channel of Event values for this side. The pollers
	// behind the sources in this package run until ctx is cancelled, so
	// the channel is not closed when a terminal event has been seen.
	Events(ctx context.Context) <-chan Event
}
