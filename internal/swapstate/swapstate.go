// Package swapstate is the per-swap state machine: a product of two
// per-ledger sub-states plus the swap's communication state, driven by a
// merged, ordered stream of HTLC events and persisted through a state
// store after every transition.
package swapstate

import (
	"errors"
	"fmt"
	"time"

	"github.com/klingon-exchange/cnd/internal/ledger"
	"github.com/klingon-exchange/cnd/internal/rfc003"
)

// CommunicationStatus tags where a swap's handshake stands.
type CommunicationStatus int

const (
	Proposed CommunicationStatus = iota
	Accepted
	Declined
)

func (c CommunicationStatus) String() string {
	switch c {
	case Proposed:
		return "proposed"
	case Accepted:
		return "accepted"
	case Declined:
		return "declined"
	default:
		return "unknown"
	}
}

// SwapCommunication records the outcome of the RFC003 handshake for one
// swap: the original request, and — once resolved — either the
// counterparty's accepted identities or the decline reason.
type SwapCommunication struct {
	Status  CommunicationStatus
	Request rfc003.Request
	Accept  *rfc003.AcceptBody  // set iff Status == Accepted
	Decline *rfc003.DeclineBody // set iff Status == Declined
}

// LedgerSubState is one axis of the two-axis product state machine: the
// lifecycle of a single side's HTLC.
type LedgerSubState int

const (
	NotDeployed LedgerSubState = iota
	Deployed
	Funded
	Redeemed
	Refunded
)

func (s LedgerSubState) String() string {
	switch s {
	case NotDeployed:
		return "not_deployed"
	case Deployed:
		return "deployed"
	case Funded:
		return "funded"
	case Redeemed:
		return "redeemed"
	case Refunded:
		return "refunded"
	default:
		return "unknown"
	}
}

// Terminal reports whether this sub-state ends the side's lifecycle.
func (s LedgerSubState) Terminal() bool {
	return s == Redeemed || s == Refunded
}

// LedgerState is one side's (alpha or beta) observed on-chain progress.
type LedgerState struct {
	Sub      LedgerSubState
	Location ledger.HtlcLocation // set once Sub >= Deployed
	Asset    ledger.Asset        // set once Sub >= Funded
	Secret   *[32]byte           // set iff Sub == Redeemed
	Timelock ledger.Timelock
}

// ErrorKind tags the closed set of failures that halt a machine in place.
type ErrorKind int

const (
	ErrorBtsieve ErrorKind = iota
	ErrorTimer
	ErrorIncorrectFunding
	ErrorInternal
)

// StateError is set on an ActorState when the event stream fails past its
// retry budget, or an invariant the machine depends on is violated. The
// machine does not auto-restart; the state remains queryable as-is.
type StateError struct {
	Kind    ErrorKind
	Message string
}

func (e *StateError) Error() string {
	switch e.Kind {
	case ErrorBtsieve:
		return fmt.Sprintf("btsieve: %s", e.Message)
	case ErrorTimer:
		return fmt.Sprintf("timer: %s", e.Message)
	case ErrorIncorrectFunding:
		return fmt.Sprintf("incorrect funding: %s", e.Message)
	default:
		return fmt.Sprintf("internal: %s", e.Message)
	}
}

// ActorState is the full observable state of one party's view of one
// swap: which role it plays, the handshake outcome, both ledgers'
// sub-states, and any halting error.
type ActorState struct {
	SwapID        string
	Role          ledger.Role
	Communication SwapCommunication
	Alpha         LedgerState
	Beta          LedgerState
	Error         *StateError
	UpdatedAt     time.Time

	// KnownSecret is set at spawn time for Alice, who derived the secret
	// herself, and left nil for Bob until it is revealed on chain.
	KnownSecret *[32]byte
}

// Secret returns the swap's secret if this actor knows it yet: either
// because it derived it itself (Alice, from spawn), or because it was
// revealed by a Redeemed event on either side.
func (s ActorState) Secret() *[32]byte {
	if s.KnownSecret != nil {
		return s.KnownSecret
	}
	if s.Alpha.Secret != nil {
		return s.Alpha.Secret
	}
	return s.Beta.Secret
}

// NewProposed constructs the initial ActorState for a swap whose request
// has just been sent (Alice) or received (Bob), before the handshake
// resolves. knownSecret is non-nil only for Alice, who derives the
// secret before ever sending the request.
func NewProposed(swapID string, role ledger.Role, req rfc003.Request, knownSecret *[32]byte) ActorState {
	return ActorState{
		SwapID: swapID,
		Role:   role,
		Communication: SwapCommunication{
			Status:  Proposed,
			Request: req,
		},
		KnownSecret: knownSecret,
	}
}

func (s *ActorState) touch() {
	s.UpdatedAt = time.Now()
}

// Final reports whether both ledger sub-states have reached a terminal
// state (Redeemed or Refunded) — the product machine's overall Final.
func (s ActorState) Final() bool {
	return s.Alpha.Sub.Terminal() && s.Beta.Sub.Terminal()
}

// ErrNotAccepted is returned when an operation requires a resolved,
// accepted handshake but the swap is still Proposed or was Declined.
var ErrNotAccepted = errors.New("swapstate: swap communication is not accepted")
