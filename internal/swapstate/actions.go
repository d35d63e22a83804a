package swapstate

import (
	"math/big"
	"time"

	"github.com/klingon-exchange/cnd/internal/ledger"
)

// Action is one of the concrete next steps Actions() may offer. The set
// is closed; callers type-switch on the concrete type.
type Action interface{ isAction() }

// SendToAddress funds a UTXO-ledger HTLC by sending amount to its address.
type SendToAddress struct {
	To      string
	Amount  ledger.Asset
	Network string
}

// DeployContract funds an account-based HTLC by deploying its bytecode.
type DeployContract struct {
	Data     []byte
	Amount   ledger.Asset
	GasLimit uint64
	ChainID  *big.Int
}

// SpendOutput redeems or refunds a UTXO-ledger HTLC. Secret is set for a
// redeem, nil for a refund.
type SpendOutput struct {
	Location ledger.HtlcLocation
	Secret   *[32]byte
}

// CallContract redeems or refunds an account-based HTLC. Data is the
// ABI-encoded call, already carrying the secret for a redeem.
type CallContract struct {
	Location ledger.HtlcLocation
	Data     []byte
}

func (SendToAddress) isAction()  {}
func (DeployContract) isAction() {}
func (SpendOutput) isAction()    {}
func (CallContract) isAction()   {}

// Actions is a pure projection from an ActorState to the (possibly
// empty) list of next steps available to this actor right now. It reads
// only its argument: no I/O, no clock access beyond the now parameter.
func Actions(s ActorState, now time.Time) []Action {
	if s.Error != nil {
		return nil
	}

	fundSide, redeemSide := sidesFor(s.Role)
	fund := sideState(&s, fundSide)
	redeem := sideState(&s, redeemSide)

	var actions []Action

	if a := fundAction(s, fundSide); a != nil {
		actions = append(actions, a)
	}

	if fund.Sub == Funded && redeem.Sub == Funded && s.Secret() != nil && redeem.Sub != Redeemed {
		if a := redeemAction(s, redeemSide); a != nil {
			actions = append(actions, a)
		}
	}

	if fund.Sub == Funded && fund.Sub != Redeemed && fund.Sub != Refunded &&
		fund.Timelock.Expired(now.Unix(), 0) {
		if a := refundAction(s, fundSide); a != nil {
			actions = append(actions, a)
		}
	}

	return actions
}

// sidesFor returns (the side this actor funds, the side this actor
// redeems). Alice funds alpha and redeems beta; Bob funds beta and
// redeems alpha.
func sidesFor(role ledger.Role) (fund, redeem ledger.Side) {
	if role == ledger.Alice {
		return ledger.AlphaSide, ledger.BetaSide
	}
	return ledger.BetaSide, ledger.AlphaSide
}

func sideState(s *ActorState, side ledger.Side) LedgerState {
	if side == ledger.AlphaSide {
		return s.Alpha
	}
	return s.Beta
}

func ledgerKind(s ActorState, side ledger.Side) ledger.Kind {
	if side == ledger.AlphaSide {
		return s.Communication.Request.Headers.AlphaLedger
	}
	return s.Communication.Request.Headers.BetaLedger
}

func fundAction(s ActorState, fundSide ledger.Side) Action {
	if s.Communication.Status != Accepted {
		return nil
	}
	fund := sideState(&s, fundSide)
	if fund.Sub != NotDeployed {
		return nil
	}
	switch ledgerKind(s, fundSide) {
	case ledger.Bitcoin:
		return SendToAddress{Network: "bitcoin"}
	case ledger.Ethereum:
		return DeployContract{}
	default:
		return nil
	}
}

func redeemAction(s ActorState, redeemSide ledger.Side) Action {
	redeem := sideState(&s, redeemSide)
	switch ledgerKind(s, redeemSide) {
	case ledger.Bitcoin:
		return SpendOutput{Location: redeem.Location, Secret: s.Secret()}
	case ledger.Ethereum:
		return CallContract{Location: redeem.Location}
	default:
		return nil
	}
}

func refundAction(s ActorState, fundSide ledger.Side) Action {
	fund := sideState(&s, fundSide)
	switch ledgerKind(s, fundSide) {
	case ledger.Bitcoin:
		return SpendOutput{Location: fund.Location}
	case ledger.Ethereum:
		return CallContract{Location: fund.Location}
	default:
		return nil
	}
}
