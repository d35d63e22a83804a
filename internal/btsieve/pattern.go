package btsieve

import (
	gethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/klingon-exchange/cnd/internal/bitcoin"
	"github.com/klingon-exchange/cnd/internal/ethereum"
	"github.com/klingon-exchange/cnd/pkg/helpers"
)

// BitcoinPattern matches Bitcoin transactions. All set fields are
// AND-combined; an unset (zero-value) field imposes no constraint.
type BitcoinPattern struct {
	ToAddress    string // encoded address, empty = unconstrained
	FromOutpoint *bitcoin.OutPoint
	UnlockScript []byte
}

func (p BitcoinPattern) Match(tx Transaction) bool {
	btx, ok := tx.(bitcoin.Tx)
	if !ok {
		return false
	}

	if p.ToAddress != "" {
		found := false
		for _, out := range btx.Inner.Outputs {
			if out.Address != nil && out.Address.EncodeAddress() == p.ToAddress {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if p.FromOutpoint != nil {
		found := false
		for _, in := range btx.Inner.Inputs {
			if in.PreviousOutPoint == *p.FromOutpoint {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(p.UnlockScript) > 0 {
		found := false
		for _, in := range btx.Inner.Inputs {
			if helpers.BytesEqual(in.SignatureScript, p.UnlockScript) {
				found = true
				break
			}
			for _, w := range in.Witness {
				if helpers.BytesEqual(w, p.UnlockScript) {
					found = true
					break
				}
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// EventFilter is a receipt log constraint: address plus an ordered list
// of topics (a zero topic is a wildcard in that position).
type EventFilter struct {
	Address gethcommon.Address
	Topics  []gethcommon.Hash
}

// EthereumPattern matches Ethereum transactions (and, when Events is set,
// their receipts).
type EthereumPattern struct {
	FromAddress           *gethcommon.Address
	ToAddress             *gethcommon.Address
	IsContractCreation    bool
	TransactionData       []byte
	TransactionDataLength int // alternative to an exact TransactionData match; 0 = unconstrained
	Events                []EventFilter
}

func (p EthereumPattern) Match(tx Transaction) bool {
	etx, ok := tx.(ethereum.Tx)
	if !ok {
		return false
	}

	if p.FromAddress != nil && etx.Inner.From != *p.FromAddress {
		return false
	}
	if p.IsContractCreation {
		if !etx.Inner.IsContractCreate {
			return false
		}
	} else if p.ToAddress != nil {
		if etx.Inner.To == nil || *etx.Inner.To != *p.ToAddress {
			return false
		}
	}
	if len(p.TransactionData) > 0 && !helpers.BytesEqual(p.TransactionData, etx.Inner.Data) {
		return false
	}
	if p.TransactionDataLength > 0 && len(etx.Inner.Data) != p.TransactionDataLength {
		return false
	}
	if len(p.Events) > 0 {
		if etx.Receipt == nil || !matchEvents(p.Events, etx.Receipt.Logs) {
			return false
		}
	}
	return true
}

func matchEvents(filters []EventFilter, logs []types.Log) bool {
	for _, f := range filters {
		if !matchEvent(f, logs) {
			return false
		}
	}
	return true
}

func matchEvent(f EventFilter, logs []types.Log) bool {
	for _, l := range logs {
		if l.Address != f.Address {
			continue
		}
		if len(f.Topics) > len(l.Topics) {
			continue
		}
		matched := true
		for i, want := range f.Topics {
			if want != (gethcommon.Hash{}) && want != l.Topics[i] {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}
