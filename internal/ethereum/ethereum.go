// Package ethereum provides the account-based-family ledger types: an
// HTLC lives at a contract Address, deployment and funding are distinct
// events, and redemption is witnessed by transaction calldata plus a
// receipt log.
package ethereum

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/klingon-exchange/cnd/internal/ledger"
)

// Address is the on-chain location of a deployed HTLC contract.
type Address struct {
	common.Address
}

func (a Address) Kind() ledger.Kind { return ledger.Ethereum }
func (a Address) String() string    { return a.Address.Hex() }

// Identity is an Ethereum redeem or refund address.
type Identity struct {
	Address common.Address
}

func (i Identity) Kind() ledger.Kind { return ledger.Ethereum }
func (i Identity) String() string    { return i.Address.Hex() }
func (i Identity) Bytes() []byte     { return i.Address.Bytes() }

// Asset is an amount of wei, optionally of an ERC-20 token rather than
// the chain's native coin (Token is the zero address for native).
type Asset struct {
	Token  common.Address
	Amount *big.Int
}

func (a Asset) Kind() ledger.Kind { return ledger.Ethereum }
func (a Asset) String() string {
	if a.Token == (common.Address{}) {
		return fmt.Sprintf("%s wei (native)", a.Amount)
	}
	return fmt.Sprintf("%s of token %s", a.Amount, a.Token.Hex())
}

// Transaction is the subset of a decoded Ethereum transaction btsieve and
// the HTLC event adapters need.
type Transaction struct {
	Hash             common.Hash
	From             common.Address
	To               *common.Address // nil for contract creation
	Data             []byte
	IsContractCreate bool
}

// Receipt carries the logs produced by a transaction, used for log-topic
// matching against a TransactionPattern's Events constraint.
type Receipt struct {
	TxHash common.Hash
	Logs   []types.Log
	Status uint64
}

// Tx adapts a Transaction (with its receipt, fetched lazily by the
// connector) to btsieve's minimal Transaction interface.
type Tx struct {
	Inner   Transaction
	Receipt *Receipt
}

func (t Tx) Hash() string { return t.Inner.Hash.Hex() }

// Block is the subset of an Ethereum block btsieve's poller needs.
type Block struct {
	HashValue       common.Hash
	ParentHashValue common.Hash
	TimestampValue  int64
	Number          uint64
	Transactions    []Transaction
}

func (b Block) Hash() string       { return b.HashValue.Hex() }
func (b Block) ParentHash() string { return b.ParentHashValue.Hex() }
func (b Block) Timestamp() int64   { return b.TimestampValue }
