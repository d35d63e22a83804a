// Package bitcoin provides the UTXO-family ledger types: an HTLC lives at
// an OutPoint, identities are addresses, deployment and funding collapse
// into the same transaction.
package bitcoin

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/klingon-exchange/cnd/internal/ledger"
)

// Network identifies which btcsuite chain params a connector talks to.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
	Regtest Network = "regtest"
)

// Params resolves a Network to btcsuite chain parameters.
func (n Network) Params() (*chaincfg.Params, error) {
	switch n {
	case Mainnet:
		return &chaincfg.MainNetParams, nil
	case Testnet:
		return &chaincfg.TestNet3Params, nil
	case Regtest:
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("bitcoin: unknown network %q", n)
	}
}

// OutPoint is the on-chain location of a Bitcoin HTLC: the funding
// transaction's hash and the output index holding the HTLC script.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

func (o OutPoint) Kind() ledger.Kind { return ledger.Bitcoin }
func (o OutPoint) String() string    { return fmt.Sprintf("%s:%d", o.Hash, o.Index) }

// Identity is a Bitcoin redeem or refund address.
type Identity struct {
	Address btcutil.Address
}

func (i Identity) Kind() ledger.Kind { return ledger.Bitcoin }
func (i Identity) String() string    { return i.Address.EncodeAddress() }
func (i Identity) Bytes() []byte     { return i.Address.ScriptAddress() }

// Asset is an amount of satoshis.
type Asset struct {
	Amount btcutil.Amount
}

func (a Asset) Kind() ledger.Kind { return ledger.Bitcoin }
func (a Asset) String() string    { return a.Amount.String() }

// Transaction is the subset of a decoded Bitcoin transaction btsieve and
// the HTLC event adapters need.
type Transaction struct {
	Hash    chainhash.Hash
	Outputs []Output
	Inputs  []Input
}

// Output is one output of a transaction, with its address resolved when
// the script is a recognised pay-to-address form.
type Output struct {
	Index   uint32
	Value   btcutil.Amount
	Script  []byte
	Address btcutil.Address // nil if the script is not a standard pay-to-address form
}

// Input is one input of a transaction: the outpoint it spends and its
// unlocking script (used to match refund/redeem spends of a known HTLC).
type Input struct {
	PreviousOutPoint OutPoint
	SignatureScript  []byte
	Witness          [][]byte
}

// Tx adapts a Transaction to btsieve's minimal Transaction interface
// (a bare Hash() string) while keeping the full decoded transaction
// available to callers that need more, such as the HTLC event adapters
// extracting a witness-embedded secret.
type Tx struct {
	Inner Transaction
}

func (t Tx) Hash() string { return t.Inner.Hash.String() }

// Block is the subset of a Bitcoin block btsieve's poller needs.
type Block struct {
	HashValue       chainhash.Hash
	ParentHashValue chainhash.Hash
	TimestampValue  int64
	Height          uint64
	Transactions    []Transaction
}

func (b Block) Hash() string       { return b.HashValue.String() }
func (b Block) ParentHash() string { return b.ParentHashValue.String() }
func (b Block) Timestamp() int64   { return b.TimestampValue }
