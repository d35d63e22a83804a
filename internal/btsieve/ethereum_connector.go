package btsieve

import (
	"context"
	"fmt"

	"github.com/klingon-exchange/cnd/internal/ethereum"
)

// EthereumRPC is the capability set a connector needs from an RPC client:
// latest-block poll, block-by-hash, and receipt-by-hash (account-based
// ledgers need the receipt for log-topic matching). A go-ethereum
// ethclient.Client wrapper is the usual implementation.
type EthereumRPC interface {
	LatestBlock(ctx context.Context) (ethereum.Block, error)
	BlockByHash(ctx context.Context, hash string) (ethereum.Block, bool, error)
	ReceiptByHash(ctx context.Context, txHash string) (ethereum.Receipt, error)
}

// EthereumConnector adapts an EthereumRPC client into a btsieve Source.
// When needReceipt is set it fetches a receipt for every transaction of
// each block it returns (one extra RPC call each); otherwise it fetches
// none.
type EthereumConnector struct {
	rpc         EthereumRPC
	needReceipt bool
}

// NewEthereumConnector constructs a connector. Set needReceipt when the
// pattern in use has an Events constraint, or when the consumer reads the
// receipt, since the (transaction, receipt) pair must be emitted
// atomically.
func NewEthereumConnector(rpc EthereumRPC, needReceipt bool) *EthereumConnector {
	return &EthereumConnector{rpc: rpc, needReceipt: needReceipt}
}

func (c *EthereumConnector) LatestBlock(ctx context.Context) (Block, error) {
	b, err := c.rpc.LatestBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("ethereum connector: latest block: %w", err)
	}
	return b, nil
}

func (c *EthereumConnector) BlockByHash(ctx context.Context, hash string) (Block, bool, error) {
	b, found, err := c.rpc.BlockByHash(ctx, hash)
	if err != nil {
		return nil, false, fmt.Errorf("ethereum connector: block %s: %w", hash, err)
	}
	if !found {
		return nil, false, nil
	}
	return b, true, nil
}

func (c *EthereumConnector) Transactions(block Block) []Transaction {
	b, ok := block.(ethereum.Block)
	if !ok {
		return nil
	}
	out := make([]Transaction, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		wrapped := ethereum.Tx{Inner: tx}
		if c.needReceipt {
			// best-effort: a failed receipt fetch just means this
			// transaction can never satisfy an Events constraint.
			if r, err := c.rpc.ReceiptByHash(context.Background(), tx.Hash.Hex()); err == nil {
				wrapped.Receipt = &r
			}
		}
		out = append(out, wrapped)
	}
	return out
}
