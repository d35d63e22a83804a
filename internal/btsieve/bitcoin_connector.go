package btsieve

import (
	"context"
	"fmt"

	"github.com/klingon-exchange/cnd/internal/bitcoin"
)

// BitcoinRPC is the capability set a connector needs from an RPC client:
// enough to fetch the current tip and arbitrary historical blocks by
// hash. The implementation is the bitcoind JSON-RPC client in
// internal/bitcoin, outside this package.
type BitcoinRPC interface {
	LatestBlock(ctx context.Context) (bitcoin.Block, error)
	BlockByHash(ctx context.Context, hash string) (bitcoin.Block, bool, error)
}

// BitcoinConnector adapts a BitcoinRPC client into a btsieve Source.
type BitcoinConnector struct {
	rpc BitcoinRPC
}

func NewBitcoinConnector(rpc BitcoinRPC) *BitcoinConnector {
	return &BitcoinConnector{rpc: rpc}
}

func (c *BitcoinConnector) LatestBlock(ctx context.Context) (Block, error) {
	b, err := c.rpc.LatestBlock(ctx)
	if err != nil {
		return nil, fmt.Errorf("bitcoin connector: latest block: %w", err)
	}
	return b, nil
}

func (c *BitcoinConnector) BlockByHash(ctx context.Context, hash string) (Block, bool, error) {
	b, found, err := c.rpc.BlockByHash(ctx, hash)
	if err != nil {
		return nil, false, fmt.Errorf("bitcoin connector: block %s: %w", hash, err)
	}
	if !found {
		return nil, false, nil
	}
	return b, true, nil
}

func (c *BitcoinConnector) Transactions(block Block) []Transaction {
	b, ok := block.(bitcoin.Block)
	if !ok {
		return nil
	}
	out := make([]Transaction, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		out = append(out, bitcoin.Tx{Inner: tx})
	}
	return out
}
