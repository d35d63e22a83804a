package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// RPCClient adapts a go-ethereum ethclient.Client into btsieve's
// EthereumRPC capability: latest-block poll, block-by-hash, and
// receipt-by-hash.
type RPCClient struct {
	inner *ethclient.Client
}

// NewRPCClient dials an Ethereum JSON-RPC endpoint.
func NewRPCClient(ctx context.Context, nodeURL string) (*RPCClient, error) {
	c, err := ethclient.DialContext(ctx, nodeURL)
	if err != nil {
		return nil, fmt.Errorf("ethereum rpc: dial %s: %w", nodeURL, err)
	}
	return &RPCClient{inner: c}, nil
}

// LatestBlock fetches the chain head.
func (c *RPCClient) LatestBlock(ctx context.Context) (Block, error) {
	header, err := c.inner.HeaderByNumber(ctx, nil)
	if err != nil {
		return Block{}, fmt.Errorf("ethereum rpc: header by number: %w", err)
	}
	return c.BlockByNumber(ctx, header.Number)
}

// BlockByHash fetches and decodes a block, including every transaction's
// sender (resolved via the signer, since go-ethereum's wire format
// doesn't carry it directly) and calldata.
func (c *RPCClient) BlockByHash(ctx context.Context, hash string) (Block, bool, error) {
	block, err := c.inner.BlockByHash(ctx, common.HexToHash(hash))
	if err != nil {
		if err == ethereum.NotFound {
			return Block{}, false, nil
		}
		return Block{}, false, fmt.Errorf("ethereum rpc: block %s: %w", hash, err)
	}
	return c.decodeBlock(block), true, nil
}

// BlockByNumber is a convenience used by LatestBlock; not part of the
// btsieve capability interface since the poller only ever re-fetches by
// hash once it has a tip.
func (c *RPCClient) BlockByNumber(ctx context.Context, number *big.Int) (Block, error) {
	block, err := c.inner.BlockByNumber(ctx, number)
	if err != nil {
		return Block{}, fmt.Errorf("ethereum rpc: block %s: %w", number, err)
	}
	return c.decodeBlock(block), nil
}

// ReceiptByHash fetches the receipt for a single transaction.
func (c *RPCClient) ReceiptByHash(ctx context.Context, txHash string) (Receipt, error) {
	r, err := c.inner.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return Receipt{}, fmt.Errorf("ethereum rpc: receipt %s: %w", txHash, err)
	}
	logs := make([]gethtypes.Log, 0, len(r.Logs))
	for _, l := range r.Logs {
		logs = append(logs, *l)
	}
	return Receipt{TxHash: r.TxHash, Logs: logs, Status: r.Status}, nil
}

func (c *RPCClient) decodeBlock(block *gethtypes.Block) Block {
	signer := gethtypes.LatestSignerForChainID(nil)

	txs := make([]Transaction, 0, len(block.Transactions()))
	for _, tx := range block.Transactions() {
		from, _ := gethtypes.Sender(signer, tx)
		txs = append(txs, Transaction{
			Hash:             tx.Hash(),
			From:             from,
			To:               tx.To(),
			Data:             tx.Data(),
			IsContractCreate: tx.To() == nil,
		})
	}

	return Block{
		HashValue:       block.Hash(),
		ParentHashValue: block.ParentHash(),
		TimestampValue:  int64(block.Time()),
		Number:          block.NumberU64(),
		Transactions:    txs,
	}
}
