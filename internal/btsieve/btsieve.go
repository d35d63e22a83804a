// Package btsieve is the blockchain sieve: a reorg- and gap-tolerant
// watcher that turns "give me transactions matching this pattern" into a
// stream of matches, using a live-tail-with-backward-walk algorithm.
//
// The poller is written against small structural interfaces (Block,
// Transaction, Source) rather than a generic type parameter so the same
// algorithm serves both the UTXO and account-based connectors without
// either one knowing about the other.
package btsieve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/klingon-exchange/cnd/pkg/logging"
)

// Block is the minimal shape the poller needs from any ledger's block type.
type Block interface {
	Hash() string
	ParentHash() string
	Timestamp() int64
}

// Transaction is the minimal shape the poller needs from any ledger's
// transaction type: enough identity to dedupe emissions.
type Transaction interface {
	Hash() string
}

// Source is the capability set a ledger connector provides: latest-block
// polling, block-by-hash lookup (possibly returning "unknown"), and
// extracting the transactions of a block.
type Source interface {
	LatestBlock(ctx context.Context) (Block, error)
	BlockByHash(ctx context.Context, hash string) (block Block, found bool, err error)
	Transactions(block Block) []Transaction
}

// Pattern decides whether a transaction (and, for account-based ledgers,
// its receipt) is of interest. An empty/unconstrained pattern matches
// everything.
type Pattern interface {
	Match(tx Transaction) bool
}

// Match is one emitted transaction, paired with the block it was found
// in. Retracted is set when a match previously delivered to the sink is
// being undone because the block that carried it was displaced by a
// reorg before it was superseded by confirmations; Block and Tx are the
// same values the original match carried, so the sink can identify which
// emission to roll back.
type Match struct {
	Block     Block
	Tx        Transaction
	Retracted bool
}

// Sink receives matches as the poller discovers them, in canonical chain
// order, exactly once per transaction.
type Sink func(Match)

// Poller runs the live-tail-with-backward-walk algorithm described for
// matching_transactions(pattern, since): it polls Source.LatestBlock on an
// interval, and whenever a block's parent is unrecognised it walks
// backward via BlockByHash until it reaches either a known ancestor or a
// block older than StartOfSwap, buffering and replaying in chain order.
type Poller struct {
	source      Source
	pattern     Pattern
	startOfSwap int64
	epsilon     int64
	interval    time.Duration
	log         *logging.Logger

	seen    map[string]Block
	emitted map[string]struct{}
	childOf map[string]string  // parent hash -> canonical child hash last recorded
	matchOf map[string][]Match // block hash -> matches emitted for that block
	tip     string
}

// NewPoller constructs a Poller. startOfSwap and epsilon are UNIX seconds;
// epsilon widens the backward-walk trigger window so a block timestamped
// fractionally before startOfSwap (clock skew between ledger nodes) is
// still walked into rather than silently skipped.
func NewPoller(source Source, pattern Pattern, startOfSwap int64, epsilon int64, interval time.Duration) *Poller {
	return &Poller{
		source:      source,
		pattern:     pattern,
		startOfSwap: startOfSwap,
		epsilon:     epsilon,
		interval:    interval,
		log:         logging.GetDefault().Component("btsieve"),
		seen:        make(map[string]Block),
		emitted:     make(map[string]struct{}),
		childOf:     make(map[string]string),
		matchOf:     make(map[string][]Match),
	}
}

// Run polls until ctx is cancelled, pushing every match to sink. A failed
// poll, including a failed parent fetch, is retried on the next tick at
// the same fixed interval, with no backoff; the tip does not advance
// until the walk completes.
func (p *Poller) Run(ctx context.Context, sink Sink) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if err := p.poll(ctx, sink); err != nil {
		p.log.Warn("initial poll failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.poll(ctx, sink); err != nil {
				p.log.Warn("poll failed, will retry", "error", err)
			}
		}
	}
}

func (p *Poller) poll(ctx context.Context, sink Sink) error {
	latest, err := p.source.LatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("btsieve: latest block: %w", err)
	}
	return p.observe(ctx, latest, sink)
}

// observe processes one newly-observed block, performing the backward
// walk and emitting matches for every block between the last known
// ancestor (or the startOfSwap boundary) and b, inclusive, in canonical
// order.
func (p *Poller) observe(ctx context.Context, b Block, sink Sink) error {
	if _, ok := p.seen[b.Hash()]; ok {
		return nil // already evaluated; nothing to do
	}

	chain := []Block{b}
	cur := b
	for {
		if _, known := p.seen[cur.ParentHash()]; known {
			break
		}
		if cur.ParentHash() == "" {
			break // genesis boundary
		}

		parent, found, err := p.source.BlockByHash(ctx, cur.ParentHash())
		if err != nil {
			return fmt.Errorf("btsieve: block by hash %s: %w", cur.ParentHash(), err)
		}
		if !found {
			break // connector has nothing older; treat as the boundary
		}

		chain = append(chain, parent)
		if parent.Timestamp() < p.startOfSwap-p.epsilon {
			break // reached a block older than start_of_swap
		}
		cur = parent
	}

	if len(chain) > 1 {
		p.log.Debug("backward walk", "from", b.Hash(), "blocks", len(chain))
	}

	for i := len(chain) - 1; i >= 0; i-- {
		blk := chain[i]
		if parent := blk.ParentHash(); parent != "" {
			if prevChild, ok := p.childOf[parent]; ok && prevChild != blk.Hash() {
				p.log.Debug("reorg displaced a recorded block", "parent", parent, "displaced", prevChild, "canonical", blk.Hash())
				p.retract(prevChild, sink)
			}
			p.childOf[parent] = blk.Hash()
		}
		p.evaluate(blk, sink)
	}
	p.tip = b.Hash()
	return nil
}

func (p *Poller) evaluate(b Block, sink Sink) {
	if _, ok := p.seen[b.Hash()]; ok {
		return
	}
	p.seen[b.Hash()] = b

	for _, tx := range p.source.Transactions(b) {
		if !p.pattern.Match(tx) {
			continue
		}
		if _, already := p.emitted[tx.Hash()]; already {
			continue
		}
		p.emitted[tx.Hash()] = struct{}{}
		m := Match{Block: b, Tx: tx}
		p.matchOf[b.Hash()] = append(p.matchOf[b.Hash()], m)
		sink(m)
	}
}

// retract undoes a block (and, transitively, whatever was recorded as
// built on top of it) that a reorg has displaced: every match the poller
// previously emitted for that branch is re-delivered to sink with
// Retracted set, and the block is forgotten so it can be re-evaluated
// from scratch if it is ever observed again.
func (p *Poller) retract(hash string, sink Sink) {
	for hash != "" {
		if _, ok := p.seen[hash]; !ok {
			return
		}
		for _, m := range p.matchOf[hash] {
			retracted := m
			retracted.Retracted = true
			sink(retracted)
			delete(p.emitted, m.Tx.Hash())
		}
		next := p.childOf[hash]
		delete(p.matchOf, hash)
		delete(p.seen, hash)
		delete(p.childOf, hash)
		hash = next
	}
}

// ErrUnknownBlock names the unknown-block condition. The connectors in
// this package do not return it: their BlockByHash reports a hash it
// cannot retrieve as found == false.
var ErrUnknownBlock = errors.New("btsieve: unknown block")
