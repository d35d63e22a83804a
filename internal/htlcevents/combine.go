package htlcevents

import (
	"context"

	"github.com/klingon-exchange/cnd/internal/bitcoin"
	"github.com/klingon-exchange/cnd/internal/ethereum"
	"github.com/klingon-exchange/cnd/pkg/logging"
)

// BitcoinFullSource is the Source a spawner actually wires for a Bitcoin
// side: it runs the broad deployment+funding search, and as soon as the
// funding outpoint is known starts the narrow spend search at that
// location, relaying both streams as one.
type BitcoinFullSource struct {
	broad     Source
	makeSpend func(loc bitcoin.OutPoint) Source
	log       *logging.Logger
}

// NewBitcoinFullSource wires the two-stage search. makeSpend constructs
// the narrow poller once the outpoint is known, scoping its pattern to
// that outpoint specifically.
func NewBitcoinFullSource(broad Source, makeSpend func(loc bitcoin.OutPoint) Source) *BitcoinFullSource {
	return &BitcoinFullSource{broad: broad, makeSpend: makeSpend, log: logging.GetDefault().Component("htlcevents-bitcoin-full")}
}

func (s *BitcoinFullSource) Events(ctx context.Context) <-chan Event {
	out := make(chan Event, 16)

	go func() {
		defer close(out)

		broadCh := s.broad.Events(ctx)
		var narrowCh <-chan Event

		for broadCh != nil || narrowCh != nil {
			select {
			case ev, ok := <-broadCh:
				if !ok {
					broadCh = nil
					continue
				}
				if deployed, isDeploy := ev.(Deployed); isDeploy && narrowCh == nil {
					if loc, ok := deployed.Location.(bitcoin.OutPoint); ok {
						narrowCh = s.makeSpend(loc).Events(ctx)
					}
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case ev, ok := <-narrowCh:
				if !ok {
					narrowCh = nil
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// EthereumFullSource chains all three Ethereum stages: deploy, fund,
// spend. makeFund/makeSpend both construct their stage's poller as soon
// as the deploy stage reports the contract address.
type EthereumFullSource struct {
	deploy    Source
	makeFund  func(addr ethereum.Address) Source
	makeSpend func(addr ethereum.Address) Source
	log       *logging.Logger
}

func NewEthereumFullSource(deploy Source, makeFund func(ethereum.Address) Source, makeSpend func(ethereum.Address) Source) *EthereumFullSource {
	return &EthereumFullSource{deploy: deploy, makeFund: makeFund, makeSpend: makeSpend, log: logging.GetDefault().Component("htlcevents-ethereum-full")}
}

func (s *EthereumFullSource) Events(ctx context.Context) <-chan Event {
	out := make(chan Event, 16)

	go func() {
		defer close(out)

		deployCh := s.deploy.Events(ctx)
		var fundCh <-chan Event
		var spendCh <-chan Event

		for deployCh != nil || fundCh != nil || spendCh != nil {
			select {
			case ev, ok := <-deployCh:
				if !ok {
					deployCh = nil
					continue
				}
				if deployed, isDeploy := ev.(Deployed); isDeploy && fundCh == nil {
					if addr, ok := deployed.Location.(ethereum.Address); ok {
						fundCh = s.makeFund(addr).Events(ctx)
						spendCh = s.makeSpend(addr).Events(ctx)
					}
				}
				if !forward(ctx, out, ev) {
					return
				}
			case ev, ok := <-fundCh:
				if !ok {
					fundCh = nil
					continue
				}
				if !forward(ctx, out, ev) {
					return
				}
			case ev, ok := <-spendCh:
				if !ok {
					spendCh = nil
					continue
				}
				if !forward(ctx, out, ev) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func forward(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
