package htlcevents

import (
	"context"

	"github.com/klingon-exchange/cnd/internal/bitcoin"
	"github.com/klingon-exchange/cnd/internal/btsieve"
	"github.com/klingon-exchange/cnd/pkg/logging"
)

// BitcoinSource implements Source for the UTXO ledger family. Deployment
// and funding are the same transaction, so the broad search alone drives
// both Deployed and Funded; the narrow search starts once the funding
// outpoint is known and watches for a spend revealing either the redeem
// witness (secret) or the refund witness.
type BitcoinSource struct {
	poller    *btsieve.Poller
	toAddress string
	log       *logging.Logger
}

// NewBitcoinSource constructs a source watching for an HTLC paying
// toAddress, driven by a poller already configured with a
// BitcoinPattern{ToAddress: toAddress} anchored at start_of_swap.
func NewBitcoinSource(poller *btsieve.Poller, toAddress string) *BitcoinSource {
	return &BitcoinSource{
		poller:    poller,
		toAddress: toAddress,
		log:       logging.GetDefault().Component("htlcevents-bitcoin"),
	}
}

func (s *BitcoinSource) Events(ctx context.Context) <-chan Event {
	out := make(chan Event, 16)

	go func() {
		defer close(out)

		sink := func(m btsieve.Match) {
			btx, ok := m.Tx.(bitcoin.Tx)
			if !ok {
				return
			}
			for idx, o := range btx.Inner.Outputs {
				if o.Address == nil || o.Address.EncodeAddress() != s.toAddress {
					continue
				}
				loc := bitcoin.OutPoint{Hash: btx.Inner.Hash, Index: uint32(idx)}
				if m.Retracted {
					select {
					case out <- Retracted{Location: loc}:
					case <-ctx.Done():
						return
					}
					continue
				}
				select {
				case out <- Deployed{Location: loc}:
				case <-ctx.Done():
					return
				}
				select {
				case out <- Funded{Location: loc, Asset: bitcoin.Asset{Amount: o.Value}}:
				case <-ctx.Done():
					return
				}
			}
		}

		if err := s.poller.Run(ctx, sink); err != nil && ctx.Err() == nil {
			s.log.Warn("bitcoin funding poller stopped", "error", err)
		}
	}()

	return out
}

// SpendSource watches the narrow search once an HTLC's outpoint is known,
// classifying the spend as Redeemed (secret present in the witness) or
// Refunded (timelock path, no secret) by inspecting the spending input's
// witness stack: the standard HTLC redeem script places the 32-byte
// preimage there, the refund script does not.
type SpendSource struct {
	poller   *btsieve.Poller
	location bitcoin.OutPoint
	log      *logging.Logger
}

func NewSpendSource(poller *btsieve.Poller, location bitcoin.OutPoint) *SpendSource {
	return &SpendSource{
		poller:   poller,
		location: location,
		log:      logging.GetDefault().Component("htlcevents-bitcoin-spend"),
	}
}

func (s *SpendSource) Events(ctx context.Context) <-chan Event {
	out := make(chan Event, 4)

	go func() {
		defer close(out)
		sink := func(m btsieve.Match) {
			btx, ok := m.Tx.(bitcoin.Tx)
			if !ok {
				return
			}
			if m.Retracted {
				select {
				case out <- Retracted{Location: s.location}:
				case <-ctx.Done():
				}
				return
			}
			if secret, ok := extractSecretFromWitness(btx); ok {
				select {
				case out <- Redeemed{Location: s.location, Secret: secret}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case out <- Refunded{Location: s.location}:
			case <-ctx.Done():
			}
		}
		if err := s.poller.Run(ctx, sink); err != nil && ctx.Err() == nil {
			s.log.Warn("bitcoin spend poller stopped", "error", err)
		}
	}()

	return out
}

// extractSecretFromWitness looks for a 32-byte preimage in one of the
// spending input's witness stacks.
func extractSecretFromWitness(tx bitcoin.Tx) ([32]byte, bool) {
	for _, in := range tx.Inner.Inputs {
		for _, elem := range in.Witness {
			if len(elem) == 32 {
				var secret [32]byte
				copy(secret[:], elem)
				return secret, true
			}
		}
	}
	return [32]byte{}, false
}
