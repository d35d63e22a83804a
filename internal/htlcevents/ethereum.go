package htlcevents

import (
	"bytes"
	"context"

	gethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/klingon-exchange/cnd/internal/btsieve"
	"github.com/klingon-exchange/cnd/internal/ethereum"
	"github.com/klingon-exchange/cnd/pkg/logging"
)

// EthereumSource implements Source for an account-based ledger family.
// Deployment (contract creation) and funding (value arriving at the
// contract) are distinct transactions, so the broad search is anchored at
// start_of_swap with an IsContractCreation pattern; funding is detected by
// watching transfers to the now-known contract address.
type EthereumSource struct {
	poller       *btsieve.Poller
	expectCode   []byte // expected deployed bytecode prefix, to recognise our HTLC
	expectAmount ethereum.Asset
	log          *logging.Logger
}

func NewEthereumSource(poller *btsieve.Poller, expectCode []byte, expectAmount ethereum.Asset) *EthereumSource {
	return &EthereumSource{
		poller:       poller,
		expectCode:   expectCode,
		expectAmount: expectAmount,
		log:          logging.GetDefault().Component("htlcevents-ethereum"),
	}
}

func (s *EthereumSource) Events(ctx context.Context) <-chan Event {
	out := make(chan Event, 16)

	go func() {
		defer close(out)
		sink := func(m btsieve.Match) {
			etx, ok := m.Tx.(ethereum.Tx)
			if !ok || !etx.Inner.IsContractCreate {
				return
			}
			if len(s.expectCode) > 0 && !bytes.HasPrefix(etx.Inner.Data, s.expectCode) {
				return
			}
			loc := ethereum.Address{Address: contractAddressFromLog(etx)}
			if m.Retracted {
				select {
				case out <- Retracted{Location: loc}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case out <- Deployed{Location: loc}:
			case <-ctx.Done():
				return
			}
		}
		if err := s.poller.Run(ctx, sink); err != nil && ctx.Err() == nil {
			s.log.Warn("ethereum deploy poller stopped", "error", err)
		}
	}()

	return out
}

// FundingSource watches for the funding transfer once the contract
// address is known: every transaction its poller matches becomes a
// Funded event carrying the expected asset. It does not read the
// transferred value or inspect receipt logs, so ERC-20 Transfer events
// are not recognised as such.
type FundingSource struct {
	poller  *btsieve.Poller
	address ethereum.Address
	asset   ethereum.Asset
	log     *logging.Logger
}

func NewFundingSource(poller *btsieve.Poller, address ethereum.Address, asset ethereum.Asset) *FundingSource {
	return &FundingSource{poller: poller, address: address, asset: asset, log: logging.GetDefault().Component("htlcevents-ethereum-fund")}
}

func (s *FundingSource) Events(ctx context.Context) <-chan Event {
	out := make(chan Event, 4)
	go func() {
		defer close(out)
		sink := func(m btsieve.Match) {
			if m.Retracted {
				select {
				case out <- Retracted{Location: s.address}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case out <- Funded{Location: s.address, Asset: s.asset}:
			case <-ctx.Done():
			}
		}
		if err := s.poller.Run(ctx, sink); err != nil && ctx.Err() == nil {
			s.log.Warn("ethereum funding poller stopped", "error", err)
		}
	}()
	return out
}

// EthereumSpendSource watches the narrow search once the contract address
// is known, classifying calls by calldata selector: a redeem call carries
// the secret as an argument, a refund call does not.
type EthereumSpendSource struct {
	poller        *btsieve.Poller
	address       ethereum.Address
	redeemSelector [4]byte
	log           *logging.Logger
}

func NewEthereumSpendSource(poller *btsieve.Poller, address ethereum.Address, redeemSelector [4]byte) *EthereumSpendSource {
	return &EthereumSpendSource{poller: poller, address: address, redeemSelector: redeemSelector, log: logging.GetDefault().Component("htlcevents-ethereum-spend")}
}

func (s *EthereumSpendSource) Events(ctx context.Context) <-chan Event {
	out := make(chan Event, 4)
	go func() {
		defer close(out)
		sink := func(m btsieve.Match) {
			etx, ok := m.Tx.(ethereum.Tx)
			if !ok {
				return
			}
			if m.Retracted {
				select {
				case out <- Retracted{Location: s.address}:
				case <-ctx.Done():
				}
				return
			}
			if secret, ok := extractSecretFromCalldata(etx, s.redeemSelector); ok {
				select {
				case out <- Redeemed{Location: s.address, Secret: secret}:
				case <-ctx.Done():
				}
				return
			}
			select {
			case out <- Refunded{Location: s.address}:
			case <-ctx.Done():
			}
		}
		if err := s.poller.Run(ctx, sink); err != nil && ctx.Err() == nil {
			s.log.Warn("ethereum spend poller stopped", "error", err)
		}
	}()
	return out
}

// extractSecretFromCalldata expects calldata shaped as a 4-byte selector
// followed by a single 32-byte secret argument, the minimal HTLC redeem
// call signature (redeem(bytes32 secret)).
func extractSecretFromCalldata(tx ethereum.Tx, redeemSelector [4]byte) ([32]byte, bool) {
	data := tx.Inner.Data
	if len(data) < 4+32 || [4]byte(data[:4]) != redeemSelector {
		return [32]byte{}, false
	}
	var secret [32]byte
	copy(secret[:], data[4:36])
	return secret, true
}

// contractAddressFromLog derives the created contract's address. In a
// real connector this comes from the transaction's receipt
// (ContractAddress field); here it is read off the receipt carried
// alongside the transaction by the connector.
func contractAddressFromLog(tx ethereum.Tx) gethcommon.Address {
	if tx.Receipt != nil && len(tx.Receipt.Logs) > 0 {
		return tx.Receipt.Logs[0].Address
	}
	return gethcommon.Address{}
}
