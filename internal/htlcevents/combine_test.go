package htlcevents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/cnd/internal/bitcoin"
	"github.com/klingon-exchange/cnd/internal/ethereum"
)

type fakeSource struct {
	events []Event
}

func (f fakeSource) Events(ctx context.Context) <-chan Event {
	out := make(chan Event, len(f.events))
	for _, ev := range f.events {
		out <- ev
	}
	close(out)
	return out
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var got []Event
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for events")
		}
	}
}

func TestBitcoinFullSourceStartsNarrowOnlyAfterDeployed(t *testing.T) {
	loc := bitcoin.OutPoint{Index: 3}

	var spendRequested bool
	makeSpend := func(got bitcoin.OutPoint) Source {
		spendRequested = true
		assert.Equal(t, loc, got)
		return fakeSource{events: []Event{Refunded{Location: got}}}
	}

	full := NewBitcoinFullSource(
		fakeSource{events: []Event{
			Deployed{Location: loc},
			Funded{Location: loc, Asset: bitcoin.Asset{}},
		}},
		makeSpend,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got := collect(t, full.Events(ctx))
	require.True(t, spendRequested)
	require.Len(t, got, 3)
	assert.IsType(t, Deployed{}, got[0])
	assert.IsType(t, Funded{}, got[1])
	assert.IsType(t, Refunded{}, got[2])
}

func TestBitcoinFullSourceNeverStartsNarrowWithoutDeployed(t *testing.T) {
	makeSpend := func(bitcoin.OutPoint) Source {
		t.Fatal("narrow search must not start without a Deployed event")
		return nil
	}

	full := NewBitcoinFullSource(fakeSource{}, makeSpend)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got := collect(t, full.Events(ctx))
	assert.Empty(t, got)
}

func TestEthereumFullSourceChainsAllThreeStages(t *testing.T) {
	addr := ethereum.Address{}

	var fundRequested, spendRequested bool
	makeFund := func(got ethereum.Address) Source {
		fundRequested = true
		return fakeSource{events: []Event{Funded{Location: got}}}
	}
	makeSpend := func(got ethereum.Address) Source {
		spendRequested = true
		return fakeSource{events: []Event{Redeemed{Location: got}}}
	}

	full := NewEthereumFullSource(
		fakeSource{events: []Event{Deployed{Location: addr}}},
		makeFund,
		makeSpend,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got := collect(t, full.Events(ctx))
	require.True(t, fundRequested)
	require.True(t, spendRequested)
	require.Len(t, got, 3)

	var sawDeployed, sawFunded, sawRedeemed bool
	for _, ev := range got {
		switch ev.(type) {
		case Deployed:
			sawDeployed = true
		case Funded:
			sawFunded = true
		case Redeemed:
			sawRedeemed = true
		}
	}
	assert.True(t, sawDeployed)
	assert.True(t, sawFunded)
	assert.True(t, sawRedeemed)
}
