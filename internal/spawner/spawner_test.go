package spawner

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/cnd/internal/htlcevents"
	"github.com/klingon-exchange/cnd/internal/ledger"
	"github.com/klingon-exchange/cnd/internal/rfc003"
	"github.com/klingon-exchange/cnd/internal/seed"
	"github.com/klingon-exchange/cnd/internal/swapstore"
	"github.com/klingon-exchange/cnd/internal/taskrunner"
)

// sequencedSource lets a test control exactly when each event is produced,
// relative to some external signal, rather than pre-loading a buffered
// channel whose cross-source interleaving with the merge step is
// otherwise unspecified.
type sequencedSource struct {
	run func(out chan<- htlcevents.Event)
}

func (s sequencedSource) Events(ctx context.Context) <-chan htlcevents.Event {
	out := make(chan htlcevents.Event, 8)
	go func() {
		defer close(out)
		s.run(out)
	}()
	return out
}

func sampleRequest() rfc003.Request {
	return rfc003.Request{
		Headers: rfc003.Headers{
			ID:          "swap-1",
			AlphaLedger: ledger.Bitcoin,
			BetaLedger:  ledger.Ethereum,
		},
		Body: rfc003.RequestBody{AlphaExpiry: 2000, BetaExpiry: 1000},
	}
}

func TestSpawnAliceReachesFinal(t *testing.T) {
	root, err := seed.Random()
	require.NoError(t, err)
	store := swapstore.New()
	pool := taskrunner.NewPool(context.Background(), 4, 16)
	defer pool.Stop()

	secret := [32]byte{7}
	secretHash := seed.SecretHash(secret)

	// betaFunded synchronises the two independent sources so beta's Funded
	// is always merged before alpha's Redeemed, avoiding a spurious
	// AlphaRedeemedBetaNotFunded halt from unspecified merge interleaving.
	betaFunded := make(chan struct{})
	alphaSrc := sequencedSource{run: func(out chan<- htlcevents.Event) {
		out <- htlcevents.Deployed{}
		out <- htlcevents.Funded{}
		<-betaFunded
		out <- htlcevents.Redeemed{Secret: secret}
	}}
	betaSrc := sequencedSource{run: func(out chan<- htlcevents.Event) {
		out <- htlcevents.Deployed{}
		out <- htlcevents.Funded{}
		close(betaFunded)
		out <- htlcevents.Refunded{}
	}}
	createEvents := func(ctx context.Context, side ledger.Side, req rfc003.Request, accept *rfc003.AcceptBody) (htlcevents.Source, error) {
		if side == ledger.AlphaSide {
			return alphaSrc, nil
		}
		return betaSrc, nil
	}

	sp := New(root, store, pool, createEvents)
	req := sampleRequest()
	req.Body.SecretHash = hex.EncodeToString(secretHash[:])
	_, err = sp.SpawnAlice(context.Background(), "swap-1", req, &rfc003.AcceptBody{})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		state, err := store.Get("swap-1")
		return err == nil && state.Final()
	}, 2*time.Second, 10*time.Millisecond)

	final, err := store.Get("swap-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.Alice, final.Role)
}

func TestSpawnDeclinedRecordsWithoutStartingMachine(t *testing.T) {
	root, err := seed.Random()
	require.NoError(t, err)
	store := swapstore.New()
	pool := taskrunner.NewPool(context.Background(), 2, 4)
	defer pool.Stop()

	called := false
	createEvents := func(ctx context.Context, side ledger.Side, req rfc003.Request, accept *rfc003.AcceptBody) (htlcevents.Source, error) {
		called = true
		return nil, nil
	}

	sp := New(root, store, pool, createEvents)
	req := sampleRequest()
	require.NoError(t, sp.SpawnDeclined("swap-2", ledger.Bob, req, &rfc003.DeclineBody{Reason: rfc003.ReasonUnsatisfactoryRate}))

	state, err := store.Get("swap-2")
	require.NoError(t, err)
	assert.Equal(t, "swap-2", state.SwapID)
	assert.Equal(t, "declined", state.Communication.Status.String())
	assert.False(t, called)
}
