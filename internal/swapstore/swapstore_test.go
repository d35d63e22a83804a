package swapstore

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klingon-exchange/cnd/internal/ledger"
	"github.com/klingon-exchange/cnd/internal/swapstate"
)

func TestInsertThenGet(t *testing.T) {
	store := New()
	state := swapstate.ActorState{SwapID: "swap-1", Role: ledger.Alice}
	require.NoError(t, store.Insert(state))

	got, err := store.Get("swap-1")
	require.NoError(t, err)
	assert.Equal(t, state, got)
}

func TestInsertTwiceFails(t *testing.T) {
	store := New()
	state := swapstate.ActorState{SwapID: "swap-1"}
	require.NoError(t, store.Insert(state))
	assert.ErrorIs(t, store.Insert(state), ErrSwapExists)
}

func TestGetMissingFails(t *testing.T) {
	store := New()
	_, err := store.Get("nope")
	assert.ErrorIs(t, err, ErrSwapNotFound)
}

func TestUpdateMissingFails(t *testing.T) {
	store := New()
	err := store.Update("nope", swapstate.ActorState{SwapID: "nope"})
	assert.ErrorIs(t, err, ErrSwapNotFound)
}

func TestUpdateReplacesEntry(t *testing.T) {
	store := New()
	require.NoError(t, store.Insert(swapstate.ActorState{SwapID: "swap-1", Role: ledger.Bob}))

	updated := swapstate.ActorState{SwapID: "swap-1", Role: ledger.Bob, Alpha: swapstate.LedgerState{Sub: swapstate.Funded}}
	require.NoError(t, store.Update("swap-1", updated))

	got, err := store.Get("swap-1")
	require.NoError(t, err)
	assert.Equal(t, swapstate.Funded, got.Alpha.Sub)
}

func TestGetByRoleRejectsWrongRole(t *testing.T) {
	store := New()
	require.NoError(t, store.Insert(swapstate.ActorState{SwapID: "swap-1", Role: ledger.Alice}))

	_, err := store.GetByRole("swap-1", ledger.Bob)
	assert.ErrorIs(t, err, ErrSwapNotFound)

	got, err := store.GetByRole("swap-1", ledger.Alice)
	require.NoError(t, err)
	assert.Equal(t, "swap-1", got.SwapID)
}

func TestRetrieveAllReturnsEverything(t *testing.T) {
	store := New()
	require.NoError(t, store.Insert(swapstate.ActorState{SwapID: "a"}))
	require.NoError(t, store.Insert(swapstate.ActorState{SwapID: "b"}))

	all := store.RetrieveAll()
	assert.Len(t, all, 2)
}

func TestConcurrentInsertsAreSerialised(t *testing.T) {
	store := New()
	var wg sync.WaitGroup
	ids := []string{"x", "y", "z", "w"}
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_ = store.Insert(swapstate.ActorState{SwapID: id})
		}(id)
	}
	wg.Wait()
	assert.Len(t, store.RetrieveAll(), len(ids))
}
