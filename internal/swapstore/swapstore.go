// Package swapstore is the process-wide SwapId -> ActorState mapping:
// insert once at spawn time, update as the state machine advances,
// retrieve by id or role, list everything. Recovery across restarts is
// out of scope here, unlike the teacher's sqlite-backed swap persistence
// this package is adapted from: a fresh process always starts empty.
package swapstore

import (
	"errors"
	"sync"

	"github.com/klingon-exchange/cnd/internal/ledger"
	"github.com/klingon-exchange/cnd/internal/swapstate"
)

// ErrSwapNotFound is returned by Get/Update when no entry exists for the id.
var ErrSwapNotFound = errors.New("swapstore: swap not found")

// ErrSwapExists is returned by Insert when the id is already present.
var ErrSwapExists = errors.New("swapstore: swap already exists")

// Store is a concurrency-safe SwapId -> ActorState map. Readers never
// observe a torn state: every entry is replaced wholesale under the same
// lock that guards the map itself, never mutated in place.
type Store struct {
	mu      sync.RWMutex
	entries map[string]swapstate.ActorState
}

// New constructs an empty Store.
func New() *Store {
	return &Store{entries: make(map[string]swapstate.ActorState)}
}

// Insert adds a brand new entry. Called by the spawner before it submits
// the swap's machine to the task executor, so a query immediately after
// POST /swaps can already observe Proposed or Accepted.
func (s *Store) Insert(state swapstate.ActorState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[state.SwapID]; exists {
		return ErrSwapExists
	}
	s.entries[state.SwapID] = state
	return nil
}

// Update replaces the entry for id wholesale with the supplied snapshot,
// the shape every Machine.Updates() value arrives in.
func (s *Store) Update(id string, state swapstate.ActorState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[id]; !exists {
		return ErrSwapNotFound
	}
	s.entries[id] = state
	return nil
}

// Get returns the entry for id.
func (s *Store) Get(id string) (swapstate.ActorState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, exists := s.entries[id]
	if !exists {
		return swapstate.ActorState{}, ErrSwapNotFound
	}
	return state, nil
}

// GetByRole returns the entry for id only if it matches role, otherwise
// ErrSwapNotFound — mirroring the type-level get_alice/get_bob split the
// original keeps so a caller can't accidentally query the wrong side's
// view of a swap it isn't party to in that role.
func (s *Store) GetByRole(id string, role ledger.Role) (swapstate.ActorState, error) {
	state, err := s.Get(id)
	if err != nil {
		return swapstate.ActorState{}, err
	}
	if state.Role != role {
		return swapstate.ActorState{}, ErrSwapNotFound
	}
	return state, nil
}

// RetrieveAll returns a snapshot of every entry, in no particular order.
func (s *Store) RetrieveAll() []swapstate.ActorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]swapstate.ActorState, 0, len(s.entries))
	for _, state := range s.entries {
		out = append(out, state)
	}
	return out
}
