// Package memory provides an in-process storage backend. It implements the
// same repository contracts as the postgres backend behind one global lock,
// with snapshot rollback standing in for database transactions. Used for
// tests and single-node evaluation runs.
package memory

import (
	"context"
	"sync"

	"pharmstock/internal/core/id"
	"pharmstock/internal/domain/billing"
	"pharmstock/internal/domain/ledger"
	"pharmstock/internal/domain/payment"
	"pharmstock/internal/domain/transport"
)

type txTokenKey struct{}

// state is everything the store holds. Snapshots deep-copy it wholesale;
// the data set of a single deployment is small enough for that to be cheap.
type state struct {
	batches    map[string]*ledger.Batch
	deductions map[id.ID][]ledger.BatchDeduction

	bills   map[string]*billing.Bill
	returns map[id.ID]*billing.Return

	transports map[id.ID]*transport.Transport

	payments map[string]*payment.Payment
	claims   map[string]payment.Claim

	sequences map[string]int64
}

func newState() *state {
	return &state{
		batches:    make(map[string]*ledger.Batch),
		deductions: make(map[id.ID][]ledger.BatchDeduction),
		bills:      make(map[string]*billing.Bill),
		returns:    make(map[id.ID]*billing.Return),
		transports: make(map[id.ID]*transport.Transport),
		payments:   make(map[string]*payment.Payment),
		claims:     make(map[string]payment.Claim),
		sequences:  make(map[string]int64),
	}
}

func (s *state) clone() *state {
	cp := newState()
	for k, b := range s.batches {
		cp.batches[k] = b.Clone()
	}
	for k, ds := range s.deductions {
		list := make([]ledger.BatchDeduction, len(ds))
		copy(list, ds)
		cp.deductions[k] = list
	}
	for k, b := range s.bills {
		cp.bills[k] = b.Clone()
	}
	for k, r := range s.returns {
		cp.returns[k] = r.Clone()
	}
	for k, t := range s.transports {
		cp.transports[k] = t.Clone()
	}
	for k, p := range s.payments {
		cp.payments[k] = p.Clone()
	}
	for k, c := range s.claims {
		cp.claims[k] = c
	}
	for k, v := range s.sequences {
		cp.sequences[k] = v
	}
	return cp
}

// Store is the shared in-memory database.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// inTx reports whether the context runs inside RunInTransaction, meaning
// the store lock is already held by this goroutine.
func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txTokenKey{}).(struct{})
	return ok
}

// acquire takes the store lock unless the context already holds it.
// The returned func releases what was taken.
func (s *Store) acquire(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// TxManager implements tx.Manager over the store: the lock is held for the
// whole transaction and a state snapshot is restored when fn fails.
type TxManager struct {
	store *Store
}

// NewTxManager creates a transaction manager for the store.
func NewTxManager(store *Store) *TxManager {
	return &TxManager{store: store}
}

// RunInTransaction executes fn atomically. Nested calls join the enclosing
// transaction, matching the postgres backend's behavior.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	snapshot := m.store.state.clone()
	err := fn(context.WithValue(ctx, txTokenKey{}, struct{}{}))
	if err != nil {
		m.store.state = snapshot
		return err
	}
	return nil
}

// ReadOnly executes fn under the lock without snapshotting.
func (m *TxManager) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	m.store.mu.Lock()
	defer m.store.mu.Unlock()

	return fn(context.WithValue(ctx, txTokenKey{}, struct{}{}))
}

// Sequencer implements numerator.Sequencer over the store.
type Sequencer struct {
	store *Store
}

// NewSequencer creates a sequencer for the store.
func NewSequencer(store *Store) *Sequencer {
	return &Sequencer{store: store}
}

// Next advances the named counter and returns its new value.
func (s *Sequencer) Next(ctx context.Context, key string, increment int64) (int64, error) {
	release := s.store.acquire(ctx)
	defer release()

	s.store.state.sequences[key] += increment
	return s.store.state.sequences[key], nil
}
