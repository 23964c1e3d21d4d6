package store

import (
	"context"
	"sort"
	"sync"

	"github.com/elementsproject/holdinvoice/holdstate"
)

// MemStore is an in-memory Store. It loses all states on restart and is
// meant for tests.
type MemStore struct {
	sync.RWMutex
	entries map[string]Entry
	errReturn error
}

func NewMemStore() *MemStore {
	return &MemStore{entries: map[string]Entry{}}
}

func (m *MemStore) Create(ctx context.Context, paymentHash string, state holdstate.State) error {
	m.Lock()
	defer m.Unlock()
	if _, ok := m.entries[paymentHash]; ok {
		return ErrAlreadyExists
	}
	m.entries[paymentHash] = Entry{PaymentHash: paymentHash, State: state}
	return nil
}

func (m *MemStore) Replace(ctx context.Context, paymentHash string, state holdstate.State, generation uint64) error {
	m.Lock()
	defer m.Unlock()
	current, ok := m.entries[paymentHash]
	if !ok {
		return ErrDoesNotExist
	}
	if current.Generation != generation {
		return ErrGenerationMismatch
	}
	m.entries[paymentHash] = Entry{
		PaymentHash: paymentHash,
		State:       state,
		Generation:  generation + 1,
	}
	return nil
}

func (m *MemStore) Get(ctx context.Context, paymentHash string) (*Entry, error) {
	m.RLock()
	defer m.RUnlock()
	if m.errReturn != nil {
		return nil, m.errReturn
	}
	entry, ok := m.entries[paymentHash]
	if !ok {
		return nil, ErrDoesNotExist
	}
	return &entry, nil
}

func (m *MemStore) List(ctx context.Context) ([]*Entry, error) {
	m.RLock()
	defer m.RUnlock()
	if m.errReturn != nil {
		return nil, m.errReturn
	}
	entries := make([]*Entry, 0, len(m.entries))
	for _, v := range m.entries {
		entry := v
		entries = append(entries, &entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].PaymentHash < entries[j].PaymentHash
	})
	return entries, nil
}

// SetErr makes Get and List fail with err until it is reset with nil.
func (m *MemStore) SetErr(err error) {
	m.Lock()
	defer m.Unlock()
	m.errReturn = err
}
