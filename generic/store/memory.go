// Package store provides in-memory implementations of the generic collaborators.
package store

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/warp/loyalty-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements TransactionSource, TierSource, ActorDirectory and
// TransactionStore. Transactions are kept in one slice ordered by timestamp,
// ties in insertion order, which is the ordering contract LoadTransactions owes
// the engine.
type Memory struct {
	mu           sync.RWMutex
	transactions []generic.Transaction
	inactive     map[generic.TransactionID]bool
	actors       map[string]map[generic.ActorID]generic.ActorInfo
	tiers        []generic.MultiplierTier
	tierVersion  int
	changeLog    []generic.ChangeLogEntry
}

func NewMemory() *Memory {
	return &Memory{
		inactive: make(map[generic.TransactionID]bool),
		actors:   make(map[string]map[generic.ActorID]generic.ActorInfo),
	}
}

// Append adds transactions, keeping timestamp order.
func (m *Memory) Append(txs ...generic.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range txs {
		m.insertLocked(tx)
	}
}

func (m *Memory) insertLocked(tx generic.Transaction) {
	// Binary search for insertion point after any equal timestamps
	i := sort.Search(len(m.transactions), func(i int) bool {
		return m.transactions[i].Timestamp.After(tx.Timestamp)
	})
	m.transactions = append(m.transactions, generic.Transaction{})
	copy(m.transactions[i+1:], m.transactions[i:])
	m.transactions[i] = tx
}

// PutActor registers an actor's display record.
func (m *Memory) PutActor(kind generic.ActorKind, info generic.ActorInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.actors[kind.KindID()]
	if !ok {
		byID = make(map[generic.ActorID]generic.ActorInfo)
		m.actors[kind.KindID()] = byID
	}
	byID[info.ID] = info
}

// SetTiers replaces the tier table and bumps its version.
func (m *Memory) SetTiers(tiers []generic.MultiplierTier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers = append([]generic.MultiplierTier(nil), tiers...)
	m.tierVersion++
}

// ChangeLog returns a copy of the edit/delete log.
func (m *Memory) ChangeLog() []generic.ChangeLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]generic.ChangeLogEntry(nil), m.changeLog...)
}

// =============================================================================
// READ SIDE
// =============================================================================

func (m *Memory) LoadTransactions(ctx context.Context, filter generic.TransactionFilter) ([]generic.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []generic.Transaction
	for _, tx := range m.transactions {
		if m.inactive[tx.ID] || tx.ActorID == "" {
			continue
		}
		if !filter.Period.Contains(tx.Timestamp) {
			continue
		}
		if filter.Kind != nil && (tx.ActorKind == nil || tx.ActorKind.KindID() != filter.Kind.KindID()) {
			continue
		}
		if filter.ActorID != nil && tx.ActorID != *filter.ActorID {
			continue
		}
		if filter.Partner != nil && tx.PartnerID != *filter.Partner {
			continue
		}
		result = append(result, tx)
	}
	return result, nil
}

func (m *Memory) LoadTiers(ctx context.Context) (generic.TierTable, error) {
	if err := ctx.Err(); err != nil {
		return generic.TierTable{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return generic.NewTierTable("v"+strconv.Itoa(m.tierVersion), m.tiers), nil
}

func (m *Memory) ActorNames(_ context.Context, kind generic.ActorKind, ids []generic.ActorID) (map[generic.ActorID]generic.ActorInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[generic.ActorID]generic.ActorInfo, len(ids))
	if kind == nil {
		return result, nil
	}
	byID := m.actors[kind.KindID()]
	for _, id := range ids {
		if info, ok := byID[id]; ok {
			result[id] = info
		}
	}
	return result, nil
}

// =============================================================================
// WRITE SIDE
// =============================================================================

func (m *Memory) CreateTransaction(_ context.Context, tx generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(tx)
	return nil
}

func (m *Memory) GetTransaction(_ context.Context, id generic.TransactionID) (*generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i := m.indexLocked(id)
	if i < 0 || m.inactive[id] {
		return nil, generic.ErrTransactionNotFound
	}
	tx := m.transactions[i]
	return &tx, nil
}

func (m *Memory) UpdateTransaction(_ context.Context, tx generic.Transaction, log generic.ChangeLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexLocked(tx.ID)
	if i < 0 || m.inactive[tx.ID] {
		return generic.ErrTransactionNotFound
	}
	if m.transactions[i].Timestamp.Equal(tx.Timestamp) {
		m.transactions[i] = tx
	} else {
		m.transactions = append(m.transactions[:i], m.transactions[i+1:]...)
		m.insertLocked(tx)
	}
	m.changeLog = append(m.changeLog, log)
	return nil
}

// DeleteTransaction soft-deletes: the row stays but is no longer loaded.
func (m *Memory) DeleteTransaction(_ context.Context, id generic.TransactionID, log generic.ChangeLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexLocked(id) < 0 || m.inactive[id] {
		return generic.ErrTransactionNotFound
	}
	m.inactive[id] = true
	m.changeLog = append(m.changeLog, log)
	return nil
}

func (m *Memory) indexLocked(id generic.TransactionID) int {
	for i := range m.transactions {
		if m.transactions[i].ID == id {
			return i
		}
	}
	return -1
}

// Compile-time interface checks
var (
	_ generic.TransactionSource = (*Memory)(nil)
	_ generic.TierSource        = (*Memory)(nil)
	_ generic.ActorDirectory    = (*Memory)(nil)
	_ generic.TransactionStore  = (*Memory)(nil)
)
