/*
store.go - Collaborator interfaces consumed by the core

PURPOSE:
  Defines the boundary between the recomputation core and persistence.
  The core only reads through these interfaces; it never writes its own
  state anywhere.

KEY INTERFACES:
  TransactionSource: Period/kind/actor-filtered transactions, ascending by time
  TierSource:        Current multiplier table as a snapshot
  ActorDirectory:    Display names for actors
  TransactionStore:  Writes made by the admission collaborator

ORDERING CONTRACT:
  LoadTransactions MUST return rows ascending by Timestamp, ties broken by
  insertion order. The engine re-checks the order and rejects violations.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - recompute.go: Consumes the read interfaces
  - admission.go: Builds the rows TransactionStore persists
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// READ SIDE
// =============================================================================

type TransactionFilter struct {
	Period  Period
	Kind    ActorKind // nil = every kind
	ActorID *ActorID  // nil = every actor
	Partner *PartnerID
}

// TransactionSource returns active transactions with a resolvable actor,
// joined with each partner's builder flag, ordered ascending by timestamp.
type TransactionSource interface {
	LoadTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
}

// TierSource returns the current tier table. Callers treat the result as an
// immutable snapshot for the duration of one run.
type TierSource interface {
	LoadTiers(ctx context.Context) (TierTable, error)
}

// ActorInfo is the directory record of one office or professional.
type ActorInfo struct {
	ID        ActorID
	Name      string
	TradeName string
}

// ActorDirectory resolves display names. Missing IDs are simply absent.
type ActorDirectory interface {
	ActorNames(ctx context.Context, kind ActorKind, ids []ActorID) (map[ActorID]ActorInfo, error)
}

// =============================================================================
// WRITE SIDE
// =============================================================================

// ChangeAction identifies an edit-log entry.
type ChangeAction string

const (
	ChangeEdit   ChangeAction = "edit"
	ChangeDelete ChangeAction = "delete"
)

// ChangeLogEntry records one edit or delete with before/after snapshots.
type ChangeLogEntry struct {
	ID            string
	TransactionID TransactionID
	Action        ChangeAction
	Before        string // JSON
	After         string // JSON, empty for deletes
	UserID        PartnerID
	UserName      string
	At            time.Time
}

// TransactionStore persists admitted transactions.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx Transaction) error
	GetTransaction(ctx context.Context, id TransactionID) (*Transaction, error)
	UpdateTransaction(ctx context.Context, tx Transaction, log ChangeLogEntry) error
	DeleteTransaction(ctx context.Context, id TransactionID, log ChangeLogEntry) error
}
