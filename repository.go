package bankledger

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// AccountStore persists Account rows. Implementations wrap constraint and
// data access failures with ErrDataAccess.
type AccountStore interface {
	// FindByNumber returns ErrNotFound when no account carries the number.
	// Inside a Tx the returned row stays locked against other writers until
	// the Tx ends.
	FindByNumber(ctx context.Context, number string) (*Account, error)
	FindByUserID(ctx context.Context, ownerID int64) ([]Account, error)
	// Insert assigns ID and CreatedAt on acct.
	Insert(ctx context.Context, acct *Account) (int64, error)
	// UpdateByID writes acct.Balance to the row identified by acct.ID.
	UpdateByID(ctx context.Context, acct *Account) (int64, error)
}

// NumberLocker is implemented by transactional account stores that can lock
// several rows in a fixed order. Numbers that do not exist are ignored.
type NumberLocker interface {
	LockNumbers(ctx context.Context, numbers ...string) error
}

// HistoryStore is insert-only; rows are never updated or deleted.
type HistoryStore interface {
	// Insert assigns ID and CreatedAt on h.
	Insert(ctx context.Context, h *History) (int64, error)
	FindByAccountID(ctx context.Context, accountID snowflake.ID) ([]History, error)
}

// Tx scopes account and history writes to a single commit or rollback.
type Tx interface {
	Accounts() AccountStore
	Histories() HistoryStore
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
	// Accounts and Histories operate outside any Tx.
	Accounts() AccountStore
	Histories() HistoryStore
}
