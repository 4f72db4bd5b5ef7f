package bankledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"golang.org/x/sync/semaphore"
)

var errTxClosed = errors.New("transaction already closed")

// MemoryStore is a Store kept in process memory. Transactions are serialized:
// BeginTx blocks until the previous transaction commits or rolls back, or
// until ctx is done. Writes stay in an overlay until Commit.
type MemoryStore struct {
	node *snowflake.Node
	now  func() time.Time

	txsem *semaphore.Weighted

	mu       sync.RWMutex
	accounts map[snowflake.ID]Account
	numbers  map[string]snowflake.ID
	history  []History
}

var (
	_ Store = (*MemoryStore)(nil)
)

func NewMemoryStore(node *snowflake.Node) *MemoryStore {
	return &MemoryStore{
		node:     node,
		now:      time.Now,
		txsem:    semaphore.NewWeighted(1),
		accounts: make(map[snowflake.ID]Account),
		numbers:  make(map[string]snowflake.ID),
	}
}

func (m *MemoryStore) BeginTx(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.txsem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return m.newTx(), nil
}

func (m *MemoryStore) Accounts() AccountStore {
	return &memAccounts{store: m}
}

func (m *MemoryStore) Histories() HistoryStore {
	return &memHistories{store: m}
}

func (m *MemoryStore) newTx() *memTx {
	return &memTx{
		store:    m,
		accounts: make(map[snowflake.ID]Account),
		numbers:  make(map[string]snowflake.ID),
	}
}

// autocommit runs fn in its own transaction, for writes made outside a Tx.
func (m *MemoryStore) autocommit(ctx context.Context, fn func(tx *memTx) (int64, error)) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := m.txsem.Acquire(ctx, 1); err != nil {
		return 0, err
	}
	tx := m.newTx()
	rows, err := fn(tx)
	if err != nil {
		tx.Rollback(ctx)
		return 0, err
	}
	return rows, tx.Commit(ctx)
}

type memTx struct {
	store    *MemoryStore
	accounts map[snowflake.ID]Account
	numbers  map[string]snowflake.ID
	history  []History
	closed   bool
}

func (tx *memTx) Accounts() AccountStore {
	return &memAccounts{store: tx.store, tx: tx}
}

func (tx *memTx) Histories() HistoryStore {
	return &memHistories{store: tx.store, tx: tx}
}

func (tx *memTx) Commit(ctx context.Context) error {
	if tx.closed {
		return errTxClosed
	}
	tx.closed = true
	defer tx.store.txsem.Release(1)

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, acct := range tx.accounts {
		s.accounts[id] = acct
	}
	for n, id := range tx.numbers {
		s.numbers[n] = id
	}
	s.history = append(s.history, tx.history...)
	return nil
}

func (tx *memTx) Rollback(ctx context.Context) error {
	if tx.closed {
		return errTxClosed
	}
	tx.closed = true
	tx.accounts, tx.numbers, tx.history = nil, nil, nil
	tx.store.txsem.Release(1)
	return nil
}

func (tx *memTx) account(id snowflake.ID) (Account, bool) {
	if acct, ok := tx.accounts[id]; ok {
		return acct, true
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	acct, ok := tx.store.accounts[id]
	return acct, ok
}

func (tx *memTx) accountID(number string) (snowflake.ID, bool) {
	if id, ok := tx.numbers[number]; ok {
		return id, true
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	id, ok := tx.store.numbers[number]
	return id, ok
}

type memAccounts struct {
	store *MemoryStore
	tx    *memTx
}

func (a *memAccounts) FindByNumber(ctx context.Context, number string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.tx != nil {
		if a.tx.closed {
			return nil, errTxClosed
		}
		id, ok := a.tx.accountID(number)
		if !ok {
			return nil, ErrNotFound{Number: number}
		}
		acct, _ := a.tx.account(id)
		return &acct, nil
	}

	a.store.mu.RLock()
	defer a.store.mu.RUnlock()
	id, ok := a.store.numbers[number]
	if !ok {
		return nil, ErrNotFound{Number: number}
	}
	acct := a.store.accounts[id]
	return &acct, nil
}

func (a *memAccounts) FindByUserID(ctx context.Context, ownerID int64) ([]Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	merged := make(map[snowflake.ID]Account)
	a.store.mu.RLock()
	for id, acct := range a.store.accounts {
		merged[id] = acct
	}
	a.store.mu.RUnlock()
	if a.tx != nil {
		for id, acct := range a.tx.accounts {
			merged[id] = acct
		}
	}

	accts := []Account{}
	for _, acct := range merged {
		if acct.OwnerID == ownerID {
			accts = append(accts, acct)
		}
	}
	sort.Slice(accts, func(i, j int) bool { return accts[i].ID < accts[j].ID })
	return accts, nil
}

func (a *memAccounts) Insert(ctx context.Context, acct *Account) (int64, error) {
	if a.tx == nil {
		return a.store.autocommit(ctx, func(tx *memTx) (int64, error) {
			return (&memAccounts{store: a.store, tx: tx}).Insert(ctx, acct)
		})
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if a.tx.closed {
		return 0, errTxClosed
	}
	if acct.Number == "" {
		return 0, fmt.Errorf("%w: account number is empty", ErrDataAccess)
	}
	if acct.Balance < 0 {
		return 0, fmt.Errorf("%w: negative balance", ErrDataAccess)
	}
	if _, exists := a.tx.accountID(acct.Number); exists {
		return 0, fmt.Errorf("%w: account number %q already exists", ErrDataAccess, acct.Number)
	}

	acct.ID = a.store.node.Generate()
	acct.CreatedAt = a.store.now()
	a.tx.accounts[acct.ID] = *acct
	a.tx.numbers[acct.Number] = acct.ID
	return 1, nil
}

func (a *memAccounts) UpdateByID(ctx context.Context, acct *Account) (int64, error) {
	if a.tx == nil {
		return a.store.autocommit(ctx, func(tx *memTx) (int64, error) {
			return (&memAccounts{store: a.store, tx: tx}).UpdateByID(ctx, acct)
		})
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if a.tx.closed {
		return 0, errTxClosed
	}
	cur, ok := a.tx.account(acct.ID)
	if !ok {
		return 0, nil
	}
	if acct.Balance < 0 {
		return 0, fmt.Errorf("%w: negative balance on account %q", ErrDataAccess, cur.Number)
	}
	cur.Balance = acct.Balance
	a.tx.accounts[cur.ID] = cur
	return 1, nil
}

type memHistories struct {
	store *MemoryStore
	tx    *memTx
}

func (h *memHistories) Insert(ctx context.Context, hist *History) (int64, error) {
	if h.tx == nil {
		return h.store.autocommit(ctx, func(tx *memTx) (int64, error) {
			return (&memHistories{store: h.store, tx: tx}).Insert(ctx, hist)
		})
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if h.tx.closed {
		return 0, errTxClosed
	}
	if !hist.Valid() {
		return 0, fmt.Errorf("%w: history row violates side/amount constraint", ErrDataAccess)
	}
	for _, side := range []*HistorySide{hist.Withdrawal, hist.Deposit} {
		if side == nil {
			continue
		}
		if _, ok := h.tx.account(side.AccountID); !ok {
			return 0, fmt.Errorf("%w: history references unknown account %v", ErrDataAccess, side.AccountID)
		}
	}

	hist.ID = h.store.node.Generate()
	hist.CreatedAt = h.store.now()
	h.tx.history = append(h.tx.history, cloneHistory(*hist))
	return 1, nil
}

func (h *memHistories) FindByAccountID(ctx context.Context, accountID snowflake.ID) ([]History, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.store.mu.RLock()
	rows := append([]History{}, h.store.history...)
	h.store.mu.RUnlock()
	if h.tx != nil {
		rows = append(rows, h.tx.history...)
	}

	out := []History{}
	for _, row := range rows {
		if row.Involves(accountID) {
			out = append(out, cloneHistory(row))
		}
	}
	return out, nil
}

func cloneHistory(h History) History {
	if h.Withdrawal != nil {
		w := *h.Withdrawal
		h.Withdrawal = &w
	}
	if h.Deposit != nil {
		d := *h.Deposit
		h.Deposit = &d
	}
	return h
}
