package bankledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arhyth/bankledger"
)

func newMemoryStore(t *testing.T) *bankledger.MemoryStore {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.Nil(t, err)
	return bankledger.NewMemoryStore(node)
}

func TestMemoryStoreAccounts(t *testing.T) {
	ctx := context.Background()

	t.Run("Insert assigns ID and creation time", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		store := newMemoryStore(tt)

		acct := &bankledger.Account{Number: "A100", Password: "1234", Balance: 500, OwnerID: 7}
		rows, err := store.Accounts().Insert(ctx, acct)
		reqrd.Nil(err)
		as.Equal(int64(1), rows)
		as.NotZero(acct.ID)
		as.False(acct.CreatedAt.IsZero())

		found, err := store.Accounts().FindByNumber(ctx, "A100")
		reqrd.Nil(err)
		as.Equal(*acct, *found)
	})

	t.Run("Insert enforces constraints with ErrDataAccess", func(tt *testing.T) {
		as := assert.New(tt)
		store := newMemoryStore(tt)
		_, err := store.Accounts().Insert(ctx, &bankledger.Account{Number: "A100", Balance: 1})
		as.Nil(err)

		_, err = store.Accounts().Insert(ctx, &bankledger.Account{Number: "A100", Balance: 1})
		as.ErrorIs(err, bankledger.ErrDataAccess)
		_, err = store.Accounts().Insert(ctx, &bankledger.Account{Number: "", Balance: 1})
		as.ErrorIs(err, bankledger.ErrDataAccess)
		_, err = store.Accounts().Insert(ctx, &bankledger.Account{Number: "A101", Balance: -1})
		as.ErrorIs(err, bankledger.ErrDataAccess)
	})

	t.Run("FindByNumber returns not found", func(tt *testing.T) {
		as := assert.New(tt)
		store := newMemoryStore(tt)
		acct, err := store.Accounts().FindByNumber(ctx, "nope")
		as.Nil(acct)
		as.ErrorAs(err, &bankledger.ErrNotFound{})
	})

	t.Run("UpdateByID on an unknown account affects no rows", func(tt *testing.T) {
		as := assert.New(tt)
		store := newMemoryStore(tt)
		rows, err := store.Accounts().UpdateByID(ctx, &bankledger.Account{ID: snowflake.ParseInt64(99), Balance: 10})
		as.Nil(err)
		as.Equal(int64(0), rows)
	})

	t.Run("UpdateByID refuses a negative balance", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		store := newMemoryStore(tt)
		acct := &bankledger.Account{Number: "A100", Balance: 10}
		_, err := store.Accounts().Insert(ctx, acct)
		reqrd.Nil(err)

		acct.Balance = -1
		_, err = store.Accounts().UpdateByID(ctx, acct)
		as.ErrorIs(err, bankledger.ErrDataAccess)
	})

	t.Run("FindByUserID filters and orders by ID", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		store := newMemoryStore(tt)
		for _, n := range []string{"B", "A", "C"} {
			_, err := store.Accounts().Insert(ctx, &bankledger.Account{Number: n, Balance: 1, OwnerID: 7})
			reqrd.Nil(err)
		}
		_, err := store.Accounts().Insert(ctx, &bankledger.Account{Number: "D", Balance: 1, OwnerID: 8})
		reqrd.Nil(err)

		accts, err := store.Accounts().FindByUserID(ctx, 7)
		reqrd.Nil(err)
		reqrd.Len(accts, 3)
		as.Equal([]string{"B", "A", "C"}, []string{accts[0].Number, accts[1].Number, accts[2].Number})

		none, err := store.Accounts().FindByUserID(ctx, 1)
		reqrd.Nil(err)
		as.NotNil(none)
	})

	t.Run("honors a cancelled context", func(tt *testing.T) {
		as := assert.New(tt)
		store := newMemoryStore(tt)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.Accounts().FindByNumber(cctx, "A100")
		as.ErrorIs(err, context.Canceled)
		_, err = store.BeginTx(cctx)
		as.ErrorIs(err, context.Canceled)
	})
}

func TestMemoryStoreTx(t *testing.T) {
	ctx := context.Background()

	t.Run("writes are invisible until commit", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		store := newMemoryStore(tt)
		acct := &bankledger.Account{Number: "A100", Balance: 500}
		_, err := store.Accounts().Insert(ctx, acct)
		reqrd.Nil(err)

		tx, err := store.BeginTx(ctx)
		reqrd.Nil(err)
		inTx, err := tx.Accounts().FindByNumber(ctx, "A100")
		reqrd.Nil(err)
		inTx.Balance = 100
		rows, err := tx.Accounts().UpdateByID(ctx, inTx)
		reqrd.Nil(err)
		as.Equal(int64(1), rows)

		seen, err := tx.Accounts().FindByNumber(ctx, "A100")
		reqrd.Nil(err)
		as.Equal(int64(100), seen.Balance)
		outside, err := store.Accounts().FindByNumber(ctx, "A100")
		reqrd.Nil(err)
		as.Equal(int64(500), outside.Balance)

		reqrd.Nil(tx.Commit(ctx))
		after, err := store.Accounts().FindByNumber(ctx, "A100")
		reqrd.Nil(err)
		as.Equal(int64(100), after.Balance)
	})

	t.Run("rollback discards writes", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		store := newMemoryStore(tt)

		tx, err := store.BeginTx(ctx)
		reqrd.Nil(err)
		acct := &bankledger.Account{Number: "A100", Balance: 500}
		_, err = tx.Accounts().Insert(ctx, acct)
		reqrd.Nil(err)
		h, err := bankledger.NewHistory(10, nil, &bankledger.HistorySide{AccountID: acct.ID, BalanceAfter: 510})
		reqrd.Nil(err)
		_, err = tx.Histories().Insert(ctx, h)
		reqrd.Nil(err)
		reqrd.Nil(tx.Rollback(ctx))

		_, err = store.Accounts().FindByNumber(ctx, "A100")
		as.ErrorAs(err, &bankledger.ErrNotFound{})
		hist, err := store.Histories().FindByAccountID(ctx, acct.ID)
		reqrd.Nil(err)
		as.Empty(hist)
	})

	t.Run("closed transactions refuse further use", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		store := newMemoryStore(tt)
		tx, err := store.BeginTx(ctx)
		reqrd.Nil(err)
		reqrd.Nil(tx.Commit(ctx))

		as.NotNil(tx.Commit(ctx))
		as.NotNil(tx.Rollback(ctx))
		_, err = tx.Accounts().FindByNumber(ctx, "A100")
		as.NotNil(err)
	})

	t.Run("transactions are serialized", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		store := newMemoryStore(tt)
		first, err := store.BeginTx(ctx)
		reqrd.Nil(err)

		began := make(chan struct{})
		go func() {
			second, err := store.BeginTx(ctx)
			if err == nil {
				second.Rollback(ctx)
			}
			close(began)
		}()

		select {
		case <-began:
			as.Fail("second transaction began while the first was open")
		case <-time.After(50 * time.Millisecond):
		}
		reqrd.Nil(first.Rollback(ctx))
		<-began
	})

	t.Run("waiting for a transaction honors the context", func(tt *testing.T) {
		as := assert.New(tt)
		reqrd := require.New(tt)
		store := newMemoryStore(tt)
		first, err := store.BeginTx(ctx)
		reqrd.Nil(err)

		wctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		second, err := store.BeginTx(wctx)
		as.Nil(second)
		as.ErrorIs(err, context.DeadlineExceeded)

		_, err = store.Accounts().Insert(wctx, &bankledger.Account{Number: "A100", Balance: 500})
		as.ErrorIs(err, context.DeadlineExceeded)

		reqrd.Nil(first.Rollback(ctx))
		third, err := store.BeginTx(ctx)
		reqrd.Nil(err)
		reqrd.Nil(third.Rollback(ctx))
	})
}

func TestMemoryStoreHistories(t *testing.T) {
	ctx := context.Background()
	as := assert.New(t)
	reqrd := require.New(t)
	store := newMemoryStore(t)

	a := &bankledger.Account{Number: "A100", Balance: 500}
	b := &bankledger.Account{Number: "A200", Balance: 300}
	_, err := store.Accounts().Insert(ctx, a)
	reqrd.Nil(err)
	_, err = store.Accounts().Insert(ctx, b)
	reqrd.Nil(err)

	_, err = store.Histories().Insert(ctx, &bankledger.History{Amount: 10})
	as.ErrorIs(err, bankledger.ErrDataAccess)

	orphan, err := bankledger.NewHistory(10, &bankledger.HistorySide{AccountID: snowflake.ParseInt64(1)}, nil)
	reqrd.Nil(err)
	_, err = store.Histories().Insert(ctx, orphan)
	as.ErrorIs(err, bankledger.ErrDataAccess)

	tr, err := bankledger.NewHistory(100,
		&bankledger.HistorySide{AccountID: a.ID, BalanceAfter: 400},
		&bankledger.HistorySide{AccountID: b.ID, BalanceAfter: 400},
	)
	reqrd.Nil(err)
	rows, err := store.Histories().Insert(ctx, tr)
	reqrd.Nil(err)
	as.Equal(int64(1), rows)
	as.NotZero(tr.ID)

	forA, err := store.Histories().FindByAccountID(ctx, a.ID)
	reqrd.Nil(err)
	forB, err := store.Histories().FindByAccountID(ctx, b.ID)
	reqrd.Nil(err)
	reqrd.Len(forA, 1)
	reqrd.Len(forB, 1)
	as.Equal(tr.ID, forA[0].ID)

	// returned rows are copies
	forA[0].Withdrawal.BalanceAfter = 0
	again, err := store.Histories().FindByAccountID(ctx, a.ID)
	reqrd.Nil(err)
	as.Equal(int64(400), again[0].Withdrawal.BalanceAfter)
}
