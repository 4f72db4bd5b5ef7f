package bankledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

var (
	pgSelectAcctByNumberSQL = `
		SELECT id, number, password, balance, user_id, created_at
		FROM account_tb
		WHERE number = $1;
	`

	pgSelectForUpdateAcctByNumberSQL = `
		SELECT id, number, password, balance, user_id, created_at
		FROM account_tb
		WHERE number = $1
		FOR UPDATE;
	`

	pgLockAcctsByNumberSQL = `
		SELECT id
		FROM account_tb
		WHERE number = ANY($1)
		ORDER BY id
		FOR UPDATE;
	`

	pgSelectAcctsByUserSQL = `
		SELECT id, number, password, balance, user_id, created_at
		FROM account_tb
		WHERE user_id = $1
		ORDER BY id;
	`

	pgInsertAcctSQL = `
		INSERT INTO account_tb (id, number, password, balance, user_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at;
	`

	pgUpdateAcctSQL = `
		UPDATE account_tb
		SET balance = $1
		WHERE id = $2;
	`

	pgInsertHistorySQL = `
		INSERT INTO history_tb (id, amount, w_balance, d_balance, w_account_id, d_account_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at;
	`

	pgSelectHistoryByAcctSQL = `
		SELECT id, amount, w_balance, d_balance, w_account_id, d_account_id, created_at
		FROM history_tb
		WHERE w_account_id = $1 OR d_account_id = $1
		ORDER BY created_at, id;
	`
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresEndpoint struct {
	pool *pgxpool.Pool
	node *snowflake.Node
	log  *zerolog.Logger
}

var (
	_ Store        = (*PostgresEndpoint)(nil)
	_ NumberLocker = (*pgAccounts)(nil)
)

func NewPostgresEndpoint(ctx context.Context, connStr string, maxConns int32, node *snowflake.Node, log *zerolog.Logger) (*PostgresEndpoint, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Int32("max_conns", cfg.MaxConns).
		Msg("postgres connection pool established")
	endpt := &PostgresEndpoint{
		pool: pool,
		node: node,
		log:  log,
	}
	return endpt, err
}

func (pg *PostgresEndpoint) Close() {
	pg.pool.Close()
}

// BeginTx opens a READ COMMITTED transaction. Accounts read through it are
// locked with SELECT ... FOR UPDATE, which keeps concurrent balance updates
// on the same row from being lost.
func (pg *PostgresEndpoint) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := pg.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx, node: pg.node, log: pg.log}, nil
}

func (pg *PostgresEndpoint) Accounts() AccountStore {
	return &pgAccounts{q: pg.pool, node: pg.node}
}

func (pg *PostgresEndpoint) Histories() HistoryStore {
	return &pgHistories{q: pg.pool, node: pg.node}
}

type pgTx struct {
	tx   pgx.Tx
	node *snowflake.Node
	log  *zerolog.Logger
}

func (t *pgTx) Accounts() AccountStore {
	return &pgAccounts{q: t.tx, node: t.node, lock: true}
}

func (t *pgTx) Histories() HistoryStore {
	return &pgHistories{q: t.tx, node: t.node}
}

func (t *pgTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		t.log.Err(err).Msg("transaction commit fail")
		return pgErr(err)
	}
	return nil
}

func (t *pgTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

type pgAccounts struct {
	q    querier
	node *snowflake.Node
	lock bool
}

func (a *pgAccounts) FindByNumber(ctx context.Context, number string) (*Account, error) {
	sql := pgSelectAcctByNumberSQL
	if a.lock {
		sql = pgSelectForUpdateAcctByNumberSQL
	}
	acct, err := scanAccount(a.q.QueryRow(ctx, sql, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound{Number: number}
		}
		return nil, pgErr(err)
	}
	return acct, nil
}

// LockNumbers locks the rows carrying the given numbers in ID order. It is a
// no-op outside a transaction.
func (a *pgAccounts) LockNumbers(ctx context.Context, numbers ...string) error {
	if !a.lock {
		return nil
	}
	rows, err := a.q.Query(ctx, pgLockAcctsByNumberSQL, numbers)
	if err != nil {
		return pgErr(err)
	}
	defer rows.Close()
	for rows.Next() {
	}
	return pgErr(rows.Err())
}

func (a *pgAccounts) FindByUserID(ctx context.Context, ownerID int64) ([]Account, error) {
	rows, err := a.q.Query(ctx, pgSelectAcctsByUserSQL, ownerID)
	if err != nil {
		return nil, pgErr(err)
	}
	defer rows.Close()

	accts := []Account{}
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, pgErr(err)
		}
		accts = append(accts, *acct)
	}
	if err = rows.Err(); err != nil {
		return nil, pgErr(err)
	}
	return accts, nil
}

func (a *pgAccounts) Insert(ctx context.Context, acct *Account) (int64, error) {
	id := a.node.Generate()
	row := a.q.QueryRow(ctx, pgInsertAcctSQL, id.Int64(), acct.Number, acct.Password, acct.Balance, acct.OwnerID)
	if err := row.Scan(&acct.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, pgErr(err)
	}
	acct.ID = id
	return 1, nil
}

func (a *pgAccounts) UpdateByID(ctx context.Context, acct *Account) (int64, error) {
	tag, err := a.q.Exec(ctx, pgUpdateAcctSQL, acct.Balance, acct.ID.Int64())
	if err != nil {
		return 0, pgErr(err)
	}
	return tag.RowsAffected(), nil
}

type pgHistories struct {
	q    querier
	node *snowflake.Node
}

func (h *pgHistories) Insert(ctx context.Context, hist *History) (int64, error) {
	if !hist.Valid() {
		return 0, fmt.Errorf("%w: history row violates side/amount constraint", ErrDataAccess)
	}
	var (
		wbal, dbal *int64
		wid, did   *int64
	)
	if w := hist.Withdrawal; w != nil {
		id := w.AccountID.Int64()
		wid, wbal = &id, &w.BalanceAfter
	}
	if d := hist.Deposit; d != nil {
		id := d.AccountID.Int64()
		did, dbal = &id, &d.BalanceAfter
	}

	id := h.node.Generate()
	row := h.q.QueryRow(ctx, pgInsertHistorySQL, id.Int64(), hist.Amount, wbal, dbal, wid, did)
	if err := row.Scan(&hist.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, pgErr(err)
	}
	hist.ID = id
	return 1, nil
}

func (h *pgHistories) FindByAccountID(ctx context.Context, accountID snowflake.ID) ([]History, error) {
	rows, err := h.q.Query(ctx, pgSelectHistoryByAcctSQL, accountID.Int64())
	if err != nil {
		return nil, pgErr(err)
	}
	defer rows.Close()

	hists := []History{}
	for rows.Next() {
		var (
			id, amount int64
			wbal, dbal *int64
			wid, did   *int64
			hist       History
		)
		if err = rows.Scan(&id, &amount, &wbal, &dbal, &wid, &did, &hist.CreatedAt); err != nil {
			return nil, pgErr(err)
		}
		hist.ID = snowflake.ParseInt64(id)
		hist.Amount = amount
		if wid != nil && wbal != nil {
			hist.Withdrawal = &HistorySide{AccountID: snowflake.ParseInt64(*wid), BalanceAfter: *wbal}
		}
		if did != nil && dbal != nil {
			hist.Deposit = &HistorySide{AccountID: snowflake.ParseInt64(*did), BalanceAfter: *dbal}
		}
		hists = append(hists, hist)
	}
	if err = rows.Err(); err != nil {
		return nil, pgErr(err)
	}
	return hists, nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var (
		id   int64
		acct Account
	)
	if err := row.Scan(&id, &acct.Number, &acct.Password, &acct.Balance, &acct.OwnerID, &acct.CreatedAt); err != nil {
		return nil, err
	}
	acct.ID = snowflake.ParseInt64(id)
	return &acct, nil
}

// pgErr wraps SQLSTATE class 22 (data exception) and 23 (integrity
// constraint violation) errors with ErrDataAccess.
func pgErr(err error) error {
	if err == nil {
		return nil
	}
	var pge *pgconn.PgError
	if errors.As(err, &pge) && (strings.HasPrefix(pge.Code, "22") || strings.HasPrefix(pge.Code, "23")) {
		return fmt.Errorf("%w: %w", ErrDataAccess, err)
	}
	return err
}
