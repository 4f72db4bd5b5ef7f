package bankledger

import (
	"context"
	"io"
	"math"
	"time"

	"github.com/rs/zerolog"
)

type CreateAccountReq struct {
	Number   string `json:"number" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=255"`
	Balance  int64  `json:"balance" validate:"gt=0"`
}

type WithdrawReq struct {
	Number   string `json:"number" validate:"required"`
	Password string `json:"password" validate:"required"`
	Amount   int64  `json:"amount" validate:"gt=0"`
}

type DepositReq struct {
	Number string `json:"number" validate:"required"`
	Amount int64  `json:"amount" validate:"gt=0"`
}

type TransferReq struct {
	From     string `json:"from" validate:"required"`
	To       string `json:"to" validate:"required,nefield=From"`
	Password string `json:"password" validate:"required"`
	Amount   int64  `json:"amount" validate:"gt=0"`
}

type StatementReq struct {
	Number string `json:"number" validate:"required"`
}

// Service is the ledger core. Every method takes the verified identity of the
// caller from the request layer; nothing is read from ambient session state.
type Service interface {
	CreateAccount(ctx context.Context, req CreateAccountReq, ownerID int64) (*Account, error)
	ReadAccountsByOwner(ctx context.Context, ownerID int64) ([]Account, error)
	Withdraw(ctx context.Context, req WithdrawReq, callerID int64) (*History, error)
	Deposit(ctx context.Context, req DepositReq, callerID int64) (*History, error)
	Transfer(ctx context.Context, req TransferReq, callerID int64) (*History, error)
	Statement(ctx context.Context, w io.Writer, req StatementReq, callerID int64) error
}

var (
	_ Service = (*serviceImpl)(nil)
)

func NewService(store Store, log *zerolog.Logger) *serviceImpl {
	return &serviceImpl{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

type serviceImpl struct {
	store Store
	log   *zerolog.Logger
	now   func() time.Time
}

func (s *serviceImpl) CreateAccount(ctx context.Context, req CreateAccountReq, ownerID int64) (*Account, error) {
	fields := map[string]string{}
	if req.Number == "" {
		fields["number"] = "required"
	}
	if req.Password == "" {
		fields["password"] = "required"
	}
	if req.Balance <= 0 {
		fields["balance"] = "must be greater than zero"
	}
	if len(fields) > 0 {
		return nil, ErrBadRequest{Fields: fields}
	}

	acct := &Account{
		Number:   req.Number,
		Password: req.Password,
		Balance:  req.Balance,
		OwnerID:  ownerID,
	}
	err := s.withTx(ctx, "create_account", func(tx Tx) error {
		rows, err := tx.Accounts().Insert(ctx, acct)
		if err != nil {
			return classifyStoreErr("insert account", err)
		}
		if rows != 1 {
			return errRowsAffected("insert account", rows)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("account", acct.Number).
		Int64("owner", ownerID).
		Msg("account created")
	return acct, nil
}

func (s *serviceImpl) ReadAccountsByOwner(ctx context.Context, ownerID int64) ([]Account, error) {
	accts, err := s.store.Accounts().FindByUserID(ctx, ownerID)
	if err != nil {
		return nil, classifyStoreErr("find accounts by owner", err)
	}
	if accts == nil {
		accts = []Account{}
	}
	return accts, nil
}

func (s *serviceImpl) Withdraw(ctx context.Context, req WithdrawReq, callerID int64) (*History, error) {
	if err := checkAmount(req.Amount); err != nil {
		return nil, err
	}

	var hist *History
	err := s.withTx(ctx, "withdraw", func(tx Tx) error {
		acct, err := findAccount(ctx, tx.Accounts(), req.Number)
		if err != nil {
			return err
		}
		if err = acct.CheckOwner(callerID); err != nil {
			return err
		}
		if err = acct.CheckPassword(req.Password); err != nil {
			return err
		}
		if err = acct.CheckBalance(req.Amount); err != nil {
			return err
		}

		acct.Withdraw(req.Amount)
		if err = updateAccount(ctx, tx.Accounts(), acct); err != nil {
			return err
		}

		hist, err = NewHistory(req.Amount, &HistorySide{AccountID: acct.ID, BalanceAfter: acct.Balance}, nil)
		if err != nil {
			return err
		}
		return insertHistory(ctx, tx.Histories(), hist)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("account", req.Number).
		Int64("amount", req.Amount).
		Int64("caller", callerID).
		Msg("withdrawal committed")
	return hist, nil
}

// Deposit checks ownership of the receiving account but, unlike Withdraw,
// needs no password and no balance check.
func (s *serviceImpl) Deposit(ctx context.Context, req DepositReq, callerID int64) (*History, error) {
	if err := checkAmount(req.Amount); err != nil {
		return nil, err
	}

	var hist *History
	err := s.withTx(ctx, "deposit", func(tx Tx) error {
		acct, err := findAccount(ctx, tx.Accounts(), req.Number)
		if err != nil {
			return err
		}
		if err = acct.CheckOwner(callerID); err != nil {
			return err
		}
		if err = checkDepositLimit(*acct, req.Amount); err != nil {
			return err
		}

		acct.Deposit(req.Amount)
		if err = updateAccount(ctx, tx.Accounts(), acct); err != nil {
			return err
		}

		hist, err = NewHistory(req.Amount, nil, &HistorySide{AccountID: acct.ID, BalanceAfter: acct.Balance})
		if err != nil {
			return err
		}
		return insertHistory(ctx, tx.Histories(), hist)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("account", req.Number).
		Int64("amount", req.Amount).
		Int64("caller", callerID).
		Msg("deposit committed")
	return hist, nil
}

// Transfer moves money from an account the caller owns to any account. Only
// the withdrawal side is checked. The deposit side is persisted first.
func (s *serviceImpl) Transfer(ctx context.Context, req TransferReq, callerID int64) (*History, error) {
	if req.From == req.To {
		return nil, ErrBadRequest{Fields: map[string]string{"to": "must differ from withdrawal account"}}
	}
	if err := checkAmount(req.Amount); err != nil {
		return nil, err
	}

	var hist *History
	err := s.withTx(ctx, "transfer", func(tx Tx) error {
		if err := lockNumbers(ctx, tx.Accounts(), req.From, req.To); err != nil {
			return err
		}
		from, err := findAccount(ctx, tx.Accounts(), req.From)
		if err != nil {
			return err
		}
		to, err := findAccount(ctx, tx.Accounts(), req.To)
		if err != nil {
			return err
		}

		if err = from.CheckOwner(callerID); err != nil {
			return err
		}
		if err = from.CheckPassword(req.Password); err != nil {
			return err
		}
		if err = from.CheckBalance(req.Amount); err != nil {
			return err
		}
		if err = checkDepositLimit(*to, req.Amount); err != nil {
			return err
		}

		to.Deposit(req.Amount)
		if err = updateAccount(ctx, tx.Accounts(), to); err != nil {
			return err
		}
		from.Withdraw(req.Amount)
		if err = updateAccount(ctx, tx.Accounts(), from); err != nil {
			return err
		}

		hist, err = NewHistory(req.Amount,
			&HistorySide{AccountID: from.ID, BalanceAfter: from.Balance},
			&HistorySide{AccountID: to.ID, BalanceAfter: to.Balance},
		)
		if err != nil {
			return err
		}
		return insertHistory(ctx, tx.Histories(), hist)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("from", req.From).
		Str("to", req.To).
		Int64("amount", req.Amount).
		Int64("caller", callerID).
		Msg("transfer committed")
	return hist, nil
}

func (s *serviceImpl) Statement(ctx context.Context, w io.Writer, req StatementReq, callerID int64) error {
	acct, err := findAccount(ctx, s.store.Accounts(), req.Number)
	if err != nil {
		return err
	}
	if err = acct.CheckOwner(callerID); err != nil {
		return err
	}
	hist, err := s.store.Histories().FindByAccountID(ctx, acct.ID)
	if err != nil {
		return classifyStoreErr("find history", err)
	}
	return RenderStatement(w, *acct, hist, s.now())
}

// withTx runs fn between BeginTx and Commit. Any error from fn rolls the
// transaction back and is returned unchanged.
func (s *serviceImpl) withTx(ctx context.Context, op string, fn func(tx Tx) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return classifyStoreErr("begin "+op, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		if rerr := tx.Rollback(ctx); rerr != nil {
			s.log.Err(rerr).Str("op", op).Msg("transaction rollback fail")
		}
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return classifyStoreErr("commit "+op, err)
	}
	return nil
}

func checkAmount(amount int64) error {
	if amount <= 0 {
		return ErrBadRequest{Fields: map[string]string{"amount": "must be greater than zero"}}
	}
	return nil
}

// checkDepositLimit refuses a deposit that would overflow the balance.
func checkDepositLimit(acct Account, amount int64) error {
	if acct.Balance > math.MaxInt64-amount {
		return ErrBadRequest{Fields: map[string]string{"amount": "exceeds balance limit"}}
	}
	return nil
}

// lockNumbers takes row locks up front when the store supports it, so that
// two transfers in opposite directions lock their rows in the same order.
func lockNumbers(ctx context.Context, accts AccountStore, numbers ...string) error {
	l, ok := accts.(NumberLocker)
	if !ok {
		return nil
	}
	if err := l.LockNumbers(ctx, numbers...); err != nil {
		return classifyStoreErr("lock accounts", err)
	}
	return nil
}

func findAccount(ctx context.Context, accts AccountStore, number string) (*Account, error) {
	acct, err := accts.FindByNumber(ctx, number)
	if err != nil {
		return nil, classifyStoreErr("find account", err)
	}
	if acct == nil {
		return nil, ErrNotFound{Number: number}
	}
	return acct, nil
}

func updateAccount(ctx context.Context, accts AccountStore, acct *Account) error {
	rows, err := accts.UpdateByID(ctx, acct)
	if err != nil {
		return classifyStoreErr("update account", err)
	}
	if rows != 1 {
		return errRowsAffected("update account", rows)
	}
	return nil
}

func insertHistory(ctx context.Context, hists HistoryStore, h *History) error {
	rows, err := hists.Insert(ctx, h)
	if err != nil {
		return classifyStoreErr("insert history", err)
	}
	if rows != 1 {
		return errRowsAffected("insert history", rows)
	}
	return nil
}
